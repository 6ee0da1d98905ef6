// Package config loads the service configuration from an optional YAML
// file, then applies environment variable overrides. Environment wins
// over file so containerized deployments can tune a baked-in config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Stream StreamConfig `yaml:"stream"`
	Camera CameraConfig `yaml:"camera"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string `yaml:"addr"`
}

// StreamConfig contains frame pipeline settings.
type StreamConfig struct {
	// Width and Height of captured frames in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FPS is the target capture rate.
	FPS int `yaml:"fps"`

	// EdgeDetection toggles the edge-detection filter between capture
	// and publish.
	EdgeDetection bool `yaml:"edge_detection"`

	// StarvationTimeoutS bounds how long a viewer may wait for a frame
	// before its stream reports "no frame available". 0 waits forever.
	StarvationTimeoutS int `yaml:"starvation_timeout_s"`
}

// CameraConfig contains capture source settings.
type CameraConfig struct {
	// Source selects the capture provider: "camera" (GStreamer) or
	// "mock" (synthetic frames, no hardware).
	Source string `yaml:"source"`

	// Device is the video device for the camera source, e.g. "/dev/video0".
	Device string `yaml:"device"`
}

// MQTTConfig contains optional status publishing settings. The emitter
// is disabled when Broker is empty.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Topic     string `yaml:"topic"`
	IntervalS int    `yaml:"interval_s"`
}

// Default returns the built-in configuration, matching a bare deployment
// with no config file and no environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8000"},
		Stream: StreamConfig{
			Width:              640,
			Height:             480,
			FPS:                24,
			StarvationTimeoutS: 0,
		},
		Camera: CameraConfig{
			Source: "camera",
			Device: "/dev/video0",
		},
		MQTT: MQTTConfig{IntervalS: 30},
	}
}

// Load builds the effective configuration: defaults, overridden by the
// YAML file at path (if path is non-empty), overridden by environment
// variables, then validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv merges environment variable overrides into cfg.
//
// Recognized variables: RESOLUTION (WIDTHxHEIGHT), EDGE_DETECTION
// (true/1/t), FPS, PORT, MQTT_BROKER.
func (cfg *Config) applyEnv() error {
	if res := os.Getenv("RESOLUTION"); res != "" {
		w, h, err := ParseResolution(res)
		if err != nil {
			return err
		}
		cfg.Stream.Width, cfg.Stream.Height = w, h
	}

	if edge := os.Getenv("EDGE_DETECTION"); edge != "" {
		cfg.Stream.EdgeDetection = parseBool(edge)
	}

	if fps := os.Getenv("FPS"); fps != "" {
		n, err := strconv.Atoi(fps)
		if err != nil {
			return fmt.Errorf("invalid FPS %q: %w", fps, err)
		}
		cfg.Stream.FPS = n
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
	}

	return nil
}

// ParseResolution parses a WIDTHxHEIGHT string such as "640x480".
func ParseResolution(s string) (width, height int, err error) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q (want WIDTHxHEIGHT)", s)
	}
	width, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q: %w", parts[0], err)
	}
	height, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q: %w", parts[1], err)
	}
	return width, height, nil
}

// parseBool accepts the truthy spellings the deployment scripts use.
func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "t":
		return true
	}
	return false
}
