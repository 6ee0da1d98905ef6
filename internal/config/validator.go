package config

import "fmt"

// Validate checks cfg for inconsistencies and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.Stream.Width <= 0 || cfg.Stream.Height <= 0 {
		return fmt.Errorf("stream resolution must be positive, got %dx%d",
			cfg.Stream.Width, cfg.Stream.Height)
	}

	if cfg.Stream.FPS <= 0 {
		return fmt.Errorf("stream.fps must be > 0, got %d", cfg.Stream.FPS)
	}
	if cfg.Stream.FPS > 60 {
		return fmt.Errorf("stream.fps must be <= 60, got %d", cfg.Stream.FPS)
	}

	if cfg.Stream.StarvationTimeoutS < 0 {
		return fmt.Errorf("stream.starvation_timeout_s must be >= 0, got %d",
			cfg.Stream.StarvationTimeoutS)
	}

	switch cfg.Camera.Source {
	case "camera", "mock":
	case "":
		cfg.Camera.Source = "camera"
	default:
		return fmt.Errorf("camera.source must be \"camera\" or \"mock\", got %q",
			cfg.Camera.Source)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "motion-in-ocean/health"
		}
		if cfg.MQTT.IntervalS <= 0 {
			cfg.MQTT.IntervalS = 30
		}
	}

	return nil
}
