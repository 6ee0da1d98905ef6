package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"640x480", 640, 480, false},
		{"1920x1080", 1920, 1080, false},
		{"640", 0, 0, true},
		{"640x480x3", 0, 0, true},
		{"ax480", 0, 0, true},
		{"640xb", 0, 0, true},
	}

	for _, tt := range tests {
		w, h, err := ParseResolution(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseResolution(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResolution(%q) failed: %v", tt.in, err)
			continue
		}
		if w != tt.w || h != tt.h {
			t.Errorf("ParseResolution(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESOLUTION", "1920x1080")
	t.Setenv("EDGE_DETECTION", "true")
	t.Setenv("FPS", "30")
	t.Setenv("PORT", "9000")
	t.Setenv("MQTT_BROKER", "broker:1883")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.Width != 1920 || cfg.Stream.Height != 1080 {
		t.Errorf("resolution = %dx%d, want 1920x1080", cfg.Stream.Width, cfg.Stream.Height)
	}
	if !cfg.Stream.EdgeDetection {
		t.Error("EdgeDetection = false, want true")
	}
	if cfg.Stream.FPS != 30 {
		t.Errorf("FPS = %d, want 30", cfg.Stream.FPS)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q, want \":9000\"", cfg.Server.Addr)
	}
	if cfg.MQTT.Broker != "broker:1883" {
		t.Errorf("Broker = %q, want \"broker:1883\"", cfg.MQTT.Broker)
	}
	// Broker set implies derived defaults.
	if cfg.MQTT.Topic == "" || cfg.MQTT.IntervalS <= 0 {
		t.Errorf("MQTT defaults not derived: topic=%q interval=%d", cfg.MQTT.Topic, cfg.MQTT.IntervalS)
	}
}

func TestEdgeDetectionSpellings(t *testing.T) {
	for _, truthy := range []string{"true", "1", "t", "True", "T"} {
		t.Setenv("EDGE_DETECTION", truthy)
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !cfg.Stream.EdgeDetection {
			t.Errorf("EDGE_DETECTION=%q parsed as false, want true", truthy)
		}
	}

	for _, falsy := range []string{"false", "0", "no", "yes"} {
		t.Setenv("EDGE_DETECTION", falsy)
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Stream.EdgeDetection {
			t.Errorf("EDGE_DETECTION=%q parsed as true, want false", falsy)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.Width != 640 || cfg.Stream.Height != 480 {
		t.Errorf("default resolution = %dx%d, want 640x480", cfg.Stream.Width, cfg.Stream.Height)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("default addr = %q, want \":8000\"", cfg.Server.Addr)
	}
	if cfg.Stream.EdgeDetection {
		t.Error("edge detection enabled by default")
	}
	if cfg.Camera.Source != "camera" {
		t.Errorf("default source = %q, want \"camera\"", cfg.Camera.Source)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  addr: ":8080"
stream:
  width: 1280
  height: 720
  fps: 15
  edge_detection: true
  starvation_timeout_s: 10
camera:
  source: mock
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.Width != 1280 || cfg.Stream.Height != 720 {
		t.Errorf("resolution = %dx%d, want 1280x720", cfg.Stream.Width, cfg.Stream.Height)
	}
	if cfg.Stream.StarvationTimeoutS != 10 {
		t.Errorf("StarvationTimeoutS = %d, want 10", cfg.Stream.StarvationTimeoutS)
	}
	if cfg.Camera.Source != "mock" {
		t.Errorf("source = %q, want \"mock\"", cfg.Camera.Source)
	}
}

func TestValidateRejects(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Stream.FPS = 0 },
		func(c *Config) { c.Stream.FPS = 120 },
		func(c *Config) { c.Stream.Width = -1 },
		func(c *Config) { c.Stream.StarvationTimeoutS = -5 },
		func(c *Config) { c.Camera.Source = "hologram" },
	}

	for i, mutate := range bad {
		cfg := Default()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("case %d: Validate accepted invalid config", i)
		}
	}
}
