package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}

	cfg := Default()
	cfg.Backend = BackendSim
	cfg.Video.Width, cfg.Video.Height = 640, 480
	cfg.Video.BitRate = MaxBitRate
	cfg.Video.FrameRate = 120
	cfg.Video.MaxSeconds = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Boundary values should be valid, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "v4l2" }, "backend must be"},
		{"empty backend", func(c *Config) { c.Backend = "" }, "backend must be"},
		{"zero width", func(c *Config) { c.Video.Width = 0 }, "non-zero"},
		{"zero height", func(c *Config) { c.Video.Height = 0 }, "non-zero"},
		{"odd width", func(c *Config) { c.Video.Width = 641 }, "even"},
		{"odd height", func(c *Config) { c.Video.Height = 481 }, "even"},
		{"zero frame rate", func(c *Config) { c.Video.FrameRate = 0 }, "frame_rate"},
		{"negative frame rate", func(c *Config) { c.Video.FrameRate = -30 }, "frame_rate"},
		{"frame rate too high", func(c *Config) { c.Video.FrameRate = 121 }, "frame_rate"},
		{"zero bit rate", func(c *Config) { c.Video.BitRate = 0 }, "bit_rate"},
		{"bit rate too high", func(c *Config) { c.Video.BitRate = MaxBitRate + 1 }, "bit_rate"},
		{"zero send timeout", func(c *Config) { c.Pipeline.SendTimeout = 0 }, "send_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestLoadWithProfile_RejectsInvalidProfile(t *testing.T) {
	path := writeConfig(t, `
profiles:
    broken:
        video:
            width: 641
`)

	if _, err := LoadWithProfile(path, "", true); err != nil {
		t.Fatalf("Base config should load without the profile: %v", err)
	}

	_, err := LoadWithProfile(path, "broken", true)
	if err == nil {
		t.Fatal("Expected validation error for odd width in profile")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("Expected validation failure, got: %v", err)
	}
}

func TestLoadWithProfile_MalformedFile(t *testing.T) {
	path := writeConfig(t, "video: [width\n")
	if _, err := LoadWithProfile(path, "", false); err == nil {
		t.Fatal("Expected error for malformed YAML even when the file is optional")
	}
}
