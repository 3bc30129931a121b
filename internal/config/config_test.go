package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.TempDir == "" {
		t.Error("TempDir should not be empty")
	}
	if cfg.Tap.BufferSize != 8192 {
		t.Errorf("Tap.BufferSize = %d, want 8192", cfg.Tap.BufferSize)
	}
	if cfg.Tap.CreatorSampleRate != 48000 {
		t.Errorf("Tap.CreatorSampleRate = %g, want 48000", cfg.Tap.CreatorSampleRate)
	}
	if cfg.Tap.MatcherSampleRate != 0 {
		t.Errorf("Tap.MatcherSampleRate = %g, want 0 (native)", cfg.Tap.MatcherSampleRate)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
temp_dir: ~/scratch
log_level: debug
audio:
  device: "USB Mic"
  sample_rate: 44100
  channels: 2
tap:
  matcher_sample_rate: 16000
match:
  min_score: 12
  timeout: 45s
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if strings.HasPrefix(cfg.TempDir, "~") || !strings.HasSuffix(cfg.TempDir, "scratch") {
		t.Errorf("TempDir = %q, want expanded ~/scratch", cfg.TempDir)
	}
	if cfg.Audio.Device != "USB Mic" || cfg.Audio.SampleRate != 44100 || cfg.Audio.Channels != 2 {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if cfg.Tap.MatcherSampleRate != 16000 {
		t.Errorf("Tap.MatcherSampleRate = %g, want 16000", cfg.Tap.MatcherSampleRate)
	}
	// untouched fields keep their defaults
	if cfg.Tap.CreatorSampleRate != 48000 || cfg.Tap.BufferSize != 8192 {
		t.Errorf("Tap defaults lost: %+v", cfg.Tap)
	}
	if cfg.Match.MinScore != 12 || cfg.Match.MinConfidence != 50 {
		t.Errorf("Match = %+v", cfg.Match)
	}
	if cfg.Match.Timeout != 45*time.Second {
		t.Errorf("Match.Timeout = %v, want 45s", cfg.Match.Timeout)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("tap: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected a parse error")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault(\"\") error = %v", err)
	}
	if cfg.Tap.BufferSize != Default().Tap.BufferSize {
		t.Error("expected defaults when the default file is missing")
	}

	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"TEMP_DIR", "/var/tmp/cc")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "DEBUG")
	t.Setenv(EnvPrefix+"DEVICE", "hw:1")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.TempDir != "/var/tmp/cc" {
		t.Errorf("TempDir = %q", cfg.TempDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Audio.Device != "hw:1" {
		t.Errorf("Audio.Device = %q", cfg.Audio.Device)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty temp dir", func(c *Config) { c.TempDir = "" }, "temp_dir"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate"},
		{"zero channels", func(c *Config) { c.Audio.Channels = 0 }, "audio.channels"},
		{"zero buffer", func(c *Config) { c.Tap.BufferSize = 0 }, "tap.buffer_size"},
		{"negative tap rate", func(c *Config) { c.Tap.MatcherSampleRate = -1 }, "tap sample rates"},
		{"zero min score", func(c *Config) { c.Match.MinScore = 0 }, "match.min_score"},
		{"confidence over 100", func(c *Config) { c.Match.MinConfidence = 101 }, "match.min_confidence"},
		{"zero timeout", func(c *Config) { c.Match.Timeout = 0 }, "match.timeout"},
		{"zero youtube timeout", func(c *Config) { c.YouTube.Timeout = 0 }, "youtube.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
