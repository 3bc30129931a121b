package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CATALOGCOACH_TEMP_DIR.
const EnvPrefix = "CATALOGCOACH_"

// Config holds the command-line tool's settings.
type Config struct {
	TempDir  string        `yaml:"temp_dir"`
	LogLevel string        `yaml:"log_level"`
	Audio    AudioConfig   `yaml:"audio"`
	Tap      TapConfig     `yaml:"tap"`
	Match    MatchConfig   `yaml:"match"`
	YouTube  YouTubeConfig `yaml:"youtube"`
}

// AudioConfig selects the capture device.
type AudioConfig struct {
	Device     string `yaml:"device"` // name or id, empty for the default
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
}

// TapConfig shapes the buffers the microphone tap delivers. A rate of 0
// keeps the device rate.
type TapConfig struct {
	BufferSize        int     `yaml:"buffer_size"`
	CreatorSampleRate float64 `yaml:"creator_sample_rate"`
	MatcherSampleRate float64 `yaml:"matcher_sample_rate"`
}

type MatchConfig struct {
	MinScore      int           `yaml:"min_score"`
	MinConfidence float64       `yaml:"min_confidence"`
	Timeout       time.Duration `yaml:"timeout"`
}

type YouTubeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "catalogcoach")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func Default() *Config {
	return &Config{
		TempDir:  os.TempDir(),
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate: 48000,
			Channels:   1,
		},
		Tap: TapConfig{
			BufferSize:        8192,
			CreatorSampleRate: 48000,
			MatcherSampleRate: 0,
		},
		Match: MatchConfig{
			MinScore:      20,
			MinConfidence: 50,
			Timeout:       30 * time.Second,
		},
		YouTube: YouTubeConfig{
			Timeout: 5 * time.Minute,
		},
	}
}

// Load reads a YAML config file over the defaults. Tilde in temp_dir is
// expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.TempDir = expandTilde(cfg.TempDir)
	return cfg, nil
}

// LoadOrDefault loads path, or DefaultConfigPath when path is empty. A
// missing default file yields the defaults; a missing explicit file is an
// error.
func LoadOrDefault(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	cfg, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CATALOGCOACH_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPrefix + "TEMP_DIR"); v != "" {
		c.TempDir = expandTilde(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "DEVICE"); v != "" {
		c.Audio.Device = v
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.TempDir == "" {
		return fmt.Errorf("temp_dir must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Tap.BufferSize <= 0 {
		return fmt.Errorf("tap.buffer_size must be > 0")
	}
	if c.Tap.CreatorSampleRate < 0 || c.Tap.MatcherSampleRate < 0 {
		return fmt.Errorf("tap sample rates must be >= 0")
	}

	if c.Match.MinScore <= 0 {
		return fmt.Errorf("match.min_score must be > 0")
	}
	if c.Match.MinConfidence < 0 || c.Match.MinConfidence > 100 {
		return fmt.Errorf("match.min_confidence must be within 0-100, got %g", c.Match.MinConfidence)
	}
	if c.Match.Timeout <= 0 {
		return fmt.Errorf("match.timeout must be > 0")
	}
	if c.YouTube.Timeout <= 0 {
		return fmt.Errorf("youtube.timeout must be > 0")
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
