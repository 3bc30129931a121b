package catalogcoach

import (
	"os"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"
	"github.com/himanishpuri/CatalogCoach/pkg/logger"
)

const (
	// DefaultTapBufferSize is the frame count of every tap buffer.
	DefaultTapBufferSize = 8192
	// CreatorTapSampleRate is the rate recordings are captured at.
	CreatorTapSampleRate = 48000
	// NativeTapSampleRate keeps the input device's own rate.
	NativeTapSampleRate = 0
)

type Config struct {
	Logger     Logger
	Engine     engine.Engine
	Dispatcher Dispatcher
	Permission PermissionRequester

	// HardwareTap installs the microphone tap pipeline at construction.
	HardwareTap   bool
	TapSampleRate float64
	TapBufferSize int

	// MalgoConfig is used when HardwareTap is set and no Engine is given.
	MalgoConfig engine.MalgoConfig

	// TempDir receives catalogs exported without a destination.
	TempDir string

	MinScore      int
	MinConfidence float64
}

type Option func(*Config)

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithEngine supplies the capture engine, e.g. engine.NewFakeMicrophone() in
// tests.
func WithEngine(e engine.Engine) Option {
	return func(c *Config) {
		c.Engine = e
	}
}

// WithHardwareTap selects whether the microphone tap pipeline is installed.
func WithHardwareTap(enabled bool) Option {
	return func(c *Config) {
		c.HardwareTap = enabled
	}
}

// WithTapSampleRate sets the tap output rate; NativeTapSampleRate keeps the
// input's rate.
func WithTapSampleRate(rate float64) Option {
	return func(c *Config) {
		c.TapSampleRate = rate
	}
}

func WithTapBufferSize(frames int) Option {
	return func(c *Config) {
		c.TapBufferSize = frames
	}
}

func WithMalgoConfig(cfg engine.MalgoConfig) Option {
	return func(c *Config) {
		c.MalgoConfig = cfg
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = d
	}
}

func WithPermissionRequester(p PermissionRequester) Option {
	return func(c *Config) {
		c.Permission = p
	}
}

// WithMatchThresholds sets the aligned-hash count and confidence a match
// needs.
func WithMatchThresholds(minScore int, minConfidence float64) Option {
	return func(c *Config) {
		c.MinScore = minScore
		c.MinConfidence = minConfidence
	}
}

func defaultConfig(tapRate float64) *Config {
	return &Config{
		TapSampleRate: tapRate,
		TapBufferSize: DefaultTapBufferSize,
		MalgoConfig:   engine.DefaultMalgoConfig(),
		TempDir:       os.TempDir(),
	}
}

// resolve fills whatever the options left empty.
func (c *Config) resolve() {
	if c.Logger == nil {
		c.Logger = logger.New(logger.DefaultConfig())
	}
	if c.Engine == nil {
		if c.HardwareTap {
			c.Engine = engine.NewMalgoEngine(c.MalgoConfig)
		} else {
			c.Engine = engine.NewFakeMicrophone()
		}
	}
	if c.Permission == nil {
		c.Permission = DevicePermission(c.Engine)
	}
	if c.TapBufferSize <= 0 {
		c.TapBufferSize = DefaultTapBufferSize
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
}
