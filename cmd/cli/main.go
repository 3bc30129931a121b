package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/himanishpuri/CatalogCoach/internal/config"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"
	"github.com/himanishpuri/CatalogCoach/pkg/logger"
)

// Global flags
var (
	configPath string
	tempDir    string
	logLevel   string
	device     string
)

var cfg *config.Config

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault(config.EnvPrefix+"CONFIG", ""), "Path to the YAML config file (default ~/.config/catalogcoach/config.yaml)")
	flag.StringVar(&tempDir, "temp", "", "Scratch directory for downloads and default exports")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&device, "device", "", "Capture device name or id")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig merges the config file, environment and global flags, in that
// order of precedence from lowest to highest.
func loadConfig() (*config.Config, error) {
	c, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()

	if tempDir != "" {
		c.TempDir = tempDir
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if device != "" {
		c.Audio.Device = device
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func malgoConfig() engine.MalgoConfig {
	return engine.MalgoConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		DeviceName: cfg.Audio.Device,
	}
}

// creatorOptions builds options for a Creator. Only commands that record
// pass hardware=true; the rest run on the fake microphone.
func creatorOptions(hardware bool) []catalogcoach.Option {
	opts := []catalogcoach.Option{
		catalogcoach.WithLogger(logger.GetLogger()),
		catalogcoach.WithTempDir(cfg.TempDir),
		catalogcoach.WithTapBufferSize(cfg.Tap.BufferSize),
		catalogcoach.WithTapSampleRate(cfg.Tap.CreatorSampleRate),
	}
	if hardware {
		opts = append(opts, catalogcoach.WithHardwareTap(true), catalogcoach.WithMalgoConfig(malgoConfig()))
	} else {
		opts = append(opts, catalogcoach.WithEngine(engine.NewFakeMicrophone()))
	}
	return opts
}

func matcherOptions(hardware bool) []catalogcoach.Option {
	opts := []catalogcoach.Option{
		catalogcoach.WithLogger(logger.GetLogger()),
		catalogcoach.WithTempDir(cfg.TempDir),
		catalogcoach.WithTapBufferSize(cfg.Tap.BufferSize),
		catalogcoach.WithTapSampleRate(cfg.Tap.MatcherSampleRate),
		catalogcoach.WithMatchThresholds(cfg.Match.MinScore, cfg.Match.MinConfidence),
	}
	if hardware {
		opts = append(opts, catalogcoach.WithHardwareTap(true), catalogcoach.WithMalgoConfig(malgoConfig()))
	} else {
		opts = append(opts, catalogcoach.WithEngine(engine.NewFakeMicrophone()))
	}
	return opts
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()

	var err error
	cfg, err = loadConfig()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if lvl, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	printBanner()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "sign":
		handleSign(args[1:])
	case "catalog":
		handleCatalog(args[1:])
	case "record":
		handleRecord(args[1:])
	case "match":
		handleMatch(args[1:])
	case "listen":
		handleListen(args[1:])
	case "info":
		handleInfo(args[1:])
	case "convert":
		handleConvert(args[1:])
	case "spectrogram":
		handleSpectrogram(args[1:])
	case "devices":
		handleDevices()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
  ____      _        _              ____                 _
 / ___|__ _| |_ __ _| | ___   __ _ / ___|___   __ _  ___| |__
| |   / _' | __/ _' | |/ _ \ / _' | |   / _ \ / _' |/ __| '_ \
| |__| (_| | || (_| | | (_) | (_| | |__| (_) | (_| | (__| | | |
 \____\__,_|\__\__,_|_|\___/ \__, |\____\___/ \__,_|\___|_| |_|
                             |___/
        Custom Audio Catalog Builder and Matcher
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("CatalogCoach - custom audio fingerprint catalogs")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --config <path>    YAML config file (env: CATALOGCOACH_CONFIG)")
	fmt.Println("  --temp <dir>       Scratch directory (env: CATALOGCOACH_TEMP_DIR)")
	fmt.Println("  --log-level <lvl>  debug, info, warn or error (env: CATALOGCOACH_LOG_LEVEL)")
	fmt.Println("  --device <name>    Capture device (env: CATALOGCOACH_DEVICE)")
	fmt.Println("\nUsage:")
	fmt.Println("  catalogcoach sign <audio_file> [-o <signature_file>]")
	fmt.Println("  catalogcoach catalog [audio_files...] [--youtube-url <url>]... [-o <catalog>] [--merge <catalog>]")
	fmt.Println("  catalogcoach record --title <title> [--seconds <n>] [-o <catalog>]")
	fmt.Println("  catalogcoach match <catalog> <audio_file>")
	fmt.Println("  catalogcoach listen <catalog> [--timeout <duration>]")
	fmt.Println("  catalogcoach info <catalog>")
	fmt.Println("  catalogcoach convert <audio_file> -o <wav_file> [--rate <hz>] [--channels <n>]")
	fmt.Println("  catalogcoach spectrogram <audio_file> -o <png_file> [--peaks]")
	fmt.Println("  catalogcoach devices")
	fmt.Println("\nSupported audio:", catalogcoach.SupportedAudioExtensions())
}
