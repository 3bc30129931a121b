package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/CatalogCoach/internal/render"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/catalog"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"
	"github.com/himanishpuri/CatalogCoach/pkg/logger"
	"github.com/himanishpuri/CatalogCoach/pkg/models"
	"github.com/himanishpuri/CatalogCoach/pkg/utils"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

// parseInterleaved parses flags that may appear before, between or after
// positional arguments and returns the positionals.
func parseInterleaved(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		fs.Parse(args)
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func fail(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	logger.GetLogger().Errorf(format, args...)
	os.Exit(1)
}

func handleSign(args []string) {
	log := logger.GetLogger()

	signCmd := flag.NewFlagSet("sign", flag.ExitOnError)
	out := signCmd.String("o", "", "Write the signature's binary representation to this file")
	positional := parseInterleaved(signCmd, args)
	if len(positional) != 1 {
		fmt.Println("Usage: catalogcoach sign <audio_file> [-o <signature_file>]")
		os.Exit(1)
	}
	audioPath := positional[0]

	creator := catalogcoach.NewCreator(creatorOptions(false)...)
	defer creator.Close()

	fmt.Println("🎵 Generating signature...")
	sig, err := creator.GenerateSignature(audioPath)
	if err != nil {
		fail("Failed to generate signature: %v", err)
	}

	fmt.Println("\n✅ Signature generated")
	fmt.Printf("   File:     %s\n", audioPath)
	fmt.Printf("   Duration: %v\n", sig.Duration().Round(time.Millisecond))
	fmt.Printf("   Hashes:   %d (%d distinct)\n", sig.HashCount(), sig.DistinctHashCount())

	if *out != "" {
		if err := os.WriteFile(*out, sig.DataRepresentation(), 0o644); err != nil {
			fail("Failed to write signature: %v", err)
		}
		fmt.Printf("   Saved:    %s\n", *out)
		log.Infof("Wrote signature of %s to %s", audioPath, *out)
	}
}

func handleCatalog(args []string) {
	log := logger.GetLogger()

	catalogCmd := flag.NewFlagSet("catalog", flag.ExitOnError)
	out := catalogCmd.String("o", "", "Catalog destination (default: a new file in the scratch directory)")
	merge := catalogCmd.String("merge", "", "Existing catalog whose references are kept")
	artist := catalogCmd.String("artist", "", "Artist stored with every local file")
	var youtubeURLs stringList
	catalogCmd.Var(&youtubeURLs, "youtube-url", "YouTube URL to download and add (repeatable)")

	files := parseInterleaved(catalogCmd, args)
	if len(files) == 0 && len(youtubeURLs) == 0 {
		fmt.Println("Error: audio files or --youtube-url required")
		fmt.Println("Usage: catalogcoach catalog [audio_files...] [--youtube-url <url>]... [-o <catalog>]")
		os.Exit(1)
	}

	creator := catalogcoach.NewCreator(creatorOptions(false)...)
	defer creator.Close()

	for _, path := range files {
		if !audio.IsSupported(path) {
			fmt.Printf("⚠️  Skipping %s: unsupported type\n", path)
			log.Warnf("Skipping unsupported file %s", path)
			continue
		}
		fmt.Printf("🎵 Processing %s...\n", filepath.Base(path))
		sig, err := creator.GenerateSignature(path)
		if err != nil {
			fmt.Printf("⚠️  Skipping %s: %v\n", path, err)
			continue
		}

		props := models.MediaItemProperties{models.PropertyTitle: catalogcoach.FileNameWithoutExtension(path)}
		if *artist != "" {
			props[models.PropertyArtist] = *artist
		}
		creator.AddRecord(catalogcoach.NewCustomSignatureRecord(sig, props))
	}

	for _, url := range youtubeURLs {
		if err := addYouTubeRecord(creator, url); err != nil {
			fmt.Printf("⚠️  Skipping %s: %v\n", url, err)
			log.Errorf("YouTube add failed for %s: %v", url, err)
		}
	}

	cat := creator.CreateCatalogFromRecords()
	if cat == nil {
		fail("No signatures were generated, nothing to export")
	}
	if *merge != "" {
		if err := cat.Add(*merge); err != nil {
			fail("Failed to merge %s: %v", *merge, err)
		}
	}

	path, err := creator.Export(cat, *out)
	if err != nil {
		fail("Failed to export catalog: %v", err)
	}

	fmt.Println("\n✅ Catalog exported!")
	fmt.Printf("   Path:       %s\n", path)
	fmt.Printf("   References: %d\n", cat.Len())
	printReferences(cat)
}

func addYouTubeRecord(creator *catalogcoach.Creator, url string) error {
	log := logger.GetLogger()
	if !utils.IsYouTubeURL(url) {
		return fmt.Errorf("not a YouTube URL")
	}

	fmt.Println("📥 Downloading audio from YouTube...")
	fmt.Println("   This may take a few moments depending on video length")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.YouTube.Timeout)
	defer cancel()

	wavPath, meta, err := audio.DownloadYouTubeAudio(ctx, url, cfg.TempDir)
	if err != nil {
		return err
	}
	defer utils.DeleteFile(wavPath)

	sig, err := creator.GenerateSignature(wavPath)
	if err != nil {
		return err
	}

	props := models.MediaItemProperties{
		models.PropertyTitle:  meta.Title,
		models.PropertyWebURL: url,
	}
	if a := meta.PickArtist(); a != "" {
		props[models.PropertyArtist] = a
	}
	if id, err := utils.ExtractYouTubeID(url); err == nil {
		props[models.PropertyYouTubeID] = id
	} else {
		log.Warnf("Failed to extract YouTube ID: %v", err)
	}

	creator.AddRecord(catalogcoach.NewCustomSignatureRecord(sig, props))
	fmt.Printf("✅ Downloaded: %s\n", meta.Title)
	return nil
}

func handleRecord(args []string) {
	recordCmd := flag.NewFlagSet("record", flag.ExitOnError)
	title := recordCmd.String("title", "", "Title of the recorded audio (required)")
	artist := recordCmd.String("artist", "", "Artist of the recorded audio")
	seconds := recordCmd.Int("seconds", 15, "Recording length; Ctrl-C stops early")
	out := recordCmd.String("o", "", "Catalog destination")
	parseInterleaved(recordCmd, args)

	if *title == "" {
		fmt.Println("Error: --title is required")
		os.Exit(1)
	}

	creator := catalogcoach.NewCreator(creatorOptions(true)...)
	defer creator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	creator.StartListening()
	fmt.Printf("🎙️  Recording for up to %ds, press Ctrl-C to stop...\n", *seconds)

	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(*seconds) * time.Second):
	}
	creator.StopListening()

	props := models.MediaItemProperties{models.PropertyTitle: *title}
	if *artist != "" {
		props[models.PropertyArtist] = *artist
	}
	rec, err := creator.FinalizeFromMicrophone(props)
	if err != nil {
		fail("Failed to finalize recording (%v captured): %v", creator.RecordedDuration(), err)
	}

	path, err := creator.Export(creator.CreateCatalog([]catalogcoach.CustomSignatureRecord{rec}), *out)
	if err != nil {
		fail("Failed to export catalog: %v", err)
	}

	fmt.Println("\n✅ Recording saved!")
	fmt.Printf("   Title:    %s\n", *title)
	fmt.Printf("   Duration: %v\n", rec.Signature().Duration().Round(time.Millisecond))
	fmt.Printf("   Catalog:  %s\n", path)
}

func handleMatch(args []string) {
	log := logger.GetLogger()

	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	timeout := matchCmd.Duration("timeout", cfg.Match.Timeout, "How long to wait for a result")
	positional := parseInterleaved(matchCmd, args)
	if len(positional) != 2 {
		fmt.Println("Usage: catalogcoach match <catalog> <audio_file>")
		os.Exit(1)
	}
	catalogPath, audioPath := positional[0], positional[1]

	creator := catalogcoach.NewCreator(creatorOptions(false)...)
	defer creator.Close()
	matcher := catalogcoach.NewMatcher(matcherOptions(false)...)
	defer matcher.Close()

	results := make(chan catalogcoach.Status, 4)
	matcher.OnStateChange(func(s catalogcoach.Status) {
		if s.Kind == catalogcoach.MatchFound || s.Kind == catalogcoach.Failed {
			results <- s
		}
	})

	if err := matcher.MatchFile(catalogPath, false); err != nil {
		fail("Failed to load catalog: %v", err)
	}

	fmt.Println("🔍 Analyzing audio file...")
	sig, err := creator.GenerateSignature(audioPath)
	if err != nil {
		fail("Failed to generate signature: %v", err)
	}
	if err := matcher.MatchSignature(sig); err != nil {
		fail("Failed to match: %v", err)
	}

	select {
	case s := <-results:
		printStatus(s)
	case <-time.After(*timeout):
		fmt.Println("\n⏱️  No result before timeout")
		log.Warnf("Match timed out after %v", *timeout)
	}
}

func handleListen(args []string) {
	listenCmd := flag.NewFlagSet("listen", flag.ExitOnError)
	timeout := listenCmd.Duration("timeout", 0, "Stop after this long (0 waits for Ctrl-C)")
	once := listenCmd.Bool("once", false, "Stop after the first match")
	positional := parseInterleaved(listenCmd, args)
	if len(positional) != 1 {
		fmt.Println("Usage: catalogcoach listen <catalog> [--timeout <duration>] [--once]")
		os.Exit(1)
	}

	matcher := catalogcoach.NewMatcher(matcherOptions(true)...)
	defer matcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	found := make(chan struct{}, 1)
	matcher.OnStateChange(func(s catalogcoach.Status) {
		printStatus(s)
		if s.Kind == catalogcoach.MatchFound {
			select {
			case found <- struct{}{}:
			default:
			}
		}
	})

	if err := matcher.MatchFile(positional[0], true); err != nil {
		fail("Failed to load catalog: %v", err)
	}
	fmt.Println("🎙️  Listening, press Ctrl-C to stop...")

	for {
		select {
		case <-ctx.Done():
			matcher.StopListening()
			return
		case <-found:
			if *once {
				matcher.StopListening()
				return
			}
		}
	}
}

func printStatus(s catalogcoach.Status) {
	switch s.Kind {
	case catalogcoach.MatchFound:
		m := s.Match
		fmt.Printf("\n✅ Match: %s\n", s)
		for _, item := range m.MediaItems {
			if a := item.Artist(); a != "" {
				fmt.Printf("   Artist:     %s\n", a)
			}
			if id, ok := item.Get(models.PropertyYouTubeID); ok {
				fmt.Printf("   YouTube:    %s\n", utils.YouTubeWatchURL(id))
			}
		}
		fmt.Printf("   Score: %d | Confidence: %.1f%% | Offset: %dms\n", m.Score, m.Confidence, m.OffsetMs)
	case catalogcoach.Failed:
		fmt.Println("\n❌ No match found")
	default:
		fmt.Printf("ℹ️  %s\n", s)
	}
}

func handleInfo(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: catalogcoach info <catalog>")
		os.Exit(1)
	}

	cat, err := catalog.Load(args[0])
	if err != nil {
		fail("Failed to read catalog: %v", err)
	}

	if cat.Len() == 0 {
		fmt.Println("\n📭 Catalog has no references")
		return
	}
	fmt.Printf("\n📚 %d reference(s), queries between %v and %v:\n\n",
		cat.Len(), cat.MinimumQuerySignatureDuration(), cat.MaximumQuerySignatureDuration())
	printReferences(cat)
}

func printReferences(cat *catalog.Catalog) {
	for i, ref := range cat.References() {
		titles := make([]string, 0, len(ref.MediaItems))
		for _, item := range ref.MediaItems {
			titles = append(titles, fmt.Sprintf("%q", item.Title()))
		}
		fmt.Printf("%d. %s (ID: %s)\n", i+1, strings.Join(titles, ", "), ref.ID)
		secs := int(ref.Signature.Duration().Seconds())
		fmt.Printf("   Duration: %d:%02d | Hashes: %d\n", secs/60, secs%60, ref.Signature.HashCount())
	}
}

func handleConvert(args []string) {
	convertCmd := flag.NewFlagSet("convert", flag.ExitOnError)
	out := convertCmd.String("o", "", "Output WAV file (required)")
	rate := convertCmd.Float64("rate", catalogcoach.SignatureFormat.SampleRate, "Output sample rate")
	channels := convertCmd.Int("channels", 1, "Output channel count")
	positional := parseInterleaved(convertCmd, args)
	if len(positional) != 1 || *out == "" {
		fmt.Println("Usage: catalogcoach convert <audio_file> -o <wav_file> [--rate <hz>] [--channels <n>]")
		os.Exit(1)
	}

	format := audio.Format{SampleRate: *rate, Channels: *channels}
	w, err := audio.CreateWAV(*out, format)
	if err != nil {
		fail("Failed to create %s: %v", *out, err)
	}

	buffers := 0
	err = audio.ConvertFile(positional[0], format, func(buf *audio.PCMBuffer) error {
		buffers++
		return w.Write(buf)
	})
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fail("Conversion failed: %v", err)
	}

	fmt.Println("\n✅ Converted")
	fmt.Printf("   Output:  %s (%s)\n", *out, format)
	fmt.Printf("   Frames:  %d in %d buffers\n", w.Frames(), buffers)
}

func handleSpectrogram(args []string) {
	specCmd := flag.NewFlagSet("spectrogram", flag.ExitOnError)
	out := specCmd.String("o", "", "Output PNG file (required)")
	peaks := specCmd.Bool("peaks", false, "Render at the fingerprint rate with peaks marked")
	width := specCmd.Int("width", 2048, "Image width")
	height := specCmd.Int("height", 512, "Image height")
	log10 := specCmd.Bool("log", false, "Logarithmic magnitude scale")
	positional := parseInterleaved(specCmd, args)
	if len(positional) != 1 || *out == "" {
		fmt.Println("Usage: catalogcoach spectrogram <audio_file> -o <png_file> [--peaks]")
		os.Exit(1)
	}

	src, err := audio.Open(positional[0])
	if err != nil {
		fail("Failed to open audio: %v", err)
	}
	defer src.Close()

	samples, err := audio.ReadAll(src)
	if err != nil {
		fail("Failed to read audio: %v", err)
	}
	format := audio.SourceFormat(src)
	mono := audio.Downmix(nil, samples, format.Channels)

	opts := render.Options{Width: *width, Height: *height, Log10: *log10}
	if *peaks {
		n, err := render.FingerprintSpectrogram(mono, format.SampleRate, *out, opts)
		if err != nil {
			fail("Failed to render spectrogram: %v", err)
		}
		fmt.Printf("✅ Saved spectrogram with %d peaks to %s\n", n, *out)
		return
	}

	if err := render.Spectrogram(mono, format.SampleRate, *out, opts); err != nil {
		fail("Failed to render spectrogram: %v", err)
	}
	fmt.Printf("✅ Saved spectrogram to %s\n", *out)
}

func handleDevices() {
	e := engine.NewMalgoEngine(malgoConfig())
	defer e.Close()

	sources, err := e.InputSources()
	if err != nil {
		fail("Failed to list capture devices: %v", err)
	}
	if len(sources) == 0 {
		fmt.Println("\n📭 No capture devices found")
		return
	}

	fmt.Printf("\n🎙️  %d capture device(s):\n\n", len(sources))
	for _, s := range sources {
		marker := " "
		if s.IsDefault {
			marker = "*"
		}
		fmt.Printf(" %s %s\n   ID: %s\n", marker, s.Name, s.ID)
	}
}
