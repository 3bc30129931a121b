package render

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/CatalogCoach/internal/audiotest"
)

func TestSpectrogramWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "melody.png")
	samples := audiotest.Melody(1, 22050, 2)

	if err := Spectrogram(samples, 22050, out, Options{Width: 320, Height: 128}); err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 128 {
		t.Errorf("image is %dx%d, want 320x128", b.Dx(), b.Dy())
	}
}

func TestFingerprintSpectrogramMarksPeaks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "peaks.png")

	n, err := FingerprintSpectrogram(audiotest.Melody(2, 44100, 3), 44100, out, DefaultOptions())
	if err != nil {
		t.Fatalf("FingerprintSpectrogram failed: %v", err)
	}
	if n == 0 {
		t.Error("expected peaks to be marked")
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestSpectrogramEmpty(t *testing.T) {
	if err := Spectrogram(nil, 44100, filepath.Join(t.TempDir(), "x.png"), DefaultOptions()); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
}
