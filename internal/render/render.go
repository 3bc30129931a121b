// Package render draws spectrogram images for inspecting fingerprints.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/utils"
)

var ErrNoSamples = errors.New("no samples to render")

type Options struct {
	Width  int
	Height int
	// Log10 draws magnitudes on a log scale.
	Log10 bool
	// Peaks are marked on top of the spectrogram.
	Peaks []fingerprint.Peak
}

func DefaultOptions() Options {
	return Options{Width: 2048, Height: 512}
}

var peakColor = color.RGBA{R: 0xff, G: 0x30, B: 0x30, A: 0xff}

// Spectrogram renders mono samples at sampleRate to a PNG at outPath.
func Spectrogram(samples []float32, sampleRate float64, outPath string, opts Options) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}

	pcm := make([]float64, len(samples))
	for i, v := range samples {
		pcm[i] = float64(v)
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, opts.Width, opts.Height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude
	spectrogram.Drawfft(
		img,
		pcm,
		uint32(sampleRate),
		uint32(opts.Height),
		false,
		false,
		true,
		opts.Log10,
	)

	duration := float64(len(samples)) / sampleRate
	markPeaks(img, opts.Peaks, duration, sampleRate/2, opts.Width, opts.Height)

	if err := utils.MakeDir(filepath.Dir(outPath)); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := spectrogram.SavePng(img, outPath); err != nil {
		return fmt.Errorf("saving %s: %w", outPath, err)
	}
	return nil
}

// markPeaks draws a small cross per peak. Frequency grows upwards.
func markPeaks(img draw.Image, peaks []fingerprint.Peak, duration, nyquist float64, width, height int) {
	if duration <= 0 || nyquist <= 0 {
		return
	}
	for _, p := range peaks {
		x := int(p.Time / duration * float64(width))
		y := height - 1 - int(p.Freq/nyquist*float64(height))
		for d := -2; d <= 2; d++ {
			setIn(img, x+d, y, width, height)
			setIn(img, x, y+d, width, height)
		}
	}
}

func setIn(img draw.Image, x, y, width, height int) {
	if x < 0 || y < 0 || x >= width || y >= height {
		return
	}
	img.Set(x, y, peakColor)
}

// FingerprintSpectrogram renders samples resampled to the fingerprint rate
// with the peaks the fingerprinter picks marked.
func FingerprintSpectrogram(samples []float32, sampleRate float64, outPath string, opts Options) (int, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}

	mono := samples
	if sampleRate != fingerprint.SampleRate {
		mono = audio.Resample(samples, sampleRate, fingerprint.SampleRate)
	}

	pcm := make([]float64, len(mono))
	for i, v := range mono {
		pcm[i] = float64(v)
	}
	spec, err := fingerprint.ComputeSpectrogram(pcm, fingerprint.SampleRate, fingerprint.WindowSize, fingerprint.HopSize)
	if err != nil {
		return 0, err
	}
	opts.Peaks = fingerprint.ExtractPeaks(spec, fingerprint.SampleRate)

	if err := Spectrogram(mono, fingerprint.SampleRate, outPath, opts); err != nil {
		return 0, err
	}
	return len(opts.Peaks), nil
}
