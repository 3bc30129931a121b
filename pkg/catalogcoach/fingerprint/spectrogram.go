package fingerprint

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	WindowSize = 1024
	HopSize    = 256

	// SampleRate is the rate every signature is computed at.
	SampleRate = 11025
)

var (
	ErrShortAudio    = errors.New("audio shorter than window size")
	ErrWindowSize    = errors.New("window length must equal window size")
	ErrEmptySamples  = errors.New("samples cannot be empty")
	ErrInvalidParams = errors.New("sample rate and hop size must be positive")
)

// Hamming returns an n-point Hamming window.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// MagnitudeSpectrum keeps the non-negative half of a real FFT.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := range mag {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT computes magnitude frames of windowed, hopped input.
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, ErrWindowSize
	}
	if hopSize <= 0 {
		return nil, ErrInvalidParams
	}
	if len(samples) < windowSize {
		return nil, ErrShortAudio
	}

	nFrames := 1 + (len(samples)-windowSize)/hopSize
	spectrogram := make([][]float64, 0, nFrames)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * window[i]
		}
		spectrogram = append(spectrogram, MagnitudeSpectrum(fft.FFTReal(frame)))
	}
	return spectrogram, nil
}

// ComputeSpectrogram runs a Hamming STFT. Zero sizes select WindowSize and
// HopSize.
func ComputeSpectrogram(samples []float64, sampleRate, windowSize, hopSize int) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySamples
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidParams
	}
	if windowSize == 0 {
		windowSize = WindowSize
	}
	if hopSize == 0 {
		hopSize = HopSize
	}
	return STFT(samples, windowSize, hopSize, Hamming(windowSize))
}
