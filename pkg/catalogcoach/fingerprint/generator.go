package fingerprint

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported buffer format")
	ErrFormatMismatch    = errors.New("buffer format differs from earlier buffers")
	ErrInsufficientAudio = errors.New("not enough audible audio for a signature")
)

// SupportedSampleRates are the input rates a Generator accepts.
var SupportedSampleRates = []float64{16000, 32000, 44100, 48000}

// silenceThreshold is the RMS level (about -50 dBFS) below which a hop
// counts as silent.
const silenceThreshold = 0.00316

func IsSupportedSampleRate(rate float64) bool {
	for _, r := range SupportedSampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// Generator accumulates mono PCM and produces signatures on demand. Buffers
// should be contiguous in time; a new Generator (or Reset) is needed for
// every independent recording. It is safe to Append from an audio callback
// while another goroutine reads Duration.
type Generator struct {
	mu sync.Mutex

	rate      float64
	frames    int64
	resampler *audio.StreamResampler
	samples   []float32 // at SampleRate

	nextSampleTime  int64
	haveTime        bool
	discontinuities int
}

func NewGenerator() *Generator {
	return &Generator{}
}

// Append adds a buffer. at may be nil; when present and not continuing the
// previous buffer the gap is counted but the buffer is still accepted.
func (g *Generator) Append(buf *audio.PCMBuffer, at *audio.Time) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", ErrUnsupportedFormat)
	}
	if buf.Format.Channels != 1 {
		return fmt.Errorf("%w: %d channels, want mono", ErrUnsupportedFormat, buf.Format.Channels)
	}
	if !IsSupportedSampleRate(buf.Format.SampleRate) {
		return fmt.Errorf("%w: %g Hz", ErrUnsupportedFormat, buf.Format.SampleRate)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rate == 0 {
		g.rate = buf.Format.SampleRate
		g.resampler = audio.NewStreamResampler(g.rate, SampleRate)
	} else if g.rate != buf.Format.SampleRate {
		return fmt.Errorf("%w: %g Hz after %g Hz", ErrFormatMismatch, buf.Format.SampleRate, g.rate)
	}

	if at != nil {
		if g.haveTime && at.SampleTime != g.nextSampleTime {
			g.discontinuities++
		}
		g.nextSampleTime = at.SampleTime + int64(buf.FrameLength)
		g.haveTime = true
	}

	g.samples = g.resampler.Process(g.samples, buf.Data[:buf.FrameLength])
	g.frames += int64(buf.FrameLength)
	return nil
}

// Duration of audio appended so far.
func (g *Generator) Duration() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.duration()
}

func (g *Generator) duration() time.Duration {
	if g.rate == 0 {
		return 0
	}
	return time.Duration(float64(g.frames) / g.rate * float64(time.Second))
}

// Discontinuities counts timestamp gaps seen since the last reset.
func (g *Generator) Discontinuities() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.discontinuities
}

func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rate = 0
	g.frames = 0
	g.resampler = nil
	g.samples = nil
	g.haveTime = false
	g.nextSampleTime = 0
	g.discontinuities = 0
}

// Signature finalises what has been appended so far. Appending may continue
// afterwards. Leading and trailing silence is trimmed on hop boundaries, so
// the signature never covers more time than was appended.
func (g *Generator) Signature() (*Signature, error) {
	g.mu.Lock()
	if g.rate == 0 {
		g.mu.Unlock()
		return nil, ErrInsufficientAudio
	}
	samples := make([]float32, len(g.samples), len(g.samples)+HopSize)
	copy(samples, g.samples)
	samples = g.resampler.Tail(samples)
	appended := g.duration()
	g.mu.Unlock()

	trimmed := trimSilence(samples)
	if len(trimmed) < WindowSize {
		return nil, fmt.Errorf("%w: %d audible samples", ErrInsufficientAudio, len(trimmed))
	}

	return FromSamples(trimmed, appended)
}

// FromSamples fingerprints mono audio already at SampleRate. The duration is
// capped at limit when limit is positive.
func FromSamples(samples []float32, limit time.Duration) (*Signature, error) {
	pcm := make([]float64, len(samples))
	for i, v := range samples {
		pcm[i] = float64(v)
	}

	spectra, err := ComputeSpectrogram(pcm, SampleRate, WindowSize, HopSize)
	if err != nil {
		if errors.Is(err, ErrShortAudio) || errors.Is(err, ErrEmptySamples) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientAudio, err)
		}
		return nil, err
	}

	hashes := GenerateHashes(ExtractPeaks(spectra, SampleRate))

	duration := time.Duration(float64(len(samples)) / SampleRate * float64(time.Second))
	if limit > 0 && duration > limit {
		duration = limit
	}
	return newSignature(duration, hashes), nil
}

// trimSilence drops silent hops from both ends.
func trimSilence(samples []float32) []float32 {
	hops := (len(samples) + HopSize - 1) / HopSize
	first, last := -1, -1
	for h := 0; h < hops; h++ {
		if hopRMS(samples, h) >= silenceThreshold {
			if first < 0 {
				first = h
			}
			last = h
		}
	}
	if first < 0 {
		return nil
	}
	end := min((last+1)*HopSize, len(samples))
	return samples[first*HopSize : end]
}

func hopRMS(samples []float32, hop int) float64 {
	start := hop * HopSize
	end := min(start+HopSize, len(samples))
	var sum float64
	for _, v := range samples[start:end] {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(end-start))
}
