// Package audiotest generates deterministic synthetic recordings for tests.
package audiotest

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
)

const (
	minFreq      = 300.0
	maxFreq      = 4000.0
	tonesPerNote = 3
	amplitude    = 0.3
	fadeSeconds  = 0.005
)

// Melody renders a sequence of three-tone chords of random pitch and length
// (80-250 ms). The same seed always produces the same samples.
func Melody(seed int64, sampleRate float64, seconds float64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	total := int(seconds * sampleRate)
	out := make([]float32, total)

	fade := int(fadeSeconds * sampleRate)
	for pos := 0; pos < total; {
		noteLen := int((0.080 + rng.Float64()*0.170) * sampleRate)
		if pos+noteLen > total {
			noteLen = total - pos
		}

		var freqs [tonesPerNote]float64
		for i := range freqs {
			freqs[i] = minFreq + rng.Float64()*(maxFreq-minFreq)
		}

		for i := 0; i < noteLen; i++ {
			env := 1.0
			if i < fade {
				env = float64(i) / float64(fade)
			} else if noteLen-i < fade {
				env = float64(noteLen-i) / float64(fade)
			}
			t := float64(pos+i) / sampleRate
			var v float64
			for _, f := range freqs {
				v += math.Sin(2 * math.Pi * f * t)
			}
			out[pos+i] = float32(amplitude / tonesPerNote * env * v)
		}
		pos += noteLen
	}
	return out
}

// Pad surrounds samples with the given seconds of silence.
func Pad(samples []float32, sampleRate, before, after float64) []float32 {
	lead := make([]float32, int(before*sampleRate))
	tail := make([]float32, int(after*sampleRate))
	out := make([]float32, 0, len(lead)+len(samples)+len(tail))
	out = append(out, lead...)
	out = append(out, samples...)
	return append(out, tail...)
}

// Excerpt cuts seconds of audio starting at the given offset. The start is
// rounded down to a multiple of 1024 samples so excerpts line up with the
// analysis hops of audio sampled at 44.1 kHz.
func Excerpt(samples []float32, sampleRate, offset, seconds float64) []float32 {
	start := int(offset*sampleRate) / 1024 * 1024
	end := start + int(seconds*sampleRate)
	if end > len(samples) {
		end = len(samples)
	}
	out := make([]float32, end-start)
	copy(out, samples[start:end])
	return out
}

// WriteWAV writes mono samples into dir/name and returns the path.
func WriteWAV(tb testing.TB, dir, name string, sampleRate float64, samples []float32) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := audio.WriteWAV(path, audio.Format{SampleRate: sampleRate, Channels: 1}, samples); err != nil {
		tb.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// Buffers splits mono samples into PCM buffers of the given frame count.
func Buffers(samples []float32, sampleRate float64, frames int) []*audio.PCMBuffer {
	format := audio.Format{SampleRate: sampleRate, Channels: 1}
	var out []*audio.PCMBuffer
	for start := 0; start < len(samples); start += frames {
		end := min(start+frames, len(samples))
		out = append(out, audio.NewPCMBufferFrom(format, samples[start:end]))
	}
	return out
}
