package audio

import (
	"fmt"
	"time"
)

// Format describes interleaved float32 PCM. Every buffer in this module uses
// 32-bit float samples, so only the rate and channel count vary.
type Format struct {
	SampleRate float64
	Channels   int
}

// NewMonoFormat returns a single-channel format at the given rate.
func NewMonoFormat(sampleRate float64) *Format {
	return &Format{SampleRate: sampleRate, Channels: 1}
}

// BytesPerFrame is the size of one interleaved float32 frame.
func (f Format) BytesPerFrame() int {
	return 4 * f.Channels
}

func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

func (f Format) String() string {
	return fmt.Sprintf("%g Hz, %d ch, float32", f.SampleRate, f.Channels)
}

// Time is the capture timestamp of a buffer.
type Time struct {
	SampleTime int64     // frames since the stream started
	SampleRate float64   // rate SampleTime counts in
	HostTime   time.Time // wall clock at capture, zero when unknown
}

func NewTime(sampleTime int64, sampleRate float64) *Time {
	return &Time{SampleTime: sampleTime, SampleRate: sampleRate, HostTime: time.Now()}
}

// Seconds converts the sample time into seconds.
func (t Time) Seconds() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return float64(t.SampleTime) / t.SampleRate
}

// PCMBuffer is a fixed-capacity chunk of interleaved float32 frames.
type PCMBuffer struct {
	Format        Format
	Data          []float32 // len(Data) == FrameLength * Format.Channels
	FrameLength   int
	frameCapacity int
}

// NewPCMBuffer allocates room for capacity frames.
func NewPCMBuffer(format Format, capacity int) *PCMBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &PCMBuffer{
		Format:        format,
		Data:          make([]float32, 0, capacity*format.Channels),
		frameCapacity: capacity,
	}
}

// NewPCMBufferFrom wraps already-interleaved samples.
func NewPCMBufferFrom(format Format, samples []float32) *PCMBuffer {
	frames := 0
	if format.Channels > 0 {
		frames = len(samples) / format.Channels
	}
	return &PCMBuffer{
		Format:        format,
		Data:          samples[:frames*format.Channels],
		FrameLength:   frames,
		frameCapacity: frames,
	}
}

func (b *PCMBuffer) FrameCapacity() int { return b.frameCapacity }

// Remaining is the number of frames that still fit.
func (b *PCMBuffer) Remaining() int { return b.frameCapacity - b.FrameLength }

func (b *PCMBuffer) Full() bool { return b.FrameLength >= b.frameCapacity }

// AppendFrames copies as many whole frames from samples as fit and returns
// how many samples were consumed.
func (b *PCMBuffer) AppendFrames(samples []float32) int {
	ch := b.Format.Channels
	if ch <= 0 {
		return 0
	}
	frames := len(samples) / ch
	if room := b.Remaining(); frames > room {
		frames = room
	}
	b.Data = append(b.Data, samples[:frames*ch]...)
	b.FrameLength += frames
	return frames * ch
}

// Duration of the frames currently held.
func (b *PCMBuffer) Duration() time.Duration {
	if b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.FrameLength) / b.Format.SampleRate * float64(time.Second))
}

// Clone returns a deep copy, used when a buffer outlives its callback.
func (b *PCMBuffer) Clone() *PCMBuffer {
	data := make([]float32, len(b.Data), cap(b.Data))
	copy(data, b.Data)
	return &PCMBuffer{
		Format:        b.Format,
		Data:          data,
		FrameLength:   b.FrameLength,
		frameCapacity: b.frameCapacity,
	}
}
