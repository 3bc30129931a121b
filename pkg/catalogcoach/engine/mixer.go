package engine

import (
	"fmt"
	"sync"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
)

// TapBlock receives each buffer a tap collects.
type TapBlock func(buf *audio.PCMBuffer, at *audio.Time)

// MixerNode remixes and resamples whatever is routed into it to its output
// format. An installed tap sees the result in fixed-size buffers.
type MixerNode struct {
	mu sync.Mutex

	output *audio.Format

	tap     TapBlock
	tapSize int

	inRate     float64
	resampler  *audio.StreamResampler
	pending    *audio.PCMBuffer
	sampleTime int64 // output frames emitted since reset
}

func NewMixerNode() *MixerNode {
	return &MixerNode{}
}

func (m *MixerNode) Name() string { return "mixer" }

func (m *MixerNode) setOutputFormat(format *audio.Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := *format
	m.output = &f
	m.resampler = nil
	m.pending = nil
}

// OutputFormat returns the configured output format, if any.
func (m *MixerNode) OutputFormat() (audio.Format, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.output == nil {
		return audio.Format{}, false
	}
	return *m.output, true
}

// InstallTap registers block to receive bufferSize-frame buffers from bus 0.
// A non-nil format overrides the node's output format. Installing a second
// tap replaces the first.
func (m *MixerNode) InstallTap(bus, bufferSize int, format *audio.Format, block TapBlock) error {
	if bus != 0 {
		return fmt.Errorf("%w: mixer has a single output bus, got %d", ErrInvalidBus, bus)
	}
	if bufferSize <= 0 {
		return fmt.Errorf("tap buffer size must be positive, got %d", bufferSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if format != nil {
		f := *format
		m.output = &f
	}
	m.tap = block
	m.tapSize = bufferSize
	m.resampler = nil
	m.pending = nil
	return nil
}

func (m *MixerNode) RemoveTap(bus int) {
	if bus != 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tap = nil
	m.pending = nil
}

func (m *MixerNode) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resampler != nil {
		m.resampler.Reset()
	}
	m.pending = nil
	m.sampleTime = 0
}

type tapDelivery struct {
	buf *audio.PCMBuffer
	at  *audio.Time
}

func (m *MixerNode) render(buf *audio.PCMBuffer, at *audio.Time) {
	ready, block := m.collect(buf, at)
	for _, d := range ready {
		block(d.buf, d.at)
	}
}

// collect converts buf and returns the tap buffers it completed. The tap is
// invoked by the caller outside the lock.
func (m *MixerNode) collect(buf *audio.PCMBuffer, at *audio.Time) ([]tapDelivery, TapBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tap == nil || buf == nil || buf.FrameLength == 0 {
		return nil, nil
	}

	out := audio.Format{SampleRate: buf.Format.SampleRate, Channels: 1}
	if m.output != nil {
		out = *m.output
		if out.SampleRate == 0 {
			out.SampleRate = buf.Format.SampleRate
		}
		if out.Channels == 0 {
			out.Channels = 1
		}
	}

	if m.resampler == nil || m.inRate != buf.Format.SampleRate {
		m.inRate = buf.Format.SampleRate
		m.resampler = audio.NewStreamResampler(buf.Format.SampleRate, out.SampleRate)
	}

	mono := audio.Downmix(nil, buf.Data, buf.Format.Channels)
	samples := audio.Upmix(nil, m.resampler.Process(nil, mono), out.Channels)

	var ready []tapDelivery
	for len(samples) > 0 {
		if m.pending == nil {
			m.pending = audio.NewPCMBuffer(out, m.tapSize)
		}
		used := m.pending.AppendFrames(samples)
		samples = samples[used:]
		if !m.pending.Full() {
			break
		}

		stamp := &audio.Time{SampleTime: m.sampleTime, SampleRate: out.SampleRate}
		if at != nil {
			stamp.HostTime = at.HostTime
		}
		ready = append(ready, tapDelivery{buf: m.pending, at: stamp})
		m.sampleTime += int64(m.pending.FrameLength)
		m.pending = nil
	}
	return ready, m.tap
}
