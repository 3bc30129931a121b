package audio

import (
	"fmt"
	"io"
	"math"

	pbx "github.com/ik5/audpbx/audio"
)

// converterWindowBytes is the size of one read from the source, in bytes of
// float32 interleaved audio.
const converterWindowBytes = 1024 * 64

// BufferHandler receives each converted buffer. Buffers are not reused, so a
// handler may keep them. Returning an error stops the conversion.
type BufferHandler func(buf *PCMBuffer) error

// Converter reads a Source in fixed frame windows and re-emits it as
// fixed-capacity buffers in the output format. Channel mixing and rate
// conversion run as pull stages over the windowed source.
type Converter struct {
	in         Format
	out        Format
	frameCount int
	capacity   int
	pipeline   Source
}

func NewConverter(src Source, out Format) (*Converter, error) {
	if !out.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, out)
	}
	in := SourceFormat(src)
	if !in.Valid() {
		return nil, fmt.Errorf("%w: source reports %s", ErrInvalidAudio, in)
	}

	frameCount := converterWindowBytes / in.BytesPerFrame()
	capacity := frameCount
	if in.SampleRate != out.SampleRate {
		capacity = int(math.Round(float64(frameCount) * out.SampleRate / in.SampleRate))
	}
	if capacity < 1 {
		capacity = 1
	}

	var pipeline Source = newWindowReader(src, frameCount)
	if out.Channels == 1 && in.Channels > 1 {
		pipeline = pbx.NewMonoMixer(pipeline)
	}
	if in.SampleRate != out.SampleRate {
		pipeline = pbx.NewResampler(pipeline, int(out.SampleRate))
	}

	return &Converter{
		in:         in,
		out:        out,
		frameCount: frameCount,
		capacity:   capacity,
		pipeline:   pipeline,
	}, nil
}

// InputFrameCount is the number of source frames read per window.
func (c *Converter) InputFrameCount() int { return c.frameCount }

// OutputCapacity is the frame capacity of every delivered buffer.
func (c *Converter) OutputCapacity() int { return c.capacity }

func (c *Converter) OutputFormat() Format { return c.out }

// Convert drives the source to completion. At end of input the pending
// partial buffer is delivered and nil is returned. A read failure mid-stream
// stops processing without flushing the partial buffer and returns an error
// wrapping ErrConversionFailed, so callers can tell a truncated stream from a
// complete one.
func (c *Converter) Convert(handler BufferHandler) error {
	ch := c.pipeline.Channels()
	chunk := make([]float32, c.capacity*ch)
	pending := NewPCMBuffer(c.out, c.capacity)

	deliver := func(samples []float32) error {
		for len(samples) > 0 {
			used := pending.AppendFrames(samples)
			samples = samples[used:]
			if pending.Full() {
				if err := handler(pending); err != nil {
					return err
				}
				pending = NewPCMBuffer(c.out, c.capacity)
			}
			if used == 0 && len(samples) > 0 {
				// less than one whole frame left over
				return nil
			}
		}
		return nil
	}

	for {
		n, err := c.pipeline.ReadSamples(chunk)
		n -= n % ch
		if n > 0 {
			samples := chunk[:n]
			if ch != c.out.Channels {
				samples = Remix(nil, samples, ch, c.out.Channels)
			}
			if herr := deliver(samples); herr != nil {
				return herr
			}
		}

		if err == io.EOF || (err == nil && n == 0) {
			if pending.FrameLength > 0 {
				return handler(pending)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConversionFailed, err)
		}
	}
}

// windowReader pulls its source one fixed window at a time and serves the
// smaller reads of the stages above it from that window. Errors are held
// back until the samples read before them are consumed.
type windowReader struct {
	src    Source
	window []float32
	unread []float32
	err    error
}

func newWindowReader(src Source, frames int) *windowReader {
	return &windowReader{src: src, window: make([]float32, frames*src.Channels())}
}

func (w *windowReader) SampleRate() int { return w.src.SampleRate() }
func (w *windowReader) Channels() int   { return w.src.Channels() }
func (w *windowReader) BufSize() int    { return len(w.window) }

// Close leaves the source open; it belongs to the caller.
func (w *windowReader) Close() error { return nil }

func (w *windowReader) ReadSamples(dst []float32) (int, error) {
	if len(w.unread) == 0 {
		if w.err != nil {
			return 0, w.err
		}
		n, err := w.src.ReadSamples(w.window)
		n -= n % w.src.Channels()
		w.unread = w.window[:n]
		switch {
		case err != nil:
			w.err = err
		case n == 0:
			w.err = io.EOF
		}
		if n == 0 {
			return 0, w.err
		}
	}
	n := copy(dst, w.unread)
	w.unread = w.unread[n:]
	return n, nil
}

// ConvertFile opens path and converts it to the given format.
func ConvertFile(path string, out Format, handler BufferHandler) error {
	src, err := Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	conv, err := NewConverter(src, out)
	if err != nil {
		return err
	}
	return conv.Convert(handler)
}
