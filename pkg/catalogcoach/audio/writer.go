package audio

import (
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	pbxutils "github.com/ik5/audpbx/utils"

	"github.com/himanishpuri/CatalogCoach/pkg/utils"
)

// WAVWriter streams float32 buffers into a 16-bit PCM WAV file.
type WAVWriter struct {
	f      *os.File
	enc    *wav.Encoder
	format Format
	frames int64
}

func CreateWAV(path string, format Format) (*WAVWriter, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	if err := utils.MakeDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &WAVWriter{
		f:      f,
		enc:    wav.NewEncoder(f, int(format.SampleRate), 16, format.Channels, 1),
		format: format,
	}, nil
}

// Write appends a buffer. Its format must match the writer's.
func (w *WAVWriter) Write(buf *PCMBuffer) error {
	if buf.Format != w.format {
		return fmt.Errorf("%w: writer is %s, buffer is %s", ErrInvalidFormat, w.format, buf.Format)
	}
	return w.WriteSamples(buf.Data)
}

func (w *WAVWriter) WriteSamples(samples []float32) error {
	ints := make([]int, len(samples))
	for i, v := range samples {
		ints[i] = int(pbxutils.Float32ToInt16(v))
	}

	ib := &goaudio.IntBuffer{
		Data:           ints,
		Format:         &goaudio.Format{SampleRate: int(w.format.SampleRate), NumChannels: w.format.Channels},
		SourceBitDepth: 16,
	}
	if err := w.enc.Write(ib); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	w.frames += int64(len(samples) / w.format.Channels)
	return nil
}

// Frames written so far.
func (w *WAVWriter) Frames() int64 { return w.frames }

// Close finalises the header and closes the file.
func (w *WAVWriter) Close() error {
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// WriteWAV writes samples to path in one go.
func WriteWAV(path string, format Format, samples []float32) error {
	w, err := CreateWAV(path, format)
	if err != nil {
		return err
	}
	if err := w.WriteSamples(samples); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
