package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pbx "github.com/ik5/audpbx/audio"
	"github.com/ik5/audpbx/formats/aiff"
	"github.com/ik5/audpbx/formats/mp3"
)

// Source is a pull-based stream of interleaved float32 samples in [-1, 1].
// ReadSamples returns io.EOF once the stream is exhausted.
type Source = pbx.Source

// SourceFormat reports the stream format of src.
func SourceFormat(src Source) Format {
	return Format{SampleRate: float64(src.SampleRate()), Channels: src.Channels()}
}

// supportedFormats maps file extensions, without the dot, to their decoder.
var supportedFormats = map[string]pbx.Decoder{
	"wav":  wavDecoder{},
	"wave": wavDecoder{},
	"mp3":  mp3.Decoder{},
	"ogg":  vorbisDecoder{},
	"oga":  vorbisDecoder{},
	"aif":  aiff.Decoder{},
	"aiff": aiff.Decoder{},
}

var registry = newRegistry()

func newRegistry() *pbx.Registry {
	reg := pbx.NewRegistry()
	for ext, dec := range supportedFormats {
		reg.Register(ext, dec)
	}
	return reg
}

// SupportedExtensions lists the file extensions Open understands.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedFormats))
	for ext := range supportedFormats {
		exts = append(exts, "."+ext)
	}
	sort.Strings(exts)
	return exts
}

func extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// IsSupported reports whether path has a decodable extension.
func IsSupported(path string) bool {
	_, ok := registry.Get(extension(path))
	return ok
}

// Open decodes the audio file at path, choosing the decoder by extension.
// Closing the returned Source closes the file.
func Open(path string) (Source, error) {
	ext := extension(path)
	dec, ok := registry.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	src, err := dec.Decode(f)
	if err != nil {
		f.Close()
		if !errors.Is(err, ErrInvalidAudio) && !errors.Is(err, ErrUnsupportedFormat) {
			err = fmt.Errorf("%w: %w", ErrInvalidAudio, err)
		}
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	if format := SourceFormat(src); !format.Valid() {
		src.Close()
		f.Close()
		return nil, fmt.Errorf("%w: %s reports %s", ErrInvalidAudio, filepath.Base(path), format)
	}
	return &fileSource{Source: src, f: f}, nil
}

type fileSource struct {
	Source
	f *os.File
}

func (s *fileSource) Close() error {
	err := s.Source.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadAll drains src into memory.
func ReadAll(src Source) ([]float32, error) {
	var out []float32
	buf := make([]float32, 4096*src.Channels())
	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// SliceSource serves samples held in memory. It is handy for tests and for
// feeding already-decoded audio through a Converter.
type SliceSource struct {
	format  Format
	samples []float32
	pos     int
}

func NewSliceSource(format Format, samples []float32) *SliceSource {
	return &SliceSource{format: format, samples: samples}
}

func (s *SliceSource) SampleRate() int { return int(s.format.SampleRate) }
func (s *SliceSource) Channels() int   { return s.format.Channels }
func (s *SliceSource) BufSize() int    { return 4096 * s.format.Channels }
func (s *SliceSource) Close() error    { return nil }

func (s *SliceSource) ReadSamples(dst []float32) (int, error) {
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(dst, s.samples[s.pos:])
	s.pos += n
	return n, nil
}
