package audio

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/jfreymuth/oggvorbis"
)

// intDivisor is the full-scale value for signed PCM of the given depth.
func intDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedFormat, bitDepth)
	}
}

// readSeeker returns r as an io.ReadSeeker, buffering it in memory when it
// cannot seek. go-audio decoders need to seek between chunks.
func readSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	return bytes.NewReader(data), nil
}

// wavDecoder goes through go-audio/wav so non-canonical headers and 8, 24
// and 32-bit PCM decode too.
type wavDecoder struct{}

func (wavDecoder) Decode(r io.Reader) (Source, error) {
	rs, err := readSeeker(r)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrInvalidAudio)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: WAV encoding %d, only PCM is supported", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	divisor, err := intDivisor(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	return &wavSource{
		dec:      dec,
		rate:     int(dec.SampleRate),
		channels: int(dec.NumChans),
		divisor:  divisor,
		unsigned: dec.BitDepth == 8,
	}, nil
}

type wavSource struct {
	dec      *wav.Decoder
	rate     int
	channels int
	divisor  float32
	unsigned bool
	intBuf   *goaudio.IntBuffer
}

func (s *wavSource) SampleRate() int { return s.rate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) BufSize() int {
	if s.intBuf != nil {
		return cap(s.intBuf.Data)
	}
	return 4096
}

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: &goaudio.Format{SampleRate: s.rate, NumChannels: s.channels},
		}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i, v := range s.intBuf.Data[:n] {
		if s.unsigned {
			v -= 128
		}
		dst[i] = float32(v) / s.divisor
	}
	return n, nil
}

// vorbisDecoder wraps oggvorbis, whose Read counts interleaved values rather
// than frames.
type vorbisDecoder struct{}

func (vorbisDecoder) Decode(r io.Reader) (Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	return &vorbisSource{dec: dec}, nil
}

type vorbisSource struct {
	dec *oggvorbis.Reader
}

func (s *vorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.dec.Channels() }
func (s *vorbisSource) BufSize() int    { return 4096 * s.dec.Channels() }
func (s *vorbisSource) Close() error    { return nil }

func (s *vorbisSource) ReadSamples(dst []float32) (int, error) {
	ch := s.dec.Channels()
	dst = dst[:len(dst)/ch*ch]
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst)
	if n == 0 {
		if err == nil || err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	return n, nil
}
