package fingerprint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"
)

var ErrInvalidSignature = errors.New("invalid signature data")

const (
	signatureMagic   = "CCSG"
	signatureVersion = uint16(1)
	headerSize       = 4 + 2 + 4 + 8 + 4 // magic, version, rate, duration, count
)

// Signature is an immutable set of landmark hashes describing a stretch of
// audio.
type Signature struct {
	duration   time.Duration
	sampleRate uint32
	hashes     []Hash
}

func newSignature(duration time.Duration, hashes []Hash) *Signature {
	return &Signature{duration: duration, sampleRate: SampleRate, hashes: hashes}
}

// Duration of audio the signature covers, after silence trimming.
func (s *Signature) Duration() time.Duration { return s.duration }

// Hashes returns a copy of the landmarks.
func (s *Signature) Hashes() []Hash {
	out := make([]Hash, len(s.hashes))
	copy(out, s.hashes)
	return out
}

func (s *Signature) HashCount() int { return len(s.hashes) }

func (s *Signature) DistinctHashCount() int { return DistinctHashCount(s.hashes) }

// DataRepresentation serialises the signature:
//
//	"CCSG" | version u16 | sample rate u32 | duration ns i64 | count u32 |
//	count * (hash u32, anchor ms u32) | crc32 (IEEE) of everything before
//
// All integers are little-endian.
func (s *Signature) DataRepresentation() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(s.hashes)*8+4))
	buf.WriteString(signatureMagic)
	binary.Write(buf, binary.LittleEndian, signatureVersion)
	binary.Write(buf, binary.LittleEndian, s.sampleRate)
	binary.Write(buf, binary.LittleEndian, int64(s.duration))
	binary.Write(buf, binary.LittleEndian, uint32(len(s.hashes)))

	var pair [8]byte
	for _, h := range s.hashes {
		binary.LittleEndian.PutUint32(pair[0:4], h.Hash)
		binary.LittleEndian.PutUint32(pair[4:8], h.AnchorTimeMs)
		buf.Write(pair[:])
	}
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes()
}

// ParseSignature reverses DataRepresentation.
func ParseSignature(data []byte) (*Signature, error) {
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrInvalidSignature, len(data))
	}
	if string(data[:4]) != signatureMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidSignature)
	}

	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSignature)
	}

	version := binary.LittleEndian.Uint16(data[4:6])
	if version != signatureVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSignature, version)
	}
	rate := binary.LittleEndian.Uint32(data[6:10])
	duration := time.Duration(int64(binary.LittleEndian.Uint64(data[10:18])))
	count := int(binary.LittleEndian.Uint32(data[18:22]))

	if len(body) != headerSize+count*8 {
		return nil, fmt.Errorf("%w: expected %d hashes", ErrInvalidSignature, count)
	}

	hashes := make([]Hash, count)
	for i := range hashes {
		off := headerSize + i*8
		hashes[i] = Hash{
			Hash:         binary.LittleEndian.Uint32(body[off : off+4]),
			AnchorTimeMs: binary.LittleEndian.Uint32(body[off+4 : off+8]),
		}
	}
	return &Signature{duration: duration, sampleRate: rate, hashes: hashes}, nil
}
