package audio

import (
	"math"

	pbxutils "github.com/ik5/audpbx/utils"
)

const antiAliasTaps = 63

// StreamResampler converts a mono stream between sample rates one chunk at a
// time using cubic (Catmull-Rom) interpolation. When downsampling, input is
// low-pass filtered first so content above the new Nyquist does not fold
// back. Output only depends on the samples seen so far, so chunk boundaries
// do not change the result.
type StreamResampler struct {
	ratio float64 // input samples per output sample

	fir  []float32
	hist []float32

	buf   []float32 // pending (filtered) input
	base  int64     // absolute index of buf[0]
	total int64     // input samples received
	next  int64     // index of the next output sample
}

func NewStreamResampler(inRate, outRate float64) *StreamResampler {
	r := &StreamResampler{ratio: inRate / outRate}
	if r.ratio > 1 {
		r.fir = lowPass(antiAliasTaps, 0.45/r.ratio)
		r.hist = make([]float32, antiAliasTaps-1)
	}
	return r
}

// Ratio is input rate over output rate.
func (r *StreamResampler) Ratio() float64 { return r.ratio }

// Passthrough reports whether the rates are equal.
func (r *StreamResampler) Passthrough() bool { return r.ratio == 1 }

// Process consumes in and appends every output sample that can be computed.
func (r *StreamResampler) Process(dst, in []float32) []float32 {
	if r.Passthrough() {
		return append(dst, in...)
	}
	if len(in) == 0 {
		return dst
	}

	if r.fir != nil {
		in = r.filter(in)
	}
	r.buf = append(r.buf, in...)
	r.total += int64(len(in))

	for {
		t := float64(r.next) * r.ratio
		if int64(t)+2 >= r.total {
			break
		}
		dst = append(dst, r.interpolate(t))
		r.next++
	}
	r.compact()
	return dst
}

// Flush emits the tail of the stream, holding the last sample for the
// missing look-ahead.
func (r *StreamResampler) Flush(dst []float32) []float32 {
	n := len(dst)
	dst = r.Tail(dst)
	r.next += int64(len(dst) - n)
	r.compact()
	return dst
}

// Tail appends what Flush would emit without consuming it, so a stream can
// be finalised and still continue.
func (r *StreamResampler) Tail(dst []float32) []float32 {
	if r.Passthrough() {
		return dst
	}
	for next := r.next; ; next++ {
		t := float64(next) * r.ratio
		if int64(t) >= r.total {
			break
		}
		dst = append(dst, r.interpolate(t))
	}
	return dst
}

// Reset forgets all history.
func (r *StreamResampler) Reset() {
	r.buf = r.buf[:0]
	r.base, r.total, r.next = 0, 0, 0
	for i := range r.hist {
		r.hist[i] = 0
	}
}

func (r *StreamResampler) at(idx int64) float32 {
	if idx < 0 {
		idx = 0
	}
	if idx >= r.total {
		idx = r.total - 1
	}
	return r.buf[idx-r.base]
}

func (r *StreamResampler) interpolate(t float64) float32 {
	i := int64(t)
	x := float32(t - float64(i))
	return pbxutils.CubicInterpolate(r.at(i-1), r.at(i), r.at(i+1), r.at(i+2), x)
}

// compact drops input that no future output can reference.
func (r *StreamResampler) compact() {
	keep := int64(float64(r.next)*r.ratio) - 1
	if keep > r.total-1 {
		keep = r.total - 1
	}
	drop := keep - r.base
	if drop <= 0 {
		return
	}
	n := copy(r.buf, r.buf[drop:])
	r.buf = r.buf[:n]
	r.base = keep
}

func (r *StreamResampler) filter(in []float32) []float32 {
	taps := len(r.fir)
	ext := make([]float32, 0, len(r.hist)+len(in))
	ext = append(ext, r.hist...)
	ext = append(ext, in...)

	out := make([]float32, len(in))
	for n := range in {
		var acc float32
		for k := 0; k < taps; k++ {
			acc += r.fir[k] * ext[n+taps-1-k]
		}
		out[n] = acc
	}
	copy(r.hist, ext[len(ext)-len(r.hist):])
	return out
}

// lowPass designs a Hamming-windowed sinc filter with the cutoff given as a
// fraction of the input rate. Taps are normalised to unity DC gain.
func lowPass(taps int, cutoff float64) []float32 {
	h := make([]float64, taps)
	mid := float64(taps-1) / 2
	var sum float64
	for i := range h {
		x := float64(i) - mid
		v := 2 * cutoff
		if x != 0 {
			v = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		v *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(taps-1))
		h[i] = v
		sum += v
	}
	out := make([]float32, taps)
	for i, v := range h {
		out[i] = float32(v / sum)
	}
	return out
}

// Resample converts a whole mono slice in one go.
func Resample(samples []float32, inRate, outRate float64) []float32 {
	r := NewStreamResampler(inRate, outRate)
	out := make([]float32, 0, int(math.Ceil(float64(len(samples))*outRate/inRate)))
	out = r.Process(out, samples)
	return r.Flush(out)
}
