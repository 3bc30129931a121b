package audio

// Downmix averages interleaved frames of the given channel count into mono,
// appending to dst.
func Downmix(dst, interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst, interleaved...)
	}

	frames := len(interleaved) / channels
	inv := float32(1.0) / float32(channels)

	switch channels {
	case 2:
		for f := 0; f < frames; f++ {
			idx := f << 1
			dst = append(dst, (interleaved[idx]+interleaved[idx+1])*0.5)
		}
	default:
		for f := 0; f < frames; f++ {
			base := f * channels
			var sum float32
			for c := 0; c < channels; c++ {
				sum += interleaved[base+c]
			}
			dst = append(dst, sum*inv)
		}
	}
	return dst
}

// Upmix duplicates mono samples across the given channel count.
func Upmix(dst, mono []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst, mono...)
	}
	for _, v := range mono {
		for c := 0; c < channels; c++ {
			dst = append(dst, v)
		}
	}
	return dst
}

// Remix converts interleaved frames between channel counts. Anything that is
// not a plain copy goes through mono.
func Remix(dst, interleaved []float32, from, to int) []float32 {
	switch {
	case from == to:
		return append(dst, interleaved...)
	case to == 1:
		return Downmix(dst, interleaved, from)
	case from == 1:
		return Upmix(dst, interleaved, to)
	default:
		return Upmix(dst, Downmix(nil, interleaved, from), to)
	}
}
