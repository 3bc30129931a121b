package fingerprint

import (
	"math"
	"sort"
)

type Peak struct {
	TimeIdx int
	FreqIdx int
	Time    float64 // seconds
	Freq    float64 // Hz
	MagDB   float64
}

const (
	freqNeighbour = 3
	timeNeighbour = 1
	minDbAboveAvg = 3.0
	firstBandBins = 10
	dbEpsilon     = 1e-10
)

type band struct{ lo, hi int }

// logBands splits nBins into a low band followed by octave bands.
func logBands(nBins int) []band {
	bands := []band{{0, min(firstBandBins, nBins)}}
	for lo := firstBandBins; lo < nBins; lo *= 2 {
		hi := min(lo*2, nBins)
		bands = append(bands, band{lo, hi})
	}
	return bands
}

func toDB(mag float64) float64 {
	return 20.0 * math.Log10(mag+dbEpsilon)
}

// ExtractPeaks picks, per frame, the strongest bin of each band, keeps those
// standing minDbAboveAvg above the frame's band average that are also local
// maxima in their time/frequency neighbourhood. Peaks come back ordered by
// time, then frequency.
func ExtractPeaks(spectrogram [][]float64, sampleRate int) []Peak {
	if len(spectrogram) == 0 || len(spectrogram[0]) == 0 {
		return nil
	}

	nFrames := len(spectrogram)
	nBins := len(spectrogram[0])
	freqRes := float64(sampleRate) / float64(WindowSize)
	frameTime := float64(HopSize) / float64(sampleRate)
	bands := logBands(nBins)

	peaks := make([]Peak, 0, nFrames*2)
	maxIdx := make([]int, len(bands))
	maxMag := make([]float64, len(bands))

	for t, frame := range spectrogram {
		var sumDb float64
		for bi, b := range bands {
			maxIdx[bi], maxMag[bi] = b.lo, 0
			for i := b.lo; i < b.hi; i++ {
				if frame[i] > maxMag[bi] {
					maxMag[bi], maxIdx[bi] = frame[i], i
				}
			}
			sumDb += toDB(maxMag[bi])
		}
		avgDb := sumDb / float64(len(bands))

		for bi, mag := range maxMag {
			if mag <= 0 {
				continue
			}
			magDb := toDB(mag)
			if magDb < avgDb+minDbAboveAvg {
				continue
			}
			bin := maxIdx[bi]
			if !isLocalMax(spectrogram, t, bin, mag) {
				continue
			}
			peaks = append(peaks, Peak{
				TimeIdx: t,
				FreqIdx: bin,
				Time:    float64(t) * frameTime,
				Freq:    float64(bin) * freqRes,
				MagDB:   magDb,
			})
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].TimeIdx == peaks[j].TimeIdx {
			return peaks[i].FreqIdx < peaks[j].FreqIdx
		}
		return peaks[i].TimeIdx < peaks[j].TimeIdx
	})
	return peaks
}

func isLocalMax(spectrogram [][]float64, t, bin int, mag float64) bool {
	for tIdx := max(0, t-timeNeighbour); tIdx <= min(len(spectrogram)-1, t+timeNeighbour); tIdx++ {
		frame := spectrogram[tIdx]
		for fIdx := max(0, bin-freqNeighbour); fIdx <= min(len(frame)-1, bin+freqNeighbour); fIdx++ {
			if frame[fIdx] > mag {
				return false
			}
		}
	}
	return true
}
