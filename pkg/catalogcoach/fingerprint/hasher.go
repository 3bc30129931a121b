package fingerprint

import (
	"math"
	"sort"
)

const (
	MaxFreqBits  = 9
	MaxDeltaBits = 14
	FanOut       = 6
	MinDeltaMs   = 10
	MaxDeltaMs   = 15000
)

// Hash is one anchor/target landmark.
type Hash struct {
	Hash         uint32
	AnchorTimeMs uint32
}

// createAddress packs anchor frequency, target frequency and their time
// delta into 9+9+14 bits.
func createAddress(anchor, target Peak) (uint32, bool) {
	anchorFreq := uint32(anchor.FreqIdx)
	targetFreq := uint32(target.FreqIdx)
	deltaMs := uint32(math.Round((target.Time - anchor.Time) * 1000.0))

	if deltaMs < MinDeltaMs || deltaMs > MaxDeltaMs {
		return 0, false
	}

	const (
		freqMask    = uint32(1<<MaxFreqBits) - 1
		deltaMask   = uint32(1<<MaxDeltaBits) - 1
		shiftTarget = MaxDeltaBits
		shiftAnchor = MaxDeltaBits + MaxFreqBits
	)
	if anchorFreq > freqMask || targetFreq > freqMask || deltaMs > deltaMask {
		return 0, false
	}

	return anchorFreq<<shiftAnchor | targetFreq<<shiftTarget | deltaMs, true
}

// SplitAddress unpacks a hash into its anchor bin, target bin and delta.
func SplitAddress(h uint32) (anchorFreq, targetFreq, deltaMs uint32) {
	const (
		freqMask  = uint32(1<<MaxFreqBits) - 1
		deltaMask = uint32(1<<MaxDeltaBits) - 1
	)
	return h >> (MaxDeltaBits + MaxFreqBits) & freqMask, h >> MaxDeltaBits & freqMask, h & deltaMask
}

// GenerateHashes pairs each peak with up to FanOut later peaks that fall in
// the allowed time window. Peaks are sorted by time in place.
func GenerateHashes(peaks []Peak) []Hash {
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Time < peaks[j].Time })

	hashes := make([]Hash, 0, len(peaks)*FanOut)
	for i, anchor := range peaks {
		anchorMs := uint32(math.Round(anchor.Time * 1000.0))
		paired := 0
		for j := i + 1; j < len(peaks) && paired < FanOut; j++ {
			addr, ok := createAddress(anchor, peaks[j])
			if !ok {
				if peaks[j].Time-anchor.Time > MaxDeltaMs/1000.0 {
					break
				}
				continue
			}
			hashes = append(hashes, Hash{Hash: addr, AnchorTimeMs: anchorMs})
			paired++
		}
	}
	return hashes
}

// DistinctHashCount counts unique hash values.
func DistinctHashCount(hashes []Hash) int {
	seen := make(map[uint32]struct{}, len(hashes))
	for _, h := range hashes {
		seen[h.Hash] = struct{}{}
	}
	return len(seen)
}
