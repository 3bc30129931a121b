package fingerprint

import (
	"math"
	"sort"

	"github.com/himanishpuri/CatalogCoach/pkg/models"
)

// frameMs is the spacing of anchor times, and the width of an offset bin.
const frameMs = float64(HopSize) * 1000.0 / SampleRate

// Index maps a hash to every reference occurrence.
type Index map[uint32][]models.Couple

// Add indexes hashes under referenceID.
func (idx Index) Add(referenceID string, hashes []Hash) {
	for _, h := range hashes {
		idx[h.Hash] = append(idx[h.Hash], models.Couple{ReferenceID: referenceID, AnchorTimeMs: h.AnchorTimeMs})
	}
}

// Vote aligns query hashes against the index. For every reference the
// offset with the most agreeing hashes wins; offsets are binned to one
// analysis hop so millisecond rounding does not split votes. Results are
// ordered by descending count.
func Vote(query []Hash, idx Index) []models.Alignment {
	votes := make(map[string]map[int32]int)

	for _, q := range query {
		bucket, ok := idx[q.Hash]
		if !ok {
			continue
		}
		for _, c := range bucket {
			offset := int32(c.AnchorTimeMs) - int32(q.AnchorTimeMs)
			bin := int32(math.Round(float64(offset) / frameMs))
			m, ok := votes[c.ReferenceID]
			if !ok {
				m = make(map[int32]int)
				votes[c.ReferenceID] = m
			}
			m[bin]++
		}
	}

	alignments := make([]models.Alignment, 0, len(votes))
	for refID, bins := range votes {
		bestBin, bestCount := int32(0), 0
		for bin, cnt := range bins {
			if cnt > bestCount || (cnt == bestCount && bin < bestBin) {
				bestBin, bestCount = bin, cnt
			}
		}
		alignments = append(alignments, models.Alignment{
			ReferenceID: refID,
			OffsetMs:    int32(math.Round(float64(bestBin) * frameMs)),
			Count:       bestCount,
		})
	}

	sort.Slice(alignments, func(i, j int) bool {
		if alignments[i].Count == alignments[j].Count {
			return alignments[i].ReferenceID < alignments[j].ReferenceID
		}
		return alignments[i].Count > alignments[j].Count
	})
	return alignments
}

// Confidence turns an aligned-hash count into a 0-100 score. The ratio is
// taken against the smaller of the query and reference hash counts so
// short queries against long references are judged fairly, then shaped by a
// logistic curve centred on a 15% match.
func Confidence(matchCount, queryHashCount, referenceHashCount int) float64 {
	if matchCount == 0 || queryHashCount == 0 || referenceHashCount == 0 {
		return 0.0
	}

	ratio := float64(matchCount) / float64(min(queryHashCount, referenceHashCount))

	const (
		steepness = 20.0
		midpoint  = 0.15
	)
	confidence := 100.0 / (1.0 + math.Exp(-steepness*(ratio-midpoint)))

	// very strong overlap
	if ratio > 0.30 {
		confidence = math.Min(100.0, confidence+(ratio-0.30)*50)
	}

	// a handful of agreeing hashes is not significant
	if matchCount < 5 {
		confidence *= float64(matchCount) / 5.0
	}

	return confidence
}
