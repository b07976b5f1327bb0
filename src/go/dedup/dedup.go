// Package dedup implements the Jaccard near-duplicate filter of §4.6.
package dedup

import (
	"sort"

	"github.com/kortix-ai/kb-fusion/src/go/tokenizer"
)

// DefaultThreshold is JACCARD_THRESHOLD.
const DefaultThreshold = 0.83

// Filter processes texts in decreasing-score order and admits index i iff
// it is not near-duplicate (Jaccard >= threshold) of any already-kept
// index, preserving score order in the output.
func Filter(texts []string, scores []float64, threshold float64) []int {
	if len(texts) <= 1 {
		out := make([]int, len(texts))
		for i := range out {
			out[i] = i
		}
		return out
	}

	tokenSets := make([]map[string]struct{}, len(texts))
	for i, t := range texts {
		tokenSets[i] = tokenizer.TokenSet(t)
	}

	order := make([]int, len(texts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	var keep []int
	for _, i := range order {
		admit := true
		for _, j := range keep {
			if jaccard(tokenSets[i], tokenSets[j]) >= threshold {
				admit = false
				break
			}
		}
		if admit {
			keep = append(keep, i)
		}
	}
	return keep
}

func jaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		union = 1
	}
	return float64(inter) / float64(union)
}
