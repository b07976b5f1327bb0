// Package fusion implements §4.7: min-max normalization, adaptive
// embedding weighting, reciprocal rank fusion, and the post-fusion
// co-mention boost. It also implements the closed-enumeration adaptive
// rerank-budget selector referenced by §4.9 step 7 and §9's design note.
package fusion

import (
	"math"
	"sort"
	"strings"

	"github.com/kortix-ai/kb-fusion/src/go/tokenizer"
)

// RRFConstant is RRF_K.
const RRFConstant = 60

// MinMax maps values linearly to [0,1]; if the range is below 1e-9, every
// element maps to 0.5.
func MinMax(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	out := make([]float64, len(xs))
	if hi-lo < 1e-9 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, x := range xs {
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}

// RerankBudget is the closed enumeration of §4.9 step 7 / §9: the
// adaptive rerank-depth selector has exactly these four outcomes.
type RerankBudget int

const (
	Budget70  RerankBudget = 70
	Budget80  RerankBudget = 80
	Budget90  RerankBudget = 90
	Budget100 RerankBudget = 100
)

// AdaptiveBudget implements §4.9 step 7 over the initial (pre-PRF)
// normalized top-10 scores.
func AdaptiveBudget(scores []float64) RerankBudget {
	if len(scores) < 10 {
		return Budget80
	}
	top10 := scores[:10]
	std := stddev(top10)
	s0, s4, s9 := top10[0], top10[4], top10[9]

	switch {
	case std < 0.02 || (s0-s9) < 0.1:
		return Budget100
	case s0-s4 > 0.4:
		return Budget70
	case s0-s9 > 0.5:
		return Budget80
	default:
		return Budget90
	}
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

// EmbeddingWeight implements §4.7 step 2: the adaptive embedding weight
// derived from the standard deviation of raw cosine similarities.
func EmbeddingWeight(rawCosines []float64) float64 {
	sigma := stddev(rawCosines)
	w := 1.0 / (1.0 + math.Exp(-(sigma-0.008)/0.004))
	return 0.6 + 0.4*w
}

// RanksDescending returns, for each index i, its rank (0 = best) when
// sorting scores in descending order.
func RanksDescending(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	ranks := make([]int, len(scores))
	for rank, idx := range order {
		ranks[idx] = rank
	}
	return ranks
}

// RRF computes §4.7 step 4: 1/(k+bm25_rank[i]) + 1/(k+embed_rank[i]).
func RRF(bm25Ranks, embedRanks []int) []float64 {
	out := make([]float64, len(bm25Ranks))
	for i := range out {
		out[i] = 1.0/(RRFConstant+float64(bm25Ranks[i])) + 1.0/(RRFConstant+float64(embedRanks[i]))
	}
	return out
}

// BoostFeatures holds the three min-max normalized feature vectors used by
// the post-fusion co-mention boost.
type BoostFeatures struct {
	Jaccard []float64
	Phrase  []float64
	Digit   []float64
}

// ComputeBoostFeatures implements §4.7 step 5's three feature vectors
// over candidate texts for a given query.
func ComputeBoostFeatures(texts []string, query string) BoostFeatures {
	qTokens := tokenizer.NonStopwordTokens(query)
	qSet := make(map[string]struct{}, len(qTokens))
	for _, t := range qTokens {
		qSet[t] = struct{}{}
	}
	qNums := numericTokenSet(qTokens)

	phrases := buildPhrases(qTokens)

	jac := make([]float64, len(texts))
	phr := make([]float64, len(texts))
	dig := make([]float64, len(texts))

	for i, txt := range texts {
		tt := tokenizer.Tokens(txt)
		joined := strings.Join(tt, " ")
		tSet := make(map[string]struct{}, len(tt))
		for _, t := range tt {
			tSet[t] = struct{}{}
		}

		jac[i] = jaccardSets(qSet, tSet)

		if len(phrases) == 0 {
			phr[i] = 0
		} else {
			matches := 0
			for _, p := range phrases {
				if p != "" && strings.Contains(joined, p) {
					matches++
				}
			}
			phr[i] = float64(matches) / float64(len(phrases))
		}

		textNums := numericTokenSet(tt)
		dig[i] = 0
		for n := range qNums {
			if _, ok := textNums[n]; ok {
				dig[i] = 1
				break
			}
		}
	}

	return BoostFeatures{
		Jaccard: MinMax(jac),
		Phrase:  MinMax(phr),
		Digit:   MinMax(dig),
	}
}

func numericTokenSet(tokens []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range tokens {
		if tokenizer.IsNumeric(t) {
			out[t] = struct{}{}
		}
	}
	return out
}

func buildPhrases(qTokens []string) []string {
	set := map[string]struct{}{}
	for _, n := range []int{2, 3} {
		for i := 0; i+n <= len(qTokens); i++ {
			set[strings.Join(qTokens[i:i+n], " ")] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

func jaccardSets(a, b map[string]struct{}) float64 {
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

// FinalScore applies §4.7's co-mention boost to an RRF score.
func FinalScore(rrf, jacc, phrase, digit float64) float64 {
	comention := 0.4*jacc + 0.3*phrase + 0.1*digit
	return rrf * (1 + comention)
}
