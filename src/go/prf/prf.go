// Package prf implements §4.5's pseudo-relevance-feedback expander:
// the hard gate, RM3-style term scoring, anchored query expansion, and
// the drift guard that decides whether the expanded query's results
// replace the original ones.
package prf

import (
	"math"
	"sort"

	"github.com/kortix-ai/kb-fusion/src/go/ftsquery"
	"github.com/kortix-ai/kb-fusion/src/go/tokenizer"
)

// K is PRF_K: the number of top documents mined for expansion terms.
const K = 10

// M is PRF_M: the maximum number of expansion terms kept.
const M = 20

// OverlapThreshold is the minimum top-10 ID overlap between the
// original and PRF-expanded result sets required to accept expansion.
const OverlapThreshold = 0.4

// ScoredDoc is the minimal shape ShouldExpand/ExtractTerms need: a
// document identity, its text, and its normalized relevance score
// (1/(1+raw_bm25), matching §4.9 step 3's construction).
type ScoredDoc struct {
	ID    string
	Text  string
	Score float64
}

// ShouldExpand implements the hard gate of §4.5: expand when the query
// has at most 4 non-stopword tokens of length > 2, or (for longer
// queries) when the top-10 score distribution is flat (stddev < 0.02).
func ShouldExpand(query string, scores []float64) bool {
	tokens := filteredQueryTokens(query)
	if len(tokens) <= 4 {
		return true
	}
	if len(scores) < 10 {
		return false
	}
	return stddev(scores[:10]) < 0.02
}

func filteredQueryTokens(query string) []string {
	var out []string
	for _, t := range tokenizer.Tokens(query) {
		if tokenizer.IsStopword(t) || len(t) <= 2 {
			continue
		}
		out = append(out, t)
	}
	return out
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
	return math.Sqrt(variance / float64(len(xs)))
}

// ExtractTerms implements §4.5's RM3-style expansion term scoring over
// the top K documents. queryTokens is the keyword set of the original
// query (excluded from candidacy so expansion never echoes the query).
func ExtractTerms(docs []ScoredDoc, queryTokens map[string]struct{}) []string {
	if len(docs) > K {
		docs = docs[:K]
	}

	termScores := map[string]float64{}
	for _, d := range docs {
		docWeight := d.Score
		if d.Score < 0 {
			docWeight = 1.0 / (1.0 + math.Abs(d.Score))
		}

		tf := map[string]int{}
		for _, t := range tokenizer.Tokens(d.Text) {
			tf[t]++
		}

		for term, count := range tf {
			if len(term) < 3 {
				continue
			}
			if tokenizer.IsStopword(term) || tokenizer.IsNumeric(term) {
				continue
			}
			if _, isQueryTerm := queryTokens[term]; isQueryTerm {
				continue
			}
			idfEst := 1.0
			switch {
			case count <= 2:
				idfEst = 2.0
			case count <= 5:
				idfEst = 1.5
			}
			termScores[term] += docWeight * float64(count) * idfEst
		}
	}

	type scored struct {
		term  string
		score float64
	}
	all := make([]scored, 0, len(termScores))
	for t, s := range termScores {
		all = append(all, scored{t, s})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	var out []string
	for _, s := range all {
		if s.score <= 0.1 {
			continue
		}
		out = append(out, s.term)
		if len(out) >= M {
			break
		}
	}
	return out
}

// BuildExpandedQuery delegates to ftsquery's anchored-expansion builder:
// the top 3 original keywords as anchors, the top 5 expansion terms,
// combined as "(anchors) OR (firstAnchor AND (expansions))".
func BuildExpandedQuery(origKeys, expansionTerms []string) string {
	return ftsquery.BuildExpanded(origKeys, expansionTerms)
}

// Overlap computes the top-10 ID overlap fraction between the original
// and PRF-expanded result sets, per §4.5's drift guard.
func Overlap(originalTop10, expandedTop10 []string) float64 {
	if len(originalTop10) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(originalTop10))
	for _, id := range originalTop10 {
		set[id] = struct{}{}
	}
	matches := 0
	for _, id := range expandedTop10 {
		if _, ok := set[id]; ok {
			matches++
		}
	}
	return float64(matches) / 10.0
}

// PassesDriftGuard reports whether the overlap is high enough to accept
// the PRF-expanded result set in place of the original.
func PassesDriftGuard(originalTop10, expandedTop10 []string) bool {
	return Overlap(originalTop10, expandedTop10) >= OverlapThreshold
}
