package prf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldExpandShortQueryAlwaysExpands(t *testing.T) {
	assert.True(t, ShouldExpand("treaty 1789", nil))
}

func TestShouldExpandLongQueryNeedsFlatScores(t *testing.T) {
	longQuery := "assembly ratification constitutional amendment process history"
	flat := make([]float64, 10)
	for i := range flat {
		flat[i] = 0.5
	}
	assert.True(t, ShouldExpand(longQuery, flat))

	steep := []float64{1.0, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	assert.False(t, ShouldExpand(longQuery, steep))
}

func TestExtractTermsExcludesQueryAndStopwordsAndShortTerms(t *testing.T) {
	docs := []ScoredDoc{
		{ID: "1", Text: "the treaty of paris ratified the assembly constitutional framework", Score: 0.9},
		{ID: "2", Text: "the treaty established constitutional principles for the assembly", Score: 0.8},
	}
	queryTokens := map[string]struct{}{"treaty": {}}

	terms := ExtractTerms(docs, queryTokens)

	assert.NotContains(t, terms, "treaty")
	assert.NotContains(t, terms, "the")
	assert.Contains(t, terms, "constitutional")
}

func TestBuildExpandedQueryAnchorsFirstKeyword(t *testing.T) {
	q := BuildExpandedQuery([]string{"treaty", "paris"}, []string{"constitutional", "assembly"})
	assert.Contains(t, q, "treaty")
	assert.Contains(t, q, "constitutional")
}

func TestOverlapAndDriftGuard(t *testing.T) {
	orig := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	highOverlap := []string{"a", "b", "c", "d", "x", "y", "z", "w", "v", "u"}
	lowOverlap := []string{"z1", "z2", "z3", "z4", "z5", "z6", "z7", "z8", "z9", "z10"}

	assert.InDelta(t, 0.4, Overlap(orig, highOverlap), 1e-9)
	assert.True(t, PassesDriftGuard(orig, highOverlap))

	assert.InDelta(t, 0.0, Overlap(orig, lowOverlap), 1e-9)
	assert.False(t, PassesDriftGuard(orig, lowOverlap))
}
