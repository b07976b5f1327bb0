package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterRemovesExactDuplicate(t *testing.T) {
	texts := []string{"the quick brown fox", "the quick brown fox", "something totally different here"}
	scores := []float64{0.9, 0.8, 0.5}

	keep := Filter(texts, scores, DefaultThreshold)

	assert.Len(t, keep, 2)
	assert.Contains(t, keep, 0)
	assert.Contains(t, keep, 2)
	assert.NotContains(t, keep, 1)
}

func TestFilterKeepsDistinctTexts(t *testing.T) {
	texts := []string{"alpha beta gamma", "delta epsilon zeta", "eta theta iota"}
	scores := []float64{0.3, 0.9, 0.6}

	keep := Filter(texts, scores, DefaultThreshold)

	assert.Len(t, keep, 3)
	// first kept index should be the highest-scoring one (index 1)
	assert.Equal(t, 1, keep[0])
}

func TestFilterSingleElement(t *testing.T) {
	keep := Filter([]string{"only one"}, []float64{1.0}, DefaultThreshold)
	assert.Equal(t, []int{0}, keep)
}
