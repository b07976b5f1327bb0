package mmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiversifyReturnsAllWhenKExceedsCount(t *testing.T) {
	cands := []Candidate{{Relevance: 1, HasVector: false}, {Relevance: 0.5, HasVector: false}}
	out := Diversify(cands, 5)
	assert.ElementsMatch(t, []int{0, 1}, out)
}

func TestDiversifyAlwaysKeepsTopCandidateFirst(t *testing.T) {
	cands := []Candidate{
		{Relevance: 0.3, Vector: []float32{1, 0}, HasVector: true},
		{Relevance: 0.9, Vector: []float32{0, 1}, HasVector: true},
		{Relevance: 0.7, Vector: []float32{1, 0}, HasVector: true},
	}
	out := Diversify(cands, 1)
	assert.Equal(t, []int{0}, out)
}

func TestDiversifyPenalizesRedundantVectors(t *testing.T) {
	// candidate 1 is near-duplicate (same direction) of candidate 0 and
	// has higher relevance than candidate 2, which points in an
	// orthogonal direction; MMR should still prefer the diverse one
	// second once the redundancy penalty is applied.
	cands := []Candidate{
		{Relevance: 1.0, Vector: []float32{1, 0}, HasVector: true},
		{Relevance: 0.8, Vector: []float32{1, 0}, HasVector: true},
		{Relevance: 0.6, Vector: []float32{0, 1}, HasVector: true},
	}
	out := Diversify(cands, 2)
	assert.Equal(t, 0, out[0])
	assert.Equal(t, 2, out[1])
}

func TestCoverageComputesFraction(t *testing.T) {
	cands := []Candidate{
		{Relevance: 0.5, HasVector: true},
		{Relevance: 0, HasVector: true}, // vector present but cosine to query is exactly zero: not covered
		{Relevance: 0.3, HasVector: true},
		{Relevance: 0.1, HasVector: false},
	}
	assert.InDelta(t, 0.75, Coverage(cands), 1e-9)
}
