package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPicksBestSentence(t *testing.T) {
	text := "This is unrelated. The mitochondria is the powerhouse of the cell. More unrelated text follows."
	out := Build(text, "mitochondria powerhouse")
	assert.Contains(t, out, "mitochondria")
}

func TestBuildTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("word ", 100)
	out := Build(long, "word")
	assert.LessOrEqual(t, len(out), maxChars+len("…"))
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestBuildHandlesNoSentenceBreaks(t *testing.T) {
	text := "no punctuation here at all"
	out := Build(text, "punctuation")
	assert.Equal(t, text, out)
}

func TestSplitSentencesPreservesTerminators(t *testing.T) {
	text := "Is this mitochondria? Yes! The mitochondria is the powerhouse of the cell."
	sentences := splitSentences(text)
	require.Len(t, sentences, 3)
	assert.Equal(t, "Is this mitochondria?", sentences[0])
	assert.Equal(t, "Yes!", sentences[1])
	assert.Equal(t, "The mitochondria is the powerhouse of the cell.", sentences[2])
}

func TestBuildRetainsPunctuationAcrossMultipleSentences(t *testing.T) {
	text := "Is this mitochondria? Yes! The mitochondria is the powerhouse of the cell."
	out := Build(text, "mitochondria powerhouse")
	assert.Contains(t, out, "Yes!")
	assert.Contains(t, out, "cell.")
}
