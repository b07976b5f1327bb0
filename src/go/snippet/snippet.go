// Package snippet builds a short plain-text excerpt from a passage for
// display alongside a result (§6's snippet builder).
package snippet

import (
	"regexp"
	"strings"

	"github.com/kortix-ai/kb-fusion/src/go/tokenizer"
)

const maxChars = 280

var sentenceBoundaryRe = regexp.MustCompile(`[.!?]\s+`)

// splitSentences splits text on a terminator-then-whitespace boundary
// without consuming the terminator, so each returned sentence keeps its
// trailing '.'/'!'/'?' — Go's RE2 has no lookbehind, so the boundary is
// located via FindAllStringIndex and the terminator character is folded
// into the preceding slice by hand instead.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundaryRe.FindAllStringIndex(text, -1) {
		end := loc[0] + 1 // keep the terminator, drop the trailing whitespace
		sentences = append(sentences, text[start:end])
		start = loc[1]
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// Build splits text into sentences, scores each by the count of distinct
// lowercased query tokens it contains, and returns a window from one
// sentence before to three sentences after the best-scoring sentence,
// truncated to maxChars at the last space plus an ellipsis.
func Build(text, query string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return truncate(text)
	}

	queryTokens := tokenizer.TokenSet(query)

	best := 0
	bestScore := -1
	for i, s := range sentences {
		score := scoreSentence(s, queryTokens)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	left := best - 1
	if left < 0 {
		left = 0
	}
	right := best + 4
	if right > len(sentences) {
		right = len(sentences)
	}

	out := strings.Join(sentences[left:right], " ")
	return truncate(out)
}

func scoreSentence(s string, queryTokens map[string]struct{}) int {
	lower := strings.ToLower(s)
	count := 0
	for t := range queryTokens {
		if strings.Contains(lower, t) {
			count++
		}
	}
	return count
}

func truncate(s string) string {
	if len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
