// Package tokenizer extracts normalized, deduplicated keyword lists from
// free-form query text. It is deterministic and pure: no I/O, no shared
// state.
package tokenizer

import (
	"regexp"
	"sort"
)

var (
	tokenRe   = regexp.MustCompile(`[a-z0-9]+`)
	numericRe = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

const maxKeywords = 16

// stopwords is the fixed English stopword set used throughout the engine
// for keyword extraction, PRF term scoring, and boost feature computation.
var stopwords = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "myself": {}, "we": {}, "our": {}, "ours": {}, "ourselves": {},
	"you": {}, "your": {}, "yours": {}, "yourself": {}, "yourselves": {}, "he": {}, "him": {},
	"his": {}, "himself": {}, "she": {}, "her": {}, "hers": {}, "herself": {}, "it": {}, "its": {},
	"itself": {}, "they": {}, "them": {}, "their": {}, "theirs": {}, "themselves": {}, "what": {},
	"which": {}, "who": {}, "whom": {}, "this": {}, "that": {}, "these": {}, "those": {}, "am": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "have": {},
	"has": {}, "had": {}, "having": {}, "do": {}, "does": {}, "did": {}, "doing": {}, "a": {},
	"an": {}, "the": {}, "and": {}, "but": {}, "if": {}, "or": {}, "because": {}, "as": {},
	"until": {}, "while": {}, "of": {}, "at": {}, "by": {}, "for": {}, "with": {}, "through": {},
	"during": {}, "before": {}, "after": {}, "above": {}, "below": {}, "up": {}, "down": {},
	"in": {}, "out": {}, "on": {}, "off": {}, "over": {}, "under": {}, "again": {}, "further": {},
	"then": {}, "once": {}, "here": {}, "there": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"all": {}, "any": {}, "both": {}, "each": {}, "few": {}, "more": {}, "most": {}, "other": {},
	"some": {}, "such": {}, "no": {}, "nor": {}, "not": {}, "only": {}, "own": {}, "same": {},
	"so": {}, "than": {}, "too": {}, "very": {}, "s": {}, "t": {}, "can": {}, "will": {},
	"just": {}, "should": {}, "now": {},
}

// IsStopword reports whether t is in the fixed stopword set.
func IsStopword(t string) bool {
	_, ok := stopwords[t]
	return ok
}

// IsNumeric reports whether t matches \d+(\.\d+)?.
func IsNumeric(t string) bool {
	return numericRe.MatchString(t)
}

// Tokens extracts maximal [a-z0-9]+ runs from the lowercased input.
func Tokens(s string) []string {
	return tokenRe.FindAllString(toLower(s), -1)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Keywords implements §4.1: split tokens into numerics and words, drop
// stopwords and words of length <= 2, dedupe words, sort by (decreasing
// length, lexicographic), cap to 16, and return numerics first (input
// order) then words.
func Keywords(q string) []string {
	terms := Tokens(q)

	var nums []string
	numSet := map[string]struct{}{}
	wordSet := map[string]struct{}{}
	for _, t := range terms {
		if IsNumeric(t) {
			if _, seen := numSet[t]; !seen {
				numSet[t] = struct{}{}
				nums = append(nums, t)
			}
			continue
		}
		if IsStopword(t) || len(t) <= 2 {
			continue
		}
		wordSet[t] = struct{}{}
	}

	words := make([]string, 0, len(wordSet))
	for w := range wordSet {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}

	out := make([]string, 0, len(nums)+len(words))
	out = append(out, nums...)
	out = append(out, words...)
	return out
}

// NonStopwordTokens returns tokens of s with stopwords removed, preserving
// order and duplicates — used by the boost feature computation, which
// needs the raw query token stream rather than deduped keywords.
func NonStopwordTokens(s string) []string {
	toks := Tokens(s)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if !IsStopword(t) {
			out = append(out, t)
		}
	}
	return out
}

// TokenSet returns the distinct token set of s, used by the Jaccard dedup
// filter and by snippet sentence scoring (both operate over raw tokens,
// not keyword-filtered ones).
func TokenSet(s string) map[string]struct{} {
	toks := Tokens(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}
