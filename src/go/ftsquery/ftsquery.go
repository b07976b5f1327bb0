// Package ftsquery builds SQLite FTS5 MATCH expressions from keyword
// lists, including the phrase-augmented and PRF-expanded forms.
package ftsquery

import (
	"fmt"
	"strings"

	"github.com/kortix-ai/kb-fusion/src/go/tokenizer"
)

// Build implements §4.2's base form: join terms with OR, quoting word
// terms and leaving numeric terms bare. Returns "" if keys is empty.
func Build(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if tokenizer.IsNumeric(k) {
			parts = append(parts, k)
		} else {
			parts = append(parts, quote(k))
		}
	}
	return strings.Join(parts, " OR ")
}

// BuildWithPhrases implements the phrase-augmented form: base OR'd
// against a disjunction of quoted phrases. The retrieval pipeline does not
// call it; PRF expansion uses BuildExpanded.
func BuildWithPhrases(keys []string, phrases []string) string {
	base := Build(keys)
	if len(phrases) == 0 {
		return base
	}
	var phraseParts []string
	for _, p := range phrases {
		if len(tokenizer.Tokens(p)) >= 2 {
			phraseParts = append(phraseParts, quote(p))
		}
	}
	if len(phraseParts) == 0 {
		return base
	}
	phraseQuery := strings.Join(phraseParts, " OR ")
	if base == "" {
		return phraseQuery
	}
	return fmt.Sprintf("(%s) OR (%s)", base, phraseQuery)
}

// BuildExpanded implements §4.2's expanded form: anchors A (<=3 original
// keywords) OR'd, plus the top anchor ANDed with the expansion term
// disjunction E (<=5 terms).
func BuildExpanded(origKeys []string, expansionTerms []string) string {
	if len(origKeys) == 0 {
		return Build(expansionTerms)
	}
	if len(expansionTerms) == 0 {
		return Build(origKeys)
	}

	anchorKeys := origKeys
	if len(anchorKeys) > 3 {
		anchorKeys = anchorKeys[:3]
	}
	expKeys := expansionTerms
	if len(expKeys) > 5 {
		expKeys = expKeys[:5]
	}

	anchors := Build(anchorKeys)
	expansions := Build(expKeys)
	if expansions == "" {
		return anchors
	}
	return fmt.Sprintf("(%s) OR (%s AND (%s))", anchors, origKeys[0], expansions)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
