// Package match scores candidate owners against a target name. All functions
// are pure: no I/O, no side effects, deterministic for a given input.
//
// The heuristics are intentionally simple and tuned for US residential and
// business name conventions; they trade global optimality for a repeatable,
// explainable confidence score.
package match

import "strings"

// entitySuffixes is the fixed vocabulary of legal-entity suffixes stripped
// from business names before comparison.
var entitySuffixes = map[string]struct{}{
	"llc":         {},
	"inc":         {},
	"corp":        {},
	"co":          {},
	"ltd":         {},
	"company":     {},
	"investment":  {},
	"investments": {},
}

// NormalizeName lower-cases, strips punctuation, and collapses whitespace.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeBusinessName is NormalizeName plus removal of the trailing
// legal-entity suffix, so "Acme Investments LLC" and "Acme Investments"
// compare equal. Only one trailing suffix token is dropped, and only when at
// least two words remain: "Acme Investments" must keep its distinguishing
// word even though "investments" is in the suffix vocabulary.
func NormalizeBusinessName(name string) string {
	words := strings.Fields(NormalizeName(name))
	if len(words) > 2 {
		if _, ok := entitySuffixes[words[len(words)-1]]; ok {
			words = words[:len(words)-1]
		}
	}
	return strings.Join(words, " ")
}

// nameParts tokenizes a normalized name into comparable parts, dropping
// tokens at or below the length floor.
func nameParts(normalized string, minLen int) []string {
	fields := strings.Fields(normalized)
	parts := fields[:0]
	for _, f := range fields {
		if len(f) > minLen {
			parts = append(parts, f)
		}
	}
	return parts
}
