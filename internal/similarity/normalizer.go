// Package similarity provides string canonicalization and a multi-algorithm
// similarity score used to compare vendor and description fields between
// transactions.
package similarity

import (
	"strings"
	"unicode"
)

// Payment-processor markers stripped from the start of a normalized string.
// Bank feeds routinely prepend these to the merchant name.
var processorPrefixes = map[string]bool{
	"pos":      true,
	"card":     true,
	"debit":    true,
	"credit":   true,
	"purchase": true,
	"chk":      true,
	"ach":      true,
}

// Status markers stripped from the end of a normalized string.
var statusSuffixes = map[string]bool{
	"pending":    true,
	"auth":       true,
	"hold":       true,
	"processing": true,
}

// Normalize canonicalizes a free-text vendor or description field before
// comparison: lower-case, replace non-alphanumerics with spaces, collapse
// whitespace, then strip leading payment-processor markers and trailing
// status markers. Empty input normalizes to the empty string. Normalize is a
// pure function and idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())

	for len(tokens) > 0 && processorPrefixes[tokens[0]] {
		tokens = tokens[1:]
	}

	for len(tokens) > 0 && statusSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

// Tokens splits a normalized string into its whitespace-separated tokens.
func Tokens(s string) []string {
	return strings.Fields(s)
}
