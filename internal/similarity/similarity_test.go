package similarity

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"whitespace only", "   \t ", ""},
		{"lowercases", "STARBUCKS", "starbucks"},
		{"strips processor prefix", "POS STARBUCKS #123", "starbucks 123"},
		{"strips stacked prefixes", "pos card Starbucks", "starbucks"},
		{"strips status suffix", "Amazon.com PENDING", "amazon com"},
		{"strips auth suffix", "shell oil auth", "shell oil"},
		{"collapses punctuation", "AMZN*Mktp-US/Seattle", "amzn mktp us seattle"},
		{"collapses whitespace", "  whole   foods  ", "whole foods"},
		{"keeps digits", "CHECK 1042", "1042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"POS CARD Starbucks #123 PENDING",
		"debit purchase AMZN*Mktp",
		"plain vendor name",
		"pos pos pos",
		"Trader Joe's - Store #42 hold",
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestScoreEmptyStrings(t *testing.T) {
	if got := Score("", ""); got != 1.0 {
		t.Errorf("Score of two empty strings = %f, want 1.0", got)
	}

	if got := Score("starbucks", ""); got != 0.0 {
		t.Errorf("Score against one empty string = %f, want 0.0", got)
	}

	if got := Score("", "starbucks"); got != 0.0 {
		t.Errorf("Score against one empty string = %f, want 0.0", got)
	}
}

func TestScoreIdentical(t *testing.T) {
	if got := Score("whole foods market", "whole foods market"); got != 1.0 {
		t.Errorf("Score of identical strings = %f, want 1.0", got)
	}
}

func TestScoreSimilarStrings(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{"store number differs", "starbucks 123", "starbucks 456", 0.6, 1.0},
		{"minor typo", "whole foods", "whole food", 0.7, 1.0},
		{"unrelated vendors", "starbucks", "home depot", 0.0, 0.4},
		{"shared significant token", "amazon marketplace", "amazon fresh", 0.3, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Score(%q, %q) = %f, want within [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestScoreSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"starbucks 123", "starbucks 456"},
		{"whole foods", "whole food market"},
		{"a", "completely different"},
	}

	for _, pair := range pairs {
		forward := Score(pair[0], pair[1])
		backward := Score(pair[1], pair[0])
		if math.Abs(forward-backward) > 1e-9 {
			t.Errorf("Score not symmetric for (%q, %q): %f vs %f", pair[0], pair[1], forward, backward)
		}
	}
}

func TestScoreBounded(t *testing.T) {
	pairs := [][2]string{
		{"a", "b"},
		{"starbucks coffee company", "sbux"},
		{"x", "xxxxxxxxxxxxxxxxxxxxxxx"},
		{"payment card pos", "atm transaction pending"},
	}

	for _, pair := range pairs {
		got := Score(pair[0], pair[1])
		if got < 0.0 || got > 1.0 {
			t.Errorf("Score(%q, %q) = %f, out of [0, 1]", pair[0], pair[1], got)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a        string
		b        string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}

	for _, tt := range tests {
		got := levenshtein([]rune(tt.a), []rune(tt.b))
		if got != tt.expected {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestSequenceRatio(t *testing.T) {
	// Identical strings match fully.
	if got := sequenceRatio("abcdef", "abcdef"); got != 1.0 {
		t.Errorf("sequenceRatio of identical strings = %f, want 1.0", got)
	}

	// No common characters.
	if got := sequenceRatio("abc", "xyz"); got != 0.0 {
		t.Errorf("sequenceRatio of disjoint strings = %f, want 0.0", got)
	}

	// "abcd" vs "bcde": longest common substring "bcd" (3), total 8 -> 0.75.
	if got := sequenceRatio("abcd", "bcde"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("sequenceRatio(abcd, bcde) = %f, want 0.75", got)
	}
}

func TestTokenJaccard(t *testing.T) {
	// Stop words removed before comparison: both reduce to {starbucks}.
	if got := tokenJaccard("payment starbucks", "card starbucks"); got != 1.0 {
		t.Errorf("tokenJaccard with boilerplate = %f, want 1.0", got)
	}

	// Both strings are pure boilerplate.
	if got := tokenJaccard("payment card", "pos atm"); got != 1.0 {
		t.Errorf("tokenJaccard of all-stopword strings = %f, want 1.0", got)
	}

	// Only one side is pure boilerplate.
	if got := tokenJaccard("payment card", "starbucks"); got != 0.0 {
		t.Errorf("tokenJaccard of one boilerplate string = %f, want 0.0", got)
	}

	// Partial overlap: {whole, foods} vs {whole, paycheck} -> 1/3.
	if got := tokenJaccard("whole foods", "whole paycheck"); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("tokenJaccard(whole foods, whole paycheck) = %f, want 1/3", got)
	}
}
