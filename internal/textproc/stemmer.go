// Package textproc normalises repair-document text into the term stream used
// for relevance scoring.
package textproc

import (
	"strings"
	"unicode/utf8"
)

type suffixRule struct {
	suffix      string
	replacement string
}

// derivationalRules is checked top to bottom and the first hit wins, so longer
// suffixes that share an ending with shorter ones must come first.
var derivationalRules = []suffixRule{
	{"ization", "ize"},
	{"ational", "ate"},
	{"iveness", "ive"},
	{"fulness", "ful"},
	{"ousness", "ous"},
	{"tional", "tion"},
	{"biliti", "ble"},
	{"ation", "ate"},
	{"alism", "al"},
	{"aliti", "al"},
	{"iviti", "ive"},
	{"ousli", "ous"},
	{"entli", "ent"},
	{"ator", "ate"},
	{"enci", "ence"},
	{"anci", "ance"},
	{"izer", "ize"},
	{"abli", "able"},
	{"alli", "al"},
	{"eli", "e"},
}

// Stem reduces word to an approximate root so that grammatical variants such as
// "calipers" and "caliper" score as the same term.
//
// Stem is a single pass of three steps: plural and possessive stripping, a
// simplified past tense/participle step, then at most one derivational suffix
// substitution. It is deterministic but not idempotent: Stem(Stem(w)) may
// differ from Stem(w). Callers stem each token exactly once.
func Stem(word string) string {
	w := strings.ToLower(word)
	if utf8.RuneCountInString(w) <= 2 {
		return w
	}

	w = stripPlural(w)
	w = stripTense(w)
	return substituteSuffix(w)
}

func stripPlural(w string) string {
	w = strings.TrimSuffix(w, "'s")
	w = strings.TrimSuffix(w, "'")

	switch {
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s") && len(w) > 1:
		return w[:len(w)-1]
	}
	return w
}

func stripTense(w string) string {
	switch {
	case strings.HasSuffix(w, "eed"):
		return w[:len(w)-1]
	case strings.HasSuffix(w, "ed"):
		if stem := w[:len(w)-2]; len(stem) > 2 {
			return stem
		}
	case strings.HasSuffix(w, "ing"):
		if stem := w[:len(w)-3]; len(stem) > 3 {
			return stem
		}
	}
	return w
}

func substituteSuffix(w string) string {
	for _, rule := range derivationalRules {
		if strings.HasSuffix(w, rule.suffix) && len(w) > len(rule.suffix) {
			return w[:len(w)-len(rule.suffix)] + rule.replacement
		}
	}
	return w
}
