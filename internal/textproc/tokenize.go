package textproc

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	nonWordPattern  = regexp.MustCompile(`\W+`)
	sentencePattern = regexp.MustCompile(`[.!?]+\s+|[.!?]+$|\n+`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// MinTokenLength is the shortest token kept by Tokenize.
const MinTokenLength = 3

// Tokenize lower-cases text, splits it on non-word runs and drops tokens
// shorter than MinTokenLength. Tokens are not stemmed.
func Tokenize(text string) []string {
	parts := nonWordPattern.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) >= MinTokenLength {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// StemmedTokens is Tokenize followed by one Stem per token.
func StemmedTokens(text string) []string {
	tokens := Tokenize(text)
	for i, t := range tokens {
		tokens[i] = Stem(t)
	}
	return tokens
}

// SplitSentences breaks text on terminal punctuation and line breaks and keeps
// sentences longer than minLen characters, trimmed, in document order.
func SplitSentences(text string, minLen int) []string {
	raw := sentencePattern.Split(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = CollapseSpace(s)
		if utf8.RuneCountInString(s) > minLen {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// CollapseSpace replaces whitespace runs with a single space and trims the ends.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// Truncate cuts s so that it, ellipsis included, is at most limit characters.
func Truncate(s string, limit int, ellipsis string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(ellipsis)
	if keep <= 0 {
		return string([]rune(ellipsis)[:max(limit, 0)])
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:keep]), " ") + ellipsis
}
