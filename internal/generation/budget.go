package generation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/greasemonkey/backend/internal/llm"
)

// TruncationMarker ends every context block that was cut to fit the budget.
const TruncationMarker = "[truncated]"

const (
	markerSeparator  = "\n"
	sentenceFraction = 0.8
)

// Budget splits the model's token window between the prompt parts. Whatever is
// left after the reservations caps the document context.
type Budget struct {
	Total    int
	System   int
	Query    int
	Vehicle  int
	Response int
	Overhead int
}

func DefaultBudget() Budget {
	return Budget{
		Total:    10000,
		System:   1500,
		Query:    500,
		Vehicle:  200,
		Response: 2000,
		Overhead: 500,
	}
}

func (b Budget) Reserved() int {
	return b.System + b.Query + b.Vehicle + b.Response + b.Overhead
}

func (b Budget) ContextCap() int {
	return b.Total - b.Reserved()
}

// Ceiling is the most the assembled prompt may use while leaving room for the
// response.
func (b Budget) Ceiling() int {
	return b.Total - b.Response
}

func (b Budget) Validate() error {
	for name, v := range map[string]int{
		"total": b.Total, "system": b.System, "query": b.Query,
		"vehicle": b.Vehicle, "response": b.Response, "overhead": b.Overhead,
	} {
		if v < 0 {
			return fmt.Errorf("budget %s must not be negative", name)
		}
	}
	if b.ContextCap() <= 0 {
		return fmt.Errorf("budget leaves no room for context: total %d, reserved %d", b.Total, b.Reserved())
	}
	return nil
}

// Truncate cuts text to at most maxTokens tokens, marker included. It keeps
// the longest prefix that fits, pulled back to a sentence end when one lies in
// the last fifth of that prefix, and ends the result with TruncationMarker
// exactly once. Text that already fits is returned unchanged with false.
func Truncate(text string, maxTokens int, counter llm.TokenCounter) (string, bool) {
	if counter.Count(text) <= maxTokens {
		return text, false
	}

	limit := maxTokens - counter.Count(markerSeparator+TruncationMarker)
	if limit <= 0 {
		return TruncationMarker, true
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.Count(string(runes[:mid])) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	cut := lo
	minCut := int(float64(lo) * sentenceFraction)
	for i := lo - 1; i >= 0 && i+1 >= minCut; i-- {
		if isSentenceEnd(runes, i) {
			cut = i + 1
			break
		}
	}

	// Removing one marker can join its neighbours into another.
	prefix := string(runes[:cut])
	for strings.Contains(prefix, TruncationMarker) {
		prefix = strings.ReplaceAll(prefix, TruncationMarker, "")
	}
	prefix = strings.TrimRightFunc(prefix, unicode.IsSpace)
	if prefix == "" {
		return TruncationMarker, true
	}
	return prefix + markerSeparator + TruncationMarker, true
}

func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
		return i+1 == len(runes) || unicode.IsSpace(runes[i+1])
	}
	return false
}
