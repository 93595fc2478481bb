package relevance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/greasemonkey/backend/internal/textproc"
)

const (
	fallbackTitleScore = 0.9
	fallbackTextScore  = 0.7
	fallbackTermsScale = 0.6
	fallbackWindow     = 300
)

// substringSearch is the plain matcher used when domain scoring fails. It
// touches nothing but the query and the documents so it can't fail the same
// way.
func (e *Engine) substringSearch(q Query, docs []Document) []SearchResult {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	terms := uniqueStrings(textproc.Tokenize(needle))

	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		title := strings.ToLower(doc.Title)
		text := strings.ToLower(doc.FullText)

		var (
			score  float64
			reason string
			anchor string
		)
		switch {
		case title != "" && strings.Contains(title, needle):
			score, reason, anchor = fallbackTitleScore, "title contains query", needle
		case strings.Contains(text, needle):
			score, reason, anchor = fallbackTextScore, "text contains query", needle
		case len(terms) > 0:
			found := 0
			for _, t := range terms {
				if strings.Contains(title, t) || strings.Contains(text, t) {
					if anchor == "" && strings.Contains(text, t) {
						anchor = t
					}
					found++
				}
			}
			score = fallbackTermsScale * float64(found) / float64(len(terms))
			reason = fmt.Sprintf("%d/%d query terms present", found, len(terms))
		}

		if score < e.minScore {
			continue
		}
		results = append(results, SearchResult{
			Document:       doc,
			Excerpt:        windowAround(doc.FullText, anchor),
			RelevanceScore: score,
			MatchReasons:   []string{"fallback: " + reason},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results
}

// windowAround returns roughly fallbackWindow characters of text starting a
// little before the first occurrence of anchor.
func windowAround(text, anchor string) string {
	if anchor == "" {
		return leadExcerpt(text)
	}
	lower := strings.ToLower(text)
	pos := strings.Index(lower, anchor)
	if pos < 0 || len(lower) != len(text) {
		return leadExcerpt(text)
	}

	start := pos - fallbackWindow/4
	if start < 0 {
		start = 0
	}
	for start > 0 && !isBoundary(text[start-1]) {
		start--
	}
	return leadExcerpt(text[start:])
}

func isBoundary(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '.'
}
