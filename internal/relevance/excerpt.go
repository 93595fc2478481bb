package relevance

import (
	"sort"
	"strings"

	"github.com/greasemonkey/backend/internal/textproc"
)

const (
	minSentenceChars = 10
	excerptSentences = 3
	leadExcerptChars = 300
	domainTermWeight = 0.5
	excerptEllipsis  = "..."
	excerptSeparator = ". "
)

// excerpt picks the sentences that mention the query most, keeping at most
// three, highest scoring first. Documents with no matching sentence get their
// opening instead.
func (e *Engine) excerpt(q *analyzedQuery, text string) string {
	type scoredSentence struct {
		text  string
		score float64
	}

	var scored []scoredSentence
	for _, s := range textproc.SplitSentences(text, minSentenceChars) {
		lower := strings.ToLower(s)
		var score float64
		for _, t := range q.terms {
			score += float64(strings.Count(lower, t))
		}
		score += domainTermWeight * float64(len(e.vocab.termsIn(lower)))
		if score > 0 {
			scored = append(scored, scoredSentence{text: s, score: score})
		}
	}

	if len(scored) == 0 {
		return leadExcerpt(text)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > excerptSentences {
		scored = scored[:excerptSentences]
	}

	parts := make([]string, len(scored))
	for i, s := range scored {
		parts[i] = s.text
	}
	return textproc.Truncate(strings.Join(parts, excerptSeparator), e.maxExcerptChars, excerptEllipsis)
}

func leadExcerpt(text string) string {
	return textproc.Truncate(textproc.CollapseSpace(text), leadExcerptChars, excerptEllipsis)
}
