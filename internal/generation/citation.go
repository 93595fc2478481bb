package generation

import "strings"

// CitationDetector decides whether an answer leans on the supplied documents.
type CitationDetector interface {
	Cites(text string) bool
}

var DefaultCitationPhrases = []string{
	"according to",
	"manual",
	"specification",
	"document",
	"provided",
}

// PhraseDetector looks for citation-style wording, case-insensitively.
type PhraseDetector struct {
	phrases []string
}

func NewPhraseDetector(phrases []string) *PhraseDetector {
	if len(phrases) == 0 {
		phrases = DefaultCitationPhrases
	}
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &PhraseDetector{phrases: lowered}
}

func (d *PhraseDetector) Cites(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
