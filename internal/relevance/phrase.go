package relevance

import (
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
)

// PhraseExtractor pulls a short problem description ("making a grinding
// noise") out of free text. An empty string means nothing usable was found.
type PhraseExtractor interface {
	IssuePhrase(text string) string
}

const (
	minPhraseWords = 2
	maxPhraseWords = 5
)

var auxiliaryVerbs = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
	"am": true, "do": true, "does": true, "did": true, "has": true, "have": true, "had": true,
	"can": true, "could": true, "will": true, "would": true, "should": true, "may": true,
	"might": true, "must": true, "get": true, "gets": true, "got": true,
}

// proseModel builds the perceptron tagger once; tagging only reads it.
var proseModel = sync.OnceValue(func() *prose.Model {
	return prose.ModelFromData("en-v2.0.0")
})

// ProseExtractor tags the text with prose and chunks the first verb phrase.
type ProseExtractor struct{}

func (ProseExtractor) IssuePhrase(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
		prose.UsingModel(proseModel()),
	)
	if err != nil {
		return ""
	}
	return chunkIssuePhrase(doc.Tokens())
}

// chunkIssuePhrase finds the first non-auxiliary verb followed by modifiers
// and nouns, e.g. VBG DT VBG NN. Phrases under two content words are skipped
// and the scan moves on to the next verb.
func chunkIssuePhrase(tokens []prose.Token) string {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok.Tag, "VB") || auxiliaryVerbs[strings.ToLower(tok.Text)] {
			continue
		}

		chunk := []prose.Token{tok}
		content := 1
		for j := i + 1; j < len(tokens) && len(chunk) < maxPhraseWords; j++ {
			next := tokens[j]
			if isPhraseFiller(next.Tag) {
				chunk = append(chunk, next)
				continue
			}
			if !isPhraseContent(next.Tag) {
				break
			}
			chunk = append(chunk, next)
			content++
		}

		for len(chunk) > 1 && isPhraseFiller(chunk[len(chunk)-1].Tag) {
			chunk = chunk[:len(chunk)-1]
		}
		if content < minPhraseWords {
			continue
		}

		words := make([]string, len(chunk))
		for k, t := range chunk {
			words[k] = t.Text
		}
		return strings.ToLower(strings.Join(words, " "))
	}
	return ""
}

func isPhraseContent(tag string) bool {
	switch {
	case tag == "RB", tag == "RBR", tag == "RP", tag == "VBG", tag == "VBN":
		return true
	case strings.HasPrefix(tag, "JJ"), strings.HasPrefix(tag, "NN"):
		return true
	}
	return false
}

func isPhraseFiller(tag string) bool {
	return tag == "DT" || tag == "PRP$"
}
