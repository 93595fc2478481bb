package relevance

import (
	"math"

	"github.com/greasemonkey/backend/internal/textproc"
)

// Index is a TF-IDF table over the documents of a single search call. It is
// built fresh every call and never shared, so it can't go stale.
type Index struct {
	docTerms []map[string]int
	docFreq  map[string]int
}

// NewIndex builds an index over texts; document i of the index is texts[i].
func NewIndex(texts []string) *Index {
	ix := &Index{
		docTerms: make([]map[string]int, 0, len(texts)),
		docFreq:  make(map[string]int),
	}
	for _, t := range texts {
		ix.AddDocument(t)
	}
	return ix
}

// AddDocument tokenizes and stems text and returns its document index.
func (ix *Index) AddDocument(text string) int {
	counts := make(map[string]int)
	for _, stem := range textproc.StemmedTokens(text) {
		counts[stem]++
	}
	for stem := range counts {
		ix.docFreq[stem]++
	}
	ix.docTerms = append(ix.docTerms, counts)
	return len(ix.docTerms) - 1
}

func (ix *Index) Len() int {
	return len(ix.docTerms)
}

// TermFrequency is the raw count of a stemmed term in one document.
func (ix *Index) TermFrequency(stem string, doc int) int {
	if doc < 0 || doc >= len(ix.docTerms) {
		return 0
	}
	return ix.docTerms[doc][stem]
}

// DocumentFrequency is the number of documents containing a stemmed term.
func (ix *Index) DocumentFrequency(stem string) int {
	return ix.docFreq[stem]
}

// Score returns tf * ln(N/df) for an already stemmed term, or 0 when the term
// does not occur in the document. A term present in every document, including
// the single document of a one-document corpus, scores 0.
func (ix *Index) Score(stem string, doc int) float64 {
	tf := ix.TermFrequency(stem, doc)
	if tf == 0 {
		return 0
	}
	df := ix.docFreq[stem]
	return float64(tf) * math.Log(float64(len(ix.docTerms))/float64(df))
}
