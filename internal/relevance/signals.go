package relevance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/greasemonkey/backend/internal/textproc"
)

const (
	issuePhraseConfidence = 0.8
	tfidfTermFloor        = 0.1

	vehicleMakeScore  = 0.4
	vehicleModelScore = 0.4
	vehicleYearScore  = 0.2
)

// analyzedQuery holds everything about the query that does not depend on the
// document, computed once per search.
type analyzedQuery struct {
	text        string
	lower       string
	vehicleText string
	terms       []string
	stems       []string
	domainTerms []string
	symptoms    []int
	issuePhrase string
}

type scoringContext struct {
	query      *analyzedQuery
	doc        *Document
	docIndex   int
	lowerText  string
	lowerTitle string
	index      *Index
	vocab      *compiledVocabulary
}

// signal is one bounded sub-score in [0, 1] with its human readable reasons.
type signal interface {
	Name() string
	Score(sc *scoringContext) (float64, []string)
}

func analyzeQuery(q Query, vocab *compiledVocabulary, extractor PhraseExtractor) *analyzedQuery {
	text := strings.TrimSpace(q.Text)
	lower := strings.ToLower(text)

	vehicleText := lower
	if !q.Vehicle.IsZero() {
		parts := []string{lower, strings.ToLower(q.Vehicle.Make), strings.ToLower(q.Vehicle.Model)}
		if q.Vehicle.Year > 0 {
			parts = append(parts, strconv.Itoa(q.Vehicle.Year))
		}
		vehicleText = strings.Join(parts, " ")
	}

	terms := uniqueStrings(textproc.Tokenize(text))
	stems := make([]string, 0, len(terms))
	for _, t := range terms {
		stems = append(stems, textproc.Stem(t))
	}

	aq := &analyzedQuery{
		text:        text,
		lower:       lower,
		vehicleText: vehicleText,
		terms:       terms,
		stems:       uniqueStrings(stems),
		domainTerms: vocab.termsIn(lower),
		symptoms:    vocab.symptomsIn(text),
	}
	if extractor != nil {
		aq.issuePhrase = strings.ToLower(strings.TrimSpace(extractor.IssuePhrase(text)))
	}
	return aq
}

// automotiveSignal is the fraction of the query's domain terms that also
// appear in the document.
type automotiveSignal struct{}

func (automotiveSignal) Name() string { return "automotive" }

func (automotiveSignal) Score(sc *scoringContext) (float64, []string) {
	if len(sc.query.domainTerms) == 0 {
		return 0, nil
	}

	inDoc := make(map[string]bool)
	for _, t := range sc.vocab.termsIn(sc.lowerTitle + "\n" + sc.lowerText) {
		inDoc[t] = true
	}

	var matched []string
	for _, t := range sc.query.domainTerms {
		if inDoc[t] {
			matched = append(matched, t)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	score := float64(len(matched)) / float64(len(sc.query.domainTerms))
	return score, []string{"automotive terms: " + strings.Join(matched, ", ")}
}

// symptomSignal matches symptom templates shared by query and document, then
// falls back to the verb phrase extracted from the query.
type symptomSignal struct{}

func (symptomSignal) Name() string { return "symptom" }

func (symptomSignal) Score(sc *scoringContext) (float64, []string) {
	var (
		score   float64
		reasons []string
	)

	for _, i := range sc.query.symptoms {
		s := sc.vocab.symptoms[i]
		if !s.re.MatchString(sc.lowerText) {
			continue
		}
		reasons = append(reasons, "symptom: "+s.Name)
		if s.Confidence > score {
			score = s.Confidence
		}
	}

	phrase := sc.query.issuePhrase
	if score < issuePhraseConfidence && phrase != "" && strings.Contains(sc.lowerText, phrase) {
		score = issuePhraseConfidence
		reasons = append(reasons, fmt.Sprintf("issue description: %q", phrase))
	}

	return score, reasons
}

// tfidfSignal averages the TF-IDF scores of the query stems above a small
// floor over the number of query stems.
type tfidfSignal struct{}

func (tfidfSignal) Name() string { return "tfidf" }

func (tfidfSignal) Score(sc *scoringContext) (float64, []string) {
	if len(sc.query.stems) == 0 {
		return 0, nil
	}

	var sum float64
	for _, stem := range sc.query.stems {
		if s := sc.index.Score(stem, sc.docIndex); s > tfidfTermFloor {
			sum += s
		}
	}
	if sum == 0 {
		return 0, nil
	}

	score := clamp(sum / float64(len(sc.query.stems)))
	return score, []string{fmt.Sprintf("keyword relevance %.2f", score)}
}

// vehicleSignal checks the document's vehicle fields against the query text
// together with the caller's vehicle context.
type vehicleSignal struct{}

func (vehicleSignal) Name() string { return "vehicle" }

func (vehicleSignal) Score(sc *scoringContext) (float64, []string) {
	var (
		score   float64
		reasons []string
	)
	text := sc.query.vehicleText

	if m := strings.ToLower(strings.TrimSpace(sc.doc.VehicleMake)); m != "" && strings.Contains(text, m) {
		score += vehicleMakeScore
		reasons = append(reasons, "vehicle make: "+sc.doc.VehicleMake)
	}
	if m := strings.ToLower(strings.TrimSpace(sc.doc.VehicleModel)); m != "" && strings.Contains(text, m) {
		score += vehicleModelScore
		reasons = append(reasons, "vehicle model: "+sc.doc.VehicleModel)
	}
	if sc.doc.VehicleYear > 0 && strings.Contains(text, strconv.Itoa(sc.doc.VehicleYear)) {
		score += vehicleYearScore
		reasons = append(reasons, "vehicle year: "+strconv.Itoa(sc.doc.VehicleYear))
	}

	return clamp(score), reasons
}

// filenameSignal scores the document title: the whole query inside the title
// is a full match, otherwise the fraction of query terms it contains.
type filenameSignal struct{}

func (filenameSignal) Name() string { return "filename" }

func (filenameSignal) Score(sc *scoringContext) (float64, []string) {
	if sc.lowerTitle == "" {
		return 0, nil
	}
	if strings.Contains(sc.lowerTitle, sc.query.lower) {
		return 1, []string{"title matches query"}
	}
	if len(sc.query.terms) == 0 {
		return 0, nil
	}

	matched := 0
	for _, t := range sc.query.terms {
		if strings.Contains(sc.lowerTitle, t) {
			matched++
		}
	}
	if matched == 0 {
		return 0, nil
	}

	score := float64(matched) / float64(len(sc.query.terms))
	return score, []string{fmt.Sprintf("title matches %d/%d query terms", matched, len(sc.query.terms))}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
