package relevance

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// SymptomPattern is one symptom template. A query and a document that both
// match the same template are considered to describe the same problem.
type SymptomPattern struct {
	Name       string  `yaml:"name"`
	Pattern    string  `yaml:"pattern"`
	Confidence float64 `yaml:"confidence"`
}

// Vocabulary holds the data tables behind the domain signals. New terms,
// symptoms and citation phrases are added here, not in code.
type Vocabulary struct {
	AutomotiveTerms []string         `yaml:"automotive_terms"`
	SymptomPatterns []SymptomPattern `yaml:"symptom_patterns"`
	CitationPhrases []string         `yaml:"citation_phrases"`
}

// DefaultVocabulary returns the embedded tables.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabularyYAML)
}

// ParseVocabulary decodes a YAML vocabulary and validates it.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// LoadVocabulary reads a vocabulary file. Sections the file leaves empty keep
// the embedded defaults. An empty path returns the defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	defaults, err := DefaultVocabulary()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	var custom Vocabulary
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary %s: %w", path, err)
	}

	if len(custom.AutomotiveTerms) == 0 {
		custom.AutomotiveTerms = defaults.AutomotiveTerms
	}
	if len(custom.SymptomPatterns) == 0 {
		custom.SymptomPatterns = defaults.SymptomPatterns
	}
	if len(custom.CitationPhrases) == 0 {
		custom.CitationPhrases = defaults.CitationPhrases
	}

	if err := custom.Validate(); err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return &custom, nil
}

func (v *Vocabulary) Validate() error {
	if len(v.AutomotiveTerms) == 0 {
		return fmt.Errorf("vocabulary has no automotive terms")
	}
	for _, p := range v.SymptomPatterns {
		if p.Name == "" {
			return fmt.Errorf("symptom pattern %q has no name", p.Pattern)
		}
		if p.Confidence <= 0 || p.Confidence > 1 {
			return fmt.Errorf("symptom pattern %q: confidence %.2f outside (0, 1]", p.Name, p.Confidence)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("symptom pattern %q: %w", p.Name, err)
		}
	}
	return nil
}

type domainTerm struct {
	term    string
	pattern *regexp.Regexp
}

type compiledSymptom struct {
	SymptomPattern
	re *regexp.Regexp
}

type compiledVocabulary struct {
	terms    []domainTerm
	symptoms []compiledSymptom
}

func compileVocabulary(v *Vocabulary) (*compiledVocabulary, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	cv := &compiledVocabulary{}
	seen := make(map[string]bool, len(v.AutomotiveTerms))
	for _, raw := range v.AutomotiveTerms {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		cv.terms = append(cv.terms, domainTerm{
			term:    term,
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `(?:s|es|ed|ing)?\b`),
		})
	}

	for _, p := range v.SymptomPatterns {
		re, err := regexp.Compile(`(?i)` + p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("symptom pattern %q: %w", p.Name, err)
		}
		cv.symptoms = append(cv.symptoms, compiledSymptom{SymptomPattern: p, re: re})
	}
	return cv, nil
}

// termsIn returns the domain terms present in lowerText, in vocabulary order.
// lowerText must already be lower-cased.
func (cv *compiledVocabulary) termsIn(lowerText string) []string {
	var found []string
	for _, dt := range cv.terms {
		if !strings.Contains(lowerText, dt.term) {
			continue
		}
		if dt.pattern.MatchString(lowerText) {
			found = append(found, dt.term)
		}
	}
	return found
}

// symptomsIn returns the indexes of the symptom templates matching text.
func (cv *compiledVocabulary) symptomsIn(text string) []int {
	var matched []int
	for i, s := range cv.symptoms {
		if s.re.MatchString(text) {
			matched = append(matched, i)
		}
	}
	return matched
}
