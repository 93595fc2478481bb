package relevance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/pkg/logger"
)

const (
	DefaultMinScore        = 0.1
	DefaultMaxExcerptChars = 500
)

type Options struct {
	Weights         Weights
	MinScore        float64
	MaxExcerptChars int
	// Extractor finds the issue phrase for the symptom signal. Nil disables
	// that path.
	Extractor PhraseExtractor
}

func DefaultOptions() Options {
	return Options{
		Weights:         DefaultWeights(),
		MinScore:        DefaultMinScore,
		MaxExcerptChars: DefaultMaxExcerptChars,
		Extractor:       ProseExtractor{},
	}
}

type weightedSignal struct {
	signal
	weight float64
}

// Engine ranks documents against a query. It holds only the compiled
// vocabulary and the weights, both read-only after NewEngine, so a single
// Engine can serve concurrent searches.
type Engine struct {
	vocab           *compiledVocabulary
	signals         []weightedSignal
	minScore        float64
	maxExcerptChars int
	extractor       PhraseExtractor
}

func NewEngine(vocab *Vocabulary, opts Options) (*Engine, error) {
	if vocab == nil {
		var err error
		if vocab, err = DefaultVocabulary(); err != nil {
			return nil, err
		}
	}
	cv, err := compileVocabulary(vocab)
	if err != nil {
		return nil, fmt.Errorf("failed to compile vocabulary: %w", err)
	}

	if opts.MinScore < 0 || opts.MinScore > 1 {
		return nil, fmt.Errorf("min score %.2f outside [0, 1]", opts.MinScore)
	}
	if opts.MaxExcerptChars <= 0 {
		opts.MaxExcerptChars = DefaultMaxExcerptChars
	}

	w := opts.Weights
	for name, v := range map[string]float64{
		"automotive": w.Automotive, "symptom": w.Symptom, "tfidf": w.TFIDF,
		"vehicle": w.Vehicle, "filename": w.Filename,
	} {
		if v < 0 {
			return nil, fmt.Errorf("weight %s must not be negative", name)
		}
	}

	return &Engine{
		vocab: cv,
		signals: []weightedSignal{
			{automotiveSignal{}, w.Automotive},
			{symptomSignal{}, w.Symptom},
			{tfidfSignal{}, w.TFIDF},
			{vehicleSignal{}, w.Vehicle},
			{filenameSignal{}, w.Filename},
		},
		minScore:        opts.MinScore,
		maxExcerptChars: opts.MaxExcerptChars,
		extractor:       opts.Extractor,
	}, nil
}

// Search returns the documents scoring at least the minimum score, best first.
// Documents with equal scores keep their input order. A failure inside domain
// scoring is recovered and the call is answered by plain substring matching.
func (e *Engine) Search(q Query, docs []Document) []SearchResult {
	if strings.TrimSpace(q.Text) == "" || len(docs) == 0 {
		return []SearchResult{}
	}

	start := time.Now()
	mode := "domain"
	defer func() {
		metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	results, err := e.rank(q, docs)
	if err != nil {
		mode = "fallback"
		metrics.SearchFallbackTotal.Inc()
		logger.Warn("Domain scoring failed, using substring search",
			zap.Error(err),
			zap.Int("documents", len(docs)),
		)
		results = e.substringSearch(q, docs)
	}

	metrics.SearchResultsCount.Observe(float64(len(results)))
	return results
}

func (e *Engine) rank(q Query, docs []Document) (results []SearchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("relevance scoring panicked: %v", r)
		}
	}()

	aq := analyzeQuery(q, e.vocab, e.extractor)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.FullText
	}
	index := NewIndex(texts)

	results = make([]SearchResult, 0, len(docs))
	for i := range docs {
		sc := &scoringContext{
			query:      aq,
			doc:        &docs[i],
			docIndex:   i,
			lowerText:  strings.ToLower(docs[i].FullText),
			lowerTitle: strings.ToLower(docs[i].Title),
			index:      index,
			vocab:      e.vocab,
		}

		score, reasons := e.score(sc)
		if score < e.minScore {
			continue
		}
		results = append(results, SearchResult{
			Document:       docs[i],
			Excerpt:        e.excerpt(aq, docs[i].FullText),
			RelevanceScore: score,
			MatchReasons:   reasons,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results, nil
}

func (e *Engine) score(sc *scoringContext) (float64, []string) {
	var (
		total   float64
		reasons []string
	)
	for _, ws := range e.signals {
		s, r := ws.Score(sc)
		if s <= 0 {
			continue
		}
		total += ws.weight * clamp(s)
		reasons = append(reasons, r...)
	}
	if reasons == nil {
		reasons = []string{}
	}
	return clamp(total), reasons
}
