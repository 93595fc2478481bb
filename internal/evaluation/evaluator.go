// Package evaluation picks the final answer out of several sampled candidates
// without calling the model again.
package evaluation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/generation"
	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/pkg/logger"
)

const (
	IndicatorCitedDocuments      = "cited_documents"
	IndicatorConsistentResponses = "consistent_responses"
	IndicatorHighConfidence      = "high_confidence"
)

const (
	citationBonus         = 0.3
	lengthBonus           = 0.1
	substantialAnswerLen  = 100
	minConsistency        = 0.1
	consistencyThreshold  = 0.8
	highConfidenceMinimum = 0.8
)

// EvaluatedAnswer is the selected candidate plus what the evaluator learned
// from comparing all of them.
type EvaluatedAnswer struct {
	Answer             string   `json:"answer"`
	Confidence         float64  `json:"confidence"`
	ConsistencyScore   float64  `json:"consistency_score"`
	AccuracyIndicators []string `json:"accuracy_indicators"`
	UsedDocuments      bool     `json:"used_documents"`
	Notes              string   `json:"notes"`
	SampleCount        int      `json:"sample_count"`
}

type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate scores each candidate as confidence, plus a bonus when it cites
// documents that were actually supplied, plus a small bonus for a substantial
// answer. The first highest score wins. hadContext reports whether the
// candidates were generated with document context.
func (e *Evaluator) Evaluate(candidates []generation.Candidate, hadContext bool) (*EvaluatedAnswer, error) {
	if len(candidates) == 0 {
		return nil, generation.ErrNoCandidates
	}

	best, bestScore := 0, math.Inf(-1)
	var confidenceSum float64
	for i, c := range candidates {
		confidenceSum += c.Confidence
		if s := candidateScore(c, hadContext); s > bestScore {
			best, bestScore = i, s
		}
	}

	winner := candidates[best]
	consistency := Consistency(candidates)
	meanConfidence := confidenceSum / float64(len(candidates))
	usedDocuments := hadContext && winner.CitedSources

	indicators := make([]string, 0, 3)
	if usedDocuments {
		indicators = append(indicators, IndicatorCitedDocuments)
	}
	if consistency > consistencyThreshold {
		indicators = append(indicators, IndicatorConsistentResponses)
	}
	if meanConfidence > highConfidenceMinimum {
		indicators = append(indicators, IndicatorHighConfidence)
	}

	answer := &EvaluatedAnswer{
		Answer:             winner.Text,
		Confidence:         winner.Confidence,
		ConsistencyScore:   consistency,
		AccuracyIndicators: indicators,
		UsedDocuments:      usedDocuments,
		Notes:              notes(best, len(candidates), winner, consistency, hadContext),
		SampleCount:        len(candidates),
	}

	metrics.ConfidenceScore.Observe(answer.Confidence)
	metrics.ConsistencyScore.Observe(answer.ConsistencyScore)

	logger.Info("Answer selected",
		zap.Int("selected", best+1),
		zap.Int("samples", len(candidates)),
		zap.Float64("confidence", answer.Confidence),
		zap.Float64("consistency", consistency),
		zap.Strings("indicators", indicators),
	)

	return answer, nil
}

func candidateScore(c generation.Candidate, hadContext bool) float64 {
	score := c.Confidence
	if hadContext && c.CitedSources {
		score += citationBonus
	}
	if utf8.RuneCountInString(c.Text) > substantialAnswerLen {
		score += lengthBonus
	}
	return score
}

// Consistency is 1 minus the mean absolute deviation of the answer lengths
// over their mean, floored at 0.1. It only measures how similar the answers
// are in length, not whether they agree.
func Consistency(candidates []generation.Candidate) float64 {
	if len(candidates) == 0 {
		return minConsistency
	}

	lengths := make([]float64, len(candidates))
	var sum float64
	for i, c := range candidates {
		lengths[i] = float64(utf8.RuneCountInString(c.Text))
		sum += lengths[i]
	}
	mean := sum / float64(len(lengths))
	if mean == 0 {
		return minConsistency
	}

	var deviation float64
	for _, l := range lengths {
		deviation += math.Abs(l - mean)
	}
	mad := deviation / float64(len(lengths))

	return math.Max(minConsistency, 1-mad/mean)
}

func notes(best, total int, winner generation.Candidate, consistency float64, hadContext bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Selected sample %d of %d (temperature %.1f).", best+1, total, winner.Temperature)
	switch {
	case !hadContext:
		b.WriteString(" No matching documents; answer is from general knowledge.")
	case winner.CitedSources:
		b.WriteString(" Answer references the supplied documents.")
	default:
		b.WriteString(" Answer does not reference the supplied documents.")
	}
	if consistency <= consistencyThreshold && total > 1 {
		b.WriteString(" Samples varied noticeably; verify before relying on it.")
	}
	return b.String()
}
