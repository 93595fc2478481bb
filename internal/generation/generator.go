// Package generation turns a question and its document context into answer
// candidates from the completion API.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/llm"
	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/internal/relevance"
	"github.com/greasemonkey/backend/pkg/logger"
)

var (
	ErrContextTooLarge = errors.New("prompt exceeds the token ceiling")
	ErrEmptyAnswer     = errors.New("completion returned an empty answer")
	ErrNoCandidates    = errors.New("no answer candidates were generated")
)

const (
	citedConfidence     = 0.9
	uncitedConfidence   = 0.4
	noContextConfidence = 0.6
)

type Request struct {
	Query   string
	Context string
	Vehicle *relevance.VehicleContext
}

// Candidate is one sampled answer.
type Candidate struct {
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
	CitedSources bool    `json:"cited_sources"`
	Temperature  float32 `json:"temperature"`
}

type Generator struct {
	completer llm.Completer
	counter   llm.TokenCounter
	detector  CitationDetector
	budget    Budget
}

// NewGenerator falls back to the length estimator and the default citation
// phrases when counter or detector is nil.
func NewGenerator(completer llm.Completer, counter llm.TokenCounter, detector CitationDetector, budget Budget) *Generator {
	if counter == nil {
		counter = llm.EstimateCounter{}
	}
	if detector == nil {
		detector = NewPhraseDetector(nil)
	}
	return &Generator{
		completer: completer,
		counter:   counter,
		detector:  detector,
		budget:    budget,
	}
}

// Generate issues one completion at the given temperature.
func (g *Generator) Generate(ctx context.Context, req Request, temperature float32) (Candidate, error) {
	docContext := strings.TrimSpace(req.Context)
	hadContext := docContext != ""

	if hadContext {
		var truncated bool
		docContext, truncated = Truncate(docContext, g.budget.ContextCap(), g.counter)
		if truncated {
			metrics.ContextTruncations.Inc()
			logger.Debug("Context truncated to token budget", zap.Int("context_cap", g.budget.ContextCap()))
		}
	}

	userPrompt := buildUserPrompt(req.Query, docContext, req.Vehicle)
	if tokens := g.counter.Count(systemPrompt) + g.counter.Count(userPrompt); tokens > g.budget.Ceiling() {
		return Candidate{}, fmt.Errorf("%w: %d tokens, ceiling %d", ErrContextTooLarge, tokens, g.budget.Ceiling())
	}

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  temperature,
		MaxTokens:    g.budget.Response,
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("completion failed: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return Candidate{}, ErrEmptyAnswer
	}

	cited := g.detector.Cites(text)
	return Candidate{
		Text:         text,
		Confidence:   confidenceFor(hadContext, cited),
		CitedSources: cited,
		Temperature:  temperature,
	}, nil
}

// confidenceFor does not penalise an answer for not citing documents it was
// never given.
func confidenceFor(hadContext, cited bool) float64 {
	switch {
	case !hadContext:
		return noContextConfidence
	case cited:
		return citedConfidence
	default:
		return uncitedConfidence
	}
}

const systemPrompt = `You are an experienced automotive technician helping a vehicle owner diagnose and repair their car.

Your answers must:
1. Be based on the provided repair documentation whenever it covers the question
2. Say where information comes from, e.g. "according to the service manual"
3. Give step-by-step procedures, torque values and fluid specifications when the documentation has them
4. Call out safety precautions (jack stands, hot coolant, battery disconnection)
5. Recommend a professional inspection when the problem cannot be safely diagnosed at home

Be concise and practical.`

func buildUserPrompt(query, docContext string, vehicle *relevance.VehicleContext) string {
	var b strings.Builder

	if !vehicle.IsZero() {
		b.WriteString("Vehicle: ")
		b.WriteString(vehicle.String())
		b.WriteString("\n\n")
	}

	if docContext != "" {
		b.WriteString("Repair documentation:\n")
		b.WriteString(docContext)
		b.WriteString("\n\n")
	} else {
		b.WriteString("No repair documentation matched this question. Answer from general automotive knowledge and say so.\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}
