package generation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/pkg/logger"
)

const (
	DefaultLowTemperature  float32 = 0.3
	DefaultHighTemperature float32 = 0.7
	DefaultSamples                 = 3
)

// CandidateGenerator produces one candidate per call.
type CandidateGenerator interface {
	Generate(ctx context.Context, req Request, temperature float32) (Candidate, error)
}

// Sampler draws several candidates for the same request. Calls are strictly
// sequential; pacing between them is left to the completion client's rate
// governor.
type Sampler struct {
	generator    CandidateGenerator
	temperatures []float32
}

// Temperatures alternates low and high starting with low: 3 samples give
// low, high, low.
func Temperatures(low, high float32, samples int) []float32 {
	temps := make([]float32, samples)
	for i := range temps {
		if i%2 == 0 {
			temps[i] = low
		} else {
			temps[i] = high
		}
	}
	return temps
}

func NewSampler(generator CandidateGenerator, temperatures []float32) *Sampler {
	if len(temperatures) == 0 {
		temperatures = Temperatures(DefaultLowTemperature, DefaultHighTemperature, DefaultSamples)
	}
	return &Sampler{generator: generator, temperatures: temperatures}
}

// Sample returns the successful candidates in temperature order. Failed samples
// are logged and skipped. With no successful sample the error wraps
// ErrNoCandidates together with every sample error. ErrContextTooLarge stops
// sampling immediately since no temperature can fix it.
func (s *Sampler) Sample(ctx context.Context, req Request) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(s.temperatures))
	var errs []error

	for i, temperature := range s.temperatures {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		c, err := s.generator.Generate(ctx, req, temperature)
		if err != nil {
			if errors.Is(err, ErrContextTooLarge) {
				return nil, err
			}
			metrics.GenerationSamples.WithLabelValues("failed").Inc()
			logger.Warn("Answer sample failed",
				zap.Int("sample", i+1),
				zap.Float32("temperature", temperature),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("sample %d at temperature %.1f: %w", i+1, temperature, err))
			continue
		}

		metrics.GenerationSamples.WithLabelValues("ok").Inc()
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, errors.Join(append([]error{ErrNoCandidates}, errs...)...)
	}

	logger.Debug("Answer samples collected",
		zap.Int("succeeded", len(candidates)),
		zap.Int("requested", len(s.temperatures)),
	)
	return candidates, nil
}
