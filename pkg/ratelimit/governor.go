// Package ratelimit paces outbound calls to a provider with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	// RequestsPerMinute is the provider's published request limit.
	RequestsPerMinute int
	// Burst is the bucket capacity. 1 spaces every call evenly across the minute.
	Burst  int
	Logger *zap.Logger
}

// Governor hands out permits at RequestsPerMinute. Callers block in Wait until
// a permit is available, so sequential callers end up spaced by the refill
// interval instead of by hard-coded sleeps.
type Governor struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	interval time.Duration
	last     time.Time
	waiting  int
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg Config) *Governor {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Governor{
		capacity: float64(cfg.Burst),
		tokens:   float64(cfg.Burst),
		interval: time.Minute / time.Duration(cfg.RequestsPerMinute),
		last:     time.Now(),
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Wait blocks until a permit is taken or ctx is done.
func (g *Governor) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		g.refill()
		if g.tokens >= 1 {
			g.tokens--
			g.mu.Unlock()
			return nil
		}
		delay := time.Duration((1 - g.tokens) * float64(g.interval))
		g.waiting++
		g.mu.Unlock()

		g.logger.Debug("Rate governor throttling", zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			g.mu.Lock()
			g.waiting--
			g.mu.Unlock()
			return fmt.Errorf("rate governor wait: %w", ctx.Err())
		case <-timer.C:
		}

		g.mu.Lock()
		g.waiting--
		g.mu.Unlock()
	}
}

// Allow takes a permit only if one is immediately available.
func (g *Governor) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refill()
	if g.tokens >= 1 {
		g.tokens--
		return true
	}
	return false
}

// refill must be called with mu held.
func (g *Governor) refill() {
	now := g.now()
	elapsed := now.Sub(g.last)
	if elapsed <= 0 {
		return
	}
	g.tokens += float64(elapsed) / float64(g.interval)
	if g.tokens > g.capacity {
		g.tokens = g.capacity
	}
	g.last = now
}

type Status struct {
	Available float64
	Capacity  float64
	Waiting   int
	Interval  time.Duration
}

func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refill()
	return Status{
		Available: g.tokens,
		Capacity:  g.capacity,
		Waiting:   g.waiting,
		Interval:  g.interval,
	}
}

func (s Status) String() string {
	return fmt.Sprintf("governor: available=%.2f/%.0f, waiting=%d, interval=%s",
		s.Available, s.Capacity, s.Waiting, s.Interval)
}
