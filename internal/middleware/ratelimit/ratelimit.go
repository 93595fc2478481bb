package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/pkg/ratelimit"
)

const idleTimeout = 10 * time.Minute

type client struct {
	governor *ratelimit.Governor
	lastSeen time.Time
}

// RateLimiter gives every caller its own token bucket, keyed by the
// X-User-ID header or, failing that, the remote IP.
type RateLimiter struct {
	clients           map[string]*client
	mu                sync.Mutex
	requestsPerMinute int
	logger            *zap.Logger
	cleanupTicker     *time.Ticker
	done              chan struct{}
}

type Config struct {
	MaxRequestsPerMinute int
	Logger               *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute == 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rl := &RateLimiter{
		clients:           make(map[string]*client),
		requestsPerMinute: cfg.MaxRequestsPerMinute,
		logger:            cfg.Logger,
		cleanupTicker:     time.NewTicker(5 * time.Minute),
		done:              make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()

		userID := c.Get("X-User-ID")
		if userID != "" {
			key = userID
		}

		if !rl.allow(key) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	cl, exists := rl.clients[key]
	if !exists {
		cl = &client{
			governor: ratelimit.New(ratelimit.Config{
				RequestsPerMinute: rl.requestsPerMinute,
				Burst:             rl.requestsPerMinute,
			}),
		}
		rl.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	rl.mu.Unlock()

	return cl.governor.Allow()
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case now := <-rl.cleanupTicker.C:
			rl.mu.Lock()
			for key, cl := range rl.clients {
				if now.Sub(cl.lastSeen) > idleTimeout {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
	close(rl.done)
}
