package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/greasemonkey/backend/pkg/circuitbreaker"
	"github.com/greasemonkey/backend/pkg/ratelimit"
)

const readyTimeout = 2 * time.Second

// ProviderStatus reports the completion client's pacing and breaker state.
type ProviderStatus interface {
	GovernorStatus() ratelimit.Status
	BreakerState() circuitbreaker.State
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	provider     ProviderStatus
	dependencies map[string]Pinger
}

func NewHealthHandler(provider ProviderStatus, dependencies map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		provider:     provider,
		dependencies: dependencies,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}

	if h.provider != nil {
		governor := h.provider.GovernorStatus()
		state := h.provider.BreakerState()
		resp["llm"] = fiber.Map{
			"circuit_breaker": state.String(),
			"governor": fiber.Map{
				"available":   governor.Available,
				"capacity":    governor.Capacity,
				"waiting":     governor.Waiting,
				"interval_ms": governor.Interval.Milliseconds(),
			},
		}
		if state == circuitbreaker.StateOpen {
			resp["status"] = "degraded"
		}
	}

	return c.JSON(resp)
}

// Ready pings every dependency and reports 503 if any is down.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
	defer cancel()

	checks := fiber.Map{}
	ready := true
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"checks": checks,
		})
	}

	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": checks,
	})
}
