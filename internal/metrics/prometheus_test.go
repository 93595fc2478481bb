package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(SearchFallbackTotal)
	SearchFallbackTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SearchFallbackTotal))

	GenerationSamples.WithLabelValues("failed").Add(2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(GenerationSamples.WithLabelValues("failed")), 2.0)
}

func TestMetricsHandler(t *testing.T) {
	Init()
	CacheHits.WithLabelValues("answer").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "greasemonkey_cache_hits_total")
}
