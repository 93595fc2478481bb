package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greasemonkey_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"query_type"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greasemonkey_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"query_type", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greasemonkey_search_duration_seconds",
			Help:    "Relevance ranking duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"mode"},
	)

	SearchFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greasemonkey_search_fallback_total",
			Help: "Searches answered by substring matching after domain scoring failed",
		},
	)

	SearchResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greasemonkey_search_results_count",
			Help:    "Number of ranked documents per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greasemonkey_llm_requests_total",
			Help: "Completion requests by outcome",
		},
		[]string{"model", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greasemonkey_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	RateLimitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greasemonkey_llm_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the completion rate governor",
			Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "greasemonkey_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	GenerationSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greasemonkey_generation_samples_total",
			Help: "Answer samples by outcome",
		},
		[]string{"status"},
	)

	ContextTruncations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greasemonkey_context_truncations_total",
			Help: "Document contexts truncated to fit the token budget",
		},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greasemonkey_confidence_score",
			Help:    "Confidence of selected answers",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ConsistencyScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greasemonkey_consistency_score",
			Help:    "Consistency across answer samples",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greasemonkey_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greasemonkey_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greasemonkey_documents_ingested_total",
			Help: "Total documents ingested",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(SearchDuration)
		prometheus.MustRegister(SearchFallbackTotal)
		prometheus.MustRegister(SearchResultsCount)
		prometheus.MustRegister(LLMRequests)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(RateLimitWait)
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(GenerationSamples)
		prometheus.MustRegister(ContextTruncations)
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(ConsistencyScore)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(DocumentsIngested)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
