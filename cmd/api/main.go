package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/api/handlers"
	"github.com/greasemonkey/backend/internal/cache/redis"
	"github.com/greasemonkey/backend/internal/generation"
	"github.com/greasemonkey/backend/internal/ingestion"
	"github.com/greasemonkey/backend/internal/llm"
	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/internal/middleware/ratelimit"
	"github.com/greasemonkey/backend/internal/middleware/security"
	"github.com/greasemonkey/backend/internal/middleware/validation"
	"github.com/greasemonkey/backend/internal/query"
	"github.com/greasemonkey/backend/internal/relevance"
	"github.com/greasemonkey/backend/internal/storage/sqlite"
	"github.com/greasemonkey/backend/pkg/config"
	appLogger "github.com/greasemonkey/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting GreaseMonkey API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	dependencies := map[string]handlers.Pinger{"sqlite": sqliteClient}

	// Interfaces stay nil when redis is off; a typed nil would look configured.
	var answerCache query.AnswerCache
	var cacheInvalidator ingestion.CacheInvalidator
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, answer cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			answerCache = redisClient
			cacheInvalidator = redisClient
			dependencies["redis"] = redisClient
		}
	}

	vocab, err := relevance.LoadVocabulary(cfg.Search.VocabularyPath)
	if err != nil {
		appLogger.Fatal("Failed to load vocabulary", zap.Error(err))
	}

	searchOpts := relevance.DefaultOptions()
	searchOpts.MinScore = cfg.Search.MinScore
	searchOpts.MaxExcerptChars = cfg.Search.MaxExcerptChars
	searchOpts.Weights = relevance.Weights{
		Automotive: cfg.Search.Weights.Automotive,
		Symptom:    cfg.Search.Weights.Symptom,
		TFIDF:      cfg.Search.Weights.TFIDF,
		Vehicle:    cfg.Search.Weights.Vehicle,
		Filename:   cfg.Search.Weights.Filename,
	}

	ranker, err := relevance.NewEngine(vocab, searchOpts)
	if err != nil {
		appLogger.Fatal("Failed to create relevance engine", zap.Error(err))
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.LowTemperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Burst:             cfg.LLM.Burst,
	})

	budget := generation.Budget{
		Total:    cfg.LLM.Budget.TotalTokens,
		System:   cfg.LLM.Budget.SystemTokens,
		Query:    cfg.LLM.Budget.QueryTokens,
		Vehicle:  cfg.LLM.Budget.VehicleTokens,
		Response: cfg.LLM.Budget.ResponseTokens,
		Overhead: cfg.LLM.Budget.OverheadTokens,
	}
	if err := budget.Validate(); err != nil {
		appLogger.Fatal("Invalid token budget", zap.Error(err))
	}

	generator := generation.NewGenerator(
		llmClient,
		llm.NewTokenCounter(),
		generation.NewPhraseDetector(vocab.CitationPhrases),
		budget,
	)
	sampler := generation.NewSampler(
		generator,
		generation.Temperatures(cfg.LLM.LowTemperature, cfg.LLM.HighTemperature, cfg.LLM.Samples),
	)

	queryEngine := query.NewEngine(sqliteClient, sqliteClient, answerCache, ranker, sampler, cfg.Search.ContextDocuments)
	processor := ingestion.NewProcessor(sqliteClient, cacheInvalidator, cfg.Server.MaxDocumentBytes)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	queryHandler := handlers.NewQueryHandler(queryEngine)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient, cacheInvalidator)
	wsHandler := handlers.NewWebSocketHandler(queryEngine)
	healthHandler := handlers.NewHealthHandler(llmClient, dependencies)

	app.Get("/metrics", metrics.MetricsHandler())
	app.Get("/ws/ask", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	limited := api.Group("",
		rateLimiter.Middleware(),
		validation.Middleware(validation.Config{
			MaxQueryLength:  cfg.Server.MaxQueryLength,
			MaxDocumentSize: cfg.Server.MaxDocumentBytes,
			Logger:          appLogger.GetLogger(),
		}),
	)

	limited.Post("/ask", queryHandler.HandleAsk)
	limited.Post("/search", queryHandler.HandleSearch)
	limited.Get("/answers/history", queryHandler.GetAnswerHistory)
	limited.Post("/answers/:id/feedback", queryHandler.HandleFeedback)

	limited.Post("/documents", documentHandler.UploadDocument)
	limited.Get("/documents", documentHandler.ListDocuments)
	limited.Delete("/documents/:id", documentHandler.DeleteDocument)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
