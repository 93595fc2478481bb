// Package query runs the answer pipeline: search the user's documents, build
// a context block from the best matches, sample answers and pick one.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cacheredis "github.com/greasemonkey/backend/internal/cache/redis"
	"github.com/greasemonkey/backend/internal/evaluation"
	"github.com/greasemonkey/backend/internal/generation"
	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/internal/relevance"
	"github.com/greasemonkey/backend/internal/storage/models"
	"github.com/greasemonkey/backend/internal/textproc"
	"github.com/greasemonkey/backend/pkg/logger"
)

const DefaultContextDocuments = 5

var ErrEmptyQuery = errors.New("query is empty")

type DocumentSource interface {
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
}

type AnswerStore interface {
	InsertAnswerRecord(ctx context.Context, record *models.AnswerRecord) error
	GetAnswerHistory(ctx context.Context, userID string, limit int) ([]models.AnswerRecord, error)
	StoreFeedback(ctx context.Context, feedback *models.Feedback) error
}

// AnswerCache is optional. Errors from it are logged and never fail a request.
type AnswerCache interface {
	GetAnswer(ctx context.Context, key string, answer interface{}) (bool, error)
	SetAnswer(ctx context.Context, key string, answer interface{}) error
}

type CandidateSampler interface {
	Sample(ctx context.Context, req generation.Request) ([]generation.Candidate, error)
}

type Engine struct {
	docs             DocumentSource
	answers          AnswerStore
	cache            AnswerCache
	ranker           *relevance.Engine
	sampler          CandidateSampler
	evaluator        *evaluation.Evaluator
	contextDocuments int
}

type AskRequest struct {
	UserID  string
	Query   string
	Vehicle *relevance.VehicleContext
}

type AskResponse struct {
	ID                 string   `json:"id"`
	Query              string   `json:"query"`
	Answer             string   `json:"answer"`
	Confidence         float64  `json:"confidence"`
	ConsistencyScore   float64  `json:"consistency_score"`
	AccuracyIndicators []string `json:"accuracy_indicators"`
	UsedDocuments      bool     `json:"used_documents"`
	Notes              string   `json:"notes"`
	SampleCount        int      `json:"sample_count"`
	Sources            []Source `json:"sources"`
	LatencyMS          int      `json:"latency_ms"`
	Cached             bool     `json:"cached"`
}

type Source struct {
	DocumentID     string   `json:"document_id"`
	Title          string   `json:"title"`
	RelevanceScore float64  `json:"relevance_score"`
	Excerpt        string   `json:"excerpt"`
	MatchReasons   []string `json:"match_reasons"`
}

// NewEngine wires the pipeline. answers and cache may be nil; without answers
// nothing is persisted and history is empty.
func NewEngine(docs DocumentSource, answers AnswerStore, cache AnswerCache, ranker *relevance.Engine, sampler CandidateSampler, contextDocuments int) *Engine {
	if contextDocuments <= 0 {
		contextDocuments = DefaultContextDocuments
	}
	return &Engine{
		docs:             docs,
		answers:          answers,
		cache:            cache,
		ranker:           ranker,
		sampler:          sampler,
		evaluator:        evaluation.NewEvaluator(),
		contextDocuments: contextDocuments,
	}
}

// SearchDocuments ranks the supplied documents. It never fails: empty input
// gives an empty slice and scoring problems fall back to substring matching.
func (e *Engine) SearchDocuments(ctx context.Context, query string, vehicle *relevance.VehicleContext, docs []relevance.Document) []relevance.SearchResult {
	startTime := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("search").Observe(time.Since(startTime).Seconds())
	}()

	results := e.ranker.Search(relevance.Query{Text: query, Vehicle: vehicle}, docs)
	metrics.QueryTotal.WithLabelValues("search", "success").Inc()
	return results
}

// SearchUserDocuments loads the user's stored documents and ranks them.
func (e *Engine) SearchUserDocuments(ctx context.Context, userID, query string, vehicle *relevance.VehicleContext) ([]relevance.SearchResult, error) {
	docs, err := e.loadDocuments(ctx, userID)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("search", "error").Inc()
		return nil, err
	}
	return e.SearchDocuments(ctx, query, vehicle, docs), nil
}

// GetEvaluatedAnswer samples several answers for the query and the already
// assembled context, and returns the one the evaluator prefers. An empty
// context yields a general-knowledge answer.
func (e *Engine) GetEvaluatedAnswer(ctx context.Context, query, assembledContext string, vehicle *relevance.VehicleContext) (*evaluation.EvaluatedAnswer, error) {
	candidates, err := e.sampler.Sample(ctx, generation.Request{
		Query:   query,
		Context: assembledContext,
		Vehicle: vehicle,
	})
	if err != nil {
		return nil, err
	}

	return e.evaluator.Evaluate(candidates, strings.TrimSpace(assembledContext) != "")
}

// Ask answers a question from the user's documents, persists the answer and
// returns it with its sources.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	startTime := time.Now()
	queryID := uuid.New().String()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("user_id", req.UserID),
		zap.String("query", query),
	)

	results, err := e.SearchUserDocuments(ctx, req.UserID, query, req.Vehicle)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("ask", "error").Inc()
		return nil, err
	}

	top := results
	if len(top) > e.contextDocuments {
		top = top[:e.contextDocuments]
	}
	assembled := AssembleContext(top)

	logger.Info("Documents ranked",
		zap.String("query_id", queryID),
		zap.Int("matched", len(results)),
		zap.Int("context_documents", len(top)),
	)

	cacheKey := cacheredis.AnswerKey(req.UserID, query, req.Vehicle.String(), assembled)
	if cached := e.cachedAnswer(ctx, cacheKey); cached != nil {
		cached.LatencyMS = int(time.Since(startTime).Milliseconds())
		metrics.QueryTotal.WithLabelValues("ask", "cached").Inc()
		return cached, nil
	}

	answer, err := e.GetEvaluatedAnswer(ctx, query, assembled, req.Vehicle)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("ask", "error").Inc()
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	sources := make([]Source, 0, len(top))
	for _, r := range top {
		sources = append(sources, Source{
			DocumentID:     r.Document.ID,
			Title:          r.Document.Title,
			RelevanceScore: r.RelevanceScore,
			Excerpt:        r.Excerpt,
			MatchReasons:   r.MatchReasons,
		})
	}

	latency := int(time.Since(startTime).Milliseconds())
	resp := &AskResponse{
		ID:                 queryID,
		Query:              query,
		Answer:             answer.Answer,
		Confidence:         answer.Confidence,
		ConsistencyScore:   answer.ConsistencyScore,
		AccuracyIndicators: answer.AccuracyIndicators,
		UsedDocuments:      answer.UsedDocuments,
		Notes:              answer.Notes,
		SampleCount:        answer.SampleCount,
		Sources:            sources,
		LatencyMS:          latency,
	}

	e.persist(ctx, req, resp)

	if e.cache != nil {
		if err := e.cache.SetAnswer(ctx, cacheKey, resp); err != nil {
			logger.Warn("Failed to cache answer", zap.String("query_id", queryID), zap.Error(err))
		}
	}

	metrics.QueryDuration.WithLabelValues("ask").Observe(time.Since(startTime).Seconds())
	metrics.QueryTotal.WithLabelValues("ask", "success").Inc()

	logger.Info("Query processed successfully",
		zap.String("query_id", queryID),
		zap.Float64("confidence", resp.Confidence),
		zap.Int("latency_ms", latency),
	)

	return resp, nil
}

func (e *Engine) GetAnswerHistory(ctx context.Context, userID string, limit int) ([]models.AnswerRecord, error) {
	if e.answers == nil {
		return []models.AnswerRecord{}, nil
	}
	return e.answers.GetAnswerHistory(ctx, userID, limit)
}

func (e *Engine) RecordFeedback(ctx context.Context, feedback *models.Feedback) error {
	if e.answers == nil {
		return errors.New("answer store not configured")
	}
	return e.answers.StoreFeedback(ctx, feedback)
}

// AssembleContext formats ranked results as the documentation block handed to
// the generator, best match first.
func AssembleContext(results []relevance.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, r := range results {
		builder.WriteString(fmt.Sprintf("[Source %d: %s]\n%s\n\n", i+1, r.Document.Title, r.Excerpt))
	}
	return strings.TrimSpace(builder.String())
}

func (e *Engine) loadDocuments(ctx context.Context, userID string) ([]relevance.Document, error) {
	stored, err := e.docs.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	docs := make([]relevance.Document, 0, len(stored))
	for _, d := range stored {
		docs = append(docs, relevance.Document{
			ID:           d.ID,
			Title:        d.Title,
			VehicleMake:  d.VehicleMake,
			VehicleModel: d.VehicleModel,
			VehicleYear:  d.VehicleYear,
			FullText:     textproc.StripMarkup(d.ExtractedText),
		})
	}
	return docs, nil
}

func (e *Engine) cachedAnswer(ctx context.Context, key string) *AskResponse {
	if e.cache == nil {
		return nil
	}

	var resp AskResponse
	found, err := e.cache.GetAnswer(ctx, key, &resp)
	if err != nil {
		logger.Warn("Answer cache lookup failed", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	resp.Cached = true
	return &resp
}

// persist stores the answer. A storage failure is logged; the user still gets
// the answer.
func (e *Engine) persist(ctx context.Context, req AskRequest, resp *AskResponse) {
	if e.answers == nil {
		return
	}

	record := &models.AnswerRecord{
		ID:                 resp.ID,
		UserID:             req.UserID,
		QueryText:          resp.Query,
		Answer:             resp.Answer,
		Confidence:         resp.Confidence,
		ConsistencyScore:   resp.ConsistencyScore,
		AccuracyIndicators: resp.AccuracyIndicators,
		UsedDocuments:      resp.UsedDocuments,
		SampleCount:        resp.SampleCount,
		LatencyMS:          resp.LatencyMS,
		CreatedAt:          time.Now(),
	}
	if v := req.Vehicle; !v.IsZero() {
		record.VehicleMake = v.Make
		record.VehicleModel = v.Model
		record.VehicleYear = v.Year
	}
	for _, s := range resp.Sources {
		record.Sources = append(record.Sources, models.AnswerSource{
			DocumentID:     s.DocumentID,
			Title:          s.Title,
			RelevanceScore: s.RelevanceScore,
		})
	}

	if err := e.answers.InsertAnswerRecord(ctx, record); err != nil {
		logger.Error("Failed to persist answer", zap.String("query_id", resp.ID), zap.Error(err))
	}
}
