package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/generation"
	"github.com/greasemonkey/backend/internal/query"
	"github.com/greasemonkey/backend/internal/relevance"
	"github.com/greasemonkey/backend/internal/storage/models"
	"github.com/greasemonkey/backend/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type QueryHandler struct {
	queryEngine *query.Engine
}

func NewQueryHandler(queryEngine *query.Engine) *QueryHandler {
	return &QueryHandler{
		queryEngine: queryEngine,
	}
}

type inlineDocument struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	VehicleMake  string `json:"vehicle_make"`
	VehicleModel string `json:"vehicle_model"`
	VehicleYear  int    `json:"vehicle_year"`
	Text         string `json:"text"`
}

type queryRequest struct {
	Query     string                    `json:"query"`
	UserID    string                    `json:"user_id"`
	Vehicle   *relevance.VehicleContext `json:"vehicle"`
	Documents []inlineDocument          `json:"documents"`
}

// HandleAsk answers a question from the caller's stored documents.
func (h *QueryHandler) HandleAsk(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	userID := resolveUserID(c, req.UserID)
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	response, err := h.queryEngine.Ask(c.UserContext(), query.AskRequest{
		UserID:  userID,
		Query:   req.Query,
		Vehicle: normalizeVehicle(req.Vehicle),
	})
	if err != nil {
		return askError(c, err)
	}

	return c.JSON(response)
}

// HandleSearch ranks documents without generating an answer. Documents sent
// inline are searched as given; otherwise the caller's stored documents are.
func (h *QueryHandler) HandleSearch(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	vehicle := normalizeVehicle(req.Vehicle)

	var results []relevance.SearchResult
	if len(req.Documents) > 0 {
		docs := make([]relevance.Document, 0, len(req.Documents))
		for _, d := range req.Documents {
			docs = append(docs, relevance.Document{
				ID:           d.ID,
				Title:        d.Title,
				VehicleMake:  d.VehicleMake,
				VehicleModel: d.VehicleModel,
				VehicleYear:  d.VehicleYear,
				FullText:     d.Text,
			})
		}
		results = h.queryEngine.SearchDocuments(c.UserContext(), req.Query, vehicle, docs)
	} else {
		userID := resolveUserID(c, req.UserID)
		if userID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id or documents are required",
			})
		}

		var err error
		results, err = h.queryEngine.SearchUserDocuments(c.UserContext(), userID, req.Query, vehicle)
		if err != nil {
			logger.Error("Failed to search documents", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to search documents",
			})
		}
	}

	return c.JSON(fiber.Map{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

func (h *QueryHandler) GetAnswerHistory(c *fiber.Ctx) error {
	userID := resolveUserID(c, c.Query("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	history, err := h.queryEngine.GetAnswerHistory(c.UserContext(), userID, limit)
	if err != nil {
		logger.Error("Failed to load answer history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load answer history",
		})
	}

	items := make([]fiber.Map, 0, len(history))
	for _, r := range history {
		items = append(items, historyItem(r))
	}

	return c.JSON(fiber.Map{
		"history": items,
	})
}

func (h *QueryHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		Helpful *bool  `json:"helpful"`
		Comment string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "helpful is required",
		})
	}

	answerID := c.Params("id")
	err := h.queryEngine.RecordFeedback(c.UserContext(), &models.Feedback{
		AnswerID: answerID,
		Helpful:  *req.Helpful,
		Comment:  strings.TrimSpace(req.Comment),
	})
	if err != nil {
		logger.Error("Failed to store feedback", zap.String("answer_id", answerID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Feedback recorded",
		"answer_id": answerID,
	})
}

func historyItem(r models.AnswerRecord) fiber.Map {
	sources := make([]fiber.Map, 0, len(r.Sources))
	for _, s := range r.Sources {
		sources = append(sources, fiber.Map{
			"document_id":     s.DocumentID,
			"title":           s.Title,
			"relevance_score": s.RelevanceScore,
		})
	}

	item := fiber.Map{
		"id":                  r.ID,
		"query":               r.QueryText,
		"answer":              r.Answer,
		"confidence":          r.Confidence,
		"consistency_score":   r.ConsistencyScore,
		"accuracy_indicators": r.AccuracyIndicators,
		"used_documents":      r.UsedDocuments,
		"sample_count":        r.SampleCount,
		"latency_ms":          r.LatencyMS,
		"sources":             sources,
		"created_at":          r.CreatedAt.Unix(),
	}
	if r.VehicleMake != "" || r.VehicleModel != "" || r.VehicleYear != 0 {
		item["vehicle"] = relevance.VehicleContext{Make: r.VehicleMake, Model: r.VehicleModel, Year: r.VehicleYear}
	}
	return item
}

func askError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	case errors.Is(err, generation.ErrContextTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Question and vehicle details are too long to answer",
		})
	case errors.Is(err, generation.ErrNoCandidates):
		logger.Error("No answer could be generated", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "The answer service is unavailable. Please try again shortly.",
		})
	}

	logger.Error("Failed to process query", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to process query",
	})
}

// resolveUserID prefers the explicit value and falls back to the X-User-ID
// header set by the upstream auth proxy.
func resolveUserID(c *fiber.Ctx, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return strings.TrimSpace(c.Get("X-User-ID"))
}

func normalizeVehicle(v *relevance.VehicleContext) *relevance.VehicleContext {
	if v.IsZero() {
		return nil
	}
	return &relevance.VehicleContext{
		Make:  strings.TrimSpace(v.Make),
		Model: strings.TrimSpace(v.Model),
		Year:  v.Year,
	}
}
