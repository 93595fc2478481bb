package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/ingestion"
	"github.com/greasemonkey/backend/internal/storage/models"
	"github.com/greasemonkey/backend/internal/storage/sqlite"
	"github.com/greasemonkey/backend/pkg/logger"
)

type DocumentStore interface {
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, userID, id string) error
}

type DocumentHandler struct {
	processor *ingestion.Processor
	store     DocumentStore
	cache     ingestion.CacheInvalidator
}

// NewDocumentHandler builds the document endpoints. cache may be nil.
func NewDocumentHandler(processor *ingestion.Processor, store DocumentStore, cache ingestion.CacheInvalidator) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		store:     store,
		cache:     cache,
	}
}

type documentResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	VehicleMake  string `json:"vehicle_make,omitempty"`
	VehicleModel string `json:"vehicle_model,omitempty"`
	VehicleYear  int    `json:"vehicle_year,omitempty"`
	Characters   int    `json:"characters"`
	CreatedAt    int64  `json:"created_at"`
}

func toDocumentResponse(d *models.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		Title:        d.Title,
		VehicleMake:  d.VehicleMake,
		VehicleModel: d.VehicleModel,
		VehicleYear:  d.VehicleYear,
		Characters:   len([]rune(d.ExtractedText)),
		CreatedAt:    d.CreatedAt.Unix(),
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		UserID       string `json:"user_id"`
		Title        string `json:"title"`
		VehicleMake  string `json:"vehicle_make"`
		VehicleModel string `json:"vehicle_model"`
		VehicleYear  int    `json:"vehicle_year"`
		Content      string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	userID := resolveUserID(c, req.UserID)
	if userID == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and content are required",
		})
	}

	doc, err := h.processor.ProcessDocument(c.UserContext(), ingestion.Request{
		UserID:       userID,
		Title:        req.Title,
		VehicleMake:  req.VehicleMake,
		VehicleModel: req.VehicleModel,
		VehicleYear:  req.VehicleYear,
		Content:      req.Content,
	})
	switch {
	case errors.Is(err, ingestion.ErrDocumentTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Document content exceeds maximum size",
		})
	case errors.Is(err, ingestion.ErrEmptyDocument):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "No text could be extracted from the document",
		})
	case err != nil:
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Document processed successfully",
		"document": toDocumentResponse(doc),
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	userID := resolveUserID(c, c.Query("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	docs, err := h.store.ListDocuments(c.UserContext(), userID)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}

	return c.JSON(fiber.Map{
		"documents": out,
	})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	userID := resolveUserID(c, c.Query("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	id := c.Params("id")
	err := h.store.DeleteDocument(c.UserContext(), userID, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}
	if err != nil {
		logger.Error("Failed to delete document", zap.String("doc_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	if h.cache != nil {
		if err := h.cache.InvalidateUser(c.UserContext(), userID); err != nil {
			logger.Warn("Failed to invalidate answer cache", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}
