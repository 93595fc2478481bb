package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/metrics"
	"github.com/greasemonkey/backend/internal/storage/models"
	"github.com/greasemonkey/backend/internal/textproc"
	"github.com/greasemonkey/backend/pkg/logger"
)

var (
	ErrEmptyDocument    = errors.New("no text extracted from document")
	ErrDocumentTooLarge = errors.New("document exceeds size limit")
)

type DocumentWriter interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
}

// CacheInvalidator drops cached answers that may have been built from a
// user's previous document set.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

type Request struct {
	UserID       string
	Title        string
	VehicleMake  string
	VehicleModel string
	VehicleYear  int
	Content      string
}

type Processor struct {
	db       DocumentWriter
	cache    CacheInvalidator
	maxBytes int
}

// NewProcessor returns a processor that stores into db. cache may be nil.
func NewProcessor(db DocumentWriter, cache CacheInvalidator, maxBytes int) *Processor {
	return &Processor{
		db:       db,
		cache:    cache,
		maxBytes: maxBytes,
	}
}

// ProcessDocument turns uploaded text (plain or HTML-exported) into a stored
// document. Missing title and make are filled in from the content.
func (p *Processor) ProcessDocument(ctx context.Context, req Request) (*models.Document, error) {
	if p.maxBytes > 0 && len(req.Content) > p.maxBytes {
		metrics.DocumentsIngested.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDocumentTooLarge, len(req.Content), p.maxBytes)
	}

	logger.Info("Processing document", zap.String("user_id", req.UserID), zap.String("title", req.Title))

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = extractTitle(req.Content)
	}

	text := strings.TrimSpace(textproc.StripMarkup(req.Content))
	if text == "" {
		metrics.DocumentsIngested.WithLabelValues("rejected").Inc()
		return nil, ErrEmptyDocument
	}

	vehicleMake := strings.TrimSpace(req.VehicleMake)
	if vehicleMake == "" {
		vehicleMake = inferVehicleMake(title + " " + text)
	}

	now := time.Now()
	doc := &models.Document{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		Title:         title,
		VehicleMake:   vehicleMake,
		VehicleModel:  strings.TrimSpace(req.VehicleModel),
		VehicleYear:   req.VehicleYear,
		ExtractedText: text,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := p.db.InsertDocument(ctx, doc); err != nil {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.InvalidateUser(ctx, req.UserID); err != nil {
			logger.Warn("Failed to invalidate answer cache", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}

	metrics.DocumentsIngested.WithLabelValues("success").Inc()
	logger.Info("Document processed successfully",
		zap.String("doc_id", doc.ID),
		zap.String("vehicle_make", doc.VehicleMake),
		zap.Int("chars", len(text)),
	)

	return doc, nil
}

func extractTitle(content string) string {
	if textproc.LooksLikeMarkup(content) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err == nil {
			title := strings.TrimSpace(doc.Find("title").First().Text())
			if title == "" {
				title = strings.TrimSpace(doc.Find("h1").First().Text())
			}
			if title != "" {
				return title
			}
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if line = textproc.CollapseSpace(line); line != "" && !textproc.LooksLikeMarkup(line) {
			return textproc.Truncate(line, 80, "...")
		}
	}

	return "Untitled"
}

var vehicleMakes = map[string]string{
	"acura":      "Acura",
	"audi":       "Audi",
	"bmw":        "BMW",
	"buick":      "Buick",
	"cadillac":   "Cadillac",
	"chevrolet":  "Chevrolet",
	"chevy":      "Chevrolet",
	"chrysler":   "Chrysler",
	"dodge":      "Dodge",
	"ford":       "Ford",
	"gmc":        "GMC",
	"honda":      "Honda",
	"hyundai":    "Hyundai",
	"jeep":       "Jeep",
	"kia":        "Kia",
	"lexus":      "Lexus",
	"mazda":      "Mazda",
	"mercedes":   "Mercedes-Benz",
	"mitsubishi": "Mitsubishi",
	"nissan":     "Nissan",
	"subaru":     "Subaru",
	"tesla":      "Tesla",
	"toyota":     "Toyota",
	"volkswagen": "Volkswagen",
	"volvo":      "Volvo",
}

// inferVehicleMake returns the make mentioned first in text, or "" when none
// is.
func inferVehicleMake(text string) string {
	words := textproc.Tokenize(text)
	for _, w := range words {
		if name, ok := vehicleMakes[w]; ok {
			return name
		}
	}
	return ""
}
