package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const firstModelYear = 1886

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxQueryLength      int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

type vehicleBody struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

type queryBody struct {
	Query   string       `json:"query"`
	Vehicle *vehicleBody `json:"vehicle"`
}

type documentBody struct {
	Content     string `json:"content"`
	VehicleYear int    `json:"vehicle_year"`
}

// Middleware rejects malformed requests before they reach the handlers:
// wrong content type, missing or oversized queries, queries with control
// characters or script injection, implausible vehicle years and oversized
// documents.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 2000
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" {
			allowed := false
			for _, allowedType := range cfg.AllowedContentTypes {
				if strings.Contains(contentType, allowedType) {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()

		if strings.HasSuffix(path, "/ask") || strings.HasSuffix(path, "/search") {
			var req queryBody
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			// A blank search ranks nothing and returns an empty list.
			required := strings.HasSuffix(path, "/ask")
			if msg := checkQuery(req.Query, required, cfg.MaxQueryLength); msg != "" {
				if msg == msgInvalidContent {
					cfg.Logger.Warn("Rejected query content",
						zap.String("ip", c.IP()),
						zap.String("query", req.Query),
					)
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": msg,
				})
			}

			if req.Vehicle != nil && !validYear(req.Vehicle.Year) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Vehicle year is out of range",
				})
			}
		}

		if strings.HasSuffix(path, "/documents") {
			var req documentBody
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if strings.TrimSpace(req.Content) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Document content is required",
				})
			}

			if len(req.Content) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document content exceeds maximum size",
				})
			}

			if !validYear(req.VehicleYear) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Vehicle year is out of range",
				})
			}
		}

		return c.Next()
	}
}

const msgInvalidContent = "Invalid query content"

func checkQuery(query string, required bool, maxLength int) string {
	query = strings.TrimSpace(query)
	switch {
	case query == "" && required:
		return "Query is required and must be a string"
	case utf8.RuneCountInString(query) > maxLength:
		return "Query exceeds maximum length"
	case containsControl(query), containsXSS(query):
		return msgInvalidContent
	}
	return ""
}

// validYear accepts 0 (unknown) or a year between the first production car
// and next year's models.
func validYear(year int) bool {
	return year == 0 || (year >= firstModelYear && year <= time.Now().Year()+1)
}

func containsControl(input string) bool {
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}
