package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/greasemonkey/backend/internal/generation"
	"github.com/greasemonkey/backend/internal/query"
	"github.com/greasemonkey/backend/internal/relevance"
	"github.com/greasemonkey/backend/pkg/logger"
)

const askTimeout = 3 * time.Minute

type WebSocketHandler struct {
	queryEngine *query.Engine
}

func NewWebSocketHandler(queryEngine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		queryEngine: queryEngine,
	}
}

// Upgrade only lets websocket handshakes through and carries the X-User-ID
// header into the connection.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("user_id", c.Get("X-User-ID"))
	return c.Next()
}

type askMessage struct {
	Type    string                    `json:"type"`
	Content string                    `json:"content"`
	UserID  string                    `json:"user_id"`
	Vehicle *relevance.VehicleContext `json:"vehicle"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	headerUserID, _ := c.Locals("user_id").(string)

	for {
		var msg askMessage

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "ask" {
			continue
		}

		userID := strings.TrimSpace(msg.UserID)
		if userID == "" {
			userID = headerUserID
		}
		if userID == "" || strings.TrimSpace(msg.Content) == "" {
			h.sendError(c, "user_id and content are required")
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		err = h.streamResponse(c, msg.Content, userID, normalizeVehicle(msg.Vehicle))
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			if errors.Is(err, generation.ErrNoCandidates) {
				h.sendError(c, "The answer service is unavailable. Please try again shortly.")
			} else {
				h.sendError(c, "Failed to process query")
			}
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, queryText, userID string, vehicle *relevance.VehicleContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	if err := h.sendChunk(c, "status", "Searching your documents..."); err != nil {
		return err
	}

	response, err := h.queryEngine.Ask(ctx, query.AskRequest{
		UserID:  userID,
		Query:   queryText,
		Vehicle: vehicle,
	})
	if err != nil {
		return err
	}

	words := splitIntoWords(response.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" && words[i+1] != "\n" {
			chunk += " "
		}

		err := h.sendChunk(c, "chunk", chunk)
		if err != nil {
			return err
		}
	}

	return h.sendComplete(c, response)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *query.AskResponse) error {
	msg := map[string]interface{}{
		"type":                "complete",
		"message_id":          response.ID,
		"sources":             response.Sources,
		"confidence":          response.Confidence,
		"consistency_score":   response.ConsistencyScore,
		"accuracy_indicators": response.AccuracyIndicators,
		"used_documents":      response.UsedDocuments,
		"notes":               response.Notes,
		"latency_ms":          response.LatencyMS,
		"cached":              response.Cached,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Warn("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoWords splits on spaces and keeps newlines as their own tokens so
// the client can rebuild paragraphs.
func splitIntoWords(text string) []string {
	words := []string{}
	var currentWord strings.Builder

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord.Len() > 0 {
				words = append(words, currentWord.String())
				currentWord.Reset()
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord.WriteRune(char)
		}
	}

	if currentWord.Len() > 0 {
		words = append(words, currentWord.String())
	}

	return words
}
