package handlers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"warmth/internal/services"
)

const maxMessageLength = 4000

// ChatHandler handles conversational requests
type ChatHandler struct {
	companion *services.CompanionService
	timeout   time.Duration
}

// NewChatHandler creates a new chat handler. timeout bounds one whole exchange.
func NewChatHandler(companion *services.CompanionService, timeout time.Duration) *ChatHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatHandler{companion: companion, timeout: timeout}
}

type chatRequest struct {
	Message string `json:"message"`
}

// SendMessage answers one utterance
// POST /api/chat {"message": "..."}
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Message = strings.TrimSpace(req.Message)
	if len(req.Message) > maxMessageLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is too long",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	reply, err := h.companion.GenerateReply(ctx, userID, req.Message)
	if errors.Is(err, services.ErrEmptyInput) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}
	if err != nil {
		log.Printf("❌ [CHAT-API] Failed to generate reply for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate reply",
		})
	}

	return c.JSON(fiber.Map{
		"reply":     reply,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// History returns persisted messages
// GET /api/chat/history?hours=24
func (h *ChatHandler) History(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	hours := c.QueryInt("hours", 24)
	if hours < 1 || hours > 24*30 {
		hours = 24
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	messages, err := h.companion.RecentMessages(ctx, userID, h.companion.Clock.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		log.Printf("❌ [CHAT-API] Failed to load history for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve history",
		})
	}

	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}
