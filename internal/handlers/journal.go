package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"warmth/internal/services"
)

// JournalHandler lists automated journal entries
type JournalHandler struct {
	journals *services.JournalService
}

// NewJournalHandler creates a new journal handler
func NewJournalHandler(journals *services.JournalService) *JournalHandler {
	return &JournalHandler{journals: journals}
}

// ListJournals returns recent journals, newest first
// GET /api/journals?days=30&limit=20
func (h *JournalHandler) ListJournals(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	days := c.QueryInt("days", 30)
	if days < 1 {
		days = 30
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	journals, err := h.journals.List(ctx, userID, time.Now().AddDate(0, 0, -days), limit)
	if err != nil {
		log.Printf("❌ [JOURNAL-API] Failed to list journals for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve journals",
		})
	}

	return c.JSON(fiber.Map{
		"journals": journals,
		"count":    len(journals),
	})
}
