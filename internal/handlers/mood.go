package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"warmth/internal/services"
)

// MoodHandler exposes mood context, check-in signal and history
type MoodHandler struct {
	mood *services.MoodTracker
}

// NewMoodHandler creates a new mood handler
func NewMoodHandler(mood *services.MoodTracker) *MoodHandler {
	return &MoodHandler{mood: mood}
}

// GetMood returns the current mood summary
// GET /api/mood?days=7
func (h *MoodHandler) GetMood(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	days := c.QueryInt("days", 7)
	if days < 1 || days > 90 {
		days = 7
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	history, err := h.mood.History(ctx, userID, days)
	if err != nil {
		log.Printf("⚠️ [MOOD-API] Failed to load mood history for user %s: %v", userID, err)
	}

	return c.JSON(fiber.Map{
		"context": h.mood.Context(ctx, userID),
		"checkin": h.mood.Checkin(ctx, userID),
		"history": history,
	})
}
