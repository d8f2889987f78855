package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"warmth/internal/services"
)

// PreferencesHandler reads and updates per-user preferences
type PreferencesHandler struct {
	prefs *services.PreferenceService
}

// NewPreferencesHandler creates a new preferences handler
func NewPreferencesHandler(prefs *services.PreferenceService) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs}
}

type listeningModeRequest struct {
	Enabled *bool `json:"enabled"`
}

// GetPreferences returns the user's preferences
// GET /api/preferences
func (h *PreferencesHandler) GetPreferences(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	prefs, err := h.prefs.Get(ctx, userID)
	if err != nil {
		log.Printf("❌ [PREFERENCES-API] Failed to get preferences for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get preferences",
		})
	}
	return c.JSON(prefs)
}

// SetListeningMode toggles listening mode
// POST /api/preferences/listening-mode {"enabled": true}
func (h *PreferencesHandler) SetListeningMode(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req listeningModeRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "enabled is required",
		})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	prefs, err := h.prefs.SetListeningMode(ctx, userID, *req.Enabled)
	if err != nil {
		log.Printf("❌ [PREFERENCES-API] Failed to update preferences for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update preferences",
		})
	}
	return c.JSON(fiber.Map{
		"status":         "success",
		"listening_mode": prefs.ListeningMode,
	})
}
