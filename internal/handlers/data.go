package handlers

import (
	"github.com/gofiber/fiber/v2"

	"warmth/internal/services"
)

// DataHandler exports and erases everything stored about the caller
type DataHandler struct {
	data *services.UserDataService
}

// NewDataHandler creates a new data handler
func NewDataHandler(data *services.UserDataService) *DataHandler {
	return &DataHandler{data: data}
}

// ExportAll returns all of the user's data
// GET /api/export-all
func (h *DataHandler) ExportAll(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	return c.JSON(h.data.Export(ctx, userID))
}

// EraseAll deletes all of the user's data. This cannot be undone.
// POST /api/erase-all
func (h *DataHandler) EraseAll(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result := h.data.Erase(ctx, userID)
	if len(result.Failed) > 0 {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "partial",
			"error":   "Failed to erase some data",
			"deleted": result.Deleted,
			"failed":  result.Failed,
		})
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"deleted": result.Deleted,
	})
}
