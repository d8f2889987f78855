package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"warmth/internal/models"
	"warmth/internal/services"
)

const (
	maxFactKeyLength   = 50
	maxFactValueLength = 500
	maxTopK            = 20
)

// MemoryHandler handles memory-related API endpoints
type MemoryHandler struct {
	facts     *services.FactService
	retriever *services.Retriever
	companion *services.CompanionService
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(facts *services.FactService, retriever *services.Retriever, companion *services.CompanionService) *MemoryHandler {
	return &MemoryHandler{
		facts:     facts,
		retriever: retriever,
		companion: companion,
	}
}

// ListMemories returns every stored fact, or the facts most relevant to q
// GET /api/memories?q=hiking&k=5
func (h *MemoryHandler) ListMemories(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		facts, err := h.facts.List(ctx, userID)
		if err != nil {
			log.Printf("❌ [MEMORY-API] Failed to list memories: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to retrieve memories",
			})
		}
		return c.JSON(fiber.Map{
			"memories": facts,
			"count":    len(facts),
		})
	}

	topK := c.QueryInt("k", services.DefaultTopK)
	if topK < 1 || topK > maxTopK {
		topK = services.DefaultTopK
	}

	results, err := h.retriever.Retrieve(ctx, userID, query, topK)
	if err != nil {
		log.Printf("❌ [MEMORY-API] Failed to search memories: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": services.MemorySearchUnavailableMsg,
		})
	}

	return c.JSON(fiber.Map{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

type createMemoryRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateMemory stores a fact unless it duplicates an existing one
// POST /api/memories {"key": "Pet", "value": "has a dog"}
func (h *MemoryHandler) CreateMemory(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req createMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Key = strings.TrimSpace(req.Key)
	req.Value = strings.TrimSpace(req.Value)
	if req.Key == "" || req.Value == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Key and value are required",
		})
	}
	if len(req.Key) > maxFactKeyLength || len(req.Value) > maxFactValueLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Key or value is too long",
		})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	saved, err := h.facts.Save(ctx, userID, models.FactCandidate{Key: req.Key, Value: req.Value})
	if err != nil {
		log.Printf("❌ [MEMORY-API] Failed to save memory: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save memory",
		})
	}

	status := fiber.StatusCreated
	if !saved {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"saved":     saved,
		"duplicate": !saved,
	})
}

// DeleteMemory removes one fact
// DELETE /api/memories/:id
func (h *MemoryHandler) DeleteMemory(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	deleted, err := h.facts.Delete(ctx, userID, c.Params("id"))
	if err != nil {
		log.Printf("❌ [MEMORY-API] Failed to delete memory: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete memory",
		})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Memory not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// TriggerExtraction runs the idle extraction and journal job now
// POST /api/memories/extract
func (h *MemoryHandler) TriggerExtraction(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	scheduler := h.companion.Scheduler()
	if scheduler == nil || !scheduler.Enabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Automatic extraction is disabled",
		})
	}

	if !scheduler.Trigger(userID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Extraction already in progress",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
	})
}

type extractionSettingsRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetExtraction switches automatic extraction on or off
// PUT /api/settings/extraction {"enabled": false}
func (h *MemoryHandler) SetExtraction(c *fiber.Ctx) error {
	var req extractionSettingsRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "enabled is required",
		})
	}

	h.companion.SetExtractionEnabled(*req.Enabled)
	return c.JSON(fiber.Map{
		"enabled": *req.Enabled,
	})
}
