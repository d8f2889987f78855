package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"warmth/internal/cache"
	"warmth/internal/health"
	"warmth/internal/jobs"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	health *health.Service
	cache  *cache.Store
	jobs   *jobs.JobScheduler
}

// NewHealthHandler creates a new health handler. jobs may be nil.
func NewHealthHandler(healthService *health.Service, cacheStore *cache.Store, scheduler *jobs.JobScheduler) *HealthHandler {
	return &HealthHandler{health: healthService, cache: cacheStore, jobs: scheduler}
}

// Handle responds with server health status.
// The server is "healthy" while it can answer; failing collaborators only degrade it.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	components := h.health.Snapshot()
	for _, component := range components {
		if component.Status == health.StatusCooldown || component.Status == health.StatusUnhealthy {
			status = "degraded"
			break
		}
	}

	response := fiber.Map{
		"status":     status,
		"components": h.health.GetStatus(),
		"cache":      h.cache.Stats(c.UserContext()),
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	if h.jobs != nil {
		response["jobs"] = h.jobs.GetStatus()
	}
	return c.JSON(response)
}

// CacheStats returns hit/miss counters and tier state
// GET /api/cache/stats
func (h *HealthHandler) CacheStats(c *fiber.Ctx) error {
	return c.JSON(h.cache.Stats(c.UserContext()))
}
