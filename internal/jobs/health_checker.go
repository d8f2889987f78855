package jobs

import (
	"context"
	"log"

	"warmth/internal/cache"
	"warmth/internal/health"
)

// HealthCheckJob probes the cache backend and every registered collaborator
type HealthCheckJob struct {
	cache         *cache.Store
	healthService *health.Service
}

// NewHealthCheckJob creates a new health check job
func NewHealthCheckJob(cacheStore *cache.Store, healthService *health.Service) *HealthCheckJob {
	return &HealthCheckJob{cache: cacheStore, healthService: healthService}
}

// Run executes the checks
func (j *HealthCheckJob) Run(ctx context.Context) error {
	if j.cache != nil && j.cache.HasBackend() {
		if j.cache.Probe(ctx) {
			j.healthService.MarkHealthy(health.ComponentCache, 0)
		} else {
			j.healthService.MarkUnhealthy(health.ComponentCache, "cache backend probe failed", 0)
		}
	}

	results := j.healthService.CheckAll(ctx)
	failed := 0
	for component, err := range results {
		if err != nil {
			failed++
			log.Printf("[HEALTH-JOB] %s: FAILED (%v)", component, err)
		}
	}

	log.Printf("[HEALTH-JOB] Health checks complete: %d checked, %d healthy, %d failed",
		len(results), len(results)-failed, failed)
	return ctx.Err()
}
