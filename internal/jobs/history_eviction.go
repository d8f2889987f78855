package jobs

import (
	"context"
	"log"
	"time"

	"warmth/internal/services"
)

// HistoryEvictionJob drops conversation windows idle beyond a horizon and forgets their
// idle-scheduler state
type HistoryEvictionJob struct {
	history   *services.HistoryStore
	scheduler *services.IdleScheduler
	horizon   time.Duration
}

// NewHistoryEvictionJob creates a new history eviction job. scheduler may be nil.
func NewHistoryEvictionJob(history *services.HistoryStore, scheduler *services.IdleScheduler, horizon time.Duration) *HistoryEvictionJob {
	return &HistoryEvictionJob{
		history:   history,
		scheduler: scheduler,
		horizon:   horizon,
	}
}

// Run evicts stale windows
func (j *HistoryEvictionJob) Run(ctx context.Context) error {
	evicted := j.history.EvictIdle(j.horizon)

	forgotten := 0
	if j.scheduler != nil {
		active := make(map[string]struct{})
		for _, userID := range j.history.Users() {
			active[userID] = struct{}{}
		}
		for _, userID := range j.scheduler.Users() {
			if _, ok := active[userID]; ok {
				continue
			}
			// Armed or running users are kept by Forget
			if j.scheduler.Forget(userID) {
				forgotten++
			}
		}
	}

	if evicted > 0 || forgotten > 0 {
		log.Printf("🧹 [HISTORY] Evicted %d idle windows, forgot %d scheduler entries", evicted, forgotten)
	}
	return nil
}
