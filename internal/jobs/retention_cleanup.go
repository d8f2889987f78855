package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"warmth/internal/database"
)

// RetentionCleanupJob deletes persisted chat messages and mood samples older than the retention period.
// Facts and journals are kept.
type RetentionCleanupJob struct {
	store     database.RowStore
	clock     clockwork.Clock
	retention time.Duration
}

// NewRetentionCleanupJob creates a new retention cleanup job
func NewRetentionCleanupJob(store database.RowStore, clock clockwork.Clock, retention time.Duration) *RetentionCleanupJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RetentionCleanupJob{store: store, clock: clock, retention: retention}
}

// Run executes the cleanup
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}

	cutoff := database.TimeValue(j.clock.Now().Add(-j.retention))
	totalDeleted := int64(0)

	for _, table := range []string{database.TableMessages, database.TableMoodLogs} {
		deleted, err := j.store.Delete(ctx, table, []database.Filter{database.Lt("created_at", cutoff)})
		if err != nil {
			return fmt.Errorf("failed to clean up %s: %w", table, err)
		}
		totalDeleted += deleted
	}

	if totalDeleted > 0 {
		log.Printf("[RETENTION] Deleted %d rows older than %v", totalDeleted, j.retention)
	}
	return nil
}
