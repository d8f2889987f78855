package services

import (
	"context"
	"log"
	"time"

	"warmth/internal/cache"
	"warmth/internal/database"
	"warmth/internal/models"
)

// UserExport is everything stored about one user
type UserExport struct {
	UserID      string                 `json:"user_id"`
	ExportedAt  time.Time              `json:"exported_at"`
	Messages    []models.StoredMessage `json:"messages"`
	Memories    []models.Fact          `json:"memories"`
	MoodLogs    []models.MoodSample    `json:"mood_logs"`
	Journals    []models.Journal       `json:"journals"`
	Preferences models.Preferences     `json:"preferences"`
	// Sections that could not be read and are empty in this export
	Incomplete []string `json:"incomplete,omitempty"`
}

// EraseResult reports rows removed per table and the tables that could not be cleared
type EraseResult struct {
	Deleted map[string]int64 `json:"deleted"`
	Failed  []string         `json:"failed,omitempty"`
}

// Tables holding per-user rows, all keyed by user_id
var userTables = []string{
	database.TableMessages,
	database.TableFacts,
	database.TableMoodLogs,
	database.TableJournals,
	database.TablePreferences,
}

// UserDataService exports and erases a user's data across every store the companion uses
type UserDataService struct {
	companion *CompanionService
	cache     *cache.Store
}

// NewUserDataService creates a user data service
func NewUserDataService(companion *CompanionService, cacheStore *cache.Store) *UserDataService {
	return &UserDataService{companion: companion, cache: cacheStore}
}

// Export collects all of a user's rows. A section that fails to load is left empty and listed
// in Incomplete.
func (s *UserDataService) Export(ctx context.Context, userID string) UserExport {
	c := s.companion
	export := UserExport{
		UserID:      userID,
		ExportedAt:  c.Clock.Now(),
		Messages:    []models.StoredMessage{},
		Memories:    []models.Fact{},
		MoodLogs:    []models.MoodSample{},
		Journals:    []models.Journal{},
		Preferences: models.Preferences{UserID: userID},
	}

	failed := func(section string, err error) {
		log.Printf("⚠️ [EXPORT] Failed to fetch %s for user %s: %v", section, userID, err)
		export.Incomplete = append(export.Incomplete, section)
	}

	if messages, err := c.RecentMessages(ctx, userID, time.Time{}); err != nil {
		failed("messages", err)
	} else {
		export.Messages = messages
	}

	if c.Facts != nil {
		if facts, err := c.Facts.List(ctx, userID); err != nil {
			failed("memories", err)
		} else {
			export.Memories = facts
		}
	}

	if c.Mood != nil {
		if samples, err := c.Mood.Since(ctx, userID, time.Time{}); err != nil {
			failed("mood_logs", err)
		} else {
			export.MoodLogs = samples
		}
	}

	if c.Journals != nil {
		if journals, err := c.Journals.List(ctx, userID, time.Time{}, 0); err != nil {
			failed("journals", err)
		} else {
			export.Journals = journals
		}
	}

	if c.Prefs != nil {
		if prefs, err := c.Prefs.Get(ctx, userID); err != nil {
			failed("preferences", err)
		} else {
			export.Preferences = prefs
		}
	}

	log.Printf("📦 [EXPORT] Exported %d messages, %d memories for user %s", len(export.Messages), len(export.Memories), userID)
	return export
}

// Erase deletes every row of the user and drops their cached and in-memory state.
// Tables are cleared independently; a failure on one does not stop the others.
func (s *UserDataService) Erase(ctx context.Context, userID string) EraseResult {
	c := s.companion
	log.Printf("⚠️ [ERASE] Erasing all data for user %s", userID)

	result := EraseResult{Deleted: make(map[string]int64, len(userTables))}
	for _, table := range userTables {
		n, err := c.Store.Delete(ctx, table, []database.Filter{database.Eq("user_id", userID)})
		if err != nil {
			log.Printf("❌ [ERASE] Failed to delete %s for user %s: %v", table, userID, err)
			result.Failed = append(result.Failed, table)
			continue
		}
		result.Deleted[table] = n
	}

	invalidateSearchResults(ctx, s.cache, userID)
	if s.cache != nil {
		s.cache.Delete(ctx, cache.NamespaceMoodContext, userID)
	}
	if c.Prefs != nil {
		c.Prefs.Forget(ctx, userID)
	}
	c.History.Drop(userID)
	if c.scheduler != nil {
		c.scheduler.Forget(userID)
	}

	log.Printf("✅ [ERASE] Erase complete for user %s: %v", userID, result.Deleted)
	return result
}
