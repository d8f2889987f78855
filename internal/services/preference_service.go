package services

import (
	"context"
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"

	"warmth/internal/cache"
	"warmth/internal/database"
	"warmth/internal/models"
)

const preferencesNamespace = "preferences"

// PreferenceService reads and writes per-user preferences. Reads are cached until the next write.
type PreferenceService struct {
	store database.RowStore
	cache *cache.Store
	clock clockwork.Clock
}

// NewPreferenceService creates a preference service
func NewPreferenceService(store database.RowStore, cacheStore *cache.Store, clock clockwork.Clock) *PreferenceService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PreferenceService{store: store, cache: cacheStore, clock: clock}
}

// Get returns the user's preferences; users without a stored row get the defaults
func (s *PreferenceService) Get(ctx context.Context, userID string) (models.Preferences, error) {
	var cached models.Preferences
	if s.cache.Get(ctx, preferencesNamespace, userID, &cached).Hit() {
		return cached, nil
	}

	row, found, err := s.load(ctx, userID)
	if err != nil {
		return models.Preferences{}, err
	}

	prefs := models.Preferences{UserID: userID}
	if found {
		prefs.ListeningMode = database.AsBool(row["listening_mode"])
		prefs.UpdatedAt = database.AsTime(row["updated_at"])
	}

	s.cache.SetDefault(ctx, preferencesNamespace, userID, prefs)
	return prefs, nil
}

func (s *PreferenceService) load(ctx context.Context, userID string) (database.Row, bool, error) {
	rows, err := s.store.Select(ctx, database.TablePreferences,
		[]database.Filter{database.Eq("user_id", userID)}, nil, 1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get preferences: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// SetListeningMode turns listening mode on or off for the user
func (s *PreferenceService) SetListeningMode(ctx context.Context, userID string, enabled bool) (models.Preferences, error) {
	now := s.clock.Now()

	_, found, err := s.load(ctx, userID)
	if err != nil {
		return models.Preferences{}, err
	}

	if found {
		_, err = s.store.Update(ctx, database.TablePreferences,
			[]database.Filter{database.Eq("user_id", userID)},
			database.Row{"listening_mode": enabled, "updated_at": database.TimeValue(now)})
	} else {
		err = s.store.Insert(ctx, database.TablePreferences, database.Row{
			"user_id":        userID,
			"listening_mode": enabled,
			"updated_at":     database.TimeValue(now),
		})
	}
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to update preferences: %w", err)
	}

	s.cache.Delete(ctx, preferencesNamespace, userID)
	log.Printf("⚙️ [PREFERENCES] Listening mode %v for user %s", enabled, userID)
	return models.Preferences{UserID: userID, ListeningMode: enabled, UpdatedAt: now}, nil
}

// Forget drops the cached preferences of a user
func (s *PreferenceService) Forget(ctx context.Context, userID string) {
	s.cache.Delete(ctx, preferencesNamespace, userID)
}
