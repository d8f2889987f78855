package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"warmth/internal/cache"
	"warmth/internal/database"
	"warmth/internal/models"
)

// Words that carry no identity of their own in a fact value
var dedupStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "has": {}, "had": {}, "have": {}, "was": {}, "are": {},
	"is": {}, "now": {}, "also": {}, "with": {}, "that": {}, "this": {}, "from": {}, "been": {},
	"named": {}, "called": {}, "who": {}, "his": {}, "her": {}, "their": {}, "they": {},
	"them": {}, "about": {}, "very": {}, "really": {}, "likes": {}, "like": {}, "loves": {},
	"love": {}, "enjoys": {}, "enjoy": {}, "user": {}, "users": {}, "works": {}, "lives": {},
	"wants": {}, "on": {}, "in": {}, "at": {}, "of": {}, "to": {}, "an": {}, "a": {},
}

// Values sharing at least this fraction of their significant words restate the same fact
const dedupOverlapRatio = 0.5

// FactService persists deduplicated facts about users
type FactService struct {
	store database.RowStore
	cache *cache.Store
	clock clockwork.Clock
}

// NewFactService creates a fact service. Saving a fact clears the user's cached search results.
func NewFactService(store database.RowStore, cacheStore *cache.Store, clock clockwork.Clock) *FactService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FactService{store: store, cache: cacheStore, clock: clock}
}

// normalizeContent lowercases, strips punctuation and collapses whitespace
func normalizeContent(content string) string {
	normalized := strings.ToLower(content)

	// Separators become spaces before punctuation is removed so words don't merge
	normalized = strings.ReplaceAll(normalized, "\n", " ")
	normalized = strings.ReplaceAll(normalized, "\t", " ")
	normalized = strings.ReplaceAll(normalized, "\r", " ")
	normalized = strings.ReplaceAll(normalized, "-", " ")
	normalized = strings.ReplaceAll(normalized, "_", " ")

	normalized = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			return r
		}
		return -1
	}, normalized)

	return strings.Join(strings.Fields(normalized), " ")
}

func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func significantWords(value string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(value) {
		if len(w) < 3 {
			continue
		}
		if _, stop := dedupStopwords[w]; !stop {
			words[w] = struct{}{}
		}
	}
	return words
}

// wordOverlap is the Jaccard similarity of two values' significant words
func wordOverlap(a, b string) float64 {
	wa, wb := significantWords(a), significantWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(wa)+len(wb)-shared)
}

// IsDuplicate reports whether candidate restates an existing fact. Keys must overlap as
// case-insensitive substrings in either direction. Values must overlap the same way, or
// share at least half of their significant words.
func (s *FactService) IsDuplicate(candidate models.FactCandidate, existing []models.Fact) bool {
	key := normalizeContent(candidate.Key)
	value := normalizeContent(candidate.Value)

	for _, fact := range existing {
		if !overlaps(key, normalizeContent(fact.Key)) {
			continue
		}
		existingValue := normalizeContent(fact.Value)
		if overlaps(value, existingValue) || wordOverlap(value, existingValue) >= dedupOverlapRatio {
			return true
		}
	}
	return false
}

// List returns a user's facts in storage order
func (s *FactService) List(ctx context.Context, userID string) ([]models.Fact, error) {
	rows, err := s.store.Select(ctx, database.TableFacts,
		[]database.Filter{database.Eq("user_id", userID)},
		&database.Order{Column: "created_at"}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}

	facts := make([]models.Fact, 0, len(rows))
	for _, row := range rows {
		facts = append(facts, models.Fact{
			ID:         database.AsString(row["id"]),
			UserID:     database.AsString(row["user_id"]),
			Key:        database.AsString(row["fact_key"]),
			Value:      database.AsString(row["fact_value"]),
			Importance: database.AsFloat(row["importance"]),
			CreatedAt:  database.AsTime(row["created_at"]),
		})
	}
	return facts, nil
}

func (s *FactService) insert(ctx context.Context, userID string, candidate models.FactCandidate) (models.Fact, error) {
	importance := models.DefaultFactImportance
	if candidate.SourceConfidence > 0 {
		importance = clamp(candidate.SourceConfidence, 0, 1)
	}

	fact := models.Fact{
		ID:         uuid.New().String(),
		UserID:     userID,
		Key:        strings.TrimSpace(candidate.Key),
		Value:      strings.TrimSpace(candidate.Value),
		Importance: importance,
		CreatedAt:  s.clock.Now(),
	}

	err := s.store.Insert(ctx, database.TableFacts, database.Row{
		"id":         fact.ID,
		"user_id":    fact.UserID,
		"fact_key":   fact.Key,
		"fact_value": fact.Value,
		"importance": fact.Importance,
		"created_at": database.TimeValue(fact.CreatedAt),
	})
	if err != nil {
		return models.Fact{}, fmt.Errorf("failed to insert fact: %w", err)
	}

	factsSaved.Inc()
	return fact, nil
}

func validCandidate(c models.FactCandidate) bool {
	return strings.TrimSpace(c.Key) != "" && strings.TrimSpace(c.Value) != ""
}

// Save persists candidate unless it duplicates an existing fact
func (s *FactService) Save(ctx context.Context, userID string, candidate models.FactCandidate) (bool, error) {
	if !validCandidate(candidate) {
		return false, nil
	}

	existing, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	if s.IsDuplicate(candidate, existing) {
		slog.Debug("duplicate fact dropped", "user_id", userID, "key", candidate.Key, "value", candidate.Value)
		return false, nil
	}

	fact, err := s.insert(ctx, userID, candidate)
	if err != nil {
		return false, err
	}

	invalidateSearchResults(ctx, s.cache, userID)
	log.Printf("✅ [FACTS] Saved fact for user %s (ID: %s, Key: %s)", userID, fact.ID, fact.Key)
	return true, nil
}

// SaveAll persists the non-duplicate candidates, also deduplicating within the batch.
// Persistence failures are logged and skipped.
func (s *FactService) SaveAll(ctx context.Context, userID string, candidates []models.FactCandidate) int {
	if len(candidates) == 0 {
		return 0
	}

	existing, err := s.List(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [FACTS] Failed to fetch existing facts for user %s: %v", userID, err)
		return 0
	}

	saved := 0
	for _, candidate := range candidates {
		if !validCandidate(candidate) {
			continue
		}
		if s.IsDuplicate(candidate, existing) {
			slog.Debug("duplicate fact dropped", "user_id", userID, "key", candidate.Key, "value", candidate.Value)
			continue
		}

		fact, err := s.insert(ctx, userID, candidate)
		if err != nil {
			log.Printf("⚠️ [FACTS] Failed to store fact for user %s: %v", userID, err)
			continue
		}
		existing = append(existing, fact)
		saved++
	}

	if saved > 0 {
		invalidateSearchResults(ctx, s.cache, userID)
		log.Printf("✅ [FACTS] Saved %d/%d facts for user %s", saved, len(candidates), userID)
	}
	return saved
}

// Delete removes one of a user's facts
func (s *FactService) Delete(ctx context.Context, userID, factID string) (bool, error) {
	n, err := s.store.Delete(ctx, database.TableFacts, []database.Filter{
		database.Eq("user_id", userID),
		database.Eq("id", factID),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete fact: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	invalidateSearchResults(ctx, s.cache, userID)
	log.Printf("🗑️ [FACTS] Deleted fact %s for user %s", factID, userID)
	return true, nil
}
