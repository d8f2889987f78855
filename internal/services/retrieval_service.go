package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"warmth/internal/cache"
	"warmth/internal/models"
)

// Retrieval sentinels keep prompt assembly stable when there is nothing to inject
const (
	NoMemoriesContext          = "No memories about user yet."
	NoRelevantMemoriesContext  = "No directly relevant memories."
	MemorySearchUnavailableMsg = "Memory search temporarily unavailable."
)

const (
	DefaultTopK     = 5
	minRelevance    = 0.1
	importanceBoost = 1.2
)

// FactLister provides a user's stored facts
type FactLister interface {
	List(ctx context.Context, userID string) ([]models.Fact, error)
}

type searchResultEntry struct {
	Results   []models.ScoredFact `json:"results"`
	FactCount int                 `json:"fact_count"`
}

// Retriever ranks stored facts against the current utterance
type Retriever struct {
	facts FactLister
	cache *cache.Store
}

// NewRetriever creates a retriever
func NewRetriever(facts FactLister, cacheStore *cache.Store) *Retriever {
	return &Retriever{facts: facts, cache: cacheStore}
}

// searchNamespace scopes cached results to one user so they can be cleared together
func searchNamespace(userID string) string {
	return fmt.Sprintf("%s:user_%s", cache.NamespaceSearchResult, userID)
}

func searchKey(query string, topK int) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("q_%016x_k_%d", xxhash.Sum64String(normalized), topK)
}

// invalidateSearchResults drops every cached search result for userID
func invalidateSearchResults(ctx context.Context, cacheStore *cache.Store, userID string) int {
	if cacheStore == nil {
		return 0
	}
	return cacheStore.Clear(ctx, searchNamespace(userID))
}

// tokenize returns the lowercase word set of text
func tokenize(text string) map[string]struct{} {
	words := strings.Fields(normalizeContent(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// RankFacts scores facts by word overlap with query, boosted by importance.
// Equal scores keep storage order.
func RankFacts(query string, facts []models.Fact, topK int) []models.ScoredFact {
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryWords := tokenize(query)
	scored := make([]models.ScoredFact, 0, len(facts))
	for _, fact := range facts {
		factWords := tokenize(fact.Key + " " + fact.Value)

		overlap := 0
		for w := range queryWords {
			if _, ok := factWords[w]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}

		relevance := float64(overlap) / float64(max(len(queryWords), len(factWords)))
		if fact.Importance > models.HighImportanceThreshold {
			relevance *= importanceBoost
		}
		if relevance <= minRelevance {
			continue
		}

		scored = append(scored, models.ScoredFact{Key: fact.Key, Value: fact.Value, Relevance: relevance})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance > scored[j].Relevance
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func (r *Retriever) lookup(ctx context.Context, userID, query string, topK int) (searchResultEntry, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	namespace := searchNamespace(userID)
	key := searchKey(query, topK)

	var entry searchResultEntry
	if r.cache.Get(ctx, namespace, key, &entry).Hit() {
		slog.Debug("search result cache hit", "user_id", userID, "key", key)
		return entry, nil
	}

	facts, err := r.facts.List(ctx, userID)
	if err != nil {
		return searchResultEntry{}, err
	}

	entry = searchResultEntry{
		Results:   RankFacts(query, facts, topK),
		FactCount: len(facts),
	}
	r.cache.SetDefault(ctx, namespace, key, entry)
	return entry, nil
}

// Retrieve returns the top-K facts relevant to query
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, topK int) ([]models.ScoredFact, error) {
	entry, err := r.lookup(ctx, userID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve facts: %w", err)
	}
	return entry.Results, nil
}

// FactsContext renders relevant facts for the system prompt, or a sentinel
func (r *Retriever) FactsContext(ctx context.Context, userID, query string, topK int) string {
	entry, err := r.lookup(ctx, userID, query, topK)
	if err != nil {
		log.Printf("⚠️ [RETRIEVER] Error getting memories for context (user %s): %v", userID, err)
		return MemorySearchUnavailableMsg
	}
	if entry.FactCount == 0 {
		return NoMemoriesContext
	}
	if len(entry.Results) == 0 {
		return NoRelevantMemoriesContext
	}
	return FormatFacts(entry.Results)
}

// FormatFacts renders facts as "key: value" pairs
func FormatFacts(facts []models.ScoredFact) string {
	parts := make([]string, 0, len(facts))
	for _, f := range facts {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Key, f.Value))
	}
	return strings.Join(parts, ", ")
}

// Invalidate drops the cached results for userID
func (r *Retriever) Invalidate(ctx context.Context, userID string) {
	if cleared := invalidateSearchResults(ctx, r.cache, userID); cleared > 0 {
		slog.Debug("search results invalidated", "user_id", userID, "cleared", cleared)
	}
}
