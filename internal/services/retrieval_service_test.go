package services

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"

	"warmth/internal/database"
	"warmth/internal/models"
)

// countingLister counts List calls
type countingLister struct {
	facts []models.Fact
	err   error
	calls int
}

func (l *countingLister) List(ctx context.Context, userID string) ([]models.Fact, error) {
	l.calls++
	return l.facts, l.err
}

func TestRankFacts(t *testing.T) {
	facts := []models.Fact{
		{Key: "Hobbies", Value: "enjoys hiking", Importance: 0.5},
		{Key: "Pet", Value: "has a dog", Importance: 0.9},
		{Key: "Location", Value: "lives in Seattle", Importance: 0.5},
	}

	results := RankFacts("I took my dog hiking", facts, 5)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d: %+v", len(results), results)
	}
	// "dog" scores 1/5 boosted by importance, "hiking" scores 1/5 unboosted
	if results[0].Key != "Pet" {
		t.Errorf("Expected boosted Pet first, got %s", results[0].Key)
	}
	if results[0].Relevance <= results[1].Relevance {
		t.Errorf("Expected descending relevance, got %v then %v", results[0].Relevance, results[1].Relevance)
	}
}

func TestRankFacts_ThresholdAndTopK(t *testing.T) {
	facts := []models.Fact{
		{Key: "Work", Value: "software engineer at a large company in the city center downtown", Importance: 0.5},
		{Key: "Music", Value: "plays guitar", Importance: 0.5},
		{Key: "Music", Value: "sings guitar songs", Importance: 0.5},
	}

	// 1 of 12 words overlaps, so relevance 0.083 is discarded
	results := RankFacts("company", facts, 5)
	if len(results) != 0 {
		t.Errorf("Expected low relevance discarded, got %+v", results)
	}

	results = RankFacts("guitar", facts, 1)
	if len(results) != 1 {
		t.Fatalf("Expected topK=1, got %d", len(results))
	}
	if results[0].Value != "plays guitar" {
		t.Errorf("Expected 'plays guitar' (higher relevance), got %q", results[0].Value)
	}
}

func TestRankFacts_StableTies(t *testing.T) {
	facts := []models.Fact{
		{Key: "A", Value: "likes tea", Importance: 0.5},
		{Key: "B", Value: "likes tea", Importance: 0.5},
		{Key: "C", Value: "likes tea", Importance: 0.5},
	}
	results := RankFacts("tea", facts, 5)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, key := range []string{"A", "B", "C"} {
		if results[i].Key != key {
			t.Errorf("Expected storage order %s at %d, got %s", key, i, results[i].Key)
		}
	}
}

func TestRetriever_Sentinels(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	empty := NewRetriever(&countingLister{}, newTestCache(clock))
	if got := empty.FactsContext(ctx, "u1", "hello", 5); got != NoMemoriesContext {
		t.Errorf("Expected %q, got %q", NoMemoriesContext, got)
	}

	unrelated := NewRetriever(&countingLister{facts: []models.Fact{{Key: "Pet", Value: "cat"}}}, newTestCache(clock))
	if got := unrelated.FactsContext(ctx, "u1", "weather today", 5); got != NoRelevantMemoriesContext {
		t.Errorf("Expected %q, got %q", NoRelevantMemoriesContext, got)
	}

	broken := NewRetriever(&countingLister{err: errStoreDown}, newTestCache(clock))
	if got := broken.FactsContext(ctx, "u1", "hello", 5); got != MemorySearchUnavailableMsg {
		t.Errorf("Expected %q, got %q", MemorySearchUnavailableMsg, got)
	}
	if _, err := broken.Retrieve(ctx, "u1", "hello", 5); err == nil {
		t.Error("Expected Retrieve to surface the store error")
	}
}

func TestRetriever_CachesPerQuery(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	lister := &countingLister{facts: []models.Fact{{Key: "Pet", Value: "dog", Importance: 0.9}}}
	retriever := NewRetriever(lister, newTestCache(clock))

	first := retriever.FactsContext(ctx, "u1", "my dog", 5)
	second := retriever.FactsContext(ctx, "u1", "  My Dog ", 5)
	if first != "Pet: dog" || second != first {
		t.Errorf("Expected cached 'Pet: dog', got %q then %q", first, second)
	}
	if lister.calls != 1 {
		t.Errorf("Expected 1 store call, got %d", lister.calls)
	}

	_ = retriever.FactsContext(ctx, "u1", "my dog", 3)
	if lister.calls != 2 {
		t.Errorf("Expected different topK to miss, got %d calls", lister.calls)
	}

	retriever.Invalidate(ctx, "u1")
	_ = retriever.FactsContext(ctx, "u1", "my dog", 5)
	if lister.calls != 3 {
		t.Errorf("Expected miss after invalidation, got %d calls", lister.calls)
	}
}

func TestRetriever_InvalidatedBySave(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	cacheStore := newTestCache(clock)
	facts := NewFactService(database.NewMemoryRowStore(), cacheStore, clock)
	retriever := NewRetriever(facts, cacheStore)

	if got := retriever.FactsContext(ctx, "u1", "tell me about my dog", 5); got != NoMemoriesContext {
		t.Fatalf("Expected %q, got %q", NoMemoriesContext, got)
	}

	if saved, err := facts.Save(ctx, "u1", models.FactCandidate{Key: "Pet", Value: "dog named Max"}); err != nil || !saved {
		t.Fatalf("Expected fact saved, got saved=%v err=%v", saved, err)
	}

	if got := retriever.FactsContext(ctx, "u1", "tell me about my dog", 5); got != "Pet: dog named Max" {
		t.Errorf("Expected fresh result after save, got %q", got)
	}
}
