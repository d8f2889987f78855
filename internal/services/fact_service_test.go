package services

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"

	"warmth/internal/database"
	"warmth/internal/models"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Basic normalization", "User prefers dark mode", "user prefers dark mode"},
		{"Remove punctuation", "User's name is John, and he likes coffee!", "users name is john and he likes coffee"},
		{"Collapse whitespace", "User   likes    lots   of   spaces", "user likes lots of spaces"},
		{"Mixed case and punctuation", "User PREFERS Dark-Mode!!!", "user prefers dark mode"},
		{"Numbers preserved", "User is 25 years old", "user is 25 years old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := normalizeContent(tt.input); result != tt.expected {
				t.Errorf("Expected: %q, got: %q", tt.expected, result)
			}
		})
	}
}

func TestFactService_IsDuplicate(t *testing.T) {
	service := &FactService{}
	existing := []models.Fact{
		{Key: "Hobbies", Value: "enjoys hiking"},
		{Key: "Family", Value: "has a sister named Anna"},
	}

	tests := []struct {
		name      string
		candidate models.FactCandidate
		expected  bool
	}{
		{"shared activity", models.FactCandidate{Key: "hobbies", Value: "hiking on weekends"}, true},
		{"value substring", models.FactCandidate{Key: "HOBBIES", Value: "Enjoys Hiking"}, true},
		{"key substring", models.FactCandidate{Key: "Family members", Value: "sister named Anna"}, true},
		{"different hobby", models.FactCandidate{Key: "Hobbies", Value: "enjoys reading"}, false},
		{"different key", models.FactCandidate{Key: "Location", Value: "hiking trails nearby"}, false},
		{"new family member", models.FactCandidate{Key: "Family", Value: "has a brother"}, false},
		{"another sibling sharing filler words", models.FactCandidate{Key: "Family", Value: "has a brother named Tom"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.IsDuplicate(tt.candidate, existing); got != tt.expected {
				t.Errorf("Expected duplicate=%v, got %v", tt.expected, got)
			}
		})
	}
}

func TestFactService_IsDuplicateKeepsDistinctFacts(t *testing.T) {
	service := &FactService{}

	tests := []struct {
		name      string
		existing  models.Fact
		candidate models.FactCandidate
	}{
		{"second pet", models.Fact{Key: "Pets", Value: "has a golden retriever named Max"}, models.FactCandidate{Key: "Pets", Value: "has a cat named Luna"}},
		{"second child", models.Fact{Key: "Family", Value: "has a daughter named Emma"}, models.FactCandidate{Key: "Family", Value: "has a son named Jack"}},
		{"new employer", models.Fact{Key: "Work", Value: "works remotely for Acme"}, models.FactCandidate{Key: "Work", Value: "works remotely for Globex now"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if service.IsDuplicate(tt.candidate, []models.Fact{tt.existing}) {
				t.Errorf("Expected %q to be kept next to %q", tt.candidate.Value, tt.existing.Value)
			}
		})
	}
}

func TestWordOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"shared activity", "enjoys hiking", "hiking on weekends", 0.5},
		{"only filler shared", "has a cat named luna", "has a dog named max", 0},
		{"no significant words", "has a", "is the", 0},
		{"identical", "plays violin", "plays violin", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wordOverlap(tt.a, tt.b); got != tt.expected {
				t.Errorf("Expected overlap %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestFactService_SaveDropsDuplicates(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	service := NewFactService(database.NewMemoryRowStore(), newTestCache(clock), clock)

	saved, err := service.Save(ctx, "u1", models.FactCandidate{Key: "Hobbies", Value: "enjoys hiking"})
	if err != nil || !saved {
		t.Fatalf("Expected first save to succeed, got saved=%v err=%v", saved, err)
	}

	saved, err = service.Save(ctx, "u1", models.FactCandidate{Key: "hobbies", Value: "hiking on weekends"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved {
		t.Error("Expected duplicate to be dropped")
	}

	// Other users are independent
	saved, _ = service.Save(ctx, "u2", models.FactCandidate{Key: "Hobbies", Value: "hiking on weekends"})
	if !saved {
		t.Error("Expected save for a different user")
	}

	facts, err := service.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("Expected 1 fact, got %d", len(facts))
	}
	if facts[0].Importance != models.DefaultFactImportance {
		t.Errorf("Expected default importance %v, got %v", models.DefaultFactImportance, facts[0].Importance)
	}
	if facts[0].ID == "" {
		t.Error("Expected generated ID")
	}
}

func TestFactService_SaveAll(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	service := NewFactService(database.NewMemoryRowStore(), newTestCache(clock), clock)

	candidates := []models.FactCandidate{
		{Key: "Profession", Value: "nurse", SourceConfidence: 0.95},
		{Key: "Profession", Value: "works as a nurse"},
		{Key: "", Value: "no key"},
		{Key: "Location", Value: "Portland"},
	}

	if saved := service.SaveAll(ctx, "u1", candidates); saved != 2 {
		t.Errorf("Expected 2 saved, got %d", saved)
	}

	facts, _ := service.List(ctx, "u1")
	if len(facts) != 2 {
		t.Fatalf("Expected 2 facts, got %d", len(facts))
	}
	if facts[0].Importance != 0.95 {
		t.Errorf("Expected confidence carried into importance, got %v", facts[0].Importance)
	}
}

func TestFactService_StoreFailure(t *testing.T) {
	ctx := context.Background()
	service := NewFactService(failingStore{}, nil, nil)

	if _, err := service.Save(ctx, "u1", models.FactCandidate{Key: "Pet", Value: "cat"}); err == nil {
		t.Error("Expected error from failing store")
	}
	if saved := service.SaveAll(ctx, "u1", []models.FactCandidate{{Key: "Pet", Value: "cat"}}); saved != 0 {
		t.Errorf("Expected 0 saved, got %d", saved)
	}
}

func TestFactService_Delete(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	service := NewFactService(database.NewMemoryRowStore(), newTestCache(clock), clock)

	_, _ = service.Save(ctx, "u1", models.FactCandidate{Key: "Pet", Value: "cat"})
	facts, _ := service.List(ctx, "u1")

	if deleted, _ := service.Delete(ctx, "u2", facts[0].ID); deleted {
		t.Error("Expected delete scoped to owner")
	}
	if deleted, err := service.Delete(ctx, "u1", facts[0].ID); err != nil || !deleted {
		t.Errorf("Expected delete, got deleted=%v err=%v", deleted, err)
	}
}
