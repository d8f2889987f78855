package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"warmth/internal/database"
	"warmth/internal/models"
)

func journalTurns(clock clockwork.Clock, n int) []models.ConversationTurn {
	turns := make([]models.ConversationTurn, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		turns = append(turns, NewTurn(role, "we talked about the garden", clock.Now()))
	}
	return turns
}

func TestJournalService_Generate(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := database.NewMemoryRowStore()
	client := &fakeChatClient{replies: []string{"```json\n{\"title\": \"Green Thumbs\", \"content\": \"I felt calm today.\", \"mood_score\": 0.6, \"tags\": [\"garden\", \"calm\"]}\n```"}}
	service := NewJournalService(client, store, clock)

	journal, err := service.Generate(ctx, "u1", journalTurns(clock, 24))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if journal == nil || journal.Title != "Green Thumbs" || !journal.IsAutomated {
		t.Fatalf("Expected automated journal 'Green Thumbs', got %+v", journal)
	}
	// system prompt plus the last 20 turns
	if len(client.calls[0]) != 21 {
		t.Errorf("Expected 21 messages, got %d", len(client.calls[0]))
	}

	journals, err := service.List(ctx, "u1", time.Time{}, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(journals) != 1 {
		t.Fatalf("Expected 1 journal, got %d", len(journals))
	}
	if len(journals[0].Tags) != 2 || !journals[0].IsAutomated || journals[0].MoodScore != 0.6 {
		t.Errorf("Expected stored tags and flags to round-trip, got %+v", journals[0])
	}
}

func TestJournalService_DefaultsAndShortTranscript(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	client := &fakeChatClient{replies: []string{`{"content": "A quiet evening.", "mood_score": 4}`}}
	service := NewJournalService(client, database.NewMemoryRowStore(), clock)

	if journal, err := service.Generate(ctx, "u1", journalTurns(clock, 3)); journal != nil || err != nil {
		t.Errorf("Expected no journal for short transcript, got %+v, %v", journal, err)
	}

	journal, err := service.Generate(ctx, "u1", journalTurns(clock, 4))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if journal.Title != DefaultJournalTitle {
		t.Errorf("Expected default title, got %q", journal.Title)
	}
	if journal.MoodScore != 1 {
		t.Errorf("Expected clamped mood score 1, got %v", journal.MoodScore)
	}
}

func TestJournalService_MalformedReply(t *testing.T) {
	clock := clockwork.NewFakeClock()
	service := NewJournalService(&fakeChatClient{replies: []string{"Dear diary, today was nice"}}, database.NewMemoryRowStore(), clock)
	if _, err := service.Generate(context.Background(), "u1", journalTurns(clock, 4)); err == nil {
		t.Error("Expected parse error for non-JSON reply")
	}
}
