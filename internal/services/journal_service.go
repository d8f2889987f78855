package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"warmth/internal/database"
	"warmth/internal/models"
)

// DefaultJournalTitle is used when the model omits a title
const DefaultJournalTitle = "Reflections"

const (
	journalWindow   = 20
	journalMinTurns = 4
)

const journalPrompt = `You are an empathetic journaling assistant. Read the recent conversation and write a personal journal entry from the user's perspective.

The journal entry should:
1. Reflect on the key topics discussed.
2. Capture the emotions felt.
3. Be written in the first person ("I felt...", "I realized...").
4. Be warm, insightful, and concise (under 200 words).
5. Have a creative title.

Output ONLY a JSON object in this format:
{
    "title": "Creative Title",
    "content": "The journal entry text...",
    "mood_score": 0.5,
    "tags": ["tag1", "tag2"]
}
The mood_score is the estimated mood from -1.0 (sad) to 1.0 (happy).`

// JournalService writes automated journal entries after an idle period
type JournalService struct {
	client ChatClient
	store  database.RowStore
	clock  clockwork.Clock
}

// NewJournalService creates a journal service
func NewJournalService(client ChatClient, store database.RowStore, clock clockwork.Clock) *JournalService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JournalService{client: client, store: store, clock: clock}
}

// Generate writes an entry from the last turns. Fewer than four turns produce no entry and no error.
func (s *JournalService) Generate(ctx context.Context, userID string, turns []models.ConversationTurn) (*models.Journal, error) {
	if len(turns) < journalMinTurns {
		return nil, nil
	}
	if len(turns) > journalWindow {
		turns = turns[len(turns)-journalWindow:]
	}

	messages := make([]models.ChatMessage, 0, len(turns)+1)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: journalPrompt})
	for _, turn := range turns {
		messages = append(messages, turn.Message())
	}

	reply, err := s.client.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate journal: %w", err)
	}
	if reply == "" {
		return nil, nil
	}

	var raw struct {
		Title     string   `json:"title"`
		Content   string   `json:"content"`
		MoodScore float64  `json:"mood_score"`
		Tags      []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(stripCodeFences(reply))), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse journal JSON: %w", err)
	}

	journal := &models.Journal{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       firstNonEmpty(raw.Title, DefaultJournalTitle),
		Content:     raw.Content,
		MoodScore:   clamp(raw.MoodScore, -1, 1),
		Tags:        nonEmpty(raw.Tags),
		IsAutomated: true,
		CreatedAt:   s.clock.Now(),
	}

	err = s.store.Insert(ctx, database.TableJournals, database.Row{
		"id":           journal.ID,
		"user_id":      journal.UserID,
		"title":        journal.Title,
		"content":      journal.Content,
		"mood_score":   journal.MoodScore,
		"tags":         database.JSONValue(journal.Tags),
		"is_automated": journal.IsAutomated,
		"created_at":   database.TimeValue(journal.CreatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save journal: %w", err)
	}

	log.Printf("📔 [JOURNAL] Automated journal generated for user %s (%q)", userID, journal.Title)
	return journal, nil
}

// List returns a user's journals since the given time, newest first
func (s *JournalService) List(ctx context.Context, userID string, since time.Time, limit int) ([]models.Journal, error) {
	filters := []database.Filter{database.Eq("user_id", userID)}
	if !since.IsZero() {
		filters = append(filters, database.Gte("created_at", database.TimeValue(since)))
	}

	rows, err := s.store.Select(ctx, database.TableJournals, filters,
		&database.Order{Column: "created_at", Desc: true}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journals: %w", err)
	}

	journals := make([]models.Journal, 0, len(rows))
	for _, row := range rows {
		journals = append(journals, models.Journal{
			ID:          database.AsString(row["id"]),
			UserID:      database.AsString(row["user_id"]),
			Title:       database.AsString(row["title"]),
			Content:     database.AsString(row["content"]),
			MoodScore:   database.AsFloat(row["mood_score"]),
			Tags:        database.AsStrings(row["tags"]),
			IsAutomated: database.AsBool(row["is_automated"]),
			CreatedAt:   database.AsTime(row["created_at"]),
		})
	}
	return journals, nil
}
