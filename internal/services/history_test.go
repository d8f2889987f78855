package services

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"warmth/internal/models"
)

func turnOfCost(content string) models.ConversationTurn {
	return NewTurn(models.RoleUser, content, time.Time{})
}

func TestEstimateTurnTokens(t *testing.T) {
	tests := []struct {
		content  string
		expected int
	}{
		{"", 2},
		{"abc", 2},
		{"abcd", 3},
		{strings.Repeat("x", 40), 12},
	}
	for _, tt := range tests {
		if got := EstimateTurnTokens(tt.content); got != tt.expected {
			t.Errorf("EstimateTurnTokens(%d chars) = %d, expected %d", len(tt.content), got, tt.expected)
		}
	}
}

func TestPruneByTokens(t *testing.T) {
	short := strings.Repeat("s", 8) // 4 tokens
	long := strings.Repeat("l", 40) // 12 tokens

	t.Run("keeps newest turns in order", func(t *testing.T) {
		turns := []models.ConversationTurn{turnOfCost("a" + short), turnOfCost("b" + short), turnOfCost("c" + short)}
		got := PruneByTokens(turns, 9)
		if len(got) != 2 {
			t.Fatalf("Expected 2 turns, got %d", len(got))
		}
		if got[0].Content != "b"+short || got[1].Content != "c"+short {
			t.Errorf("Expected the two newest in chronological order, got %q, %q", got[0].Content, got[1].Content)
		}
	})

	t.Run("stops at first overflow", func(t *testing.T) {
		turns := []models.ConversationTurn{turnOfCost(short), turnOfCost(long), turnOfCost(short)}
		got := PruneByTokens(turns, 10)
		if len(got) != 1 {
			t.Errorf("Expected only the newest turn, got %d", len(got))
		}
	})

	t.Run("newest kept when over budget", func(t *testing.T) {
		got := PruneByTokens([]models.ConversationTurn{turnOfCost(short), turnOfCost(long)}, 5)
		if len(got) != 1 || got[0].Content != long {
			t.Errorf("Expected the oversized newest turn alone, got %+v", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := PruneByTokens(nil, 100); len(got) != 0 {
			t.Errorf("Expected empty result, got %d", len(got))
		}
	})
}

func TestHistoryWindow_TrimAndRecent(t *testing.T) {
	w := NewHistoryWindow()
	for i := 0; i < 5; i++ {
		w.Append(models.ConversationTurn{Role: models.RoleUser, Content: strings.Repeat("x", 8)})
	}

	recent := w.Recent(2)
	if len(recent) != 2 {
		t.Errorf("Expected 2 recent turns, got %d", len(recent))
	}
	if recent[0].TokenCost != 4 {
		t.Errorf("Expected token cost filled in on append, got %d", recent[0].TokenCost)
	}

	kept := w.Trim(12)
	if len(kept) != 3 || w.Len() != 3 {
		t.Errorf("Expected 3 turns after trim, got %d (len %d)", len(kept), w.Len())
	}
	if len(w.Messages()) != 3 {
		t.Errorf("Expected 3 messages, got %d", len(w.Messages()))
	}
}

func TestHistoryStore_IsolationAndEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewHistoryStore(clock)

	store.Window("alice").Append(turnOfCost("hello"))
	if store.Window("bob").Len() != 0 {
		t.Error("Expected bob's window to be empty")
	}

	clock.Advance(2 * time.Hour)
	store.Window("bob")

	if evicted := store.EvictIdle(time.Hour); evicted != 1 {
		t.Errorf("Expected 1 evicted window, got %d", evicted)
	}
	users := store.Users()
	if len(users) != 1 || users[0] != "bob" {
		t.Errorf("Expected only bob to remain, got %v", users)
	}
}
