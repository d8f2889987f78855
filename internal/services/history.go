package services

import (
	"sort"
	"sync"
	"time"

	"warmth/internal/models"

	"github.com/jonboulle/clockwork"
)

// TurnOverheadTokens approximates role and separator tokens per turn
const TurnOverheadTokens = 2

// EstimateTurnTokens returns the approximate token cost of one turn using the ~4 chars/token heuristic
func EstimateTurnTokens(content string) int {
	return len(content)/4 + TurnOverheadTokens
}

// EstimateMessagesTokens estimates the total token count for a prompt
func EstimateMessagesTokens(messages []models.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTurnTokens(msg.Content)
	}
	return total
}

// NewTurn builds a turn with its token cost filled in
func NewTurn(role, content string, at time.Time) models.ConversationTurn {
	return models.ConversationTurn{
		Role:      role,
		Content:   content,
		TokenCost: EstimateTurnTokens(content),
		CreatedAt: at,
	}
}

// PruneByTokens keeps the most recent turns whose cumulative cost fits maxTokens,
// in chronological order. Accumulation stops at the first turn that would overflow,
// so an older short turn is never kept in place of a newer long one.
// The newest turn is always kept, even when it alone exceeds the budget.
func PruneByTokens(turns []models.ConversationTurn, maxTokens int) []models.ConversationTurn {
	if len(turns) == 0 {
		return nil
	}

	total := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		cost := turnCost(turns[i])
		if total+cost > maxTokens && start != len(turns) {
			break
		}
		total += cost
		start = i
		if total > maxTokens {
			break
		}
	}

	out := make([]models.ConversationTurn, len(turns)-start)
	copy(out, turns[start:])
	return out
}

func turnCost(turn models.ConversationTurn) int {
	if turn.TokenCost > 0 {
		return turn.TokenCost
	}
	return EstimateTurnTokens(turn.Content)
}

// HistoryWindow is one user's rolling conversation transcript
type HistoryWindow struct {
	mu    sync.RWMutex
	turns []models.ConversationTurn
}

// NewHistoryWindow creates an empty window
func NewHistoryWindow() *HistoryWindow {
	return &HistoryWindow{}
}

// Append adds a turn, filling in its token cost when missing
func (w *HistoryWindow) Append(turn models.ConversationTurn) {
	if turn.TokenCost <= 0 {
		turn.TokenCost = EstimateTurnTokens(turn.Content)
	}
	w.mu.Lock()
	w.turns = append(w.turns, turn)
	w.mu.Unlock()
}

// Trim drops the oldest turns beyond maxTokens and returns the retained window
func (w *HistoryWindow) Trim(maxTokens int) []models.ConversationTurn {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = PruneByTokens(w.turns, maxTokens)
	return append([]models.ConversationTurn(nil), w.turns...)
}

// Recent returns up to the last n turns
func (w *HistoryWindow) Recent(n int) []models.ConversationTurn {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 || n > len(w.turns) {
		n = len(w.turns)
	}
	return append([]models.ConversationTurn(nil), w.turns[len(w.turns)-n:]...)
}

// Turns returns a copy of the full window
func (w *HistoryWindow) Turns() []models.ConversationTurn {
	return w.Recent(0)
}

// Len returns the number of turns held
func (w *HistoryWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.turns)
}

// Messages returns the window as inference messages
func (w *HistoryWindow) Messages() []models.ChatMessage {
	turns := w.Turns()
	out := make([]models.ChatMessage, len(turns))
	for i, t := range turns {
		out[i] = t.Message()
	}
	return out
}

type historyEntry struct {
	window  *HistoryWindow
	touched time.Time
}

// HistoryStore holds per-user windows; users never share a window
type HistoryStore struct {
	mu      sync.Mutex
	windows map[string]*historyEntry
	clock   clockwork.Clock
}

// NewHistoryStore creates an empty store
func NewHistoryStore(clock clockwork.Clock) *HistoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HistoryStore{
		windows: make(map[string]*historyEntry),
		clock:   clock,
	}
}

// Window returns the user's window, creating it on first use
func (h *HistoryStore) Window(userID string) *HistoryWindow {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.windows[userID]
	if !ok {
		entry = &historyEntry{window: NewHistoryWindow()}
		h.windows[userID] = entry
	}
	entry.touched = h.clock.Now()
	return entry.window
}

// Drop discards the user's window
func (h *HistoryStore) Drop(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, userID)
}

// Users returns the ids of users with a window, sorted
func (h *HistoryStore) Users() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	users := make([]string, 0, len(h.windows))
	for id := range h.windows {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// EvictIdle drops windows not touched within olderThan and reports how many went
func (h *HistoryStore) EvictIdle(olderThan time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.clock.Now().Add(-olderThan)
	evicted := 0
	for id, entry := range h.windows {
		if entry.touched.Before(cutoff) {
			delete(h.windows, id)
			evicted++
		}
	}
	return evicted
}
