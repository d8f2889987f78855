package models

import "time"

// Conversation roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single message sent to the inference endpoint
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationTurn is one entry of the in-process conversation window.
// TokenCost is approximate, see services.EstimateTurnTokens.
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	TokenCost int       `json:"token_cost"`
	CreatedAt time.Time `json:"created_at"`
}

// Message returns the turn as an inference message
func (t ConversationTurn) Message() ChatMessage {
	return ChatMessage{Role: t.Role, Content: t.Content}
}

// StoredMessage is a persisted chat message (messages table)
type StoredMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
