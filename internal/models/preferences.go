package models

import "time"

// Preferences are per-user conversation settings
type Preferences struct {
	UserID        string    `json:"user_id"`
	ListeningMode bool      `json:"listening_mode"` // short messages get a quiet acknowledgement instead of a reply
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}
