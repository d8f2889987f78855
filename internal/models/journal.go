package models

import "time"

// Journal is an automated journal entry written after an idle period
type Journal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	MoodScore   float64   `json:"mood_score"`
	Tags        []string  `json:"tags"`
	IsAutomated bool      `json:"is_automated"`
	CreatedAt   time.Time `json:"created_at"`
}
