package models

import "time"

// MoodSample is a single scored utterance; persisted append-only
type MoodSample struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Score     float64   `json:"score"` // -1.0 (very negative) to 1.0 (very positive)
	Label     string    `json:"label"` // Great, Good, Neutral, Low, Heavy
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// Mood labels
const (
	MoodGreat   = "Great"
	MoodGood    = "Good"
	MoodNeutral = "Neutral"
	MoodLow     = "Low"
	MoodHeavy   = "Heavy"
)

// CheckinSignal gates the proactive check-in notification
type CheckinSignal struct {
	IsNegativeTrend bool    `json:"is_negative_trend"`
	AvgMood         float64 `json:"avg_mood"`
	Trend           string  `json:"trend"` // "declining", "stable", "improving", "insufficient_data", "error"
}

// Sentiment is the result of the sentiment collaborator
type Sentiment struct {
	Score     float64  `json:"sentiment_score"`
	Topics    []string `json:"topics"`
	Emotions  []string `json:"emotions,omitempty"`
	Intensity float64  `json:"intensity,omitempty"`
}
