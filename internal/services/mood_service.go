package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"warmth/internal/cache"
	"warmth/internal/database"
	"warmth/internal/models"
)

// Mood context strings
const (
	MoodContextNoData      = "Unknown mood (no data)"
	MoodContextPositive    = "Positive mood"
	MoodContextNegative    = "Negative mood"
	MoodContextNeutral     = "Neutral mood"
	MoodContextUnavailable = "Mood context unavailable"
)

// Checkin trend labels
const (
	TrendDeclining        = "declining"
	TrendStable           = "stable"
	TrendImproving        = "improving"
	TrendInsufficientData = "insufficient_data"
	TrendError            = "error"
)

const (
	moodPolarityThreshold = 0.3
	moodChangeThreshold   = 0.2
	checkinMinSamples     = 3
	checkinNegativeAvg    = -0.1
	checkinStableBand     = 0.1
)

// MoodLabel maps a score to its label. Thresholds are evaluated in order.
func MoodLabel(score float64) string {
	switch {
	case score >= 0.5:
		return models.MoodGreat
	case score >= 0.05:
		return models.MoodGood
	case score <= -0.5:
		return models.MoodHeavy
	case score <= -0.05:
		return models.MoodLow
	default:
		return models.MoodNeutral
	}
}

// DescribeMood summarises scores ordered newest first
func DescribeMood(scores []float64) string {
	if len(scores) == 0 {
		return MoodContextNoData
	}

	current := scores[0]
	var description string
	switch {
	case current > moodPolarityThreshold:
		description = MoodContextPositive
	case current < -moodPolarityThreshold:
		description = MoodContextNegative
	default:
		description = MoodContextNeutral
	}

	if len(scores) >= 2 {
		change := current - scores[1]
		if math.Abs(change) > moodChangeThreshold {
			if change > 0 {
				description += " (improving)"
			} else {
				description += " (declining)"
			}
		}
	}
	return description
}

// ComputeCheckin derives the proactive check-in signal from scores ordered newest first.
// The trend compares the newest two samples against the two before them.
func ComputeCheckin(scores []float64) models.CheckinSignal {
	if len(scores) < checkinMinSamples {
		return models.CheckinSignal{Trend: TrendInsufficientData}
	}

	avg := mean(scores)
	trend := 0.0
	if len(scores) >= 4 {
		trend = mean(scores[:2]) - mean(scores[2:4])
	}

	label := TrendImproving
	switch {
	case trend < -checkinStableBand:
		label = TrendDeclining
	case math.Abs(trend) <= checkinStableBand:
		label = TrendStable
	}

	return models.CheckinSignal{
		IsNegativeTrend: avg < checkinNegativeAvg && trend < 0,
		AvgMood:         avg,
		Trend:           label,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// MoodTracker scores utterances and maintains the cached mood context per user
type MoodTracker struct {
	store         database.RowStore
	cache         *cache.Store
	analyzer      SentimentAnalyzer
	clock         clockwork.Clock
	trendWindow   int
	checkinWindow int
}

// NewMoodTracker creates a tracker. Non-positive windows fall back to 2 and 5 samples.
func NewMoodTracker(store database.RowStore, cacheStore *cache.Store, analyzer SentimentAnalyzer, clock clockwork.Clock, trendWindow, checkinWindow int) *MoodTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if trendWindow <= 0 {
		trendWindow = 2
	}
	if checkinWindow <= 0 {
		checkinWindow = 5
	}
	return &MoodTracker{
		store:         store,
		cache:         cacheStore,
		analyzer:      analyzer,
		clock:         clock,
		trendWindow:   trendWindow,
		checkinWindow: checkinWindow,
	}
}

// Record scores text, persists the sample and invalidates the cached context.
// An analyzer failure is recorded as a neutral sample.
func (m *MoodTracker) Record(ctx context.Context, userID, text string) (models.MoodSample, error) {
	sentiment, err := m.analyzer.Analyze(ctx, text)
	if err != nil {
		log.Printf("⚠️ [MOOD] Sentiment analysis failed for user %s, using neutral: %v", userID, err)
	}

	sample := models.MoodSample{
		ID:        uuid.New().String(),
		UserID:    userID,
		Score:     sentiment.Score,
		Label:     MoodLabel(sentiment.Score),
		Topic:     PrimaryTopic(sentiment),
		Timestamp: m.clock.Now(),
	}

	row := database.Row{
		"id":         sample.ID,
		"user_id":    sample.UserID,
		"score":      sample.Score,
		"label":      sample.Label,
		"topic":      sample.Topic,
		"created_at": database.TimeValue(sample.Timestamp),
	}
	if err := m.store.Insert(ctx, database.TableMoodLogs, row); err != nil {
		return sample, fmt.Errorf("failed to log mood: %w", err)
	}

	m.cache.Delete(ctx, cache.NamespaceMoodContext, userID)
	slog.Debug("mood logged", "user_id", userID, "score", sample.Score, "label", sample.Label, "topic", sample.Topic)
	return sample, nil
}

func (m *MoodTracker) recentScores(ctx context.Context, userID string, limit int) ([]float64, error) {
	rows, err := m.store.Select(ctx, database.TableMoodLogs,
		[]database.Filter{database.Eq("user_id", userID)},
		&database.Order{Column: "created_at", Desc: true}, limit)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, database.AsFloat(row["score"]))
	}
	return scores, nil
}

// Context returns the cached mood summary, computing it on a miss
func (m *MoodTracker) Context(ctx context.Context, userID string) string {
	var cached string
	if m.cache.Get(ctx, cache.NamespaceMoodContext, userID, &cached).Hit() {
		return cached
	}

	scores, err := m.recentScores(ctx, userID, m.trendWindow)
	if err != nil {
		log.Printf("⚠️ [MOOD] Failed to get recent mood scores for user %s: %v", userID, err)
		return MoodContextUnavailable
	}

	description := DescribeMood(scores)
	m.cache.SetDefault(ctx, cache.NamespaceMoodContext, userID, description)
	return description
}

// Checkin computes the negative-trend signal over the check-in window
func (m *MoodTracker) Checkin(ctx context.Context, userID string) models.CheckinSignal {
	scores, err := m.recentScores(ctx, userID, m.checkinWindow)
	if err != nil {
		log.Printf("⚠️ [MOOD] Failed to compute check-in signal for user %s: %v", userID, err)
		return models.CheckinSignal{Trend: TrendError}
	}
	return ComputeCheckin(scores)
}

// History returns samples from the last days, newest first
func (m *MoodTracker) History(ctx context.Context, userID string, days int) ([]models.MoodSample, error) {
	if days <= 0 {
		days = 7
	}
	return m.Since(ctx, userID, m.clock.Now().Add(-time.Duration(days)*24*time.Hour))
}

// Since returns samples logged at or after cutoff, newest first. A zero cutoff returns all of them.
func (m *MoodTracker) Since(ctx context.Context, userID string, cutoff time.Time) ([]models.MoodSample, error) {
	rows, err := m.store.Select(ctx, database.TableMoodLogs,
		[]database.Filter{
			database.Eq("user_id", userID),
			database.Gte("created_at", database.TimeValue(cutoff)),
		},
		&database.Order{Column: "created_at", Desc: true}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get mood history: %w", err)
	}

	samples := make([]models.MoodSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, models.MoodSample{
			ID:        database.AsString(row["id"]),
			UserID:    database.AsString(row["user_id"]),
			Score:     database.AsFloat(row["score"]),
			Label:     database.AsString(row["label"]),
			Topic:     database.AsString(row["topic"]),
			Timestamp: database.AsTime(row["created_at"]),
		})
	}
	return samples, nil
}
