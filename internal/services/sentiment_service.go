package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"warmth/internal/models"
)

// DefaultTopic labels samples the analyzer could not attribute
const DefaultTopic = "General"

const maxSentimentLabels = 5

const sentimentSystemPrompt = "You are a JSON-only emotion analysis assistant. Always respond with valid JSON. No markdown, no commentary."

const sentimentPromptTemplate = `Analyze the following message for emotional content and topics.

Current message to analyze:
%s

You MUST respond with ONLY a valid JSON object matching this EXACT schema. Do not include any other text, markdown formatting, or explanations.

Schema:
{
  "emotions": ["emotion1", "emotion2"],
  "topics": ["topic1", "topic2"],
  "sentiment_score": 0.5,
  "intensity": 0.7
}

Rules:
- "emotions": Array of 1-5 emotions from: happy, sad, anxious, calm, tired, proud, frustrated, hopeful, lonely, grateful, overwhelmed, peaceful
- "topics": Array of 1-5 main topics discussed
- "sentiment_score": Float from -1.0 (very negative) to +1.0 (very positive)
- "intensity": Float from 0.0 (mild) to 1.0 (intense)

Return ONLY the JSON string.`

// SentimentAnalyzer scores a single utterance
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) (models.Sentiment, error)
}

// LLMSentimentAnalyzer asks the inference endpoint for a structured emotion analysis
type LLMSentimentAnalyzer struct {
	client ChatClient
}

// NewLLMSentimentAnalyzer creates an analyzer over client. The client should use a low temperature.
func NewLLMSentimentAnalyzer(client ChatClient) *LLMSentimentAnalyzer {
	return &LLMSentimentAnalyzer{client: client}
}

// NeutralSentiment is the fallback when analysis is unavailable
func NeutralSentiment() models.Sentiment {
	return models.Sentiment{Score: 0, Topics: []string{DefaultTopic}, Intensity: 0.5}
}

// Analyze returns a clamped sentiment. Malformed output yields a neutral result with no error;
// transport failures yield a neutral result and the error.
func (a *LLMSentimentAnalyzer) Analyze(ctx context.Context, text string) (models.Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return NeutralSentiment(), nil
	}

	reply, err := a.client.Chat(ctx, []models.ChatMessage{
		{Role: models.RoleSystem, Content: sentimentSystemPrompt},
		{Role: models.RoleUser, Content: fmt.Sprintf(sentimentPromptTemplate, text)},
	})
	if err != nil {
		return NeutralSentiment(), fmt.Errorf("sentiment analysis failed: %w", err)
	}

	return ParseSentiment(reply), nil
}

// ParseSentiment decodes an analysis reply, tolerating fences and surrounding prose
func ParseSentiment(reply string) models.Sentiment {
	content := extractJSONObject(stripCodeFences(reply))
	if content == "" {
		return NeutralSentiment()
	}

	var raw struct {
		Emotions       []string `json:"emotions"`
		Topics         []string `json:"topics"`
		SentimentScore *float64 `json:"sentiment_score"`
		Intensity      *float64 `json:"intensity"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		slog.Debug("sentiment reply not JSON", "error", err, "content", truncateForLog(content, 200))
		return NeutralSentiment()
	}

	result := NeutralSentiment()
	if raw.SentimentScore != nil {
		result.Score = clamp(*raw.SentimentScore, -1, 1)
	}
	if raw.Intensity != nil {
		result.Intensity = clamp(*raw.Intensity, 0, 1)
	}
	if topics := firstN(nonEmpty(raw.Topics), maxSentimentLabels); len(topics) > 0 {
		result.Topics = topics
	}
	result.Emotions = firstN(nonEmpty(raw.Emotions), maxSentimentLabels)
	return result
}

// PrimaryTopic returns the first topic or DefaultTopic
func PrimaryTopic(s models.Sentiment) string {
	for _, t := range s.Topics {
		if strings.TrimSpace(t) != "" {
			return t
		}
	}
	return DefaultTopic
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
