package models

import "time"

// Fact is a deduplicated, persisted statement believed true about a user
type Fact struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"`        // Category, e.g. "Hobbies", "Family"
	Value      string    `json:"value"`      // Specific detail, e.g. "enjoys hiking"
	Importance float64   `json:"importance"` // 0.0-1.0, boosts retrieval above 0.7
	CreatedAt  time.Time `json:"created_at"`
}

// FactCandidate is an extraction result that has not yet passed deduplication
type FactCandidate struct {
	Key              string  `json:"key"`
	Value            string  `json:"value"`
	SourceConfidence float64 `json:"source_confidence,omitempty"`
}

// ScoredFact is a fact ranked against a query
type ScoredFact struct {
	Key       string  `json:"key"`
	Value     string  `json:"value"`
	Relevance float64 `json:"relevance"`
}

// DefaultFactImportance is assigned when the extractor reports no confidence
const DefaultFactImportance = 0.8

// HighImportanceThreshold marks facts that get a retrieval boost
const HighImportanceThreshold = 0.7

// ExtractedFactsFromLLM is the structured envelope some models return for extraction
type ExtractedFactsFromLLM struct {
	Memories []struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		Category string `json:"category"`
		Fact     string `json:"fact"`
		Content  string `json:"content"`
	} `json:"memories"`
}

// ToolCall is the save_memory tool call format used in prompts
type ToolCall struct {
	ToolCall string            `json:"tool_call"`
	Args     map[string]string `json:"args"`
}
