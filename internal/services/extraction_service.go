package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"warmth/internal/models"
)

var (
	// ErrExtractionDisabled is returned while automatic extraction is switched off
	ErrExtractionDisabled = errors.New("automatic extraction disabled")
	// ErrExtractionRateLimited is returned when a user exhausts the immediate extraction budget
	ErrExtractionRateLimited = errors.New("immediate extraction limit reached")
)

const (
	immediateMinLength      = 15
	transcriptWindow        = 10
	transcriptMinTurns      = 4
	autoMemorizeMinInput    = 10
	autoMemorizeMinCombined = 40
	fallbackMinValueLength  = 3
	noFactsReply            = "NO_FACTS"
	saveMemoryTool          = "save_memory"
)

// Extraction paths, also used as metric labels
const (
	PathImmediate = "immediate"
	PathIdle      = "idle"
	PathOnReply   = "on_reply"
)

const immediateExtractionPrompt = `You are a memory extraction AI. Read the user's message and extract any important, specific facts about them.

For each fact you find, output a JSON object in this exact format:
{"tool_call": "save_memory", "args": {"key": "CATEGORY", "value": "SPECIFIC_DETAIL"}}

Examples of what to extract:
- Identity: "I am a doctor" → {"key": "Profession", "value": "doctor"}
- Relationships: "My daughter Emma just turned 5" → {"key": "Family", "value": "has daughter Emma who is 5 years old"}
- Preferences: "I love hiking on weekends" → {"key": "Hobbies", "value": "enjoys hiking on weekends"}
- Life events: "I just graduated from college" → {"key": "Education", "value": "recently graduated from college"}
- Location: "I live in Chicago" → {"key": "Location", "value": "lives in Chicago"}

Only extract clear, specific facts. Be conservative. If no clear facts are found, don't extract anything.

User message: `

const transcriptExtractionPrompt = `You are a memory extractor. Read the following chat conversation and extract any new, important facts about the user.

For each fact you find, use this format to save it:
{"tool_call": "save_memory", "args": {"key": "[CATEGORY]", "value": "[SPECIFIC DETAIL]"}}

Examples of what to extract:
- Personal details (job, hobbies, location, family)
- Important events or milestones
- Goals, dreams, or aspirations
- Health information, challenges, or concerns
- Preferences, likes/dislikes
- Names of people, pets, places
- Significant emotional moments

DO NOT extract:
- Greetings or small talk
- Already saved facts
- General conversation without specific details
- Vague or ambiguous information

Be conservative - only save clear, specific, and important facts.`

const onReplySystemPrompt = "You are a precise fact extractor. Output JSON only."

const onReplyPromptTemplate = `Analyze the following user message and extract any permanent or semi-permanent facts about the user.
Focus on: names, jobs, location, relationships, preferences, important life events, or recurring struggles.
Ignore transient states (like "I'm hungry") unless they imply a pattern.

User Message: "%s"

If no important facts are found, return "NO_FACTS".
If facts are found, return them in JSON format:
[
    {"category": "Personal", "fact": "User's name is X"},
    {"category": "Work", "fact": "User works as Y"}
]
Return ONLY the JSON or "NO_FACTS".`

// Self-referential, identity, relationship and milestone language
var memoryRichPatterns = compilePatterns(
	`i am (\w+)`,
	`i'm (\w+)`,
	`my name is (\w+)`,
	`i work as (?:a |an )?([^,.!?]+)`,
	`i live (?:in|at) ([^.!?]+)`,
	`i have (?:a |an )?([^,.!?]+)`,
	`my (\w+) is ([^.!?]+)`,
	`i like (?:to )?([^,.!?]+)`,
	`i don't like (?:to )?([^,.!?]+)`,
	`i (?:go to|study at) ([^.!?]+)`,
	`i graduated (?:from )?([^,.!?]+)`,
	`i was born (?:in|at) ([^.!?]+)`,
	`i'm from ([^.!?]+)`,
	`my favorite ([^.!?]+)`,
	`i'm feeling ([^.!?]+)`,
)

var familyWords = []string{"family", "children", "kids", "parents", "siblings"}

var milestoneWords = []string{"proud", "accomplished", "achieved", "graduated", "married", "divorced"}

var memorizablePatterns = compilePatterns(
	`\bi am\b`, `\bi work\b`, `\bmy name\b`, `\bi live\b`,
	`\bi have\b`, `\bi like\b`, `\bi don't like\b`, `\bmy \w+ is\b`,
	`\bfamily\b`, `\bjob\b`, `\bwork\b`, `\bschool\b`, `\bhome\b`,
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// ExtractorConfig tunes the extraction pipeline
type ExtractorConfig struct {
	Enabled          bool
	DailyLimit       int           // immediate extractions per user per UTC calendar day, 0 for unlimited
	MemorizeCooldown time.Duration // minimum gap between on-reply extractions per user
}

// FactExtractor turns utterances and transcripts into fact candidates
type FactExtractor struct {
	client  ChatClient
	clock   clockwork.Clock
	config  ExtractorConfig
	enabled atomic.Bool

	mu           sync.Mutex
	limiters     map[string]*dailyBudget
	lastMemorize map[string]time.Time
}

// NewFactExtractor creates an extractor
func NewFactExtractor(client ChatClient, clock clockwork.Clock, config ExtractorConfig) *FactExtractor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e := &FactExtractor{
		client:       client,
		clock:        clock,
		config:       config,
		limiters:     make(map[string]*dailyBudget),
		lastMemorize: make(map[string]time.Time),
	}
	e.enabled.Store(config.Enabled)
	return e
}

// SetEnabled switches automatic extraction on or off
func (e *FactExtractor) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Enabled reports whether automatic extraction is on
func (e *FactExtractor) Enabled() bool {
	return e.enabled.Load()
}

// ShouldExtractNow reports whether text carries enough personal signal for immediate extraction
func ShouldExtractNow(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if len(lower) < immediateMinLength {
		return false
	}
	if matchesAny(lower, memoryRichPatterns) {
		return true
	}
	return containsAny(lower, familyWords) || containsAny(lower, milestoneWords)
}

// dailyBudget holds a user's immediate extractions for one UTC day. The limiter never
// refills; a new day gets a new limiter.
type dailyBudget struct {
	day     string
	limiter *rate.Limiter
}

func (e *FactExtractor) allowImmediate(userID string) bool {
	if e.config.DailyLimit <= 0 {
		return true
	}

	now := e.clock.Now()
	day := now.UTC().Format(time.DateOnly)

	e.mu.Lock()
	budget, ok := e.limiters[userID]
	if !ok || budget.day != day {
		budget = &dailyBudget{day: day, limiter: rate.NewLimiter(0, e.config.DailyLimit)}
		e.limiters[userID] = budget
	}
	e.mu.Unlock()

	return budget.limiter.AllowN(now, 1)
}

// ExtractImmediate runs the low-latency path over a single utterance
func (e *FactExtractor) ExtractImmediate(ctx context.Context, userID, utterance string) ([]models.FactCandidate, error) {
	if !e.Enabled() {
		extractionRuns.WithLabelValues(PathImmediate, "disabled").Inc()
		return nil, ErrExtractionDisabled
	}
	if !e.allowImmediate(userID) {
		extractionRuns.WithLabelValues(PathImmediate, "rate_limited").Inc()
		log.Printf("⚠️ [EXTRACTION] User %s exceeded immediate extraction limit (%d/day)", userID, e.config.DailyLimit)
		return nil, ErrExtractionRateLimited
	}

	return e.run(ctx, userID, PathImmediate, []models.ChatMessage{
		{Role: models.RoleSystem, Content: immediateExtractionPrompt + utterance},
		{Role: models.RoleUser, Content: utterance},
	})
}

// ExtractFromTranscript runs the idle path over the last turns of a conversation.
// Fewer than four turns yield no candidates.
func (e *FactExtractor) ExtractFromTranscript(ctx context.Context, userID string, turns []models.ConversationTurn) ([]models.FactCandidate, error) {
	if !e.Enabled() {
		extractionRuns.WithLabelValues(PathIdle, "disabled").Inc()
		return nil, ErrExtractionDisabled
	}
	if len(turns) < transcriptMinTurns {
		extractionRuns.WithLabelValues(PathIdle, "skipped").Inc()
		return nil, nil
	}
	if len(turns) > transcriptWindow {
		turns = turns[len(turns)-transcriptWindow:]
	}

	messages := make([]models.ChatMessage, 0, len(turns)+1)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: transcriptExtractionPrompt})
	for _, turn := range turns {
		messages = append(messages, turn.Message())
	}

	return e.run(ctx, userID, PathIdle, messages)
}

// ShouldAutoMemorize gates the opportunistic on-reply path
func (e *FactExtractor) ShouldAutoMemorize(userID, input, reply string) bool {
	if !e.Enabled() {
		return false
	}

	e.mu.Lock()
	last, ok := e.lastMemorize[userID]
	e.mu.Unlock()
	if ok && e.clock.Since(last) < e.config.MemorizeCooldown {
		return false
	}

	combined := strings.ToLower(strings.TrimSpace(input + " " + reply))
	if len(combined) < autoMemorizeMinCombined {
		return false
	}
	return matchesAny(combined, memorizablePatterns)
}

// ExtractOnReply runs the lightweight extraction after a reply and starts the cooldown
func (e *FactExtractor) ExtractOnReply(ctx context.Context, userID, input string) ([]models.FactCandidate, error) {
	if !e.Enabled() {
		return nil, ErrExtractionDisabled
	}
	if len(input) < autoMemorizeMinInput {
		return nil, nil
	}

	candidates, err := e.run(ctx, userID, PathOnReply, []models.ChatMessage{
		{Role: models.RoleSystem, Content: onReplySystemPrompt},
		{Role: models.RoleUser, Content: fmt.Sprintf(onReplyPromptTemplate, input)},
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.lastMemorize[userID] = e.clock.Now()
	e.mu.Unlock()
	return candidates, nil
}

func (e *FactExtractor) run(ctx context.Context, userID, path string, messages []models.ChatMessage) ([]models.FactCandidate, error) {
	reply, err := e.client.Chat(ctx, messages)
	if err != nil {
		extractionRuns.WithLabelValues(path, "error").Inc()
		return nil, fmt.Errorf("%s extraction failed: %w", path, err)
	}

	candidates := ParseCandidates(reply)
	if len(candidates) == 0 {
		extractionRuns.WithLabelValues(path, "empty").Inc()
		slog.Debug("extraction yielded no candidates", "user_id", userID, "path", path)
		return nil, nil
	}

	extractionRuns.WithLabelValues(path, "ok").Inc()
	log.Printf("🧠 [EXTRACTION] Extracted %d candidates for user %s (%s)", len(candidates), userID, path)
	return candidates, nil
}

// ParseCandidates reads fact candidates from a model reply. It accepts a save_memory tool call,
// an array of facts, a {"memories": [...]} envelope or one JSON object per line, and falls back
// to "key: value" lines. Anything else yields no candidates.
func ParseCandidates(reply string) []models.FactCandidate {
	content := stripCodeFences(reply)
	if content == "" || strings.EqualFold(strings.Trim(content, `"`), noFactsReply) {
		return nil
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return candidatesFromJSON(parsed)
	}

	var candidates []models.FactCandidate
	sawJSONLine := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		sawJSONLine = true
		candidates = append(candidates, candidatesFromJSON(obj)...)
	}
	if sawJSONLine {
		return candidates
	}

	return parseKeyValueLines(content)
}

func candidatesFromJSON(parsed interface{}) []models.FactCandidate {
	switch v := parsed.(type) {
	case []interface{}:
		var candidates []models.FactCandidate
		for _, item := range v {
			candidates = append(candidates, candidatesFromJSON(item)...)
		}
		return candidates
	case map[string]interface{}:
		if _, ok := v["memories"]; ok {
			return candidatesFromEnvelope(v)
		}
		if c, ok := candidateFromObject(v); ok {
			return []models.FactCandidate{c}
		}
	}
	return nil
}

func candidatesFromEnvelope(obj map[string]interface{}) []models.FactCandidate {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var envelope models.ExtractedFactsFromLLM
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil
	}

	var candidates []models.FactCandidate
	for _, m := range envelope.Memories {
		key := firstNonEmpty(m.Key, m.Category)
		value := firstNonEmpty(m.Value, m.Fact, m.Content)
		if value == "" {
			continue
		}
		candidates = append(candidates, models.FactCandidate{Key: firstNonEmpty(key, DefaultTopic), Value: value})
	}
	return candidates
}

func candidateFromObject(obj map[string]interface{}) (models.FactCandidate, bool) {
	if tool, ok := obj["tool_call"]; ok {
		if stringField(tool) != saveMemoryTool {
			return models.FactCandidate{}, false
		}
		args, _ := obj["args"].(map[string]interface{})
		key := stringField(args["key"])
		value := stringField(args["value"])
		if key == "" || value == "" {
			return models.FactCandidate{}, false
		}
		return models.FactCandidate{Key: key, Value: value}, true
	}

	key := firstNonEmpty(stringField(obj["key"]), stringField(obj["category"]))
	value := firstNonEmpty(stringField(obj["value"]), stringField(obj["fact"]), stringField(obj["content"]))
	if value == "" {
		return models.FactCandidate{}, false
	}

	candidate := models.FactCandidate{Key: firstNonEmpty(key, DefaultTopic), Value: value}
	if confidence, ok := obj["confidence"].(float64); ok {
		candidate.SourceConfidence = clamp(confidence, 0, 1)
	}
	return candidate, true
}

// parseKeyValueLines is the lenient fallback for unstructured replies
func parseKeyValueLines(content string) []models.FactCandidate {
	var candidates []models.FactCandidate
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "{") || strings.HasPrefix(line, "[") {
			continue
		}
		line = strings.TrimLeft(line, "-*• ")

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.Trim(strings.TrimSpace(parts[0]), "*\"")
		value := strings.Trim(strings.TrimSpace(parts[1]), "*\"")
		if key == "" || len(value) <= fallbackMinValueLength {
			continue
		}
		candidates = append(candidates, models.FactCandidate{Key: key, Value: value})
	}
	return candidates
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
