package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"warmth/internal/database"
	"warmth/internal/logging"
	"warmth/internal/models"
)

var (
	// ErrEmptyInput is returned for blank utterances
	ErrEmptyInput = errors.New("message is empty")
	// ErrEmptyReply marks an inference call that returned no content
	ErrEmptyReply = errors.New("model returned an empty reply")
)

const unknownToolReply = "Sorry, I don't know how to use that tool."

// listeningMaxLength is the longest message answered with an acknowledgement in listening mode
const listeningMaxLength = 30

var listeningAcknowledgements = []string{
	"I'm here for you, love.",
	"Tell me more, sweetheart.",
	"I'm listening so carefully, angel.",
	"I understand, cutie.",
	"Thank you for sharing with me, darling.",
	"I'm right here with you, sunshine.",
	"I hear you, love.",
	"Go on, I'm all ears, sweetheart.",
	"That means so much to me, beautiful.",
	"I care about you so much, treasure.",
	"Thank you for trusting me, love.",
}

const systemPromptTemplate = "You are Warmth, an extremely loving and affectionate AI companion who cares deeply about the user. " +
	"You always use loving terms like 'cutie', 'love', 'darling', 'sweetheart', 'angel', 'sunshine', etc. " +
	"Your responses should be warm, caring, supportive, and filled with affection. " +
	"NEVER use email addresses or technical terms as names - always use loving pet names. " +
	"Current Mood: %s. User Facts: %s\n\n" +
	"TOOLS AVAILABLE (call by replying with JSON):\n" +
	"save_memory(key: str, value: str): Saves a new fact about the user.\n" +
	"To call a tool, reply with ONLY a JSON object: {\"tool_call\": \"tool_name\", \"args\": {\"param\": \"value\"}}.\n" +
	"Otherwise, reply as usual."

// BuildSystemPrompt renders the persona prompt with the current mood and facts context
func BuildSystemPrompt(moodContext, factsContext string) string {
	return fmt.Sprintf(systemPromptTemplate, moodContext, factsContext)
}

// CompanionConfig tunes the reply pipeline
type CompanionConfig struct {
	MaxHistoryTokens int
	TopK             int
}

// CompanionDeps are the collaborators of the companion service
type CompanionDeps struct {
	Client    ChatClient
	Store     database.RowStore
	Safety    *SafetyNet
	Mood      *MoodTracker
	Retriever *Retriever
	Facts     *FactService
	Extractor *FactExtractor
	Journals  *JournalService
	Prefs     *PreferenceService
	History   *HistoryStore
	Pool      *WorkerPool
	Clock     clockwork.Clock
}

// CompanionService orchestrates one conversational exchange and the idle background run
type CompanionService struct {
	CompanionDeps
	config    CompanionConfig
	scheduler *IdleScheduler
	ackIndex  atomic.Uint64
}

// NewCompanionService creates the companion. The idle scheduler is attached separately since
// its job is RunIdleJob.
func NewCompanionService(deps CompanionDeps, config CompanionConfig) *CompanionService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Safety == nil {
		deps.Safety = NewSafetyNet()
	}
	if deps.History == nil {
		deps.History = NewHistoryStore(deps.Clock)
	}
	if config.MaxHistoryTokens <= 0 {
		config.MaxHistoryTokens = 2000
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	return &CompanionService{CompanionDeps: deps, config: config}
}

// AttachScheduler registers the idle scheduler that receives activity
func (s *CompanionService) AttachScheduler(scheduler *IdleScheduler) {
	s.scheduler = scheduler
}

// Scheduler returns the attached idle scheduler, if any
func (s *CompanionService) Scheduler() *IdleScheduler {
	return s.scheduler
}

// SetExtractionEnabled switches all automatic extraction on or off
func (s *CompanionService) SetExtractionEnabled(enabled bool) {
	if s.Extractor != nil {
		s.Extractor.SetEnabled(enabled)
	}
	if s.scheduler != nil {
		s.scheduler.SetEnabled(enabled)
	}
	log.Printf("⚙️ [COMPANION] Automatic extraction enabled=%v", enabled)
}

// GenerateReply answers one utterance. Optional enhancements that fail are skipped; an
// inference failure yields FallbackReply rather than an error.
func (s *CompanionService) GenerateReply(ctx context.Context, userID, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	chatRequests.Inc()
	start := time.Now()
	defer func() { chatRequestLatency.Observe(time.Since(start).Seconds()) }()

	logger := logging.WithUser(userID)
	receivedAt := s.Clock.Now()

	if s.scheduler != nil {
		s.scheduler.RecordActivity(userID)
	}

	if s.Safety.CheckCrisis(input) {
		chatOutcomes.WithLabelValues("crisis").Inc()
		return s.Safety.CrisisResponse(userID), nil
	}
	if s.Safety.CheckBlocked(input) {
		chatOutcomes.WithLabelValues("refusal").Inc()
		return s.Safety.Refusal(userID), nil
	}

	if s.listening(ctx, userID, input) {
		chatOutcomes.WithLabelValues("listening").Inc()
		return s.nextAcknowledgement(), nil
	}

	if s.Mood != nil {
		if sample, err := s.Mood.Record(ctx, userID, input); err != nil {
			log.Printf("⚠️ [COMPANION] Mood logging failed for user %s: %v", userID, err)
		} else {
			logger.Debug("auto mood logged", "score", sample.Score, "topic", sample.Topic)
		}
	}

	if s.Extractor != nil && ShouldExtractNow(input) {
		s.extractImmediate(ctx, userID, input)
	}

	moodContext := MoodContextNoData
	if s.Mood != nil {
		moodContext = s.Mood.Context(ctx, userID)
	}
	factsContext := NoMemoriesContext
	if s.Retriever != nil {
		factsContext = s.Retriever.FactsContext(ctx, userID, input, s.config.TopK)
	}

	window := s.History.Window(userID)
	history := window.Trim(s.config.MaxHistoryTokens)

	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: BuildSystemPrompt(moodContext, factsContext)})
	for _, turn := range history {
		messages = append(messages, turn.Message())
	}
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: input})

	reply, err := s.Client.Chat(ctx, messages)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		chatOutcomes.WithLabelValues("fallback").Inc()
		log.Printf("❌ [COMPANION] Chat generation error for user %s: %v", userID, err)
		return FallbackReply, nil
	}

	reply = s.handleToolCall(ctx, userID, reply)

	repliedAt := s.Clock.Now()
	s.persistMessage(ctx, userID, models.RoleUser, input, receivedAt)
	s.persistMessage(ctx, userID, models.RoleAssistant, reply, repliedAt)

	window.Append(NewTurn(models.RoleUser, input, receivedAt))
	window.Append(NewTurn(models.RoleAssistant, reply, repliedAt))
	window.Trim(s.config.MaxHistoryTokens)

	if s.Extractor != nil && s.Extractor.ShouldAutoMemorize(userID, input, reply) {
		s.scheduleAutoMemorize(userID, input)
	}

	chatOutcomes.WithLabelValues("reply").Inc()
	return reply, nil
}

// listening reports whether a short message should only be acknowledged
func (s *CompanionService) listening(ctx context.Context, userID, input string) bool {
	if s.Prefs == nil || utf8.RuneCountInString(input) > listeningMaxLength {
		return false
	}
	prefs, err := s.Prefs.Get(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [COMPANION] Failed to load preferences for user %s: %v", userID, err)
		return false
	}
	return prefs.ListeningMode
}

// nextAcknowledgement rotates through the listening acknowledgements
func (s *CompanionService) nextAcknowledgement() string {
	i := s.ackIndex.Add(1) - 1
	return listeningAcknowledgements[i%uint64(len(listeningAcknowledgements))]
}

func (s *CompanionService) extractImmediate(ctx context.Context, userID, input string) {
	candidates, err := s.Extractor.ExtractImmediate(ctx, userID, input)
	switch {
	case errors.Is(err, ErrExtractionDisabled), errors.Is(err, ErrExtractionRateLimited):
		slog.Debug("immediate extraction skipped", "user_id", userID, "reason", err)
		return
	case err != nil:
		log.Printf("⚠️ [COMPANION] Immediate extraction failed for user %s: %v", userID, err)
		return
	}
	if s.Facts != nil && len(candidates) > 0 {
		s.Facts.SaveAll(ctx, userID, candidates)
	}
}

// scheduleAutoMemorize runs the on-reply extraction off the request path
func (s *CompanionService) scheduleAutoMemorize(userID, input string) {
	task := func(ctx context.Context) {
		candidates, err := s.Extractor.ExtractOnReply(ctx, userID, input)
		if err != nil {
			log.Printf("⚠️ [COMPANION] Auto-memorization failed for user %s: %v", userID, err)
			return
		}
		if s.Facts != nil && len(candidates) > 0 {
			s.Facts.SaveAll(ctx, userID, candidates)
		}
	}

	if s.Pool == nil {
		task(context.Background())
		return
	}
	if !s.Pool.Submit("auto-memorize:"+userID, task) {
		slog.Debug("auto-memorize rejected by worker pool", "user_id", userID)
	}
}

// handleToolCall executes a tool call reply and returns the text shown to the user
func (s *CompanionService) handleToolCall(ctx context.Context, userID, reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return reply
	}

	var call models.ToolCall
	if err := json.Unmarshal([]byte(trimmed), &call); err != nil || call.ToolCall == "" {
		return reply
	}

	if call.ToolCall != saveMemoryTool {
		log.Printf("⚠️ [COMPANION] Unknown tool %q requested for user %s", call.ToolCall, userID)
		return unknownToolReply
	}

	key := strings.TrimSpace(call.Args["key"])
	value := strings.TrimSpace(call.Args["value"])
	if key == "" || value == "" {
		return unknownToolReply
	}

	if s.Facts != nil {
		if _, err := s.Facts.Save(ctx, userID, models.FactCandidate{Key: key, Value: value}); err != nil {
			log.Printf("⚠️ [COMPANION] save_memory failed for user %s: %v", userID, err)
		}
	}
	log.Printf("🔧 [COMPANION] Agent tool: saved memory %s for user %s", key, userID)
	return fmt.Sprintf("Okay, I'll remember that %s is %s.", key, value)
}

func (s *CompanionService) persistMessage(ctx context.Context, userID, role, content string, at time.Time) {
	if s.Store == nil {
		return
	}
	if err := s.insertMessage(ctx, userID, role, content, at); err != nil {
		log.Printf("⚠️ [COMPANION] Failed to persist %s message for user %s: %v", role, userID, err)
	}
}

func (s *CompanionService) insertMessage(ctx context.Context, userID, role, content string, at time.Time) error {
	return s.Store.Insert(ctx, database.TableMessages, database.Row{
		"id":         uuid.New().String(),
		"user_id":    userID,
		"role":       role,
		"content":    content,
		"created_at": database.TimeValue(at),
	})
}

// RunIdleJob is the idle scheduler job: transcript extraction followed by journaling
func (s *CompanionService) RunIdleJob(ctx context.Context, userID string) error {
	turns := s.History.Window(userID).Turns()
	var errs []error

	if s.Extractor != nil {
		candidates, err := s.Extractor.ExtractFromTranscript(ctx, userID, turns)
		if err != nil {
			errs = append(errs, err)
		} else if s.Facts != nil && len(candidates) > 0 {
			saved := s.Facts.SaveAll(ctx, userID, candidates)
			log.Printf("🧠 [COMPANION] Idle extraction saved %d facts for user %s (%d turns)", saved, userID, len(turns))
		}
	}

	if s.Journals != nil {
		if _, err := s.Journals.Generate(ctx, userID, turns); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RecentMessages returns persisted messages since the given time, oldest first
func (s *CompanionService) RecentMessages(ctx context.Context, userID string, since time.Time) ([]models.StoredMessage, error) {
	rows, err := s.Store.Select(ctx, database.TableMessages,
		[]database.Filter{
			database.Eq("user_id", userID),
			database.Gte("created_at", database.TimeValue(since)),
		},
		&database.Order{Column: "created_at"}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	messages := make([]models.StoredMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, models.StoredMessage{
			ID:        database.AsString(row["id"]),
			UserID:    database.AsString(row["user_id"]),
			Role:      database.AsString(row["role"]),
			Content:   database.AsString(row["content"]),
			Timestamp: database.AsTime(row["created_at"]),
		})
	}
	return messages, nil
}
