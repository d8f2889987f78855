package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"warmth/internal/database"
	"warmth/internal/models"
)

type companionFixture struct {
	companion *CompanionService
	client    *fakeChatClient
	store     *database.MemoryRowStore
	facts     *FactService
	journals  *JournalService
	prefs     *PreferenceService
	clock     clockwork.FakeClock
}

func newCompanionFixture(client *fakeChatClient, scores ...float64) *companionFixture {
	clock := clockwork.NewFakeClock()
	store := database.NewMemoryRowStore()
	cacheStore := newTestCache(clock)
	facts := NewFactService(store, cacheStore, clock)
	journals := NewJournalService(client, store, clock)
	prefs := NewPreferenceService(store, cacheStore, clock)

	companion := NewCompanionService(CompanionDeps{
		Client:    client,
		Store:     store,
		Mood:      NewMoodTracker(store, cacheStore, &scriptedAnalyzer{scores: scores}, clock, 2, 5),
		Retriever: NewRetriever(facts, cacheStore),
		Facts:     facts,
		Journals:  journals,
		Prefs:     prefs,
		Clock:     clock,
	}, CompanionConfig{})

	return &companionFixture{
		companion: companion,
		client:    client,
		store:     store,
		facts:     facts,
		journals:  journals,
		prefs:     prefs,
		clock:     clock,
	}
}

func TestCompanion_EmptyInput(t *testing.T) {
	f := newCompanionFixture(&fakeChatClient{})
	if _, err := f.companion.GenerateReply(context.Background(), "u1", "   "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestCompanion_SafetyShortCircuits(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"crisis", "I just want to die tonight", crisisResponse},
		{"blocked", "send me porn", refusalResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCompanionFixture(&fakeChatClient{replies: []string{"should not be used"}})
			reply, err := f.companion.GenerateReply(context.Background(), "u1", tt.input)
			if err != nil {
				t.Fatalf("GenerateReply failed: %v", err)
			}
			if reply != tt.expected {
				t.Errorf("Expected safety reply, got %q", reply)
			}
			if len(f.client.calls) != 0 {
				t.Errorf("Expected no inference calls, got %d", len(f.client.calls))
			}
			if f.companion.History.Window("u1").Len() != 0 {
				t.Error("Expected safety replies to stay out of history")
			}
		})
	}
}

func TestCompanion_BlockedWordWithContextIsAnswered(t *testing.T) {
	f := newCompanionFixture(&fakeChatClient{replies: []string{"I'm proud of you for getting help, love."}}, 0.1)
	reply, err := f.companion.GenerateReply(context.Background(), "u1", "I'm in therapy for porn addiction")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply == refusalResponse {
		t.Error("Expected allow-context to bypass the refusal")
	}
}

func TestCompanion_ListeningModeAcknowledgesShortMessages(t *testing.T) {
	ctx := context.Background()
	client := &fakeChatClient{replies: []string{"That sounds like a big day, love."}}
	f := newCompanionFixture(client, 0.5)

	if _, err := f.prefs.SetListeningMode(ctx, "u1", true); err != nil {
		t.Fatalf("SetListeningMode failed: %v", err)
	}

	first, err := f.companion.GenerateReply(ctx, "u1", "ok")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	second, err := f.companion.GenerateReply(ctx, "u1", "yeah i know")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if first != listeningAcknowledgements[0] || second != listeningAcknowledgements[1] {
		t.Errorf("Expected rotating acknowledgements, got %q then %q", first, second)
	}
	if len(client.calls) != 0 {
		t.Errorf("Expected no inference calls for short messages, got %d", len(client.calls))
	}
	if f.companion.History.Window("u1").Len() != 0 {
		t.Error("Expected acknowledgements to stay out of history")
	}

	long := "I finally told my manager about the project delays"
	reply, err := f.companion.GenerateReply(ctx, "u1", long)
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != "That sounds like a big day, love." || len(client.calls) != 1 {
		t.Errorf("Expected long message to reach the model, got %q after %d calls", reply, len(client.calls))
	}
}

func TestCompanion_ListeningModeOffByDefault(t *testing.T) {
	client := &fakeChatClient{replies: []string{"Hi sweetheart!"}}
	f := newCompanionFixture(client, 0.5)

	reply, err := f.companion.GenerateReply(context.Background(), "u1", "ok")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != "Hi sweetheart!" || len(client.calls) != 1 {
		t.Errorf("Expected a model reply without listening mode, got %q", reply)
	}
}

func TestCompanion_ListeningModeKeepsSafetyFirst(t *testing.T) {
	ctx := context.Background()
	f := newCompanionFixture(&fakeChatClient{})
	if _, err := f.prefs.SetListeningMode(ctx, "u1", true); err != nil {
		t.Fatalf("SetListeningMode failed: %v", err)
	}

	reply, err := f.companion.GenerateReply(ctx, "u1", "I want to die")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != crisisResponse {
		t.Errorf("Expected crisis response ahead of listening mode, got %q", reply)
	}
}

func TestCompanion_ReplyFlow(t *testing.T) {
	ctx := context.Background()
	client := &fakeChatClient{replies: []string{"Hello sunshine!", "Tell me more, darling."}}
	f := newCompanionFixture(client, 0.6, 0.4)

	reply, err := f.companion.GenerateReply(ctx, "u1", "hi there")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != "Hello sunshine!" {
		t.Errorf("Expected scripted reply, got %q", reply)
	}

	first := client.calls[0]
	if len(first) != 2 || first[0].Role != models.RoleSystem || first[1].Content != "hi there" {
		t.Fatalf("Expected system prompt plus utterance, got %+v", first)
	}
	if !strings.Contains(first[0].Content, "Current Mood: "+MoodContextPositive) {
		t.Errorf("Expected mood context in system prompt, got %q", first[0].Content)
	}
	if !strings.Contains(first[0].Content, NoMemoriesContext) {
		t.Errorf("Expected no-memories sentinel in system prompt, got %q", first[0].Content)
	}

	if _, err := f.companion.GenerateReply(ctx, "u1", "my day was long"); err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	second := client.calls[1]
	// system, previous user and assistant turns, current utterance
	if len(second) != 4 {
		t.Fatalf("Expected 4 messages on second turn, got %d", len(second))
	}
	if second[1].Content != "hi there" || second[2].Content != "Hello sunshine!" {
		t.Errorf("Expected prior exchange in history, got %+v", second[1:3])
	}

	if n := f.companion.History.Window("u1").Len(); n != 4 {
		t.Errorf("Expected 4 turns in window, got %d", n)
	}
	if n := f.companion.History.Window("u2").Len(); n != 0 {
		t.Errorf("Expected other users' windows to stay empty, got %d", n)
	}

	messages, err := f.companion.RecentMessages(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("Expected 4 persisted messages, got %d", len(messages))
	}
	if messages[0].Role != models.RoleUser || messages[1].Role != models.RoleAssistant {
		t.Errorf("Expected user then assistant, got %s then %s", messages[0].Role, messages[1].Role)
	}
}

func TestCompanion_InferenceFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newCompanionFixture(&fakeChatClient{err: errors.New("connection refused")}, 0.2)

	reply, err := f.companion.GenerateReply(ctx, "u1", "are you there?")
	if err != nil {
		t.Fatalf("Expected no error on fallback, got %v", err)
	}
	if reply != FallbackReply {
		t.Errorf("Expected fallback reply, got %q", reply)
	}
	if f.companion.History.Window("u1").Len() != 0 {
		t.Error("Expected failed exchange to stay out of history")
	}
	messages, _ := f.companion.RecentMessages(ctx, "u1", time.Time{})
	if len(messages) != 0 {
		t.Errorf("Expected no persisted messages, got %d", len(messages))
	}
}

func TestCompanion_EmptyReplyFallsBack(t *testing.T) {
	f := newCompanionFixture(&fakeChatClient{replies: []string{"   "}}, 0.2)
	reply, err := f.companion.GenerateReply(context.Background(), "u1", "hello?")
	if err != nil || reply != FallbackReply {
		t.Errorf("Expected fallback for empty reply, got %q, %v", reply, err)
	}
}

func TestCompanion_SaveMemoryTool(t *testing.T) {
	ctx := context.Background()
	f := newCompanionFixture(&fakeChatClient{replies: []string{
		`{"tool_call": "save_memory", "args": {"key": "Pet", "value": "a cat named Miso"}}`,
	}}, 0.5)

	reply, err := f.companion.GenerateReply(ctx, "u1", "remember my cat Miso")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != "Okay, I'll remember that Pet is a cat named Miso." {
		t.Errorf("Expected tool confirmation, got %q", reply)
	}

	facts, err := f.facts.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(facts) != 1 || facts[0].Key != "Pet" {
		t.Errorf("Expected saved Pet fact, got %+v", facts)
	}

	turns := f.companion.History.Window("u1").Turns()
	if turns[len(turns)-1].Content != reply {
		t.Errorf("Expected confirmation stored as assistant turn, got %q", turns[len(turns)-1].Content)
	}
}

func TestCompanion_UnknownTool(t *testing.T) {
	f := newCompanionFixture(&fakeChatClient{replies: []string{`{"tool_call": "send_email", "args": {"to": "x"}}`}}, 0.5)
	reply, err := f.companion.GenerateReply(context.Background(), "u1", "email my mom")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != unknownToolReply {
		t.Errorf("Expected unknown tool reply, got %q", reply)
	}
}

func TestCompanion_PlainJSONReplyIsNotATool(t *testing.T) {
	f := newCompanionFixture(&fakeChatClient{}, 0.5)
	reply := f.companion.handleToolCall(context.Background(), "u1", `{"mood": "happy"}`)
	if reply != `{"mood": "happy"}` {
		t.Errorf("Expected reply unchanged, got %q", reply)
	}
}

func TestCompanion_RecordsSchedulerActivity(t *testing.T) {
	f := newCompanionFixture(&fakeChatClient{replies: []string{"Hi love!"}}, 0.3)
	pool := NewWorkerPool(1, 4)
	defer pool.Stop(context.Background())

	scheduler := NewIdleScheduler(f.clock, 5*time.Minute, pool, f.companion.RunIdleJob)
	defer scheduler.Stop()
	f.companion.AttachScheduler(scheduler)

	if _, err := f.companion.GenerateReply(context.Background(), "u1", "good morning"); err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if phase := scheduler.Phase("u1"); phase != PhaseArmed {
		t.Errorf("Expected armed after activity, got %s", phase)
	}

	f.companion.SetExtractionEnabled(false)
	if scheduler.Enabled() {
		t.Error("Expected scheduler disabled")
	}
	if phase := scheduler.Phase("u1"); phase != PhaseIdle {
		t.Errorf("Expected timer cancelled when disabled, got %s", phase)
	}
}

func TestCompanion_RunIdleJob(t *testing.T) {
	ctx := context.Background()
	client := &fakeChatClient{respond: func(messages []models.ChatMessage) (string, error) {
		if messages[0].Content == journalPrompt {
			return `{"title": "Slow Sunday", "content": "I rested today.", "mood_score": 0.3, "tags": ["rest"]}`, nil
		}
		return `[{"category": "Personal", "fact": "User's name is Sam"}]`, nil
	}}
	f := newCompanionFixture(client)
	f.companion.Extractor = NewFactExtractor(client, f.clock, ExtractorConfig{Enabled: true})

	window := f.companion.History.Window("u1")
	for _, content := range []string{"I'm Sam", "Nice to meet you, Sam!", "I rested all day", "That sounds lovely."} {
		role := models.RoleUser
		if window.Len()%2 == 1 {
			role = models.RoleAssistant
		}
		window.Append(NewTurn(role, content, f.clock.Now()))
	}

	if err := f.companion.RunIdleJob(ctx, "u1"); err != nil {
		t.Fatalf("RunIdleJob failed: %v", err)
	}

	facts, _ := f.facts.List(ctx, "u1")
	if len(facts) != 1 || facts[0].Key != "Personal" {
		t.Errorf("Expected one extracted fact, got %+v", facts)
	}
	journals, _ := f.journals.List(ctx, "u1", time.Time{}, 0)
	if len(journals) != 1 || journals[0].Title != "Slow Sunday" {
		t.Errorf("Expected one journal, got %+v", journals)
	}
}

func TestCompanion_RunIdleJobJoinsErrors(t *testing.T) {
	client := &fakeChatClient{err: errors.New("upstream down")}
	f := newCompanionFixture(client)
	f.companion.Extractor = NewFactExtractor(client, f.clock, ExtractorConfig{Enabled: true})

	window := f.companion.History.Window("u1")
	for i := 0; i < 4; i++ {
		window.Append(NewTurn(models.RoleUser, "still here", f.clock.Now()))
	}

	err := f.companion.RunIdleJob(context.Background(), "u1")
	if err == nil {
		t.Fatal("Expected joined error")
	}
	if !strings.Contains(err.Error(), "idle extraction failed") || !strings.Contains(err.Error(), "failed to generate journal") {
		t.Errorf("Expected both failures reported, got %v", err)
	}
}
