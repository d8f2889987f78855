package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want bool
	}{
		{"429", http.StatusTooManyRequests, "", true},
		{"rate limit body", 400, `{"error":"Rate limit reached"}`, true},
		{"insufficient quota", 403, "insufficient_quota", true},
		{"plain server error", 500, "internal error", false},
		{"timeout", 0, "context deadline exceeded", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQuotaError(tt.code, tt.body); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseCooldownDuration(t *testing.T) {
	if d := ParseCooldownDuration(429, ""); d != time.Minute {
		t.Errorf("Expected 1m for 429, got %v", d)
	}
	if d := ParseCooldownDuration(403, "daily limit reached"); d != 6*time.Hour {
		t.Errorf("Expected 6h for daily limit, got %v", d)
	}
	if d := ParseCooldownDuration(400, "quota exceeded"); d != 15*time.Minute {
		t.Errorf("Expected 15m default, got %v", d)
	}
}

func TestService_FailureThresholdCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(clock, 3, 30*time.Second)
	svc.Register(ComponentLLM, nil)

	for i := 0; i < 2; i++ {
		svc.MarkUnhealthy(ComponentLLM, "connection refused", 0)
		if !svc.Available(ComponentLLM) {
			t.Fatalf("Expected component available after %d failures", i+1)
		}
	}

	svc.MarkUnhealthy(ComponentLLM, "connection refused", 0)
	if svc.Available(ComponentLLM) {
		t.Error("Expected component in cooldown after threshold")
	}

	clock.Advance(31 * time.Second)
	if !svc.Available(ComponentLLM) {
		t.Error("Expected component available after cooldown expires")
	}

	svc.MarkHealthy(ComponentLLM, 12)
	h, _ := svc.Get(ComponentLLM)
	if h.Status != StatusHealthy || h.FailureCount != 0 {
		t.Errorf("Expected healthy with 0 failures, got %s with %d", h.Status, h.FailureCount)
	}
}

func TestService_QuotaErrorCoolsDownImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(clock, 3, 30*time.Second)
	svc.Register(ComponentSentiment, nil)

	svc.MarkUnhealthy(ComponentSentiment, "too many requests", http.StatusTooManyRequests)
	if svc.Available(ComponentSentiment) {
		t.Error("Expected cooldown after quota error")
	}

	status := svc.GetStatus()
	components := status["components"].(map[string]string)
	if components["sentiment"] != string(StatusCooldown) {
		t.Errorf("Expected sentiment cooldown in status, got %s", components["sentiment"])
	}
}

func TestService_UnknownComponentAvailable(t *testing.T) {
	svc := NewService(nil, 0, 0)
	if !svc.Available(ComponentStore) {
		t.Error("Expected unregistered component to be available")
	}
}

func TestService_CheckAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected /models, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewService(clockwork.NewFakeClock(), 1, time.Minute)
	svc.Register(ComponentLLM, &InferenceCheck{Name: ComponentLLM, BaseURL: server.URL})
	svc.Register(ComponentCache, &PingCheck{Name: ComponentCache, Ping: func(ctx context.Context) error {
		return errors.New("dial tcp: connection refused")
	}})

	results := svc.CheckAll(context.Background())
	if results[ComponentLLM] != nil {
		t.Errorf("Expected llm check to pass, got %v", results[ComponentLLM])
	}
	if results[ComponentCache] == nil {
		t.Error("Expected cache check to fail")
	}
	if svc.Available(ComponentCache) {
		t.Error("Expected cache cooled down with threshold 1")
	}

	h, _ := svc.Get(ComponentLLM)
	if h.Status != StatusHealthy {
		t.Errorf("Expected llm healthy, got %s", h.Status)
	}
}
