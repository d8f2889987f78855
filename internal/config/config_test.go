package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxHistoryTokens != 2000 {
		t.Errorf("Expected 2000 history tokens, got %d", cfg.MaxHistoryTokens)
	}
	if cfg.IdleWindow != 10*time.Minute {
		t.Errorf("Expected 10m idle window, got %v", cfg.IdleWindow)
	}
	if cfg.ExtractionDailyLimit != 3 || cfg.MemorizeCooldown != 10*time.Second {
		t.Errorf("Expected extraction defaults 3/day and 10s, got %d and %v", cfg.ExtractionDailyLimit, cfg.MemorizeCooldown)
	}
	if cfg.DefaultUserID != "local_user" || cfg.EnableAuth {
		t.Errorf("Expected dev auth bypass defaults, got %q enabled=%v", cfg.DefaultUserID, cfg.EnableAuth)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warmth.yaml")
	content := []byte("port: \"4000\"\nidle_window: 2m\nmood_trend_window: 3\nllm_model: file-model\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("MEMORIZE_COOLDOWN", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "4000" {
		t.Errorf("Expected port from file, got %q", cfg.Port)
	}
	if cfg.IdleWindow != 2*time.Minute {
		t.Errorf("Expected idle window from file, got %v", cfg.IdleWindow)
	}
	if cfg.MoodTrendWindow != 3 {
		t.Errorf("Expected trend window from file, got %d", cfg.MoodTrendWindow)
	}
	if cfg.LLMModel != "env-model" {
		t.Errorf("Expected env to win over file, got %q", cfg.LLMModel)
	}
	if cfg.MemorizeCooldown != 30*time.Second {
		t.Errorf("Expected bare seconds to parse, got %v", cfg.MemorizeCooldown)
	}
	if cfg.CheckinWindow != 5 {
		t.Errorf("Expected untouched default, got %d", cfg.CheckinWindow)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short jwt secret", map[string]string{"ENABLE_AUTH": "true", "JWT_SECRET": "short"}},
		{"zero history budget", map[string]string{"MAX_HISTORY_TOKENS": "0"}},
		{"tiny trend window", map[string]string{"MOOD_TREND_WINDOW": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	path := filepath.Join(t.TempDir(), "warmth.yaml")
	if err := os.WriteFile(path, []byte("auto_extraction: true\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	if err := Watch(ctx, path, func(cfg *Config) { reloaded <- cfg }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("auto_extraction: false\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.AutoExtraction {
			t.Error("Expected reloaded config to disable extraction")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected a reload after the file changed")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "warmth.yaml")
	if err := Watch(context.Background(), path, func(*Config) {}); err == nil {
		t.Error("Expected error for missing directory")
	}
}
