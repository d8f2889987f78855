package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"warmth/internal/health"
	"warmth/internal/models"
)

// SlowResponseThreshold marks an inference call worth a warning
const SlowResponseThreshold = 5 * time.Second

// FallbackReply is returned to the user when the inference endpoint fails
const FallbackReply = "I'm having trouble responding right now. Could you try again?"

// ErrLLMUnavailable is returned while the inference component is cooling down
var ErrLLMUnavailable = errors.New("inference endpoint temporarily unavailable")

// ChatClient is the inference collaborator: ordered messages in, reply text out
type ChatClient interface {
	Chat(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// LLMConfig describes an OpenAI-compatible endpoint
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// OpenAIChatClient posts to {BaseURL}/chat/completions
type OpenAIChatClient struct {
	config     LLMConfig
	httpClient *http.Client
	health     *health.Service
	component  health.Component
}

// NewOpenAIChatClient creates a client. healthService may be nil.
func NewOpenAIChatClient(config LLMConfig, healthService *health.Service) *OpenAIChatClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	if healthService != nil {
		healthService.Register(health.ComponentLLM, nil)
	}

	return &OpenAIChatClient{
		config:     config,
		httpClient: &http.Client{},
		health:     healthService,
		component:  health.ComponentLLM,
	}
}

// Derive returns a client sharing the endpoint but with its own sampling settings and health component
func (c *OpenAIChatClient) Derive(component health.Component, temperature float64, maxTokens int, jsonMode bool) *OpenAIChatClient {
	config := c.config
	config.Temperature = temperature
	config.MaxTokens = maxTokens
	config.JSONMode = jsonMode

	if c.health != nil {
		c.health.Register(component, nil)
	}

	return &OpenAIChatClient{
		config:     config,
		httpClient: c.httpClient,
		health:     c.health,
		component:  component,
	}
}

// Config returns the endpoint configuration
func (c *OpenAIChatClient) Config() LLMConfig {
	return c.config
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat performs a non-streaming completion bounded by the configured timeout
func (c *OpenAIChatClient) Chat(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if c.health != nil && !c.health.Available(c.component) {
		return "", ErrLLMUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reqBody := map[string]interface{}{
		"model":    c.config.Model,
		"messages": messages,
		"stream":   false,
	}
	if c.config.Temperature > 0 {
		reqBody["temperature"] = c.config.Temperature
	}
	if c.config.MaxTokens > 0 {
		reqBody["max_tokens"] = c.config.MaxTokens
	}
	if c.config.JSONMode {
		reqBody["response_format"] = map[string]interface{}{"type": "json_object"}
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/chat/completions", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		llmLatency.WithLabelValues("error").Observe(elapsed.Seconds())
		c.markUnhealthy(err.Error(), 0)
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if elapsed > SlowResponseThreshold {
		log.Printf("🐢 [LLM] Slow response from %s: %.2fs", c.config.Model, elapsed.Seconds())
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		llmLatency.WithLabelValues("error").Observe(elapsed.Seconds())
		c.markUnhealthy(string(body), resp.StatusCode)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		llmLatency.WithLabelValues("error").Observe(elapsed.Seconds())
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		llmLatency.WithLabelValues("error").Observe(elapsed.Seconds())
		return "", fmt.Errorf("no choices in response")
	}

	llmLatency.WithLabelValues("ok").Observe(elapsed.Seconds())
	if c.health != nil {
		c.health.MarkHealthy(c.component, int(elapsed.Milliseconds()))
	}

	return result.Choices[0].Message.Content, nil
}

func (c *OpenAIChatClient) markUnhealthy(errMsg string, statusCode int) {
	if c.health != nil {
		c.health.MarkUnhealthy(c.component, errMsg, statusCode)
	}
}

// stripCodeFences removes a surrounding ```json or ``` fence from a model reply
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```JSON")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// extractJSONObject returns the outermost {...} span of s, or s unchanged
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}
