package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PingCheck adapts a ping function (cache backend, datastore) into a Checker
type PingCheck struct {
	Name Component
	Ping func(ctx context.Context) error
}

func (p *PingCheck) Component() Component { return p.Name }

func (p *PingCheck) Check(ctx context.Context) (int, error) {
	start := time.Now()
	err := p.Ping(ctx)
	return int(time.Since(start).Milliseconds()), err
}

// InferenceCheck performs a lightweight connectivity check by hitting the /models endpoint
// of an OpenAI-compatible server, so no completion tokens are spent.
type InferenceCheck struct {
	Name    Component
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (c *InferenceCheck) Component() Component { return c.Name }

func (c *InferenceCheck) Check(ctx context.Context) (int, error) {
	modelsURL := fmt.Sprintf("%s/models", strings.TrimSuffix(c.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create connectivity check request: %w", err)
	}
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	startTime := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("connectivity check failed: %w", err)
	}
	defer resp.Body.Close()

	latencyMs := int(time.Since(startTime).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized {
		return latencyMs, fmt.Errorf("authentication failed (invalid API key)")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return latencyMs, fmt.Errorf("quota exceeded: %s", string(body))
	}

	// Any 2xx or even 404 (endpoint missing but server up) counts as connected
	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return latencyMs, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}

	return latencyMs, nil
}
