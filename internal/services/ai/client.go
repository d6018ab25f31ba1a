package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mazungumzo-chat-go/internal/config"
)

// healthCheckTimeout bounds the probe request so a hanging provider cannot
// stall the health endpoint.
const healthCheckTimeout = 5 * time.Second

// chatMessage is the wire shape of one conversation turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// clientError marks 4xx responses. The request itself was rejected, so
// retrying cannot help.
type clientError struct {
	status int
	body   string
}

func (e *clientError) Error() string {
	return fmt.Sprintf("completion failed with client error %d: %s", e.status, e.body)
}

func isClientError(err error) bool {
	var ce *clientError
	return errors.As(err, &ce)
}

// providerClient talks to one OpenAI-compatible completion endpoint.
type providerClient struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
}

func newProviderClient(cfg config.ProviderConfig) *providerClient {
	return &providerClient{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

func (c *providerClient) name() string { return c.cfg.Name }

// complete performs a single chat completion call.
func (c *providerClient) complete(ctx context.Context, messages []chatMessage, maxTokens int, temperature float64, timeout time.Duration) (string, error) {
	reqBody := map[string]interface{}{
		"model":       c.cfg.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", c.completionURL(), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", &clientError{status: resp.StatusCode, body: string(body)}
		}
		return "", fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("provider error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no completion in response")
	}

	return result.Choices[0].Message.Content, nil
}

// ping sends a minimal completion and reports the round trip time. Only the
// HTTP status is inspected; the reply body does not matter for liveness.
func (c *providerClient) ping(ctx context.Context) (time.Duration, error) {
	reqBody := map[string]interface{}{
		"model":      c.cfg.Model,
		"messages":   []chatMessage{{Role: "user", Content: "Hello"}},
		"max_tokens": 10,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", c.completionURL(), bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Since(start), fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	elapsed := time.Since(start)
	if resp.StatusCode != http.StatusOK {
		return elapsed, fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return elapsed, nil
}

func (c *providerClient) completionURL() string {
	return fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(c.cfg.BaseURL, "/"))
}

func (c *providerClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.APIKey))
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}
}
