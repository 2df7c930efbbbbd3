package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sha1n/mcp-coderag-server/internal/config"
)

const (
	requestTimeout = 60 * time.Second
	retryBaseDelay = 500 * time.Millisecond
)

// Client calls a hosted chat completions endpoint. When a deployment
// name is configured the Azure OpenAI URL scheme and api-key header are
// used; otherwise the endpoint is treated as an OpenAI-compatible base
// URL with bearer authentication.
type Client struct {
	endpoint   string
	deployment string
	apiVersion string
	apiKey     string
	model      string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a chat model client from settings.
func NewClient(settings config.LLMSettings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		endpoint:   strings.TrimSuffix(settings.Endpoint, "/"),
		deployment: settings.Deployment,
		apiVersion: settings.APIVersion,
		apiKey:     settings.APIKey,
		model:      settings.Model,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// completionsURL builds the request URL for the configured provider.
func (c *Client) completionsURL() string {
	if c.deployment != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.endpoint, url.PathEscape(c.deployment), url.QueryEscape(c.apiVersion))
	}
	return c.endpoint + "/chat/completions"
}

// Complete sends a system and user prompt and returns the first choice's
// content. Transport errors, 429 and 5xx responses are retried with
// jittered backoff.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqPayload := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if c.deployment == "" {
		reqPayload.Model = c.model
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqURL := c.completionsURL()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * retryBaseDelay
			delay += time.Duration(rand.Int63n(int64(retryBaseDelay)))
			c.logger.Warn("Retrying chat completion request",
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, retryable, err := c.doRequest(ctx, reqURL, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}

	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.maxRetries, lastErr)
}

// doRequest performs one HTTP round trip. The second return value
// reports whether the failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, reqURL string, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.deployment != "" {
		req.Header.Set("api-key", c.apiKey)
	} else if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("chat API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("chat API returned no choices")
	}

	c.logger.Debug("Chat completion succeeded",
		"tokens", parsed.Usage.TotalTokens,
		"finish_reason", parsed.Choices[0].FinishReason)

	return parsed.Choices[0].Message.Content, false, nil
}
