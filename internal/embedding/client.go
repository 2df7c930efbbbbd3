package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sha1n/mcp-coderag-server/internal/config"
)

const (
	// maxBatchSize is the OpenAI embeddings API input limit per request.
	maxBatchSize = 2048

	requestTimeout = 30 * time.Second
	retryBaseDelay = 500 * time.Millisecond
)

// Client calls an OpenAI-compatible embeddings endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
	dim        int
}

// NewClient creates an embeddings client from settings.
func NewClient(settings config.EmbeddingSettings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		baseURL:    strings.TrimSuffix(settings.BaseURL, "/"),
		apiKey:     settings.APIKey,
		model:      settings.Model,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// buildEmbeddingURL appends the /v1/embeddings path unless the base URL
// already carries it in some form.
func buildEmbeddingURL(baseURL string) string {
	if strings.Contains(baseURL, "/v1/embeddings") {
		return baseURL
	}
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL + "/embeddings"
	}
	return baseURL + "/v1/embeddings"
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedTexts embeds a batch of texts, splitting oversized batches to
// honor the API input limit.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	if len(texts) <= maxBatchSize {
		return c.embedBatch(ctx, texts)
	}

	c.logger.Info("Splitting texts into batches",
		"total_texts", len(texts),
		"batch_limit", maxBatchSize)

	allVectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch starting at %d: %w", start, err)
		}
		allVectors = append(allVectors, vectors...)
	}
	return allVectors, nil
}

// embedBatch sends one embeddings request with bounded retries.
// Transport errors, 429 and 5xx responses are retried with jittered
// backoff; other client errors fail immediately.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := buildEmbeddingURL(c.baseURL)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * retryBaseDelay
			delay += time.Duration(rand.Int63n(int64(retryBaseDelay)))
			c.logger.Warn("Retrying embedding request",
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vectors, retryable, err := c.doRequest(ctx, url, body, len(texts))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embedding request failed after %d attempts: %w", c.maxRetries, lastErr)
}

// doRequest performs one HTTP round trip. The second return value
// reports whether the failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, url string, body []byte, expected int) ([][]float32, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Data) != expected {
		return nil, false, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(parsed.Data), expected)
	}

	// The API may return data out of order; place vectors by index
	vectors := make([][]float32, expected)
	for _, data := range parsed.Data {
		if data.Index < 0 || data.Index >= expected {
			return nil, false, fmt.Errorf("embeddings API returned out-of-range index %d", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, false, nil
}

// Probe embeds a single test input to discover the model's vector
// dimension and caches it for Dimensions.
func (c *Client) Probe(ctx context.Context) (int, error) {
	vectors, err := c.EmbedTexts(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("embeddings API returned an empty vector")
	}

	c.dim = len(vectors[0])
	c.logger.Info("Embedding model probed",
		"model", c.model,
		"dimensions", c.dim)
	return c.dim, nil
}

// Dimensions returns the probed vector size, or zero before Probe runs.
func (c *Client) Dimensions() int {
	return c.dim
}
