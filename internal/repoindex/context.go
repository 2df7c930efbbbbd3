package repoindex

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

// Offline BPE loader so token counting never reaches the network
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	tokenizerInstance *TokenCounter
	tokenizerOnce     sync.Once
	tokenizerErr      error
)

// TokenCounter counts tokens using the cl100k_base encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// GetTokenCounter returns the shared token counter, loading the encoding
// on first use.
func GetTokenCounter() (*TokenCounter, error) {
	tokenizerOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			tokenizerErr = err
			return
		}
		tokenizerInstance = &TokenCounter{encoding: enc}
	})

	if tokenizerErr != nil {
		return nil, tokenizerErr
	}
	return tokenizerInstance, nil
}

// Count returns the number of tokens in text.
func (t *TokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// ContextBuilder assembles retrieved units into a prompt context bounded
// by a token budget. Units are consumed in retrieval rank order; a unit
// that would overflow the budget is dropped along with everything after it.
type ContextBuilder struct {
	counter   *TokenCounter
	maxTokens int
}

// NewContextBuilder creates a builder with the given token budget.
func NewContextBuilder(maxTokens int) (*ContextBuilder, error) {
	counter, err := GetTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return &ContextBuilder{counter: counter, maxTokens: maxTokens}, nil
}

// Build formats the scored records into a single context string.
// Returns the context text and the records that made it under the budget.
func (b *ContextBuilder) Build(records []domain.ScoredRecord) (string, []domain.ScoredRecord) {
	var sb strings.Builder
	used := make([]domain.ScoredRecord, 0, len(records))
	remaining := b.maxTokens

	for _, record := range records {
		block := formatContextBlock(record)
		cost := b.counter.Count(block)
		if cost > remaining {
			break
		}
		sb.WriteString(block)
		remaining -= cost
		used = append(used, record)
	}

	return sb.String(), used
}

func formatContextBlock(record domain.ScoredRecord) string {
	header := record.FilePath
	if record.Granularity == domain.GranularityChunk {
		header = fmt.Sprintf("%s (chunk %d)", record.FilePath, record.ChunkIndex)
	}
	return fmt.Sprintf("--- %s ---\n%s\n\n", header, record.Text)
}
