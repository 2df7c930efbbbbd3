package repoindex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

const summarizerSystemPrompt = "You are a code analysis assistant. " +
	"Summarize the given source code concisely: describe its purpose, " +
	"the key functions and types it defines, and notable dependencies. " +
	"Respond with the summary only."

// Summarizer produces natural-language summaries of source units, backed by
// a disk cache keyed on content digest. A cached unit is returned without
// calling the model.
type Summarizer struct {
	model  ChatModel
	cache  *SummaryCache
	logger *slog.Logger
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(model ChatModel, cache *SummaryCache, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{model: model, cache: cache, logger: logger}
}

// Summarize returns the summary for a source unit, serving from cache when
// the source text is unchanged. Model failures propagate to the caller
// after the client's own retries are exhausted; nothing is cached on error.
func (s *Summarizer) Summarize(ctx context.Context, unit domain.SourceUnit) (string, error) {
	digest := ContentDigest(unit.Text)

	// Whole-file units map to suffix-free cache entries
	cacheIndex := unit.ChunkIndex
	if unit.Granularity == domain.GranularityFile {
		cacheIndex = -1
	}

	if summary, ok := s.cache.Get(unit.FilePath, cacheIndex, digest); ok {
		s.logger.Debug("Summary cache hit", "path", unit.FilePath, "chunk", unit.ChunkIndex)
		return summary, nil
	}

	userPrompt := fmt.Sprintf("File: %s\n\n%s", unit.FilePath, unit.Text)
	summary, err := s.model.Complete(ctx, summarizerSystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("summarization failed for %s: %w", unit.FilePath, err)
	}

	if err := s.cache.Put(unit.FilePath, cacheIndex, digest, summary); err != nil {
		// A failed cache write costs a re-summarization next run, not correctness
		s.logger.Warn("Failed to persist summary", "path", unit.FilePath, "error", err)
	}

	return summary, nil
}
