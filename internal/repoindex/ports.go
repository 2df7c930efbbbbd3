package repoindex

import (
	"context"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

// Embedder converts text into dense vectors.
type Embedder interface {
	// EmbedTexts embeds a batch of texts, preserving order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size produced by the model.
	Dimensions() int
}

// ChatModel produces completions for summarization and question answering.
type ChatModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// VectorStore persists embedding records and serves similarity queries.
// Each repository and granularity pair maps to its own collection, so
// queries never mix units from different repositories.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, vectorDim int) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context, name string) (uint64, error)
	Upsert(ctx context.Context, name string, records []domain.EmbeddingRecord) error
	Query(ctx context.Context, name string, vector []float32, limit int) ([]domain.ScoredRecord, error)
	DropCollection(ctx context.Context, name string) error
}
