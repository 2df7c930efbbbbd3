package repoindex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

// CollectionName builds the Qdrant collection name for a repository and
// granularity pair. Each pair gets its own collection so queries never
// cross repository boundaries.
func CollectionName(repoID string, granularity domain.Granularity) string {
	return "repo_" + repoID + "_" + string(granularity)
}

// PointID derives a deterministic UUID for a source unit so that
// re-indexing upserts in place instead of accumulating duplicates.
func PointID(unitID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(unitID)).String()
}

// QdrantStore implements VectorStore against a Qdrant server over gRPC.
type QdrantStore struct {
	client *qdrant.Client
	logger *slog.Logger
}

// ConnectQdrant establishes a gRPC connection to Qdrant and returns a store.
func ConnectQdrant(host string, port int, apiKey string, useTLS bool, logger *slog.Logger) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return NewQdrantStore(client, logger), nil
}

// NewQdrantStore wraps an existing Qdrant client.
func NewQdrantStore(client *qdrant.Client, logger *slog.Logger) *QdrantStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantStore{client: client, logger: logger}
}

// Close tears down the underlying gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (q *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorDim int) error {
	exists, err := q.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	q.logger.Info("Created vector collection", "collection", name, "dim", vectorDim)
	return nil
}

// CollectionExists reports whether the named collection exists.
func (q *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, collection := range collections {
		if collection == name {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantStore) Count(ctx context.Context, name string) (uint64, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points in %s: %w", name, err)
	}
	return count, nil
}

// Upsert writes embedding records into the collection. Point IDs are
// derived from record IDs, so repeated runs overwrite rather than duplicate.
func (q *QdrantStore) Upsert(ctx context.Context, name string, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, record := range records {
		vector := make([]float32, len(record.Vector))
		copy(vector, record.Vector)

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(record.ID)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"unit_id":     record.ID,
				"file_path":   record.FilePath,
				"granularity": string(record.Granularity),
				"chunk_index": int64(record.ChunkIndex),
				"extension":   record.Extension,
				"text":        record.Text,
				"symbols":     strings.Join(record.Symbols, " "),
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points into %s: %w", name, err)
	}
	return nil
}

// Query runs a similarity search and maps hits back to scored records.
func (q *QdrantStore) Query(ctx context.Context, name string, vector []float32, limit int) ([]domain.ScoredRecord, error) {
	queryVector := make([]float32, len(vector))
	copy(queryVector, vector)

	queryLimit := uint64(limit)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &queryLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}

	records := make([]domain.ScoredRecord, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		if payload == nil {
			continue
		}

		record := domain.EmbeddingRecord{
			ID:          payload["unit_id"].GetStringValue(),
			FilePath:    payload["file_path"].GetStringValue(),
			Granularity: domain.Granularity(payload["granularity"].GetStringValue()),
			ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
			Extension:   payload["extension"].GetStringValue(),
			Text:        payload["text"].GetStringValue(),
		}
		if symbols := payload["symbols"].GetStringValue(); symbols != "" {
			record.Symbols = strings.Fields(symbols)
		}

		records = append(records, domain.ScoredRecord{
			EmbeddingRecord: record,
			Score:           hit.GetScore(),
		})
	}
	return records, nil
}

// DropCollection deletes the collection and all its points.
func (q *QdrantStore) DropCollection(ctx context.Context, name string) error {
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}
