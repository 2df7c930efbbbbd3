package repoindex

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

const (
	// MaxBatchSize is the maximum number of documents per batch
	MaxBatchSize = 100

	// MaxBatchBytes is the maximum bytes per batch (10MB)
	MaxBatchBytes = 10 * 1024 * 1024
)

// unitDocument is the Bleve document shape for one source unit.
type unitDocument struct {
	ID          string `json:"id"`
	Repository  string `json:"repository"`
	FilePath    string `json:"file_path"`
	Extension   string `json:"extension"`
	Granularity string `json:"granularity"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	Symbols     string `json:"symbols"`
}

// KeywordIndexer maintains the full-text index for one repository and
// granularity. It complements the vector index: exact identifiers and
// literal strings that embeddings blur are found here.
type KeywordIndexer struct {
	layout *CacheLayout
}

// NewKeywordIndexer creates an indexer over the given cache layout.
func NewKeywordIndexer(layout *CacheLayout) *KeywordIndexer {
	return &KeywordIndexer{layout: layout}
}

// CreateIndexMapping creates the Bleve index mapping for source units.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Text field - analyzed for full-text search
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	textField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.UnitFieldText, textField)

	// Symbols - analyzed so individual identifiers match
	symbolsField := bleve.NewTextFieldMapping()
	symbolsField.Analyzer = standard.Name
	symbolsField.Store = true
	docMapping.AddFieldMappingsAt(domain.UnitFieldSymbols, symbolsField)

	// Repository - keyword (not analyzed), stored for retrieval
	repoField := bleve.NewTextFieldMapping()
	repoField.Analyzer = keyword.Name
	repoField.Store = true
	docMapping.AddFieldMappingsAt(domain.UnitFieldRepository, repoField)

	// Extension - keyword, stored
	extField := bleve.NewTextFieldMapping()
	extField.Analyzer = keyword.Name
	extField.Store = true
	docMapping.AddFieldMappingsAt(domain.UnitFieldExtension, extField)

	// FilePath - keyword, stored
	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	docMapping.AddFieldMappingsAt(domain.UnitFieldFilePath, pathField)

	// Granularity - keyword, stored
	granField := bleve.NewTextFieldMapping()
	granField.Analyzer = keyword.Name
	granField.Store = true
	docMapping.AddFieldMappingsAt(domain.UnitFieldGranularity, granField)

	// ID - stored but not indexed (we use the document ID)
	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.UnitFieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// OpenForWrite opens or creates an index for writing.
func (k *KeywordIndexer) OpenForWrite(repoID string, granularity domain.Granularity) (bleve.Index, error) {
	indexPath := k.layout.KeywordIndexDir(repoID, granularity)

	index, err := bleve.Open(indexPath)
	if err == nil {
		return index, nil
	}

	index, err = bleve.New(indexPath, CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return index, nil
}

// OpenForRead opens an existing index for reading.
func (k *KeywordIndexer) OpenForRead(repoID string, granularity domain.Granularity) (bleve.Index, error) {
	indexPath := k.layout.KeywordIndexDir(repoID, granularity)

	index, err := bleve.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	return index, nil
}

// IndexExists checks if an index exists for the given repo and granularity.
func (k *KeywordIndexer) IndexExists(repoID string, granularity domain.Granularity) bool {
	_, err := os.Stat(k.layout.KeywordIndexDir(repoID, granularity))
	return err == nil
}

// DeleteIndex removes an index from disk.
func (k *KeywordIndexer) DeleteIndex(repoID string, granularity domain.Granularity) error {
	return os.RemoveAll(k.layout.KeywordIndexDir(repoID, granularity))
}

// IndexUnits writes source units into the index in batches.
// Returns the number of units indexed.
func (k *KeywordIndexer) IndexUnits(repoID, repoDisplay string, granularity domain.Granularity, units []domain.SourceUnit) (count int, err error) {
	index, err := k.OpenForWrite(repoID, granularity)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := index.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	batch := index.NewBatch()
	batchSize := 0
	batchBytes := 0
	totalIndexed := 0

	for _, unit := range units {
		doc := unitDocument{
			ID:          domain.UnitID(repoID, unit.FilePath, unit.ChunkIndex),
			Repository:  repoDisplay,
			FilePath:    unit.FilePath,
			Extension:   unit.Extension,
			Granularity: string(unit.Granularity),
			ChunkIndex:  unit.ChunkIndex,
			Text:        unit.Text,
			Symbols:     strings.Join(unit.Symbols, " "),
		}

		if err := batch.Index(doc.ID, doc); err != nil {
			continue
		}
		batchSize++
		batchBytes += len(unit.Text)

		if batchSize >= MaxBatchSize || batchBytes >= MaxBatchBytes {
			if err := index.Batch(batch); err != nil {
				return totalIndexed, fmt.Errorf("batch index failed: %w", err)
			}
			totalIndexed += batchSize
			batch = index.NewBatch()
			batchSize = 0
			batchBytes = 0
		}
	}

	if batchSize > 0 {
		if err := index.Batch(batch); err != nil {
			return totalIndexed, fmt.Errorf("final batch index failed: %w", err)
		}
		totalIndexed += batchSize
	}

	return totalIndexed, nil
}

// GetDocumentCount returns the number of documents in an index.
func (k *KeywordIndexer) GetDocumentCount(repoID string, granularity domain.Granularity) (count uint64, err error) {
	index, err := k.OpenForRead(repoID, granularity)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := index.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return index.DocCount()
}

// CreateAlias creates an IndexAlias combining the indexes of several
// repositories at one granularity.
func (k *KeywordIndexer) CreateAlias(repoIDs []string, granularity domain.Granularity) (bleve.IndexAlias, error) {
	indexes := make([]bleve.Index, 0, len(repoIDs))

	for _, repoID := range repoIDs {
		index, err := k.OpenForRead(repoID, granularity)
		if err != nil {
			for _, idx := range indexes {
				_ = idx.Close()
			}
			return nil, fmt.Errorf("failed to open index for %s: %w", repoID, err)
		}
		indexes = append(indexes, index)
	}

	if len(indexes) == 0 {
		return nil, fmt.Errorf("no indexes to combine")
	}

	return bleve.NewIndexAlias(indexes...), nil
}
