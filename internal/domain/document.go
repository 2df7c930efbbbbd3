package domain

import "fmt"

// Granularity selects the unit of text handed to the embedder.
type Granularity string

const (
	// GranularityFile embeds one unit per source file: the full file text,
	// or its cached LLM summary when summarisation is enabled.
	GranularityFile Granularity = "file"

	// GranularityChunk embeds fixed-size overlapping text windows.
	GranularityChunk Granularity = "chunk"
)

// IsValid reports whether g is a known granularity mode.
func (g Granularity) IsValid() bool {
	return g == GranularityFile || g == GranularityChunk
}

// SourceUnit is one text unit produced during ingestion: a whole file,
// a file summary, or a single chunk. Units are created during the walk,
// never mutated, and discarded after embedding.
type SourceUnit struct {
	// FilePath is the file path relative to the repository root.
	FilePath string

	// Extension is the file extension without the leading dot.
	Extension string

	// Granularity records which mode produced this unit.
	Granularity Granularity

	// ChunkIndex is the zero-based window index for chunk granularity.
	// Always zero for file granularity.
	ChunkIndex int

	// Text is the content to embed: file text, summary, or window text.
	Text string

	// Symbols are identifiers extracted from the originating file.
	Symbols []string
}

// EmbeddingRecord is a (vector, text, metadata) triple persisted in the
// vector index. One-to-one with a source unit.
type EmbeddingRecord struct {
	// ID uniquely identifies the record within its collection.
	ID string

	// Vector is the fixed-length embedding of Text.
	Vector []float32

	// Text is the embedded source text, stored for context assembly.
	Text string

	// FilePath, Granularity and ChunkIndex mirror the originating SourceUnit.
	FilePath    string
	Granularity Granularity
	ChunkIndex  int

	// Extension is the originating file's extension without the leading dot.
	Extension string

	// Symbols are identifiers extracted from the originating file.
	Symbols []string
}

// ScoredRecord is a retrieval hit: a record plus its similarity score.
type ScoredRecord struct {
	EmbeddingRecord
	Score float32
}

// Answer is the result of one question against an indexed repository.
// It is ephemeral and never persisted.
type Answer struct {
	// Question is the question as asked.
	Question string `json:"question"`

	// Answer is the hosted model's response, or the deterministic
	// no-context text when the index holds no records.
	Answer string `json:"answer"`

	// ContextSources lists contributing file paths, deduplicated,
	// ordered by retrieval rank.
	ContextSources []string `json:"context_sources"`

	// NumSources is the number of retrieved source units (pre-dedup).
	NumSources int `json:"num_sources"`
}

// NoContextAnswer is returned when a question is asked against an index
// with zero records. No hosted-model call is made in that case.
const NoContextAnswer = "No indexed context is available to answer this question."

// DedupSources deduplicates file paths preserving first-seen order.
func DedupSources(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	UnitFieldID          = "id"
	UnitFieldRepository  = "repository"
	UnitFieldFilePath    = "file_path"
	UnitFieldExtension   = "extension"
	UnitFieldGranularity = "granularity"
	UnitFieldChunkIndex  = "chunk_index"
	UnitFieldText        = "text"
	UnitFieldSymbols     = "symbols"
)

// UnitID builds a stable keyword-index document ID for a source unit.
// Format: "{repoID}/{relPath}#{chunkIndex}".
func UnitID(repoID, relPath string, chunkIndex int) string {
	return fmt.Sprintf("%s/%s#%d", repoID, relPath, chunkIndex)
}
