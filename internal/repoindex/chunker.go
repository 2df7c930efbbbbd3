package repoindex

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Chunker splits file content into fixed-size overlapping windows.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker creates a Chunker. Non-positive size falls back to the default,
// negative overlap falls back to the default, and an overlap that would
// prevent forward progress is clamped to a quarter of the chunk size.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// ChunkSize returns the effective chunk size in characters.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap returns the effective overlap in characters.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split divides content into overlapping windows. Consecutive chunks share
// the trailing overlap characters of the previous chunk, so concatenating
// them covers the full content with no gaps. Windows are measured in runes,
// not bytes, so a boundary never lands inside a multi-byte character.
// Empty content yields no chunks.
func (c *Chunker) Split(content string) []string {
	if content == "" {
		return nil
	}

	runes := []rune(content)
	total := len(runes)
	stride := c.chunkSize - c.overlap

	estimated := total/stride + 1
	chunks := make([]string, 0, estimated)

	for start := 0; start < total; start += stride {
		end := start + c.chunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == total {
			break
		}
	}

	return chunks
}
