package repoindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/sha1n/mcp-coderag-server/internal/config"
	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

const (
	// InitLockTimeout bounds how long a follower instance waits for the
	// leader to finish indexing before serving whatever is on disk.
	InitLockTimeout = 10 * time.Minute

	// embedBatchSize is the number of unit texts sent per embedding request.
	embedBatchSize = 64
)

const qaSystemPrompt = "You are a helpful assistant that answers questions " +
	"about a code repository. Use only the provided context. If the context " +
	"does not contain the answer, say so instead of guessing."

// ErrNotReady is returned by query operations before Initialize has
// completed with at least one usable index.
var ErrNotReady = errors.New("repository index is not ready")

// Service coordinates the ingestion pipeline (walk, chunk, summarize,
// embed, index) and question answering over the resulting indexes.
type Service struct {
	settings *config.RepoRAGSettings
	layout   *CacheLayout
	manifest *Manifest
	lock     *FileLock
	git      *GitClient
	walker   *Walker
	chunker  *Chunker
	keyword  *KeywordIndexer
	builder  *ContextBuilder
	embedder Embedder
	model    ChatModel
	vectors  VectorStore
	logger   *slog.Logger

	mu        sync.RWMutex
	ready     bool
	active    []string          // repo IDs currently serving queries
	repoRoots map[string]string // repo ID -> checkout directory
	alias     bleve.IndexAlias
}

// NewService creates a repo RAG service. The embedder, chat model and
// vector store are injected so tests can substitute fakes.
func NewService(settings *config.RepoRAGSettings, embedder Embedder, model ChatModel, vectors VectorStore, logger *slog.Logger) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if embedder == nil || model == nil || vectors == nil {
		return nil, fmt.Errorf("embedder, model and vector store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(settings.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	layout := NewCacheLayout(settings.CacheDir)

	manifest, err := LoadManifest(layout.ManifestPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	builder, err := NewContextBuilder(settings.MaxContextTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create context builder: %w", err)
	}

	filter := NewFileFilter(settings.Extensions, settings.MaxFileSize)

	return &Service{
		settings:  settings,
		layout:    layout,
		manifest:  manifest,
		lock:      NewFileLock(layout.LockPath()),
		git:       NewGitClient(),
		walker:    NewWalker(filter, logger),
		chunker:   NewChunker(settings.ChunkSize, settings.ChunkOverlap),
		keyword:   NewKeywordIndexer(layout),
		builder:   builder,
		embedder:  embedder,
		model:     model,
		vectors:   vectors,
		logger:    logger,
		repoRoots: make(map[string]string),
	}, nil
}

// Initialize indexes the configured repositories with leader/follower
// coordination: the instance holding the pipeline lock runs the pipeline
// while others wait, then everyone opens the on-disk indexes read-only.
func (s *Service) Initialize(ctx context.Context) error {
	acquired, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire pipeline lock: %w", err)
	}

	if acquired {
		s.logger.Info("Acquired pipeline lock, indexing repositories")
		if err := s.indexAll(ctx); err != nil {
			s.logger.Error("Indexing failed", "error", err)
			// Continue to open whatever succeeded
		}
		if err := s.manifest.Save(s.layout.ManifestPath()); err != nil {
			s.logger.Error("Failed to save manifest", "error", err)
		}
		if err := s.lock.Unlock(); err != nil {
			s.logger.Error("Failed to release pipeline lock", "error", err)
		}
	} else {
		s.logger.Info("Another instance is indexing, waiting for completion")
		if err := s.lock.Lock(ctx, InitLockTimeout); err != nil {
			s.logger.Warn("Timeout waiting for indexing, using existing indexes", "error", err)
		} else {
			if err := s.lock.Unlock(); err != nil {
				s.logger.Error("Failed to release pipeline lock", "error", err)
			}
		}
		// Pick up the manifest the leader just wrote
		if manifest, err := LoadManifest(s.layout.ManifestPath()); err == nil {
			s.manifest = manifest
		}
	}

	return s.openIndexes(ctx)
}

// indexAll runs the pipeline for every configured repository, reusing
// indexes that are already complete on disk.
func (s *Service) indexAll(ctx context.Context) error {
	var errs []error
	for _, source := range s.settings.Repos {
		loaded, err := s.LoadExistingIndex(ctx, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", source, err))
			continue
		}
		if loaded {
			s.logger.Info("Reusing existing index", "source", source)
			continue
		}
		if _, err := s.RunFullPipeline(ctx, source); err != nil {
			s.logger.Error("Pipeline failed", "source", source, "error", err)
			errs = append(errs, fmt.Errorf("index %s: %w", source, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d repository pipeline(s) failed", len(errs))
	}
	return nil
}

// LoadExistingIndex reports whether a complete and current index for the
// source already exists: a clean manifest entry, the keyword index on
// disk, the vector collection present, and a corpus digest matching the
// source tree as it looks now.
func (s *Service) LoadExistingIndex(ctx context.Context, source string) (bool, error) {
	repoID, err := RepoID(source)
	if err != nil {
		return false, err
	}

	granularity := s.granularity()
	state, ok := s.manifest.GetState(repoID, granularity)
	if !ok || state.Error != "" {
		return false, nil
	}
	if !s.keyword.IndexExists(repoID, granularity) {
		return false, nil
	}

	root, err := s.sourceRoot(repoID, source)
	if err != nil {
		return false, nil
	}
	digest, err := s.corpusDigest(root)
	if err != nil {
		// Unwalkable tree (e.g. a remote source not yet cloned): rebuild
		return false, nil
	}
	if state.CorpusDigest == "" || digest != state.CorpusDigest {
		return false, nil
	}

	return s.vectors.CollectionExists(ctx, state.Collection)
}

// RunFullPipeline ingests one repository end to end: resolve the source
// tree, walk and unitize it, summarize when enabled, embed, and write
// both indexes. The manifest records the outcome either way.
func (s *Service) RunFullPipeline(ctx context.Context, source string) (IndexState, error) {
	repoID, err := RepoID(source)
	if err != nil {
		return IndexState{}, err
	}

	state, err := s.runPipeline(ctx, repoID, source)
	if err != nil {
		s.manifest.SetError(repoID, s.granularity(), err.Error())
		return IndexState{}, err
	}

	s.manifest.SetState(state)
	return state, nil
}

func (s *Service) runPipeline(ctx context.Context, repoID, source string) (IndexState, error) {
	granularity := s.granularity()
	collection := CollectionName(repoID, granularity)

	root, err := s.resolveRoot(ctx, repoID, source)
	if err != nil {
		return IndexState{}, err
	}

	s.logger.Info("Starting pipeline",
		"repo_id", repoID,
		"source", source,
		"granularity", granularity)

	units, fileCount, digest, err := s.collectUnits(root, granularity)
	if err != nil {
		return IndexState{}, fmt.Errorf("walk failed: %w", err)
	}

	if s.settings.Summarize {
		cache := NewSummaryCache(s.layout.SummaryDir(repoID, granularity))
		summarizer := NewSummarizer(s.model, cache, s.logger)
		for i := range units {
			summary, err := summarizer.Summarize(ctx, units[i])
			if err != nil {
				return IndexState{}, err
			}
			units[i].Text = summary
		}
	}

	records, err := s.embedUnits(ctx, repoID, units)
	if err != nil {
		return IndexState{}, err
	}

	// Rebuild the collection from scratch so units from deleted files
	// do not linger across runs.
	exists, err := s.vectors.CollectionExists(ctx, collection)
	if err != nil {
		return IndexState{}, fmt.Errorf("vector store unavailable: %w", err)
	}
	if exists {
		if err := s.vectors.DropCollection(ctx, collection); err != nil {
			return IndexState{}, fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	if err := s.vectors.EnsureCollection(ctx, collection, s.embedder.Dimensions()); err != nil {
		return IndexState{}, fmt.Errorf("failed to create collection: %w", err)
	}
	if len(records) > 0 {
		if err := s.vectors.Upsert(ctx, collection, records); err != nil {
			return IndexState{}, fmt.Errorf("vector upsert failed: %w", err)
		}
	}

	if err := s.keyword.DeleteIndex(repoID, granularity); err != nil {
		return IndexState{}, fmt.Errorf("failed to reset keyword index: %w", err)
	}
	indexed, err := s.keyword.IndexUnits(repoID, DisplayName(source), granularity, units)
	if err != nil {
		return IndexState{}, fmt.Errorf("keyword indexing failed: %w", err)
	}

	s.logger.Info("Pipeline complete",
		"repo_id", repoID,
		"files", fileCount,
		"units", len(units),
		"keyword_docs", indexed)

	return IndexState{
		Source:         source,
		RepoID:         repoID,
		Granularity:    string(granularity),
		Collection:     collection,
		IndexedAt:      time.Now(),
		FileCount:      fileCount,
		UnitCount:      len(units),
		EmbeddingModel: s.settings.Embedding.Model,
		VectorDim:      s.embedder.Dimensions(),
		CorpusDigest:   digest,
	}, nil
}

// collectUnits walks the source tree and produces one unit per file or
// per chunk window, depending on granularity, along with a digest of the
// walked corpus for staleness checks.
func (s *Service) collectUnits(root string, granularity domain.Granularity) ([]domain.SourceUnit, int, string, error) {
	var units []domain.SourceUnit
	fileCount := 0
	hasher := sha256.New()

	err := s.walker.Walk(root, func(file SourceFile) error {
		fileCount++
		hashCorpusFile(hasher, file)
		symbols := ExtractSymbols(file.Extension, file.Content)

		if granularity == domain.GranularityChunk {
			for i, chunk := range s.chunker.Split(file.Content) {
				units = append(units, domain.SourceUnit{
					FilePath:    file.RelPath,
					Extension:   file.Extension,
					Granularity: granularity,
					ChunkIndex:  i,
					Text:        chunk,
					Symbols:     symbols,
				})
			}
			return nil
		}

		units = append(units, domain.SourceUnit{
			FilePath:    file.RelPath,
			Extension:   file.Extension,
			Granularity: granularity,
			Text:        file.Content,
			Symbols:     symbols,
		})
		return nil
	})
	if err != nil {
		return nil, 0, "", err
	}
	return units, fileCount, hex.EncodeToString(hasher.Sum(nil)), nil
}

// corpusDigest walks the source tree and hashes every eligible file's
// path and content, in walk order. An unchanged tree hashes identically
// across runs.
func (s *Service) corpusDigest(root string) (string, error) {
	hasher := sha256.New()
	err := s.walker.Walk(root, func(file SourceFile) error {
		hashCorpusFile(hasher, file)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func hashCorpusFile(h hash.Hash, file SourceFile) {
	h.Write([]byte(file.RelPath))
	h.Write([]byte{0})
	h.Write([]byte(file.Content))
	h.Write([]byte{0})
}

// embedUnits embeds unit texts in batches and pairs each vector with its
// unit metadata.
func (s *Service) embedUnits(ctx context.Context, repoID string, units []domain.SourceUnit) ([]domain.EmbeddingRecord, error) {
	records := make([]domain.EmbeddingRecord, 0, len(units))

	for start := 0; start < len(units); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(units) {
			end = len(units)
		}
		batch := units[start:end]

		texts := make([]string, len(batch))
		for i, unit := range batch {
			texts[i] = unit.Text
		}

		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(texts))
		}

		for i, unit := range batch {
			records = append(records, domain.EmbeddingRecord{
				ID:          domain.UnitID(repoID, unit.FilePath, unit.ChunkIndex),
				Vector:      vectors[i],
				Text:        unit.Text,
				FilePath:    unit.FilePath,
				Granularity: unit.Granularity,
				ChunkIndex:  unit.ChunkIndex,
				Extension:   unit.Extension,
				Symbols:     unit.Symbols,
			})
		}
	}

	return records, nil
}

// resolveRoot returns the local directory holding the repository source,
// cloning or updating remote repositories into the cache first.
func (s *Service) resolveRoot(ctx context.Context, repoID, source string) (string, error) {
	if IsRemoteSource(source) {
		dest := s.layout.CloneDir(repoID)
		if _, err := s.git.EnsureLocal(ctx, source, dest); err != nil {
			return "", fmt.Errorf("repository sync failed: %w", err)
		}
		return dest, nil
	}

	root, err := NormalizeRepoPath(source)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("repository path not accessible: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository path is not a directory: %s", root)
	}
	return root, nil
}

// IndexRepository runs the full pipeline for a single source under the
// pipeline lock and brings the result online. Used by the MCP tool.
func (s *Service) IndexRepository(ctx context.Context, source string) (IndexState, error) {
	if err := s.lock.Lock(ctx, InitLockTimeout); err != nil {
		return IndexState{}, fmt.Errorf("failed to acquire pipeline lock: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Error("Failed to release pipeline lock", "error", err)
		}
	}()

	state, err := s.RunFullPipeline(ctx, source)
	if saveErr := s.manifest.Save(s.layout.ManifestPath()); saveErr != nil {
		s.logger.Error("Failed to save manifest", "error", saveErr)
	}
	if err != nil {
		return IndexState{}, err
	}

	root, rootErr := s.resolveRoot(ctx, state.RepoID, source)
	if rootErr != nil {
		return IndexState{}, rootErr
	}
	if err := s.register(state.RepoID, root); err != nil {
		return IndexState{}, err
	}
	return state, nil
}

// Ask answers a question using retrieved repository context. An index
// with zero records yields a fixed answer without calling the chat model.
func (s *Service) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question cannot be empty")
	}

	s.mu.RLock()
	ready := s.ready
	active := make([]string, len(s.active))
	copy(active, s.active)
	s.mu.RUnlock()

	if !ready {
		return nil, ErrNotReady
	}

	granularity := s.granularity()
	var total uint64
	collections := make([]string, 0, len(active))
	for _, repoID := range active {
		name := CollectionName(repoID, granularity)
		count, err := s.vectors.Count(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("vector store unavailable: %w", err)
		}
		total += count
		collections = append(collections, name)
	}

	if total == 0 {
		return &domain.Answer{
			Question:       question,
			Answer:         domain.NoContextAnswer,
			ContextSources: []string{},
		}, nil
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedding service returned no vector for the question")
	}

	var hits []domain.ScoredRecord
	for _, name := range collections {
		records, err := s.vectors.Query(ctx, name, vectors[0], s.settings.TopK)
		if err != nil {
			return nil, fmt.Errorf("vector query failed: %w", err)
		}
		hits = append(hits, records...)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > s.settings.TopK {
		hits = hits[:s.settings.TopK]
	}

	contextText, used := s.builder.Build(hits)
	paths := make([]string, len(used))
	for i, record := range used {
		paths[i] = record.FilePath
	}

	userPrompt := fmt.Sprintf("Context:\n%s\nQuestion: %s", contextText, question)
	answer, err := s.model.Complete(ctx, qaSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	return &domain.Answer{
		Question:       question,
		Answer:         answer,
		ContextSources: domain.DedupSources(paths),
		NumSources:     len(used),
	}, nil
}

// openIndexes registers every repository with a usable keyword index and
// builds the combined search alias.
func (s *Service) openIndexes(ctx context.Context) error {
	granularity := s.granularity()

	for _, source := range s.settings.Repos {
		repoID, err := RepoID(source)
		if err != nil {
			continue
		}
		state, ok := s.manifest.GetState(repoID, granularity)
		if !ok || state.Error != "" {
			continue
		}
		if !s.keyword.IndexExists(repoID, granularity) {
			continue
		}
		root, err := s.sourceRoot(repoID, source)
		if err != nil {
			s.logger.Warn("Skipping repository with unresolvable root", "source", source, "error", err)
			continue
		}
		if err := s.register(repoID, root); err != nil {
			return err
		}
	}

	s.mu.RLock()
	count := len(s.active)
	s.mu.RUnlock()

	if count == 0 {
		s.logger.Warn("No indexes available")
		return nil
	}
	s.logger.Info("Indexes ready", "count", count)
	return nil
}

// register brings one repository online and rebuilds the search alias.
func (s *Service) register(repoID, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repoRoots[repoID] = root
	found := false
	for _, id := range s.active {
		if id == repoID {
			found = true
			break
		}
	}
	if !found {
		s.active = append(s.active, repoID)
	}

	if s.alias != nil {
		if err := s.alias.Close(); err != nil {
			return fmt.Errorf("failed to close index alias: %w", err)
		}
		s.alias = nil
	}

	alias, err := s.keyword.CreateAlias(s.active, s.granularity())
	if err != nil {
		return fmt.Errorf("failed to create index alias: %w", err)
	}
	s.alias = alias
	s.ready = true
	return nil
}

// sourceRoot returns the checkout directory for a source without touching
// the network: remote sources map to their cache clone directory.
func (s *Service) sourceRoot(repoID, source string) (string, error) {
	if IsRemoteSource(source) {
		return s.layout.CloneDir(repoID), nil
	}
	return NormalizeRepoPath(source)
}

func (s *Service) granularity() domain.Granularity {
	return domain.Granularity(s.settings.Granularity)
}

// IsReady returns true if at least one index is open for queries.
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// GetIndexAlias returns the combined keyword index for searching.
func (s *Service) GetIndexAlias() (bleve.IndexAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready || s.alias == nil {
		return nil, ErrNotReady
	}
	return s.alias, nil
}

// RepoRoot returns the checkout directory for an indexed repository.
func (s *Service) RepoRoot(repoID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.repoRoots[repoID]
	return root, ok
}

// States returns the manifest entries for all indexed repositories.
func (s *Service) States() []IndexState {
	return s.manifest.States()
}

// GetSettings returns the service settings.
func (s *Service) GetSettings() *config.RepoRAGSettings {
	return s.settings
}

// SetGitClient allows injecting a custom git client for testing.
func (s *Service) SetGitClient(client *GitClient) {
	s.git = client
}

// Close releases all resources.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alias != nil {
		if err := s.alias.Close(); err != nil {
			return fmt.Errorf("failed to close alias: %w", err)
		}
		s.alias = nil
	}

	s.ready = false
	return nil
}
