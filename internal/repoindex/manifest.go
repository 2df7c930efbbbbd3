package repoindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the default manifest filename
	ManifestFilename = "manifest.json"
)

// Manifest records the indexing state for every repository and granularity
// combination that has been processed into the cache directory.
type Manifest struct {
	Version int                   `json:"version"`
	Entries map[string]IndexState `json:"entries"`
	mu      sync.RWMutex          `json:"-"`
}

// IndexState stores the pipeline state for one repository at one granularity.
type IndexState struct {
	Source         string    `json:"source"`
	RepoID         string    `json:"repo_id"`
	Granularity    string    `json:"granularity"`
	Collection     string    `json:"collection"`
	IndexedAt      time.Time `json:"indexed_at"`
	FileCount      int       `json:"file_count"`
	UnitCount      int       `json:"unit_count"`
	EmbeddingModel string    `json:"embedding_model"`
	VectorDim      int       `json:"vector_dim,omitempty"`
	CorpusDigest   string    `json:"corpus_digest,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// StateKey builds the manifest key for a repository and granularity pair.
func StateKey(repoID string, granularity domain.Granularity) string {
	return repoID + "/" + string(granularity)
}

// NewManifest creates a new empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Entries: make(map[string]IndexState),
	}
}

// LoadManifest reads a manifest from disk, or creates a new one if it doesn't exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if manifest.Entries == nil {
		manifest.Entries = make(map[string]IndexState)
	}

	return &manifest, nil
}

// Save writes the manifest to disk atomically.
// Uses write-to-temp + rename pattern to prevent corruption.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}

	return nil
}

// GetState returns the state for a repository and granularity, and whether
// it exists.
func (m *Manifest) GetState(repoID string, granularity domain.Granularity) (IndexState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.Entries[StateKey(repoID, granularity)]
	return state, ok
}

// SetState updates the state for a repository and granularity.
func (m *Manifest) SetState(state IndexState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[state.RepoID+"/"+state.Granularity] = state
}

// HasEntry returns true if an entry exists for the repository and granularity.
func (m *Manifest) HasEntry(repoID string, granularity domain.Granularity) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Entries[StateKey(repoID, granularity)]
	return ok
}

// RemoveEntry removes the entry for a repository and granularity.
func (m *Manifest) RemoveEntry(repoID string, granularity domain.Granularity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, StateKey(repoID, granularity))
}

// States returns all entries sorted by key for stable listings.
func (m *Manifest) States() []IndexState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.Entries))
	for key := range m.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	states := make([]IndexState, 0, len(keys))
	for _, key := range keys {
		states = append(states, m.Entries[key])
	}
	return states
}

// SetError records an indexing error for a repository and granularity.
// An entry is created if one does not exist yet.
func (m *Manifest) SetError(repoID string, granularity domain.Granularity, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := StateKey(repoID, granularity)
	state := m.Entries[key]
	state.RepoID = repoID
	state.Granularity = string(granularity)
	state.Error = errMsg
	m.Entries[key] = state
}

// ClearError clears the error for a repository and granularity.
func (m *Manifest) ClearError(repoID string, granularity domain.Granularity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := StateKey(repoID, granularity)
	if state, ok := m.Entries[key]; ok {
		state.Error = ""
		m.Entries[key] = state
	}
}

// EntriesWithErrors returns the entries that recorded an indexing error,
// keyed by manifest key.
func (m *Manifest) EntriesWithErrors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string)
	for key, state := range m.Entries {
		if state.Error != "" {
			result[key] = state.Error
		}
	}
	return result
}
