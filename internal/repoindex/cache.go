package repoindex

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

const (
	summaryCacheDirName = "summary_cache"
	keywordIndexDirName = "keyword.bleve"
	digestHeaderPrefix  = "digest:"
)

// CacheLayout resolves the on-disk locations of per-repository artifacts
// under the cache root: summaries, the keyword index, the manifest, and
// the lock file guarding concurrent pipeline runs.
type CacheLayout struct {
	root string
}

// NewCacheLayout creates a layout rooted at the given cache directory.
func NewCacheLayout(root string) *CacheLayout {
	return &CacheLayout{root: root}
}

// Root returns the cache root directory.
func (c *CacheLayout) Root() string {
	return c.root
}

// RepoDir returns the directory for one repository at one granularity.
func (c *CacheLayout) RepoDir(repoID string, granularity domain.Granularity) string {
	return filepath.Join(c.root, repoID, string(granularity))
}

// SummaryDir returns the summary cache directory for a repository.
func (c *CacheLayout) SummaryDir(repoID string, granularity domain.Granularity) string {
	return filepath.Join(c.RepoDir(repoID, granularity), summaryCacheDirName)
}

// KeywordIndexDir returns the Bleve index directory for a repository.
func (c *CacheLayout) KeywordIndexDir(repoID string, granularity domain.Granularity) string {
	return filepath.Join(c.RepoDir(repoID, granularity), keywordIndexDirName)
}

// ManifestPath returns the shared manifest file path.
func (c *CacheLayout) ManifestPath() string {
	return filepath.Join(c.root, ManifestFilename)
}

// LockPath returns the lock file path guarding pipeline runs.
func (c *CacheLayout) LockPath() string {
	return filepath.Join(c.root, ".pipeline.lock")
}

// CloneDir returns the local working directory for a remote repository.
func (c *CacheLayout) CloneDir(repoID string) string {
	return filepath.Join(c.root, repoID, "source")
}

// ContentDigest returns the hex SHA-256 digest of the given text.
// Summaries are invalidated when the digest of the source text changes.
func ContentDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SummaryCache stores LLM-generated summaries on disk, one file per source
// unit. Each file begins with a digest header line recording the hash of
// the source text; a mismatched digest is treated as a miss so stale
// summaries are regenerated rather than served.
type SummaryCache struct {
	dir string
}

// NewSummaryCache creates a cache rooted at dir.
func NewSummaryCache(dir string) *SummaryCache {
	return &SummaryCache{dir: dir}
}

// entryPath maps a unit ID fragment to its cache file. Path separators in
// relative paths are preserved as subdirectories.
func (s *SummaryCache) entryPath(relPath string, chunkIndex int) string {
	name := filepath.FromSlash(relPath)
	if chunkIndex >= 0 {
		name = fmt.Sprintf("%s.%d", name, chunkIndex)
	}
	return filepath.Join(s.dir, name+".txt")
}

// Get returns the cached summary for the unit if one exists and its digest
// matches the current source digest.
func (s *SummaryCache) Get(relPath string, chunkIndex int, digest string) (string, bool) {
	data, err := os.ReadFile(s.entryPath(relPath, chunkIndex))
	if err != nil {
		return "", false
	}

	header, body, found := strings.Cut(string(data), "\n")
	if !found || !strings.HasPrefix(header, digestHeaderPrefix) {
		return "", false
	}
	if strings.TrimPrefix(header, digestHeaderPrefix) != digest {
		return "", false
	}
	return body, true
}

// Put persists a summary together with the digest of its source text.
// The write is atomic so a crashed run never leaves a truncated entry.
func (s *SummaryCache) Put(relPath string, chunkIndex int, digest, summary string) error {
	path := s.entryPath(relPath, chunkIndex)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary cache directory: %w", err)
	}

	data := digestHeaderPrefix + digest + "\n" + summary
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write summary temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename summary file: %w", err)
	}
	return nil
}
