package repoindex

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExcludePatterns contains file patterns to exclude from indexing.
// These patterns match common dependency directories, build outputs,
// generated files, and binary/media files that should not be embedded.
var DefaultExcludePatterns = []string{
	// Dependencies
	"node_modules/**", "vendor/**", "venv/**", ".venv/**",
	"target/**", "build/**", "dist/**", "out/**",
	".git/**", "__pycache__/**", ".pytest_cache/**",
	".gradle/**", ".m2/**", ".npm/**", ".yarn/**",

	// Generated files
	"*.min.js", "*.min.css", "*.map", "*.pb.go",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"go.sum", "poetry.lock", "Cargo.lock",

	// Logs and local state
	"*.log", ".idea/**", ".vscode/**", ".DS_Store",
}

// SourceFile is a single text file discovered during a repository walk.
// Content is already read and verified to be non-binary.
type SourceFile struct {
	// RelPath is the path relative to the repository root, forward slashes.
	RelPath string

	// Extension is the file extension without the leading dot.
	Extension string

	// Content is the full file text.
	Content string
}

// FileFilter determines which files should be included in indexing.
// Files pass when their extension is on the allow-list and no exclusion
// pattern matches their relative path.
type FileFilter struct {
	extensions  map[string]bool
	patterns    []string
	maxFileSize int64
}

// NewFileFilter creates a FileFilter with the default exclusion patterns.
// Extensions are compared without the leading dot and case-insensitively.
func NewFileFilter(extensions []string, maxFileSize int64) *FileFilter {
	return NewFileFilterWithPatterns(extensions, DefaultExcludePatterns, maxFileSize)
}

// NewFileFilterWithPatterns creates a FileFilter with custom exclusion patterns.
func NewFileFilterWithPatterns(extensions, patterns []string, maxFileSize int64) *FileFilter {
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &FileFilter{
		extensions:  extSet,
		patterns:    patterns,
		maxFileSize: maxFileSize,
	}
}

// AllowsExtension returns true if the extension is on the allow-list.
// An empty allow-list admits every extension.
func (f *FileFilter) AllowsExtension(ext string) bool {
	if len(f.extensions) == 0 {
		return true
	}
	return f.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// ShouldExclude returns true if the given path matches any exclusion pattern.
// The path should be relative to the repository root.
func (f *FileFilter) ShouldExclude(relPath string) bool {
	relPath = filepath.ToSlash(relPath)

	for _, pattern := range f.patterns {
		if matchPattern(pattern, relPath) {
			return true
		}
	}
	return false
}

// MaxFileSize returns the maximum file size for indexing.
func (f *FileFilter) MaxFileSize() int64 {
	return f.maxFileSize
}

// Walker discovers the indexable text files of a repository.
type Walker struct {
	filter *FileFilter
	logger *slog.Logger
}

// NewWalker creates a Walker using the given filter.
func NewWalker(filter *FileFilter, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{filter: filter, logger: logger}
}

// Walk traverses the repository rooted at root and invokes fn for every
// file that passes the filter. Unreadable and binary files are skipped
// with a warning rather than aborting the walk; empty files are skipped
// silently. Returning an error from fn aborts the walk.
func (w *Walker) Walk(root string, fn func(SourceFile) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Skipping unreadable entry", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
				return filepath.SkipDir
			}
			// Prune excluded directories without descending
			if relPath != "." && w.filter.ShouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.filter.ShouldExclude(relPath) {
			return nil
		}

		ext := GetFileExtension(relPath)
		if !w.filter.AllowsExtension(ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if w.filter.MaxFileSize() > 0 && info.Size() > w.filter.MaxFileSize() {
			w.logger.Warn("Skipping oversized file", "path", relPath, "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("Skipping unreadable file", "path", relPath, "error", err)
			return nil
		}
		if len(content) == 0 {
			return nil
		}
		if IsBinary(content) {
			w.logger.Warn("Skipping binary file", "path", relPath)
			return nil
		}

		return fn(SourceFile{
			RelPath:   relPath,
			Extension: ext,
			Content:   string(content),
		})
	})
}

// matchPattern matches a file path against a glob pattern.
// Supports ** for directory matching and * for filename matching.
func matchPattern(pattern, path string) bool {
	// Handle **/ prefix (match any directory depth)
	if strings.HasPrefix(pattern, "**/") {
		rest := pattern[3:]
		if matchSimplePattern(rest, path) {
			return true
		}
		parts := strings.Split(path, "/")
		for i := range parts {
			subPath := strings.Join(parts[i:], "/")
			if matchSimplePattern(rest, subPath) {
				return true
			}
		}
		return false
	}

	// Handle /** suffix (match directory and all contents)
	if strings.HasSuffix(pattern, "/**") {
		dir := pattern[:len(pattern)-3]
		if path == dir || strings.HasPrefix(path, dir+"/") {
			return true
		}
		if strings.Contains(path, "/"+dir+"/") {
			return true
		}
		parts := strings.Split(path, "/")
		for i, part := range parts {
			if part == dir && i < len(parts)-1 {
				return true
			}
		}
		return false
	}

	return matchSimplePattern(pattern, path)
}

// matchSimplePattern matches a simple glob pattern (with * but not **).
func matchSimplePattern(pattern, name string) bool {
	// Handle patterns that start with *.
	if strings.HasPrefix(pattern, "*.") {
		ext := pattern[1:] // ".ext"
		return strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
	}

	// Exact match
	if pattern == name {
		return true
	}

	// Match pattern against the filename (not full path) for extension patterns
	if strings.HasPrefix(pattern, "*") {
		baseName := filepath.Base(name)
		suffix := pattern[1:]
		return strings.HasSuffix(strings.ToLower(baseName), strings.ToLower(suffix))
	}

	// Use filepath.Match for other patterns
	matched, _ := filepath.Match(pattern, name)
	if matched {
		return true
	}

	// Also try matching against just the filename
	baseName := filepath.Base(name)
	matched, _ = filepath.Match(pattern, baseName)
	return matched
}

// IsBinary checks if the content appears to be binary by looking for null bytes
// in the first 512 bytes. This is a heuristic used by git and other tools.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)

	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// GetFileExtension returns the file extension without the leading dot.
// Returns empty string if no extension.
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimPrefix(ext, ".")
}
