package repoindex

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrInvalidSSHURL indicates the URL is not a valid SSH URL
	ErrInvalidSSHURL = errors.New("invalid SSH URL format")

	// Regex patterns for SSH URL parsing
	// Matches: git@github.com:org/repo.git or git@github.com:org/subgroup/repo.git
	sshScpPattern = regexp.MustCompile(`^git@([^:]+):(.+?)(?:\.git)?$`)

	// Matches: ssh://git@github.com/org/repo.git
	sshURLPattern = regexp.MustCompile(`^ssh://git@([^/]+)/(.+?)(?:\.git)?$`)
)

// NormalizeRepoPath converts a local repository path to a canonical absolute
// form with forward slashes. Two invocations pointing at the same directory
// produce the same normalized path regardless of relative prefixes or
// trailing separators.
func NormalizeRepoPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Clean(abs)), nil
}

// RepoID derives a short stable identifier for a repository source.
// Local paths are normalized first so that "./repo" and "/abs/path/repo"
// hash identically; remote URLs are hashed as-is after trimming.
// The ID is the first 8 hex characters of a SHA-256 digest, which is
// filesystem-safe and collision-resistant enough for cache directory names.
func RepoID(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("repository source is empty")
	}

	key := source
	if !IsRemoteSource(source) {
		normalized, err := NormalizeRepoPath(source)
		if err != nil {
			return "", err
		}
		key = normalized
	}

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:8], nil
}

// IsRemoteSource reports whether the source string refers to a remote git
// repository rather than a local directory.
func IsRemoteSource(source string) bool {
	if strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://") {
		return true
	}
	return IsValidSSHURL(source)
}

// ParseSSHURL parses an SSH git URL and returns the host, path, and repository name.
// Supports both SCP-style (git@host:path) and SSH URL style (ssh://git@host/path).
//
// Examples:
//   - git@github.com:org/repo.git -> host: github.com, path: org/repo, repo: repo
//   - ssh://git@github.com/org/repo.git -> host: github.com, path: org/repo, repo: repo
func ParseSSHURL(url string) (host, path, repo string, err error) {
	url = strings.TrimSpace(url)

	// Try SCP-style pattern first (more common)
	if matches := sshScpPattern.FindStringSubmatch(url); matches != nil {
		host = matches[1]
		path = matches[2]
		repo = extractRepoName(path)
		return host, path, repo, nil
	}

	// Try SSH URL pattern
	if matches := sshURLPattern.FindStringSubmatch(url); matches != nil {
		host = matches[1]
		path = matches[2]
		repo = extractRepoName(path)
		return host, path, repo, nil
	}

	return "", "", "", ErrInvalidSSHURL
}

// extractRepoName extracts the repository name from a path.
// For "org/repo" returns "repo", for "group/sub/repo" returns "repo".
func extractRepoName(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return path
}

// DisplayName returns a human-readable name for a repository source.
// For local paths this is the final directory component; for remote URLs
// it is the repository name without the .git suffix.
func DisplayName(source string) string {
	source = strings.TrimSpace(source)
	if _, _, repo, err := ParseSSHURL(source); err == nil {
		return repo
	}
	if strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://") {
		trimmed := strings.TrimSuffix(strings.TrimRight(source, "/"), ".git")
		return extractRepoName(trimmed)
	}
	return filepath.Base(filepath.Clean(source))
}

// IsValidSSHURL checks if the given URL is a valid SSH git URL.
func IsValidSSHURL(url string) bool {
	_, _, _, err := ParseSSHURL(url)
	return err == nil
}
