package repoindex

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandExecutor abstracts command execution for testing.
type CommandExecutor interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor executes commands using os/exec.
type DefaultExecutor struct{}

// Run executes a command and returns its combined output.
func (e *DefaultExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Include stderr in error message for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// GitClient materializes remote repository sources into local working
// directories so the indexing pipeline can walk them like any local path.
type GitClient struct {
	executor CommandExecutor
}

// NewGitClient creates a new GitClient with the default command executor.
func NewGitClient() *GitClient {
	return &GitClient{
		executor: &DefaultExecutor{},
	}
}

// NewGitClientWithExecutor creates a GitClient with a custom executor (for testing).
func NewGitClientWithExecutor(executor CommandExecutor) *GitClient {
	return &GitClient{
		executor: executor,
	}
}

// Clone performs a shallow clone of the repository.
// Uses --depth 1 and --single-branch for efficiency.
func (g *GitClient) Clone(ctx context.Context, url, destDir string) error {
	_, err := g.executor.Run(ctx, "", "git", "clone",
		"--depth", "1",
		"--single-branch",
		url,
		destDir,
	)
	if err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

// Fetch fetches the latest changes from the remote.
// Uses --depth 1 to maintain shallow clone.
func (g *GitClient) Fetch(ctx context.Context, repoDir string) error {
	_, err := g.executor.Run(ctx, repoDir, "git", "fetch", "--depth", "1")
	if err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// Reset performs a hard reset to origin/HEAD.
// This updates the working directory to match the remote.
func (g *GitClient) Reset(ctx context.Context, repoDir string) error {
	_, err := g.executor.Run(ctx, repoDir, "git", "reset", "--hard", "origin/HEAD")
	if err != nil {
		return fmt.Errorf("git reset failed: %w", err)
	}
	return nil
}

// GetHeadCommit returns the current HEAD commit SHA.
func (g *GitClient) GetHeadCommit(ctx context.Context, repoDir string) (string, error) {
	output, err := g.executor.Run(ctx, repoDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsGitRepository checks if the given directory is a git repository.
func (g *GitClient) IsGitRepository(ctx context.Context, dir string) bool {
	_, err := g.executor.Run(ctx, dir, "git", "rev-parse", "--git-dir")
	return err == nil
}

// EnsureLocal makes sure a remote repository is available at destDir and up
// to date, cloning on first use and fetch+reset on subsequent runs.
// Returns the HEAD commit SHA of the local copy.
func (g *GitClient) EnsureLocal(ctx context.Context, url, destDir string) (string, error) {
	if _, err := os.Stat(destDir); os.IsNotExist(err) {
		if err := g.Clone(ctx, url, destDir); err != nil {
			return "", err
		}
		return g.GetHeadCommit(ctx, destDir)
	}

	if !g.IsGitRepository(ctx, destDir) {
		return "", fmt.Errorf("destination %s exists but is not a git repository", destDir)
	}

	if err := g.Fetch(ctx, destDir); err != nil {
		return "", err
	}
	if err := g.Reset(ctx, destDir); err != nil {
		return "", err
	}
	return g.GetHeadCommit(ctx, destDir)
}
