package repoindex

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestReadHandler_NotReady(t *testing.T) {
	settings := newTestRAGSettings(t)
	svc, _, _, _ := newTestService(t, settings)

	handler := NewReadHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{
		Repository: "repo",
		Path:       "main.py",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result when service not ready")
	}
}

func TestReadHandler_Validation(t *testing.T) {
	svc, repo, _ := setupIndexedService(t, map[string]string{
		"main.py": "def run():\n    pass\n",
	})
	handler := NewReadHandler(svc)

	tests := []struct {
		name string
		args ReadArgument
	}{
		{"empty repository", ReadArgument{Repository: "", Path: "main.py"}},
		{"empty path", ReadArgument{Repository: repo, Path: ""}},
		{"absolute path", ReadArgument{Repository: repo, Path: "/etc/passwd"}},
		{"parent traversal", ReadArgument{Repository: repo, Path: "../secrets.txt"}},
		{"embedded traversal", ReadArgument{Repository: repo, Path: "src/../../secrets.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !result.IsError {
				t.Error("Expected error result")
			}
		})
	}
}

func TestReadHandler_ReadsFile(t *testing.T) {
	svc, repo, _ := setupIndexedService(t, map[string]string{
		"src/billing.py": "def process_payment(amount):\n    return amount\n",
	})

	handler := NewReadHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{
		Repository: DisplayName(repo),
		Path:       "src/billing.py",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "process_payment") {
		t.Errorf("Expected file content in result, got: %s", text)
	}
	if !strings.Contains(text, "```python") {
		t.Errorf("Expected python language hint, got: %s", text)
	}
}

func TestReadHandler_AcceptsRepoID(t *testing.T) {
	svc, repo, _ := setupIndexedService(t, map[string]string{
		"main.py": "def run():\n    pass\n",
	})
	repoID, err := RepoID(repo)
	if err != nil {
		t.Fatalf("RepoID failed: %v", err)
	}

	handler := NewReadHandler(svc)
	result, _, handleErr := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{
		Repository: repoID,
		Path:       "main.py",
	})
	if handleErr != nil {
		t.Fatalf("Handle returned error: %v", handleErr)
	}
	if result.IsError {
		t.Fatalf("Expected success via repo ID, got error: %s", resultText(t, result))
	}
}

func TestReadHandler_UnknownRepository(t *testing.T) {
	svc, _, _ := setupIndexedService(t, map[string]string{
		"main.py": "def run():\n    pass\n",
	})

	handler := NewReadHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{
		Repository: "no-such-repo",
		Path:       "main.py",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result for unknown repository")
	}
}

func TestReadHandler_FileNotFound(t *testing.T) {
	svc, repo, _ := setupIndexedService(t, map[string]string{
		"main.py": "def run():\n    pass\n",
	})

	handler := NewReadHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{
		Repository: DisplayName(repo),
		Path:       "missing.py",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result for missing file")
	}
}

func TestExtensionToLanguage(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{"go", "go"},
		{"py", "python"},
		{"md", "markdown"},
		{"PY", "python"},
		{"unknown", "unknown"},
	}

	for _, tt := range tests {
		if got := extensionToLanguage(tt.ext); got != tt.want {
			t.Errorf("extensionToLanguage(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"main.py", "src/util.go", "docs/guide.md"}
	for _, path := range valid {
		if err := validatePath(path); err != nil {
			t.Errorf("validatePath(%q) unexpected error: %v", path, err)
		}
	}

	invalid := []string{"/etc/passwd", "../escape", "src/../../escape"}
	for _, path := range invalid {
		if err := validatePath(path); err == nil {
			t.Errorf("validatePath(%q) expected error", path)
		}
	}
}
