package repoindex

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestSearchHandler_NotReady(t *testing.T) {
	settings := newTestRAGSettings(t)
	svc, _, _, _ := newTestService(t, settings)

	handler := NewSearchHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "test"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result when service not ready")
	}
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	svc, _, _ := setupIndexedService(t, map[string]string{
		"main.py": "def run():\n    pass\n",
	})

	handler := NewSearchHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: ""})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result for empty query")
	}
}

func TestSearchHandler_SimpleSearch(t *testing.T) {
	svc, _, _ := setupIndexedService(t, map[string]string{
		"billing.py": "def process_payment(amount):\n    return amount\n",
		"notes.md":   "Payment flow documentation.\n",
	})

	handler := NewSearchHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{
		Query: "process_payment",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "billing.py") {
		t.Errorf("Expected billing.py in results, got: %s", text)
	}
}

func TestSearchHandler_SymbolBoost(t *testing.T) {
	svc, _, _ := setupIndexedService(t, map[string]string{
		"currency.go": "package money\n\nfunc FormatCurrency(v int) string {\n\treturn \"\"\n}\n",
		"other.go":    "package money\n\nvar placeholder = 1\n",
	})

	handler := NewSearchHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{
		Query: "FormatCurrency",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", resultText(t, result))
	}
	if !strings.Contains(resultText(t, result), "currency.go") {
		t.Errorf("Expected symbol match for currency.go, got: %s", resultText(t, result))
	}
}

func TestSearchHandler_ExtensionFilter(t *testing.T) {
	svc, _, _ := setupIndexedService(t, map[string]string{
		"app.py":  "def startup():\n    pass\n",
		"app.go":  "package app\n\nfunc startup() {}\n",
		"docs.md": "startup notes\n",
	})

	handler := NewSearchHandler(svc)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{
		Query:     "startup",
		Extension: ".py", // leading dot is normalized away
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "app.py") {
		t.Errorf("Expected app.py in filtered results, got: %s", text)
	}
	if strings.Contains(text, "app.go") {
		t.Errorf("Expected app.go to be excluded by the extension filter, got: %s", text)
	}
}

func TestSearchHandler_RepositoryFilter(t *testing.T) {
	svc, repo, _ := setupIndexedService(t, map[string]string{
		"main.py": "def startup():\n    pass\n",
	})

	handler := NewSearchHandler(svc)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{
		Query:      "startup",
		Repository: DisplayName(repo),
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError || !strings.Contains(resultText(t, result), "main.py") {
		t.Errorf("Expected match with repository filter, got: %s", resultText(t, result))
	}

	result, _, err = handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{
		Query:      "startup",
		Repository: "some-other-repo",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Error("Expected success (no results) for non-matching repository filter")
	}
	if !strings.Contains(resultText(t, result), "No results") {
		t.Errorf("Expected no-results message, got: %s", resultText(t, result))
	}
}

func TestSearchHandler_NoResults(t *testing.T) {
	svc, _, _ := setupIndexedService(t, map[string]string{
		"main.py": "def run():\n    pass\n",
	})

	handler := NewSearchHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{
		Query: "nonexistentterm12345",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Error("Expected success (no results message), got error")
	}
	if !strings.Contains(resultText(t, result), "No results") {
		t.Errorf("Expected no-results message, got: %s", resultText(t, result))
	}
}

func TestSearchHandler_GetToolDefinition(t *testing.T) {
	settings := newTestRAGSettings(t)
	svc, _, _, _ := newTestService(t, settings)

	tool := NewSearchHandler(svc).GetToolDefinition()
	if tool.Name != "search_code" {
		t.Errorf("Tool name = %q, want 'search_code'", tool.Name)
	}
	if tool.Description == "" {
		t.Error("Tool description should not be empty")
	}
}
