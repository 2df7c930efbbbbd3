package repoindex

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

func fileUnit(path, text string) domain.SourceUnit {
	return domain.SourceUnit{
		FilePath:    path,
		Extension:   GetFileExtension(path),
		Granularity: domain.GranularityFile,
		Text:        text,
	}
}

func TestSummarizer_CallsModelOnMiss(t *testing.T) {
	model := &FakeChatModel{Response: "This script prints a greeting."}
	cache := NewSummaryCache(t.TempDir())
	s := NewSummarizer(model, cache, nil)

	summary, err := s.Summarize(context.Background(), fileUnit("main.py", "print('hi')"))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "This script prints a greeting." {
		t.Errorf("Summarize = %q", summary)
	}
	if model.CallCount() != 1 {
		t.Errorf("Expected 1 model call, got %d", model.CallCount())
	}
}

func TestSummarizer_CacheHitSkipsModel(t *testing.T) {
	model := &FakeChatModel{Response: "summary"}
	cache := NewSummaryCache(t.TempDir())
	s := NewSummarizer(model, cache, nil)

	unit := fileUnit("main.py", "print('hi')")

	if _, err := s.Summarize(context.Background(), unit); err != nil {
		t.Fatalf("First Summarize failed: %v", err)
	}
	summary, err := s.Summarize(context.Background(), unit)
	if err != nil {
		t.Fatalf("Second Summarize failed: %v", err)
	}
	if summary != "summary" {
		t.Errorf("Summarize = %q", summary)
	}
	if model.CallCount() != 1 {
		t.Errorf("Expected exactly 1 model call for repeated unit, got %d", model.CallCount())
	}
}

func TestSummarizer_ChangedContentRegenerates(t *testing.T) {
	model := &FakeChatModel{Response: "summary"}
	cache := NewSummaryCache(t.TempDir())
	s := NewSummarizer(model, cache, nil)

	if _, err := s.Summarize(context.Background(), fileUnit("main.py", "v1")); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if _, err := s.Summarize(context.Background(), fileUnit("main.py", "v2")); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if model.CallCount() != 2 {
		t.Errorf("Expected 2 model calls after content change, got %d", model.CallCount())
	}
}

func TestSummarizer_ModelErrorPropagates(t *testing.T) {
	modelErr := errors.New("model unavailable")
	model := &FakeChatModel{Err: modelErr}
	cache := NewSummaryCache(t.TempDir())
	s := NewSummarizer(model, cache, nil)

	_, err := s.Summarize(context.Background(), fileUnit("main.py", "text"))
	if !errors.Is(err, modelErr) {
		t.Fatalf("Expected wrapped model error, got: %v", err)
	}

	// Nothing cached on failure; a retry calls the model again
	model.Err = nil
	model.Response = "recovered"
	summary, err := s.Summarize(context.Background(), fileUnit("main.py", "text"))
	if err != nil {
		t.Fatalf("Summarize after recovery failed: %v", err)
	}
	if summary != "recovered" {
		t.Errorf("Summarize = %q, want %q", summary, "recovered")
	}
}

func TestSummarizer_PromptIncludesFilePath(t *testing.T) {
	model := &FakeChatModel{Response: "summary"}
	cache := NewSummaryCache(t.TempDir())
	s := NewSummarizer(model, cache, nil)

	if _, err := s.Summarize(context.Background(), fileUnit("src/util.go", "package util")); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	prompts := model.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("Expected 1 prompt, got %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "src/util.go") {
		t.Errorf("Prompt missing file path: %q", prompts[0])
	}
	if !strings.Contains(prompts[0], "package util") {
		t.Errorf("Prompt missing file content: %q", prompts[0])
	}
}
