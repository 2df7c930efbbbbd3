package repoindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

// MockExecutor records commands and returns configured responses.
// This is exported for use in integration tests.
type MockExecutor struct {
	commands []MockCommand
	calls    []ExecutorCall
}

// MockCommand defines a mock response for a command prefix.
type MockCommand struct {
	NamePrefix string
	Output     []byte
	Err        error
}

// ExecutorCall records a command invocation.
type ExecutorCall struct {
	Dir  string
	Name string
	Args []string
}

// NewMockExecutor creates a new mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		commands: make([]MockCommand, 0),
		calls:    make([]ExecutorCall, 0),
	}
}

// AddResponse adds a mock response for commands matching the given prefix.
func (m *MockExecutor) AddResponse(namePrefix string, output []byte, err error) {
	m.commands = append(m.commands, MockCommand{
		NamePrefix: namePrefix,
		Output:     output,
		Err:        err,
	})
}

// Run executes a command and returns the configured mock response.
func (m *MockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	call := ExecutorCall{Dir: dir, Name: name, Args: args}
	m.calls = append(m.calls, call)

	// Build full command string for matching
	fullCmd := name + " " + strings.Join(args, " ")

	// Find matching response
	for i, cmd := range m.commands {
		if strings.HasPrefix(fullCmd, cmd.NamePrefix) {
			// Remove used response
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			return cmd.Output, cmd.Err
		}
	}

	return nil, errors.New("no mock response configured for: " + fullCmd)
}

// GetCalls returns all recorded command calls.
func (m *MockExecutor) GetCalls() []ExecutorCall {
	return m.calls
}

// MustGetLastCall returns the last recorded call, fails the test if no calls were made.
func (m *MockExecutor) MustGetLastCall(t *testing.T) ExecutorCall {
	t.Helper()
	if len(m.calls) == 0 {
		t.Fatal("Expected at least one command call")
	}
	return m.calls[len(m.calls)-1]
}

// FakeEmbedder produces deterministic vectors without any network calls.
// The call count lets tests assert on summary cache hits.
type FakeEmbedder struct {
	Dim   int
	Err   error
	mu    sync.Mutex
	calls int
	texts []string
}

// EmbedTexts returns a deterministic vector per input text.
func (f *FakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts...)

	if f.Err != nil {
		return nil, f.Err
	}

	dim := f.Dim
	if dim == 0 {
		dim = 4
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(len(text)%(j+2)) + float32(j)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the configured vector size.
func (f *FakeEmbedder) Dimensions() int {
	if f.Dim == 0 {
		return 4
	}
	return f.Dim
}

// CallCount returns the number of EmbedTexts invocations.
func (f *FakeEmbedder) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// EmbeddedTexts returns every text passed to EmbedTexts.
func (f *FakeEmbedder) EmbeddedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// FakeChatModel returns canned completions and records prompts.
type FakeChatModel struct {
	Response string
	Err      error
	mu       sync.Mutex
	calls    int
	prompts  []string
}

// Complete returns the configured response.
func (f *FakeChatModel) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, userPrompt)

	if f.Err != nil {
		return "", f.Err
	}
	if f.Response == "" {
		return "fake completion", nil
	}
	return f.Response, nil
}

// CallCount returns the number of Complete invocations.
func (f *FakeChatModel) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Prompts returns every user prompt passed to Complete.
func (f *FakeChatModel) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// FakeVectorStore is an in-memory VectorStore for pipeline tests.
// Query returns records in insertion order with descending synthetic scores.
type FakeVectorStore struct {
	mu          sync.Mutex
	collections map[string][]domain.EmbeddingRecord
	UpsertErr   error
	QueryErr    error
}

// NewFakeVectorStore creates an empty in-memory store.
func NewFakeVectorStore() *FakeVectorStore {
	return &FakeVectorStore{
		collections: make(map[string][]domain.EmbeddingRecord),
	}
}

// EnsureCollection creates the collection if it does not exist.
func (f *FakeVectorStore) EnsureCollection(_ context.Context, name string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = nil
	}
	return nil
}

// CollectionExists reports whether the collection was created.
func (f *FakeVectorStore) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, nil
}

// Count returns the number of stored records.
func (f *FakeVectorStore) Count(_ context.Context, name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.collections[name])), nil
}

// Upsert appends records to the collection.
func (f *FakeVectorStore) Upsert(_ context.Context, name string, records []domain.EmbeddingRecord) error {
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		return fmt.Errorf("collection %s does not exist", name)
	}
	f.collections[name] = append(f.collections[name], records...)
	return nil
}

// Query returns up to limit records with synthetic descending scores.
func (f *FakeVectorStore) Query(_ context.Context, name string, _ []float32, limit int) ([]domain.ScoredRecord, error) {
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	records := f.collections[name]
	if limit > len(records) {
		limit = len(records)
	}

	scored := make([]domain.ScoredRecord, 0, limit)
	for i := 0; i < limit; i++ {
		scored = append(scored, domain.ScoredRecord{
			EmbeddingRecord: records[i],
			Score:           1.0 - float32(i)*0.01,
		})
	}
	return scored, nil
}

// DropCollection removes the collection and its records.
func (f *FakeVectorStore) DropCollection(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	return nil
}
