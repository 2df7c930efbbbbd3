package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-coderag-server/internal/config"
	"github.com/sha1n/mcp-coderag-server/internal/embedding"
	"github.com/sha1n/mcp-coderag-server/internal/llm"
	mcputil "github.com/sha1n/mcp-coderag-server/internal/mcp"
	"github.com/sha1n/mcp-coderag-server/internal/repoindex"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting coderag MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(mcpServer, settings)
}

// CreateMCPServer creates the MCP server with registered tools
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func(), error) {
	ragSvc, cleanup, err := createRepoRAGService(context.Background(), &settings.RepoRAG)
	if err != nil {
		slog.Error("Repo RAG initialization failed, continuing without tools", "error", err)
		ragSvc = nil
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    "coderag-mcp",
		Version: "1.0.0",
		RepoRAG: ragSvc,
	})

	return server, cleanup, nil
}

// createRepoRAGService wires the hosted-service clients and the pipeline
// service, then indexes the configured repositories.
func createRepoRAGService(ctx context.Context, settings *config.RepoRAGSettings) (*repoindex.Service, func(), error) {
	if settings.Embedding.BaseURL == "" || settings.LLM.Endpoint == "" {
		return nil, nil, fmt.Errorf("embedding base URL and LLM endpoint are required")
	}

	embedder := embedding.NewClient(settings.Embedding, slog.Default())
	if _, err := embedder.Probe(ctx); err != nil {
		return nil, nil, fmt.Errorf("embedding service probe failed: %w", err)
	}

	chatModel := llm.NewClient(settings.LLM, slog.Default())

	store, err := repoindex.ConnectQdrant(
		settings.Qdrant.Host,
		settings.Qdrant.Port,
		settings.Qdrant.APIKey,
		settings.Qdrant.UseTLS,
		slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	svc, err := repoindex.NewService(settings, embedder, chatModel, store, slog.Default())
	if err != nil {
		closeStore(store)
		return nil, nil, fmt.Errorf("failed to create repo RAG service: %w", err)
	}

	// Initialize in background context (not tied to request context)
	if err := svc.Initialize(context.Background()); err != nil {
		if closeErr := svc.Close(); closeErr != nil {
			slog.Error("Failed to close repo RAG service", "error", closeErr)
		}
		closeStore(store)
		return nil, nil, fmt.Errorf("repo RAG initialization failed: %w", err)
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close repo RAG service", "error", err)
		}
		closeStore(store)
	}
	return svc, cleanup, nil
}

func closeStore(store *repoindex.QdrantStore) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close qdrant client", "error", err)
	}
}
