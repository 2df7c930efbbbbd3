package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadSettings_Defaults(t *testing.T) {
	_ = os.Unsetenv("CODERAG_MCP_PORT")
	_ = os.Unsetenv("CODERAG_MCP_AUTH_TYPE")
	_ = os.Unsetenv("CODERAG_MCP_REPO_RAG_GRANULARITY")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", settings.Port)
	}
	if settings.Auth.Type != AuthTypeNone {
		t.Errorf("Expected default auth type '%s', got '%s'", AuthTypeNone, settings.Auth.Type)
	}
	if settings.Transport != "stdio" {
		t.Errorf("Expected default transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.RepoRAG.Granularity != GranularityChunk {
		t.Errorf("Expected default granularity 'chunk', got '%s'", settings.RepoRAG.Granularity)
	}
	if settings.RepoRAG.ChunkSize != 500 {
		t.Errorf("Expected default chunk size 500, got %d", settings.RepoRAG.ChunkSize)
	}
	if settings.RepoRAG.ChunkOverlap != 200 {
		t.Errorf("Expected default chunk overlap 200, got %d", settings.RepoRAG.ChunkOverlap)
	}
	if settings.RepoRAG.TopK != 5 {
		t.Errorf("Expected default top_k 5, got %d", settings.RepoRAG.TopK)
	}
	if settings.RepoRAG.CacheDir == "" {
		t.Error("Expected non-empty default cache dir")
	}
	if settings.RepoRAG.Qdrant.Port != 6334 {
		t.Errorf("Expected default qdrant port 6334, got %d", settings.RepoRAG.Qdrant.Port)
	}
	if len(settings.RepoRAG.Extensions) == 0 {
		t.Error("Expected non-empty default extension allow-list")
	}
}

func TestLoadSettings_EnvVars(t *testing.T) {
	t.Setenv("CODERAG_MCP_PORT", "9090")
	t.Setenv("CODERAG_MCP_REPO_RAG_GRANULARITY", "file")
	t.Setenv("CODERAG_MCP_REPO_RAG_SUMMARIZE", "true")
	t.Setenv("CODERAG_MCP_EMBEDDING_BASE_URL", "http://localhost:11434")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", settings.Port)
	}
	if settings.RepoRAG.Granularity != GranularityFile {
		t.Errorf("Expected granularity 'file', got '%s'", settings.RepoRAG.Granularity)
	}
	if !settings.RepoRAG.Summarize {
		t.Error("Expected summarize to be enabled")
	}
	if settings.RepoRAG.Embedding.BaseURL != "http://localhost:11434" {
		t.Errorf("Expected embedding base URL to be set, got '%s'", settings.RepoRAG.Embedding.BaseURL)
	}
}

func TestLoadSettings_AzureEnvAliases(t *testing.T) {
	t.Setenv("AZURE_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_DEPLOYMENT", "gpt-4o")
	t.Setenv("API_VERSION", "2024-02-01")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.RepoRAG.LLM.Endpoint != "https://example.openai.azure.com" {
		t.Errorf("Expected Azure endpoint alias to bind, got '%s'", settings.RepoRAG.LLM.Endpoint)
	}
	if settings.RepoRAG.LLM.Deployment != "gpt-4o" {
		t.Errorf("Expected deployment 'gpt-4o', got '%s'", settings.RepoRAG.LLM.Deployment)
	}
	if settings.RepoRAG.LLM.APIVersion != "2024-02-01" {
		t.Errorf("Expected api version '2024-02-01', got '%s'", settings.RepoRAG.LLM.APIVersion)
	}
}

func TestLoadSettings_ReposCommaSeparated(t *testing.T) {
	t.Setenv("CODERAG_MCP_REPO_RAG_REPOS", "/tmp/repo-a, /tmp/repo-b,git@github.com:org/repo.git")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if len(settings.RepoRAG.Repos) != 3 {
		t.Fatalf("Expected 3 repos, got %d: %v", len(settings.RepoRAG.Repos), settings.RepoRAG.Repos)
	}
	if settings.RepoRAG.Repos[1] != "/tmp/repo-b" {
		t.Errorf("Expected trimmed repo path, got '%s'", settings.RepoRAG.Repos[1])
	}
}

func TestLoadSettings_APIKeys_EnvVar(t *testing.T) {
	t.Setenv("CODERAG_MCP_AUTH_API_KEYS", "key1, key2,key3")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if len(settings.Auth.APIKeys) != 3 {
		t.Fatalf("Expected 3 API keys, got %d", len(settings.Auth.APIKeys))
	}
	if settings.Auth.APIKeys[1] != "key2" {
		t.Errorf("Expected key2, got '%s'", settings.Auth.APIKeys[1])
	}
}

func TestLoadSettings_HomeDirExpansion(t *testing.T) {
	t.Setenv("CODERAG_MCP_REPO_RAG_CACHE_DIR", "~/coderag-cache")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if strings.HasPrefix(settings.RepoRAG.CacheDir, "~") {
		t.Errorf("Expected ~ to be expanded, got '%s'", settings.RepoRAG.CacheDir)
	}
	if !strings.HasSuffix(settings.RepoRAG.CacheDir, "coderag-cache") {
		t.Errorf("Expected cache dir suffix preserved, got '%s'", settings.RepoRAG.CacheDir)
	}
}

func validSettings() *Settings {
	return &Settings{
		Transport: "stdio",
		Host:      "0.0.0.0",
		Port:      8080,
		Auth:      AuthSettings{Type: AuthTypeNone},
		RepoRAG: RepoRAGSettings{
			CacheDir:         "/tmp/processed_repos",
			Granularity:      GranularityChunk,
			ChunkSize:        500,
			ChunkOverlap:     200,
			TopK:             5,
			MaxContextTokens: 6000,
			MaxFileSize:      256 * 1024,
			MaxResults:       20,
			Embedding:        EmbeddingSettings{BaseURL: "http://localhost:11434", Model: "all-minilm"},
			LLM:              LLMSettings{Endpoint: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
			Qdrant:           QdrantSettings{Host: "localhost", Port: 6334},
		},
	}
}

func TestValidateSettings_Valid(t *testing.T) {
	if err := ValidateSettings(validSettings()); err != nil {
		t.Errorf("Expected valid settings, got error: %v", err)
	}
}

func TestValidateSettings_Transport(t *testing.T) {
	s := validSettings()
	s.Transport = "http"
	if err := ValidateSettings(s); err == nil {
		t.Error("Expected error for unknown transport")
	}
}

func TestValidateSettings_AuthConflicts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{
			name: "none with api keys",
			mutate: func(s *Settings) {
				s.Auth.Type = AuthTypeNone
				s.Auth.APIKeys = []string{"k"}
			},
		},
		{
			name: "basic without password",
			mutate: func(s *Settings) {
				s.Auth.Type = AuthTypeBasic
				s.Auth.Basic.Username = "admin"
			},
		},
		{
			name: "apikey without keys",
			mutate: func(s *Settings) {
				s.Auth.Type = AuthTypeAPIKey
			},
		},
		{
			name: "unknown type",
			mutate: func(s *Settings) {
				s.Auth.Type = "oauth"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			if err := ValidateSettings(s); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidateSettings_RepoRAG(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RepoRAGSettings)
	}{
		{"bad granularity", func(r *RepoRAGSettings) { r.Granularity = "line" }},
		{"empty cache dir", func(r *RepoRAGSettings) { r.CacheDir = "" }},
		{"zero chunk size", func(r *RepoRAGSettings) { r.ChunkSize = 0 }},
		{"negative overlap", func(r *RepoRAGSettings) { r.ChunkOverlap = -1 }},
		{"zero top k", func(r *RepoRAGSettings) { r.TopK = 0 }},
		{"zero context budget", func(r *RepoRAGSettings) { r.MaxContextTokens = 0 }},
		{"zero max file size", func(r *RepoRAGSettings) { r.MaxFileSize = 0 }},
		{"missing embedding url", func(r *RepoRAGSettings) { r.Embedding.BaseURL = "" }},
		{"missing llm endpoint", func(r *RepoRAGSettings) { r.LLM.Endpoint = "" }},
		{"deployment without api version", func(r *RepoRAGSettings) {
			r.LLM.Deployment = "gpt-4o"
			r.LLM.APIVersion = ""
		}},
		{"empty qdrant host", func(r *RepoRAGSettings) { r.Qdrant.Host = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s.RepoRAG)
			if err := ValidateSettings(s); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidateSettings_OverlapEqualToSizeAccepted(t *testing.T) {
	// The chunker clamps degenerate overlap at run time; config accepts it.
	s := validSettings()
	s.RepoRAG.ChunkOverlap = s.RepoRAG.ChunkSize
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected overlap == size to pass validation, got: %v", err)
	}
}
