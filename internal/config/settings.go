package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Granularity constants mirrored here so config validation does not depend
// on the domain package.
const (
	GranularityFile  = "file"
	GranularityChunk = "chunk"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EmbeddingSettings configuration for the embeddings API client
type EmbeddingSettings struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// LLMSettings configuration for the hosted chat model.
// When Deployment is set the Azure OpenAI URL scheme is used
// (endpoint + deployment + api_version); otherwise Endpoint is treated
// as an OpenAI-compatible base URL and Model is sent in the request body.
type LLMSettings struct {
	Endpoint   string `mapstructure:"endpoint"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// QdrantSettings configuration for the vector store connection
type QdrantSettings struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// RepoRAGSettings configuration for repository ingestion and question answering
type RepoRAGSettings struct {
	Repos            []string          `mapstructure:"repos"` // local paths or git SSH URLs indexed at startup
	CacheDir         string            `mapstructure:"cache_dir"`
	Granularity      string            `mapstructure:"granularity"`
	ChunkSize        int               `mapstructure:"chunk_size"`
	ChunkOverlap     int               `mapstructure:"chunk_overlap"`
	Summarize        bool              `mapstructure:"summarize"`
	TopK             int               `mapstructure:"top_k"`
	MaxContextTokens int               `mapstructure:"max_context_tokens"`
	MaxFileSize      int64             `mapstructure:"max_file_size"`
	MaxResults       int               `mapstructure:"max_results"`
	Extensions       []string          `mapstructure:"extensions"`
	Embedding        EmbeddingSettings `mapstructure:"embedding"`
	LLM              LLMSettings       `mapstructure:"llm"`
	Qdrant           QdrantSettings    `mapstructure:"qdrant"`
}

// Settings application settings
type Settings struct {
	Transport string          `mapstructure:"transport"`
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	Auth      AuthSettings    `mapstructure:"auth"`
	RepoRAG   RepoRAGSettings `mapstructure:"repo_rag"`
}

// DefaultExtensions is the extension allow-list applied when none is
// configured: source and documentation files.
var DefaultExtensions = []string{
	"py", "js", "ts", "go", "java", "cpp", "c", "h", "rs", "txt", "md",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Repo RAG defaults
	v.SetDefault("repo_rag.cache_dir", defaultCacheDir())
	v.SetDefault("repo_rag.granularity", GranularityChunk)
	v.SetDefault("repo_rag.chunk_size", 500)
	v.SetDefault("repo_rag.chunk_overlap", 200)
	v.SetDefault("repo_rag.summarize", false)
	v.SetDefault("repo_rag.top_k", 5)
	v.SetDefault("repo_rag.max_context_tokens", 6000)
	v.SetDefault("repo_rag.max_file_size", int64(256*1024)) // 256KB
	v.SetDefault("repo_rag.max_results", 20)
	v.SetDefault("repo_rag.extensions", DefaultExtensions)
	v.SetDefault("repo_rag.embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("repo_rag.embedding.max_retries", 3)
	v.SetDefault("repo_rag.llm.max_retries", 3)
	v.SetDefault("repo_rag.qdrant.host", "localhost")
	v.SetDefault("repo_rag.qdrant.port", 6334)

	// Environment variables
	v.SetEnvPrefix("CODERAG_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("auth.type", "CODERAG_MCP_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "CODERAG_MCP_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "CODERAG_MCP_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "CODERAG_MCP_AUTH_API_KEYS")

	// Repo RAG env var bindings
	_ = v.BindEnv("repo_rag.repos", "CODERAG_MCP_REPO_RAG_REPOS")
	_ = v.BindEnv("repo_rag.cache_dir", "CODERAG_MCP_REPO_RAG_CACHE_DIR")
	_ = v.BindEnv("repo_rag.granularity", "CODERAG_MCP_REPO_RAG_GRANULARITY")
	_ = v.BindEnv("repo_rag.chunk_size", "CODERAG_MCP_REPO_RAG_CHUNK_SIZE")
	_ = v.BindEnv("repo_rag.chunk_overlap", "CODERAG_MCP_REPO_RAG_CHUNK_OVERLAP")
	_ = v.BindEnv("repo_rag.summarize", "CODERAG_MCP_REPO_RAG_SUMMARIZE")
	_ = v.BindEnv("repo_rag.top_k", "CODERAG_MCP_REPO_RAG_TOP_K")
	_ = v.BindEnv("repo_rag.max_context_tokens", "CODERAG_MCP_REPO_RAG_MAX_CONTEXT_TOKENS")
	_ = v.BindEnv("repo_rag.max_file_size", "CODERAG_MCP_REPO_RAG_MAX_FILE_SIZE")
	_ = v.BindEnv("repo_rag.max_results", "CODERAG_MCP_REPO_RAG_MAX_RESULTS")
	_ = v.BindEnv("repo_rag.embedding.base_url", "CODERAG_MCP_EMBEDDING_BASE_URL")
	_ = v.BindEnv("repo_rag.embedding.api_key", "CODERAG_MCP_EMBEDDING_API_KEY")
	_ = v.BindEnv("repo_rag.embedding.model", "CODERAG_MCP_EMBEDDING_MODEL")
	_ = v.BindEnv("repo_rag.llm.endpoint", "CODERAG_MCP_LLM_ENDPOINT", "AZURE_ENDPOINT")
	_ = v.BindEnv("repo_rag.llm.deployment", "CODERAG_MCP_LLM_DEPLOYMENT", "AZURE_DEPLOYMENT")
	_ = v.BindEnv("repo_rag.llm.api_version", "CODERAG_MCP_LLM_API_VERSION", "API_VERSION")
	_ = v.BindEnv("repo_rag.llm.api_key", "CODERAG_MCP_LLM_API_KEY")
	_ = v.BindEnv("repo_rag.llm.model", "CODERAG_MCP_LLM_MODEL")
	_ = v.BindEnv("repo_rag.qdrant.host", "CODERAG_MCP_QDRANT_HOST")
	_ = v.BindEnv("repo_rag.qdrant.port", "CODERAG_MCP_QDRANT_PORT")
	_ = v.BindEnv("repo_rag.qdrant.api_key", "CODERAG_MCP_QDRANT_API_KEY")
	_ = v.BindEnv("repo_rag.qdrant.use_tls", "CODERAG_MCP_QDRANT_USE_TLS")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("auth.type", flags.Lookup("auth-type"))
		_ = v.BindPFlag("auth.basic.username", flags.Lookup("auth-basic-username"))
		_ = v.BindPFlag("auth.basic.password", flags.Lookup("auth-basic-password"))
		_ = v.BindPFlag("auth.api_keys", flags.Lookup("auth-api-keys"))

		// Repo RAG CLI flags
		_ = v.BindPFlag("repo_rag.repos", flags.Lookup("repos"))
		_ = v.BindPFlag("repo_rag.cache_dir", flags.Lookup("cache-dir"))
		_ = v.BindPFlag("repo_rag.granularity", flags.Lookup("granularity"))
		_ = v.BindPFlag("repo_rag.chunk_size", flags.Lookup("chunk-size"))
		_ = v.BindPFlag("repo_rag.chunk_overlap", flags.Lookup("chunk-overlap"))
		_ = v.BindPFlag("repo_rag.summarize", flags.Lookup("summarize"))
		_ = v.BindPFlag("repo_rag.top_k", flags.Lookup("top-k"))
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	settings.Auth.APIKeys = splitCommaEnv(os.Getenv("CODERAG_MCP_AUTH_API_KEYS"), settings.Auth.APIKeys)

	// Same handling for the repo list
	settings.RepoRAG.Repos = splitCommaEnv(os.Getenv("CODERAG_MCP_REPO_RAG_REPOS"), settings.RepoRAG.Repos)

	// Expand home directory in cache_dir
	settings.RepoRAG.CacheDir = expandHomeDir(settings.RepoRAG.CacheDir)

	return &settings, nil
}

// splitCommaEnv splits a comma-separated env value into the slice form viper
// sometimes fails to produce, trims spaces, and drops empty entries.
func splitCommaEnv(envValue string, current []string) []string {
	if envValue != "" {
		if len(current) == 0 || (len(current) == 1 && strings.Contains(current[0], ",")) {
			current = strings.Split(envValue, ",")
		}
	}
	var result []string
	for _, s := range current {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

// defaultCacheDir returns the default directory for processed repositories
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "processed_repos"
	}
	return filepath.Join(home, ".coderag-mcp", "processed_repos")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	return validateRepoRAGSettings(&s.RepoRAG)
}

// validateRepoRAGSettings validates the ingestion and QA configuration.
// Missing hosted-service values fail here, at setup time, rather than
// mid-pipeline.
func validateRepoRAGSettings(r *RepoRAGSettings) error {
	switch r.Granularity {
	case GranularityFile, GranularityChunk:
		// valid
	default:
		return errors.New("granularity must be 'file' or 'chunk', got: " + r.Granularity)
	}

	if r.CacheDir == "" {
		return errors.New("cache-dir cannot be empty")
	}

	if r.ChunkSize <= 0 {
		return errors.New("chunk-size must be positive")
	}

	if r.ChunkOverlap < 0 {
		return errors.New("chunk-overlap cannot be negative")
	}

	if r.TopK <= 0 {
		return errors.New("top-k must be positive")
	}

	if r.MaxContextTokens <= 0 {
		return errors.New("max-context-tokens must be positive")
	}

	if r.MaxFileSize <= 0 {
		return errors.New("max-file-size must be positive")
	}

	if r.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}

	if r.Embedding.BaseURL == "" {
		return errors.New("embedding base URL is required (CODERAG_MCP_EMBEDDING_BASE_URL)")
	}

	if r.LLM.Endpoint == "" {
		return errors.New("LLM endpoint is required (CODERAG_MCP_LLM_ENDPOINT)")
	}

	if r.LLM.Deployment != "" && r.LLM.APIVersion == "" {
		return errors.New("LLM api_version is required when a deployment name is set")
	}

	if r.Qdrant.Host == "" {
		return errors.New("qdrant host cannot be empty")
	}

	if r.Qdrant.Port <= 0 {
		return errors.New("qdrant port must be positive")
	}

	return nil
}
