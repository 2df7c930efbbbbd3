package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-coderag-server/internal/repoindex"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// RepoRAG is the repository RAG service backing the tools.
	// When nil no tools are registered.
	RepoRAG *repoindex.Service
}

// CreateServer creates the MCP server and registers the repository tools.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.RepoRAG != nil {
		repoindex.RegisterIndexTool(s, cfg.RepoRAG)
		repoindex.RegisterAskTool(s, cfg.RepoRAG)
		repoindex.RegisterSearchTool(s, cfg.RepoRAG)
		repoindex.RegisterReadTool(s, cfg.RepoRAG)
		repoindex.RegisterListTool(s, cfg.RepoRAG)
	}

	return s
}
