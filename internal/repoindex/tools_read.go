package repoindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ReadArgument defines read parameters.
type ReadArgument struct {
	Repository string `json:"repository" jsonschema_description:"Repository ID, display name or source path"`
	Path       string `json:"path" jsonschema_description:"File path relative to repository root"`
}

// ReadHandler handles the read_file MCP tool.
type ReadHandler struct {
	service *Service
}

// NewReadHandler creates a new read handler.
func NewReadHandler(service *Service) *ReadHandler {
	return &ReadHandler{
		service: service,
	}
}

// Handle reads a file from an indexed repository and returns formatted
// content.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if !h.service.IsReady() {
		return errorResult(notReadyMessage), nil, nil
	}

	if strings.TrimSpace(args.Repository) == "" {
		return errorResult("Repository cannot be empty"), nil, nil
	}

	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}

	if err := validatePath(args.Path); err != nil {
		return errorResult(fmt.Sprintf("Invalid path: %s", err)), nil, nil
	}

	repoDir, ok := h.resolveRepoDir(args.Repository)
	if !ok {
		return errorResult(fmt.Sprintf("Repository not found: %s", args.Repository)), nil, nil
	}

	fullPath := filepath.Join(repoDir, filepath.Clean(args.Path))

	// Security check: ensure the path is within the repository directory
	if !strings.HasPrefix(fullPath, repoDir) {
		return errorResult("Path traversal detected"), nil, nil
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(fmt.Sprintf("File not found: %s", args.Path)), nil, nil
		}
		return errorResult(fmt.Sprintf("Error accessing file: %s", err)), nil, nil
	}

	if info.IsDir() {
		return errorResult("Cannot read directory, please specify a file path"), nil, nil
	}

	maxFileSize := h.service.GetSettings().MaxFileSize
	if info.Size() > maxFileSize {
		return errorResult(fmt.Sprintf("File too large (%.2f KB). Maximum allowed size is %.2f KB",
			float64(info.Size())/1024, float64(maxFileSize)/1024)), nil, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return errorResult(fmt.Sprintf("Error reading file: %s", err)), nil, nil
	}

	if IsBinary(content) {
		return errorResult("Cannot display binary file content"), nil, nil
	}

	lang := extensionToLanguage(GetFileExtension(args.Path))
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**File**: `%s`\n", args.Path))
	sb.WriteString(fmt.Sprintf("**Repository**: %s\n", args.Repository))
	sb.WriteString(fmt.Sprintf("**Size**: %d bytes\n\n", len(content)))
	sb.WriteString(fmt.Sprintf("```%s\n%s\n```", lang, string(content)))

	return textResult(sb.String()), nil, nil
}

// resolveRepoDir maps a repository reference to its checkout directory.
// Accepts the repo ID, the configured source string, or the display name.
func (h *ReadHandler) resolveRepoDir(repository string) (string, bool) {
	if root, ok := h.service.RepoRoot(repository); ok {
		return root, true
	}
	for _, state := range h.service.States() {
		if state.Source == repository || DisplayName(state.Source) == repository {
			if root, ok := h.service.RepoRoot(state.RepoID); ok {
				return root, true
			}
		}
	}
	return "", false
}

// validatePath performs security validation on the path.
func validatePath(path string) error {
	cleaned := filepath.Clean(path)

	if filepath.IsAbs(cleaned) {
		return fmt.Errorf("absolute paths are not allowed")
	}

	if strings.HasPrefix(cleaned, "..") || strings.Contains(cleaned, "/..") || strings.Contains(cleaned, "\\..") {
		return fmt.Errorf("path traversal is not allowed")
	}

	return nil
}

// extensionToLanguage maps file extension to language hint for code blocks.
func extensionToLanguage(ext string) string {
	langMap := map[string]string{
		"go":    "go",
		"py":    "python",
		"js":    "javascript",
		"ts":    "typescript",
		"jsx":   "jsx",
		"tsx":   "tsx",
		"java":  "java",
		"kt":    "kotlin",
		"rs":    "rust",
		"c":     "c",
		"cpp":   "cpp",
		"cc":    "cpp",
		"h":     "c",
		"hpp":   "cpp",
		"cs":    "csharp",
		"rb":    "ruby",
		"php":   "php",
		"swift": "swift",
		"sh":    "bash",
		"bash":  "bash",
		"sql":   "sql",
		"html":  "html",
		"css":   "css",
		"json":  "json",
		"yaml":  "yaml",
		"yml":   "yaml",
		"toml":  "toml",
		"xml":   "xml",
		"md":    "markdown",
		"txt":   "text",
		"proto": "protobuf",
		"tf":    "terraform",
	}

	if lang, ok := langMap[strings.ToLower(ext)]; ok {
		return lang
	}
	return ext
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReadHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "read_file",
		Description: "Read a file from an indexed repository",
	}
}

// RegisterReadTool registers the read tool with an MCP server.
func RegisterReadTool(server *mcp.Server, service *Service) {
	handler := NewReadHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
