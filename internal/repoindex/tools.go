package repoindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const notReadyMessage = "The repository index is not ready yet. " +
	"Index a repository with the index_repository tool, or try again later."

// errorResult builds an MCP error result with a plain text message.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// textResult builds a successful MCP result with a plain text message.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// AskArgument defines question answering parameters.
type AskArgument struct {
	Question string `json:"question" jsonschema_description:"Natural-language question about the indexed repositories"`
}

// AskHandler handles the ask_question MCP tool.
type AskHandler struct {
	service *Service
}

// NewAskHandler creates a new ask handler.
func NewAskHandler(service *Service) *AskHandler {
	return &AskHandler{
		service: service,
	}
}

// Handle answers a question using retrieved repository context.
func (h *AskHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args AskArgument) (*mcp.CallToolResult, any, error) {
	if !h.service.IsReady() {
		return errorResult(notReadyMessage), nil, nil
	}

	if strings.TrimSpace(args.Question) == "" {
		return errorResult("Question cannot be empty"), nil, nil
	}

	answer, err := h.service.Ask(ctx, args.Question)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to answer question: %s", err)), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(answer.Answer)

	if len(answer.ContextSources) > 0 {
		sb.WriteString(fmt.Sprintf("\n\n**Sources** (%d retrieved units):\n", answer.NumSources))
		for _, source := range answer.ContextSources {
			sb.WriteString(fmt.Sprintf("- %s\n", source))
		}
	}

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *AskHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question about the indexed repositories using retrieved code context",
	}
}

// RegisterAskTool registers the ask tool with an MCP server.
func RegisterAskTool(server *mcp.Server, service *Service) {
	handler := NewAskHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// IndexArgument defines indexing parameters.
type IndexArgument struct {
	Source string `json:"source" jsonschema_description:"Local repository path or git SSH/HTTPS URL to index"`
}

// IndexHandler handles the index_repository MCP tool.
type IndexHandler struct {
	service *Service
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(service *Service) *IndexHandler {
	return &IndexHandler{
		service: service,
	}
}

// Handle runs the full ingestion pipeline for one repository.
func (h *IndexHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args IndexArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Source) == "" {
		return errorResult("Source cannot be empty"), nil, nil
	}

	state, err := h.service.IndexRepository(ctx, args.Source)
	if err != nil {
		return errorResult(fmt.Sprintf("Indexing failed: %s", err)), nil, nil
	}

	text := fmt.Sprintf(
		"Indexed %s\n\n**Repository ID**: %s\n**Granularity**: %s\n**Files**: %d\n**Units**: %d\n**Collection**: %s\n",
		DisplayName(state.Source), state.RepoID, state.Granularity,
		state.FileCount, state.UnitCount, state.Collection)

	return textResult(text), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *IndexHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "index_repository",
		Description: "Run the ingestion pipeline for a repository: walk, chunk, embed and index its files",
	}
}

// RegisterIndexTool registers the index tool with an MCP server.
func RegisterIndexTool(server *mcp.Server, service *Service) {
	handler := NewIndexHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// ListArgument defines list parameters. The tool takes no arguments.
type ListArgument struct{}

// ListHandler handles the list_repositories MCP tool.
type ListHandler struct {
	service *Service
}

// NewListHandler creates a new list handler.
func NewListHandler(service *Service) *ListHandler {
	return &ListHandler{
		service: service,
	}
}

// Handle lists indexed repositories and their pipeline state.
func (h *ListHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ListArgument) (*mcp.CallToolResult, any, error) {
	states := h.service.States()
	if len(states) == 0 {
		return textResult("No repositories are indexed yet."), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Indexed repositories (%d):\n\n", len(states)))

	for _, state := range states {
		sb.WriteString(fmt.Sprintf("### %s\n", DisplayName(state.Source)))
		sb.WriteString(fmt.Sprintf("- **Repository ID**: %s\n", state.RepoID))
		sb.WriteString(fmt.Sprintf("- **Source**: %s\n", state.Source))
		sb.WriteString(fmt.Sprintf("- **Granularity**: %s\n", state.Granularity))
		if state.Error != "" {
			sb.WriteString(fmt.Sprintf("- **Error**: %s\n", state.Error))
		} else {
			sb.WriteString(fmt.Sprintf("- **Files**: %d\n", state.FileCount))
			sb.WriteString(fmt.Sprintf("- **Units**: %d\n", state.UnitCount))
			sb.WriteString(fmt.Sprintf("- **Indexed at**: %s\n", state.IndexedAt.Format("2006-01-02 15:04:05")))
		}
		sb.WriteString("\n")
	}

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ListHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_repositories",
		Description: "List indexed repositories with their pipeline state",
	}
}

// RegisterListTool registers the list tool with an MCP server.
func RegisterListTool(server *mcp.Server, service *Service) {
	handler := NewListHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
