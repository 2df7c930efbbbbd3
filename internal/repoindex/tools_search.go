package repoindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-coderag-server/internal/domain"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string `json:"query" jsonschema_description:"Search query (supports wildcards and phrases)"`
	Repository string `json:"repository,omitempty" jsonschema_description:"Filter by repository name (e.g., my-project)"`
	Extension  string `json:"extension,omitempty" jsonschema_description:"Filter by file extension (e.g., go, py, js)"`
}

// SearchHandler handles the search_code MCP tool.
type SearchHandler struct {
	service *Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// Handle executes a keyword search over indexed units and returns
// formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if !h.service.IsReady() {
		return errorResult(notReadyMessage), nil, nil
	}

	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	alias, err := h.service.GetIndexAlias()
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to access indexes: %s", err)), nil, nil
	}

	searchQuery := h.buildQuery(args)

	searchReq := bleve.NewSearchRequest(searchQuery)
	searchReq.Size = h.service.GetSettings().MaxResults
	searchReq.Fields = []string{
		domain.UnitFieldRepository,
		domain.UnitFieldFilePath,
		domain.UnitFieldExtension,
		domain.UnitFieldGranularity,
		domain.UnitFieldChunkIndex,
		domain.UnitFieldText,
	}
	searchReq.Highlight = bleve.NewHighlight()
	searchReq.Highlight.AddField(domain.UnitFieldText)

	results, err := alias.Search(searchReq)
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return h.formatResults(results, args.Query), nil, nil
}

// buildQuery constructs a Bleve query from search arguments.
func (h *SearchHandler) buildQuery(args SearchArgument) query.Query {
	// Text query
	textQuery := bleve.NewMatchQuery(args.Query)
	textQuery.SetField(domain.UnitFieldText)

	// Symbols query with boost
	symbolsQuery := bleve.NewMatchQuery(args.Query)
	symbolsQuery.SetField(domain.UnitFieldSymbols)
	symbolsQuery.SetBoost(5.0)

	// Combined search query (Disjunction - OR)
	searchQuery := bleve.NewDisjunctionQuery(textQuery, symbolsQuery)

	// If no filters, return search query directly
	if args.Repository == "" && args.Extension == "" {
		return searchQuery
	}

	// Build conjunction query with filters
	must := []query.Query{searchQuery}

	if args.Repository != "" {
		repoQuery := bleve.NewTermQuery(args.Repository)
		repoQuery.SetField(domain.UnitFieldRepository)
		must = append(must, repoQuery)
	}

	if args.Extension != "" {
		// Normalize extension (remove leading dot if present)
		ext := strings.TrimPrefix(args.Extension, ".")
		extQuery := bleve.NewTermQuery(ext)
		extQuery.SetField(domain.UnitFieldExtension)
		must = append(must, extQuery)
	}

	return bleve.NewConjunctionQuery(must...)
}

// formatResults formats Bleve search results for MCP response.
func (h *SearchHandler) formatResults(results *bleve.SearchResult, queryStr string) *mcp.CallToolResult {
	if results.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", results.Total, queryStr))

	for i, hit := range results.Hits {
		repo := ""
		filePath := ""
		granularity := ""
		if val, ok := hit.Fields[domain.UnitFieldRepository].(string); ok {
			repo = val
		}
		if val, ok := hit.Fields[domain.UnitFieldFilePath].(string); ok {
			filePath = val
		}
		if val, ok := hit.Fields[domain.UnitFieldGranularity].(string); ok {
			granularity = val
		}

		sb.WriteString(fmt.Sprintf("### %d. %s:%s", i+1, repo, filePath))
		if granularity == string(domain.GranularityChunk) {
			// Bleve returns stored numeric fields as float64
			if val, ok := hit.Fields[domain.UnitFieldChunkIndex].(float64); ok {
				sb.WriteString(fmt.Sprintf(" (chunk %d)", int(val)))
			}
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("**Score**: %.4f\n\n", hit.Score))

		if len(hit.Fragments) > 0 {
			if fragments, ok := hit.Fragments[domain.UnitFieldText]; ok {
				sb.WriteString("```\n")
				for _, fragment := range fragments {
					sb.WriteString(fragment)
					sb.WriteString("\n")
				}
				sb.WriteString("```\n")
			}
		}

		sb.WriteString("\n")
	}

	if results.Total > uint64(len(results.Hits)) {
		sb.WriteString(fmt.Sprintf("... and %d more results\n", results.Total-uint64(len(results.Hits))))
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_code",
		Description: "Search for code across indexed repositories using full-text keyword search",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, service *Service) {
	handler := NewSearchHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
