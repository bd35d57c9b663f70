package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/docfetcher/internal/search"
	"github.com/sha1n/docfetcher/internal/service"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string   `json:"query" jsonschema_description:"Search query. Supports words, \"phrases\", wildcards (*, ?), +required and -excluded terms and field:value terms (title, author, filename, content)"`
	Extensions []string `json:"extensions,omitempty" jsonschema_description:"Only return files with these extensions (e.g. pdf, html, txt)"`
	MinSize    int64    `json:"min_size,omitempty" jsonschema_description:"Minimum file size in bytes"`
	MaxSize    int64    `json:"max_size,omitempty" jsonschema_description:"Maximum file size in bytes"`
	Limit      int      `json:"limit,omitempty" jsonschema_description:"Maximum number of results to return"`
	Offset     int      `json:"offset,omitempty" jsonschema_description:"Number of results to skip, for paging"`
}

// SearchHandler handles the search MCP tool.
type SearchHandler struct {
	service *service.Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(svc *service.Service) *SearchHandler {
	return &SearchHandler{
		service: svc,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	results, err := h.service.Search(ctx, search.Request{
		Query:      args.Query,
		Extensions: args.Extensions,
		MinSize:    args.MinSize,
		MaxSize:    args.MaxSize,
		Limit:      args.Limit,
		Offset:     args.Offset,
	})
	if err != nil {
		if errors.Is(err, search.ErrNoIndexes) {
			return errorResult("No indexed folder is checked. Index a folder with add_scope first."), nil, nil
		}
		return errorResult("Search failed: %s", err), nil, nil
	}

	return formatSearchResults(results, args), nil, nil
}

// formatSearchResults formats a page of hits for the MCP response.
func formatSearchResults(results *search.Result, args SearchArgument) *mcp.CallToolResult {
	if results.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", args.Query))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %s results for '%s':\n\n", humanize.Comma(int64(results.Total)), args.Query))

	for i, hit := range results.Hits {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", args.Offset+i+1, hit.Path))
		if hit.Title != "" {
			sb.WriteString(fmt.Sprintf("**Title**: %s\n", hit.Title))
		}
		if hit.Author != "" {
			sb.WriteString(fmt.Sprintf("**Author**: %s\n", hit.Author))
		}
		sb.WriteString(fmt.Sprintf("**Folder**: %s\n", hit.Scope))
		sb.WriteString(fmt.Sprintf("**Size**: %s", humanize.IBytes(uint64(max(hit.Size, 0)))))
		if !hit.Modified.IsZero() {
			sb.WriteString(fmt.Sprintf(" | **Modified**: %s", humanize.Time(hit.Modified)))
		}
		sb.WriteString(fmt.Sprintf(" | **Score**: %.4f\n\n", hit.Score))

		if len(hit.Fragments) > 0 {
			sb.WriteString("```\n")
			for _, fragment := range hit.Fragments {
				sb.WriteString(fragment)
				sb.WriteString("\n")
			}
			sb.WriteString("```\n")
		}
		sb.WriteString("\n")
	}

	shown := uint64(args.Offset + len(results.Hits))
	if results.Total > shown {
		sb.WriteString(fmt.Sprintf("... and %s more results\n", humanize.Comma(int64(results.Total-shown))))
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_documents",
		Description: "Search the documents of the checked indexed folders using full-text search",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, svc *service.Service) {
	handler := NewSearchHandler(svc)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
