package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/sha1n/docfetcher/internal/service"
)

// ReadArgument defines read parameters.
type ReadArgument struct {
	Path string `json:"path" jsonschema_description:"Absolute path of a document inside an indexed folder"`
}

// ReadHandler handles the read MCP tool.
type ReadHandler struct {
	service *service.Service
}

// NewReadHandler creates a new read handler.
func NewReadHandler(svc *service.Service) *ReadHandler {
	return &ReadHandler{
		service: svc,
	}
}

// Handle extracts the text of a document and returns it with its metadata.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}
	if !filepath.IsAbs(args.Path) {
		return errorResult("Invalid path: %s must be absolute", args.Path), nil, nil
	}

	doc, err := h.service.Preview(ctx, args.Path)
	if err != nil {
		return readError(args.Path, err), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**File**: `%s`\n", args.Path))
	if doc.Title != "" {
		sb.WriteString(fmt.Sprintf("**Title**: %s\n", doc.Title))
	}
	if doc.Author != "" {
		sb.WriteString(fmt.Sprintf("**Author**: %s\n", doc.Author))
	}
	searched := "no"
	if h.service.Included(args.Path) {
		searched = "yes"
	}
	sb.WriteString(fmt.Sprintf("**Searched**: %s\n", searched))
	sb.WriteString(fmt.Sprintf("**Text size**: %s\n\n", humanize.IBytes(uint64(len(doc.Content)))))
	sb.WriteString(fmt.Sprintf("```text\n%s\n```", doc.Content))

	return textResult(sb.String()), nil, nil
}

func readError(path string, err error) *mcp.CallToolResult {
	var parseErr *parse.Error
	switch {
	case errors.Is(err, service.ErrNotInScope):
		return errorResult("File is not inside an indexed folder: %s", path)
	case errors.Is(err, os.ErrNotExist):
		return errorResult("File not found: %s", path)
	case errors.Is(err, service.ErrTooLarge):
		return errorResult("File too large: %s", err)
	case errors.Is(err, parse.ErrUnsupported):
		return errorResult("Unsupported file type: %s", path)
	case errors.As(err, &parseErr):
		return errorResult("Cannot read %s (%s): %s", path, parseErr.Kind, err)
	default:
		return errorResult("Error reading file: %s", err)
	}
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReadHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "read_document",
		Description: "Extract the text of a document inside an indexed folder",
	}
}

// RegisterReadTool registers the read tool with an MCP server.
func RegisterReadTool(server *mcp.Server, svc *service.Service) {
	handler := NewReadHandler(svc)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
