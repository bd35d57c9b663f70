package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/docfetcher/internal/registry"
	"github.com/sha1n/docfetcher/internal/service"
)

// ScopeArgument identifies an indexed folder.
type ScopeArgument struct {
	Path string `json:"path" jsonschema_description:"Absolute path of the folder"`
}

// SetCheckedArgument defines the parameters of set_scope_checked.
type SetCheckedArgument struct {
	Path    string `json:"path" jsonschema_description:"Absolute path of an indexed folder or one of its subfolders"`
	Checked bool   `json:"checked" jsonschema_description:"Whether the folder and its subfolders are included in searches"`
}

// NoArgument is the input of tools without parameters.
type NoArgument struct{}

// ListScopesHandler handles the list_scopes MCP tool.
type ListScopesHandler struct {
	service *service.Service
}

// NewListScopesHandler creates a new list_scopes handler.
func NewListScopesHandler(svc *service.Service) *ListScopesHandler {
	return &ListScopesHandler{service: svc}
}

// Handle lists the indexed folders with their search state.
func (h *ListScopesHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args NoArgument) (*mcp.CallToolResult, any, error) {
	roots := h.service.Scopes()
	if len(roots) == 0 {
		return textResult("No folders are indexed."), nil, nil
	}

	queued := make(map[string]string)
	for _, job := range h.service.Jobs() {
		queued[job.Root().Path()] = job.Kind()
	}
	watched := make(map[string]bool)
	for _, path := range h.service.Watched() {
		watched[path] = true
	}
	for _, path := range h.service.PendingChanges() {
		queued[path] = "changes pending"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d indexed folders:\n\n", len(roots)))
	for _, root := range roots {
		sb.WriteString(fmt.Sprintf("### %s\n", root.Path()))
		sb.WriteString(fmt.Sprintf("- **Index**: %s\n", root.IndexDir()))
		sb.WriteString(fmt.Sprintf("- **Files**: %s\n", humanize.Comma(int64(len(root.Files())))))
		state, err := root.CheckState(root.Path())
		if err == nil {
			sb.WriteString(fmt.Sprintf("- **Search**: %s\n", state))
		}
		if watched[root.Path()] {
			sb.WriteString("- **Watched**: yes\n")
		}
		for _, dir := range root.ExcludedPaths() {
			sb.WriteString(fmt.Sprintf("- **Excluded**: %s\n", dir))
		}
		for _, tree := range root.IncludedTrees() {
			if tree.Path != root.Path() {
				sb.WriteString(fmt.Sprintf("- **Included**: %s\n", tree.Path))
			}
		}
		if kind, ok := queued[root.Path()]; ok {
			sb.WriteString(fmt.Sprintf("- **Queued**: %s\n", kind))
		}
		sb.WriteString("\n")
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ListScopesHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_scopes",
		Description: "List the indexed folders, their file counts and which subfolders are excluded from searches",
	}
}

// ScopeJobHandler handles the tools that queue an indexing job for a folder.
type ScopeJobHandler struct {
	service     *service.Service
	name        string
	description string
	queue       func(path string) (*registry.Job, error)
}

// NewAddScopeHandler creates the add_scope handler.
func NewAddScopeHandler(svc *service.Service) *ScopeJobHandler {
	return &ScopeJobHandler{
		service:     svc,
		name:        "add_scope",
		description: "Index a new folder. The folder is searchable once its index has been built",
		queue:       svc.AddScope,
	}
}

// NewUpdateScopeHandler creates the update_scope handler.
func NewUpdateScopeHandler(svc *service.Service) *ScopeJobHandler {
	return &ScopeJobHandler{
		service:     svc,
		name:        "update_scope",
		description: "Re-index the files of an indexed folder that changed since the last update",
		queue:       svc.UpdateScope,
	}
}

// NewRebuildScopeHandler creates the rebuild_scope handler.
func NewRebuildScopeHandler(svc *service.Service) *ScopeJobHandler {
	return &ScopeJobHandler{
		service:     svc,
		name:        "rebuild_scope",
		description: "Discard the index of an indexed folder and build it from scratch",
		queue:       svc.RebuildScope,
	}
}

// Handle queues the job.
func (h *ScopeJobHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ScopeArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}

	job, err := h.queue(args.Path)
	if err != nil {
		return errorResult("%s", err), nil, nil
	}
	return textResult(fmt.Sprintf("Queued %s (job %s). %d jobs in queue.", job, job.ID(), len(h.service.Jobs()))), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ScopeJobHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        h.name,
		Description: h.description,
	}
}

// RemoveScopeHandler handles the remove_scope MCP tool.
type RemoveScopeHandler struct {
	service *service.Service
}

// NewRemoveScopeHandler creates a new remove_scope handler.
func NewRemoveScopeHandler(svc *service.Service) *RemoveScopeHandler {
	return &RemoveScopeHandler{service: svc}
}

// Handle unregisters the folder and deletes its index.
func (h *RemoveScopeHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ScopeArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}
	if err := h.service.RemoveScope(args.Path); err != nil {
		return errorResult("%s", err), nil, nil
	}
	return textResult(fmt.Sprintf("Removed %s and deleted its index.", args.Path)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *RemoveScopeHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "remove_scope",
		Description: "Stop indexing a folder and delete its index",
	}
}

// SetCheckedHandler handles the set_scope_checked MCP tool.
type SetCheckedHandler struct {
	service *service.Service
}

// NewSetCheckedHandler creates a new set_scope_checked handler.
func NewSetCheckedHandler(svc *service.Service) *SetCheckedHandler {
	return &SetCheckedHandler{service: svc}
}

// Handle includes or excludes the folder from searches.
func (h *SetCheckedHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SetCheckedArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}
	if err := h.service.SetChecked(args.Path, args.Checked); err != nil {
		return errorResult("%s", err), nil, nil
	}
	if args.Checked {
		return textResult(fmt.Sprintf("%s is included in searches.", args.Path)), nil, nil
	}
	return textResult(fmt.Sprintf("%s is excluded from searches.", args.Path)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SetCheckedHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "set_scope_checked",
		Description: "Include or exclude an indexed folder or one of its subfolders from searches",
	}
}

// RegisterScopeTools registers the folder management tools with an MCP server.
func RegisterScopeTools(server *mcp.Server, svc *service.Service) {
	list := NewListScopesHandler(svc)
	mcp.AddTool(server, list.GetToolDefinition(), list.Handle)

	for _, h := range []*ScopeJobHandler{NewAddScopeHandler(svc), NewUpdateScopeHandler(svc), NewRebuildScopeHandler(svc)} {
		mcp.AddTool(server, h.GetToolDefinition(), h.Handle)
	}

	remove := NewRemoveScopeHandler(svc)
	mcp.AddTool(server, remove.GetToolDefinition(), remove.Handle)

	setChecked := NewSetCheckedHandler(svc)
	mcp.AddTool(server, setChecked.GetToolDefinition(), setChecked.Handle)
}
