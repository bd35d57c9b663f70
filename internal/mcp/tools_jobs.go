package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/docfetcher/internal/service"
)

// JobArgument identifies a queued job.
type JobArgument struct {
	ID string `json:"id" jsonschema_description:"Job id as shown by list_jobs"`
}

// ListJobsHandler handles the list_jobs MCP tool.
type ListJobsHandler struct {
	service *service.Service
}

// NewListJobsHandler creates a new list_jobs handler.
func NewListJobsHandler(svc *service.Service) *ListJobsHandler {
	return &ListJobsHandler{service: svc}
}

// Handle lists the indexing queue in execution order.
func (h *ListJobsHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args NoArgument) (*mcp.CallToolResult, any, error) {
	jobs := h.service.Jobs()
	if len(jobs) == 0 {
		return textResult("The indexing queue is empty."), nil, nil
	}

	current := h.service.CurrentJob()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d jobs in queue:\n\n", len(jobs)))
	for i, job := range jobs {
		state := "waiting"
		switch {
		case job == current:
			state = "running"
		case job.IsReady():
			state = "queued"
		}
		sb.WriteString(fmt.Sprintf("%d. [%s] %s (id: %s)\n", i+1, state, job, job.ID()))
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ListJobsHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_jobs",
		Description: "List the indexing jobs, the running one first",
	}
}

// CancelJobHandler handles the cancel_job MCP tool.
type CancelJobHandler struct {
	service *service.Service
}

// NewCancelJobHandler creates a new cancel_job handler.
func NewCancelJobHandler(svc *service.Service) *CancelJobHandler {
	return &CancelJobHandler{service: svc}
}

// Handle removes the job, stopping it if it is running.
func (h *CancelJobHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args JobArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.ID) == "" {
		return errorResult("Job id cannot be empty"), nil, nil
	}
	job, err := h.service.CancelJob(args.ID)
	if err != nil {
		return errorResult("%s", err), nil, nil
	}
	return textResult(fmt.Sprintf("Canceled %s.", job)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *CancelJobHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "cancel_job",
		Description: "Cancel an indexing job. Canceling the build of a new folder discards it",
	}
}

// ClearQueueHandler handles the clear_queue MCP tool.
type ClearQueueHandler struct {
	service *service.Service
}

// NewClearQueueHandler creates a new clear_queue handler.
func NewClearQueueHandler(svc *service.Service) *ClearQueueHandler {
	return &ClearQueueHandler{service: svc}
}

// Handle stops the running job and drops the queue.
func (h *ClearQueueHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args NoArgument) (*mcp.CallToolResult, any, error) {
	n := len(h.service.Jobs())
	h.service.ClearQueue()
	return textResult(fmt.Sprintf("Cleared %d jobs.", n)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ClearQueueHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "clear_queue",
		Description: "Cancel the running indexing job and drop all queued ones",
	}
}

// RegisterJobTools registers the queue tools with an MCP server.
func RegisterJobTools(server *mcp.Server, svc *service.Service) {
	list := NewListJobsHandler(svc)
	mcp.AddTool(server, list.GetToolDefinition(), list.Handle)

	cancel := NewCancelJobHandler(svc)
	mcp.AddTool(server, cancel.GetToolDefinition(), cancel.Handle)

	clearQueue := NewClearQueueHandler(svc)
	mcp.AddTool(server, clearQueue.GetToolDefinition(), clearQueue.Handle)
}
