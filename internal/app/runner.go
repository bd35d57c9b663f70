package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/docfetcher/internal/config"
	mcputil "github.com/sha1n/docfetcher/internal/mcp"
	"github.com/sha1n/docfetcher/internal/service"
	"github.com/spf13/pflag"
)

// ServerName is the name the MCP server reports to clients
const ServerName = "docfetcher"

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(context.Context, *mcp.Server, *config.Settings) error
	CreateServer      func(context.Context, *config.Settings, string) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
	LogOutput         io.Writer     // Optional: defaults to stderr
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// LoadAndConfigure loads and validates the settings and installs the default
// logger they describe.
func LoadAndConfigure(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Always log to stderr: stdout carries the stdio transport
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := config.NewLogger(settings.Log, out)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(logger)
	return settings, nil
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := LoadAndConfigure(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting docfetcher MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(ctx, settings, version)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(ctx, mcpServer, settings)
}

// CreateMCPServer opens the index directory and creates the MCP server with
// registered tools. The returned cleanup closes the service.
func CreateMCPServer(ctx context.Context, settings *config.Settings, version string) (*mcp.Server, func(), error) {
	svc, err := service.New(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index directory: %w", err)
	}

	// The watcher outlives the request that started it
	if err := svc.Initialize(context.WithoutCancel(ctx)); err != nil {
		if closeErr := svc.Close(); closeErr != nil {
			slog.Error("Failed to close service", "error", closeErr)
		}
		return nil, nil, fmt.Errorf("failed to initialize service: %w", err)
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close service", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    ServerName,
		Version: version,
		Service: svc,
	})

	return server, cleanup, nil
}
