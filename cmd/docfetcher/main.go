package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sha1n/docfetcher/internal/app"
	"github.com/sha1n/docfetcher/internal/service"
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "docfetcher"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(version, programName)
	rootCmd.SetArgs(args)

	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, programName string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "DocFetcher MCP Server",
		Long:    "Full-text search over the documents of local folders, served over MCP",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWithDeps(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.Flags())
	app.RegisterIndexFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newIndexCommand(),
		newScopesCommand(),
		newSearchCommand(),
		newDaemonCommand(),
	)
	return rootCmd
}

// openService opens the index directory for a one-shot command. Changes the
// daemon recorded are indexed before it returns.
func openService(cmd *cobra.Command) (*service.Service, error) {
	settings, err := app.LoadAndConfigure(app.DefaultRunParams(), cmd.Flags())
	if err != nil {
		return nil, err
	}
	settings.Watch.Enabled = false

	svc, err := service.New(settings)
	if err != nil {
		return nil, err
	}
	if err := svc.Initialize(cmd.Context()); err != nil {
		closeService(svc)
		return nil, err
	}
	if err := svc.WaitIdle(cmd.Context()); err != nil {
		closeService(svc)
		return nil, err
	}
	return svc, nil
}

func closeService(svc *service.Service) {
	if err := svc.Close(); err != nil {
		slog.Error("Failed to close service", "error", err)
	}
}
