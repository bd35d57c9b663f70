package main

import (
	"github.com/sha1n/docfetcher/internal/app"
	"github.com/sha1n/docfetcher/internal/daemon"
	"github.com/spf13/cobra"
)

func newDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Record folder changes while the server is not running",
		Long: "Watches the indexed folders listed in the indexes file and marks each " +
			"changed folder, so the server updates it on its next start. Exits once " +
			"every folder is marked.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.LoadAndConfigure(app.DefaultRunParams(), cmd.Flags())
			if err != nil {
				return err
			}
			return daemon.New(settings.Index.Dir).Run(cmd.Context())
		},
	}
}
