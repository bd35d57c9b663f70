package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/sha1n/docfetcher/internal/service"
	"github.com/spf13/cobra"
)

func newScopesCommand() *cobra.Command {
	var (
		exclude []string
		include []string
	)

	cmd := &cobra.Command{
		Use:   "scopes [folder]",
		Short: "List indexed folders, or the subfolders of an indexed folder",
		Long: "Without arguments lists the indexed folders. With a folder inside an " +
			"indexed folder lists its direct subfolders and whether they are searched. " +
			"--exclude and --include change which subfolders are searched.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeService(svc)

			for _, path := range exclude {
				if err := svc.SetChecked(path, false); err != nil {
					return err
				}
			}
			for _, path := range include {
				if err := svc.SetChecked(path, true); err != nil {
					return err
				}
			}

			if len(args) == 1 {
				return printFolders(cmd.OutOrStdout(), svc, args[0])
			}
			printScopes(cmd.OutOrStdout(), svc)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude-folder", nil, "Exclude folders from searches (comma-separated)")
	cmd.Flags().StringSliceVar(&include, "include-folder", nil, "Include folders in searches again (comma-separated)")
	return cmd
}

func printScopes(out io.Writer, svc *service.Service) {
	roots := svc.Scopes()
	if len(roots) == 0 {
		_, _ = fmt.Fprintln(out, "No folders are indexed.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FOLDER\tFILES\tSEARCH\tINDEX")
	for _, root := range roots {
		state, err := root.CheckState(root.Path())
		status := state.String()
		if err != nil {
			status = "?"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			root.Path(), humanize.Comma(int64(len(root.Files()))), status, root.IndexDir())
	}
	_ = w.Flush()
}

func printFolders(out io.Writer, svc *service.Service, path string) error {
	folders, err := svc.Folders(path)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		_, _ = fmt.Fprintln(out, "No subfolders.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FOLDER\tFILES\tSEARCH")
	for _, f := range folders {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, humanize.Comma(int64(f.Files)), f.State)
	}
	return w.Flush()
}
