package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sha1n/docfetcher/internal/registry"
	"github.com/spf13/cobra"
)

func newIndexCommand() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index <folder>...",
		Short: "Index folders and wait until indexing is done",
		Long: "Adds new folders to the index and updates the ones already indexed. " +
			"Use --rebuild to index indexed folders again from scratch.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeService(svc)

			results, err := svc.Index(cmd.Context(), rebuild, args...)
			if err != nil {
				return err
			}

			var errs []error
			for _, r := range results {
				printResult(cmd.OutOrStdout(), r)
				if r.Err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", r.Job.Root().Path(), r.Err))
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild already indexed folders from scratch")
	return cmd
}

func printResult(out io.Writer, r registry.JobResult) {
	path := r.Job.Root().Path()
	switch {
	case r.Interrupted:
		_, _ = fmt.Fprintf(out, "%s: interrupted\n", path)
		return
	case r.Report == nil:
		_, _ = fmt.Fprintf(out, "%s: failed: %v\n", path, r.Err)
		return
	}

	rep := r.Report
	_, _ = fmt.Fprintf(out, "%s: %s indexed, %s unchanged, %s removed, %s skipped in %s\n",
		path,
		humanize.Comma(int64(rep.Indexed)),
		humanize.Comma(int64(rep.Unchanged)),
		humanize.Comma(int64(rep.Removed)),
		humanize.Comma(int64(rep.Skipped)),
		rep.Duration().Round(time.Millisecond))
	for _, f := range rep.Failures {
		_, _ = fmt.Fprintf(out, "  %s (%s): %s\n", f.Path, f.Kind, f.Message)
	}
}
