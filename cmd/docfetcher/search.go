package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sha1n/docfetcher/internal/search"
	"github.com/spf13/cobra"
)

func newSearchCommand() *cobra.Command {
	var req search.Request

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search the indexed folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeService(svc)

			req.Query = strings.Join(args, " ")
			result, err := svc.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			printHits(cmd.OutOrStdout(), req, result)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&req.Extensions, "ext", "e", nil, "Only files with these extensions (comma-separated)")
	flags.Int64Var(&req.MinSize, "min-size", 0, "Minimum file size in bytes")
	flags.Int64Var(&req.MaxSize, "max-size", 0, "Maximum file size in bytes")
	flags.IntVarP(&req.Limit, "limit", "n", 0, "Maximum number of results (default max-results)")
	flags.IntVar(&req.Offset, "offset", 0, "Number of results to skip")
	return cmd
}

func printHits(out io.Writer, req search.Request, result *search.Result) {
	_, _ = fmt.Fprintf(out, "Found %s results for '%s' in %s\n",
		humanize.Comma(int64(result.Total)), req.Query, result.Took.Round(time.Millisecond))

	for i, hit := range result.Hits {
		_, _ = fmt.Fprintf(out, "\n%d. %s\n", req.Offset+i+1, hit.Path)
		if hit.Title != "" {
			_, _ = fmt.Fprintf(out, "   %s\n", hit.Title)
		}
		_, _ = fmt.Fprintf(out, "   %s, modified %s, score %.2f\n",
			humanize.IBytes(uint64(max(hit.Size, 0))), humanize.Time(hit.Modified), hit.Score)
		for _, frag := range hit.Fragments {
			_, _ = fmt.Fprintf(out, "   > %s\n", strings.Join(strings.Fields(frag), " "))
		}
	}
}
