package app

import (
	"github.com/spf13/pflag"
)

// RegisterFlags registers all server flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
	flags.Bool("watch", true, "Re-index folders when their files change")
	flags.Duration("watch-debounce", 0, "Quiet period after the last change before re-indexing (default 1s)")
}

// RegisterIndexFlags registers the flags shared by all commands that open the
// index directory
func RegisterIndexFlags(flags *pflag.FlagSet) {
	flags.String("index-dir", "", "Directory holding the indexes (default ~/.docfetcher)")
	flags.Int64("max-file-size", 0, "Maximum size in bytes of files to index (default 32MB)")
	flags.Int("batch-size", 0, "Number of documents per index batch (default 100)")
	flags.StringSlice("exclude", nil, "Glob patterns of files and folders to skip (comma-separated)")
	flags.Int("max-results", 0, "Maximum number of search results (default 50)")
	flags.String("log-level", "", "Log level: debug, info, warn, or error")
	flags.String("log-format", "", "Log format: text or json")
}
