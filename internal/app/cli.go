package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	flags.StringSliceP("repos", "r", nil, "Repositories to index at startup: local paths or git URLs (comma-separated)")
	flags.StringP("cache-dir", "c", "", "Directory for processed repository data")
	flags.StringP("granularity", "g", "", "Indexing granularity: file or chunk")
	flags.Int("chunk-size", 0, "Chunk window size in characters")
	flags.Int("chunk-overlap", 0, "Chunk window overlap in characters")
	flags.BoolP("summarize", "s", false, "Summarize units with the chat model before embedding")
	flags.Int("top-k", 0, "Number of retrieved units per question")
}
