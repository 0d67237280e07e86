// polictl runs the analysis pipeline and the conversation cascade from the
// command line.
//
// Usage:
//
//	polictl ingest [--snapshot=<graph.json>] <file>...
//	polictl chat [--snapshot=<graph.json>] <conversation-id> <text>
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/polisight/backend/internal/app"
	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/logger/console"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	snapshot string
	debug    bool
}

var rootCmd = &cobra.Command{
	Use:   "polictl",
	Short: "Analyze political documents and ask questions about them",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  rootFlags.debug,
			Prefix: "polictl",
			Output: cmd.ErrOrStderr(),
		}))
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.snapshot, "snapshot", "", "Graph snapshot file, loaded on start and saved on exit (default $GRAPH_SNAPSHOT)")
	f.BoolVar(&rootFlags.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.Version = version
}

// openService builds the service from the environment. The CLI always
// uses the in-memory graph.
func openService(ctx context.Context) (*app.Service, error) {
	cfg := app.ConfigFromEnv()
	cfg.GraphBackend = "memory"
	if rootFlags.snapshot != "" {
		cfg.GraphSnapshot = rootFlags.snapshot
	}
	return app.Build(ctx, cfg)
}

func main() {
	util.LoadEnv()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
