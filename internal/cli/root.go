// Package cli implements the command-line surface: index, search,
// clear, status, and the MCP serve command.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/semindex-mcp/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
)

// NewRootCmd builds the CLI command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "semindex",
		Short: "Semantic code search with a local hybrid vector store",
		Long: `semindex indexes a source tree into a local hybrid (dense + sparse)
vector store and serves semantic code search over it, with incremental
re-indexing driven by content-addressed change detection.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging.Level)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultFileName, "config file path")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newServeCmd())
	return root
}

// Execute runs the CLI and exits non-zero on failure with a single
// line of failure reason.
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures logrus: stderr only, stdout stays clean for
// command output and the MCP protocol.
func setupLogging(level string) {
	logrus.SetOutput(os.Stderr)
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}
