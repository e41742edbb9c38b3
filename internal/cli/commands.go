package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/semindex-mcp/internal/mcp"
	"github.com/dshills/semindex-mcp/internal/registry"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [path]",
		Short: "Remove a codebase's index, snapshot, and status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.indexer.ClearIndex(cmd.Context(), root); err != nil {
				return err
			}
			fmt.Printf("cleared index for %s\n", root)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show indexing status for every known codebase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.registry.Reconcile(cmd.Context(), a.store, a.indexer.CollectionName)

			entries := a.registry.List()
			if len(entries) == 0 {
				fmt.Println("no codebases indexed")
				return nil
			}

			paths := make([]string, 0, len(entries))
			for path := range entries {
				paths = append(paths, path)
			}
			sort.Strings(paths)

			for _, path := range paths {
				entry := entries[path]
				switch entry.Status {
				case registry.StatusIndexing:
					fmt.Printf("%s\tindexing (%.0f%%)\n", path, entry.Progress)
				case registry.StatusIndexed:
					fmt.Printf("%s\tindexed: %d files, %d chunks (%s)\n", path, entry.Files, entry.Chunks, entry.Completion)
				case registry.StatusFailed:
					fmt.Printf("%s\tfailed: %s\n", path, entry.Message)
				}
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			server := mcp.NewServer(a.store, a.indexer, a.searcher, a.registry)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				logrus.Info("MCP server ready, listening on stdio")
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				logrus.WithField("signal", sig.String()).Info("shutting down")
				cancel()
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}
