package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/semindex-mcp/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a codebase (incremental when already indexed)",
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

			bar := progressbar.NewOptions(100,
				progressbar.OptionSetDescription("indexing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			report := func(p indexer.Progress) {
				_ = bar.Set(int(p.Percentage))
				if p.CurrentFile != "" {
					bar.Describe(p.Phase + " " + p.CurrentFile)
				} else {
					bar.Describe(p.Phase)
				}
			}

			// Re-index incrementally when a prior index exists.
			if entry, ok := a.registry.Get(root); ok && !force && entry.Status != "" {
				stats, err := a.indexer.ReindexByChange(cmd.Context(), root, report)
				if err != nil {
					return err
				}
				_ = bar.Finish()
				fmt.Printf("re-indexed %s: %d added, %d modified, %d removed\n",
					root, stats.Added, stats.Modified, stats.Removed)
				return nil
			}

			stats, err := a.indexer.Index(cmd.Context(), root, force, report)
			if err != nil {
				return err
			}
			_ = bar.Finish()
			fmt.Printf("indexed %s: %d files, %d chunks (%s)\n",
				root, stats.Files, stats.Chunks, stats.Completion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop the existing index and rebuild")
	return cmd
}
