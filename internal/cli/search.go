package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/semindex-mcp/internal/searcher"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		extensions []string
		threshold  float64
		root       string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed codebase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			rootArgs := []string{}
			if root != "" {
				rootArgs = append(rootArgs, root)
			}
			absRoot, err := resolveRoot(rootArgs)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if limit <= 0 {
				limit = cfg.Search.TopK
			}
			if threshold == 0 {
				threshold = cfg.Search.Threshold
			}

			resp, err := a.searcher.Search(cmd.Context(), absRoot, searcher.Request{
				Query:      query,
				Limit:      limit,
				Threshold:  threshold,
				Extensions: extensions,
			})
			if err != nil {
				return err
			}

			if resp.InProgress {
				fmt.Printf("note: indexing in progress (%.0f%%), results may be incomplete\n\n", resp.Progress)
			}
			if len(resp.Results) == 0 {
				fmt.Println("no results")
				return nil
			}

			for i, r := range resp.Results {
				fmt.Printf("%d. %s:%d-%d (%s, score %.3f)\n", i+1, r.RelativePath, r.StartLine, r.EndLine, r.Language, r.Score)
				for _, line := range strings.Split(strings.TrimRight(r.Content, "\n"), "\n") {
					fmt.Printf("   %s\n", line)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "restrict to file extensions (e.g. --ext .go --ext .ts)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum score")
	cmd.Flags().StringVar(&root, "path", "", "codebase root (default: working directory)")
	return cmd
}
