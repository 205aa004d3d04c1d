package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/pyingest/internal/embedder"
	"github.com/dshills/pyingest/internal/searcher"
	"github.com/dshills/pyingest/internal/storage"
)

type searchFlags struct {
	limit      int
	mode       string
	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search stored chunks",
		Long: `Search stored chunks. The default hybrid mode fuses keyword and
embedding ranking, and falls back to keyword ranking when no embedding
provider is configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), f)
		},
	}
	cmd.Flags().IntVarP(&f.limit, "limit", "n", storage.DefaultSearchLimit, "Maximum results")
	cmd.Flags().StringVar(&f.mode, "mode", string(searcher.ModeHybrid), "Ranking: hybrid, vector or keyword")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, f searchFlags) error {
	ctx := commandContext(cmd)
	backend, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	var opt *embedder.Optional
	if searcher.Mode(f.mode) != searcher.ModeKeyword {
		emb, err := embedder.New(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("failed to initialize embedder: %w", err)
		}
		opt = embedder.NewOptional(emb, logger, nil)
		defer func() { _ = opt.Close() }()
	}

	resp, err := searcher.New(backend, opt).Search(ctx, searcher.Request{
		Query: query,
		Limit: f.limit,
		Mode:  searcher.Mode(f.mode),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if f.jsonOutput {
		return writeJSON(out, resp.Results)
	}
	if len(resp.Results) == 0 {
		dim.Fprintln(out, "No results")
		return nil
	}
	for i, r := range resp.Results {
		bold.Fprintf(out, "%d. %s", i+1, r.FilePath)
		dim.Fprintf(out, "  [%s] score=%.3f ref=%s\n", r.Tier, r.Score, r.Ref)
		fmt.Fprintln(out, indent(preview(r.Content, 6), "   "))
	}
	dim.Fprintf(out, "%d results (%s, %s)\n", len(resp.Results), resp.Mode, resp.Duration.Round(time.Microsecond))
	return nil
}

// preview keeps the first n lines of s
func preview(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
