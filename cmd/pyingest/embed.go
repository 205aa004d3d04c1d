package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/pyingest/internal/embedder"
)

func newEmbedCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "embed TEXT...",
		Short: "Embed text with the configured provider",
		Long: `Embed text with the configured provider and print the result. Useful to
check API keys and provider selection before a long ingestion run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbed(cmd, strings.Join(args, " "), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full vector as JSON")
	return cmd
}

func runEmbed(cmd *cobra.Command, text string, jsonOutput bool) error {
	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if emb == nil {
		return fmt.Errorf("no embedding provider configured (provider %q)", cfg.Embedding.Provider)
	}
	defer func() { _ = emb.Close() }()

	start := time.Now()
	res, err := emb.GenerateEmbedding(commandContext(cmd), embedder.EmbeddingRequest{Text: text})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, map[string]any{
			"provider":  res.Provider,
			"model":     res.Model,
			"dimension": res.Dimension,
			"vector":    res.Vector,
		})
	}

	fmt.Fprintf(out, "Provider:  %s\n", res.Provider)
	fmt.Fprintf(out, "Model:     %s\n", res.Model)
	fmt.Fprintf(out, "Dimension: %d\n", res.Dimension)
	fmt.Fprintf(out, "Time:      %s\n", elapsed.Round(time.Millisecond))
	n := min(len(res.Vector), 8)
	dim.Fprintf(out, "Vector:    %v...\n", res.Vector[:n])
	return nil
}
