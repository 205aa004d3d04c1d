package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/pyingest/internal/chunker"
	"github.com/dshills/pyingest/internal/parser"
)

type chunkFlags struct {
	size       int
	clean      bool
	jsonOutput bool
}

func newChunkCmd() *cobra.Command {
	var f chunkFlags
	cmd := &cobra.Command{
		Use:   "chunk FILE",
		Short: "Split a text file into chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChunk(cmd, args[0], f)
		},
	}
	cmd.Flags().IntVar(&f.size, "size", 0, "Target chunk size in characters (0 = config)")
	cmd.Flags().BoolVar(&f.clean, "clean", false, "Collapse whitespace before chunking")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print chunks as JSON")
	return cmd
}

// chunkView is one chunk as printed by the chunk command
type chunkView struct {
	Index           int    `json:"index"`
	CharCount       int    `json:"char_count"`
	EstimatedTokens int    `json:"estimated_tokens"`
	Content         string `json:"content"`
}

func runChunk(cmd *cobra.Command, path string, f chunkFlags) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := string(data)
	if f.clean {
		text = chunker.Clean(text)
	}

	c := chunker.New(cfg.Chunker(), logger)
	chunks := c.ChunkWithTarget(text, f.size)

	views := make([]chunkView, len(chunks))
	for i, ch := range chunks {
		views[i] = chunkView{
			Index:           i,
			CharCount:       len([]rune(ch)),
			EstimatedTokens: chunker.EstimateTokens(ch),
			Content:         ch,
		}
	}

	out := cmd.OutOrStdout()
	if f.jsonOutput {
		return writeJSON(out, views)
	}
	for _, v := range views {
		bold.Fprintf(out, "--- chunk %d ", v.Index)
		dim.Fprintf(out, "(%d chars, ~%d tokens)\n", v.CharCount, v.EstimatedTokens)
		fmt.Fprintln(out, v.Content)
	}
	dim.Fprintf(out, "%d chunks\n", len(views))
	return nil
}

// newParserOnly builds a parser without opening storage
func newParserOnly() *parser.Parser {
	return parser.New(logger)
}
