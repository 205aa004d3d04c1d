package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show REF",
		Short: "Show one stored chunk by its storage reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			backend, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			rec, err := backend.GetChunk(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, rec)
			}
			bold.Fprintf(out, "%s #%d", rec.FilePath, rec.ChunkIndex)
			dim.Fprintf(out, "  [%s] ref=%s\n", rec.Tier, rec.Ref)
			if rec.RunID != "" {
				dim.Fprintf(out, "run %s, hash %s", rec.RunID, rec.ContentHash)
			} else {
				dim.Fprintf(out, "hash %s", rec.ContentHash)
			}
			if len(rec.Embedding) > 0 {
				dim.Fprintf(out, ", %d-dim embedding", len(rec.Embedding))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, rec.Content)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the record as JSON")
	return cmd
}
