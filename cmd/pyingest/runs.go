package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/pyingest/internal/storage"
	"github.com/dshills/pyingest/pkg/types"
)

type runsFlags struct {
	limit        int
	files        bool
	stats        bool
	deleteChunks bool
	jsonOutput   bool
}

// chunkPruner is implemented by backends that tag chunks with their run
type chunkPruner interface {
	DeleteRunChunks(ctx context.Context, runID string) (int, error)
}

func newRunsCmd() *cobra.Command {
	var f runsFlags
	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "List ingestion runs or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runRuns(cmd, id, f)
		},
	}
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&f.files, "files", false, "Include per-file results when showing one run")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "Show storage counts instead of runs")
	cmd.Flags().BoolVar(&f.deleteChunks, "delete-chunks", false, "Delete the chunks stored by RUN_ID")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func runRuns(cmd *cobra.Command, id string, f runsFlags) error {
	ctx := commandContext(cmd)
	backend, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	out := cmd.OutOrStdout()
	if f.stats {
		st, err := backend.Stats(ctx)
		if err != nil {
			return err
		}
		if f.jsonOutput {
			return writeJSON(out, st)
		}
		fmt.Fprintf(out, "Backend:     %s\n", st.Backend)
		fmt.Fprintf(out, "Chunks:      %d\n", st.Chunks)
		fmt.Fprintf(out, "Embeddings:  %d\n", st.Embeddings)
		fmt.Fprintf(out, "Runs:        %d\n", st.Runs)
		return nil
	}

	if f.deleteChunks {
		if id == "" {
			return fmt.Errorf("--delete-chunks requires a RUN_ID")
		}
		pruner, ok := backend.(chunkPruner)
		if !ok {
			return fmt.Errorf("storage backend %q does not track chunks per run", cfg.Storage.Backend)
		}
		n, err := pruner.DeleteRunChunks(ctx, id)
		if err != nil {
			return err
		}
		if f.jsonOutput {
			return writeJSON(out, map[string]any{"run_id": id, "deleted": n})
		}
		fmt.Fprintf(out, "Deleted %d chunks of run %s\n", n, id)
		return nil
	}

	rs, ok := backend.(storage.RunStore)
	if !ok {
		return fmt.Errorf("storage backend %q does not keep run history", cfg.Storage.Backend)
	}

	if id == "" {
		runs, err := rs.ListRuns(ctx, f.limit)
		if err != nil {
			return err
		}
		if f.jsonOutput {
			return writeJSON(out, runs)
		}
		printRuns(out, runs)
		return nil
	}

	run, err := rs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	var files []types.FileProcessingResult
	if f.files {
		if files, err = rs.ListRunFiles(ctx, id); err != nil {
			return err
		}
	}

	if f.jsonOutput {
		return writeJSON(out, map[string]any{"run": run, "files": files})
	}
	printSummary(out, run.ID, run.Cancelled, run.Summary)
	fmt.Fprintf(out, "  Root:              %s\n", run.Root)
	fmt.Fprintf(out, "  State:             %s\n", run.State)
	if run.Error != "" {
		red.Fprintf(out, "  Error:             %s\n", run.Error)
	}
	if len(files) > 0 {
		cyan.Fprintln(out, "\nFiles")
		printFiles(out, files)
	}
	return nil
}

func printRuns(w io.Writer, runs []*storage.RunRecord) {
	if len(runs) == 0 {
		dim.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		processed := 0
		if r.Summary != nil {
			processed = r.Summary.TotalFilesProcessed
		}
		state := string(r.State)
		if r.Cancelled {
			state += " (cancelled)"
		}
		fmt.Fprintf(w, "%s  %s  %-22s %4d/%-4d %s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), state, processed, r.FilesToProcess, r.Root)
	}
}

func printFiles(w io.Writer, files []types.FileProcessingResult) {
	for _, f := range files {
		c := green
		switch f.Status {
		case types.StatusFailed:
			c = red
		case types.StatusPending, types.StatusProcessing:
			c = dim
		}
		c.Fprintf(w, "  %-10s", f.Status)
		fmt.Fprintf(w, " %-50s %3d elements %3d chunks\n", f.RelativePath, f.ElementsExtracted, f.ChunksCreated)
		if f.ErrorMessage != "" {
			red.Fprintf(w, "             %s\n", f.ErrorMessage)
		}
	}
}
