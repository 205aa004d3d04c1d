package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/pyingest/internal/orchestrator"
	"github.com/dshills/pyingest/internal/source"
)

type ingestFlags struct {
	include     []string
	exclude     []string
	maxFiles    int
	maxFileSize int64
	batchSize   int
	chunkSize   int
	metadata    map[string]string
	source      string
	jsonOutput  bool
}

func newIngestCmd() *cobra.Command {
	var f ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest PATH|URL",
		Short: "Ingest a repository into storage",
		Long: `Discover the files of a repository, extract code elements from Python
files, chunk documentation and configuration text, and store every chunk.

With --source git_url or github_url the argument is a repository URL (or
OWNER/REPO for GitHub). It is shallow cloned into a temporary directory that
is removed when the command exits.

Interrupting the command stops new batches; files already in flight finish
and the run completes as cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], f)
		},
	}

	cmd.Flags().StringSliceVar(&f.include, "include", nil, "Include glob patterns (repeatable)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Exclude glob patterns (repeatable)")
	cmd.Flags().IntVar(&f.maxFiles, "max-files", 0, "Maximum files to process (0 = config)")
	cmd.Flags().Int64Var(&f.maxFileSize, "max-file-size", 0, "Largest file processed in bytes (0 = config)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "Files processed concurrently (0 = config)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "Target chunk size in characters (0 = config)")
	cmd.Flags().StringToStringVar(&f.metadata, "meta", nil, "Extra chunk metadata as key=value")
	cmd.Flags().StringVar(&f.source, "source", string(source.KindLocalPath), "Repository source: local_path, git_url or github_url")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the summary as JSON")
	return cmd
}

// ingestOptions overlays command flags on the configured options
func ingestOptions(cmd *cobra.Command, f ingestFlags) orchestrator.Options {
	opts := cfg.Options()
	if cmd.Flags().Changed("include") {
		opts.Discovery.IncludePatterns = f.include
	}
	if cmd.Flags().Changed("exclude") {
		opts.Discovery.ExcludePatterns = f.exclude
	}
	if f.maxFiles > 0 {
		opts.Discovery.MaxFileCount = f.maxFiles
	}
	if f.maxFileSize > 0 {
		opts.Discovery.MaxFileSize = f.maxFileSize
	}
	if f.batchSize > 0 {
		opts.BatchSize = f.batchSize
	}
	if f.chunkSize > 0 {
		opts.ChunkTargetSize = f.chunkSize
	}
	if len(f.metadata) > 0 {
		opts.Metadata = make(map[string]any, len(f.metadata))
		for k, v := range f.metadata {
			opts.Metadata[k] = v
		}
	}
	return opts
}

func runIngest(cmd *cobra.Command, target string, f ingestFlags) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind, err := source.ParseKind(f.source)
	if err != nil {
		return err
	}
	checkout, err := source.NewResolver(cfg.Source, logger).Resolve(ctx, kind, target)
	if err != nil {
		return err
	}
	defer func() { _ = checkout.Close() }()

	opts := ingestOptions(cmd, f)
	if kind.Remote() {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]any, 2)
		}
		opts.Metadata["repository_source"] = string(kind)
		opts.Metadata["repository_url"] = source.RedactURL(target)
	}

	var sinks []orchestrator.ProgressSink
	if bar := newBarSink(f.jsonOutput); bar != nil {
		sinks = append(sinks, bar)
	}

	a, err := newApp(ctx, sinks...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	run, err := a.orch.Ingest(ctx, checkout.Root, opts)
	if err != nil {
		return err
	}

	st := run.Status()
	out := cmd.OutOrStdout()
	if f.jsonOutput {
		return writeJSON(out, st)
	}
	printSummary(out, st.RunID, st.Cancelled, st.Summary)
	return nil
}

// commandContext returns the command context, or Background outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
