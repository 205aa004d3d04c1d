package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/pyingest/internal/chunker"
	"github.com/dshills/pyingest/internal/embedder"
	"github.com/dshills/pyingest/internal/metrics"
	"github.com/dshills/pyingest/internal/orchestrator"
	"github.com/dshills/pyingest/internal/parser"
	"github.com/dshills/pyingest/internal/searcher"
	"github.com/dshills/pyingest/internal/storage"
)

// app holds the components one command invocation works with
type app struct {
	backend  storage.Backend
	runs     storage.RunStore
	embedder *embedder.Optional
	metrics  *metrics.Sink
	parser   *parser.Parser
	chunker  *chunker.Chunker
	searcher *searcher.Searcher
	orch     *orchestrator.Orchestrator
}

// openStorage opens the configured backend, creating its directory
func openStorage(ctx context.Context) (storage.Backend, error) {
	if dir := filepath.Dir(cfg.Storage.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return storage.Open(ctx, cfg.Storage, logger)
}

// newApp wires storage, embeddings, metrics, search and the orchestrator. Extra
// progress sinks receive every run event after the built-in ones.
func newApp(ctx context.Context, sinks ...orchestrator.ProgressSink) (*app, error) {
	backend, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	a := &app{
		backend: backend,
		metrics: metrics.New(),
		parser:  parser.New(logger),
		chunker: chunker.New(cfg.Chunker(), logger),
	}
	a.embedder = embedder.NewOptional(emb, logger, a.metrics.EmbeddingFailed)

	a.searcher = searcher.New(backend, a.embedder)

	all := []orchestrator.ProgressSink{orchestrator.NewLogSink(logger), a.metrics, a.searcher}
	if rs, ok := backend.(storage.RunStore); ok {
		a.runs = rs
		all = append(all, storage.NewJournal(rs, logger))
	}
	all = append(all, sinks...)

	var orchEmbedder orchestrator.Embedder
	if a.embedder.Enabled() {
		orchEmbedder = a.embedder
	}
	a.orch = orchestrator.New(a.parser, a.chunker, orchEmbedder, backend,
		orchestrator.WithLogger(logger),
		orchestrator.WithProgress(all...),
	)

	logger.WithField("embeddings", a.embedder.Enabled()).Debug("Pipeline ready")
	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.embedder.Close(), a.backend.Close())
}
