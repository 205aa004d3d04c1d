// Package storage persists ingested chunks and run history.
//
// Two backends implement Backend:
//   - SQLiteStorage: chunks, embeddings and run history in SQLite, with an
//     FTS5 index for text search and versioned migrations
//   - BoltStorage: chunks and embeddings as JSON records in a bbolt file,
//     searched by scanning
//
// # Database Schema
//
// SQLite tables:
//   - runs: one row per ingestion run with its final summary
//   - run_files: per-file outcome of a run
//   - chunks: stored chunk content, tier and metadata
//   - embeddings: optional vector per chunk
//   - chunks_fts: FTS5 index over chunk content
//
// # Basic Usage
//
//	backend, err := storage.Open(ctx, storage.Config{Backend: "sqlite", Path: "ingest.db"}, logger)
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	ref, err := backend.Store(ctx, chunk, types.TierProcedural, metadata, nil)
//	hits, err := backend.SearchText(ctx, "parse config", 10)
//
// # Build Modes
//
// The default build uses the pure Go driver (modernc.org/sqlite). Build with
// -tags "sqlite_cgo,sqlite_fts5" to use github.com/mattn/go-sqlite3.
//
// # Run History
//
// Journal adapts a RunStore to the orchestrator's progress events so every
// run and file outcome is recorded as it happens.
package storage
