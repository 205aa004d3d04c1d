// Package orchestrator coordinates the end-to-end ingestion pipeline for
// Python repositories.
//
// An Orchestrator runs discovery, then processes the selected files in
// sequential batches. Files inside a batch run concurrently. Each file is
// read, parsed into code elements (or treated as text), chunked, embedded and
// handed to a StorageSink.
//
// # Basic Usage
//
//	o := orchestrator.New(parser.New(logger), nil, emb, sink,
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithProgress(orchestrator.NewLogSink(logger)))
//
//	run, err := o.Ingest(ctx, "/path/to/repo", orchestrator.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	fmt.Println(run.Summary().TotalChunksCreated)
//
// Start returns as soon as discovery finishes and keeps processing in the
// background. Poll Run.Status or block on Run.Wait.
//
// # Failure Handling
//
// Failures are contained at the smallest unit possible:
//
//   - A chunk that cannot be stored becomes a warning on its file
//   - A file that cannot be read, or whose chunks all fail to store, is failed
//   - A run fails only when discovery fails
//
// Unparseable Python files are chunked as plain text and keep the syntax
// error as a warning.
//
// # Concurrency
//
// Only one run may be active per Orchestrator. A second request while a run
// holds the lock returns ErrRunInProgress. Cancelling a run stops new batches
// from starting; files already dispatched finish and the run completes with
// Cancelled set.
package orchestrator
