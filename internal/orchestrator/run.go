package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/pyingest/pkg/types"
)

// Run tracks one ingestion from discovery to its terminal state. All
// accessors are safe for concurrent use.
type Run struct {
	ID   string
	Root string

	mu              sync.RWMutex
	state           types.RunState
	startedAt       time.Time
	completedAt     time.Time
	filesDiscovered int
	filesToProcess  int
	results         []types.FileProcessingResult
	chunks          int
	failed          int
	summary         *types.ProcessingSummary
	err             error
	cancelled       bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(id, root string) *Run {
	return &Run{
		ID:        id,
		Root:      root,
		state:     types.RunInitialized,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// RunStatus is a point-in-time snapshot of a Run
type RunStatus struct {
	RunID           string                   `json:"run_id"`
	Root            string                   `json:"root"`
	State           types.RunState           `json:"state"`
	StartedAt       time.Time                `json:"started_at"`
	CompletedAt     *time.Time               `json:"completed_at,omitempty"`
	FilesDiscovered int                      `json:"files_discovered"`
	FilesToProcess  int                      `json:"files_to_process"`
	FilesProcessed  int                      `json:"files_processed"`
	FilesFailed     int                      `json:"files_failed"`
	ChunksCreated   int                      `json:"chunks_created"`
	Progress        float64                  `json:"progress_percentage"`
	Cancelled       bool                     `json:"cancelled"`
	Done            bool                     `json:"done"`
	Summary         *types.ProcessingSummary `json:"summary,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

// Status returns a snapshot of the run
func (r *Run) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := RunStatus{
		RunID:           r.ID,
		Root:            r.Root,
		State:           r.state,
		StartedAt:       r.startedAt,
		FilesDiscovered: r.filesDiscovered,
		FilesToProcess:  r.filesToProcess,
		FilesProcessed:  len(r.results),
		FilesFailed:     r.failed,
		ChunksCreated:   r.chunks,
		Cancelled:       r.cancelled,
		Done:            r.state.Terminal(),
		Summary:         r.summary,
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		st.CompletedAt = &t
	}
	switch {
	case r.state == types.RunCompleted:
		st.Progress = 100
	case r.filesToProcess > 0:
		st.Progress = float64(len(r.results)) / float64(r.filesToProcess) * 100
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

// State returns the current state
func (r *Run) State() types.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Summary returns the summary, nil until the run completes
func (r *Run) Summary() *types.ProcessingSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary
}

// Err returns the error that failed the run, if any
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Results returns a copy of the per-file results collected so far
func (r *Run) Results() []types.FileProcessingResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.FileProcessingResult, len(r.results))
	copy(out, r.results)
	return out
}

// Done is closed when the run reaches a terminal state
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done
func (r *Run) Wait(ctx context.Context) (*types.ProcessingSummary, error) {
	select {
	case <-r.done:
		return r.Summary(), r.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the run from starting new batches. Files already dispatched
// finish and the run still completes with a summary.
func (r *Run) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Run) setCancel(cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
}

func (r *Run) setState(state types.RunState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Run) setDiscovered(discovered, toProcess int) {
	r.mu.Lock()
	r.filesDiscovered = discovered
	r.filesToProcess = toProcess
	r.mu.Unlock()
}

// record appends one result and returns the running totals as a FileEvent
func (r *Run) record(res types.FileProcessingResult) types.FileEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, res)
	r.chunks += res.ChunksCreated
	if res.Status == types.StatusFailed {
		r.failed++
	}
	return types.FileEvent{
		RunID:     r.ID,
		Result:    res,
		Processed: len(r.results),
		Total:     r.filesToProcess,
		Failed:    r.failed,
		Chunks:    r.chunks,
	}
}

func (r *Run) finish(state types.RunState, summary *types.ProcessingSummary, err error, cancelled bool) types.RunEvent {
	r.mu.Lock()
	r.state = state
	r.summary = summary
	r.err = err
	r.cancelled = cancelled
	r.completedAt = time.Now()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ev := types.RunEvent{
		RunID:     r.ID,
		Root:      r.Root,
		State:     state,
		Cancelled: cancelled,
		Summary:   summary,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (r *Run) close() {
	close(r.done)
}
