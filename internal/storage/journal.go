package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/pkg/types"
)

// journalTimeout bounds each journal write
const journalTimeout = 10 * time.Second

// Journal records run progress into a RunStore. It implements the
// orchestrator's progress sink; write failures are logged and never stop a
// run.
type Journal struct {
	store  RunStore
	logger *logrus.Logger

	mu   sync.Mutex
	runs map[string]*RunRecord
}

// NewJournal creates a Journal writing to store
func NewJournal(store RunStore, logger *logrus.Logger) *Journal {
	return &Journal{
		store:  store,
		logger: logging.OrDiscard(logger),
		runs:   make(map[string]*RunRecord),
	}
}

func (j *Journal) OnDiscovery(ev types.DiscoveryEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	run := j.record(ev.RunID, ev.Root)
	run.State = types.RunProcessing
	run.FilesDiscovered = ev.FilesDiscovered
	run.FilesToProcess = ev.FilesToProcess
	j.save(run)
}

func (j *Journal) OnFile(ev types.FileEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	run, ok := j.runs[ev.RunID]
	if !ok {
		// runs started from an explicit file list skip discovery
		run = j.record(ev.RunID, "")
		run.State = types.RunProcessing
		run.FilesToProcess = ev.Total
		j.save(run)
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := j.store.SaveFileResult(ctx, ev.RunID, ev.Result); err != nil {
		j.logger.WithError(err).WithFields(logrus.Fields{
			"run_id": ev.RunID,
			"file":   ev.Result.RelativePath,
		}).Warn("Failed to journal file result")
	}
}

func (j *Journal) OnRunComplete(ev types.RunEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	run := j.record(ev.RunID, ev.Root)
	now := time.Now().UTC()
	run.State = ev.State
	run.Cancelled = ev.Cancelled
	run.Summary = ev.Summary
	run.Error = ev.Error
	run.CompletedAt = &now
	j.save(run)
	delete(j.runs, ev.RunID)
}

// record returns the tracked record for id, creating it when new
func (j *Journal) record(id, root string) *RunRecord {
	run, ok := j.runs[id]
	if !ok {
		run = &RunRecord{ID: id, Root: root, State: types.RunDiscovering, CreatedAt: time.Now().UTC()}
		j.runs[id] = run
	}
	if root != "" {
		run.Root = root
	}
	return run
}

func (j *Journal) save(run *RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := j.store.SaveRun(ctx, run); err != nil {
		j.logger.WithError(err).WithField("run_id", run.ID).Warn("Failed to journal run")
	}
}
