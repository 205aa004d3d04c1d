package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pyingest/pkg/types"
)

func TestJournal_RecordsRun(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	j := NewJournal(s, nil)

	j.OnDiscovery(types.DiscoveryEvent{RunID: "run-1", Root: "/repo", FilesDiscovered: 3, FilesToProcess: 2})

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunProcessing, run.State)
	assert.Equal(t, "/repo", run.Root)
	assert.Equal(t, 2, run.FilesToProcess)

	j.OnFile(types.FileEvent{RunID: "run-1", Processed: 1, Total: 2, Result: types.FileProcessingResult{
		RelativePath: "a.py", Status: types.StatusCompleted, ChunksCreated: 2,
	}})
	j.OnFile(types.FileEvent{RunID: "run-1", Processed: 2, Total: 2, Result: types.FileProcessingResult{
		RelativePath: "b.txt", Status: types.StatusFailed, ErrorMessage: "boom",
	}})

	summary := &types.ProcessingSummary{TotalFilesFound: 3, TotalFilesProcessed: 1, TotalFilesFailed: 1, TotalChunksCreated: 2}
	j.OnRunComplete(types.RunEvent{RunID: "run-1", Root: "/repo", State: types.RunCompleted, Summary: summary})

	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.State)
	assert.Equal(t, 3, run.FilesDiscovered)
	assert.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.TotalChunksCreated)

	files, err := s.ListRunFiles(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.py", files[0].RelativePath)
	assert.Equal(t, "boom", files[1].ErrorMessage)

	assert.Empty(t, j.runs, "completed runs are no longer tracked")
}

func TestJournal_FileWithoutDiscovery(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	j := NewJournal(s, nil)

	j.OnFile(types.FileEvent{RunID: "run-2", Processed: 1, Total: 5, Result: types.FileProcessingResult{
		RelativePath: "x.py", Status: types.StatusCompleted,
	}})

	run, err := s.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, types.RunProcessing, run.State)
	assert.Equal(t, 5, run.FilesToProcess)

	files, err := s.ListRunFiles(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestJournal_FailedRun(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	j := NewJournal(s, nil)

	j.OnRunComplete(types.RunEvent{RunID: "run-3", Root: "/missing", State: types.RunFailed, Error: "root not found"})

	run, err := s.GetRun(ctx, "run-3")
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, run.State)
	assert.Equal(t, "root not found", run.Error)
	assert.Equal(t, "/missing", run.Root)
}

type brokenRunStore struct{}

var errBroken = errors.New("disk full")

func (brokenRunStore) SaveRun(context.Context, *RunRecord) error { return errBroken }
func (brokenRunStore) GetRun(context.Context, string) (*RunRecord, error) {
	return nil, errBroken
}
func (brokenRunStore) ListRuns(context.Context, int) ([]*RunRecord, error) { return nil, errBroken }
func (brokenRunStore) SaveFileResult(context.Context, string, types.FileProcessingResult) error {
	return errBroken
}
func (brokenRunStore) ListRunFiles(context.Context, string) ([]types.FileProcessingResult, error) {
	return nil, errBroken
}

func TestJournal_WriteFailuresAreLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	j := NewJournal(brokenRunStore{}, logger)

	j.OnDiscovery(types.DiscoveryEvent{RunID: "r", Root: "/repo"})
	j.OnFile(types.FileEvent{RunID: "r", Result: types.FileProcessingResult{RelativePath: "a.py"}})
	j.OnRunComplete(types.RunEvent{RunID: "r", State: types.RunCompleted})

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, logrus.WarnLevel, e.Level)
		assert.Equal(t, errBroken, e.Data[logrus.ErrorKey])
	}
	assert.Equal(t, "Failed to journal file result", entries[1].Message)
	assert.Equal(t, "a.py", entries[1].Data["file"])
}
