package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pyingest/pkg/types"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func chunkMetadata(runID, path string, index int) map[string]any {
	return map[string]any{
		"run_id":      runID,
		"file_path":   path,
		"chunk_index": index,
		"language":    "python",
	}
}

func TestSQLite_StoreAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	vec := []float32{0.5, -0.25, 1}
	ref, err := s.Store(ctx, "def add(a, b):\n    return a + b", types.TierProcedural, chunkMetadata("run-1", "pkg/math.py", 2), vec)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	rec, err := s.GetChunk(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, rec.Ref)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "pkg/math.py", rec.FilePath)
	assert.Equal(t, 2, rec.ChunkIndex)
	assert.Equal(t, types.TierProcedural, rec.Tier)
	assert.Equal(t, ContentHash("def add(a, b):\n    return a + b"), rec.ContentHash)
	assert.Equal(t, "python", rec.Metadata["language"])
	assert.Equal(t, vec, rec.Embedding)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestSQLite_StoreWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	ref, err := s.Store(ctx, "plain text", types.TierSemantic, nil, nil)
	require.NoError(t, err)

	rec, err := s.GetChunk(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, rec.RunID)
	assert.Nil(t, rec.Embedding)
	assert.NotNil(t, rec.Metadata)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, st.Backend)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 0, st.Embeddings)
}

func TestSQLite_StoreRejectsEmpty(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.Store(context.Background(), "  \n", types.TierSemantic, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyChunk)
}

func TestSQLite_GetChunkNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetChunk(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SearchText(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	parseRef, err := s.Store(ctx, "def parse_config(path):\n    return load(path)", types.TierProcedural, chunkMetadata("r", "config.py", 0), nil)
	require.NoError(t, err)
	_, err = s.Store(ctx, "def render(template):\n    return template", types.TierProcedural, chunkMetadata("r", "view.py", 0), nil)
	require.NoError(t, err)
	_, err = s.Store(ctx, "load the config file at startup", types.TierSemantic, chunkMetadata("r", "README.md", 0), nil)
	require.NoError(t, err)

	results, err := s.SearchText(ctx, "path", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, parseRef, results[0].Ref)
	assert.Equal(t, "config.py", results[0].FilePath)
	assert.Greater(t, results[0].Score, 0.0)

	// every term must match
	results, err = s.SearchText(ctx, "load render", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.SearchText(ctx, "load", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSQLite_SearchTextOperatorsAreLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.Store(ctx, "x = a OR b", types.TierProcedural, nil, nil)
	require.NoError(t, err)

	results, err := s.SearchText(ctx, `"a" OR (b`, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSQLite_SearchTextEmptyQuery(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.SearchText(context.Background(), " -- ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSQLite_SearchVector(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	near, err := s.Store(ctx, "near", types.TierProcedural, nil, []float32{1, 0, 0})
	require.NoError(t, err)
	far, err := s.Store(ctx, "far", types.TierProcedural, nil, []float32{0, 1, 0})
	require.NoError(t, err)
	_, err = s.Store(ctx, "other dimension", types.TierProcedural, nil, []float32{1, 0})
	require.NoError(t, err)

	results, err := s.SearchVector(ctx, []float32{0.9, 0.1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near, results[0].Ref)
	assert.Equal(t, far, results[1].Ref)
	assert.Greater(t, results[0].Score, results[1].Score)

	_, err = s.SearchVector(ctx, nil, 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSQLite_DeleteRunChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	for i := 0; i < 3; i++ {
		_, err := s.Store(ctx, "chunk body", types.TierProcedural, chunkMetadata("old", "a.py", i), []float32{1, 2})
		require.NoError(t, err)
	}
	keep, err := s.Store(ctx, "chunk body", types.TierProcedural, chunkMetadata("new", "a.py", 0), nil)
	require.NoError(t, err)

	n, err := s.DeleteRunChunks(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 0, st.Embeddings)

	results, err := s.SearchText(ctx, "chunk", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep, results[0].Ref)
}

func TestSQLite_Runs(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &RunRecord{ID: "run-1", Root: "/repo", State: types.RunProcessing, FilesDiscovered: 4, FilesToProcess: 3, CreatedAt: created}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunProcessing, got.State)
	assert.Equal(t, 4, got.FilesDiscovered)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Summary)

	done := created.Add(time.Minute)
	run.State = types.RunCompleted
	run.Cancelled = true
	run.CompletedAt = &done
	run.CreatedAt = time.Now()
	run.Summary = &types.ProcessingSummary{TotalFilesFound: 4, TotalChunksCreated: 9, ProcessingErrors: []string{}}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, got.State)
	assert.True(t, got.Cancelled)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
	require.NotNil(t, got.Summary)
	assert.Equal(t, 9, got.Summary.TotalChunksCreated)
	assert.True(t, got.CreatedAt.Equal(created), "created_at is kept from the first save")

	_, err = s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(ctx, &RunRecord{ID: id, Root: "/r", State: types.RunCompleted, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Runs)
}

func TestSQLite_RunFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	// the run row must exist first
	err := s.SaveFileResult(ctx, "ghost", types.FileProcessingResult{RelativePath: "a.py", Status: types.StatusCompleted})
	assert.Error(t, err)

	require.NoError(t, s.SaveRun(ctx, &RunRecord{ID: "run-1", Root: "/r", State: types.RunProcessing}))
	require.NoError(t, s.SaveFileResult(ctx, "run-1", types.FileProcessingResult{
		RelativePath: "pkg/b.py", FileSize: 120, Status: types.StatusFailed,
		ErrorMessage: "storage failed for all 2 chunks", Warnings: []string{"Failed to store chunk 0: boom"},
	}))
	require.NoError(t, s.SaveFileResult(ctx, "run-1", types.FileProcessingResult{
		RelativePath: "a.py", FileSize: 80, Status: types.StatusCompleted,
		ElementsExtracted: 3, ChunksCreated: 3, EmbeddingsGenerated: 3, Complexity: 1.5, ProcessingTimeMs: 7,
	}))

	files, err := s.ListRunFiles(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "a.py", files[0].RelativePath)
	assert.Equal(t, types.StatusCompleted, files[0].Status)
	assert.Equal(t, 3, files[0].ChunksCreated)
	assert.InDelta(t, 1.5, files[0].Complexity, 1e-9)
	assert.Empty(t, files[0].Warnings)

	assert.Equal(t, "pkg/b.py", files[1].RelativePath)
	assert.Equal(t, types.StatusFailed, files[1].Status)
	assert.Equal(t, "storage failed for all 2 chunks", files[1].ErrorMessage)
	assert.Equal(t, []string{"Failed to store chunk 0: boom"}, files[1].Warnings)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sq, err := Open(ctx, Config{Path: filepath.Join(dir, "a.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, sq)
	require.NoError(t, sq.Close())

	bl, err := Open(ctx, Config{Backend: "BOLT", Path: filepath.Join(dir, "b.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &BoltStorage{}, bl)
	require.NoError(t, bl.Close())

	_, err = Open(ctx, Config{Backend: "postgres", Path: "x"}, nil)
	assert.Error(t, err)

	_, err = Open(ctx, Config{Backend: BackendSQLite}, nil)
	assert.Error(t, err)
}
