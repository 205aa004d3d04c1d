package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, s *SQLiteStorage, name string) bool {
	t.Helper()
	var n int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestMigrations_AppliedOnOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	v, err := SchemaVersion(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	for _, name := range []string{"runs", "run_files", "chunks", "embeddings", "chunks_fts"} {
		assert.True(t, tableExists(t, s, name), name)
	}
}

func TestMigrations_ReopenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewSQLiteStorage(ctx, path, nil)
	require.NoError(t, err)
	_, err = s.Store(ctx, "kept across reopen", "semantic", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(ctx, path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	results, err := s.SearchText(ctx, "reopen", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMigrations_Rollback(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.Store(ctx, "indexed before rollback", "semantic", nil, nil)
	require.NoError(t, err)

	require.NoError(t, RollbackMigration(ctx, s.DB()))
	v, err := SchemaVersion(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())
	assert.False(t, tableExists(t, s, "chunks_fts"))
	assert.True(t, tableExists(t, s, "chunks"))

	// re-applying rebuilds the index from existing rows
	require.NoError(t, ApplyMigrations(ctx, s.DB()))
	results, err := s.SearchText(ctx, "rollback", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, RollbackMigration(ctx, s.DB()))
	require.NoError(t, RollbackMigration(ctx, s.DB()))
	v, err = SchemaVersion(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.String())

	assert.Error(t, RollbackMigration(ctx, s.DB()))
}
