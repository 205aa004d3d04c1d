package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/pkg/types"
)

// SQLiteStorage implements Backend and RunStore using SQLite with FTS5
type SQLiteStorage struct {
	db     *sql.DB
	logger *logrus.Logger
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens or creates the database at dbPath and applies
// pending migrations. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(ctx context.Context, dbPath string, logger *logrus.Logger) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logging.OrDiscard(logger)}
	s.logger.WithFields(logrus.Fields{
		"path":  dbPath,
		"build": BuildMode,
	}).Debug("Opened SQLite storage")
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance commands
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Chunk operations

// Store persists one chunk and its optional embedding in a transaction
func (s *SQLiteStorage) Store(ctx context.Context, chunk string, tier types.Tier, metadata map[string]any, embedding []float32) (string, error) {
	if strings.TrimSpace(chunk) == "" {
		return "", ErrEmptyChunk
	}
	rec := newChunkRecord(uuid.NewString(), chunk, tier, metadata, embedding)

	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (id, run_id, file_path, chunk_index, tier, content, content_hash, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Ref, sql.NullString{String: rec.RunID, Valid: rec.RunID != ""}, rec.FilePath, rec.ChunkIndex,
		string(rec.Tier), rec.Content, rec.ContentHash, string(md), formatTime(rec.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("failed to insert chunk: %w", err)
	}

	if len(embedding) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (chunk_id, vector, dimension) VALUES (?, ?, ?)
		`, rec.Ref, serializeVector(embedding), len(embedding))
		if err != nil {
			return "", fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit chunk: %w", err)
	}
	return rec.Ref, nil
}

// GetChunk loads a stored chunk by reference
func (s *SQLiteStorage) GetChunk(ctx context.Context, ref string) (*ChunkRecord, error) {
	query := `
		SELECT c.id, c.run_id, c.file_path, c.chunk_index, c.tier, c.content,
		       c.content_hash, c.metadata, c.created_at, e.vector
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE c.id = ?
	`
	var rec ChunkRecord
	var runID sql.NullString
	var tier, md, created string
	var vector []byte
	err := s.db.QueryRowContext(ctx, query, ref).Scan(
		&rec.Ref, &runID, &rec.FilePath, &rec.ChunkIndex, &tier, &rec.Content,
		&rec.ContentHash, &md, &created, &vector,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}

	rec.RunID = runID.String
	rec.Tier = types.Tier(tier)
	rec.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(md), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if len(vector) > 0 {
		rec.Embedding = deserializeVector(vector)
	}
	return &rec, nil
}

// DeleteRunChunks removes every chunk stored by a run and returns the count
func (s *SQLiteStorage) DeleteRunChunks(ctx context.Context, runID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE run_id = ?", runID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Search operations

// SearchText performs BM25 ranked full-text search. Every query term must
// occur in a hit.
func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_path, c.tier, c.content, c.metadata, bm25(chunks_fts) AS rank
		FROM chunks_fts
		INNER JOIN chunks c ON c.seq = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank, c.id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]SearchResult, 0, limit)
	for rows.Next() {
		var r SearchResult
		var tier, md string
		var rank float64
		if err := rows.Scan(&r.Ref, &r.FilePath, &tier, &r.Content, &md, &rank); err != nil {
			return nil, err
		}
		r.Tier = types.Tier(tier)
		// bm25 is negative, lower is better
		r.Score = -rank
		if err := json.Unmarshal([]byte(md), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchVector ranks stored embeddings of the same dimension by cosine
// similarity to vector
func (s *SQLiteStorage) SearchVector(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyQuery
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_path, c.tier, c.content, c.metadata, e.vector
		FROM embeddings e
		INNER JOIN chunks c ON c.id = e.chunk_id
		WHERE e.dimension = ?
	`, len(vector))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var tier, md string
		var blob []byte
		if err := rows.Scan(&r.Ref, &r.FilePath, &tier, &r.Content, &md, &blob); err != nil {
			return nil, err
		}
		r.Tier = types.Tier(tier)
		r.Score = cosineSimilarity(vector, deserializeVector(blob))
		if err := json.Unmarshal([]byte(md), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topResults(results, limit), nil
}

// Stats counts stored chunks, embeddings and runs
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: BackendSQLite}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM runs)
	`).Scan(&st.Chunks, &st.Embeddings, &st.Runs)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}

// Run operations

// SaveRun inserts or updates a run. created_at is kept from the first save.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *RunRecord) error {
	var summary sql.NullString
	if run.Summary != nil {
		b, err := json.Marshal(run.Summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		summary = sql.NullString{String: string(b), Valid: true}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	var completed sql.NullString
	if run.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*run.CompletedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, root_path, state, files_discovered, files_to_process, cancelled, summary, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root_path = excluded.root_path,
			state = excluded.state,
			files_discovered = excluded.files_discovered,
			files_to_process = excluded.files_to_process,
			cancelled = excluded.cancelled,
			summary = excluded.summary,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, run.ID, run.Root, string(run.State), run.FilesDiscovered, run.FilesToProcess, run.Cancelled,
		summary, sql.NullString{String: run.Error, Valid: run.Error != ""},
		formatTime(run.CreatedAt), completed)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runColumns = `id, root_path, state, files_discovered, files_to_process, cancelled, summary, error, created_at, completed_at`

func scanRun(row interface{ Scan(...any) error }) (*RunRecord, error) {
	var run RunRecord
	var state, created string
	var summary, errMsg, completed sql.NullString
	if err := row.Scan(&run.ID, &run.Root, &state, &run.FilesDiscovered, &run.FilesToProcess,
		&run.Cancelled, &summary, &errMsg, &created, &completed); err != nil {
		return nil, err
	}
	run.State = types.RunState(state)
	run.Error = errMsg.String
	run.CreatedAt = parseTime(created)
	if completed.Valid {
		t := parseTime(completed.String)
		run.CompletedAt = &t
	}
	if summary.Valid {
		run.Summary = &types.ProcessingSummary{}
		if err := json.Unmarshal([]byte(summary.String), run.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
	}
	return &run, nil
}

// GetRun loads a run by id
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveFileResult records one file outcome of a run. The run must exist.
func (s *SQLiteStorage) SaveFileResult(ctx context.Context, runID string, res types.FileProcessingResult) error {
	var warnings sql.NullString
	if len(res.Warnings) > 0 {
		b, err := json.Marshal(res.Warnings)
		if err != nil {
			return fmt.Errorf("failed to encode warnings: %w", err)
		}
		warnings = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO run_files
			(run_id, relative_path, status, size_bytes, elements, chunks, embeddings, complexity, processing_ms, error, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, res.RelativePath, string(res.Status), res.FileSize, res.ElementsExtracted, res.ChunksCreated,
		res.EmbeddingsGenerated, res.Complexity, res.ProcessingTimeMs,
		sql.NullString{String: res.ErrorMessage, Valid: res.ErrorMessage != ""}, warnings)
	if err != nil {
		return fmt.Errorf("failed to save file result: %w", err)
	}
	return nil
}

// ListRunFiles returns the recorded file outcomes of a run ordered by path
func (s *SQLiteStorage) ListRunFiles(ctx context.Context, runID string) ([]types.FileProcessingResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relative_path, status, size_bytes, elements, chunks, embeddings, complexity, processing_ms, error, warnings
		FROM run_files
		WHERE run_id = ?
		ORDER BY relative_path
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.FileProcessingResult
	for rows.Next() {
		var r types.FileProcessingResult
		var status string
		var errMsg, warnings sql.NullString
		if err := rows.Scan(&r.RelativePath, &status, &r.FileSize, &r.ElementsExtracted, &r.ChunksCreated,
			&r.EmbeddingsGenerated, &r.Complexity, &r.ProcessingTimeMs, &errMsg, &warnings); err != nil {
			return nil, err
		}
		r.Status = types.ProcessingStatus(status)
		r.ErrorMessage = errMsg.String
		if warnings.Valid {
			if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
				return nil, fmt.Errorf("failed to decode warnings: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
