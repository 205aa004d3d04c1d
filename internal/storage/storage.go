package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuery is returned for searches without usable terms
	ErrEmptyQuery = errors.New("empty search query")
	// ErrEmptyChunk is returned when asked to store blank content
	ErrEmptyChunk = errors.New("chunk content is empty")
)

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Backend persists chunks and answers searches over them. Store matches the
// pipeline's storage sink contract.
type Backend interface {
	Store(ctx context.Context, chunk string, tier types.Tier, metadata map[string]any, embedding []float32) (string, error)
	GetChunk(ctx context.Context, ref string) (*ChunkRecord, error)
	SearchText(ctx context.Context, query string, limit int) ([]SearchResult, error)
	SearchVector(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// RunStore persists run history. Only the SQLite backend implements it.
type RunStore interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	SaveFileResult(ctx context.Context, runID string, res types.FileProcessingResult) error
	ListRunFiles(ctx context.Context, runID string) ([]types.FileProcessingResult, error)
}

// Config selects and locates a backend
type Config struct {
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}

// Open opens the configured backend
func Open(ctx context.Context, cfg Config, logger *logrus.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		return NewSQLiteStorage(ctx, cfg.Path, logger)
	case BackendBolt:
		return NewBoltStorage(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ChunkRecord is one stored chunk
type ChunkRecord struct {
	Ref         string         `json:"ref"`
	RunID       string         `json:"run_id,omitempty"`
	FilePath    string         `json:"file_path"`
	ChunkIndex  int            `json:"chunk_index"`
	Tier        types.Tier     `json:"tier"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	Embedding   []float32      `json:"embedding,omitempty"`
}

// SearchResult is one ranked search hit. Higher scores are better.
type SearchResult struct {
	Ref      string         `json:"ref"`
	FilePath string         `json:"file_path"`
	Tier     types.Tier     `json:"tier"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunRecord is the persisted form of one ingestion run
type RunRecord struct {
	ID              string                   `json:"id"`
	Root            string                   `json:"root"`
	State           types.RunState           `json:"state"`
	FilesDiscovered int                      `json:"files_discovered"`
	FilesToProcess  int                      `json:"files_to_process"`
	Cancelled       bool                     `json:"cancelled"`
	Summary         *types.ProcessingSummary `json:"summary,omitempty"`
	Error           string                   `json:"error,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	CompletedAt     *time.Time               `json:"completed_at,omitempty"`
}

// Stats counts stored entities
type Stats struct {
	Backend    string `json:"backend"`
	Chunks     int    `json:"chunks"`
	Embeddings int    `json:"embeddings"`
	Runs       int    `json:"runs"`
}

// newChunkRecord derives the stored record from a Store call. run_id,
// file_path and chunk_index are lifted out of the metadata.
func newChunkRecord(ref, chunk string, tier types.Tier, metadata map[string]any, embedding []float32) *ChunkRecord {
	rec := &ChunkRecord{
		Ref:         ref,
		Tier:        tier,
		Content:     chunk,
		ContentHash: ContentHash(chunk),
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
		Embedding:   embedding,
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	if s, ok := metadata["run_id"].(string); ok {
		rec.RunID = s
	}
	if s, ok := metadata["file_path"].(string); ok {
		rec.FilePath = s
	}
	switch v := metadata["chunk_index"].(type) {
	case int:
		rec.ChunkIndex = v
	case float64:
		rec.ChunkIndex = int(v)
	}
	return rec
}

// ContentHash returns the xxhash64 of content as 16 hex digits
func ContentHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}
