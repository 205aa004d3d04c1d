package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/pkg/types"
)

var (
	bucketChunks     = []byte("chunks")
	bucketEmbeddings = []byte("embeddings")
)

// BoltStorage implements Backend on a single bbolt file. Searches scan every
// record, which suits small and medium repositories.
type BoltStorage struct {
	db     *bbolt.DB
	logger *logrus.Logger
}

// NewBoltStorage opens or creates the bbolt file at path
func NewBoltStorage(path string, logger *logrus.Logger) (*BoltStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketChunks, bucketEmbeddings} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	s := &BoltStorage{db: db, logger: logging.OrDiscard(logger)}
	s.logger.WithField("path", path).Debug("Opened bolt storage")
	return s, nil
}

// Close closes the database file
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// Store persists one chunk as a JSON record keyed by a new reference
func (s *BoltStorage) Store(ctx context.Context, chunk string, tier types.Tier, metadata map[string]any, embedding []float32) (string, error) {
	if strings.TrimSpace(chunk) == "" {
		return "", ErrEmptyChunk
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec := newChunkRecord(uuid.NewString(), chunk, tier, metadata, nil)
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode chunk: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketChunks).Put([]byte(rec.Ref), data); err != nil {
			return err
		}
		if len(embedding) > 0 {
			return tx.Bucket(bucketEmbeddings).Put([]byte(rec.Ref), serializeVector(embedding))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store chunk: %w", err)
	}
	return rec.Ref, nil
}

// GetChunk loads a stored chunk by reference
func (s *BoltStorage) GetChunk(ctx context.Context, ref string) (*ChunkRecord, error) {
	var rec ChunkRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(ref))
		if data == nil {
			return fmt.Errorf("chunk %s: %w", ref, ErrNotFound)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to decode chunk: %w", err)
		}
		if blob := tx.Bucket(bucketEmbeddings).Get([]byte(ref)); blob != nil {
			rec.Embedding = deserializeVector(blob)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SearchText scores every chunk containing all query terms by term
// frequency
func (s *BoltStorage) SearchText(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}

	var results []SearchResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec ChunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode chunk %s: %w", k, err)
			}
			score := termScore(rec.Content+" "+rec.FilePath, terms)
			if score > 0 {
				results = append(results, resultFrom(&rec, score))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return topResults(results, limit), nil
}

// SearchVector ranks stored embeddings of the same dimension by cosine
// similarity
func (s *BoltStorage) SearchVector(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyQuery
	}

	var results []SearchResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		return tx.Bucket(bucketEmbeddings).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(v) != len(vector)*4 {
				return nil
			}
			data := chunks.Get(k)
			if data == nil {
				return nil
			}
			var rec ChunkRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("failed to decode chunk %s: %w", k, err)
			}
			results = append(results, resultFrom(&rec, cosineSimilarity(vector, deserializeVector(v))))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return topResults(results, limit), nil
}

// Stats counts stored chunks and embeddings
func (s *BoltStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: BackendBolt}
	err := s.db.View(func(tx *bbolt.Tx) error {
		st.Chunks = tx.Bucket(bucketChunks).Stats().KeyN
		st.Embeddings = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func resultFrom(rec *ChunkRecord, score float64) SearchResult {
	return SearchResult{
		Ref:      rec.Ref,
		FilePath: rec.FilePath,
		Tier:     rec.Tier,
		Content:  rec.Content,
		Score:    score,
		Metadata: rec.Metadata,
	}
}
