package embedder

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
)

// Optional adapts an Embedder to the pipeline's best-effort contract: a
// failed or disabled embedding yields a nil vector and never an error.
type Optional struct {
	emb       Embedder
	logger    *logrus.Logger
	onFailure func(error)
}

// NewOptional wraps emb. A nil emb produces no embeddings. onFailure, when
// set, is called once per failed request.
func NewOptional(emb Embedder, logger *logrus.Logger, onFailure func(error)) *Optional {
	return &Optional{
		emb:       emb,
		logger:    logging.OrDiscard(logger),
		onFailure: onFailure,
	}
}

// Enabled reports whether an underlying provider is configured
func (o *Optional) Enabled() bool {
	return o != nil && o.emb != nil
}

// Embed returns the embedding of text, or nil on any failure
func (o *Optional) Embed(ctx context.Context, text, hint string) []float32 {
	if !o.Enabled() || strings.TrimSpace(text) == "" {
		return nil
	}

	emb, err := o.emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Hint: hint})
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"provider": o.emb.Provider(),
			"hint":     hint,
		}).Warn("Embedding failed, storing chunk without vector")
		if o.onFailure != nil {
			o.onFailure(err)
		}
		return nil
	}
	return emb.Vector
}

// Close closes the underlying provider
func (o *Optional) Close() error {
	if !o.Enabled() {
		return nil
	}
	return o.emb.Close()
}
