// Package embedder generates vector embeddings for ingested chunks.
//
// Two provider families are supported:
//
//   - APIProvider talks to any OpenAI-compatible embeddings endpoint through
//     go-openai. OpenAI and Jina AI are preconfigured; a local model server
//     works by setting BaseURL.
//   - LocalProvider hashes tokens into signed buckets. It needs no network
//     and is deterministic, which makes it the offline default.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "auto"})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "def parse(path): ...",
//	    Hint: embedder.HintCode,
//	})
//
// # Pipeline Integration
//
// The ingestion pipeline treats embeddings as optional. Optional wraps an
// Embedder so that failures are logged and produce a nil vector:
//
//	opt := embedder.NewOptional(emb, logger, nil)
//	o := orchestrator.New(p, c, opt, sink)
//
// # Caching
//
// Successful embeddings are cached in an LRU keyed by the xxhash of model and
// text. Cached vectors are copied on read.
//
// # Retry and Rate Limiting
//
// API calls retry with exponential backoff on network errors, 5xx responses
// and 429. Other 4xx responses fail immediately. RequestsPerSecond enables a
// token bucket limiter shared by all calls of one provider.
package embedder
