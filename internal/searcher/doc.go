// Package searcher ranks stored chunks for a free-text query.
//
// Three modes are supported:
//
//   - keyword: term search through the backend's SearchText
//   - vector: cosine similarity of the query embedding through SearchVector
//   - hybrid: both at once, fused with Reciprocal Rank Fusion
//
// Hybrid is the default. Without an embedding provider it degrades to
// keyword ranking and reports ModeKeyword in the response.
//
// # Reciprocal Rank Fusion
//
// Each list contributes 1/(k + rank) to a chunk's score, with k = 60 unless
// the request overrides it. Chunks found by both searches rise to the top.
// Each side fetches twice the requested limit before fusion.
//
// # Caching
//
// Requests with UseCache set are answered from an LRU cache of 1000
// responses keyed by query, mode, limit and k. Entries expire after the
// request's CacheTTL. A Searcher registered as a progress sink drops the
// whole cache when an ingestion run completes.
//
// Usage:
//
//	s := searcher.New(backend, optionalEmbedder)
//	resp, err := s.Search(ctx, searcher.Request{Query: "parse config", Limit: 5})
package searcher
