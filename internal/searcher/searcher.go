package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/pyingest/internal/storage"
	"github.com/dshills/pyingest/pkg/types"
)

// Mode defines how a search is ranked
type Mode string

const (
	ModeHybrid  Mode = "hybrid"  // vector + keyword fused with RRF
	ModeVector  Mode = "vector"  // embedding similarity only
	ModeKeyword Mode = "keyword" // term search only
)

const (
	// DefaultRRFConstant is the k of Reciprocal Rank Fusion
	DefaultRRFConstant = 60
	// DefaultCacheTTL bounds how long a cached response is served
	DefaultCacheTTL = 5 * time.Minute
	// MaxLimit caps results per request
	MaxLimit = 100

	cacheEntries = 1000
)

// ErrNoEmbedder is returned for vector searches without an embedding provider
var ErrNoEmbedder = errors.New("vector search needs an embedding provider")

// QueryEmbedder turns a query into a vector. *embedder.Optional satisfies it.
type QueryEmbedder interface {
	Enabled() bool
	Embed(ctx context.Context, text, hint string) []float32
}

// Request contains parameters for a search
type Request struct {
	Query       string
	Limit       int
	Mode        Mode
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64
}

// Response contains ranked results and search metadata
type Response struct {
	Results       []storage.SearchResult `json:"results"`
	TotalResults  int                    `json:"total_results"`
	Mode          Mode                   `json:"mode"`
	Duration      time.Duration          `json:"duration_ns"`
	CacheHit      bool                   `json:"cache_hit"`
	VectorResults int                    `json:"vector_results"`
	TextResults   int                    `json:"text_results"`
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher runs keyword, vector and hybrid searches over a storage backend.
// It also implements the orchestrator progress sink and drops its cache
// whenever a run completes, since new chunks change every ranking.
type Searcher struct {
	backend  storage.Backend
	embedder QueryEmbedder
	cache    *lru.Cache[uint64, *cacheEntry]
	cacheMu  sync.Mutex
}

// New creates a Searcher. emb may be nil, in which case hybrid searches fall
// back to keyword ranking and vector searches fail with ErrNoEmbedder.
func New(backend storage.Backend, emb QueryEmbedder) *Searcher {
	cache, err := lru.New[uint64, *cacheEntry](cacheEntries)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{backend: backend, embedder: emb, cache: cache}
}

// VectorEnabled reports whether vector ranking is available
func (s *Searcher) VectorEnabled() bool {
	return s.embedder != nil && s.embedder.Enabled()
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	if req.UseCache {
		if cached := s.cached(key); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var (
		resp *Response
		err  error
	)
	switch req.Mode {
	case ModeHybrid:
		resp, err = s.hybridSearch(ctx, req)
	case ModeVector:
		resp, err = s.vectorSearch(ctx, req)
	case ModeKeyword:
		resp, err = s.keywordSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if resp.Mode == "" {
		resp.Mode = req.Mode
	}
	resp.TotalResults = len(resp.Results)
	resp.Duration = time.Since(start)

	if req.UseCache && len(resp.Results) > 0 {
		s.store(key, resp, req.CacheTTL)
	}
	return resp, nil
}

// normalize validates req and fills defaults
func (s *Searcher) normalize(req *Request) error {
	if req.Query == "" {
		return storage.ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = storage.DefaultSearchLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	switch req.Mode {
	case "":
		req.Mode = ModeHybrid
	case ModeHybrid, ModeVector, ModeKeyword:
	default:
		return fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if req.Mode == ModeVector && !s.VectorEnabled() {
		return ErrNoEmbedder
	}
	if req.RRFConstant <= 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

type searchResult struct {
	results []storage.SearchResult
	err     error
}

func (s *Searcher) runVectorSearch(ctx context.Context, req Request, limit int, out chan<- searchResult) {
	var res searchResult
	if vector := s.embedder.Embed(ctx, req.Query, "query"); vector == nil {
		res.err = fmt.Errorf("failed to generate query embedding")
	} else {
		res.results, res.err = s.backend.SearchVector(ctx, vector, limit)
	}
	out <- res
}

func (s *Searcher) runTextSearch(ctx context.Context, req Request, limit int, out chan<- searchResult) {
	var res searchResult
	res.results, res.err = s.backend.SearchText(ctx, req.Query, limit)
	out <- res
}

// hybridSearch runs both searches concurrently and fuses them. One side may
// fail; the other still ranks.
func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	if !s.VectorEnabled() {
		resp, err := s.keywordSearch(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.Mode = ModeKeyword
		return resp, nil
	}

	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)
	go s.runVectorSearch(ctx, req, req.Limit*2, vectorChan)
	go s.runTextSearch(ctx, req, req.Limit*2, textChan)

	var vectorRes, textRes searchResult
	for range 2 {
		select {
		case vectorRes = <-vectorChan:
		case textRes = <-textChan:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%w", vectorRes.err, textRes.err)
	}

	fused := applyRRF(req.RRFConstant, vectorRes.results, textRes.results)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}
	return &Response{
		Results:       fused,
		VectorResults: len(vectorRes.results),
		TextResults:   len(textRes.results),
	}, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req Request) (*Response, error) {
	out := make(chan searchResult, 1)
	s.runVectorSearch(ctx, req, req.Limit, out)
	res := <-out
	if res.err != nil {
		return nil, res.err
	}
	return &Response{Results: res.results, VectorResults: len(res.results)}, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, req Request) (*Response, error) {
	results, err := s.backend.SearchText(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results, TextResults: len(results)}, nil
}

// applyRRF fuses ranked lists with Reciprocal Rank Fusion:
// score(d) = sum over lists of 1/(k + rank(d))
func applyRRF(k float64, lists ...[]storage.SearchResult) []storage.SearchResult {
	scores := make(map[string]float64)
	hits := make(map[string]storage.SearchResult)
	for _, list := range lists {
		for rank, r := range list {
			scores[r.Ref] += 1.0 / (k + float64(rank+1))
			if _, ok := hits[r.Ref]; !ok {
				hits[r.Ref] = r
			}
		}
	}

	fused := make([]storage.SearchResult, 0, len(hits))
	for ref, r := range hits {
		r.Score = scores[ref]
		fused = append(fused, r)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Ref < fused[j].Ref
	})
	return fused
}

func cacheKey(req Request) uint64 {
	return xxhash.Sum64String(req.Query + "|" + string(req.Mode) + "|" + strconv.Itoa(req.Limit) +
		"|" + strconv.FormatFloat(req.RRFConstant, 'f', -1, 64))
}

func (s *Searcher) cached(key uint64) *Response {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil
	}
	return copyResponse(entry.response)
}

func (s *Searcher) store(key uint64, resp *Response, ttl time.Duration) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Add(key, &cacheEntry{response: copyResponse(resp), expiresAt: time.Now().Add(ttl)})
}

// copyResponse copies results so cached entries are never shared with callers
func copyResponse(src *Response) *Response {
	dst := *src
	dst.Results = make([]storage.SearchResult, len(src.Results))
	for i, r := range src.Results {
		if r.Metadata != nil {
			md := make(map[string]any, len(r.Metadata))
			for k, v := range r.Metadata {
				md[k] = v
			}
			r.Metadata = md
		}
		dst.Results[i] = r
	}
	return &dst
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Len()
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

func (s *Searcher) OnDiscovery(types.DiscoveryEvent) {}

func (s *Searcher) OnFile(types.FileEvent) {}

func (s *Searcher) OnRunComplete(types.RunEvent) { s.InvalidateCache() }
