package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/chunker"
	"github.com/dshills/pyingest/internal/orchestrator"
	"github.com/dshills/pyingest/internal/searcher"
	"github.com/dshills/pyingest/internal/source"
	"github.com/dshills/pyingest/internal/storage"
	"github.com/dshills/pyingest/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams       = -32602 // Invalid method parameters
	ErrorCodeInternalError       = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound        = -32001 // Path does not exist or is unreadable
	ErrorCodeIngestionInProgress = -32002 // Another ingestion run is already active
	ErrorCodeRunNotFound         = -32003 // Unknown run id
	ErrorCodeEmptyQuery          = -32004 // Query parameter is empty
)

const (
	maxSearchLimit = 100
	maxBatchSize   = 100
)

// handleIngestRepository handles the ingest_repository tool invocation
func (s *Server) handleIngestRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	kind, err := source.ParseKind(getStringDefault(args, "repository_source", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid repository_source", map[string]interface{}{
			"param":  "repository_source",
			"reason": err.Error(),
		})
	}
	if !kind.Remote() {
		if err := validateDir(path); err != nil {
			code := ErrorCodeInvalidParams
			if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
				code = ErrorCodePathNotFound
			}
			return nil, newMCPError(code, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": err.Error(),
			})
		}
	}

	opts, err := s.ingestOptions(args)
	if err != nil {
		return nil, err
	}
	if s.orch.Active() {
		return nil, ingestError(nil, orchestrator.ErrRunInProgress)
	}

	checkout, err := s.resolver.Resolve(ctx, kind, path)
	if err != nil {
		if errors.Is(err, source.ErrInvalidURL) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid repository URL", map[string]interface{}{
				"param":  "path",
				"reason": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to fetch repository", map[string]interface{}{
			"repository_source": string(kind),
			"error":             err.Error(),
		})
	}
	if kind.Remote() {
		opts.Metadata = withSource(opts.Metadata, kind, path)
	}

	if getBoolDefault(args, "process_async", false) {
		run, err := s.orch.Start(ctx, checkout.Root, opts)
		if err != nil {
			_ = checkout.Close()
			return nil, ingestError(run, err)
		}
		go func() {
			<-run.Done()
			_ = checkout.Close()
		}()
		st := run.Status()
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"run_id":            st.RunID,
			"state":             st.State,
			"process_async":     true,
			"repository_source": kind,
			"files_discovered":  st.FilesDiscovered,
			"files_to_process":  st.FilesToProcess,
			"message":           "Processing started. Use get_ingestion_status to follow progress.",
		})), nil
	}

	defer func() { _ = checkout.Close() }()
	run, err := s.orch.Ingest(ctx, checkout.Root, opts)
	if err != nil {
		return nil, ingestError(run, err)
	}
	st := run.Status()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"run_id":            st.RunID,
		"state":             st.State,
		"repository_source": kind,
		"cancelled":         st.Cancelled,
		"summary":           st.Summary,
	})), nil
}

// withSource copies metadata and records where a cloned repository came from
func withSource(metadata map[string]any, kind source.Kind, url string) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	out["repository_source"] = string(kind)
	out["repository_url"] = source.RedactURL(url)
	return out
}

// ingestOptions overlays tool arguments on the server defaults
func (s *Server) ingestOptions(args map[string]interface{}) (orchestrator.Options, error) {
	opts := s.defaults

	include, err := getStringSlice(args, "include_patterns")
	if err != nil {
		return opts, err
	}
	if include != nil {
		opts.Discovery.IncludePatterns = include
	}
	exclude, err := getStringSlice(args, "exclude_patterns")
	if err != nil {
		return opts, err
	}
	if exclude != nil {
		opts.Discovery.ExcludePatterns = exclude
	}

	if maxFiles := getIntDefault(args, "max_files", opts.Discovery.MaxFileCount); maxFiles != opts.Discovery.MaxFileCount {
		if maxFiles < 1 {
			return opts, newMCPError(ErrorCodeInvalidParams, "max_files must be at least 1", map[string]interface{}{
				"param": "max_files",
				"value": maxFiles,
			})
		}
		opts.Discovery.MaxFileCount = maxFiles
	}
	if maxSize := getIntDefault(args, "max_file_size", int(opts.Discovery.MaxFileSize)); int64(maxSize) != opts.Discovery.MaxFileSize {
		if maxSize < 1 {
			return opts, newMCPError(ErrorCodeInvalidParams, "max_file_size must be at least 1", map[string]interface{}{
				"param": "max_file_size",
				"value": maxSize,
			})
		}
		opts.Discovery.MaxFileSize = int64(maxSize)
	}
	if batch := getIntDefault(args, "batch_size", opts.BatchSize); batch != opts.BatchSize {
		if batch < 1 || batch > maxBatchSize {
			return opts, newMCPError(ErrorCodeInvalidParams, "batch_size must be between 1 and 100", map[string]interface{}{
				"param": "batch_size",
				"value": batch,
			})
		}
		opts.BatchSize = batch
	}
	return opts, nil
}

func ingestError(run *orchestrator.Run, err error) error {
	if errors.Is(err, orchestrator.ErrRunInProgress) {
		return newMCPError(ErrorCodeIngestionInProgress, "an ingestion run is already in progress", nil)
	}
	data := map[string]interface{}{"error": err.Error()}
	if run != nil {
		data["run_id"] = run.ID
	}
	return newMCPError(ErrorCodeInternalError, "ingestion failed", data)
}

// handleGetIngestionStatus handles the get_ingestion_status tool invocation
func (s *Server) handleGetIngestionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok && request.Params.Arguments != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	runID := getStringDefault(args, "run_id", "")
	if runID == "" {
		runs := s.orch.Runs()
		statuses := make([]orchestrator.RunStatus, 0, len(runs))
		for _, r := range runs {
			statuses = append(statuses, r.Status())
		}
		stats, err := s.backend.Stats(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to read storage stats", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"active":  s.orch.Active(),
			"runs":    statuses,
			"storage": stats,
		})), nil
	}

	run, err := s.orch.Run(runID)
	if err == nil {
		return mcp.NewToolResultText(formatJSON(run.Status())), nil
	}

	if s.runs != nil {
		rec, histErr := s.runs.GetRun(ctx, runID)
		if histErr == nil {
			return mcp.NewToolResultText(formatJSON(map[string]interface{}{
				"run_id":           rec.ID,
				"root":             rec.Root,
				"state":            rec.State,
				"files_discovered": rec.FilesDiscovered,
				"files_to_process": rec.FilesToProcess,
				"cancelled":        rec.Cancelled,
				"started_at":       rec.CreatedAt,
				"completed_at":     rec.CompletedAt,
				"summary":          rec.Summary,
				"error":            rec.Error,
				"from_history":     true,
			})), nil
		}
		if !errors.Is(histErr, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeInternalError, "failed to read run history", map[string]interface{}{
				"error": histErr.Error(),
			})
		}
	}

	return nil, newMCPError(ErrorCodeRunNotFound, "run not found", map[string]interface{}{
		"param": "run_id",
		"value": runID,
	})
}

// handleParsePython handles the parse_python tool invocation
func (s *Server) handleParsePython(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	src, hasSource := args["source"].(string)
	path, hasPath := args["path"].(string)
	hasPath = hasPath && path != ""
	if hasSource == hasPath {
		return nil, newMCPError(ErrorCodeInvalidParams, "exactly one of source or path is required", map[string]interface{}{
			"param": "source|path",
		})
	}

	var result *types.ParsingResult
	if hasPath {
		if err := validateFile(path); err != nil {
			code := ErrorCodeInvalidParams
			if errors.Is(err, ErrPathNotFound) {
				code = ErrorCodePathNotFound
			}
			return nil, newMCPError(code, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": err.Error(),
			})
		}
		result = s.parser.ParseFile(ctx, path)
	} else {
		result = s.parser.ParseSource(ctx, []byte(src), "")
	}

	includeSource := getBoolDefault(args, "include_source", false)
	elements := make([]map[string]interface{}, 0, len(result.Elements))
	for _, el := range result.Elements {
		elements = append(elements, elementView(el, includeSource))
	}

	s.logger.WithFields(logrus.Fields{
		"file":     result.FilePath,
		"elements": len(elements),
		"success":  result.Success,
	}).Debug("parse_python")

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"success":         result.Success,
		"file_path":       result.FilePath,
		"total_lines":     result.TotalLines,
		"element_count":   result.ElementCount(),
		"function_count":  result.FunctionCount(),
		"method_count":    result.MethodCount(),
		"class_count":     result.ClassCount(),
		"mean_complexity": result.MeanComplexity(),
		"elements":        elements,
		"errors":          result.Errors,
		"warnings":        result.Warnings,
	})), nil
}

func elementView(el *types.CodeElement, includeSource bool) map[string]interface{} {
	v := map[string]interface{}{
		"element_type":     el.ElementType,
		"name":             el.Name,
		"qualified_name":   el.QualifiedName,
		"line_start":       el.LineStart,
		"line_end":         el.LineEnd,
		"complexity_score": el.Complexity,
		"tags":             el.Tags,
		"content_hash":     el.ContentHash,
	}
	if el.Signature != "" {
		v["signature"] = el.Signature
	}
	if el.Docstring != "" {
		v["docstring"] = el.Docstring
	}
	if el.ParentClass != "" {
		v["parent_class"] = el.ParentClass
	}
	if len(el.Decorators) > 0 {
		v["decorators"] = el.Decorators
	}
	if len(el.Dependencies) > 0 {
		v["dependencies"] = el.Dependencies
	}
	if len(el.Imports) > 0 {
		v["imports"] = el.Imports
	}
	if includeSource {
		v["source_text"] = el.SourceText
	}
	return v
}

// handleChunkText handles the chunk_text tool invocation
func (s *Server) handleChunkText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or not a string",
		})
	}

	size := getIntDefault(args, "chunk_size", s.chunker.Config().TargetSize)
	if size < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunk_size must be at least 1", map[string]interface{}{
			"param": "chunk_size",
			"value": size,
		})
	}

	if getBoolDefault(args, "clean", false) {
		text = chunker.Clean(text)
	}

	chunks := s.chunker.ChunkWithTarget(text, size)
	views := make([]map[string]interface{}, len(chunks))
	for i, c := range chunks {
		views[i] = map[string]interface{}{
			"index":            i,
			"content":          c,
			"char_count":       len([]rune(c)),
			"estimated_tokens": chunker.EstimateTokens(c),
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"chunk_size":  size,
		"chunk_count": len(chunks),
		"chunks":      views,
	})), nil
}

// handleSearchChunks handles the search_chunks tool invocation
func (s *Server) handleSearchChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", storage.DefaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.Mode(getStringDefault(args, "mode", string(searcher.ModeHybrid)))
	switch mode {
	case searcher.ModeHybrid, searcher.ModeVector, searcher.ModeKeyword:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "mode must be hybrid, vector or keyword", map[string]interface{}{
			"param": "mode",
			"value": mode,
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		UseCache: s.cache,
	})
	if errors.Is(err, storage.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query has no searchable terms", map[string]interface{}{
			"param": "query",
			"value": query,
		})
	}
	if errors.Is(err, searcher.ErrNoEmbedder) {
		return nil, newMCPError(ErrorCodeInvalidParams, "vector search needs an embedding provider", map[string]interface{}{
			"param": "mode",
			"value": mode,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	results := resp.Results

	hits := make([]map[string]interface{}, len(results))
	for i, r := range results {
		hits[i] = map[string]interface{}{
			"rank":      i + 1,
			"ref":       r.Ref,
			"file_path": r.FilePath,
			"tier":      r.Tier,
			"score":     r.Score,
			"content":   r.Content,
			"metadata":  r.Metadata,
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":     query,
		"mode":      resp.Mode,
		"cache_hit": resp.CacheHit,
		"count":     len(hits),
		"results":   hits,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// checkPath verifies path is absolute and can be stat'ed
func checkPath(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}
	return info, nil
}

// validateDir checks that path is a readable directory
func validateDir(path string) error {
	info, err := checkPath(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// validateFile checks that path is a regular file
func validateFile(path string) error {
	info, err := checkPath(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return ErrIsDirectory
	}
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings. A missing key yields
// nil; an empty array yields an empty non-nil slice.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case []string:
		return append([]string{}, v...), nil
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
			"param": key,
		})
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
				"param": key,
			})
		}
		out = append(out, str)
	}
	return out, nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrIsDirectory     = errors.New("path is a directory")
)
