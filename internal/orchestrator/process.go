package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pyingest/internal/chunker"
	"github.com/dshills/pyingest/pkg/types"
)

// Embedding hints passed to the Embedder
const (
	HintCode = "code"
	HintText = "text"
)

// fileProcessor holds the per-run collaborators of file processing
type fileProcessor struct {
	o       *Orchestrator
	runID   string
	chunker *chunker.Chunker
	extra   map[string]any
}

func (o *Orchestrator) fileProcessor(runID string, opts Options) *fileProcessor {
	c := o.chunker
	if opts.ChunkTargetSize > 0 || opts.MinChunkSize != 0 || opts.MaxChunks > 0 {
		cfg := c.Config()
		if opts.ChunkTargetSize > 0 {
			cfg.TargetSize = opts.ChunkTargetSize
		}
		if opts.MinChunkSize != 0 {
			cfg.MinChunkSize = opts.MinChunkSize
		}
		if opts.MaxChunks > 0 {
			cfg.MaxChunks = opts.MaxChunks
		}
		c = chunker.New(cfg, o.logger)
	}
	return &fileProcessor{o: o, runID: runID, chunker: c, extra: opts.Metadata}
}

// runBatch processes one batch concurrently and returns when every file has
// resolved
func (o *Orchestrator) runBatch(ctx context.Context, run *Run, fp *fileProcessor, batch []types.DiscoveredFile, limit int) {
	g := new(errgroup.Group)
	g.SetLimit(limit)

	// events are emitted in record order
	var mu sync.Mutex
	for _, f := range batch {
		g.Go(func() error {
			res := fp.process(ctx, f)
			mu.Lock()
			o.progress.OnFile(run.record(res))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// candidate is one chunk waiting to be embedded and stored
type candidate struct {
	text string
	meta map[string]any
}

// process handles one file. Failures are recorded in the result, never
// returned.
func (fp *fileProcessor) process(ctx context.Context, f types.DiscoveredFile) (res types.FileProcessingResult) {
	start := time.Now()
	res = types.FileProcessingResult{
		FilePath:     f.AbsolutePath,
		RelativePath: f.RelativePath,
		FileSize:     f.SizeBytes,
		Status:       types.StatusProcessing,
	}
	defer func() {
		res.ProcessingTimeMs = time.Since(start).Milliseconds()
	}()

	data, err := os.ReadFile(f.AbsolutePath)
	if err != nil {
		perr := types.NewProcessingError(types.ErrIO, f.RelativePath, err)
		fp.o.logger.WithError(perr).WithField("file", f.RelativePath).Error("Error processing file")
		res.Status = types.StatusFailed
		res.ErrorMessage = fmt.Sprintf("failed to read file: %v", err)
		return res
	}
	content := strings.ToValidUTF8(string(data), "")

	tier := types.TierSemantic
	hint := HintText
	var candidates []candidate

	if f.IsCode {
		tier = types.TierProcedural
		hint = HintCode
		candidates = fp.codeCandidates(ctx, f, content, &res)
	}
	if len(candidates) == 0 && res.ElementsExtracted == 0 {
		candidates = fp.textCandidates(content)
	}

	res.ChunksCreated = len(candidates)
	fp.store(ctx, f, tier, hint, candidates, &res)

	if len(candidates) > 0 && len(res.StorageRefs) == 0 {
		res.Status = types.StatusFailed
		res.ErrorMessage = fmt.Sprintf("storage failed for all %d chunks", len(candidates))
		return res
	}
	res.Status = types.StatusCompleted
	return res
}

// storeFailurePrefix starts the warning recorded for a chunk the sink rejected
const storeFailurePrefix = "Failed to store chunk"

// codeCandidates parses the file and chunks each element's searchable
// rendering. A failed parse records its diagnostics and yields nothing, so
// the caller falls back to text.
func (fp *fileProcessor) codeCandidates(ctx context.Context, f types.DiscoveredFile, content string, res *types.FileProcessingResult) []candidate {
	pr := fp.o.parser.ParseSource(ctx, []byte(content), f.RelativePath)
	if pr.HasErrors() {
		res.Warnings = append(res.Warnings, pr.Errors...)
		fp.o.logger.WithFields(logrus.Fields{
			"file": f.RelativePath,
			"kind": types.ErrSyntax.Error(),
		}).Warn("Parse failed, processing as text")
		return nil
	}
	res.Warnings = append(res.Warnings, pr.Warnings...)
	res.ElementsExtracted = len(pr.Elements)
	res.Complexity = pr.MeanComplexity()
	if len(pr.Elements) > 0 {
		res.ElementTypes = pr.ElementTypeCounts()
	}

	var out []candidate
	for _, el := range pr.Elements {
		for _, chunk := range fp.chunker.Chunk(chunker.StripControl(el.SearchableContent())) {
			out = append(out, candidate{text: chunk, meta: elementMetadata(el)})
		}
	}
	return out
}

func (fp *fileProcessor) textCandidates(content string) []candidate {
	stats := chunker.Analyze(content).Map()
	chunks := fp.chunker.Chunk(chunker.Clean(content))
	out := make([]candidate, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, candidate{text: chunk, meta: map[string]any{"content_stats": stats}})
	}
	return out
}

// store embeds and stores each candidate. Per-chunk failures become warnings.
func (fp *fileProcessor) store(ctx context.Context, f types.DiscoveredFile, tier types.Tier, hint string, candidates []candidate, res *types.FileProcessingResult) {
	total := len(candidates)
	for i, c := range candidates {
		base := make(map[string]any, len(fp.extra)+len(c.meta)+6)
		for k, v := range fp.extra {
			base[k] = v
		}
		for k, v := range c.meta {
			base[k] = v
		}
		base["file_path"] = f.RelativePath
		base["chunk_index"] = i
		base["total_chunks"] = total
		base["file_size"] = f.SizeBytes
		base["run_id"] = fp.runID
		base["tier"] = string(tier)
		md := chunker.Metadata(base, i, total, nil)

		embedding := fp.o.embedder.Embed(ctx, c.text, hint)
		if embedding != nil {
			res.EmbeddingsGenerated++
		}

		ref, err := fp.o.sink.Store(ctx, c.text, tier, md, embedding)
		if err != nil {
			perr := types.NewProcessingError(types.ErrCollaborator, f.RelativePath, err)
			fp.o.logger.WithError(perr).WithFields(logrus.Fields{
				"file":  f.RelativePath,
				"chunk": i,
			}).Warn("Failed to store chunk")
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s %d: %v", storeFailurePrefix, i, err))
			continue
		}
		res.StorageRefs = append(res.StorageRefs, ref)
	}
}

func elementMetadata(el *types.CodeElement) map[string]any {
	md := map[string]any{
		"element_type":     string(el.ElementType),
		"element_name":     el.Name,
		"qualified_name":   el.QualifiedName,
		"line_start":       el.LineStart,
		"line_end":         el.LineEnd,
		"complexity_score": el.Complexity,
		"content_hash":     el.ContentHash,
	}
	if el.ParentClass != "" {
		md["parent_class"] = el.ParentClass
	}
	if len(el.Tags) > 0 {
		md["tags"] = el.Tags
	}
	if len(el.Dependencies) > 0 {
		md["dependencies"] = el.Dependencies
	}
	if len(el.Decorators) > 0 {
		md["decorators"] = el.Decorators
	}
	return md
}
