package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/chunker"
	"github.com/dshills/pyingest/internal/discovery"
	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/internal/parser"
	"github.com/dshills/pyingest/pkg/types"
)

const (
	// DefaultBatchSize is the number of files processed concurrently per batch
	DefaultBatchSize = 10
)

var (
	// ErrRunInProgress is returned when a run is requested while another holds the lock
	ErrRunInProgress = errors.New("an ingestion run is already in progress")
	// ErrRunNotFound is returned for unknown run ids
	ErrRunNotFound = errors.New("run not found")
)

// Embedder produces a vector for a chunk. A nil result means no embedding
// and is never an error.
type Embedder interface {
	Embed(ctx context.Context, text, hint string) []float32
}

// StorageSink persists one chunk and returns an opaque reference
type StorageSink interface {
	Store(ctx context.Context, chunk string, tier types.Tier, metadata map[string]any, embedding []float32) (string, error)
}

// Options configures one run. Zero values take the defaults.
type Options struct {
	Discovery       discovery.Options
	BatchSize       int
	ChunkTargetSize int
	MinChunkSize    int
	MaxChunks       int
	Metadata        map[string]any // copied into every chunk's metadata
}

// DefaultOptions returns the default run options
func DefaultOptions() Options {
	return Options{
		Discovery:       discovery.DefaultOptions(),
		BatchSize:       DefaultBatchSize,
		ChunkTargetSize: chunker.DefaultTargetSize,
		MinChunkSize:    chunker.DefaultMinChunkSize,
		MaxChunks:       chunker.DefaultMaxChunks,
	}
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Orchestrator drives discovery, parsing, chunking, embedding and storage
// over a repository in bounded concurrent batches
type Orchestrator struct {
	parser   *parser.Parser
	chunker  *chunker.Chunker
	embedder Embedder
	sink     StorageSink
	progress ProgressSink
	logger   *logrus.Logger

	lock RunLock

	mu   sync.RWMutex
	runs map[string]*Run
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.OrDiscard(logger)
	}
}

// WithProgress adds progress sinks
func WithProgress(sinks ...ProgressSink) Option {
	return func(o *Orchestrator) {
		all := append(MultiSink{o.progress}, sinks...)
		o.progress = NewMultiSink(all...)
	}
}

// New creates an Orchestrator. sink must not be nil. A nil embedder disables
// embeddings; a nil parser or chunker uses the defaults.
func New(p *parser.Parser, c *chunker.Chunker, embedder Embedder, sink StorageSink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		parser:   p,
		chunker:  c,
		embedder: embedder,
		sink:     sink,
		progress: NopSink{},
		logger:   logging.Discard(),
		runs:     make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.parser == nil {
		o.parser = parser.New(o.logger)
	}
	if o.chunker == nil {
		o.chunker = chunker.New(chunker.DefaultConfig(), o.logger)
	}
	if o.embedder == nil {
		o.embedder = noEmbedder{}
	}
	return o
}

type noEmbedder struct{}

func (noEmbedder) Embed(context.Context, string, string) []float32 { return nil }

// Ingest discovers and processes root synchronously. The returned Run is
// terminal. The error is non-nil only when the run could not start or
// discovery failed.
func (o *Orchestrator) Ingest(ctx context.Context, root string, opts Options) (*Run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	run, files, err := o.begin(runCtx, cancel, root, opts)
	if err != nil {
		return run, err
	}
	o.process(runCtx, run, files, opts)
	return run, nil
}

// Start discovers root and returns once discovery completes; processing
// continues in the background. The run outlives ctx and stops only through
// Run.Cancel.
func (o *Orchestrator) Start(ctx context.Context, root string, opts Options) (*Run, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run, files, err := o.begin(runCtx, cancel, root, opts)
	if err != nil {
		return run, err
	}
	go o.process(runCtx, run, files, opts)
	return run, nil
}

// Process runs the processing phase over an already discovered file list and
// returns the summary
func (o *Orchestrator) Process(ctx context.Context, files []types.DiscoveredFile, opts Options) (*types.ProcessingSummary, error) {
	if !o.lock.TryAcquire() {
		return nil, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := o.register("")
	run.setCancel(cancel)

	counts := discovery.Count(files)
	run.setDiscovered(counts.Total, counts.ToProcess)

	o.process(runCtx, run, files, opts)
	return run.Summary(), nil
}

// Run returns a registered run by id
func (o *Orchestrator) Run(id string) (*Run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// Runs returns every registered run, oldest first
func (o *Orchestrator) Runs() []*Run {
	o.mu.RLock()
	out := make([]*Run, 0, len(o.runs))
	for _, r := range o.runs {
		out = append(out, r)
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].startedAt.Before(out[j].startedAt)
	})
	return out
}

// Active reports whether a run currently holds the run lock
func (o *Orchestrator) Active() bool {
	return o.lock.Held()
}

func (o *Orchestrator) register(root string) *Run {
	run := newRun(uuid.NewString(), root)
	o.mu.Lock()
	o.runs[run.ID] = run
	o.mu.Unlock()
	return run
}

// begin acquires the run lock, registers the run and performs discovery.
// On failure the run is already terminal and the lock released.
func (o *Orchestrator) begin(ctx context.Context, cancel context.CancelFunc, root string, opts Options) (*Run, []types.DiscoveredFile, error) {
	if !o.lock.TryAcquire() {
		cancel()
		return nil, nil, ErrRunInProgress
	}

	run := o.register(root)
	run.setCancel(cancel)

	o.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"root":   root,
	}).Info("Starting repository ingestion")

	run.setState(types.RunDiscovering)
	start := time.Now()

	files, err := o.discover(ctx, root, opts)
	if err != nil {
		o.fail(run, fmt.Errorf("discovery failed: %w", err))
		return run, nil, run.Err()
	}

	counts := discovery.Count(files)
	run.setDiscovered(counts.Total, counts.ToProcess)
	o.progress.OnDiscovery(types.DiscoveryEvent{
		RunID:           run.ID,
		Root:            root,
		FilesDiscovered: counts.Total,
		FilesToProcess:  counts.ToProcess,
		ElapsedMs:       time.Since(start).Milliseconds(),
	})

	return run, files, nil
}

func (o *Orchestrator) discover(ctx context.Context, root string, opts Options) ([]types.DiscoveredFile, error) {
	d, err := discovery.New(opts.Discovery, o.logger)
	if err != nil {
		return nil, err
	}
	return d.Discover(ctx, root)
}

func (o *Orchestrator) fail(run *Run, err error) {
	ev := run.finish(types.RunFailed, nil, err, false)
	o.progress.OnRunComplete(ev)
	o.lock.Release()
	run.close()
}

// process runs the batches and completes the run. Batches run sequentially;
// files within a batch run concurrently. Once ctx is cancelled no new batch
// starts, but dispatched files finish on a context detached from it.
func (o *Orchestrator) process(ctx context.Context, run *Run, files []types.DiscoveredFile, opts Options) {
	start := time.Now()
	run.setState(types.RunProcessing)

	selected := discovery.Selected(files)
	batchSize := opts.batchSize()
	fp := o.fileProcessor(run.ID, opts)
	work := context.WithoutCancel(ctx)

	cancelled := false
	for i := 0; i < len(selected); i += batchSize {
		if ctx.Err() != nil {
			cancelled = true
			o.logger.WithFields(logrus.Fields{
				"run_id":    run.ID,
				"remaining": len(selected) - i,
			}).Warn("Run cancelled, no further batches started")
			break
		}

		end := min(i+batchSize, len(selected))
		o.runBatch(work, run, fp, selected[i:end], batchSize)

		o.logger.WithFields(logrus.Fields{
			"run_id": run.ID,
		}).Infof("Processed batch: %d/%d files", end, len(selected))
	}

	summary := BuildSummary(files, run.Results(), time.Since(start))
	ev := run.finish(types.RunCompleted, summary, nil, cancelled)
	o.progress.OnRunComplete(ev)
	o.lock.Release()
	run.close()
}
