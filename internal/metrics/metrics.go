// Package metrics exposes ingestion progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dshills/pyingest/pkg/types"
)

const namespace = "pyingest"

// Sink records run progress as Prometheus metrics. It implements the
// orchestrator's progress sink and owns its registry.
type Sink struct {
	registry *prometheus.Registry

	runsStarted       prometheus.Counter
	runsFinished      *prometheus.CounterVec
	activeRuns        prometheus.Gauge
	filesDiscovered   prometheus.Counter
	filesSelected     prometheus.Counter
	discoverySeconds  prometheus.Histogram
	filesProcessed    *prometheus.CounterVec
	fileSeconds       prometheus.Histogram
	elementsExtracted prometheus.Counter
	chunksStored      prometheus.Counter
	embeddings        prometheus.Counter
	embedFailures     prometheus.Counter
}

// New creates a Sink with its own registry, including the Go runtime and
// process collectors
func New() *Sink {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	s := &Sink{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_started_total",
			Help: "Ingestion runs whose discovery completed.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_finished_total",
			Help: "Ingestion runs reaching a terminal state.",
		}, []string{"state", "cancelled"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_runs",
			Help: "Runs currently processing files.",
		}),
		filesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_discovered_total",
			Help: "Candidate files found by discovery.",
		}),
		filesSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_selected_total",
			Help: "Files selected for processing by discovery.",
		}),
		discoverySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "discovery_seconds",
			Help: "Duration of repository discovery.", Buckets: buckets,
		}),
		filesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_processed_total",
			Help: "Files processed, by final status.",
		}, []string{"status"}),
		fileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "file_processing_seconds",
			Help: "Time spent processing one file.", Buckets: buckets,
		}),
		elementsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "elements_extracted_total",
			Help: "Code elements extracted from parsed files.",
		}),
		chunksStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_stored_total",
			Help: "Chunks accepted by the storage sink.",
		}),
		embeddings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "embeddings_generated_total",
			Help: "Chunks stored with an embedding.",
		}),
		embedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "embedding_failures_total",
			Help: "Embedding provider failures that fell back to no embedding.",
		}),
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.runsStarted, s.runsFinished, s.activeRuns,
		s.filesDiscovered, s.filesSelected, s.discoverySeconds,
		s.filesProcessed, s.fileSeconds,
		s.elementsExtracted, s.chunksStored, s.embeddings, s.embedFailures,
	)
	return s
}

// Registry returns the registry holding every collector
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Sink) OnDiscovery(ev types.DiscoveryEvent) {
	s.runsStarted.Inc()
	s.activeRuns.Inc()
	s.filesDiscovered.Add(float64(ev.FilesDiscovered))
	s.filesSelected.Add(float64(ev.FilesToProcess))
	s.discoverySeconds.Observe(float64(ev.ElapsedMs) / 1000)
}

func (s *Sink) OnFile(ev types.FileEvent) {
	r := ev.Result
	s.filesProcessed.WithLabelValues(string(r.Status)).Inc()
	s.fileSeconds.Observe(float64(r.ProcessingTimeMs) / 1000)
	s.elementsExtracted.Add(float64(r.ElementsExtracted))
	s.chunksStored.Add(float64(r.ChunksCreated))
	s.embeddings.Add(float64(r.EmbeddingsGenerated))
}

// OnRunComplete counts the terminal state. Runs that failed during discovery
// never became active.
func (s *Sink) OnRunComplete(ev types.RunEvent) {
	cancelled := "false"
	if ev.Cancelled {
		cancelled = "true"
	}
	s.runsFinished.WithLabelValues(string(ev.State), cancelled).Inc()
	if ev.State == types.RunCompleted {
		s.activeRuns.Dec()
	}
}

// EmbeddingFailed counts one embedding provider failure. Its signature fits
// the embedder's failure callback.
func (s *Sink) EmbeddingFailed(error) {
	s.embedFailures.Inc()
}
