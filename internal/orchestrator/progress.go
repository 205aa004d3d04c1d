package orchestrator

import (
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/pkg/types"
)

// ProgressSink receives fire-and-forget run notifications. Calls for one run
// are serialized; implementations must not block for long.
type ProgressSink interface {
	OnDiscovery(types.DiscoveryEvent)
	OnFile(types.FileEvent)
	OnRunComplete(types.RunEvent)
}

// NopSink ignores every event
type NopSink struct{}

func (NopSink) OnDiscovery(types.DiscoveryEvent) {}
func (NopSink) OnFile(types.FileEvent)           {}
func (NopSink) OnRunComplete(types.RunEvent)     {}

// MultiSink fans events out to several sinks in order
type MultiSink []ProgressSink

// NewMultiSink drops nil sinks
func NewMultiSink(sinks ...ProgressSink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiSink) OnDiscovery(ev types.DiscoveryEvent) {
	for _, s := range m {
		s.OnDiscovery(ev)
	}
}

func (m MultiSink) OnFile(ev types.FileEvent) {
	for _, s := range m {
		s.OnFile(ev)
	}
}

func (m MultiSink) OnRunComplete(ev types.RunEvent) {
	for _, s := range m {
		s.OnRunComplete(ev)
	}
}

// LogSink writes run progress to a logrus logger
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a LogSink. A nil logger discards output.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logging.OrDiscard(logger)}
}

func (l *LogSink) OnDiscovery(ev types.DiscoveryEvent) {
	l.logger.WithFields(logrus.Fields{
		"run_id":           ev.RunID,
		"files_discovered": ev.FilesDiscovered,
		"files_to_process": ev.FilesToProcess,
		"elapsed_ms":       ev.ElapsedMs,
	}).Infof("Repository discovery complete: %d files found, %d to process", ev.FilesDiscovered, ev.FilesToProcess)
}

func (l *LogSink) OnFile(ev types.FileEvent) {
	entry := l.logger.WithFields(logrus.Fields{
		"run_id":    ev.RunID,
		"file":      ev.Result.RelativePath,
		"status":    ev.Result.Status,
		"elements":  ev.Result.ElementsExtracted,
		"chunks":    ev.Result.ChunksCreated,
		"processed": ev.Processed,
		"total":     ev.Total,
	})
	if ev.Result.Status == types.StatusFailed {
		entry.WithField("error", ev.Result.ErrorMessage).Warn("File processing failed")
		return
	}
	entry.Debug("File processed")
}

func (l *LogSink) OnRunComplete(ev types.RunEvent) {
	fields := logrus.Fields{
		"run_id":    ev.RunID,
		"root":      ev.Root,
		"state":     ev.State,
		"cancelled": ev.Cancelled,
	}
	if ev.Summary != nil {
		fields["processed"] = ev.Summary.TotalFilesProcessed
		fields["failed"] = ev.Summary.TotalFilesFailed
		fields["chunks"] = ev.Summary.TotalChunksCreated
		fields["duration_ms"] = ev.Summary.TotalProcessingTimeMs
	}
	entry := l.logger.WithFields(fields)
	if ev.State == types.RunFailed {
		entry.WithField("error", ev.Error).Error("Repository processing failed")
		return
	}
	entry.Info("Repository processing completed")
}
