package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
)

// Handler serves the sink's registry in the Prometheus exposition format
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Server exposes /metrics and /healthz over HTTP
type Server struct {
	addr   string
	sink   *Sink
	logger *logrus.Logger
	server *http.Server
}

// NewServer creates a Server for sink listening on addr
func NewServer(addr string, sink *Sink, logger *logrus.Logger) *Server {
	return &Server{addr: addr, sink: sink, logger: logging.OrDiscard(logger)}
}

// Mux returns the routes served by the Server
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.sink.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "up"})
	})
	return mux
}

// Start listens in the background until Stop is called
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.WithField("addr", s.addr).Info("Metrics server starting")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Metrics server failed")
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
