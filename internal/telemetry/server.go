package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seastrand/vigil/internal/fault"
)

// StatusProvider is the read-only view the server exposes. Implemented
// by kernel.Kernel.
type StatusProvider interface {
	Status() fault.StatusSnapshot
}

// Server is the read-only telemetry HTTP surface: status snapshot,
// liveness, prometheus metrics. It never writes into the kernel.
type Server struct {
	addr     string
	provider StatusProvider
	logger   *slog.Logger
	srv      *http.Server
}

// NewServer builds the telemetry server. gatherer serves /metrics; pass
// the registry the Metrics were registered with.
func NewServer(addr string, provider StatusProvider, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Status()); err != nil {
			logger.Error("encode status failed", "error", err)
		}
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return &Server{
		addr:     addr,
		provider: provider,
		logger:   logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
// http.ErrServerClosed is swallowed; anything else is returned.
func (s *Server) Start() error {
	s.logger.Info("telemetry server listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
