// Package status serves the health and statistics of a running worker.
//
// Routes:
//
//	GET /healthz  liveness, always 200 while the process serves requests
//	GET /stats    job, tool, cache and HTTP counters, credential quotas and
//	              queue lengths as JSON
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/pkganalyzer/pkg/observability"
	"github.com/matzehuels/pkganalyzer/pkg/queue"
	"github.com/matzehuels/pkganalyzer/pkg/tokens"
)

const shutdownTimeout = 5 * time.Second

// QueueStats reports queue lengths.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// Options configure a [Server]. Every source is optional.
type Options struct {
	Addr     string
	Version  string
	Counters *observability.Counters
	Pool     *tokens.Pool
	Queue    QueueStats
	Logger   *log.Logger
}

// Report is the body of GET /stats.
type Report struct {
	Version     string               `json:"version,omitempty"`
	Counters    *observability.Stats `json:"counters,omitempty"`
	Credentials []tokens.Usage       `json:"credentials,omitempty"`
	Queue       *queue.Stats         `json:"queue,omitempty"`
	QueueError  string               `json:"queueError,omitempty"`
}

// Server is the status HTTP server.
type Server struct {
	opts   Options
	router chi.Router
	logger *log.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Server{opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Get("/stats", s.stats)
	s.router = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on Addr until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	report := Report{Version: s.opts.Version}
	if s.opts.Counters != nil {
		snap := s.opts.Counters.Snapshot()
		report.Counters = &snap
	}
	if s.opts.Pool != nil {
		report.Credentials = s.opts.Pool.Snapshot()
	}
	if s.opts.Queue != nil {
		qs, err := s.opts.Queue.Stats(r.Context())
		if err != nil {
			report.QueueError = err.Error()
		} else {
			report.Queue = &qs
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Debug("write stats", "error", err)
	}
}
