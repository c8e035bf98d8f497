package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/superserver/pkg/httputil"
	"github.com/getmockd/superserver/pkg/logging"
	"github.com/getmockd/superserver/pkg/protocol"
)

// ErrBind is returned by Start when the HTTP listener cannot be bound.
var ErrBind = errors.New("failed to bind health endpoint")

const shutdownTimeout = 5 * time.Second

// Server exposes health reports and metrics over HTTP.
//
// Routes:
//
//	/, /health, /health/ready  aggregate JSON report; 200 when healthy or degraded, 503 otherwise
//	/health/live               plain "OK"
//	/metrics                   the configured metrics handler
type Server struct {
	address string
	checker *Checker
	metrics http.Handler
	log     *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a health server bound to address. metrics may be nil,
// in which case /metrics answers 404.
func NewServer(address string, checker *Checker, metrics http.Handler) *Server {
	return &Server{
		address: address,
		checker: checker,
		metrics: metrics,
		log:     logging.Nop(),
	}
}

// SetLogger sets the logger.
func (s *Server) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	}
}

// Handler returns the routing handler without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", readOnly(s.handleReport))
	mux.HandleFunc("/health", readOnly(s.handleReport))
	mux.HandleFunc("/health/ready", readOnly(s.handleReport))
	mux.HandleFunc("/health/live", readOnly(s.handleLive))
	mux.HandleFunc("/metrics", readOnly(s.handleMetrics))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteNotFound(w)
	})
	return mux
}

// Addr returns the bound address, or nil before Start binds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		s.log.Error("failed to start health check listener", "address", s.address, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrBind, s.address, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.log.Info("health check endpoint listening",
		"address", ln.Addr().String(),
		"health", "/health",
		"metrics", "/metrics")

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("health check shutdown incomplete", "error", err)
		}
		cancel()
		<-serveErr
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health check server error", "error", err)
		}
	}

	s.mu.Lock()
	s.addr = nil
	s.mu.Unlock()
	s.log.Info("health check endpoint stopped")
	return nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Check(r.Context())
	status := http.StatusOK
	if report.Status != protocol.HealthHealthy && report.Status != protocol.HealthDegraded {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, report)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteText(w, http.StatusOK, "OK")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		httputil.WriteNotFound(w)
		return
	}
	s.metrics.ServeHTTP(w, r)
}

// readOnly rejects everything but GET and HEAD.
func readOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			httputil.WriteMethodNotAllowed(w, "GET, HEAD")
			return
		}
		next(w, r)
	}
}
