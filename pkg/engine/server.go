package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/superserver/pkg/config"
	"github.com/getmockd/superserver/pkg/health"
	"github.com/getmockd/superserver/pkg/logging"
	"github.com/getmockd/superserver/pkg/metrics"
	"github.com/getmockd/superserver/pkg/protocol"
)

// ErrAlreadyRunning is returned by Run when the server is already running.
var ErrAlreadyRunning = errors.New("engine is already running")

// Server hosts every protocol server plus the health endpoint.
type Server struct {
	provider        *config.Provider
	protocolManager *ProtocolManager
	metrics         metrics.Backend
	health          *health.Server
	log             *slog.Logger

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger for the server and its protocol servers.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics overrides the metrics backend selected by configuration.
func WithMetrics(b metrics.Backend) ServerOption {
	return func(s *Server) {
		s.metrics = b
	}
}

// NewServer creates a Server reading its configuration from provider. The
// protocol servers are built immediately so configuration problems surface
// before Run.
func NewServer(provider *config.Provider, opts ...ServerOption) (*Server, error) {
	s := &Server{
		provider: provider,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg := provider.Current()
	if s.metrics == nil {
		b, err := metrics.New(cfg.Metrics.Backend)
		if err != nil {
			return nil, err
		}
		s.metrics = b
	}

	s.protocolManager = NewProtocolManager(provider)
	s.protocolManager.SetLogger(s.log)
	s.protocolManager.SetRecorder(s.metrics)
	if err := s.protocolManager.Build(); err != nil {
		return nil, err
	}

	if cfg.HealthCheck.Enabled {
		checker := health.NewChecker(s.protocolManager.Registry(), health.DefaultDialTimeout)
		s.health = health.NewServer(cfg.HealthCheck.Address(), checker, s.metrics.Handler())
		s.health.SetLogger(s.log.With("component", "health"))
	} else {
		s.log.Info("health check HTTP endpoint is disabled")
	}

	return s, nil
}

// Run starts every server and blocks until ctx is cancelled or a server
// fails to bind. Servers drain and are closed before Run returns, so Run
// can only serve once.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	unsubscribe := s.provider.OnChange(s.configChanged)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.protocolManager.StartAll(gctx)
	})
	if s.health != nil {
		g.Go(func() error {
			return s.health.Start(gctx)
		})
	}
	// Keep Run alive with nothing enabled.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	s.log.Info("engine started", "servers", s.protocolManager.Registry().Count())
	err := g.Wait()
	if closeErr := s.protocolManager.CloseAll(); closeErr != nil {
		s.log.Warn("error closing servers", "error", closeErr)
	}
	if err != nil {
		s.log.Error("engine stopped", "error", err)
		return err
	}
	s.log.Info("engine stopped", "uptime", s.Uptime().Round(time.Millisecond).String())
	return nil
}

// Reload re-reads the configuration file. Rate limits apply immediately;
// other changes are logged as requiring a restart.
func (s *Server) Reload() error {
	if s.provider.Path() == "" {
		s.log.Info("no configuration file to reload")
		return nil
	}
	if _, err := s.provider.Reload(); err != nil {
		s.log.Error("configuration reload failed, keeping current configuration", "error", err)
		return err
	}
	return nil
}

func (s *Server) configChanged(old, current *config.Configuration) {
	s.log.Info("configuration reloaded", "path", s.provider.Path())
	for _, field := range config.RestartRequired(old, current) {
		s.log.Warn("setting changed but requires a restart to take effect", "setting", field)
	}
}

// IsRunning reports whether Run is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the engine has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}

// Registry returns the protocol server registry.
func (s *Server) Registry() *protocol.Registry {
	return s.protocolManager.Registry()
}

// HealthAddr returns the bound health endpoint address, or nil when it is
// disabled or not listening.
func (s *Server) HealthAddr() net.Addr {
	if s.health == nil {
		return nil
	}
	return s.health.Addr()
}
