package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getmockd/superserver/pkg/chargen"
	"github.com/getmockd/superserver/pkg/config"
	"github.com/getmockd/superserver/pkg/daytime"
	"github.com/getmockd/superserver/pkg/discard"
	"github.com/getmockd/superserver/pkg/echo"
	"github.com/getmockd/superserver/pkg/logging"
	"github.com/getmockd/superserver/pkg/protocol"
	"github.com/getmockd/superserver/pkg/ratelimit"
	"github.com/getmockd/superserver/pkg/server"
)

// handler serves one protocol over both transports.
type handler interface {
	server.StreamHandler
	server.DatagramHandler
}

// ProtocolManager builds one server per enabled protocol and transport and
// manages their lifecycle through a protocol.Registry.
type ProtocolManager struct {
	provider *config.Provider
	registry *protocol.Registry
	rec      server.Recorder
	log      *slog.Logger
	mu       sync.Mutex
	built    bool
}

// NewProtocolManager creates a manager reading settings from provider.
func NewProtocolManager(provider *config.Provider) *ProtocolManager {
	return &ProtocolManager{
		provider: provider,
		registry: protocol.NewRegistry(),
		rec:      server.NopRecorder{},
		log:      logging.Nop(),
	}
}

// SetLogger sets the logger for the manager and every server it builds.
func (pm *ProtocolManager) SetLogger(log *slog.Logger) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if log != nil {
		pm.log = log
	} else {
		pm.log = logging.Nop()
	}
}

// SetRecorder sets the metrics recorder handed to every server.
func (pm *ProtocolManager) SetRecorder(rec server.Recorder) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if rec != nil {
		pm.rec = rec
	} else {
		pm.rec = server.NopRecorder{}
	}
}

// Registry returns the server registry.
func (pm *ProtocolManager) Registry() *protocol.Registry {
	return pm.registry
}

// Build creates and registers a server for every active protocol/transport
// pair in the current configuration. It runs once; later calls are no-ops.
func (pm *ProtocolManager) Build() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.built {
		return nil
	}

	cfg := pm.provider.Current()
	for _, p := range protocol.All() {
		pc := cfg.Servers.Protocol(p)
		if !pc.Enabled {
			pm.log.Info("protocol disabled", "protocol", p.String())
			continue
		}

		h := newHandler(p, &cfg.Servers)
		opts := []server.Option{server.WithLogger(pm.log), server.WithRecorder(pm.rec)}

		if pc.TCPActive() {
			srv := server.NewStreamServer(server.StreamConfig{
				Protocol:            p.String(),
				Address:             pc.ListenAddress,
				Port:                pc.TCPPort,
				MaxConnections:      pc.MaxConnections(),
				IdleTimeout:         pc.IdleTimeout(),
				MaxAcceptsPerSecond: pc.TCPMaxAcceptsPerSecond,
				ReusePort:           pc.ReusePort,
			}, h, opts...)
			if err := pm.registry.Register(srv); err != nil {
				return fmt.Errorf("failed to register %s: %w", srv.Metadata().ID, err)
			}
		}

		if pc.UDPActive() {
			if warning := udpWarning(p); warning != "" {
				pm.log.Warn(warning, "protocol", p.String(), "address", pc.UDPAddress())
			}
			srv := server.NewDatagramServer(server.DatagramConfig{
				Protocol:    p.String(),
				Address:     pc.ListenAddress,
				Port:        pc.UDPPort,
				RateLimit:   pm.rateLimit(p),
				MaxInFlight: pc.MaxInFlight(),
				ReusePort:   pc.ReusePort,
			}, h, opts...)
			if err := pm.registry.Register(srv); err != nil {
				return fmt.Errorf("failed to register %s: %w", srv.Metadata().ID, err)
			}
		}
	}

	pm.built = true
	pm.log.Debug("protocol servers built", "count", pm.registry.Count())
	return nil
}

// rateLimit returns a provider that reads the live configuration on every
// call, so reloaded limits apply without restarting the server.
func (pm *ProtocolManager) rateLimit(p protocol.Protocol) ratelimit.LimitProvider {
	return func() ratelimit.Limit {
		return pm.provider.Current().Servers.Protocol(p).RateLimit()
	}
}

// StartAll builds the servers if needed and runs them until ctx is cancelled
// or one of them fails to bind.
func (pm *ProtocolManager) StartAll(ctx context.Context) error {
	if err := pm.Build(); err != nil {
		return err
	}
	for _, s := range pm.registry.List() {
		md := s.Metadata()
		pm.log.Info("starting server", "id", md.ID, "address", md.Address)
	}
	return pm.registry.StartAll(ctx)
}

// CloseAll stops every server and waits for in-flight work to drain.
func (pm *ProtocolManager) CloseAll() error {
	return pm.registry.CloseAll()
}

func newHandler(p protocol.Protocol, cfg *config.ServersConfiguration) handler {
	switch p {
	case protocol.ProtocolEcho:
		return echo.New(echo.Config{BufferLength: cfg.Echo.BufferLength})
	case protocol.ProtocolDiscard:
		return discard.New(discard.Config{BufferLength: cfg.Discard.BufferLength})
	case protocol.ProtocolDaytime:
		return daytime.New(daytime.Config{Format: cfg.Daytime.Format})
	case protocol.ProtocolChargen:
		return chargen.New(chargen.Config{MaxLines: cfg.Chargen.MaxLines, LineRate: cfg.Chargen.LineRate})
	}
	panic("engine: no handler for protocol " + p.String())
}

func udpWarning(p protocol.Protocol) string {
	switch p {
	case protocol.ProtocolEcho:
		return echo.UDPWarning
	case protocol.ProtocolChargen:
		return chargen.UDPWarning
	}
	return ""
}
