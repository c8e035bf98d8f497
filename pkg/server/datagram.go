package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/superserver/pkg/protocol"
	"github.com/getmockd/superserver/pkg/ratelimit"
)

// maxDatagramSize is the largest UDP payload that can be received.
const maxDatagramSize = 64 * 1024

// DatagramConfig configures a DatagramServer.
type DatagramConfig struct {
	// Protocol is the protocol name used in logs and metric labels.
	Protocol string
	// Address is the listen host, e.g. "127.0.0.1".
	Address string
	// Port is the listen port. 0 picks a free port.
	Port int
	// RateLimit supplies the per-source limit for every packet. It is read
	// on each datagram so a reload takes effect without a restart.
	// nil means unlimited.
	RateLimit ratelimit.LimitProvider
	// MaxInFlight bounds concurrently running handlers. 0 is unlimited.
	MaxInFlight int
	// ReusePort sets SO_REUSEPORT on the socket.
	ReusePort bool
}

// ListenAddress returns the configured host:port.
func (c DatagramConfig) ListenAddress() string {
	return joinHostPort(c.Address, c.Port)
}

// DatagramServer receives UDP packets, rate limits them per source and runs a
// DatagramHandler for each accepted packet.
type DatagramServer struct {
	cfg     DatagramConfig
	handler DatagramHandler
	log     *slog.Logger
	rec     Recorder
	labels  Labels
	limiter *ratelimit.WindowLimiter

	mu         sync.Mutex
	state      protocol.State
	conn       *net.UDPConn
	cancelLoop context.CancelFunc
	startedAt  time.Time
	ready      chan struct{}
	closed     bool

	inflight sync.WaitGroup
	active   atomic.Int64
}

var (
	_ protocol.StandaloneServer = (*DatagramServer)(nil)
	_ protocol.Observable       = (*DatagramServer)(nil)
)

// NewDatagramServer creates a datagram server. It does not bind until Start.
func NewDatagramServer(cfg DatagramConfig, h DatagramHandler, opts ...Option) *DatagramServer {
	o := newOptions(opts)
	return &DatagramServer{
		cfg:     cfg,
		handler: h,
		log:     o.log.With("protocol", cfg.Protocol, "transport", TransportUDP),
		rec:     o.rec,
		labels:  Labels{Protocol: cfg.Protocol, Transport: TransportUDP},
		limiter: ratelimit.NewWindowLimiter(ratelimit.WindowConfig{Limit: cfg.RateLimit}),
		state:   protocol.StateStopped,
		ready:   make(chan struct{}),
	}
}

// Metadata implements protocol.Server.
func (s *DatagramServer) Metadata() protocol.Metadata {
	p := protocol.Protocol(s.cfg.Protocol)
	return protocol.Metadata{
		ID:                   protocol.ServerID(p, protocol.TransportUDP),
		Name:                 s.cfg.Protocol + " (udp)",
		Protocol:             p,
		TransportType:        protocol.TransportUDP,
		ConnectionModel:      protocol.ConnectionModelDatagram,
		CommunicationPattern: protocol.PatternOf(p),
		Address:              s.cfg.ListenAddress(),
	}
}

// Start binds the socket and serves datagrams until ctx is cancelled or Stop
// is called. It returns after every in-flight handler has finished. Only a
// bind failure produces an error, wrapped in ErrBind.
func (s *DatagramServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.state != protocol.StateStopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	addr := s.cfg.ListenAddress()
	conn, err := listenUDP(ctx, addr, s.cfg.ReusePort)
	if err != nil {
		s.mu.Unlock()
		s.log.Error("failed to bind", "address", addr, "error", err)
		return fmt.Errorf("%w: udp %s: %w", ErrBind, addr, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.cancelLoop = cancel
	s.state = protocol.StateListening
	s.startedAt = time.Now()
	close(s.ready)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	s.log.Info("datagram server listening", "address", conn.LocalAddr().String())

	s.receiveLoop(loopCtx, ctx, conn, NewAdmission(s.cfg.MaxInFlight))

	s.Stop()
	s.inflight.Wait()

	s.mu.Lock()
	s.state = protocol.StateStopped
	s.startedAt = time.Time{}
	s.mu.Unlock()

	s.log.Info("datagram server stopped")
	return nil
}

func (s *DatagramServer) receiveLoop(loopCtx, handlerCtx context.Context, conn *net.UDPConn, adm *Admission) {
	out := &meteredPacketConn{conn: conn, rec: s.rec, labels: s.labels}
	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if loopCtx.Err() != nil || isShutdown(err) {
				return
			}
			s.log.Debug("receive failed", "error", err)
			continue
		}
		received := time.Now()
		if n > 0 {
			s.rec.BytesReceived(s.labels, n)
		}

		if !s.limiter.Allow(src.Addr()) {
			s.rec.RateLimited(s.labels)
			s.log.Debug("datagram rate limited", "remote", src.String())
			continue
		}
		s.rec.Request(s.labels)

		d := Datagram{
			Payload:    bytes.Clone(buf[:n]),
			Source:     src,
			ReceivedAt: received,
		}

		if err := adm.Acquire(loopCtx); err != nil {
			return
		}
		s.inflight.Add(1)
		s.active.Add(1)
		go func() {
			defer func() {
				s.active.Add(-1)
				adm.Release()
				s.inflight.Done()
			}()
			s.serveDatagram(handlerCtx, out, d)
		}()
	}
}

func (s *DatagramServer) serveDatagram(ctx context.Context, out DatagramConn, d Datagram) {
	err := s.invoke(ctx, out, d)
	if err == nil || isShutdown(err) {
		return
	}
	s.rec.Error(s.labels)
	s.log.Warn("handler failed", "remote", d.Source.String(), "error", err)
}

// invoke runs the handler, converting a panic into ErrHandlerPanic.
func (s *DatagramServer) invoke(ctx context.Context, out DatagramConn, d Datagram) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.handler.ServeDatagram(ctx, out, d)
}

// Stop closes the socket and forgets all rate limiter state. In-flight
// handlers keep running until they finish. Stop is idempotent.
func (s *DatagramServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != protocol.StateListening {
		return
	}
	s.state = protocol.StateDraining
	s.cancelLoop()
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("failed to close socket", "error", err)
	}
	s.limiter.Reset()
	s.ready = make(chan struct{})
}

// Close stops the server, waits for in-flight handlers and prevents any
// further Start.
func (s *DatagramServer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	s.inflight.Wait()
	return nil
}

// Ready returns a channel closed once the socket is bound.
func (s *DatagramServer) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Addr implements protocol.StandaloneServer.
func (s *DatagramServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != protocol.StateListening || s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// State implements protocol.StandaloneServer.
func (s *DatagramServer) State() protocol.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Health implements protocol.Server.
func (s *DatagramServer) Health(_ context.Context) protocol.HealthStatus {
	st := s.Stats()
	status := protocol.HealthStatus{
		Status:    protocol.HealthHealthy,
		CheckedAt: time.Now(),
		Details:   st,
	}
	if st.State != protocol.StateListening {
		status.Status = protocol.HealthUnhealthy
		status.Message = "not listening"
	}
	return status
}

// Stats implements protocol.Observable.
func (s *DatagramServer) Stats() protocol.Stats {
	s.mu.Lock()
	st := protocol.Stats{
		State:          s.state,
		StartedAt:      s.startedAt,
		MaxConnections: s.cfg.MaxInFlight,
	}
	s.mu.Unlock()
	if !st.StartedAt.IsZero() {
		st.Uptime = time.Since(st.StartedAt).Truncate(time.Second).String()
	}
	st.ActiveConnections = s.active.Load()
	st.TrackedSources = s.limiter.Len()
	return st
}
