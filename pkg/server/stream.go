package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/getmockd/superserver/pkg/protocol"
)

// Accept backoff bounds for temporary accept failures.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// StreamConfig configures a StreamServer.
type StreamConfig struct {
	// Protocol is the protocol name used in logs and metric labels.
	Protocol string
	// Address is the listen host, e.g. "127.0.0.1".
	Address string
	// Port is the listen port. 0 picks a free port.
	Port int
	// MaxConnections bounds concurrently handled connections. 0 is unlimited.
	MaxConnections int
	// IdleTimeout closes connections that receive nothing for this long.
	// 0 disables idle eviction.
	IdleTimeout time.Duration
	// MaxAcceptsPerSecond throttles the accept loop. 0 is unthrottled.
	MaxAcceptsPerSecond float64
	// ReusePort sets SO_REUSEPORT on the listening socket.
	ReusePort bool
}

// ListenAddress returns the configured host:port.
func (c StreamConfig) ListenAddress() string {
	return joinHostPort(c.Address, c.Port)
}

// StreamServer accepts TCP connections and runs a StreamHandler for each of
// them under admission control.
type StreamServer struct {
	cfg     StreamConfig
	handler StreamHandler
	log     *slog.Logger
	rec     Recorder
	labels  Labels

	mu         sync.Mutex
	state      protocol.State
	listener   net.Listener
	cancelLoop context.CancelFunc
	startedAt  time.Time
	ready      chan struct{}
	closed     bool

	conns  sync.WaitGroup
	active atomic.Int64
}

var (
	_ protocol.StandaloneServer = (*StreamServer)(nil)
	_ protocol.Observable       = (*StreamServer)(nil)
)

// NewStreamServer creates a stream server. It does not bind until Start.
func NewStreamServer(cfg StreamConfig, h StreamHandler, opts ...Option) *StreamServer {
	o := newOptions(opts)
	labels := Labels{Protocol: cfg.Protocol, Transport: TransportTCP}
	return &StreamServer{
		cfg:     cfg,
		handler: h,
		log:     o.log.With("protocol", cfg.Protocol, "transport", TransportTCP),
		rec:     o.rec,
		labels:  labels,
		state:   protocol.StateStopped,
		ready:   make(chan struct{}),
	}
}

// Metadata implements protocol.Server.
func (s *StreamServer) Metadata() protocol.Metadata {
	p := protocol.Protocol(s.cfg.Protocol)
	return protocol.Metadata{
		ID:                   protocol.ServerID(p, protocol.TransportTCP),
		Name:                 s.cfg.Protocol + " (tcp)",
		Protocol:             p,
		TransportType:        protocol.TransportTCP,
		ConnectionModel:      protocol.ConnectionModelStream,
		CommunicationPattern: protocol.PatternOf(p),
		Address:              s.cfg.ListenAddress(),
	}
}

// Start binds the listen address and serves connections until ctx is
// cancelled or Stop is called. It returns after every in-flight connection
// has finished. Only a bind failure produces an error, wrapped in ErrBind.
func (s *StreamServer) Start(ctx context.Context) error {
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
	ln, err := listenTCP(ctx, addr, s.cfg.ReusePort)
	if err != nil {
		s.mu.Unlock()
		s.log.Error("failed to bind", "address", addr, "error", err)
		return fmt.Errorf("%w: tcp %s: %w", ErrBind, addr, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	adm := NewAdmission(s.cfg.MaxConnections)
	s.listener = ln
	s.cancelLoop = cancel
	s.state = protocol.StateListening
	s.startedAt = time.Now()
	close(s.ready)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	s.log.Info("stream server listening",
		"address", ln.Addr().String(),
		"maxConnections", s.cfg.MaxConnections,
		"idleTimeout", s.cfg.IdleTimeout,
	)

	var throttle *rate.Limiter
	if s.cfg.MaxAcceptsPerSecond > 0 {
		throttle = rate.NewLimiter(rate.Limit(s.cfg.MaxAcceptsPerSecond), 1)
	}

	s.acceptLoop(loopCtx, ctx, ln, adm, throttle)

	s.Stop()
	s.conns.Wait()

	s.mu.Lock()
	s.state = protocol.StateStopped
	s.startedAt = time.Time{}
	s.mu.Unlock()

	s.log.Info("stream server stopped")
	return nil
}

// acceptLoop acquires an admission slot before every accept, so at most
// MaxConnections handlers ever run at once. loopCtx ends the loop; connCtx
// is handed to the connections.
func (s *StreamServer) acceptLoop(loopCtx, connCtx context.Context, ln net.Listener, adm *Admission, throttle *rate.Limiter) {
	backoff := time.Duration(0)
	for {
		if err := adm.Acquire(loopCtx); err != nil {
			return
		}
		if throttle != nil {
			if err := throttle.Wait(loopCtx); err != nil {
				adm.Release()
				return
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			adm.Release()
			if loopCtx.Err() != nil || isShutdown(err) {
				return
			}
			if isTemporaryAccept(err) {
				if backoff == 0 {
					backoff = minAcceptBackoff
				} else {
					backoff = min(backoff*2, maxAcceptBackoff)
				}
				s.log.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				select {
				case <-loopCtx.Done():
					return
				case <-time.After(backoff):
				}
				continue
			}
			s.log.Error("accept failed", "error", err)
			return
		}
		backoff = 0

		s.conns.Add(1)
		go s.serveConn(connCtx, conn, adm)
	}
}

// connContext is the per-connection state owned by its goroutine.
type connContext struct {
	id      string
	remote  net.Addr
	started time.Time
	metered *meteredConn
	release func()
}

// serveConn runs the handler for one connection and releases everything it
// holds on every exit path.
func (s *StreamServer) serveConn(ctx context.Context, raw net.Conn, adm *Admission) {
	defer s.conns.Done()

	cc := &connContext{
		id:      uuid.NewString(),
		remote:  raw.RemoteAddr(),
		started: time.Now(),
		metered: newMeteredConn(raw, s.rec, s.labels),
		release: sync.OnceFunc(adm.Release),
	}
	log := s.log.With("conn", cc.id, "remote", cc.remote.String())

	s.active.Add(1)
	s.rec.ConnectionOpened(s.labels)

	stream := newStreamConn(ctx, cc.metered, s.cfg.IdleTimeout, func() {
		s.rec.IdleTimeout(s.labels)
	})

	log.Debug("connection opened")

	defer func() {
		_ = stream.close()
		cc.release()
		s.active.Add(-1)
		d := time.Since(cc.started)
		s.rec.ConnectionClosed(s.labels, d)
		log.Debug("connection closed",
			"duration", d,
			"bytesReceived", cc.metered.BytesReceived(),
			"bytesSent", cc.metered.BytesSent(),
		)
	}()

	err := s.invoke(ctx, stream)
	switch {
	case errors.Is(err, ErrIdleTimeout) || stream.IdleTimedOut():
		log.Debug("connection idle timeout", "idleTimeout", s.cfg.IdleTimeout)
	case isTransient(err):
	default:
		s.rec.Error(s.labels)
		log.Warn("handler failed", "error", err)
	}
}

// invoke runs the handler, converting a panic into ErrHandlerPanic.
func (s *StreamServer) invoke(ctx context.Context, st Stream) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.handler.ServeStream(ctx, st)
}

// Stop closes the listener. In-flight connections keep running until they
// finish or the context passed to Start is cancelled. Stop is idempotent.
func (s *StreamServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != protocol.StateListening {
		return
	}
	s.state = protocol.StateDraining
	s.cancelLoop()
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("failed to close listener", "error", err)
	}
	s.ready = make(chan struct{})
}

// Close stops the server, waits for in-flight connections and prevents any
// further Start.
func (s *StreamServer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	s.conns.Wait()
	return nil
}

// Ready returns a channel closed once the listener is bound.
func (s *StreamServer) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Addr implements protocol.StandaloneServer.
func (s *StreamServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != protocol.StateListening || s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State implements protocol.StandaloneServer.
func (s *StreamServer) State() protocol.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveConnections returns the number of connections being served.
func (s *StreamServer) ActiveConnections() int64 {
	return s.active.Load()
}

// Health implements protocol.Server. A listening server at its connection
// limit reports degraded.
func (s *StreamServer) Health(_ context.Context) protocol.HealthStatus {
	st := s.Stats()
	status := protocol.HealthStatus{CheckedAt: time.Now(), Details: st}
	switch {
	case st.State != protocol.StateListening:
		status.Status = protocol.HealthUnhealthy
		status.Message = "not listening"
	case st.MaxConnections > 0 && st.ActiveConnections >= int64(st.MaxConnections):
		status.Status = protocol.HealthDegraded
		status.Message = "connection limit reached"
	default:
		status.Status = protocol.HealthHealthy
	}
	return status
}

// Stats implements protocol.Observable.
func (s *StreamServer) Stats() protocol.Stats {
	s.mu.Lock()
	st := protocol.Stats{
		State:          s.state,
		StartedAt:      s.startedAt,
		MaxConnections: s.cfg.MaxConnections,
	}
	s.mu.Unlock()
	if !st.StartedAt.IsZero() {
		st.Uptime = time.Since(st.StartedAt).Truncate(time.Second).String()
	}
	st.ActiveConnections = s.active.Load()
	return st
}
