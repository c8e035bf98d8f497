package server

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// aLongTimeAgo is a deadline in the past used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// streamConn is the Stream handed to stream handlers. It layers idle
// timeout detection and context cancellation on top of a metered conn.
type streamConn struct {
	conn   *meteredConn
	ctx    context.Context
	idle   time.Duration
	onIdle func()

	mu           sync.Mutex
	readDeadline time.Time // deadline requested by the handler

	idleFired atomic.Bool
	stopAfter func() bool
}

var _ Stream = (*streamConn)(nil)

func newStreamConn(ctx context.Context, c *meteredConn, idle time.Duration, onIdle func()) *streamConn {
	s := &streamConn{
		conn:   c,
		ctx:    ctx,
		idle:   idle,
		onIdle: onIdle,
	}
	// Cancellation releases any blocked read or write.
	s.stopAfter = context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(aLongTimeAgo)
	})
	return s
}

func (s *streamConn) Read(p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	deadline := s.readDeadline
	s.mu.Unlock()

	idleDeadline := false
	if s.idle > 0 {
		d := time.Now().Add(s.idle)
		if deadline.IsZero() || d.Before(deadline) {
			deadline = d
			idleDeadline = true
		}
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	// Re-check after arming the deadline: a cancellation that raced with
	// SetReadDeadline has already run its AfterFunc.
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := s.conn.Read(p)
	if err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil && errors.Is(err, os.ErrDeadlineExceeded) {
			return n, ctxErr
		}
		if idleDeadline && n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
			s.fireIdle()
			return 0, ErrIdleTimeout
		}
	}
	return n, err
}

func (s *streamConn) Write(p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n, err := s.conn.Write(p)
	if err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil && errors.Is(err, os.ErrDeadlineExceeded) {
			return n, ctxErr
		}
	}
	return n, err
}

func (s *streamConn) SetDeadline(t time.Time) error {
	if err := s.SetReadDeadline(t); err != nil {
		return err
	}
	return s.SetWriteDeadline(t)
}

// SetReadDeadline records t; it is applied on the next Read together with
// the idle timeout.
func (s *streamConn) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDeadline = t
	s.mu.Unlock()
	return nil
}

func (s *streamConn) SetWriteDeadline(t time.Time) error {
	if s.ctx.Err() != nil {
		t = aLongTimeAgo
	}
	return s.conn.SetWriteDeadline(t)
}

func (s *streamConn) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
func (s *streamConn) LocalAddr() net.Addr  { return s.conn.LocalAddr() }

// IdleTimedOut reports whether the connection was closed for inactivity.
func (s *streamConn) IdleTimedOut() bool { return s.idleFired.Load() }

// close detaches the cancellation hook and closes the socket.
func (s *streamConn) close() error {
	s.stopAfter()
	return s.conn.Close()
}

func (s *streamConn) check() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.idleFired.Load() {
		return ErrIdleTimeout
	}
	return nil
}

// fireIdle reports the idle timeout once and shuts the socket down so the
// peer sees the close immediately.
func (s *streamConn) fireIdle() {
	if !s.idleFired.CompareAndSwap(false, true) {
		return
	}
	if s.onIdle != nil {
		s.onIdle()
	}
	_ = s.conn.Close()
}
