package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/superserver/pkg/protocol"
)

// echoStream copies everything it reads back to the peer.
var echoStream = StreamHandlerFunc(func(_ context.Context, s Stream) error {
	_, err := io.Copy(s, s)
	return err
})

type runningStream struct {
	srv    *StreamServer
	addr   string
	cancel context.CancelFunc
	done   chan error
}

// startStream starts srv on a free loopback port and waits until it listens.
func startStream(t *testing.T, cfg StreamConfig, h StreamHandler, opts ...Option) *runningStream {
	t.Helper()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	if cfg.Protocol == "" {
		cfg.Protocol = "echo"
	}

	srv := NewStreamServer(cfg, h, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}

	rs := &runningStream{srv: srv, addr: srv.Addr().String(), cancel: cancel, done: done}
	t.Cleanup(rs.shutdown)
	return rs
}

func (rs *runningStream) shutdown() {
	rs.cancel()
	select {
	case <-rs.done:
	case <-time.After(5 * time.Second):
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStreamServer_EchoRoundTrip(t *testing.T) {
	t.Parallel()
	rec := newCountingRecorder()
	rs := startStream(t, StreamConfig{}, echoStream, WithRecorder(rec))

	c := dial(t, rs.addr)
	_, err := c.Write([]byte("hello\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(c).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return rec.Count("closed") == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, rec.Count("opened"))
	assert.Equal(t, 6, rec.Bytes("received"))
	assert.Equal(t, 6, rec.Bytes("sent"))
	assert.Zero(t, rec.Count("error"), "a client disconnect is not an error")
	assert.Zero(t, rs.srv.ActiveConnections())
}

func TestStreamServer_AdmissionLimit(t *testing.T) {
	t.Parallel()
	var running, maxRunning atomic.Int64
	h := StreamHandlerFunc(func(_ context.Context, s Stream) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		_, err := io.Copy(io.Discard, s)
		return err
	})
	rs := startStream(t, StreamConfig{MaxConnections: 2}, h)

	c1 := dial(t, rs.addr)
	_ = dial(t, rs.addr)
	c3 := dial(t, rs.addr)

	require.Eventually(t, func() bool { return running.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	// The third connection waits in the kernel backlog.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), running.Load())
	assert.Equal(t, protocol.HealthDegraded, rs.srv.Health(context.Background()).Status)

	require.NoError(t, c1.Close())
	_, err := c3.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rs.srv.ActiveConnections() == 2 && running.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), maxRunning.Load(), "never more than two handlers at once")
}

func TestStreamServer_IdleTimeout(t *testing.T) {
	t.Parallel()
	rec := newCountingRecorder()
	h := StreamHandlerFunc(func(_ context.Context, s Stream) error {
		buf := make([]byte, 64)
		for {
			if _, err := s.Read(buf); err != nil {
				return err
			}
		}
	})
	rs := startStream(t, StreamConfig{IdleTimeout: 100 * time.Millisecond}, h, WithRecorder(rec))

	c := dial(t, rs.addr)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	start := time.Now()
	_, err := c.Read(make([]byte, 1))
	require.Error(t, err, "server should close the idle connection")
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	require.Eventually(t, func() bool { return rec.Count("closed") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rec.Count("idle"))
	assert.Zero(t, rec.Count("error"))
}

func TestStreamServer_ActivityResetsIdleTimer(t *testing.T) {
	t.Parallel()
	rec := newCountingRecorder()
	rs := startStream(t, StreamConfig{IdleTimeout: 150 * time.Millisecond}, echoStream, WithRecorder(rec))

	c := dial(t, rs.addr)
	r := bufio.NewReader(c)
	for i := 0; i < 4; i++ {
		time.Sleep(80 * time.Millisecond)
		_, err := c.Write([]byte("ping\n"))
		require.NoError(t, err)
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "ping\n", line)
	}
	assert.Zero(t, rec.Count("idle"))
}

func TestStreamServer_BindFailure(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewStreamServer(StreamConfig{Protocol: "echo", Address: "127.0.0.1", Port: port}, echoStream)
	err = srv.Start(context.Background())
	require.ErrorIs(t, err, ErrBind)
	assert.Equal(t, protocol.StateStopped, srv.State())
}

func TestStreamServer_HandlerFailuresAreIsolated(t *testing.T) {
	t.Parallel()
	rec := newCountingRecorder()
	var calls atomic.Int64
	h := StreamHandlerFunc(func(_ context.Context, s Stream) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("boom")
		case 2:
			panic("handler bug")
		}
		_, err := io.Copy(s, s)
		return err
	})
	rs := startStream(t, StreamConfig{}, h, WithRecorder(rec))

	for i := 0; i < 2; i++ {
		c := dial(t, rs.addr)
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err := c.Read(make([]byte, 1))
		require.Error(t, err, "failed handler closes its connection")
	}

	c := dial(t, rs.addr)
	_, err := c.Write([]byte("still alive\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(c).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "still alive\n", line)

	require.Eventually(t, func() bool { return rec.Count("error") == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamServer_CancelStopsEverything(t *testing.T) {
	t.Parallel()
	rs := startStream(t, StreamConfig{}, echoStream)

	c := dial(t, rs.addr)
	_, err := c.Write([]byte("x"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rs.srv.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	rs.cancel()
	select {
	case err := <-rs.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	assert.Zero(t, rs.srv.ActiveConnections())
	assert.Equal(t, protocol.StateStopped, rs.srv.State())
	assert.Nil(t, rs.srv.Addr())

	_, err = net.DialTimeout("tcp", rs.addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed")
}

func TestStreamServer_StopIsIdempotentAndCloseIsFinal(t *testing.T) {
	t.Parallel()
	rs := startStream(t, StreamConfig{}, echoStream)

	rs.srv.Stop()
	rs.srv.Stop()
	select {
	case err := <-rs.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	require.NoError(t, rs.srv.Close())
	assert.ErrorIs(t, rs.srv.Start(context.Background()), ErrServerClosed)
}

func TestStreamServer_Metadata(t *testing.T) {
	t.Parallel()
	srv := NewStreamServer(StreamConfig{Protocol: "daytime", Address: "127.0.0.1", Port: 2013}, echoStream)

	meta := srv.Metadata()
	assert.Equal(t, "daytime-tcp", meta.ID)
	assert.Equal(t, protocol.ProtocolDaytime, meta.Protocol)
	assert.Equal(t, protocol.PatternServerPush, meta.CommunicationPattern)
	assert.Equal(t, "127.0.0.1:2013", meta.Address)
	assert.Equal(t, protocol.HealthUnhealthy, srv.Health(context.Background()).Status)
}
