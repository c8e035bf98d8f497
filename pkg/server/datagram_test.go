package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/superserver/pkg/protocol"
	"github.com/getmockd/superserver/pkg/ratelimit"
)

var echoDatagram = DatagramHandlerFunc(func(_ context.Context, c DatagramConn, d Datagram) error {
	_, err := c.WriteTo(d.Payload, d.Source)
	return err
})

func startDatagram(t *testing.T, cfg DatagramConfig, h DatagramHandler, opts ...Option) (*DatagramServer, *net.UDPAddr) {
	t.Helper()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	if cfg.Protocol == "" {
		cfg.Protocol = "echo"
	}

	srv := NewDatagramServer(cfg, h, opts...)
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

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return srv, srv.Addr().(*net.UDPAddr)
}

func TestDatagramServer_Echo(t *testing.T) {
	t.Parallel()
	rec := newCountingRecorder()
	_, addr := startDatagram(t, DatagramConfig{}, echoDatagram, WithRecorder(rec))

	c, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	require.Eventually(t, func() bool { return rec.Bytes("sent") == 4 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rec.Count("request"))
	assert.Equal(t, 4, rec.Bytes("received"))
}

func TestDatagramServer_RateLimitsPerSource(t *testing.T) {
	t.Parallel()
	rec := newCountingRecorder()
	srv, addr := startDatagram(t, DatagramConfig{
		RateLimit: ratelimit.StaticLimit(ratelimit.Limit{MaxRequests: 5, Window: time.Minute}),
	}, echoDatagram, WithRecorder(rec))

	c, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 7; i++ {
		_, err := c.Write([]byte{'a' + byte(i)})
		require.NoError(t, err)
	}

	replies := 0
	buf := make([]byte, 16)
	for {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		if _, err := c.Read(buf); err != nil {
			break
		}
		replies++
	}

	assert.Equal(t, 5, replies, "rate limited datagrams get no response")
	assert.Equal(t, 5, rec.Count("request"))
	assert.Equal(t, 2, rec.Count("ratelimited"))
	assert.Equal(t, 7, rec.Bytes("received"))
	assert.Equal(t, 1, srv.Stats().TrackedSources)
}

func TestDatagramServer_HandlerErrorCounted(t *testing.T) {
	t.Parallel()
	rec := newCountingRecorder()
	h := DatagramHandlerFunc(func(context.Context, DatagramConn, Datagram) error {
		return errors.New("boom")
	})
	_, addr := startDatagram(t, DatagramConfig{}, h, WithRecorder(rec))

	c, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.Count("error") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDatagramServer_StopResetsLimiter(t *testing.T) {
	t.Parallel()
	srv, addr := startDatagram(t, DatagramConfig{
		RateLimit: ratelimit.StaticLimit(ratelimit.Limit{MaxRequests: 1, Window: time.Minute}),
	}, echoDatagram)

	c, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("x"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Stats().TrackedSources == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.Stop()
	srv.Stop()
	assert.Zero(t, srv.Stats().TrackedSources)
	require.Eventually(t, func() bool { return srv.State() == protocol.StateStopped }, 2*time.Second, 10*time.Millisecond)
}

func TestDatagramServer_MaxInFlight(t *testing.T) {
	t.Parallel()
	var running, peak, served atomic.Int64
	gate := make(chan struct{})
	h := DatagramHandlerFunc(func(ctx context.Context, _ DatagramConn, _ Datagram) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer running.Add(-1)
		select {
		case <-gate:
		case <-ctx.Done():
		}
		served.Add(1)
		return nil
	})
	srv, addr := startDatagram(t, DatagramConfig{MaxInFlight: 1}, h)
	assert.Equal(t, 1, srv.Stats().MaxConnections)

	c, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer c.Close()
	for range 3 {
		_, err = c.Write([]byte("x"))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return running.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), running.Load(), "only one handler runs while the first is blocked")
	assert.Equal(t, int64(1), srv.Stats().ActiveConnections)

	close(gate)
	require.Eventually(t, func() bool { return served.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), peak.Load())
}

func TestDatagramServer_BindFailure(t *testing.T) {
	t.Parallel()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer pc.Close()

	srv := NewDatagramServer(DatagramConfig{
		Protocol: "discard",
		Address:  "127.0.0.1",
		Port:     pc.LocalAddr().(*net.UDPAddr).Port,
	}, echoDatagram)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrBind)
	assert.Equal(t, "discard-udp", srv.Metadata().ID)
}
