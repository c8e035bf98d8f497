package server

import (
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
)

// meteredConn counts the bytes that actually cross a stream connection.
// It forwards every call unchanged, so blocking, deadline and close
// semantics are those of the wrapped conn.
type meteredConn struct {
	net.Conn
	rec    Recorder
	labels Labels

	received atomic.Int64
	sent     atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func newMeteredConn(c net.Conn, rec Recorder, labels Labels) *meteredConn {
	return &meteredConn{Conn: c, rec: rec, labels: labels}
}

func (m *meteredConn) Read(p []byte) (int, error) {
	n, err := m.Conn.Read(p)
	if n > 0 {
		m.received.Add(int64(n))
		m.rec.BytesReceived(m.labels, n)
	}
	return n, err
}

func (m *meteredConn) Write(p []byte) (int, error) {
	n, err := m.Conn.Write(p)
	if n > 0 {
		m.sent.Add(int64(n))
		m.rec.BytesSent(m.labels, n)
	}
	return n, err
}

// Close closes the wrapped conn exactly once.
func (m *meteredConn) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.Conn.Close()
	})
	return m.closeErr
}

// BytesReceived returns the bytes read so far.
func (m *meteredConn) BytesReceived() int64 { return m.received.Load() }

// BytesSent returns the bytes written so far.
func (m *meteredConn) BytesSent() int64 { return m.sent.Load() }

// packetWriter is the subset of *net.UDPConn used to answer datagrams.
type packetWriter interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	LocalAddr() net.Addr
}

// meteredPacketConn is the DatagramConn handed to datagram handlers.
type meteredPacketConn struct {
	conn   packetWriter
	rec    Recorder
	labels Labels
}

var _ DatagramConn = (*meteredPacketConn)(nil)

func (m *meteredPacketConn) WriteTo(p []byte, addr netip.AddrPort) (int, error) {
	n, err := m.conn.WriteToUDPAddrPort(p, addr)
	if n > 0 {
		m.rec.BytesSent(m.labels, n)
	}
	return n, err
}

func (m *meteredPacketConn) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}
