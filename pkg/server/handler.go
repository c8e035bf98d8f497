package server

import (
	"context"
	"io"
	"net"
	"net/netip"
	"time"
)

// Stream is the byte stream handed to a StreamHandler.
// Reads and writes are metered; reads honour the idle timeout and every
// blocking call is released when the handler's context is cancelled.
type Stream interface {
	io.Reader
	io.Writer

	// SetDeadline, SetReadDeadline and SetWriteDeadline behave like their
	// net.Conn counterparts. A read deadline shorter than the idle timeout
	// produces a regular timeout error, not an idle timeout.
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// StreamHandler processes one stream connection.
// ServeStream returns when the connection should be closed. A non-nil error
// other than a normal disconnect is counted as a handler error.
type StreamHandler interface {
	ServeStream(ctx context.Context, s Stream) error
}

// StreamHandlerFunc adapts a function to StreamHandler.
type StreamHandlerFunc func(ctx context.Context, s Stream) error

// ServeStream calls f(ctx, s).
func (f StreamHandlerFunc) ServeStream(ctx context.Context, s Stream) error {
	return f(ctx, s)
}

// Datagram is a single received packet.
type Datagram struct {
	// Payload is owned by the handler; the runtime does not reuse it.
	Payload []byte
	// Source is the sender's address and port.
	Source netip.AddrPort
	// ReceivedAt is when the runtime read the packet.
	ReceivedAt time.Time
}

// DatagramConn is the shared socket handed to a DatagramHandler.
// Writes are metered on success.
type DatagramConn interface {
	WriteTo(p []byte, addr netip.AddrPort) (int, error)
	LocalAddr() net.Addr
}

// DatagramHandler processes one received datagram. It may send zero or more
// responses through conn.
type DatagramHandler interface {
	ServeDatagram(ctx context.Context, conn DatagramConn, d Datagram) error
}

// DatagramHandlerFunc adapts a function to DatagramHandler.
type DatagramHandlerFunc func(ctx context.Context, conn DatagramConn, d Datagram) error

// ServeDatagram calls f(ctx, conn, d).
func (f DatagramHandlerFunc) ServeDatagram(ctx context.Context, conn DatagramConn, d Datagram) error {
	return f(ctx, conn, d)
}
