// Package echo implements the Echo protocol (RFC 862): every byte received
// is sent back to the sender.
package echo

import (
	"context"
	"errors"
	"io"

	"github.com/getmockd/superserver/pkg/server"
)

// DefaultBufferLength is the read buffer size of a stream connection.
const DefaultBufferLength = 1024

// UDPWarning is logged when echo is enabled over UDP.
const UDPWarning = "echo over UDP reflects every datagram to its claimed source and can be abused for reflection attacks"

// Config configures the echo handler.
type Config struct {
	// BufferLength is the size of a single read. Defaults to DefaultBufferLength.
	BufferLength int
}

// Handler serves echo over both transports.
type Handler struct {
	bufLen int
}

var (
	_ server.StreamHandler   = (*Handler)(nil)
	_ server.DatagramHandler = (*Handler)(nil)
)

// New creates an echo handler.
func New(cfg Config) *Handler {
	if cfg.BufferLength <= 0 {
		cfg.BufferLength = DefaultBufferLength
	}
	return &Handler{bufLen: cfg.BufferLength}
}

// ServeStream writes back every chunk it reads until the peer closes the
// connection.
func (h *Handler) ServeStream(ctx context.Context, s server.Stream) error {
	buf := make([]byte, h.bufLen)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ServeDatagram sends the payload back to its source.
func (h *Handler) ServeDatagram(_ context.Context, conn server.DatagramConn, d server.Datagram) error {
	_, err := conn.WriteTo(d.Payload, d.Source)
	return err
}
