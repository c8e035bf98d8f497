// Package discard implements the Discard protocol (RFC 863): everything
// received is thrown away and nothing is ever sent.
package discard

import (
	"context"
	"errors"
	"io"

	"github.com/getmockd/superserver/pkg/server"
)

// DefaultBufferLength is the read buffer size of a stream connection.
const DefaultBufferLength = 1024

// Config configures the discard handler.
type Config struct {
	BufferLength int
}

// Handler serves discard over both transports.
type Handler struct {
	bufLen int
}

var (
	_ server.StreamHandler   = (*Handler)(nil)
	_ server.DatagramHandler = (*Handler)(nil)
)

// New creates a discard handler.
func New(cfg Config) *Handler {
	if cfg.BufferLength <= 0 {
		cfg.BufferLength = DefaultBufferLength
	}
	return &Handler{bufLen: cfg.BufferLength}
}

// ServeStream drains the connection until the peer closes it.
func (h *Handler) ServeStream(ctx context.Context, s server.Stream) error {
	buf := make([]byte, h.bufLen)
	for {
		if _, err := s.Read(buf); err != nil {
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

// ServeDatagram drops the datagram.
func (h *Handler) ServeDatagram(context.Context, server.DatagramConn, server.Datagram) error {
	return nil
}
