// Package daytime implements the Daytime protocol (RFC 867): the server
// sends the current UTC time as a single CRLF terminated line.
package daytime

import (
	"context"
	"strings"
	"time"

	"github.com/getmockd/superserver/pkg/server"
)

// DefaultWriteTimeout bounds how long a slow client may take to accept the
// response.
const DefaultWriteTimeout = 30 * time.Second

// ISO8601 is the round-trip layout: ISO-8601 with 7 fractional digits.
const ISO8601 = "2006-01-02T15:04:05.0000000Z07:00"

// namedFormats maps format names accepted in configuration to layouts.
var namedFormats = map[string]string{
	"":         ISO8601,
	"o":        ISO8601,
	"iso8601":  ISO8601,
	"rfc3339":  time.RFC3339,
	"rfc1123":  time.RFC1123,
	"rfc822":   time.RFC822,
	"ansic":    time.ANSIC,
	"unixdate": time.UnixDate,
	"kitchen":  time.Kitchen,
}

// Layout resolves a configured format to a time layout. Names from the
// builtin table are case-insensitive; anything else is used as a Go layout.
func Layout(format string) string {
	if layout, ok := namedFormats[strings.ToLower(strings.TrimSpace(format))]; ok {
		return layout
	}
	return format
}

// Config configures the daytime handler.
type Config struct {
	// Format is a named format ("o", "rfc3339", ...) or a Go time layout.
	Format string
	// WriteTimeout defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Handler serves daytime over both transports.
type Handler struct {
	layout       string
	writeTimeout time.Duration
	now          func() time.Time
}

var (
	_ server.StreamHandler   = (*Handler)(nil)
	_ server.DatagramHandler = (*Handler)(nil)
)

// New creates a daytime handler.
func New(cfg Config) *Handler {
	h := &Handler{
		layout:       Layout(cfg.Format),
		writeTimeout: cfg.WriteTimeout,
		now:          cfg.Now,
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = DefaultWriteTimeout
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Response returns the line sent to a client.
func (h *Handler) Response() []byte {
	return []byte(h.now().UTC().Format(h.layout) + "\r\n")
}

// ServeStream writes one line and closes the connection.
func (h *Handler) ServeStream(ctx context.Context, s server.Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	_, err := s.Write(h.Response())
	return err
}

// ServeDatagram answers any datagram with one line. The payload is ignored.
func (h *Handler) ServeDatagram(_ context.Context, conn server.DatagramConn, d server.Datagram) error {
	_, err := conn.WriteTo(h.Response(), d.Source)
	return err
}
