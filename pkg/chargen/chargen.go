// Package chargen implements the Character Generator protocol (RFC 864).
//
// Over TCP the server sends an endless stream of 72 character lines, each
// starting one printable character later than the previous one. Over UDP it
// answers every datagram with 0 to 512 characters of the same pattern.
package chargen

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/getmockd/superserver/pkg/ratelimit"
	"github.com/getmockd/superserver/pkg/server"
)

const (
	// LineWidth is the number of characters per line, excluding CRLF.
	LineWidth = 72
	// MaxDatagramLength is the largest UDP response.
	MaxDatagramLength = 512
	// DefaultLineRate is the default number of lines per second.
	DefaultLineRate = 100
	// DefaultWriteTimeout bounds how long a client may take to accept a line.
	DefaultWriteTimeout = 30 * time.Second

	printableFirst = 32 // ' '
	printableCount = 95 // ' ' through '~'
)

// UDPWarning is logged when chargen is enabled over UDP.
const UDPWarning = "chargen over UDP answers a small datagram with up to 512 bytes and is a known amplification vector"

// Config configures the chargen handler.
type Config struct {
	// MaxLines ends the session after this many lines. 0 is unlimited.
	MaxLines uint64
	// LineRate is the number of lines sent per second. Negative disables
	// pacing; 0 selects DefaultLineRate.
	LineRate float64
	// WriteTimeout defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
	// Rand picks UDP response lengths. Defaults to a randomly seeded source.
	Rand *rand.Rand
}

// Handler serves chargen over both transports.
type Handler struct {
	maxLines     uint64
	lineRate     float64
	writeTimeout time.Duration

	randMu sync.Mutex
	rand   *rand.Rand
}

var (
	_ server.StreamHandler   = (*Handler)(nil)
	_ server.DatagramHandler = (*Handler)(nil)
)

// New creates a chargen handler.
func New(cfg Config) *Handler {
	h := &Handler{
		maxLines:     cfg.MaxLines,
		lineRate:     cfg.LineRate,
		writeTimeout: cfg.WriteTimeout,
		rand:         cfg.Rand,
	}
	if h.lineRate == 0 {
		h.lineRate = DefaultLineRate
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = DefaultWriteTimeout
	}
	if h.rand == nil {
		h.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return h
}

// Fill writes the rotating pattern starting at offset into dst.
func Fill(dst []byte, offset uint64) {
	for i := range dst {
		dst[i] = byte((uint64(i)+offset)%printableCount) + printableFirst
	}
}

// Line writes line n, including the trailing CRLF, into dst and returns it.
// dst must hold at least LineWidth+2 bytes.
func Line(dst []byte, n uint64) []byte {
	line := dst[:LineWidth+2]
	Fill(line[:LineWidth], n)
	line[LineWidth] = '\r'
	line[LineWidth+1] = '\n'
	return line
}

// ServeStream sends lines until the client goes away, the line limit is
// reached or ctx is cancelled.
func (h *Handler) ServeStream(ctx context.Context, s server.Stream) error {
	var pace *ratelimit.Bucket
	if h.lineRate > 0 {
		pace = ratelimit.NewBucket(h.lineRate, 1)
	}
	buf := make([]byte, LineWidth+2)
	for n := uint64(0); h.maxLines == 0 || n < h.maxLines; n++ {
		if pace != nil {
			if err := pace.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
			return err
		}
		if _, err := s.Write(Line(buf, n)); err != nil {
			return err
		}
	}
	return nil
}

// ServeDatagram answers with a random length slice of the pattern starting
// at a random character. The payload is ignored.
func (h *Handler) ServeDatagram(_ context.Context, conn server.DatagramConn, d server.Datagram) error {
	h.randMu.Lock()
	length := h.rand.IntN(MaxDatagramLength + 1)
	offset := h.rand.Uint64N(printableCount)
	h.randMu.Unlock()

	out := make([]byte, length)
	Fill(out, offset)
	_, err := conn.WriteTo(out, d.Source)
	return err
}
