package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Error is a simple error type for runtime errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors returned by the runtimes.
const (
	// ErrBind is returned by Start when the listen address cannot be bound.
	// It is the only error that crosses the runtime boundary.
	ErrBind = Error("bind failed")

	// ErrIdleTimeout is returned by stream reads that receive no bytes within
	// the configured idle timeout. The connection is closed afterwards.
	ErrIdleTimeout = Error("connection idle timeout")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = Error("server is already running")

	// ErrServerClosed is returned by Start after Close.
	ErrServerClosed = Error("server closed")

	// ErrHandlerPanic wraps a panic recovered from a protocol handler.
	ErrHandlerPanic = Error("handler panicked")
)

// isShutdown reports whether err is the expected result of shutting down:
// context cancellation or an operation on a closed socket.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, net.ErrClosed)
}

// isTransient reports whether err is a normal peer-side I/O failure
// (disconnect, reset, broken pipe) that should close the connection
// without being counted as an error.
func isTransient(err error) bool {
	if err == nil {
		return true
	}
	if isShutdown(err) {
		return true
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	return false
}

// isTemporaryAccept reports whether an Accept error is worth retrying.
func isTemporaryAccept(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}
