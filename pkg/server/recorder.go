package server

import "time"

// Transport label values.
const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// Labels identify the server an event belongs to.
type Labels struct {
	Protocol  string
	Transport string
}

// Recorder receives runtime events. Implementations must be safe for
// concurrent use; the metrics package provides builtin and Prometheus
// backed implementations.
type Recorder interface {
	// ConnectionOpened is called once per accepted stream connection.
	ConnectionOpened(l Labels)
	// ConnectionClosed is called once per accepted stream connection, after
	// the handler returned, with the connection's lifetime.
	ConnectionClosed(l Labels, d time.Duration)
	// Request is called for every datagram that passed the rate limiter.
	Request(l Labels)
	// BytesReceived and BytesSent are called with n > 0 only.
	BytesReceived(l Labels, n int)
	BytesSent(l Labels, n int)
	// Error is called for handler failures.
	Error(l Labels)
	// RateLimited is called for every dropped datagram.
	RateLimited(l Labels)
	// IdleTimeout is called once per connection closed for inactivity.
	IdleTimeout(l Labels)
}

// NopRecorder discards all events.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) ConnectionOpened(Labels)                {}
func (NopRecorder) ConnectionClosed(Labels, time.Duration) {}
func (NopRecorder) Request(Labels)                         {}
func (NopRecorder) BytesReceived(Labels, int)              {}
func (NopRecorder) BytesSent(Labels, int)                  {}
func (NopRecorder) Error(Labels)                           {}
func (NopRecorder) RateLimited(Labels)                     {}
func (NopRecorder) IdleTimeout(Labels)                     {}
