package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getmockd/superserver/pkg/server"
)

// Backend names accepted by New.
const (
	BackendBuiltin    = "builtin"
	BackendPrometheus = "prometheus"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown metrics backend")

// Metric names shared by every backend.
const (
	nameConnectionsTotal    = "superserver_connections_total"
	nameConnectionsActive   = "superserver_connections_active"
	nameRequestsTotal       = "superserver_requests_total"
	nameBytesReceivedTotal  = "superserver_bytes_received_total"
	nameBytesSentTotal      = "superserver_bytes_sent_total"
	nameErrorsTotal         = "superserver_errors_total"
	nameRateLimitedTotal    = "superserver_rate_limited_total"
	nameIdleTimeoutsTotal   = "superserver_idle_timeouts_total"
	nameConnectionDurations = "superserver_connection_duration_seconds"
)

var serverLabels = []string{"protocol", "transport"}

// Backend is a server.Recorder that can also expose what it recorded.
type Backend interface {
	server.Recorder
	Handler() http.Handler
}

// New returns the backend with the given name. An empty name selects the
// builtin registry.
func New(name string) (Backend, error) {
	switch name {
	case "", BackendBuiltin:
		r := NewRegistry()
		m := NewServerMetrics(r)
		NewRuntimeCollector(r)
		return m, nil
	case BackendPrometheus:
		return NewPrometheus(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// ServerMetrics records server events into a builtin Registry.
type ServerMetrics struct {
	registry *Registry

	connections   *Counter
	active        *Gauge
	requests      *Counter
	bytesReceived *Counter
	bytesSent     *Counter
	errors        *Counter
	rateLimited   *Counter
	idleTimeouts  *Counter
	durations     *Histogram
}

var _ Backend = (*ServerMetrics)(nil)

// NewServerMetrics registers the server metric families on r.
func NewServerMetrics(r *Registry) *ServerMetrics {
	return &ServerMetrics{
		registry:      r,
		connections:   r.NewCounter(nameConnectionsTotal, "Total stream connections accepted", serverLabels...),
		active:        r.NewGauge(nameConnectionsActive, "Stream connections currently open", serverLabels...),
		requests:      r.NewCounter(nameRequestsTotal, "Total datagrams accepted for handling", serverLabels...),
		bytesReceived: r.NewCounter(nameBytesReceivedTotal, "Total bytes read from clients", serverLabels...),
		bytesSent:     r.NewCounter(nameBytesSentTotal, "Total bytes written to clients", serverLabels...),
		errors:        r.NewCounter(nameErrorsTotal, "Total handler failures", serverLabels...),
		rateLimited:   r.NewCounter(nameRateLimitedTotal, "Total datagrams dropped by the rate limiter", serverLabels...),
		idleTimeouts:  r.NewCounter(nameIdleTimeoutsTotal, "Total connections closed for inactivity", serverLabels...),
		durations: r.NewHistogram(nameConnectionDurations, "Stream connection lifetime in seconds",
			DefaultBuckets, serverLabels...),
	}
}

// Registry returns the registry the metrics live in.
func (m *ServerMetrics) Registry() *Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *ServerMetrics) Handler() http.Handler { return m.registry.Handler() }

func (m *ServerMetrics) ConnectionOpened(l server.Labels) {
	add(m.connections, l, 1)
	if v, err := m.active.WithLabels(l.Protocol, l.Transport); err == nil {
		v.Inc()
	}
}

func (m *ServerMetrics) ConnectionClosed(l server.Labels, d time.Duration) {
	if v, err := m.active.WithLabels(l.Protocol, l.Transport); err == nil {
		v.Dec()
	}
	if v, err := m.durations.WithLabels(l.Protocol, l.Transport); err == nil {
		v.Observe(d.Seconds())
	}
}

func (m *ServerMetrics) Request(l server.Labels) { add(m.requests, l, 1) }

func (m *ServerMetrics) BytesReceived(l server.Labels, n int) { add(m.bytesReceived, l, float64(n)) }

func (m *ServerMetrics) BytesSent(l server.Labels, n int) { add(m.bytesSent, l, float64(n)) }

func (m *ServerMetrics) Error(l server.Labels) { add(m.errors, l, 1) }

func (m *ServerMetrics) RateLimited(l server.Labels) { add(m.rateLimited, l, 1) }

func (m *ServerMetrics) IdleTimeout(l server.Labels) { add(m.idleTimeouts, l, 1) }

func add(c *Counter, l server.Labels, delta float64) {
	if v, err := c.WithLabels(l.Protocol, l.Transport); err == nil {
		_ = v.Add(delta)
	}
}
