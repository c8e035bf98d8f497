package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getmockd/superserver/pkg/server"
)

// Prometheus records server events with client_golang collectors.
type Prometheus struct {
	registry *prometheus.Registry

	connections   *prometheus.CounterVec
	active        *prometheus.GaugeVec
	requests      *prometheus.CounterVec
	bytesReceived *prometheus.CounterVec
	bytesSent     *prometheus.CounterVec
	errors        *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	idleTimeouts  *prometheus.CounterVec
	durations     *prometheus.HistogramVec
}

var _ Backend = (*Prometheus)(nil)

// NewPrometheus registers the server collectors on reg. A nil reg gets a
// fresh registry that also carries the Go and process collectors.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, serverLabels)
	}

	p := &Prometheus{
		registry:      reg,
		connections:   counter(nameConnectionsTotal, "Total stream connections accepted"),
		requests:      counter(nameRequestsTotal, "Total datagrams accepted for handling"),
		bytesReceived: counter(nameBytesReceivedTotal, "Total bytes read from clients"),
		bytesSent:     counter(nameBytesSentTotal, "Total bytes written to clients"),
		errors:        counter(nameErrorsTotal, "Total handler failures"),
		rateLimited:   counter(nameRateLimitedTotal, "Total datagrams dropped by the rate limiter"),
		idleTimeouts:  counter(nameIdleTimeoutsTotal, "Total connections closed for inactivity"),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: nameConnectionsActive,
			Help: "Stream connections currently open",
		}, serverLabels),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    nameConnectionDurations,
			Help:    "Stream connection lifetime in seconds",
			Buckets: DefaultBuckets,
		}, serverLabels),
	}

	reg.MustRegister(
		p.connections, p.active, p.requests,
		p.bytesReceived, p.bytesSent, p.errors,
		p.rateLimited, p.idleTimeouts, p.durations,
	)
	return p
}

// Registry returns the underlying client_golang registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry through promhttp.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ConnectionOpened(l server.Labels) {
	p.connections.WithLabelValues(l.Protocol, l.Transport).Inc()
	p.active.WithLabelValues(l.Protocol, l.Transport).Inc()
}

func (p *Prometheus) ConnectionClosed(l server.Labels, d time.Duration) {
	p.active.WithLabelValues(l.Protocol, l.Transport).Dec()
	p.durations.WithLabelValues(l.Protocol, l.Transport).Observe(d.Seconds())
}

func (p *Prometheus) Request(l server.Labels) {
	p.requests.WithLabelValues(l.Protocol, l.Transport).Inc()
}

func (p *Prometheus) BytesReceived(l server.Labels, n int) {
	p.bytesReceived.WithLabelValues(l.Protocol, l.Transport).Add(float64(n))
}

func (p *Prometheus) BytesSent(l server.Labels, n int) {
	p.bytesSent.WithLabelValues(l.Protocol, l.Transport).Add(float64(n))
}

func (p *Prometheus) Error(l server.Labels) {
	p.errors.WithLabelValues(l.Protocol, l.Transport).Inc()
}

func (p *Prometheus) RateLimited(l server.Labels) {
	p.rateLimited.WithLabelValues(l.Protocol, l.Transport).Inc()
}

func (p *Prometheus) IdleTimeout(l server.Labels) {
	p.idleTimeouts.WithLabelValues(l.Protocol, l.Transport).Inc()
}
