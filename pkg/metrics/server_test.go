package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/superserver/pkg/server"
)

var (
	echoTCP    = server.Labels{Protocol: "echo", Transport: server.TransportTCP}
	chargenUDP = server.Labels{Protocol: "chargen", Transport: server.TransportUDP}
)

func record(rec server.Recorder) {
	rec.ConnectionOpened(echoTCP)
	rec.ConnectionOpened(echoTCP)
	rec.BytesReceived(echoTCP, 10)
	rec.BytesSent(echoTCP, 10)
	rec.IdleTimeout(echoTCP)
	rec.ConnectionClosed(echoTCP, 2*time.Second)

	rec.Request(chargenUDP)
	rec.BytesSent(chargenUDP, 512)
	rec.RateLimited(chargenUDP)
	rec.RateLimited(chargenUDP)
	rec.Error(chargenUDP)
}

func scrape(t *testing.T, b Backend) string {
	t.Helper()
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &ServerMetrics{}, b)

	b, err = New(BackendPrometheus)
	require.NoError(t, err)
	assert.IsType(t, &Prometheus{}, b)

	_, err = New("statsd")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestServerMetrics(t *testing.T) {
	b, err := New(BackendBuiltin)
	require.NoError(t, err)
	record(b)

	out := scrape(t, b)
	for _, line := range []string{
		`superserver_connections_total{protocol="echo",transport="tcp"} 2`,
		`superserver_connections_active{protocol="echo",transport="tcp"} 1`,
		`superserver_bytes_received_total{protocol="echo",transport="tcp"} 10`,
		`superserver_bytes_sent_total{protocol="chargen",transport="udp"} 512`,
		`superserver_idle_timeouts_total{protocol="echo",transport="tcp"} 1`,
		`superserver_requests_total{protocol="chargen",transport="udp"} 1`,
		`superserver_rate_limited_total{protocol="chargen",transport="udp"} 2`,
		`superserver_errors_total{protocol="chargen",transport="udp"} 1`,
		`superserver_connection_duration_seconds_count{protocol="echo",transport="tcp"} 1`,
		"# TYPE go_goroutines gauge",
		"superserver_uptime_seconds ",
	} {
		assert.Contains(t, out, line)
	}
}

func TestPrometheus(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())
	record(p)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.connections.WithLabelValues("echo", "tcp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.active.WithLabelValues("echo", "tcp")))
	assert.Equal(t, 10.0, testutil.ToFloat64(p.bytesReceived.WithLabelValues("echo", "tcp")))
	assert.Equal(t, 512.0, testutil.ToFloat64(p.bytesSent.WithLabelValues("chargen", "udp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.rateLimited.WithLabelValues("chargen", "udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.errors.WithLabelValues("chargen", "udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.idleTimeouts.WithLabelValues("echo", "tcp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("chargen", "udp")))

	expected := `
# HELP superserver_rate_limited_total Total datagrams dropped by the rate limiter
# TYPE superserver_rate_limited_total counter
superserver_rate_limited_total{protocol="chargen",transport="udp"} 2
`
	require.NoError(t, testutil.GatherAndCompare(p.Registry(), strings.NewReader(expected),
		"superserver_rate_limited_total"))

	out := scrape(t, p)
	assert.Contains(t, out, `superserver_connection_duration_seconds_count{protocol="echo",transport="tcp"} 1`)
}

func TestPrometheus_DefaultRegistryHasRuntimeCollectors(t *testing.T) {
	p := NewPrometheus(nil)
	out := scrape(t, p)
	assert.Contains(t, out, "go_goroutines")
}
