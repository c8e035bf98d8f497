package config

import (
	"net"
	"strconv"
	"time"

	"github.com/getmockd/superserver/pkg/protocol"
	"github.com/getmockd/superserver/pkg/ratelimit"
)

// Configuration is the root of a superserver configuration file.
type Configuration struct {
	Servers     ServersConfiguration     `json:"servers" yaml:"servers"`
	HealthCheck HealthCheckConfiguration `json:"healthCheck" yaml:"healthCheck"`
	Metrics     MetricsConfiguration     `json:"metrics" yaml:"metrics"`
	Logging     LoggingConfiguration     `json:"logging" yaml:"logging"`
}

// ServersConfiguration holds one section per protocol.
type ServersConfiguration struct {
	Echo    EchoConfiguration    `json:"echo" yaml:"echo"`
	Discard DiscardConfiguration `json:"discard" yaml:"discard"`
	Daytime DaytimeConfiguration `json:"daytime" yaml:"daytime"`
	Chargen ChargenConfiguration `json:"chargen" yaml:"chargen"`
}

// Protocol returns the shared settings of p, or nil for unknown protocols.
func (s *ServersConfiguration) Protocol(p protocol.Protocol) *ProtocolConfiguration {
	switch p {
	case protocol.ProtocolEcho:
		return &s.Echo.ProtocolConfiguration
	case protocol.ProtocolDiscard:
		return &s.Discard.ProtocolConfiguration
	case protocol.ProtocolDaytime:
		return &s.Daytime.ProtocolConfiguration
	case protocol.ProtocolChargen:
		return &s.Chargen.ProtocolConfiguration
	}
	return nil
}

// ProtocolConfiguration holds the settings every protocol shares.
//
// Pointer fields are nullable: an explicit null means unlimited (or no
// timeout), an absent key keeps the default.
type ProtocolConfiguration struct {
	// Enabled is the master switch. When false neither transport starts.
	Enabled    bool `json:"enabled" yaml:"enabled"`
	TCPEnabled bool `json:"tcpEnabled" yaml:"tcpEnabled"`
	UDPEnabled bool `json:"udpEnabled" yaml:"udpEnabled"`

	ListenAddress string `json:"listenAddress" yaml:"listenAddress"`
	TCPPort       int    `json:"tcpPort" yaml:"tcpPort"`
	UDPPort       int    `json:"udpPort" yaml:"udpPort"`

	TCPMaxConnections     *int `json:"tcpMaxConnections" yaml:"tcpMaxConnections"`
	TCPIdleTimeoutSeconds *int `json:"tcpIdleTimeoutSeconds" yaml:"tcpIdleTimeoutSeconds"`

	UDPMaxRequestsPerSecond   *int `json:"udpMaxRequestsPerSecond" yaml:"udpMaxRequestsPerSecond"`
	UDPRateLimitWindowSeconds int  `json:"udpRateLimitWindowSeconds" yaml:"udpRateLimitWindowSeconds"`
	// UDPMaxInFlight bounds concurrently running datagram handlers.
	UDPMaxInFlight *int `json:"udpMaxInFlight,omitempty" yaml:"udpMaxInFlight,omitempty"`

	// ReusePort sets SO_REUSEPORT on both sockets.
	ReusePort bool `json:"reusePort,omitempty" yaml:"reusePort,omitempty"`
	// TCPMaxAcceptsPerSecond throttles the accept loop. 0 is unthrottled.
	TCPMaxAcceptsPerSecond float64 `json:"tcpMaxAcceptsPerSecond,omitempty" yaml:"tcpMaxAcceptsPerSecond,omitempty"`
}

// TCPActive reports whether the TCP server should run.
func (p *ProtocolConfiguration) TCPActive() bool { return p.Enabled && p.TCPEnabled }

// UDPActive reports whether the UDP server should run.
func (p *ProtocolConfiguration) UDPActive() bool { return p.Enabled && p.UDPEnabled }

// TCPAddress returns the TCP bind address.
func (p *ProtocolConfiguration) TCPAddress() string {
	return net.JoinHostPort(p.ListenAddress, strconv.Itoa(p.TCPPort))
}

// UDPAddress returns the UDP bind address.
func (p *ProtocolConfiguration) UDPAddress() string {
	return net.JoinHostPort(p.ListenAddress, strconv.Itoa(p.UDPPort))
}

// MaxConnections returns the connection limit, 0 meaning unlimited.
func (p *ProtocolConfiguration) MaxConnections() int {
	if p.TCPMaxConnections == nil {
		return 0
	}
	return *p.TCPMaxConnections
}

// IdleTimeout returns the idle timeout, 0 meaning none.
func (p *ProtocolConfiguration) IdleTimeout() time.Duration {
	if p.TCPIdleTimeoutSeconds == nil {
		return 0
	}
	return time.Duration(*p.TCPIdleTimeoutSeconds) * time.Second
}

// MaxInFlight returns the datagram handler limit, 0 meaning unlimited.
func (p *ProtocolConfiguration) MaxInFlight() int {
	if p.UDPMaxInFlight == nil {
		return 0
	}
	return *p.UDPMaxInFlight
}

// RateLimit returns the per-source datagram budget. The configured
// per-second rate is scaled to the window, so 100 req/s over a 2 s window
// admits 200 requests per window.
func (p *ProtocolConfiguration) RateLimit() ratelimit.Limit {
	if p.UDPMaxRequestsPerSecond == nil || p.UDPRateLimitWindowSeconds <= 0 {
		return ratelimit.Limit{}
	}
	return ratelimit.Limit{
		MaxRequests: *p.UDPMaxRequestsPerSecond * p.UDPRateLimitWindowSeconds,
		Window:      time.Duration(p.UDPRateLimitWindowSeconds) * time.Second,
	}
}

// EchoConfiguration configures the echo protocol.
type EchoConfiguration struct {
	ProtocolConfiguration `yaml:",inline"`

	// BufferLength is the TCP read size.
	BufferLength int `json:"bufferLength,omitempty" yaml:"bufferLength,omitempty"`
}

// DiscardConfiguration configures the discard protocol.
type DiscardConfiguration struct {
	ProtocolConfiguration `yaml:",inline"`

	BufferLength int `json:"bufferLength,omitempty" yaml:"bufferLength,omitempty"`
}

// DaytimeConfiguration configures the daytime protocol.
type DaytimeConfiguration struct {
	ProtocolConfiguration `yaml:",inline"`

	// Format is a named format ("o", "rfc3339", "rfc1123", ...) or a Go
	// time layout.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ChargenConfiguration configures the character generator protocol.
type ChargenConfiguration struct {
	ProtocolConfiguration `yaml:",inline"`

	// MaxLines ends a TCP session after this many lines. 0 is unlimited.
	MaxLines uint64 `json:"maxLines,omitempty" yaml:"maxLines,omitempty"`
	// LineRate is lines per second per TCP session. Negative disables pacing.
	LineRate float64 `json:"lineRate,omitempty" yaml:"lineRate,omitempty"`
}

// HealthCheckConfiguration configures the HTTP health endpoint.
type HealthCheckConfiguration struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	ListenAddress string `json:"listenAddress" yaml:"listenAddress"`
	Port          int    `json:"port" yaml:"port"`
}

// Address returns the HTTP bind address.
func (h *HealthCheckConfiguration) Address() string {
	return net.JoinHostPort(h.ListenAddress, strconv.Itoa(h.Port))
}

// Metrics backends.
const (
	MetricsBackendBuiltin    = "builtin"
	MetricsBackendPrometheus = "prometheus"
)

// MetricsConfiguration selects the metrics backend served on /metrics.
type MetricsConfiguration struct {
	Backend string `json:"backend" yaml:"backend"`
}

// LoggingConfiguration configures operational logging.
type LoggingConfiguration struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`

	// File enables a rotating log file in addition to stderr.
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`
	MaxAgeDays int    `json:"maxAgeDays,omitempty" yaml:"maxAgeDays,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}
