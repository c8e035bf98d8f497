package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/getmockd/superserver/pkg/protocol"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

var (
	validLogLevels      = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats     = map[string]bool{"text": true, "json": true}
	validMetricsBackend = map[string]bool{MetricsBackendBuiltin: true, MetricsBackendPrometheus: true}
)

// Validate checks the whole configuration and returns every problem found,
// joined with errors.Join. Each joined error is a *ValidationError.
func (c *Configuration) Validate() error {
	var errs []error
	for _, p := range protocol.All() {
		errs = append(errs, c.Servers.Protocol(p).validate("servers."+p.String())...)
	}
	errs = append(errs, c.validatePortConflicts()...)
	errs = append(errs, c.Servers.Echo.validateBuffer("servers.echo")...)
	errs = append(errs, c.Servers.Discard.validateBuffer("servers.discard")...)
	errs = append(errs, c.HealthCheck.validate()...)
	errs = append(errs, c.Metrics.validate()...)
	errs = append(errs, c.Logging.validate()...)
	return errors.Join(errs...)
}

func (p *ProtocolConfiguration) validate(prefix string) []error {
	var errs []error
	invalid := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: prefix + "." + field, Message: fmt.Sprintf(format, args...)})
	}

	if !p.Enabled {
		return nil
	}
	if _, err := netip.ParseAddr(p.ListenAddress); err != nil {
		invalid("listenAddress", "%q is not a valid IP address", p.ListenAddress)
	}
	if p.TCPEnabled && !validPort(p.TCPPort) {
		invalid("tcpPort", "tcpPort must be between 0 and 65535")
	}
	if p.UDPEnabled && !validPort(p.UDPPort) {
		invalid("udpPort", "udpPort must be between 0 and 65535")
	}
	if p.TCPMaxConnections != nil && *p.TCPMaxConnections < 1 {
		invalid("tcpMaxConnections", "tcpMaxConnections must be >= 1 or null for unlimited")
	}
	if p.TCPIdleTimeoutSeconds != nil && *p.TCPIdleTimeoutSeconds < 1 {
		invalid("tcpIdleTimeoutSeconds", "tcpIdleTimeoutSeconds must be >= 1 or null for none")
	}
	if p.UDPMaxRequestsPerSecond != nil && *p.UDPMaxRequestsPerSecond < 1 {
		invalid("udpMaxRequestsPerSecond", "udpMaxRequestsPerSecond must be >= 1 or null for unlimited")
	}
	if p.UDPMaxInFlight != nil && *p.UDPMaxInFlight < 1 {
		invalid("udpMaxInFlight", "udpMaxInFlight must be >= 1 or null for unlimited")
	}
	if p.UDPRateLimitWindowSeconds < 1 {
		invalid("udpRateLimitWindowSeconds", "udpRateLimitWindowSeconds must be >= 1")
	}
	if p.TCPMaxAcceptsPerSecond < 0 {
		invalid("tcpMaxAcceptsPerSecond", "tcpMaxAcceptsPerSecond must be >= 0")
	}
	return errs
}

func (e *EchoConfiguration) validateBuffer(prefix string) []error {
	return validateBufferLength(prefix, e.BufferLength)
}

func (d *DiscardConfiguration) validateBuffer(prefix string) []error {
	return validateBufferLength(prefix, d.BufferLength)
}

func validateBufferLength(prefix string, n int) []error {
	if n < 0 {
		return []error{&ValidationError{Field: prefix + ".bufferLength", Message: "bufferLength must be >= 0"}}
	}
	return nil
}

type binding struct {
	transport protocol.TransportType
	addr      netip.Addr
	port      int
	field     string
}

func (b binding) overlaps(o binding) bool {
	if b.transport != o.transport || b.port != o.port || b.port == 0 {
		return false
	}
	return b.addr == o.addr || b.addr.IsUnspecified() || o.addr.IsUnspecified()
}

// validatePortConflicts rejects two enabled servers bound to the same
// transport and port on overlapping addresses.
func (c *Configuration) validatePortConflicts() []error {
	var bindings []binding
	for _, p := range protocol.All() {
		pc := c.Servers.Protocol(p)
		addr, err := netip.ParseAddr(pc.ListenAddress)
		if err != nil {
			continue
		}
		prefix := "servers." + p.String()
		if pc.TCPActive() {
			bindings = append(bindings, binding{protocol.TransportTCP, addr, pc.TCPPort, prefix + ".tcpPort"})
		}
		if pc.UDPActive() {
			bindings = append(bindings, binding{protocol.TransportUDP, addr, pc.UDPPort, prefix + ".udpPort"})
		}
	}
	if c.HealthCheck.Enabled {
		if addr, err := netip.ParseAddr(c.HealthCheck.ListenAddress); err == nil {
			bindings = append(bindings, binding{protocol.TransportTCP, addr, c.HealthCheck.Port, "healthCheck.port"})
		}
	}

	var errs []error
	for i := range bindings {
		for j := 0; j < i; j++ {
			if bindings[i].overlaps(bindings[j]) {
				errs = append(errs, &ValidationError{
					Field:   bindings[i].field,
					Message: fmt.Sprintf("%s port %d conflicts with %s", bindings[i].transport, bindings[i].port, bindings[j].field),
				})
			}
		}
	}
	return errs
}

func (h *HealthCheckConfiguration) validate() []error {
	if !h.Enabled {
		return nil
	}
	var errs []error
	if _, err := netip.ParseAddr(h.ListenAddress); err != nil {
		errs = append(errs, &ValidationError{Field: "healthCheck.listenAddress", Message: fmt.Sprintf("%q is not a valid IP address", h.ListenAddress)})
	}
	if !validPort(h.Port) {
		errs = append(errs, &ValidationError{Field: "healthCheck.port", Message: "port must be between 0 and 65535"})
	}
	return errs
}

func (m *MetricsConfiguration) validate() []error {
	if !validMetricsBackend[m.Backend] {
		return []error{&ValidationError{
			Field:   "metrics.backend",
			Message: fmt.Sprintf("unknown backend %q (want %s or %s)", m.Backend, MetricsBackendBuiltin, MetricsBackendPrometheus),
		}}
	}
	return nil
}

func (l *LoggingConfiguration) validate() []error {
	var errs []error
	if !validLogLevels[strings.ToLower(l.Level)] {
		errs = append(errs, &ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", l.Level)})
	}
	if !validLogFormats[strings.ToLower(l.Format)] {
		errs = append(errs, &ValidationError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", l.Format)})
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		errs = append(errs, &ValidationError{Field: "logging", Message: "rotation limits must be >= 0"})
	}
	return errs
}

func validPort(port int) bool {
	return port >= 0 && port <= 65535
}
