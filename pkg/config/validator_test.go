package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(err error) []string {
	var out []string
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			var verr *ValidationError
			if errors.As(e, &verr) {
				out = append(out, verr.Field)
			}
		}
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
		want   []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Configuration) {},
		},
		{
			name:   "bad listen address",
			mutate: func(c *Configuration) { c.Servers.Echo.ListenAddress = "not-an-ip" },
			want:   []string{"servers.echo.listenAddress"},
		},
		{
			name:   "disabled protocol is not validated",
			mutate: func(c *Configuration) { c.Servers.Echo.Enabled = false; c.Servers.Echo.ListenAddress = "nope" },
		},
		{
			name: "non positive limits",
			mutate: func(c *Configuration) {
				c.Servers.Discard.TCPMaxConnections = ptr(0)
				c.Servers.Discard.TCPIdleTimeoutSeconds = ptr(-1)
				c.Servers.Discard.UDPMaxRequestsPerSecond = ptr(0)
				c.Servers.Discard.UDPRateLimitWindowSeconds = 0
				c.Servers.Discard.UDPMaxInFlight = ptr(0)
			},
			want: []string{
				"servers.discard.tcpMaxConnections",
				"servers.discard.tcpIdleTimeoutSeconds",
				"servers.discard.udpMaxRequestsPerSecond",
				"servers.discard.udpRateLimitWindowSeconds",
				"servers.discard.udpMaxInFlight",
			},
		},
		{
			name:   "bounded in-flight datagrams",
			mutate: func(c *Configuration) { c.Servers.Discard.UDPMaxInFlight = ptr(16) },
		},
		{
			name:   "port conflict on same transport",
			mutate: func(c *Configuration) { c.Servers.Daytime.TCPPort = 2009 },
			want:   []string{"servers.daytime.tcpPort"},
		},
		{
			name: "same port on different transports is fine",
			mutate: func(c *Configuration) {
				c.Servers.Daytime.TCPEnabled = false
				c.Servers.Daytime.UDPPort = 2007
			},
		},
		{
			name:   "wildcard address overlaps",
			mutate: func(c *Configuration) { c.HealthCheck.ListenAddress = "0.0.0.0"; c.HealthCheck.Port = 2013 },
			want:   []string{"healthCheck.port"},
		},
		{
			name:   "unknown metrics backend",
			mutate: func(c *Configuration) { c.Metrics.Backend = "statsd" },
			want:   []string{"metrics.backend"},
		},
		{
			name:   "logging",
			mutate: func(c *Configuration) { c.Logging.Level = "trace"; c.Logging.Format = "xml" },
			want:   []string{"logging.level", "logging.format"},
		},
		{
			name:   "negative buffer",
			mutate: func(c *Configuration) { c.Servers.Echo.BufferLength = -1 },
			want:   []string{"servers.echo.bufferLength"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfiguration()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ElementsMatch(t, tt.want, fields(err))
		})
	}
}

func TestValidate_LevelIsCaseInsensitive(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.Logging.Level = "DEBUG"
	cfg.Logging.Format = "JSON"
	assert.NoError(t, cfg.Validate())
}
