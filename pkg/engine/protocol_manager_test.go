package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/superserver/pkg/config"
	"github.com/getmockd/superserver/pkg/protocol"
)

// testConfig enables every protocol on both transports with kernel-assigned
// loopback ports.
func testConfig() *config.Configuration {
	cfg := config.DefaultConfiguration()
	for _, p := range protocol.All() {
		pc := cfg.Servers.Protocol(p)
		pc.Enabled = true
		pc.TCPEnabled = true
		pc.UDPEnabled = true
		pc.ListenAddress = "127.0.0.1"
		pc.TCPPort = 0
		pc.UDPPort = 0
	}
	cfg.Servers.Chargen.LineRate = -1
	cfg.HealthCheck.Port = 0
	return cfg
}

// lookup finds a registered server by ID.
func lookup(r *protocol.Registry, id string) (protocol.Server, bool) {
	for _, s := range r.List() {
		if s.Metadata().ID == id {
			return s, true
		}
	}
	return nil, false
}

func TestProtocolManager_Build(t *testing.T) {
	cfg := testConfig()
	cfg.Servers.Discard.Enabled = false
	cfg.Servers.Daytime.UDPEnabled = false

	pm := NewProtocolManager(config.NewProvider("", cfg))
	require.NoError(t, pm.Build())
	require.NoError(t, pm.Build(), "second build is a no-op")

	r := pm.Registry()
	assert.Equal(t, 5, r.Count())
	for _, id := range []string{"echo-tcp", "echo-udp", "daytime-tcp", "chargen-tcp", "chargen-udp"} {
		_, ok := lookup(r, id)
		assert.True(t, ok, id)
	}
	_, ok := lookup(r, "discard-tcp")
	assert.False(t, ok)
	_, ok = lookup(r, "daytime-udp")
	assert.False(t, ok)

	s, _ := lookup(r, "echo-tcp")
	md := s.Metadata()
	assert.Equal(t, protocol.ConnectionModelStream, md.ConnectionModel)
	assert.Equal(t, "127.0.0.1:0", md.Address)
}

func TestProtocolManager_UDPMaxInFlight(t *testing.T) {
	cfg := testConfig()
	limit := 4
	cfg.Servers.Discard.UDPMaxInFlight = &limit

	pm := NewProtocolManager(config.NewProvider("", cfg))
	require.NoError(t, pm.Build())

	s, ok := lookup(pm.Registry(), "discard-udp")
	require.True(t, ok)
	assert.Equal(t, 4, s.(protocol.Observable).Stats().MaxConnections)

	s, ok = lookup(pm.Registry(), "daytime-udp")
	require.True(t, ok)
	assert.Zero(t, s.(protocol.Observable).Stats().MaxConnections, "null means unlimited")
}

func TestProtocolManager_MasterSwitchWins(t *testing.T) {
	cfg := testConfig()
	for _, p := range protocol.All() {
		cfg.Servers.Protocol(p).Enabled = false
	}

	pm := NewProtocolManager(config.NewProvider("", cfg))
	require.NoError(t, pm.Build())
	assert.Zero(t, pm.Registry().Count())
}

func TestProtocolManager_RateLimitFollowsProvider(t *testing.T) {
	cfg := testConfig()
	provider := config.NewProvider("", cfg)
	pm := NewProtocolManager(provider)

	limit := pm.rateLimit(protocol.ProtocolEcho)
	assert.Equal(t, config.DefaultUDPMaxRequestsPerSecond, limit().MaxRequests)

	next := testConfig()
	perSecond := 5
	next.Servers.Echo.UDPMaxRequestsPerSecond = &perSecond
	next.Servers.Echo.UDPRateLimitWindowSeconds = 2
	provider.Update(next)

	got := limit()
	assert.Equal(t, 10, got.MaxRequests)
	assert.Equal(t, 2*time.Second, got.Window)

	next = testConfig()
	next.Servers.Echo.UDPMaxRequestsPerSecond = nil
	provider.Update(next)
	assert.Zero(t, limit().MaxRequests, "null means unlimited")
}

func TestUDPWarning(t *testing.T) {
	assert.NotEmpty(t, udpWarning(protocol.ProtocolEcho))
	assert.NotEmpty(t, udpWarning(protocol.ProtocolChargen))
	assert.Empty(t, udpWarning(protocol.ProtocolDaytime))
	assert.Empty(t, udpWarning(protocol.ProtocolDiscard))
}
