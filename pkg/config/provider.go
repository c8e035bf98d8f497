package config

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/getmockd/superserver/pkg/protocol"
)

// ChangeFunc is called after the configuration was replaced.
type ChangeFunc func(old, current *Configuration)

// Provider holds the live configuration. Readers call Current on every use,
// so values such as rate limits follow a reload without a restart.
type Provider struct {
	path    string
	current atomic.Pointer[Configuration]

	mu     sync.Mutex
	subs   map[int]ChangeFunc
	nextID int
}

// NewProvider returns a provider serving cfg. path is the file Reload reads;
// it may be empty when the configuration did not come from a file.
func NewProvider(path string, cfg *Configuration) *Provider {
	if cfg == nil {
		cfg = DefaultConfiguration()
	}
	p := &Provider{path: path, subs: make(map[int]ChangeFunc)}
	p.current.Store(cfg)
	return p
}

// Open loads path (or the defaults when path is empty) into a new provider.
func Open(path string) (*Provider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewProvider(path, cfg), nil
}

// Path returns the configuration file path.
func (p *Provider) Path() string { return p.path }

// Current returns the live configuration. Callers must not modify it.
func (p *Provider) Current() *Configuration {
	return p.current.Load()
}

// Reload re-reads the configuration file. On error the current
// configuration stays in place.
func (p *Provider) Reload() (*Configuration, error) {
	if p.path == "" {
		return p.Current(), nil
	}
	cfg, err := LoadFromFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", p.path, err)
	}
	p.Update(cfg)
	return cfg, nil
}

// Update swaps in cfg and notifies subscribers. cfg must already be valid.
func (p *Provider) Update(cfg *Configuration) {
	old := p.current.Swap(cfg)

	p.mu.Lock()
	subs := make([]ChangeFunc, 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(old, cfg)
	}
}

// OnChange registers fn and returns a function that removes it.
func (p *Provider) OnChange(fn ChangeFunc) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// RestartRequired lists the settings that differ between old and current but
// only take effect after a restart: enable flags, addresses, ports, socket
// options, connection limits and timeouts, handler options, the health
// endpoint, the metrics backend and logging.
func RestartRequired(old, current *Configuration) []string {
	var changed []string
	for _, proto := range protocol.All() {
		o, c := old.Servers.Protocol(proto), current.Servers.Protocol(proto)
		prefix := "servers." + proto.String() + "."
		check := func(field string, a, b any) {
			if !reflect.DeepEqual(a, b) {
				changed = append(changed, prefix+field)
			}
		}
		check("enabled", o.Enabled, c.Enabled)
		check("tcpEnabled", o.TCPEnabled, c.TCPEnabled)
		check("udpEnabled", o.UDPEnabled, c.UDPEnabled)
		check("listenAddress", o.ListenAddress, c.ListenAddress)
		check("tcpPort", o.TCPPort, c.TCPPort)
		check("udpPort", o.UDPPort, c.UDPPort)
		check("tcpMaxConnections", o.TCPMaxConnections, c.TCPMaxConnections)
		check("tcpIdleTimeoutSeconds", o.TCPIdleTimeoutSeconds, c.TCPIdleTimeoutSeconds)
		check("udpMaxInFlight", o.UDPMaxInFlight, c.UDPMaxInFlight)
		check("reusePort", o.ReusePort, c.ReusePort)
		check("tcpMaxAcceptsPerSecond", o.TCPMaxAcceptsPerSecond, c.TCPMaxAcceptsPerSecond)
	}
	if old.Servers.Echo.BufferLength != current.Servers.Echo.BufferLength {
		changed = append(changed, "servers.echo.bufferLength")
	}
	if old.Servers.Discard.BufferLength != current.Servers.Discard.BufferLength {
		changed = append(changed, "servers.discard.bufferLength")
	}
	if old.Servers.Daytime.Format != current.Servers.Daytime.Format {
		changed = append(changed, "servers.daytime.format")
	}
	if old.Servers.Chargen.MaxLines != current.Servers.Chargen.MaxLines ||
		old.Servers.Chargen.LineRate != current.Servers.Chargen.LineRate {
		changed = append(changed, "servers.chargen")
	}
	if old.HealthCheck != current.HealthCheck {
		changed = append(changed, "healthCheck")
	}
	if old.Metrics != current.Metrics {
		changed = append(changed, "metrics")
	}
	if old.Logging != current.Logging {
		changed = append(changed, "logging")
	}
	return changed
}
