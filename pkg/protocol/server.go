package protocol

import (
	"net"
	"time"
)

// State is the lifecycle state of a server.
type State string

// Lifecycle states.
const (
	StateStopped   State = "stopped"
	StateListening State = "listening"
	StateDraining  State = "draining"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// StandaloneServer is a Server that owns its own socket.
type StandaloneServer interface {
	Server

	// Addr returns the bound address, or nil when not listening.
	// With port 0 this reports the port chosen by the kernel.
	Addr() net.Addr

	// State returns the current lifecycle state.
	State() State
}

// Observable servers expose runtime statistics.
type Observable interface {
	Stats() Stats
}

// Stats is a point-in-time snapshot of a server.
type Stats struct {
	State     State     `json:"state"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	Uptime    string    `json:"uptime,omitempty"`

	// ActiveConnections is the number of stream connections being served,
	// or datagrams being handled.
	ActiveConnections int64 `json:"activeConnections"`

	// MaxConnections is the admission limit; 0 means unlimited.
	MaxConnections int `json:"maxConnections,omitempty"`

	// TrackedSources is the number of sources known to the rate limiter.
	TrackedSources int `json:"trackedSources,omitempty"`
}
