package protocol

import (
	"context"
	"time"
)

// Server is the contract every listening runtime implements so the engine
// can manage it uniformly.
type Server interface {
	// Metadata returns descriptive information about the server.
	Metadata() Metadata

	// Start binds the listen address and serves until ctx is cancelled or
	// Stop is called. It blocks, and only returns a non-nil error when the
	// address cannot be bound.
	Start(ctx context.Context) error

	// Stop stops accepting new work. It is idempotent.
	Stop()

	// Close stops the server and waits for in-flight work to finish.
	// A closed server cannot be restarted.
	Close() error

	// Health returns the current health status of the server.
	Health(ctx context.Context) HealthStatus
}

// Metadata provides descriptive information about a server.
type Metadata struct {
	// ID is the unique identifier, e.g. "echo-tcp".
	ID string `json:"id"`

	// Name is a human-readable name for display purposes.
	Name string `json:"name,omitempty"`

	Protocol             Protocol             `json:"protocol"`
	TransportType        TransportType        `json:"transportType"`
	ConnectionModel      ConnectionModel      `json:"connectionModel"`
	CommunicationPattern CommunicationPattern `json:"communicationPattern"`

	// Address is the configured listen address, host:port.
	Address string `json:"address"`
}

// ServerID returns the canonical ID of the server for p over t.
func ServerID(p Protocol, t TransportType) string {
	return string(p) + "-" + string(t)
}

// HealthStatus represents the health of a server.
type HealthStatus struct {
	// Status is the overall health state.
	Status HealthState `json:"status"`

	// Message explains degraded or unhealthy states.
	Message string `json:"message,omitempty"`

	// CheckedAt is when the health check was performed.
	CheckedAt time.Time `json:"checkedAt"`

	// Details contains server-specific information.
	Details any `json:"details,omitempty"`
}

// HealthState is the health status enum.
type HealthState string

// HealthState constants for all possible health states.
const (
	// HealthHealthy indicates the server is listening.
	HealthHealthy HealthState = "healthy"

	// HealthDegraded indicates the server is operational but with issues,
	// for example running at its connection limit.
	HealthDegraded HealthState = "degraded"

	// HealthUnhealthy indicates the server is not listening.
	HealthUnhealthy HealthState = "unhealthy"

	// HealthUnknown indicates the health status cannot be determined.
	HealthUnknown HealthState = "unknown"
)

// String returns the string representation of the health state.
func (h HealthState) String() string {
	return string(h)
}
