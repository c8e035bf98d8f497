package protocol

// Error is a simple error type for protocol errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors for registry operations.
const (
	// ErrNilServer is returned when attempting to register a nil server.
	ErrNilServer = Error("server cannot be nil")

	// ErrEmptyServerID is returned when a server has an empty ID.
	ErrEmptyServerID = Error("server ID cannot be empty")

	// ErrServerExists is returned when registering a server with an ID
	// that is already registered.
	ErrServerExists = Error("server with this ID already exists")
)
