package interfaces

// Connection represents one live client channel as seen by the hub
// ARCHITECTURAL DISCOVERY: The hub and registry only ever hold this abstraction,
// never the transport, so fan-out can be exercised with in-memory fakes
type Connection interface {
	// ID returns the opaque identifier assigned at creation
	ID() string

	// Username returns the identity bound at admission; it never changes
	Username() string

	// Send queues an encoded frame without blocking.
	// Implementations must return an error rather than wait when the
	// outbound buffer is full.
	Send(data []byte) error

	// Close tears the connection down; safe to call more than once
	Close() error

	// IsClosed reports whether Close has run
	IsClosed() bool
}
