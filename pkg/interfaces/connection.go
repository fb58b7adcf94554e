package interfaces

// Peer is one participant's transport handle. TCP sockets and WebSocket connections both
// implement it so the broker never sees which transport a participant uses.
type Peer interface {
	// ID returns a unique identifier assigned when the peer was accepted.
	ID() string

	// Receive blocks until the next logical message arrives. One TCP read or one
	// WebSocket text frame is one message.
	Receive() (string, error)

	// Send writes one message to the peer. Safe for concurrent use.
	Send(msg string) error

	// Close closes the underlying connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the peer's network address for logging.
	RemoteAddr() string
}
