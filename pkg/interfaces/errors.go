package interfaces

import "errors"

// Errors shared by Peer and AuditLog implementations.
var (
	ErrPeerClosed  = errors.New("peer closed")
	ErrAuditClosed = errors.New("audit log is closed")
)
