package interfaces

import (
	"context"

	"breakout/pkg/types"
)

// AuditLog records session events for later inspection. It never feeds state back into
// the broker.
type AuditLog interface {
	// RecordEvent persists one event. The event ID and timestamp are filled in when empty.
	RecordEvent(ctx context.Context, event *types.Event) error

	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]*types.Event, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources.
	Close() error
}
