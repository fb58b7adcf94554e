// Package mute tracks which participants are silenced and until when.
package mute

import (
	"time"
)

// DefaultDuration applies when a mute command gives no explicit length.
const DefaultDuration = 60 * time.Second

// Registry maps participant IDs to mute expiry times. Entries are checked lazily and
// stay inert once expired until Sweep or Forget removes them. Not safe for concurrent
// use; the session manager holds its lock around every call.
type Registry struct {
	expiries map[string]time.Time
	now      func() time.Time
}

// NewRegistryWithClock creates a registry with an injected clock.
func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		expiries: make(map[string]time.Time),
		now:      now,
	}
}

// Mute silences id for d, replacing any earlier entry. A non-positive d uses
// DefaultDuration. It returns the new expiry.
func (r *Registry) Mute(id string, d time.Duration) time.Time {
	if d <= 0 {
		d = DefaultDuration
	}
	until := r.now().Add(d)
	r.expiries[id] = until
	return until
}

// IsMuted reports whether id has an entry expiring in the future.
func (r *Registry) IsMuted(id string) bool {
	return r.Remaining(id) > 0
}

// Remaining returns how long id stays muted, or zero.
func (r *Registry) Remaining(id string) time.Duration {
	until, exists := r.expiries[id]
	if !exists {
		return 0
	}
	if left := until.Sub(r.now()); left > 0 {
		return left
	}
	return 0
}

// Forget drops id's entry, expired or not.
func (r *Registry) Forget(id string) {
	delete(r.expiries, id)
}

// Sweep removes expired entries and returns how many were dropped.
func (r *Registry) Sweep() int {
	now := r.now()
	removed := 0
	for id, until := range r.expiries {
		if !now.Before(until) {
			delete(r.expiries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (r *Registry) Len() int {
	return len(r.expiries)
}
