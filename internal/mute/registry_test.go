package mute

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry() (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	return NewRegistryWithClock(clock.Now), clock
}

func TestRegistry_MuteExpires(t *testing.T) {
	r, clock := newTestRegistry()

	r.Mute("s1", 10*time.Second)
	if !r.IsMuted("s1") {
		t.Fatal("s1 should be muted right after Mute")
	}

	clock.Advance(9 * time.Second)
	if !r.IsMuted("s1") {
		t.Error("s1 should still be muted before expiry")
	}

	clock.Advance(time.Second)
	if r.IsMuted("s1") {
		t.Error("s1 should not be muted at expiry")
	}

	if r.Len() != 1 {
		t.Errorf("Expired entry should stay until swept, Len = %d", r.Len())
	}
}

func TestRegistry_DefaultDuration(t *testing.T) {
	r, clock := newTestRegistry()

	until := r.Mute("s1", 0)
	if want := clock.Now().Add(DefaultDuration); !until.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, until)
	}

	clock.Advance(59 * time.Second)
	if !r.IsMuted("s1") {
		t.Error("Default mute should last 60 seconds")
	}
	clock.Advance(time.Second)
	if r.IsMuted("s1") {
		t.Error("Default mute should end after 60 seconds")
	}
}

func TestRegistry_MuteOverwrites(t *testing.T) {
	r, clock := newTestRegistry()

	r.Mute("s1", time.Hour)
	r.Mute("s1", 5*time.Second)
	clock.Advance(6 * time.Second)
	if r.IsMuted("s1") {
		t.Error("A later shorter mute should replace the earlier one")
	}
}

func TestRegistry_UnknownNotMuted(t *testing.T) {
	r, _ := newTestRegistry()
	if r.IsMuted("nobody") {
		t.Error("Unknown id should not be muted")
	}
	if r.Remaining("nobody") != 0 {
		t.Error("Unknown id should have no remaining time")
	}
}

func TestRegistry_Remaining(t *testing.T) {
	r, clock := newTestRegistry()
	r.Mute("s1", 30*time.Second)
	clock.Advance(10 * time.Second)
	if got := r.Remaining("s1"); got != 20*time.Second {
		t.Errorf("Expected 20s remaining, got %v", got)
	}
	clock.Advance(time.Minute)
	if got := r.Remaining("s1"); got != 0 {
		t.Errorf("Expected 0 remaining after expiry, got %v", got)
	}
}

func TestRegistry_SweepAndForget(t *testing.T) {
	r, clock := newTestRegistry()
	r.Mute("short", time.Second)
	r.Mute("long", time.Hour)
	r.Mute("gone", time.Hour)

	clock.Advance(2 * time.Second)
	if removed := r.Sweep(); removed != 1 {
		t.Errorf("Expected 1 swept entry, got %d", removed)
	}
	if !r.IsMuted("long") {
		t.Error("Sweep should keep live entries")
	}

	r.Forget("gone")
	if r.IsMuted("gone") {
		t.Error("Forget should drop the entry")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", r.Len())
	}
}
