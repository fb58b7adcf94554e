// Package presence periodically pushes the full membership list to every participant
// and sweeps expired mute entries.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"breakout/internal/session"
	"breakout/pkg/protocol"
)

const (
	DefaultInterval      = 200 * time.Millisecond
	DefaultSweepInterval = 30 * time.Second
)

// Config controls the broadcaster's tick rates.
type Config struct {
	Interval      time.Duration
	SweepInterval time.Duration
}

// Broadcaster sends a USER_LIST payload to everyone on every tick.
type Broadcaster struct {
	sessions *session.Manager
	config   Config
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}
}

// NewBroadcaster creates a stopped broadcaster.
func NewBroadcaster(sessions *session.Manager, config Config, logger *slog.Logger) *Broadcaster {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	return &Broadcaster{
		sessions: sessions,
		config:   config,
		logger:   logger.With(slog.String("component", "presence")),
	}
}

// Start launches the broadcast loop. It runs until Stop is called or ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrAlreadyRunning
	}
	b.running = true
	b.shutdown = make(chan struct{})
	b.done = make(chan struct{})

	b.logger.Info("Starting presence broadcaster",
		slog.Duration("interval", b.config.Interval),
		slog.Duration("sweep_interval", b.config.SweepInterval))

	go b.run(ctx, b.shutdown, b.done)
	return nil
}

// Stop ends the loop and waits for it to exit.
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return ErrNotRunning
	}
	b.running = false
	close(b.shutdown)
	done := b.done
	b.mu.Unlock()

	<-done
	b.logger.Info("Presence broadcaster stopped")
	return nil
}

// IsRunning reports whether the loop is active.
func (b *Broadcaster) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Broadcaster) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()
	sweeper := time.NewTicker(b.config.SweepInterval)
	defer sweeper.Stop()

	for {
		select {
		case <-ticker.C:
			b.Broadcast()
		case <-sweeper.C:
			if removed := b.sessions.SweepMutes(); removed > 0 {
				b.logger.Debug("Swept expired mutes", slog.Int("removed", removed))
			}
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast sends one snapshot to every participant. Failed sends are logged; the
// connection's own read loop handles the disconnect.
func (b *Broadcaster) Broadcast() int {
	entries, recipients := b.sessions.Snapshot()
	if len(recipients) == 0 {
		return 0
	}

	payload := protocol.FormatPresence(entries)
	delivered := 0
	for _, p := range recipients {
		if err := p.Peer.Send(payload); err != nil {
			b.logger.Debug("Presence update not delivered",
				slog.String("username", p.Username),
				slog.String("error", err.Error()))
			continue
		}
		delivered++
	}
	return delivered
}
