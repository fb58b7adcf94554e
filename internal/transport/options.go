package transport

import (
	"context"
	"time"

	"breakout/pkg/interfaces"
	"breakout/pkg/protocol"
)

// Options configures both transports.
type Options struct {
	WriteTimeout    time.Duration // 0 disables the write deadline
	PingInterval    time.Duration // WebSocket only
	PongWait        time.Duration // WebSocket only
	MaxMessageBytes int
}

// DefaultOptions returns the settings used when the configuration leaves them unset.
func DefaultOptions() Options {
	return Options{
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageBytes: protocol.MaxMessageBytes,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = 2 * o.PingInterval
	}
	if o.WriteTimeout < 0 {
		o.WriteTimeout = 0
	}
	return o
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// ConnHandler drives one connection from login to close. ServeConn returns when the
// connection is finished.
type ConnHandler interface {
	ServeConn(ctx context.Context, peer interfaces.Peer)
}

// ConnHandlerFunc adapts a function to ConnHandler.
type ConnHandlerFunc func(ctx context.Context, peer interfaces.Peer)

func (f ConnHandlerFunc) ServeConn(ctx context.Context, peer interfaces.Peer) {
	f(ctx, peer)
}
