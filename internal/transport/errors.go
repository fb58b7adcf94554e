package transport

import (
	"errors"

	"breakout/pkg/interfaces"
)

var (
	// ErrPeerGone wraps every read or write failure caused by the remote side leaving.
	// It is interfaces.ErrPeerClosed so handlers need not import this package.
	ErrPeerGone    = interfaces.ErrPeerClosed
	ErrInvalidUTF8 = errors.New("message is not valid UTF-8")
	ErrNilHandler  = errors.New("connection handler cannot be nil")
)
