package presence

import "errors"

var (
	ErrAlreadyRunning = errors.New("presence broadcaster is already running")
	ErrNotRunning     = errors.New("presence broadcaster is not running")
)
