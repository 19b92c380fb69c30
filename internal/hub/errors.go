package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrHubStopped        = errors.New("hub has stopped")
	ErrInvalidWindow     = errors.New("debounce window must be positive and not exceed the cap")
	ErrNilRegistry       = errors.New("strategy registry cannot be nil")
	ErrClientUnloaded    = errors.New("client has been unloaded")
)
