package channel

import "errors"

var (
	ErrChannelUnloaded = errors.New("channel has been unloaded")
	ErrAlreadyRunning  = errors.New("channel is already running")
	ErrConnectionLost  = errors.New("connection closed involuntarily")
	ErrInvalidURL      = errors.New("document url must be absolute http or https")
	ErrInvalidDelay    = errors.New("reconnect delay must be positive")
	ErrNilSink         = errors.New("mode sink cannot be nil")
)
