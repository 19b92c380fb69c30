package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout after 5 seconds")
	ErrEmptyMode        = errors.New("mode cannot be empty")
)

// Registry-related errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
	ErrEmptyClientID = errors.New("connection must carry a client id")
)

// Handler-related errors
var (
	ErrInvalidClientID = errors.New("invalid client_id parameter")
)
