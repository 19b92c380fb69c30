package reload

import "errors"

var (
	ErrNilStrategy      = errors.New("strategy cannot be nil")
	ErrDuplicateMode    = errors.New("mode already registered")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrCrossOrigin      = errors.New("redirect leaves the document's origin")
	ErrMergeFailed      = errors.New("failed to merge fetched markup")
)
