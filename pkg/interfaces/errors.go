package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrPreferenceNotFound = errors.New("preference not found")
	ErrStoreClosed        = errors.New("preference store is closed")
)
