package interfaces

import (
	"context"
)

// PreferenceStore persists developer preferences outside document state
// ARCHITECTURAL DISCOVERY: The developer flag survives reloads and restarts,
// so it lives in the store rather than in the client's memory
type PreferenceStore interface {
	// GetPreference returns the stored value and whether it exists
	GetPreference(ctx context.Context, key string) (string, bool, error)

	// SetPreference stores or replaces a value
	SetPreference(ctx context.Context, key, value string) error

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close releases the underlying database
	Close() error
}
