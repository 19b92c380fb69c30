package interfaces

import (
	"context"
)

// Strategy is an idempotent reload action bound to one mode
// ARCHITECTURAL DISCOVERY: A single Apply capability lets new modes be
// registered without touching the flush driver's dispatch logic
type Strategy interface {
	// Apply runs the action. It is invoked on the client's event loop and
	// must not block on I/O: long work is started asynchronously and its
	// result posted back to the loop.
	Apply(ctx context.Context) error
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(ctx context.Context) error

// Apply calls f(ctx).
func (f StrategyFunc) Apply(ctx context.Context) error {
	return f(ctx)
}

// Fetcher retrieves the current markup of a document.
// FUNCTIONAL DISCOVERY: Implementations that honour ctx cancellation provide
// the optional abort capability; ordering correctness never depends on it
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
