package reload

import (
	"context"
	"log/slog"
)

// StartStrategy acknowledges that the channel is live. It only emits a
// developer diagnostic.
type StartStrategy struct {
	diag *slog.Logger
	url  string
}

// NewStart builds the start strategy.
func NewStart(url string, diag *slog.Logger) *StartStrategy {
	if diag == nil {
		diag = slog.New(slog.DiscardHandler)
	}
	return &StartStrategy{diag: diag, url: url}
}

// Apply logs the acknowledgement.
func (s *StartStrategy) Apply(ctx context.Context) error {
	s.diag.Info("hotreload channel live", "url", s.url)
	return nil
}
