package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"hotreload/internal/dom"
	"hotreload/pkg/interfaces"
	"hotreload/pkg/types"
)

// Loop posts a task onto the client's event loop. Post returns false once
// the loop has stopped.
type Loop interface {
	Post(task func()) bool
}

// Merger applies fetched markup to the live document.
type Merger interface {
	Merge(doc *dom.Document, markup string) error
}

// PageConfig wires a PageStrategy.
type PageConfig struct {
	Document *dom.Document
	Window   *dom.Window
	Fetcher  interfaces.Fetcher
	Merger   Merger
	Loop     Loop

	// CancelInFlight aborts the previous fetch when a newer one starts.
	CancelInFlight bool

	Logger *slog.Logger
	Diag   *slog.Logger

	// OnError receives merge failures.
	OnError func(error)
}

// PageStrategy re-fetches the document and merges it in place.
// FUNCTIONAL DISCOVERY: Every fetch carries a sequence number and only the
// latest one is ever merged, so late responses from superseded fetches can
// never overwrite newer markup, with or without cancellation
type PageStrategy struct {
	cfg PageConfig

	// owned by the event loop
	seq    uint64
	cancel context.CancelFunc

	inflight sync.WaitGroup
}

// NewPage builds the page strategy.
func NewPage(cfg PageConfig) *PageStrategy {
	if cfg.Merger == nil {
		cfg.Merger = dom.Merger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Diag == nil {
		cfg.Diag = slog.New(slog.DiscardHandler)
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &PageStrategy{cfg: cfg}
}

// Apply starts a fetch of the current document URL and returns at once;
// the result is posted back to the loop.
func (p *PageStrategy) Apply(ctx context.Context) error {
	p.seq++
	seq := p.seq

	if p.cfg.CancelInFlight && p.cancel != nil {
		p.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	if p.cfg.CancelInFlight {
		p.cancel = cancel
	}

	url := p.cfg.Document.URL()
	p.cfg.Diag.Info("page fetch started", "seq", seq, "url", url)

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer cancel()

		markup, err := p.cfg.Fetcher.Fetch(fetchCtx, url)
		p.cfg.Loop.Post(func() {
			p.complete(seq, markup, err)
		})
	}()
	return nil
}

// Wait blocks until every started fetch has returned and posted its result.
func (p *PageStrategy) Wait() {
	p.inflight.Wait()
}

func (p *PageStrategy) complete(seq uint64, markup string, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			p.cfg.Diag.Info("page fetch superseded", "seq", seq)
			return
		}
		p.cfg.Logger.Warn("page fetch failed", "seq", seq, "url", p.cfg.Document.URL(), "err", err)
		return
	}

	if seq != p.seq {
		p.cfg.Diag.Info("dropping stale page fetch", "seq", seq, "latest", p.seq)
		return
	}

	if err := p.cfg.Merger.Merge(p.cfg.Document, markup); err != nil {
		err = fmt.Errorf("%w: %v", ErrMergeFailed, err)
		p.cfg.Logger.Error("page merge failed", "seq", seq, "url", p.cfg.Document.URL(), "err", err)
		p.cfg.OnError(err)
		return
	}

	n := 0
	if p.cfg.Window != nil {
		n = p.cfg.Window.DispatchEvent(dom.Event{Name: types.EventLoad, Bubbles: true})
	}
	p.cfg.Diag.Info("page merged", "seq", seq, "listeners", n)
}
