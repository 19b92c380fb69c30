package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hotreload/internal/channel"
	"hotreload/internal/database"
	"hotreload/internal/dom"
	"hotreload/internal/reload"
	"hotreload/pkg/interfaces"
	"hotreload/pkg/types"
)

// ClientConfig wires a Client for one document.
type ClientConfig struct {
	DocumentURL string
	// Document is the live document; when nil the client fetches and parses
	// DocumentURL itself.
	Document *dom.Document

	Hub              Config
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	FetchTimeout     time.Duration
	CancelInFlight   bool
	CacheBustParam   string

	Fetcher interfaces.Fetcher
	Merger  reload.Merger
	Clock   func() time.Time

	// Preferences holds the persisted developer flag. Diagnostics are
	// discarded when it is nil or the flag is off.
	Preferences interfaces.PreferenceStore

	// Extra registers additional strategies next to page, css and start.
	Extra []reload.Entry

	Logger *slog.Logger
}

// DefaultClientConfig returns the defaults for documentURL.
func DefaultClientConfig(documentURL string) ClientConfig {
	return ClientConfig{
		DocumentURL:      documentURL,
		Hub:              DefaultConfig(),
		ReconnectDelay:   time.Second,
		HandshakeTimeout: 10 * time.Second,
		FetchTimeout:     30 * time.Second,
		CancelInFlight:   true,
		CacheBustParam:   types.CacheBustParam,
	}
}

type postFunc func(task func()) bool

func (f postFunc) Post(task func()) bool { return f(task) }

// Client owns everything one followed document needs: the channel, the
// event loop with its pending set and timer, and the strategy registry.
type Client struct {
	hub     *Hub
	channel *channel.Channel
	page    *reload.PageStrategy

	registry *reload.Registry
	doc      *dom.Document
	win      *dom.Window
	errs     chan error
	logger   *slog.Logger
}

// NewClient builds a client. ctx bounds the initial document fetch only.
func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Fetcher == nil {
		config.Fetcher = reload.NewHTTPFetcher(config.FetchTimeout)
	}

	diag := slog.New(slog.DiscardHandler)
	if config.Preferences != nil && database.DebugEnabled(ctx, config.Preferences) {
		diag = config.Logger
	}
	config.Hub.Logger = config.Logger
	config.Hub.Diag = diag

	doc := config.Document
	if doc == nil {
		markup, err := config.Fetcher.Fetch(ctx, config.DocumentURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch document: %w", err)
		}
		doc, err = dom.Parse(config.DocumentURL, markup)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		doc:    doc,
		win:    dom.NewWindow(),
		errs:   make(chan error, 16),
		logger: config.Logger.With("component", "client"),
	}

	c.page = reload.NewPage(reload.PageConfig{
		Document:       doc,
		Window:         c.win,
		Fetcher:        config.Fetcher,
		Merger:         config.Merger,
		Loop:           postFunc(func(task func()) bool { return c.hub.Post(task) }),
		CancelInFlight: config.CancelInFlight,
		Logger:         config.Logger.With("component", "page"),
		Diag:           diag.With("component", "page"),
		OnError:        c.reportError,
	})

	entries := []reload.Entry{
		{Mode: types.ModePage, Strategy: c.page},
		{Mode: types.ModeCSS, Strategy: reload.NewCSS(doc, config.CacheBustParam, config.Clock, diag.With("component", "css"))},
		{Mode: types.ModeStart, Strategy: reload.NewStart(config.DocumentURL, diag.With("component", "start"))},
	}
	registry, err := reload.NewRegistry(append(entries, config.Extra...)...)
	if err != nil {
		return nil, err
	}
	c.registry = registry

	c.hub, err = NewHub(registry, config.Hub)
	if err != nil {
		return nil, err
	}

	channelConfig := channel.DefaultConfig(config.DocumentURL)
	if config.ReconnectDelay > 0 {
		channelConfig.ReconnectDelay = config.ReconnectDelay
	}
	if config.HandshakeTimeout > 0 {
		channelConfig.HandshakeTimeout = config.HandshakeTimeout
	}
	channelConfig.Logger = config.Logger
	channelConfig.Diag = diag

	c.channel, err = channel.New(channelConfig, func(mode string) {
		if err := c.hub.Enqueue(types.Mode(mode)); err != nil {
			c.logger.Warn("dropping mode, event loop stopped", "mode", mode)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Run starts the event loop and keeps the channel connected until ctx ends
// or Unload is called.
func (c *Client) Run(ctx context.Context) error {
	if c.channel.State() == types.StateUnloaded {
		return ErrClientUnloaded
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := c.hub.Start(ctx); err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		_ = c.hub.Stop()
		<-c.hub.Done()
		c.page.Wait()
	}()

	return c.channel.Run(ctx)
}

// Unload is the page-unload hook: the channel closes voluntarily and never
// reconnects.
func (c *Client) Unload() {
	c.channel.Unload()
}

// Errors streams merge failures.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// Document returns the live document.
func (c *Client) Document() *dom.Document {
	return c.doc
}

// Window returns the event target for the synthetic load event.
func (c *Client) Window() *dom.Window {
	return c.win
}

// Hub returns the event loop.
func (c *Client) Hub() *Hub {
	return c.hub
}

// Channel returns the notification channel.
func (c *Client) Channel() *channel.Channel {
	return c.channel
}

// Registry returns the strategy registry.
func (c *Client) Registry() *reload.Registry {
	return c.registry
}

func (c *Client) reportError(err error) {
	select {
	case c.errs <- err:
	default:
		c.logger.Warn("error stream full, dropping", "err", err)
	}
}
