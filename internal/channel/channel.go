package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hotreload/pkg/types"
)

// Config describes the control endpoint a channel dials.
type Config struct {
	// DocumentURL is the page being followed; the control endpoint lives on
	// the same origin.
	DocumentURL      string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration

	Logger *slog.Logger
	Diag   *slog.Logger
}

// DefaultConfig returns the one second reconnect delay.
func DefaultConfig(documentURL string) Config {
	return Config{
		DocumentURL:      documentURL,
		ReconnectDelay:   time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Channel owns the single push connection of a document.
// ARCHITECTURAL DISCOVERY: The state machine is explicit and Unloaded is
// terminal, so a close that races with unload can never schedule a redial
type Channel struct {
	endpoint string
	clientID string
	delay    time.Duration
	dialer   *websocket.Dialer
	sink     func(mode string)
	logger   *slog.Logger
	diag     *slog.Logger

	mu      sync.Mutex
	state   types.ChannelState
	conn    *websocket.Conn
	cancel  context.CancelFunc
	running bool

	observersMu sync.RWMutex
	observers   []func(types.ChannelState)

	attempts atomic.Int64
}

// New creates a closed channel. Every text frame received is passed to sink
// unchanged.
func New(config Config, sink func(mode string)) (*Channel, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	if config.ReconnectDelay <= 0 {
		return nil, ErrInvalidDelay
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Diag == nil {
		config.Diag = slog.New(slog.DiscardHandler)
	}

	clientID := uuid.New().String()
	endpoint, err := EndpointURL(config.DocumentURL, clientID)
	if err != nil {
		return nil, err
	}

	return &Channel{
		endpoint: endpoint,
		clientID: clientID,
		delay:    config.ReconnectDelay,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		sink:   sink,
		logger: config.Logger.With("component", "channel", "client_id", clientID),
		diag:   config.Diag.With("component", "channel", "client_id", clientID),
		state:  types.StateClosed,
	}, nil
}

// EndpointURL derives the control endpoint from a document URL: same host,
// ws or wss scheme, fixed path, client id in the query.
func EndpointURL(documentURL, clientID string) (string, error) {
	u, err := url.Parse(documentURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, documentURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, documentURL)
	}

	endpoint := url.URL{Scheme: u.Scheme, Host: u.Host, Path: types.EndpointPath}
	if clientID != "" {
		endpoint.RawQuery = url.Values{"client_id": {clientID}}.Encode()
	}
	return endpoint.String(), nil
}

// ClientID returns the id sent to the server.
func (c *Channel) ClientID() string {
	return c.clientID
}

// Endpoint returns the websocket URL dialled.
func (c *Channel) Endpoint() string {
	return c.endpoint
}

// State returns the current state.
func (c *Channel) State() types.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts counts dials made so far.
func (c *Channel) Attempts() int64 {
	return c.attempts.Load()
}

// OnState registers fn for every state transition. fn runs on the
// channel's goroutine and must not block.
func (c *Channel) OnState(fn func(types.ChannelState)) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Run dials and keeps the connection alive until ctx ends or the channel is
// unloaded. An involuntary close is followed by a redial after the fixed
// delay, indefinitely. Run returns nil after Unload.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state == types.StateUnloaded {
		c.mu.Unlock()
		return ErrChannelUnloaded
	}
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	err := retry.New(
		retry.Attempts(0),
		retry.Delay(c.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		return c.session(ctx)
	})

	if c.State() == types.StateUnloaded {
		return nil
	}
	return err
}

// Unload closes the connection voluntarily and stops reconnecting for good.
func (c *Channel) Unload() {
	c.mu.Lock()
	if c.state == types.StateUnloaded {
		c.mu.Unlock()
		return
	}
	c.state = types.StateUnloaded
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.mu.Unlock()

	c.notify(types.StateUnloaded)
	c.diag.Info("unloading, reconnect disabled")

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unload")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.diag.Info("close frame not sent", "err", err)
		}
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// session runs one dial and read loop. A nil return ends the retry loop.
func (c *Channel) session(ctx context.Context) error {
	if !c.transition(types.StateConnecting) {
		return nil
	}
	attempt := c.attempts.Add(1)
	c.diag.Info("connecting", "endpoint", c.endpoint, "attempt", attempt)

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		if !c.transition(types.StateClosed) {
			return nil
		}
		c.diag.Info("dial failed, retrying", "err", err, "delay", c.delay)
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	c.mu.Lock()
	if c.state == types.StateUnloaded {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()
	c.transition(types.StateOpen)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	readErr := c.readLoop(conn)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	if !c.transition(types.StateClosed) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.diag.Info("connection lost, retrying", "err", readErr, "delay", c.delay)
	return fmt.Errorf("%w: %v", ErrConnectionLost, readErr)
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.diag.Info("mode received", "mode", string(data))
		c.sink(string(data))
	}
}

// transition moves to next unless the channel is unloaded.
func (c *Channel) transition(next types.ChannelState) bool {
	c.mu.Lock()
	if c.state == types.StateUnloaded {
		c.mu.Unlock()
		return false
	}
	changed := c.state != next
	c.state = next
	c.mu.Unlock()

	if changed {
		c.notify(next)
	}
	return true
}

func (c *Channel) notify(state types.ChannelState) {
	c.observersMu.RLock()
	observers := append([]func(types.ChannelState){}, c.observers...)
	c.observersMu.RUnlock()
	for _, fn := range observers {
		fn(state)
	}
}
