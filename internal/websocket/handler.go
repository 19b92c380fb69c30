package websocket

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hotreload/pkg/types"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// HandlerConfig tunes the heartbeat.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// DefaultHandlerConfig pings every 30s and drops a tab silent for 60s.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Handler serves the control endpoint
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from the push side,
// the handler only upgrades, registers and supervises connections
type Handler struct {
	registry *Registry
	config   HandlerConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a handler registering connections in registry.
func NewHandler(registry *Registry, config HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PingInterval <= 0 || config.ReadTimeout <= 0 {
		config = DefaultHandlerConfig()
	}
	return &Handler{
		registry: registry,
		config:   config,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Development server, pages may be served from any origin
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "ws"),
	}
}

// HandleWebSocket upgrades the request, registers the tab and greets it
// with the start mode.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	} else if !clientIDPattern.MatchString(clientID) {
		http.Error(w, ErrInvalidClientID.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	wsConn := NewConnection(conn, clientID)
	if err := h.registry.RegisterConnection(wsConn); err != nil {
		h.logger.Error("failed to register connection", "client_id", clientID, "err", err)
		_ = wsConn.Close()
		return
	}
	h.logger.Info("tab connected", "client_id", clientID, "remote", wsConn.RemoteAddr())

	if err := wsConn.WriteMode(string(types.ModeStart)); err != nil {
		h.logger.Warn("failed to greet tab", "client_id", clientID, "err", err)
	}

	go h.handleConnection(wsConn)
}

// handleConnection supervises a connection until the tab goes away
// ARCHITECTURAL DISCOVERY: One goroutine per connection reads and a ticker pings,
// so a vanished tab is detected by the read deadline
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		h.logger.Info("tab disconnected", "client_id", conn.GetClientID())
	}()

	readTimeout := h.config.ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	// the client never sends data frames; reading drives control frames
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", "client_id", conn.GetClientID(), "err", err)
			}
			return
		}
	}
}
