package websocket

import (
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Registry tracks every connected tab by client id
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// maintains clean separation between connection tracking and connection operations
type Registry struct {
	mu          sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy broadcast patterns
	connections map[string]*Connection
	broadcasts  int64
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connections: make(map[string]*Connection),
		logger:      logger.With("component", "registry"),
	}
}

// RegisterConnection adds conn, replacing any connection that announced the
// same client id
// FUNCTIONAL DISCOVERY: Close the replaced connection asynchronously to prevent deadlock
// during registration while ensuring immediate replacement
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	clientID := conn.GetClientID()
	if clientID == "" {
		return ErrEmptyClientID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.connections[clientID]; exists && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Warn("failed to close replaced connection", "client_id", clientID, "err", err)
			}
		}()
	}
	r.connections[clientID] = conn
	return nil
}

// UnregisterConnection removes conn if it is still the registered one
// RACE CONDITION FIX: Only removes the connection if it matches the one currently registered
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.GetClientID()]; exists && registered == conn {
		delete(r.connections, conn.GetClientID())
	}
}

// GetConnection returns the connection for clientID.
func (r *Registry) GetConnection(clientID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[clientID]
	return conn, exists
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.connections)
}

// Broadcast queues mode on every connection and returns how many accepted
// it. Connections that fail are closed; their handler unregisters them.
func (r *Registry) Broadcast(mode string) int {
	conns := r.Connections()

	r.mu.Lock()
	r.broadcasts++
	r.mu.Unlock()

	delivered := 0
	for _, conn := range conns {
		if err := conn.WriteMode(mode); err != nil {
			r.logger.Warn("push failed", "client_id", conn.GetClientID(), "mode", mode, "err", err)
			_ = conn.Close()
			continue
		}
		delivered++
	}
	r.logger.Debug("broadcast", "mode", mode, "delivered", delivered, "connections", len(conns))
	return delivered
}

// GetStats returns registry statistics for health reporting.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"broadcasts":        int(r.broadcasts),
	}
}
