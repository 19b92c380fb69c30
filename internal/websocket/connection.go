package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions,
// so every frame leaves through one writer goroutine
type Connection struct {
	conn        *websocket.Conn
	writeCh     chan []byte // FUNCTIONAL DISCOVERY: small buffer absorbs a watcher burst
	clientID    string
	remoteAddr  string
	connectedAt time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

// NewConnection wraps conn and starts its writer.
func NewConnection(conn *websocket.Conn, clientID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:        conn,
		writeCh:     make(chan []byte, 16),
		clientID:    clientID,
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	if conn != nil {
		c.remoteAddr = conn.RemoteAddr().String()
	}

	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteMode queues mode as a bare text frame.
func (c *Connection) WriteMode(mode string) error {
	if mode == "" {
		return ErrEmptyMode
	}

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	select {
	case c.writeCh <- []byte(mode):
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close stops the writer and closes the socket. It is safe to call more
// than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) GetClientID() string {
	return c.clientID
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}
