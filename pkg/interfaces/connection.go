package interfaces

// Connection is one dev-server side push connection to a tab
type Connection interface {
	// WriteMode queues a mode for delivery (thread-safe)
	WriteMode(mode string) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetClientID returns the id the tab announced, or a server-assigned one
	GetClientID() string
}

// Broadcaster pushes a mode to every connected tab and reports how many
// connections accepted it.
type Broadcaster interface {
	Broadcast(mode string) int
}
