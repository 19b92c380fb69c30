package types

import (
	"time"
)

// Mode names a reload strategy. The wire payload is the bare mode string.
type Mode string

// ARCHITECTURAL DISCOVERY: Mode constants match the strings the dev server pushes
// over the control endpoint, so no envelope or translation table is needed
const (
	ModePage  Mode = "page"
	ModeCSS   Mode = "css"
	ModeStart Mode = "start"
)

// Well-known endpoints and markers shared by the dev server and the client.
const (
	EndpointPath = "/.gostatic.hotreload"

	ProbeHeader = "X-With"
	ProbeValue  = "hotreload"

	CacheBustParam = "__gostatic"

	// EventLoad is dispatched on the window after a page merge completes.
	EventLoad = "load"
)

// ChannelState is a state of the notification channel's state machine.
// FUNCTIONAL DISCOVERY: Unloaded is terminal - no transition ever leaves it
type ChannelState int

const (
	StateClosed ChannelState = iota
	StateConnecting
	StateOpen
	StateUnloaded
)

func (s ChannelState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// Flush describes one batched action taken by the flush driver.
type Flush struct {
	Modes     []Mode        `json:"modes"`
	Skipped   []Mode        `json:"skipped,omitempty"`
	Window    time.Duration `json:"window"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notification is a mode pushed by the dev server to every connected tab.
type Notification struct {
	Mode      Mode      `json:"mode"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
