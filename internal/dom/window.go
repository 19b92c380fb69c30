package dom

import (
	"sync"
	"time"
)

// Event is a synthetic window event. It carries no payload beyond its name.
type Event struct {
	Name      string
	Bubbles   bool
	Timestamp time.Time
}

// Window is the event target page scripts subscribe to.
type Window struct {
	mu        sync.RWMutex
	listeners map[string]map[int]func(Event)
	nextID    int
}

// NewWindow creates a window with no listeners.
func NewWindow() *Window {
	return &Window{listeners: make(map[string]map[int]func(Event))}
}

// AddEventListener subscribes fn to events named name. The returned function
// removes the subscription.
func (w *Window) AddEventListener(name string, fn func(Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.listeners[name] == nil {
		w.listeners[name] = make(map[int]func(Event))
	}
	id := w.nextID
	w.nextID++
	w.listeners[name][id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners[name], id)
		if len(w.listeners[name]) == 0 {
			delete(w.listeners, name)
		}
	}
}

// DispatchEvent delivers ev to every listener and returns how many ran.
func (w *Window) DispatchEvent(ev Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	w.mu.RLock()
	fns := make([]func(Event), 0, len(w.listeners[ev.Name]))
	for _, fn := range w.listeners[ev.Name] {
		fns = append(fns, fn)
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return len(fns)
}
