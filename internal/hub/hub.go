package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"hotreload/internal/reload"
	"hotreload/pkg/types"
)

// Config tunes the hub's debounce behaviour.
type Config struct {
	BaseWindow time.Duration
	MaxWindow  time.Duration
	QueueSize  int
	Scheduler  Scheduler

	Logger *slog.Logger
	// Diag receives developer diagnostics; nil discards them.
	Diag *slog.Logger
}

// DefaultConfig returns the 32ms base, 1000ms cap debounce.
func DefaultConfig() Config {
	return Config{
		BaseWindow: 32 * time.Millisecond,
		MaxWindow:  1000 * time.Millisecond,
		QueueSize:  256,
		Scheduler:  RealScheduler,
	}
}

// Hub is the client's single event loop. Mode receipt, timer expiry, fetch
// completion and document merges all run as tasks on one goroutine.
// ARCHITECTURAL DISCOVERY: Other goroutines never touch coalescer or strategy
// state directly, they only Post closures, which removes the need for locks
// around the pending set
type Hub struct {
	tasks           chan func()
	shutdownChannel chan struct{}
	done            chan struct{}

	registry  *reload.Registry
	coalescer *Coalescer
	logger    *slog.Logger
	diag      *slog.Logger

	// loop-owned
	loopCtx context.Context

	observersMu sync.RWMutex
	observers   []func(types.Flush)

	running bool
	started bool
	mu      sync.RWMutex
}

// NewHub creates a hub dispatching flushes to registry.
func NewHub(registry *reload.Registry, config Config) (*Hub, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Diag == nil {
		config.Diag = slog.New(slog.DiscardHandler)
	}

	h := &Hub{
		tasks:           make(chan func(), config.QueueSize),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		registry:        registry,
		logger:          config.Logger.With("component", "hub"),
		diag:            config.Diag.With("component", "hub"),
	}

	coalescer, err := NewCoalescer(config.BaseWindow, config.MaxWindow, config.Scheduler, h.timerFired)
	if err != nil {
		return nil, err
	}
	h.coalescer = coalescer
	return h, nil
}

// Start launches the event loop. A hub runs at most once.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	if h.started {
		h.mu.Unlock()
		return ErrHubStopped
	}
	h.running = true
	h.started = true
	h.mu.Unlock()

	h.loopCtx = ctx
	go h.run(ctx)
	return nil
}

// Stop ends the event loop. Pending modes are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	return nil
}

// Done is closed once the event loop has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Post queues task for the event loop. It returns false once the loop has
// exited; tasks posted before Start run after it.
func (h *Hub) Post(task func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.tasks <- task:
		return true
	case <-h.done:
		return false
	}
}

// Enqueue records a mode received from the channel. The payload is taken as
// is; unknown modes are dropped at flush time.
func (h *Hub) Enqueue(mode types.Mode) error {
	if !h.Post(func() { h.enqueue(mode) }) {
		return ErrHubStopped
	}
	return nil
}

// OnFlush registers fn to observe every completed flush. fn runs on the
// event loop and must not block.
func (h *Hub) OnFlush(fn func(types.Flush)) {
	h.observersMu.Lock()
	defer h.observersMu.Unlock()
	h.observers = append(h.observers, fn)
}

// Pending reports the number of distinct modes awaiting a flush. It is
// answered by the event loop, so it blocks until the hub has started.
func (h *Hub) Pending() int {
	result := make(chan int, 1)
	if !h.Post(func() { result <- h.coalescer.Pending() }) {
		return 0
	}
	select {
	case n := <-result:
		return n
	case <-h.done:
		return 0
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.coalescer.Cancel()

	for {
		select {
		case task := <-h.tasks:
			h.runTask(task)

		case <-h.shutdownChannel:
			h.diag.Info("hub shutdown requested")
			return

		case <-ctx.Done():
			h.diag.Info("hub context cancelled")
			return
		}
	}
}

// runTask isolates panics so one broken task cannot stop the loop.
func (h *Hub) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event loop task panicked", "panic", r)
		}
	}()
	task()
}

func (h *Hub) enqueue(mode types.Mode) {
	window := h.coalescer.Add(mode)
	h.diag.Info("mode received", "mode", mode, "window", window, "pending", h.coalescer.Pending())
}

func (h *Hub) timerFired(generation uint64) {
	h.Post(func() {
		if !h.coalescer.Current(generation) {
			return
		}
		h.flush()
	})
}

// flush applies every pending mode's strategy exactly once.
// FUNCTIONAL DISCOVERY: Pending state is cleared before any strategy runs, so
// modes arriving while a strategy works open a fresh burst
func (h *Hub) flush() {
	modes, window := h.coalescer.Drain()

	record := types.Flush{Window: window, Timestamp: time.Now()}
	for _, mode := range modes {
		strategy, ok := h.registry.Lookup(mode)
		if !ok {
			h.diag.Info("skipping unknown mode", "mode", mode)
			record.Skipped = append(record.Skipped, mode)
			continue
		}

		record.Modes = append(record.Modes, mode)
		if err := strategy.Apply(h.loopCtx); err != nil {
			h.logger.Error("reload strategy failed", "mode", mode, "err", err)
		}
	}

	h.diag.Info("flushed",
		"modes", lo.Map(record.Modes, func(m types.Mode, _ int) string { return string(m) }),
		"skipped", len(record.Skipped),
		"window", window,
	)

	h.observersMu.RLock()
	observers := append([]func(types.Flush){}, h.observers...)
	h.observersMu.RUnlock()
	for _, fn := range observers {
		fn(record)
	}
}
