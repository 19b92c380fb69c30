package hub

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hotreload/internal/reload"
	"hotreload/pkg/interfaces"
	"hotreload/pkg/types"
)

type fakeTimer struct {
	stopped atomic.Bool
	fn      func()
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

// fakeScheduler records every scheduling request; tests fire timers by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{fn: f}
	s.delays = append(s.delays, d)
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) scheduled() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1]
}

// counter counts strategy applications per mode.
type counter struct {
	mu     sync.Mutex
	counts map[types.Mode]int
	order  []types.Mode
}

func newCounter() *counter {
	return &counter{counts: make(map[types.Mode]int)}
}

func (c *counter) strategy(mode types.Mode, err error) interfaces.Strategy {
	return interfaces.StrategyFunc(func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.counts[mode]++
		c.order = append(c.order, mode)
		return err
	})
}

func (c *counter) get(mode types.Mode) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[mode]
}

// logBuffer is an io.Writer safe for the loop goroutine and the test.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type hubHarness struct {
	hub     *Hub
	sched   *fakeScheduler
	counter *counter
	flushes chan types.Flush
	logs    *logBuffer
}

func newHubHarness(t *testing.T, extra ...reload.Entry) *hubHarness {
	t.Helper()
	h := &hubHarness{
		sched:   &fakeScheduler{},
		counter: newCounter(),
		flushes: make(chan types.Flush, 16),
		logs:    &logBuffer{},
	}

	entries := []reload.Entry{
		{Mode: types.ModeCSS, Strategy: h.counter.strategy(types.ModeCSS, nil)},
		{Mode: types.ModePage, Strategy: h.counter.strategy(types.ModePage, nil)},
	}
	registry, err := reload.NewRegistry(append(entries, extra...)...)
	require.NoError(t, err)

	config := DefaultConfig()
	config.Scheduler = h.sched
	config.Logger = slog.New(slog.NewTextHandler(h.logs, nil))
	h.hub, err = NewHub(registry, config)
	require.NoError(t, err)
	h.hub.OnFlush(func(f types.Flush) { h.flushes <- f })

	require.NoError(t, h.hub.Start(context.Background()))
	t.Cleanup(func() { _ = h.hub.Stop() })
	return h
}

// settle waits until every task posted so far has run.
func (h *hubHarness) settle() int {
	return h.hub.Pending()
}

func (h *hubHarness) enqueue(t *testing.T, modes ...types.Mode) {
	t.Helper()
	for _, m := range modes {
		require.NoError(t, h.hub.Enqueue(m))
	}
	h.settle()
}
