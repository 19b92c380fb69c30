package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotreload/pkg/types"
)

const ms = time.Millisecond

func TestCoalescer_WindowDoublesToCap(t *testing.T) {
	sched := &fakeScheduler{}
	c, err := NewCoalescer(32*ms, 1000*ms, sched, func(uint64) {})
	require.NoError(t, err)

	var windows []time.Duration
	for range 7 {
		windows = append(windows, c.Add(types.ModePage))
	}

	want := []time.Duration{32 * ms, 64 * ms, 128 * ms, 256 * ms, 512 * ms, 1000 * ms, 1000 * ms}
	assert.Equal(t, want, windows)
	assert.Equal(t, want, sched.scheduled())
	assert.Equal(t, 1, c.Pending())
}

func TestCoalescer_ReplacesOutstandingTimer(t *testing.T) {
	sched := &fakeScheduler{}
	c, err := NewCoalescer(32*ms, 1000*ms, sched, func(uint64) {})
	require.NoError(t, err)

	c.Add(types.ModeCSS)
	c.Add(types.ModeCSS)
	c.Add(types.ModePage)

	assert.True(t, sched.timer(0).stopped.Load())
	assert.True(t, sched.timer(1).stopped.Load())
	assert.False(t, sched.timer(2).stopped.Load())
	assert.Equal(t, 2, c.Pending())
}

func TestCoalescer_GenerationGuardsStaleTimers(t *testing.T) {
	var fired []uint64
	sched := &fakeScheduler{}
	c, err := NewCoalescer(32*ms, 1000*ms, sched, func(g uint64) { fired = append(fired, g) })
	require.NoError(t, err)

	c.Add(types.ModeCSS)
	c.Add(types.ModePage)
	sched.timer(0).fn()
	sched.timer(1).fn()

	require.Len(t, fired, 2)
	assert.False(t, c.Current(fired[0]))
	assert.True(t, c.Current(fired[1]))
}

func TestCoalescer_DrainResets(t *testing.T) {
	sched := &fakeScheduler{}
	c, err := NewCoalescer(32*ms, 1000*ms, sched, func(uint64) {})
	require.NoError(t, err)

	c.Add(types.ModePage)
	c.Add(types.ModeCSS)
	c.Add(types.ModePage)

	modes, window := c.Drain()
	assert.Equal(t, []types.Mode{types.ModePage, types.ModeCSS}, modes)
	assert.Equal(t, 128*ms, window)
	assert.Zero(t, c.Pending())
	assert.Zero(t, c.Window())

	assert.Equal(t, 32*ms, c.Add(types.ModeCSS))
}

func TestCoalescer_CancelInvalidatesTimer(t *testing.T) {
	sched := &fakeScheduler{}
	var generation uint64
	c, err := NewCoalescer(32*ms, 1000*ms, sched, func(g uint64) { generation = g })
	require.NoError(t, err)

	c.Add(types.ModeCSS)
	c.Cancel()
	sched.last().fn()
	assert.False(t, c.Current(generation))
	assert.Zero(t, c.Window())
}

func TestCoalescer_AddAfterCancelRestartsAtBase(t *testing.T) {
	sched := &fakeScheduler{}
	c, err := NewCoalescer(32*ms, 1000*ms, sched, func(uint64) {})
	require.NoError(t, err)

	c.Add(types.ModeCSS)
	c.Add(types.ModeCSS)
	require.Equal(t, 64*ms, c.Window())

	c.Cancel()
	assert.Equal(t, 32*ms, c.Add(types.ModePage))
	assert.Equal(t, 2, c.Pending())
}

func TestNewCoalescer_InvalidWindow(t *testing.T) {
	_, err := NewCoalescer(0, time.Second, nil, func(uint64) {})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewCoalescer(time.Second, time.Millisecond, nil, func(uint64) {})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
