package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NewRegistryInitialization(t *testing.T) {
	registry := NewRegistry(nil)
	require.NotNil(t, registry.connections)
	assert.Equal(t, 0, registry.GetStats()["total_connections"])
}

func TestRegistry_RegisterConnectionValidation(t *testing.T) {
	registry := NewRegistry(nil)

	assert.ErrorIs(t, registry.RegisterConnection(nil), ErrNilConnection)
	assert.ErrorIs(t, registry.RegisterConnection(NewConnection(nil, "")), ErrEmptyClientID)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry(nil)
	conn := NewConnection(nil, "tab-1")
	defer conn.Close()

	require.NoError(t, registry.RegisterConnection(conn))

	got, exists := registry.GetConnection("tab-1")
	assert.True(t, exists)
	assert.Same(t, conn, got)
	assert.Len(t, registry.Connections(), 1)
}

func TestRegistry_ConnectionReplacement(t *testing.T) {
	registry := NewRegistry(nil)
	first := NewConnection(nil, "tab-1")
	second := NewConnection(nil, "tab-1")
	defer second.Close()

	require.NoError(t, registry.RegisterConnection(first))
	require.NoError(t, registry.RegisterConnection(second))

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced connection was not closed")
	}

	// the stale connection's cleanup must not evict its replacement
	registry.UnregisterConnection(first)
	got, exists := registry.GetConnection("tab-1")
	assert.True(t, exists)
	assert.Same(t, second, got)
}

func TestRegistry_UnregisterConnection(t *testing.T) {
	registry := NewRegistry(nil)
	conn := NewConnection(nil, "tab-1")
	defer conn.Close()

	require.NoError(t, registry.RegisterConnection(conn))
	registry.UnregisterConnection(conn)
	registry.UnregisterConnection(conn)
	registry.UnregisterConnection(nil)

	_, exists := registry.GetConnection("tab-1")
	assert.False(t, exists)
}

func TestRegistry_BroadcastReachesEveryTab(t *testing.T) {
	registry := NewRegistry(nil)

	peers := make(map[string]*websocket.Conn)
	for i := range 3 {
		server, client := createTestConnectionPair(t)
		conn := NewConnection(server, fmt.Sprintf("tab-%d", i))
		defer conn.Close()
		require.NoError(t, registry.RegisterConnection(conn))
		peers[conn.GetClientID()] = client
	}

	assert.Equal(t, 3, registry.Broadcast("page"))
	for id, peer := range peers {
		_, data, err := peer.ReadMessage()
		require.NoError(t, err, id)
		assert.Equal(t, "page", string(data))
	}
	assert.Equal(t, 1, registry.GetStats()["broadcasts"])
}

func TestRegistry_BroadcastDropsClosedConnections(t *testing.T) {
	registry := NewRegistry(nil)
	server, _ := createTestConnectionPair(t)
	live := NewConnection(server, "live")
	defer live.Close()
	dead := NewConnection(nil, "dead")
	require.NoError(t, dead.Close())

	require.NoError(t, registry.RegisterConnection(live))
	require.NoError(t, registry.RegisterConnection(dead))

	assert.Equal(t, 1, registry.Broadcast("css"))
}

func TestRegistry_ConcurrentRegistrationAndUnregistration(t *testing.T) {
	registry := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := NewConnection(nil, fmt.Sprintf("tab-%d", i))
			defer conn.Close()
			assert.NoError(t, registry.RegisterConnection(conn))
			_ = registry.Connections()
			registry.UnregisterConnection(conn)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, registry.GetStats()["total_connections"])
}
