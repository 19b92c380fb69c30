package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotreload/internal/dom"
)

func readOutput(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func TestFollowerConfigMapping(t *testing.T) {
	cfg := testConfig(t)
	cfg.Client.DebounceBase = 10 * time.Millisecond
	cfg.Client.DebounceMax = 80 * time.Millisecond
	cfg.Client.CancelInFlight = false
	cfg.Client.CacheBustParam = "v"

	clientConfig := FollowerConfig(cfg, "http://example.test/", testLogger())
	assert.Equal(t, "http://example.test/", clientConfig.DocumentURL)
	assert.Equal(t, 10*time.Millisecond, clientConfig.Hub.BaseWindow)
	assert.Equal(t, 80*time.Millisecond, clientConfig.Hub.MaxWindow)
	assert.Equal(t, cfg.Client.ReconnectDelay, clientConfig.ReconnectDelay)
	assert.False(t, clientConfig.CancelInFlight)
	assert.Equal(t, "v", clientConfig.CacheBustParam)
	assert.Nil(t, clientConfig.Merger)

	cfg.Client.Replace = true
	clientConfig = FollowerConfig(cfg, "http://example.test/", testLogger())
	assert.IsType(t, dom.Replacer{}, clientConfig.Merger)
}

func TestNewFollowerUnreachable(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewFollower(ctx, cfg, "http://127.0.0.1:1/", nil, testLogger())
	assert.Error(t, err)
}

func TestFollowerTracksServedDocument(t *testing.T) {
	cfg := testConfig(t)
	cfg.Client.Output = filepath.Join(t.TempDir(), "live.html")
	srv := startServer(t, cfg)

	store, err := OpenStore(cfg, testLogger())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	follower, err := NewFollower(ctx, cfg, "http://"+srv.Addr()+"/", store, testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- follower.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(readOutput(cfg.Client.Output), ">one<")
	}, 5*time.Second, 10*time.Millisecond, "initial snapshot")
	require.Eventually(t, func() bool {
		return len(srv.Registry().Connections()) == 1
	}, 5*time.Second, 10*time.Millisecond, "client connected")

	writeFile(t, filepath.Join(cfg.HTTP.Root, "index.html"), strings.Replace(indexMarkup, ">one<", ">two<", 1))
	require.Eventually(t, func() bool {
		return strings.Contains(readOutput(cfg.Client.Output), ">two<")
	}, 5*time.Second, 10*time.Millisecond, "page merged")

	writeFile(t, filepath.Join(cfg.HTTP.Root, "style.css"), "p { color: blue; }")
	require.Eventually(t, func() bool {
		return strings.Contains(readOutput(cfg.Client.Output), "/style.css?"+cfg.Client.CacheBustParam+"=")
	}, 5*time.Second, 10*time.Millisecond, "stylesheet busted")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not stop")
	}

	require.Eventually(t, func() bool {
		return len(srv.Registry().Connections()) == 0
	}, 5*time.Second, 10*time.Millisecond, "server saw the unload")
}

func TestFollowerOutputInsideServedRootSettles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Client.Output = filepath.Join(cfg.HTTP.Root, "live.html")
	srv := startServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	follower, err := NewFollower(ctx, cfg, "http://"+srv.Addr()+"/", nil, testLogger())
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- follower.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(srv.Registry().Connections()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(cfg.HTTP.Root, "index.html"), strings.Replace(indexMarkup, ">one<", ">two<", 1))
	require.Eventually(t, func() bool {
		return strings.Contains(readOutput(cfg.Client.Output), ">two<")
	}, 5*time.Second, 10*time.Millisecond)

	// every snapshot write is itself a watched change; the pushes must stop
	quiet := func() bool {
		before := srv.Registry().GetStats()["broadcasts"]
		time.Sleep(300 * time.Millisecond)
		return srv.Registry().GetStats()["broadcasts"] == before
	}
	require.Eventually(t, quiet, 5*time.Second, 10*time.Millisecond)
	assert.Less(t, srv.Registry().GetStats()["broadcasts"], 10)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not stop")
	}
}

func TestFollowerStopsWhenOutputUnwritable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Client.Output = filepath.Join(t.TempDir(), "missing", "live.html")
	srv := startServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	follower, err := NewFollower(ctx, cfg, "http://"+srv.Addr()+"/", nil, testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- follower.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "live.html")
	case <-time.After(5 * time.Second):
		t.Fatal("a failed snapshot writer must end Run")
	}
}

func TestWriteFileIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.html")

	wrote, err := WriteFileIfChanged(path, []byte("a"))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = WriteFileIfChanged(path, []byte("a"))
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = WriteFileIfChanged(path, []byte("b"))
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, "b", readOutput(path))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.html")

	require.NoError(t, WriteFileAtomic(path, []byte("first")))
	require.NoError(t, WriteFileAtomic(path, []byte("second")))
	assert.Equal(t, "second", readOutput(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "out.html"), []byte("x"))
	assert.Error(t, err)
}
