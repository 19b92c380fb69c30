package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hotreload/internal/config"
)

const indexMarkup = `<!DOCTYPE html><html><head><link rel="stylesheet" href="/style.css"></head><body><p id="msg">one</p></body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testConfig serves a fresh site on a free port with a private store.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), indexMarkup)
	writeFile(t, filepath.Join(root, "style.css"), "p { color: red; }")

	cfg := config.DefaultConfig()
	cfg.HTTP.Port = 0
	cfg.HTTP.Root = root
	cfg.Database.Path = filepath.Join(t.TempDir(), "prefs.db")
	cfg.Client.ReconnectDelay = 50 * time.Millisecond
	cfg.Client.FetchTimeout = 5 * time.Second
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// startServer runs a dev server until the test ends.
func startServer(t *testing.T, cfg *config.Config) *DevServer {
	t.Helper()
	srv, err := NewDevServer(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("dev server did not stop")
		}
	})
	return srv
}
