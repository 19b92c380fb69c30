package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotreload/pkg/types"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, types.ModeCSS, Classify([]string{"site.css", "theme/dark.CSS"}))
	assert.Equal(t, types.ModePage, Classify([]string{"site.css", "index.html"}))
	assert.Equal(t, types.ModePage, Classify([]string{"app.js"}))
	assert.Equal(t, types.ModePage, Classify(nil))
}

func TestNew_RejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(DefaultConfig(file))
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func startWatcher(t *testing.T, root string) <-chan types.Notification {
	t.Helper()
	w, err := New(DefaultConfig(root))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan types.Notification, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(n types.Notification) { out <- n })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
	return out
}

func next(t *testing.T, out <-chan types.Notification) types.Notification {
	t.Helper()
	select {
	case n := <-out:
		return n
	case <-time.After(3 * time.Second):
		t.Fatal("no notification")
		return types.Notification{}
	}
}

func TestWatcher_StylesheetBurstIsCSS(t *testing.T) {
	root := t.TempDir()
	out := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.css"), []byte("p{}"), 0o644))

	n := next(t, out)
	assert.Equal(t, types.ModeCSS, n.Mode)
	assert.Equal(t, "watcher", n.Source)
}

func TestWatcher_MixedBurstIsPage(t *testing.T) {
	root := t.TempDir()
	out := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>"), 0o644))

	// a slow file system may split the burst; the last batch must be page
	n := next(t, out)
	if n.Mode == types.ModeCSS {
		n = next(t, out)
	}
	assert.Equal(t, types.ModePage, n.Mode)
}

func TestWatcher_IgnoresDotFiles(t *testing.T) {
	root := t.TempDir()
	out := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".swp"), []byte("x"), 0o644))
	select {
	case n := <-out:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	out := startWatcher(t, root)

	sub := filepath.Join(root, "posts")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Equal(t, types.ModePage, next(t, out).Mode)

	// give the watcher a moment to register the directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "style.css"), []byte("p{}"), 0o644))
	assert.Equal(t, types.ModeCSS, next(t, out).Mode)
}
