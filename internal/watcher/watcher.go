package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"hotreload/pkg/types"
)

var ErrNotDirectory = errors.New("watch root must be a directory")

// Config describes what to watch.
type Config struct {
	Root string
	// Batch is how long the watcher keeps collecting after the first change.
	Batch  time.Duration
	Logger *slog.Logger
}

// DefaultConfig batches changes under root for 16ms.
func DefaultConfig(root string) Config {
	return Config{Root: root, Batch: 16 * time.Millisecond}
}

// Watcher turns file system changes under a directory tree into modes.
type Watcher struct {
	fs        *fsnotify.Watcher
	root      string
	batch     time.Duration
	logger    *slog.Logger
	closeOnce sync.Once
}

// New starts watching every non-hidden directory below config.Root.
func New(config Config) (*Watcher, error) {
	info, err := os.Stat(config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, config.Root)
	}
	if config.Batch <= 0 {
		config.Batch = DefaultConfig("").Batch
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:     fsw,
		root:   config.Root,
		batch:  config.Batch,
		logger: config.Logger.With("component", "watcher"),
	}
	if err := w.addRecursive(config.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive registers root and every non-hidden directory below it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished while walking
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run forwards one mode per burst of changes to emit until ctx ends or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context, emit func(types.Notification)) error {
	var (
		pending []string
		flush   <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			path, relevant := w.handle(ev)
			if !relevant {
				continue
			}
			if flush == nil {
				flush = time.After(w.batch)
			}
			pending = append(pending, path)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)

		case <-flush:
			mode := Classify(pending)
			w.logger.Info("files changed", "mode", mode, "files", len(lo.Uniq(pending)))
			emit(types.Notification{Mode: mode, Source: "watcher", Timestamp: time.Now()})
			pending, flush = nil, nil
		}
	}
}

// handle filters an event and keeps the watch list in sync with new
// directories.
func (w *Watcher) handle(ev fsnotify.Event) (string, bool) {
	if hidden(ev.Name) {
		return "", false
	}
	if ev.Op == fsnotify.Chmod {
		return "", false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "err", err)
			}
		}
	}
	return ev.Name, true
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fs.Close()
	})
	return err
}

// Classify picks css when every changed file is a stylesheet, page otherwise.
func Classify(paths []string) types.Mode {
	if len(paths) == 0 {
		return types.ModePage
	}
	allCSS := lo.EveryBy(paths, func(p string) bool {
		return strings.EqualFold(filepath.Ext(p), ".css")
	})
	if allCSS {
		return types.ModeCSS
	}
	return types.ModePage
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
