package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"hotreload/internal/config"
	"hotreload/internal/dom"
	"hotreload/internal/hub"
	"hotreload/pkg/interfaces"
	"hotreload/pkg/types"
)

// Follower runs the reload client against a served document and mirrors
// the live document to disk.
type Follower struct {
	client *hub.Client
	output string
	logger *slog.Logger
}

// FollowerConfig maps the client section of cfg onto hub.ClientConfig.
func FollowerConfig(cfg *config.Config, documentURL string, logger *slog.Logger) hub.ClientConfig {
	clientConfig := hub.DefaultClientConfig(documentURL)
	clientConfig.Hub.BaseWindow = cfg.Client.DebounceBase
	clientConfig.Hub.MaxWindow = cfg.Client.DebounceMax
	clientConfig.ReconnectDelay = cfg.Client.ReconnectDelay
	clientConfig.FetchTimeout = cfg.Client.FetchTimeout
	clientConfig.CancelInFlight = cfg.Client.CancelInFlight
	clientConfig.CacheBustParam = cfg.Client.CacheBustParam
	if cfg.Client.Replace {
		clientConfig.Merger = dom.Replacer{}
	}
	clientConfig.Logger = logger
	return clientConfig
}

// NewFollower loads documentURL and prepares the client. store may be nil.
func NewFollower(ctx context.Context, cfg *config.Config, documentURL string, store interfaces.PreferenceStore, logger *slog.Logger) (*Follower, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clientConfig := FollowerConfig(cfg, documentURL, logger)
	clientConfig.Preferences = store

	client, err := hub.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, err
	}
	return &Follower{
		client: client,
		output: cfg.Client.Output,
		logger: logger.With("component", "follow"),
	}, nil
}

// Client returns the underlying reload client.
func (f *Follower) Client() *hub.Client {
	return f.client
}

// Run follows until ctx ends. Cancellation is treated as a page unload so the
// server sees a normal close.
// TECHNICAL DISCOVERY: the client runs on a detached context so the unload
// frame can still be written after the caller's context is cancelled
func (f *Follower) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(done)
		err := f.client.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// a failing sibling unloads the client as well
	g.Go(func() error {
		select {
		case <-ctx.Done():
			f.logger.Info("unloading")
			f.client.Unload()
		case <-gctx.Done():
			f.client.Unload()
		case <-done:
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case err := <-f.client.Errors():
				f.logger.Error("reload failed", "err", err)
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			}
		}
	})

	if f.output != "" {
		g.Go(func() error {
			return f.writeSnapshots(gctx, done)
		})
	}

	return g.Wait()
}

// writeSnapshots rewrites the output file after every document change. The
// first write must succeed; later failures are logged and retried on the
// next change.
func (f *Follower) writeSnapshots(ctx context.Context, done <-chan struct{}) error {
	dirty := make(chan struct{}, 1)
	nudge := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}
	f.client.Document().Observe(func(dom.Mutation) { nudge() })
	remove := f.client.Window().AddEventListener(types.EventLoad, func(dom.Event) { nudge() })
	defer remove()

	if err := f.snapshot(); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.output, err)
	}
	for {
		select {
		case <-dirty:
			if err := f.snapshot(); err != nil {
				f.logger.Warn("snapshot failed", "output", f.output, "err", err)
			}
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// snapshot skips the write when the file already holds the rendered markup,
// so an output file inside a watched directory settles after one round trip.
func (f *Follower) snapshot() error {
	markup, err := f.client.Document().Render()
	if err != nil {
		return err
	}
	_, err = WriteFileIfChanged(f.output, []byte(markup))
	return err
}

// WriteFileIfChanged calls WriteFileAtomic unless path already holds data.
// It reports whether a write happened.
func WriteFileIfChanged(path string, data []byte) (bool, error) {
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return false, err
	}
	return true, nil
}

// WriteFileAtomic replaces path with data via a temporary sibling and rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
