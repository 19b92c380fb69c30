package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"hotreload/internal/api"
	"hotreload/internal/config"
	"hotreload/internal/database"
	"hotreload/internal/watcher"
	"hotreload/internal/websocket"
	"hotreload/pkg/types"
)

// OpenStore opens the preference store described by cfg.
func OpenStore(cfg *config.Config, logger *slog.Logger) (*database.Manager, error) {
	dbConfig := pkgDatabaseConfig(cfg)
	store, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}
	return store, nil
}

// DevServer serves a directory, watches it and pushes modes to every tab
// ARCHITECTURAL DISCOVERY: Application struct coordinates all system components
// with dependency injection in a strict initialization order
type DevServer struct {
	config     *config.Config
	logger     *slog.Logger
	store      *database.Manager
	registry   *websocket.Registry
	watcher    *watcher.Watcher
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewDevServer wires the server for cfg. A preference store that cannot be
// opened only disables its health reporting.
// FUNCTIONAL DISCOVERY: Component initialization follows strict dependency order
// Store → Registry → Watcher → API → HTTP
func NewDevServer(cfg *config.Config, logger *slog.Logger) (*DevServer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	// STEP 1: preference store
	store, err := OpenStore(cfg, logger)
	if err != nil {
		logger.Warn("continuing without preference store", "err", err)
		store = nil
	}

	// STEP 2: connection registry
	registry := websocket.NewRegistry(logger)

	// STEP 3: file watcher
	watchConfig := watcher.DefaultConfig(cfg.HTTP.Root)
	watchConfig.Batch = cfg.Watcher.Batch
	watchConfig.Logger = logger
	fileWatcher, err := watcher.New(watchConfig)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	// STEP 4: routes
	wsHandler := websocket.NewHandler(registry, websocket.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
	}, logger)

	apiConfig := api.Config{
		Root:    cfg.HTTP.Root,
		Control: http.HandlerFunc(wsHandler.HandleWebSocket),
		Logger:  logger,
	}
	if store != nil {
		apiConfig.Store = store
	}
	apiServer := api.NewServer(registry, apiConfig)

	// STEP 5: HTTP server
	// the upgrader clears these deadlines on hijacked websocket connections
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, fmt.Sprint(cfg.HTTP.Port)),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &DevServer{
		config:     cfg,
		logger:     logger.With("component", "serve"),
		store:      store,
		registry:   registry,
		watcher:    fileWatcher,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Listen binds the HTTP address. Run calls it when needed.
func (s *DevServer) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *DevServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Registry exposes the connected tabs.
func (s *DevServer) Registry() *websocket.Registry {
	return s.registry
}

// Run serves until ctx ends, then shuts everything down in reverse order.
func (s *DevServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		s.close()
		return err
	}
	defer s.close()

	s.logger.Info("serving", "root", s.config.HTTP.Root, "addr", "http://"+s.Addr())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.watcher.Run(gctx, func(n types.Notification) {
			s.registry.Broadcast(string(n.Mode))
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := api.Serve(gctx, s.httpServer, s.listener, s.logger)
		// hijacked websocket connections outlive Shutdown
		for _, conn := range s.registry.Connections() {
			_ = conn.Close()
		}
		return err
	})

	return g.Wait()
}

// FUNCTIONAL DISCOVERY: Shutdown coordination ensures proper resource cleanup
// Reverse dependency order: HTTP → Watcher → Database
func (s *DevServer) close() {
	if err := s.watcher.Close(); err != nil {
		s.logger.Warn("watcher shutdown error", "err", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("database shutdown error", "err", err)
		}
	}
	s.logger.Info("shutdown complete")
}
