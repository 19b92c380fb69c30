package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"hotreload/pkg/interfaces"
	"hotreload/pkg/types"
)

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	interfaces.Broadcaster
	GetStats() map[string]int
}

// Config wires the dev server routes.
type Config struct {
	// Root is served as static files.
	Root string
	// Control upgrades requests on the control endpoint.
	Control http.Handler
	// Store is reported by /health when set.
	Store  interfaces.PreferenceStore
	Logger *slog.Logger
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	registry Registry
	store    interfaces.PreferenceStore
	logger   *slog.Logger
	started  time.Time
	router   chi.Router
}

// NewServer builds the router.
func NewServer(registry Registry, config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Server{
		registry: registry,
		store:    config.Store,
		logger:   config.Logger.With("component", "api"),
		started:  time.Now(),
		router:   chi.NewRouter(),
	}

	s.setupRoutes(config)
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
func (s *Server) setupRoutes(config Config) {
	s.router.Use(chiMiddleware.Recoverer)

	if config.Control != nil {
		s.router.Method(http.MethodGet, types.EndpointPath, config.Control)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(corsMiddleware, jsonMiddleware)
		r.Get("/health", s.healthCheck)
		r.Post("/api/reload/{mode}", s.triggerReload)
		r.Options("/api/reload/{mode}", func(w http.ResponseWriter, r *http.Request) {})
	})

	if config.Root != "" {
		files := http.FileServer(http.Dir(config.Root))
		s.router.Handle("/*", s.staticMiddleware(files))
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ReloadResponse struct {
	Mode      types.Mode `json:"mode"`
	Delivered int        `json:"delivered"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Database    string         `json:"database,omitempty"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: POST /api/reload/{mode} - push a mode to every tab
// without touching the file system
func (s *Server) triggerReload(w http.ResponseWriter, r *http.Request) {
	mode := types.Mode(chi.URLParam(r, "mode"))
	if err := mode.Validate(); err != nil {
		s.sendError(w, fmt.Sprintf("invalid mode %q: %v", mode, err), http.StatusBadRequest)
		return
	}

	delivered := s.registry.Broadcast(string(mode))
	s.logger.Info("reload triggered", "mode", mode, "delivered", delivered, "remote", r.RemoteAddr)

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(ReloadResponse{Mode: mode, Delivered: delivered})
}

// FUNCTIONAL DISCOVERY: GET /health - connection statistics plus store health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Connections: s.registry.GetStats(),
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response.Database = "healthy"
		if err := s.store.HealthCheck(ctx); err != nil {
			response.Status = "unhealthy"
			response.Database = fmt.Sprintf("error: %v", err)
		}
	}

	if response.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}

// staticMiddleware disables caching and notes reload probes.
func (s *Server) staticMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if r.Header.Get(types.ProbeHeader) == types.ProbeValue {
			s.logger.Debug("reload probe", "path", r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware lets editor plugins trigger reloads
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Serve runs srv on ln until ctx ends, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
