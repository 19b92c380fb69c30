package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "hotreload/pkg/database"
	"hotreload/pkg/interfaces"
)

// PreferenceDebug is the key of the persisted developer flag.
const PreferenceDebug = "debug"

// ErrSchemaInvalid is returned by NewManager when the file's schema does not
// match the migrations.
var ErrSchemaInvalid = errors.New("preference store schema invalid")

// Manager implements interfaces.PreferenceStore over SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *slog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the store, applies migrations and starts the writer.
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if config == nil {
		config = dbconfig.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(config.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrator := dbconfig.NewMigrationManager(db, nil)
	if err := migrator.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	// FUNCTIONAL DISCOVERY: A hand-edited or half-migrated file is rejected at open,
	// not at the first query
	if err := migrator.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaInvalid, config.DatabasePath, err)
	}
	versions, err := migrator.AppliedVersions()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	logger.Debug("preference store opened", "path", config.DatabasePath, "migrations", versions)

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With("component", "database"),
		writeChannel: make(chan writeOperation, 16),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Error("database write failed", "err", err)
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetPreference returns the stored value for key
func (m *Manager) GetPreference(ctx context.Context, key string) (string, bool, error) {
	// Reads bypass the writer
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query preference %s: %w", key, err)
	}
	return value, true, nil
}

// SetPreference stores or replaces the value for key
func (m *Manager) SetPreference(ctx context.Context, key, value string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to store preference %s: %w", key, err)
		}
		return nil
	})
}

// DeletePreference removes key; deleting a missing key is not an error
func (m *Manager) DeletePreference(ctx context.Context, key string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete preference %s: %w", key, err)
		}
		return nil
	})
}

// DebugEnabled reads the developer flag. Absent or unparsable means false.
func DebugEnabled(ctx context.Context, store interfaces.PreferenceStore) bool {
	if store == nil {
		return false
	}
	value, ok, err := store.GetPreference(ctx, PreferenceDebug)
	if err != nil || !ok {
		return false
	}
	enabled, err := strconv.ParseBool(value)
	return err == nil && enabled
}

// SetDebug persists the developer flag.
func SetDebug(ctx context.Context, store interfaces.PreferenceStore, enabled bool) error {
	return store.SetPreference(ctx, PreferenceDebug, strconv.FormatBool(enabled))
}

// ResetDebug forgets the developer flag, which then reads as off.
func ResetDebug(ctx context.Context, m *Manager) error {
	return m.DeletePreference(ctx, PreferenceDebug)
}

// HealthCheck verifies database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return interfaces.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := m.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close shuts down the writer and the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
