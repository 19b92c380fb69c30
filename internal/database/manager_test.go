package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "hotreload/pkg/database"
	"hotreload/pkg/interfaces"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "nested", "prefs.db")

	manager, err := NewManager(config, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.PreferenceStore = &Manager{}
}

func TestManager_InvalidConfig(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = ""

	manager, err := NewManager(config, nil)
	assert.Error(t, err)
	assert.Nil(t, manager)
}

func TestManager_PreferenceRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, ok, err := manager.GetPreference(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, manager.SetPreference(ctx, "theme", "dark"))
	value, ok, err := manager.GetPreference(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", value)

	require.NoError(t, manager.SetPreference(ctx, "theme", "light"))
	value, _, err = manager.GetPreference(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", value)

	require.NoError(t, manager.DeletePreference(ctx, "theme"))
	_, ok, err = manager.GetPreference(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_DebugFlag(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	assert.False(t, DebugEnabled(ctx, manager), "absent flag means silent")

	require.NoError(t, SetDebug(ctx, manager, true))
	assert.True(t, DebugEnabled(ctx, manager))

	require.NoError(t, SetDebug(ctx, manager, false))
	assert.False(t, DebugEnabled(ctx, manager))

	require.NoError(t, manager.SetPreference(ctx, PreferenceDebug, "maybe"))
	assert.False(t, DebugEnabled(ctx, manager), "unparsable flag means silent")

	assert.False(t, DebugEnabled(ctx, nil))
}

func TestManager_ResetDebug(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, SetDebug(ctx, manager, true))
	require.NoError(t, ResetDebug(ctx, manager))

	_, ok, err := manager.GetPreference(ctx, PreferenceDebug)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, DebugEnabled(ctx, manager))

	// resetting an absent flag is fine
	assert.NoError(t, ResetDebug(ctx, manager))
}

func TestManager_RejectsMismatchedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE preferences (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	config := dbconfig.DefaultConfig()
	config.DatabasePath = path

	manager, err := NewManager(config, nil)
	assert.ErrorIs(t, err, ErrSchemaInvalid)
	assert.Contains(t, err.Error(), "column value has type BLOB")
	assert.Nil(t, manager)
}

func TestManager_PersistsAcrossReopen(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	first, err := NewManager(config, nil)
	require.NoError(t, err)
	require.NoError(t, SetDebug(ctx, first, true))
	require.NoError(t, first.Close())

	second, err := NewManager(config, nil)
	require.NoError(t, err)
	defer second.Close()
	assert.True(t, DebugEnabled(ctx, second))
}

func TestManager_ConcurrentWrites(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, manager.SetPreference(ctx, "counter", time.Duration(i).String()))
		}(i)
	}
	wg.Wait()

	_, ok, err := manager.GetPreference(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.HealthCheck(ctx))
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.SetPreference(ctx, "k", "v"), interfaces.ErrStoreClosed)
	assert.ErrorIs(t, manager.HealthCheck(ctx), interfaces.ErrStoreClosed)
}
