package database

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnectionString(t *testing.T) {
	t.Run("plain path gets query string started with question mark", func(t *testing.T) {
		connStr := buildConnectionString("/data/presence.db", ProfileStandard)

		assert.True(t, strings.HasPrefix(connStr, "/data/presence.db?_pragma=journal_mode(WAL)"))
		assert.Equal(t, 1, strings.Count(connStr, "?"))
	})

	t.Run("file URI with existing query string is extended with ampersand", func(t *testing.T) {
		connStr := buildConnectionString("file:test?mode=memory&cache=shared", ProfileStandard)

		assert.True(t, strings.HasPrefix(connStr, "file:test?mode=memory&cache=shared&_pragma=journal_mode(WAL)"))
		assert.Equal(t, 1, strings.Count(connStr, "?"))
	})

	t.Run("profile pragmas are appended", func(t *testing.T) {
		ledger := buildConnectionString("/data/calendar.db", ProfileLedger)
		assert.Contains(t, ledger, "_pragma=synchronous(FULL)")

		cache := buildConnectionString("/data/cache.db", ProfileCache)
		assert.Contains(t, cache, "_pragma=synchronous(OFF)")

		standard := buildConnectionString("/data/market.db", ProfileStandard)
		assert.Contains(t, standard, "_pragma=synchronous(NORMAL)")
	})
}

func TestNewWithMemoryURI(t *testing.T) {
	// The DSN shape every repository test uses
	db, err := New(Config{
		Path:    fmt.Sprintf("file:db_%s?mode=memory&cache=shared", t.Name()),
		Profile: ProfileStandard,
		Name:    "presence",
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM musician_presence").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestNewWithFilePath(t *testing.T) {
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "calendar.db"),
		Profile: ProfileLedger,
		Name:    "calendar",
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())

	// Migrate is idempotent on a pre-existing database
	require.NoError(t, db.Migrate())

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM calendar_entries").Scan(&count))
	assert.Equal(t, 0, count)
}
