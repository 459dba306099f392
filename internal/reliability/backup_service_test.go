package reliability

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/stagefinder/stagefinder/internal/database"
	"github.com/stagefinder/stagefinder/pkg/logger"
)

func newBackupTestDB(t *testing.T, dataDir, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBackupServiceRun(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("creates archive with manifest for all databases", func(t *testing.T) {
		tempDir := t.TempDir()
		dataDir := filepath.Join(tempDir, "data")
		require.NoError(t, os.MkdirAll(dataDir, 0755))

		calendarDB := newBackupTestDB(t, dataDir, "calendar")
		_, err := calendarDB.Conn().Exec("CREATE TABLE calendar_entries (id TEXT PRIMARY KEY, musician_id TEXT)")
		require.NoError(t, err)
		_, err = calendarDB.Conn().Exec("INSERT INTO calendar_entries VALUES ('e1', 'm1'), ('e2', 'm2')")
		require.NoError(t, err)

		presenceDB := newBackupTestDB(t, dataDir, "presence")

		service := NewBackupService([]*database.DB{calendarDB, presenceDB}, dataDir, nil, 14, log)

		manifest, err := service.Run(context.Background())
		require.NoError(t, err)
		require.NotNil(t, manifest)

		assert.Len(t, manifest.Databases, 2)
		assert.False(t, manifest.Uploaded)
		assert.Greater(t, manifest.SizeBytes, int64(0))
		for _, dbManifest := range manifest.Databases {
			assert.Contains(t, dbManifest.Checksum, "sha256:")
			assert.Greater(t, dbManifest.SizeBytes, int64(0))
		}

		archivePath := filepath.Join(dataDir, "backups", manifest.Archive)
		_, err = os.Stat(archivePath)
		require.NoError(t, err)

		// Staging directory is cleaned up after the run
		_, err = os.Stat(filepath.Join(dataDir, "backups", "staging"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("restored database passes integrity check and keeps data", func(t *testing.T) {
		tempDir := t.TempDir()
		dataDir := filepath.Join(tempDir, "data")
		require.NoError(t, os.MkdirAll(dataDir, 0755))

		calendarDB := newBackupTestDB(t, dataDir, "calendar")
		_, err := calendarDB.Conn().Exec("CREATE TABLE calendar_entries (id TEXT PRIMARY KEY)")
		require.NoError(t, err)
		_, err = calendarDB.Conn().Exec("INSERT INTO calendar_entries VALUES ('e1'), ('e2'), ('e3')")
		require.NoError(t, err)

		service := NewBackupService([]*database.DB{calendarDB}, dataDir, nil, 14, log)

		_, err = service.Run(context.Background())
		require.NoError(t, err)

		restoredPath := filepath.Join(tempDir, "restored.db")
		require.NoError(t, service.RestoreDatabase("calendar", restoredPath))

		restored, err := sql.Open("sqlite", restoredPath)
		require.NoError(t, err)
		defer restored.Close()

		var result string
		require.NoError(t, restored.QueryRow("PRAGMA integrity_check").Scan(&result))
		assert.Equal(t, "ok", result)

		var count int
		require.NoError(t, restored.QueryRow("SELECT COUNT(*) FROM calendar_entries").Scan(&count))
		assert.Equal(t, 3, count)
	})

	t.Run("restore fails when no archive exists", func(t *testing.T) {
		tempDir := t.TempDir()
		service := NewBackupService(nil, tempDir, nil, 14, log)

		err := service.RestoreDatabase("calendar", filepath.Join(tempDir, "out.db"))
		require.Error(t, err)
	})
}

func TestBackupServiceList(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("lists local archives newest first", func(t *testing.T) {
		tempDir := t.TempDir()
		backupDir := filepath.Join(tempDir, "backups")
		require.NoError(t, os.MkdirAll(backupDir, 0755))

		names := []string{
			archivePrefix + "2026-08-01-120000.tar.gz",
			archivePrefix + "2026-08-15-120000.tar.gz",
			archivePrefix + "2026-08-10-120000.tar.gz",
		}
		for _, name := range names {
			require.NoError(t, os.WriteFile(filepath.Join(backupDir, name), []byte("x"), 0644))
		}
		// Files that do not match the archive naming scheme are ignored
		require.NoError(t, os.WriteFile(filepath.Join(backupDir, "notes.txt"), []byte("x"), 0644))

		service := NewBackupService(nil, tempDir, nil, 14, log)

		backups, err := service.List(context.Background())
		require.NoError(t, err)
		require.Len(t, backups, 3)

		assert.Equal(t, names[1], backups[0].Filename)
		assert.Equal(t, names[2], backups[1].Filename)
		assert.Equal(t, names[0], backups[2].Filename)
	})

	t.Run("empty when backup directory does not exist", func(t *testing.T) {
		service := NewBackupService(nil, t.TempDir(), nil, 14, log)

		backups, err := service.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, backups)
	})
}

func TestExpiredBackups(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	now := time.Now()

	backupAt := func(age time.Duration) BackupInfo {
		ts := now.Add(-age)
		return BackupInfo{
			Filename:  archivePrefix + ts.Format(archiveTimeLayout) + ".tar.gz",
			Timestamp: ts,
		}
	}

	t.Run("keeps newest three regardless of age", func(t *testing.T) {
		service := NewBackupService(nil, t.TempDir(), nil, 1, log)

		backups := []BackupInfo{
			backupAt(100 * 24 * time.Hour),
			backupAt(200 * 24 * time.Hour),
			backupAt(300 * 24 * time.Hour),
		}
		assert.Empty(t, service.expiredBackups(backups))
	})

	t.Run("expires only archives past retention", func(t *testing.T) {
		service := NewBackupService(nil, t.TempDir(), nil, 14, log)

		backups := []BackupInfo{
			backupAt(1 * 24 * time.Hour),
			backupAt(2 * 24 * time.Hour),
			backupAt(3 * 24 * time.Hour),
			backupAt(10 * 24 * time.Hour),
			backupAt(20 * 24 * time.Hour),
			backupAt(30 * 24 * time.Hour),
		}

		expired := service.expiredBackups(backups)
		require.Len(t, expired, 2)
		assert.Equal(t, backups[4].Filename, expired[0].Filename)
		assert.Equal(t, backups[5].Filename, expired[1].Filename)
	})

	t.Run("zero retention keeps everything", func(t *testing.T) {
		service := NewBackupService(nil, t.TempDir(), nil, 0, log)

		backups := []BackupInfo{
			backupAt(24 * time.Hour),
			backupAt(48 * time.Hour),
			backupAt(365 * 24 * time.Hour),
			backupAt(2 * 365 * 24 * time.Hour),
		}
		assert.Empty(t, service.expiredBackups(backups))
	})
}
