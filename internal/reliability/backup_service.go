package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/database"
)

const (
	archivePrefix     = "stagefinder-backup-"
	archiveTimeLayout = "2006-01-02-150405"

	// A rotation pass never deletes below this count, regardless of age
	minBackupsToKeep = 3
)

// Manifest describes a completed backup archive
type Manifest struct {
	Archive   string             `json:"archive"`
	CreatedAt time.Time          `json:"created_at"`
	SizeBytes int64              `json:"size_bytes"`
	Uploaded  bool               `json:"uploaded"`
	Databases []DatabaseManifest `json:"databases"`
}

// DatabaseManifest describes a single database inside a backup archive
type DatabaseManifest struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo summarizes a stored backup archive
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots every database into a tar.gz archive, keeps a
// local copy under <dataDir>/backups and optionally mirrors archives to
// an S3-compatible bucket.
type BackupService struct {
	databases     []*database.DB
	backupDir     string
	remote        *S3Client // nil when cloud backups are not configured
	retentionDays int
	log           zerolog.Logger
}

// NewBackupService creates a backup service for the given databases
func NewBackupService(
	databases []*database.DB,
	dataDir string,
	remote *S3Client,
	retentionDays int,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		databases:     databases,
		backupDir:     filepath.Join(dataDir, "backups"),
		remote:        remote,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// Run snapshots all databases into a new archive and rotates old ones
func (s *BackupService) Run(ctx context.Context) (*Manifest, error) {
	startTime := time.Now()
	s.log.Info().Msg("Starting backup")

	stagingDir := filepath.Join(s.backupDir, "staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	createdAt := time.Now().UTC()
	manifest := &Manifest{
		CreatedAt: createdAt,
		Databases: make([]DatabaseManifest, 0, len(s.databases)),
	}

	for _, db := range s.databases {
		snapshotPath := filepath.Join(stagingDir, db.Name()+".db")

		if err := s.snapshotDatabase(db, snapshotPath); err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}

		if err := s.verifySnapshot(snapshotPath); err != nil {
			os.Remove(snapshotPath)
			return nil, fmt.Errorf("snapshot verification failed for %s: %w", db.Name(), err)
		}

		info, err := os.Stat(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat snapshot for %s: %w", db.Name(), err)
		}

		checksum, err := fileChecksum(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to checksum snapshot for %s: %w", db.Name(), err)
		}

		manifest.Databases = append(manifest.Databases, DatabaseManifest{
			Name:      db.Name(),
			Filename:  db.Name() + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	archiveName := archivePrefix + createdAt.Format(archiveTimeLayout) + ".tar.gz"
	manifest.Archive = archiveName

	manifestPath := filepath.Join(stagingDir, "manifest.json")
	if err := writeManifest(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	archivePath := filepath.Join(s.backupDir, archiveName)
	if err := s.createArchive(archivePath, stagingDir); err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	manifest.SizeBytes = archiveInfo.Size()

	if s.remote != nil {
		if err := s.uploadArchive(ctx, archivePath, archiveName); err != nil {
			// The local copy is intact; keep it and report the failure
			s.log.Error().Err(err).Str("archive", archiveName).Msg("Failed to upload backup")
		} else {
			manifest.Uploaded = true
			if err := s.rotateRemote(ctx); err != nil {
				s.log.Warn().Err(err).Msg("Remote backup rotation failed")
			}
		}
	}

	if err := s.rotateLocal(); err != nil {
		s.log.Warn().Err(err).Msg("Local backup rotation failed")
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_bytes", manifest.SizeBytes).
		Bool("uploaded", manifest.Uploaded).
		Msg("Backup completed")

	return manifest, nil
}

// List returns stored backups, newest first. The remote bucket is
// authoritative when configured; otherwise the local directory is listed.
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	if s.remote != nil {
		objects, err := s.remote.List(ctx, archivePrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list remote backups: %w", err)
		}

		backups := make([]BackupInfo, 0, len(objects))
		for _, obj := range objects {
			if info, ok := parseArchiveName(obj.Key, obj.SizeBytes); ok {
				backups = append(backups, info)
			}
		}
		sortBackups(backups)
		return backups, nil
	}

	return s.listLocal()
}

// RestoreDatabase extracts the named database from the newest local archive
// into destPath. Used at startup when a database file is missing or fails
// its integrity check.
func (s *BackupService) RestoreDatabase(dbName, destPath string) error {
	backups, err := s.listLocal()
	if err != nil {
		return fmt.Errorf("failed to list local backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no local backup found for %s", dbName)
	}

	for _, backup := range backups {
		archivePath := filepath.Join(s.backupDir, backup.Filename)
		err := extractFromArchive(archivePath, dbName+".db", destPath)
		if err == nil {
			s.log.Warn().
				Str("database", dbName).
				Str("archive", backup.Filename).
				Msg("Database restored from backup")
			return nil
		}
		s.log.Warn().
			Err(err).
			Str("archive", backup.Filename).
			Str("database", dbName).
			Msg("Restore attempt failed, trying older archive")
	}

	return fmt.Errorf("no archive contained a restorable copy of %s", dbName)
}

// snapshotDatabase copies a live database using VACUUM INTO.
// The copy is atomic and carries no WAL sidecar files.
func (s *BackupService) snapshotDatabase(db *database.DB, destPath string) error {
	s.log.Debug().Str("database", db.Name()).Msg("Snapshotting database")

	if _, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}
	return nil
}

// verifySnapshot opens the copy and runs an integrity check
func (s *BackupService) verifySnapshot(path string) error {
	snapshot, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snapshot.Close()

	var result string
	if err := snapshot.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func (s *BackupService) uploadArchive(ctx context.Context, archivePath, archiveName string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	return s.remote.Upload(ctx, archiveName, file)
}

// rotateLocal deletes local archives past the retention window
func (s *BackupService) rotateLocal() error {
	backups, err := s.listLocal()
	if err != nil {
		return err
	}

	for _, backup := range s.expiredBackups(backups) {
		path := filepath.Join(s.backupDir, backup.Filename)
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("Failed to delete old local backup")
			continue
		}
		s.log.Debug().Str("archive", backup.Filename).Msg("Deleted old local backup")
	}

	return nil
}

// rotateRemote deletes remote archives past the retention window
func (s *BackupService) rotateRemote(ctx context.Context) error {
	backups, err := s.List(ctx)
	if err != nil {
		return err
	}

	deleted := 0
	for _, backup := range s.expiredBackups(backups) {
		if err := s.remote.Delete(ctx, backup.Filename); err != nil {
			s.log.Warn().Err(err).Str("archive", backup.Filename).Msg("Failed to delete old remote backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("Remote backup rotation completed")
	}
	return nil
}

// expiredBackups returns archives older than the retention window.
// Input must be sorted newest first; the newest minBackupsToKeep archives
// are always preserved, and retentionDays == 0 disables expiry entirely.
func (s *BackupService) expiredBackups(backups []BackupInfo) []BackupInfo {
	if s.retentionDays <= 0 || len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	var expired []BackupInfo
	for i, backup := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if backup.Timestamp.Before(cutoff) {
			expired = append(expired, backup)
		}
	}
	return expired
}

func (s *BackupService) listLocal() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileInfo, err := entry.Info()
		if err != nil {
			continue
		}
		if info, ok := parseArchiveName(entry.Name(), fileInfo.Size()); ok {
			backups = append(backups, info)
		}
	}

	sortBackups(backups)
	return backups, nil
}

// createArchive packs every file in stagingDir into a tar.gz archive
func (s *BackupService) createArchive(archivePath, stagingDir string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filePath := filepath.Join(stagingDir, entry.Name())
		if err := addFileToArchive(tarWriter, filePath, entry.Name()); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", entry.Name(), err)
		}
	}

	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}

// extractFromArchive copies a single named file out of a tar.gz archive
func extractFromArchive(archivePath, nameInArchive, destPath string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive entry: %w", err)
		}
		if header.Name != nameInArchive {
			continue
		}

		destFile, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create destination file: %w", err)
		}

		if _, err := io.Copy(destFile, tarReader); err != nil {
			destFile.Close()
			os.Remove(destPath)
			return fmt.Errorf("failed to extract %s: %w", nameInArchive, err)
		}
		return destFile.Close()
	}

	return fmt.Errorf("%s not found in archive", nameInArchive)
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeManifest(path string, manifest *Manifest) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(manifest)
}

// parseArchiveName recovers the timestamp embedded in an archive filename
func parseArchiveName(filename string, sizeBytes int64) (BackupInfo, bool) {
	if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, ".tar.gz") {
		return BackupInfo{}, false
	}

	timestampStr := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
	timestamp, err := time.Parse(archiveTimeLayout, timestampStr)
	if err != nil {
		return BackupInfo{}, false
	}

	return BackupInfo{
		Filename:  filename,
		Timestamp: timestamp,
		SizeBytes: sizeBytes,
		AgeHours:  int64(time.Since(timestamp).Hours()),
	}, true
}

func sortBackups(backups []BackupInfo) {
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
}
