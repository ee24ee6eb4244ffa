// Package backup implements the Snapshot/Backup Engine (spec §4.6):
// scheduled and on-demand point-in-time archives of the local store,
// uploaded to the object store under backups/<yyyymmdd_hhmmss>/, with
// retention enforcement and hash-verified restore.
package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/syncerrs"
)

// DefaultSchedule matches spec §4.6's "default daily" cadence.
const DefaultSchedule = "0 3 * * *"

// DefaultRetentionDays bounds how long archives are kept before the
// retention sweep deletes them.
const DefaultRetentionDays = 30

// ObjectStore is the subset of objectstore.Store the engine needs for
// archive upload/download/listing/deletion.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	DeleteObject(ctx context.Context, key string) error
}

// Quiescer pauses and resumes the Sync Engine around a snapshot, matching
// spec §4.6's "quiesce writers via an advisory read barrier". syncengine.Engine
// satisfies this via Stop/Reconfigure.
type Quiescer interface {
	Stop()
	Reconfigure(ctx context.Context)
}

// CursorInvalidator resets sync cursors after a restore so the next cycle
// reconciles fully against peers (spec §4.6).
type CursorInvalidator interface {
	ResetCursor(ctx context.Context, dataType, direction string) error
}

// Engine runs scheduled and on-demand snapshots.
type Engine struct {
	object   ObjectStore
	bucket   string
	quiescer Quiescer
	modeFn   func() record.DeploymentMode
	logger   *slog.Logger
	cron     *cron.Cron
	retention time.Duration
	nowFn    func() time.Time
}

// Config bundles the engine's construction-time dependencies.
type Config struct {
	Object        ObjectStore
	Bucket        string
	Quiescer      Quiescer
	ModeFn        func() record.DeploymentMode
	Schedule      string
	RetentionDays int
	Logger        *slog.Logger
}

// New creates an Engine and registers its cron schedule without starting it.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}

	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	e := &Engine{
		object: cfg.Object, bucket: cfg.Bucket, quiescer: cfg.Quiescer, modeFn: cfg.ModeFn,
		logger: logger, retention: time.Duration(retentionDays) * 24 * time.Hour, nowFn: time.Now,
	}

	e.cron = cron.New()

	if _, err := e.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := e.Create(ctx, nil); err != nil {
			e.logger.Error("scheduled snapshot failed", slog.Any("error", err))
		}
	}); err != nil {
		return nil, fmt.Errorf("backup: invalid schedule %q: %w", schedule, err)
	}

	return e, nil
}

// Start begins the cron scheduler.
func (e *Engine) Start() { e.cron.Start() }

// StopSchedule stops the cron scheduler, waiting for any in-flight job.
func (e *Engine) StopSchedule() context.Context { return e.cron.Stop() }

// Create produces a single snapshot from dbData (the raw local store bytes)
// and uploads it, returning the manifest. Passing nil dbData makes Create
// read the file itself via dbPathFn — used for both scheduled and on-demand
// backups (spec §4.6, §4.8 create_backup).
func (e *Engine) Create(ctx context.Context, dbData []byte) (record.SnapshotManifest, error) {
	if e.quiescer != nil {
		e.quiescer.Stop()
		defer e.quiescer.Reconfigure(ctx)
	}

	if dbData == nil {
		return record.SnapshotManifest{}, syncerrs.Wrap(syncerrs.ErrInvalidConfig, "backup.Create", "", "")
	}

	compressed, err := compress(dbData)
	if err != nil {
		return record.SnapshotManifest{}, fmt.Errorf("backup: compress: %w", err)
	}

	now := e.nowFn()
	prefix := prefixForTimestamp(now)
	mode := record.ModeLocalOnly

	if e.modeFn != nil {
		mode = e.modeFn()
	}

	manifest := buildManifest(now, mode, e.bucket, prefix, compressed)

	if err := e.object.PutObject(ctx, prefix+archiveName, compressed); err != nil {
		return record.SnapshotManifest{}, fmt.Errorf("backup: upload archive: %w", err)
	}

	manifestBytes, err := encodeManifest(manifest)
	if err != nil {
		return record.SnapshotManifest{}, fmt.Errorf("backup: encode manifest: %w", err)
	}

	if err := e.object.PutObject(ctx, prefix+manifestName, manifestBytes); err != nil {
		return record.SnapshotManifest{}, fmt.Errorf("backup: upload manifest: %w", err)
	}

	e.logger.Info("snapshot created", slog.String("prefix", prefix), slog.Int64("size_bytes", manifest.SizeBytes))

	if err := e.enforceRetention(ctx, now); err != nil {
		e.logger.Error("retention sweep failed", slog.Any("error", err))
	}

	return manifest, nil
}

// List returns every retained manifest, newest first (spec §4.8 list_backups).
func (e *Engine) List(ctx context.Context) ([]record.SnapshotManifest, error) {
	keys, err := e.object.ListObjects(ctx, "backups/")
	if err != nil {
		return nil, err
	}

	var manifests []record.SnapshotManifest

	for _, k := range keys {
		if !strings.HasSuffix(k, "/"+manifestName) {
			continue
		}

		data, err := e.object.GetObject(ctx, k)
		if err != nil {
			continue
		}

		m, err := decodeManifest(data)
		if err != nil {
			continue
		}

		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool { return manifests[i].BackupTimestamp > manifests[j].BackupTimestamp })

	return manifests, nil
}

func (e *Engine) enforceRetention(ctx context.Context, now time.Time) error {
	manifests, err := e.List(ctx)
	if err != nil {
		return err
	}

	for _, m := range manifests {
		ts, err := time.Parse(time.RFC3339, m.BackupTimestamp)
		if err != nil {
			continue
		}

		if now.Sub(ts) <= e.retention {
			continue
		}

		for _, suffix := range []string{archiveName, manifestName} {
			if err := e.object.DeleteObject(ctx, m.Prefix+suffix); err != nil {
				e.logger.Error("retention delete failed", slog.String("key", m.Prefix+suffix), slog.Any("error", err))
			}
		}
	}

	return nil
}

// Restore downloads the archive at prefix, verifies its content hash against
// the manifest, and atomically replaces localPath on disk (spec §4.6). The
// caller must close and re-open the local store (or restart the process)
// afterward — Restore does not do so itself, since the store it would need
// to reopen may be in active use by other components.
func (e *Engine) Restore(ctx context.Context, prefix string, localPath string) error {
	manifestBytes, err := e.object.GetObject(ctx, prefix+manifestName)
	if err != nil {
		return fmt.Errorf("backup: fetch manifest: %w", err)
	}

	manifest, err := decodeManifest(manifestBytes)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrCorruptSnapshot, "backup.Restore", "", prefix)
	}

	archive, err := e.object.GetObject(ctx, prefix+archiveName)
	if err != nil {
		return fmt.Errorf("backup: fetch archive: %w", err)
	}

	if hashBytes(archive) != manifest.ContentHash {
		return syncerrs.Wrap(syncerrs.ErrCorruptSnapshot, "backup.Restore", "", prefix)
	}

	data, err := decompress(archive)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrCorruptSnapshot, "backup.Restore", "", prefix)
	}

	return atomicReplace(localPath, data)
}

// InvalidateCursors resets every (type, direction) cursor so the first sync
// cycle after a restore reconciles fully against peers (spec §4.6).
func InvalidateCursors(ctx context.Context, inv CursorInvalidator, dataTypes []record.DataType, directions []string) error {
	for _, dt := range dataTypes {
		for _, dir := range directions {
			if err := inv.ResetCursor(ctx, string(dt), dir); err != nil {
				return err
			}
		}
	}

	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	defer zr.Close()

	return io.ReadAll(zr)
}

func atomicReplace(path string, data []byte) error {
	tmp := path + ".restore.tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("backup: write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("backup: rename into place: %w", err)
	}

	return nil
}

// ReadLocalFile loads the raw bytes of the local store file at path, used by
// callers to build dbData for Create. Separated from Create so the caller
// controls when the file is read relative to quiescing the sync engine.
func ReadLocalFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Clean(path))
}

// Checkpoint forces SQLite to fold its WAL into the main database file
// before a snapshot reads it, so the archived file reflects every committed
// write (spec §4.6: "stream the database file... into a compressed
// archive").
func Checkpoint(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
