// Package local implements the embedded single-file local store adapter
// (spec §4.2) on top of modernc.org/sqlite, grounded on the teacher's
// internal/sync.SQLiteStore: WAL mode, goose-embedded migrations, prepared
// statements grouped by domain.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure Go SQLite driver, registers as "sqlite"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/syncerrs"
)

const walJournalSizeLimit = 67108864 // 64 MiB

// Store implements store.Adapter over an embedded SQLite database. It also
// exposes the sync_cursors and transition_log tables used by the Sync
// Engine and Mode Transition Manager respectively — those are not part of
// the store.Adapter capability set (they are engine-internal bookkeeping)
// but live in the same file, mirroring the teacher's single-database design
// (records + sync_cursors + transition_log, per spec §6).
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	itemStmts itemStatements
}

type itemStatements struct {
	get, upsert, upsertResolved, listSince, listSinceAll, markDeleted, markDeletedResolved *sql.Stmt
}

// Open creates a Store at dbPath ("" or ":memory:" for an ephemeral
// in-process database, used by tests), applying migrations and preparing
// statements.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath == "" {
		dbPath = ":memory:"
	}

	logger.Info("opening local sync store", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store/local: open sqlite: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1) // a single shared in-memory connection.
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: dbPath, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store/local: prepare statements: %w", err)
	}

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store/local: set pragma %q: %w", p, err)
		}

		logger.Debug("pragma set", "pragma", p)
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	prep := func(query string) *sql.Stmt {
		if err != nil {
			return nil
		}

		var stmt *sql.Stmt

		stmt, err = s.db.PrepareContext(ctx, query)

		return stmt
	}

	s.itemStmts.get = prep(`SELECT payload, updated_at, deleted, origin, version
		FROM records WHERE type = ? AND id = ?`)
	s.itemStmts.upsert = prep(`INSERT INTO records (type, id, payload, updated_at, deleted, origin, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			origin = excluded.origin,
			version = excluded.version
		WHERE excluded.updated_at > records.updated_at`)
	s.itemStmts.upsertResolved = prep(`INSERT INTO records (type, id, payload, updated_at, deleted, origin, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			origin = excluded.origin,
			version = excluded.version
		WHERE excluded.updated_at >= records.updated_at`)
	s.itemStmts.listSince = prep(`SELECT type, id, payload, updated_at, deleted, origin, version
		FROM records WHERE type = ? AND updated_at > ? ORDER BY updated_at ASC LIMIT ?`)
	s.itemStmts.listSinceAll = prep(`SELECT type, id, payload, updated_at, deleted, origin, version
		FROM records WHERE type = ? ORDER BY updated_at ASC LIMIT ?`)
	s.itemStmts.markDeleted = prep(`UPDATE records SET deleted = 1, updated_at = ?, version = version + 1
		WHERE type = ? AND id = ? AND ? > updated_at`)
	s.itemStmts.markDeletedResolved = prep(`UPDATE records SET deleted = 1, updated_at = ?, version = version + 1
		WHERE type = ? AND id = ? AND ? >= updated_at`)

	return err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components that manage adjoining
// tables in the same file (sync cursors, transition log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the filesystem path this Store was opened with (":memory:"
// for ephemeral databases), used by the Snapshot Engine to locate the file
// to archive.
func (s *Store) Path() string {
	return s.path
}

// Get implements store.Adapter.
func (s *Store) Get(ctx context.Context, t record.DataType, id string) (record.Record, bool, error) {
	row := s.itemStmts.get.QueryRowContext(ctx, string(t), id)

	var (
		payload   []byte
		updatedAt int64
		deleted   int
		origin    string
		version   int64
	)

	if err := row.Scan(&payload, &updatedAt, &deleted, &origin, &version); err != nil {
		if err == sql.ErrNoRows {
			return record.Record{}, false, nil
		}

		return record.Record{}, false, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.Get", string(t), id)
	}

	return record.Record{
		Type: t, ID: id, Payload: payload, UpdatedAt: updatedAt,
		Deleted: deleted != 0, Origin: record.Origin(origin), Version: version,
	}, true, nil
}

// Put implements store.Adapter. A stale write (UpdatedAt <= the stored
// copy's) is rejected with ErrSuperseded without mutating the stored copy;
// writing the same record twice therefore leaves it unchanged, with the
// second write returning ErrSuperseded.
func (s *Store) Put(ctx context.Context, rec record.Record) error {
	existing, found, err := s.Get(ctx, rec.Type, rec.ID)
	if err != nil {
		return err
	}

	if found && rec.UpdatedAt <= existing.UpdatedAt {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/local.Put", string(rec.Type), rec.ID)
	}

	res, err := s.itemStmts.upsert.ExecContext(ctx,
		string(rec.Type), rec.ID, rec.Payload, rec.UpdatedAt,
		boolToInt(rec.Deleted), string(rec.Origin), rec.Version,
	)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.Put", string(rec.Type), rec.ID)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/local.Put", string(rec.Type), rec.ID)
	}

	return nil
}

// Delete implements store.Adapter, producing a tombstone.
func (s *Store) Delete(ctx context.Context, t record.DataType, id string, at int64) error {
	res, err := s.itemStmts.markDeleted.ExecContext(ctx, at, string(t), id, at)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.Delete", string(t), id)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		// Either no such record, or the stored copy is already newer
		// (superseded delete) — both are non-fatal no-ops for idempotence.
		if _, found, getErr := s.Get(ctx, t, id); getErr == nil && found {
			return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/local.Delete", string(t), id)
		}
	}

	return nil
}

// PutResolved implements store.Adapter. See the interface doc: it accepts a
// write whose UpdatedAt equals the stored copy's, needed when conflict
// resolution deterministically picks the incoming record on a tie.
func (s *Store) PutResolved(ctx context.Context, rec record.Record) error {
	existing, found, err := s.Get(ctx, rec.Type, rec.ID)
	if err != nil {
		return err
	}

	if found && rec.UpdatedAt < existing.UpdatedAt {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/local.PutResolved", string(rec.Type), rec.ID)
	}

	res, err := s.itemStmts.upsertResolved.ExecContext(ctx,
		string(rec.Type), rec.ID, rec.Payload, rec.UpdatedAt,
		boolToInt(rec.Deleted), string(rec.Origin), rec.Version,
	)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.PutResolved", string(rec.Type), rec.ID)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/local.PutResolved", string(rec.Type), rec.ID)
	}

	return nil
}

// DeleteResolved implements store.Adapter, tombstoning (t, id) and accepting
// an equal-timestamp tie the same way PutResolved does.
func (s *Store) DeleteResolved(ctx context.Context, t record.DataType, id string, at int64) error {
	res, err := s.itemStmts.markDeletedResolved.ExecContext(ctx, at, string(t), id, at)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.DeleteResolved", string(t), id)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, found, getErr := s.Get(ctx, t, id); getErr == nil && found {
			return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/local.DeleteResolved", string(t), id)
		}
	}

	return nil
}

// ListSince implements store.Adapter's change feed, keyed by UpdatedAt.
func (s *Store) ListSince(ctx context.Context, t record.DataType, cursor store.Cursor, limit int) ([]record.Record, store.Cursor, error) {
	var rows *sql.Rows

	var err error

	if cursor.AfterUpdatedAt == 0 {
		rows, err = s.itemStmts.listSinceAll.QueryContext(ctx, string(t), limit)
	} else {
		rows, err = s.itemStmts.listSince.QueryContext(ctx, string(t), cursor.AfterUpdatedAt, limit)
	}

	if err != nil {
		return nil, cursor, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.ListSince", string(t), "")
	}

	defer rows.Close()

	var out []record.Record

	next := cursor

	for rows.Next() {
		var (
			typ       string
			id        string
			payload   []byte
			updatedAt int64
			deleted   int
			origin    string
			version   int64
		)

		if err := rows.Scan(&typ, &id, &payload, &updatedAt, &deleted, &origin, &version); err != nil {
			return nil, cursor, syncerrs.Wrap(syncerrs.ErrInternal, "store/local.ListSince", string(t), id)
		}

		out = append(out, record.Record{
			Type: record.DataType(typ), ID: id, Payload: payload, UpdatedAt: updatedAt,
			Deleted: deleted != 0, Origin: record.Origin(origin), Version: version,
		})

		if updatedAt > next.AfterUpdatedAt {
			next.AfterUpdatedAt = updatedAt
		}
	}

	return out, next, rows.Err()
}

// Ping implements store.Adapter: the local store is always reachable once
// open (no network hop).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginBatch implements store.Adapter.
func (s *Store) BeginBatch(ctx context.Context) (store.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.BeginBatch", "", "")
	}

	return &batch{tx: tx, store: s}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// marshalInFlight/unmarshalInFlight support persisting a Cursor's in-flight
// id set as JSON in sync_cursors.in_flight_ids (used by the cursor
// bookkeeping in cursors.go).
func marshalInFlight(ids []string) string {
	b, _ := json.Marshal(ids)
	return string(b)
}

func unmarshalInFlight(s string) []string {
	if s == "" {
		return nil
	}

	var ids []string
	_ = json.Unmarshal([]byte(s), &ids)

	return ids
}
