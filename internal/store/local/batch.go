package local

import (
	"context"
	"database/sql"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/syncerrs"
)

// batch implements store.Batch over a single *sql.Tx. Statements are built
// ad hoc (rather than reusing the prepared statements, which are bound to
// the pool connection, not a transaction) — batches are used for the
// Snapshot Engine's write barrier and for multi-record apply, not the hot
// per-record path.
type batch struct {
	tx    *sql.Tx
	store *Store
}

func (b *batch) Put(ctx context.Context, rec record.Record) error {
	res, err := b.tx.ExecContext(ctx, `INSERT INTO records (type, id, payload, updated_at, deleted, origin, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			origin = excluded.origin,
			version = excluded.version
		WHERE excluded.updated_at > records.updated_at`,
		string(rec.Type), rec.ID, rec.Payload, rec.UpdatedAt,
		boolToInt(rec.Deleted), string(rec.Origin), rec.Version,
	)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.batch.Put", string(rec.Type), rec.ID)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/local.batch.Put", string(rec.Type), rec.ID)
	}

	return nil
}

func (b *batch) Delete(ctx context.Context, t record.DataType, id string, at int64) error {
	_, err := b.tx.ExecContext(ctx, `UPDATE records SET deleted = 1, updated_at = ?, version = version + 1
		WHERE type = ? AND id = ? AND ? > updated_at`, at, string(t), id, at)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.batch.Delete", string(t), id)
	}

	return nil
}

func (b *batch) Commit(_ context.Context) error {
	if err := b.tx.Commit(); err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.batch.Commit", "", "")
	}

	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	return b.tx.Rollback()
}
