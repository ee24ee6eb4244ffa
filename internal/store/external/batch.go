package external

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/syncerrs"
)

type batch struct {
	tx pgx.Tx
}

func (b *batch) Put(ctx context.Context, rec record.Record) error {
	_, err := b.tx.Exec(ctx, `INSERT INTO sync_records (data_type, id, payload, updated_at, deleted, origin, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (data_type, id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at,
			deleted = EXCLUDED.deleted,
			origin = EXCLUDED.origin,
			version = EXCLUDED.version
		WHERE EXCLUDED.updated_at > sync_records.updated_at`,
		string(rec.Type), rec.ID, rec.Payload, rec.UpdatedAt, rec.Deleted, string(rec.Origin), rec.Version)
	if err != nil {
		return classify("store/external.batch.Put", string(rec.Type), rec.ID, err)
	}

	return nil
}

func (b *batch) Delete(ctx context.Context, t record.DataType, id string, at int64) error {
	_, err := b.tx.Exec(ctx, `UPDATE sync_records SET deleted = TRUE, updated_at = $1, version = version + 1
		WHERE data_type = $2 AND id = $3 AND $1 > updated_at`, at, string(t), id)
	if err != nil {
		return classify("store/external.batch.Delete", string(t), id, err)
	}

	return nil
}

func (b *batch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/external.batch.Commit", "", "")
	}

	return nil
}

func (b *batch) Rollback(ctx context.Context) error {
	return b.tx.Rollback(ctx)
}
