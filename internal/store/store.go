// Package store defines the uniform CRUD + change-feed capability set that
// every store adapter (local, external, object) implements (spec §4.2), plus
// the batch and cursor types the Sync Engine drives them with.
package store

import (
	"context"

	"github.com/flowslide/synccore/internal/record"
)

// Cursor is the watermark a change feed resumes from: the highest
// updated_at already observed, plus an opaque continuation token for
// paginated backends.
type Cursor struct {
	AfterUpdatedAt int64
	Token          string
}

// Batch is an in-flight write transaction on an adapter.
type Batch interface {
	Put(ctx context.Context, rec record.Record) error
	Delete(ctx context.Context, t record.DataType, id string, at int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Adapter is the capability set every store backend implements (spec §4.2).
// Implementations must make Put idempotent on identical inputs, and must
// reject stale writes (Superseded) rather than overwrite a newer stored
// copy — see syncerrs.ErrSuperseded.
type Adapter interface {
	// Get returns the current record for (t, id). Returns (Record{}, false,
	// nil) if no record exists.
	Get(ctx context.Context, t record.DataType, id string) (record.Record, bool, error)

	// Put writes rec. If the stored copy has a strictly newer or equal
	// UpdatedAt, Put leaves it intact and returns a *syncerrs.SyncError
	// wrapping syncerrs.ErrSuperseded.
	Put(ctx context.Context, rec record.Record) error

	// Delete marks (t, id) deleted (tombstone) at timestamp at, subject to
	// the same supersession rule as Put.
	Delete(ctx context.Context, t record.DataType, id string, at int64) error

	// PutResolved writes rec the same way Put does, except it also accepts a
	// write whose UpdatedAt equals the stored copy's. Conflict resolution
	// (spec §4.5 step 3) can deterministically pick the incoming record over
	// an equal-timestamp tie (locality bias, then version, then payload
	// hash); that winner must still reach the destination, so it goes
	// through PutResolved instead of Put. It still rejects a write that is
	// strictly older than the stored copy.
	PutResolved(ctx context.Context, rec record.Record) error

	// DeleteResolved is PutResolved's Delete counterpart: it tombstones
	// (t, id) at timestamp at, accepting an equal-timestamp tie the same way
	// PutResolved does.
	DeleteResolved(ctx context.Context, t record.DataType, id string, at int64) error

	// ListSince returns up to limit records of type t with UpdatedAt
	// strictly greater than cursor's watermark (or all records, ordered by
	// UpdatedAt, if the cursor is zero), plus the cursor to resume from for
	// the next call.
	ListSince(ctx context.Context, t record.DataType, cursor Cursor, limit int) ([]record.Record, Cursor, error)

	// Ping reports whether the adapter's backing store is currently
	// reachable. Used by the Mode Detector and by transition validation.
	Ping(ctx context.Context) error

	// BeginBatch starts a batch of writes applied on Commit. The local and
	// external adapters apply a batch in one transaction; the object-store
	// adapter applies its writes one at a time, without atomicity.
	BeginBatch(ctx context.Context) (Batch, error)
}
