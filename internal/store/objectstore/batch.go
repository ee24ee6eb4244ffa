package objectstore

import (
	"context"

	"github.com/flowslide/synccore/internal/record"
)

// batch buffers Put/Delete calls and applies them sequentially on Commit —
// the object store has no multi-key transaction primitive.
type batch struct {
	store *Store
	ops   []func(context.Context) error
}

func (b *batch) Put(_ context.Context, rec record.Record) error {
	b.ops = append(b.ops, func(ctx context.Context) error {
		return b.store.Put(ctx, rec)
	})

	return nil
}

func (b *batch) Delete(_ context.Context, t record.DataType, id string, at int64) error {
	b.ops = append(b.ops, func(ctx context.Context) error {
		return b.store.Delete(ctx, t, id, at)
	})

	return nil
}

func (b *batch) Commit(ctx context.Context) error {
	for _, op := range b.ops {
		if err := op(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	b.ops = nil
	return nil
}
