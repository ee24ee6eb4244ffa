package configsync

import (
	"context"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
)

// sensitiveTypes is the set of data types whose payloads are encrypted
// before leaving the local process (spec §4.1 rule 7, §4.8).
var sensitiveTypes = map[record.DataType]bool{
	record.SystemConfigs:     true,
	record.AIProviderConfigs: true,
}

// EncryptingAdapter wraps a store.Adapter, transparently encrypting the
// payload of every sensitive-type record on its way out to the wrapped
// adapter and decrypting it on the way back. Every other data type passes
// through untouched. Wrap the external (and object) adapters with this
// before handing them to the Sync Engine so workers never have to know
// which data types are sensitive.
type EncryptingAdapter struct {
	store.Adapter
	codec *Codec
}

// NewEncryptingAdapter returns an EncryptingAdapter over next using codec.
func NewEncryptingAdapter(next store.Adapter, codec *Codec) *EncryptingAdapter {
	return &EncryptingAdapter{Adapter: next, codec: codec}
}

// Get decrypts a sensitive record's payload after the underlying adapter
// returns it.
func (a *EncryptingAdapter) Get(ctx context.Context, t record.DataType, id string) (record.Record, bool, error) {
	rec, ok, err := a.Adapter.Get(ctx, t, id)
	if err != nil || !ok || rec.Deleted {
		return rec, ok, err
	}

	return a.decryptIfSensitive(rec)
}

// Put encrypts a sensitive record's payload before handing it to the
// underlying adapter.
func (a *EncryptingAdapter) Put(ctx context.Context, rec record.Record) error {
	enc, err := a.encryptIfSensitive(rec)
	if err != nil {
		return err
	}

	return a.Adapter.Put(ctx, enc)
}

// PutResolved encrypts a sensitive record's payload before handing it to
// the underlying adapter, the same way Put does.
func (a *EncryptingAdapter) PutResolved(ctx context.Context, rec record.Record) error {
	enc, err := a.encryptIfSensitive(rec)
	if err != nil {
		return err
	}

	return a.Adapter.PutResolved(ctx, enc)
}

// ListSince decrypts every sensitive record's payload in the page returned
// by the underlying adapter.
func (a *EncryptingAdapter) ListSince(ctx context.Context, t record.DataType, cursor store.Cursor, limit int) ([]record.Record, store.Cursor, error) {
	recs, next, err := a.Adapter.ListSince(ctx, t, cursor, limit)
	if err != nil {
		return recs, next, err
	}

	out := make([]record.Record, len(recs))

	for i, rec := range recs {
		dec, decErr := a.decryptIfSensitive(rec)
		if decErr != nil {
			return nil, store.Cursor{}, decErr
		}

		out[i] = dec
	}

	return out, next, nil
}

// BeginBatch wraps the underlying batch so writes made through it are
// encrypted the same way Put is.
func (a *EncryptingAdapter) BeginBatch(ctx context.Context) (store.Batch, error) {
	b, err := a.Adapter.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}

	return &encryptingBatch{Batch: b, adapter: a}, nil
}

func (a *EncryptingAdapter) encryptIfSensitive(rec record.Record) (record.Record, error) {
	if !sensitiveTypes[rec.Type] || rec.Deleted || len(rec.Payload) == 0 {
		return rec, nil
	}

	sealed, err := a.codec.Encrypt(rec.Payload)
	if err != nil {
		return record.Record{}, err
	}

	rec.Payload = sealed

	return rec, nil
}

func (a *EncryptingAdapter) decryptIfSensitive(rec record.Record) (record.Record, error) {
	if !sensitiveTypes[rec.Type] || rec.Deleted || len(rec.Payload) == 0 {
		return rec, nil
	}

	plain, err := a.codec.Decrypt(rec.Payload)
	if err != nil {
		return record.Record{}, err
	}

	rec.Payload = plain

	return rec, nil
}

type encryptingBatch struct {
	store.Batch
	adapter *EncryptingAdapter
}

func (b *encryptingBatch) Put(ctx context.Context, rec record.Record) error {
	enc, err := b.adapter.encryptIfSensitive(rec)
	if err != nil {
		return err
	}

	return b.Batch.Put(ctx, enc)
}
