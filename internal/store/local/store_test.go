package local

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record.Record{Type: record.Projects, ID: "p1", Payload: []byte("a"), UpdatedAt: 100, Origin: record.OriginLocal, Version: 1}
	require.NoError(t, s.Put(ctx, rec))

	got, ok, err := s.Get(ctx, record.Projects, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Payload, got.Payload)
	assert.Equal(t, rec.UpdatedAt, got.UpdatedAt)
}

func TestStore_Put_StaleWriteSuperseded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newer := record.Record{Type: record.Projects, ID: "p1", Payload: []byte("new"), UpdatedAt: 200, Origin: record.OriginLocal, Version: 2}
	require.NoError(t, s.Put(ctx, newer))

	stale := record.Record{Type: record.Projects, ID: "p1", Payload: []byte("old"), UpdatedAt: 100, Origin: record.OriginLocal, Version: 1}
	err := s.Put(ctx, stale)
	require.Error(t, err)

	got, ok, getErr := s.Get(ctx, record.Projects, "p1")
	require.NoError(t, getErr)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got.Payload, "stored copy must remain intact on superseded write")
}

func TestStore_Put_RepeatedIdenticalWriteLeavesStoredCopyUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record.Record{Type: record.Projects, ID: "p1", Payload: []byte("a"), UpdatedAt: 100, Origin: record.OriginLocal, Version: 1}
	require.NoError(t, s.Put(ctx, rec))

	// Re-applying the exact same record (same UpdatedAt) is treated as
	// superseded since it is not strictly newer — the stored copy must be
	// left intact either way (idempotence, spec §4.2).
	err := s.Put(ctx, rec)
	require.Error(t, err)

	got, _, _ := s.Get(ctx, record.Projects, "p1")
	assert.Equal(t, rec.Payload, got.Payload)
}

func TestStore_PutResolved_EqualTimestampOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, record.Record{
		Type: record.Projects, ID: "p1", Payload: []byte("B"), UpdatedAt: 1000, Origin: record.OriginObject, Version: 1,
	}))

	winner := record.Record{Type: record.Projects, ID: "p1", Payload: []byte("A"), UpdatedAt: 1000, Origin: record.OriginObject, Version: 2}
	require.NoError(t, s.PutResolved(ctx, winner))

	got, ok, err := s.Get(ctx, record.Projects, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("A"), got.Payload, "tie-break winner must overwrite despite equal UpdatedAt")
}

func TestStore_PutResolved_StillRejectsStrictlyOlderWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, record.Record{
		Type: record.Projects, ID: "p1", Payload: []byte("new"), UpdatedAt: 200, Origin: record.OriginLocal, Version: 2,
	}))

	stale := record.Record{Type: record.Projects, ID: "p1", Payload: []byte("old"), UpdatedAt: 100, Origin: record.OriginLocal, Version: 1}
	err := s.PutResolved(ctx, stale)
	require.Error(t, err)

	got, _, _ := s.Get(ctx, record.Projects, "p1")
	assert.Equal(t, []byte("new"), got.Payload)
}

func TestStore_Delete_Tombstone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record.Record{Type: record.Projects, ID: "p1", Payload: []byte("a"), UpdatedAt: 100, Origin: record.OriginLocal, Version: 1}
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Delete(ctx, record.Projects, "p1", 200))

	got, ok, err := s.Get(ctx, record.Projects, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Deleted)
}

func TestStore_ListSince_Pagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		rec := record.Record{Type: record.Projects, ID: string(rune('a' + i)), Payload: []byte("x"), UpdatedAt: int64(i * 10), Origin: record.OriginLocal, Version: 1}
		require.NoError(t, s.Put(ctx, rec))
	}

	recs, cursor, err := s.ListSince(ctx, record.Projects, store.Cursor{}, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, int64(20), cursor.AfterUpdatedAt)

	more, cursor2, err := s.ListSince(ctx, record.Projects, cursor, 10)
	require.NoError(t, err)
	assert.Len(t, more, 3)
	assert.Equal(t, int64(50), cursor2.AfterUpdatedAt)
}

func TestStore_CursorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cur, inFlight, err := s.GetCursor(ctx, "users", "local->external")
	require.NoError(t, err)
	assert.Zero(t, cur.AfterUpdatedAt)
	assert.Nil(t, inFlight)

	require.NoError(t, s.SaveCursor(ctx, "users", "local->external", store.Cursor{AfterUpdatedAt: 500}, []string{"u1", "u2"}))

	cur2, inFlight2, err := s.GetCursor(ctx, "users", "local->external")
	require.NoError(t, err)
	assert.Equal(t, int64(500), cur2.AfterUpdatedAt)
	assert.Equal(t, []string{"u1", "u2"}, inFlight2)

	require.NoError(t, s.ResetCursor(ctx, "users", "local->external"))

	cur3, _, err := s.GetCursor(ctx, "users", "local->external")
	require.NoError(t, err)
	assert.Zero(t, cur3.AfterUpdatedAt)
}

func TestStore_LiveIDsExcludesTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, record.Record{Type: record.Projects, ID: "p1", UpdatedAt: 10, Origin: record.OriginLocal}))
	require.NoError(t, s.Put(ctx, record.Record{Type: record.Projects, ID: "p2", UpdatedAt: 10, Origin: record.OriginLocal}))
	require.NoError(t, s.Delete(ctx, record.Projects, "p2", 20))

	ids, err := s.LiveIDs(ctx, record.Projects)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": true}, ids)
}

func TestStore_TransitionLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordTransitionStart(ctx, record.ModeLocalOnly, record.ModeLocalExternal, 1000, "promote", "operator")
	require.NoError(t, err)

	require.NoError(t, s.FinishTransition(ctx, id, 2000, record.TransitionSucceeded, ""))

	history, err := s.TransitionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.TransitionSucceeded, history[0].Status)
	assert.Equal(t, record.ModeLocalExternal, history[0].ToMode)
}
