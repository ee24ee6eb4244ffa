package transition

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowslide/synccore/internal/mode"
	"github.com/flowslide/synccore/internal/policy"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/store/objectstore"
	"github.com/flowslide/synccore/internal/syncengine"
	"github.com/flowslide/synccore/internal/syncerrs"
)

type fakeAdapter struct {
	pingErr error
}

func (f *fakeAdapter) Get(context.Context, record.DataType, string) (record.Record, bool, error) {
	return record.Record{}, false, nil
}
func (f *fakeAdapter) Put(context.Context, record.Record) error { return nil }
func (f *fakeAdapter) Delete(context.Context, record.DataType, string, int64) error { return nil }
func (f *fakeAdapter) PutResolved(context.Context, record.Record) error { return nil }
func (f *fakeAdapter) DeleteResolved(context.Context, record.DataType, string, int64) error { return nil }
func (f *fakeAdapter) ListSince(context.Context, record.DataType, store.Cursor, int) ([]record.Record, store.Cursor, error) {
	return nil, store.Cursor{}, nil
}
func (f *fakeAdapter) Ping(context.Context) error                     { return f.pingErr }
func (f *fakeAdapter) BeginBatch(context.Context) (store.Batch, error) { return nil, nil }

type fakeLog struct {
	mu   stdsync.Mutex
	rows []record.TransitionRecord
	next int64
}

func (f *fakeLog) RecordTransitionStart(_ context.Context, from, to record.DeploymentMode, startedAt int64, reason, actor string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	f.rows = append(f.rows, record.TransitionRecord{
		ID: f.next, FromMode: from, ToMode: to, StartedAt: startedAt, Reason: reason, Actor: actor,
		Status: "in_progress",
	})

	return f.next, nil
}

func (f *fakeLog) FinishTransition(_ context.Context, id int64, finishedAt int64, status record.TransitionStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].FinishedAt = finishedAt
			f.rows[i].Status = status
			f.rows[i].Error = errMsg
		}
	}

	return nil
}

func (f *fakeLog) TransitionHistory(context.Context, int) ([]record.TransitionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]record.TransitionRecord(nil), f.rows...), nil
}

func (f *fakeLog) ResetCursor(context.Context, string, string) error { return nil }
func (f *fakeLog) Path() string                                     { return ":memory:" }

func newTestManager(t *testing.T, externalPingErr, objectPingErr error) (*Manager, *syncengine.Engine) {
	t.Helper()

	reg := policy.NewRegistry(0)
	local := &fakeAdapter{}
	det := mode.New(mode.Config{}, nil, nil, nil)

	engine := syncengine.NewEngine(syncengine.EngineConfig{
		Local: local, Registry: reg,
		Cursors: fakeCursorStoreAdapter{},
	})

	log := &fakeLog{}

	m := NewManager(ManagerConfig{
		Log: log, Detector: det, Registry: reg, Engine: engine,
		OpenExternal: func(context.Context, string) (store.Adapter, error) {
			return &fakeAdapter{pingErr: externalPingErr}, nil
		},
		OpenObject: func(context.Context, objectstore.Config) (store.Adapter, error) {
			return &fakeAdapter{pingErr: objectPingErr}, nil
		},
	})

	return m, engine
}

type fakeCursorStoreAdapter struct{}

func (fakeCursorStoreAdapter) GetCursor(context.Context, string, string) (store.Cursor, []string, error) {
	return store.Cursor{}, nil, nil
}

func (fakeCursorStoreAdapter) SaveCursor(context.Context, string, string, store.Cursor, []string) error {
	return nil
}

func TestTransition_MissingFields_FailsValidate(t *testing.T) {
	m, engine := newTestManager(t, nil, nil)
	defer engine.Stop()

	_, err := m.Transition(context.Background(), record.ModeLocalExternal, Config{}, "test")

	require.Error(t, err)
	assert.ErrorIs(t, err, syncerrs.ErrInvalidConfig)
}

func TestTransition_UnreachablePeer_FailsProbe(t *testing.T) {
	m, engine := newTestManager(t, assert.AnError, nil)
	defer engine.Stop()

	_, err := m.Transition(context.Background(), record.ModeLocalExternal, Config{DatabaseURL: "postgres://x"}, "test")

	require.Error(t, err)
	assert.ErrorIs(t, err, syncerrs.ErrPeerUnreachable)
}

func TestTransition_Succeeds_SwitchesModeAndRecordsHistory(t *testing.T) {
	m, engine := newTestManager(t, nil, nil)
	defer engine.Stop()

	tr, err := m.Transition(context.Background(), record.ModeLocalExternal, Config{DatabaseURL: "postgres://x"}, "onboarding")

	require.NoError(t, err)
	assert.Equal(t, record.TransitionSucceeded, tr.Status)
	assert.Equal(t, record.ModeLocalExternal, tr.ToMode)

	hist, err := m.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, record.TransitionSucceeded, hist[0].Status)
}

func TestTransition_ConcurrentRequest_FailsBusy(t *testing.T) {
	m, engine := newTestManager(t, nil, nil)
	defer engine.Stop()

	m.mu.Lock() // simulate an in-flight transition holding the lock
	defer m.mu.Unlock()

	_, err := m.Transition(context.Background(), record.ModeLocalExternal, Config{DatabaseURL: "x"}, "test")

	require.Error(t, err)
	assert.ErrorIs(t, err, syncerrs.ErrTransitionBusy)
}

func TestManager_Validate_ReportsUnreachablePeers(t *testing.T) {
	m, engine := newTestManager(t, assert.AnError, nil)
	defer engine.Stop()

	res := m.Validate(context.Background(), record.ModeLocalExternal, Config{DatabaseURL: "postgres://x"})

	assert.False(t, res.OK)
	assert.Contains(t, res.UnreachablePeers, "external")
}

func TestVerifyWindow_DefaultIsTwoMinutes(t *testing.T) {
	assert.Equal(t, 2*time.Minute, VerifyWindow)
}
