package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowslide/synccore/internal/policy"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/syncerrs"
)

func newTestEngine(local, external, object *fakeAdapter) *Engine {
	reg := policy.NewRegistry(0)

	cfg := EngineConfig{Local: local, Cursors: newFakeCursorStore(), Registry: reg}

	if external != nil {
		cfg.External = external
	}

	if object != nil {
		cfg.Object = object
	}

	return NewEngine(cfg)
}

func TestEngine_CheckUsernameUnique_NoExternal_Unverifiable(t *testing.T) {
	e := newTestEngine(newFakeAdapter(), nil, nil)

	err := e.CheckUsernameUnique(context.Background(), "alice")

	require.Error(t, err)
	assert.ErrorIs(t, err, syncerrs.ErrUniquenessUnverifiable)
}

func TestEngine_CheckUsernameUnique_ExternalHasLiveUser_Conflict(t *testing.T) {
	external := newFakeAdapter()
	require.NoError(t, external.Put(context.Background(), record.Record{
		Type: record.Users, ID: "alice", UpdatedAt: 1,
	}))

	e := newTestEngine(newFakeAdapter(), external, nil)

	err := e.CheckUsernameUnique(context.Background(), "alice")

	assert.ErrorIs(t, err, syncerrs.ErrUsernameConflict)
}

func TestEngine_CheckUsernameUnique_ExternalNoUser_OK(t *testing.T) {
	external := newFakeAdapter()
	e := newTestEngine(newFakeAdapter(), external, nil)

	err := e.CheckUsernameUnique(context.Background(), "bob")

	assert.NoError(t, err)
}

func TestEngine_Reconfigure_LocalOnlyStartsNoWorkers(t *testing.T) {
	reg := policy.NewRegistry(0)
	reg.ApplyMode(record.ModeLocalOnly)

	e := NewEngine(EngineConfig{Local: newFakeAdapter(), Cursors: newFakeCursorStore(), Registry: reg})
	e.Reconfigure(context.Background())

	defer e.Stop()

	for _, s := range e.Status() {
		assert.Equal(t, StatusDisabled, s.Status, s.DataType)
	}
}

func TestEngine_Reconfigure_LocalExternalStartsCriticalWorkers(t *testing.T) {
	reg := policy.NewRegistry(0)
	reg.ApplyMode(record.ModeLocalExternal)

	e := NewEngine(EngineConfig{
		Local: newFakeAdapter(), External: newFakeAdapter(), Cursors: newFakeCursorStore(), Registry: reg,
	})
	e.Reconfigure(context.Background())

	defer e.Stop()

	found := false

	for _, s := range e.Status() {
		if s.DataType == record.Users {
			found = true
			assert.NotEqual(t, StatusDisabled, s.Status)
		}
	}

	assert.True(t, found)
}
