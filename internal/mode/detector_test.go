package mode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowslide/synccore/internal/record"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestNew_NoPeersConfigured_IsLocalOnly(t *testing.T) {
	d := New(Config{}, nil, nil, nil)
	assert.Equal(t, record.ModeLocalOnly, d.Snapshot().Current)
}

func TestNew_Override_DisablesDetection(t *testing.T) {
	ext := &fakePinger{}
	d := New(Config{ExternalConfigured: true, Override: record.ModeLocalOnly}, ext, nil, nil)

	assert.Equal(t, record.ModeLocalOnly, d.Snapshot().Current)

	ext.err = nil
	d.Tick(context.Background(), 1)

	assert.Equal(t, record.ModeLocalOnly, d.Snapshot().Current)
}

func TestTick_BothReachable_IsLocalExternalR2(t *testing.T) {
	ext := &fakePinger{}
	obj := &fakePinger{}
	d := New(Config{ExternalConfigured: true, ObjectConfigured: true}, ext, obj, nil)

	d.Tick(context.Background(), 1)

	assert.Equal(t, record.ModeLocalExternalR2, d.Snapshot().Current)
}

func TestTick_ExternalOnlyReachable_IsLocalExternal(t *testing.T) {
	ext := &fakePinger{}
	obj := &fakePinger{err: errors.New("down")}
	d := New(Config{ExternalConfigured: true, ObjectConfigured: true}, ext, obj, nil)

	d.Tick(context.Background(), 1)
	d.Tick(context.Background(), 2)

	assert.Equal(t, record.ModeLocalExternal, d.Snapshot().Current)
}

func TestTick_SingleFailure_DoesNotFlipMode(t *testing.T) {
	ext := &fakePinger{}
	d := New(Config{ExternalConfigured: true}, ext, nil, nil)

	d.Tick(context.Background(), 1)
	require.Equal(t, record.ModeLocalExternal, d.Snapshot().Current)

	ext.err = errors.New("transient")
	d.Tick(context.Background(), 2)

	assert.Equal(t, record.ModeLocalExternal, d.Snapshot().Current, "a single missed ping must not change the mode")
}

func TestTick_PersistentFailure_FlipsModeAfterFlapGuard(t *testing.T) {
	ext := &fakePinger{}
	d := New(Config{ExternalConfigured: true}, ext, nil, nil)

	d.Tick(context.Background(), 1)
	require.Equal(t, record.ModeLocalExternal, d.Snapshot().Current)

	ext.err = errors.New("down")
	d.Tick(context.Background(), 2)
	d.Tick(context.Background(), 3)

	assert.Equal(t, record.ModeLocalOnly, d.Snapshot().Current)
}

func TestSubscribe_ReceivesCurrentThenChanges(t *testing.T) {
	ext := &fakePinger{}
	d := New(Config{ExternalConfigured: true}, ext, nil, nil)

	ch := d.Subscribe()
	assert.Equal(t, record.ModeLocalOnly, <-ch)

	d.Tick(context.Background(), 1)
	assert.Equal(t, record.ModeLocalExternal, <-ch)
}

func TestForcePublish_ResetsMissedCountersAndNotifies(t *testing.T) {
	d := New(Config{}, nil, nil, nil)
	ch := d.Subscribe()
	<-ch

	d.ForcePublish(record.ModeLocalExternal)

	assert.Equal(t, record.ModeLocalExternal, <-ch)
	assert.Equal(t, record.ModeLocalExternal, d.Snapshot().Current)
}
