// Package control implements the transport-agnostic Control API (spec
// §4.9): every operation an operator surface (CLI, HTTP, RPC) exposes,
// wired directly to the Mode Detector, Sync Engine, Backup Engine, and
// Transition Manager. Nothing in this package knows
// about any particular transport.
package control

import (
	"context"

	"github.com/flowslide/synccore/internal/backup"
	"github.com/flowslide/synccore/internal/mode"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/syncengine"
	"github.com/flowslide/synccore/internal/transition"
)

// ModeInfo is the response to get_mode.
type ModeInfo struct {
	Current          record.DeploymentMode `json:"current"`
	Detected         record.DeploymentMode `json:"detected"`
	SwitchInProgress bool                  `json:"switch_in_progress"`
	LastCheck        int64                 `json:"last_check"`
}

// API implements every Control API operation over a fixed set of
// components (spec §4.9).
type API struct {
	detector   *mode.Detector
	engine     *syncengine.Engine
	backup     *backup.Engine
	transition *transition.Manager
}

// Config bundles API's construction-time dependencies.
type Config struct {
	Detector   *mode.Detector
	Engine     *syncengine.Engine
	Backup     *backup.Engine
	Transition *transition.Manager
}

// New builds an API.
func New(cfg Config) *API {
	return &API{detector: cfg.Detector, engine: cfg.Engine, backup: cfg.Backup, transition: cfg.Transition}
}

// GetMode returns the detector's current snapshot.
func (a *API) GetMode() ModeInfo {
	s := a.detector.Snapshot()

	return ModeInfo{Current: s.Current, Detected: s.Detected, SwitchInProgress: s.SwitchInProgress, LastCheck: s.LastCheck}
}

// GetStatus returns every worker's per-type health snapshot.
func (a *API) GetStatus() []syncengine.StatusSnapshot {
	return a.engine.Status()
}

// Validate checks whether target is reachable with cfg without executing a
// transition.
func (a *API) Validate(ctx context.Context, target record.DeploymentMode, cfg transition.Config) transition.ValidateResult {
	return a.transition.Validate(ctx, target, cfg)
}

// TriggerSync runs all workers, or only dataType's worker if non-empty, out
// of band and returns each result.
func (a *API) TriggerSync(ctx context.Context, dataType record.DataType) []syncengine.RunResult {
	return a.engine.Trigger(ctx, dataType)
}

// SwitchMode invokes the Transition Manager's full pipeline.
func (a *API) SwitchMode(ctx context.Context, target record.DeploymentMode, cfg transition.Config, reason string) (record.TransitionRecord, error) {
	return a.transition.Transition(ctx, target, cfg, reason)
}

// ListBackups returns every retained snapshot manifest, newest first.
func (a *API) ListBackups(ctx context.Context) ([]record.SnapshotManifest, error) {
	return a.backup.List(ctx)
}

// CreateBackup takes an out-of-band snapshot of dbData.
func (a *API) CreateBackup(ctx context.Context, dbData []byte) (record.SnapshotManifest, error) {
	return a.backup.Create(ctx, dbData)
}

// Restore restores the local store at localPath from the backup identified
// by prefix. Callers should treat a successful restore as requiring a
// process restart (spec §6: exit code 42).
func (a *API) Restore(ctx context.Context, prefix, localPath string) error {
	return a.backup.Restore(ctx, prefix, localPath)
}

// GetHistory returns the most recent limit transitions.
func (a *API) GetHistory(ctx context.Context, limit int) ([]record.TransitionRecord, error) {
	return a.transition.History(ctx, limit)
}
