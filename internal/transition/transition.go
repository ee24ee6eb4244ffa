// Package transition implements the Mode Transition Manager (spec §4.7):
// the validate→probe→fence→snapshot→switch→reconcile→verify pipeline that
// moves the system between deployment modes online, with rollback on
// failure.
package transition

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"log/slog"

	"github.com/flowslide/synccore/internal/backup"
	"github.com/flowslide/synccore/internal/clockid"
	"github.com/flowslide/synccore/internal/mode"
	"github.com/flowslide/synccore/internal/policy"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/store/objectstore"
	"github.com/flowslide/synccore/internal/syncengine"
	"github.com/flowslide/synccore/internal/syncerrs"
)

// FenceDeadline is the default bounded drain window for step 3
// (spec §4.7 step 3, §5: "default 60s").
const FenceDeadline = 60 * time.Second

// VerifyWindow is the default post-switch verification window for step 7
// (spec §4.7 step 7: "default 2 minutes").
const VerifyWindow = 2 * time.Minute

// verifyPollInterval is how often step 7 re-checks worker health within
// VerifyWindow.
const verifyPollInterval = 2 * time.Second

// Config carries every field any target mode might require (spec §4.7
// step 1).
type Config struct {
	DatabaseURL string
	Object      objectstore.Config
}

// MissingFields reports which of target's required fields are absent from
// cfg (spec §4.7 step 1, §4.9 validate).
func (cfg Config) MissingFields(target record.DeploymentMode) []string {
	var missing []string

	if target.HasExternal() && cfg.DatabaseURL == "" {
		missing = append(missing, "database_url")
	}

	if target.HasObject() {
		if cfg.Object.AccessKeyID == "" {
			missing = append(missing, "r2_access_key_id")
		}

		if cfg.Object.SecretAccessKey == "" {
			missing = append(missing, "r2_secret_access_key")
		}

		if cfg.Object.Endpoint == "" {
			missing = append(missing, "r2_endpoint")
		}

		if cfg.Object.Bucket == "" {
			missing = append(missing, "r2_bucket")
		}
	}

	return missing
}

// TransitionLog is the subset of store/local.Store the manager needs to
// persist transition attempts and reset cursors on reconcile.
type TransitionLog interface {
	RecordTransitionStart(ctx context.Context, from, to record.DeploymentMode, startedAt int64, reason, actor string) (int64, error)
	FinishTransition(ctx context.Context, id int64, finishedAt int64, status record.TransitionStatus, errMsg string) error
	TransitionHistory(ctx context.Context, limit int) ([]record.TransitionRecord, error)
	ResetCursor(ctx context.Context, dataType, direction string) error
	Path() string
}

// OpenExternalFunc opens a fresh external store adapter, probed before use.
type OpenExternalFunc func(ctx context.Context, databaseURL string) (store.Adapter, error)

// OpenObjectFunc opens a fresh object store adapter, probed before use.
type OpenObjectFunc func(ctx context.Context, cfg objectstore.Config) (store.Adapter, error)

// ValidateResult is the response to the Control API's validate operation
// (spec §4.9).
type ValidateResult struct {
	OK               bool
	MissingFields    []string
	UnreachablePeers []string
}

// Manager serializes mode transitions and drives the pipeline end to end.
type Manager struct {
	log          TransitionLog
	detector     *mode.Detector
	registry     *policy.Registry
	engine       *syncengine.Engine
	backupEngine *backup.Engine
	openExternal OpenExternalFunc
	openObject   OpenObjectFunc
	clock        *clockid.Clock
	logger       *slog.Logger
	actor        string

	fenceDeadline time.Duration
	verifyWindow  time.Duration

	mu  stdsync.Mutex // serializes transitions; held for the whole pipeline
	cfg Config         // the config the currently-active mode was built from
}

// ManagerConfig bundles the Manager's construction-time dependencies.
type ManagerConfig struct {
	Log          TransitionLog
	Detector     *mode.Detector
	Registry     *policy.Registry
	Engine       *syncengine.Engine
	BackupEngine *backup.Engine
	OpenExternal OpenExternalFunc
	OpenObject   OpenObjectFunc
	Clock        *clockid.Clock
	Logger       *slog.Logger
	Actor        string
	InitialCfg   Config
}

// NewManager builds a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockid.New()
	}

	actor := cfg.Actor
	if actor == "" {
		actor = "system"
	}

	return &Manager{
		log: cfg.Log, detector: cfg.Detector, registry: cfg.Registry, engine: cfg.Engine,
		backupEngine: cfg.BackupEngine, openExternal: cfg.OpenExternal, openObject: cfg.OpenObject,
		clock: clock, logger: logger, actor: actor,
		fenceDeadline: FenceDeadline, verifyWindow: VerifyWindow, cfg: cfg.InitialCfg,
	}
}

// Validate implements the Control API's validate operation without
// executing a transition (spec §4.9).
func (m *Manager) Validate(ctx context.Context, target record.DeploymentMode, cfg Config) ValidateResult {
	missing := cfg.MissingFields(target)
	if len(missing) > 0 {
		return ValidateResult{MissingFields: missing}
	}

	var unreachable []string

	if target.HasExternal() {
		if _, err := m.probeExternal(ctx, cfg); err != nil {
			unreachable = append(unreachable, "external")
		}
	}

	if target.HasObject() {
		if _, err := m.probeObject(ctx, cfg); err != nil {
			unreachable = append(unreachable, "object")
		}
	}

	return ValidateResult{OK: len(unreachable) == 0, UnreachablePeers: unreachable}
}

func (m *Manager) probeExternal(ctx context.Context, cfg Config) (store.Adapter, error) {
	adapter, err := m.openExternal(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := adapter.Ping(ctx); err != nil {
		return nil, err
	}

	return adapter, nil
}

func (m *Manager) probeObject(ctx context.Context, cfg Config) (store.Adapter, error) {
	adapter, err := m.openObject(ctx, cfg.Object)
	if err != nil {
		return nil, err
	}

	if err := adapter.Ping(ctx); err != nil {
		return nil, err
	}

	return adapter, nil
}

// Transition executes the full pipeline (spec §4.7). Only one transition
// may be in flight; a concurrent call fails immediately with TransitionBusy.
func (m *Manager) Transition(ctx context.Context, target record.DeploymentMode, newConfig Config, reason string) (record.TransitionRecord, error) {
	if !m.mu.TryLock() {
		return record.TransitionRecord{}, syncerrs.Wrap(syncerrs.ErrTransitionBusy, "transition.Transition", "", "")
	}
	defer m.mu.Unlock()

	from := m.detector.Snapshot().Current
	started := m.clock.NowMillis()

	id, err := m.log.RecordTransitionStart(ctx, from, target, started, reason, m.actor)
	if err != nil {
		return record.TransitionRecord{}, err
	}

	tr := record.TransitionRecord{ID: id, FromMode: from, ToMode: target, StartedAt: started, Reason: reason, Actor: m.actor}

	finish := func(status record.TransitionStatus, failErr error) (record.TransitionRecord, error) {
		errMsg := ""
		if failErr != nil {
			errMsg = failErr.Error()
		}

		finishedAt := m.clock.NowMillis()
		if logErr := m.log.FinishTransition(ctx, id, finishedAt, status, errMsg); logErr != nil {
			m.logger.Error("transition log finish failed", slog.Any("error", logErr))
		}

		tr.FinishedAt = finishedAt
		tr.Status = status
		tr.Error = errMsg

		return tr, failErr
	}

	// Step 1: Validate.
	if missing := newConfig.MissingFields(target); len(missing) > 0 {
		return finish(record.TransitionFailed, fmt.Errorf("%w: missing %v", syncerrs.ErrInvalidConfig, missing))
	}

	// Step 2: Probe.
	var newExternal, newObject store.Adapter

	if target.HasExternal() {
		newExternal, err = m.probeExternal(ctx, newConfig)
		if err != nil {
			return finish(record.TransitionFailed, syncerrs.Wrap(syncerrs.ErrPeerUnreachable, "transition.probe", "", "external"))
		}
	}

	if target.HasObject() {
		newObject, err = m.probeObject(ctx, newConfig)
		if err != nil {
			return finish(record.TransitionFailed, syncerrs.Wrap(syncerrs.ErrPeerUnreachable, "transition.probe", "", "object"))
		}
	}

	// Step 3: Fence.
	m.detector.SetSwitchInProgress(true)
	defer m.detector.SetSwitchInProgress(false)

	if err := m.engine.StopWithDeadline(m.fenceDeadline); err != nil {
		m.logger.Warn("fence deadline exceeded; continuing with workers still draining")
	}

	// Step 4: Snapshot, if the object store is (or will be) available.
	var preSnapshotPrefix string

	if m.backupEngine != nil && (from.HasObject() || target.HasObject()) {
		data, readErr := backup.ReadLocalFile(m.log.Path())
		if readErr == nil {
			manifest, snapErr := m.backupEngine.Create(ctx, data)
			if snapErr != nil {
				m.logger.Error("pre-transition snapshot failed", slog.Any("error", snapErr))
			} else {
				preSnapshotPrefix = manifest.Prefix
			}
		}
	}

	oldCfg := m.cfg

	// Step 5: Switch.
	m.engine.SetPeers(newExternal, newObject)
	m.registry.ApplyMode(target)
	m.engine.Reconfigure(ctx)
	m.detector.ForcePublish(target)
	m.cfg = newConfig

	// Step 6: Reconcile — full scan for every critical data type.
	for t := range policy.CriticalSet {
		for _, dir := range []policy.Direction{policy.DirLocalToExternal, policy.DirExternalToLocal} {
			if resetErr := m.log.ResetCursor(ctx, string(t), string(dir)); resetErr != nil {
				m.logger.Error("cursor reset failed during reconcile", slog.Any("error", resetErr))
			}
		}
	}

	// Step 7: Verify.
	if !m.verifyHealthy(ctx) {
		rollbackErr := m.rollback(ctx, from, oldCfg, preSnapshotPrefix)
		if rollbackErr != nil {
			return finish(record.TransitionFailed, fmt.Errorf("verify failed, rollback also failed: %w", rollbackErr))
		}

		return finish(record.TransitionRolledBack, syncerrs.Wrap(syncerrs.ErrInternal, "transition.verify", "", ""))
	}

	return finish(record.TransitionSucceeded, nil)
}

// verifyHealthy polls worker status until no critical data type reports
// Degraded (or the window elapses), spec §4.7 step 7. A critical type with
// no worker (status Disabled) does not fail the check.
func (m *Manager) verifyHealthy(ctx context.Context) bool {
	deadline := time.Now().Add(m.verifyWindow)

	for time.Now().Before(deadline) {
		if m.criticalTypesHealthy() {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(verifyPollInterval):
		}
	}

	return m.criticalTypesHealthy()
}

func (m *Manager) criticalTypesHealthy() bool {
	for _, s := range m.engine.Status() {
		if !policy.IsCritical(s.DataType) {
			continue
		}

		if s.Status == syncengine.StatusDegraded {
			return false
		}
	}

	return true
}

// rollback reloads the previous configuration and, if a pre-transition
// snapshot was taken, restores the local store from it (spec §4.7 step 8).
func (m *Manager) rollback(ctx context.Context, from record.DeploymentMode, oldCfg Config, preSnapshotPrefix string) error {
	var oldExternal, oldObject store.Adapter

	var err error

	if from.HasExternal() {
		oldExternal, err = m.openExternal(ctx, oldCfg.DatabaseURL)
		if err != nil {
			return err
		}
	}

	if from.HasObject() {
		oldObject, err = m.openObject(ctx, oldCfg.Object)
		if err != nil {
			return err
		}
	}

	if preSnapshotPrefix != "" && m.backupEngine != nil {
		if restoreErr := m.backupEngine.Restore(ctx, preSnapshotPrefix, m.log.Path()); restoreErr != nil {
			m.logger.Error("rollback restore failed", slog.Any("error", restoreErr))
		}
	}

	m.engine.SetPeers(oldExternal, oldObject)
	m.registry.ApplyMode(from)
	m.engine.Reconfigure(ctx)
	m.detector.ForcePublish(from)
	m.cfg = oldCfg

	return nil
}

// History returns the most recent limit transitions (spec §4.9 get_history).
func (m *Manager) History(ctx context.Context, limit int) ([]record.TransitionRecord, error) {
	return m.log.TransitionHistory(ctx, limit)
}
