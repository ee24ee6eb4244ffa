package syncengine

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowslide/synccore/internal/policy"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/syncerrs"
)

// externalSemaphoreWeight is the default shared concurrency cap on
// external-store operations, protecting its connection pool (spec §4.5).
const externalSemaphoreWeight = 8

type workerKey struct {
	dataType  record.DataType
	direction policy.Direction
}

type workerHandle struct {
	worker *Worker
	cancel context.CancelFunc
}

// Engine owns the full set of (data_type, direction) workers, rebuilding it
// from the policy registry's effective table on each Reconfigure call. It
// does not subscribe to the Mode Detector: the worker set changes only when
// Reconfigure is called.
type Engine struct {
	local    store.Adapter
	external store.Adapter // nil if not configured/reachable
	object   store.Adapter // nil if not configured/reachable
	cursors  CursorStore
	registry *policy.Registry
	hotSet   *HotSet
	metrics  *metrics
	sem      *semaphore.Weighted
	logger   *slog.Logger

	mu      stdsync.Mutex
	baseCtx context.Context
	workers map[workerKey]workerHandle
	wg      stdsync.WaitGroup
}

// EngineConfig bundles the Engine's construction-time dependencies.
type EngineConfig struct {
	Local          store.Adapter
	External       store.Adapter
	Object         store.Adapter
	Cursors        CursorStore
	Registry       *policy.Registry
	HotSetTTLHours int
	MetricsReg     prometheus.Registerer
	Logger         *slog.Logger
}

// NewEngine builds an Engine with no workers running; call Reconfigure (or
// ApplyMode via the caller) to start them.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		local: cfg.Local, external: cfg.External, object: cfg.Object,
		cursors: cfg.Cursors, registry: cfg.Registry,
		hotSet:  NewHotSet(time.Duration(cfg.HotSetTTLHours) * time.Hour),
		metrics: newMetrics(cfg.MetricsReg),
		sem:     semaphore.NewWeighted(externalSemaphoreWeight),
		logger:  logger,
		workers: make(map[workerKey]workerHandle),
	}
}

// HotSet exposes the on_demand hot-set tracker so collaborators can Touch it.
func (e *Engine) HotSet() *HotSet { return e.hotSet }

// peerFor returns the destination adapter and its Origin tag for a given
// strategy and direction. backup_only always targets the object store;
// every other strategy targets the external relational store.
func (e *Engine) peerFor(strategy policy.Strategy, dir policy.Direction) (store.Adapter, record.Origin, bool) {
	if strategy == policy.StrategyBackupOnly {
		if e.object == nil {
			return nil, "", false
		}

		return e.object, record.OriginObject, true
	}

	if e.external == nil {
		return nil, "", false
	}

	if dir == policy.DirLocalToExternal {
		return e.external, record.OriginExternal, true
	}

	return e.local, record.OriginLocal, true
}

func (e *Engine) sourceFor(dir policy.Direction, strategy policy.Strategy) store.Adapter {
	if strategy == policy.StrategyBackupOnly {
		return e.local
	}

	if dir == policy.DirLocalToExternal {
		return e.local
	}

	return e.external
}

// Reconfigure rebuilds the worker set from the registry's current effective
// policy table, starting new workers, leaving unchanged ones running, and
// stopping workers whose (type, direction) is no longer enabled. Call this
// after every policy.Registry.ApplyMode (spec §4.3).
func (e *Engine) Reconfigure(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.baseCtx == nil {
		e.baseCtx = ctx
	}

	wantedKeys := make(map[workerKey]bool)

	for _, dt := range record.AllDataTypes {
		p, ok := e.registry.Get(dt)
		if !ok || !p.Enabled || p.Strategy == policy.StrategyLocalOnly {
			continue
		}

		for _, dir := range p.Directions {
			key := workerKey{dataType: dt, direction: dir}
			wantedKeys[key] = true

			if _, running := e.workers[key]; running {
				continue
			}

			dest, destOrigin, ok := e.peerFor(p.Strategy, dir)
			if !ok {
				continue
			}

			src := e.sourceFor(dir, p.Strategy)
			if src == nil {
				continue
			}

			var sem *semaphore.Weighted
			if dest == e.external || src == e.external {
				sem = e.sem
			}

			var hs *HotSet
			if p.Strategy == policy.StrategyOnDemand {
				hs = e.hotSet
			}

			w := NewWorker(WorkerConfig{
				DataType: dt, Direction: dir, Strategy: p.Strategy,
				BatchSize: p.BatchSize, Interval: secondsToDuration(p.IntervalSecs),
				Source: src, Dest: dest, DestOrigin: destOrigin, Sem: sem,
				HotSet: hs, Cursors: e.cursors, Metrics: e.metrics, Logger: e.logger,
			})

			workerCtx, workerCancel := context.WithCancel(e.baseCtx)
			e.workers[key] = workerHandle{worker: w, cancel: workerCancel}

			e.wg.Add(1)

			go func() {
				defer e.wg.Done()
				w.Run(workerCtx)
			}()
		}
	}

	for key, h := range e.workers {
		if !wantedKeys[key] {
			h.cancel() // stops this worker's Run loop at its next select; drains in-flight record first.
			delete(e.workers, key)
		}
	}
}

// Stop cancels every worker and waits, with no deadline, for them to drain;
// StopWithDeadline is the bounded variant. The worker set is emptied, so a
// later Reconfigure starts fresh workers.
func (e *Engine) Stop() {
	e.mu.Lock()
	for _, h := range e.workers {
		h.cancel()
	}
	e.workers = make(map[workerKey]workerHandle)
	e.mu.Unlock()

	e.wg.Wait()
}

// StopWithDeadline cancels every worker and waits up to timeout for them to
// drain. A worker that cannot drain in time is left running and reported via
// the returned error — its cursor was never advanced past an in-flight
// record, so no data is lost (spec §5: "a worker that cannot drain is
// force-killed and its cursor is not advanced").
func (e *Engine) StopWithDeadline(timeout time.Duration) error {
	e.mu.Lock()
	for _, h := range e.workers {
		h.cancel()
	}
	e.workers = make(map[workerKey]workerHandle)
	e.mu.Unlock()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return syncerrs.Wrap(syncerrs.ErrRetryable, "syncengine.StopWithDeadline", "", "")
	}
}

// SetPeers atomically swaps the external/object adapters every worker
// started afterward will use, for the Mode Transition Manager's switch
// step (spec §4.7 step 5). Workers already running keep their original
// adapters; only workers that Reconfigure starts afterwards (for example
// after Stop or StopWithDeadline) use the new ones.
func (e *Engine) SetPeers(external, object store.Adapter) {
	e.mu.Lock()
	e.external = external
	e.object = object
	e.mu.Unlock()
}

// Status returns every worker's health snapshot plus disabled entries for
// data types with no active worker (spec §4.8 get_status).
func (e *Engine) Status() []StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[record.DataType]bool)

	var out []StatusSnapshot

	for _, h := range e.workers {
		s := h.worker.Status()
		out = append(out, s)
		seen[s.DataType] = true
	}

	for _, dt := range record.AllDataTypes {
		if seen[dt] {
			continue
		}

		out = append(out, StatusSnapshot{DataType: dt, Enabled: false, Status: StatusDisabled, LastResult: "disabled"})
	}

	return out
}

// Trigger runs every worker for dataType (or every worker, if dataType is
// empty) out of band and returns each result (spec §4.8 trigger_sync).
func (e *Engine) Trigger(ctx context.Context, dataType record.DataType) []RunResult {
	e.mu.Lock()
	var targets []*Worker

	for key, h := range e.workers {
		if dataType == "" || key.dataType == dataType {
			targets = append(targets, h.worker)
		}
	}
	e.mu.Unlock()

	results := make([]RunResult, len(targets))
	for i, w := range targets {
		results[i] = w.Trigger(ctx)
	}

	return results
}

// CheckUsernameUnique performs the synchronous uniqueness check required
// before a collaborator's users record is accepted locally (spec §4.5).
// It returns syncerrs.ErrUsernameConflict if the external store holds a
// live record with this id, or syncerrs.ErrUniquenessUnverifiable if the
// external store is unreachable or not configured.
func (e *Engine) CheckUsernameUnique(ctx context.Context, id string) error {
	if e.external == nil {
		return syncerrs.Wrap(syncerrs.ErrUniquenessUnverifiable, "syncengine.CheckUsernameUnique", string(record.Users), id)
	}

	type liveChecker interface {
		HasLiveUser(ctx context.Context, id string) (bool, error)
	}

	checker, ok := e.external.(liveChecker)
	if !ok {
		rec, exists, err := e.external.Get(ctx, record.Users, id)
		if err != nil {
			if errors.Is(err, syncerrs.ErrPeerUnreachable) || syncerrs.IsRetryable(err) {
				return syncerrs.Wrap(syncerrs.ErrUniquenessUnverifiable, "syncengine.CheckUsernameUnique", string(record.Users), id)
			}

			return err
		}

		if exists && !rec.Deleted {
			return syncerrs.Wrap(syncerrs.ErrUsernameConflict, "syncengine.CheckUsernameUnique", string(record.Users), id)
		}

		return nil
	}

	live, err := checker.HasLiveUser(ctx, id)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrUniquenessUnverifiable, "syncengine.CheckUsernameUnique", string(record.Users), id)
	}

	if live {
		return syncerrs.Wrap(syncerrs.ErrUsernameConflict, "syncengine.CheckUsernameUnique", string(record.Users), id)
	}

	return nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
