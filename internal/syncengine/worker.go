// Package syncengine implements the Sync Engine (spec §4.5): one worker per
// enabled (data_type, direction) pair, pulling deltas from a source store,
// resolving conflicts against a destination store, and advancing a
// watermark cursor only on success.
package syncengine

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/flowslide/synccore/internal/policy"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/syncerrs"
)

// WorkerStatus is the health of a single (data_type, direction) worker,
// surfaced by the Control API's get_status operation.
type WorkerStatus string

const (
	StatusHealthy  WorkerStatus = "healthy"
	StatusDegraded WorkerStatus = "degraded"
	StatusDisabled WorkerStatus = "disabled"
)

// maxConsecutiveFailures is N from spec §4.5: "if a batch fails more than N
// (default 3) consecutive times with a retryable error, the worker enters
// exponential backoff".
const maxConsecutiveFailures = 3

// backoffBase and backoffCap match spec §4.5 ("base 5s, cap 5min").
const (
	backoffBase = 5 * time.Second
	backoffCap  = 5 * time.Minute
)

// CursorStore is the subset of store/local's engine-internal bookkeeping the
// Sync Engine needs to persist watermarks. local.Store satisfies this.
type CursorStore interface {
	GetCursor(ctx context.Context, dataType, direction string) (store.Cursor, []string, error)
	SaveCursor(ctx context.Context, dataType, direction string, cur store.Cursor, inFlight []string) error
}

// StatusSnapshot is the per-worker state returned by get_status (spec §4.8).
type StatusSnapshot struct {
	DataType   record.DataType
	Direction  policy.Direction
	Enabled    bool
	Status     WorkerStatus
	LastRunAt  int64
	LastResult string
	CursorAge  int64
}

// Worker runs the reconciliation loop for one (data_type, direction) pair.
type Worker struct {
	dataType   record.DataType
	direction  policy.Direction
	strategy   policy.Strategy
	batchSize  int
	interval   time.Duration

	source     store.Adapter
	dest       store.Adapter
	destOrigin record.Origin // the Origin tag records written to dest should carry
	sem        *semaphore.Weighted // nil: unbounded (source/dest is the local store only)

	hotSet  *HotSet // non-nil only for on_demand workers
	cursors CursorStore
	metrics *metrics
	logger  *slog.Logger
	nowFn   func() time.Time

	mu                  stdsync.Mutex
	status              WorkerStatus
	consecutiveFailures int
	lastRunAt           int64
	lastResult          string
	backoffUntil        time.Time

	tickCh    chan struct{}
	triggerCh chan chan RunResult
}

// RunResult summarizes one worker tick, used both internally and by
// trigger_sync's synchronous response.
type RunResult struct {
	Seen, Applied, Conflicts, Errors int
	Err                              error
}

// WorkerConfig bundles a Worker's construction-time dependencies.
type WorkerConfig struct {
	DataType   record.DataType
	Direction  policy.Direction
	Strategy   policy.Strategy
	BatchSize  int
	Interval   time.Duration
	Source     store.Adapter
	Dest       store.Adapter
	DestOrigin record.Origin
	Sem        *semaphore.Weighted
	HotSet     *HotSet
	Cursors    CursorStore
	Metrics    *metrics
	Logger     *slog.Logger
}

// NewWorker builds a Worker ready to Run.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		dataType: cfg.DataType, direction: cfg.Direction, strategy: cfg.Strategy,
		batchSize: cfg.BatchSize, interval: cfg.Interval,
		source: cfg.Source, dest: cfg.Dest, destOrigin: cfg.DestOrigin, sem: cfg.Sem,
		hotSet: cfg.HotSet, cursors: cfg.Cursors, metrics: cfg.Metrics,
		logger: logger.With(slog.String("data_type", string(cfg.DataType)), slog.String("direction", string(cfg.Direction))),
		nowFn:  time.Now,
		status: StatusHealthy,
		tickCh: make(chan struct{}, 1), triggerCh: make(chan chan RunResult, 1),
	}
}

// Status returns the current health snapshot (spec §4.8).
func (w *Worker) Status() StatusSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	return StatusSnapshot{
		DataType: w.dataType, Direction: w.direction, Enabled: true,
		Status: w.status, LastRunAt: w.lastRunAt, LastResult: w.lastResult,
	}
}

// Trigger requests an out-of-band run and blocks until it completes
// (spec §4.8: trigger_sync(type?)).
func (w *Worker) Trigger(ctx context.Context) RunResult {
	resultCh := make(chan RunResult, 1)

	select {
	case w.triggerCh <- resultCh:
	case <-ctx.Done():
		return RunResult{Err: ctx.Err()}
	}

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		return RunResult{Err: ctx.Err()}
	}
}

// Run is the worker loop (spec §4.5 steps 1-6). It blocks until ctx is
// canceled, honoring the drain deadline by finishing any in-flight record
// before returning (spec §5 cancellation contract).
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		case reply := <-w.triggerCh:
			res := w.runOnce(ctx)
			select {
			case reply <- res:
			default:
			}
		}
	}
}

func (w *Worker) inBackoff() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.nowFn().Before(w.backoffUntil)
}

func (w *Worker) runOnce(ctx context.Context) RunResult {
	if w.inBackoff() {
		return RunResult{}
	}

	start := time.Now()
	res := w.tick(ctx)

	w.mu.Lock()
	w.lastRunAt = start.UnixMilli()

	if res.Err != nil {
		w.lastResult = res.Err.Error()

		if syncerrs.IsRetryable(res.Err) {
			w.consecutiveFailures++
			if w.consecutiveFailures > maxConsecutiveFailures {
				w.status = StatusDegraded
				w.backoffUntil = w.nowFn().Add(backoffDuration(w.consecutiveFailures))
			}
		}
	} else {
		w.consecutiveFailures = 0
		w.status = StatusHealthy
		w.lastResult = "ok"
	}
	w.mu.Unlock()

	if w.metrics != nil {
		dt, dir := string(w.dataType), string(w.direction)
		w.metrics.recordsSeen.WithLabelValues(dt, dir).Add(float64(res.Seen))
		w.metrics.recordsApplied.WithLabelValues(dt, dir).Add(float64(res.Applied))
		w.metrics.conflicts.WithLabelValues(dt, dir).Add(float64(res.Conflicts))
		w.metrics.errorsTotal.WithLabelValues(dt, dir).Add(float64(res.Errors))
		w.metrics.tickDuration.WithLabelValues(dt, dir).Observe(time.Since(start).Seconds())
	}

	return res
}

// backoffDuration computes base*2^(failures-N-1) capped at backoffCap, so
// the first backoff (failure N+1) waits exactly base; counts of N or fewer
// also return base (spec §4.5: "exponential backoff (base 5s, cap 5min)").
func backoffDuration(failures int) time.Duration {
	d := backoffBase

	for i := 0; i < failures-maxConsecutiveFailures-1; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}

	return d
}

func (w *Worker) tick(ctx context.Context) RunResult {
	dt, dirStr := string(w.dataType), string(w.direction)

	cur, inFlight, err := w.cursors.GetCursor(ctx, dt, dirStr)
	if err != nil {
		return RunResult{Err: err}
	}

	_ = inFlight // in-flight dedup ids are persisted for future resume; this tick re-derives them below.

	batch, next, err := w.source.ListSince(ctx, w.dataType, cur, w.batchSize)
	if err != nil {
		return RunResult{Err: err}
	}

	res := RunResult{Seen: len(batch)}

	advanced := cur
	dedup := make([]string, 0, len(batch))

	now := w.nowFn()

	for _, src := range batch {
		if w.strategy == policy.StrategyOnDemand && w.hotSet != nil && !w.hotSet.Contains(src.ID, now) {
			// Not in the hot set: skip this tick. Do not fold its
			// UpdatedAt into advanced — if a later record in this batch
			// errors, the cursor must not advance past an id that was only
			// ever skipped for being cold, or it would never sync once the
			// id becomes hot (spec §4.5's on_demand eventual-sync guarantee).
			continue
		}

		if err := w.applyOne(ctx, src); err != nil {
			var se *syncerrs.SyncError
			if errors.As(err, &se) && errors.Is(se.Err, syncerrs.ErrSuperseded) {
				res.Applied++ // destination already had the winning copy; not an error.
			} else if errors.As(err, &se) && errors.Is(se.Err, syncerrs.ErrConflict) {
				res.Conflicts++
			} else {
				res.Errors++
				w.logger.Error("apply failed", slog.String("record_id", src.ID), slog.Any("error", err))

				break // stop at the first failure; cursor does not advance past it.
			}
		} else {
			res.Applied++
		}

		if src.UpdatedAt > advanced.AfterUpdatedAt {
			advanced.AfterUpdatedAt = src.UpdatedAt
		}

		dedup = append(dedup, src.ID)
	}

	if res.Errors == 0 {
		advanced = next
	}

	if saveErr := w.cursors.SaveCursor(ctx, dt, dirStr, advanced, dedup); saveErr != nil {
		w.logger.Error("cursor save failed", slog.Any("error", saveErr))
	}

	if res.Errors > 0 {
		res.Err = syncerrs.Wrap(syncerrs.ErrRetryable, "syncengine.tick", dt, "")
	}

	return res
}

func (w *Worker) applyOne(ctx context.Context, src record.Record) error {
	if w.sem != nil {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return syncerrs.Wrap(syncerrs.ErrRetryable, "syncengine.applyOne", string(w.dataType), src.ID)
		}
		defer w.sem.Release(1)
	}

	switch w.strategy {
	case policy.StrategyMasterSlave:
		res := resolveMasterSlave(src)
		return w.commit(ctx, res, src)
	case policy.StrategyBackupOnly:
		return w.commitAppendOnly(ctx, src)
	default:
		dest, exists, err := w.dest.Get(ctx, src.Type, src.ID)
		if err != nil {
			return err
		}

		res := resolveFullDuplex(src, dest, exists, w.destOrigin)

		return w.commit(ctx, res, src)
	}
}

func (w *Worker) commit(ctx context.Context, res resolution, src record.Record) error {
	if !res.apply {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "syncengine.commit", string(src.Type), src.ID)
	}

	chosen := res.chosen
	chosen.Origin = w.destOrigin

	// conflict_resolved means the tie-break picked the incoming record over
	// an equal-UpdatedAt destination copy; that winner still needs to land,
	// so it takes the *Resolved write path (spec §4.5 step 3, §8.2).
	resolved := res.outcome == OutcomeConflictResolved

	var err error

	switch {
	case chosen.Deleted && resolved:
		err = w.dest.DeleteResolved(ctx, chosen.Type, chosen.ID, chosen.UpdatedAt)
	case chosen.Deleted:
		err = w.dest.Delete(ctx, chosen.Type, chosen.ID, chosen.UpdatedAt)
	case resolved:
		err = w.dest.PutResolved(ctx, chosen)
	default:
		err = w.dest.Put(ctx, chosen)
	}

	if err != nil && !errors.Is(err, syncerrs.ErrSuperseded) {
		return err
	}

	if res.outcome == OutcomeConflictResolved {
		return syncerrs.Wrap(syncerrs.ErrConflict, "syncengine.commit", string(src.Type), src.ID)
	}

	return nil
}

func (w *Worker) commitAppendOnly(ctx context.Context, src record.Record) error {
	if src.Deleted {
		return w.dest.Delete(ctx, src.Type, src.ID, src.UpdatedAt)
	}

	return w.dest.Put(ctx, src)
}
