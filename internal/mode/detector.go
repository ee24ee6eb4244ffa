// Package mode implements the Mode Detector (spec §4.3): it infers the
// active deployment topology from configuration presence and store
// reachability, publishes it on an observable channel, and debounces
// transient unreachability so a single missed ping never flips the mode.
package mode

import (
	"context"
	stdsync "sync"
	"time"

	"log/slog"

	"github.com/flowslide/synccore/internal/record"
)

// DetectionWindow is the cadence at which the detector re-evaluates
// reachability (spec §4.3: "on a 30-second cadence").
const DetectionWindow = 30 * time.Second

// flapGuardCycles is the number of consecutive failed detection cycles a
// store must miss before its reachability flips, preventing flapping
// (spec §4.3, §8.5).
const flapGuardCycles = 2

// Pinger is satisfied by any store.Adapter; the detector only needs Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tells the detector which peers are configured at all — presence is
// independent of reachability (spec §4.3's decision table first axis).
type Config struct {
	ExternalConfigured bool
	ObjectConfigured   bool
	// Override, when non-empty, disables detection entirely and forces the
	// published mode (spec §6, DEPLOYMENT_MODE).
	Override record.DeploymentMode
}

// Snapshot is the observable state returned by GetMode (spec §4.9).
type Snapshot struct {
	Current          record.DeploymentMode
	Detected         record.DeploymentMode
	SwitchInProgress bool
	LastCheck        int64
}

// Detector computes and publishes the active DeploymentMode. Subscribers
// receive the latest value immediately on subscribe and every change
// thereafter (spec §4.3, §5: "observed by all subscribers before the next
// sync tick is dispatched").
type Detector struct {
	cfg Config

	mu               stdsync.RWMutex
	current          record.DeploymentMode
	externalMissed   int
	objectMissed     int
	switchInProgress bool
	lastCheck        int64

	subsMu stdsync.Mutex
	subs   []chan record.DeploymentMode

	external Pinger
	object   Pinger
	logger   *slog.Logger
}

// New creates a Detector. external/object may be nil if not configured.
func New(cfg Config, external, object Pinger, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Detector{cfg: cfg, external: external, object: object, logger: logger}

	d.current = d.computeInitial()

	return d
}

func (d *Detector) computeInitial() record.DeploymentMode {
	if d.cfg.Override != "" {
		return d.cfg.Override
	}

	if !d.cfg.ExternalConfigured && !d.cfg.ObjectConfigured {
		return record.ModeLocalOnly
	}

	// Assume reachable until the first detection cycle proves otherwise;
	// a cold-start optimistic default that the first Tick corrects.
	return decide(d.cfg.ExternalConfigured, d.cfg.ObjectConfigured)
}

func decide(extUp, objUp bool) record.DeploymentMode {
	switch {
	case extUp && objUp:
		return record.ModeLocalExternalR2
	case extUp:
		return record.ModeLocalExternal
	case objUp:
		return record.ModeLocalR2
	default:
		return record.ModeLocalOnly
	}
}

// Subscribe returns a channel that immediately receives the current mode
// and every subsequent change. The channel is buffered by 1 so a slow
// subscriber never blocks the detector; only the latest value is retained.
func (d *Detector) Subscribe() <-chan record.DeploymentMode {
	ch := make(chan record.DeploymentMode, 1)

	d.mu.RLock()
	current := d.current
	d.mu.RUnlock()

	ch <- current

	d.subsMu.Lock()
	d.subs = append(d.subs, ch)
	d.subsMu.Unlock()

	return ch
}

func (d *Detector) publish(m record.DeploymentMode) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	for _, ch := range d.subs {
		select {
		case <-ch: // drop stale pending value
		default:
		}

		ch <- m
	}
}

// Tick runs one detection cycle: if DEPLOYMENT_MODE is set, detection is
// disabled entirely (spec §6). Otherwise pings each configured peer,
// applies the flap guard, and republishes on change.
func (d *Detector) Tick(ctx context.Context, now int64) {
	d.mu.Lock()
	d.lastCheck = now
	d.mu.Unlock()

	if d.cfg.Override != "" {
		return
	}

	extUp := d.cfg.ExternalConfigured && d.ping(ctx, d.external, &d.externalMissed)
	objUp := d.cfg.ObjectConfigured && d.ping(ctx, d.object, &d.objectMissed)

	next := decide(extUp, objUp)

	d.mu.Lock()
	changed := next != d.current
	if changed {
		d.current = next
	}
	d.mu.Unlock()

	if changed {
		d.logger.Info("deployment mode changed", slog.String("mode", string(next)))
		d.publish(next)
	}
}

// ping reports reachability with hysteresis: a single failed ping does not
// flip reachability until flapGuardCycles consecutive failures accrue
// (spec §4.3, §8.5). configured==false (no peer at all) is reported as
// unreachable without consulting missed.
func (d *Detector) ping(ctx context.Context, p Pinger, missed *int) bool {
	if p == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := p.Ping(ctx); err != nil {
		*missed++
		if *missed < flapGuardCycles {
			// Not yet persistent — report as still reachable from the
			// mode's perspective (spec: "a single missed ping does not
			// change the mode").
			return true
		}

		return false
	}

	*missed = 0

	return true
}

// Snapshot returns the observable state for the Control API's get_mode
// operation (spec §4.9).
func (d *Detector) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Snapshot{
		Current:          d.current,
		Detected:         d.current,
		SwitchInProgress: d.switchInProgress,
		LastCheck:        d.lastCheck,
	}
}

// SetSwitchInProgress is called by the Mode Transition Manager to mark the
// window during which a transition is executing.
func (d *Detector) SetSwitchInProgress(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.switchInProgress = v
}

// ForcePublish bypasses detection heuristics for one cycle to publish m
// immediately (spec §4.7 step 5: "Notify C3 to publish the new mode
// bypassing detection heuristics for one cycle").
func (d *Detector) ForcePublish(m record.DeploymentMode) {
	d.mu.Lock()
	d.current = m
	d.externalMissed = 0
	d.objectMissed = 0
	d.mu.Unlock()

	d.publish(m)
}

// Run loops Tick on DetectionWindow until ctx is canceled.
func (d *Detector) Run(ctx context.Context, nowFn func() int64) {
	ticker := time.NewTicker(DetectionWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx, nowFn())
		}
	}
}
