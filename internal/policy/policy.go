// Package policy implements the Policy Registry (spec §4.4): the per-data-type
// sync policy table, its mode-specific overrides, and the critical set kept
// full_duplex in every mode with an external peer.
package policy

import (
	stdsync "sync"

	"github.com/flowslide/synccore/internal/record"
)

// Direction is one leg of a sync relationship.
type Direction string

const (
	DirLocalToExternal Direction = "local->external"
	DirExternalToLocal Direction = "external->local"
)

// Strategy names a sync worker's reconciliation algorithm (spec §4.5).
type Strategy string

const (
	StrategyFullDuplex  Strategy = "full_duplex"
	StrategyMasterSlave Strategy = "master_slave"
	StrategyBackupOnly  Strategy = "backup_only"
	StrategyOnDemand    Strategy = "on_demand"
	StrategyLocalOnly   Strategy = "local_only"
)

// Policy is the per-data-type tuple from spec §3/§4.4.
type Policy struct {
	Enabled        bool
	Directions     []Direction
	IntervalSecs   int
	BatchSize      int
	Strategy       Strategy
	Sensitive      bool
}

// HasDirection reports whether d is one of the policy's enabled directions.
func (p Policy) HasDirection(d Direction) bool {
	for _, have := range p.Directions {
		if have == d {
			return true
		}
	}

	return false
}

var both = []Direction{DirLocalToExternal, DirExternalToLocal}

// basePolicies is the ground-truth table from spec §4.4, keyed by data type.
var basePolicies = map[record.DataType]Policy{
	record.Users: {
		Enabled: true, Directions: both, IntervalSecs: 60, BatchSize: 50,
		Strategy: StrategyFullDuplex, Sensitive: true,
	},
	record.SystemConfigs: {
		Enabled: true, Directions: both, IntervalSecs: 30, BatchSize: 20,
		Strategy: StrategyFullDuplex, Sensitive: true,
	},
	record.AIProviderConfigs: {
		Enabled: true, Directions: both, IntervalSecs: 30, BatchSize: 20,
		Strategy: StrategyFullDuplex, Sensitive: true,
	},
	record.Projects: {
		Enabled: true, Directions: both, IntervalSecs: 300, BatchSize: 20,
		Strategy: StrategyFullDuplex,
	},
	record.TodoData: {
		Enabled: true, Directions: both, IntervalSecs: 300, BatchSize: 30,
		Strategy: StrategyFullDuplex,
	},
	record.SlideData: {
		Enabled: true, Directions: []Direction{DirLocalToExternal}, IntervalSecs: 1800, BatchSize: 10,
		Strategy: StrategyOnDemand,
	},
	record.PPTTemplates: {
		Enabled: true, Directions: both, IntervalSecs: 1800, BatchSize: 15,
		Strategy: StrategyMasterSlave,
	},
	record.GlobalTemplates: {
		Enabled: true, Directions: both, IntervalSecs: 3600, BatchSize: 10,
		Strategy: StrategyMasterSlave,
	},
	record.ProjectVersions: {
		Enabled: true, Directions: []Direction{DirLocalToExternal}, IntervalSecs: 3600, BatchSize: 5,
		Strategy: StrategyBackupOnly,
	},
	record.UserSessions: {
		Enabled: false, Strategy: StrategyLocalOnly,
	},
}

// CriticalSet is kept full_duplex in every mode with an external peer
// (spec §4.4).
var CriticalSet = map[record.DataType]bool{
	record.Users:             true,
	record.SystemConfigs:     true,
	record.AIProviderConfigs: true,
}

// IsCritical reports whether t is in the critical set.
func IsCritical(t record.DataType) bool {
	return CriticalSet[t]
}

// Registry holds the effective policy table, recomputed whenever the active
// deployment mode changes (spec §4.4). Safe for concurrent reads; updates
// happen only from the mode-transition path.
type Registry struct {
	mu       stdsync.RWMutex
	policies map[record.DataType]Policy
	// intervalOverride applies SYNC_INTERVAL (spec §6) to types that did
	// not declare their own interval (open question 1, resolved per
	// SPEC_FULL.md: per-deployment tunable override).
	intervalOverride int
}

// NewRegistry builds a Registry from the base table, applying intervalOverride
// (0 disables the override) before computing mode-specific effective policies.
func NewRegistry(intervalOverride int) *Registry {
	r := &Registry{intervalOverride: intervalOverride}
	r.ApplyMode(record.ModeLocalOnly)

	return r
}

// Get returns the effective policy for t.
func (r *Registry) Get(t record.DataType) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[t]

	return p, ok
}

// Snapshot returns a copy of the full effective policy table.
func (r *Registry) Snapshot() map[record.DataType]Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[record.DataType]Policy, len(r.policies))
	for k, v := range r.policies {
		out[k] = v
	}

	return out
}

// ApplyMode recomputes the effective policy table for the given mode
// (spec §4.4):
//   - LOCAL_ONLY: no peer exists at all; every type except local_only is
//     disabled (matches S1: "no worker for users exists").
//   - LOCAL_EXTERNAL / LOCAL_EXTERNAL_R2: the base table applies unchanged —
//     an external relational peer exists for every full_duplex/master_slave
//     policy to target.
//   - LOCAL_R2: no external relational peer, only the object store. Every
//     policy whose strategy was full_duplex or master_slave downgrades to
//     backup_only (local-to-object direction only) with
//     the object store as sink — the critical set is named "kept full_duplex
//     in every mode with an external peer" (spec §4.4), and LOCAL_R2 has
//     none, so the critical set downgrades too (decided in DESIGN.md: the
//     critical-set carve-out is a no-op without a relational peer to pair
//     full_duplex with).
func (r *Registry) ApplyMode(mode record.DeploymentMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	effective := make(map[record.DataType]Policy, len(basePolicies))

	for t, base := range basePolicies {
		p := base

		if p.IntervalSecs == 0 && r.intervalOverride > 0 {
			p.IntervalSecs = r.intervalOverride
		}

		switch {
		case p.Strategy == StrategyLocalOnly:
			// never leaves the local store regardless of mode.
		case !mode.HasExternal() && !mode.HasObject():
			p.Enabled = false
		case !mode.HasExternal() && mode.HasObject():
			if p.Strategy == StrategyFullDuplex || p.Strategy == StrategyMasterSlave {
				p.Strategy = StrategyBackupOnly
				p.Directions = []Direction{DirLocalToExternal}
			}
		}

		effective[t] = p
	}

	r.policies = effective
}
