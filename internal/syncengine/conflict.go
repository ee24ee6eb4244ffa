package syncengine

import (
	"bytes"

	"github.com/flowslide/synccore/internal/record"
)

// Outcome is the per-record result of a worker applying one change
// (spec §4.5 step 4).
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeSkippedSuperseded  Outcome = "skipped_superseded"
	OutcomeConflictResolved   Outcome = "conflict_resolved"
	OutcomeError              Outcome = "error"
)

// resolution is the result of comparing a source record against the
// destination's current copy.
type resolution struct {
	chosen   record.Record
	outcome  Outcome
	apply    bool // false means the destination copy already wins; nothing to write
}

// resolveFullDuplex implements the conflict rule from spec §4.5 step 3:
// newer updated_at wins; on tie, the record whose origin equals the
// destination's own origin wins (locality bias); if still tied, compare
// version then lexicographic payload hash — never pick randomly.
//
// destOrigin identifies which origin tag "belongs" to the destination side
// (record.OriginLocal when writing into the local store, record.OriginExternal
// when writing into the external store).
func resolveFullDuplex(src record.Record, dest record.Record, destExists bool, destOrigin record.Origin) resolution {
	if !destExists {
		return resolution{chosen: src, outcome: OutcomeApplied, apply: true}
	}

	if src.UpdatedAt < dest.UpdatedAt {
		return resolution{chosen: dest, outcome: OutcomeSkippedSuperseded, apply: false}
	}

	if src.UpdatedAt > dest.UpdatedAt {
		return resolution{chosen: src, outcome: OutcomeApplied, apply: true}
	}

	// Tie on updated_at: locality bias, then version, then payload hash.
	winner := breakTie(src, dest, destOrigin)

	if recordsEqual(winner, src) {
		return resolution{chosen: src, outcome: OutcomeConflictResolved, apply: true}
	}

	return resolution{chosen: dest, outcome: OutcomeConflictResolved, apply: false}
}

func breakTie(src, dest record.Record, destOrigin record.Origin) record.Record {
	srcIsDest := src.Origin == destOrigin
	destIsDest := dest.Origin == destOrigin

	if srcIsDest && !destIsDest {
		return src
	}

	if destIsDest && !srcIsDest {
		return dest
	}

	if src.Version != dest.Version {
		if src.Version > dest.Version {
			return src
		}

		return dest
	}

	if bytes.Compare(src.Payload, dest.Payload) >= 0 {
		return src
	}

	return dest
}

func recordsEqual(a, b record.Record) bool {
	return a.Type == b.Type && a.ID == b.ID && a.UpdatedAt == b.UpdatedAt &&
		a.Origin == b.Origin && a.Version == b.Version && bytes.Equal(a.Payload, b.Payload)
}

// resolveMasterSlave implements master_slave: destination always accepts
// source, no conflict check (spec §4.5).
func resolveMasterSlave(src record.Record) resolution {
	return resolution{chosen: src, outcome: OutcomeApplied, apply: true}
}
