package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowslide/synccore/internal/record"
)

func TestResolveFullDuplex_AbsentDestination_Applies(t *testing.T) {
	src := record.Record{ID: "p1", UpdatedAt: 10, Origin: record.OriginLocal}

	res := resolveFullDuplex(src, record.Record{}, false, record.OriginExternal)

	assert.True(t, res.apply)
	assert.Equal(t, OutcomeApplied, res.outcome)
	assert.Equal(t, src, res.chosen)
}

func TestResolveFullDuplex_NewerSourceWins(t *testing.T) {
	src := record.Record{ID: "p1", UpdatedAt: 20, Origin: record.OriginLocal}
	dest := record.Record{ID: "p1", UpdatedAt: 10, Origin: record.OriginExternal}

	res := resolveFullDuplex(src, dest, true, record.OriginExternal)

	assert.True(t, res.apply)
	assert.Equal(t, OutcomeApplied, res.outcome)
}

func TestResolveFullDuplex_OlderSourceSkipped(t *testing.T) {
	src := record.Record{ID: "p1", UpdatedAt: 5, Origin: record.OriginLocal}
	dest := record.Record{ID: "p1", UpdatedAt: 10, Origin: record.OriginExternal}

	res := resolveFullDuplex(src, dest, true, record.OriginExternal)

	assert.False(t, res.apply)
	assert.Equal(t, OutcomeSkippedSuperseded, res.outcome)
}

// TestResolveFullDuplex_TieDestinationOriginWins exercises spec example S3:
// same updated_at, different origin — the destination's own origin (here the
// external store's) wins.
func TestResolveFullDuplex_TieDestinationOriginWins(t *testing.T) {
	src := record.Record{ID: "p1", UpdatedAt: 1000, Origin: record.OriginLocal, Payload: []byte("A")}
	dest := record.Record{ID: "p1", UpdatedAt: 1000, Origin: record.OriginExternal, Payload: []byte("B")}

	res := resolveFullDuplex(src, dest, true, record.OriginExternal)

	assert.False(t, res.apply)
	assert.Equal(t, OutcomeConflictResolved, res.outcome)
	assert.Equal(t, []byte("B"), res.chosen.Payload)
}

func TestResolveFullDuplex_TieNeitherOriginMatchesDestination_FallsBackToVersionThenHash(t *testing.T) {
	src := record.Record{ID: "p1", UpdatedAt: 1000, Origin: record.OriginObject, Version: 2, Payload: []byte("A")}
	dest := record.Record{ID: "p1", UpdatedAt: 1000, Origin: record.OriginObject, Version: 1, Payload: []byte("B")}

	res := resolveFullDuplex(src, dest, true, record.OriginExternal)

	assert.True(t, res.apply)
	assert.Equal(t, []byte("A"), res.chosen.Payload)
}

func TestResolveFullDuplex_TieNoOriginMatchNoVersionDiff_PayloadHashIsDeterministic(t *testing.T) {
	src := record.Record{ID: "p1", UpdatedAt: 1000, Origin: record.OriginObject, Version: 1, Payload: []byte("zzz")}
	dest := record.Record{ID: "p1", UpdatedAt: 1000, Origin: record.OriginObject, Version: 1, Payload: []byte("aaa")}

	res1 := resolveFullDuplex(src, dest, true, record.OriginExternal)
	res2 := resolveFullDuplex(src, dest, true, record.OriginExternal)

	assert.Equal(t, res1.chosen, res2.chosen, "must never pick randomly")
	assert.Equal(t, []byte("zzz"), res1.chosen.Payload, "lexicographically greater payload wins deterministically")
}

func TestResolveMasterSlave_AlwaysAppliesSource(t *testing.T) {
	src := record.Record{ID: "t1", UpdatedAt: 1}

	res := resolveMasterSlave(src)

	assert.True(t, res.apply)
	assert.Equal(t, OutcomeApplied, res.outcome)
	assert.Equal(t, src, res.chosen)
}
