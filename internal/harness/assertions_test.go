package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/replay"
	"github.com/roach88/anchor/internal/store"
)

func traceResult() *Result {
	r := NewResult()
	r.Trace = []TickTrace{
		{Tick: 1, Entities: []ir.Snapshot{{ID: 1, Pos: ir.Vec3{0, 1, 0}}}},
		{Tick: 2, Entities: []ir.Snapshot{{ID: 1, Pos: ir.Vec3{0, 2, 0}, Vel: ir.Vec3{0, 1, 0}}}, Rejected: 1},
		{Tick: 3, Entities: []ir.Snapshot{}, Rejected: 2},
	}
	r.Recording = []byte("{\"tick\":1}\n\n{\"tick\":2}\n")
	return r
}

func TestEvaluate_Passing(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertEntityCount, Tick: 2, Count: intPtr(1)},
		{Type: AssertEntityCount, Count: intPtr(0)},
		{Type: AssertEntityPosition, Tick: 2, Entity: 1, Pos: []float32{0, 2, 0}},
		{Type: AssertEntityVelocity, Tick: 2, Entity: 1, Vel: []float32{0, 1.05, 0}, Tolerance: 0.1},
		{Type: AssertEntityAbsent, Entity: 1},
		{Type: AssertRejectedCount, Count: intPtr(3)},
		{Type: AssertRejectedCount, Tick: 2, Count: intPtr(1)},
		{Type: AssertFrameCount, Count: intPtr(2)},
	}
	assert.Empty(t, EvaluateAssertions(traceResult(), assertions))
}

func TestEvaluate_Failing(t *testing.T) {
	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"count", Assertion{Type: AssertEntityCount, Tick: 1, Count: intPtr(3)}, "Expected: 3 entities"},
		{"tick not run", Assertion{Type: AssertEntityCount, Tick: 9, Count: intPtr(1)}, "tick 9 was not run"},
		{"position off", Assertion{Type: AssertEntityPosition, Tick: 1, Entity: 1, Pos: []float32{0, 1.5, 0}, Tolerance: 0.1}, "entity 1 pos"},
		{"entity missing", Assertion{Type: AssertEntityPosition, Entity: 1, Pos: []float32{0, 0, 0}}, "entity not live"},
		{"absent but live", Assertion{Type: AssertEntityAbsent, Tick: 1, Entity: 1}, "entity is live"},
		{"rejected", Assertion{Type: AssertRejectedCount, Count: intPtr(0)}, "3 rejected intents"},
		{"frames", Assertion{Type: AssertFrameCount, Count: intPtr(5)}, "2 recorded frames"},
		{"no replay", Assertion{Type: AssertReplayMatches}, "replay pass did not run"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(traceResult(), []Assertion{tt.a})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestReplayMatches_Failures(t *testing.T) {
	r := traceResult()
	r.Replay = &replay.Result{FramesLoaded: 2, FramesReplayed: 1}
	assert.Contains(t, assertReplayMatches(r).Error(), "replayed 1 of 2 frames")

	r.Replay = &replay.Result{Complete: true, CompletedTick: 2}
	r.Desync = &store.Divergence{Tick: 2, Reference: 1, Actual: 2}
	err := assertReplayMatches(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at tick 2")

	r.Desync = nil
	r.Replay.ReplayChecksum = ir.ReplayChecksum(r.Trace[1].Entities)
	assert.NoError(t, assertReplayMatches(r))

	r.ReplayTrace = []ir.Checksum{r.Trace[0].Checksum, 42}
	assert.Contains(t, assertReplayMatches(r).Error(), "checksum 000000000000002a")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEntityCount,
		Tick:     4,
		Expected: "1 entities",
		Actual:   "2 entities",
		Entities: []ir.Snapshot{{ID: 7}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: entity_count at tick 4")
	assert.Contains(t, msg, "[7] pos=")
}
