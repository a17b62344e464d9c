package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func intPtr(n int) *int { return &n }

func TestRun_AllScenariosPassWithGolden(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, file := range files {
		s, err := LoadScenario(file)
		require.NoError(t, err)
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Nil(t, result.Desync)
			assert.Len(t, result.Trace, int(s.Ticks))
		})
	}
}

func TestRun_ReplayReproducesEveryTick(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/spawn_push_despawn.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.NotNil(t, result.Replay)
	require.Len(t, result.ReplayTrace, len(result.Trace))
	for i, tt := range result.Trace {
		assert.Equal(t, tt.Checksum, result.ReplayTrace[i], "tick %d", tt.Tick)
	}
	assert.Equal(t, 4, result.Record.FramesWritten)
	assert.Equal(t, 4, result.Replay.FramesReplayed)
	assert.Equal(t, uint64(5), result.Replay.CompletedTick)
}

func TestRun_StampCorrectionIsLogged(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/spawn_push_despawn.yaml")
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	_, err = Run(s, WithLogger(zap.New(core)))
	require.NoError(t, err)

	// Once in the record pass; the recording carries the corrected stamp.
	assert.Equal(t, 1, logs.FilterMessage("input event tick mismatch, correcting").Len())
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_expectations",
		Description: "expectations that do not hold",
		Ticks:       2,
		Steps: []Step{
			{Tick: 1, Command: "spawn at 0 4 0"},
		},
		Assertions: []Assertion{
			{Type: AssertEntityCount, Count: intPtr(2)},
			{Type: AssertEntityPosition, Entity: 1, Pos: []float32{0, 9, 0}},
			{Type: AssertEntityAbsent, Entity: 1},
			{Type: AssertReplayMatches},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Expected: 2 entities")
	assert.Contains(t, result.Errors[1], "entity_position")
	assert.Contains(t, result.Errors[2], "entity is live")
}

func TestRun_SkipReplay(t *testing.T) {
	s := &Scenario{
		Name:        "record_only",
		Description: "record pass only",
		Ticks:       1,
		SkipReplay:  true,
		Steps:       []Step{{Tick: 1, Command: "spawn"}},
		Assertions:  []Assertion{{Type: AssertFrameCount, Count: intPtr(1)}},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Replay)
}

func TestRun_BadCommandFailsRun(t *testing.T) {
	s := &Scenario{
		Name:        "bad_command",
		Description: "unroutable command",
		Ticks:       1,
		Steps:       []Step{{Tick: 1, Command: "dance"}},
		Assertions:  []Assertion{{Type: AssertReplayMatches}},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
}

func TestRun_EmptyRecordingReplaysImmediately(t *testing.T) {
	s := &Scenario{
		Name:        "idle",
		Description: "nothing happens",
		Ticks:       3,
		Assertions: []Assertion{
			{Type: AssertFrameCount, Count: intPtr(0)},
			{Type: AssertReplayMatches},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, uint64(1), result.Replay.CompletedTick)
}
