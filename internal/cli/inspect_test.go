package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchor/internal/schema"
)

func TestInspect_Statistics(t *testing.T) {
	malformed := `{"tick":6,"intents":[{"verb":"Move","args":{"entity":1}}],"input_events":[]}` + "\n"
	path := writeRecording(t, sessionRecording+malformed)

	out, err := execute(t, "inspect", path, "--format", "json")
	require.NoError(t, err)

	var result InspectResult
	decodeData(t, out, &result)
	assert.Equal(t, 5, result.Frames)
	assert.Equal(t, uint64(1), result.FirstTick)
	assert.Equal(t, uint64(6), result.LastTick)
	assert.Equal(t, 3, result.Intents)
	assert.Equal(t, 2, result.InputEvents)
	assert.Equal(t, map[string]int{"Spawn": 1, "Despawn": 1, "Move": 1}, result.Verbs)
	assert.Equal(t, map[string]int{"ApplyForce": 1, "Move": 1}, result.Actions)
	assert.Zero(t, result.TickRegressions)

	require.Len(t, result.Invalid, 1)
	assert.Equal(t, uint64(6), result.Invalid[0].Tick)
	assert.Equal(t, "Move", result.Invalid[0].Verb)
	assert.Equal(t, string(schema.ErrCodeInvalidArguments), result.Invalid[0].Code)
}

func TestInspect_CountsTickRegressions(t *testing.T) {
	path := writeRecording(t, `{"tick":4,"intents":[],"input_events":[]}
{"tick":2,"intents":[],"input_events":[]}
`)

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Frames:       2 (ticks 4..2)")
	assert.Contains(t, out, "Empty frames: 2")
	assert.Contains(t, out, "Tick regressions: 1")
}

func TestInspect_EmptyRecording(t *testing.T) {
	path := writeRecording(t, "")

	out, err := execute(t, "inspect", path, "--format", "json")
	require.NoError(t, err)

	var result InspectResult
	decodeData(t, out, &result)
	assert.Zero(t, result.Frames)
	assert.Empty(t, result.Invalid)
}
