package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerbKnown(t *testing.T) {
	for _, v := range Verbs {
		assert.True(t, v.Known(), string(v))
	}
	assert.False(t, Verb("Teleport").Known())
	assert.False(t, Verb("spawn").Known(), "verbs are case sensitive")
}

func TestNewIntent_MarshalsArgs(t *testing.T) {
	in, err := NewIntent(VerbMove, MoveArgs{Entity: 3, Vel: Vec3{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, VerbMove, in.Verb)
	assert.JSONEq(t, `{"entity":3,"vel":[1,0,0]}`, string(in.Args))
}

func TestIntentMatches_IgnoresWhitespace(t *testing.T) {
	in := Intent{Verb: VerbDespawn, Args: json.RawMessage(`{"entity":9}`)}
	ev := InputEvent{Tick: 4, Action: "Despawn", Data: json.RawMessage(`{ "entity" : 9 }`)}
	assert.True(t, in.Matches(ev))

	ev.Data = json.RawMessage(`{"entity":8}`)
	assert.False(t, in.Matches(ev))

	ev.Data = json.RawMessage(`{"entity":9}`)
	ev.Action = "Move"
	assert.False(t, in.Matches(ev))
}

func TestInputEventIntent(t *testing.T) {
	ev := InputEvent{Tick: 2, Action: "Spawn", Data: json.RawMessage(`{"pos":[0,0,0]}`)}
	in := ev.Intent()
	assert.Equal(t, VerbSpawn, in.Verb)
	assert.Equal(t, `{"pos":[0,0,0]}`, string(in.Args))
	assert.True(t, in.Matches(ev))
}

func TestRecordedFrameEmpty(t *testing.T) {
	assert.True(t, RecordedFrame{Tick: 1}.Empty())
	assert.False(t, RecordedFrame{Tick: 1, Intents: []Intent{{Verb: VerbSpawn}}}.Empty())
}

func TestCompactPayload(t *testing.T) {
	assert.Equal(t, `{"a":[1,2]}`, string(CompactPayload(json.RawMessage("{ \"a\": [1, 2] }\n"))))
	assert.Equal(t, "null", string(CompactPayload(nil)))
	assert.Equal(t, "{bad", string(CompactPayload(json.RawMessage("{bad"))))
}

func TestVec3Helpers(t *testing.T) {
	v := Vec3{1, 2, 3}
	assert.Equal(t, Vec3{2, 4, 6}, v.Scale(2))
	assert.Equal(t, Vec3{2, 3, 4}, v.Add(Vec3{1, 1, 1}))
	assert.True(t, v.BitsEqual(Vec3{1, 2, 3}))
	assert.Equal(t, float32(2), v.Y())
}

func TestSnapshotJSON(t *testing.T) {
	s := Snapshot{ID: 5, Pos: Vec3{0.5, 0, -1}, Vel: Vec3{}, Size: Vec3{1, 1, 1}}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"pos":[0.5,0,-1],"vel":[0,0,0],"size":[1,1,1]}`, string(data))
}
