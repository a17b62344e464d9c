package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Verb names an intent kind.
type Verb string

// Known verbs. The set is closed: anything else is rejected at the
// transport boundary and discarded by the pipeline.
const (
	VerbSpawn      Verb = "Spawn"
	VerbMove       Verb = "Move"
	VerbApplyForce Verb = "ApplyForce"
	VerbDespawn    Verb = "Despawn"
)

// Verbs lists the known verbs in a stable order.
var Verbs = []Verb{VerbSpawn, VerbMove, VerbApplyForce, VerbDespawn}

// Known reports whether v is one of the known verbs.
func (v Verb) Known() bool {
	switch v {
	case VerbSpawn, VerbMove, VerbApplyForce, VerbDespawn:
		return true
	}
	return false
}

// SpawnArgs is the payload of a Spawn intent.
type SpawnArgs struct {
	Pos  Vec3  `json:"pos" jsonschema:"required,description=Initial position"`
	Vel  *Vec3 `json:"vel,omitempty" jsonschema:"description=Initial velocity (defaults to zero)"`
	Size *Vec3 `json:"size,omitempty" jsonschema:"description=Extents (defaults to [1,1,1])"`
}

// MoveArgs is the payload of a Move intent. Move replaces the velocity.
type MoveArgs struct {
	Entity EntityID `json:"entity" jsonschema:"required,description=Target entity handle"`
	Vel    Vec3     `json:"vel" jsonschema:"required,description=New velocity"`
}

// ApplyForceArgs is the payload of an ApplyForce intent.
// The impulse is added to the velocity (unit mass).
type ApplyForceArgs struct {
	Entity  EntityID `json:"entity" jsonschema:"required,description=Target entity handle"`
	Impulse Vec3     `json:"impulse" jsonschema:"required,description=Velocity change"`
}

// DespawnArgs is the payload of a Despawn intent.
type DespawnArgs struct {
	Entity EntityID `json:"entity" jsonschema:"required,description=Target entity handle"`
}

// Intent is the transport envelope: a verb plus its untyped payload.
// Args holds compact JSON; decoding is deferred to the verb handler.
type Intent struct {
	Verb Verb            `json:"verb"`
	Args json.RawMessage `json:"args"`
}

// NewIntent builds an intent by marshaling args.
func NewIntent(verb Verb, args any) (Intent, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Intent{}, fmt.Errorf("marshal %s args: %w", verb, err)
	}
	return Intent{Verb: verb, Args: raw}, nil
}

// MustIntent is like NewIntent but panics on error.
// Use only in tests or when args are known to be valid.
func MustIntent(verb Verb, args any) Intent {
	in, err := NewIntent(verb, args)
	if err != nil {
		panic(err)
	}
	return in
}

// Matches reports whether the intent carries the same (verb, payload) pair
// as the input event. Payloads are compared in compact form.
func (in Intent) Matches(ev InputEvent) bool {
	return string(in.Verb) == ev.Action && bytes.Equal(CompactPayload(in.Args), CompactPayload(ev.Data))
}

// InputEvent is a tick-stamped raw input that the pipeline reduces to an
// intent. Action is treated as a verb name, Data as the verb's payload.
//
// Tick 0 marks an event that has not been stamped yet.
type InputEvent struct {
	Tick   uint64          `json:"tick"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Intent reduces the event to an intent.
func (ev InputEvent) Intent() Intent {
	return Intent{Verb: Verb(ev.Action), Args: ev.Data}
}

// RecordedFrame is one line of a recording: everything that entered the
// pipeline on a tick.
type RecordedFrame struct {
	Tick        uint64       `json:"tick"`
	Intents     []Intent     `json:"intents"`
	InputEvents []InputEvent `json:"input_events"`
}

// Empty reports whether nothing happened on the frame's tick.
func (f RecordedFrame) Empty() bool {
	return len(f.Intents) == 0 && len(f.InputEvents) == 0
}
