// Package testutil holds deterministic helpers shared by package tests.
package testutil

import (
	"encoding/json"

	"github.com/roach88/anchor/internal/ir"
)

// RawIntent builds an intent around a literal JSON payload, which may be
// deliberately malformed.
func RawIntent(verb ir.Verb, args string) ir.Intent {
	return ir.Intent{Verb: verb, Args: json.RawMessage(args)}
}

// RawInput builds an unstamped input event around a literal JSON payload.
func RawInput(action, data string) ir.InputEvent {
	return ir.InputEvent{Action: action, Data: json.RawMessage(data)}
}

// Spawn returns a Spawn intent at pos with default velocity and size.
func Spawn(pos ir.Vec3) ir.Intent {
	return ir.MustIntent(ir.VerbSpawn, ir.SpawnArgs{Pos: pos})
}

// Move returns a Move intent.
func Move(id ir.EntityID, vel ir.Vec3) ir.Intent {
	return ir.MustIntent(ir.VerbMove, ir.MoveArgs{Entity: id, Vel: vel})
}

// Force returns an ApplyForce intent.
func Force(id ir.EntityID, impulse ir.Vec3) ir.Intent {
	return ir.MustIntent(ir.VerbApplyForce, ir.ApplyForceArgs{Entity: id, Impulse: impulse})
}

// Despawn returns a Despawn intent.
func Despawn(id ir.EntityID) ir.Intent {
	return ir.MustIntent(ir.VerbDespawn, ir.DespawnArgs{Entity: id})
}
