package schema

import (
	"github.com/invopop/jsonschema"

	"github.com/roach88/anchor/internal/ir"
)

// argTypes maps each verb to the Go payload type its schema is reflected from.
var argTypes = map[ir.Verb]any{
	ir.VerbSpawn:      new(ir.SpawnArgs),
	ir.VerbMove:       new(ir.MoveArgs),
	ir.VerbApplyForce: new(ir.ApplyForceArgs),
	ir.VerbDespawn:    new(ir.DespawnArgs),
}

// Schemas reflects a JSON Schema for every verb payload.
// Additional properties are disallowed, mirroring the closed CUE definitions.
func Schemas() map[ir.Verb]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	out := make(map[ir.Verb]*jsonschema.Schema, len(argTypes))
	for _, verb := range ir.Verbs {
		s := reflector.Reflect(argTypes[verb])
		s.Title = string(verb)
		s.Description = "Payload of the " + string(verb) + " intent"
		out[verb] = s
	}
	return out
}
