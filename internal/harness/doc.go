// Package harness runs YAML scenarios against the simulation and checks
// that a recording of the run replays to the same states.
//
// # Scenario Format
//
//	name: spawn_and_push
//	description: "A pushed entity rises, then despawns"
//	ticks: 6
//	steps:
//	  - tick: 1
//	    intent: { verb: Spawn, args: { pos: [0, 0, 0] } }
//	  - tick: 2
//	    command: "push 1 up"
//	  - tick: 3
//	    input: { action: Move, data: { entity: 1, vel: [0, 0, 0] } }
//	assertions:
//	  - type: entity_count
//	    tick: 4
//	    count: 1
//	  - type: entity_position
//	    entity: 1
//	    pos: [0, 0.05, 0]
//	    tolerance: 0.0001
//	  - type: replay_matches
//
// Each step feeds exactly one of: an intent through the service queue, a
// text command through the router, or a raw input event.
//
// # Execution
//
// Run records the scenario into an in-memory recording while a ledger
// stores per-tick checksums, then replays the recording for the same
// number of ticks with the ledger comparing every tick against the record
// run. Assertions without a tick are checked against the final tick.
//
// # Assertion Types
//
//   - entity_count: number of live entities
//   - entity_position / entity_velocity: component-wise within tolerance
//   - entity_absent: the entity is not live
//   - rejected_count: intents discarded during Apply over the whole run
//   - frame_count: recording lines written
//   - replay_matches: replay reproduced every tick's checksum and the
//     replay checksum
package harness
