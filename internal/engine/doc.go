// Package engine implements the deterministic tick loop.
//
// ARCHITECTURE:
//
// Single-Writer Tick Loop:
// One goroutine owns the Pipeline and advances the simulation one tick at a
// time. Every phase of a tick runs strictly in sequence:
//
//  1. Clock advance (tick n, fixed delta; delta is 0 on the first tick)
//  2. Hooks.Inject: replay frames due on this tick enter the pipeline
//  3. Pipeline.TakeInputs: staged input events are stamped with the tick
//  4. Hooks.CaptureInputs: the recorder keeps a copy of those events
//  5. Pipeline.Convert: input events become input-lane intents
//  6. IntentQueue drain: intents from other goroutines join the direct lane
//  7. Pipeline.ApplyAll: input lane first, then direct lane, FIFO within each
//  8. Pipeline.Integrate: pos += vel * dt, then the floor clamp
//  9. world.Store.Update: snapshot extraction, checksum, diff entry
//  10. Hooks.Commit then observers (recording, ledger, render)
//
// The World Store is the only state shared with other goroutines. Intents
// from other goroutines cross into the loop through IntentQueue.
//
// CRITICAL PATTERNS:
//
// Deterministic Handles:
// Entity handles come from a counter starting at 1, never from randomness or
// wall-clock time.
//
// Deterministic Iteration:
// Integration and snapshot extraction walk entities in handle order.
// Map iteration order never reaches the world state.
package engine
