// Package ir provides the shared data model for the anchor simulation core.
//
// This package contains the value types that cross package boundaries:
// entity snapshots, intents, input events, recorded frames and checksums.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Entity handles are opaque 64-bit values; consumers must not assume
//     any structure in them
//   - Vectors are float32 triples; checksums hash their bit patterns, never
//     their numeric value
//   - Intent payloads travel as compact raw JSON and are only decoded by the
//     verb handlers that own their schema
//   - All JSON tags use snake_case
package ir
