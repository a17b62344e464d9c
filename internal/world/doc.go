// Package world holds the authoritative World State Store.
//
// The store owns the current entity mapping and a bounded ring of per-tick
// diff entries. Every entry links the checksum of the state before its tick
// (base) to the checksum after it, so the ring forms a hash chain:
//
//	entry[n].Base == entry[n-1].Checksum
//
// DiffSince walks that chain from any checksum still covered by the ring
// and folds the entries into a single net diff. A checksum that has fallen
// out of the ring is reported as too old; one that never named a state is
// reported as unknown.
//
// Thread-safety: one writer (the sim goroutine calling Update) and any
// number of readers (Snapshot, DiffSince, Current) share a sync.RWMutex.
// The writer holds the lock only while computing the set difference and
// appending the entry.
package world
