package world

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/ir"
)

const (
	// DefaultHistory is the default number of diff entries kept in the ring.
	DefaultHistory = 256

	// DefaultTombstones is the default cap on remembered evicted checksums.
	// Zero keeps every checksum the store has produced, so any of them is
	// reported as too old rather than unknown.
	DefaultTombstones = 0
)

// Diff is one link of the checksum chain, or the folded result of several.
// Base is the checksum before the covered ticks, Checksum the one after.
// All three lists are sorted by id.
type Diff struct {
	Tick     uint64        `json:"tick"`
	Base     ir.Checksum   `json:"base"`
	Checksum ir.Checksum   `json:"checksum"`
	Added    []ir.Snapshot `json:"added"`
	Removed  []ir.EntityID `json:"removed"`
	Changed  []ir.Snapshot `json:"changed"`
}

// IsEmpty reports whether the diff carries no entity changes.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// State is a full snapshot of the store.
type State struct {
	Tick     uint64        `json:"tick"`
	Checksum ir.Checksum   `json:"checksum"`
	Entities []ir.Snapshot `json:"entities"`
}

// Store is the authoritative entity mapping plus the diff ring.
type Store struct {
	mu       sync.RWMutex
	tick     uint64
	current  ir.Checksum
	entities map[ir.EntityID]ir.Snapshot
	ring     []Diff
	history  int
	tombs    *tombstones
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithHistory sets the diff ring capacity. Values below 1 are clamped to 1.
func WithHistory(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.history = n
	}
}

// WithTombstones caps how many evicted checksums are remembered. Zero or
// less means no cap. With a cap, checksums forgotten past it read as unknown.
func WithTombstones(n int) Option {
	return func(s *Store) {
		s.tombs = newTombstones(n)
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store whose current checksum is ir.ZeroChecksum.
func New(opts ...Option) *Store {
	s := &Store{
		current:  ir.ZeroChecksum,
		entities: make(map[ir.EntityID]ir.Snapshot),
		history:  DefaultHistory,
		tombs:    newTombstones(DefaultTombstones),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ring = make([]Diff, 0, s.history)
	return s
}

// Update installs the live entity snapshots for tick and appends the
// resulting diff entry to the ring. Returns the appended entry.
//
// Must be called from a single goroutine (the sim loop).
func (s *Store) Update(tick uint64, entities []ir.Snapshot) Diff {
	sorted := slices.Clone(entities)
	ir.SortSnapshots(sorted)
	checksum := ir.ComputeChecksum(tick, sorted)

	next := make(map[ir.EntityID]ir.Snapshot, len(sorted))
	for _, e := range sorted {
		next[e.ID] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Diff{
		Tick:     tick,
		Base:     s.current,
		Checksum: checksum,
		Added:    []ir.Snapshot{},
		Removed:  []ir.EntityID{},
		Changed:  []ir.Snapshot{},
	}
	for _, e := range sorted {
		prev, ok := s.entities[e.ID]
		switch {
		case !ok:
			entry.Added = append(entry.Added, e)
		case !prev.SameState(e):
			entry.Changed = append(entry.Changed, e)
		}
	}
	for id := range s.entities {
		if _, ok := next[id]; !ok {
			entry.Removed = append(entry.Removed, id)
		}
	}
	slices.Sort(entry.Removed)

	s.ring = append(s.ring, entry)
	for len(s.ring) > s.history {
		evicted := s.ring[0]
		s.tombs.add(evicted.Base)
		s.ring[0] = Diff{}
		s.ring = s.ring[1:]
	}

	s.entities = next
	s.tick = tick
	s.current = checksum
	return entry
}

// Current returns the current tick and checksum.
func (s *Store) Current() (uint64, ir.Checksum) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick, s.current
}

// Snapshot returns the full current state, entities sorted by id.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make([]ir.Snapshot, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	ir.SortSnapshots(entities)
	return State{Tick: s.tick, Checksum: s.current, Entities: entities}
}

// Len returns the number of entries in the ring.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ring)
}

// oldestBase returns the oldest checksum that can still be diffed from.
// Returns false if the ring is empty.
func (s *Store) oldestBase() (ir.Checksum, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ring) == 0 {
		return 0, false
	}
	return s.ring[0].Base, true
}

// tombstones is the set of checksums evicted from the ring. A positive
// limit turns it into a FIFO holding the newest limit entries.
type tombstones struct {
	order []ir.Checksum
	set   map[ir.Checksum]struct{}
	limit int
}

func newTombstones(limit int) *tombstones {
	if limit < 0 {
		limit = 0
	}
	return &tombstones{
		set:   make(map[ir.Checksum]struct{}),
		limit: limit,
	}
}

func (t *tombstones) add(c ir.Checksum) {
	if _, ok := t.set[c]; ok {
		return
	}
	t.set[c] = struct{}{}
	if t.limit == 0 {
		return
	}
	t.order = append(t.order, c)
	for len(t.order) > t.limit {
		delete(t.set, t.order[0])
		t.order = t.order[1:]
	}
}

func (t *tombstones) len() int {
	return len(t.set)
}

func (t *tombstones) has(c ir.Checksum) bool {
	_, ok := t.set[c]
	return ok
}
