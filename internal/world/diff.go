package world

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/ir"
)

// DiffSince returns the net change between the state named by base and the
// current state.
//
// Errors (all *DiffError):
//   - ErrCodeUnknownChecksum: base never named a state
//   - ErrCodeChecksumTooOld: base was evicted from the ring, or the chain
//     from base to the current state is broken
//
// Passing the current checksum returns an empty diff.
func (s *Store) DiffSince(base ir.Checksum) (Diff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if base == s.current {
		return Diff{
			Tick:     s.tick,
			Base:     base,
			Checksum: base,
			Added:    []ir.Snapshot{},
			Removed:  []ir.EntityID{},
			Changed:  []ir.Snapshot{},
		}, nil
	}

	start := -1
	for i := range s.ring {
		if s.ring[i].Base == base {
			start = i
			break
		}
	}
	if start < 0 {
		if s.tombs.has(base) {
			return Diff{}, newChecksumTooOldError(base, "evicted from history")
		}
		return Diff{}, newUnknownChecksumError(base)
	}

	acc := newAccumulator()
	running := base
	for i := start; i < len(s.ring); i++ {
		entry := s.ring[i]
		if entry.Base != running {
			s.logger.Warn("diff chain broken",
				zap.Uint64("tick", entry.Tick),
				zap.Stringer("expected_base", running),
				zap.Stringer("entry_base", entry.Base),
			)
			return Diff{}, newChecksumTooOldError(base, fmt.Sprintf("chain broken at tick %d", entry.Tick))
		}
		acc.fold(entry)
		running = entry.Checksum
	}
	if running != s.current {
		return Diff{}, newChecksumTooOldError(base, "chain does not reach the current state")
	}

	return acc.result(s.tick, base, running), nil
}

// accumulator folds consecutive diff entries into one net diff.
//
// Precedence rules, applied entry by entry in chain order:
//   - added: overrides any earlier changed/removed for the id
//   - changed: ignored if the id is accumulated as removed (removal wins);
//     merged into added if the id was added within the window
//   - removed: clears the id from added and changed; an id that was added
//     within the window cancels out entirely unless it also existed before
//     the window
type accumulator struct {
	added   map[ir.EntityID]ir.Snapshot
	changed map[ir.EntityID]ir.Snapshot
	removed map[ir.EntityID]struct{}
	// revived marks ids that were removed and then re-added within the
	// window; they existed at base, so removing them again must be reported.
	revived map[ir.EntityID]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		added:   make(map[ir.EntityID]ir.Snapshot),
		changed: make(map[ir.EntityID]ir.Snapshot),
		removed: make(map[ir.EntityID]struct{}),
		revived: make(map[ir.EntityID]struct{}),
	}
}

func (a *accumulator) fold(entry Diff) {
	for _, snap := range entry.Added {
		delete(a.changed, snap.ID)
		if _, ok := a.removed[snap.ID]; ok {
			delete(a.removed, snap.ID)
			a.revived[snap.ID] = struct{}{}
		}
		a.added[snap.ID] = snap
	}

	for _, snap := range entry.Changed {
		if _, ok := a.removed[snap.ID]; ok {
			continue
		}
		if _, ok := a.added[snap.ID]; ok {
			a.added[snap.ID] = snap
			continue
		}
		a.changed[snap.ID] = snap
	}

	for _, id := range entry.Removed {
		delete(a.changed, id)
		if _, ok := a.added[id]; ok {
			delete(a.added, id)
			if _, wasThere := a.revived[id]; !wasThere {
				continue
			}
			delete(a.revived, id)
		}
		a.removed[id] = struct{}{}
	}
}

func (a *accumulator) result(tick uint64, base, checksum ir.Checksum) Diff {
	d := Diff{
		Tick:     tick,
		Base:     base,
		Checksum: checksum,
		Added:    make([]ir.Snapshot, 0, len(a.added)),
		Removed:  make([]ir.EntityID, 0, len(a.removed)),
		Changed:  make([]ir.Snapshot, 0, len(a.changed)),
	}
	for _, snap := range a.added {
		d.Added = append(d.Added, snap)
	}
	for id := range a.removed {
		d.Removed = append(d.Removed, id)
	}
	for _, snap := range a.changed {
		d.Changed = append(d.Changed, snap)
	}
	ir.SortSnapshots(d.Added)
	ir.SortSnapshots(d.Changed)
	slices.Sort(d.Removed)
	return d
}
