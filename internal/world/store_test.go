package world

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchor/internal/ir"
)

func snap(id ir.EntityID, x, y, z float32) ir.Snapshot {
	return ir.Snapshot{ID: id, Pos: ir.Vec3{x, y, z}, Size: ir.Vec3{1, 1, 1}}
}

// naiveDiff re-diffs two full states the slow way.
func naiveDiff(before, after []ir.Snapshot) (added []ir.Snapshot, removed []ir.EntityID, changed []ir.Snapshot) {
	prev := make(map[ir.EntityID]ir.Snapshot)
	for _, s := range before {
		prev[s.ID] = s
	}
	next := make(map[ir.EntityID]ir.Snapshot)
	for _, s := range after {
		next[s.ID] = s
	}
	added, removed, changed = []ir.Snapshot{}, []ir.EntityID{}, []ir.Snapshot{}
	for _, s := range after {
		p, ok := prev[s.ID]
		if !ok {
			added = append(added, s)
		} else if !p.SameState(s) {
			changed = append(changed, s)
		}
	}
	for _, s := range before {
		if _, ok := next[s.ID]; !ok {
			removed = append(removed, s.ID)
		}
	}
	return added, removed, changed
}

func TestNewStore_ZeroState(t *testing.T) {
	s := New()
	tick, sum := s.Current()
	assert.Equal(t, uint64(0), tick)
	assert.Equal(t, ir.ZeroChecksum, sum)

	state := s.Snapshot()
	assert.Empty(t, state.Entities)
	assert.NotNil(t, state.Entities)

	d, err := s.DiffSince(ir.ZeroChecksum)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestUpdate_ComputesSetDifference(t *testing.T) {
	s := New()
	s.Update(1, []ir.Snapshot{snap(3, 0, 0, 0), snap(1, 1, 1, 1), snap(2, 2, 2, 2)})

	entry := s.Update(2, []ir.Snapshot{snap(4, 0, 0, 0), snap(2, 2, 2, 2), snap(1, 5, 1, 1)})
	assert.Equal(t, uint64(2), entry.Tick)
	assert.Equal(t, []ir.Snapshot{snap(4, 0, 0, 0)}, entry.Added)
	assert.Equal(t, []ir.EntityID{3}, entry.Removed)
	assert.Equal(t, []ir.Snapshot{snap(1, 5, 1, 1)}, entry.Changed)

	state := s.Snapshot()
	require.Len(t, state.Entities, 3)
	assert.Equal(t, []ir.EntityID{1, 2, 4}, []ir.EntityID{state.Entities[0].ID, state.Entities[1].ID, state.Entities[2].ID})
	assert.Equal(t, entry.Checksum, state.Checksum)
	assert.Equal(t, ir.ComputeChecksum(2, state.Entities), state.Checksum)
}

func TestUpdate_ChainsChecksums(t *testing.T) {
	s := New()
	var prev ir.Checksum = ir.ZeroChecksum
	for tick := uint64(1); tick <= 10; tick++ {
		entry := s.Update(tick, []ir.Snapshot{snap(1, float32(tick), 0, 0)})
		assert.Equal(t, prev, entry.Base, "tick %d", tick)
		prev = entry.Checksum
	}
	_, current := s.Current()
	assert.Equal(t, prev, current)
}

func TestUpdate_SignedZeroCountsAsChange(t *testing.T) {
	s := New()
	s.Update(1, []ir.Snapshot{snap(1, 0, 0, 0)})
	negZero := ir.Snapshot{ID: 1, Pos: ir.Vec3{float32(math.Copysign(0, -1)), 0, 0}, Size: ir.Vec3{1, 1, 1}}
	entry := s.Update(2, []ir.Snapshot{negZero})
	assert.Len(t, entry.Changed, 1)
}

func TestDiffSince_CurrentIsEmpty(t *testing.T) {
	s := New()
	for tick := uint64(1); tick <= 5; tick++ {
		s.Update(tick, []ir.Snapshot{snap(ir.EntityID(tick), 0, 0, 0)})
		_, current := s.Current()
		d, err := s.DiffSince(current)
		require.NoError(t, err)
		assert.True(t, d.IsEmpty())
		assert.Equal(t, current, d.Base)
		assert.Equal(t, current, d.Checksum)
		assert.Equal(t, tick, d.Tick)
	}
}

// stateAt builds a deterministic world for tick t: entities spawn and
// despawn on a schedule and move every tick, plus one static entity.
func stateAt(t uint64) []ir.Snapshot {
	type life struct {
		id          ir.EntityID
		spawn, gone uint64
	}
	lives := []life{
		{1, 1, 100},
		{2, 3, 9},
		{3, 5, 6},
		{4, 8, 100},
		{5, 2, 12},
		{6, 10, 11},
	}
	var out []ir.Snapshot
	for _, l := range lives {
		if t >= l.spawn && t < l.gone {
			out = append(out, snap(l.id, float32(t)*float32(l.id), float32(l.id), 0))
		}
	}
	out = append(out, snap(100, 7, 7, 7))
	return out
}

func TestDiffSince_MatchesNaiveRediff(t *testing.T) {
	const ticks = 14
	s := New(WithHistory(ticks))

	states := map[uint64][]ir.Snapshot{0: nil}
	checksums := map[uint64]ir.Checksum{0: ir.ZeroChecksum}
	for tick := uint64(1); tick <= ticks; tick++ {
		states[tick] = stateAt(tick)
		entry := s.Update(tick, states[tick])
		checksums[tick] = entry.Checksum
	}

	for from := uint64(0); from <= ticks; from++ {
		d, err := s.DiffSince(checksums[from])
		require.NoError(t, err, "from tick %d", from)

		added, removed, changed := naiveDiff(states[from], states[ticks])
		if diff := cmp.Diff(added, d.Added); diff != "" {
			t.Errorf("from %d added mismatch (-want +got):\n%s", from, diff)
		}
		if diff := cmp.Diff(removed, d.Removed); diff != "" {
			t.Errorf("from %d removed mismatch (-want +got):\n%s", from, diff)
		}
		if diff := cmp.Diff(changed, d.Changed); diff != "" {
			t.Errorf("from %d changed mismatch (-want +got):\n%s", from, diff)
		}
		assert.Equal(t, checksums[from], d.Base)
		assert.Equal(t, checksums[ticks], d.Checksum)
		assert.Equal(t, uint64(ticks), d.Tick)
	}
}

func TestDiffSince_TooOldAndUnknown(t *testing.T) {
	s := New(WithHistory(3))
	checksums := map[uint64]ir.Checksum{0: ir.ZeroChecksum}
	for tick := uint64(1); tick <= 6; tick++ {
		checksums[tick] = s.Update(tick, []ir.Snapshot{snap(1, float32(tick), 0, 0)}).Checksum
	}
	require.Equal(t, 3, s.Len())

	oldest, ok := s.oldestBase()
	require.True(t, ok)
	assert.Equal(t, checksums[3], oldest)

	for _, tick := range []uint64{0, 1, 2} {
		_, err := s.DiffSince(checksums[tick])
		require.Error(t, err)
		assert.True(t, IsChecksumTooOld(err), "tick %d: %v", tick, err)
	}
	for _, tick := range []uint64{3, 4, 5, 6} {
		_, err := s.DiffSince(checksums[tick])
		assert.NoError(t, err, "tick %d", tick)
	}

	_, err := s.DiffSince(ir.Checksum(0xdeadbeef))
	require.Error(t, err)
	assert.True(t, IsUnknownChecksum(err))
	assert.Equal(t, ErrCodeUnknownChecksum, ErrorCode(err))
}

func TestDiffSince_LongEvictedChecksumIsStillTooOld(t *testing.T) {
	s := New()
	var first ir.Checksum
	for tick := uint64(1); tick <= 5000; tick++ {
		c := s.Update(tick, []ir.Snapshot{snap(1, float32(tick), 0, 0)}).Checksum
		if tick == 1 {
			first = c
		}
	}
	require.Equal(t, DefaultHistory, s.Len())

	for _, c := range []ir.Checksum{ir.ZeroChecksum, first} {
		_, err := s.DiffSince(c)
		require.Error(t, err)
		assert.Equal(t, ErrCodeChecksumTooOld, ErrorCode(err), "checksum %s", c)
	}
	assert.Equal(t, 5000-DefaultHistory, s.tombs.len())

	_, err := s.DiffSince(ir.Checksum(0xdeadbeef))
	assert.True(t, IsUnknownChecksum(err))
}

func TestDiffSince_CappedTombstonesForgetOldest(t *testing.T) {
	s := New(WithHistory(1), WithTombstones(2))
	checksums := map[uint64]ir.Checksum{0: ir.ZeroChecksum}
	for tick := uint64(1); tick <= 5; tick++ {
		checksums[tick] = s.Update(tick, []ir.Snapshot{snap(1, float32(tick), 0, 0)}).Checksum
	}
	// Ring holds tick 5 (base c4); the cap keeps c2 and c3.
	_, err := s.DiffSince(checksums[3])
	assert.True(t, IsChecksumTooOld(err))
	_, err = s.DiffSince(checksums[1])
	assert.True(t, IsUnknownChecksum(err))
}

func TestDiffSince_SpawnForceDespawnScenario(t *testing.T) {
	s := New()
	a := ir.EntityID(1)
	c1 := s.Update(1, []ir.Snapshot{{ID: a, Size: ir.Vec3{1, 1, 1}}}).Checksum
	s.Update(2, []ir.Snapshot{{ID: a, Vel: ir.Vec3{0, 10, 0}, Size: ir.Vec3{1, 1, 1}}})
	s.Update(3, nil)

	d, err := s.DiffSince(c1)
	require.NoError(t, err)
	assert.Empty(t, d.Added)
	assert.Equal(t, []ir.EntityID{a}, d.Removed)
	assert.Empty(t, d.Changed)

	// From before the spawn the pair cancels out.
	d, err = s.DiffSince(ir.ZeroChecksum)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestAccumulator_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		entries []Diff
		added   []ir.EntityID
		removed []ir.EntityID
		changed []ir.EntityID
	}{
		{
			name: "changed after removed is dropped",
			entries: []Diff{
				{Removed: []ir.EntityID{1}},
				{Changed: []ir.Snapshot{snap(1, 9, 9, 9)}},
			},
			removed: []ir.EntityID{1},
		},
		{
			name: "changed merges into added",
			entries: []Diff{
				{Added: []ir.Snapshot{snap(2, 0, 0, 0)}},
				{Changed: []ir.Snapshot{snap(2, 1, 0, 0)}},
			},
			added: []ir.EntityID{2},
		},
		{
			name: "added overrides changed and removed",
			entries: []Diff{
				{Changed: []ir.Snapshot{snap(3, 1, 0, 0)}},
				{Removed: []ir.EntityID{3}},
				{Added: []ir.Snapshot{snap(3, 5, 0, 0)}},
			},
			added: []ir.EntityID{3},
		},
		{
			name: "removed clears changed",
			entries: []Diff{
				{Changed: []ir.Snapshot{snap(4, 1, 0, 0)}},
				{Removed: []ir.EntityID{4}},
			},
			removed: []ir.EntityID{4},
		},
		{
			name: "added then removed cancels",
			entries: []Diff{
				{Added: []ir.Snapshot{snap(5, 0, 0, 0)}},
				{Removed: []ir.EntityID{5}},
			},
		},
		{
			name: "revived then removed again stays removed",
			entries: []Diff{
				{Removed: []ir.EntityID{6}},
				{Added: []ir.Snapshot{snap(6, 0, 0, 0)}},
				{Removed: []ir.EntityID{6}},
			},
			removed: []ir.EntityID{6},
		},
	}

	ids := func(snaps []ir.Snapshot) []ir.EntityID {
		out := []ir.EntityID{}
		for _, s := range snaps {
			out = append(out, s.ID)
		}
		return out
	}
	orEmpty := func(in []ir.EntityID) []ir.EntityID {
		if in == nil {
			return []ir.EntityID{}
		}
		return in
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := newAccumulator()
			for _, e := range tt.entries {
				acc.fold(e)
			}
			d := acc.result(0, 0, 0)
			assert.Equal(t, orEmpty(tt.added), ids(d.Added))
			assert.Equal(t, orEmpty(tt.removed), d.Removed)
			assert.Equal(t, orEmpty(tt.changed), ids(d.Changed))
		})
	}
}

func TestAccumulator_ChangedKeepsLatestSnapshot(t *testing.T) {
	acc := newAccumulator()
	acc.fold(Diff{Changed: []ir.Snapshot{snap(1, 1, 0, 0)}})
	acc.fold(Diff{Changed: []ir.Snapshot{snap(1, 2, 0, 0)}})
	d := acc.result(0, 0, 0)
	require.Len(t, d.Changed, 1)
	assert.Equal(t, float32(2), d.Changed[0].Pos.X())
}

func TestParseChecksumParam(t *testing.T) {
	_, err := ParseChecksumParam("since", "")
	assert.Equal(t, ErrCodeMissingParameter, ErrorCode(err))

	_, err = ParseChecksumParam("since", "zz")
	assert.Equal(t, ErrCodeParseError, ErrorCode(err))

	c, err := ParseChecksumParam("since", "00000000000000ff")
	require.NoError(t, err)
	assert.Equal(t, ir.Checksum(0xff), c)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := New(WithHistory(8))
	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				state := s.Snapshot()
				if _, err := s.DiffSince(state.Checksum); err != nil {
					assert.True(t, IsChecksumTooOld(err), "unexpected error: %v", err)
				}
			}
		}()
	}

	for tick := uint64(1); tick <= 200; tick++ {
		s.Update(tick, stateAt(tick%14+1))
	}
	close(done)
	wg.Wait()
}
