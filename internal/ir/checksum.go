package ir

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Domain prefixes keep checksums of different kinds from colliding.
// Version suffix enables future algorithm migration.
const (
	DomainState  = "anchor/state/v1"
	DomainReplay = "anchor/replay/v1"
)

// Checksum is a 64-bit digest of world state.
type Checksum uint64

// ZeroChecksum identifies the empty initial state before any tick ran.
const ZeroChecksum Checksum = 0

// String renders the checksum as 16 lowercase hex digits.
func (c Checksum) String() string {
	return fmt.Sprintf("%016x", uint64(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Checksum) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Checksum) UnmarshalText(text []byte) error {
	parsed, err := ParseChecksum(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseChecksum parses the hex form produced by String.
func ParseChecksum(s string) (Checksum, error) {
	if s == "" || len(s) > 16 {
		return 0, fmt.Errorf("invalid checksum %q: want 1-16 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid checksum %q: %w", s, err)
	}
	return Checksum(v), nil
}

// hashWriter is the subset of xxhash.Digest used by the encoders below.
type hashWriter interface {
	Write(p []byte) (int, error)
}

// ComputeChecksum digests a tick and its entity snapshots.
//
// The digest covers the tick and, for every snapshot in id order, the id and
// the IEEE-754 bit patterns of pos, vel and size. Bit patterns rather than
// numeric values are hashed so NaN payloads and signed zeros are detected.
// Input order does not matter: unsorted input is sorted on a copy.
//
// The function is total; it never fails.
func ComputeChecksum(tick uint64, snapshots []Snapshot) Checksum {
	sorted := snapshots
	if !slices.IsSortedFunc(snapshots, compareSnapshotID) {
		sorted = slices.Clone(snapshots)
		slices.SortFunc(sorted, compareSnapshotID)
	}

	h := xxhash.New()
	var tmp [8]byte
	h.WriteString(DomainState)
	h.Write([]byte{0x00})
	writeU64(h, &tmp, tick)
	writeU64(h, &tmp, uint64(len(sorted)))
	for _, s := range sorted {
		writeU64(h, &tmp, uint64(s.ID))
		writeVec3(h, &tmp, s.Pos)
		writeVec3(h, &tmp, s.Vel)
		writeVec3(h, &tmp, s.Size)
	}
	return Checksum(h.Sum64())
}

// ReplayChecksum digests the component-wise sum of every live entity's
// position. It is emitted when a replay finishes so that two replays of the
// same recording can be compared from the outside.
//
// Summation runs in id order so the float result is reproducible.
func ReplayChecksum(snapshots []Snapshot) Checksum {
	return ChecksumOfVec3(SumPositions(snapshots))
}

// SumPositions adds up every position in id order.
func SumPositions(snapshots []Snapshot) Vec3 {
	sorted := snapshots
	if !slices.IsSortedFunc(snapshots, compareSnapshotID) {
		sorted = slices.Clone(snapshots)
		slices.SortFunc(sorted, compareSnapshotID)
	}
	var sum Vec3
	for _, s := range sorted {
		sum = sum.Add(s.Pos)
	}
	return sum
}

// ChecksumOfVec3 digests a single vector's bit pattern.
func ChecksumOfVec3(v Vec3) Checksum {
	h := xxhash.New()
	var tmp [8]byte
	h.WriteString(DomainReplay)
	h.Write([]byte{0x00})
	writeVec3(h, &tmp, v)
	return Checksum(h.Sum64())
}

// SortSnapshots orders snapshots by id in place.
func SortSnapshots(snapshots []Snapshot) {
	slices.SortFunc(snapshots, compareSnapshotID)
}

func compareSnapshotID(a, b Snapshot) int {
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeVec3(h hashWriter, tmp *[8]byte, v Vec3) {
	for _, c := range v {
		binary.LittleEndian.PutUint32(tmp[:4], math.Float32bits(c))
		h.Write(tmp[:4])
	}
}
