package ir

import (
	"math"
	"strconv"
)

// EntityID is an opaque 64-bit entity handle.
type EntityID uint64

// String renders the handle in decimal.
func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseEntityID parses a decimal entity handle.
func ParseEntityID(s string) (EntityID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return EntityID(v), nil
}

// Vec3 is a three component float32 vector.
// Serialized as a JSON array [x, y, z].
type Vec3 [3]float32

// X returns the first component.
func (v Vec3) X() float32 { return v[0] }

// Y returns the second component.
func (v Vec3) Y() float32 { return v[1] }

// Z returns the third component.
func (v Vec3) Z() float32 { return v[2] }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// BitsEqual compares two vectors by their IEEE-754 bit patterns.
// Unlike ==, NaN equals an identical NaN and +0 differs from -0.
func (v Vec3) BitsEqual(o Vec3) bool {
	for i := range v {
		if math.Float32bits(v[i]) != math.Float32bits(o[i]) {
			return false
		}
	}
	return true
}

// Snapshot is the per-tick view of one entity.
// Snapshots are values; once placed in history they are never mutated.
type Snapshot struct {
	ID   EntityID `json:"id"`
	Pos  Vec3     `json:"pos"`
	Vel  Vec3     `json:"vel"`
	Size Vec3     `json:"size"`
}

// SameState reports whether two snapshots carry bit-identical state.
func (s Snapshot) SameState(o Snapshot) bool {
	return s.ID == o.ID &&
		s.Pos.BitsEqual(o.Pos) &&
		s.Vel.BitsEqual(o.Vel) &&
		s.Size.BitsEqual(o.Size)
}
