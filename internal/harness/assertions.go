package harness

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/anchor/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Tick     uint64 // Checked tick, 0 for whole-run assertions
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Entities []ir.Snapshot
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Tick > 0 {
		fmt.Fprintf(&buf, " at tick %d", e.Tick)
	}
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Entities) > 0 {
		fmt.Fprintf(&buf, "\nEntities:\n")
		for _, s := range e.Entities {
			fmt.Fprintf(&buf, "  [%d] pos=%v vel=%v\n", s.ID, s.Pos, s.Vel)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertEntityCount:
		return assertEntityCount(result, a)
	case AssertEntityPosition:
		return assertEntityVector(result, a, "pos", toVec3(a.Pos), func(s ir.Snapshot) ir.Vec3 { return s.Pos })
	case AssertEntityVelocity:
		return assertEntityVector(result, a, "vel", toVec3(a.Vel), func(s ir.Snapshot) ir.Vec3 { return s.Vel })
	case AssertEntityAbsent:
		return assertEntityAbsent(result, a)
	case AssertRejectedCount:
		return assertRejectedCount(result, a)
	case AssertFrameCount:
		return assertFrameCount(result, a)
	case AssertReplayMatches:
		return assertReplayMatches(result)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// traceFor resolves the assertion's tick, defaulting to the final tick.
func traceFor(result *Result, a Assertion) (TickTrace, error) {
	if a.Tick == 0 {
		return result.Final(), nil
	}
	tt, ok := result.At(a.Tick)
	if !ok {
		return TickTrace{}, fmt.Errorf("tick %d was not run", a.Tick)
	}
	return tt, nil
}

func findEntity(entities []ir.Snapshot, id ir.EntityID) (ir.Snapshot, bool) {
	for _, s := range entities {
		if s.ID == id {
			return s, true
		}
	}
	return ir.Snapshot{}, false
}

func assertEntityCount(result *Result, a Assertion) error {
	tt, err := traceFor(result, a)
	if err != nil {
		return err
	}
	if len(tt.Entities) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Tick:     tt.Tick,
		Expected: fmt.Sprintf("%d entities", *a.Count),
		Actual:   fmt.Sprintf("%d entities", len(tt.Entities)),
		Entities: tt.Entities,
	}
}

func assertEntityVector(result *Result, a Assertion, field string, want ir.Vec3, get func(ir.Snapshot) ir.Vec3) error {
	tt, err := traceFor(result, a)
	if err != nil {
		return err
	}
	s, ok := findEntity(tt.Entities, ir.EntityID(a.Entity))
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Tick:     tt.Tick,
			Expected: fmt.Sprintf("entity %d with %s %v", a.Entity, field, want),
			Actual:   "entity not live",
			Entities: tt.Entities,
		}
	}
	got := get(s)
	for i := range got {
		if math.Abs(float64(got[i])-float64(want[i])) > a.Tolerance {
			return &AssertionError{
				Type:     a.Type,
				Tick:     tt.Tick,
				Expected: fmt.Sprintf("entity %d %s %v (±%g)", a.Entity, field, want, a.Tolerance),
				Actual:   fmt.Sprintf("%s %v", field, got),
			}
		}
	}
	return nil
}

func assertEntityAbsent(result *Result, a Assertion) error {
	tt, err := traceFor(result, a)
	if err != nil {
		return err
	}
	if _, ok := findEntity(tt.Entities, ir.EntityID(a.Entity)); !ok {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Tick:     tt.Tick,
		Expected: fmt.Sprintf("entity %d absent", a.Entity),
		Actual:   "entity is live",
		Entities: tt.Entities,
	}
}

func assertRejectedCount(result *Result, a Assertion) error {
	total := 0
	for _, tt := range result.Trace {
		if a.Tick == 0 || tt.Tick == a.Tick {
			total += tt.Rejected
		}
	}
	if total == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Tick:     a.Tick,
		Expected: fmt.Sprintf("%d rejected intents", *a.Count),
		Actual:   fmt.Sprintf("%d rejected intents", total),
	}
}

func assertFrameCount(result *Result, a Assertion) error {
	lines := 0
	for _, line := range bytes.Split(result.Recording, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines++
		}
	}
	if lines == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d recorded frames", *a.Count),
		Actual:   fmt.Sprintf("%d recorded frames", lines),
	}
}

// assertReplayMatches requires the replay to finish, agree with the
// ledger at every tick and reproduce the record pass's replay checksum.
func assertReplayMatches(result *Result) error {
	if result.Replay == nil {
		return fmt.Errorf("replay pass did not run")
	}
	if !result.Replay.Complete {
		return &AssertionError{
			Type:     AssertReplayMatches,
			Expected: "replay complete",
			Actual:   fmt.Sprintf("replayed %d of %d frames", result.Replay.FramesReplayed, result.Replay.FramesLoaded),
		}
	}
	if d := result.Desync; d != nil {
		return &AssertionError{
			Type:     AssertReplayMatches,
			Tick:     d.Tick,
			Expected: fmt.Sprintf("checksum %s", d.Reference),
			Actual:   fmt.Sprintf("checksum %s", d.Actual),
		}
	}
	for i, sum := range result.ReplayTrace {
		if i < len(result.Trace) && result.Trace[i].Checksum != sum {
			return &AssertionError{
				Type:     AssertReplayMatches,
				Tick:     uint64(i + 1),
				Expected: fmt.Sprintf("checksum %s", result.Trace[i].Checksum),
				Actual:   fmt.Sprintf("checksum %s", sum),
			}
		}
	}

	// The replay checksum is taken on the tick the replay completed.
	tt, ok := result.At(result.Replay.CompletedTick)
	if !ok {
		return fmt.Errorf("replay completed on tick %d, outside the record trace", result.Replay.CompletedTick)
	}
	want := ir.ReplayChecksum(tt.Entities)
	if want != result.Replay.ReplayChecksum {
		return &AssertionError{
			Type:     AssertReplayMatches,
			Tick:     tt.Tick,
			Expected: fmt.Sprintf("replay checksum %s", want),
			Actual:   fmt.Sprintf("replay checksum %s", result.Replay.ReplayChecksum),
		}
	}
	return nil
}
