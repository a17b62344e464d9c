package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/anchor/internal/ir"
)

// Scenario is one simulation run with scripted input and expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Ticks is how many ticks both the record and the replay pass run.
	Ticks uint64 `yaml:"ticks"`

	// TickRate overrides the default 60 Hz.
	TickRate float64 `yaml:"tick_rate,omitempty"`

	// FloorY moves the floor; NoFloor disables the clamp.
	FloorY  float32 `yaml:"floor_y,omitempty"`
	NoFloor bool    `yaml:"no_floor,omitempty"`

	// History sizes the World Store's diff ring.
	History int `yaml:"history,omitempty"`

	// SkipReplay runs the record pass only.
	SkipReplay bool `yaml:"skip_replay,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step feeds one input into the sim before the given tick runs.
type Step struct {
	Tick    uint64      `yaml:"tick"`
	Intent  *IntentStep `yaml:"intent,omitempty"`
	Command string      `yaml:"command,omitempty"`
	Input   *InputStep  `yaml:"input,omitempty"`
}

// IntentStep is an intent submitted through the service queue.
type IntentStep struct {
	Verb string         `yaml:"verb"`
	Args map[string]any `yaml:"args"`
}

// InputStep is a raw input event. Stamp 0 leaves it unstamped.
type InputStep struct {
	Action string         `yaml:"action"`
	Data   map[string]any `yaml:"data"`
	Stamp  uint64         `yaml:"stamp,omitempty"`
}

// Assertion checks the trace of the record pass (and, for
// replay_matches, the replay pass).
type Assertion struct {
	Type string `yaml:"type"`

	// Tick selects the checked tick; 0 means the final tick.
	Tick uint64 `yaml:"tick,omitempty"`

	Entity    uint64    `yaml:"entity,omitempty"`
	Count     *int      `yaml:"count,omitempty"`
	Pos       []float32 `yaml:"pos,omitempty"`
	Vel       []float32 `yaml:"vel,omitempty"`
	Tolerance float64   `yaml:"tolerance,omitempty"`
}

// Assertion type constants.
const (
	AssertEntityCount    = "entity_count"
	AssertEntityPosition = "entity_position"
	AssertEntityVelocity = "entity_velocity"
	AssertEntityAbsent   = "entity_absent"
	AssertRejectedCount  = "rejected_count"
	AssertFrameCount     = "frame_count"
	AssertReplayMatches  = "replay_matches"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Ticks == 0 {
		return fmt.Errorf("ticks must be at least 1")
	}
	if s.TickRate < 0 {
		return fmt.Errorf("tick_rate must not be negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Tick == 0 || step.Tick > s.Ticks {
			return fmt.Errorf("steps[%d]: tick must be in [1, %d], got %d", i, s.Ticks, step.Tick)
		}
		n := 0
		if step.Intent != nil {
			n++
			if step.Intent.Verb == "" {
				return fmt.Errorf("steps[%d].intent: verb is required", i)
			}
		}
		if step.Command != "" {
			n++
		}
		if step.Input != nil {
			n++
			if step.Input.Action == "" {
				return fmt.Errorf("steps[%d].input: action is required", i)
			}
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of intent, command or input is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	if a.Tick > s.Ticks {
		return fmt.Errorf("assertions[%d]: tick %d is past the last tick %d", index, a.Tick, s.Ticks)
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEntityCount, AssertRejectedCount, AssertFrameCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: %s requires count", index, a.Type)
		}
	case AssertEntityPosition:
		if a.Entity == 0 || len(a.Pos) != 3 {
			return fmt.Errorf("assertions[%d]: entity_position requires entity and a 3-component pos", index)
		}
	case AssertEntityVelocity:
		if a.Entity == 0 || len(a.Vel) != 3 {
			return fmt.Errorf("assertions[%d]: entity_velocity requires entity and a 3-component vel", index)
		}
	case AssertEntityAbsent:
		if a.Entity == 0 {
			return fmt.Errorf("assertions[%d]: entity_absent requires entity", index)
		}
	case AssertReplayMatches:
		if s.SkipReplay {
			return fmt.Errorf("assertions[%d]: replay_matches needs the replay pass", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}

// toVec3 converts a validated 3-component slice.
func toVec3(v []float32) ir.Vec3 {
	return ir.Vec3{v[0], v[1], v[2]}
}
