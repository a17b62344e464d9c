package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/replay"
	"github.com/roach88/anchor/internal/schema"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
}

// InvalidPayload is a recorded intent whose arguments fail validation.
// Replay applies it and rejects it exactly as the recording run did.
type InvalidPayload struct {
	Tick    uint64 `json:"tick"`
	Verb    string `json:"verb"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InspectResult holds recording statistics.
type InspectResult struct {
	Recording   string `json:"recording"`
	Frames      int    `json:"frames"`
	FirstTick   uint64 `json:"first_tick,omitempty"`
	LastTick    uint64 `json:"last_tick,omitempty"`
	Intents     int    `json:"intents"`
	InputEvents int    `json:"input_events"`
	EmptyFrames int    `json:"empty_frames"`
	// TickRegressions counts frames whose tick is below the previous frame's.
	TickRegressions int              `json:"tick_regressions"`
	Verbs           map[string]int   `json:"verbs"`
	Actions         map[string]int   `json:"actions"`
	Invalid         []InvalidPayload `json:"invalid"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <recording>",
		Short: "Show recording statistics",
		Long: `Read a recording and report frame statistics: tick range, intent and
input event counts per verb, and every recorded payload that fails
schema validation.

Examples:
  anchor inspect ./session.ndjson
  anchor inspect ./session.ndjson --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	return cmd
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
	frames, err := replay.LoadFile(path, opts.logger())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load recording", err).WithReason(ReasonLoad)
	}
	validator, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile intent schemas", err)
	}

	result := inspectFrames(path, frames, validator)

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(result)
	}
	printInspectText(f.Writer, result)
	return nil
}

func inspectFrames(path string, frames []ir.RecordedFrame, v *schema.Validator) InspectResult {
	result := InspectResult{
		Recording: path,
		Frames:    len(frames),
		Verbs:     map[string]int{},
		Actions:   map[string]int{},
		Invalid:   []InvalidPayload{},
	}
	if len(frames) > 0 {
		result.FirstTick = frames[0].Tick
		result.LastTick = frames[len(frames)-1].Tick
	}

	check := func(tick uint64, in ir.Intent) {
		err := v.ValidateIntent(in)
		if err == nil {
			return
		}
		p := InvalidPayload{Tick: tick, Verb: string(in.Verb), Message: err.Error()}
		var ie *schema.IntentError
		if errors.As(err, &ie) {
			p.Code = string(ie.Code)
			p.Message = ie.Message
		}
		result.Invalid = append(result.Invalid, p)
	}

	for i, frame := range frames {
		if i > 0 && frame.Tick < frames[i-1].Tick {
			result.TickRegressions++
		}
		if frame.Empty() {
			result.EmptyFrames++
		}
		for _, in := range frame.Intents {
			result.Intents++
			result.Verbs[string(in.Verb)]++
			check(frame.Tick, in)
		}
		for _, ev := range frame.InputEvents {
			result.InputEvents++
			result.Actions[ev.Action]++
			check(frame.Tick, ev.Intent())
		}
	}
	return result
}

func printInspectText(w io.Writer, r InspectResult) {
	fmt.Fprintf(w, "Recording: %s\n", r.Recording)
	fmt.Fprintf(w, "  Frames:       %d", r.Frames)
	if r.Frames > 0 {
		fmt.Fprintf(w, " (ticks %d..%d)", r.FirstTick, r.LastTick)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Intents:      %d\n", r.Intents)
	for _, verb := range slices.Sorted(maps.Keys(r.Verbs)) {
		fmt.Fprintf(w, "    %-12s %d\n", verb, r.Verbs[verb])
	}
	fmt.Fprintf(w, "  Input events: %d\n", r.InputEvents)
	for _, action := range slices.Sorted(maps.Keys(r.Actions)) {
		fmt.Fprintf(w, "    %-12s %d\n", action, r.Actions[action])
	}
	if r.EmptyFrames > 0 {
		fmt.Fprintf(w, "  Empty frames: %d\n", r.EmptyFrames)
	}
	if r.TickRegressions > 0 {
		fmt.Fprintf(w, "  Tick regressions: %d\n", r.TickRegressions)
	}
	if len(r.Invalid) > 0 {
		fmt.Fprintf(w, "  Invalid payloads: %d\n", len(r.Invalid))
		for _, p := range r.Invalid {
			fmt.Fprintf(w, "    [%d] %s %s: %s\n", p.Tick, p.Verb, p.Code, p.Message)
		}
	}
}
