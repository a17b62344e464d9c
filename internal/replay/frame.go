package replay

import (
	"github.com/roach88/anchor/internal/ir"
)

// BuildFrame assembles the recorded frame for one tick.
//
// applied is every intent the pipeline drained this tick, in apply order.
// Each input event cancels at most one applied intent carrying the same
// (action, payload) pair; what remains is recorded as intents. Slices are
// never nil so every line carries [] rather than null.
func BuildFrame(tick uint64, applied []ir.Intent, inputs []ir.InputEvent) ir.RecordedFrame {
	used := make([]bool, len(applied))
	for _, ev := range inputs {
		for i, in := range applied {
			if !used[i] && in.Matches(ev) {
				used[i] = true
				break
			}
		}
	}

	frame := ir.RecordedFrame{
		Tick:        tick,
		Intents:     make([]ir.Intent, 0, len(applied)),
		InputEvents: make([]ir.InputEvent, 0, len(inputs)),
	}
	for i, in := range applied {
		if !used[i] {
			frame.Intents = append(frame.Intents, ir.Intent{Verb: in.Verb, Args: ir.CompactPayload(in.Args)})
		}
	}
	for _, ev := range inputs {
		frame.InputEvents = append(frame.InputEvents, ir.InputEvent{
			Tick:   ev.Tick,
			Action: ev.Action,
			Data:   ir.CompactPayload(ev.Data),
		})
	}
	return frame
}
