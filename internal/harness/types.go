package harness

import (
	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/replay"
	"github.com/roach88/anchor/internal/store"
)

// TickTrace is what one tick of the record pass produced.
type TickTrace struct {
	Tick     uint64        `json:"tick"`
	Checksum ir.Checksum   `json:"checksum"`
	Entities []ir.Snapshot `json:"entities"`
	Rejected int           `json:"rejected"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one entry per tick of the record pass.
	Trace []TickTrace `json:"trace"`

	// Recording is the raw recording written by the record pass.
	Recording []byte `json:"-"`

	Record replay.Result  `json:"-"`
	Replay *replay.Result `json:"-"`

	// ReplayTrace holds the replay pass's per-tick checksums.
	ReplayTrace []ir.Checksum `json:"-"`

	// Desync is the first tick the replay diverged from the record run
	// according to the ledger.
	Desync *store.Divergence `json:"desync,omitempty"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TickTrace{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// At returns the trace entry for tick, or false.
func (r *Result) At(tick uint64) (TickTrace, bool) {
	if tick == 0 || tick > uint64(len(r.Trace)) {
		return TickTrace{}, false
	}
	return r.Trace[tick-1], true
}

// Final returns the last trace entry.
func (r *Result) Final() TickTrace {
	if len(r.Trace) == 0 {
		return TickTrace{}
	}
	return r.Trace[len(r.Trace)-1]
}
