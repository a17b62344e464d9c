package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/anchor/internal/replay"
	"github.com/roach88/anchor/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Ledger  string
	RunID   string
	Against string // optional - reference run to compare with
}

// RunInfo is one ledger run as reported by trace.
type RunInfo struct {
	ID             string  `json:"id"`
	Mode           string  `json:"mode"`
	Recording      string  `json:"recording,omitempty"`
	TickRate       float64 `json:"tick_rate"`
	EngineVersion  string  `json:"engine_version"`
	FormatVersion  string  `json:"format_version"`
	Finished       bool    `json:"finished"`
	FinalTick      uint64  `json:"final_tick,omitempty"`
	ReplayChecksum string  `json:"replay_checksum,omitempty"`
}

// TickRow is one tick's chain link.
type TickRow struct {
	Tick     uint64 `json:"tick"`
	Base     string `json:"base"`
	Checksum string `json:"checksum"`
	Entities int    `json:"entities"`
}

// TraceResult holds the trace output. Runs is set when listing; the other
// fields when tracing a single run.
type TraceResult struct {
	Runs       []RunInfo   `json:"runs,omitempty"`
	Run        *RunInfo    `json:"run,omitempty"`
	Ticks      []TickRow   `json:"ticks,omitempty"`
	Reference  string      `json:"reference,omitempty"`
	Divergence *DesyncInfo `json:"divergence,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the checksum ledger",
		Long: `Query the checksum ledger written by "anchor run --ledger".

Without --run, lists every run. With --run, shows that run's per-tick
checksum chain and compares it against a reference run: the run given by
--against or, for a replay run, the latest record run of the same
recording.

Exit codes:
  0 - Ledger read (and, when compared, no divergence)
  1 - The run diverges from its reference
  2 - Command error (ledger not found, unknown run, etc.)

Examples:
  anchor trace --ledger ./anchor.db
  anchor trace --ledger ./anchor.db --run 0190c6a2-...
  anchor trace --ledger ./anchor.db --run <replay-id> --against <record-id> --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("ledger") {
				opts.Ledger = opts.Config.Ledger
			}
			return runTrace(commandContext(cmd), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to SQLite ledger (default from config)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Against, "against", "", "reference run id to compare with")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if opts.Ledger == "" {
		return NewExitError(ExitCommandError, "no ledger: pass --ledger or set ledger in the config")
	}

	st, err := store.Open(opts.Ledger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err).WithReason(ReasonLedger)
	}
	defer st.Close()

	f := opts.formatter(cmd)

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		result := TraceResult{Runs: make([]RunInfo, 0, len(runs))}
		for _, run := range runs {
			result.Runs = append(result.Runs, runInfo(run))
		}
		if opts.Format == "json" {
			return f.Success(result)
		}
		printRunList(f.Writer, result.Runs)
		return nil
	}

	result, err := traceRun(ctx, st, opts.RunID, opts.Against)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printRunTrace(f.Writer, result, opts.Verbose)
	}

	if result.Divergence != nil {
		return NewExitError(ExitFailure,
			fmt.Sprintf("run %s diverges from %s at tick %d", opts.RunID, result.Reference, result.Divergence.Tick)).WithReason(ReasonDiverged)
	}
	return nil
}

// traceRun reads one run's chain and compares it with its reference.
func traceRun(ctx context.Context, st *store.Store, id, against string) (TraceResult, error) {
	run, err := st.ReadRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return TraceResult{}, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id)).WithReason(ReasonNotFound)
	}
	if err != nil {
		return TraceResult{}, WrapExitError(ExitCommandError, "failed to read run", err)
	}

	ticks, err := st.ReadTicks(ctx, id)
	if err != nil {
		return TraceResult{}, WrapExitError(ExitCommandError, "failed to read ticks", err)
	}

	info := runInfo(run)
	result := TraceResult{Run: &info, Ticks: make([]TickRow, 0, len(ticks))}
	for _, tc := range ticks {
		result.Ticks = append(result.Ticks, TickRow{
			Tick:     tc.Tick,
			Base:     tc.Base.String(),
			Checksum: tc.Checksum.String(),
			Entities: tc.Entities,
		})
	}

	switch {
	case against != "":
		if _, err := st.ReadRun(ctx, against); err != nil {
			return TraceResult{}, WrapExitError(ExitCommandError, "failed to read reference run", err)
		}
		result.Reference = against
	case run.Mode == string(replay.KindReplay):
		ref, err := st.LatestRun(ctx, string(replay.KindRecord), run.Recording, run.ID)
		if errors.Is(err, store.ErrNotFound) {
			return result, nil
		}
		if err != nil {
			return TraceResult{}, WrapExitError(ExitCommandError, "failed to find reference run", err)
		}
		result.Reference = ref.ID
	default:
		return result, nil
	}

	d, err := st.FirstDivergence(ctx, result.Reference, id)
	if err != nil {
		return TraceResult{}, WrapExitError(ExitCommandError, "failed to compare runs", err)
	}
	if d != nil {
		result.Divergence = &DesyncInfo{
			Tick:      d.Tick,
			Reference: d.Reference.String(),
			Actual:    d.Actual.String(),
		}
	}
	return result, nil
}

func runInfo(run store.Run) RunInfo {
	info := RunInfo{
		ID:            run.ID,
		Mode:          run.Mode,
		Recording:     run.Recording,
		TickRate:      run.TickRate,
		EngineVersion: run.EngineVersion,
		FormatVersion: run.FormatVersion,
		Finished:      run.Finished,
		FinalTick:     run.FinalTick,
	}
	if run.ReplayChecksum != nil {
		info.ReplayChecksum = run.ReplayChecksum.String()
	}
	return info
}

func printRunList(w io.Writer, runs []RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs in ledger.")
		return
	}
	fmt.Fprintf(w, "Runs (%d)\n", len(runs))
	for _, r := range runs {
		status := "running"
		if r.Finished {
			status = fmt.Sprintf("final tick %d", r.FinalTick)
		}
		fmt.Fprintf(w, "  %s  %-6s  %s", r.ID, r.Mode, status)
		if r.Recording != "" {
			fmt.Fprintf(w, "  %s", r.Recording)
		}
		fmt.Fprintln(w)
	}
}

// printRunTrace prints a run header and its chain. Without verbose only the
// last tick's link is shown.
func printRunTrace(w io.Writer, result TraceResult, verbose bool) {
	r := result.Run
	fmt.Fprintf(w, "Run: %s (%s)\n", r.ID, r.Mode)
	if r.Recording != "" {
		fmt.Fprintf(w, "  Recording:  %s\n", r.Recording)
	}
	fmt.Fprintf(w, "  Tick rate:  %g\n", r.TickRate)
	fmt.Fprintf(w, "  Ticks:      %d\n", len(result.Ticks))
	if r.ReplayChecksum != "" {
		fmt.Fprintf(w, "  Replay checksum: %s\n", r.ReplayChecksum)
	}

	rows := result.Ticks
	if !verbose && len(rows) > 1 {
		rows = rows[len(rows)-1:]
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  [%d] %s -> %s (%d entities)\n", row.Tick, row.Base, row.Checksum, row.Entities)
	}

	switch {
	case result.Reference == "":
	case result.Divergence == nil:
		fmt.Fprintf(w, "  Matches reference run %s\n", result.Reference)
	default:
		fmt.Fprintf(w, "  DIVERGES from %s at tick %d: expected %s, got %s\n",
			result.Reference, result.Divergence.Tick, result.Divergence.Reference, result.Divergence.Actual)
	}
}
