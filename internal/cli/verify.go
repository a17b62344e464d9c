package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/config"
	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/replay"
	"github.com/roach88/anchor/internal/schema"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Recording string
}

// ReplayPass is one headless replay of a recording.
type ReplayPass struct {
	FinalTick      uint64 `json:"final_tick"`
	FramesReplayed int    `json:"frames_replayed"`
	Complete       bool   `json:"complete"`
	ReplayChecksum string `json:"replay_checksum,omitempty"`

	checksums []ir.Checksum
}

// VerifyResult holds the outcome of replaying a recording twice.
type VerifyResult struct {
	Recording     string       `json:"recording"`
	Frames        int          `json:"frames"`
	Passes        []ReplayPass `json:"passes"`
	Deterministic bool         `json:"deterministic"`
	// MismatchTick is the first tick whose state checksum differed.
	MismatchTick uint64 `json:"mismatch_tick,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <recording>",
		Short: "Replay a recording twice and verify determinism",
		Long: `Replay a recording twice, headless, and verify both passes reach the
same state.

Each pass runs a fresh simulation with the configured sim and world
settings. The passes must produce identical state checksums on every tick
and the same replay checksum at completion.

Exit codes:
  0 - Both passes agree
  1 - Determinism verification failed (differences detected)
  2 - Command error (recording not found, malformed frame, etc.)

Examples:
  anchor verify ./session.ndjson
  anchor verify ./session.ndjson --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Recording = args[0]
			return runVerify(commandContext(cmd), opts, cmd)
		},
	}

	return cmd
}

func runVerify(ctx context.Context, opts *VerifyOptions, cmd *cobra.Command) error {
	logger := opts.logger()

	frames, err := replay.LoadFile(opts.Recording, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load recording", err).WithReason(ReasonLoad)
	}
	validator, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile intent schemas", err)
	}

	f := opts.formatter(cmd)
	result := VerifyResult{
		Recording: opts.Recording,
		Frames:    len(frames),
	}
	for i := range 2 {
		pass, err := replayPass(ctx, opts.Config, validator, opts.Recording, frames, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("replay pass %d failed", i+1), err)
		}
		f.VerboseLog("pass %d: %d ticks, replay checksum %s", i+1, pass.FinalTick, pass.ReplayChecksum)
		result.Passes = append(result.Passes, pass)
	}
	result.Deterministic, result.MismatchTick = comparePasses(result.Passes[0], result.Passes[1])
	if opts.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printVerifyText(f, result)
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay is not deterministic").WithReason(ReasonNondeterministic)
	}
	return nil
}

// replayPass steps a fresh sim through frames until the replay completes.
func replayPass(ctx context.Context, cfg config.Config, v *schema.Validator, path string, frames []ir.RecordedFrame, logger *zap.Logger) (ReplayPass, error) {
	ctrl, err := replay.NewController(replay.Replay(path),
		replay.WithFrames(frames),
		replay.WithLogger(logger),
	)
	if err != nil {
		return ReplayPass{}, err
	}

	sim := newSim(cfg, v, ctrl, logger)
	var pass ReplayPass
	for !sim.Done() {
		if err := ctx.Err(); err != nil {
			return ReplayPass{}, err
		}
		res := sim.Step()
		pass.checksums = append(pass.checksums, res.Diff.Checksum)
	}

	res := ctrl.Result()
	pass.FinalTick = res.FinalTick
	pass.FramesReplayed = res.FramesReplayed
	pass.Complete = res.Complete
	if res.Complete {
		pass.ReplayChecksum = res.ReplayChecksum.String()
	}
	return pass, nil
}

// comparePasses reports whether two passes agree and, if not, the first
// tick where their state checksums differ (0 when only the totals do).
func comparePasses(a, b ReplayPass) (bool, uint64) {
	for i := range min(len(a.checksums), len(b.checksums)) {
		if a.checksums[i] != b.checksums[i] {
			return false, uint64(i + 1)
		}
	}
	if len(a.checksums) != len(b.checksums) || a.Complete != b.Complete || a.ReplayChecksum != b.ReplayChecksum {
		return false, 0
	}
	return true, 0
}

func printVerifyText(f *OutputFormatter, result VerifyResult) {
	out := f.Writer
	fmt.Fprintf(out, "Recording: %s (%d frames)\n", result.Recording, result.Frames)
	for i, p := range result.Passes {
		status := "complete"
		if !p.Complete {
			status = "incomplete"
		}
		fmt.Fprintf(out, "  Pass %d: %d ticks, %d frames replayed, %s", i+1, p.FinalTick, p.FramesReplayed, status)
		if p.ReplayChecksum != "" {
			fmt.Fprintf(out, ", replay checksum %s", p.ReplayChecksum)
		}
		fmt.Fprintln(out)
	}
	switch {
	case result.Deterministic:
		fmt.Fprintln(out, "Deterministic: yes")
	case result.MismatchTick > 0:
		fmt.Fprintf(out, "Deterministic: NO (first mismatch at tick %d)\n", result.MismatchTick)
	default:
		fmt.Fprintln(out, "Deterministic: NO (replay results differ)")
	}
}
