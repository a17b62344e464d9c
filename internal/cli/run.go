package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/anchor/internal/config"
	"github.com/roach88/anchor/internal/engine"
	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/render"
	"github.com/roach88/anchor/internal/replay"
	"github.com/roach88/anchor/internal/router"
	"github.com/roach88/anchor/internal/schema"
	"github.com/roach88/anchor/internal/server"
	"github.com/roach88/anchor/internal/store"
	"github.com/roach88/anchor/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Mode      string
	Recording string
	Ledger    string
	Listen    string
	Ticks     uint64
	Headless  bool
	ReadOnly  bool

	// RunIDs overrides the ledger run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs store.IDGenerator
}

// RunSummary is what a finished run reports.
type RunSummary struct {
	Mode           string      `json:"mode"`
	Recording      string      `json:"recording,omitempty"`
	FinalTick      uint64      `json:"final_tick"`
	Entities       int         `json:"entities"`
	Checksum       string      `json:"checksum"`
	FramesWritten  int         `json:"frames_written,omitempty"`
	WriteFailures  int         `json:"write_failures,omitempty"`
	FramesLoaded   int         `json:"frames_loaded,omitempty"`
	FramesReplayed int         `json:"frames_replayed,omitempty"`
	ReplayComplete bool        `json:"replay_complete,omitempty"`
	ReplayChecksum string      `json:"replay_checksum,omitempty"`
	LedgerRun      string      `json:"ledger_run,omitempty"`
	LedgerRef      string      `json:"ledger_reference,omitempty"`
	LedgerFailures int         `json:"ledger_failures,omitempty"`
	Desync         *DesyncInfo `json:"desync,omitempty"`
}

// DesyncInfo describes the first tick a replay diverged from its reference.
type DesyncInfo struct {
	Tick      uint64 `json:"tick"`
	Reference string `json:"reference"`
	Actual    string `json:"actual"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation and sync service",
		Long: `Run the fixed-tick simulation, optionally recording or replaying
its intent stream, and serve snapshots and diffs over HTTP.

Flags override ANCHOR_* environment variables, which override the
config file. A replay run ends when the recording is exhausted.

Exit codes:
  0 - Run finished (or was interrupted) cleanly
  1 - Replay desynchronized from its recorded ledger run
  2 - Command error (bad config, unreadable recording, etc.)

Examples:
  anchor run
  anchor run --mode record --recording ./session.ndjson --ledger ./anchor.db
  anchor run --mode replay --recording ./session.ndjson --ledger ./anchor.db --headless
  anchor run --ticks 600 --listen ""`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			applyRunFlags(cmd, opts, &cfg)
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid run settings", err).WithReason(ReasonConfig)
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := runSimulation(ctx, opts, cfg)
			if err != nil {
				return err
			}
			if err := opts.formatter(cmd).Success(summaryOutput(opts.Format, summary)); err != nil {
				return err
			}
			if summary.Desync != nil {
				return NewExitError(ExitFailure,
					fmt.Sprintf("replay desync at tick %d", summary.Desync.Tick)).WithReason(ReasonDesync)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "simulation mode (normal|record|replay)")
	cmd.Flags().StringVar(&opts.Recording, "recording", "", "recording file for record and replay modes")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "SQLite checksum ledger path")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "sync service address (empty disables)")
	cmd.Flags().Uint64Var(&opts.Ticks, "ticks", 0, "stop after this many ticks (0 runs until stopped)")
	cmd.Flags().BoolVar(&opts.Headless, "headless", false, "step as fast as possible instead of at the tick rate")
	cmd.Flags().BoolVar(&opts.ReadOnly, "read-only", false, "refuse intent writes on the sync service")

	return cmd
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = opts.Mode
	}
	if flags.Changed("recording") {
		cfg.Recording = opts.Recording
	}
	if flags.Changed("ledger") {
		cfg.Ledger = opts.Ledger
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = opts.Listen
	}
	if flags.Changed("ticks") {
		cfg.Sim.Ticks = opts.Ticks
	}
	if flags.Changed("read-only") {
		cfg.Server.ReadOnly = opts.ReadOnly
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// tickLimit ends a run after limit ticks. limit == 0 never ends it.
type tickLimit struct {
	engine.Hooks
	limit uint64
	last  uint64
}

func (h *tickLimit) Commit(res *engine.TickResult) {
	h.last = res.Tick
	h.Hooks.Commit(res)
}

func (h *tickLimit) Done() bool {
	return h.Hooks.Done() || (h.limit > 0 && h.last >= h.limit)
}

func runSimulation(ctx context.Context, opts *RunOptions, cfg config.Config) (*RunSummary, error) {
	logger := opts.logger()

	mode, err := cfg.SimulationMode()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid mode", err)
	}
	if mode.Path != "" {
		abs, err := filepath.Abs(mode.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to resolve recording path", err)
		}
		mode.Path = abs
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Settings{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTelEndpoint,
		Enabled:     cfg.Telemetry.OTelEnabled,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	validator, err := schema.New()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to compile intent schemas", err)
	}

	ctrl, err := replay.NewController(mode, replay.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to prepare "+string(mode.Kind)+" mode", err).WithReason(ReasonLoad)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Error("closing recording failed", zap.Error(err))
		}
	}()

	var observers []engine.Observer

	var ledger *store.Ledger
	if cfg.Ledger != "" {
		st, err := store.Open(cfg.Ledger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open ledger", err).WithReason(ReasonLedger)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing ledger", zap.Error(err))
			}
		}()

		ids := opts.RunIDs
		if ids == nil {
			ids = store.UUIDv7Generator{}
		}
		// Rows keep going in while the run winds down after a signal.
		ledger, err = store.StartLedger(context.WithoutCancel(ctx), st, store.Run{
			ID:            ids.Generate(),
			Mode:          string(mode.Kind),
			Recording:     mode.Path,
			TickRate:      engine.NewClock(cfg.Sim.TickRate).TickRate(),
			EngineVersion: ir.EngineVersion,
			FormatVersion: ir.FormatVersion,
		}, logger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to start ledger run", err).WithReason(ReasonLedger)
		}
		observers = append(observers, ledger)
	}

	backend, err := render.New(cfg.Render.Backend)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create render backend", err)
	}
	if backend != nil {
		observers = append(observers, render.NewObserver(backend, cfg.Render.EveryTicks, logger))
	}

	var hub *server.Hub
	if cfg.Server.Listen != "" {
		hub = server.NewHub(0, logger)
		observers = append(observers, hub)
	}

	hooks := &tickLimit{Hooks: ctrl, limit: cfg.Sim.Ticks}
	sim := newSim(cfg, validator, hooks, logger,
		engine.WithObservers(observers...),
		engine.WithTimingStats(engine.NewTimingStats(cfg.Telemetry.MetricsEvery, logger)),
	)

	logger.Info("run starting",
		zap.Stringer("mode", mode),
		zap.Float64("tick_rate", sim.Clock().TickRate()),
		zap.Uint64("ticks", cfg.Sim.Ticks),
		zap.String("listen", cfg.Server.Listen),
		zap.String("ledger", cfg.Ledger),
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopRun := context.WithCancel(gctx)
	defer stopRun()

	g.Go(func() error {
		// The service stops with the sim, whichever way the sim ends.
		defer stopRun()
		defer sim.Queue().Close()

		var err error
		if opts.Headless {
			_, err = sim.RunTicks(runCtx, 0)
		} else {
			err = sim.Run(runCtx)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if hub != nil {
		srv := server.New(sim.World(), sim.Queue(), validator,
			server.WithInputs(sim.Pipeline()),
			server.WithRouter(router.New(router.WithLogger(logger))),
			server.WithHub(hub),
			server.WithReadOnly(cfg.ReadOnly()),
			server.WithLogger(logger),
			server.WithTracer(telemetry.Tracer()),
		)
		g.Go(func() error {
			return srv.ListenAndServe(runCtx, cfg.Server.Listen)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, WrapExitError(ExitFailure, "run failed", err)
	}

	return finishRun(ctx, logger, mode, sim, ctrl, ledger), nil
}

// finishRun closes the ledger run and builds the summary.
func finishRun(ctx context.Context, logger *zap.Logger, mode replay.Mode, sim *engine.Sim, ctrl *replay.Controller, ledger *store.Ledger) *RunSummary {
	res := ctrl.Result()
	state := sim.World().Snapshot()

	summary := &RunSummary{
		Mode:           string(mode.Kind),
		Recording:      mode.Path,
		FinalTick:      state.Tick,
		Entities:       len(state.Entities),
		Checksum:       state.Checksum.String(),
		FramesWritten:  res.FramesWritten,
		WriteFailures:  res.WriteFailures,
		FramesLoaded:   res.FramesLoaded,
		FramesReplayed: res.FramesReplayed,
		ReplayComplete: res.Complete,
	}

	var replaySum *ir.Checksum
	if res.Complete {
		replaySum = &res.ReplayChecksum
		summary.ReplayChecksum = res.ReplayChecksum.String()
	}

	if ledger == nil {
		return summary
	}
	summary.LedgerRun = ledger.Run().ID
	summary.LedgerRef = ledger.ReferenceRun()
	summary.LedgerFailures = ledger.WriteFailures()
	if err := ledger.Finish(context.WithoutCancel(ctx), state.Tick, replaySum); err != nil {
		logger.Error("ledger finish failed", zap.Error(err))
	}
	if d := ledger.Desync(); d != nil {
		summary.Desync = &DesyncInfo{
			Tick:      d.Tick,
			Reference: d.Reference.String(),
			Actual:    d.Actual.String(),
		}
	}
	return summary
}

// summaryOutput returns summary as is for JSON and as a text block
// otherwise.
func summaryOutput(format string, s *RunSummary) any {
	if format == "json" {
		return s
	}
	text := fmt.Sprintf("Run finished (%s)\n  Final tick: %d\n  Entities:   %d\n  Checksum:   %s",
		s.Mode, s.FinalTick, s.Entities, s.Checksum)
	if s.Recording != "" {
		text += fmt.Sprintf("\n  Recording:  %s", s.Recording)
	}
	switch s.Mode {
	case string(replay.KindRecord):
		text += fmt.Sprintf("\n  Frames:     %d written, %d failed", s.FramesWritten, s.WriteFailures)
	case string(replay.KindReplay):
		text += fmt.Sprintf("\n  Frames:     %d of %d replayed", s.FramesReplayed, s.FramesLoaded)
		if s.ReplayComplete {
			text += fmt.Sprintf("\n  Replay checksum: %s", s.ReplayChecksum)
		} else {
			text += "\n  Replay incomplete"
		}
	}
	if s.LedgerRun != "" {
		text += fmt.Sprintf("\n  Ledger run: %s", s.LedgerRun)
		if s.LedgerRef != "" {
			text += fmt.Sprintf(" (reference %s)", s.LedgerRef)
		}
		if s.LedgerFailures > 0 {
			text += fmt.Sprintf("\n  Ledger rows lost: %d", s.LedgerFailures)
		}
	}
	if s.Desync != nil {
		text += fmt.Sprintf("\n  DESYNC at tick %d: expected %s, got %s",
			s.Desync.Tick, s.Desync.Reference, s.Desync.Actual)
	}
	return text
}
