package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/engine"
	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/replay"
	"github.com/roach88/anchor/internal/router"
	"github.com/roach88/anchor/internal/schema"
	"github.com/roach88/anchor/internal/store"
	"github.com/roach88/anchor/internal/world"
)

// Fixed ledger run ids keep the harness deterministic.
const (
	recordRunID = "harness-record"
	replayRunID = "harness-replay"
)

// memorySink is an in-memory recording sink.
type memorySink struct {
	bytes.Buffer
}

func (*memorySink) Sync() error { return nil }

// Harness holds what both passes of a scenario share.
type Harness struct {
	scenario  *Scenario
	store     *store.Store
	ids       store.IDGenerator
	validator *schema.Validator
	router    *router.Router
	logger    *zap.Logger
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger routes sim, replay and ledger logs to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory ledger database for
// isolation. Execution flow:
//  1. Record pass: feed steps, step the sim, capture the recording
//  2. Replay pass: replay the recording with desync detection
//  3. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	validator, err := schema.New()
	if err != nil {
		return nil, err
	}

	h := &Harness{
		scenario:  scenario,
		store:     st,
		ids:       store.NewFixedGenerator(recordRunID, replayRunID),
		validator: validator,
		router:    router.New(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.recordPass(ctx, result); err != nil {
		return nil, fmt.Errorf("record pass: %w", err)
	}
	if !scenario.SkipReplay {
		if err := h.replayPass(ctx, result); err != nil {
			return nil, fmt.Errorf("replay pass: %w", err)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// recordingKey names the scenario's recording in the ledger.
func (h *Harness) recordingKey() string {
	return "scenario:" + h.scenario.Name
}

func (h *Harness) newSim(hooks engine.Hooks, observers ...engine.Observer) *engine.Sim {
	var popts []engine.PipelineOption
	if h.scenario.NoFloor {
		popts = append(popts, engine.WithoutFloor())
	} else {
		popts = append(popts, engine.WithFloor(h.scenario.FloorY))
	}
	popts = append(popts, engine.WithPipelineLogger(h.logger))

	var wopts []world.Option
	if h.scenario.History > 0 {
		wopts = append(wopts, world.WithHistory(h.scenario.History))
	}
	wopts = append(wopts, world.WithLogger(h.logger))

	return engine.NewSim(
		engine.NewPipeline(h.validator, popts...),
		world.New(wopts...),
		engine.WithClock(engine.NewClock(h.scenario.TickRate)),
		engine.WithHooks(hooks),
		engine.WithObservers(observers...),
		engine.WithLogger(h.logger),
	)
}

func (h *Harness) startLedger(ctx context.Context, mode replay.Kind) (*store.Ledger, error) {
	return store.StartLedger(ctx, h.store, store.Run{
		ID:            h.ids.Generate(),
		Mode:          string(mode),
		Recording:     h.recordingKey(),
		TickRate:      engine.NewClock(h.scenario.TickRate).TickRate(),
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
	}, h.logger)
}

func (h *Harness) recordPass(ctx context.Context, result *Result) error {
	sink := &memorySink{}
	ctrl, err := replay.NewController(replay.Record(h.recordingKey()),
		replay.WithRecorder(replay.NewRecorder(sink)),
		replay.WithLogger(h.logger),
	)
	if err != nil {
		return err
	}
	ledger, err := h.startLedger(ctx, replay.KindRecord)
	if err != nil {
		return err
	}

	sim := h.newSim(ctrl, ledger)
	for tick := uint64(1); tick <= h.scenario.Ticks; tick++ {
		if err := h.feed(sim, tick); err != nil {
			return err
		}
		res := sim.Step()
		result.Trace = append(result.Trace, TickTrace{
			Tick:     res.Tick,
			Checksum: res.Diff.Checksum,
			Entities: res.Snapshots,
			Rejected: len(res.Apply.Rejected),
		})
	}

	result.Record = ctrl.Result()
	result.Recording = sink.Bytes()
	return ledger.Finish(ctx, result.Record.FinalTick, nil)
}

// feed hands the steps due on tick to the sim before it runs.
func (h *Harness) feed(sim *engine.Sim, tick uint64) error {
	for i, step := range h.scenario.Steps {
		if step.Tick != tick {
			continue
		}
		switch {
		case step.Intent != nil:
			in, err := ir.NewIntent(ir.Verb(step.Intent.Verb), step.Intent.Args)
			if err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			sim.Queue().Enqueue(in)
		case step.Command != "":
			events, err := h.router.Route(step.Command)
			if err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			for _, ev := range events {
				sim.Pipeline().PushInput(ev)
			}
		case step.Input != nil:
			data, err := json.Marshal(step.Input.Data)
			if err != nil {
				return fmt.Errorf("steps[%d]: marshal input data: %w", i, err)
			}
			sim.Pipeline().PushInput(ir.InputEvent{
				Tick:   step.Input.Stamp,
				Action: step.Input.Action,
				Data:   data,
			})
		}
	}
	return nil
}

func (h *Harness) replayPass(ctx context.Context, result *Result) error {
	frames, err := replay.LoadFrames(bytes.NewReader(result.Recording), h.logger)
	if err != nil {
		return err
	}
	ctrl, err := replay.NewController(replay.Replay(h.recordingKey()),
		replay.WithFrames(frames),
		replay.WithLogger(h.logger),
	)
	if err != nil {
		return err
	}
	ledger, err := h.startLedger(ctx, replay.KindReplay)
	if err != nil {
		return err
	}

	sim := h.newSim(ctrl, ledger)
	for tick := uint64(1); tick <= h.scenario.Ticks; tick++ {
		res := sim.Step()
		result.ReplayTrace = append(result.ReplayTrace, res.Diff.Checksum)
	}

	rep := ctrl.Result()
	result.Replay = &rep
	result.Desync = ledger.Desync()

	var sum *ir.Checksum
	if rep.Complete {
		sum = &rep.ReplayChecksum
	}
	return ledger.Finish(ctx, rep.FinalTick, sum)
}
