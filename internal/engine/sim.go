package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/world"
)

// TickResult is everything one tick produced. Hooks and observers receive
// it read-only.
type TickResult struct {
	Tick      uint64
	Delta     float32
	Inputs    []ir.InputEvent
	Apply     ApplyResult
	Snapshots []ir.Snapshot
	Diff      world.Diff
	Timings   TickTimings
}

// Hooks is the seam the record/replay controller plugs into.
type Hooks interface {
	// Inject runs right after the clock advances, before inputs are taken.
	Inject(tick uint64, p *Pipeline)

	// CaptureInputs sees the tick's stamped input events before conversion.
	CaptureInputs(tick uint64, events []ir.InputEvent)

	// Commit runs after the World Store update.
	Commit(res *TickResult)

	// Done reports that the run has nothing left to do.
	Done() bool
}

// Observer is notified once per tick after Hooks.Commit.
type Observer interface {
	ObserveTick(res *TickResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(res *TickResult)

// ObserveTick implements Observer.
func (f ObserverFunc) ObserveTick(res *TickResult) { f(res) }

// NopHooks is the Normal-mode hook set: it never injects, records or ends.
type NopHooks struct{}

func (NopHooks) Inject(uint64, *Pipeline)              {}
func (NopHooks) CaptureInputs(uint64, []ir.InputEvent) {}
func (NopHooks) Commit(*TickResult)                    {}
func (NopHooks) Done() bool                            { return false }

// Sim is the single-writer tick loop.
//
// CRITICAL: Step, Run and RunTicks must be called from exactly one
// goroutine. Other goroutines interact through Queue, Pipeline.PushInput
// and the World Store.
type Sim struct {
	clock     *Clock
	pipeline  *Pipeline
	queue     *IntentQueue
	world     *world.Store
	hooks     Hooks
	observers []Observer
	stats     *TimingStats
	logger    *zap.Logger

	queueClosedLogged bool
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithClock replaces the default 60 Hz clock.
func WithClock(c *Clock) SimOption {
	return func(s *Sim) {
		s.clock = c
	}
}

// WithHooks installs the record/replay hooks.
func WithHooks(h Hooks) SimOption {
	return func(s *Sim) {
		if h != nil {
			s.hooks = h
		}
	}
}

// WithObservers appends tick observers, called in order.
func WithObservers(obs ...Observer) SimOption {
	return func(s *Sim) {
		s.observers = append(s.observers, obs...)
	}
}

// WithIntentQueue shares an existing queue with the sim.
func WithIntentQueue(q *IntentQueue) SimOption {
	return func(s *Sim) {
		s.queue = q
	}
}

// WithTimingStats enables periodic timing reports.
func WithTimingStats(stats *TimingStats) SimOption {
	return func(s *Sim) {
		s.stats = stats
	}
}

// WithLogger sets the sim logger.
func WithLogger(logger *zap.Logger) SimOption {
	return func(s *Sim) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSim wires a pipeline and a world store into a tick loop.
func NewSim(p *Pipeline, w *world.Store, opts ...SimOption) *Sim {
	s := &Sim{
		clock:    NewClock(DefaultTickRate),
		pipeline: p,
		queue:    NewIntentQueue(),
		world:    w,
		hooks:    NopHooks{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queue returns the cross-goroutine intent queue.
func (s *Sim) Queue() *IntentQueue { return s.queue }

// Pipeline returns the sim's pipeline.
func (s *Sim) Pipeline() *Pipeline { return s.pipeline }

// World returns the World Store the sim writes.
func (s *Sim) World() *world.Store { return s.world }

// Clock returns the sim clock.
func (s *Sim) Clock() *Clock { return s.clock }

// Done reports whether the hooks consider the run finished.
func (s *Sim) Done() bool { return s.hooks.Done() }

// Step runs one tick.
func (s *Sim) Step() *TickResult {
	start := time.Now()

	tick, dt := s.clock.Advance()
	res := &TickResult{Tick: tick, Delta: dt}

	s.hooks.Inject(tick, s.pipeline)

	res.Inputs = s.pipeline.TakeInputs(tick)
	s.hooks.CaptureInputs(tick, res.Inputs)
	s.pipeline.Convert(res.Inputs)

	s.drainQueue(tick)

	applyStart := time.Now()
	res.Apply = s.pipeline.ApplyAll()
	res.Timings.Apply = time.Since(applyStart)

	integrateStart := time.Now()
	s.pipeline.Integrate(dt)
	res.Timings.Integrate = time.Since(integrateStart)

	res.Snapshots = s.pipeline.Snapshots()
	res.Diff = s.world.Update(tick, res.Snapshots)

	s.hooks.Commit(res)
	for _, o := range s.observers {
		o.ObserveTick(res)
	}

	res.Timings.Total = time.Since(start)
	s.stats.Add(tick, res.Timings)
	return res
}

func (s *Sim) drainQueue(tick uint64) {
	intents, closed := s.queue.Drain()
	for _, in := range intents {
		s.pipeline.Submit(in)
	}
	if closed && !s.queueClosedLogged {
		s.queueClosedLogged = true
		s.logger.Warn("intent queue closed, simulation keeps advancing", zap.Uint64("tick", tick))
	}
}

// Run steps the simulation at the clock's rate until ctx ends or the hooks
// report completion. Returns nil on completion and ctx.Err() on
// cancellation.
func (s *Sim) Run(ctx context.Context) error {
	s.logger.Info("sim starting",
		zap.Float64("tick_rate", s.clock.TickRate()),
		zap.Uint64("tick", s.clock.Tick()),
	)

	ticker := time.NewTicker(s.clock.Interval())
	defer ticker.Stop()

	for {
		if s.hooks.Done() {
			s.logger.Info("sim stopping: run complete", zap.Uint64("tick", s.clock.Tick()))
			return nil
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sim stopping: context cancelled", zap.Uint64("tick", s.clock.Tick()))
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

// RunTicks steps headless, without waiting between ticks. It stops after n
// ticks, when the hooks report completion, or when ctx ends. n == 0 means
// no tick limit. Returns the number of ticks stepped.
func (s *Sim) RunTicks(ctx context.Context, n uint64) (uint64, error) {
	var stepped uint64
	for n == 0 || stepped < n {
		if s.hooks.Done() {
			return stepped, nil
		}
		if err := ctx.Err(); err != nil {
			return stepped, err
		}
		s.Step()
		stepped++
	}
	return stepped, nil
}
