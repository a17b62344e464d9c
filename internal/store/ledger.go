package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/engine"
	"github.com/roach88/anchor/internal/ir"
)

// Ledger writes one checksum row per tick for a run and, for replay runs,
// checks every tick against the reference record run.
//
// Ledger implements engine.Observer and runs on the sim goroutine. A failed
// row write is logged and skipped; the simulation never stops for the
// ledger.
type Ledger struct {
	store  *Store
	run    Run
	logger *zap.Logger
	// ctx bounds the ledger's writes; ObserveTick has no context of its own.
	ctx context.Context

	reference   map[uint64]ir.Checksum
	referenceID string
	desync      *Divergence
	failures    int
}

var _ engine.Observer = (*Ledger)(nil)

// StartLedger registers run and, when it is a replay, loads the latest
// record run of the same recording as the reference chain.
func StartLedger(ctx context.Context, s *Store, run Run, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	seq, err := s.BeginRun(ctx, run)
	if err != nil {
		return nil, err
	}
	run.Seq = seq

	l := &Ledger{store: s, run: run, logger: logger, ctx: ctx}
	if run.Mode != "replay" {
		return l, nil
	}

	ref, err := s.LatestRun(ctx, "record", run.Recording, run.ID)
	if errors.Is(err, ErrNotFound) {
		logger.Info("no record run in ledger, desync detection off",
			zap.String("recording", run.Recording),
		)
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("start ledger: %w", err)
	}

	ticks, err := s.ReadTicks(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("start ledger: %w", err)
	}
	l.referenceID = ref.ID
	l.reference = make(map[uint64]ir.Checksum, len(ticks))
	for _, tc := range ticks {
		l.reference[tc.Tick] = tc.Checksum
	}
	logger.Info("replay reference loaded",
		zap.String("reference_run", ref.ID),
		zap.Int("ticks", len(ticks)),
	)
	return l, nil
}

// ObserveTick implements engine.Observer.
func (l *Ledger) ObserveTick(res *engine.TickResult) {
	err := l.store.WriteTick(l.ctx, TickChecksum{
		RunID:    l.run.ID,
		Tick:     res.Tick,
		Base:     res.Diff.Base,
		Checksum: res.Diff.Checksum,
		Entities: len(res.Snapshots),
	})
	if err != nil {
		l.failures++
		l.logger.Error("ledger write failed", zap.Uint64("tick", res.Tick), zap.Error(err))
	}

	if l.desync != nil || l.reference == nil {
		return
	}
	want, ok := l.reference[res.Tick]
	if !ok || want == res.Diff.Checksum {
		return
	}
	l.desync = &Divergence{Tick: res.Tick, Reference: want, Actual: res.Diff.Checksum}
	l.logger.Error("replay desync",
		zap.Uint64("tick", res.Tick),
		zap.String("reference_run", l.referenceID),
		zap.Stringer("expected", want),
		zap.Stringer("actual", res.Diff.Checksum),
	)
}

// Finish records the run's final tick and replay checksum.
func (l *Ledger) Finish(ctx context.Context, finalTick uint64, replayChecksum *ir.Checksum) error {
	return l.store.FinishRun(ctx, l.run.ID, finalTick, replayChecksum)
}

// Run returns the run this ledger writes.
func (l *Ledger) Run() Run { return l.run }

// ReferenceRun returns the id of the run being compared against, if any.
func (l *Ledger) ReferenceRun() string { return l.referenceID }

// Desync returns the first divergence seen, or nil.
func (l *Ledger) Desync() *Divergence { return l.desync }

// WriteFailures returns the number of rows that could not be written.
func (l *Ledger) WriteFailures() int { return l.failures }
