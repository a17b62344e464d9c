package engine

import (
	"time"

	"go.uber.org/zap"
)

// TickTimings holds the wall-clock cost of one tick's phases.
// Timings are observational only; nothing in the simulation reads them.
type TickTimings struct {
	Apply     time.Duration
	Integrate time.Duration
	Total     time.Duration
}

// TimingStats accumulates tick timings and logs averages every N ticks.
type TimingStats struct {
	every  uint64
	logger *zap.Logger

	count     uint64
	apply     time.Duration
	integrate time.Duration
	total     time.Duration
	worst     time.Duration
}

// NewTimingStats reports every `every` ticks. Zero disables reporting.
func NewTimingStats(every uint64, logger *zap.Logger) *TimingStats {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimingStats{every: every, logger: logger}
}

// Add records one tick. It returns true when a report was logged.
func (s *TimingStats) Add(tick uint64, t TickTimings) bool {
	if s == nil || s.every == 0 {
		return false
	}
	s.count++
	s.apply += t.Apply
	s.integrate += t.Integrate
	s.total += t.Total
	s.worst = max(s.worst, t.Total)

	if s.count < s.every {
		return false
	}

	n := time.Duration(s.count)
	s.logger.Info("tick timings",
		zap.Uint64("tick", tick),
		zap.Uint64("ticks", s.count),
		zap.Duration("avg_apply", s.apply/n),
		zap.Duration("avg_integrate", s.integrate/n),
		zap.Duration("avg_total", s.total/n),
		zap.Duration("worst_total", s.worst),
	)
	*s = TimingStats{every: s.every, logger: s.logger}
	return true
}
