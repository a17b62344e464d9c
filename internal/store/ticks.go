package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/anchor/internal/ir"
)

// TickChecksum is one ledger row: the chain link a tick produced.
type TickChecksum struct {
	RunID    string
	Tick     uint64
	Base     ir.Checksum
	Checksum ir.Checksum
	Entities int
}

// WriteTick inserts a tick row.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting a tick is ignored.
// The run must exist (foreign key constraint).
func (s *Store) WriteTick(ctx context.Context, tc TickChecksum) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tick_checksums (run_id, tick, base, checksum, entities)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, tick) DO NOTHING
	`,
		tc.RunID,
		int64(tc.Tick),
		tc.Base.String(),
		tc.Checksum.String(),
		tc.Entities,
	)
	if err != nil {
		return fmt.Errorf("write tick %d of run %s: %w", tc.Tick, tc.RunID, err)
	}
	return nil
}

// ReadTicks returns a run's rows ordered by tick.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadTicks(ctx context.Context, runID string) ([]TickChecksum, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, tick, base, checksum, entities
		FROM tick_checksums
		WHERE run_id = ?
		ORDER BY tick ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []TickChecksum{}
	for rows.Next() {
		var (
			tc             TickChecksum
			tick           int64
			base, checksum string
		)
		if err := rows.Scan(&tc.RunID, &tick, &base, &checksum, &tc.Entities); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tc.Tick = uint64(tick)
		if tc.Base, err = ir.ParseChecksum(base); err != nil {
			return nil, fmt.Errorf("scan tick %d: base: %w", tc.Tick, err)
		}
		if tc.Checksum, err = ir.ParseChecksum(checksum); err != nil {
			return nil, fmt.Errorf("scan tick %d: checksum: %w", tc.Tick, err)
		}
		ticks = append(ticks, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// Divergence is the first tick at which two runs' checksums differ.
type Divergence struct {
	Tick      uint64
	Reference ir.Checksum
	Actual    ir.Checksum
}

// FirstDivergence compares two runs tick by tick and returns the first
// tick present in both whose checksums differ, or nil if none does.
func (s *Store) FirstDivergence(ctx context.Context, referenceRun, actualRun string) (*Divergence, error) {
	var (
		tick        int64
		ref, actual string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT a.tick, a.checksum, b.checksum
		FROM tick_checksums a
		JOIN tick_checksums b ON b.tick = a.tick AND b.run_id = ?
		WHERE a.run_id = ? AND a.checksum != b.checksum
		ORDER BY a.tick ASC
		LIMIT 1
	`, actualRun, referenceRun)
	if err := row.Scan(&tick, &ref, &actual); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("compare runs: %w", err)
	}

	d := &Divergence{Tick: uint64(tick)}
	var err error
	if d.Reference, err = ir.ParseChecksum(ref); err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	if d.Actual, err = ir.ParseChecksum(actual); err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	return d, nil
}
