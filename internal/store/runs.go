package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/anchor/internal/ir"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Run describes one simulation process.
type Run struct {
	Seq           int64
	ID            string
	Mode          string
	Recording     string
	TickRate      float64
	EngineVersion string
	FormatVersion string

	// Set by FinishRun; zero until then.
	Finished       bool
	FinalTick      uint64
	ReplayChecksum *ir.Checksum
}

// BeginRun inserts a run row. Seq is assigned by the database and
// returned.
func (s *Store) BeginRun(ctx context.Context, run Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, recording, tick_rate, engine_version, format_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Mode,
		run.Recording,
		run.TickRate,
		run.EngineVersion,
		run.FormatVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	return seq, nil
}

// FinishRun records how a run ended. replayChecksum is nil for runs that
// did not complete a replay.
func (s *Store) FinishRun(ctx context.Context, id string, finalTick uint64, replayChecksum *ir.Checksum) error {
	var sum sql.NullString
	if replayChecksum != nil {
		sum = sql.NullString{String: replayChecksum.String(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET final_tick = ?, replay_checksum = ? WHERE id = ?
	`, int64(finalTick), sum, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `seq, id, mode, recording, tick_rate, engine_version, format_version, final_tick, replay_checksum`

// ReadRun returns one run by id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns every run in creation order.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recent run of mode for recording, excluding
// the run named by exclude.
func (s *Store) LatestRun(ctx context.Context, mode, recording, exclude string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE recording = ? AND mode = ? AND id != ?
		ORDER BY seq DESC
		LIMIT 1
	`, recording, mode, exclude)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest %s run for %q: %w", mode, recording, ErrNotFound)
	}
	return run, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		finalTick sql.NullInt64
		checksum  sql.NullString
	)
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.Mode,
		&run.Recording,
		&run.TickRate,
		&run.EngineVersion,
		&run.FormatVersion,
		&finalTick,
		&checksum,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if finalTick.Valid {
		run.Finished = true
		run.FinalTick = uint64(finalTick.Int64)
	}
	if checksum.Valid {
		c, err := ir.ParseChecksum(checksum.String)
		if err != nil {
			return Run{}, fmt.Errorf("scan run %s: replay checksum: %w", run.ID, err)
		}
		run.ReplayChecksum = &c
	}
	return run, nil
}
