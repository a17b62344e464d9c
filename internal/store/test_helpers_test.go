package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/anchor/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with minimal required fields.
func createTestRun(id, mode, recording string) Run {
	return Run{
		ID:            id,
		Mode:          mode,
		Recording:     recording,
		TickRate:      60,
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
	}
}

// writeChain writes one tick row per checksum, chaining bases.
func writeChain(t *testing.T, s *Store, runID string, checksums ...ir.Checksum) {
	t.Helper()
	base := ir.ZeroChecksum
	for i, c := range checksums {
		err := s.WriteTick(context.Background(), TickChecksum{
			RunID:    runID,
			Tick:     uint64(i + 1),
			Base:     base,
			Checksum: c,
			Entities: i,
		})
		if err != nil {
			t.Fatalf("WriteTick(%d) failed: %v", i+1, err)
		}
		base = c
	}
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
