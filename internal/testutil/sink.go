package testutil

import (
	"bytes"
	"errors"
	"sync"
)

// ErrSinkFull is the error FlakySink injects.
var ErrSinkFull = errors.New("disk full")

// MemorySink is an in-memory recording sink that counts syncs.
//
// Thread-safety: all methods are safe for concurrent use.
type MemorySink struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	syncs int
}

// Write appends p.
func (s *MemorySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// Sync records a flush.
func (s *MemorySink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs++
	return nil
}

// Bytes returns a copy of everything written.
func (s *MemorySink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

// Syncs returns the number of Sync calls.
func (s *MemorySink) Syncs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs
}

// FlakySink is a MemorySink whose FailOn-th write (1-based) fails with
// ErrSinkFull and writes nothing.
type FlakySink struct {
	MemorySink
	FailOn int
	writes int
}

// Write fails on the configured call and appends otherwise.
func (s *FlakySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.writes++
	fail := s.writes == s.FailOn
	s.mu.Unlock()
	if fail {
		return 0, ErrSinkFull
	}
	return s.MemorySink.Write(p)
}
