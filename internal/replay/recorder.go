package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/roach88/anchor/internal/ir"
)

// Sink is durable append-only storage for recording lines.
// *os.File satisfies it.
type Sink interface {
	io.Writer
	Sync() error
}

// Recorder appends frames to a Sink, one JSON line per frame.
// Every write is followed by Sync, so a returned frame is on disk.
type Recorder struct {
	sink   Sink
	closer io.Closer
	ticks  uint64
	frames int
}

// NewRecorder wraps an existing sink. The caller keeps ownership of it.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// CreateRecorder creates (or truncates) the recording file at path.
func CreateRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create recording %s: %w", path, err)
	}
	return &Recorder{sink: f, closer: f}, nil
}

// WriteFrame encodes frame as one line and flushes it durably.
// Frames must arrive in non-decreasing tick order.
func (r *Recorder) WriteFrame(frame ir.RecordedFrame) error {
	if r.frames > 0 && frame.Tick < r.ticks {
		return fmt.Errorf("write frame %d: tick precedes last written tick %d", frame.Tick, r.ticks)
	}

	line, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", frame.Tick, err)
	}
	line = append(line, '\n')

	if _, err := r.sink.Write(line); err != nil {
		return fmt.Errorf("write frame %d: %w", frame.Tick, err)
	}
	if err := r.sink.Sync(); err != nil {
		return fmt.Errorf("sync frame %d: %w", frame.Tick, err)
	}

	r.ticks = frame.Tick
	r.frames++
	return nil
}

// Close closes the file if the recorder opened it.
func (r *Recorder) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
