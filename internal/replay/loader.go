package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/ir"
)

// maxLineSize bounds a single recording line.
const maxLineSize = 16 << 20

// LoadError reports a recording line that could not be decoded.
// Any LoadError aborts the whole load.
type LoadError struct {
	Path string
	Line int
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: malformed frame: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: malformed frame: %v", e.Line, e.Err)
}

// Unwrap returns the decode error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadFile opens path and reads every frame from it.
func LoadFile(path string, logger *zap.Logger) ([]ir.RecordedFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording %s: %w", path, err)
	}
	defer f.Close()

	frames, err := LoadFrames(f, logger)
	var le *LoadError
	if errors.As(err, &le) {
		le.Path = path
	}
	return frames, err
}

// LoadFrames reads newline-delimited frames in file order.
//
// Blank lines are skipped. A frame whose tick is lower than the previous
// frame's is kept in place and logged as a warning. Any line that is not
// a well-formed frame fails the whole load.
func LoadFrames(r io.Reader, logger *zap.Logger) ([]ir.RecordedFrame, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	frames := []ir.RecordedFrame{}
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		frame, err := decodeFrame(raw)
		if err != nil {
			return nil, &LoadError{Line: line, Err: err}
		}

		if n := len(frames); n > 0 && frame.Tick < frames[n-1].Tick {
			logger.Warn("recording tick decreased, keeping file order",
				zap.Int("line", line),
				zap.Uint64("tick", frame.Tick),
				zap.Uint64("previous_tick", frames[n-1].Tick),
			)
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Line: line + 1, Err: err}
	}
	return frames, nil
}

func decodeFrame(raw []byte) (ir.RecordedFrame, error) {
	var frame ir.RecordedFrame
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&frame); err != nil {
		return ir.RecordedFrame{}, err
	}
	if dec.More() {
		return ir.RecordedFrame{}, fmt.Errorf("trailing data after frame")
	}
	for i, in := range frame.Intents {
		if in.Verb == "" {
			return ir.RecordedFrame{}, fmt.Errorf("intent %d has no verb", i)
		}
	}
	for i, ev := range frame.InputEvents {
		if ev.Action == "" {
			return ir.RecordedFrame{}, fmt.Errorf("input event %d has no action", i)
		}
	}
	return frame, nil
}
