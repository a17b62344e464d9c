package replay

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/engine"
	"github.com/roach88/anchor/internal/ir"
)

// Result summarizes a finished (or stopped) run.
type Result struct {
	Mode           Mode
	FinalTick      uint64
	FramesWritten  int
	WriteFailures  int
	FramesLoaded   int
	FramesReplayed int
	// Positions is the id-ordered sum of every live entity's position at
	// the end of the run; ReplayChecksum digests it.
	Positions      ir.Vec3
	ReplayChecksum ir.Checksum
	Complete       bool
	// CompletedTick is the tick the replay completed on.
	CompletedTick uint64
}

// Controller drives recording and replay around the sim loop.
// It implements engine.Hooks; all hook methods run on the sim goroutine.
type Controller struct {
	mode   Mode
	logger *zap.Logger

	// Record
	recorder *Recorder
	captured []ir.InputEvent

	// Replay
	frames   []ir.RecordedFrame
	next     int
	lastTick uint64

	mu       sync.Mutex
	result   Result
	finished chan struct{}
	once     sync.Once
}

var _ engine.Hooks = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder supplies the recorder instead of creating the mode's file.
func WithRecorder(r *Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithFrames supplies replay frames instead of loading the mode's file.
func WithFrames(frames []ir.RecordedFrame) Option {
	return func(c *Controller) {
		c.frames = frames
	}
}

// NewController prepares the controller for mode.
//
// Record mode creates the recording file and Replay mode loads it; either
// failing is returned as an error, since the process cannot run in the
// requested mode.
func NewController(mode Mode, opts ...Option) (*Controller, error) {
	c := &Controller{
		mode:     mode,
		logger:   zap.NewNop(),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.result.Mode = mode

	switch mode.Kind {
	case KindNormal:
	case KindRecord:
		if c.recorder == nil {
			r, err := CreateRecorder(mode.Path)
			if err != nil {
				return nil, err
			}
			c.recorder = r
		}
	case KindReplay:
		if c.frames == nil {
			frames, err := LoadFile(mode.Path, c.logger)
			if err != nil {
				return nil, fmt.Errorf("load replay: %w", err)
			}
			c.frames = frames
		}
		if n := len(c.frames); n > 0 {
			c.lastTick = c.frames[n-1].Tick
		}
		c.result.FramesLoaded = len(c.frames)
		c.logger.Info("replay loaded",
			zap.String("path", mode.Path),
			zap.Int("frames", len(c.frames)),
			zap.Uint64("last_tick", c.lastTick),
		)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode.Kind)
	}
	return c, nil
}

// Mode returns the controller's mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Inject pushes every replay frame due on tick into the pipeline: its
// intents onto the direct lane, its input events through the input path.
func (c *Controller) Inject(tick uint64, p *engine.Pipeline) {
	if c.mode.Kind != KindReplay {
		return
	}
	for c.next < len(c.frames) && c.frames[c.next].Tick <= tick {
		frame := c.frames[c.next]
		c.next++
		for _, in := range frame.Intents {
			p.Submit(in)
		}
		for _, ev := range frame.InputEvents {
			p.PushInput(ev)
		}
		c.mu.Lock()
		c.result.FramesReplayed++
		c.mu.Unlock()
	}
}

// CaptureInputs keeps the tick's input events for the frame written in
// Commit.
func (c *Controller) CaptureInputs(tick uint64, events []ir.InputEvent) {
	if c.mode.Kind != KindRecord {
		return
	}
	c.captured = append(c.captured[:0], events...)
}

// Commit writes the tick's frame in Record mode and checks for the end of
// a replay.
func (c *Controller) Commit(res *engine.TickResult) {
	switch c.mode.Kind {
	case KindRecord:
		c.record(res)
	case KindReplay:
		c.checkComplete(res)
	}
	c.mu.Lock()
	c.result.FinalTick = res.Tick
	c.mu.Unlock()
}

func (c *Controller) record(res *engine.TickResult) {
	frame := BuildFrame(res.Tick, res.Apply.Drained, c.captured)
	c.captured = c.captured[:0]
	if frame.Empty() {
		return
	}

	if err := c.recorder.WriteFrame(frame); err != nil {
		c.logger.Error("frame write failed, skipping",
			zap.Uint64("tick", res.Tick),
			zap.Error(err),
		)
		c.mu.Lock()
		c.result.WriteFailures++
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.result.FramesWritten++
	c.mu.Unlock()
}

func (c *Controller) checkComplete(res *engine.TickResult) {
	if c.next < len(c.frames) || res.Tick < c.lastTick {
		return
	}
	c.once.Do(func() {
		sum := ir.SumPositions(res.Snapshots)
		checksum := ir.ReplayChecksum(res.Snapshots)

		c.mu.Lock()
		c.result.Positions = sum
		c.result.ReplayChecksum = checksum
		c.result.Complete = true
		c.result.CompletedTick = res.Tick
		c.mu.Unlock()

		c.logger.Info("replay complete",
			zap.Uint64("tick", res.Tick),
			zap.Int("frames", len(c.frames)),
			zap.Stringer("replay_checksum", checksum),
		)
		close(c.finished)
	})
}

// Done reports whether a replay has finished. Normal and Record runs never
// finish on their own.
func (c *Controller) Done() bool {
	select {
	case <-c.finished:
		return true
	default:
		return false
	}
}

// Finished is closed once, when a replay completes.
func (c *Controller) Finished() <-chan struct{} {
	return c.finished
}

// Result returns a copy of the run summary so far.
func (c *Controller) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Close releases the recording file.
func (c *Controller) Close() error {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.Close()
}
