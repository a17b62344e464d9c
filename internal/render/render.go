// Package render is the visual host capability. The simulation never
// depends on a backend; it hands read-only frames to whichever one the
// configuration selected.
package render

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/engine"
	"github.com/roach88/anchor/internal/ir"
)

// Backend names.
const (
	BackendNone = "none"
	BackendMock = "mock"
)

// Frame is one tick's view of the world.
type Frame struct {
	Tick     uint64
	Checksum ir.Checksum
	Entities []ir.Snapshot
}

// Output is what a backend produced for a frame.
type Output struct {
	Backend  string `json:"backend"`
	Tick     uint64 `json:"tick"`
	Entities int    `json:"entities"`
	Summary  string `json:"summary"`
}

// Backend draws frames.
type Backend interface {
	Name() string
	Render(f Frame) (Output, error)
}

// New selects a backend by name. BackendNone yields a nil Backend.
func New(name string) (Backend, error) {
	switch name {
	case BackendNone, "":
		return nil, nil
	case BackendMock:
		return NewMock(0), nil
	default:
		return nil, fmt.Errorf("unsupported render backend %q", name)
	}
}

// Mock summarises each frame as an entity count and keeps the most
// recent outputs.
type Mock struct {
	mu      sync.Mutex
	keep    int
	outputs []Output
}

// NewMock keeps up to keep outputs; keep <= 0 keeps 64.
func NewMock(keep int) *Mock {
	if keep <= 0 {
		keep = 64
	}
	return &Mock{keep: keep}
}

// Name implements Backend.
func (m *Mock) Name() string { return BackendMock }

// Render implements Backend.
func (m *Mock) Render(f Frame) (Output, error) {
	out := Output{
		Backend:  BackendMock,
		Tick:     f.Tick,
		Entities: len(f.Entities),
		Summary:  fmt.Sprintf("tick %d: %d entities (%s)", f.Tick, len(f.Entities), f.Checksum),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, out)
	if len(m.outputs) > m.keep {
		m.outputs = m.outputs[len(m.outputs)-m.keep:]
	}
	return out, nil
}

// Outputs returns a copy of the retained outputs, oldest first.
func (m *Mock) Outputs() []Output {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Output(nil), m.outputs...)
}

// Observer feeds a backend every N ticks.
type Observer struct {
	backend Backend
	every   uint64
	logger  *zap.Logger
}

// NewObserver wraps backend. every == 0 is treated as 1.
func NewObserver(backend Backend, every uint64, logger *zap.Logger) *Observer {
	if every == 0 {
		every = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{backend: backend, every: every, logger: logger}
}

// ObserveTick implements engine.Observer. Render errors are logged; they
// never stop the simulation.
func (o *Observer) ObserveTick(res *engine.TickResult) {
	if o.backend == nil || res.Tick%o.every != 0 {
		return
	}
	out, err := o.backend.Render(Frame{
		Tick:     res.Tick,
		Checksum: res.Diff.Checksum,
		Entities: res.Snapshots,
	})
	if err != nil {
		o.logger.Warn("render failed",
			zap.String("backend", o.backend.Name()),
			zap.Uint64("tick", res.Tick),
			zap.Error(err),
		)
		return
	}
	o.logger.Debug("frame rendered",
		zap.String("backend", out.Backend),
		zap.Uint64("tick", out.Tick),
		zap.Int("entities", out.Entities),
	)
}
