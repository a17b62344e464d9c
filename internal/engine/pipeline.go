package engine

import (
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/schema"
)

// DefaultSize is the extent given to spawned entities that omit one.
var DefaultSize = ir.Vec3{1, 1, 1}

// body is the mutable component state behind one entity handle.
type body struct {
	pos  ir.Vec3
	vel  ir.Vec3
	size ir.Vec3
}

// Rejection records an intent that ApplyAll discarded.
type Rejection struct {
	Intent ir.Intent
	Err    error
}

// ApplyResult summarizes one Apply phase.
type ApplyResult struct {
	// Drained lists every intent taken off the lanes, in apply order,
	// including those that were rejected.
	Drained []ir.Intent

	// Rejected lists the intents that were discarded and why.
	Rejected []Rejection
}

// Pipeline owns the component state and turns intents into mutations.
//
// Intents travel in two FIFO lanes: the input lane (intents converted from
// input events) and the direct lane (intents submitted as such). ApplyAll
// drains the input lane first, then the direct lane. Within a lane there is
// no reordering by verb, so a Move on an entity spawned in the same tick
// only sees the entity if the Spawn came first.
//
// Thread-safety: PushInput may be called from any goroutine. Every other
// method belongs to the sim goroutine.
type Pipeline struct {
	validator *schema.Validator
	logger    *zap.Logger

	floorY     float32
	floorClamp bool

	nextID uint64
	bodies map[ir.EntityID]*body

	inputLane  []ir.Intent
	directLane []ir.Intent

	inputMu sync.Mutex
	inputs  []ir.InputEvent
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFloor enables the floor clamp at height y.
func WithFloor(y float32) PipelineOption {
	return func(p *Pipeline) {
		p.floorY = y
		p.floorClamp = true
	}
}

// WithoutFloor disables the floor clamp.
func WithoutFloor() PipelineOption {
	return func(p *Pipeline) {
		p.floorClamp = false
	}
}

// WithPipelineLogger sets the logger for rejected intents and tick fixes.
func WithPipelineLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates an empty pipeline. The floor clamp is on at y=0
// unless an option says otherwise.
func NewPipeline(v *schema.Validator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		validator:  v,
		logger:     zap.NewNop(),
		floorClamp: true,
		bodies:     make(map[ir.EntityID]*body),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit enqueues an intent on the direct lane for the next Apply phase.
func (p *Pipeline) Submit(in ir.Intent) {
	p.directLane = append(p.directLane, in)
}

// PushInput stages a raw input event for the next tick.
// Thread-safe: may be called from any goroutine.
func (p *Pipeline) PushInput(ev ir.InputEvent) {
	p.inputMu.Lock()
	defer p.inputMu.Unlock()
	p.inputs = append(p.inputs, ev)
}

// TakeInputs drains staged input events and stamps them with tick.
//
// Unstamped events (tick 0) are stamped silently. An event stamped with a
// different tick is logged and corrected; the processing tick always wins.
func (p *Pipeline) TakeInputs(tick uint64) []ir.InputEvent {
	p.inputMu.Lock()
	events := p.inputs
	p.inputs = nil
	p.inputMu.Unlock()

	for i := range events {
		switch events[i].Tick {
		case 0, tick:
		default:
			p.logger.Warn("input event tick mismatch, correcting",
				zap.Uint64("tick", tick),
				zap.Uint64("stamped", events[i].Tick),
				zap.String("action", events[i].Action),
			)
		}
		events[i].Tick = tick
	}
	return events
}

// Convert reduces input events to intents on the input lane.
func (p *Pipeline) Convert(events []ir.InputEvent) {
	for _, ev := range events {
		p.inputLane = append(p.inputLane, ev.Intent())
	}
}

// Pending returns the number of intents waiting for ApplyAll.
func (p *Pipeline) Pending() int {
	return len(p.inputLane) + len(p.directLane)
}

// ApplyAll drains both lanes and applies every intent in order.
//
// A malformed payload, an unknown verb, or a missing target entity discards
// that one intent with a warning; the remaining intents still apply.
func (p *Pipeline) ApplyAll() ApplyResult {
	drained := make([]ir.Intent, 0, p.Pending())
	drained = append(drained, p.inputLane...)
	drained = append(drained, p.directLane...)
	clear(p.inputLane)
	clear(p.directLane)
	p.inputLane = p.inputLane[:0]
	p.directLane = p.directLane[:0]

	res := ApplyResult{Drained: drained}
	for _, in := range drained {
		if err := p.apply(in); err != nil {
			p.logger.Warn("intent discarded",
				zap.String("verb", string(in.Verb)),
				zap.ByteString("args", in.Args),
				zap.Error(err),
			)
			res.Rejected = append(res.Rejected, Rejection{Intent: in, Err: err})
		}
	}
	return res
}

// apply dispatches one intent to its verb handler.
func (p *Pipeline) apply(in ir.Intent) error {
	switch in.Verb {
	case ir.VerbSpawn:
		args, err := schema.Decode[ir.SpawnArgs](p.validator, in.Verb, in.Args)
		if err != nil {
			return NewInvalidIntentError(in.Verb, err)
		}
		p.spawn(args)
		return nil

	case ir.VerbMove:
		args, err := schema.Decode[ir.MoveArgs](p.validator, in.Verb, in.Args)
		if err != nil {
			return NewInvalidIntentError(in.Verb, err)
		}
		b, ok := p.bodies[args.Entity]
		if !ok {
			return NewEntityNotFoundError(in.Verb, args.Entity)
		}
		b.vel = args.Vel
		return nil

	case ir.VerbApplyForce:
		args, err := schema.Decode[ir.ApplyForceArgs](p.validator, in.Verb, in.Args)
		if err != nil {
			return NewInvalidIntentError(in.Verb, err)
		}
		b, ok := p.bodies[args.Entity]
		if !ok {
			return NewEntityNotFoundError(in.Verb, args.Entity)
		}
		b.vel = b.vel.Add(args.Impulse)
		return nil

	case ir.VerbDespawn:
		args, err := schema.Decode[ir.DespawnArgs](p.validator, in.Verb, in.Args)
		if err != nil {
			return NewInvalidIntentError(in.Verb, err)
		}
		if _, ok := p.bodies[args.Entity]; !ok {
			return NewEntityNotFoundError(in.Verb, args.Entity)
		}
		delete(p.bodies, args.Entity)
		return nil

	default:
		return NewInvalidIntentError(in.Verb, p.validator.Validate(in.Verb, in.Args))
	}
}

func (p *Pipeline) spawn(args ir.SpawnArgs) ir.EntityID {
	p.nextID++
	id := ir.EntityID(p.nextID)

	b := &body{pos: args.Pos, size: DefaultSize}
	if args.Vel != nil {
		b.vel = *args.Vel
	}
	if args.Size != nil {
		b.size = *args.Size
	}
	p.bodies[id] = b

	p.logger.Debug("entity spawned", zap.Stringer("entity", id))
	return id
}

// Integrate advances every entity by vel*dt in handle order, then applies
// the floor clamp. Integration is skipped entirely when dt is 0; the clamp
// still runs.
func (p *Pipeline) Integrate(dt float32) {
	ids := p.sortedIDs()
	if dt != 0 {
		for _, id := range ids {
			b := p.bodies[id]
			b.pos = b.pos.Add(b.vel.Scale(dt))
		}
	}
	if !p.floorClamp {
		return
	}
	for _, id := range ids {
		b := p.bodies[id]
		if b.pos[1] < p.floorY {
			b.pos[1] = p.floorY
			if b.vel[1] < 0 {
				b.vel[1] = 0
			}
		}
	}
}

// Snapshots returns the live entities sorted by handle.
func (p *Pipeline) Snapshots() []ir.Snapshot {
	ids := p.sortedIDs()
	out := make([]ir.Snapshot, 0, len(ids))
	for _, id := range ids {
		b := p.bodies[id]
		out = append(out, ir.Snapshot{ID: id, Pos: b.pos, Vel: b.vel, Size: b.size})
	}
	return out
}

// entity returns the snapshot of one entity.
func (p *Pipeline) entity(id ir.EntityID) (ir.Snapshot, bool) {
	b, ok := p.bodies[id]
	if !ok {
		return ir.Snapshot{}, false
	}
	return ir.Snapshot{ID: id, Pos: b.pos, Vel: b.vel, Size: b.size}, true
}

// Len returns the number of live entities.
func (p *Pipeline) Len() int {
	return len(p.bodies)
}

func (p *Pipeline) sortedIDs() []ir.EntityID {
	return slices.Sorted(maps.Keys(p.bodies))
}
