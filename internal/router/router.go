// Package router turns short text commands into input events.
//
// Grammar (case and spacing are normalized first):
//
//	spawn [cube] [at <x> <y> <z>]
//	move <id> <up|down|left|right|forward|back>
//	push <id> <direction>
//	delete <id>            (alias: despawn)
//
// Move sets the velocity to direction*speed; push adds it as an impulse.
package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/anchor/internal/ir"
)

// ErrCodeUnknownCommand is the wire code for text that matches no command.
const ErrCodeUnknownCommand = "UNKNOWN_COMMAND"

// CommandError rejects a text command.
type CommandError struct {
	Text    string
	Message string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s (text=%q)", ErrCodeUnknownCommand, e.Message, e.Text)
}

// IsUnknownCommand returns true if err is a CommandError.
func IsUnknownCommand(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

var directions = map[string]ir.Vec3{
	"up":      {0, 1, 0},
	"down":    {0, -1, 0},
	"left":    {-1, 0, 0},
	"right":   {1, 0, 0},
	"forward": {0, 0, 1},
	"back":    {0, 0, -1},
}

// Router routes text commands. Safe for concurrent use.
type Router struct {
	speed  float32
	logger *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithSpeed scales direction vectors. Non-positive values are ignored.
func WithSpeed(speed float32) Option {
	return func(r *Router) {
		if speed > 0 {
			r.speed = speed
		}
	}
}

// WithLogger sets the router's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Router with unit speed.
func New(opts ...Option) *Router {
	r := &Router{
		speed:  1,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize folds case, applies NFC and collapses whitespace.
func (r *Router) Normalize(text string) string {
	// cases.Caser keeps state between calls; a fresh one keeps Normalize
	// safe for concurrent callers.
	lower := cases.Lower(language.Und)
	return strings.Join(strings.Fields(lower.String(norm.NFC.String(text))), " ")
}

// Route parses text into unstamped input events.
func (r *Router) Route(text string) ([]ir.InputEvent, error) {
	normalized := r.Normalize(text)
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return nil, &CommandError{Text: text, Message: "empty command"}
	}

	var (
		ev  ir.InputEvent
		err error
	)
	switch fields[0] {
	case "spawn":
		ev, err = r.spawn(fields[1:])
	case "move":
		ev, err = r.directed(ir.VerbMove, fields[1:])
	case "push":
		ev, err = r.directed(ir.VerbApplyForce, fields[1:])
	case "delete", "despawn":
		ev, err = r.despawn(fields[1:])
	default:
		err = fmt.Errorf("unknown command %q", fields[0])
	}
	if err != nil {
		r.logger.Debug("command rejected", zap.String("text", normalized), zap.Error(err))
		return nil, &CommandError{Text: text, Message: err.Error()}
	}

	r.logger.Debug("command routed",
		zap.String("text", normalized),
		zap.String("action", ev.Action),
	)
	return []ir.InputEvent{ev}, nil
}

func (r *Router) spawn(args []string) (ir.InputEvent, error) {
	if len(args) > 0 && args[0] == "cube" {
		args = args[1:]
	}
	var pos ir.Vec3
	switch {
	case len(args) == 0:
	case len(args) == 4 && args[0] == "at":
		for i, s := range args[1:] {
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return ir.InputEvent{}, fmt.Errorf("bad coordinate %q", s)
			}
			pos[i] = float32(f)
		}
	default:
		return ir.InputEvent{}, errors.New("usage: spawn [cube] [at x y z]")
	}
	return event(ir.VerbSpawn, ir.SpawnArgs{Pos: pos})
}

func (r *Router) directed(verb ir.Verb, args []string) (ir.InputEvent, error) {
	if len(args) != 2 {
		return ir.InputEvent{}, fmt.Errorf("usage: %s <id> <direction>", strings.ToLower(commandName(verb)))
	}
	id, err := ir.ParseEntityID(args[0])
	if err != nil {
		return ir.InputEvent{}, fmt.Errorf("bad entity %q", args[0])
	}
	dir, ok := directions[args[1]]
	if !ok {
		return ir.InputEvent{}, fmt.Errorf("unknown direction %q", args[1])
	}
	v := dir.Scale(r.speed)
	if verb == ir.VerbMove {
		return event(verb, ir.MoveArgs{Entity: id, Vel: v})
	}
	return event(verb, ir.ApplyForceArgs{Entity: id, Impulse: v})
}

func (r *Router) despawn(args []string) (ir.InputEvent, error) {
	if len(args) != 1 {
		return ir.InputEvent{}, errors.New("usage: delete <id>")
	}
	id, err := ir.ParseEntityID(args[0])
	if err != nil {
		return ir.InputEvent{}, fmt.Errorf("bad entity %q", args[0])
	}
	return event(ir.VerbDespawn, ir.DespawnArgs{Entity: id})
}

func commandName(verb ir.Verb) string {
	if verb == ir.VerbApplyForce {
		return "push"
	}
	return string(verb)
}

func event(verb ir.Verb, args any) (ir.InputEvent, error) {
	in, err := ir.NewIntent(verb, args)
	if err != nil {
		return ir.InputEvent{}, err
	}
	return ir.InputEvent{Action: string(in.Verb), Data: in.Args}, nil
}
