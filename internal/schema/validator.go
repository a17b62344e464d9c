// Package schema validates intent payloads against closed per-verb schemas.
//
// Schemas are written in CUE (intents.cue) and compiled once per Validator.
// A payload is admitted only if unifying it with its verb's definition
// yields a concrete value: unknown fields, wrong types and out of range
// numbers are all rejected. The same shapes are exported as JSON Schema for
// clients through Schemas.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/anchor/internal/ir"
)

//go:embed intents.cue
var intentsCUE string

// Validator checks intent payloads.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so every
// call is serialized on an internal mutex. The service goroutines and the
// sim goroutine share one Validator.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[ir.Verb]cue.Value
}

// New compiles the verb schemas.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(intentsCUE, cue.Filename("intents.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile intent schemas: %w", formatCUEError(err))
	}

	defs := make(map[ir.Verb]cue.Value, len(ir.Verbs))
	for _, verb := range ir.Verbs {
		def := root.LookupPath(cue.ParsePath("#" + string(verb)))
		if !def.Exists() {
			return nil, fmt.Errorf("compile intent schemas: missing definition #%s", verb)
		}
		defs[verb] = def
	}

	return &Validator{ctx: ctx, defs: defs}, nil
}

// MustNew is like New but panics on error.
// The schemas are embedded, so failure means a broken build.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks raw against the schema for verb.
// Returns an *IntentError with ErrCodeUnknownVerb or ErrCodeInvalidArguments.
func (v *Validator) Validate(verb ir.Verb, raw json.RawMessage) error {
	if !verb.Known() {
		return unknownVerb(verb)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return invalidArguments(verb, "missing args")
	}

	expr, err := cuejson.Extract(string(verb)+".json", raw)
	if err != nil {
		return invalidArguments(verb, fmt.Sprintf("malformed JSON: %v", err))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.ctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return invalidArguments(verb, formatCUEError(err).Error())
	}
	unified := v.defs[verb].Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return invalidArguments(verb, formatCUEError(err).Error())
	}
	return nil
}

// ValidateIntent validates an intent envelope.
func (v *Validator) ValidateIntent(in ir.Intent) error {
	return v.Validate(in.Verb, in.Args)
}

// Decode validates raw and decodes it into T.
func Decode[T any](v *Validator, verb ir.Verb, raw json.RawMessage) (T, error) {
	var out T
	if err := v.Validate(verb, raw); err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, invalidArguments(verb, err.Error())
	}
	return out, nil
}

// formatCUEError keeps the first error of a CUE error list, which carries
// the most specific message.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errs[0]
}
