// Package plumbing holds the shared vocabulary of the side-effecting
// layers: the Result tree returned by every primitive and task, generated
// passwords, subprocess execution and host guards.
package plumbing

import (
	"fmt"
	"runtime"
	"strings"
)

// State describes what a primitive did to the outside world.
type State int

const (
	// StateUnchanged means the desired state was already in place.
	StateUnchanged State = iota
	// StateSuccess means an existing object was modified.
	StateSuccess
	// StateCreated means a new object was brought into existence.
	StateCreated
)

func (s State) String() string {
	switch s {
	case StateUnchanged:
		return "unchanged"
	case StateSuccess:
		return "success"
	case StateCreated:
		return "created"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxState returns the higher of two states under unchanged < success < created.
func maxState(a, b State) State {
	if b > a {
		return b
	}
	return a
}

// Result is the outcome of a primitive or task. Composite tasks carry
// their children in Parts; unless a state was set explicitly, the
// effective state is the maximum of the parts' states. A Result must not
// be mutated after it has been returned to a caller.
type Result struct {
	Caller string
	Value  any
	Parts  []*Result

	state    State
	stateSet bool
}

// NewResult returns a leaf result with an explicit state, named after the
// calling function.
func NewResult(state State) *Result {
	return &Result{Caller: callerName(2), state: state, stateSet: true}
}

// NewResultValue returns a leaf result carrying a value.
func NewResultValue(state State, value any) *Result {
	return &Result{Caller: callerName(2), state: state, stateSet: true, Value: value}
}

// State reports the effective state: the explicit one if set, otherwise
// the maximum over Parts (unchanged for an empty composite).
func (r *Result) State() State {
	if r.stateSet {
		return r.state
	}
	state := StateUnchanged
	for _, part := range r.Parts {
		state = maxState(state, part.State())
	}
	return state
}

// SetState fixes the state explicitly, overriding part aggregation.
func (r *Result) SetState(state State) {
	r.state = state
	r.stateSet = true
}

// Changed reports whether anything was done, i.e. the state is not
// unchanged.
func (r *Result) Changed() bool {
	return r.State() != StateUnchanged
}

// Extend appends a child result.
func (r *Result) Extend(part *Result) {
	if part != nil {
		r.Parts = append(r.Parts, part)
	}
}

// String renders the result tree, one node per line, children indented
// two spaces per level.
func (r *Result) String() string {
	var sb strings.Builder
	r.render(&sb, 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

func (r *Result) render(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	caller := r.Caller
	if caller == "" {
		caller = "result"
	}
	fmt.Fprintf(sb, "%s: %s", caller, r.State())
	if r.Value != nil {
		fmt.Fprintf(sb, " %v", r.Value)
	}
	sb.WriteByte('\n')
	for _, part := range r.Parts {
		part.render(sb, depth+1)
	}
}

// Builder accumulates the child results of a composite task. Each Step
// records the child and its error; once a step has failed, later steps
// are skipped and Done reports the first error. This mirrors early return
// without threading an error check through every line of a workflow.
type Builder struct {
	result *Result
	err    error
}

// NewBuilder starts a composite result named after the calling function.
func NewBuilder() *Builder {
	return &Builder{result: &Result{Caller: callerName(2)}}
}

// Step records one child outcome. It always returns a usable (possibly
// empty) Result so callers can inspect .State() without nil checks.
func (b *Builder) Step(part *Result, err error) *Result {
	if b.err != nil {
		if part == nil {
			part = &Result{}
		}
		return part
	}
	if err != nil {
		b.err = err
		if part == nil {
			part = &Result{}
		}
		return part
	}
	b.result.Extend(part)
	if part == nil {
		part = &Result{}
	}
	return part
}

// Skip reports whether a previous step failed and the workflow should
// stop contributing further work.
func (b *Builder) Skip() bool {
	return b.err != nil
}

// Fail aborts the composite with an error produced by the task itself.
func (b *Builder) Fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// SetState fixes the composite's state, overriding aggregation.
func (b *Builder) SetState(state State) {
	b.result.SetState(state)
}

// Done finishes the composite, attaching the final value.
func (b *Builder) Done(value any) (*Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.result.Value = value
	return b.result, nil
}

// callerName resolves the short, package-qualified name of the function
// `skip` frames up the stack, e.g. "mysql.EnsureUser".
func callerName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
