// Package mock implements a small ordered-expectation harness shared by
// git/gitmock and forge/ghmock. A test registers the calls it expects in
// order (or marks a run of them as order-independent), the test double
// consults the harness on every call, and Verify fails the test if
// anything expected never happened.
package mock

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

// Operation names one git or forge call. The concrete test doubles
// define their own constants (see git/gitmock and forge/ghmock); the
// harness itself just compares them as opaque strings.
type Operation string

// Expectation is one recorded call: what operation, what input it must
// match, and what it should return.
type Expectation struct {
	Op       Operation
	Input    any
	Output   any
	Err      error
	// Unordered marks this expectation as satisfiable in any order
	// relative to other Unordered expectations immediately adjacent to
	// it in registration order. It exists because the engine's bounded
	// worker pool dispatches independent PR operations concurrently.
	Unordered bool
}

// Call is one operation the code under test actually issued, recorded
// so a test can assert on arguments after the fact.
type Call struct {
	Op    Operation
	Input any
}

// Expectations is the ordered queue of expected calls for a single test.
type Expectations struct {
	t       *testing.T
	mu      sync.Mutex
	pending []Expectation
	calls   []Call
}

// NewExpectations constructs an empty queue bound to t, so that any
// failure (mismatched operation, leftover expectations) fails that test.
func NewExpectations(t *testing.T) *Expectations {
	return &Expectations{t: t}
}

// Expect appends an expectation to the queue.
func (e *Expectations) Expect(exp Expectation) {
	e.pending = append(e.pending, exp)
}

// Next consumes and returns the next expectation matching op. If the
// head of the queue is a run of Unordered expectations, it matches any
// of them by Op, so concurrent callers can each claim one without
// caring which order they arrive in. It fails the test immediately if
// the queue is empty or the head does not match.
func (e *Expectations) Next(op Operation, input any) Expectation {
	e.t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: op, Input: input})

	if len(e.pending) == 0 {
		e.t.Fatalf("unexpected call to %s: no expectations remain (input=%+v)", op, input)
		return Expectation{}
	}

	if e.pending[0].Unordered {
		for i, exp := range e.pending {
			if !exp.Unordered {
				break
			}
			if exp.Op == op {
				e.pending = append(e.pending[:i], e.pending[i+1:]...)
				return exp
			}
		}
		e.t.Fatalf("unexpected call to %s: no unordered expectation matches (input=%+v)", op, input)
		return Expectation{}
	}

	exp := e.pending[0]
	if exp.Op != op {
		e.t.Fatalf("expected call to %s, got %s (input=%+v)", exp.Op, op, input)
		return Expectation{}
	}
	if exp.Input != nil && !reflect.DeepEqual(exp.Input, input) {
		e.t.Fatalf("call to %s: expected input %+v, got %+v", op, exp.Input, input)
		return Expectation{}
	}
	e.pending = e.pending[1:]
	return exp
}

// Calls returns every recorded call for op, in issue order.
func (e *Expectations) Calls(op Operation) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Call
	for _, c := range e.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Verify fails the test if any expectations were never consumed.
func (e *Expectations) Verify() {
	e.t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) > 0 {
		ops := make([]string, 0, len(e.pending))
		for _, exp := range e.pending {
			ops = append(ops, string(exp.Op))
		}
		e.t.Fatalf("%d expectation(s) never satisfied: %v", len(e.pending), ops)
	}
}

func (e Expectation) String() string {
	return fmt.Sprintf("%s(%+v)", e.Op, e.Input)
}
