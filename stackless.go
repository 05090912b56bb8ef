// Package stackless contains the runtime contract of generators compiled
// into stackless state machines.
//
// A compiled generator is a Resumable: a single state record holding a
// discriminant (which suspension point the generator is parked at) and the
// slots of the bindings that are live at that point. The caller drives it
// with Resume until a Step reports Done, or abandons it with Close, which runs
// the cleanups that are pending at the current suspension point.
package stackless

import (
	"fmt"
	"strconv"
)

// Discriminant identifies the suspension point a generator is parked at.
// Suspension points are numbered from zero in discovery order; negative
// values are reserved for the sentinels below.
type Discriminant int

const (
	// Unresumed is the discriminant of a generator that was constructed but
	// never resumed.
	Unresumed Discriminant = -1

	// Returned is the discriminant of a generator that completed, was closed,
	// or was poisoned (see Record.Poisoned).
	Returned Discriminant = -2
)

func (d Discriminant) String() string {
	switch d {
	case Unresumed:
		return "unresumed"
	case Returned:
		return "returned"
	default:
		return strconv.Itoa(int(d))
	}
}

// Unit is the final value of generators that complete without returning a
// value.
type Unit struct{}

// Step is the outcome of a successful call to Resume.
type Step struct {
	// Done is true when the generator completed; Value is then the final
	// value. Otherwise Value is the value yielded at a suspension point.
	Done  bool
	Value any
}

// Yielded constructs a Step for a value produced at a suspension point.
func Yielded(v any) Step { return Step{Value: v} }

// Done constructs the final Step of a generator.
func Done(v any) Step { return Step{Done: true, Value: v} }

func (s Step) String() string {
	if s.Done {
		return fmt.Sprintf("Done(%v)", s.Value)
	}
	return fmt.Sprintf("Yielded(%v)", s.Value)
}

// Status is the lifecycle state of a generator.
type Status int

const (
	// StatusUnresumed is the state of a generator that never ran.
	StatusUnresumed Status = iota
	// StatusSuspended is the state of a generator parked at a suspension
	// point.
	StatusSuspended
	// StatusRunning is the state of a generator during Resume or Close.
	StatusRunning
	// StatusReturned is the state of a generator that completed or was
	// closed.
	StatusReturned
	// StatusPoisoned is the state of a generator whose body panicked. It
	// cannot be resumed again.
	StatusPoisoned
)

var statusNames = [...]string{
	StatusUnresumed: "unresumed",
	StatusSuspended: "suspended",
	StatusRunning:   "running",
	StatusReturned:  "returned",
	StatusPoisoned:  "poisoned",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Resumable is implemented by compiled generators.
//
// Resume runs the generator until its next suspension point or until it
// completes. Resuming a generator that completed, was poisoned, or is
// currently running returns a *MisuseError and does not run any operation.
// A panic raised by the body poisons the generator and propagates unchanged.
//
// Close abandons the generator, running the destructors and deferred
// cleanups that are pending at its current suspension point, in reverse
// construction order. Closing a completed or poisoned generator is a no-op.
type Resumable interface {
	Resume() (Step, error)
	Close() error
	Status() Status
}

// Yield marks a suspension point in a Go function compiled by genc.
//
// The function panics when called at run time: only the state machine
// generated from the function body may suspend.
func Yield(v any) {
	panic("stackless.Yield: not called from a compiled generator")
}
