package stackless

import "errors"

var (
	// ErrCompleted is reported when resuming a generator that already ran
	// to completion or was closed.
	ErrCompleted = errors.New("generator already completed")

	// ErrPoisoned is reported when resuming a generator whose previous
	// resume failed.
	ErrPoisoned = errors.New("generator poisoned by a failed resume")

	// ErrRunning is reported when resuming a generator from within its own
	// body, or concurrently from another goroutine.
	ErrRunning = errors.New("generator already running")
)

// MisuseError is returned by Resume and Close when the caller drives a
// generator in a state that does not permit the operation. The record is
// left untouched.
type MisuseError struct {
	Op  string
	Err error
}

func (e *MisuseError) Error() string { return "stackless." + e.Op + ": " + e.Err.Error() }

func (e *MisuseError) Unwrap() error { return e.Err }
