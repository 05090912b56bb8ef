package stackless

import "iter"

// Run drives a generator to completion, calling f for each value that it
// yields, and returns the final value.
//
// If f returns an error, or panics, the generator is closed before Run
// returns.
func Run(r Resumable, f func(any) error) (result any, err error) {
	// The generator is run to completion, but f might fail or panic in which
	// case we don't want to leave it parked at a suspension point holding
	// resources.
	defer func() {
		switch r.Status() {
		case StatusUnresumed, StatusSuspended:
			if cerr := r.Close(); err == nil {
				err = cerr
			}
		}
	}()

	for {
		s, err := r.Resume()
		if err != nil {
			return nil, err
		}
		if s.Done {
			return s.Value, nil
		}
		if err := f(s.Value); err != nil {
			return nil, err
		}
	}
}

// Collect drives a generator to completion and returns the values it yielded
// along with its final value.
func Collect(r Resumable) (values []any, result any, err error) {
	result, err = Run(r, func(v any) error {
		values = append(values, v)
		return nil
	})
	return values, result, err
}

// Seq adapts a generator into a lazy sequence of the values it yields. Each
// step of the sequence is one call to Resume, and the sequence ends when the
// generator completes; its final value is discarded. When the consumer stops
// early the generator is closed.
//
// A generator can be iterated only once. The sequence panics with the
// *MisuseError returned by Resume or Close, for example when ranging over a
// generator that already completed or was poisoned.
func Seq(r Resumable) iter.Seq[any] {
	return func(yield func(any) bool) {
		for {
			s, err := r.Resume()
			if err != nil {
				panic(err)
			}
			if s.Done {
				return
			}
			if !yield(s.Value) {
				if err := r.Close(); err != nil {
					panic(err)
				}
				return
			}
		}
	}
}

// Values is like Seq but asserts that every yielded value has type T. The
// sequence panics when the generator yields a value of another type.
func Values[T any](r Resumable) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range Seq(r) {
			if !yield(v.(T)) {
				return
			}
		}
	}
}
