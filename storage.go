package stackless

import (
	"slices"
	"strconv"
)

// Storage is a sparse collection of slot values.
type Storage struct {
	// This is private so that the data structure is allowed to switch
	// the in-memory representation dynamically (e.g. a map[int]slot may be
	// more efficient for very sparse records).
	objects []slot
}

// A slot tracks presence separately from the value since nil and Unit{} are
// valid values for a binding.
type slot struct {
	value any
	ok    bool
}

// NewStorage creates a Storage holding the given values at their indexes.
func NewStorage(objects []any) Storage {
	s := Storage{objects: make([]slot, len(objects))}
	for i, v := range objects {
		s.objects[i] = slot{value: v, ok: true}
	}
	return s
}

// Has is true if a value is defined for a specific index.
func (v *Storage) Has(i int) bool {
	return i >= 0 && i < len(v.objects) && v.objects[i].ok
}

// Get gets the value for a specific index.
func (v *Storage) Get(i int) any {
	if !v.Has(i) {
		panic("missing slot " + strconv.Itoa(i))
	}
	return v.objects[i].value
}

// Delete removes the value at a specific index.
func (v *Storage) Delete(i int) {
	if !v.Has(i) {
		panic("missing slot " + strconv.Itoa(i))
	}
	v.objects[i] = slot{}
}

// Set sets the value for a specific index.
func (v *Storage) Set(i int, value any) {
	if n := i + 1; n > len(v.objects) {
		v.objects = slices.Grow(v.objects, n-len(v.objects))
		v.objects = v.objects[:n]
	}
	v.objects[i] = slot{value: value, ok: true}
}

// Clear removes every value while keeping the allocated capacity.
func (v *Storage) Clear() {
	clear(v.objects)
	v.objects = v.objects[:0]
}

// Len returns the number of values held.
func (v *Storage) Len() (n int) {
	for _, s := range v.objects {
		if s.ok {
			n++
		}
	}
	return n
}

// Range calls f for each value held, in index order.
func (v *Storage) Range(f func(i int, value any) bool) {
	for i, s := range v.objects {
		if s.ok && !f(i, s.value) {
			return
		}
	}
}

func (v *Storage) shrink() {
	i := len(v.objects) - 1
	for i >= 0 && !v.objects[i].ok {
		i--
	}
	v.objects = v.objects[:i+1]
}
