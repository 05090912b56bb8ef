package compiler

import "math/bits"

// bitset is a set of small non-negative integers: binding IDs for liveness,
// discriminants for slot occupancy.
type bitset []uint64

func (s bitset) has(i int) bool {
	w := i / 64
	return w < len(s) && s[w]&(1<<(uint(i)%64)) != 0
}

func (s *bitset) add(i int) {
	w := i / 64
	for w >= len(*s) {
		*s = append(*s, 0)
	}
	(*s)[w] |= 1 << (uint(i) % 64)
}

func (s bitset) remove(i int) {
	if w := i / 64; w < len(s) {
		s[w] &^= 1 << (uint(i) % 64)
	}
}

// union adds the elements of t to s and reports whether s changed.
func (s *bitset) union(t bitset) (changed bool) {
	for len(*s) < len(t) {
		*s = append(*s, 0)
	}
	for i, w := range t {
		if (*s)[i]|w != (*s)[i] {
			(*s)[i] |= w
			changed = true
		}
	}
	return changed
}

func (s bitset) intersects(t bitset) bool {
	n := min(len(s), len(t))
	for i := 0; i < n; i++ {
		if s[i]&t[i] != 0 {
			return true
		}
	}
	return false
}

func (s bitset) clone() bitset {
	return append(bitset(nil), s...)
}

func (s bitset) equal(t bitset) bool {
	n := max(len(s), len(t))
	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(s) {
			a = s[i]
		}
		if i < len(t) {
			b = t[i]
		}
		if a != b {
			return false
		}
	}
	return true
}

// each calls f for each element of s in increasing order.
func (s bitset) each(f func(int)) {
	for i, w := range s {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			f(i*64 + j)
			w &^= 1 << uint(j)
		}
	}
}

func (s bitset) len() (n int) {
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}
