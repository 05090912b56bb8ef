package stackless

// Cleanups is the stack of cleanup entries that a generated state machine
// armed while it runs. Entries are identified by their index in the
// compiled program.
type Cleanups []int

// Push arms the entries ids, in order.
func (c *Cleanups) Push(ids ...int) {
	*c = append(*c, ids...)
}

// Pop disarms the most recently armed entry and returns it.
func (c *Cleanups) Pop() int {
	s := *c
	if len(s) == 0 {
		panic("pop of an empty cleanup stack")
	}
	id := s[len(s)-1]
	*c = s[:len(s)-1]
	return id
}

// Drain pops every armed entry and runs it, most recent first.
func (c *Cleanups) Drain(run func(id int)) {
	for len(*c) > 0 {
		run(c.Pop())
	}
}

// Unwind is like Drain, for a machine interrupted by a panic. Panics raised
// by the entries are discarded: the panic being propagated takes
// precedence.
func (c *Cleanups) Unwind(run func(id int)) {
	for len(*c) > 0 {
		id := c.Pop()
		func() {
			defer func() { _ = recover() }()
			run(id)
		}()
	}
}
