package compiler

import (
	"github.com/stealthrocket/stackless"
	"github.com/stealthrocket/stackless/ir"
)

// Program is a compiled body: the lowered control-flow graph with its
// dispatch table, state record layout and drop tables.
//
// A Program is immutable once returned by Compile and may be shared by any
// number of machines running concurrently.
type Program struct {
	Name string
	Body *ir.Body

	// Entry is the block that the first resume starts at.
	Entry  *Block
	Blocks []*Block

	// Points is the dispatch table: Points[d] is the suspension point with
	// discriminant d, its resume block and the slots to restore.
	Points []*Point

	Bindings []*Binding
	Captures CaptureSet
	Slots    []*Slot

	// Drops[d] lists the cleanups run when a machine parked at point d is
	// closed, in execution order. UnresumedDrops is the table of machines
	// closed before their first resume.
	Drops          [][]*Cleanup
	UnresumedDrops []*Cleanup

	// Cleanups are the cleanup entries of the body, indexed by ID.
	Cleanups []*Cleanup

	// Params are the captures in declaration order, which is the order in
	// which machines receive them at construction.
	Params []*Binding

	slotOf []int
}

// Point returns the suspension point with discriminant d.
func (p *Program) Point(d stackless.Discriminant) *Point {
	if d < 0 || int(d) >= len(p.Points) {
		panic("no suspension point " + d.String() + " in " + p.Name)
	}
	return p.Points[d]
}

// SlotOf returns the slot persisting b, or -1 when b is never live across a
// suspension point.
func (p *Program) SlotOf(b *Binding) int {
	return p.slotOf[b.ID]
}
