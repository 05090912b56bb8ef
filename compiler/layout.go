package compiler

import (
	"fmt"
	"slices"

	"github.com/stealthrocket/stackless/ir"
)

// Slot is a storage slot of the state record. A slot holds at most one
// value at any suspension point; bindings that are never live at the same
// point and have identical types may share it.
type Slot struct {
	Index    int
	Type     ir.Type
	Bindings []*Binding

	// occupied is the set of discriminants at which one of the bindings is
	// live.
	occupied bitset
}

func (s *Slot) String() string {
	return fmt.Sprintf("slot %d (%s)", s.Index, s.Type.Name)
}

type layout struct {
	slots  []*Slot
	slotOf []int // binding ID -> slot index, -1 when not persisted
}

// planLayout assigns slots to the bindings live across suspension points.
// Captures get dedicated slots first, in declaration order. Other bindings
// are placed in ID order into the first compatible slot free at every point
// where they are live.
func planLayout(g *CFG, reuse bool) *layout {
	occupancy := make([]bitset, len(g.Bindings))
	for _, p := range g.Points {
		for _, v := range p.Live {
			occupancy[v.ID].add(int(p.Discriminant))
		}
	}

	l := &layout{slotOf: make([]int, len(g.Bindings))}
	for i := range l.slotOf {
		l.slotOf[i] = -1
	}
	place := func(v *Binding, s *Slot) {
		s.Bindings = append(s.Bindings, v)
		s.occupied.union(occupancy[v.ID])
		l.slotOf[v.ID] = s.Index
	}
	newSlot := func(t ir.Type) *Slot {
		s := &Slot{Index: len(l.slots), Type: t}
		l.slots = append(l.slots, s)
		return s
	}

	for _, c := range g.Captures {
		place(c, newSlot(c.Type))
	}
	shared := len(l.slots)

	for _, v := range g.Bindings {
		if v.Capture || occupancy[v.ID].len() == 0 {
			continue
		}
		var slot *Slot
		if reuse {
			for _, s := range l.slots[shared:] {
				if s.Type == v.Type && !s.occupied.intersects(occupancy[v.ID]) {
					slot = s
					break
				}
			}
		}
		if slot == nil {
			slot = newSlot(v.Type)
		}
		place(v, slot)
	}

	for _, p := range g.Points {
		p.Slots = p.Slots[:0]
		for _, v := range p.Live {
			if i := l.slotOf[v.ID]; i >= 0 {
				p.Slots = append(p.Slots, SlotRef{Slot: i, Binding: v})
			}
		}
		slices.SortFunc(p.Slots, func(a, b SlotRef) int { return a.Slot - b.Slot })
	}
	return l
}

// verifyLayout checks the invariants the state machine relies on. A failure
// is a defect of the compiler, not of the body.
func verifyLayout(g *CFG, l *layout) error {
	violation := func(format string, args ...any) error {
		return &LivenessViolation{Body: g.Body.Name, Msg: fmt.Sprintf(format, args...)}
	}

	var notCaptured []string
	g.Entry.liveIn.each(func(id int) {
		if v := g.Bindings[id]; !v.Capture {
			notCaptured = append(notCaptured, v.String())
		}
	})
	if len(notCaptured) > 0 {
		return violation("%v live on entry but not captured", notCaptured)
	}

	for _, p := range g.Points {
		live := map[*Binding]bool{}
		for _, v := range p.Live {
			live[v] = true
		}
		taken := make(map[int]*Binding, len(p.Slots))
		for _, v := range p.Live {
			i := l.slotOf[v.ID]
			if i < 0 {
				return violation("%s live at point %d has no slot", v, p.Discriminant)
			}
			if other, ok := taken[i]; ok {
				return violation("%s and %s both live in slot %d at point %d", other, v, i, p.Discriminant)
			}
			taken[i] = v
		}
		if len(p.Slots) != len(p.Live) {
			return violation("point %d saves %d slots for %d live bindings", p.Discriminant, len(p.Slots), len(p.Live))
		}
		for _, c := range p.Cleanups {
			if c.Kind == DropBinding && !live[c.Binding] {
				return violation("%s armed at point %d but not live", c, p.Discriminant)
			}
		}
		for _, c := range g.Captures {
			if !live[c] {
				return violation("capture %s not persisted at point %d", c, p.Discriminant)
			}
		}
	}

	for _, s := range l.slots {
		for _, v := range s.Bindings {
			if v.Type != s.Type {
				return violation("%s of type %s stored in %s", v, v.Type.Name, s)
			}
		}
	}
	return nil
}
