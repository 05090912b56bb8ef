package compiler

import (
	"slices"

	"github.com/stealthrocket/stackless"
)

// dropTables computes, for each suspension point, the cleanups to run when
// the machine is closed while parked there: every entry armed at the point,
// most recently armed first. By-value captures are armed before anything
// else, so they are always destroyed last.
func dropTables(g *CFG) (drops [][]*Cleanup, unresumed []*Cleanup) {
	drops = make([][]*Cleanup, len(g.Points))
	for i, p := range g.Points {
		drops[i] = reversed(p.Cleanups)
	}
	return drops, reversed(g.Initial)
}

func reversed(cleanups []*Cleanup) []*Cleanup {
	if len(cleanups) == 0 {
		return nil
	}
	r := slices.Clone(cleanups)
	slices.Reverse(r)
	return r
}

// DropsAt returns the cleanups that closing a machine in state d runs.
// Completed and poisoned machines own nothing.
func (p *Program) DropsAt(d stackless.Discriminant) []*Cleanup {
	switch {
	case d == stackless.Unresumed:
		return p.UnresumedDrops
	case d >= 0 && int(d) < len(p.Drops):
		return p.Drops[d]
	default:
		return nil
	}
}
