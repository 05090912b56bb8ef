package compiler

// CaptureSet partitions the captures of a body.
type CaptureSet struct {
	ByValue []*Binding
	ByRef   []*Binding
	// Unused are captures the body never references. They are still
	// persisted, and droppable ones still destroyed.
	Unused []*Binding
}

// analyzeLiveness computes, for every suspension point, the bindings whose
// values must survive the suspension.
//
// The analysis is a backward may-liveness fixed point over the graph, with
// loop back-edges included. Within a block it is precise per operation. A
// Yield block flows into its resume block, so a binding is live across a
// point when it is live on entry to the resume block. Bindings read by the
// cleanups armed at a point are live there too, since closing the machine
// runs them. Captures are always live.
func analyzeLiveness(g *CFG) {
	for _, b := range g.Blocks {
		b.liveIn, b.liveOut = nil, nil
	}
	for changed := true; changed; {
		changed = false
		// Blocks are numbered mostly in source order; visiting them in
		// reverse converges in few iterations.
		for i := len(g.Blocks) - 1; i >= 0; i-- {
			b := g.Blocks[i]
			var out bitset
			if b.Term != nil {
				for _, succ := range b.Term.Succs() {
					out.union(succ.liveIn)
				}
			}
			b.liveOut = out
			in := transfer(b, out.clone())
			if !in.equal(b.liveIn) {
				b.liveIn = in
				changed = true
			}
		}
	}

	for _, p := range g.Points {
		live := p.Resume.liveIn.clone()
		for _, c := range p.Cleanups {
			c.uses(func(v *Binding) { live.add(v.ID) })
		}
		for _, c := range g.Captures {
			live.add(c.ID)
		}
		p.Live = p.Live[:0]
		live.each(func(id int) { p.Live = append(p.Live, g.Bindings[id]) })
	}
}

// transfer computes the live-in set of b from its live-out set.
func transfer(b *Block, live bitset) bitset {
	use := func(v *Binding) { live.add(v.ID) }

	switch t := b.Term.(type) {
	case *Branch:
		Uses(t.Cond, use)
	case *Yield:
		Uses(t.Value, use)
	case *Complete:
		Uses(t.Value, use)
	}

	for i := len(b.Ops) - 1; i >= 0; i-- {
		switch o := b.Ops[i].(type) {
		case *Init:
			live.remove(o.Dst.ID)
			Uses(o.Value, use)
		case *Store:
			// Storing into a droppable binding destroys the previous value,
			// which is a read. Writing through a reference needs the cell.
			if !o.Dst.Droppable() && !o.Dst.ByRef {
				live.remove(o.Dst.ID)
			} else {
				use(o.Dst)
			}
			Uses(o.Value, use)
		case *Eval:
			Uses(o.X, use)
		case *Release:
			if !o.Forget {
				o.Cleanup.uses(use)
			}
		case *Arm:
		}
	}
	return live
}

// analyzeCaptures partitions the captures of g and reports those that the
// body never references.
func analyzeCaptures(g *CFG) CaptureSet {
	referenced := map[*Binding]bool{}
	use := func(v *Binding) { referenced[v] = true }

	var visitOps func([]Op)
	visitOps = func(ops []Op) {
		for _, op := range ops {
			switch o := op.(type) {
			case *Init:
				Uses(o.Value, use)
			case *Store:
				use(o.Dst)
				Uses(o.Value, use)
			case *Eval:
				Uses(o.X, use)
			case *Arm:
				visitOps(o.Cleanup.Ops)
			}
		}
	}
	for _, b := range g.Blocks {
		visitOps(b.Ops)
		switch t := b.Term.(type) {
		case *Branch:
			Uses(t.Cond, use)
		case *Yield:
			Uses(t.Value, use)
		case *Complete:
			Uses(t.Value, use)
		}
	}

	var set CaptureSet
	for _, c := range g.Captures {
		if c.ByRef {
			set.ByRef = append(set.ByRef, c)
		} else {
			set.ByValue = append(set.ByValue, c)
		}
		if !referenced[c] {
			set.Unused = append(set.Unused, c)
		}
	}
	return set
}
