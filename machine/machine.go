// Package machine executes compiled programs.
//
// A Machine is the resumable object of a compiled body: a state record laid
// out by the compiler, driven one step at a time by Resume. Machines built
// from the same Program share it and may run concurrently; a single Machine
// must not be resumed concurrently, which is reported as a misuse.
package machine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/stealthrocket/stackless"
	"github.com/stealthrocket/stackless/compiler"
)

// Func is a function of the host environment.
type Func func(args []any) any

// Env maps names to the functions a program calls, including the
// destructors named by the types of its bindings. Functions report failures
// by panicking, which poisons the machine.
type Env map[string]Func

// Machine runs a compiled program.
type Machine struct {
	prog   *compiler.Program
	env    Env
	record stackless.Record

	// regs hold the values of bindings while the machine runs, indexed by
	// binding ID. Only the slots of the record persist across resumes.
	regs []any

	// armed is the cleanup stack of the running body, in registration
	// order.
	armed []*compiler.Cleanup
}

var _ stackless.Resumable = (*Machine)(nil)

// New constructs a machine for p. The captures are passed in declaration
// order; captures held by reference must be passed as *any cells owned by
// the caller, which must outlive the machine.
func New(p *compiler.Program, env Env, captures ...any) (*Machine, error) {
	if len(captures) != len(p.Params) {
		return nil, fmt.Errorf("%s: expected %d captures, got %d", p.Name, len(p.Params), len(captures))
	}
	m, err := newMachine(p, env)
	if err != nil {
		return nil, err
	}
	for i, v := range p.Params {
		value := captures[i]
		if v.ByRef {
			cell, ok := value.(*any)
			if !ok || cell == nil {
				return nil, fmt.Errorf("%s: capture %s is held by reference and must be a non-nil *any, got %T", p.Name, v.Name, value)
			}
		}
		m.record.Set(p.SlotOf(v), value)
	}
	return m, nil
}

func newMachine(p *compiler.Program, env Env) (*Machine, error) {
	if err := checkEnv(p, env); err != nil {
		return nil, err
	}
	m := &Machine{
		prog: p,
		env:  env,
		regs: make([]any, len(p.Bindings)),
	}
	m.record.Init()
	return m, nil
}

// checkEnv verifies that env defines every function that p calls.
func checkEnv(p *compiler.Program, env Env) error {
	var missing []string
	need := func(name string) {
		if _, ok := env[name]; !ok && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}
	var visitExpr func(compiler.Expr)
	visitExpr = func(e compiler.Expr) {
		switch x := e.(type) {
		case *compiler.Call:
			need(x.Func)
			for _, arg := range x.Args {
				visitExpr(arg)
			}
		case *compiler.Unary:
			visitExpr(x.X)
		case *compiler.Binary:
			visitExpr(x.X)
			visitExpr(x.Y)
		}
	}
	var visitOps func([]compiler.Op)
	visitOps = func(ops []compiler.Op) {
		for _, op := range ops {
			switch o := op.(type) {
			case *compiler.Init:
				visitExpr(o.Value)
			case *compiler.Store:
				visitExpr(o.Value)
			case *compiler.Eval:
				visitExpr(o.X)
			case *compiler.Arm:
				visitOps(o.Cleanup.Ops)
			}
		}
	}
	for _, b := range p.Blocks {
		visitOps(b.Ops)
		switch t := b.Term.(type) {
		case *compiler.Branch:
			visitExpr(t.Cond)
		case *compiler.Yield:
			visitExpr(t.Value)
		case *compiler.Complete:
			visitExpr(t.Value)
		}
	}
	for _, v := range p.Bindings {
		if v.Droppable() {
			need(v.Type.Drop)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: undefined host functions %v", p.Name, missing)
	}
	return nil
}

// Program returns the program run by m.
func (m *Machine) Program() *compiler.Program { return m.prog }

// Status returns the lifecycle state of m.
func (m *Machine) Status() stackless.Status { return m.record.Status() }

// Discriminant returns the suspension point m is parked at.
func (m *Machine) Discriminant() stackless.Discriminant { return m.record.Discriminant }

// Resume runs m until its next suspension point or until the body completes.
func (m *Machine) Resume() (stackless.Step, error) {
	if err := m.record.Enter("Resume"); err != nil {
		return stackless.Step{}, err
	}
	defer m.record.Leave(m.unwind)

	block := m.restore()
	for {
		for _, op := range block.Ops {
			m.exec(op)
		}
		switch t := block.Term.(type) {
		case *compiler.Jump:
			block = t.Target
		case *compiler.Branch:
			if truth(m.eval(t.Cond)) {
				block = t.Then
			} else {
				block = t.Else
			}
		case *compiler.Yield:
			v := m.eval(t.Value)
			m.save(t.Point)
			return stackless.Yielded(v), nil
		case *compiler.Complete:
			var v any = stackless.Unit{}
			if t.Value != nil {
				v = m.eval(t.Value)
			}
			if len(m.armed) != 0 {
				panic(fmt.Sprintf("%s completed with %d cleanups armed", m.prog.Name, len(m.armed)))
			}
			m.record.Complete()
			m.reset()
			return stackless.Done(v), nil
		default:
			panic(fmt.Sprintf("%s: block b%d has no terminator", m.prog.Name, block.ID))
		}
	}
}

// Close abandons m, running the cleanups pending at its current suspension
// point. Closing a machine that completed or was poisoned does nothing.
func (m *Machine) Close() error {
	if err := m.record.Enter("Close"); err != nil {
		if errors.Is(err, stackless.ErrCompleted) || errors.Is(err, stackless.ErrPoisoned) {
			return nil
		}
		return err
	}
	defer m.record.Leave(m.unwind)

	m.restore()
	m.drain()
	m.record.Complete()
	m.reset()
	return nil
}

// restore loads the bindings persisted at the current discriminant into the
// registers, rebuilds the cleanup stack, and returns the block to run.
func (m *Machine) restore() *compiler.Block {
	d := m.record.Discriminant
	m.armed = append(m.armed[:0], m.prog.DropsAt(d)...)
	slices.Reverse(m.armed)

	if d == stackless.Unresumed {
		for _, v := range m.prog.Params {
			m.regs[v.ID] = m.record.Get(m.prog.SlotOf(v))
		}
		return m.prog.Entry
	}
	p := m.prog.Point(d)
	for _, s := range p.Slots {
		m.regs[s.Binding.ID] = m.record.Get(s.Slot)
	}
	return p.Resume
}

// save parks the record at p, persisting the bindings live there.
func (m *Machine) save(p *compiler.Point) {
	m.record.Suspend(p.Discriminant)
	for _, s := range p.Slots {
		m.record.Set(s.Slot, m.regs[s.Binding.ID])
	}
	m.reset()
}

func (m *Machine) reset() {
	clear(m.regs)
	clear(m.armed)
	m.armed = m.armed[:0]
}

// drain runs every armed cleanup, most recent first.
func (m *Machine) drain() {
	for len(m.armed) > 0 {
		m.run(m.pop())
	}
}

// unwind releases what the body still owned when a panic interrupted it.
// The panic being propagated takes precedence over failures of the
// cleanups, which are discarded.
func (m *Machine) unwind() {
	defer m.reset()
	for len(m.armed) > 0 {
		c := m.pop()
		func() {
			defer func() { _ = recover() }()
			m.run(c)
		}()
	}
}

func (m *Machine) push(c *compiler.Cleanup) {
	m.armed = append(m.armed, c)
}

func (m *Machine) pop() *compiler.Cleanup {
	i := len(m.armed) - 1
	c := m.armed[i]
	m.armed[i] = nil
	m.armed = m.armed[:i]
	return c
}

func (m *Machine) exec(op compiler.Op) {
	switch o := op.(type) {
	case *compiler.Init:
		m.regs[o.Dst.ID] = m.eval(o.Value)
		if o.Cleanup != nil {
			m.push(o.Cleanup)
		}
	case *compiler.Store:
		v := m.eval(o.Value)
		switch {
		case o.Dst.ByRef:
			*m.regs[o.Dst.ID].(*any) = v
		case o.Dst.Droppable():
			old := m.regs[o.Dst.ID]
			m.regs[o.Dst.ID] = v
			m.drop(o.Dst, old)
		default:
			m.regs[o.Dst.ID] = v
		}
	case *compiler.Eval:
		m.eval(o.X)
	case *compiler.Arm:
		m.push(o.Cleanup)
	case *compiler.Release:
		if n := len(m.armed); n == 0 || m.armed[n-1] != o.Cleanup {
			panic(fmt.Sprintf("%s: release of %s out of order", m.prog.Name, o.Cleanup))
		}
		c := m.pop()
		if !o.Forget {
			m.run(c)
		}
	default:
		panic(fmt.Sprintf("unsupported operation %T", op))
	}
}

func (m *Machine) run(c *compiler.Cleanup) {
	switch c.Kind {
	case compiler.DropBinding:
		m.drop(c.Binding, m.regs[c.Binding.ID])
	case compiler.RunDefer:
		for _, op := range c.Ops {
			m.exec(op)
		}
	}
}

func (m *Machine) drop(v *compiler.Binding, value any) {
	m.env[v.Type.Drop]([]any{value})
}

func (m *Machine) load(v *compiler.Binding) any {
	if v.ByRef {
		return *m.regs[v.ID].(*any)
	}
	return m.regs[v.ID]
}

func (m *Machine) eval(e compiler.Expr) any {
	switch x := e.(type) {
	case *compiler.Value:
		return x.V
	case *compiler.Load:
		return m.load(x.B)
	case *compiler.Unary:
		return unary(x.Op, m.eval(x.X))
	case *compiler.Binary:
		return m.binary(x)
	case *compiler.Call:
		args := make([]any, len(x.Args))
		for i, arg := range x.Args {
			args[i] = m.eval(arg)
		}
		return m.env[x.Func](args)
	case nil:
		return stackless.Unit{}
	default:
		panic(fmt.Sprintf("unsupported expression %T", e))
	}
}
