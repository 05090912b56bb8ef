package compiler

import (
	"go/token"
	"strconv"
)

// Expr is an expression in which names were resolved to bindings.
type Expr interface {
	walk(func(*Binding))
}

type (
	// Value is a constant.
	Value struct{ V any }

	// Load reads a binding.
	Load struct{ B *Binding }

	// Unary applies a unary operator.
	Unary struct {
		Op token.Token
		X  Expr
	}

	// Binary applies a binary operator.
	Binary struct {
		Op   token.Token
		X, Y Expr
	}

	// Call invokes a host function.
	Call struct {
		Func string
		Args []Expr
	}
)

func (e *Value) walk(func(*Binding))   {}
func (e *Load) walk(f func(*Binding))  { f(e.B) }
func (e *Unary) walk(f func(*Binding)) { e.X.walk(f) }
func (e *Binary) walk(f func(*Binding)) {
	e.X.walk(f)
	e.Y.walk(f)
}
func (e *Call) walk(f func(*Binding)) {
	for _, arg := range e.Args {
		arg.walk(f)
	}
}

// Uses calls f for every binding read by e. e may be nil.
func Uses(e Expr, f func(*Binding)) {
	if e != nil {
		e.walk(f)
	}
}

// Op is a straight-line operation of a basic block.
type Op interface{ op() }

type (
	// Init initializes a binding declared by a Let. When the binding is
	// droppable, Cleanup is the entry that destroys it and the operation arms
	// it.
	Init struct {
		Dst     *Binding
		Value   Expr
		Cleanup *Cleanup
	}

	// Store assigns an initialized binding. The previous value of a droppable
	// binding is destroyed before the store.
	Store struct {
		Dst   *Binding
		Value Expr
	}

	// Eval evaluates an expression for its side effects.
	Eval struct {
		X Expr
	}

	// Arm registers a cleanup region.
	Arm struct {
		Cleanup *Cleanup
	}

	// Release runs the most recently armed cleanup, which must be Cleanup, and
	// disarms it. When Forget is set the cleanup is disarmed without running:
	// the value it would destroy was moved out of the generator.
	Release struct {
		Cleanup *Cleanup
		Forget  bool
	}
)

func (*Init) op()    {}
func (*Store) op()   {}
func (*Eval) op()    {}
func (*Arm) op()     {}
func (*Release) op() {}

// CleanupKind distinguishes the two kinds of cleanup entries.
type CleanupKind int

const (
	// DropBinding destroys the value of a binding with its type's destructor.
	DropBinding CleanupKind = iota
	// RunDefer runs the operations of a cleanup region.
	RunDefer
)

func (k CleanupKind) String() string {
	switch k {
	case DropBinding:
		return "drop"
	case RunDefer:
		return "defer"
	default:
		return "CleanupKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Cleanup is an entry of the cleanup stack: something that must run when the
// scope that registered it exits, or when the generator is closed while the
// entry is armed.
type Cleanup struct {
	ID      int
	Kind    CleanupKind
	Binding *Binding // DropBinding
	Ops     []Op     // RunDefer
}

// uses calls f for every binding the cleanup reads when it runs, excluding
// bindings that its own operations define first.
func (c *Cleanup) uses(f func(*Binding)) {
	switch c.Kind {
	case DropBinding:
		f(c.Binding)
	case RunDefer:
		defined := map[*Binding]bool{}
		use := func(b *Binding) {
			if !defined[b] {
				f(b)
			}
		}
		for _, op := range c.Ops {
			switch o := op.(type) {
			case *Init:
				Uses(o.Value, use)
				defined[o.Dst] = true
			case *Store:
				Uses(o.Value, use)
				if o.Dst.Droppable() || o.Dst.ByRef {
					use(o.Dst)
				}
			case *Eval:
				Uses(o.X, use)
			case *Release:
				if !o.Forget {
					o.Cleanup.uses(use)
				}
			}
		}
	}
}

func (c *Cleanup) String() string {
	if c.Kind == DropBinding {
		return "drop " + c.Binding.String()
	}
	return "defer #" + strconv.Itoa(c.ID)
}
