package compiler

import (
	"fmt"

	"github.com/stealthrocket/stackless/ir"
)

// Binding is a named storage location of a body: a capture, a local declared
// by a Let, or a temporary introduced by the compiler. Each Let produces a
// distinct Binding, so shadowed names never share one.
type Binding struct {
	// ID is the index of the binding in Program.Bindings.
	ID   int
	Name string
	Type ir.Type

	// Capture is true for bindings declared outside the body. ByRef is true
	// for captures held by reference.
	Capture bool
	ByRef   bool
}

// Droppable reports whether the binding must be destroyed when it goes out
// of scope. Captures held by reference are owned by the caller.
func (b *Binding) Droppable() bool {
	return b.Type.Drop != "" && !b.ByRef
}

func (b *Binding) String() string {
	return fmt.Sprintf("%s#%d", b.Name, b.ID)
}

// scope is a lexical scope of the body being lowered. Besides resolving
// names, it tracks the cleanups registered so far, in registration order.
type scope struct {
	outer    *scope
	vars     map[string]*Binding
	cleanups []*Cleanup
}

func newScope(outer *scope) *scope {
	return &scope{outer: outer, vars: map[string]*Binding{}}
}

func (s *scope) insert(b *Binding) {
	if b.Name != "_" {
		s.vars[b.Name] = b
	}
}

func (s *scope) lookup(name string) *Binding {
	if name == "_" {
		return nil
	}
	if s == nil {
		return nil
	}
	if b, ok := s.vars[name]; ok {
		return b
	}
	return s.outer.lookup(name)
}

func (s *scope) in(other *scope) bool {
	return s == other || (s != nil && s.outer.in(other))
}

// armed returns the cleanups registered in s and its outer scopes, outermost
// first.
func (s *scope) armed() []*Cleanup {
	if s == nil {
		return nil
	}
	return append(s.outer.armed(), s.cleanups...)
}
