// Package ir defines the body tree that the compiler lowers into a state
// machine.
//
// A Body is an ordered tree of statements in which Suspend marks the
// suspension points. Operators are go/token tokens; calls name functions of
// the host environment that runs the compiled program.
package ir

import "go/token"

// Body is a generator body along with the outer bindings it captures.
type Body struct {
	Name     string
	Captures []Capture
	Block    *Block
}

// Type describes the storage requirements of a binding.
type Type struct {
	// Name is the type as written in the host language (e.g. "int").
	Name string

	// Size and Align are the storage requirements in bytes. Zero means
	// unknown, in which case bindings only share slots with bindings of the
	// exact same type.
	Size  int
	Align int

	// Drop names the host function destroying values of this type. Values of
	// types with an empty Drop have no cleanup obligation.
	Drop string
}

// Any is the type of bindings whose type is not known.
var Any = Type{Name: "any"}

// Capture is an outer binding referenced by the body.
//
// Values captured by value are moved into the generator when it is
// constructed and owned by it. Values captured by reference are owned by the
// caller, who must keep them alive for as long as the generator.
type Capture struct {
	Name  string
	Type  Type
	ByRef bool
}

// Stmt is a statement of a body.
type Stmt interface{ stmt() }

// Expr is an expression of a body. Expressions never suspend.
type Expr interface{ expr() }

type (
	// Block is a sequence of statements with its own lexical scope.
	Block struct {
		Stmts []Stmt
	}

	// Let declares a binding in the enclosing scope and initializes it. A Let
	// shadows bindings of the same name declared in outer scopes.
	Let struct {
		Name  string
		Type  Type
		Value Expr
	}

	// Assign stores a value into an existing binding. When the binding's type
	// has a cleanup obligation, the previous value is destroyed first.
	Assign struct {
		Name  string
		Value Expr
	}

	// ExprStmt evaluates an expression for its side effects.
	ExprStmt struct {
		X Expr
	}

	// Suspend yields Value to the caller and pauses until the next resume.
	Suspend struct {
		Value Expr
	}

	// If executes Then when Cond is true, Else (which may be nil) otherwise.
	If struct {
		Cond Expr
		Then *Block
		Else *Block
	}

	// Loop executes Body while Cond is true. A nil Cond loops forever. Post,
	// when not nil, runs after each iteration including those ended by a
	// Continue.
	Loop struct {
		Cond Expr
		Body *Block
		Post *Block
	}

	// For executes Body for each integer Var in the half-open range
	// [From, To). To is evaluated once before the first iteration.
	For struct {
		Var  string
		From Expr
		To   Expr
		Body *Block
	}

	// Return completes the generator with Value, or with a unit value when
	// Value is nil.
	Return struct {
		Value Expr
	}

	// Break exits the innermost loop.
	Break struct{}

	// Continue starts the next iteration of the innermost loop.
	Continue struct{}

	// Defer registers a cleanup region that runs when the enclosing scope
	// exits, or when the generator is closed while the region is pending.
	// Cleanup regions are straight-line: they may not suspend, branch, loop
	// or return.
	Defer struct {
		Body *Block
	}
)

func (*Block) stmt()    {}
func (*Let) stmt()      {}
func (*Assign) stmt()   {}
func (*ExprStmt) stmt() {}
func (*Suspend) stmt()  {}
func (*If) stmt()       {}
func (*Loop) stmt()     {}
func (*For) stmt()      {}
func (*Return) stmt()   {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Defer) stmt()    {}

type (
	// Const is a constant value.
	Const struct {
		Value any
	}

	// Ref reads a binding.
	Ref struct {
		Name string
	}

	// Unary applies a unary operator (token.SUB, token.NOT, token.XOR).
	Unary struct {
		Op token.Token
		X  Expr
	}

	// Binary applies a binary operator. token.LAND and token.LOR short
	// circuit.
	Binary struct {
		Op   token.Token
		X, Y Expr
	}

	// Call invokes a function of the host environment.
	Call struct {
		Func string
		Args []Expr
	}
)

func (*Const) expr()  {}
func (*Ref) expr()    {}
func (*Unary) expr()  {}
func (*Binary) expr() {}
func (*Call) expr()   {}
