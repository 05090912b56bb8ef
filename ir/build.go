package ir

import "go/token"

// The functions below are shorthands for authoring bodies by hand.

// Seq returns a block holding stmts.
func Seq(stmts ...Stmt) *Block { return &Block{Stmts: stmts} }

// Lit returns a constant expression.
func Lit(v any) Expr { return &Const{Value: v} }

// Name returns a reference to a binding.
func Name(name string) Expr { return &Ref{Name: name} }

// Op returns a binary expression.
func Op(x Expr, op token.Token, y Expr) Expr { return &Binary{Op: op, X: x, Y: y} }

// Not returns the logical negation of x.
func Not(x Expr) Expr { return &Unary{Op: token.NOT, X: x} }

// CallOf returns a call to a host function.
func CallOf(fn string, args ...Expr) Expr { return &Call{Func: fn, Args: args} }

// Yield returns a suspension point yielding v.
func Yield(v Expr) Stmt { return &Suspend{Value: v} }

// Set returns a Let declaring name of type Any.
func Set(name string, v Expr) Stmt { return &Let{Name: name, Type: Any, Value: v} }

// Do returns a statement evaluating a call for its side effects.
func Do(fn string, args ...Expr) Stmt { return &ExprStmt{X: CallOf(fn, args...)} }
