// Package frontend lowers Go functions into bodies the compiler accepts.
//
// A generator is a function whose documentation carries the
// //genc:generator directive. Its parameters become captures held by value
// and each call to stackless.Yield becomes a suspension point. The subset
// of Go that can be lowered is small: assignments and declarations of local
// variables, if and for statements (including ranges over integers), break
// and continue without labels, returns of at most one value, and defers in
// the top-level block of the function.
package frontend

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"runtime"
	"strconv"
	"strings"

	"github.com/stealthrocket/stackless/ir"
	"golang.org/x/tools/go/ast/astutil"
)

const (
	stacklessPackage = "github.com/stealthrocket/stackless"

	// Directive marks the functions compiled into generators.
	Directive = "//genc:generator"
)

// IsGenerator reports whether decl is marked with the generator directive.
func IsGenerator(decl *ast.FuncDecl) bool {
	if decl.Doc == nil || decl.Body == nil {
		return false
	}
	for _, c := range decl.Doc.List {
		if strings.TrimSpace(c.Text) == Directive {
			return true
		}
	}
	return false
}

// Error is returned when a function cannot be lowered.
type Error struct {
	Func string
	Pos  token.Pos
	Err  error
}

func (e *Error) Error() string { return e.Func + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// FuncBody lowers a function declaration into a body.
//
// info may be nil, in which case bindings are typed "any" unless declared
// with a type, and calls are recognized as suspension points by name only.
func FuncBody(decl *ast.FuncDecl, info *types.Info) (*ir.Body, error) {
	name := decl.Name.Name
	if decl.Body == nil {
		return nil, &Error{Func: name, Pos: decl.Pos(), Err: fmt.Errorf("function has no body")}
	}
	if err := unsupported(decl); err != nil {
		return nil, &Error{Func: name, Pos: decl.Pos(), Err: err}
	}

	l := &lowering{info: info, sizes: types.SizesFor("gc", runtime.GOARCH)}
	if info != nil {
		if obj := info.Defs[decl.Name]; obj != nil {
			l.pkg = obj.Pkg()
		}
	}
	body := &ir.Body{Name: name}
	for _, field := range decl.Type.Params.List {
		for _, id := range field.Names {
			body.Captures = append(body.Captures, ir.Capture{
				Name: id.Name,
				Type: l.typeOf(id, field.Type),
			})
		}
	}

	block, err := l.block(decl.Body)
	if err != nil {
		return nil, &Error{Func: name, Pos: l.pos, Err: err}
	}
	body.Block = block
	return body, nil
}

type lowering struct {
	info  *types.Info
	pkg   *types.Package
	sizes types.Sizes
	temps int
	// pos is the position of the node being lowered, for error reports.
	pos token.Pos
}

func (l *lowering) newTemp(prefix string) string {
	l.temps++
	return "$" + prefix + strconv.Itoa(l.temps)
}

// typeOf returns the storage type of the variable declared by id. typ is the
// type expression of the declaration, if any.
func (l *lowering) typeOf(id *ast.Ident, typ ast.Expr) ir.Type {
	if l.info != nil {
		if obj := l.info.ObjectOf(id); obj != nil {
			return l.irType(obj.Type())
		}
	}
	if typ != nil {
		return ir.Type{Name: types.ExprString(typ)}
	}
	return ir.Any
}

// exprType returns the storage type of temporaries holding the value of e.
func (l *lowering) exprType(e ast.Expr) ir.Type {
	if l.info == nil {
		return ir.Any
	}
	t := l.info.TypeOf(e)
	if t == nil {
		return ir.Any
	}
	return l.irType(types.Default(t))
}

func (l *lowering) irType(t types.Type) ir.Type {
	typ := ir.Type{Name: types.TypeString(t, l.qualifier)}
	if _, ok := t.Underlying().(*types.Interface); !ok {
		typ.Size = int(l.sizes.Sizeof(t))
		typ.Align = int(l.sizes.Alignof(t))
	}
	return typ
}

// qualifier names types of the generator's own package without a package
// prefix, so the name is valid in code generated next to the generator.
func (l *lowering) qualifier(p *types.Package) string {
	if p == l.pkg {
		return ""
	}
	return p.Name()
}

func (l *lowering) block(b *ast.BlockStmt) (*ir.Block, error) {
	block := &ir.Block{}
	for _, stmt := range b.List {
		stmts, err := l.stmt(stmt)
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmts...)
	}
	return block, nil
}

func (l *lowering) stmt(stmt ast.Stmt) ([]ir.Stmt, error) {
	l.pos = stmt.Pos()

	switch s := stmt.(type) {
	case *ast.EmptyStmt:
		return nil, nil

	case *ast.BlockStmt:
		b, err := l.block(s)
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{b}, nil

	case *ast.ExprStmt:
		call, ok := astutil.Unparen(s.X).(*ast.CallExpr)
		if !ok {
			return nil, fmt.Errorf("not implemented: expression statement %T", s.X)
		}
		if l.isYield(call) {
			if len(call.Args) != 1 {
				return nil, fmt.Errorf("Yield expects one argument")
			}
			v, err := l.expr(call.Args[0])
			if err != nil {
				return nil, err
			}
			return []ir.Stmt{&ir.Suspend{Value: v}}, nil
		}
		x, err := l.expr(call)
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{&ir.ExprStmt{X: x}}, nil

	case *ast.AssignStmt:
		return l.assign(s)

	case *ast.IncDecStmt:
		op := token.ADD
		if s.Tok == token.DEC {
			op = token.SUB
		}
		name := s.X.(*ast.Ident).Name
		return []ir.Stmt{&ir.Assign{Name: name, Value: &ir.Binary{
			Op: op,
			X:  &ir.Ref{Name: name},
			Y:  &ir.Const{Value: 1},
		}}}, nil

	case *ast.DeclStmt:
		return l.decl(s)

	case *ast.IfStmt:
		return l.ifStmt(s)

	case *ast.ForStmt:
		return l.forStmt(s)

	case *ast.RangeStmt:
		return l.rangeStmt(s)

	case *ast.ReturnStmt:
		if len(s.Results) == 0 {
			return []ir.Stmt{&ir.Return{}}, nil
		}
		v, err := l.expr(s.Results[0])
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{&ir.Return{Value: v}}, nil

	case *ast.BranchStmt:
		if s.Tok == token.BREAK {
			return []ir.Stmt{&ir.Break{}}, nil
		}
		return []ir.Stmt{&ir.Continue{}}, nil

	case *ast.DeferStmt:
		return l.deferStmt(s)

	default:
		return nil, fmt.Errorf("not implemented: ast.Stmt(%T)", stmt)
	}
}

func (l *lowering) assign(s *ast.AssignStmt) ([]ir.Stmt, error) {
	if op, ok := assignOps[s.Tok]; ok {
		name := s.Lhs[0].(*ast.Ident).Name
		rhs, err := l.expr(s.Rhs[0])
		if err != nil {
			return nil, err
		}
		return []ir.Stmt{&ir.Assign{Name: name, Value: &ir.Binary{
			Op: op,
			X:  &ir.Ref{Name: name},
			Y:  rhs,
		}}}, nil
	}

	values := make([]ir.Expr, len(s.Rhs))
	for i, rhs := range s.Rhs {
		v, err := l.expr(rhs)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	var stmts []ir.Stmt
	if len(values) > 1 {
		// All the right hand sides are evaluated before any assignment.
		for i, v := range values {
			tmp := l.newTemp("v")
			stmts = append(stmts, &ir.Let{Name: tmp, Type: l.exprType(s.Rhs[i]), Value: v})
			values[i] = &ir.Ref{Name: tmp}
		}
	}

	for i, lhs := range s.Lhs {
		id := lhs.(*ast.Ident)
		switch {
		case id.Name == "_":
			stmts = append(stmts, &ir.ExprStmt{X: values[i]})
		case s.Tok == token.DEFINE && l.defines(id):
			stmts = append(stmts, &ir.Let{Name: id.Name, Type: l.typeOf(id, nil), Value: values[i]})
		default:
			stmts = append(stmts, &ir.Assign{Name: id.Name, Value: values[i]})
		}
	}
	return stmts, nil
}

// defines reports whether id declares a new variable in a := statement.
func (l *lowering) defines(id *ast.Ident) bool {
	if l.info == nil {
		return true
	}
	return l.info.Defs[id] != nil
}

func (l *lowering) decl(s *ast.DeclStmt) ([]ir.Stmt, error) {
	gen, ok := s.Decl.(*ast.GenDecl)
	if !ok || gen.Tok != token.VAR {
		if ok && (gen.Tok == token.CONST || gen.Tok == token.TYPE) {
			return nil, fmt.Errorf("not implemented: local %s declarations", gen.Tok)
		}
		return nil, fmt.Errorf("not implemented: declaration %T", s.Decl)
	}
	var stmts []ir.Stmt
	for _, spec := range gen.Specs {
		vs := spec.(*ast.ValueSpec)
		if len(vs.Values) != 0 && len(vs.Values) != len(vs.Names) {
			return nil, fmt.Errorf("not implemented: declaration with unbalanced sides")
		}
		for i, id := range vs.Names {
			typ := l.typeOf(id, vs.Type)
			var value ir.Expr
			if len(vs.Values) > 0 {
				v, err := l.expr(vs.Values[i])
				if err != nil {
					return nil, err
				}
				value = v
			} else {
				value = &ir.Const{Value: zero(typ.Name)}
			}
			if id.Name == "_" {
				stmts = append(stmts, &ir.ExprStmt{X: value})
			} else {
				stmts = append(stmts, &ir.Let{Name: id.Name, Type: typ, Value: value})
			}
		}
	}
	return stmts, nil
}

func zero(typeName string) any {
	switch typeName {
	case "int":
		return 0
	case "int64":
		return int64(0)
	case "float64":
		return 0.0
	case "string":
		return ""
	case "bool":
		return false
	default:
		return nil
	}
}

func (l *lowering) ifStmt(s *ast.IfStmt) ([]ir.Stmt, error) {
	cond, err := l.expr(s.Cond)
	if err != nil {
		return nil, err
	}
	then, err := l.block(s.Body)
	if err != nil {
		return nil, err
	}
	stmt := &ir.If{Cond: cond, Then: then}

	switch e := s.Else.(type) {
	case nil:
	case *ast.BlockStmt:
		if stmt.Else, err = l.block(e); err != nil {
			return nil, err
		}
	case *ast.IfStmt:
		elseIf, err := l.ifStmt(e)
		if err != nil {
			return nil, err
		}
		stmt.Else = &ir.Block{Stmts: elseIf}
	}

	if s.Init == nil {
		return []ir.Stmt{stmt}, nil
	}
	init, err := l.stmt(s.Init)
	if err != nil {
		return nil, err
	}
	// The scope of variables declared by the init statement ends with the
	// if statement.
	return []ir.Stmt{&ir.Block{Stmts: append(init, stmt)}}, nil
}

func (l *lowering) forStmt(s *ast.ForStmt) ([]ir.Stmt, error) {
	loop := &ir.Loop{}
	var err error
	if s.Cond != nil {
		if loop.Cond, err = l.expr(s.Cond); err != nil {
			return nil, err
		}
	}
	if loop.Body, err = l.block(s.Body); err != nil {
		return nil, err
	}
	if s.Post != nil {
		post, err := l.stmt(s.Post)
		if err != nil {
			return nil, err
		}
		loop.Post = &ir.Block{Stmts: post}
	}
	if s.Init == nil {
		return []ir.Stmt{loop}, nil
	}
	init, err := l.stmt(s.Init)
	if err != nil {
		return nil, err
	}
	return []ir.Stmt{&ir.Block{Stmts: append(init, loop)}}, nil
}

func (l *lowering) rangeStmt(s *ast.RangeStmt) ([]ir.Stmt, error) {
	if l.info != nil {
		if t := l.info.TypeOf(s.X); t != nil {
			if b, ok := t.Underlying().(*types.Basic); !ok || (b.Kind() != types.Int && b.Kind() != types.UntypedInt) {
				return nil, fmt.Errorf("not implemented: range over %s", t)
			}
		}
	}
	to, err := l.expr(s.X)
	if err != nil {
		return nil, err
	}
	body, err := l.block(s.Body)
	if err != nil {
		return nil, err
	}
	name := l.newTemp("i")
	if s.Key != nil && !isUnderscore(s.Key) {
		name = s.Key.(*ast.Ident).Name
	}
	return []ir.Stmt{&ir.For{Var: name, From: &ir.Const{Value: 0}, To: to, Body: body}}, nil
}

// deferStmt lowers a deferred call. The arguments are evaluated when the
// defer statement executes, the call when the function returns.
func (l *lowering) deferStmt(s *ast.DeferStmt) ([]ir.Stmt, error) {
	if l.isYield(s.Call) {
		return nil, fmt.Errorf("not implemented: deferred Yield")
	}
	fn, err := l.funcName(s.Call.Fun)
	if err != nil {
		return nil, err
	}
	var stmts []ir.Stmt
	call := &ir.Call{Func: fn}
	for _, arg := range s.Call.Args {
		v, err := l.expr(arg)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(*ir.Const); !ok {
			tmp := l.newTemp("d")
			stmts = append(stmts, &ir.Let{Name: tmp, Type: l.exprType(arg), Value: v})
			v = &ir.Ref{Name: tmp}
		}
		call.Args = append(call.Args, v)
	}
	return append(stmts, &ir.Defer{Body: &ir.Block{Stmts: []ir.Stmt{&ir.ExprStmt{X: call}}}}), nil
}

var assignOps = map[token.Token]token.Token{
	token.ADD_ASSIGN:     token.ADD,
	token.SUB_ASSIGN:     token.SUB,
	token.MUL_ASSIGN:     token.MUL,
	token.QUO_ASSIGN:     token.QUO,
	token.REM_ASSIGN:     token.REM,
	token.AND_ASSIGN:     token.AND,
	token.OR_ASSIGN:      token.OR,
	token.XOR_ASSIGN:     token.XOR,
	token.SHL_ASSIGN:     token.SHL,
	token.SHR_ASSIGN:     token.SHR,
	token.AND_NOT_ASSIGN: token.AND_NOT,
}
