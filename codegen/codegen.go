// Package codegen emits Go source code for compiled programs.
//
// Each program becomes a state machine type holding a stackless.Record and
// a struct with one field per slot of the state record. Resume restores the
// slots of the current discriminant into local variables and jumps to the
// resume block; every basic block of the program is a labeled section of the
// Resume method, and suspension points store the live locals back into the
// slots before returning. Close runs the drop table of the current
// discriminant.
//
// Machines of bodies with cleanups track the entries they armed in a
// stackless.Cleanups stack. Close runs the entries armed at the current
// discriminant; a panic raised by the body poisons the machine, runs the
// entries armed at the time, and propagates.
package codegen

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/stealthrocket/stackless"
	"github.com/stealthrocket/stackless/compiler"
	"golang.org/x/tools/go/ast/astutil"
)

const stacklessPackage = "github.com/stealthrocket/stackless"

// Header is written at the top of generated files.
const Header = "// Code generated by genc. DO NOT EDIT."

// File returns a Go source file of package pkg declaring the state machines
// of programs.
func File(fset *token.FileSet, pkg string, programs ...*compiler.Program) (*ast.File, error) {
	file := &ast.File{Name: ast.NewIdent(pkg)}
	for _, p := range programs {
		g, err := newMachineGen(p)
		if err != nil {
			return nil, err
		}
		decls := g.decls()
		if g.err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, g.err)
		}
		file.Decls = append(file.Decls, decls...)
	}
	if len(programs) > 0 {
		astutil.AddImport(fset, file, "errors")
		astutil.AddImport(fset, file, stacklessPackage)
	}
	return file, nil
}

// Format writes the generated file to w, preceded by the generated code
// header and the build constraint of buildTags, if any.
func Format(w io.Writer, fset *token.FileSet, file *ast.File, buildTags string) error {
	// Comments are bound to positions of a token.FileSet, so the header is
	// written as raw text rather than attached to the tree.
	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n\n")
	if buildTags != "" {
		b.WriteString("//go:build ")
		b.WriteString(buildTags)
		b.WriteString("\n\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	return format.Node(w, fset, file)
}

// Identifiers of the generated code that bindings are renamed around.
var reserved = map[string]bool{
	"_armed":    true,
	"_c":        true,
	"_m":        true,
	"_prev":     true,
	"_run":      true,
	"_step":     true,
	"err":       true,
	"errors":    true,
	"stackless": true,
}

type machineGen struct {
	prog *compiler.Program

	// names and types of the local variable of each binding, by ID.
	names []string
	types []string

	machine string
	slots   string
	ctor    string

	// track is true when the program has cleanups, which the generated
	// methods keep on a stackless.Cleanups stack.
	track bool

	err error
}

func newMachineGen(p *compiler.Program) (*machineGen, error) {
	if !token.IsIdentifier(p.Name) {
		return nil, fmt.Errorf("%q is not a valid Go identifier", p.Name)
	}
	g := &machineGen{
		prog:    p,
		names:   make([]string, len(p.Bindings)),
		types:   make([]string, len(p.Bindings)),
		machine: p.Name + "Machine",
		slots:   lowerFirst(p.Name) + "Slots",
		track:   len(p.Cleanups) > 0,
	}
	if token.IsExported(p.Name) {
		g.ctor = "New" + p.Name
	} else {
		g.ctor = "new" + upperFirst(p.Name)
	}

	// Locals are declared for the whole method, so they must not hide the
	// functions, types and predeclared identifiers that the method uses.
	taken := referenced(p)
	for _, name := range types.Universe.Names() {
		taken[name] = true
	}
	taken[g.machine], taken[g.slots], taken[g.ctor] = true, true, true

	count := map[string]int{}
	for _, b := range p.Bindings {
		count[identifier(b.Name)]++
	}
	for _, b := range p.Bindings {
		name := identifier(b.Name)
		if count[name] > 1 || name == "_" || reserved[name] || taken[name] || token.IsKeyword(name) {
			name = name + "_" + strconv.Itoa(b.ID)
		}
		if !token.IsIdentifier(name) {
			return nil, fmt.Errorf("%s: binding %s cannot be named in Go", p.Name, b)
		}
		g.names[b.ID] = name

		typ := b.Type.Name
		if typ == "" {
			typ = "any"
		}
		if _, err := parser.ParseExpr(typ); err != nil {
			return nil, fmt.Errorf("%s: binding %s has invalid type %q", p.Name, b, typ)
		}
		if b.ByRef {
			typ = "*" + typ
		}
		g.types[b.ID] = typ
	}
	return g, nil
}

// referenced returns the identifiers that the code generated for p uses
// besides its bindings: host functions, package names and the names of
// types.
func referenced(p *compiler.Program) map[string]bool {
	names := map[string]bool{}
	fn := func(name string) {
		pkg, _, _ := strings.Cut(name, ".")
		names[pkg] = true
	}
	var expr func(compiler.Expr)
	expr = func(e compiler.Expr) {
		switch x := e.(type) {
		case *compiler.Unary:
			expr(x.X)
		case *compiler.Binary:
			expr(x.X)
			expr(x.Y)
		case *compiler.Call:
			fn(x.Func)
			for _, arg := range x.Args {
				expr(arg)
			}
		}
	}
	ops := func(ops []compiler.Op) {
		for _, op := range ops {
			switch o := op.(type) {
			case *compiler.Init:
				expr(o.Value)
			case *compiler.Store:
				expr(o.Value)
			case *compiler.Eval:
				expr(o.X)
			}
		}
	}
	for _, b := range p.Blocks {
		ops(b.Ops)
		switch t := b.Term.(type) {
		case *compiler.Branch:
			expr(t.Cond)
		case *compiler.Yield:
			expr(t.Value)
		case *compiler.Complete:
			expr(t.Value)
		}
	}
	for _, c := range p.Cleanups {
		ops(c.Ops)
	}
	for _, b := range p.Bindings {
		if b.Type.Drop != "" {
			fn(b.Type.Drop)
		}
		if t, err := parser.ParseExpr(b.Type.Name); err == nil {
			ast.Inspect(t, func(n ast.Node) bool {
				if id, ok := n.(*ast.Ident); ok {
					names[id.Name] = true
				}
				return true
			})
		}
	}
	return names
}

func identifier(name string) string {
	return strings.ReplaceAll(name, "$", "_")
}

func lowerFirst(s string) string { return strings.ToLower(s[:1]) + s[1:] }

func upperFirst(s string) string { return strings.ToUpper(s[:1]) + s[1:] }

func (g *machineGen) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

func (g *machineGen) decls() []ast.Decl {
	return []ast.Decl{
		g.machineType(),
		g.slotsType(),
		&ast.GenDecl{
			Tok: token.VAR,
			Specs: []ast.Spec{&ast.ValueSpec{
				Names:  []*ast.Ident{ast.NewIdent("_")},
				Type:   sel(ast.NewIdent("stackless"), "Resumable"),
				Values: []ast.Expr{&ast.CallExpr{Fun: &ast.ParenExpr{X: &ast.StarExpr{X: ast.NewIdent(g.machine)}}, Args: []ast.Expr{ast.NewIdent("nil")}}},
			}},
		},
		g.constructor(),
		g.status(),
		g.resume(),
		g.close(),
	}
}

func (g *machineGen) machineType() ast.Decl {
	return &ast.GenDecl{
		Tok: token.TYPE,
		Specs: []ast.Spec{&ast.TypeSpec{
			Name: ast.NewIdent(g.machine),
			Type: &ast.StructType{Fields: &ast.FieldList{List: []*ast.Field{
				{Names: []*ast.Ident{ast.NewIdent("record")}, Type: sel(ast.NewIdent("stackless"), "Record")},
				{Names: []*ast.Ident{ast.NewIdent("slots")}, Type: ast.NewIdent(g.slots)},
			}}},
		}},
	}
}

func (g *machineGen) slotsType() ast.Decl {
	fields := &ast.FieldList{}
	for _, s := range g.prog.Slots {
		fields.List = append(fields.List, &ast.Field{
			Names: []*ast.Ident{ast.NewIdent(slotField(s.Index))},
			Type:  typeExpr(g.types[s.Bindings[0].ID]),
		})
	}
	return &ast.GenDecl{
		Tok: token.TYPE,
		Specs: []ast.Spec{&ast.TypeSpec{
			Name: ast.NewIdent(g.slots),
			Type: &ast.StructType{Fields: fields},
		}},
	}
}

func (g *machineGen) constructor() ast.Decl {
	params := &ast.FieldList{}
	body := []ast.Stmt{
		define(ast.NewIdent("_m"), &ast.UnaryExpr{Op: token.AND, X: &ast.CompositeLit{Type: ast.NewIdent(g.machine)}}),
		exprStmt(call(sel(ast.NewIdent("_m"), "record", "Init"))),
	}
	for _, v := range g.prog.Params {
		params.List = append(params.List, &ast.Field{
			Names: []*ast.Ident{ast.NewIdent(g.names[v.ID])},
			Type:  typeExpr(g.types[v.ID]),
		})
		body = append(body, assign(g.slot(g.prog.SlotOf(v)), ast.NewIdent(g.names[v.ID])))
	}
	body = append(body, &ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("_m")}})
	return &ast.FuncDecl{
		Name: ast.NewIdent(g.ctor),
		Type: &ast.FuncType{
			Params:  params,
			Results: fieldList(&ast.StarExpr{X: ast.NewIdent(g.machine)}),
		},
		Body: &ast.BlockStmt{List: body},
	}
}

func (g *machineGen) method(name string, results *ast.FieldList, body []ast.Stmt) *ast.FuncDecl {
	return &ast.FuncDecl{
		Recv: &ast.FieldList{List: []*ast.Field{{
			Names: []*ast.Ident{ast.NewIdent("_m")},
			Type:  &ast.StarExpr{X: ast.NewIdent(g.machine)},
		}}},
		Name: ast.NewIdent(name),
		Type: &ast.FuncType{Params: &ast.FieldList{}, Results: results},
		Body: &ast.BlockStmt{List: body},
	}
}

func (g *machineGen) status() ast.Decl {
	return g.method("Status", fieldList(sel(ast.NewIdent("stackless"), "Status")), []ast.Stmt{
		&ast.ReturnStmt{Results: []ast.Expr{call(sel(ast.NewIdent("_m"), "record", "Status"))}},
	})
}

func (g *machineGen) resume() ast.Decl {
	body := []ast.Stmt{
		enter("Resume", &ast.CompositeLit{Type: sel(ast.NewIdent("stackless"), "Step")}, ast.NewIdent("err")),
	}
	if g.track {
		body = append(body, g.locals()...)
		body = append(body, g.run(), g.unwind())
	} else {
		body = append(body, leave(ast.NewIdent("nil")))
		body = append(body, g.locals()...)
	}

	dispatch := &ast.SwitchStmt{
		Tag:  sel(ast.NewIdent("_m"), "record", "Discriminant"),
		Body: &ast.BlockStmt{},
	}
	unresumed := g.restore(g.paramSlots())
	unresumed = append(unresumed, g.arm(g.initial())...)
	unresumed = append(unresumed, gotoBlock(g.prog.Entry))
	dispatch.Body.List = append(dispatch.Body.List, caseClause(sel(ast.NewIdent("stackless"), "Unresumed"), unresumed))
	for _, p := range g.prog.Points {
		stmts := g.restore(p.Slots)
		stmts = append(stmts, g.arm(p.Cleanups)...)
		stmts = append(stmts, gotoBlock(p.Resume))
		dispatch.Body.List = append(dispatch.Body.List, caseClause(intLit(int(p.Discriminant)), stmts))
	}
	dispatch.Body.List = append(dispatch.Body.List, &ast.CaseClause{Body: []ast.Stmt{
		exprStmt(call(ast.NewIdent("panic"), stringLit("invalid discriminant"))),
	}})
	body = append(body, dispatch)

	for _, b := range g.prog.Blocks {
		stmts := append(g.ops(b.Ops), g.term(b.Term)...)
		stmts[0] = &ast.LabeledStmt{Label: ast.NewIdent(blockLabel(b)), Stmt: stmts[0]}
		body = append(body, stmts...)
	}

	return g.method("Resume", &ast.FieldList{List: []*ast.Field{
		{Type: sel(ast.NewIdent("stackless"), "Step")},
		{Type: ast.NewIdent("error")},
	}}, body)
}

func (g *machineGen) close() ast.Decl {
	misuse := &ast.IfStmt{
		Cond: &ast.BinaryExpr{
			X:  call(sel(ast.NewIdent("errors"), "Is"), ast.NewIdent("err"), sel(ast.NewIdent("stackless"), "ErrCompleted")),
			Op: token.LOR,
			Y:  call(sel(ast.NewIdent("errors"), "Is"), ast.NewIdent("err"), sel(ast.NewIdent("stackless"), "ErrPoisoned")),
		},
		Body: &ast.BlockStmt{List: []ast.Stmt{&ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("nil")}}}},
	}
	body := []ast.Stmt{
		&ast.IfStmt{
			Init: define(ast.NewIdent("err"), call(sel(ast.NewIdent("_m"), "record", "Enter"), stringLit("Close"))),
			Cond: &ast.BinaryExpr{X: ast.NewIdent("err"), Op: token.NEQ, Y: ast.NewIdent("nil")},
			Body: &ast.BlockStmt{List: []ast.Stmt{
				misuse,
				&ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("err")}},
			}},
		},
	}

	dispatch := &ast.SwitchStmt{
		Tag:  sel(ast.NewIdent("_m"), "record", "Discriminant"),
		Body: &ast.BlockStmt{},
	}
	if initial := g.initial(); len(initial) > 0 {
		stmts := append(g.restore(g.paramSlots()), g.arm(initial)...)
		dispatch.Body.List = append(dispatch.Body.List, caseClause(sel(ast.NewIdent("stackless"), "Unresumed"), stmts))
	}
	for _, p := range g.prog.Points {
		if len(p.Cleanups) == 0 {
			continue
		}
		stmts := append(g.restore(p.Slots), g.arm(p.Cleanups)...)
		dispatch.Body.List = append(dispatch.Body.List, caseClause(intLit(int(p.Discriminant)), stmts))
	}
	if len(dispatch.Body.List) > 0 {
		body = append(body, g.locals()...)
		body = append(body, g.run(), g.unwind(), dispatch,
			exprStmt(call(sel(ast.NewIdent("_armed"), "Drain"), ast.NewIdent("_run"))))
	} else {
		body = append(body, leave(ast.NewIdent("nil")))
	}

	body = append(body,
		exprStmt(call(sel(ast.NewIdent("_m"), "record", "Complete"))),
		assign(sel(ast.NewIdent("_m"), "slots"), &ast.CompositeLit{Type: ast.NewIdent(g.slots)}),
		&ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("nil")}},
	)
	return g.method("Close", fieldList(ast.NewIdent("error")), body)
}

// locals declares a variable for each binding, and the cleanup stack when
// the program has cleanups.
func (g *machineGen) locals() (stmts []ast.Stmt) {
	decl := &ast.GenDecl{Tok: token.VAR}
	use := &ast.AssignStmt{Tok: token.ASSIGN}
	for _, b := range g.prog.Bindings {
		decl.Specs = append(decl.Specs, &ast.ValueSpec{
			Names: []*ast.Ident{ast.NewIdent(g.names[b.ID])},
			Type:  typeExpr(g.types[b.ID]),
		})
		use.Lhs = append(use.Lhs, ast.NewIdent("_"))
		use.Rhs = append(use.Rhs, ast.NewIdent(g.names[b.ID]))
	}
	if g.track {
		decl.Specs = append(decl.Specs, &ast.ValueSpec{
			Names: []*ast.Ident{ast.NewIdent("_armed")},
			Type:  sel(ast.NewIdent("stackless"), "Cleanups"),
		})
	}
	if len(decl.Specs) > 0 {
		stmts = append(stmts, &ast.DeclStmt{Decl: decl})
	}
	if len(use.Lhs) > 0 {
		stmts = append(stmts, use)
	}
	return stmts
}

// run declares _run, which runs the cleanup entry with the given ID.
func (g *machineGen) run() ast.Stmt {
	dispatch := &ast.SwitchStmt{Tag: ast.NewIdent("_c"), Body: &ast.BlockStmt{}}
	for _, c := range g.prog.Cleanups {
		dispatch.Body.List = append(dispatch.Body.List, caseClause(intLit(c.ID), g.cleanup(c)))
	}
	return define(ast.NewIdent("_run"), &ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{List: []*ast.Field{{
			Names: []*ast.Ident{ast.NewIdent("_c")},
			Type:  ast.NewIdent("int"),
		}}}},
		Body: &ast.BlockStmt{List: []ast.Stmt{dispatch}},
	})
}

// unwind defers leaving the record, running the armed cleanups when the
// method panics.
func (g *machineGen) unwind() ast.Stmt {
	return leave(&ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}},
		Body: &ast.BlockStmt{List: []ast.Stmt{
			exprStmt(call(sel(ast.NewIdent("_armed"), "Unwind"), ast.NewIdent("_run"))),
		}},
	})
}

// initial returns the cleanups armed at construction, in registration
// order.
func (g *machineGen) initial() []*compiler.Cleanup {
	drops := g.prog.UnresumedDrops
	initial := make([]*compiler.Cleanup, len(drops))
	for i, c := range drops {
		initial[len(drops)-1-i] = c
	}
	return initial
}

// arm returns the statement pushing cleanups on the cleanup stack.
func (g *machineGen) arm(cleanups []*compiler.Cleanup) []ast.Stmt {
	if len(cleanups) == 0 {
		return nil
	}
	push := call(sel(ast.NewIdent("_armed"), "Push"))
	for _, c := range cleanups {
		push.Args = append(push.Args, intLit(c.ID))
	}
	return []ast.Stmt{exprStmt(push)}
}

func (g *machineGen) paramSlots() []compiler.SlotRef {
	refs := make([]compiler.SlotRef, 0, len(g.prog.Params))
	for _, v := range g.prog.Params {
		refs = append(refs, compiler.SlotRef{Slot: g.prog.SlotOf(v), Binding: v})
	}
	return refs
}

func (g *machineGen) restore(refs []compiler.SlotRef) (stmts []ast.Stmt) {
	for _, r := range refs {
		stmts = append(stmts, assign(ast.NewIdent(g.names[r.Binding.ID]), g.slot(r.Slot)))
	}
	return stmts
}

func (g *machineGen) slot(i int) ast.Expr {
	return sel(ast.NewIdent("_m"), "slots", slotField(i))
}

func (g *machineGen) ops(ops []compiler.Op) (stmts []ast.Stmt) {
	for _, op := range ops {
		switch o := op.(type) {
		case *compiler.Init:
			stmts = append(stmts, assign(ast.NewIdent(g.names[o.Dst.ID]), g.expr(o.Value)))
			if o.Cleanup != nil {
				stmts = append(stmts, g.arm([]*compiler.Cleanup{o.Cleanup})...)
			}

		case *compiler.Store:
			dst := ast.NewIdent(g.names[o.Dst.ID])
			switch {
			case o.Dst.ByRef:
				stmts = append(stmts, assign(&ast.StarExpr{X: dst}, g.expr(o.Value)))
			case o.Dst.Droppable():
				stmts = append(stmts, &ast.BlockStmt{List: []ast.Stmt{
					define(ast.NewIdent("_prev"), dst),
					assign(ast.NewIdent(dst.Name), g.expr(o.Value)),
					exprStmt(call(g.funcExpr(o.Dst.Type.Drop), ast.NewIdent("_prev"))),
				}})
			default:
				stmts = append(stmts, assign(dst, g.expr(o.Value)))
			}

		case *compiler.Eval:
			if c, ok := o.X.(*compiler.Call); ok {
				stmts = append(stmts, exprStmt(g.expr(c)))
			} else {
				stmts = append(stmts, assign(ast.NewIdent("_"), g.expr(o.X)))
			}

		case *compiler.Arm:
			stmts = append(stmts, g.arm([]*compiler.Cleanup{o.Cleanup})...)

		case *compiler.Release:
			stmts = append(stmts, exprStmt(call(sel(ast.NewIdent("_armed"), "Pop"))))
			if !o.Forget {
				stmts = append(stmts, g.cleanup(o.Cleanup)...)
			}

		default:
			g.fail(fmt.Errorf("not implemented: operation %T", op))
		}
	}
	return stmts
}

func (g *machineGen) cleanup(c *compiler.Cleanup) []ast.Stmt {
	if c.Kind == compiler.DropBinding {
		return []ast.Stmt{exprStmt(call(g.funcExpr(c.Binding.Type.Drop), ast.NewIdent(g.names[c.Binding.ID])))}
	}
	return g.ops(c.Ops)
}

func (g *machineGen) term(t compiler.Terminator) []ast.Stmt {
	switch t := t.(type) {
	case *compiler.Jump:
		return []ast.Stmt{gotoBlock(t.Target)}

	case *compiler.Branch:
		return []ast.Stmt{
			&ast.IfStmt{Cond: g.expr(t.Cond), Body: &ast.BlockStmt{List: []ast.Stmt{gotoBlock(t.Then)}}},
			gotoBlock(t.Else),
		}

	case *compiler.Yield:
		value := g.valueOrUnit(t.Value)
		stmts := []ast.Stmt{
			define(ast.NewIdent("_step"), call(sel(ast.NewIdent("stackless"), "Yielded"), value)),
			exprStmt(call(sel(ast.NewIdent("_m"), "record", "Suspend"), intLit(int(t.Point.Discriminant)))),
			assign(sel(ast.NewIdent("_m"), "slots"), &ast.CompositeLit{Type: ast.NewIdent(g.slots)}),
		}
		for _, r := range t.Point.Slots {
			stmts = append(stmts, assign(g.slot(r.Slot), ast.NewIdent(g.names[r.Binding.ID])))
		}
		stmts = append(stmts, &ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("_step"), ast.NewIdent("nil")}})
		return []ast.Stmt{&ast.BlockStmt{List: stmts}}

	case *compiler.Complete:
		value := g.valueOrUnit(t.Value)
		return []ast.Stmt{&ast.BlockStmt{List: []ast.Stmt{
			define(ast.NewIdent("_step"), call(sel(ast.NewIdent("stackless"), "Done"), value)),
			exprStmt(call(sel(ast.NewIdent("_m"), "record", "Complete"))),
			assign(sel(ast.NewIdent("_m"), "slots"), &ast.CompositeLit{Type: ast.NewIdent(g.slots)}),
			&ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("_step"), ast.NewIdent("nil")}},
		}}}

	default:
		g.fail(fmt.Errorf("not implemented: terminator %T", t))
		return []ast.Stmt{exprStmt(call(ast.NewIdent("panic"), stringLit("unreachable")))}
	}
}

func (g *machineGen) valueOrUnit(e compiler.Expr) ast.Expr {
	if e == nil {
		return &ast.CompositeLit{Type: sel(ast.NewIdent("stackless"), "Unit")}
	}
	return g.expr(e)
}

func (g *machineGen) expr(e compiler.Expr) ast.Expr {
	switch x := e.(type) {
	case *compiler.Value:
		return g.literal(x.V)

	case *compiler.Load:
		id := ast.NewIdent(g.names[x.B.ID])
		if x.B.ByRef {
			return &ast.StarExpr{X: id}
		}
		return id

	case *compiler.Unary:
		return &ast.UnaryExpr{Op: x.Op, X: parenthesize(g.expr(x.X), token.UnaryPrec)}

	case *compiler.Binary:
		prec := x.Op.Precedence()
		return &ast.BinaryExpr{
			X:  parenthesize(g.expr(x.X), prec),
			Op: x.Op,
			Y:  parenthesize(g.expr(x.Y), prec+1),
		}

	case *compiler.Call:
		c := &ast.CallExpr{Fun: g.funcExpr(x.Func)}
		for _, arg := range x.Args {
			c.Args = append(c.Args, g.expr(arg))
		}
		return c

	default:
		g.fail(fmt.Errorf("not implemented: expression %T", e))
		return ast.NewIdent("nil")
	}
}

// parenthesize wraps binary expressions binding less tightly than prec.
func parenthesize(e ast.Expr, prec int) ast.Expr {
	if b, ok := e.(*ast.BinaryExpr); ok && b.Op.Precedence() < prec {
		return &ast.ParenExpr{X: e}
	}
	return e
}

func (g *machineGen) funcExpr(name string) ast.Expr {
	pkg, fn, ok := strings.Cut(name, ".")
	if !ok {
		if !token.IsIdentifier(name) {
			g.fail(fmt.Errorf("invalid function name %q", name))
		}
		return ast.NewIdent(name)
	}
	if !token.IsIdentifier(pkg) || !token.IsIdentifier(fn) {
		g.fail(fmt.Errorf("invalid function name %q", name))
	}
	return sel(ast.NewIdent(pkg), fn)
}

func (g *machineGen) literal(v any) ast.Expr {
	switch v := v.(type) {
	case nil:
		return ast.NewIdent("nil")
	case bool:
		return ast.NewIdent(strconv.FormatBool(v))
	case int:
		return intLit(v)
	case int64:
		return call(ast.NewIdent("int64"), intLit(int(v)))
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			g.fail(fmt.Errorf("constant %v cannot be represented in Go source", v))
			return ast.NewIdent("nil")
		}
		s := strconv.FormatFloat(math.Abs(v), 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		var lit ast.Expr = &ast.BasicLit{Kind: token.FLOAT, Value: s}
		if math.Signbit(v) {
			lit = &ast.UnaryExpr{Op: token.SUB, X: lit}
		}
		return lit
	case string:
		return stringLit(v)
	case stackless.Unit:
		return &ast.CompositeLit{Type: sel(ast.NewIdent("stackless"), "Unit")}
	default:
		g.fail(fmt.Errorf("not implemented: constant of type %T", v))
		return ast.NewIdent("nil")
	}
}

func blockLabel(b *compiler.Block) string { return "b" + strconv.Itoa(b.ID) }

func slotField(i int) string { return "s" + strconv.Itoa(i) }

func typeExpr(typ string) ast.Expr {
	e, err := parser.ParseExpr(typ)
	if err != nil {
		panic(err) // validated by newMachineGen
	}
	return e
}

func sel(x ast.Expr, names ...string) ast.Expr {
	for _, name := range names {
		x = &ast.SelectorExpr{X: x, Sel: ast.NewIdent(name)}
	}
	return x
}

func call(fun ast.Expr, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Fun: fun, Args: args}
}

func exprStmt(x ast.Expr) ast.Stmt { return &ast.ExprStmt{X: x} }

func assign(lhs, rhs ast.Expr) ast.Stmt {
	return &ast.AssignStmt{Lhs: []ast.Expr{lhs}, Tok: token.ASSIGN, Rhs: []ast.Expr{rhs}}
}

func define(lhs, rhs ast.Expr) ast.Stmt {
	return &ast.AssignStmt{Lhs: []ast.Expr{lhs}, Tok: token.DEFINE, Rhs: []ast.Expr{rhs}}
}

func gotoBlock(b *compiler.Block) ast.Stmt {
	return &ast.BranchStmt{Tok: token.GOTO, Label: ast.NewIdent(blockLabel(b))}
}

func caseClause(x ast.Expr, body []ast.Stmt) *ast.CaseClause {
	return &ast.CaseClause{List: []ast.Expr{x}, Body: body}
}

func fieldList(types ...ast.Expr) *ast.FieldList {
	fields := &ast.FieldList{}
	for _, t := range types {
		fields.List = append(fields.List, &ast.Field{Type: t})
	}
	return fields
}

func intLit(v int) ast.Expr {
	if v < 0 {
		return &ast.UnaryExpr{Op: token.SUB, X: &ast.BasicLit{Kind: token.INT, Value: strconv.Itoa(-v)}}
	}
	return &ast.BasicLit{Kind: token.INT, Value: strconv.Itoa(v)}
}

func stringLit(s string) ast.Expr {
	return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(s)}
}

// enter returns the statement entering the record for op, returning results
// followed by the misuse error when the record cannot run.
func enter(op string, results ...ast.Expr) ast.Stmt {
	return &ast.IfStmt{
		Init: define(ast.NewIdent("err"), call(sel(ast.NewIdent("_m"), "record", "Enter"), stringLit(op))),
		Cond: &ast.BinaryExpr{X: ast.NewIdent("err"), Op: token.NEQ, Y: ast.NewIdent("nil")},
		Body: &ast.BlockStmt{List: []ast.Stmt{&ast.ReturnStmt{Results: results}}},
	}
}

// leave returns the statement deferring the exit of the record, with the
// function unwinding the method when it panics.
func leave(unwind ast.Expr) ast.Stmt {
	return &ast.DeferStmt{Call: call(sel(ast.NewIdent("_m"), "record", "Leave"), unwind)}
}
