package codegen

import (
	"bytes"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"math"
	"strings"
	"testing"

	"github.com/stealthrocket/stackless/compiler"
	"github.com/stealthrocket/stackless/ir"
)

// Declarations of the imported packages that generated code refers to,
// enough to type-check it without loading the real packages.
var stubs = map[string]string{
	"errors": `package errors

func Is(err, target error) bool { return err == target }
`,
	stacklessPackage: `package stackless

type Discriminant int

const (
	Unresumed Discriminant = -1
	Returned  Discriminant = -2
)

type Unit struct{}

type Step struct {
	Done  bool
	Value any
}

func Yielded(v any) Step { return Step{Value: v} }
func Done(v any) Step    { return Step{Done: true, Value: v} }

type Status int

type Resumable interface {
	Resume() (Step, error)
	Close() error
	Status() Status
}

var (
	ErrCompleted error
	ErrPoisoned  error
)

type Record struct {
	Discriminant Discriminant
}

func (r *Record) Init()                  {}
func (r *Record) Status() Status         { return 0 }
func (r *Record) Enter(op string) error  { return nil }
func (r *Record) Leave(unwind func())    {}
func (r *Record) Suspend(d Discriminant) {}
func (r *Record) Complete()              {}

type Cleanups []int

func (c *Cleanups) Push(ids ...int)         {}
func (c *Cleanups) Pop() int                { return 0 }
func (c *Cleanups) Drain(run func(id int))  {}
func (c *Cleanups) Unwind(run func(id int)) {}
`,
}

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) { return f(path) }

func stubImporter(t *testing.T, fset *token.FileSet) types.Importer {
	pkgs := map[string]*types.Package{}
	return importerFunc(func(path string) (*types.Package, error) {
		if p, ok := pkgs[path]; ok {
			return p, nil
		}
		src, ok := stubs[path]
		if !ok {
			return nil, errors.New("unknown package " + path)
		}
		f, err := parser.ParseFile(fset, path+".go", src, 0)
		if err != nil {
			t.Fatal(err)
		}
		p, err := (&types.Config{}).Check(path, fset, []*ast.File{f}, nil)
		if err != nil {
			t.Fatal(err)
		}
		pkgs[path] = p
		return p, nil
	})
}

// host declares the functions and types that the test bodies use.
const host = `package gen

type handle struct{ n int }

func open() *handle          { return &handle{} }
func release(h *handle)      {}
func log(args ...any)        {}
func square(x int) int       { return x * x }
`

var (
	intType    = ir.Type{Name: "int", Size: 8, Align: 8}
	stringType = ir.Type{Name: "string", Size: 16, Align: 8}
	handleType = ir.Type{Name: "*handle", Size: 8, Align: 8, Drop: "release"}
)

func generate(t *testing.T, bodies ...*ir.Body) string {
	t.Helper()
	var programs []*compiler.Program
	for _, body := range bodies {
		p, err := compiler.Compile(body)
		if err != nil {
			t.Fatal(err)
		}
		programs = append(programs, p)
	}
	fset := token.NewFileSet()
	file, err := File(fset, "gen", programs...)
	if err != nil {
		t.Fatal(err)
	}
	var b bytes.Buffer
	if err := Format(&b, fset, file, "!race"); err != nil {
		t.Fatal(err)
	}
	return b.String()
}

func typeCheck(t *testing.T, src string) {
	t.Helper()
	fset := token.NewFileSet()
	var files []*ast.File
	for name, s := range map[string]string{"gen.go": src, "host.go": host} {
		f, err := parser.ParseFile(fset, name, s, parser.ParseComments)
		if err != nil {
			t.Fatalf("%v\n%s", err, s)
		}
		files = append(files, f)
	}
	conf := types.Config{Importer: stubImporter(t, fset)}
	if _, err := conf.Check("gen", fset, files, nil); err != nil {
		t.Fatalf("generated code does not type-check: %v\n%s", err, src)
	}
}

var bodies = []*ir.Body{
	{
		Name:     "Counter",
		Captures: []ir.Capture{{Name: "n", Type: intType}},
		Block: ir.Seq(
			&ir.Let{Name: "i", Type: intType, Value: ir.Lit(0)},
			&ir.Loop{
				Cond: ir.Op(ir.Name("i"), token.LSS, ir.Name("n")),
				Body: ir.Seq(
					ir.Yield(ir.Name("i")),
					&ir.Assign{Name: "i", Value: ir.Op(ir.Name("i"), token.ADD, ir.Lit(1))},
				),
			},
			&ir.Return{Value: ir.Name("i")},
		),
	},
	{
		Name: "resources",
		Block: ir.Seq(
			&ir.Let{Name: "h", Type: handleType, Value: ir.CallOf("open")},
			&ir.Defer{Body: ir.Seq(ir.Do("log", ir.Lit("deferred")))},
			ir.Yield(ir.Lit(1)),
			&ir.For{Var: "k", From: ir.Lit(0), To: ir.Lit(2), Body: ir.Seq(
				&ir.Let{Name: "r", Type: handleType, Value: ir.CallOf("open")},
				ir.Yield(ir.CallOf("square", ir.Name("k"))),
			)},
			&ir.Assign{Name: "h", Value: ir.CallOf("open")},
			ir.Yield(ir.Lit(2)),
			&ir.Return{Value: ir.Name("h")},
		),
	},
	{
		Name:     "Accumulate",
		Captures: []ir.Capture{{Name: "total", Type: intType, ByRef: true}},
		Block: ir.Seq(
			&ir.Assign{Name: "total", Value: ir.Op(ir.Name("total"), token.ADD, ir.Lit(1))},
			ir.Yield(ir.Name("total")),
			&ir.Return{},
		),
	},
	{
		Name: "Shadow",
		Block: ir.Seq(
			&ir.Let{Name: "x", Type: intType, Value: ir.Lit(1)},
			ir.Seq(
				&ir.Let{Name: "x", Type: stringType, Value: ir.Lit("s")},
				ir.Yield(ir.Name("x")),
			),
			ir.Yield(ir.Name("x")),
			&ir.If{
				Cond: ir.Op(ir.Lit(true), token.LAND, ir.Not(ir.Lit(false))),
				Then: ir.Seq(ir.Yield(ir.Lit(-1.5))),
				Else: ir.Seq(ir.Yield(ir.Op(ir.Op(ir.Name("x"), token.ADD, ir.Lit(1)), token.MUL, ir.Lit(2)))),
			},
			&ir.ExprStmt{X: ir.Name("x")},
		),
	},
	{
		Name: "Hiding",
		Block: ir.Seq(
			ir.Yield(ir.CallOf("square", ir.Lit(2))),
			&ir.Let{Name: "square", Type: intType, Value: ir.Lit(5)},
			&ir.Let{Name: "panic", Type: intType, Value: ir.Name("square")},
			&ir.Let{Name: "int", Type: intType, Value: ir.Name("panic")},
			&ir.Let{Name: "handle", Type: handleType, Value: ir.CallOf("open")},
			ir.Yield(ir.Name("int")),
		),
	},
}

func TestFileTypeChecks(t *testing.T) {
	for _, body := range bodies {
		t.Run(body.Name, func(t *testing.T) {
			typeCheck(t, generate(t, body))
		})
	}
	t.Run("all", func(t *testing.T) {
		typeCheck(t, generate(t, bodies...))
	})
}

func TestFileContents(t *testing.T) {
	src := generate(t, bodies...)

	if !strings.HasPrefix(src, Header+"\n\n//go:build !race\n\n") {
		t.Errorf("missing header:\n%s", src)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "gen.go", src, 0); err != nil {
		t.Fatal(err)
	}

	for _, fragment := range []string{
		"type CounterMachine struct",
		"func NewCounter(n int) *CounterMachine",
		"type resourcesMachine struct",
		"func newResources() *resourcesMachine",
		"func NewAccumulate(total *int) *AccumulateMachine",
		"*total = *total + 1",
		"var _ stackless.Resumable = (*ShadowMachine)(nil)",
		`if err := _m.record.Enter("Resume"); err != nil`,
		"defer _m.record.Leave(nil)",
		"defer _m.record.Leave(func() {",
		"_armed.Unwind(_run)",
		"_armed.Drain(_run)",
		"_armed.Push(0)",
		"_armed.Push(1)",
		"_armed.Pop()",
		"release(r)",
		"_run := func(_c int) {",
		"stackless.Yielded(square(2))",
		"square_0 = 5",
		"panic_1 = square_0",
		"int_2 = panic_1",
		"handle_3 = open()",
		"case stackless.Unresumed:",
		"_m.record.Suspend(0)",
		"_prev := h",
		"release(_prev)",
		`log("deferred")`,
		"(x_0 + 1) * 2",
		"-1.5",
		"true && !false",
	} {
		if !strings.Contains(src, fragment) {
			t.Errorf("generated code does not contain %q", fragment)
		}
	}
	if t.Failed() {
		t.Log(src)
	}
}

func TestFileErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		body *ir.Body
		err  string
	}{
		{
			name: "invalid name",
			body: &ir.Body{Name: "not valid", Block: ir.Seq()},
			err:  `"not valid" is not a valid Go identifier`,
		},
		{
			name: "invalid type",
			body: &ir.Body{Name: "G", Block: ir.Seq(
				&ir.Let{Name: "x", Type: ir.Type{Name: "map["}, Value: ir.Lit(nil)},
				ir.Yield(ir.Name("x")),
			)},
			err: `has invalid type "map["`,
		},
		{
			name: "unrepresentable constant",
			body: &ir.Body{Name: "G", Block: ir.Seq(ir.Yield(ir.Lit(math.NaN())))},
			err:  "cannot be represented in Go source",
		},
		{
			name: "invalid function",
			body: &ir.Body{Name: "G", Block: ir.Seq(ir.Do("a.b.c"))},
			err:  `invalid function name "a.b.c"`,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			p, err := compiler.Compile(test.body)
			if err != nil {
				t.Fatal(err)
			}
			_, err = File(token.NewFileSet(), "gen", p)
			if err == nil || !strings.Contains(err.Error(), test.err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
