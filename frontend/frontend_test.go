package frontend

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stealthrocket/stackless"
	"github.com/stealthrocket/stackless/compiler"
	"github.com/stealthrocket/stackless/ir"
	"github.com/stealthrocket/stackless/machine"
)

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) { return f(path) }

// fakeStackless type-checks sources importing the runtime package without
// loading it.
var fakeStackless = importerFunc(func(path string) (*types.Package, error) {
	if path != stacklessPackage {
		return nil, errors.New("unknown package " + path)
	}
	pkg := types.NewPackage(stacklessPackage, "stackless")
	anyType := types.Universe.Lookup("any").Type()
	sig := types.NewSignatureType(nil, nil, nil,
		types.NewTuple(types.NewParam(token.NoPos, pkg, "v", anyType)), nil, false)
	pkg.Scope().Insert(types.NewFunc(token.NoPos, pkg, "Yield", sig))
	pkg.MarkComplete()
	return pkg, nil
})

const source = `package gen

import "github.com/stealthrocket/stackless"

func log(args ...any) {}

func square(x int) int { return x * x }

//genc:generator
func PrefixSums(n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += i
		stackless.Yield(sum)
	}
	return sum
}

//genc:generator
func Odds(n int) {
	defer log("exit", n)
	for i := range n {
		if i%2 == 0 {
			continue
		} else if i > 5 {
			break
		}
		stackless.Yield(square(i))
	}
}

//genc:generator
func Swap(a, b string) {
	a, b = b, a
	stackless.Yield(a + b)
	var c int
	var d = 2.5
	c++
	stackless.Yield(c)
	stackless.Yield(d)
}

func NotAGenerator() {}
`

func parseSource(t *testing.T, src string, typed bool) (map[string]*ast.FuncDecl, *types.Info) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "gen.go", src, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}
	var info *types.Info
	if typed {
		info = &types.Info{
			Types: map[ast.Expr]types.TypeAndValue{},
			Defs:  map[*ast.Ident]types.Object{},
			Uses:  map[*ast.Ident]types.Object{},
		}
		conf := types.Config{Importer: fakeStackless}
		if _, err := conf.Check("gen", fset, []*ast.File{f}, info); err != nil {
			t.Fatal(err)
		}
	}
	decls := map[string]*ast.FuncDecl{}
	for _, d := range f.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			decls[fn.Name.Name] = fn
		}
	}
	return decls, info
}

func TestIsGenerator(t *testing.T) {
	decls, _ := parseSource(t, source, false)
	var generators []string
	for _, name := range []string{"log", "square", "PrefixSums", "Odds", "Swap", "NotAGenerator"} {
		if IsGenerator(decls[name]) {
			generators = append(generators, name)
		}
	}
	if diff := cmp.Diff([]string{"PrefixSums", "Odds", "Swap"}, generators); diff != "" {
		t.Errorf("generators mismatch (-want +got):\n%s", diff)
	}
}

func TestLowering(t *testing.T) {
	for _, typed := range []bool{false, true} {
		name := "untyped"
		if typed {
			name = "typed"
		}
		t.Run(name, func(t *testing.T) {
			decls, info := parseSource(t, source, typed)

			var logged [][]any
			env := machine.Env{
				"log":    func(args []any) any { logged = append(logged, args); return nil },
				"square": func(args []any) any { x := args[0].(int); return x * x },
			}

			for _, test := range []struct {
				name   string
				args   []any
				steps  []stackless.Step
				logged [][]any
			}{
				{
					name: "PrefixSums",
					args: []any{4},
					steps: []stackless.Step{
						stackless.Yielded(0),
						stackless.Yielded(1),
						stackless.Yielded(3),
						stackless.Yielded(6),
						stackless.Done(6),
					},
				},
				{
					name: "Odds",
					args: []any{10},
					steps: []stackless.Step{
						stackless.Yielded(1),
						stackless.Yielded(9),
						stackless.Yielded(25),
						stackless.Done(stackless.Unit{}),
					},
					logged: [][]any{{"exit", 10}},
				},
				{
					name: "Swap",
					args: []any{"a", "b"},
					steps: []stackless.Step{
						stackless.Yielded("ba"),
						stackless.Yielded(1),
						stackless.Yielded(2.5),
						stackless.Done(stackless.Unit{}),
					},
				},
			} {
				t.Run(test.name, func(t *testing.T) {
					logged = nil
					body, err := FuncBody(decls[test.name], info)
					if err != nil {
						t.Fatal(err)
					}
					p, err := compiler.Compile(body)
					if err != nil {
						t.Fatal(err)
					}
					m, err := machine.New(p, env, test.args...)
					if err != nil {
						t.Fatal(err)
					}
					var steps []stackless.Step
					for {
						s, err := m.Resume()
						if err != nil {
							t.Fatal(err)
						}
						steps = append(steps, s)
						if s.Done {
							break
						}
					}
					if diff := cmp.Diff(test.steps, steps); diff != "" {
						t.Errorf("steps mismatch (-want +got):\n%s", diff)
					}
					if diff := cmp.Diff(test.logged, logged); diff != "" {
						t.Errorf("log mismatch (-want +got):\n%s", diff)
					}
				})
			}
		})
	}
}

func TestCaptureTypes(t *testing.T) {
	decls, info := parseSource(t, source, true)
	body, err := FuncBody(decls["Swap"], info)
	if err != nil {
		t.Fatal(err)
	}
	expect := []ir.Capture{
		{Name: "a", Type: ir.Type{Name: "string", Size: 16, Align: 8}},
		{Name: "b", Type: ir.Type{Name: "string", Size: 16, Align: 8}},
	}
	if diff := cmp.Diff(expect, body.Captures); diff != "" {
		t.Errorf("captures mismatch (-want +got):\n%s", diff)
	}

	decls, _ = parseSource(t, source, false)
	body, err = FuncBody(decls["PrefixSums"], nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]ir.Capture{{Name: "n", Type: ir.Type{Name: "int"}}}, body.Captures); diff != "" {
		t.Errorf("captures mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsupported(t *testing.T) {
	for _, test := range []struct {
		name string
		body string
		err  string
	}{
		{name: "goto", body: "goto end\nend:", err: "not implemented: goto"},
		{name: "switch", body: "switch {}", err: "not implemented: switch"},
		{name: "go", body: "go f()", err: "not implemented: go"},
		{name: "func literal", body: "f := func() {}; _ = f", err: "not implemented: func literals"},
		{name: "range with value", body: "for i, v := range s { _, _ = i, v }", err: "not implemented: range with a value"},
		{name: "labeled break", body: "loop:\nfor { break loop }", err: "not implemented: labels"},
		{name: "nested defer", body: "if true { defer f() }", err: "defer outside of the function's top-level block"},
		{name: "yield in expression", body: "x := stackless.Yield(1)", err: "Yield inside an expression"},
		{name: "method call", body: "x.y.f()", err: "not implemented: method calls"},
		{name: "index", body: "_ = s[0]", err: "not implemented: index expressions"},
		{name: "multiple results", body: "return 1, 2", err: "not implemented: multiple results"},
	} {
		t.Run(test.name, func(t *testing.T) {
			src := "package gen\n\nfunc g() {\n" + test.body + "\n}\n"
			decls, _ := parseSource(t, src, false)
			_, err := FuncBody(decls["g"], nil)
			var ferr *Error
			if !errors.As(err, &ferr) {
				t.Fatalf("expected a front end error, got %v", err)
			}
			if !strings.Contains(err.Error(), test.err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
