package codegen

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/stealthrocket/stackless/compiler"
	"github.com/stealthrocket/stackless/frontend"
	"github.com/stealthrocket/stackless/ir"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/packages"
)

// Generate compiles the generators declared in the packages at path into
// state machines, writing one file of generated code into each package that
// declares generators.
//
// The path argument can either be a path to a package, or a pattern that
// matches multiple packages (for example, /path/to/module/...). The path can
// be absolute, or relative to the current working directory.
func Generate(path string, options ...Option) error {
	g := &generator{
		outputFilename: "genc_generated.go",
		fset:           token.NewFileSet(),
		logger:         log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(g)
	}
	return g.generate(path)
}

// Option configures Generate.
type Option func(*generator)

// WithOutputFilename instructs Generate to write generated code to a file
// with the specified name within each package that declares generators.
func WithOutputFilename(outputFilename string) Option {
	return func(g *generator) { g.outputFilename = outputFilename }
}

// WithBuildTags instructs Generate to attach the specified build tags to
// generated files.
func WithBuildTags(buildTags string) Option {
	return func(g *generator) { g.buildTags = buildTags }
}

// WithLogger instructs Generate and the compiler to report progress to
// logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *generator) { g.logger = logger }
}

// WithCompilerOptions passes options to the compiler.
func WithCompilerOptions(options ...compiler.Option) Option {
	return func(g *generator) { g.compilerOptions = append(g.compilerOptions, options...) }
}

// WithPlanOutput instructs Generate to write the YAML description of each
// compiled program to w instead of generating code.
func WithPlanOutput(w io.Writer) Option {
	return func(g *generator) { g.planOutput = w }
}

type generator struct {
	outputFilename  string
	buildTags       string
	logger          *log.Logger
	compilerOptions []compiler.Option
	planOutput      io.Writer

	fset *token.FileSet
	mu   sync.Mutex // guards planOutput
}

func (g *generator) generate(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	var dotdotdot bool
	absPath, dotdotdot = strings.CutSuffix(absPath, "...")
	if s, err := os.Stat(absPath); err != nil {
		return err
	} else if !s.IsDir() {
		// Make sure we're loading whole packages.
		absPath = filepath.Dir(absPath)
	}
	pattern := "."
	if dotdotdot {
		pattern = "./..."
	}

	g.logger.Printf("reading, parsing and type-checking")
	conf := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles |
			packages.NeedSyntax | packages.NeedTypes |
			packages.NeedTypesInfo,
		Fset: g.fset,
		Dir:  absPath,
	}
	if g.buildTags != "" {
		conf.BuildFlags = []string{"-tags", g.buildTags}
	}
	pkgs, err := packages.Load(conf, pattern)
	if err != nil {
		return fmt.Errorf("packages.Load %q: %w", path, err)
	}
	var errs []error
	for _, p := range pkgs {
		for _, e := range p.Errors {
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	group, ctx := errgroup.WithContext(context.Background())
	for _, p := range pkgs {
		group.Go(func() error { return g.generatePackage(ctx, p) })
	}
	if err := group.Wait(); err != nil {
		return err
	}
	g.logger.Printf("done")
	return nil
}

func (g *generator) generatePackage(ctx context.Context, p *packages.Package) error {
	programs, imports, err := g.compilePackage(ctx, p)
	if err != nil || len(programs) == 0 {
		return err
	}
	if g.planOutput != nil {
		return g.writePlans(programs)
	}
	file, err := g.packageFile(p, programs, imports)
	if err != nil {
		return err
	}
	output := filepath.Join(filepath.Dir(p.GoFiles[0]), g.outputFilename)
	g.logger.Printf("writing %s", output)
	return g.writeFile(output, file)
}

// compilePackage compiles the generators declared in p. It also returns the
// imports of the files declaring them.
func (g *generator) compilePackage(ctx context.Context, p *packages.Package) ([]*compiler.Program, []*ast.ImportSpec, error) {
	var bodies []*ir.Body
	var imports []*ast.ImportSpec

	for _, f := range p.Syntax {
		if filepath.Base(g.fset.File(f.Pos()).Name()) == g.outputFilename {
			continue
		}
		var found bool
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !frontend.IsGenerator(fn) {
				continue
			}
			body, err := frontend.FuncBody(fn, p.TypesInfo)
			if err != nil {
				pos := fn.Pos()
				var ferr *frontend.Error
				if errors.As(err, &ferr) && ferr.Pos.IsValid() {
					pos = ferr.Pos
				}
				return nil, nil, fmt.Errorf("%s: %w", g.fset.Position(pos), err)
			}
			bodies = append(bodies, body)
			found = true
		}
		if found {
			imports = append(imports, f.Imports...)
		}
	}
	if len(bodies) == 0 {
		return nil, nil, nil
	}

	g.logger.Printf("compiling %d generators of package %s", len(bodies), p.PkgPath)
	options := append([]compiler.Option{compiler.WithLogger(g.logger)}, g.compilerOptions...)
	programs, err := compiler.CompileAll(ctx, bodies, options...)
	if err != nil {
		return nil, nil, fmt.Errorf("package %s: %w", p.PkgPath, err)
	}
	return programs, imports, nil
}

// packageFile returns the file of generated code of package p.
func (g *generator) packageFile(p *packages.Package, programs []*compiler.Program, imports []*ast.ImportSpec) (*ast.File, error) {
	file, err := File(g.fset, p.Name, programs...)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", p.PkgPath, err)
	}
	// Host functions and types of other packages are named the way the
	// source files import them.
	for _, spec := range imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return nil, err
		}
		var name string
		if spec.Name != nil {
			name = spec.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		if astutil.AddNamedImport(g.fset, file, name, path) && !astutil.UsesImport(file, path) {
			astutil.DeleteNamedImport(g.fset, file, name, path)
		}
	}
	return file, nil
}

func (g *generator) writePlans(programs []*compiler.Program) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range programs {
		b, err := p.Describe().YAML()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(g.planOutput, "---\n%s", b); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) writeFile(path string, file *ast.File) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Format(f, g.fset, file, g.buildTags); err != nil {
		return err
	}
	return f.Close()
}
