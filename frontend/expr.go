package frontend

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"strconv"

	"github.com/stealthrocket/stackless/ir"
	"golang.org/x/tools/go/ast/astutil"
)

func (l *lowering) expr(e ast.Expr) (ir.Expr, error) {
	e = astutil.Unparen(e)

	if l.info != nil {
		if tv, ok := l.info.Types[e]; ok && tv.Value != nil {
			if v, ok := constantValue(tv.Value, tv.Type); ok {
				return &ir.Const{Value: v}, nil
			}
		}
	}

	switch x := e.(type) {
	case *ast.BasicLit:
		v, err := literal(x)
		if err != nil {
			return nil, err
		}
		return &ir.Const{Value: v}, nil

	case *ast.Ident:
		switch x.Name {
		case "true", "false":
			if l.isUniverse(x) {
				return &ir.Const{Value: x.Name == "true"}, nil
			}
		case "nil":
			if l.isUniverse(x) {
				return &ir.Const{Value: nil}, nil
			}
		}
		return &ir.Ref{Name: x.Name}, nil

	case *ast.UnaryExpr:
		switch x.Op {
		case token.SUB, token.ADD, token.NOT, token.XOR:
		default:
			return nil, fmt.Errorf("not implemented: unary operator %s", x.Op)
		}
		operand, err := l.expr(x.X)
		if err != nil {
			return nil, err
		}
		return &ir.Unary{Op: x.Op, X: operand}, nil

	case *ast.BinaryExpr:
		lhs, err := l.expr(x.X)
		if err != nil {
			return nil, err
		}
		rhs, err := l.expr(x.Y)
		if err != nil {
			return nil, err
		}
		return &ir.Binary{Op: x.Op, X: lhs, Y: rhs}, nil

	case *ast.CallExpr:
		if l.isYield(x) {
			return nil, fmt.Errorf("not implemented: Yield inside an expression")
		}
		if x.Ellipsis.IsValid() {
			return nil, fmt.Errorf("not implemented: variadic call with ...")
		}
		fn, err := l.funcName(x.Fun)
		if err != nil {
			return nil, err
		}
		call := &ir.Call{Func: fn}
		for _, arg := range x.Args {
			v, err := l.expr(arg)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, v)
		}
		return call, nil

	default:
		return nil, fmt.Errorf("not implemented: ast.Expr(%T)", e)
	}
}

func (l *lowering) isUniverse(id *ast.Ident) bool {
	if l.info == nil {
		return true
	}
	obj := l.info.ObjectOf(id)
	return obj == nil || obj == types.Universe.Lookup(id.Name)
}

// funcName returns the name under which the host environment provides the
// function called by fun: "f" for local functions, "pkg.F" for functions of
// imported packages.
func (l *lowering) funcName(fun ast.Expr) (string, error) {
	switch f := astutil.Unparen(fun).(type) {
	case *ast.Ident:
		return f.Name, nil
	case *ast.SelectorExpr:
		if x, ok := f.X.(*ast.Ident); ok {
			if l.info == nil {
				return x.Name + "." + f.Sel.Name, nil
			}
			if pkg, ok := l.info.ObjectOf(x).(*types.PkgName); ok {
				return pkg.Imported().Name() + "." + f.Sel.Name, nil
			}
		}
		return "", fmt.Errorf("not implemented: method calls")
	default:
		return "", fmt.Errorf("not implemented: call of %T", fun)
	}
}

// isYield reports whether call marks a suspension point.
func (l *lowering) isYield(call *ast.CallExpr) bool {
	var id *ast.Ident
	switch f := astutil.Unparen(call.Fun).(type) {
	case *ast.Ident:
		id = f
	case *ast.SelectorExpr:
		id = f.Sel
		if l.info == nil {
			x, ok := f.X.(*ast.Ident)
			return ok && x.Name == "stackless" && f.Sel.Name == "Yield"
		}
	default:
		return false
	}
	if id.Name != "Yield" {
		return false
	}
	if l.info == nil {
		return true
	}
	fn, ok := l.info.ObjectOf(id).(*types.Func)
	return ok && fn.Pkg() != nil && fn.Pkg().Path() == stacklessPackage
}

func literal(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		v, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, err
		}
		return int(v), nil
	case token.FLOAT:
		return strconv.ParseFloat(lit.Value, 64)
	case token.STRING:
		return strconv.Unquote(lit.Value)
	case token.CHAR:
		v, _, _, err := strconv.UnquoteChar(lit.Value[1:len(lit.Value)-1], '\'')
		if err != nil {
			return nil, err
		}
		return int(v), nil
	default:
		return nil, fmt.Errorf("not implemented: literal %s", lit.Kind)
	}
}

// constantValue converts a constant to the value representing it at run
// time, following the type the checker inferred for it.
func constantValue(v constant.Value, t types.Type) (any, bool) {
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		return nil, false
	}
	switch {
	case basic.Kind() == types.Int64:
		i, exact := constant.Int64Val(v)
		return i, exact
	case basic.Info()&types.IsInteger != 0:
		i, exact := constant.Int64Val(constant.ToInt(v))
		return int(i), exact
	case basic.Info()&types.IsFloat != 0:
		f, _ := constant.Float64Val(constant.ToFloat(v))
		return f, true
	case basic.Info()&types.IsString != 0:
		return constant.StringVal(v), true
	case basic.Info()&types.IsBoolean != 0:
		return constant.BoolVal(v), true
	default:
		return nil, false
	}
}
