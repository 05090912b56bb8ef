package frontend

import (
	"fmt"
	"go/ast"
	"go/token"
)

// unsupported checks a generator for language features the front end cannot
// lower.
func unsupported(decl *ast.FuncDecl) (err error) {
	if decl.Recv != nil {
		return fmt.Errorf("not implemented: methods")
	}
	if decl.Type.TypeParams != nil {
		return fmt.Errorf("not implemented: type parameters")
	}
	if results := decl.Type.Results; results != nil && results.NumFields() > 1 {
		return fmt.Errorf("not implemented: multiple results")
	}
	if results := decl.Type.Results; results != nil && len(results.List) == 1 && len(results.List[0].Names) > 0 {
		return fmt.Errorf("not implemented: named results")
	}

	ast.Inspect(decl.Body, func(node ast.Node) bool {
		if err != nil {
			return false
		}
		switch n := node.(type) {
		case ast.Expr:
			switch n.(type) {
			case *ast.FuncLit:
				err = fmt.Errorf("not implemented: func literals")
			case *ast.CompositeLit:
				err = fmt.Errorf("not implemented: composite literals")
			case *ast.IndexExpr, *ast.IndexListExpr, *ast.SliceExpr:
				err = fmt.Errorf("not implemented: index expressions")
			case *ast.StarExpr:
				err = fmt.Errorf("not implemented: pointer indirection")
			case *ast.TypeAssertExpr:
				err = fmt.Errorf("not implemented: type assertions")
			case *ast.KeyValueExpr:
				err = fmt.Errorf("not implemented: key/value expressions")
			}

		case ast.Stmt:
			switch n := n.(type) {
			// Not supported:
			case *ast.GoStmt:
				err = fmt.Errorf("not implemented: go")
			case *ast.SelectStmt, *ast.CommClause, *ast.SendStmt:
				err = fmt.Errorf("not implemented: channel operations")
			case *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.CaseClause:
				err = fmt.Errorf("not implemented: switch")
			case *ast.LabeledStmt:
				err = fmt.Errorf("not implemented: labels")

			// Partially supported:
			case *ast.BranchStmt:
				switch {
				case n.Tok == token.GOTO:
					err = fmt.Errorf("not implemented: goto")
				case n.Tok == token.FALLTHROUGH:
					err = fmt.Errorf("not implemented: fallthrough")
				case n.Label != nil:
					err = fmt.Errorf("not implemented: %s with a label", n.Tok)
				}
			case *ast.RangeStmt:
				// Only integer ranges are supported, checked when lowering.
				if n.Value != nil {
					err = fmt.Errorf("not implemented: range with a value")
				} else if n.Key != nil && n.Tok != token.DEFINE && !isUnderscore(n.Key) {
					err = fmt.Errorf("not implemented: range assigning an existing variable")
				}
			case *ast.ReturnStmt:
				if len(n.Results) > 1 {
					err = fmt.Errorf("not implemented: multiple results")
				}
			case *ast.AssignStmt:
				for _, lhs := range n.Lhs {
					if _, ok := lhs.(*ast.Ident); !ok {
						err = fmt.Errorf("not implemented: assignment to %T", lhs)
					}
				}
				if len(n.Lhs) != len(n.Rhs) {
					err = fmt.Errorf("not implemented: assignment with unbalanced sides")
				}
			case *ast.IncDecStmt:
				if _, ok := n.X.(*ast.Ident); !ok {
					err = fmt.Errorf("not implemented: %s of %T", n.Tok, n.X)
				}

			// Fully supported:
			case *ast.BlockStmt:
			case *ast.DeclStmt:
			case *ast.DeferStmt:
			case *ast.EmptyStmt:
			case *ast.ExprStmt:
			case *ast.ForStmt:
			case *ast.IfStmt:

			// Catch all in case new statements are added:
			default:
				err = fmt.Errorf("not implemented: ast.Stmt(%T)", n)
			}
		}
		return err == nil
	})

	if err == nil {
		ast.Inspect(decl.Body, func(node ast.Node) bool {
			if b, ok := node.(*ast.BlockStmt); ok && b != decl.Body {
				for _, stmt := range b.List {
					if _, ok := stmt.(*ast.DeferStmt); ok {
						err = fmt.Errorf("not implemented: defer outside of the function's top-level block")
					}
				}
			}
			return err == nil
		})
	}
	return err
}

func isUnderscore(e ast.Expr) bool {
	i, ok := e.(*ast.Ident)
	return ok && i.Name == "_"
}
