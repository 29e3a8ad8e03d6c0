// Package loopcall detects warehouse round trips inside loops.
package loopcall

import (
	"go/ast"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer reports warehouse calls made once per loop iteration.
var Analyzer = &analysis.Analyzer{
	Name:     "loopcall",
	Doc:      "detects warehouse calls inside loops that should go through the dimension cache or a batch append",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// warehouseMethods maps storage methods to the batched alternative.
var warehouseMethods = map[string]string{
	"GetSurrogateKey":      "resolve through DimensionResolver",
	"InsertDimensionValue": "resolve through DimensionResolver",
	"ListDimensionValues":  "load the dimension once before the loop",
	"AppendFactRows":       "collect rows and append once",
	"RecordLoadRun":        "record the run once per batch",
}

func run(pass *analysis.Pass) (any, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.RangeStmt)(nil),
		(*ast.ForStmt)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		// Test files seed fixtures row by row.
		if strings.HasSuffix(pass.Fset.Position(n.Pos()).Filename, "_test.go") {
			return
		}

		var body *ast.BlockStmt
		switch stmt := n.(type) {
		case *ast.RangeStmt:
			body = stmt.Body
		case *ast.ForStmt:
			body = stmt.Body
		}
		if body == nil {
			return
		}

		ast.Inspect(body, func(n ast.Node) bool {
			// Nested loops report their own calls.
			switch n.(type) {
			case *ast.RangeStmt, *ast.ForStmt, *ast.FuncLit:
				return false
			}

			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}

			if hint, ok := warehouseMethods[sel.Sel.Name]; ok {
				pass.Reportf(call.Pos(),
					"%s called inside loop - %s", sel.Sel.Name, hint)
			}

			return true
		})
	})

	return nil, nil
}
