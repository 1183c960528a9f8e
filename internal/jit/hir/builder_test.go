// builder_test.go - builds HIR directly from hand-constructed AST nodes,
// the same way parser output would reach hir.Build without depending on a
// live lexer/parser.

package hir

import (
	"testing"

	"github.com/tangzhangming/nova/internal/ast"
	"github.com/tangzhangming/nova/internal/compiler"
	"github.com/tangzhangming/nova/internal/token"
)

func ident(name string) *ast.Identifier {
	return &ast.Identifier{Token: token.New(token.IDENT, name, token.Position{}), Name: name}
}

func variable(name string) *ast.Variable {
	return &ast.Variable{Token: token.New(token.VARIABLE, name, token.Position{}), Name: name}
}

func intLit(v int64) *ast.IntegerLiteral {
	return &ast.IntegerLiteral{Token: token.New(token.INT, "", token.Position{}), Value: v}
}

func opTok(lit string) token.Token {
	return token.New(token.IDENT, lit, token.Position{})
}

// sumMethod builds: function sum($a, $b) { return $a + $b; }
func sumMethod() *ast.MethodDecl {
	return &ast.MethodDecl{
		Name: ident("sum"),
		Parameters: []*ast.Parameter{
			{Name: variable("a")},
			{Name: variable("b")},
		},
		Body: &ast.BlockStmt{
			Statements: []ast.Statement{
				&ast.ReturnStmt{
					Values: []ast.Expression{
						&ast.BinaryExpr{
							Left:     variable("a"),
							Operator: opTok("+"),
							Right:    variable("b"),
						},
					},
				},
			},
		},
	}
}

func TestBuildSumHasSingleBlockAndReturnsBinOp(t *testing.T) {
	fn, err := Build(sumMethod(), compiler.NewSymbolTable())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(fn.RPOBlocks) != 1 {
		t.Fatalf("expected a single block for straight-line code, got %d", len(fn.RPOBlocks))
	}
	term := fn.Entry.Terminator()
	if term == nil || term.Op != OpReturn {
		t.Fatalf("expected a Return terminator, got %v", term)
	}
	if len(term.Args) != 1 || term.Args[0].Op != OpBinOp {
		t.Fatalf("expected return of a BinOp, got %#v", term.Args)
	}
	if term.Args[0].BinOp != BinAdd {
		t.Errorf("expected BinAdd, got %v", term.Args[0].BinOp)
	}
}

// absMethod builds a branch whose then-arm reassigns $x before both paths
// reach one shared return, exercising Phi insertion and sealing of the
// join block.
//
//	function abs($x) {
//	  if ($x < 0) { $x = 0 - $x; }
//	  return $x;
//	}
func absMethod() *ast.MethodDecl {
	return &ast.MethodDecl{
		Name:       ident("abs"),
		Parameters: []*ast.Parameter{{Name: variable("x")}},
		Body: &ast.BlockStmt{
			Statements: []ast.Statement{
				&ast.IfStmt{
					Condition: &ast.BinaryExpr{Left: variable("x"), Operator: opTok("<"), Right: intLit(0)},
					Then: &ast.BlockStmt{Statements: []ast.Statement{
						&ast.ExprStmt{Expr: &ast.AssignExpr{
							Left:     variable("x"),
							Operator: opTok("="),
							Right:    &ast.BinaryExpr{Left: intLit(0), Operator: opTok("-"), Right: variable("x")},
						}},
					}},
				},
				&ast.ReturnStmt{Values: []ast.Expression{variable("x")}},
			},
		},
	}
}

func TestBuildAbsInsertsPhiAtJoin(t *testing.T) {
	fn, err := Build(absMethod(), compiler.NewSymbolTable())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(fn.RPOBlocks) != 3 {
		t.Fatalf("expected entry/then/join, got %d blocks", len(fn.RPOBlocks))
	}
	join := fn.RPOBlocks[len(fn.RPOBlocks)-1]
	phis := join.Phis()
	if len(phis) != 1 {
		t.Fatalf("expected exactly one Phi at the join block, got %d", len(phis))
	}
	ret := join.Terminator()
	if ret == nil || ret.Op != OpReturn || ret.Args[0] != phis[0] {
		t.Fatal("return should read the join Phi, not a stale definition of $x")
	}
}
