// lower_test.go - HIR -> LIR lowering, including Phi elimination into Gap
// moves on the edges feeding a join block.

package lir

import (
	"testing"

	"github.com/tangzhangming/nova/internal/ast"
	"github.com/tangzhangming/nova/internal/compiler"
	"github.com/tangzhangming/nova/internal/jit/hir"
	"github.com/tangzhangming/nova/internal/jit/target"
	"github.com/tangzhangming/nova/internal/jit/zone"
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

// absMethod: function abs($x) { if ($x < 0) { $x = 0 - $x; } return $x; }
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

func TestLowerEliminatesPhiIntoGapMove(t *testing.T) {
	hfn, err := hir.Build(absMethod(), compiler.NewSymbolTable())
	if err != nil {
		t.Fatalf("hir.Build: %v", err)
	}
	lfn, err := Lower(hfn, target.FromNative())
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	for _, b := range lfn.Blocks {
		for _, v := range b.Code {
			if instr, ok := v.(*Instr); ok && instr.HIROp == hir.OpPhi {
				t.Fatalf("lowered LIR must contain no Phi instructions, found one in block%d", b.ID)
			}
		}
	}

	found := false
	for _, b := range lfn.Blocks {
		for _, v := range b.Code {
			gap, ok := v.(*Gap)
			if !ok {
				continue
			}
			for _, mv := range gap.Moves {
				if mv.To.IsVirtual() {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected at least one Gap move resolving the join block's Phi")
	}
}

// TestSplitCriticalEdges builds a CFG with one genuinely critical edge —
// entry has two successors (b, c) and c has two predecessors (entry, b) —
// and checks that edge gets its own block rather than sharing entry or c.
func TestSplitCriticalEdges(t *testing.T) {
	z := zone.New()
	fn := newFunc(z, "crit")
	entry := fn.newBlock(0)
	b := fn.newBlock(1)
	c := fn.newBlock(2)
	fn.Blocks = []*Block{entry, b, c}

	entry.addSucc(b)
	entry.addSucc(c)
	b.addSucc(c)

	owner := SplitCriticalEdges(fn)

	entryToC := owner(entry, c)
	if entryToC == entry || entryToC == c {
		t.Errorf("entry->c is critical (entry has 2 succs, c has 2 preds) and should own its own block, got %p", entryToC)
	}
	bToC := owner(b, c)
	if bToC != b {
		t.Errorf("b->c is not critical (b has only one successor); expected b to own it directly, got %p want %p", bToC, b)
	}
	entryToB := owner(entry, b)
	if entryToB != entry {
		t.Errorf("entry->b is not critical (b has only one predecessor); expected entry to own it directly, got %p want %p", entryToB, entry)
	}
}
