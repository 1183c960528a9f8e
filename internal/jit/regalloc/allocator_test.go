// allocator_test.go - soundness properties of the linear-scan allocator:
// no two intervals live at the same position ever share a physical
// register, and every UseFixed constraint is honored at its position.

package regalloc

import (
	"testing"

	"github.com/tangzhangming/nova/internal/ast"
	"github.com/tangzhangming/nova/internal/compiler"
	"github.com/tangzhangming/nova/internal/jit/hir"
	"github.com/tangzhangming/nova/internal/jit/lir"
	"github.com/tangzhangming/nova/internal/jit/target"
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

// manyLocalsMethod builds a function with more live simultaneous values
// than general-purpose registers, forcing the allocator to spill:
//
//	function f($a) {
//	  $v0 = $a + 1; $v1 = $a + 2; ... $v15 = $a + 16;
//	  return $v0 + $v1 + $v2 + ... + $v15;
//	}
//
// Every $vN stays live from its definition all the way to the final sum,
// so at the point the last one is defined there are 16 simultaneously live
// values contending for 13 general-purpose registers.
func manyLocalsMethod(n int) *ast.MethodDecl {
	stmts := []ast.Statement{}
	var names []string
	for i := 0; i < n; i++ {
		name := "v" + string(rune('a'+i))
		names = append(names, name)
		stmts = append(stmts, &ast.VarDeclStmt{
			Name:  variable(name),
			Value: &ast.BinaryExpr{Left: variable("a"), Operator: opTok("+"), Right: intLit(int64(i + 1))},
		})
	}
	sum := ast.Expression(variable(names[0]))
	for _, name := range names[1:] {
		sum = &ast.BinaryExpr{Left: sum, Operator: opTok("+"), Right: variable(name)}
	}
	stmts = append(stmts, &ast.ReturnStmt{Values: []ast.Expression{sum}})

	return &ast.MethodDecl{
		Name:       ident("f"),
		Parameters: []*ast.Parameter{{Name: variable("a")}},
		Body:       &ast.BlockStmt{Statements: stmts},
	}
}

func buildAllocation(t *testing.T, n int) *Allocation {
	t.Helper()
	hfn, err := hir.Build(manyLocalsMethod(n), compiler.NewSymbolTable())
	if err != nil {
		t.Fatalf("hir.Build: %v", err)
	}
	lfn, err := lir.Lower(hfn, target.FromNative())
	if err != nil {
		t.Fatalf("lir.Lower: %v", err)
	}
	intervals := BuildIntervals(lfn, target.FromNative())
	alloc := NewAllocator(target.FromNative()).Allocate(intervals)
	return alloc
}

func TestAllocatorForcesSpillWhenOversubscribed(t *testing.T) {
	alloc := buildAllocation(t, 16)
	spilled := false
	for _, iv := range alloc.Intervals {
		if iv.Reg < 0 && iv.Kind == KindNormal {
			spilled = true
		}
	}
	if !spilled {
		t.Error("expected at least one spilled interval with 16 simultaneously live values and 13 GP registers")
	}
	if alloc.NumSlots == 0 {
		t.Error("expected NumSlots > 0 once a spill occurred")
	}
}

func TestNoTwoOverlappingIntervalsShareARegister(t *testing.T) {
	alloc := buildAllocation(t, 16)

	var withRegs []*Interval
	for _, iv := range alloc.Intervals {
		if iv.Reg >= 0 {
			withRegs = append(withRegs, iv)
		}
	}
	for i := 0; i < len(withRegs); i++ {
		for j := i + 1; j < len(withRegs); j++ {
			a, b := withRegs[i], withRegs[j]
			if a.Reg != b.Reg {
				continue
			}
			if rangesOverlap(a, b) {
				t.Fatalf("interval %d and %d both assigned register %d while overlapping", a.ID, b.ID, a.Reg)
			}
		}
	}
}

func rangesOverlap(a, b *Interval) bool {
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			from := ra.From
			if rb.From > from {
				from = rb.From
			}
			to := ra.To
			if rb.To < to {
				to = rb.To
			}
			if from < to {
				return true
			}
		}
	}
	return false
}

func TestSmallFunctionNeverSpills(t *testing.T) {
	alloc := buildAllocation(t, 2)
	for _, iv := range alloc.Intervals {
		if iv.Kind == KindNormal && iv.Reg < 0 {
			t.Errorf("interval %d unexpectedly spilled in a function with only 2 live values", iv.ID)
		}
	}
}

// callAcrossMethod builds a function with several locals live across a
// call, then used again afterward, plus a call that takes two of those
// locals as arguments and whose result also survives into the final sum:
//
//	function f($a) {
//	  $v0 = $a + 1; ... $vN-1 = $a + N;
//	  $r = callee($v0, $v1);
//	  return $v0 + $v1 + ... + $vN-1 + $r;
//	}
//
// Every $vN is live both before and after the call, so the allocator must
// either keep it in a callee-saved register across the call or split and
// spill it around the call's clobber set rather than letting it share a
// caller-saved register with the call.
func callAcrossMethod(nLocals int) *ast.MethodDecl {
	stmts := []ast.Statement{}
	var names []string
	for i := 0; i < nLocals; i++ {
		name := "v" + string(rune('a'+i))
		names = append(names, name)
		stmts = append(stmts, &ast.VarDeclStmt{
			Name:  variable(name),
			Value: &ast.BinaryExpr{Left: variable("a"), Operator: opTok("+"), Right: intLit(int64(i + 1))},
		})
	}
	stmts = append(stmts, &ast.VarDeclStmt{
		Name: variable("r"),
		Value: &ast.CallExpr{
			Function:  ident("callee"),
			Arguments: []ast.Expression{variable(names[0]), variable(names[1])},
		},
	})
	sum := ast.Expression(variable(names[0]))
	for _, name := range names[1:] {
		sum = &ast.BinaryExpr{Left: sum, Operator: opTok("+"), Right: variable(name)}
	}
	sum = &ast.BinaryExpr{Left: sum, Operator: opTok("+"), Right: variable("r")}
	stmts = append(stmts, &ast.ReturnStmt{Values: []ast.Expression{sum}})

	return &ast.MethodDecl{
		Name:       ident("f"),
		Parameters: []*ast.Parameter{{Name: variable("a")}},
		Body:       &ast.BlockStmt{Statements: stmts},
	}
}

func buildCallLIR(t *testing.T, nLocals int) (*lir.Func, target.Desc) {
	t.Helper()
	td := target.FromNative()
	hfn, err := hir.Build(callAcrossMethod(nLocals), compiler.NewSymbolTable())
	if err != nil {
		t.Fatalf("hir.Build: %v", err)
	}
	lfn, err := lir.Lower(hfn, td)
	if err != nil {
		t.Fatalf("lir.Lower: %v", err)
	}
	return lfn, td
}

func findCall(fn *lir.Func) *lir.Instr {
	for _, b := range fn.Blocks {
		for _, v := range b.Code {
			if instr, ok := v.(*lir.Instr); ok && instr.IsCall() {
				return instr
			}
		}
	}
	return nil
}

// TestNoLiveValueSharesARegisterWithACallClobber exercises the Fixed-interval
// conflict the allocator's KindFixed handling exists for: a value whose
// interval already holds a register when a call clobbers that same register
// must be evicted and split rather than left sharing it across the call.
func TestNoLiveValueSharesARegisterWithACallClobber(t *testing.T) {
	lfn, td := buildCallLIR(t, 10)
	intervals := BuildIntervals(lfn, td)
	alloc := NewAllocator(td).Allocate(intervals)

	var withRegs []*Interval
	for _, iv := range alloc.Intervals {
		if iv.Reg >= 0 {
			withRegs = append(withRegs, iv)
		}
	}
	for i := 0; i < len(withRegs); i++ {
		for j := i + 1; j < len(withRegs); j++ {
			a, b := withRegs[i], withRegs[j]
			if a.Reg != b.Reg {
				continue
			}
			if rangesOverlap(a, b) {
				t.Fatalf("interval %d (kind %v) and %d (kind %v) both assigned register %d while overlapping",
					a.ID, a.Kind, b.ID, b.Kind, a.Reg)
			}
		}
	}
}

// TestCallArgsAndResultLandInFixedRegisters validates the rewrite.go pass
// that enforces UseFixed: after ApplyAllocation, a call's argument operands
// must be exactly the calling convention's ArgRegs, in order, and its result
// operand must be exactly RetReg, regardless of wherever the allocator chose
// to keep the underlying values the rest of the time.
func TestCallArgsAndResultLandInFixedRegisters(t *testing.T) {
	lfn, td := buildCallLIR(t, 10)
	intervals := BuildIntervals(lfn, td)
	alloc := NewAllocator(td).Allocate(intervals)
	ApplyAllocation(lfn, alloc)

	call := findCall(lfn)
	if call == nil {
		t.Fatal("expected a call instruction in the lowered function")
	}
	if len(call.Uses) != 2 {
		t.Fatalf("expected 2 call args, got %d", len(call.Uses))
	}
	for i, u := range call.Uses {
		want := lir.Register(td.ArgRegs[i], u.IsFloat)
		if u != want {
			t.Errorf("call arg %d landed in %v, want %v", i, u, want)
		}
	}
	if len(call.Defs) != 1 {
		t.Fatalf("expected 1 call result, got %d", len(call.Defs))
	}
	want := lir.Register(td.RetReg, call.Defs[0].IsFloat)
	if call.Defs[0] != want {
		t.Errorf("call result landed in %v, want %v", call.Defs[0], want)
	}
}
