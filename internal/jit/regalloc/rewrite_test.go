package regalloc

import (
	"testing"

	"github.com/tangzhangming/nova/internal/compiler"
	"github.com/tangzhangming/nova/internal/jit/hir"
	"github.com/tangzhangming/nova/internal/jit/lir"
	"github.com/tangzhangming/nova/internal/jit/target"
)

func buildAndApply(t *testing.T, n int) *lir.Func {
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
	ApplyAllocation(lfn, alloc)
	return lfn
}

func TestApplyAllocationLeavesNoVirtualOperands(t *testing.T) {
	lfn := buildAndApply(t, 16)
	for _, b := range lfn.Blocks {
		for _, v := range b.Code {
			switch n := v.(type) {
			case *lir.Gap:
				for _, mv := range n.Moves {
					if mv.From.IsVirtual() || mv.To.IsVirtual() {
						t.Fatalf("gap move still virtual: %v -> %v", mv.From, mv.To)
					}
				}
			case *lir.Instr:
				for _, u := range n.Uses {
					if u.IsVirtual() {
						t.Fatalf("instr %d use still virtual: %v", n.ID, u)
					}
				}
				for _, d := range n.Defs {
					if d.IsVirtual() {
						t.Fatalf("instr %d def still virtual: %v", n.ID, d)
					}
				}
			}
		}
	}
}

func TestApplyAllocationSmallFunctionHasNoBoundaryMoves(t *testing.T) {
	// With only 2 live values and 13 registers nothing should ever need to
	// split, so no block-boundary reconciliation moves should appear.
	lfn := buildAndApply(t, 2)
	for _, b := range lfn.Blocks {
		for _, v := range b.Code {
			if gap, ok := v.(*lir.Gap); ok && len(gap.Moves) > 0 {
				for _, mv := range gap.Moves {
					if mv.From == mv.To {
						t.Errorf("resolved move is a no-op: %v", mv)
					}
				}
			}
		}
	}
}
