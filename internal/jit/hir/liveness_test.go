// liveness_test.go - fixed point liveness over hand-built CFGs

package hir

import (
	"testing"

	"github.com/tangzhangming/nova/internal/jit/zone"
)

// straightLine builds: v0 = load_root; v1 = load_root; v2 = binop v0 v1; return v2
func straightLine() *Func {
	z := zone.New()
	fn := NewFunc(z, "straight", 0, 0)
	fn.Entry.Append(fn.NewInstr(OpEntry))
	v0 := fn.NewInstr(OpLoadRoot)
	fn.Entry.Append(v0)
	v1 := fn.NewInstr(OpLoadRoot)
	fn.Entry.Append(v1)
	v2 := fn.NewInstr(OpBinOp)
	v2.Args = []*Instr{v0, v1}
	fn.Entry.Append(v2)
	ret := fn.NewInstr(OpReturn)
	ret.Args = []*Instr{v2}
	fn.Entry.Append(ret)
	fn.Finish()
	return fn
}

func TestLivenessStraightLine(t *testing.T) {
	fn := straightLine()
	lv := ComputeLiveness(fn)
	if len(lv.LiveOut[fn.Entry]) != 0 {
		t.Errorf("entry block should have empty live-out in a single-block function, got %d", len(lv.LiveOut[fn.Entry]))
	}
}

// diamond builds a branch-then-join CFG:
//
//	entry: branch_bool v0 -> then, else
//	then:  v1 = load_root; goto join
//	else:  v2 = load_root; goto join
//	join:  v3 = phi(v1, v2); return v3
//
// v1 must be live across the then->join edge and v2 across else->join, but
// neither should be live across the other branch.
func diamond() (*Func, *Instr, *Instr) {
	z := zone.New()
	fn := NewFunc(z, "diamond", 0, 0)
	cond := fn.NewInstr(OpLoadRoot)
	fn.Entry.Append(fn.NewInstr(OpEntry))
	fn.Entry.Append(cond)
	br := fn.NewInstr(OpBranchBool)
	br.Args = []*Instr{cond}

	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	joinB := fn.NewBlock()
	fn.Connect(fn.Entry, thenB)
	fn.Connect(fn.Entry, elseB)
	br.Targets = []*Block{thenB, elseB}
	fn.Entry.Append(br)

	v1 := fn.NewInstr(OpLoadRoot)
	thenB.Append(v1)
	gotoJoin1 := fn.NewInstr(OpGoto)
	gotoJoin1.Targets = []*Block{joinB}
	fn.Connect(thenB, joinB)
	thenB.Append(gotoJoin1)

	v2 := fn.NewInstr(OpLoadRoot)
	elseB.Append(v2)
	gotoJoin2 := fn.NewInstr(OpGoto)
	gotoJoin2.Targets = []*Block{joinB}
	fn.Connect(elseB, joinB)
	elseB.Append(gotoJoin2)

	phi := fn.NewInstr(OpPhi)
	idxThen := joinB.predIndex(thenB)
	idxElse := joinB.predIndex(elseB)
	phi.Args = make([]*Instr, 2)
	phi.Args[idxThen] = v1
	phi.Args[idxElse] = v2
	joinB.InsertPhi(phi)
	ret := fn.NewInstr(OpReturn)
	ret.Args = []*Instr{phi}
	joinB.Append(ret)

	fn.Finish()
	return fn, v1, v2
}

func TestLivenessDiamondPhiOperandsAreEdgeLocal(t *testing.T) {
	fn, v1, v2 := diamond()
	lv := ComputeLiveness(fn)

	var thenB, elseB *Block
	for _, b := range fn.RPOBlocks {
		if len(b.Preds) == 1 && b.Preds[0] == fn.Entry {
			if thenB == nil {
				thenB = b
			} else {
				elseB = b
			}
		}
	}
	if thenB == nil || elseB == nil {
		t.Fatal("expected two single-predecessor blocks off entry")
	}

	if !lv.LiveOut[thenB][v1] {
		t.Error("v1 should be live-out of its defining block (consumed by the join's Phi)")
	}
	if lv.LiveOut[thenB][v2] {
		t.Error("v2 must not be live across the then branch, it is only used on the else edge")
	}
	if !lv.LiveOut[elseB][v2] {
		t.Error("v2 should be live-out of its defining block (consumed by the join's Phi)")
	}
}

func TestDominatorsOfDiamond(t *testing.T) {
	fn, _, _ := diamond()
	join := fn.RPOBlocks[len(fn.RPOBlocks)-1]
	if join.IDom != fn.Entry {
		t.Errorf("join block's immediate dominator should be entry, got block%d", join.IDom.ID)
	}
	if len(fn.Entry.DomFront) != 0 {
		t.Errorf("entry should have an empty dominance frontier, got %d blocks", len(fn.Entry.DomFront))
	}
}
