package regalloc

import (
	"github.com/tangzhangming/nova/internal/jit/lir"
	"github.com/tangzhangming/nova/internal/jit/moveresolve"
)

// spillScratch is the moveresolve.ScratchProvider ApplyAllocation hands to
// the resolver: every cycle it needs to break gets a spill slot beyond the
// ones Allocate already assigned real intervals, numbered so it never
// aliases a spilled interval's slot. Released slots go back on a free list
// so two cycles in different Gaps reuse the same scratch slot instead of
// each growing the frame.
type spillScratch struct {
	next int
	free []int
}

func (s *spillScratch) Acquire(isFloat bool) lir.Operand {
	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		s.free = s.free[:n-1]
		return lir.Spill(slot, isFloat)
	}
	slot := s.next
	s.next++
	return lir.Spill(slot, isFloat)
}

func (s *spillScratch) Release(op lir.Operand) {
	s.free = append(s.free, op.Slot)
}

// ApplyAllocation rewrites every virtual operand left in fn by lir.Lower
// into the concrete register or spill slot Allocate assigned the owning
// interval at that exact position, then reconciles values split across a
// block boundary: where a predecessor leaves a value in one location and a
// successor needs it in another (because an interval covering both sides of
// the edge was split somewhere in between), a move is inserted on that
// edge. SplitCriticalEdges already guarantees every edge that might need
// such a move has somewhere unambiguous to put it — either the
// predecessor's trailing Gap, if it has only one successor, or the
// successor's entry Gap, if it has only one predecessor.
//
// Both sources of Gap moves — Phi elimination (already present from
// lir.Lower, still holding virtual operands at this point) and the
// boundary reconciliation this function adds — are folded together and run
// through moveresolve.Resolve per Gap, since a single Gap can carry moves
// from both origins that must be sequenced as one parallel move.
//
// Returns the total number of spill slots the frame must reserve.
func ApplyAllocation(fn *lir.Func, alloc *Allocation) int {
	posOf, _ := fn.Number()

	roots := make(map[int]*Interval)
	for _, iv := range alloc.Intervals {
		if iv.Kind == KindNormal && iv.Parent == nil {
			roots[vkey(iv.Virt, iv.IsFloat)] = iv
		}
	}
	resolveOperand := func(op lir.Operand, pos lir.Position) lir.Operand {
		if !op.IsVirtual() {
			return op
		}
		root := roots[vkey(op.Virt, op.IsFloat)]
		reg, slot, spilled := root.OperandAt(pos)
		return concreteOperand(reg, slot, spilled, op.IsFloat)
	}

	for _, b := range fn.Blocks {
		for _, v := range b.Code {
			switch n := v.(type) {
			case *lir.Gap:
				pos := posOf[n]
				for i, mv := range n.Moves {
					n.Moves[i] = lir.MovePair{From: resolveOperand(mv.From, pos), To: resolveOperand(mv.To, pos)}
				}
			case *lir.Instr:
				pos := posOf[n]
				for i, u := range n.Uses {
					n.Uses[i] = resolveOperand(u, pos)
				}
				for i, d := range n.Defs {
					n.Defs[i] = resolveOperand(d, pos+lir.PositionStep)
				}
			}
		}
	}

	// A UseFixed constraint names a specific physical register the
	// instruction itself reads or writes (a calling convention's argument
	// registers, the return-value register) — resolveOperand above only
	// placed the value wherever its interval lives at that position, which
	// is not necessarily that register. Materialize the value into the
	// required register with an explicit move immediately around the
	// instruction, the same "Fixed child interval covering one instruction"
	// shape BuildIntervals already uses for call clobbers, without needing
	// a real extra interval: the instruction's own operand becomes the
	// fixed register directly, and a Gap move bridges it to wherever the
	// value's own interval actually keeps it.
	for _, b := range fn.Blocks {
		for ci, v := range b.Code {
			instr, ok := v.(*lir.Instr)
			if !ok {
				continue
			}
			for ui, u := range instr.Uses {
				c := instr.UseConstraints[ui]
				if c.Kind != lir.UseFixed {
					continue
				}
				want := lir.Register(c.Fixed, u.IsFloat)
				if u == want {
					continue
				}
				gap := precedingGap(b, ci)
				gap.Moves = append(gap.Moves, lir.MovePair{From: u, To: want})
				instr.Uses[ui] = want
			}
			for di, d := range instr.Defs {
				c := instr.DefConstraints[di]
				if c.Kind != lir.UseFixed {
					continue
				}
				have := lir.Register(c.Fixed, d.IsFloat)
				if d == have {
					continue
				}
				gap := followingGap(b, ci)
				gap.Moves = append(gap.Moves, lir.MovePair{From: have, To: d})
				instr.Defs[di] = have
			}
		}
	}

	idx := make(map[*lir.Block]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		idx[b] = i
	}
	live := computeLiveSets(fn)

	for _, pred := range fn.Blocks {
		predEnd := posOf[pred.Code[len(pred.Code)-1]] + lir.PositionStep
		for _, succ := range pred.Succs {
			succStart := posOf[succ.Code[0]]

			var extra []lir.MovePair
			for k := range live.liveIn[idx[succ]] {
				root, ok := roots[k]
				if !ok {
					continue
				}
				isFloat := k&1 == 1
				fromReg, fromSlot, fromSpilled := root.OperandAt(predEnd - 1)
				toReg, toSlot, toSpilled := root.OperandAt(succStart)
				from := concreteOperand(fromReg, fromSlot, fromSpilled, isFloat)
				to := concreteOperand(toReg, toSlot, toSpilled, isFloat)
				if from != to {
					extra = append(extra, lir.MovePair{From: from, To: to})
				}
			}
			if len(extra) == 0 {
				continue
			}
			edgeGapFor(pred, succ).Moves = append(edgeGapFor(pred, succ).Moves, extra...)
		}
	}

	// One spillScratch is shared across every Gap so a scratch slot freed
	// by resolving one Gap's cycles is available again for the next Gap,
	// rather than each Gap growing the frame with its own scratch slot.
	scratch := &spillScratch{next: alloc.NumSlots}
	for _, b := range fn.Blocks {
		for _, v := range b.Code {
			gap, ok := v.(*lir.Gap)
			if !ok || len(gap.Moves) == 0 {
				continue
			}
			gap.Moves = moveresolve.Resolve(gap.Moves, scratch)
		}
	}
	nextSlot := scratch.next
	return nextSlot
}

// edgeGapFor picks the one Gap both the predecessor and successor agree
// belongs to this edge alone. Only safe because SplitCriticalEdges already
// ran during lowering: an edge where both ends have more than one
// neighbor — the only case where neither block's Gap would be edge-private —
// no longer exists as a direct pred->succ edge by this point.
func edgeGapFor(pred, succ *lir.Block) *lir.Gap {
	if len(pred.Succs) == 1 {
		return pred.TrailingGap()
	}
	return succ.Code[0].(*lir.Gap)
}

// precedingGap returns the Gap immediately before the instruction at code
// index ci — always present, since Block.Append never places an Instr
// without a fresh Gap ahead of it.
func precedingGap(b *lir.Block, ci int) *lir.Gap {
	return b.Code[ci-1].(*lir.Gap)
}

// followingGap returns the Gap immediately after the instruction at code
// index ci, creating the block's trailing Gap if ci is its last element.
func followingGap(b *lir.Block, ci int) *lir.Gap {
	if ci+1 < len(b.Code) {
		if g, ok := b.Code[ci+1].(*lir.Gap); ok {
			return g
		}
	}
	return b.TrailingGap()
}

func concreteOperand(reg, slot int, spilled bool, isFloat bool) lir.Operand {
	if spilled {
		return lir.Spill(slot, isFloat)
	}
	return lir.Register(reg, isFloat)
}
