package lir

import (
	"github.com/tangzhangming/nova/internal/jit/hir"
	"github.com/tangzhangming/nova/internal/jit/target"
	"github.com/tangzhangming/nova/internal/jit/zone"
)

// phiEdge is a single Phi operand waiting to become a Gap move once we know
// which block actually owns the pred->succ edge (the original predecessor,
// or a freshly split edge block).
type phiEdge struct {
	predHIR *hir.Block
	succ    *Block
	arg     *hir.Instr // looked up only after every block is lowered, since it may be defined on a back edge
	to      Operand
}

// Lower converts fn into LIR against td, eliminating Phis into parallel
// moves on the (possibly split) control-flow edges that feed them, and
// recording each operand's placement constraint (Any, a register class, or
// a target-fixed physical register) for the allocator to honor.
func Lower(fn *hir.Func, td target.Desc) (*Func, error) {
	z := zone.New()
	out := newFunc(z, fn.Name)

	hirToLIR := make(map[*hir.Block]*Block, len(fn.RPOBlocks))
	valToOperand := make(map[*hir.Instr]Operand, fn.NumInstrs())

	for _, hb := range fn.RPOBlocks {
		lb := out.newBlock(hb.ID)
		hirToLIR[hb] = lb
		out.Blocks = append(out.Blocks, lb)
	}
	for _, hb := range fn.RPOBlocks {
		lb := hirToLIR[hb]
		for _, s := range hb.Succs {
			lb.addSucc(hirToLIR[s])
		}
	}

	// Pre-assign a virtual register to every Phi so ordinary value lowering
	// below can reference a Phi's vreg before the Phi's own Gap moves are
	// known.
	for _, hb := range fn.RPOBlocks {
		for _, phi := range hb.Phis() {
			valToOperand[phi] = out.newVirtual(phi.Type.IsFloat())
		}
	}

	var pendingPhis []phiEdge
	for _, hb := range fn.RPOBlocks {
		lb := hirToLIR[hb]
		for _, instr := range hb.Instrs {
			if instr.Op == hir.OpPhi {
				for i, arg := range instr.Args {
					pendingPhis = append(pendingPhis, phiEdge{
						predHIR: hb.Preds[i],
						succ:    lb,
						arg:     arg,
						to:      valToOperand[instr],
					})
				}
				continue
			}
			lowerInstr(out, lb, instr, valToOperand, hirToLIR, td)
		}
	}

	edgeOwner := SplitCriticalEdges(out)
	for _, pe := range pendingPhis {
		owner := edgeOwner(hirToLIR[pe.predHIR], pe.succ)
		owner.TrailingGap().Moves = append(owner.TrailingGap().Moves, MovePair{From: valToOperand[pe.arg], To: pe.to})
	}

	return out, nil
}

func lowerInstr(fn *Func, lb *Block, hi *hir.Instr, valToOperand map[*hir.Instr]Operand, hirToLIR map[*hir.Block]*Block, td target.Desc) {
	li := fn.newInstr()
	li.HIROp = hi.Op
	li.IntImm = hi.IntImm
	li.FloatImm = hi.FloatImm
	li.StrImm = hi.StrImm
	li.LocalIdx = hi.LocalIdx
	li.FieldName = hi.FieldName
	li.CalleeName = hi.CalleeName
	li.BinOp = hi.BinOp
	li.UnOp = hi.UnOp

	for _, arg := range hi.Args {
		op, ok := valToOperand[arg]
		if !ok {
			// A value with no lowered counterpart (e.g. an operand the
			// builder elided) is treated as an immediate zero rather than
			// referencing a never-lowered value.
			op = Immediate(0)
		}
		li.Uses = append(li.Uses, op)
		li.UseConstraints = append(li.UseConstraints, useConstraintFor(hi, td, len(li.Uses)-1))
	}

	for _, t := range hi.Targets {
		li.Targets = append(li.Targets, hirToLIR[t])
	}

	if hi.HasResult() {
		isFloat := hi.Type.IsFloat()
		result := fn.newVirtual(isFloat)
		li.Defs = append(li.Defs, result)
		li.DefConstraints = append(li.DefConstraints, defConstraintFor(hi, td))
		valToOperand[hi] = result
	}

	if hi.Op == hir.OpCall || hi.Op == hir.OpCallMethod {
		li.ClobberedRegs = append(li.ClobberedRegs, td.CallerSaved...)
	}

	lb.Append(li)
}

// useConstraintFor pins call arguments to the calling convention's argument
// registers; every other use is unconstrained. Stricter
// instruction-selection constraints (e.g. division's implicit RAX/RDX
// operands) belong to a later, codegen-adjacent lowering refinement, not
// this first cut.
func useConstraintFor(hi *hir.Instr, td target.Desc, argIdx int) Constraint {
	if hi.Op != hir.OpCall && hi.Op != hir.OpCallMethod {
		return Any()
	}
	// hi.Args[0] is the receiver for CallMethod, consuming one slot of the
	// argument-register window the same way a hidden `this` parameter
	// would in the native convention.
	regs := td.ArgRegs
	if argIdx < len(regs) {
		return Fixed(regs[argIdx])
	}
	return Any()
}

func defConstraintFor(hi *hir.Instr, td target.Desc) Constraint {
	if hi.Op == hir.OpCall || hi.Op == hir.OpCallMethod {
		return Fixed(td.RetReg)
	}
	return Any()
}
