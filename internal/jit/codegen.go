package jit

import (
	"fmt"

	"github.com/tangzhangming/nova/internal/jit/hir"
	"github.com/tangzhangming/nova/internal/jit/lir"
	"github.com/tangzhangming/nova/internal/jit/platform"
	"github.com/tangzhangming/nova/internal/jit/target"
)

// codegen drives platform.X64Assembler directly from a fully allocated
// lir.Func — every operand has already been rewritten to a concrete
// register or spill slot by regalloc.ApplyAllocation, and every Gap's
// moves have already been sequenced by moveresolve.Resolve. This replaces
// platform/x86_64.go's X64CodeGenerator, which only understands the flat
// types.RegisterAllocation this package's allocator supersedes; the
// low-level encoding helpers in platform/x86_64_asm.go are reused as-is.
type codegen struct {
	asm       *platform.X64Assembler
	td        target.Desc
	numSlots  int
	blockLbl  map[*lir.Block]int
	nextLabel int
}

func newCodegen(td target.Desc, numSlots int) *codegen {
	return &codegen{
		asm:      platform.NewX64Assembler(),
		td:       td,
		numSlots: numSlots,
		blockLbl: make(map[*lir.Block]int),
	}
}

// frameSize is the stack space reserved below the saved RBP for spill
// slots, 8 bytes each, 16-byte aligned per the System V / Windows x64 ABI.
func (cg *codegen) frameSize() int32 {
	size := int32(cg.numSlots) * 8
	if size%16 != 0 {
		size += 16 - size%16
	}
	return size
}

func (cg *codegen) labelFor(b *lir.Block) int {
	if id, ok := cg.blockLbl[b]; ok {
		return id
	}
	id := cg.nextLabel
	cg.nextLabel++
	cg.blockLbl[b] = id
	return id
}

// emitFunc assembles fn into native code, returning the raw bytes or a
// CompileError naming the first unsupported construct it hit.
func emitFunc(fn *lir.Func, td target.Desc, numSlots int) ([]byte, error) {
	cg := newCodegen(td, numSlots)

	cg.asm.PUSH(platform.RegRBP)
	cg.asm.MOV_REG(platform.RegRBP, platform.RegRSP)
	if fs := cg.frameSize(); fs > 0 {
		cg.asm.SUB_IMM(platform.RegRSP, uint32(fs))
	}

	for _, b := range fn.Blocks {
		cg.asm.Label(cg.labelFor(b))
		for _, v := range b.Code {
			switch n := v.(type) {
			case *lir.Gap:
				if err := cg.emitGap(n); err != nil {
					return nil, newCompileError(KindUnsupported, fn.Name, "codegen", err)
				}
			case *lir.Instr:
				if err := cg.emitInstr(n); err != nil {
					return nil, newCompileError(KindUnsupported, fn.Name, "codegen", err)
				}
			}
		}
	}

	return cg.asm.Code(), nil
}

func (cg *codegen) toX64(op lir.Operand) (platform.X64Register, bool) {
	if op.Kind != lir.OpKindRegister {
		return 0, false
	}
	return platform.X64Register(op.Reg), true
}

// spillOffset returns this spill slot's byte offset from RBP, growing
// downward below the saved frame pointer.
func (cg *codegen) spillOffset(slot int) int32 {
	return -8 * int32(slot+1)
}

func (cg *codegen) emitGap(g *lir.Gap) error {
	for _, mv := range g.Moves {
		if err := cg.emitMove(mv.From, mv.To); err != nil {
			return err
		}
	}
	return nil
}

func (cg *codegen) emitMove(from, to lir.Operand) error {
	switch {
	case to.Kind == lir.OpKindRegister && from.Kind == lir.OpKindRegister:
		cg.asm.MOV_REG(platform.X64Register(to.Reg), platform.X64Register(from.Reg))
	case to.Kind == lir.OpKindRegister && from.Kind == lir.OpKindSpill:
		cg.asm.MOV_MEM_TO_REG(platform.X64Register(to.Reg), platform.RegRBP, cg.spillOffset(from.Slot))
	case to.Kind == lir.OpKindSpill && from.Kind == lir.OpKindRegister:
		cg.asm.MOV_REG_TO_MEM(platform.RegRBP, cg.spillOffset(to.Slot), platform.X64Register(from.Reg))
	case to.Kind == lir.OpKindRegister && from.Kind == lir.OpKindImmediate:
		cg.asm.MOV_IMM(platform.X64Register(to.Reg), uint64(from.Imm))
	case to.Kind == lir.OpKindSpill && from.Kind == lir.OpKindSpill:
		// No memory-to-memory move on x86; regalloc.ApplyAllocation never
		// needs this directly (an interval splits to a register on at
		// least one side of any boundary move it creates), but moveresolve
		// could in principle chain one through a scratch register here if
		// that changed.
		return fmt.Errorf("spill-to-spill move (slot %d -> slot %d) has no direct encoding", from.Slot, to.Slot)
	default:
		return fmt.Errorf("unsupported move %v -> %v", from, to)
	}
	return nil
}

func (cg *codegen) emitInstr(in *lir.Instr) error {
	switch in.HIROp {
	case hir.OpEntry, hir.OpNop, hir.OpAllocateContext, hir.OpLoadContext:
		return nil
	case hir.OpGoto:
		cg.asm.JMP(cg.labelFor(in.Targets[0]))
		return nil
	case hir.OpBranchBool:
		return cg.emitBranch(in)
	case hir.OpReturn:
		return cg.emitReturn(in)
	case hir.OpBinOp:
		return cg.emitBinOp(in)
	case hir.OpLoadLocal:
		return cg.emitLoadLocal(in)
	case hir.OpStoreLocal:
		return cg.emitStoreLocal(in)
	default:
		return fmt.Errorf("no codegen for HIR op %s", in.HIROp)
	}
}

func (cg *codegen) emitBranch(in *lir.Instr) error {
	cond, ok := cg.toX64(in.Uses[0])
	if !ok {
		return fmt.Errorf("branch condition not in a register")
	}
	cg.asm.TEST(cond, cond)
	cg.asm.JNZ(cg.labelFor(in.Targets[0]))
	cg.asm.JMP(cg.labelFor(in.Targets[1]))
	return nil
}

func (cg *codegen) emitReturn(in *lir.Instr) error {
	if len(in.Uses) > 0 {
		src, ok := cg.toX64(in.Uses[0])
		if !ok {
			return fmt.Errorf("return value not in a register")
		}
		if src != platform.RegRAX {
			cg.asm.MOV_REG(platform.RegRAX, src)
		}
	}
	cg.asm.MOV_REG(platform.RegRSP, platform.RegRBP)
	cg.asm.POP(platform.RegRBP)
	cg.asm.RET()
	return nil
}

func (cg *codegen) emitBinOp(in *lir.Instr) error {
	dst, ok := cg.toX64(in.Defs[0])
	if !ok {
		return fmt.Errorf("binop result not in a register")
	}
	lhs, ok := cg.toX64(in.Uses[0])
	if !ok {
		return fmt.Errorf("binop left operand not in a register")
	}
	if dst != lhs {
		cg.asm.MOV_REG(dst, lhs)
	}
	rhs, rhsIsReg := cg.toX64(in.Uses[1])
	if !rhsIsReg {
		return fmt.Errorf("binop right operand not in a register")
	}

	switch in.BinOp {
	case hir.BinAdd:
		cg.asm.ADD_REG(dst, rhs)
	case hir.BinSub:
		cg.asm.SUB_REG(dst, rhs)
	case hir.BinMul:
		cg.asm.IMUL(dst, rhs)
	case hir.BinDiv:
		if dst != platform.RegRAX {
			return fmt.Errorf("division result must be allocated to RAX")
		}
		cg.asm.CQO()
		cg.asm.IDIV(rhs)
	case hir.BinLt:
		cg.asm.CMP_REG(dst, rhs)
		cg.asm.SETL(dst)
		cg.asm.MOVZX(dst, dst)
	case hir.BinLe:
		cg.asm.CMP_REG(dst, rhs)
		cg.asm.SETLE(dst)
		cg.asm.MOVZX(dst, dst)
	case hir.BinGt:
		cg.asm.CMP_REG(dst, rhs)
		cg.asm.SETG(dst)
		cg.asm.MOVZX(dst, dst)
	case hir.BinGe:
		cg.asm.CMP_REG(dst, rhs)
		cg.asm.SETGE(dst)
		cg.asm.MOVZX(dst, dst)
	case hir.BinEq:
		cg.asm.CMP_REG(dst, rhs)
		cg.asm.SETE(dst)
		cg.asm.MOVZX(dst, dst)
	case hir.BinNe:
		cg.asm.CMP_REG(dst, rhs)
		cg.asm.SETNE(dst)
		cg.asm.MOVZX(dst, dst)
	default:
		return fmt.Errorf("no codegen for binary operator %v", in.BinOp)
	}
	return nil
}

func (cg *codegen) emitLoadLocal(in *lir.Instr) error {
	dst, ok := cg.toX64(in.Defs[0])
	if !ok {
		return fmt.Errorf("load-local result not in a register")
	}
	cg.asm.MOV_MEM_TO_REG(dst, platform.RegRBP, localOffset(in.LocalIdx))
	return nil
}

func (cg *codegen) emitStoreLocal(in *lir.Instr) error {
	src, ok := cg.toX64(in.Uses[0])
	if !ok {
		return fmt.Errorf("store-local value not in a register")
	}
	cg.asm.MOV_REG_TO_MEM(platform.RegRBP, localOffset(in.LocalIdx), src)
	return nil
}

// localOffset places incoming arguments/locals above the saved RBP/return
// address, matching the teacher's calling_convention.go FrameLayout order
// (args pushed by the caller, then the callee's own prologue).
func localOffset(idx int) int32 {
	return 16 + int32(idx)*8
}
