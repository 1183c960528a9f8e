// Package target describes the physical-register shape the register
// allocator and LIR lowering must honor — argument/return/caller-saved
// register sets — as a leaf package so lir, regalloc and moveresolve can
// all depend on it without depending on each other or on the root jit
// package.
package target

import "github.com/tangzhangming/nova/internal/jit/convention"

// Desc is a target machine's register file and calling convention, derived
// from convention.SolaCallingConv.
type Desc struct {
	NumGPRegs    int
	NumFloatRegs int
	ArgRegs      []int
	FloatArgRegs []int
	RetReg       int
	FloatRetReg  int
	CallerSaved  []int
	CalleeSaved  []int
}

// FromNative builds a Desc from the running process's native calling
// convention (System V on Linux/macOS, Windows x64 on Windows), the same
// selection convention.GetNativeConv performs.
func FromNative() Desc {
	conv := convention.GetNativeConv()
	return Desc{
		NumGPRegs:    13, // RAX..R15 minus RSP/RBP/R15 (R15 is ClosureReg, held for the function's lifetime)
		NumFloatRegs: len(conv.FloatArgRegs),
		ArgRegs:      append([]int(nil), conv.ArgRegs...),
		FloatArgRegs: append([]int(nil), conv.FloatArgRegs...),
		RetReg:       conv.RetReg,
		FloatRetReg:  conv.FloatRetReg,
		CallerSaved:  append([]int(nil), conv.CallerSaved...),
		CalleeSaved:  append([]int(nil), conv.CalleeSaved...),
	}
}

// AllocatableGPRegs returns the general-purpose registers the allocator may
// assign, excluding RSP/RBP (frame bookkeeping) and ClosureReg (reserved by
// convention.SetupClosure for the whole function's lifetime).
func AllocatableGPRegs() []int {
	return []int{
		convention.RegRAX, convention.RegRCX, convention.RegRDX, convention.RegRBX,
		convention.RegRSI, convention.RegRDI, convention.RegR8, convention.RegR9, convention.RegR10,
		convention.RegR11, convention.RegR12, convention.RegR13, convention.RegR14,
	}
}

// AllocatableFloatRegs returns the XMM registers the allocator may assign.
func AllocatableFloatRegs() []int {
	return []int{
		convention.RegXMM0, convention.RegXMM1, convention.RegXMM2, convention.RegXMM3,
		convention.RegXMM4, convention.RegXMM5, convention.RegXMM6, convention.RegXMM7,
	}
}
