package hir

// Instr is both an instruction and, when it produces a result, the SSA
// value other instructions reference by holding a pointer to it directly —
// there is no separate def/use table; an operand IS a pointer to the
// defining Instr, the same direct-reference style internal/jit's existing
// (incomplete) ssa.go assumed of its never-defined IRValue type.
type Instr struct {
	ID    int
	Op    Op
	Block *Block
	Type  TypeGuess

	// Operands: values this instruction reads, in positional order. For
	// OpPhi, Args[i] corresponds to Block.Preds[i].
	Args []*Instr

	// Op-specific payload. Only the fields relevant to Op are meaningful;
	// the rest are zero.
	IntImm    int64
	FloatImm  float64
	StrImm    string
	BoolImm   bool
	LocalIdx  int
	FieldName string
	CalleeName string
	BinOp     BinOpKind
	UnOp      UnOpKind
	Targets   []*Block // Goto: [target]; BranchBool: [then, else]

	// comment is an optional short annotation surfaced by print.go; it is
	// never consulted by the compiler.
	comment string
}

// IsTerminator reports whether this instruction ends its block.
func (i *Instr) IsTerminator() bool {
	switch i.Op {
	case OpReturn, OpGoto, OpBranchBool:
		return true
	default:
		return false
	}
}

// HasResult reports whether other instructions may reference this one as a
// value. Terminators, stores and Nop never produce a usable result.
func (i *Instr) HasResult() bool {
	switch i.Op {
	case OpReturn, OpGoto, OpBranchBool, OpStoreLocal, OpStoreContext,
		OpSetField, OpStoreProperty, OpArraySet, OpNop, OpEntry:
		return false
	default:
		return true
	}
}

// ReplaceArg swaps the operand at index idx, used by optimization passes
// (constant folding, copy propagation) to rewrite uses in place.
func (i *Instr) ReplaceArg(idx int, v *Instr) {
	i.Args[idx] = v
}
