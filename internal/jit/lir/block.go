package lir

// Block mirrors hir.Block's shape after lowering: same predecessor/successor
// topology (post critical-edge splitting), but its instruction stream now
// interleaves Gaps between every pair of real instructions so the move
// resolver always has somewhere to place a shuffle.
type Block struct {
	ID    int
	Preds []*Block
	Succs []*Block

	// Code is the interleaved [Gap, Instr, Gap, Instr, ..., Gap] stream.
	// A position is a (blockID, code-index) pair; regalloc.Interval.Ranges
	// reference positions via a flat, function-wide linear numbering
	// computed by Func.Number.
	Code []interface{}

	// LoopDepth is the block's loop nesting depth. Lower leaves it at 0 and
	// the allocator does not read it.
	LoopDepth int
}

// GapAt returns the Gap at code index i. Callers only call this on indices
// Lower is known to have placed a Gap at (every even index).
func (b *Block) GapAt(i int) *Gap {
	return b.Code[i].(*Gap)
}

func (b *Block) InstrAt(i int) (*Instr, bool) {
	instr, ok := b.Code[i].(*Instr)
	return instr, ok
}

// Append adds a real instruction preceded by a fresh Gap.
func (b *Block) Append(i *Instr) {
	i.Block = b
	b.Code = append(b.Code, &Gap{}, i)
}

// TrailingGap returns (creating if absent) the Gap after the block's last
// instruction — where move-resolution places moves needed on outgoing
// control-flow edges.
func (b *Block) TrailingGap() *Gap {
	if len(b.Code) == 0 || !isGap(b.Code[len(b.Code)-1]) {
		b.Code = append(b.Code, &Gap{})
	}
	return b.Code[len(b.Code)-1].(*Gap)
}

func isGap(v interface{}) bool {
	_, ok := v.(*Gap)
	return ok
}

// Instrs returns just the real instructions, in order, skipping Gaps.
func (b *Block) Instrs() []*Instr {
	var out []*Instr
	for _, v := range b.Code {
		if instr, ok := v.(*Instr); ok {
			out = append(out, instr)
		}
	}
	return out
}

func (b *Block) Terminator() *Instr {
	instrs := b.Instrs()
	if len(instrs) == 0 {
		return nil
	}
	last := instrs[len(instrs)-1]
	if !last.IsTerminator() {
		return nil
	}
	return last
}

func (b *Block) predIndex(pred *Block) int {
	for idx, p := range b.Preds {
		if p == pred {
			return idx
		}
	}
	return -1
}

func (b *Block) addSucc(s *Block) {
	b.Succs = append(b.Succs, s)
	s.Preds = append(s.Preds, b)
}
