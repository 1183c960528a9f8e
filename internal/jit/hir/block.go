package hir

// Block is a maximal straight-line run of instructions ending in exactly
// one terminator (Return, Goto or BranchBool). Block.ID is assigned in
// reverse-post-order by Func.Finish, the order the register allocator and
// liveness pass both rely on.
type Block struct {
	ID     int
	Instrs []*Instr
	Preds  []*Block
	Succs  []*Block

	// Dominator-tree fields, filled in by Func.Finish. The register
	// allocator and the liveness pass do not read them.
	IDom     *Block
	DomFront []*Block
}

// Append adds an instruction to the end of the block.
func (b *Block) Append(i *Instr) {
	i.Block = b
	b.Instrs = append(b.Instrs, i)
}

// InsertPhi adds a Phi instruction at the head of the block, after any Phis
// already present — matching where the original builder.go expected
// completePhis to place them before handing the function to codegen.
func (b *Block) InsertPhi(i *Instr) {
	i.Block = b
	pos := 0
	for pos < len(b.Instrs) && b.Instrs[pos].Op == OpPhi {
		pos++
	}
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[pos+1:], b.Instrs[pos:len(b.Instrs)-1])
	b.Instrs[pos] = i
}

// Terminator returns the block's final instruction, or nil if the block is
// still open (only true mid-construction).
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.IsTerminator() {
		return nil
	}
	return last
}

// Phis returns the leading run of Phi instructions.
func (b *Block) Phis() []*Instr {
	n := 0
	for n < len(b.Instrs) && b.Instrs[n].Op == OpPhi {
		n++
	}
	return b.Instrs[:n]
}

func (b *Block) addSucc(s *Block) {
	b.Succs = append(b.Succs, s)
	s.Preds = append(s.Preds, b)
}

// predIndex returns the index of pred within b.Preds, or -1.
func (b *Block) predIndex(pred *Block) int {
	for idx, p := range b.Preds {
		if p == pred {
			return idx
		}
	}
	return -1
}
