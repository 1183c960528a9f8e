package hir

// Liveness holds, for every block, the set of values live on entry and on
// exit, computed by the standard backward fixed-point:
//
//	live_out[b] = union of live_in[s] for each successor s
//	live_in[b]  = uses[b] U (live_out[b] - defs[b])
//
// Phi operands are attributed to the predecessor edge they arrive on rather
// than to the block containing the Phi, matching how lir's move resolver
// later needs to know which predecessor must supply which value.
type Liveness struct {
	LiveIn  map[*Block]map[*Instr]bool
	LiveOut map[*Block]map[*Instr]bool
}

// ComputeLiveness runs the fixed point over fn.RPOBlocks; callers must have
// called Func.Finish first so that order is available.
func ComputeLiveness(fn *Func) *Liveness {
	lv := &Liveness{
		LiveIn:  make(map[*Block]map[*Instr]bool, len(fn.RPOBlocks)),
		LiveOut: make(map[*Block]map[*Instr]bool, len(fn.RPOBlocks)),
	}
	uses := make(map[*Block]map[*Instr]bool, len(fn.RPOBlocks))
	defs := make(map[*Block]map[*Instr]bool, len(fn.RPOBlocks))

	for _, b := range fn.RPOBlocks {
		u := make(map[*Instr]bool)
		d := make(map[*Instr]bool)
		for _, instr := range b.Instrs {
			if instr.Op == OpPhi {
				// Phi's own args are attributed to predecessor edges in
				// propagate below, not treated as an upward-exposed use
				// here.
				d[instr] = true
				continue
			}
			for _, arg := range instr.Args {
				if !d[arg] {
					u[arg] = true
				}
			}
			if instr.HasResult() {
				d[instr] = true
			}
		}
		uses[b] = u
		defs[b] = d
		lv.LiveIn[b] = make(map[*Instr]bool)
		lv.LiveOut[b] = make(map[*Instr]bool)
	}

	changed := true
	for changed {
		changed = false
		for idx := len(fn.RPOBlocks) - 1; idx >= 0; idx-- {
			b := fn.RPOBlocks[idx]
			out := make(map[*Instr]bool)
			for _, s := range b.Succs {
				for v := range lv.LiveIn[s] {
					out[v] = true
				}
				// Phi operands: the value flowing into s's Phi along the
				// b->s edge is live-out of b even though it is not in
				// live_in[s] as a plain value.
				predIdx := s.predIndex(b)
				if predIdx < 0 {
					continue
				}
				for _, phi := range s.Phis() {
					out[phi.Args[predIdx]] = true
				}
			}
			in := make(map[*Instr]bool, len(uses[b])+len(out))
			for v := range uses[b] {
				in[v] = true
			}
			for v := range out {
				if !defs[b][v] {
					in[v] = true
				}
			}
			if !setEqual(in, lv.LiveIn[b]) || !setEqual(out, lv.LiveOut[b]) {
				changed = true
			}
			lv.LiveIn[b] = in
			lv.LiveOut[b] = out
		}
	}
	return lv
}

func setEqual(a, b map[*Instr]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
