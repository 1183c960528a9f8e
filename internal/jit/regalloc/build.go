package regalloc

import (
	"github.com/tangzhangming/nova/internal/jit/lir"
	"github.com/tangzhangming/nova/internal/jit/target"
)

// TargetDesc is the register file and calling convention the allocator
// assigns against.
type TargetDesc = target.Desc

// liveSets holds, per block, the vregs (keyed by (virt, isFloat) via a
// packed int) live across the block's boundaries — computed at block
// granularity per Wimmer & Franz, ahead of the position-precise interval
// construction BuildIntervals does per instruction.
type liveSets struct {
	liveIn  []map[int]bool
	liveOut []map[int]bool
}

func vkey(virt int, isFloat bool) int {
	if isFloat {
		return virt<<1 | 1
	}
	return virt << 1
}

func computeLiveSets(fn *lir.Func) *liveSets {
	n := len(fn.Blocks)
	ls := &liveSets{liveIn: make([]map[int]bool, n), liveOut: make([]map[int]bool, n)}
	uses := make([]map[int]bool, n)
	defs := make([]map[int]bool, n)

	idx := make(map[*lir.Block]int, n)
	for i, b := range fn.Blocks {
		idx[b] = i
	}

	for i, b := range fn.Blocks {
		u := make(map[int]bool)
		d := make(map[int]bool)
		walkBlockOperands(b, func(op lir.Operand, isDef bool) {
			if !op.IsVirtual() {
				return
			}
			k := vkey(op.Virt, op.IsFloat)
			if isDef {
				d[k] = true
			} else if !d[k] {
				u[k] = true
			}
		})
		uses[i], defs[i] = u, d
		ls.liveIn[i] = map[int]bool{}
		ls.liveOut[i] = map[int]bool{}
	}

	changed := true
	for changed {
		changed = false
		for i := n - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			out := map[int]bool{}
			for _, s := range b.Succs {
				si := idx[s]
				for k := range ls.liveIn[si] {
					out[k] = true
				}
			}
			in := map[int]bool{}
			for k := range uses[i] {
				in[k] = true
			}
			for k := range out {
				if !defs[i][k] {
					in[k] = true
				}
			}
			if !intSetEqual(in, ls.liveIn[i]) || !intSetEqual(out, ls.liveOut[i]) {
				changed = true
			}
			ls.liveIn[i] = in
			ls.liveOut[i] = out
		}
	}
	return ls
}

func intSetEqual(a, b map[int]bool) bool {
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

// walkBlockOperands visits every operand touched by b's Gaps and Instrs,
// in order, reporting for each whether it is a def or a use.
func walkBlockOperands(b *lir.Block, visit func(op lir.Operand, isDef bool)) {
	for _, v := range b.Code {
		switch n := v.(type) {
		case *lir.Gap:
			for _, mv := range n.Moves {
				visit(mv.From, false)
				visit(mv.To, true)
			}
		case *lir.Instr:
			for _, u := range n.Uses {
				visit(u, false)
			}
			for _, d := range n.Defs {
				visit(d, true)
			}
		}
	}
}

// BuildIntervals computes one Interval per virtual register of fn, plus a
// short KindFixed interval for every register a Call clobbers, by walking
// each block backward from its last position to its first — live-out
// values get a range spanning the whole block to start, definitions
// truncate that range's start to the definition point, and uses extend it
// and record a Use entry.
func BuildIntervals(fn *lir.Func, td TargetDesc) []*Interval {
	posOf, _ := fn.Number()
	live := computeLiveSets(fn)

	intervals := make(map[int]*Interval)
	nextID := 0
	allocID := func() int {
		id := nextID
		nextID++
		return id
	}
	getInterval := func(virt int, isFloat bool) *Interval {
		k := vkey(virt, isFloat)
		iv, ok := intervals[k]
		if !ok {
			iv = newInterval(allocID(), virt, isFloat)
			intervals[k] = iv
		}
		return iv
	}

	var fixedIntervals []*Interval

	for i := len(fn.Blocks) - 1; i >= 0; i-- {
		b := fn.Blocks[i]
		if len(b.Code) == 0 {
			continue
		}
		blockStart := posOf[b.Code[0]]
		blockEnd := posOf[b.Code[len(b.Code)-1]] + lir.PositionStep

		for k := range live.liveOut[i] {
			virt, isFloat := k>>1, k&1 == 1
			getInterval(virt, isFloat).addRange(blockStart, blockEnd)
		}

		for ci := len(b.Code) - 1; ci >= 0; ci-- {
			v := b.Code[ci]
			pos := posOf[v]
			switch n := v.(type) {
			case *lir.Gap:
				for _, mv := range n.Moves {
					if mv.To.IsVirtual() {
						iv := getInterval(mv.To.Virt, mv.To.IsFloat)
						truncateStart(iv, pos)
					}
					if mv.From.IsVirtual() {
						iv := getInterval(mv.From.Virt, mv.From.IsFloat)
						iv.addRange(blockStart, pos+lir.PositionStep)
						iv.addUse(Use{Pos: pos, Kind: UseAny})
					}
				}
			case *lir.Instr:
				for di, d := range n.Defs {
					if !d.IsVirtual() {
						continue
					}
					iv := getInterval(d.Virt, d.IsFloat)
					truncateStart(iv, pos+lir.PositionStep)
					kind, fixed := constraintOf(n.DefConstraints, di)
					iv.addUse(Use{Pos: pos + lir.PositionStep, Kind: kind, Fixed: fixed})
				}
				if n.IsCall() {
					for _, reg := range n.ClobberedRegs {
						fi := newInterval(allocID(), -1, false)
						fi.Kind = KindFixed
						fi.Reg = reg
						fi.addRange(pos, pos+lir.PositionStep)
						fixedIntervals = append(fixedIntervals, fi)
					}
				}
				for ui, u := range n.Uses {
					if !u.IsVirtual() {
						continue
					}
					iv := getInterval(u.Virt, u.IsFloat)
					iv.addRange(blockStart, pos+lir.PositionStep)
					kind, fixed := constraintOf(n.UseConstraints, ui)
					iv.addUse(Use{Pos: pos, Kind: kind, Fixed: fixed})
				}
			}
		}
	}

	result := make([]*Interval, 0, len(intervals)+len(fixedIntervals))
	for _, iv := range intervals {
		if len(iv.Ranges) > 0 {
			result = append(result, iv)
		}
	}
	result = append(result, fixedIntervals...)
	return result
}

func truncateStart(iv *Interval, pos lir.Position) {
	if len(iv.Ranges) == 0 {
		iv.addRange(pos, pos)
		return
	}
	if iv.Ranges[0].From < pos {
		iv.Ranges[0].From = pos
	}
}

func constraintOf(cs []lir.Constraint, idx int) (UseKind, int) {
	if idx < 0 || idx >= len(cs) {
		return UseAny, -1
	}
	c := cs[idx]
	if c.Kind == lir.UseFixed {
		return UseFixed, c.Fixed
	}
	return c.Kind, -1
}
