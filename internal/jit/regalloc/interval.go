// Package regalloc implements linear-scan register allocation with
// interval splitting and spilling (Poletto & Sarkar), using the
// block-level liveness and backward interval construction described by
// Wimmer & Franz for SSA-form input — the original source's regalloc.go
// computed intervals the same "walk backward accumulating live ranges" way,
// but in a single pass with no splitting; this package generalizes that
// into an unhandled/active/inactive state machine. A spilled interval is
// kept in no set of its own: its slot goes on a free list, reusable from
// the interval's end onward.
package regalloc

import "github.com/tangzhangming/nova/internal/jit/lir"

// Kind distinguishes an ordinary value interval from a short, physical
// register reservation synthesized to model a call's clobbered registers.
type Kind int

const (
	KindNormal Kind = iota
	KindFixed
)

// UseKind mirrors lir.UseKind at the position granularity the allocator
// reasons about.
type UseKind = lir.UseKind

const (
	UseAny      = lir.UseAny
	UseRegister = lir.UseRegister
	UseFixed    = lir.UseFixed
)

// Range is a contiguous half-open span [From, To) of positions during which
// an interval is live. An interval's Ranges are kept sorted ascending and
// non-overlapping; adjacent or overlapping ranges are merged as they are
// added.
type Range struct {
	From lir.Position
	To   lir.Position
}

// Use records one position at which an interval's value is read or
// written, and what the allocator is constrained to put there.
type Use struct {
	Pos   lir.Position
	Kind  UseKind
	Fixed int // physical register, valid when Kind == UseFixed
}

// Interval is one value's (or, for Kind==KindFixed, one physical
// register's) liveness over the function, plus the location the allocator
// has assigned it. Splitting an Interval produces a Child covering the
// suffix of its lifetime from the split position onward; Parent links back
// to the original so the move resolver can find every sibling sharing one
// original value.
type Interval struct {
	ID      int
	Kind    Kind
	Virt    int // the lir virtual register this interval represents; -1 for KindFixed
	IsFloat bool

	Ranges []Range
	Uses   []Use

	Reg       int // assigned physical register, -1 until AllocateFreeReg/AllocateBlockedReg runs
	SpillSlot int // assigned spill slot, -1 if this interval is never spilled

	Parent   *Interval
	Children []*Interval
}

func newInterval(id, virt int, isFloat bool) *Interval {
	return &Interval{ID: id, Virt: virt, IsFloat: isFloat, Reg: -1, SpillSlot: -1}
}

// Start returns the position of this interval's first live range.
func (iv *Interval) Start() lir.Position {
	return iv.Ranges[0].From
}

// End returns the position just past this interval's last live range.
func (iv *Interval) End() lir.Position {
	return iv.Ranges[len(iv.Ranges)-1].To
}

// Root returns the original, unsplit interval this one descends from (or
// itself, if it was never split).
func (iv *Interval) Root() *Interval {
	root := iv
	for root.Parent != nil {
		root = root.Parent
	}
	return root
}

// Covers reports whether pos falls within one of this interval's ranges.
func (iv *Interval) Covers(pos lir.Position) bool {
	for _, r := range iv.Ranges {
		if pos >= r.From && pos < r.To {
			return true
		}
	}
	return false
}

// addRange inserts [from, to) into Ranges, keeping it sorted and merging
// overlapping or touching ranges. Construction adds ranges from the end of
// the function backward, so the common case is prepending or extending the
// first existing range.
func (iv *Interval) addRange(from, to lir.Position) {
	if len(iv.Ranges) > 0 {
		first := &iv.Ranges[0]
		if from <= first.To && to >= first.From {
			if from < first.From {
				first.From = from
			}
			if to > first.To {
				first.To = to
			}
			return
		}
	}
	iv.Ranges = append([]Range{{From: from, To: to}}, iv.Ranges...)
}

func (iv *Interval) addUse(u Use) {
	iv.Uses = append([]Use{u}, iv.Uses...)
}

// FirstRegisterUseAfter returns the earliest recorded use at or after pos
// whose Kind is UseRegister or UseFixed — allocateBlockedReg consults this
// to decide whether the interval it is placing is spilled or takes a
// register away from an active interval.
func (iv *Interval) FirstRegisterUseAfter(pos lir.Position) (Use, bool) {
	for _, u := range iv.Uses {
		if u.Pos >= pos && u.Kind != UseAny {
			return u, true
		}
	}
	return Use{}, false
}

// NextUseAfter returns the earliest use at or after pos, of any kind.
func (iv *Interval) NextUseAfter(pos lir.Position) (Use, bool) {
	for _, u := range iv.Uses {
		if u.Pos >= pos {
			return u, true
		}
	}
	return Use{}, false
}

// SplitAt divides iv at pos: iv keeps every range/use before pos, and a new
// child interval (linked via Parent/Children, sharing Root) takes every
// range/use at or after pos. pos must fall strictly between iv's start and
// end and must not be inside a lifetime hole (the caller picks split
// positions at block boundaries or gaps, never inside an instruction's
// atomic def/use pair).
func (iv *Interval) SplitAt(pos lir.Position, nextID func() int) *Interval {
	child := newInterval(nextID(), iv.Virt, iv.IsFloat)
	child.Kind = iv.Kind

	var keepRanges, childRanges []Range
	for _, r := range iv.Ranges {
		switch {
		case r.To <= pos:
			keepRanges = append(keepRanges, r)
		case r.From >= pos:
			childRanges = append(childRanges, r)
		default:
			keepRanges = append(keepRanges, Range{From: r.From, To: pos})
			childRanges = append(childRanges, Range{From: pos, To: r.To})
		}
	}
	iv.Ranges = keepRanges
	child.Ranges = childRanges

	var keepUses, childUses []Use
	for _, u := range iv.Uses {
		if u.Pos < pos {
			keepUses = append(keepUses, u)
		} else {
			childUses = append(childUses, u)
		}
	}
	iv.Uses = keepUses
	child.Uses = childUses

	root := iv.Root()
	child.Parent = root
	root.Children = append(root.Children, child)
	return child
}

// OperandAt returns the physical location (register or spill slot) valid
// for this interval's value at pos, searching the split family rooted at
// this interval. This is what makes split intervals representable at all:
// a single value can occupy different physical locations across different
// sub-ranges of its lifetime, unlike the original source's
// RegAllocation.ValueRegs, which held exactly one location per value for
// its entire life.
func (iv *Interval) OperandAt(pos lir.Position) (reg int, slot int, isSpilled bool) {
	root := iv.Root()
	candidates := append([]*Interval{root}, root.Children...)
	for _, c := range candidates {
		if c.Covers(pos) {
			if c.Reg >= 0 {
				return c.Reg, -1, false
			}
			return -1, c.SpillSlot, true
		}
	}
	return -1, -1, false
}
