package regalloc

import (
	"sort"

	"github.com/tangzhangming/nova/internal/jit/lir"
	"github.com/tangzhangming/nova/internal/jit/target"
)

const maxPos = lir.Position(1 << 30)

// Allocation is the result of running the allocator over one function: the
// full set of intervals (including every split child, each aware of its
// own assigned register or spill slot) and the number of spill slots the
// frame must reserve.
type Allocation struct {
	Intervals []*Interval
	NumSlots  int
}

// Allocator runs Poletto & Sarkar linear scan with interval splitting: an
// interval that cannot get a register for its whole lifetime is split at
// the point a register becomes available (AllocateFreeReg) or, if every
// register is already busier for longer than this interval needs one
// (AllocateBlockedReg), the least-useful active interval is evicted and
// spilled from the current position onward instead.
type Allocator struct {
	td TargetDesc

	unhandled []*Interval
	active    []*Interval
	inactive  []*Interval
	evicted   []*Interval // spilled remainders split off by evictForSpill

	nextID    int
	nextSlot  int
	freeSlots []spillSlotEntry
}

// spillSlotEntry records a spill slot that is free for reuse starting at
// freeAt, the point the interval that last owned it provably stops needing
// it (its End(), known statically once assigned since a spilled remainder
// is never re-split).
type spillSlotEntry struct {
	slot   int
	freeAt lir.Position
}

func NewAllocator(td TargetDesc) *Allocator {
	return &Allocator{td: td}
}

// Allocate assigns registers and spill slots to every interval BuildIntervals
// produced for fn, returning the completed Allocation.
func (a *Allocator) Allocate(intervals []*Interval) *Allocation {
	for _, iv := range intervals {
		if iv.ID >= a.nextID {
			a.nextID = iv.ID + 1
		}
	}

	a.unhandled = append([]*Interval(nil), intervals...)
	sortByStart(a.unhandled)

	var all []*Interval
	for len(a.unhandled) > 0 {
		current := a.unhandled[0]
		a.unhandled = a.unhandled[1:]
		pos := current.Start()

		a.expireActive(pos)
		a.expireInactive(pos)

		if current.Kind == KindFixed {
			a.evictConflicting(current)
			a.active = append(a.active, current)
			all = append(all, current)
			continue
		}

		if !a.allocateFreeReg(current) {
			a.allocateBlockedReg(current)
		}
		all = append(all, current)
	}
	all = append(all, a.evicted...)

	return &Allocation{Intervals: all, NumSlots: a.nextSlot}
}

func (a *Allocator) expireActive(pos lir.Position) {
	var stillActive []*Interval
	for _, it := range a.active {
		switch {
		case it.End() <= pos:
			// handled, drop
		case !it.Covers(pos):
			a.inactive = append(a.inactive, it)
		default:
			stillActive = append(stillActive, it)
		}
	}
	a.active = stillActive
}

func (a *Allocator) expireInactive(pos lir.Position) {
	var stillInactive []*Interval
	for _, it := range a.inactive {
		switch {
		case it.End() <= pos:
			// handled, drop
		case it.Covers(pos):
			a.active = append(a.active, it)
		default:
			stillInactive = append(stillInactive, it)
		}
	}
	a.inactive = stillInactive
}

// evictConflicting handles a just-popped KindFixed interval's central
// responsibility: whatever active interval already holds the register it
// reserves (a call clobbering a register a live value is currently
// assigned to) must give that register up for the reservation's span,
// spilling from the reservation's start onward rather than silently
// sharing the register across the call.
func (a *Allocator) evictConflicting(fixed *Interval) {
	for _, it := range a.active {
		if it.Kind == KindNormal && it.IsFloat == fixed.IsFloat && it.Reg == fixed.Reg {
			a.evictForSpill(it, fixed.Start())
			return
		}
	}
}

func (a *Allocator) regsForClass(isFloat bool) []int {
	if isFloat {
		return target.AllocatableFloatRegs()
	}
	return target.AllocatableGPRegs()
}

// allocateFreeReg implements AllocateFreeReg: find the register free for
// the longest stretch starting at current's position, and either give the
// whole interval to it, or — if it's only free part of the way — split
// current there and leave the remainder in unhandled for its own pass.
func (a *Allocator) allocateFreeReg(current *Interval) bool {
	regs := a.regsForClass(current.IsFloat)
	freeUntil := make(map[int]lir.Position, len(regs))
	for _, r := range regs {
		freeUntil[r] = maxPos
	}

	for _, it := range a.active {
		if it.IsFloat != current.IsFloat {
			continue
		}
		if _, ok := freeUntil[it.Reg]; ok {
			freeUntil[it.Reg] = 0
		}
	}
	for _, it := range a.inactive {
		if it.IsFloat != current.IsFloat {
			continue
		}
		if at, ok := firstIntersection(it, current); ok {
			if cur, tracked := freeUntil[it.Reg]; tracked && at < cur {
				freeUntil[it.Reg] = at
			}
		}
	}

	// A Fixed interval still waiting in unhandled (a call further along
	// current's lifetime, not yet popped) is a hard wall at its own start:
	// current cannot be given that register for any span reaching past
	// that point, or the eventual conflict would just force an eviction
	// later instead of a clean split now.
	for _, it := range a.unhandled {
		if it.Kind != KindFixed || it.IsFloat != current.IsFloat {
			continue
		}
		if at, ok := firstIntersection(it, current); ok {
			if cur, tracked := freeUntil[it.Reg]; tracked && at < cur {
				freeUntil[it.Reg] = at
			}
		}
	}

	bestReg, bestUntil := -1, lir.Position(-1)
	for _, r := range regs {
		if freeUntil[r] > bestUntil {
			bestReg, bestUntil = r, freeUntil[r]
		}
	}
	if bestReg == -1 || bestUntil == 0 {
		return false
	}

	if bestUntil >= current.End() {
		current.Reg = bestReg
		a.active = append(a.active, current)
		return true
	}

	child := current.SplitAt(bestUntil, a.allocID)
	current.Reg = bestReg
	a.active = append(a.active, current)
	a.insertUnhandled(child)
	return true
}

// allocateBlockedReg implements AllocateBlockedReg: every register the
// class offers is already committed for longer than current needs one, so
// evict whichever active interval has the furthest-away next use, spilling
// it from the current position onward, and give current that register.
// If current itself isn't used again until after every other candidate, it
// is the one spilled instead.
func (a *Allocator) allocateBlockedReg(current *Interval) {
	allRegs := a.regsForClass(current.IsFloat)

	// A register currently held by an active KindFixed interval (a call's
	// clobber reservation) is not a spill candidate at all: a Fixed
	// interval has no uses, so NextUseAfter would make it look maximally
	// evictable, and evicting a calling-convention reservation is
	// meaningless. Exclude those registers from consideration entirely
	// instead.
	var fixedEnd lir.Position
	regs := make([]int, 0, len(allRegs))
	for _, r := range allRegs {
		heldByFixed := false
		for _, it := range a.active {
			if it.Kind == KindFixed && it.IsFloat == current.IsFloat && it.Reg == r {
				heldByFixed = true
				if it.End() > fixedEnd {
					fixedEnd = it.End()
				}
				break
			}
		}
		if !heldByFixed {
			regs = append(regs, r)
		}
	}

	if len(regs) == 0 {
		// Every register of this class is reserved by an active Fixed
		// interval at current's start (e.g. a call clobbering the whole
		// class). current cannot hold any register here no matter its own
		// usage pattern; split it at the point the reservation ends and
		// requeue the remainder for its own allocation attempt.
		if fixedEnd >= current.End() {
			a.spillWholeInterval(current)
			return
		}
		child := current.SplitAt(fixedEnd, a.allocID)
		a.spillWholeInterval(current)
		a.insertUnhandled(child)
		return
	}

	nextUse := make(map[int]lir.Position, len(regs))
	owner := make(map[int]*Interval, len(regs))
	for _, r := range regs {
		nextUse[r] = maxPos
	}

	for _, it := range a.active {
		if it.IsFloat != current.IsFloat {
			continue
		}
		if _, ok := nextUse[it.Reg]; !ok {
			continue
		}
		u, ok := it.NextUseAfter(current.Start())
		pos := maxPos
		if ok {
			pos = u.Pos
		}
		nextUse[it.Reg] = pos
		owner[it.Reg] = it
	}

	bestReg, bestPos := -1, lir.Position(-1)
	for _, r := range regs {
		if nextUse[r] > bestPos {
			bestReg, bestPos = r, nextUse[r]
		}
	}

	firstUse, hasUse := current.FirstRegisterUseAfter(current.Start())
	if bestReg == -1 || (owner[bestReg] != nil && (!hasUse || firstUse.Pos > bestPos)) {
		// current needs a register later than every candidate victim's next
		// use (or never); spilling current beats evicting someone else.
		a.spillWholeInterval(current)
		return
	}

	if victim := owner[bestReg]; victim != nil {
		a.evictForSpill(victim, current.Start())
	}
	current.Reg = bestReg
	a.active = append(a.active, current)
}

// spillWholeInterval gives current a spill slot for its entire remaining
// lifetime rather than a register.
func (a *Allocator) spillWholeInterval(current *Interval) {
	current.Reg = -1
	current.SpillSlot = a.allocSlot(current.Start())
	a.releaseSlot(current.SpillSlot, current.End())
}

// allocSlot returns a spill slot usable starting at liveFrom, reusing one
// whose previous occupant is already known to be done with it by then
// instead of always growing NumSlots — the frame reserves the maximum
// number of slots live at once, not the total ever spilled.
func (a *Allocator) allocSlot(liveFrom lir.Position) int {
	for i, fs := range a.freeSlots {
		if fs.freeAt <= liveFrom {
			a.freeSlots = append(a.freeSlots[:i], a.freeSlots[i+1:]...)
			return fs.slot
		}
	}
	slot := a.nextSlot
	a.nextSlot++
	return slot
}

// releaseSlot records slot as available for reuse by anything spilled from
// freeAt onward.
func (a *Allocator) releaseSlot(slot int, freeAt lir.Position) {
	a.freeSlots = append(a.freeSlots, spillSlotEntry{slot: slot, freeAt: freeAt})
}

// evictForSpill removes victim from active, gives it a spill slot for the
// remainder of its lifetime from pos onward by splitting it there, and
// leaves its pre-pos portion (already handled — it ran in victim.Reg up to
// now) alone.
func (a *Allocator) evictForSpill(victim *Interval, pos lir.Position) {
	var stillActive []*Interval
	for _, it := range a.active {
		if it != victim {
			stillActive = append(stillActive, it)
		}
	}
	a.active = stillActive

	child := victim.SplitAt(pos, a.allocID)
	child.Reg = -1
	child.SpillSlot = a.allocSlot(child.Start())
	a.releaseSlot(child.SpillSlot, child.End())
	// The spilled remainder needs no further register-allocation pass: it
	// occupies its slot for the rest of its life. It is still recorded so
	// OperandAt can find it.
	a.evicted = append(a.evicted, child)
}

func (a *Allocator) allocID() int {
	id := a.nextID
	a.nextID++
	return id
}

func (a *Allocator) insertUnhandled(iv *Interval) {
	i := sort.Search(len(a.unhandled), func(i int) bool {
		return a.unhandled[i].Start() > iv.Start()
	})
	a.unhandled = append(a.unhandled, nil)
	copy(a.unhandled[i+1:], a.unhandled[i:len(a.unhandled)-1])
	a.unhandled[i] = iv
}

func sortByStart(ivs []*Interval) {
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start() < ivs[j].Start() })
}

// firstIntersection finds the earliest position at or after b's start
// where a and b are both live, used to bound how long a free register
// reserved by an inactive interval stays free for a newly considered one.
func firstIntersection(a, b *Interval) (lir.Position, bool) {
	best := maxPos
	found := false
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			from := ra.From
			if rb.From > from {
				from = rb.From
			}
			to := ra.To
			if rb.To < to {
				to = rb.To
			}
			if from < to && from < best {
				best = from
				found = true
			}
		}
	}
	return best, found
}
