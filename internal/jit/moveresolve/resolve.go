// Package moveresolve sequences the parallel moves a Gap collects — Phi
// elimination and split-interval reshuffling both produce a set of moves
// that must all appear to happen simultaneously — into an ordered list of
// real moves a linear instruction stream can execute one at a time,
// breaking any cycles with the fewest scratch locations possible (never
// more than one live scratch per connected cycle).
package moveresolve

import "github.com/tangzhangming/nova/internal/jit/lir"

// ScratchProvider hands out a spare location of the requested class for the
// resolver to break a cycle with, and gets it back once the cycle is
// fully resolved. regalloc's provider always hands out a spill slot past
// the ones its intervals use; it never hands out a free register.
type ScratchProvider interface {
	Acquire(isFloat bool) lir.Operand
	Release(op lir.Operand)
}

type status int

const (
	notVisited status = iota
	pending
	done
)

// Resolve sequences moves into an order safe to execute one at a time. Each
// destination in moves must be written by at most one move — the caller
// (Phi elimination, or the allocator reconciling an interval split across a
// block boundary) guarantees that; Resolve does not merge writes.
//
// A move D<-S is safe only once every other pending move that reads D as
// its source has already run, since those reads need D's old value before
// this move clobbers it. Resolve walks that dependency in destination
// order and, where it finds a cycle (some ancestor move is still waiting on
// a destination further down the chain), saves the about-to-be-clobbered
// value to a scratch location and redirects the ancestor to read it there.
func Resolve(moves []lir.MovePair, scratch ScratchProvider) []lir.MovePair {
	r := newResolver(moves, scratch)

	var out []lir.MovePair
	for _, key := range r.order {
		out = append(out, r.resolve(key)...)
	}
	for _, tmp := range r.acquired {
		r.scratch.Release(tmp)
	}
	return out
}

type resolver struct {
	order     []string
	srcOf     map[string]lir.Operand
	dstOf     map[string]lir.Operand
	readersOf map[string][]string // operand key -> dst keys whose source is that operand
	status    map[string]status
	scratch   ScratchProvider
	acquired  []lir.Operand // scratch locations handed out this Resolve call, released once every move is sequenced
}

func newResolver(moves []lir.MovePair, scratch ScratchProvider) *resolver {
	r := &resolver{
		srcOf:     make(map[string]lir.Operand),
		dstOf:     make(map[string]lir.Operand),
		readersOf: make(map[string][]string),
		status:    make(map[string]status),
		scratch:   scratch,
	}
	for _, mv := range moves {
		if operandKey(mv.From) == operandKey(mv.To) {
			continue // value already where it needs to be
		}
		key := operandKey(mv.To)
		r.order = append(r.order, key)
		r.srcOf[key] = mv.From
		r.dstOf[key] = mv.To
	}
	for _, key := range r.order {
		srcKey := operandKey(r.srcOf[key])
		r.readersOf[srcKey] = append(r.readersOf[srcKey], key)
	}
	return r
}

// resolve performs (or schedules) the move writing dstKey, first performing
// every other move that still needs dstKey's current value as a source.
func (r *resolver) resolve(dstKey string) []lir.MovePair {
	if r.status[dstKey] == done {
		return nil
	}
	r.status[dstKey] = pending

	var out []lir.MovePair
	for _, readerKey := range r.readersOf[dstKey] {
		if readerKey == dstKey || r.status[readerKey] == done {
			continue
		}
		if r.status[readerKey] == pending {
			// readerKey is an ancestor in this walk, blocked waiting for
			// dstKey's value. dstKey is about to be overwritten below, so
			// save its current value now and have the ancestor read the
			// saved copy once it resumes.
			dst := r.dstOf[dstKey]
			tmp := r.scratch.Acquire(dst.IsFloat)
			r.acquired = append(r.acquired, tmp)
			out = append(out, lir.MovePair{From: dst, To: tmp})
			r.srcOf[readerKey] = tmp
			continue
		}
		out = append(out, r.resolve(readerKey)...)
	}

	out = append(out, lir.MovePair{From: r.srcOf[dstKey], To: r.dstOf[dstKey]})
	r.status[dstKey] = done
	return out
}

func operandKey(op lir.Operand) string {
	switch op.Kind {
	case lir.OpKindRegister:
		return classTag(op.IsFloat) + "r" + itoa64(int64(op.Reg))
	case lir.OpKindSpill:
		return classTag(op.IsFloat) + "s" + itoa64(int64(op.Slot))
	case lir.OpKindVirtual:
		return classTag(op.IsFloat) + "v" + itoa64(int64(op.Virt))
	default:
		return "i" + itoa64(op.Imm)
	}
}

func classTag(isFloat bool) string {
	if isFloat {
		return "f"
	}
	return "g"
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
