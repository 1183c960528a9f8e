package moveresolve

import (
	"testing"

	"github.com/tangzhangming/nova/internal/jit/lir"
)

// fakeScratch hands out ever-increasing spill slots, counting how many are
// ever live at once so tests can assert the "one scratch per cycle" bound.
type fakeScratch struct {
	next    int
	live    int
	maxLive int
}

func (s *fakeScratch) Acquire(isFloat bool) lir.Operand {
	s.next++
	s.live++
	if s.live > s.maxLive {
		s.maxLive = s.live
	}
	return lir.Spill(1000+s.next, isFloat)
}

func (s *fakeScratch) Release(op lir.Operand) {
	s.live--
}

// simulate runs an ordered move list over a small named-location machine and
// returns the final contents, checking no move reads a location that has
// already been clobbered without having been saved first.
func simulate(t *testing.T, initial map[string]int64, moves []lir.MovePair) map[string]int64 {
	t.Helper()
	mem := make(map[string]int64, len(initial))
	for k, v := range initial {
		mem[k] = v
	}
	for _, mv := range moves {
		mem[operandKey(mv.To)] = mem[operandKey(mv.From)]
	}
	return mem
}

func reg(n int) lir.Operand { return lir.Register(n, false) }

func TestResolveChainPreservesReadBeforeWrite(t *testing.T) {
	// r0 <- r1, r1 <- r2 : r1's old value must reach r0 before r1 is overwritten.
	moves := []lir.MovePair{
		{From: reg(1), To: reg(0)},
		{From: reg(2), To: reg(1)},
	}
	scratch := &fakeScratch{}
	ordered := Resolve(moves, scratch)

	initial := map[string]int64{operandKey(reg(0)): 100, operandKey(reg(1)): 200, operandKey(reg(2)): 300}
	final := simulate(t, initial, ordered)

	if final[operandKey(reg(0))] != 200 {
		t.Errorf("r0 = %d, want 200 (old r1)", final[operandKey(reg(0))])
	}
	if final[operandKey(reg(1))] != 300 {
		t.Errorf("r1 = %d, want 300 (old r2)", final[operandKey(reg(1))])
	}
	if scratch.next != 0 {
		t.Errorf("expected no scratch for an acyclic chain, used %d", scratch.next)
	}
}

// TestResolveThreeCycleRoundTrips covers a rotation among three locations —
// the S3 shape a Phi resolution produces when three values swap around a
// loop back-edge — and checks it round-trips through exactly one scratch.
func TestResolveThreeCycleRoundTrips(t *testing.T) {
	// r0 <- r1, r1 <- r2, r2 <- r0 : a 3-cycle rotation.
	moves := []lir.MovePair{
		{From: reg(1), To: reg(0)},
		{From: reg(2), To: reg(1)},
		{From: reg(0), To: reg(2)},
	}
	scratch := &fakeScratch{}
	ordered := Resolve(moves, scratch)

	initial := map[string]int64{
		operandKey(reg(0)): 1,
		operandKey(reg(1)): 2,
		operandKey(reg(2)): 3,
	}
	final := simulate(t, initial, ordered)

	if final[operandKey(reg(0))] != 2 || final[operandKey(reg(1))] != 3 || final[operandKey(reg(2))] != 1 {
		t.Errorf("rotation mismatch: got r0=%d r1=%d r2=%d, want r0=2 r1=3 r2=1",
			final[operandKey(reg(0))], final[operandKey(reg(1))], final[operandKey(reg(2))])
	}
	if scratch.next != 1 {
		t.Errorf("expected exactly one scratch location for a single 3-cycle, used %d", scratch.next)
	}
	if scratch.maxLive > 1 {
		t.Errorf("expected at most one live scratch at a time, saw %d", scratch.maxLive)
	}
}

func TestResolveTwoCycleIsASwap(t *testing.T) {
	// r0 <- r1, r1 <- r0 : the simplest cycle, a pure swap.
	moves := []lir.MovePair{
		{From: reg(1), To: reg(0)},
		{From: reg(0), To: reg(1)},
	}
	scratch := &fakeScratch{}
	ordered := Resolve(moves, scratch)

	initial := map[string]int64{operandKey(reg(0)): 10, operandKey(reg(1)): 20}
	final := simulate(t, initial, ordered)

	if final[operandKey(reg(0))] != 20 || final[operandKey(reg(1))] != 10 {
		t.Errorf("swap mismatch: got r0=%d r1=%d, want r0=20 r1=10", final[operandKey(reg(0))], final[operandKey(reg(1))])
	}
	if scratch.next != 1 {
		t.Errorf("expected exactly one scratch for a 2-cycle, used %d", scratch.next)
	}
}

func TestResolveDropsNoOpMoves(t *testing.T) {
	moves := []lir.MovePair{{From: reg(0), To: reg(0)}}
	ordered := Resolve(moves, &fakeScratch{})
	if len(ordered) != 0 {
		t.Errorf("expected a same-location move to be dropped, got %v", ordered)
	}
}

func TestResolveFanOutFromSharedSource(t *testing.T) {
	// r0 <- r2, r1 <- r2, r2 <- r3 : two destinations read r2 before it's overwritten.
	moves := []lir.MovePair{
		{From: reg(2), To: reg(0)},
		{From: reg(2), To: reg(1)},
		{From: reg(3), To: reg(2)},
	}
	scratch := &fakeScratch{}
	ordered := Resolve(moves, scratch)

	initial := map[string]int64{
		operandKey(reg(0)): -1, operandKey(reg(1)): -1,
		operandKey(reg(2)): 7, operandKey(reg(3)): 9,
	}
	final := simulate(t, initial, ordered)
	if final[operandKey(reg(0))] != 7 || final[operandKey(reg(1))] != 7 || final[operandKey(reg(2))] != 9 {
		t.Errorf("fan-out mismatch: got r0=%d r1=%d r2=%d, want r0=7 r1=7 r2=9",
			final[operandKey(reg(0))], final[operandKey(reg(1))], final[operandKey(reg(2))])
	}
	if scratch.next != 0 {
		t.Errorf("fan-out from a shared source needs no scratch, used %d", scratch.next)
	}
}
