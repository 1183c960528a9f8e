package lir

import "github.com/tangzhangming/nova/internal/jit/zone"

// Func is the lowered form of one hir.Func: same CFG shape, virtual
// registers instead of SSA values, Gaps interleaved for the move resolver,
// and linear instruction positions assigned for interval arithmetic.
type Func struct {
	Name      string
	Blocks    []*Block // the source hir.Func's reverse post-order, then any blocks SplitCriticalEdges added
	NumVRegs  int
	NumSpills int

	zone      *zone.Zone
	blockPool *zone.Pool[Block]
	instrPool *zone.Pool[Instr]
}

// PositionStep is the distance between the positions Number assigns to
// consecutive Code elements. Every Gap and every Instr gets one position;
// an Instr's Uses are read at its own position and its Defs are written at
// the next one (position+PositionStep), so an interval can end exactly at a
// use without overlapping a def the instruction itself produces.
const PositionStep = 2

func newFunc(z *zone.Zone, name string) *Func {
	return &Func{
		Name:      name,
		zone:      z,
		blockPool: zone.NewPool[Block](z),
		instrPool: zone.NewPool[Instr](z),
	}
}

func (fn *Func) newBlock(id int) *Block {
	b := fn.blockPool.New()
	b.ID = id
	return b
}

func (fn *Func) newInstr() *Instr {
	return fn.instrPool.New()
}

func (fn *Func) newVirtual(isFloat bool) Operand {
	id := fn.NumVRegs
	fn.NumVRegs++
	return Virtual(id, isFloat)
}

func (fn *Func) newSpillSlot(isFloat bool) Operand {
	id := fn.NumSpills
	fn.NumSpills++
	return Spill(id, isFloat)
}

// Position identifies one point in the function's linear instruction order.
type Position int

// Number assigns a Position to every Gap and Instr in block order, filling
// posOf and returning the total instruction-stream length. Positions
// increase by PositionStep per Gap and per Instr, matching the "uses read
// before this position, defs written at this position" convention
// BuildIntervals and the allocator depend on.
func (fn *Func) Number() (posOf map[interface{}]Position, maxPos Position) {
	posOf = make(map[interface{}]Position)
	var pos Position
	for _, b := range fn.Blocks {
		for _, v := range b.Code {
			posOf[v] = pos
			pos += PositionStep
		}
	}
	return posOf, pos
}
