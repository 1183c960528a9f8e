package hir

import "github.com/tangzhangming/nova/internal/jit/zone"

// Func is one compiled function's HIR: a CFG of Blocks in SSA form, owned by
// a single Zone for the lifetime of the compile.
type Func struct {
	Name      string
	NumLocals int
	NumArgs   int
	Entry     *Block

	// RPOBlocks is Entry-reachable blocks in reverse post-order, filled in
	// by Finish. Liveness, dominator computation and interval numbering all
	// walk this order.
	RPOBlocks []*Block

	zone       *zone.Zone
	blockPool  *zone.Pool[Block]
	instrPool  *zone.Pool[Instr]
	nextBlock  int
	nextInstr  int
}

// NewFunc creates an empty function whose nodes are owned by z.
func NewFunc(z *zone.Zone, name string, numArgs, numLocals int) *Func {
	fn := &Func{
		Name:      name,
		NumArgs:   numArgs,
		NumLocals: numLocals,
		zone:      z,
		blockPool: zone.NewPool[Block](z),
		instrPool: zone.NewPool[Instr](z),
	}
	fn.Entry = fn.NewBlock()
	return fn
}

// NewBlock allocates a fresh, unconnected block.
func (fn *Func) NewBlock() *Block {
	b := fn.blockPool.New()
	b.ID = fn.nextBlock
	fn.nextBlock++
	return b
}

// NewInstr allocates a zero-valued instruction with a unique ID. Callers
// set Op and the relevant payload fields, then Block.Append it.
func (fn *Func) NewInstr(op Op) *Instr {
	i := fn.instrPool.New()
	i.ID = fn.nextInstr
	i.Op = op
	fn.nextInstr++
	return i
}

// Connect records a fallthrough/branch edge from a to b. Callers are
// responsible for also pointing a's terminator at b via Targets.
func (fn *Func) Connect(a, b *Block) {
	a.addSucc(b)
}

// NumInstrs returns how many instructions this function has allocated,
// used to size flat per-instruction arrays in later passes.
func (fn *Func) NumInstrs() int {
	return fn.nextInstr
}

// NumBlocks returns how many blocks this function has allocated.
func (fn *Func) NumBlocks() int {
	return fn.nextBlock
}

// Finish computes reverse post-order over Entry-reachable blocks,
// renumbers Block.ID to match that order (the numbering the allocator and
// liveness depend on), and computes the dominator tree and dominance
// frontiers. Call once after the builder has finished emitting blocks.
func (fn *Func) Finish() {
	order := reversePostOrder(fn.Entry)
	for idx, b := range order {
		b.ID = idx
	}
	fn.RPOBlocks = order
	computeDominators(order)
	computeDominanceFrontier(order)
}

func reversePostOrder(entry *Block) []*Block {
	visited := make(map[*Block]bool)
	var post []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	// reverse
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// computeDominators is the iterative Cooper/Harvey/Kennedy algorithm,
// requiring blocks already numbered in reverse post-order — the same
// algorithm internal/jit's original ssa.go attempted, ported here against a
// real, concrete Block type instead of an undefined one.
func computeDominators(order []*Block) {
	if len(order) == 0 {
		return
	}
	entry := order[0]
	entry.IDom = entry
	changed := true
	for changed {
		changed = false
		for _, b := range order[1:] {
			var newIdom *Block
			for _, p := range b.Preds {
				if p.IDom == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p)
			}
			if newIdom != nil && b.IDom != newIdom {
				b.IDom = newIdom
				changed = true
			}
		}
	}
	entry.IDom = nil
}

func intersect(a, b *Block) *Block {
	for a != b {
		for a.ID > b.ID {
			a = a.IDom
		}
		for b.ID > a.ID {
			b = b.IDom
		}
	}
	return a
}

func computeDominanceFrontier(order []*Block) {
	for _, b := range order {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != b.IDom && runner != nil {
				runner.DomFront = appendUnique(runner.DomFront, b)
				runner = runner.IDom
			}
		}
	}
}

func appendUnique(list []*Block, b *Block) []*Block {
	for _, x := range list {
		if x == b {
			return list
		}
	}
	return append(list, b)
}
