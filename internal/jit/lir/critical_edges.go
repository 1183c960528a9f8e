package lir

import "github.com/tangzhangming/nova/internal/jit/hir"

// edgeKey identifies one control-flow edge by its endpoints.
type edgeKey struct {
	pred *Block
	succ *Block
}

// SplitCriticalEdges inserts an empty block on every critical edge — a
// predecessor with more than one successor feeding a successor with more
// than one predecessor — so a Phi-elimination move placed "on the edge"
// has a block of its own to live in, rather than landing in the
// predecessor (where it would also run for the predecessor's other
// successor) or the successor (where it would run regardless of which
// predecessor was taken).
//
// It returns a lookup from (pred, succ) to the block that now owns that
// edge: the split block if the edge was critical, otherwise pred itself
// unchanged.
func SplitCriticalEdges(fn *Func) func(pred, succ *Block) *Block {
	owner := make(map[edgeKey]*Block)
	for _, pred := range fn.Blocks {
		for _, succ := range pred.Succs {
			owner[edgeKey{pred, succ}] = pred
		}
	}

	nextID := len(fn.Blocks)
	for _, pred := range fn.Blocks {
		if len(pred.Succs) < 2 {
			continue
		}
		for sIdx, succ := range pred.Succs {
			if len(succ.Preds) < 2 {
				continue
			}
			edge := fn.newBlock(nextID)
			nextID++
			fn.Blocks = append(fn.Blocks, edge)

			pIdx := succ.predIndex(pred)
			succ.Preds[pIdx] = edge
			edge.Preds = []*Block{pred}
			edge.Succs = []*Block{succ}
			pred.Succs[sIdx] = edge

			if term := pred.Terminator(); term != nil {
				for i, t := range term.Targets {
					if t == succ {
						term.Targets[i] = edge
					}
				}
			}
			goBack := fn.newInstr()
			goBack.HIROp = hir.OpGoto
			goBack.Targets = []*Block{succ}
			edge.Append(goBack)

			owner[edgeKey{pred, succ}] = edge
		}
	}

	return func(pred, succ *Block) *Block {
		if b, ok := owner[edgeKey{pred, succ}]; ok {
			return b
		}
		return pred
	}
}
