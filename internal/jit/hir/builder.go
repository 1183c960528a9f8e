package hir

import (
	"fmt"

	"github.com/tangzhangming/nova/internal/ast"
	"github.com/tangzhangming/nova/internal/compiler"
	"github.com/tangzhangming/nova/internal/jit/zone"
)

// Builder converts one function or method body directly from the AST into
// HIR, constructing SSA form as it goes rather than building a non-SSA IR
// first and fixing it up afterward. It uses the incomplete-phi,
// sealed-block construction (Braun et al.) instead of the dominance-frontier
// insertion the original source's ssa.go attempted: a block is "sealed" once
// all of its predecessors are known, and only then are its incomplete Phis
// resolved. This sidesteps needing a dominator tree during construction;
// Func.Finish still computes one afterward.
type Builder struct {
	fn   *Func
	zone *zone.Zone
	syms *compiler.SymbolTable

	cur *Block

	// currentDef[local][block] is the reaching SSA value of a local slot at
	// the end of block, or at the point reached so far if block == cur.
	currentDef map[int]map[*Block]*Instr

	sealed        map[*Block]bool
	incompletePhi map[*Block]map[int]*Instr

	breakTargets    []*Block
	continueTargets []*Block

	localNames map[string]int
	nextLocal  int
}

// Build compiles decl's body into a Func. decl is an *ast.MethodDecl: Nova
// represents both free functions and class methods with the same node, so
// the builder does too.
func Build(decl *ast.MethodDecl, syms *compiler.SymbolTable) (*Func, error) {
	if decl.Body == nil {
		return nil, fmt.Errorf("hir: %s has no body (abstract or interface method)", decl.Name.Name)
	}
	z := zone.New()
	fn := NewFunc(z, decl.Name.Name, len(decl.Parameters), 0)

	b := &Builder{
		fn:            fn,
		zone:          z,
		syms:          syms,
		cur:           fn.Entry,
		currentDef:    make(map[int]map[*Block]*Instr),
		sealed:        map[*Block]bool{fn.Entry: true},
		incompletePhi: make(map[*Block]map[int]*Instr),
		localNames:    make(map[string]int),
	}

	entry := fn.NewInstr(OpEntry)
	b.cur.Append(entry)

	for i, p := range decl.Parameters {
		slot := b.declareLocal(p.Name.Name)
		arg := fn.NewInstr(OpLoadLocal)
		arg.LocalIdx = i
		arg.Type = GuessUnknown
		b.cur.Append(arg)
		b.writeVariable(slot, b.cur, arg)
	}

	for _, stmt := range decl.Body.Statements {
		if b.cur == nil {
			break // unreachable code after a terminator
		}
		b.buildStmt(stmt)
	}

	if b.cur != nil && b.cur.Terminator() == nil {
		ret := fn.NewInstr(OpReturn)
		b.cur.Append(ret)
	}

	fn.NumLocals = b.nextLocal
	fn.Finish()
	return fn, nil
}

func (b *Builder) declareLocal(name string) int {
	if slot, ok := b.localNames[name]; ok {
		return slot
	}
	slot := b.nextLocal
	b.nextLocal++
	b.localNames[name] = slot
	return slot
}

// writeVariable records that blk's reaching definition of local becomes v.
func (b *Builder) writeVariable(local int, blk *Block, v *Instr) {
	defs, ok := b.currentDef[local]
	if !ok {
		defs = make(map[*Block]*Instr)
		b.currentDef[local] = defs
	}
	defs[blk] = v
}

// readVariable resolves the reaching definition of local as seen at the end
// of blk, recursing to predecessors and inserting Phis at merge points as
// needed.
func (b *Builder) readVariable(local int, blk *Block) *Instr {
	if v, ok := b.currentDef[local][blk]; ok {
		return v
	}
	return b.readVariableRecursive(local, blk)
}

func (b *Builder) readVariableRecursive(local int, blk *Block) *Instr {
	var val *Instr
	if !b.sealed[blk] {
		phi := b.fn.NewInstr(OpPhi)
		phi.Args = make([]*Instr, len(blk.Preds))
		blk.InsertPhi(phi)
		if b.incompletePhi[blk] == nil {
			b.incompletePhi[blk] = make(map[int]*Instr)
		}
		b.incompletePhi[blk][local] = phi
		val = phi
	} else if len(blk.Preds) == 1 {
		val = b.readVariable(local, blk.Preds[0])
	} else if len(blk.Preds) == 0 {
		// Unreachable or entry with no writer: treat as null.
		val = b.constNull()
	} else {
		phi := b.fn.NewInstr(OpPhi)
		phi.Args = make([]*Instr, len(blk.Preds))
		blk.InsertPhi(phi)
		b.writeVariable(local, blk, phi)
		val = b.addPhiOperands(local, blk, phi)
	}
	b.writeVariable(local, blk, val)
	return val
}

func (b *Builder) addPhiOperands(local int, blk *Block, phi *Instr) *Instr {
	for i, pred := range blk.Preds {
		phi.Args[i] = b.readVariable(local, pred)
	}
	return tryRemoveTrivialPhi(phi)
}

// tryRemoveTrivialPhi collapses a Phi whose operands are all the same value
// (or the phi itself) into that value. A full implementation would also
// rewrite existing uses in place; the builder only calls this for a Phi
// created at an already-sealed block, before readVariable has returned it
// to any caller, so returning the replacement is sufficient here.
// Incomplete Phis, which callers may already hold, are never collapsed.
func tryRemoveTrivialPhi(phi *Instr) *Instr {
	var same *Instr
	for _, arg := range phi.Args {
		if arg == same || arg == phi {
			continue
		}
		if same != nil {
			return phi
		}
		same = arg
	}
	if same == nil {
		return phi
	}
	phi.Op = OpNop
	phi.Args = nil
	return same
}

// sealBlock marks blk as having all its predecessors known, resolving any
// Phis created speculatively while it was open.
func (b *Builder) sealBlock(blk *Block) {
	for local, phi := range b.incompletePhi[blk] {
		// Predecessors may have been added since the Phi was created, and
		// readers may already hold it, so it is resized and kept as a Phi.
		phi.Args = make([]*Instr, len(blk.Preds))
		for i, pred := range blk.Preds {
			phi.Args[i] = b.readVariable(local, pred)
		}
	}
	delete(b.incompletePhi, blk)
	b.sealed[blk] = true
}

func (b *Builder) constNull() *Instr {
	i := b.fn.NewInstr(OpLoadRoot)
	i.Type = GuessObject
	b.cur.Append(i)
	return i
}

func (b *Builder) emitJump(target *Block) {
	g := b.fn.NewInstr(OpGoto)
	g.Targets = []*Block{target}
	b.fn.Connect(b.cur, target)
	b.cur.Append(g)
}
