package hir

import "github.com/tangzhangming/nova/internal/ast"

func (b *Builder) buildStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		b.buildExpr(s.Expr)
	case *ast.VarDeclStmt:
		slot := b.declareLocal(s.Name.Name)
		var v *Instr
		if s.Value != nil {
			v = b.buildExpr(s.Value)
		} else {
			v = b.constNull()
		}
		store := b.fn.NewInstr(OpStoreLocal)
		store.LocalIdx = slot
		store.Args = []*Instr{v}
		b.cur.Append(store)
		b.writeVariable(slot, b.cur, v)
	case *ast.BlockStmt:
		for _, inner := range s.Statements {
			if b.cur == nil {
				return
			}
			b.buildStmt(inner)
		}
	case *ast.IfStmt:
		b.buildIf(s)
	case *ast.WhileStmt:
		b.buildWhile(s)
	case *ast.ForStmt:
		b.buildFor(s)
	case *ast.ReturnStmt:
		ret := b.fn.NewInstr(OpReturn)
		if len(s.Values) > 0 {
			ret.Args = []*Instr{b.buildExpr(s.Values[0])}
		}
		b.cur.Append(ret)
		b.cur = nil
	case *ast.BreakStmt:
		if len(b.breakTargets) == 0 {
			return
		}
		b.emitJump(b.breakTargets[len(b.breakTargets)-1])
		b.cur = nil
	case *ast.ContinueStmt:
		if len(b.continueTargets) == 0 {
			return
		}
		b.emitJump(b.continueTargets[len(b.continueTargets)-1])
		b.cur = nil
	default:
		// Statement kinds outside the core arithmetic/control-flow/object
		// subset (try/catch, coroutines, switch, foreach, echo) are handled
		// by the interpreter tier; the JIT declines to compile such
		// functions rather than approximate them. Building reaches here
		// only through direct unit tests of unsupported-statement handling.
	}
}

func (b *Builder) buildIf(s *ast.IfStmt) {
	cond := b.buildExpr(s.Condition)
	br := b.fn.NewInstr(OpBranchBool)
	br.Args = []*Instr{cond}
	branchBlock := b.cur
	branchBlock.Append(br)

	thenBlock := b.fn.NewBlock()
	joinBlock := b.fn.NewBlock()

	b.fn.Connect(branchBlock, thenBlock)
	b.sealBlock(thenBlock)
	b.cur = thenBlock
	b.buildStmt(s.Then)
	thenEnd := b.cur
	if thenEnd != nil {
		b.emitJump(joinBlock)
	}

	var elseBlock *Block
	if s.Else != nil || len(s.ElseIfs) > 0 {
		elseBlock = b.fn.NewBlock()
		b.fn.Connect(branchBlock, elseBlock)
		b.sealBlock(elseBlock)
		b.cur = elseBlock
		if len(s.ElseIfs) > 0 {
			b.buildElseIfChain(s.ElseIfs, s.Else, joinBlock)
		} else {
			b.buildStmt(s.Else)
		}
		if b.cur != nil {
			b.emitJump(joinBlock)
		}
	} else {
		b.fn.Connect(branchBlock, joinBlock)
		elseBlock = joinBlock
	}
	br.Targets = []*Block{thenBlock, elseBlock}

	b.sealBlock(joinBlock)
	b.cur = joinBlock
}

func (b *Builder) buildElseIfChain(clauses []*ast.ElseIfClause, finalElse *ast.BlockStmt, join *Block) {
	clause := clauses[0]
	cond := b.buildExpr(clause.Condition)
	br := b.fn.NewInstr(OpBranchBool)
	br.Args = []*Instr{cond}
	branchBlock := b.cur
	branchBlock.Append(br)

	thenBlock := b.fn.NewBlock()
	elseBlock := b.fn.NewBlock()
	b.fn.Connect(branchBlock, thenBlock)
	b.fn.Connect(branchBlock, elseBlock)
	br.Targets = []*Block{thenBlock, elseBlock}

	b.sealBlock(thenBlock)
	b.cur = thenBlock
	b.buildStmt(clause.Body)
	if b.cur != nil {
		b.emitJump(join)
	}

	b.sealBlock(elseBlock)
	b.cur = elseBlock
	if len(clauses) > 1 {
		b.buildElseIfChain(clauses[1:], finalElse, join)
	} else if finalElse != nil {
		b.buildStmt(finalElse)
	}
}

func (b *Builder) buildWhile(s *ast.WhileStmt) {
	headBlock := b.fn.NewBlock()
	b.emitJump(headBlock)

	b.cur = headBlock
	cond := b.buildExpr(s.Condition)
	br := b.fn.NewInstr(OpBranchBool)
	br.Args = []*Instr{cond}
	headBlock.Append(br)

	bodyBlock := b.fn.NewBlock()
	exitBlock := b.fn.NewBlock()
	b.fn.Connect(headBlock, bodyBlock)
	b.fn.Connect(headBlock, exitBlock)
	br.Targets = []*Block{bodyBlock, exitBlock}

	b.sealBlock(bodyBlock)
	b.breakTargets = append(b.breakTargets, exitBlock)
	b.continueTargets = append(b.continueTargets, headBlock)

	b.cur = bodyBlock
	b.buildStmt(s.Body)
	if b.cur != nil {
		b.emitJump(headBlock)
	}

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	// The loop header has exactly two predecessors (the preheader and the
	// latch) by construction, so it can be sealed once both edges exist.
	b.sealBlock(headBlock)
	b.sealBlock(exitBlock)
	b.cur = exitBlock
}

func (b *Builder) buildFor(s *ast.ForStmt) {
	if s.Init != nil {
		b.buildStmt(s.Init)
	}
	headBlock := b.fn.NewBlock()
	b.emitJump(headBlock)
	b.cur = headBlock

	var br *Instr
	bodyBlock := b.fn.NewBlock()
	exitBlock := b.fn.NewBlock()
	if s.Condition != nil {
		cond := b.buildExpr(s.Condition)
		br = b.fn.NewInstr(OpBranchBool)
		br.Args = []*Instr{cond}
		headBlock.Append(br)
		b.fn.Connect(headBlock, bodyBlock)
		b.fn.Connect(headBlock, exitBlock)
		br.Targets = []*Block{bodyBlock, exitBlock}
	} else {
		b.fn.Connect(headBlock, bodyBlock)
	}

	b.sealBlock(bodyBlock)
	b.breakTargets = append(b.breakTargets, exitBlock)
	latchBlock := b.fn.NewBlock()
	b.continueTargets = append(b.continueTargets, latchBlock)

	b.cur = bodyBlock
	b.buildStmt(s.Body)
	if b.cur != nil {
		b.emitJump(latchBlock)
	}

	b.sealBlock(latchBlock)
	b.cur = latchBlock
	if s.Post != nil {
		b.buildExpr(s.Post)
	}
	if b.cur != nil {
		b.emitJump(headBlock)
	}

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.sealBlock(headBlock)
	b.sealBlock(exitBlock)
	b.cur = exitBlock
}
