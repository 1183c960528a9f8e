package hir

import "github.com/tangzhangming/nova/internal/ast"

func (b *Builder) buildExpr(expr ast.Expression) *Instr {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		i := b.fn.NewInstr(OpLoadRoot)
		i.IntImm = e.Value
		i.Type = GuessInt
		b.cur.Append(i)
		return i
	case *ast.FloatLiteral:
		i := b.fn.NewInstr(OpLoadRoot)
		i.FloatImm = e.Value
		i.Type = GuessFloat
		b.cur.Append(i)
		return i
	case *ast.BoolLiteral:
		i := b.fn.NewInstr(OpLoadRoot)
		i.BoolImm = e.Value
		i.Type = GuessBool
		b.cur.Append(i)
		return i
	case *ast.StringLiteral:
		i := b.fn.NewInstr(OpLoadRoot)
		i.StrImm = e.Value
		i.Type = GuessObject
		b.cur.Append(i)
		return i
	case *ast.NullLiteral:
		return b.constNull()
	case *ast.Variable:
		slot := b.declareLocal(e.Name)
		return b.readVariable(slot, b.cur)
	case *ast.Identifier:
		slot := b.declareLocal(e.Name)
		return b.readVariable(slot, b.cur)
	case *ast.BinaryExpr:
		return b.buildBinary(e)
	case *ast.UnaryExpr:
		return b.buildUnary(e)
	case *ast.AssignExpr:
		return b.buildAssign(e)
	case *ast.CallExpr:
		return b.buildCall(e)
	case *ast.IndexExpr:
		obj := b.buildExpr(e.Object)
		idx := b.buildExpr(e.Index)
		i := b.fn.NewInstr(OpArrayGet)
		i.Args = []*Instr{obj, idx}
		i.Type = GuessUnknown
		b.cur.Append(i)
		return i
	case *ast.PropertyAccess:
		obj := b.buildExpr(e.Object)
		i := b.fn.NewInstr(OpGetField)
		i.Args = []*Instr{obj}
		i.FieldName = e.Property.Name
		i.Type = GuessUnknown
		b.cur.Append(i)
		return i
	case *ast.NewExpr:
		i := b.fn.NewInstr(OpAllocateObject)
		i.CalleeName = e.ClassName.Name
		for _, arg := range e.Arguments {
			i.Args = append(i.Args, b.buildExpr(arg))
		}
		i.Type = GuessObject
		b.cur.Append(i)
		return i
	default:
		i := b.fn.NewInstr(OpNop)
		b.cur.Append(i)
		return i
	}
}

func (b *Builder) buildBinary(e *ast.BinaryExpr) *Instr {
	op, ok := binOpFromLiteral(e.Operator.Literal)
	if !ok {
		i := b.fn.NewInstr(OpNop)
		b.cur.Append(i)
		return i
	}
	if op == BinAnd || op == BinOr {
		return b.buildShortCircuit(e, op)
	}
	lhs := b.buildExpr(e.Left)
	rhs := b.buildExpr(e.Right)
	i := b.fn.NewInstr(OpBinOp)
	i.BinOp = op
	i.Args = []*Instr{lhs, rhs}
	i.Type = binResultType(op, lhs.Type, rhs.Type)
	b.cur.Append(i)
	return i
}

// buildShortCircuit lowers && and || to a diamond instead of an eager
// BinOp, preserving short-circuit evaluation: the right operand must not
// execute when the left alone decides the result.
func (b *Builder) buildShortCircuit(e *ast.BinaryExpr, op BinOpKind) *Instr {
	lhs := b.buildExpr(e.Left)
	br := b.fn.NewInstr(OpBranchBool)
	br.Args = []*Instr{lhs}
	branchBlock := b.cur
	branchBlock.Append(br)

	rhsBlock := b.fn.NewBlock()
	joinBlock := b.fn.NewBlock()
	b.fn.Connect(branchBlock, rhsBlock)
	b.fn.Connect(branchBlock, joinBlock)

	if op == BinAnd {
		br.Targets = []*Block{rhsBlock, joinBlock}
	} else {
		br.Targets = []*Block{joinBlock, rhsBlock}
	}

	b.sealBlock(rhsBlock)
	b.cur = rhsBlock
	rhs := b.buildExpr(e.Right)
	rhsEnd := b.cur
	b.emitJump(joinBlock)

	b.sealBlock(joinBlock)
	b.cur = joinBlock
	phi := b.fn.NewInstr(OpPhi)
	phi.Type = GuessBool
	// Predecessor order follows Block.Preds, which Connect appended in:
	// branchBlock (short-circuit case) then rhsBlock.
	idxBranch := joinBlock.predIndex(branchBlock)
	idxRhs := joinBlock.predIndex(rhsEnd)
	phi.Args = make([]*Instr, len(joinBlock.Preds))
	phi.Args[idxBranch] = lhs
	phi.Args[idxRhs] = rhs
	joinBlock.InsertPhi(phi)
	return phi
}

func (b *Builder) buildUnary(e *ast.UnaryExpr) *Instr {
	v := b.buildExpr(e.Operand)
	var kind UnOpKind
	switch e.Operator.Literal {
	case "-":
		kind = UnNeg
	case "!":
		kind = UnNot
	case "~":
		kind = UnBitNot
	default:
		i := b.fn.NewInstr(OpNop)
		b.cur.Append(i)
		return i
	}
	i := b.fn.NewInstr(OpUnOp)
	i.UnOp = kind
	i.Args = []*Instr{v}
	i.Type = v.Type
	b.cur.Append(i)
	return i
}

func (b *Builder) buildAssign(e *ast.AssignExpr) *Instr {
	v := b.buildExpr(e.Right)
	switch target := e.Left.(type) {
	case *ast.Variable:
		slot := b.declareLocal(target.Name)
		store := b.fn.NewInstr(OpStoreLocal)
		store.LocalIdx = slot
		store.Args = []*Instr{v}
		b.cur.Append(store)
		b.writeVariable(slot, b.cur, v)
	case *ast.PropertyAccess:
		obj := b.buildExpr(target.Object)
		store := b.fn.NewInstr(OpSetField)
		store.FieldName = target.Property.Name
		store.Args = []*Instr{obj, v}
		b.cur.Append(store)
	case *ast.IndexExpr:
		obj := b.buildExpr(target.Object)
		idx := b.buildExpr(target.Index)
		store := b.fn.NewInstr(OpArraySet)
		store.Args = []*Instr{obj, idx, v}
		b.cur.Append(store)
	}
	return v
}

func (b *Builder) buildCall(e *ast.CallExpr) *Instr {
	var i *Instr
	if method, ok := e.Function.(*ast.PropertyAccess); ok {
		recv := b.buildExpr(method.Object)
		i = b.fn.NewInstr(OpCallMethod)
		i.CalleeName = method.Property.Name
		i.Args = append(i.Args, recv)
	} else {
		name := ""
		if id, ok := e.Function.(*ast.Identifier); ok {
			name = id.Name
		}
		i = b.fn.NewInstr(OpCall)
		i.CalleeName = name
	}
	for _, arg := range e.Arguments {
		i.Args = append(i.Args, b.buildExpr(arg))
	}
	i.Type = GuessUnknown
	b.cur.Append(i)
	return i
}

func binOpFromLiteral(lit string) (BinOpKind, bool) {
	switch lit {
	case "+":
		return BinAdd, true
	case "-":
		return BinSub, true
	case "*":
		return BinMul, true
	case "/":
		return BinDiv, true
	case "%":
		return BinMod, true
	case "==":
		return BinEq, true
	case "!=":
		return BinNe, true
	case "<":
		return BinLt, true
	case "<=":
		return BinLe, true
	case ">":
		return BinGt, true
	case ">=":
		return BinGe, true
	case "&&":
		return BinAnd, true
	case "||":
		return BinOr, true
	case "&":
		return BinBitAnd, true
	case "|":
		return BinBitOr, true
	case "^":
		return BinBitXor, true
	case "<<":
		return BinShl, true
	case ">>":
		return BinShr, true
	default:
		return 0, false
	}
}

func binResultType(op BinOpKind, lhs, rhs TypeGuess) TypeGuess {
	switch op {
	case BinEq, BinNe, BinLt, BinLe, BinGt, BinGe, BinAnd, BinOr:
		return GuessBool
	}
	if lhs == GuessFloat || rhs == GuessFloat {
		return GuessFloat
	}
	if lhs == GuessInt && rhs == GuessInt {
		return GuessInt
	}
	return GuessUnknown
}
