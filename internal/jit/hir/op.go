package hir

// Op identifies the operation an Instr performs. The set is a superset of
// the three instruction lists found across the original source's ir.go,
// ssa.go/builder.go and types/types.go: every op any of the three needed is
// represented here exactly once, so the mid-end has a single instruction
// vocabulary instead of three inconsistent ones.
type Op int

const (
	OpNop Op = iota

	// Control flow. A block ends in exactly one of Return, Goto or
	// BranchBool; Entry appears only as the function's first instruction.
	OpEntry
	OpReturn
	OpGoto
	OpBranchBool

	// Storage.
	OpLoadRoot    // load a compile-time constant (int/float/string/bool/null)
	OpLoadLocal   // read a source-level local slot
	OpStoreLocal  // write a source-level local slot
	OpLoadContext // read a captured upvalue from the enclosing closure
	OpStoreContext

	// Objects.
	OpAllocateObject   // new T(...)
	OpAllocateFunction // closure literal
	OpAllocateContext  // captured-variable cell for a closure
	OpGetField
	OpSetField
	OpStoreProperty // property store through a safe/optional chain

	// Arithmetic and comparison.
	OpBinOp
	OpUnOp

	// Calls.
	OpCall
	OpCallMethod

	// Arrays.
	OpArrayGet
	OpArraySet
	OpArrayLen

	// SSA.
	OpPhi
)

func (op Op) String() string {
	switch op {
	case OpNop:
		return "nop"
	case OpEntry:
		return "entry"
	case OpReturn:
		return "return"
	case OpGoto:
		return "goto"
	case OpBranchBool:
		return "branch_bool"
	case OpLoadRoot:
		return "load_root"
	case OpLoadLocal:
		return "load_local"
	case OpStoreLocal:
		return "store_local"
	case OpLoadContext:
		return "load_context"
	case OpStoreContext:
		return "store_context"
	case OpAllocateObject:
		return "alloc_object"
	case OpAllocateFunction:
		return "alloc_function"
	case OpAllocateContext:
		return "alloc_context"
	case OpGetField:
		return "get_field"
	case OpSetField:
		return "set_field"
	case OpStoreProperty:
		return "store_property"
	case OpBinOp:
		return "binop"
	case OpUnOp:
		return "unop"
	case OpCall:
		return "call"
	case OpCallMethod:
		return "call_method"
	case OpArrayGet:
		return "array_get"
	case OpArraySet:
		return "array_set"
	case OpArrayLen:
		return "array_len"
	case OpPhi:
		return "phi"
	default:
		return "op?"
	}
}

// BinOpKind distinguishes the arithmetic/comparison/logical operator an
// OpBinOp instruction applies. Kept distinct from token.Token so hir does
// not depend on surface syntax once the AST has been consumed.
type BinOpKind int

const (
	BinAdd BinOpKind = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAnd
	BinOr
	BinBitAnd
	BinBitOr
	BinBitXor
	BinShl
	BinShr
)

// UnOpKind distinguishes the operator an OpUnOp instruction applies.
type UnOpKind int

const (
	UnNeg UnOpKind = iota
	UnNot
	UnBitNot
)

// TypeGuess is the builder's best static guess at a value's runtime
// representation. It drives register-class selection (GP vs XMM) the same
// way calling_convention.go splits integer and float argument registers; it
// is a guess, not a guarantee, because Nova values are dynamically typed.
type TypeGuess int

const (
	GuessUnknown TypeGuess = iota
	GuessInt
	GuessFloat
	GuessBool
	GuessObject
)

func (g TypeGuess) IsFloat() bool { return g == GuessFloat }
