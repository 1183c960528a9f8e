package jit

import "fmt"

// ErrorKind classifies why a compilation attempt failed, so callers (the
// hotspot-triggering interpreter loop) can decide whether to retry, fall
// back to the bytecode interpreter silently, or surface a bug.
type ErrorKind int

const (
	// KindUnsupported means the function uses a construct the JIT
	// deliberately declines rather than approximates (try/catch,
	// coroutines, a HIR op codegen has no lowering for yet). Always safe
	// to fall back to the interpreter.
	KindUnsupported ErrorKind = iota
	// KindInvariant means a pass found its own input malformed — a bug in
	// an earlier stage, not a property of the compiled function.
	KindInvariant
	// KindOverBudget means the function exceeded a configured compile-time
	// budget (Config.MaxSpillSlots) and compilation was aborted
	// rather than left to run arbitrarily long.
	KindOverBudget
	// KindTargetConflict means the requested TargetConv doesn't match the
	// running process's native convention.
	KindTargetConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindInvariant:
		return "invariant"
	case KindOverBudget:
		return "over-budget"
	case KindTargetConflict:
		return "target-conflict"
	default:
		return "unknown"
	}
}

// CompileError is the error type every stage of the pipeline
// (hir.Build, lir.Lower, regalloc, codegen) wraps its failures in before
// they reach Compile's caller.
type CompileError struct {
	Kind     ErrorKind
	Function string
	Stage    string
	Err      error
}

func (e *CompileError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("jit: %s: %s compiling %q: %v", e.Kind, e.Stage, e.Function, e.Err)
	}
	return fmt.Sprintf("jit: %s: %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

func newCompileError(kind ErrorKind, fnName, stage string, err error) *CompileError {
	return &CompileError{Kind: kind, Function: fnName, Stage: stage, Err: err}
}
