// Package jit compiles hot Nova functions to native x86-64 machine code.
package jit

import (
	"github.com/tangzhangming/nova/internal/ast"
	"github.com/tangzhangming/nova/internal/bytecode"
	"github.com/tangzhangming/nova/internal/compiler"
	"github.com/tangzhangming/nova/internal/jit/hir"
	"github.com/tangzhangming/nova/internal/jit/lir"
	"github.com/tangzhangming/nova/internal/jit/regalloc"
	"github.com/tangzhangming/nova/internal/jit/target"
)

// Config JIT 配置
type Config struct {
	Enabled           bool // 是否启用 JIT
	OptimizationLevel int  // 优化级别 (0-3)
	InlineThreshold   int  // 内联阈值
	HotspotThreshold  int  // 热点检测阈值

	// MaxSpillSlots aborts compilation with a KindOverBudget error rather
	// than let a pathological function spill without bound — the frame
	// this reserves grows linearly with it.
	MaxSpillSlots int

	// TargetConv selects the native calling convention this process runs
	// under; left unset, target.FromNative() decides.
	TargetConv target.Desc
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:           false, // 默认禁用（待实现）
		OptimizationLevel: 1,
		InlineThreshold:   50,
		HotspotThreshold:  1000,
		MaxSpillSlots:     256,
		TargetConv:        target.FromNative(),
	}
}

// JIT JIT 编译器
type JIT struct {
	config *Config
}

// New 创建 JIT 编译器
func New(config *Config) *JIT {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TargetConv.NumGPRegs == 0 {
		config.TargetConv = target.FromNative()
	}
	return &JIT{config: config}
}

// Compile runs one function through the full HIR -> LIR -> register
// allocation -> move resolution -> codegen pipeline. decl is the AST
// subtree bytecode.Function was itself compiled from — the JIT builds its
// HIR directly from source structure (see internal/jit/hir), not from the
// already-flattened bytecode, so it needs both.
func (j *JIT) Compile(decl *ast.MethodDecl, fn *bytecode.Function, syms *compiler.SymbolTable) (*CompiledCode, error) {
	name := decl.Name.Name

	hfn, err := hir.Build(decl, syms)
	if err != nil {
		return nil, newCompileError(KindUnsupported, name, "hir.Build", err)
	}

	lfn, err := lir.Lower(hfn, j.config.TargetConv)
	if err != nil {
		return nil, newCompileError(KindInvariant, name, "lir.Lower", err)
	}

	intervals := regalloc.BuildIntervals(lfn, j.config.TargetConv)
	alloc := regalloc.NewAllocator(j.config.TargetConv).Allocate(intervals)
	if alloc.NumSlots > j.config.MaxSpillSlots {
		return nil, newCompileError(KindOverBudget, name, "regalloc",
			tooManySpillSlots{got: alloc.NumSlots, max: j.config.MaxSpillSlots})
	}

	numSlots := regalloc.ApplyAllocation(lfn, alloc)

	code, err := emitFunc(lfn, j.config.TargetConv, numSlots)
	if err != nil {
		return nil, err // already a *CompileError
	}

	return &CompiledCode{
		Code:     code,
		Function: fn,
		Size:     len(code),
	}, nil
}

type tooManySpillSlots struct {
	got, max int
}

func (e tooManySpillSlots) Error() string {
	return "spill slots exceeded budget"
}

// Execute runs compiled code. Calling into freshly emitted native code from
// Go requires the trampoline bridge_amd64.go already provides
// for the interpreter's existing (non-JIT) native-call paths; wiring a
// CompiledCode's entry point through that bridge is the next integration
// step once this pipeline has a full calling-convention-correct prologue,
// tracked separately from HIR/LIR/regalloc/moveresolve's own correctness.
func (j *JIT) Execute(fn *bytecode.Function, args []bytecode.Value) (bytecode.Value, error) {
	return bytecode.NullValue, newCompileError(KindUnsupported, fn.Name, "execute", errExecuteNotWired)
}

var errExecuteNotWired = simpleError("native execution is not wired to the interpreter bridge yet")

type simpleError string

func (e simpleError) Error() string { return string(e) }

// IsCompiled 检查函数是否已编译
func (j *JIT) IsCompiled(fn *bytecode.Function) bool {
	return false
}

// Stats JIT 统计信息
type Stats struct {
	CompiledFunctions int
	TotalCompileTime  int64
	CacheHits         int64
	CacheMisses       int64
}

// GetStats 获取统计信息
func (j *JIT) GetStats() Stats {
	return Stats{}
}

// Reset 重置 JIT 状态
func (j *JIT) Reset() {
	// TODO: 清理编译缓存
}
