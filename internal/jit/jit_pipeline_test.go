package jit

import (
	"testing"

	"github.com/tangzhangming/nova/internal/ast"
	"github.com/tangzhangming/nova/internal/bytecode"
	"github.com/tangzhangming/nova/internal/compiler"
	"github.com/tangzhangming/nova/internal/token"
)

func ident(name string) *ast.Identifier {
	return &ast.Identifier{Token: token.New(token.IDENT, name, token.Position{}), Name: name}
}

func variable(name string) *ast.Variable {
	return &ast.Variable{Token: token.New(token.VARIABLE, name, token.Position{}), Name: name}
}

func intLit(v int64) *ast.IntegerLiteral {
	return &ast.IntegerLiteral{Token: token.New(token.INT, "", token.Position{}), Value: v}
}

func opTok(lit string) token.Token {
	return token.New(token.IDENT, lit, token.Position{})
}

// sumMethod builds: function sum($a, $b) { return $a + $b; }
func sumMethod() *ast.MethodDecl {
	return &ast.MethodDecl{
		Name: ident("sum"),
		Parameters: []*ast.Parameter{
			{Name: variable("a")},
			{Name: variable("b")},
		},
		Body: &ast.BlockStmt{
			Statements: []ast.Statement{
				&ast.ReturnStmt{
					Values: []ast.Expression{
						&ast.BinaryExpr{Left: variable("a"), Operator: opTok("+"), Right: variable("b")},
					},
				},
			},
		},
	}
}

// absMethod builds: function abs($x) { if ($x < 0) { $x = 0 - $x; } return $x; }
func absMethod() *ast.MethodDecl {
	return &ast.MethodDecl{
		Name: ident("abs"),
		Parameters: []*ast.Parameter{
			{Name: variable("x")},
		},
		Body: &ast.BlockStmt{
			Statements: []ast.Statement{
				&ast.IfStmt{
					Condition: &ast.BinaryExpr{Left: variable("x"), Operator: opTok("<"), Right: intLit(0)},
					Then: &ast.BlockStmt{
						Statements: []ast.Statement{
							&ast.ExprStmt{Expr: &ast.AssignExpr{
								Left:     variable("x"),
								Operator: opTok("="),
								Right:    &ast.BinaryExpr{Left: intLit(0), Operator: opTok("-"), Right: variable("x")},
							}},
						},
					},
				},
				&ast.ReturnStmt{Values: []ast.Expression{variable("x")}},
			},
		},
	}
}

func TestCompileSumProducesCode(t *testing.T) {
	decl := sumMethod()
	fn := &bytecode.Function{Name: "sum", Arity: 2, MinArity: 2, LocalCount: 2}
	code, err := New(nil).Compile(decl, fn, compiler.NewSymbolTable())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(code.Code) == 0 {
		t.Fatal("expected non-empty machine code")
	}
	if code.Function != fn {
		t.Errorf("expected CompiledCode.Function to be the source bytecode.Function")
	}
}

func TestCompileAbsWithBranchProducesCode(t *testing.T) {
	decl := absMethod()
	fn := &bytecode.Function{Name: "abs", Arity: 1, MinArity: 1, LocalCount: 1}
	code, err := New(nil).Compile(decl, fn, compiler.NewSymbolTable())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(code.Code) == 0 {
		t.Fatal("expected non-empty machine code for a branching function")
	}
}

func TestCompileRespectsSpillBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSpillSlots = 0
	decl := manyLocalsMethod(32)
	fn := &bytecode.Function{Name: decl.Name.Name, Arity: 0, LocalCount: 32}

	_, err := New(cfg).Compile(decl, fn, compiler.NewSymbolTable())
	if err == nil {
		t.Fatal("expected an over-budget error when MaxSpillSlots is exhausted")
	}
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	if ce.Kind != KindOverBudget {
		t.Errorf("expected KindOverBudget, got %v", ce.Kind)
	}
}

// manyLocalsMethod builds a function reading and summing n distinct locals,
// forcing the allocator to spill on any target with fewer than n registers.
func manyLocalsMethod(n int) *ast.MethodDecl {
	params := make([]*ast.Parameter, n)
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = "v" + string(rune('a'+i%26)) + itoaSmall(i)
		params[i] = &ast.Parameter{Name: variable(names[i])}
	}

	var sum ast.Expression = variable(names[0])
	for i := 1; i < n; i++ {
		sum = &ast.BinaryExpr{Left: sum, Operator: opTok("+"), Right: variable(names[i])}
	}

	return &ast.MethodDecl{
		Name:       ident("manyLocals"),
		Parameters: params,
		Body: &ast.BlockStmt{
			Statements: []ast.Statement{
				&ast.ReturnStmt{Values: []ast.Expression{sum}},
			},
		},
	}
}

func itoaSmall(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestNewCompilerDefaults(t *testing.T) {
	c := NewCompiler(nil)
	if c == nil {
		t.Fatal("NewCompiler returned nil")
	}
	if c.pipeline == nil {
		t.Fatal("expected an embedded pipeline")
	}
}

func TestCompileFromASTCachesResult(t *testing.T) {
	c := NewCompiler(nil)
	decl := sumMethod()
	fn := &bytecode.Function{Name: "sum", Arity: 2, LocalCount: 2}
	syms := compiler.NewSymbolTable()

	first, err := c.CompileFromAST(decl, fn, syms)
	if err != nil {
		t.Fatalf("CompileFromAST: %v", err)
	}
	second, err := c.CompileFromAST(decl, fn, syms)
	if err != nil {
		t.Fatalf("CompileFromAST (cached): %v", err)
	}
	if first != second {
		t.Error("expected the cached CompiledCode to be returned on the second call")
	}
	if c.stats.CacheHits != 1 {
		t.Errorf("expected one cache hit, got %d", c.stats.CacheHits)
	}
}
