package parser

import (
	"testing"

	"gitmem/ast"
)

// structurallyEqual compares two blocks ignoring ast.Stmt.Text, which
// the parser fills in from source but hand-built ast literals leave
// empty.
func structurallyEqual(a, b *ast.Block) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Stmts) != len(b.Stmts) {
		return false
	}
	for i := range a.Stmts {
		if !stmtEqual(a.Stmts[i], b.Stmts[i]) {
			return false
		}
	}
	return true
}

func stmtEqual(a, b ast.Stmt) bool {
	if a.Kind != b.Kind || a.LVal != b.LVal || a.Var != b.Var {
		return false
	}
	return exprEqual(a.Expr, b.Expr) && exprEqual(a.JoinExpr, b.JoinExpr)
}

func exprEqual(a, b *ast.Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Name != b.Name || a.Value != b.Value {
		return false
	}
	if !structurallyEqual(a.Block, b.Block) {
		return false
	}
	if !exprEqual(a.Lhs, b.Lhs) || !exprEqual(a.Rhs, b.Rhs) {
		return false
	}
	if len(a.Operands) != len(b.Operands) {
		return false
	}
	for i := range a.Operands {
		if !exprEqual(a.Operands[i], b.Operands[i]) {
			return false
		}
	}
	return true
}

func TestParseNopAndAssignments(t *testing.T) {
	block, err := Parse("nop; x = 1; $r = x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &ast.Block{Stmts: []ast.Stmt{
		ast.NopStmt(),
		ast.AssignVar("x", ast.Const(1)),
		ast.AssignReg("r", ast.Var("x")),
	}}
	if !structurallyEqual(block, want) {
		t.Fatalf("parsed block did not match expected shape: %+v", block)
	}
}

func TestParseTrailingSemicolonAllowed(t *testing.T) {
	block, err := Parse("nop;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block.Stmts) != 1 {
		t.Fatalf("expected exactly 1 statement, got %d", len(block.Stmts))
	}
}

func TestParseAddExpression(t *testing.T) {
	block, err := Parse("$r = 1 + 2 + 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignReg("r", ast.AddExpr(ast.Const(1), ast.Const(2), ast.Const(3))),
	}}
	if !structurallyEqual(block, want) {
		t.Fatalf("parsed block did not match expected shape: %+v", block)
	}
}

func TestParseEqAndNeq(t *testing.T) {
	block, err := Parse("assert x == 1; assert x != 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &ast.Block{Stmts: []ast.Stmt{
		ast.AssertStmt(ast.EqExpr(ast.Var("x"), ast.Const(1))),
		ast.AssertStmt(ast.NeqExpr(ast.Var("x"), ast.Const(2))),
	}}
	if !structurallyEqual(block, want) {
		t.Fatalf("parsed block did not match expected shape: %+v", block)
	}
}

func TestParseSpawnJoinLockUnlock(t *testing.T) {
	block, err := Parse("lock l; $tid = spawn { x = 1 }; join $tid; unlock l")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &ast.Block{Stmts: []ast.Stmt{
		ast.LockStmt("l"),
		ast.AssignReg("tid", ast.Spawn(&ast.Block{Stmts: []ast.Stmt{
			ast.AssignVar("x", ast.Const(1)),
		}})),
		ast.JoinStmt(ast.Reg("tid")),
		ast.UnlockStmt("l"),
	}}
	if !structurallyEqual(block, want) {
		t.Fatalf("parsed block did not match expected shape: %+v", block)
	}
}

func TestParseStmtTextCapturesSourceSlice(t *testing.T) {
	block, err := Parse("nop; lock l")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block.Stmts[1].Text != "lock l" {
		t.Fatalf("expected captured source text %q, got %q", "lock l", block.Stmts[1].Text)
	}
}

func TestParseRejectsEmptyBlock(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatalf("expected an error for an empty program")
	}
}

func TestParseRejectsEmptySpawnBody(t *testing.T) {
	if _, err := Parse("$tid = spawn {}"); err == nil {
		t.Fatalf("expected an error for an empty spawn body")
	}
}

func TestParseRejectsMissingSemicolon(t *testing.T) {
	if _, err := Parse("nop nop"); err == nil {
		t.Fatalf("expected an error for two statements with no separator")
	}
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	if _, err := Parse("nop; )"); err == nil {
		t.Fatalf("expected an error for trailing garbage")
	}
}

func TestParseRejectsBareBang(t *testing.T) {
	if _, err := Parse("assert x ! y"); err == nil {
		t.Fatalf("expected an error for '!' not followed by '='")
	}
}

func TestParseRejectsDollarWithoutName(t *testing.T) {
	if _, err := Parse("$ = 1"); err == nil {
		t.Fatalf("expected an error for '$' with no register name")
	}
}

// Scenario 1 from spec.md §8, parsed from source text and checked for
// the same structural shape as checker_test.go's hand-built version.
func TestParseScenarioIndependentWritesUnderDifferentLocks(t *testing.T) {
	src := `
$tid1 = spawn { lock l1; x = 1; unlock l1 };
$tid2 = spawn { lock l2; y = 1; unlock l2 };
join $tid1;
join $tid2;
assert x == 1;
assert y == 1
`
	block, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t1 := &ast.Block{Stmts: []ast.Stmt{
		ast.LockStmt("l1"),
		ast.AssignVar("x", ast.Const(1)),
		ast.UnlockStmt("l1"),
	}}
	t2 := &ast.Block{Stmts: []ast.Stmt{
		ast.LockStmt("l2"),
		ast.AssignVar("y", ast.Const(1)),
		ast.UnlockStmt("l2"),
	}}
	want := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignReg("tid1", ast.Spawn(t1)),
		ast.AssignReg("tid2", ast.Spawn(t2)),
		ast.JoinStmt(ast.Reg("tid1")),
		ast.JoinStmt(ast.Reg("tid2")),
		ast.AssertStmt(ast.EqExpr(ast.Var("x"), ast.Const(1))),
		ast.AssertStmt(ast.EqExpr(ast.Var("y"), ast.Const(1))),
	}}
	if !structurallyEqual(block, want) {
		t.Fatalf("parsed scenario did not match the hand-built ast.Block")
	}
}

// Scenario 6 from spec.md §8.
func TestParseScenarioUnlockWithoutLock(t *testing.T) {
	block, err := Parse("unlock l")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &ast.Block{Stmts: []ast.Stmt{ast.UnlockStmt("l")}}
	if !structurallyEqual(block, want) {
		t.Fatalf("parsed scenario did not match the hand-built ast.Block")
	}
}
