package debugger

import (
	"bytes"
	"strings"
	"testing"

	"gitmem/ast"
)

func TestParseCommandRecognisesBareNumberAndSLetter(t *testing.T) {
	cmd, msg := parseCommand("2")
	if cmd.kind != cmdStep || cmd.arg != 2 || msg != "" {
		t.Fatalf("expected step(2), got %+v %q", cmd, msg)
	}
	cmd, msg = parseCommand("s 3")
	if cmd.kind != cmdStep || cmd.arg != 3 || msg != "" {
		t.Fatalf("expected step(3), got %+v %q", cmd, msg)
	}
	cmd, msg = parseCommand("s")
	if cmd.kind != cmdSkip || msg == "" {
		t.Fatalf("expected a skip with a missing-argument message, got %+v %q", cmd, msg)
	}
}

func TestParseCommandRecognisesLetterCommands(t *testing.T) {
	cases := map[string]commandKind{
		"q": cmdQuit,
		"r": cmdRestart,
		"f": cmdFinish,
		"l": cmdList,
		"g": cmdGraph,
		"p": cmdPrint,
		"?": cmdInfo,
	}
	for input, want := range cases {
		cmd, _ := parseCommand(input)
		if cmd.kind != want {
			t.Fatalf("parseCommand(%q) = %+v, want kind %v", input, cmd, want)
		}
	}
}

func TestParseCommandReportsUnknown(t *testing.T) {
	cmd, msg := parseCommand("bogus")
	if cmd.kind != cmdSkip || msg == "" {
		t.Fatalf("expected an unknown-command message, got %+v %q", cmd, msg)
	}
}

func TestRunStepsAndFinishesThenQuits(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignVar("x", ast.Const(1)),
		ast.AssignReg("r", ast.Var("x")),
	}}
	out := &bytes.Buffer{}
	in := strings.NewReader("0\nf\nq\n")
	d := New(block, nil, in, out, nil, "")

	if err := d.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "thread 0 terminated normally") {
		t.Fatalf("expected a normal-termination message, got %s", s)
	}
	if !strings.Contains(s, "[threads: 0=completed]") {
		t.Fatalf("expected a final status line showing thread 0 completed, got %s", s)
	}
}

func TestRunReportsInvalidThreadId(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{ast.NopStmt()}}
	out := &bytes.Buffer{}
	in := strings.NewReader("5\nq\n")
	d := New(block, nil, in, out, nil, "")

	if err := d.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "invalid thread id: 5") {
		t.Fatalf("expected an invalid-thread-id message, got %s", out.String())
	}
}

func TestRunListShowsSourceAndLocks(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		ast.LockStmt("m"),
		ast.UnlockStmt("m"),
	}}
	out := &bytes.Buffer{}
	in := strings.NewReader("l\nq\n")
	d := New(block, nil, in, out, nil, "")

	if err := d.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "---- thread 0") {
		t.Fatalf("expected a thread listing, got %s", out.String())
	}
}

func TestRunRestartResetsState(t *testing.T) {
	block := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignVar("x", ast.Const(1)),
	}}
	out := &bytes.Buffer{}
	in := strings.NewReader("0\nr\nq\n")
	d := New(block, nil, in, out, nil, "")

	if err := d.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.gctx.Threads[0].Terminated != nil {
		t.Fatalf("expected restart to produce a fresh, unterminated thread 0")
	}
}
