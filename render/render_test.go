package render

import (
	"bytes"
	"strings"
	"testing"

	"gitmem/ast"
	"gitmem/interp"
)

func renderString(t *testing.T, r Renderer, g *interp.GlobalContext) string {
	buf := &bytes.Buffer{}
	if err := r.Render(buf, g.Graph); err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	return buf.String()
}

func TestMermaidRendersWriteAndJoinEdges(t *testing.T) {
	child := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignVar("x", ast.Const(7)),
	}}
	main := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignReg("tid", ast.Spawn(child)),
		ast.JoinStmt(ast.Reg("tid")),
	}}
	gctx := interp.New(main, nil)
	interp.RunThreads(gctx)

	out := renderString(t, Mermaid{}, gctx)
	if !strings.HasPrefix(out, "flowchart TB\n") {
		t.Fatalf("expected mermaid header, got %q", out)
	}
	if !strings.Contains(out, "subgraph thread_0") || !strings.Contains(out, "subgraph thread_1") {
		t.Fatalf("expected one subgraph per thread, got %s", out)
	}
	if !strings.Contains(out, "write x = 7") {
		t.Fatalf("expected write node label, got %s", out)
	}
	if !strings.Contains(out, "join thread #1") {
		t.Fatalf("expected join node label, got %s", out)
	}
}

func TestMermaidMarksConflictOnRace(t *testing.T) {
	child := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignVar("x", ast.Const(1)),
	}}
	main := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignReg("tid", ast.Spawn(child)),
		ast.AssignVar("x", ast.Const(2)),
		ast.JoinStmt(ast.Reg("tid")),
	}}
	gctx := interp.New(main, nil)
	interp.RunThreads(gctx)

	out := renderString(t, Mermaid{}, gctx)
	if !strings.Contains(out, "fill:red") {
		t.Fatalf("expected a conflict node styled red, got %s", out)
	}
	if !strings.Contains(out, "|race|") {
		t.Fatalf("expected a race-labelled edge, got %s", out)
	}
}

func TestGraphvizRendersClustersAndEdges(t *testing.T) {
	child := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignVar("x", ast.Const(7)),
	}}
	main := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignReg("tid", ast.Spawn(child)),
		ast.JoinStmt(ast.Reg("tid")),
	}}
	gctx := interp.New(main, nil)
	interp.RunThreads(gctx)

	out := renderString(t, Graphviz{}, gctx)
	if !strings.HasPrefix(out, "digraph G {\n") {
		t.Fatalf("expected digraph header, got %q", out)
	}
	if !strings.Contains(out, "cluster_thread_0") || !strings.Contains(out, "cluster_thread_1") {
		t.Fatalf("expected one cluster per thread, got %s", out)
	}
	if !strings.Contains(out, "Wx = 7") {
		t.Fatalf("expected write label, got %s", out)
	}
}

func TestGraphvizMarksConflictOnRace(t *testing.T) {
	child := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignVar("x", ast.Const(1)),
	}}
	main := &ast.Block{Stmts: []ast.Stmt{
		ast.AssignReg("tid", ast.Spawn(child)),
		ast.AssignVar("x", ast.Const(2)),
		ast.JoinStmt(ast.Reg("tid")),
	}}
	gctx := interp.New(main, nil)
	interp.RunThreads(gctx)

	out := renderString(t, Graphviz{}, gctx)
	if !strings.Contains(out, "fillcolor = red") {
		t.Fatalf("expected a conflict node filled red, got %s", out)
	}
	if !strings.Contains(out, "race") {
		t.Fatalf("expected a race-labelled edge, got %s", out)
	}
}
