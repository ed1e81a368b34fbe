// Package render turns a recorded event graph (package graph) into a
// diagram. It is a direct port of the original gitmem implementation's
// mermaid.cc and graphviz.cc printers, adapted from their Visitor
// dispatch into a switch over graph.Node.Kind (spec.md §9 explicitly
// steers away from Visitor for this closed union).
package render

import (
	"bytes"
	"fmt"
	"io"

	"gitmem/graph"
)

// Renderer turns an event graph into a textual diagram, writing it to w.
type Renderer interface {
	Render(w io.Writer, g *graph.Graph) error
}

// Mermaid renders a graph as a mermaid.js flowchart, one subgraph per
// thread, matching the original mermaid.cc output shape.
type Mermaid struct{}

// Graphviz renders a graph as a Graphviz dot digraph, one cluster per
// thread, matching the original graphviz.cc output shape.
type Graphviz struct{}

func (Mermaid) Render(w io.Writer, g *graph.Graph) error {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "flowchart TB")
	for ref := 0; ref < g.Len(); ref++ {
		if g.At(graph.Ref(ref)).Kind == graph.KindStart {
			renderMermaidThread(buf, g, graph.Ref(ref))
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func renderMermaidThread(buf *bytes.Buffer, g *graph.Graph, start graph.Ref) {
	tid := g.At(start).ThreadID
	fmt.Fprintf(buf, "subgraph thread_%d [Thread #%d]\n", tid, tid)
	fmt.Fprintf(buf, "\tdirection TB\n")

	for ref := start; ref.Valid(); {
		n := g.At(ref)
		mermaidNode(buf, ref, n)
		if n.Next.Valid() {
			mermaidEdge(buf, ref, n.Next, "", "")
		}
		switch n.Kind {
		case graph.KindRead:
			if n.ReadFrom.Valid() {
				mermaidEdge(buf, n.ReadFrom, ref, "rf", "dashed")
			}
		case graph.KindSpawn:
			if n.SpawnedStart.Valid() {
				mermaidEdge(buf, ref, n.SpawnedStart, "spawn", "dashed")
			}
		case graph.KindJoin:
			if n.JoineeEnd.Valid() {
				mermaidEdge(buf, n.JoineeEnd, ref, "join", "dashed")
			}
			mermaidConflict(buf, ref, n.Conflict)
		case graph.KindLock:
			if n.OrderedAfter.Valid() {
				mermaidEdge(buf, n.OrderedAfter, ref, "sync", "dashed")
			}
			mermaidConflict(buf, ref, n.Conflict)
		}
		ref = n.Next
	}
	fmt.Fprintln(buf, "end")
}

func mermaidNode(buf *bytes.Buffer, ref graph.Ref, n *graph.Node) {
	label, shape := mermaidLabel(n)
	open, close := "(", ")"
	switch shape {
	case "circle":
		open, close = "((", "))"
	case "hex":
		open, close = "{{", "}}"
	case "rect":
		open, close = "[", "]"
	}
	fmt.Fprintf(buf, "\tn%d%s\"%s\"%s\n", ref, open, label, close)
	if n.Kind == graph.KindAssertionFailure {
		fmt.Fprintf(buf, "\tstyle n%d fill:red\n", ref)
	}
}

func mermaidLabel(n *graph.Node) (label, shape string) {
	switch n.Kind {
	case graph.KindStart:
		return fmt.Sprintf("start #%d", n.ThreadID), "circle"
	case graph.KindEnd:
		return "end", "circle"
	case graph.KindWrite:
		return fmt.Sprintf("write %s = %d : #%d", n.Var, n.Value, n.Commit), "rect"
	case graph.KindRead:
		return fmt.Sprintf("read %s = %d : #%d", n.Var, n.Value, n.Commit), "rect"
	case graph.KindSpawn:
		return fmt.Sprintf("spawn thread #%d", n.SpawnedTID), "rect"
	case graph.KindJoin:
		return fmt.Sprintf("join thread #%d", n.JoinedTID), "rect"
	case graph.KindLock:
		return fmt.Sprintf("lock %s", n.Var), "rect"
	case graph.KindUnlock:
		return fmt.Sprintf("unlock %s", n.Var), "rect"
	case graph.KindAssertionFailure:
		return fmt.Sprintf("assert failed: %s", n.Cond), "hex"
	case graph.KindPending:
		return fmt.Sprintf("pending: %s", n.Statement), "rect"
	default:
		return n.Kind.String(), "rect"
	}
}

func mermaidEdge(buf *bytes.Buffer, from, to graph.Ref, label, style string) {
	arrow := "-->"
	if style == "dashed" {
		arrow = "-.->"
	}
	if label == "" {
		fmt.Fprintf(buf, "\tn%d %s n%d\n", from, arrow, to)
		return
	}
	fmt.Fprintf(buf, "\tn%d %s|%s| n%d\n", from, arrow, label, to)
}

func mermaidConflict(buf *bytes.Buffer, at graph.Ref, c *graph.Conflict) {
	if c == nil {
		return
	}
	fmt.Fprintf(buf, "\tstyle n%d fill:red\n", at)
	if c.SourceA.Valid() {
		mermaidEdge(buf, c.SourceA, at, "race", "dashed")
	}
	if c.SourceB.Valid() {
		mermaidEdge(buf, c.SourceB, at, "race", "dashed")
	}
}

func (Graphviz) Render(w io.Writer, g *graph.Graph) error {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "digraph G {")
	for ref := 0; ref < g.Len(); ref++ {
		if g.At(graph.Ref(ref)).Kind == graph.KindStart {
			renderGraphvizThread(buf, g, graph.Ref(ref))
		}
	}
	fmt.Fprintln(buf, "}")
	_, err := w.Write(buf.Bytes())
	return err
}

func renderGraphvizThread(buf *bytes.Buffer, g *graph.Graph, start graph.Ref) {
	tid := g.At(start).ThreadID
	fmt.Fprintf(buf, "\tsubgraph cluster_thread_%d {\n", tid)
	fmt.Fprintf(buf, "\t\tlabel = \"Thread #%d\";\n", tid)
	fmt.Fprintf(buf, "\t\tcolor=black;\n")

	for ref := start; ref.Valid(); {
		n := g.At(ref)
		graphvizNode(buf, ref, n)
		if n.Next.Valid() {
			graphvizEdge(buf, ref, n.Next, "", "")
		}
		switch n.Kind {
		case graph.KindRead:
			if n.ReadFrom.Valid() {
				graphvizEdge(buf, n.ReadFrom, ref, "rf", "style=dashed, constraint=false")
			}
		case graph.KindSpawn:
			if n.SpawnedStart.Valid() {
				graphvizEdge(buf, ref, n.SpawnedStart, "sync", "style=bold, constraint=false")
			}
		case graph.KindJoin:
			if n.JoineeEnd.Valid() {
				graphvizEdge(buf, n.JoineeEnd, ref, "sync", "style=bold, constraint=false")
			}
			graphvizConflict(buf, ref, n.Conflict)
		case graph.KindLock:
			if n.OrderedAfter.Valid() {
				graphvizEdge(buf, n.OrderedAfter, ref, "sync", "style=bold, constraint=false")
			}
			graphvizConflict(buf, ref, n.Conflict)
		}
		ref = n.Next
	}
	fmt.Fprintln(buf, "\t}")
}

func graphvizNode(buf *bytes.Buffer, ref graph.Ref, n *graph.Node) {
	label, style := graphvizLabel(n)
	fmt.Fprintf(buf, "\t\tn%d[label=\"%s\", shape=rectangle, style=\"rounded,filled\"", ref, label)
	if style != "" {
		fmt.Fprintf(buf, ", %s", style)
	}
	fmt.Fprintln(buf, "];")
}

func graphvizLabel(n *graph.Node) (label, style string) {
	switch n.Kind {
	case graph.KindStart:
		return "", "shape=circle width=.3 style=filled color=black"
	case graph.KindEnd:
		return "", "shape=doublecircle width=.2 style=empty"
	case graph.KindWrite:
		return fmt.Sprintf("W%s = %d", n.Var, n.Value), ""
	case graph.KindRead:
		return fmt.Sprintf("R%s = %d", n.Var, n.Value), ""
	case graph.KindSpawn:
		return fmt.Sprintf("spawn %d", n.SpawnedTID), ""
	case graph.KindJoin:
		return fmt.Sprintf("join %d", n.JoinedTID), ""
	case graph.KindLock:
		return fmt.Sprintf("lock %s", n.Var), ""
	case graph.KindUnlock:
		return fmt.Sprintf("unlock %s", n.Var), ""
	case graph.KindAssertionFailure:
		return fmt.Sprintf("assertion failed: %s", n.Cond), "fillcolor=red"
	case graph.KindPending:
		return n.Statement, "style=dashed"
	default:
		return n.Kind.String(), ""
	}
}

func graphvizEdge(buf *bytes.Buffer, from, to graph.Ref, label, style string) {
	fmt.Fprintf(buf, "\t\tn%d -> n%d", from, to)
	if label != "" || style != "" {
		fmt.Fprint(buf, "[")
		if style != "" {
			fmt.Fprint(buf, style)
		}
		if label != "" {
			fmt.Fprintf(buf, " label=\"%s\"", label)
		}
		fmt.Fprint(buf, "]")
	}
	fmt.Fprintln(buf, ";")
}

func graphvizConflict(buf *bytes.Buffer, at graph.Ref, c *graph.Conflict) {
	if c == nil {
		return
	}
	fmt.Fprintf(buf, "\t\tn%d[fillcolor = red];\n", at)
	if c.SourceA.Valid() {
		graphvizEdge(buf, at, c.SourceA, "race", "style=dashed, color=red, constraint=false")
	}
	if c.SourceB.Valid() {
		graphvizEdge(buf, at, c.SourceB, "race", "style=dashed, color=red, constraint=false")
	}
}
