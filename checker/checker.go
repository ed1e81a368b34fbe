// Package checker implements the stateless model checker of spec.md
// §4.4: it explores every distinct scheduling of a program at
// sync-point granularity by repeatedly replaying the AST from scratch
// and walking a tree of already-tried thread-id choices, and reports
// the distinct final states it reaches, classified as normal, failing
// (an uncaught exception) or deadlocked.
//
// This is a direct port of the original gitmem implementation's
// model_checker.cc: one mutable GlobalContext is advanced in place
// along the current branch; whenever a branch is exhausted, the whole
// run resets to a fresh GlobalContext and re-descends through the
// still-open part of the trace tree. Children are added to a tree
// node in strictly increasing thread-id order (a partial-order
// reduction heuristic, not required for soundness — final-state dedup
// is what keeps the reported result set sound and complete).
package checker

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"golang.org/x/exp/slices"

	"gitmem/ast"
	"gitmem/cmdlog"
	"gitmem/graph"
	"gitmem/interp"
	"gitmem/tree"
)

// step is the payload of one trace-tree node: the thread id scheduled
// to reach this node, and whether this node has nothing left to try.
type step struct {
	tid      int
	complete bool
}

func stepEq(a, b *step) bool { return a.tid == b.tid }

// Finding is one reported trace: the thread-id sequence that produces
// it, the event graph that trace recorded, and, for failing traces,
// which exception ended it.
type Finding struct {
	Trace  []int
	Status interp.TerminationStatus
	Graph  *graph.Graph
}

// Report summarises one Explore call: how many distinct normal final
// states were found, plus every distinct failing and deadlocked trace.
type Report struct {
	NormalTraces     int
	FailingTraces    []Finding
	DeadlockedTraces []Finding
}

// HasIssues reports whether the exploration found any failing or
// deadlocked trace.
func (r *Report) HasIssues() bool {
	return len(r.FailingTraces) > 0 || len(r.DeadlockedTraces) > 0
}

// String renders a tabwriter-formatted summary, one line per trace.
func (r *Report) String() string {
	buf := &bytes.Buffer{}
	w := tabwriter.NewWriter(buf, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "normal traces:\t%d\n", r.NormalTraces)
	for _, f := range r.FailingTraces {
		fmt.Fprintf(w, "failing trace:\t%v\t%s\n", f.Trace, f.Status)
	}
	for _, f := range r.DeadlockedTraces {
		fmt.Fprintf(w, "deadlocked trace:\t%v\t\n", f.Trace)
	}
	w.Flush()
	return buf.String()
}

// Explore runs the model checker over block and returns the
// classification of every distinct final state it finds.
func Explore(block *ast.Block, logger *cmdlog.Logger) *Report {
	root := tree.New(&step{tid: 0}, stepEq)
	cursor := &root

	gctx := interp.New(block, logger)
	trace := []int{0}
	interp.ProgressThread(gctx, 0, gctx.Threads[0])

	report := &Report{}
	var finalStates []*interp.GlobalContext

	for !root.Payload().complete {
		for len(cursor.Children()) > 0 && !lastChild(cursor).Payload().complete {
			cursor = lastChild(cursor)
			trace = append(trace, cursor.Payload().tid)
			interp.ProgressThread(gctx, cursor.Payload().tid, gctx.Threads[cursor.Payload().tid])
		}

		startIdx := 0
		if len(cursor.Children()) > 0 {
			startIdx = lastChild(cursor).Payload().tid + 1
		}

		madeProgress := false
		for i := startIdx; i < len(gctx.Threads) && !madeProgress; i++ {
			thread := gctx.Threads[i]
			if thread.Terminated != nil {
				continue
			}
			outcome := interp.ProgressThread(gctx, i, thread)
			switch {
			case outcome.Terminated():
				madeProgress = true
				cursor = cursor.AddChild(&step{tid: i})
				trace = append(trace, i)
				if outcome.Status != interp.Completed {
					cursor.Payload().complete = true
				}
			case outcome.Progress():
				madeProgress = true
				cursor = cursor.AddChild(&step{tid: i})
				trace = append(trace, i)
			}
		}

		if !madeProgress {
			cursor.Payload().complete = true
		}

		allCompleted, anyCrashed := threadSummary(gctx)
		isDeadlock := !allCompleted && !madeProgress && cursor.IsLeafNode()

		if allCompleted || anyCrashed || isDeadlock {
			if isNovelFinalState(finalStates, gctx) {
				finalStates = append(finalStates, gctx)
				traceCopy := append([]int{}, trace...)
				switch {
				case anyCrashed:
					report.FailingTraces = append(report.FailingTraces, Finding{
						Trace:  traceCopy,
						Status: firstErrorStatus(gctx),
						Graph:  gctx.Graph,
					})
				case isDeadlock:
					report.DeadlockedTraces = append(report.DeadlockedTraces, Finding{
						Trace: traceCopy,
						Graph: gctx.Graph,
					})
				default:
					report.NormalTraces++
				}
			}
			cursor.Payload().complete = true
		}

		if cursor.Payload().complete && !root.Payload().complete {
			gctx = interp.New(block, logger)
			cursor = &root
			trace = []int{0}
			interp.ProgressThread(gctx, 0, gctx.Threads[0])
		}
	}

	return report
}

func lastChild(t *tree.Tree[*step]) *tree.Tree[*step] {
	children := t.Children()
	return children[len(children)-1]
}

func threadSummary(gctx *interp.GlobalContext) (allCompleted, anyCrashed bool) {
	allCompleted = true
	for _, th := range gctx.Threads {
		if th.Terminated == nil {
			allCompleted = false
			continue
		}
		if *th.Terminated != interp.Completed {
			anyCrashed = true
		}
	}
	return allCompleted, anyCrashed
}

func firstErrorStatus(gctx *interp.GlobalContext) interp.TerminationStatus {
	for _, th := range gctx.Threads {
		if th.Terminated != nil && *th.Terminated != interp.Completed {
			return *th.Terminated
		}
	}
	return interp.Completed
}

func isNovelFinalState(seen []*interp.GlobalContext, gctx *interp.GlobalContext) bool {
	return !slices.ContainsFunc(seen, func(prev *interp.GlobalContext) bool {
		return interp.Equal(prev, gctx)
	})
}
