// Package interp implements the threaded interpreter of spec.md §4.2:
// advancing one thread to its next synchronisation point, maintaining
// per-thread and per-lock versioned memory, and recording the event
// graph. It is a direct semantic port of the original gitmem
// implementation's interpreter.cc, adapted to Go's sum-type-by-switch
// idiom and an arena-backed event graph (package graph).
package interp

import (
	"fmt"

	"gitmem/ast"
	"gitmem/cmdlog"
	"gitmem/graph"
	"gitmem/memory"

	"golang.org/x/exp/maps"
)

// TerminationStatus is the closed set of ways a thread can stop
// (spec.md §7).
type TerminationStatus int

const (
	Completed TerminationStatus = iota
	DataraceException
	UnlockException
	AssertionFailureException
	UnassignedVariableReadException
)

func (t TerminationStatus) String() string {
	switch t {
	case Completed:
		return "completed"
	case DataraceException:
		return "datarace_exception"
	case UnlockException:
		return "unlock_exception"
	case AssertionFailureException:
		return "assertion_failure_exception"
	case UnassignedVariableReadException:
		return "unassigned_variable_read_exception"
	default:
		return "unknown_termination_status"
	}
}

// IsError reports whether t is an exceptional (non-normal) termination.
func (t TerminationStatus) IsError() bool { return t != Completed }

// ThreadID indexes GlobalContext.Threads. Stable once assigned.
type ThreadID = int

// ThreadContext is the execution context of a single thread: its
// local register file, its versioned view of the globals, and the
// cursor into the shared event graph where its next event will be
// appended.
type ThreadContext struct {
	Locals  map[string]uint64
	Globals memory.Globals
	Tail    graph.Tail
}

// Thread is one thread of execution: the block it runs, its program
// counter, its context, and its termination status (nil until it
// stops).
type Thread struct {
	Ctx        ThreadContext
	Block      *ast.Block
	PC         int
	Terminated *TerminationStatus
}

// Lock is a synchronising object created lazily on first reference.
// Its Globals field is the versioned memory published at the last
// Unlock; Owner is the tid currently holding it, if any.
type Lock struct {
	Globals memory.Globals
	Owner   *ThreadID
	Last    graph.Ref
}

// GlobalContext bundles everything one interpretation/exploration run
// needs: the threads (index 0 is main), the locks by name, the commit
// counter, the join-expression cache, the commit-to-event map, and the
// shared event graph arena.
type GlobalContext struct {
	Threads []*Thread
	Locks   map[string]*Lock

	counter   memory.Counter
	cache     map[*ast.Expr]uint64
	commitMap map[memory.Commit]graph.Ref

	Graph  *graph.Graph
	Logger *cmdlog.Logger
}

// New builds a fresh GlobalContext with a single main thread (tid 0)
// running block. Every model-checker replay starts from a call to New
// on the same AST so that commit ids, event refs and cache contents
// are reproducible (spec.md §9, "No ambient mutable state").
func New(block *ast.Block, logger *cmdlog.Logger) *GlobalContext {
	g := graph.NewGraph()
	startRef := g.Append(graph.Start(0))
	main := &Thread{
		Block: block,
		Ctx: ThreadContext{
			Locals:  map[string]uint64{},
			Globals: memory.Globals{},
			Tail:    graph.Tail{Graph: g, Ref: startRef},
		},
	}
	return &GlobalContext{
		Threads:   []*Thread{main},
		Locks:     map[string]*Lock{},
		cache:     map[*ast.Expr]uint64{},
		commitMap: map[memory.Commit]graph.Ref{},
		Graph:     g,
		Logger:    logger,
	}
}

// InternalError marks a fatal, implementation-level defect — a
// malformed AST or an unrecognised statement/expression kind — rather
// than a program-level error. These are not part of TerminationStatus
// because they indicate a bug in the AST producer, not in the program
// being interpreted (spec.md §7, "Fatal").
type InternalError struct {
	msg string
}

func (e *InternalError) Error() string { return e.msg }

func internalErrorf(format string, args ...any) *InternalError {
	return &InternalError{msg: fmt.Sprintf(format, args...)}
}

// outcomeKind is the closed result of trying to advance execution by
// one statement, one thread-to-sync step, or one round.
type outcomeKind int

const (
	kindProgress outcomeKind = iota
	kindNoProgress
	kindTerminated
)

// Outcome is returned by ProgressThread and RunThreads. Status is only
// meaningful when Kind is Terminated.
type Outcome struct {
	kind   outcomeKind
	Status TerminationStatus
}

// Progress reports whether this outcome represents forward progress
// (at least one statement was executed).
func (o Outcome) Progress() bool { return o.kind == kindProgress }

// Terminated reports whether the thread being progressed stopped
// (normally or abnormally) during this call.
func (o Outcome) Terminated() bool { return o.kind == kindTerminated }

func progressOutcome() Outcome   { return Outcome{kind: kindProgress} }
func noProgressOutcome() Outcome { return Outcome{kind: kindNoProgress} }
func terminatedOutcome(s TerminationStatus) Outcome {
	return Outcome{kind: kindTerminated, Status: s}
}

// evalResult is either a value or a thread-terminating exception.
type evalResult struct {
	value uint64
	err   *TerminationStatus
}

func evalOK(v uint64) evalResult                    { return evalResult{value: v} }
func evalErr(s TerminationStatus) evalResult         { e := s; return evalResult{err: &e} }
func (r evalResult) failed() bool                    { return r.err != nil }

// evaluateExpression evaluates expr in the context of thread tid,
// mutating ctx (locals are read-only here, but evaluating a Var read
// or a Spawn both append to the event graph, and Spawn mutates gctx).
func evaluateExpression(gctx *GlobalContext, ctx *ThreadContext, tid ThreadID, expr *ast.Expr) evalResult {
	switch expr.Kind {
	case ast.ExprReg:
		v, ok := ctx.Locals[expr.Name]
		if !ok {
			return evalErr(UnassignedVariableReadException)
		}
		return evalOK(v)

	case ast.ExprVar:
		g, ok := ctx.Globals[expr.Name]
		if !ok {
			return evalErr(UnassignedVariableReadException)
		}
		commit := lastCommit(g)
		source := gctx.commitMap[commit]
		ctx.Tail.Append(graph.Read(expr.Name, g.Value, uint64(commit), source))
		return evalOK(g.Value)

	case ast.ExprConst:
		return evalOK(expr.Value)

	case ast.ExprAdd:
		var sum uint64
		for _, operand := range expr.Operands {
			r := evaluateExpression(gctx, ctx, tid, operand)
			if r.failed() {
				return r
			}
			sum += r.value
		}
		return evalOK(sum)

	case ast.ExprSpawn:
		memory.CommitPending(ctx.Globals)
		newTid := len(gctx.Threads)
		startRef := gctx.Graph.Append(graph.Start(newTid))
		newThread := &Thread{
			Block: expr.Block,
			Ctx: ThreadContext{
				Locals:  map[string]uint64{},
				Globals: ctx.Globals.Clone(),
				Tail:    graph.Tail{Graph: gctx.Graph, Ref: startRef},
			},
		}
		gctx.Threads = append(gctx.Threads, newThread)
		ctx.Tail.Append(graph.Spawn(newTid, startRef))
		gctx.Logger.Tracef("thread %d spawned thread %d", tid, newTid)
		return evalOK(uint64(newTid))

	case ast.ExprEq, ast.ExprNeq:
		lhs := evaluateExpression(gctx, ctx, tid, expr.Lhs)
		if lhs.failed() {
			return lhs
		}
		rhs := evaluateExpression(gctx, ctx, tid, expr.Rhs)
		if rhs.failed() {
			return rhs
		}
		eq := lhs.value == rhs.value
		if expr.Kind == ast.ExprEq {
			return evalOK(boolToUint(eq))
		}
		return evalOK(boolToUint(!eq))

	default:
		panic(internalErrorf("interp: unknown expression kind %v", expr.Kind))
	}
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// lastCommit returns the commit that is currently visible for g: its
// pending write if one exists, otherwise its last committed write.
func lastCommit(g *memory.Global) memory.Commit {
	if g.Pending != nil {
		return *g.Pending
	}
	return g.History[len(g.History)-1]
}

// stepResult is the outcome of trying to run one statement.
type stepResult int

const (
	stepAdvanced stepResult = iota
	stepWaiting
)

// runStatement executes stmt once. It returns stepAdvanced if the
// statement ran to completion (the caller should move the program
// counter forward), stepWaiting if it is a sync statement that cannot
// proceed yet, or a non-nil *TerminationStatus if the thread must
// stop.
func runStatement(gctx *GlobalContext, ctx *ThreadContext, tid ThreadID, stmt ast.Stmt) (stepResult, *TerminationStatus) {
	switch stmt.Kind {
	case ast.Nop:
		return stepAdvanced, nil

	case ast.Assign:
		r := evaluateExpression(gctx, ctx, tid, stmt.Expr)
		if r.failed() {
			return stepAdvanced, r.err
		}
		if stmt.LVal.IsReg {
			ctx.Locals[stmt.LVal.Name] = r.value
			return stepAdvanced, nil
		}
		g, ok := ctx.Globals[stmt.LVal.Name]
		if !ok {
			g = &memory.Global{}
			ctx.Globals[stmt.LVal.Name] = g
		}
		g.Value = r.value
		commit := gctx.counter.Next()
		g.Pending = &commit
		writeRef := ctx.Tail.Append(graph.Write(stmt.LVal.Name, r.value, uint64(commit)))
		gctx.commitMap[commit] = writeRef
		gctx.Logger.Tracef("thread %d wrote %s = %d (commit %d)", tid, stmt.LVal.Name, r.value, commit)
		return stepAdvanced, nil

	case ast.Join:
		return runJoin(gctx, ctx, tid, stmt)

	case ast.Lock:
		return runLock(gctx, ctx, tid, stmt)

	case ast.Unlock:
		return runUnlock(gctx, ctx, tid, stmt)

	case ast.Assert:
		r := evaluateExpression(gctx, ctx, tid, stmt.Expr)
		if r.failed() {
			return stepAdvanced, r.err
		}
		if r.value == 0 {
			ctx.Tail.Append(graph.AssertionFailure(stmt.Text))
			status := AssertionFailureException
			gctx.Logger.Tracef("thread %d failed assertion %q", tid, stmt.Text)
			return stepAdvanced, &status
		}
		return stepAdvanced, nil

	default:
		panic(internalErrorf("interp: unknown statement kind %v", stmt.Kind))
	}
}

// runJoin implements §4.2's Join contract, including the resolved
// open question: joining a thread that has not completed — whether
// still running or terminated abnormally — leaves the join blocked.
func runJoin(gctx *GlobalContext, ctx *ThreadContext, tid ThreadID, stmt ast.Stmt) (stepResult, *TerminationStatus) {
	val, cached := gctx.cache[stmt.JoinExpr]
	if !cached {
		r := evaluateExpression(gctx, ctx, tid, stmt.JoinExpr)
		if r.failed() {
			return stepAdvanced, r.err
		}
		val = r.value
		gctx.cache[stmt.JoinExpr] = val
	}

	target := gctx.Threads[val]
	if target.Terminated == nil || *target.Terminated != Completed {
		gctx.Logger.Tracef("thread %d waiting on thread %d", tid, val)
		return stepWaiting, nil
	}

	memory.CommitPending(ctx.Globals)
	memory.CommitPending(target.Ctx.Globals)
	conflict := memory.Pull(ctx.Globals, target.Ctx.Globals)
	if conflict != nil {
		gc := conflictToGraph(gctx, conflict)
		ctx.Tail.Append(graph.Join(int(val), target.Ctx.Tail.Ref, gc))
		return stepAdvanced, terminationPtr(DataraceException)
	}
	ctx.Tail.Append(graph.Join(int(val), target.Ctx.Tail.Ref, nil))
	gctx.Logger.Tracef("thread %d joined thread %d", tid, val)
	return stepAdvanced, nil
}

func runLock(gctx *GlobalContext, ctx *ThreadContext, tid ThreadID, stmt ast.Stmt) (stepResult, *TerminationStatus) {
	lock := getOrCreateLock(gctx, stmt.Var)
	if lock.Owner != nil {
		gctx.Logger.Tracef("thread %d waiting for lock %s held by thread %d", tid, stmt.Var, *lock.Owner)
		return stepWaiting, nil
	}
	owner := tid
	lock.Owner = &owner
	memory.CommitPending(ctx.Globals)
	conflict := memory.Pull(ctx.Globals, lock.Globals)
	if conflict != nil {
		gc := conflictToGraph(gctx, conflict)
		ctx.Tail.Append(graph.Lock(stmt.Var, lock.Last, gc))
		return stepAdvanced, terminationPtr(DataraceException)
	}
	ctx.Tail.Append(graph.Lock(stmt.Var, lock.Last, nil))
	gctx.Logger.Tracef("thread %d locked %s", tid, stmt.Var)
	return stepAdvanced, nil
}

func runUnlock(gctx *GlobalContext, ctx *ThreadContext, tid ThreadID, stmt ast.Stmt) (stepResult, *TerminationStatus) {
	memory.CommitPending(ctx.Globals)
	lock := getOrCreateLock(gctx, stmt.Var)
	if lock.Owner == nil || *lock.Owner != tid {
		return stepAdvanced, terminationPtr(UnlockException)
	}
	lock.Globals = ctx.Globals.Clone()
	lock.Owner = nil
	ref := ctx.Tail.Append(graph.Unlock(stmt.Var))
	lock.Last = ref
	gctx.Logger.Tracef("thread %d unlocked %s", tid, stmt.Var)
	return stepAdvanced, nil
}

func getOrCreateLock(gctx *GlobalContext, name string) *Lock {
	lock, ok := gctx.Locks[name]
	if !ok {
		lock = &Lock{Last: graph.NoRef}
		gctx.Locks[name] = lock
	}
	return lock
}

func conflictToGraph(gctx *GlobalContext, conflict *memory.Conflict) *graph.Conflict {
	return &graph.Conflict{
		Var:     conflict.Var,
		CommitA: uint64(conflict.CommitA),
		CommitB: uint64(conflict.CommitB),
		SourceA: gctx.commitMap[conflict.CommitA],
		SourceB: gctx.commitMap[conflict.CommitB],
	}
}

func terminationPtr(s TerminationStatus) *TerminationStatus { return &s }

// runSingleThreadToSync advances thread until it next encounters a
// sync statement that is not the first statement of this call, or
// until it terminates. This is the sync boundary rule of spec.md
// §4.2: a sync statement is only ever attempted as the first
// statement of a call.
func runSingleThreadToSync(gctx *GlobalContext, tid ThreadID, thread *Thread) Outcome {
	if thread.Terminated != nil {
		return terminatedOutcome(*thread.Terminated)
	}

	firstStatement := true
	for thread.PC < len(thread.Block.Stmts) {
		stmt := thread.Block.Stmts[thread.PC]

		if !firstStatement && stmt.IsSync() {
			return progressOutcome()
		}

		result, term := runStatement(gctx, &thread.Ctx, tid, stmt)
		if term != nil {
			thread.Terminated = term
			thread.Ctx.Tail.Append(graph.End())
			return terminatedOutcome(*term)
		}

		if result == stepWaiting {
			if firstStatement {
				return noProgressOutcome()
			}
			return progressOutcome()
		}

		thread.PC++
		firstStatement = false
	}

	completed := Completed
	thread.Terminated = &completed
	thread.Ctx.Tail.Append(graph.End())
	return terminatedOutcome(completed)
}

// isSyncing reports whether thread's current statement is a
// synchronisation statement and the thread has not yet terminated.
func isSyncing(thread *Thread) bool {
	if thread.Terminated != nil {
		return false
	}
	if thread.PC >= len(thread.Block.Stmts) {
		return false
	}
	return thread.Block.Stmts[thread.PC].IsSync()
}

// ProgressThread advances thread (identified by tid) to its next
// synchronisation point, or to termination. Any threads spawned during
// this call are themselves driven to their first sync point before
// ProgressThread returns (spec.md §4.2).
func ProgressThread(gctx *GlobalContext, tid ThreadID, thread *Thread) Outcome {
	threadsBefore := len(gctx.Threads)
	outcome := runSingleThreadToSync(gctx, tid, thread)
	anyProgress := outcome.Progress()

	for i := threadsBefore; i < len(gctx.Threads); i++ {
		anyProgress = true
		spawned := gctx.Threads[i]
		if !isSyncing(spawned) {
			ProgressThread(gctx, i, spawned)
		}
	}

	if outcome.Terminated() {
		return outcome
	}
	if anyProgress {
		return progressOutcome()
	}
	return noProgressOutcome()
}

// runThreadsToSync runs every not-yet-terminated thread once. Returns
// a Terminated(Completed) outcome if every thread has now completed
// normally, otherwise Progress or NoProgress depending on whether any
// thread advanced this round. An individual thread's abnormal
// termination is recorded on that thread but does not abort the round
// for its siblings.
func runThreadsToSync(gctx *GlobalContext) Outcome {
	allCompleted := true
	anyProgress := false

	for i, thread := range gctx.Threads {
		if thread.Terminated != nil {
			continue
		}
		outcome := runSingleThreadToSync(gctx, i, thread)
		switch {
		case outcome.Terminated():
			anyProgress = true
		case outcome.Progress():
			anyProgress = true
		}
		if thread.Terminated == nil {
			allCompleted = false
		} else if *thread.Terminated != Completed {
			allCompleted = false
		}
	}

	if allCompleted {
		return terminatedOutcome(Completed)
	}
	if anyProgress {
		return progressOutcome()
	}
	return noProgressOutcome()
}

// RunResult summarises a full run_threads pass (spec.md §4.3): one
// TerminationStatus per thread, in thread-id order, plus whether any
// thread never terminated (a deadlock).
type RunResult struct {
	Statuses []*TerminationStatus
	Deadlock bool
}

// HasError reports whether any thread terminated abnormally or the
// run deadlocked.
func (r RunResult) HasError() bool {
	if r.Deadlock {
		return true
	}
	for _, s := range r.Statuses {
		if s != nil && s.IsError() {
			return true
		}
	}
	return false
}

// RunThreads repeatedly runs every thread to its next sync point until
// a round makes no progress and no thread terminated in that round
// (spec.md §4.3). It is the sequential, non-exploring driver used by
// plain interpretation and by the debugger's "finish" command.
func RunThreads(gctx *GlobalContext) RunResult {
	for {
		outcome := runThreadsToSync(gctx)
		if !outcome.Progress() {
			break
		}
	}

	result := RunResult{Statuses: make([]*TerminationStatus, len(gctx.Threads))}
	for i, thread := range gctx.Threads {
		result.Statuses[i] = thread.Terminated
		if thread.Terminated == nil {
			result.Deadlock = true
			thread.Ctx.Tail.Append(graph.End())
		}
	}
	return result
}

// Equal implements the GlobalContext equivalence used by the model
// checker to deduplicate final states (spec.md §4.4): same number of
// threads, with each thread in a matched by Block identity to a thread
// in b whose pc, termination status, locals and globals-by-value
// agree; plus the same set of lock names with matching owned/free
// status. Commit histories are intentionally not compared.
func Equal(a, b *GlobalContext) bool {
	if len(a.Threads) != len(b.Threads) {
		return false
	}
	for _, ta := range a.Threads {
		match := findThreadByBlock(b.Threads, ta.Block)
		if match == nil || !threadsEqual(ta, match) {
			return false
		}
	}

	if len(a.Locks) != len(b.Locks) {
		return false
	}
	for name, la := range a.Locks {
		lb, ok := b.Locks[name]
		if !ok || !lockOwnersEqual(la.Owner, lb.Owner) {
			return false
		}
	}
	return true
}

func findThreadByBlock(threads []*Thread, block *ast.Block) *Thread {
	for _, t := range threads {
		if t.Block == block {
			return t
		}
	}
	return nil
}

func threadsEqual(a, b *Thread) bool {
	if a.PC != b.PC {
		return false
	}
	if !terminationEqual(a.Terminated, b.Terminated) {
		return false
	}
	if !maps.Equal(a.Ctx.Locals, b.Ctx.Locals) {
		return false
	}
	return a.Ctx.Globals.ValuesEqual(b.Ctx.Globals)
}

func terminationEqual(a, b *TerminationStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func lockOwnersEqual(a, b *ThreadID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
