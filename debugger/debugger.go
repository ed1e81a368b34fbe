// Package debugger implements the interactive stdin command loop of
// spec.md §6.3: step a chosen thread to its next sync point, finish
// the program, restart it, list thread/lock state, and render the
// event graph on demand. It is a thin driver over interp's public
// API — it never reaches into interp's unexported fields.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gitmem/ast"
	"gitmem/cmdlog"
	"gitmem/interp"
	"gitmem/memory"
	"gitmem/render"
)

type commandKind int

const (
	cmdSkip commandKind = iota
	cmdStep
	cmdFinish
	cmdRestart
	cmdList
	cmdPrint
	cmdGraph
	cmdQuit
	cmdInfo
)

type command struct {
	kind commandKind
	arg  int
}

// parseCommand mirrors the original debugger.cc's parse_command: a
// bare number or "s <n>" steps thread n, and the rest are single
// letters. Anything else reports msg and is treated as a no-op.
func parseCommand(input string) (command, string) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return command{kind: cmdSkip}, ""
	}
	if isAllDigits(trimmed) {
		n, _ := strconv.Atoi(trimmed)
		return command{kind: cmdStep, arg: n}, ""
	}
	if trimmed[0] == 's' && (len(trimmed) == 1 || !unicode.IsLetter(rune(trimmed[1]))) {
		arg := strings.TrimSpace(trimmed[1:])
		if arg != "" && isAllDigits(arg) {
			n, _ := strconv.Atoi(arg)
			return command{kind: cmdStep, arg: n}, ""
		}
		return command{kind: cmdSkip}, "expected thread id"
	}
	switch trimmed {
	case "q":
		return command{kind: cmdQuit}, ""
	case "r":
		return command{kind: cmdRestart}, ""
	case "f":
		return command{kind: cmdFinish}, ""
	case "l":
		return command{kind: cmdList}, ""
	case "g":
		return command{kind: cmdGraph}, ""
	case "p":
		return command{kind: cmdPrint}, ""
	case "?":
		return command{kind: cmdInfo}, ""
	default:
		return command{kind: cmdSkip}, fmt.Sprintf("unknown command: %s", input)
	}
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Debugger is one interactive session over a single program. Restart
// discards the current GlobalContext and builds a fresh one from the
// same block.
type Debugger struct {
	block       *ast.Block
	gctx        *interp.GlobalContext
	logger      *cmdlog.Logger
	out         io.Writer
	in          *bufio.Scanner
	renderer    render.Renderer
	graphPath   string
	printGraphs bool
}

// New builds a Debugger reading commands from in and writing all
// output to out. graphPath may be empty to disable graph rendering
// entirely ("p" then writes nothing and "g" only flips the setting).
func New(block *ast.Block, logger *cmdlog.Logger, in io.Reader, out io.Writer, renderer render.Renderer, graphPath string) *Debugger {
	return &Debugger{
		block:       block,
		gctx:        interp.New(block, logger),
		logger:      logger,
		out:         out,
		in:          bufio.NewScanner(in),
		renderer:    renderer,
		graphPath:   graphPath,
		printGraphs: true,
	}
}

// Run drives the command loop until "q" or end of input.
func (d *Debugger) Run() error {
	d.renderGraph()
	d.printStatus()
	for {
		fmt.Fprint(d.out, "> ")
		if !d.in.Scan() {
			return d.in.Err()
		}
		cmd, msg := parseCommand(d.in.Text())
		if msg != "" {
			fmt.Fprintln(d.out, msg)
		}

		switch cmd.kind {
		case cmdQuit:
			return nil
		case cmdStep:
			if m := d.step(cmd.arg); m != "" {
				fmt.Fprintln(d.out, m)
			}
			d.renderGraph()
		case cmdFinish:
			result := interp.RunThreads(d.gctx)
			if result.HasError() || result.Deadlock {
				fmt.Fprintln(d.out, "program terminated with an error")
			} else {
				fmt.Fprintln(d.out, "program finished successfully")
			}
			d.renderGraph()
		case cmdRestart:
			d.gctx = interp.New(d.block, d.logger)
			d.renderGraph()
		case cmdList:
			d.showGlobalContext(true)
		case cmdPrint:
			auto := d.printGraphs
			d.printGraphs = true
			d.renderGraph()
			d.printGraphs = auto
		case cmdGraph:
			d.printGraphs = !d.printGraphs
			state := "won't"
			if d.printGraphs {
				state = "will"
			}
			fmt.Fprintf(d.out, "graphs %s print automatically\n", state)
		case cmdInfo:
			d.printHelp()
		case cmdSkip:
		}

		d.printStatus()
	}
}

// step advances thread tid to its next sync point or termination,
// returning a human-readable message describing what happened (or ""
// on a silent, successful step).
func (d *Debugger) step(tid int) string {
	if tid < 0 || tid >= len(d.gctx.Threads) {
		return fmt.Sprintf("invalid thread id: %d", tid)
	}
	thread := d.gctx.Threads[tid]
	if thread.Terminated != nil {
		if *thread.Terminated == interp.Completed {
			return fmt.Sprintf("thread %d has already terminated normally", tid)
		}
		return fmt.Sprintf("thread %d has already terminated with %s", tid, *thread.Terminated)
	}

	outcome := interp.ProgressThread(d.gctx, tid, thread)
	switch {
	case outcome.Terminated():
		if outcome.Status == interp.Completed {
			return fmt.Sprintf("thread %d terminated normally", tid)
		}
		return fmt.Sprintf("thread %d terminated with %s", tid, outcome.Status)
	case outcome.Progress():
		return ""
	default:
		return fmt.Sprintf("thread %d is blocking on %q", tid, currentStmtText(thread))
	}
}

func currentStmtText(t *interp.Thread) string {
	if t.PC >= len(t.Block.Stmts) {
		return ""
	}
	return t.Block.Stmts[t.PC].Text
}

func (d *Debugger) renderGraph() {
	if d.renderer == nil || d.graphPath == "" || !d.printGraphs {
		return
	}
	f, err := os.Create(d.graphPath)
	if err != nil {
		fmt.Fprintf(d.out, "could not write graph: %v\n", err)
		return
	}
	defer f.Close()
	if err := d.renderer.Render(f, d.gctx.Graph); err != nil {
		fmt.Fprintf(d.out, "could not render graph: %v\n", err)
	}
}

// printStatus prints the added one-line summary of thread states and
// held locks after every command (SPEC_FULL.md §6.3).
func (d *Debugger) printStatus() {
	threadParts := make([]string, len(d.gctx.Threads))
	for i, t := range d.gctx.Threads {
		threadParts[i] = fmt.Sprintf("%d=%s", i, threadState(t))
	}

	names := make([]string, 0, len(d.gctx.Locks))
	for name := range d.gctx.Locks {
		names = append(names, name)
	}
	sort.Strings(names)
	lockParts := make([]string, 0, len(names))
	for _, name := range names {
		lock := d.gctx.Locks[name]
		if lock.Owner == nil {
			lockParts = append(lockParts, fmt.Sprintf("%s=free", name))
		} else {
			lockParts = append(lockParts, fmt.Sprintf("%s=held(%d)", name, *lock.Owner))
		}
	}

	fmt.Fprintf(d.out, "[threads: %s] [locks: %s]\n", strings.Join(threadParts, " "), strings.Join(lockParts, " "))
}

func threadState(t *interp.Thread) string {
	if t.Terminated == nil {
		return "running"
	}
	if *t.Terminated == interp.Completed {
		return "completed"
	}
	return t.Terminated.String()
}

// showGlobalContext prints every thread's locals, globals and source
// listing (with the program counter marked), then every lock.
// showAll, when false, skips threads that have already completed
// normally — always true from the "l" command, matching the
// original's List behaviour.
func (d *Debugger) showGlobalContext(showAll bool) {
	for i, t := range d.gctx.Threads {
		if !showAll && t.Terminated != nil && *t.Terminated == interp.Completed {
			continue
		}
		d.showThread(i, t)
		fmt.Fprintln(d.out)
	}

	if len(d.gctx.Locks) == 0 {
		return
	}
	fmt.Fprintln(d.out, "---- locks")
	names := make([]string, 0, len(d.gctx.Locks))
	for name := range d.gctx.Locks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.showLock(name, d.gctx.Locks[name])
	}
}

func (d *Debugger) showThread(tid int, t *interp.Thread) {
	fmt.Fprintf(d.out, "---- thread %d\n", tid)

	if len(t.Ctx.Locals) > 0 {
		names := sortedKeys(t.Ctx.Locals)
		for _, name := range names {
			fmt.Fprintf(d.out, "%s = %d\n", name, t.Ctx.Locals[name])
		}
		fmt.Fprintln(d.out, "--")
	}

	if len(t.Ctx.Globals) > 0 {
		names := make([]string, 0, len(t.Ctx.Globals))
		for name := range t.Ctx.Globals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			showGlobal(d.out, name, t.Ctx.Globals[name])
		}
		fmt.Fprintln(d.out, "--")
	}

	for idx, stmt := range t.Block.Stmts {
		marker := "   "
		if idx == t.PC {
			marker = "-> "
		}
		fmt.Fprintf(d.out, "%s%s;\n", marker, stmt.Text)
	}
	if t.PC >= len(t.Block.Stmts) {
		fmt.Fprintln(d.out, "-> ")
	}
}

func (d *Debugger) showLock(name string, lock *interp.Lock) {
	fmt.Fprintf(d.out, "%s: ", name)
	if lock.Owner == nil {
		fmt.Fprintln(d.out, "<free>")
	} else {
		fmt.Fprintf(d.out, "held by thread %d\n", *lock.Owner)
	}
	names := make([]string, 0, len(lock.Globals))
	for name := range lock.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		showGlobal(d.out, name, lock.Globals[name])
	}
}

func showGlobal(out io.Writer, name string, g *memory.Global) {
	pending := "_"
	if g.Pending != nil {
		pending = fmt.Sprintf("%d", *g.Pending)
	}
	history := make([]string, len(g.History))
	for i, c := range g.History {
		history[i] = fmt.Sprintf("%d", c)
	}
	fmt.Fprintf(out, "%s = %d [%s; %s]\n", name, g.Value, pending, strings.Join(history, ", "))
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.out, "commands:")
	fmt.Fprintln(d.out, "s <tid> - step to next sync point in thread <tid>")
	fmt.Fprintln(d.out, "<tid>   - same as 's <tid>'")
	fmt.Fprintln(d.out, "f       - finish the program")
	fmt.Fprintln(d.out, "r       - restart the program")
	fmt.Fprintln(d.out, "l       - list all threads")
	fmt.Fprintln(d.out, "g       - toggle printing the execution graph after every step, finish and restart")
	fmt.Fprintln(d.out, "p       - print the execution graph now")
	fmt.Fprintln(d.out, "q       - quit the interpreter")
	fmt.Fprintln(d.out, "?       - display this help message")
}
