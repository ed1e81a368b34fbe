// Command gitmem parses and runs gitmem programs. With no mode flag it
// interprets the program once to completion; -i drops into the
// interactive debugger; -e explores every distinct scheduling with the
// stateless model checker.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gitmem/checker"
	"gitmem/cmdlog"
	"gitmem/debugger"
	"gitmem/graph"
	"gitmem/interp"
	"gitmem/parser"
	"gitmem/render"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

const usage = `usage: gitmem [-v] [-o file] [-i | -e] file...

  -o, --output      write the event graph (Mermaid) to this file
                     (default: the input file's stem with a .mmd extension)
  -v, --verbose      log spawns, global writes, failed asserts and lock/join activity
  -i, --interactive  run the interactive debugger instead of to completion
  -e, --explore      run the stateless model checker over every scheduling
`

func run(args []string) int {
	fs := flag.NewFlagSet("gitmem", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	var output string
	fs.StringVar(&output, "o", "", "write the event graph to this file")
	fs.StringVar(&output, "output", "", "write the event graph to this file")
	var verbose bool
	fs.BoolVar(&verbose, "v", false, "log spawns, global writes, failed asserts and lock/join activity")
	fs.BoolVar(&verbose, "verbose", false, "log spawns, global writes, failed asserts and lock/join activity")
	var interactive bool
	fs.BoolVar(&interactive, "i", false, "run the interactive debugger")
	fs.BoolVar(&interactive, "interactive", false, "run the interactive debugger")
	var explore bool
	fs.BoolVar(&explore, "e", false, "explore every scheduling with the model checker")
	fs.BoolVar(&explore, "explore", false, "explore every scheduling with the model checker")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	files := fs.Args()
	if len(files) == 0 {
		fs.Usage()
		return 1
	}
	if interactive && explore {
		fmt.Fprintln(os.Stderr, "gitmem: -i and -e are mutually exclusive")
		return 1
	}

	level := cmdlog.LevelWarn
	if verbose {
		level = cmdlog.LevelTrace
	}
	logger := cmdlog.New(level)

	exitCode := 0
	for _, path := range files {
		if !runFile(path, logger, output, interactive, explore) {
			exitCode = 1
		}
	}
	return exitCode
}

// runFile processes one source file under the selected mode. A
// malformed-AST panic (interp.InternalError) is confined to this one
// file so that a batch of files keeps processing the rest.
func runFile(path string, logger *cmdlog.Logger, output string, interactive, explore bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if ierr, isInternal := r.(*interp.InternalError); isInternal {
				fmt.Fprintf(os.Stderr, "%s: internal error: %v\n", path, ierr)
				ok = false
				return
			}
			panic(r)
		}
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return false
	}

	block, err := parser.Parse(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return false
	}

	graphPath := output
	if graphPath == "" {
		graphPath = defaultGraphPath(path)
	}

	switch {
	case interactive:
		d := debugger.New(block, logger, os.Stdin, os.Stdout, render.Mermaid{}, graphPath)
		if err := d.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			return false
		}
		return true

	case explore:
		report := checker.Explore(block, logger)
		fmt.Fprint(os.Stdout, report.String())
		if err := writeFindingGraphs(graphPath, report); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		}
		return !report.HasIssues()

	default:
		gctx := interp.New(block, logger)
		result := interp.RunThreads(gctx)
		if err := writeGraph(gctx.Graph, graphPath); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		}
		if result.Deadlock {
			fmt.Fprintf(os.Stderr, "%s: deadlock\n", path)
			return false
		}
		if result.HasError() {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, firstError(result))
			return false
		}
		return true
	}
}

// defaultGraphPath derives the -o/--output default from the input
// file's stem, per the documented CLI contract.
func defaultGraphPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".mmd"
}

func writeGraph(g *graph.Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return render.Mermaid{}.Render(f, g)
}

// writeFindingGraphs renders every failing and deadlocked trace the
// model checker found, one file per trace, deriving each path from
// base the way the original model_checker.cc's build_output_path
// names one graph file per reported trace.
func writeFindingGraphs(base string, report *checker.Report) error {
	if len(report.FailingTraces) == 0 && len(report.DeadlockedTraces) == 0 {
		return nil
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".mmd"
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for i, finding := range report.FailingTraces {
		record(writeGraph(finding.Graph, fmt.Sprintf("%s-failing-%d%s", stem, i, ext)))
	}
	for i, finding := range report.DeadlockedTraces {
		record(writeGraph(finding.Graph, fmt.Sprintf("%s-deadlocked-%d%s", stem, i, ext)))
	}
	return firstErr
}

func firstError(result interp.RunResult) interp.TerminationStatus {
	for _, s := range result.Statuses {
		if s != nil && *s != interp.Completed {
			return *s
		}
	}
	return interp.Completed
}
