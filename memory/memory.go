// Package memory implements the git-like versioned memory model
// described in spec.md §3/§4.1: per-object versioned globals, commit,
// pull (fast-forward or race detection), and commit-id minting.
//
// There is no shared global store. Every synchronising object (thread
// or lock) owns its own Globals map; commit and pull are the only
// operations that move data between them.
package memory

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Commit is an opaque, monotonically-increasing write identifier.
type Commit uint64

// CommitHistory is the ordered sequence of commits observed by one
// synchronising object for one variable.
type CommitHistory []Commit

// Global is one synchronising object's view of one global variable:
// its current value, an optional pending (not yet committed) write,
// and the history of committed writes. Invariant: if Pending is set,
// its id is not in History, and Value corresponds to Pending; if
// Pending is unset, Value corresponds to the last History entry.
type Global struct {
	Value   uint64
	Pending *Commit
	History CommitHistory
}

// Clone returns a deep copy of g — callers that fork a Globals map
// (e.g. spawn) must not alias History slices.
func (g Global) Clone() Global {
	h := make(CommitHistory, len(g.History))
	copy(h, g.History)
	out := Global{Value: g.Value, History: h}
	if g.Pending != nil {
		p := *g.Pending
		out.Pending = &p
	}
	return out
}

// valueEqual compares two Globals by Value only, ignoring History and
// Pending — used by the model checker's final-state equivalence test
// (spec.md §4.4: "histories are not compared").
func valueEqual(a, b Global) bool { return a.Value == b.Value }

// Globals is the versioned-memory map held independently by each
// thread and each lock, keyed by variable name.
type Globals map[string]*Global

// Clone returns a deep copy of m.
func (m Globals) Clone() Globals {
	out := make(Globals, len(m))
	for k, v := range m {
		g := v.Clone()
		out[k] = &g
	}
	return out
}

// ValuesEqual reports whether m and other hold the same set of
// variables with the same current value, ignoring commit history.
func (m Globals) ValuesEqual(other Globals) bool {
	return maps.EqualFunc(m, other, func(a, b *Global) bool { return valueEqual(*a, *b) })
}

// CommitPending walks every variable in m with a pending write and
// appends that write's id to its history, clearing pending.
// Idempotent: safe to call at every synchronisation point even if
// nothing is pending.
func CommitPending(m Globals) {
	names := maps.Keys(m)
	slices.Sort(names)
	for _, name := range names {
		g := m[name]
		if g.Pending != nil {
			g.History = append(g.History, *g.Pending)
			g.Pending = nil
		}
	}
}

// Conflict describes a data race detected by Pull: two commit ids
// that diverge at the same position in var's history.
type Conflict struct {
	Var     string
	CommitA Commit
	CommitB Commit
}

// hasConflict returns the first pair of commits at which h1 and h2
// diverge, or ok=false if one is a prefix of the other.
func hasConflict(h1, h2 CommitHistory) (a, b Commit, ok bool) {
	n := len(h1)
	if len(h2) < n {
		n = len(h2)
	}
	for i := 0; i < n; i++ {
		if h1[i] != h2[i] {
			return h1[i], h2[i], true
		}
	}
	return 0, 0, false
}

// Pull reconciles dst with src: for every variable src knows about,
// either dst learns it for the first time, dst fast-forwards to src's
// longer history, or — if the two histories have diverged — Pull stops
// and reports the first Conflict found. Variables only dst knows about
// are left untouched.
func Pull(dst, src Globals) *Conflict {
	names := maps.Keys(src)
	slices.Sort(names)
	for _, name := range names {
		sg := src[name]
		dg, known := dst[name]
		if !known {
			clone := sg.Clone()
			dst[name] = &clone
			continue
		}
		a, b, conflicted := hasConflict(sg.History, dg.History)
		if conflicted {
			return &Conflict{Var: name, CommitA: a, CommitB: b}
		}
		if len(sg.History) > len(dg.History) {
			dg.Value = sg.Value
			dg.History = append(CommitHistory{}, sg.History...)
		}
	}
	return nil
}

// Counter mints globally-unique, monotonically-increasing commit ids
// within one GlobalContext. It must live inside the GlobalContext
// (spec.md §9 "No ambient mutable state") rather than as a package
// global, so that every model-checker replay starts fresh.
type Counter struct {
	next Commit
}

// Next mints and returns the next commit id.
func (c *Counter) Next() Commit {
	id := c.next
	c.next++
	return id
}
