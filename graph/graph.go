// Package graph implements the event-graph recorder described in
// spec.md §3/§4.5/§9: an append-only, arena-indexed DAG of causal
// events. Nodes are stored by value in a Graph's arena and referenced
// by index (Ref) rather than by pointer, so that a GlobalContext
// snapshot can be copied cheaply without deep-cloning the graph — the
// graph itself is shared and immutable except for appends.
package graph

// Ref is an index into a Graph's node arena. NoRef means "absent".
type Ref int

// NoRef is the zero value meaning "no node".
const NoRef Ref = -1

// Valid reports whether r refers to an actual node.
func (r Ref) Valid() bool { return r != NoRef }

// Kind identifies which fields of a Node are populated. Kinds are a
// closed union; renderers and any future consumer should switch on
// Kind rather than rely on dynamic dispatch (spec.md §9).
type Kind int

const (
	KindStart Kind = iota
	KindEnd
	KindWrite
	KindRead
	KindSpawn
	KindJoin
	KindLock
	KindUnlock
	KindAssertionFailure
	KindPending
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindSpawn:
		return "spawn"
	case KindJoin:
		return "join"
	case KindLock:
		return "lock"
	case KindUnlock:
		return "unlock"
	case KindAssertionFailure:
		return "assertion_failure"
	case KindPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Conflict identifies a data race detected while pulling: the
// variable and the two divergent commit ids, plus the event nodes
// that produced those commits (for rendering conflict edges).
type Conflict struct {
	Var      string
	CommitA  uint64
	CommitB  uint64
	SourceA  Ref
	SourceB  Ref
}

// Node is one event in the graph. Exactly the fields relevant to Kind
// are meaningful; see the per-kind constructors below.
type Node struct {
	Kind Kind
	Next Ref // program-order successor; NoRef only for End and Pending

	// Start
	ThreadID int

	// Write / Read
	Var       string
	Value     uint64
	Commit    uint64
	ReadFrom  Ref // Read only: the Write node that produced Value

	// Spawn
	SpawnedTID   int
	SpawnedStart Ref

	// Join
	JoinedTID  int
	JoineeEnd  Ref
	Conflict   *Conflict

	// Lock
	OrderedAfter Ref

	// AssertionFailure
	Cond string

	// Pending
	Statement string
}

// Graph is the arena owning every event node appended during one
// GlobalContext's lifetime, including every thread spawned from it.
// A Graph is append-only: once appended, a node changes only when
// Tail.Append or Tail.AppendPending sets its Next link, or when
// ReplacePending overwrites a Pending node.
type Graph struct {
	nodes []Node
}

// NewGraph creates an empty arena.
func NewGraph() *Graph {
	return &Graph{nodes: make([]Node, 0, 16)}
}

// Append adds n to the arena and returns its Ref.
func (g *Graph) Append(n Node) Ref {
	g.nodes = append(g.nodes, n)
	return Ref(len(g.nodes) - 1)
}

// At returns the node for ref. Panics on an invalid ref — callers must
// only dereference refs they (or a trusted producer) created.
func (g *Graph) At(ref Ref) *Node {
	return &g.nodes[ref]
}

// Len returns the number of nodes ever appended.
func (g *Graph) Len() int { return len(g.nodes) }

// ReplacePending overwrites the node at ref (which must be a Pending
// node) with n. Used when the statement a Pending node was marking
// actually executes (spec.md §9: "Pending nodes... must never survive
// past the moment the statement executes successfully").
func (g *Graph) ReplacePending(ref Ref, n Node) {
	if g.nodes[ref].Kind != KindPending {
		panic("graph: ReplacePending on a non-pending node")
	}
	g.nodes[ref] = n
}

// Tail is a cursor into a thread's or lock's program-order chain: the
// Ref of the last node appended to that chain, plus the Graph it
// belongs to. Append on a Tail links the new node from the current
// tail and advances the tail.
type Tail struct {
	Graph *Graph
	Ref   Ref
}

// Append adds n as the program-order successor of t's current
// position, links the previous tail to it via Next, and advances t.
// The returned Ref is the new node's position.
func (t *Tail) Append(n Node) Ref {
	n.Next = NoRef
	ref := t.Graph.Append(n)
	if t.Ref.Valid() {
		t.Graph.At(t.Ref).Next = ref
	}
	t.Ref = ref
	return ref
}

// AppendPending appends a transient Pending node without moving the
// tail: the statement has not executed yet, so the chain must resume
// from the same position once it does (spec.md §4.5).
func (t *Tail) AppendPending(statement string) Ref {
	ref := t.Graph.Append(Node{Kind: KindPending, Next: NoRef, Statement: statement})
	if t.Ref.Valid() {
		t.Graph.At(t.Ref).Next = ref
	}
	return ref
}

// Start records a new thread's first event.
func Start(tid int) Node { return Node{Kind: KindStart, ThreadID: tid} }

// End records thread termination (normal or exceptional).
func End() Node { return Node{Kind: KindEnd} }

// Write records a write to a versioned global.
func Write(v string, value, commit uint64) Node {
	return Node{Kind: KindWrite, Var: v, Value: value, Commit: commit}
}

// Read records a read of a versioned global, with the ref of the Write
// that produced the observed commit.
func Read(v string, value, commit uint64, from Ref) Node {
	return Node{Kind: KindRead, Var: v, Value: value, Commit: commit, ReadFrom: from}
}

// Spawn records a spawn, linking to the spawned thread's Start node.
func Spawn(tid int, start Ref) Node {
	return Node{Kind: KindSpawn, SpawnedTID: tid, SpawnedStart: start}
}

// Join records a join, linking to the joined thread's End node and
// optionally a detected conflict.
func Join(tid int, joineeEnd Ref, conflict *Conflict) Node {
	return Node{Kind: KindJoin, JoinedTID: tid, JoineeEnd: joineeEnd, Conflict: conflict}
}

// Lock records a lock acquisition, ordered after the lock's previous
// Unlock (if any) and optionally carrying a detected conflict.
func Lock(v string, orderedAfter Ref, conflict *Conflict) Node {
	return Node{Kind: KindLock, Var: v, OrderedAfter: orderedAfter, Conflict: conflict}
}

// Unlock records a lock release.
func Unlock(v string) Node { return Node{Kind: KindUnlock, Var: v} }

// AssertionFailure records a failed assertion's source text.
func AssertionFailure(cond string) Node {
	return Node{Kind: KindAssertionFailure, Cond: cond}
}
