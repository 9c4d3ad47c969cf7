// Package tree is an append-only arena tree recording what a run produced.
//
// Nodes are addressed by NodeID, an index into the arena. IDs are stable:
// nodes are never removed or reordered, so an ID or index path captured at
// any point stays valid for the lifetime of the tree.
//
// A Tree is not safe for concurrent mutation. One logical flow of control
// owns a tree at a time.
package tree

import (
	"fmt"
	"iter"
	"sync/atomic"
)

// NodeID addresses a node within one Tree.
type NodeID int

const (
	// Root is the ID of every tree's root node.
	Root NodeID = 0
	// None is returned where no node exists (the root's parent).
	None NodeID = -1
)

// Kind classifies what a node records.
type Kind int

const (
	// KindRoot is the context the caller asked to apply.
	KindRoot Kind = iota
	// KindInstruction is an instruction returned by forward notification.
	KindInstruction
	// KindCompletion is the End record appended after an instruction ran.
	KindCompletion
	// KindResponse is follow-on work returned by retro notification.
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindInstruction:
		return "instruction"
	case KindCompletion:
		return "completion"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Run reports whether a node of this kind is driven through the phase
// cycle itself.
func (k Kind) Run() bool {
	return k == KindRoot || k == KindResponse
}

type node[T any] struct {
	kind     Kind
	parent   NodeID
	index    int
	depth    int
	data     T
	children []NodeID
}

// Tree is an arena of nodes carrying data of type T.
type Tree[T any] struct {
	token string
	nodes []node[T]
	epoch atomic.Uint64
}

// New creates a tree holding only a root node with the given data.
// token identifies the run that owns the tree.
func New[T any](token string, root T) *Tree[T] {
	return &Tree[T]{
		token: token,
		nodes: []node[T]{{kind: KindRoot, parent: None, data: root}},
	}
}

// Token returns the run token the tree was created with.
func (t *Tree[T]) Token() string {
	return t.token
}

// Epoch returns how many times control of the tree has been claimed.
func (t *Tree[T]) Epoch() uint64 {
	return t.epoch.Load()
}

// Claim advances the epoch from seen to seen+1. It reports false if the
// epoch has already moved past seen. Safe for concurrent use.
func (t *Tree[T]) Claim(seen uint64) bool {
	return t.epoch.CompareAndSwap(seen, seen+1)
}

// Len returns the number of nodes. It never decreases.
func (t *Tree[T]) Len() int {
	return len(t.nodes)
}

// Has reports whether id addresses a node of this tree.
func (t *Tree[T]) Has(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Add appends a child under parent and returns its ID.
// It panics if parent does not exist or kind is KindRoot.
func (t *Tree[T]) Add(parent NodeID, kind Kind, data T) NodeID {
	if !t.Has(parent) {
		panic(fmt.Sprintf("tree: add under unknown node %d", parent))
	}
	if kind == KindRoot {
		panic("tree: only New creates a root")
	}
	id := NodeID(len(t.nodes))
	p := &t.nodes[parent]
	t.nodes = append(t.nodes, node[T]{
		kind:   kind,
		parent: parent,
		index:  len(p.children),
		depth:  p.depth + 1,
		data:   data,
	})
	// re-take the pointer: append may have moved the arena
	p = &t.nodes[parent]
	p.children = append(p.children, id)
	return id
}

func (t *Tree[T]) Data(id NodeID) T {
	return t.nodes[id].data
}

func (t *Tree[T]) Kind(id NodeID) Kind {
	return t.nodes[id].kind
}

// Parent returns the parent of id, or (None, false) for the root.
func (t *Tree[T]) Parent(id NodeID) (NodeID, bool) {
	p := t.nodes[id].parent
	return p, p != None
}

// Index returns the position of id among its siblings.
func (t *Tree[T]) Index(id NodeID) int {
	return t.nodes[id].index
}

// Depth returns the number of edges between id and the root.
func (t *Tree[T]) Depth(id NodeID) int {
	return t.nodes[id].depth
}

// Children returns a copy of id's children in insertion order.
func (t *Tree[T]) Children(id NodeID) []NodeID {
	kids := t.nodes[id].children
	out := make([]NodeID, len(kids))
	copy(out, kids)
	return out
}

// NumChildren returns the number of children of id.
func (t *Tree[T]) NumChildren(id NodeID) int {
	return len(t.nodes[id].children)
}

// Child returns the i-th child of id.
func (t *Tree[T]) Child(id NodeID, i int) (NodeID, bool) {
	kids := t.nodes[id].children
	if i < 0 || i >= len(kids) {
		return None, false
	}
	return kids[i], true
}

// Path returns the child indices leading from the root to id.
// The root's path is empty.
func (t *Tree[T]) Path(id NodeID) []int {
	path := make([]int, t.nodes[id].depth)
	for n := id; n != Root; n = t.nodes[n].parent {
		path[t.nodes[n].depth-1] = t.nodes[n].index
	}
	return path
}

// Lookup resolves an index path produced by Path.
func (t *Tree[T]) Lookup(path []int) (NodeID, bool) {
	n := Root
	for _, i := range path {
		child, ok := t.Child(n, i)
		if !ok {
			return None, false
		}
		n = child
	}
	return n, true
}

// nextSibling returns the sibling after id, if any.
func (t *Tree[T]) nextSibling(id NodeID) (NodeID, bool) {
	p, ok := t.Parent(id)
	if !ok {
		return None, false
	}
	return t.Child(p, t.nodes[id].index+1)
}

// Dive yields nodes depth-first starting at start: first child, then next
// sibling, then the next sibling of the nearest ancestor that has one. It
// does not stop at the end of start's subtree; starting at the root visits
// every node in pre-order.
//
// Nodes appended while iterating are visited if they come later in the
// order.
func (t *Tree[T]) Dive(start NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		if !t.Has(start) {
			return
		}
		for n, ok := start, true; ok; n, ok = t.diveNext(n) {
			if !yield(n) {
				return
			}
		}
	}
}

func (t *Tree[T]) diveNext(n NodeID) (NodeID, bool) {
	if c, ok := t.Child(n, 0); ok {
		return c, true
	}
	for {
		if s, ok := t.nextSibling(n); ok {
			return s, true
		}
		p, ok := t.Parent(n)
		if !ok {
			return None, false
		}
		n = p
	}
}

// Sweep yields the subtree under start level by level, left to right.
func (t *Tree[T]) Sweep(start NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		if !t.Has(start) {
			return
		}
		level := []NodeID{start}
		for len(level) > 0 {
			var next []NodeID
			for _, n := range level {
				if !yield(n) {
					return
				}
				next = append(next, t.nodes[n].children...)
			}
			level = next
		}
	}
}
