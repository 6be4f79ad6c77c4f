// Package rstar implements a 3D R*-tree over axis-aligned bounding boxes.
//
// The tree follows the insertion algorithms of Beckmann et al.,
// "The R*-tree: An Efficient and Robust Access Method for Points and
// Rectangles": subtrees are chosen by overlap or area enlargement, nodes
// are split along the minimum-margin axis at the minimum-overlap
// distribution, and the first overflow of a leaf-layer node per insert
// triggers a forced reinsertion of its outermost children.
//
// Entries are referenced by caller-owned int32 handles. The tree is
// immutable once built and safe for concurrent searches.
package rstar

import "github.com/soypat/glgl/math/ms3"

const (
	// DefaultMaxNode is the fan-out used by New.
	DefaultMaxNode = 64

	noNode = int32(-1)
)

// node is a tagged arena entry: a leaf wrapping a user reference, or an
// internal node owning a child list. Nodes are addressed by their index
// into Tree.nodes so the whole tree is freed and relocated as one slab.
type node struct {
	bound ms3.Box
	// children indexes Tree.nodes. nil for leaves.
	children []int32
	// ref is the caller's handle for the entry stored in a leaf.
	ref int32
	// hasLeaves marks internal nodes whose children are leaves.
	hasLeaves bool
	leaf      bool
}

// Tree is a 3D R*-tree. The zero value is not usable; use New or NewDegree.
type Tree struct {
	nodes []node
	root  int32
	size  int

	// path holds the ancestors of the node currently being descended
	// into during an insert. A forced reinsertion moves leaves out of a
	// subtree, so the bounds along the path must be retightened.
	path []int32

	// Fan-out parameters, fixed at construction.
	maxNode        int // most children per node
	minNode        int // fewest children per non-root node
	chooseSubtreeP int // candidate cap for the overlap criterion
	reinsertP      int // children evicted by a forced reinsertion
}

// New returns an empty tree with the default fan-out of DefaultMaxNode.
func New() *Tree {
	return NewDegree(DefaultMaxNode)
}

// NewDegree returns an empty tree with at most maxNode children per node.
// maxNode must be at least 2. The remaining R* parameters are derived:
// the minimum fill is 40% of maxNode and a forced reinsertion evicts 30%.
func NewDegree(maxNode int) *Tree {
	if maxNode < 2 {
		panic("rstar: maxNode must be >= 2")
	}
	minNode := int(0.4 * float64(maxNode))
	if minNode < 1 {
		minNode = 1
	}
	reinsertP := int(0.3 * float64(maxNode))
	if reinsertP < 1 {
		reinsertP = 1
	} else if reinsertP > maxNode {
		reinsertP = maxNode
	}
	return &Tree{
		root:           noNode,
		maxNode:        maxNode,
		minNode:        minNode,
		chooseSubtreeP: maxNode / 2,
		reinsertP:      reinsertP,
	}
}

// Count returns the number of entries inserted into the tree.
func (t *Tree) Count() int { return t.size }

// Bound returns the bounding box of all entries.
// The empty sentinel box is returned for an empty tree.
func (t *Tree) Bound() ms3.Box {
	if t.root == noNode {
		return emptyBox()
	}
	return t.nodes[t.root].bound
}

// newNode appends a node to the arena and returns its index.
func (t *Tree) newNode(n node) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

// calcBound recomputes a bound from scratch over a child list.
func (t *Tree) calcBound(children []int32) ms3.Box {
	bb := emptyBox()
	for _, c := range children {
		bb = boxUnion(bb, t.nodes[c].bound)
	}
	return bb
}
