package rstar

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// Insert adds an entry with the given bounding box to the tree. ref is
// handed back verbatim by searches. Entries cannot be removed; the tree
// is built once and then queried.
func (t *Tree) Insert(bound ms3.Box, ref int32) {
	leaf := t.newNode(node{bound: bound, ref: ref, leaf: true})
	if t.root == noNode {
		t.root = t.newNode(node{
			bound:     bound,
			children:  []int32{leaf},
			hasLeaves: true,
		})
	} else {
		t.insertInternal(leaf, t.root, true)
	}
	t.size++
}

// insertInternal descends from n to the leaf layer and attaches leaf on
// the way back up. It returns the index of a split sibling for the
// caller to adopt, or noNode. firstInsert permits at most one forced
// reinsertion per top-level insert.
func (t *Tree) insertInternal(leaf, n int32, firstInsert bool) int32 {
	nd := &t.nodes[n]
	nd.bound = boxUnion(nd.bound, t.nodes[leaf].bound)
	if nd.hasLeaves {
		nd.children = append(nd.children, leaf)
	} else {
		best := t.chooseSubtree(n, t.nodes[leaf].bound)
		t.path = append(t.path, n)
		split := t.insertInternal(leaf, best, firstInsert)
		t.path = t.path[:len(t.path)-1]
		if split == noNode {
			return noNode
		}
		// The recursion may have grown the arena; re-resolve n.
		nd = &t.nodes[n]
		nd.children = append(nd.children, split)
	}

	if len(t.nodes[n].children) <= t.maxNode {
		return noNode
	}
	// Overflow: the node now holds maxNode+1 children.
	if n != t.root && firstInsert && t.nodes[n].hasLeaves {
		t.reinsert(n)
		return noNode
	}
	split := t.split(n)
	if n != t.root {
		return split
	}
	grown := t.newNode(node{
		bound:    boxUnion(t.nodes[n].bound, t.nodes[split].bound),
		children: []int32{n, split},
	})
	t.root = grown
	return noNode
}

// chooseSubtree picks the child of n that accommodates bound with the
// least damage: minimum overlap enlargement one level above the leaves,
// minimum area enlargement further up. Ties keep the earlier child.
func (t *Tree) chooseSubtree(n int32, bound ms3.Box) int32 {
	children := t.nodes[n].children
	if !t.nodes[children[0]].hasLeaves {
		return t.minAreaEnlargement(children, bound)
	}
	// The overlap criterion is O(n²); above the cutoff only the
	// chooseSubtreeP children needing the least area enlargement compete.
	if t.maxNode > 2*t.chooseSubtreeP/3 && len(children) > t.chooseSubtreeP {
		sort.SliceStable(children, func(i, j int) bool {
			return t.areaEnlargement(children[i], bound) < t.areaEnlargement(children[j], bound)
		})
		children = children[:t.chooseSubtreeP]
	}
	return t.minOverlapEnlargement(children, bound)
}

func (t *Tree) areaEnlargement(n int32, bound ms3.Box) float32 {
	b := t.nodes[n].bound
	return boxArea(boxUnion(b, bound)) - boxArea(b)
}

func (t *Tree) minAreaEnlargement(children []int32, bound ms3.Box) int32 {
	best := children[0]
	least := t.areaEnlargement(best, bound)
	for _, c := range children[1:] {
		if e := t.areaEnlargement(c, bound); e < least {
			least = e
			best = c
		}
	}
	return best
}

// minOverlapEnlargement returns the candidate whose enlargement by bound
// adds the least overlap with its siblings.
func (t *Tree) minOverlapEnlargement(children []int32, bound ms3.Box) int32 {
	best := noNode
	least := math32.Inf(1)
	for i, c := range children {
		cb := t.nodes[c].bound
		enlarged := boxUnion(cb, bound)
		var overlap float32
		for j, s := range children {
			if i == j {
				continue
			}
			sb := t.nodes[s].bound
			overlap += boxOverlap(enlarged, sb) - boxOverlap(cb, sb)
		}
		if overlap < least {
			least = overlap
			best = c
		}
	}
	return best
}

// split divides an overflowing node into two along the axis with the
// smallest margin sum, at the distribution with the least overlap.
// The input node keeps the lower half; the new sibling is returned.
func (t *Tree) split(n int32) int32 {
	children := t.nodes[n].children
	distributions := t.maxNode - 2*t.minNode + 2

	bestAxis := 0
	leastMargin := math32.Inf(1)
	for axis := 0; axis < 3; axis++ {
		t.sortByAxis(children, axis)
		var margin float32
		for k := 0; k < distributions; k++ {
			cut := t.minNode + k
			margin += boxMargin(t.calcBound(children[:cut])) + boxMargin(t.calcBound(children[cut:]))
		}
		if margin < leastMargin {
			leastMargin = margin
			bestAxis = axis
		}
	}

	t.sortByAxis(children, bestAxis)
	bestK := 0
	leastOverlap := math32.Inf(1)
	leastArea := math32.Inf(1)
	for k := 0; k < distributions; k++ {
		cut := t.minNode + k
		left := t.calcBound(children[:cut])
		right := t.calcBound(children[cut:])
		overlap := boxOverlap(left, right)
		area := boxArea(left) + boxArea(right)
		if overlap < leastOverlap || (overlap == leastOverlap && area < leastArea) {
			leastOverlap = overlap
			leastArea = area
			bestK = k
		}
	}

	cut := t.minNode + bestK
	sibling := t.newNode(node{
		bound:     emptyBox(),
		children:  append([]int32(nil), children[cut:]...),
		hasLeaves: t.nodes[n].hasLeaves,
	})
	nd := &t.nodes[n]
	nd.children = nd.children[:cut]
	nd.bound = t.calcBound(nd.children)
	sb := &t.nodes[sibling]
	sb.bound = t.calcBound(sb.children)
	return sibling
}

// sortByAxis orders children by their lower bound on the axis,
// breaking ties by the upper bound.
func (t *Tree) sortByAxis(children []int32, axis int) {
	sort.Slice(children, func(i, j int) bool {
		a, b := &t.nodes[children[i]].bound, &t.nodes[children[j]].bound
		amin, bmin := axisOf(a.Min, axis), axisOf(b.Min, axis)
		if amin != bmin {
			return amin < bmin
		}
		return axisOf(a.Max, axis) < axisOf(b.Max, axis)
	})
}

func axisOf(v ms3.Vec, axis int) float32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// reinsert evicts the reinsertP children of n furthest from its center
// and inserts them again from the root. The fresh descent may place them
// in better subtrees than the incremental build did. firstInsert=false
// on the way back in keeps a single top-level insert from cascading.
func (t *Tree) reinsert(n int32) {
	nd := &t.nodes[n]
	center := nd.bound
	sort.Slice(nd.children, func(i, j int) bool {
		return boxCenterDist2(t.nodes[nd.children[i]].bound, center) <
			boxCenterDist2(t.nodes[nd.children[j]].bound, center)
	})
	keep := len(nd.children) - t.reinsertP
	pruned := append([]int32(nil), nd.children[keep:]...)
	nd.children = nd.children[:keep]
	nd.bound = t.calcBound(nd.children)
	// The evicted leaves may land anywhere in the tree, so the bounds on
	// the descent path stop being tight the moment they are detached.
	// Recompute them deepest-first before the leaves re-enter.
	for i := len(t.path) - 1; i >= 0; i-- {
		a := &t.nodes[t.path[i]]
		a.bound = t.calcBound(a.children)
	}
	for _, c := range pruned {
		t.insertInternal(c, t.root, false)
	}
}
