package rstar

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// SearchRadius visits every entry whose bounding box lies within maxDist
// of q, in depth-first order. Subtrees entirely outside the search
// sphere are skipped. fn returns false to stop the walk early.
func (t *Tree) SearchRadius(q ms3.Vec, maxDist float32, fn func(ref int32) bool) {
	if t.root == noNode {
		return
	}
	t.searchRadius(t.root, q, maxDist*maxDist, fn)
}

func (t *Tree) searchRadius(n int32, q ms3.Vec, maxDist2 float32, fn func(ref int32) bool) bool {
	for _, c := range t.nodes[n].children {
		child := &t.nodes[c]
		if boxPointDist2(child.bound, q) > maxDist2 {
			continue
		}
		if child.leaf {
			if !fn(child.ref) {
				return false
			}
		} else if !t.searchRadius(c, q, maxDist2, fn) {
			return false
		}
	}
	return true
}

// Nearest walks the tree depth-first, skipping any subtree whose box is
// farther from q than maxDist or than the best squared distance seen so
// far. visit receives each surviving entry together with the current
// best squared distance and returns the (possibly lowered) best. The
// final best squared distance is returned; +Inf means no entry survived
// the radius cut. Children are visited in stored order.
func (t *Tree) Nearest(q ms3.Vec, maxDist float32, visit func(ref int32, best2 float32) float32) float32 {
	best2 := math32.Inf(1)
	if t.root == noNode {
		return best2
	}
	return t.nearest(t.root, q, maxDist*maxDist, best2, visit)
}

func (t *Tree) nearest(n int32, q ms3.Vec, maxDist2, best2 float32, visit func(ref int32, best2 float32) float32) float32 {
	for _, c := range t.nodes[n].children {
		child := &t.nodes[c]
		d2 := boxPointDist2(child.bound, q)
		if d2 > maxDist2 || d2 > best2 {
			continue
		}
		if child.leaf {
			best2 = visit(child.ref, best2)
		} else {
			best2 = t.nearest(c, q, maxDist2, best2, visit)
		}
	}
	return best2
}

// Walk visits every node breadth-first. Useful for inspecting the shape
// of a built tree: fn receives the node depth starting at 0 for the
// root, its bounding box, and whether it is a leaf entry.
func (t *Tree) Walk(fn func(depth int, bound ms3.Box, leaf bool)) {
	if t.root == noNode {
		return
	}
	type item struct {
		n     int32
		depth int
	}
	queue := []item{{t.root, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		nd := &t.nodes[it.n]
		fn(it.depth, nd.bound, nd.leaf)
		for _, c := range nd.children {
			queue = append(queue, item{c, it.depth + 1})
		}
	}
}
