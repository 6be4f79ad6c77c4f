// Package meshq answers closest-point queries against triangle meshes.
//
// A Mesh (vertices plus triangle indices) is compiled once into an Index
// backed by an R*-tree over triangle bounding boxes. Each query walks
// the tree depth-first, skipping subtrees that cannot beat the best
// point found so far, and runs an exact point-to-triangle kernel on the
// survivors. The Index is immutable after construction and safe for
// concurrent queries.
package meshq

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"

	"github.com/tkchanat/meshq/rstar"
)

// Mesh build and query errors.
var (
	ErrBadIndexCount = errors.New("index count not a multiple of 3")
	ErrIndexRange    = errors.New("vertex index out of range")
	ErrBadVertex     = errors.New("non-finite vertex")
	ErrBadQuery      = errors.New("negative search radius or non-finite query point")
)

// Mesh is an indexed triangle soup. Triangle i is formed by the vertices
// at Indices[3i], Indices[3i+1], Indices[3i+2], in winding order.
// Non-triangle primitives must be triangulated before building a Mesh.
type Mesh struct {
	Vertices []ms3.Vec
	Indices  []int32
}

// NumTriangles returns the number of triangles described by the mesh.
func (m Mesh) NumTriangles() int { return len(m.Indices) / 3 }

// Triangle returns triangle i of the mesh. It panics when the mesh is
// invalid; call Validate first on untrusted input.
func (m Mesh) Triangle(i int) ms3.Triangle {
	return ms3.Triangle{
		m.Vertices[m.Indices[3*i]],
		m.Vertices[m.Indices[3*i+1]],
		m.Vertices[m.Indices[3*i+2]],
	}
}

// Validate checks the structural invariants of the mesh: the index count
// is a multiple of three, every index addresses a vertex and every
// vertex is finite.
func (m Mesh) Validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices", ErrBadIndexCount, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if idx < 0 || int(idx) >= len(m.Vertices) {
			return fmt.Errorf("%w: indices[%d]=%d, %d vertices", ErrIndexRange, i, idx, len(m.Vertices))
		}
	}
	for i, v := range m.Vertices {
		if !finite(v) {
			return fmt.Errorf("%w: vertices[%d]", ErrBadVertex, i)
		}
	}
	return nil
}

// Index is a spatial index over the triangles of a mesh. It owns the
// triangle storage and the acceleration tree. Once built it is never
// mutated, so any number of goroutines may query it concurrently.
type Index struct {
	triangles []ms3.Triangle
	tree      *rstar.Tree
}

// NewIndex builds an index over m with the default tree fan-out.
// The mesh is validated first and the build aborted on any violation.
func NewIndex(m Mesh) (*Index, error) {
	return NewIndexDegree(m, rstar.DefaultMaxNode)
}

// NewIndexDegree builds an index with at most maxNode children per tree
// node. Smaller fan-outs build deeper trees; the default suits meshes up
// to millions of triangles.
func NewIndexDegree(m Mesh, maxNode int) (*Index, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	nt := m.NumTriangles()
	// Triangles live in a single slab sized up front; tree leaves refer
	// to them by offset so the slab must never be resized mid-build.
	x := &Index{
		triangles: make([]ms3.Triangle, nt),
		tree:      rstar.NewDegree(maxNode),
	}
	for i := 0; i < nt; i++ {
		tri := m.Triangle(i)
		x.triangles[i] = tri
		bb := ms3.Box{
			Min: ms3.MinElem(tri[2], ms3.MinElem(tri[0], tri[1])),
			Max: ms3.MaxElem(tri[2], ms3.MaxElem(tri[0], tri[1])),
		}
		x.tree.Insert(bb, int32(i))
	}
	return x, nil
}

// ClosestPoint returns the point on the mesh closest to q among those
// within maxDist of it. ok is false when no part of the mesh lies within
// maxDist, including the case of an empty mesh. maxDist may be +Inf.
// A negative or NaN maxDist or a non-finite q yields ErrBadQuery.
func (x *Index) ClosestPoint(q ms3.Vec, maxDist float32) (p ms3.Vec, ok bool, err error) {
	if !(maxDist >= 0) || !finite(q) {
		return ms3.Vec{}, false, ErrBadQuery
	}
	best2 := x.tree.Nearest(q, maxDist, func(ref int32, best2 float32) float32 {
		return updateClosest(q, x.triangles[ref], best2, &p)
	})
	// A triangle box within range can still hold its closest point beyond
	// maxDist, so the winner is checked against the radius itself.
	if math32.IsInf(best2, 1) || best2 > maxDist*maxDist {
		return ms3.Vec{}, false, nil
	}
	return p, true, nil
}

// SearchRadius calls fn for every triangle whose bounding box lies
// within maxDist of q, in traversal order. fn returns false to stop
// early. Unlike ClosestPoint the triangles themselves are not tested
// against the radius, only their boxes.
func (x *Index) SearchRadius(q ms3.Vec, maxDist float32, fn func(tri ms3.Triangle) bool) error {
	if !(maxDist >= 0) || !finite(q) {
		return ErrBadQuery
	}
	x.tree.SearchRadius(q, maxDist, func(ref int32) bool {
		return fn(x.triangles[ref])
	})
	return nil
}

// Triangles returns the number of indexed triangles.
func (x *Index) Triangles() int { return x.tree.Count() }

// Bound returns the bounding box of the whole mesh.
func (x *Index) Bound() ms3.Box { return x.tree.Bound() }

// Tree exposes the underlying acceleration tree for inspection.
func (x *Index) Tree() *rstar.Tree { return x.tree }

func finite(v ms3.Vec) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func isFinite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
