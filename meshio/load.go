// Package meshio loads triangle meshes from model files.
package meshio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fogleman/fauxgl"
	"github.com/soypat/glgl/math/ms3"

	"github.com/tkchanat/meshq"
	"github.com/tkchanat/meshq/log"
)

var logger = log.New("meshio")

// Load reads a triangle mesh from an OBJ or STL file, picked by file
// extension. Polygonal OBJ faces are triangulated by the parser.
func Load(path string) (meshq.Mesh, error) {
	var (
		fm  *fauxgl.Mesh
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		fm, err = fauxgl.LoadOBJ(path)
	case ".stl":
		fm, err = fauxgl.LoadSTL(path)
	default:
		return meshq.Mesh{}, fmt.Errorf("unsupported model format %q", ext)
	}
	if err != nil {
		return meshq.Mesh{}, fmt.Errorf("load %s: %w", path, err)
	}
	return FromTriangles(fm.Triangles), nil
}

// FromTriangles converts loose fauxgl triangles into an indexed Mesh,
// welding vertices that land on the same single-precision position.
// Degenerate triangles are kept (the query kernel copes with them) but
// counted and reported.
func FromTriangles(tris []*fauxgl.Triangle) meshq.Mesh {
	m := meshq.Mesh{
		Vertices: make([]ms3.Vec, 0, len(tris)),
		Indices:  make([]int32, 0, 3*len(tris)),
	}
	weld := make(map[ms3.Vec]int32, len(tris))
	degenerate := 0
	for _, t := range tris {
		v0 := vec(t.V1.Position)
		v1 := vec(t.V2.Position)
		v2 := vec(t.V3.Position)
		if ms3.Norm2(ms3.Cross(ms3.Sub(v1, v0), ms3.Sub(v2, v0))) == 0 {
			degenerate++
		}
		for _, v := range [3]ms3.Vec{v0, v1, v2} {
			idx, ok := weld[v]
			if !ok {
				idx = int32(len(m.Vertices))
				m.Vertices = append(m.Vertices, v)
				weld[v] = idx
			}
			m.Indices = append(m.Indices, idx)
		}
	}
	if degenerate > 0 {
		logger.Warningf("model contains %d degenerate triangles", degenerate)
	}
	return m
}

func vec(v fauxgl.Vector) ms3.Vec {
	return ms3.Vec{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}
