package rstar

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// emptyBox returns the sentinel empty box. Enlarging it with any box b
// yields b, so it is the identity element of boxUnion.
func emptyBox() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: math32.Inf(1), Y: math32.Inf(1), Z: math32.Inf(1)},
		Max: ms3.Vec{X: math32.Inf(-1), Y: math32.Inf(-1), Z: math32.Inf(-1)},
	}
}

// boxUnion gives the smallest box containing both a and b.
func boxUnion(a, b ms3.Box) ms3.Box {
	return ms3.Box{
		Min: ms3.MinElem(a.Min, b.Min),
		Max: ms3.MaxElem(a.Max, b.Max),
	}
}

// boxOverlaps reports whether a and b overlap strictly on all three axes.
// Boxes that share a face do not overlap.
func boxOverlaps(a, b ms3.Box) bool {
	return a.Min.X < b.Max.X && a.Max.X > b.Min.X &&
		a.Min.Y < b.Max.Y && a.Max.Y > b.Min.Y &&
		a.Min.Z < b.Max.Z && a.Max.Z > b.Min.Z
}

// boxInside reports whether a lies inside b, boundary included.
func boxInside(a, b ms3.Box) bool {
	return b.Min.X <= a.Min.X && b.Min.Y <= a.Min.Y && b.Min.Z <= a.Min.Z &&
		a.Max.X <= b.Max.X && a.Max.Y <= b.Max.Y && a.Max.Z <= b.Max.Z
}

// boxEncloses reports whether a contains b, boundary included.
func boxEncloses(a, b ms3.Box) bool {
	return boxInside(b, a)
}

// boxArea is the volume of the box, called "area" throughout following
// R-tree literature convention.
func boxArea(b ms3.Box) float32 {
	sz := b.Size()
	return sz.X * sz.Y * sz.Z
}

// boxMargin is the sum of the box edge lengths.
func boxMargin(b ms3.Box) float32 {
	sz := b.Size()
	return sz.X + sz.Y + sz.Z
}

// boxOverlap is the volume of the intersection of a and b,
// zero when they do not strictly overlap.
func boxOverlap(a, b ms3.Box) float32 {
	if !boxOverlaps(a, b) {
		return 0
	}
	return boxArea(ms3.Box{
		Min: ms3.MaxElem(a.Min, b.Min),
		Max: ms3.MinElem(a.Max, b.Max),
	})
}

// boxCenterDist2 is the squared distance between box centers.
func boxCenterDist2(a, b ms3.Box) float32 {
	return ms3.Norm2(ms3.Sub(a.Center(), b.Center()))
}

// boxPointDist2 is the squared distance from p to the closest point of b.
// It is zero for points inside b and for points on its boundary.
func boxPointDist2(b ms3.Box, p ms3.Vec) float32 {
	c := ms3.MaxElem(b.Min, ms3.MinElem(p, b.Max))
	return ms3.Norm2(ms3.Sub(c, p))
}
