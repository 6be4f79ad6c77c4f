package meshq

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// updateClosest computes the point on tri closest to q. When its squared
// distance improves on best2 the point is stored in best and the lowered
// squared distance is returned; otherwise best2 comes back unchanged.
// best2 doubles as an early-out: triangles whose plane is already
// further than best2 are rejected before any edge work.
func updateClosest(q ms3.Vec, tri ms3.Triangle, best2 float32, best *ms3.Vec) float32 {
	a, b, c := tri[0], tri[1], tri[2]
	n := ms3.Cross(ms3.Sub(b, a), ms3.Sub(c, a))
	n2 := ms3.Norm2(n)
	if n2 == 0 || math32.IsInf(n2, 1) || math32.IsNaN(n2) {
		// Degenerate triangle: no usable face normal. The face update is
		// skipped but every edge still yields a well-defined candidate; a
		// point triangle contributes its vertex through the zero-length
		// segment case.
		for i := 0; i < 3; i++ {
			e := closestOnSegment(q, tri[i], tri[(i+1)%3])
			if d2 := ms3.Norm2(ms3.Sub(q, e)); d2 < best2 {
				*best = e
				best2 = d2
			}
		}
		return best2
	}
	n = ms3.Scale(1/math32.Sqrt(n2), n)
	proj := ms3.Scale(ms3.Dot(ms3.Sub(a, q), n), n)
	dPlane2 := ms3.Norm2(proj)
	if dPlane2 > best2 {
		return best2
	}
	projected := ms3.Add(q, proj)

	// Classify the projected point against each directed edge in winding
	// order. Inside all three means the face projection itself is closest;
	// otherwise the nearest point lies on one of the outside edges.
	outside := 0
	for i := 0; i < 3; i++ {
		v1, v2 := tri[i], tri[(i+1)%3]
		if ms3.Dot(ms3.Cross(ms3.Sub(v1, projected), ms3.Sub(v2, projected)), n) >= 0 {
			continue
		}
		outside++
		e := closestOnSegment(projected, v1, v2)
		if d2 := ms3.Norm2(ms3.Sub(q, e)); d2 < best2 {
			*best = e
			best2 = d2
		}
		if outside > 1 {
			// A point in the plane is outside at most two of three edges.
			break
		}
	}
	if outside == 0 {
		*best = projected
		best2 = dPlane2
	}
	return best2
}

// closestOnSegment returns the point on segment v1v2 closest to p.
// A zero-length segment yields v1.
func closestOnSegment(p, v1, v2 ms3.Vec) ms3.Vec {
	seg := ms3.Sub(v2, v1)
	l2 := ms3.Norm2(seg)
	if l2 == 0 {
		return v1
	}
	t := math32.Max(0, math32.Min(1, ms3.Dot(seg, ms3.Sub(p, v1))/l2))
	return ms3.Add(v1, ms3.Scale(t, seg))
}
