package meshq

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// triangleMesh is the single-triangle mesh the original query scenarios
// are written against.
func triangleMesh() Mesh {
	return Mesh{
		Vertices: []ms3.Vec{vec(1, 0, 0), vec(0, 1, 0), vec(-1, 0, 0)},
		Indices:  []int32{0, 1, 2},
	}
}

func TestClosestPointScenarios(t *testing.T) {
	index, err := NewIndex(triangleMesh())
	if err != nil {
		t.Fatal(err)
	}
	inf := math32.Inf(1)
	for _, tc := range []struct {
		name    string
		q       ms3.Vec
		maxDist float32
		found   bool
		want    ms3.Vec
	}{
		{name: "coplanar interior", q: vec(0, 0.5, 0), maxDist: inf, found: true, want: vec(0, 0.5, 0)},
		{name: "on edge", q: vec(0, 0, 0), maxDist: inf, found: true, want: vec(0, 0, 0)},
		{name: "on vertex", q: vec(1, 0, 0), maxDist: inf, found: true, want: vec(1, 0, 0)},
		{name: "out of range", q: vec(2, 0, 0), maxDist: 0.5, found: false},
		{name: "project onto face", q: vec(0, 0.5, 1), maxDist: inf, found: true, want: vec(0, 0.5, 0)},
		{name: "project onto edge", q: vec(0, -1, 1), maxDist: inf, found: true, want: vec(0, 0, 0)},
		{name: "project onto vertex", q: vec(1, -1, 1), maxDist: inf, found: true, want: vec(1, 0, 0)},
		{name: "projection out of range", q: vec(1, -1, 1), maxDist: 0.5, found: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, ok, err := index.ClosestPoint(tc.q, tc.maxDist)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tc.found {
				t.Fatalf("found=%v, want %v", ok, tc.found)
			}
			if ok && !nearVec(p, tc.want) {
				t.Fatalf("closest=%+v, want %+v", p, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		m    Mesh
		want error
	}{
		{name: "valid", m: triangleMesh()},
		{
			name: "index count",
			m:    Mesh{Vertices: []ms3.Vec{{}, {}}, Indices: []int32{0, 1}},
			want: ErrBadIndexCount,
		},
		{
			name: "index out of range",
			m:    Mesh{Vertices: []ms3.Vec{{}, {}}, Indices: []int32{0, 1, 2}},
			want: ErrIndexRange,
		},
		{
			name: "negative index",
			m:    Mesh{Vertices: []ms3.Vec{{}, {}}, Indices: []int32{0, 1, -1}},
			want: ErrIndexRange,
		},
		{
			name: "non-finite vertex",
			m: Mesh{
				Vertices: []ms3.Vec{{}, {}, {X: math32.Inf(1)}},
				Indices:  []int32{0, 1, 2},
			},
			want: ErrBadVertex,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate()=%v, want %v", err, tc.want)
			}
			if _, berr := NewIndex(tc.m); !errors.Is(berr, tc.want) {
				t.Fatalf("NewIndex err=%v, want %v", berr, tc.want)
			}
		})
	}
}

func TestBadQuery(t *testing.T) {
	index, err := NewIndex(triangleMesh())
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		name    string
		q       ms3.Vec
		maxDist float32
	}{
		{name: "negative radius", q: vec(0, 0, 0), maxDist: -1},
		{name: "nan radius", q: vec(0, 0, 0), maxDist: math32.NaN()},
		{name: "nan point", q: vec(math32.NaN(), 0, 0), maxDist: 1},
		{name: "inf point", q: vec(0, math32.Inf(-1), 0), maxDist: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := index.ClosestPoint(tc.q, tc.maxDist); !errors.Is(err, ErrBadQuery) {
				t.Fatalf("err=%v, want ErrBadQuery", err)
			}
			if err := index.SearchRadius(tc.q, tc.maxDist, func(ms3.Triangle) bool { return true }); !errors.Is(err, ErrBadQuery) {
				t.Fatalf("SearchRadius err=%v, want ErrBadQuery", err)
			}
		})
	}
}

func TestEmptyMesh(t *testing.T) {
	index, err := NewIndex(Mesh{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := index.ClosestPoint(vec(0, 0, 0), math32.Inf(1)); err != nil || ok {
		t.Fatalf("empty mesh query: ok=%v err=%v", ok, err)
	}
	if index.Triangles() != 0 {
		t.Fatalf("Triangles()=%d, want 0", index.Triangles())
	}
}

// randSoup builds a random triangle soup of n triangles centered in
// [-1,1]^3, each vertex within 0.15 of its center on every axis.
func randSoup(rng *rand.Rand, n int) Mesh {
	m := Mesh{
		Vertices: make([]ms3.Vec, 0, 3*n),
		Indices:  make([]int32, 0, 3*n),
	}
	for i := 0; i < n; i++ {
		c := ms3.Vec{
			X: 2*rng.Float32() - 1,
			Y: 2*rng.Float32() - 1,
			Z: 2*rng.Float32() - 1,
		}
		for j := 0; j < 3; j++ {
			v := ms3.Add(c, ms3.Vec{
				X: 0.3*rng.Float32() - 0.15,
				Y: 0.3*rng.Float32() - 0.15,
				Z: 0.3*rng.Float32() - 0.15,
			})
			m.Indices = append(m.Indices, int32(len(m.Vertices)))
			m.Vertices = append(m.Vertices, v)
		}
	}
	return m
}

// bruteClosest scans every triangle of the mesh.
func bruteClosest(m Mesh, q ms3.Vec, maxDist float32) (ms3.Vec, bool) {
	var best ms3.Vec
	best2 := math32.Inf(1)
	for i := 0; i < m.NumTriangles(); i++ {
		best2 = updateClosest(q, m.Triangle(i), best2, &best)
	}
	if math32.IsInf(best2, 1) || best2 > maxDist*maxDist {
		return ms3.Vec{}, false
	}
	return best, true
}

func TestClosestPointMatchesBruteForce(t *testing.T) {
	const tol = 1e-5 // of the unit-ish model scale
	rng := rand.New(rand.NewSource(41))
	for _, tc := range []struct {
		triangles int
		maxNode   int
	}{
		{triangles: 50, maxNode: 4},
		{triangles: 400, maxNode: 8},
		{triangles: 900, maxNode: 64},
	} {
		m := randSoup(rng, tc.triangles)
		index, err := NewIndexDegree(m, tc.maxNode)
		if err != nil {
			t.Fatal(err)
		}
		for trial := 0; trial < 200; trial++ {
			q := ms3.Vec{
				X: 4*rng.Float32() - 2,
				Y: 4*rng.Float32() - 2,
				Z: 4*rng.Float32() - 2,
			}
			radius := 2 * rng.Float32()
			wantP, wantOK := bruteClosest(m, q, radius)
			p, ok, err := index.ClosestPoint(q, radius)
			if err != nil {
				t.Fatal(err)
			}
			if ok != wantOK {
				t.Fatalf("trial %d: found=%v, brute force says %v", trial, ok, wantOK)
			}
			if !ok {
				continue
			}
			got := ms3.Norm(ms3.Sub(p, q))
			want := ms3.Norm(ms3.Sub(wantP, q))
			if math32.Abs(got-want) > tol {
				t.Fatalf("trial %d: |p-q|=%v, brute force %v", trial, got, want)
			}
			if got > radius+tol {
				t.Fatalf("trial %d: returned point at %v beyond radius %v", trial, got, radius)
			}
		}
	}
}

func TestIdentityOnSurface(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	m := randSoup(rng, 300)
	index, err := NewIndexDegree(m, 8)
	if err != nil {
		t.Fatal(err)
	}
	for trial := 0; trial < 100; trial++ {
		tri := m.Triangle(rng.Intn(m.NumTriangles()))
		// Random barycentric point on the triangle.
		u := rng.Float32()
		v := (1 - u) * rng.Float32()
		q := ms3.Add(ms3.Add(
			ms3.Scale(1-u-v, tri[0]),
			ms3.Scale(u, tri[1])),
			ms3.Scale(v, tri[2]))
		p, ok, err := index.ClosestPoint(q, math32.Inf(1))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("trial %d: no point found for on-surface query", trial)
		}
		if d := ms3.Norm(ms3.Sub(p, q)); d > 1e-5 {
			t.Fatalf("trial %d: on-surface query returned point %v away", trial, d)
		}
	}
}

func TestRadiusMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	m := randSoup(rng, 200)
	index, err := NewIndexDegree(m, 8)
	if err != nil {
		t.Fatal(err)
	}
	for trial := 0; trial < 100; trial++ {
		q := ms3.Vec{
			X: 4*rng.Float32() - 2,
			Y: 4*rng.Float32() - 2,
			Z: 4*rng.Float32() - 2,
		}
		r1 := 2 * rng.Float32()
		r2 := r1 + rng.Float32()
		p1, ok1, err := index.ClosestPoint(q, r1)
		if err != nil {
			t.Fatal(err)
		}
		p2, ok2, err := index.ClosestPoint(q, r2)
		if err != nil {
			t.Fatal(err)
		}
		if ok1 {
			if !ok2 {
				t.Fatalf("trial %d: found at r=%v but not at r=%v", trial, r1, r2)
			}
			d1 := ms3.Norm(ms3.Sub(p1, q))
			d2 := ms3.Norm(ms3.Sub(p2, q))
			if d2 > d1+1e-5 {
				t.Fatalf("trial %d: distance grew from %v to %v with larger radius", trial, d1, d2)
			}
			if d1 > r1+1e-5 {
				t.Fatalf("trial %d: point at %v beyond radius %v", trial, d1, r1)
			}
		}
	}
}

func TestSearchRadiusEnumerates(t *testing.T) {
	m := triangleMesh()
	index, err := NewIndex(m)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	err = index.SearchRadius(vec(0, 0, 2), 5, func(tri ms3.Triangle) bool {
		calls++
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("callback ran %d times, want 1", calls)
	}
	calls = 0
	if err = index.SearchRadius(vec(0, 0, 2), 1, func(tri ms3.Triangle) bool {
		calls++
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("callback ran %d times for out-of-range sphere", calls)
	}
}

func TestConcurrentQueries(t *testing.T) {
	rng := rand.New(rand.NewSource(61))
	m := randSoup(rng, 500)
	index, err := NewIndex(m)
	if err != nil {
		t.Fatal(err)
	}
	queries := make([]ms3.Vec, 256)
	for i := range queries {
		queries[i] = ms3.Vec{
			X: 2*rng.Float32() - 1,
			Y: 2*rng.Float32() - 1,
			Z: 2*rng.Float32() - 1,
		}
	}
	want := make([]ms3.Vec, len(queries))
	for i, q := range queries {
		p, _, err := index.ClosestPoint(q, math32.Inf(1))
		if err != nil {
			t.Fatal(err)
		}
		want[i] = p
	}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, q := range queries {
				p, _, err := index.ClosestPoint(q, math32.Inf(1))
				if err != nil {
					t.Error(err)
					return
				}
				if p != want[i] {
					t.Errorf("concurrent query %d: %+v != %+v", i, p, want[i])
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkClosestPoint(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	m := randSoup(rng, 10000)
	index, err := NewIndex(m)
	if err != nil {
		b.Fatal(err)
	}
	queries := make([]ms3.Vec, 1024)
	for i := range queries {
		queries[i] = ms3.Scale(1.5, ms3.Vec{
			X: 2*rng.Float32() - 1,
			Y: 2*rng.Float32() - 1,
			Z: 2*rng.Float32() - 1,
		})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		index.ClosestPoint(queries[i%len(queries)], 0.5)
	}
}

func BenchmarkNewIndex(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	m := randSoup(rng, 10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NewIndex(m); err != nil {
			b.Fatal(err)
		}
	}
}
