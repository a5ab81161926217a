// Package sink holds downstream consumers of polled vector snapshots.
package sink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/srediag/vecshm/pkg/vector"
)

var (
	// ErrVertexCount means a snapshot does not match the mesh's vertex count.
	ErrVertexCount = errors.New("snapshot length does not match vertex count")
	// ErrTriangles means the index buffer is not a list of in-range triples.
	ErrTriangles = errors.New("invalid triangle indices")
)

// Mesh mirrors each snapshot into its vertex positions and recomputes the
// axis-aligned bounds and the vertex normals. Safe for concurrent use.
type Mesh struct {
	mu        sync.RWMutex
	initial   []vector.Record
	vertices  []r3.Vec
	normals   []r3.Vec
	triangles []int
	bounds    r3.Box
	updates   uint64
}

// NewMesh builds a mesh from its initial vertices and a triangle index list.
// triangles may be nil, in which case normals stay zero.
func NewMesh(vertices []vector.Record, triangles []int) (*Mesh, error) {
	if len(triangles)%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices", ErrTriangles, len(triangles))
	}
	for _, idx := range triangles {
		if idx < 0 || idx >= len(vertices) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrTriangles, idx)
		}
	}
	m := &Mesh{
		initial:   append([]vector.Record(nil), vertices...),
		vertices:  make([]r3.Vec, len(vertices)),
		normals:   make([]r3.Vec, len(vertices)),
		triangles: append([]int(nil), triangles...),
	}
	m.apply(vertices)
	return m, nil
}

// Deliver replaces the vertex positions with records.
func (m *Mesh) Deliver(_ context.Context, records []vector.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(records) != len(m.vertices) {
		return fmt.Errorf("%w: got %d, want %d", ErrVertexCount, len(records), len(m.vertices))
	}
	m.apply(records)
	m.updates++
	return nil
}

func (m *Mesh) apply(records []vector.Record) {
	for i, r := range records {
		m.vertices[i] = r3.Vec{X: float64(r.X), Y: float64(r.Y), Z: float64(r.Z)}
	}
	m.bounds = boundsOf(m.vertices)
	computeNormals(m.normals, m.vertices, m.triangles)
}

func boundsOf(vs []r3.Vec) r3.Box {
	if len(vs) == 0 {
		return r3.Box{}
	}
	b := r3.Box{Min: vs[0], Max: vs[0]}
	for _, v := range vs[1:] {
		b.Min = r3.Vec{X: math.Min(b.Min.X, v.X), Y: math.Min(b.Min.Y, v.Y), Z: math.Min(b.Min.Z, v.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, v.X), Y: math.Max(b.Max.Y, v.Y), Z: math.Max(b.Max.Z, v.Z)}
	}
	return b
}

// computeNormals accumulates unnormalised face normals, whose length is
// twice the face area, onto each corner and then normalises.
func computeNormals(dst, vs []r3.Vec, triangles []int) {
	for i := range dst {
		dst[i] = r3.Vec{}
	}
	for t := 0; t+2 < len(triangles); t += 3 {
		a, b, c := triangles[t], triangles[t+1], triangles[t+2]
		face := r3.Cross(r3.Sub(vs[b], vs[a]), r3.Sub(vs[c], vs[a]))
		dst[a] = r3.Add(dst[a], face)
		dst[b] = r3.Add(dst[b], face)
		dst[c] = r3.Add(dst[c], face)
	}
	for i, n := range dst {
		if l := r3.Norm(n); l > 0 {
			dst[i] = r3.Scale(1/l, n)
		}
	}
}

// Vertices returns a copy of the current positions.
func (m *Mesh) Vertices() []r3.Vec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]r3.Vec(nil), m.vertices...)
}

// Normals returns a copy of the current unit normals. Vertices not
// referenced by any non-degenerate triangle have a zero normal.
func (m *Mesh) Normals() []r3.Vec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]r3.Vec(nil), m.normals...)
}

// Bounds returns the axis-aligned bounding box of the current positions.
func (m *Mesh) Bounds() r3.Box {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bounds
}

// Updates returns the number of snapshots applied.
func (m *Mesh) Updates() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}

// InitialRecords returns the vertices the mesh was built with, for seeding
// a read-write region.
func (m *Mesh) InitialRecords() []vector.Record {
	return append([]vector.Record(nil), m.initial...)
}

// Grid returns an n×n planar grid in the XY plane with unit spacing and its
// triangle indices. It is a stand-in mesh when no asset is loaded.
func Grid(n int) ([]vector.Record, []int) {
	if n < 2 {
		return nil, nil
	}
	verts := make([]vector.Record, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			verts = append(verts, vector.Record{X: float32(x), Y: float32(y)})
		}
	}
	tris := make([]int, 0, (n-1)*(n-1)*6)
	for y := 0; y < n-1; y++ {
		for x := 0; x < n-1; x++ {
			i := y*n + x
			tris = append(tris, i, i+1, i+n, i+1, i+n+1, i+n)
		}
	}
	return verts, tris
}
