package geom

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

// Topology holds the connectivity of a triangle mesh: triangles, the unique
// edges between them and the adjacency tables used by feature filtering.
// Every mutation must be followed by Touch so derived caches rebuild.
type Topology struct {
	NumVertices int
	Triangles   [][3]int
	Edges       [][2]int

	// EdgeTriangles lists the triangles sharing each edge (one for a border edge).
	EdgeTriangles [][]int
	// VertexEdges lists the edges incident to each vertex.
	VertexEdges [][]int
	// VertexTriangles lists the triangles incident to each vertex.
	VertexTriangles [][]int
	// TriangleEdges gives the edge index of each triangle side (v0v1, v1v2, v2v0).
	TriangleEdges [][3]int

	revision uint64
}

// NewTopology builds a topology from a triangle list.
func NewTopology(numVertices int, tris [][3]int) *Topology {
	t := &Topology{NumVertices: numVertices, Triangles: slices.Clone(tris)}
	t.rebuild()
	return t
}

// Revision increases every time the topology changes.
func (t *Topology) Revision() uint64 {
	return t.revision
}

// Touch recomputes adjacency and bumps the revision counter.
func (t *Topology) Touch() {
	t.rebuild()
}

// SetTriangles replaces the triangle list and notifies dependents.
func (t *Topology) SetTriangles(numVertices int, tris [][3]int) {
	t.NumVertices = numVertices
	t.Triangles = slices.Clone(tris)
	t.Touch()
}

func (t *Topology) rebuild() {
	type edgeKey struct{ a, b int }
	index := make(map[edgeKey]int, len(t.Triangles)*3/2)

	t.Edges = t.Edges[:0]
	t.EdgeTriangles = t.EdgeTriangles[:0]
	t.TriangleEdges = make([][3]int, len(t.Triangles))
	t.VertexEdges = make([][]int, t.NumVertices)
	t.VertexTriangles = make([][]int, t.NumVertices)

	for ti, tri := range t.Triangles {
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			if a > b {
				a, b = b, a
			}
			key := edgeKey{a, b}
			ei, ok := index[key]
			if !ok {
				ei = len(t.Edges)
				index[key] = ei
				t.Edges = append(t.Edges, [2]int{a, b})
				t.EdgeTriangles = append(t.EdgeTriangles, nil)
				t.VertexEdges[a] = append(t.VertexEdges[a], ei)
				t.VertexEdges[b] = append(t.VertexEdges[b], ei)
			}
			t.EdgeTriangles[ei] = append(t.EdgeTriangles[ei], ti)
			t.TriangleEdges[ti][k] = ei
			t.VertexTriangles[tri[k]] = append(t.VertexTriangles[tri[k]], ti)
		}
	}
	t.revision++
}

// TriangleElements returns triangle elements in topology order.
func (t *Topology) TriangleElements() []Element {
	out := make([]Element, len(t.Triangles))
	for i, tri := range t.Triangles {
		out[i] = NewTriangle(tri[0], tri[1], tri[2])
	}
	return out
}

// EdgeElements returns line elements in edge order.
func (t *Topology) EdgeElements() []Element {
	out := make([]Element, len(t.Edges))
	for i, e := range t.Edges {
		out[i] = NewLine(e[0], e[1])
	}
	return out
}

// PointElements returns one point element per vertex.
func (t *Topology) PointElements() []Element {
	out := make([]Element, t.NumVertices)
	for i := range out {
		out[i] = NewPoint(i)
	}
	return out
}

// GridMesh builds an nx by nz grid of quads in the XZ plane, two triangles per
// quad, with normals pointing up (+Y). Vertices are row-major.
func GridMesh(nx, nz int, spacing float64, origin mgl64.Vec3) ([]mgl64.Vec3, *Topology) {
	verts := make([]mgl64.Vec3, 0, (nx+1)*(nz+1))
	for j := 0; j <= nz; j++ {
		for i := 0; i <= nx; i++ {
			verts = append(verts, origin.Add(mgl64.Vec3{float64(i) * spacing, 0, float64(j) * spacing}))
		}
	}
	tris := make([][3]int, 0, nx*nz*2)
	row := nx + 1
	for j := 0; j < nz; j++ {
		for i := 0; i < nx; i++ {
			v0 := j*row + i
			v1 := v0 + 1
			v2 := v0 + row
			v3 := v2 + 1
			tris = append(tris, [3]int{v0, v2, v1}, [3]int{v1, v2, v3})
		}
	}
	return verts, NewTopology(len(verts), tris)
}

// BoxMesh builds a closed box surface with outward normals, centered at the origin.
func BoxMesh(half mgl64.Vec3) ([]mgl64.Vec3, *Topology) {
	x, y, z := half[0], half[1], half[2]
	verts := []mgl64.Vec3{
		{-x, -y, -z}, {x, -y, -z}, {x, y, -z}, {-x, y, -z},
		{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z},
	}
	tris := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // -z
		{4, 5, 6}, {4, 6, 7}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{3, 7, 6}, {3, 6, 2}, // +y
		{0, 4, 7}, {0, 7, 3}, // -x
		{1, 2, 6}, {1, 6, 5}, // +x
	}
	return verts, NewTopology(len(verts), tris)
}
