package geom

import "github.com/go-gl/mathgl/mgl64"

// Element is one geometric primitive of a collision body. Vertex indices refer to
// the body's vertex array (particle nodes, or rest vertices of a rigid frame).
//
//	point    V[0]
//	line     V[0], V[1]
//	triangle V[0], V[1], V[2]
//	sphere   center V[0], Radius
//	capsule  axis V[0]-V[1], Radius
//	obb      center V[0], Extents (axes follow the body frame)
//	sdf      origin V[0], distance field in the body frame
type Element struct {
	V       [3]int
	Radius  float64
	Extents mgl64.Vec3

	// Ancestor is the index of the element this one was generated from by
	// subdivision, or -1. Sub distinguishes siblings of the same ancestor.
	Ancestor int
	Sub      int
}

// NewPoint returns a point element on vertex v.
func NewPoint(v int) Element { return Element{V: [3]int{v, -1, -1}, Ancestor: -1} }

// NewLine returns a line element between two vertices.
func NewLine(a, b int) Element { return Element{V: [3]int{a, b, -1}, Ancestor: -1} }

// NewTriangle returns a triangle element.
func NewTriangle(a, b, c int) Element { return Element{V: [3]int{a, b, c}, Ancestor: -1} }

// NewSphere returns a sphere centered on vertex v.
func NewSphere(v int, r float64) Element {
	return Element{V: [3]int{v, -1, -1}, Radius: r, Ancestor: -1}
}

// NewCapsule returns a capsule around the segment a-b.
func NewCapsule(a, b int, r float64) Element {
	return Element{V: [3]int{a, b, -1}, Radius: r, Ancestor: -1}
}

// NewOBB returns an oriented box centered on vertex v.
func NewOBB(v int, halfExtents mgl64.Vec3) Element {
	return Element{V: [3]int{v, -1, -1}, Extents: halfExtents, Ancestor: -1}
}

// NewSDF returns a distance-field element anchored on vertex v.
func NewSDF(v int) Element { return Element{V: [3]int{v, -1, -1}, Ancestor: -1} }

// VertexCount returns how many vertex slots the kind uses.
func (k Kind) VertexCount() int {
	switch k {
	case KindLine, KindCapsule:
		return 2
	case KindTriangle:
		return 3
	default:
		return 1
	}
}

// Identity returns the (index, sub) pair used for contact identity.
// Subdivided elements identify through their ancestor so that regenerating
// the subdivision does not change contact ids.
func (e Element) Identity(index int) (int, int) {
	if e.Ancestor >= 0 {
		return e.Ancestor, e.Sub + 1
	}
	return index, 0
}

// SubdivideTriangles samples each triangle into points at barycentric lattice
// positions of the given level. It returns the new vertices (appended after
// base) and point elements carrying the triangle as ancestor.
func SubdivideTriangles(verts []mgl64.Vec3, tris []Element, level int) ([]mgl64.Vec3, []Element) {
	if level < 1 {
		level = 1
	}
	out := make([]mgl64.Vec3, 0, len(tris)*3)
	elems := make([]Element, 0, len(tris)*3)
	base := len(verts)
	for ti, t := range tris {
		a, b, c := verts[t.V[0]], verts[t.V[1]], verts[t.V[2]]
		sub := 0
		for i := 1; i < level+1; i++ {
			for j := 1; i+j < level+1; j++ {
				u := float64(i) / float64(level+1)
				v := float64(j) / float64(level+1)
				p := a.Mul(1 - u - v).Add(b.Mul(u)).Add(c.Mul(v))
				out = append(out, p)
				e := NewPoint(base + len(out) - 1)
				e.Ancestor = ti
				e.Sub = sub
				elems = append(elems, e)
				sub++
			}
		}
	}
	return out, elems
}
