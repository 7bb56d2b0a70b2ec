package collision

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/components"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/scene"
)

// coneData holds the topology-derived neighborhood of one element. Geometry is
// evaluated from current positions at query time.
type coneData struct {
	tri       int    // triangle elements: triangle index, -1 if not in the mesh
	opposite  []int  // line elements: opposite vertex of each adjacent triangle
	faces     []int  // adjacent (line) or incident (point) triangles
	neighbors []int  // point elements: other end of each incident edge
	edge      [2]int // line elements: edge vertices
}

type featureCache struct {
	revision uint64
	cones    []coneData
}

// LocalFeatureFilter rejects contact directions that fall outside the
// validity cone of a mesh feature, so one physical contact is not reported
// once per adjacent face. Per-body neighborhoods are built on first use and
// rebuilt when the topology revision changes.
type LocalFeatureFilter struct {
	Tolerance float64

	mu     sync.Mutex
	caches map[scene.Handle]*featureCache
	builds int
}

// NewLocalFeatureFilter creates a filter with the given cone tolerance.
func NewLocalFeatureFilter(tol float64) *LocalFeatureFilter {
	return &LocalFeatureFilter{Tolerance: tol, caches: make(map[scene.Handle]*featureCache)}
}

// Builds returns how many body caches were (re)built, for diagnostics.
func (f *LocalFeatureFilter) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

// Forget drops the cache of a removed body.
func (f *LocalFeatureFilter) Forget(h scene.Handle) {
	f.mu.Lock()
	delete(f.caches, h)
	f.mu.Unlock()
}

func filtered(b *components.Collision) bool {
	if b.Topology == nil {
		return false
	}
	switch b.Kind {
	case geom.KindPoint, geom.KindLine, geom.KindTriangle:
		return true
	}
	return false
}

// Prepare makes sure the cache for h is current. Must be called before
// concurrent Valid calls on the same body.
func (f *LocalFeatureFilter) Prepare(h scene.Handle, b *components.Collision) {
	if !filtered(b) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.caches[h]
	if ok && c.revision == b.Topology.Revision() && len(c.cones) == len(b.Elements) {
		return
	}
	f.caches[h] = buildCones(b)
	f.builds++
}

func buildCones(b *components.Collision) *featureCache {
	topo := b.Topology
	c := &featureCache{revision: topo.Revision(), cones: make([]coneData, len(b.Elements))}

	switch b.Kind {
	case geom.KindTriangle:
		index := make(map[[3]int]int, len(topo.Triangles))
		for i, t := range topo.Triangles {
			index[sortedTri(t)] = i
		}
		for i, e := range b.Elements {
			ti, ok := index[sortedTri([3]int{e.V[0], e.V[1], e.V[2]})]
			if !ok {
				ti = -1
			}
			c.cones[i] = coneData{tri: ti}
		}
	case geom.KindLine:
		index := make(map[[2]int]int, len(topo.Edges))
		for i, ed := range topo.Edges {
			index[ed] = i
		}
		for i, e := range b.Elements {
			a, bb := e.V[0], e.V[1]
			if a > bb {
				a, bb = bb, a
			}
			cd := coneData{tri: -1, edge: [2]int{a, bb}}
			if ei, ok := index[[2]int{a, bb}]; ok {
				for _, ti := range topo.EdgeTriangles[ei] {
					cd.faces = append(cd.faces, ti)
					cd.opposite = append(cd.opposite, oppositeVertex(topo.Triangles[ti], a, bb))
				}
			}
			c.cones[i] = cd
		}
	case geom.KindPoint:
		for i, e := range b.Elements {
			v := e.V[0]
			cd := coneData{tri: -1}
			if v < topo.NumVertices {
				for _, ei := range topo.VertexEdges[v] {
					ed := topo.Edges[ei]
					other := ed[0]
					if other == v {
						other = ed[1]
					}
					cd.neighbors = append(cd.neighbors, other)
				}
				cd.faces = append(cd.faces, topo.VertexTriangles[v]...)
			}
			c.cones[i] = cd
		}
	}
	return c
}

func sortedTri(t [3]int) [3]int {
	if t[0] > t[1] {
		t[0], t[1] = t[1], t[0]
	}
	if t[1] > t[2] {
		t[1], t[2] = t[2], t[1]
	}
	if t[0] > t[1] {
		t[0], t[1] = t[1], t[0]
	}
	return t
}

func oppositeVertex(t [3]int, a, b int) int {
	for _, v := range t {
		if v != a && v != b {
			return v
		}
	}
	return t[0]
}

// Valid reports whether dir, pointing from element elem of body b towards
// the other body, lies inside the element's validity cone. Bodies without
// mesh topology accept every direction.
func (f *LocalFeatureFilter) Valid(h scene.Handle, b *components.Collision, elem int, dir mgl64.Vec3) bool {
	if !filtered(b) {
		return true
	}
	f.mu.Lock()
	c := f.caches[h]
	f.mu.Unlock()
	if c == nil || elem >= len(c.cones) {
		return true
	}
	cd := &c.cones[elem]
	topo := b.Topology
	x := b.Verts
	tol := f.Tolerance

	faceNormal := func(ti int) mgl64.Vec3 {
		t := topo.Triangles[ti]
		return geom.TriangleNormal(x[t[0]], x[t[1]], x[t[2]])
	}

	switch b.Kind {
	case geom.KindTriangle:
		if cd.tri < 0 {
			return true
		}
		// only interior projections: edge and vertex regions belong to the
		// line and point models
		return dir.Dot(faceNormal(cd.tri)) >= 1-tol

	case geom.KindLine:
		if len(cd.faces) == 0 {
			return true
		}
		a, e := x[cd.edge[0]], x[cd.edge[1]]
		axis, ok := geom.SafeNormalize(e.Sub(a))
		if !ok {
			return true
		}
		var sum mgl64.Vec3
		for k, ti := range cd.faces {
			// in-plane direction from the edge into the adjacent face
			o := x[cd.opposite[k]].Sub(a)
			inward, ok := geom.SafeNormalize(o.Sub(axis.Mul(o.Dot(axis))))
			if ok && dir.Dot(inward) > tol {
				return false
			}
			sum = sum.Add(faceNormal(ti))
		}
		if len(cd.faces) > 1 && dir.Dot(sum) < -tol {
			return false
		}
		return true

	case geom.KindPoint:
		v := x[b.Elements[elem].V[0]]
		for _, u := range cd.neighbors {
			e, ok := geom.SafeNormalize(x[u].Sub(v))
			if ok && dir.Dot(e) > tol {
				return false
			}
		}
		if len(cd.faces) > 0 {
			var avg mgl64.Vec3
			for _, ti := range cd.faces {
				avg = avg.Add(faceNormal(ti))
			}
			if dir.Dot(avg) < -tol {
				return false
			}
		}
		return true
	}
	return true
}
