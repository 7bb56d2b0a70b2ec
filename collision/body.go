// Package collision finds proximities between collision bodies: bounding tree
// updates, broad phases, the narrow phase intersector table and the local
// feature filter for meshes.
package collision

import (
	"math"
	"slices"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/components"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
	"github.com/pthm-cable/freemotion/scene"
	"github.com/pthm-cable/freemotion/scheduler"
)

// TreeParams controls bounding tree updates.
type TreeParams struct {
	Depth      int
	Continuous bool
	DT         float64
}

// UpdateBody refreshes the body's vertex snapshot, element boxes and tree
// from the owner's current positions. It writes only to the body.
func UpdateBody(body *components.Collision, owner *components.Mechanical, p TreeParams) {
	s := owner.Object.State
	body.Verts = s.Vertices(mechanics.Position, body.Verts)
	frame := frameOf(s, mechanics.Position)

	if cap(body.Boxes) < len(body.Elements) {
		body.Boxes = make([]geom.AABB, len(body.Elements))
	}
	body.Boxes = body.Boxes[:len(body.Elements)]
	for i, e := range body.Elements {
		sh := shapeOf(body, e, frame)
		box := sh.bounds()
		if p.Continuous && owner.Simulated {
			moved := sh
			for k := 0; k < body.Kind.VertexCount(); k++ {
				v := s.VertexVelocity(mechanics.Velocity, e.V[k])
				moved.p[k] = sh.p[k].Add(v.Mul(p.DT))
			}
			box = box.Union(moved.bounds())
		}
		body.Boxes[i] = box
	}
	body.Tree.Rebuild(body.Boxes, p.Depth)
}

// ElementPositions returns the current vertex positions of element i.
func ElementPositions(body *components.Collision, i int) [3]mgl64.Vec3 {
	var out [3]mgl64.Vec3
	e := body.Elements[i]
	for k := 0; k < body.Kind.VertexCount(); k++ {
		out[k] = body.Verts[e.V[k]]
	}
	return out
}

// frameOf returns the orientation applied to obb and sdf elements.
func frameOf(s *mechanics.State, id mechanics.VecID) mgl64.Quat {
	if s.Kind == mechanics.Rigid {
		if id == mechanics.FreePosition {
			return s.QFree[0]
		}
		return s.Q[0]
	}
	return mgl64.QuatIdent()
}

// shape is one element instantiated at current positions.
type shape struct {
	kind  geom.Kind
	p     [3]mgl64.Vec3
	r     float64
	ext   mgl64.Vec3
	q     mgl64.Quat
	field sdf.SDF3
}

func shapeOf(body *components.Collision, e geom.Element, q mgl64.Quat) shape {
	sh := shape{kind: body.Kind, r: e.Radius, ext: e.Extents, q: q, field: body.SDF}
	for k := 0; k < body.Kind.VertexCount(); k++ {
		sh.p[k] = body.Verts[e.V[k]]
	}
	return sh
}

func (sh shape) bounds() geom.AABB {
	box := geom.EmptyAABB()
	switch sh.kind {
	case geom.KindPoint, geom.KindLine, geom.KindTriangle:
		for k := 0; k < sh.kind.VertexCount(); k++ {
			box = box.Extend(sh.p[k])
		}
	case geom.KindSphere:
		box = geom.PointAABB(sh.p[0]).Inflate(sh.r)
	case geom.KindCapsule:
		box = geom.PointAABB(sh.p[0]).Extend(sh.p[1]).Inflate(sh.r)
	case geom.KindOBB:
		var half mgl64.Vec3
		for i := 0; i < 3; i++ {
			var axis mgl64.Vec3
			axis[i] = 1
			a := sh.q.Rotate(axis).Mul(sh.ext[i])
			for d := 0; d < 3; d++ {
				half[d] += math.Abs(a[d])
			}
		}
		box = geom.AABB{Min: sh.p[0].Sub(half), Max: sh.p[0].Add(half)}
	case geom.KindSDF:
		bb := sh.field.BoundingBox()
		for _, c := range [8]v3.Vec{
			{X: bb.Min.X, Y: bb.Min.Y, Z: bb.Min.Z}, {X: bb.Max.X, Y: bb.Min.Y, Z: bb.Min.Z},
			{X: bb.Min.X, Y: bb.Max.Y, Z: bb.Min.Z}, {X: bb.Max.X, Y: bb.Max.Y, Z: bb.Min.Z},
			{X: bb.Min.X, Y: bb.Min.Y, Z: bb.Max.Z}, {X: bb.Max.X, Y: bb.Min.Y, Z: bb.Max.Z},
			{X: bb.Min.X, Y: bb.Max.Y, Z: bb.Max.Z}, {X: bb.Max.X, Y: bb.Max.Y, Z: bb.Max.Z},
		} {
			box = box.Extend(sh.p[0].Add(sh.q.Rotate(mgl64.Vec3{c.X, c.Y, c.Z})))
		}
	}
	return box
}

// UpdateBodies refreshes every active body, split across the scheduler when
// one is given. Each body writes only its own tree.
func UpdateBodies(sc *scene.Scene, sched *scheduler.TaskScheduler, p TreeParams) {
	handles := slices.Collect(sc.ActiveBodies())
	update := func(start, end int) {
		for _, h := range handles[start:end] {
			b := sc.MustBody(h)
			owner, err := sc.Object(b.Owner)
			if err != nil {
				continue
			}
			UpdateBody(b, owner, p)
		}
	}
	if sched == nil {
		update(0, len(handles))
		return
	}
	sched.ParallelFor(len(handles), update)
}
