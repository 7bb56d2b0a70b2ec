package collision

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/geom"
)

// hit is the raw result of one element test. Normal points from a to b and
// Distance is signed (negative when penetrating).
type hit struct {
	pa, pb   mgl64.Vec3
	normal   mgl64.Vec3
	distance float64
	la, lb   geom.Bary

	// degenerate is set when no direction could be derived.
	degenerate bool
}

func (h hit) swapped() hit {
	return hit{
		pa: h.pb, pb: h.pa,
		normal:     h.normal.Mul(-1),
		distance:   h.distance,
		la:         h.lb,
		lb:         h.la,
		degenerate: h.degenerate,
	}
}

// intersector tests two elements whose kinds match its table key, in key
// order. It reports false when the pair is farther than alarm or cannot be
// resolved (penetration deeper than alarm on one-sided features).
type intersector func(a, b *shape, alarm float64) (hit, bool)

// IntersectorTable maps normalized element kind pairs to tests.
type IntersectorTable struct {
	fns map[geom.KindPair]intersector
}

// DefaultIntersectors returns the table of supported kind pairs.
func DefaultIntersectors() *IntersectorTable {
	t := &IntersectorTable{fns: make(map[geom.KindPair]intersector)}
	t.set(geom.KindPoint, geom.KindPoint, pointPoint)
	t.set(geom.KindPoint, geom.KindLine, pointLine)
	t.set(geom.KindPoint, geom.KindTriangle, pointTriangle)
	t.set(geom.KindLine, geom.KindLine, lineLine)
	t.set(geom.KindSphere, geom.KindSphere, sphereSphere)
	t.set(geom.KindPoint, geom.KindSphere, pointSphere)
	t.set(geom.KindLine, geom.KindSphere, lineSphere)
	t.set(geom.KindTriangle, geom.KindSphere, triangleSphere)
	t.set(geom.KindCapsule, geom.KindCapsule, capsuleCapsule)
	t.set(geom.KindSphere, geom.KindCapsule, sphereCapsule)
	t.set(geom.KindPoint, geom.KindCapsule, pointCapsule)
	t.set(geom.KindSphere, geom.KindOBB, sphereOBB)
	t.set(geom.KindPoint, geom.KindOBB, pointOBB)
	t.set(geom.KindPoint, geom.KindSDF, pointSDF)
	t.set(geom.KindSphere, geom.KindSDF, sphereSDF)
	return t
}

func (t *IntersectorTable) set(a, b geom.Kind, fn intersector) {
	key, _ := geom.KindPair{A: a, B: b}.Normalized()
	t.fns[key] = fn
}

// Supports reports whether a test exists for the two kinds, in either order.
func (t *IntersectorTable) Supports(a, b geom.Kind) bool {
	key, _ := geom.KindPair{A: a, B: b}.Normalized()
	_, ok := t.fns[key]
	return ok
}

// test runs the registered test, swapping arguments as needed so the result
// is expressed from a to b.
func (t *IntersectorTable) test(a, b *shape, alarm float64) (hit, bool) {
	key, swap := geom.KindPair{A: a.kind, B: b.kind}.Normalized()
	fn, ok := t.fns[key]
	if !ok {
		return hit{}, false
	}
	if swap {
		h, ok := fn(b, a, alarm)
		return h.swapped(), ok
	}
	return fn(a, b, alarm)
}

// direction returns the unit vector from p to q and the distance, flagging
// coincident points.
func direction(p, q mgl64.Vec3) (mgl64.Vec3, float64, bool) {
	d := q.Sub(p)
	l := d.Len()
	n, ok := geom.SafeNormalize(d)
	return n, l, !ok
}

func onPoint() geom.Bary { return geom.Bary{1, 0, 0} }

func onSegment(t float64) geom.Bary { return geom.Bary{1 - t, t, 0} }

func pointPoint(a, b *shape, alarm float64) (hit, bool) {
	n, d, deg := direction(a.p[0], b.p[0])
	if d >= alarm {
		return hit{}, false
	}
	return hit{pa: a.p[0], pb: b.p[0], normal: n, distance: d, la: onPoint(), lb: onPoint(), degenerate: deg}, true
}

func pointLine(a, b *shape, alarm float64) (hit, bool) {
	q, t := geom.ClosestOnSegment(a.p[0], b.p[0], b.p[1])
	n, d, deg := direction(a.p[0], q)
	if d >= alarm {
		return hit{}, false
	}
	return hit{pa: a.p[0], pb: q, normal: n, distance: d, la: onPoint(), lb: onSegment(t), degenerate: deg}, true
}

// triangleSide resolves the contact of point p against triangle abc. Interior
// projections are one-sided: the distance is signed along the face normal so
// shallow penetrations still push back out. Edge and vertex regions use the
// unsigned closest-point direction.
func triangleSide(p, a, b, c mgl64.Vec3, alarm float64) (q mgl64.Vec3, bary geom.Bary, out mgl64.Vec3, d float64, deg, ok bool) {
	q, bary = geom.ClosestOnTriangle(p, a, b, c)
	interior := bary[0] > 0 && bary[1] > 0 && bary[2] > 0
	tn := geom.TriangleNormal(a, b, c)
	if interior && tn != (mgl64.Vec3{}) {
		d = p.Sub(q).Dot(tn)
		if d <= -alarm || d >= alarm {
			return q, bary, tn, d, false, false
		}
		return q, bary, tn, d, false, true
	}
	dir, l, degenerate := direction(q, p)
	if l >= alarm {
		return q, bary, dir, l, degenerate, false
	}
	return q, bary, dir, l, degenerate, true
}

func pointTriangle(a, b *shape, alarm float64) (hit, bool) {
	q, bary, out, d, deg, ok := triangleSide(a.p[0], b.p[0], b.p[1], b.p[2], alarm)
	if !ok {
		return hit{}, false
	}
	return hit{pa: a.p[0], pb: q, normal: out.Mul(-1), distance: d, la: onPoint(), lb: bary, degenerate: deg}, true
}

func lineLine(a, b *shape, alarm float64) (hit, bool) {
	c1, c2, s, t := geom.ClosestBetweenSegments(a.p[0], a.p[1], b.p[0], b.p[1])
	n, d, deg := direction(c1, c2)
	if d >= alarm {
		return hit{}, false
	}
	return hit{pa: c1, pb: c2, normal: n, distance: d, la: onSegment(s), lb: onSegment(t), degenerate: deg}, true
}

// rounded builds the hit between two cores inflated by radii ra and rb.
func rounded(ca, cb mgl64.Vec3, ra, rb, alarm float64, la, lb geom.Bary) (hit, bool) {
	n, l, deg := direction(ca, cb)
	d := l - ra - rb
	if d >= alarm {
		return hit{}, false
	}
	return hit{
		pa: ca.Add(n.Mul(ra)), pb: cb.Sub(n.Mul(rb)),
		normal: n, distance: d, la: la, lb: lb, degenerate: deg,
	}, true
}

func sphereSphere(a, b *shape, alarm float64) (hit, bool) {
	return rounded(a.p[0], b.p[0], a.r, b.r, alarm, onPoint(), onPoint())
}

func pointSphere(a, b *shape, alarm float64) (hit, bool) {
	return rounded(a.p[0], b.p[0], 0, b.r, alarm, onPoint(), onPoint())
}

func lineSphere(a, b *shape, alarm float64) (hit, bool) {
	q, t := geom.ClosestOnSegment(b.p[0], a.p[0], a.p[1])
	return rounded(q, b.p[0], 0, b.r, alarm, onSegment(t), onPoint())
}

func triangleSphere(a, b *shape, alarm float64) (hit, bool) {
	q, bary, out, d, deg, ok := triangleSide(b.p[0], a.p[0], a.p[1], a.p[2], alarm+b.r)
	if !ok {
		return hit{}, false
	}
	d -= b.r
	if d >= alarm {
		return hit{}, false
	}
	return hit{pa: q, pb: b.p[0].Sub(out.Mul(b.r)), normal: out, distance: d, la: bary, lb: onPoint(), degenerate: deg}, true
}

func capsuleCapsule(a, b *shape, alarm float64) (hit, bool) {
	c1, c2, s, t := geom.ClosestBetweenSegments(a.p[0], a.p[1], b.p[0], b.p[1])
	return rounded(c1, c2, a.r, b.r, alarm, onSegment(s), onSegment(t))
}

func sphereCapsule(a, b *shape, alarm float64) (hit, bool) {
	q, t := geom.ClosestOnSegment(a.p[0], b.p[0], b.p[1])
	return rounded(a.p[0], q, a.r, b.r, alarm, onPoint(), onSegment(t))
}

func pointCapsule(a, b *shape, alarm float64) (hit, bool) {
	q, t := geom.ClosestOnSegment(a.p[0], b.p[0], b.p[1])
	return rounded(a.p[0], q, 0, b.r, alarm, onPoint(), onSegment(t))
}

// obbSigned returns the closest surface point of the box, the outward normal
// there and the signed distance of p (negative inside).
func obbSigned(p mgl64.Vec3, box *shape) (mgl64.Vec3, mgl64.Vec3, float64) {
	q, inside := geom.ClosestOnOBB(p, box.p[0], box.q, box.ext)
	if !inside {
		n, l, deg := direction(q, p)
		if !deg {
			return q, n, l
		}
	}
	// inside (or on the surface): use the face normal of the nearest face
	local := box.q.Inverse().Rotate(p.Sub(box.p[0]))
	axis := 0
	best := math.Inf(1)
	for i := 0; i < 3; i++ {
		if d := box.ext[i] - math.Abs(local[i]); d < best {
			best = d
			axis = i
		}
	}
	var face mgl64.Vec3
	face[axis] = 1
	if local[axis] < 0 {
		face[axis] = -1
	}
	return q, box.q.Rotate(face), -best
}

func sphereOBB(a, b *shape, alarm float64) (hit, bool) {
	q, out, sd := obbSigned(a.p[0], b)
	d := sd - a.r
	if d >= alarm {
		return hit{}, false
	}
	n := out.Mul(-1)
	return hit{pa: a.p[0].Add(n.Mul(a.r)), pb: q, normal: n, distance: d, la: onPoint(), lb: onPoint()}, true
}

func pointOBB(a, b *shape, alarm float64) (hit, bool) {
	q, out, sd := obbSigned(a.p[0], b)
	if sd >= alarm {
		return hit{}, false
	}
	return hit{pa: a.p[0], pb: q, normal: out.Mul(-1), distance: sd, la: onPoint(), lb: onPoint()}, true
}

// sdfGradientStep is the central difference step for field normals.
const sdfGradientStep = 1e-5

// sdfSample evaluates the field of body b at world point p, returning the
// distance and the outward world normal.
func sdfSample(p mgl64.Vec3, b *shape) (float64, mgl64.Vec3, bool) {
	inv := b.q.Inverse()
	l := inv.Rotate(p.Sub(b.p[0]))
	at := func(x, y, z float64) float64 {
		return b.field.Evaluate(v3.Vec{X: x, Y: y, Z: z})
	}
	d := at(l[0], l[1], l[2])
	h := sdfGradientStep
	g := mgl64.Vec3{
		at(l[0]+h, l[1], l[2]) - at(l[0]-h, l[1], l[2]),
		at(l[0], l[1]+h, l[2]) - at(l[0], l[1]-h, l[2]),
		at(l[0], l[1], l[2]+h) - at(l[0], l[1], l[2]-h),
	}
	n, ok := geom.SafeNormalize(g)
	if !ok {
		return d, mgl64.Vec3{}, false
	}
	return d, b.q.Rotate(n), true
}

func pointSDF(a, b *shape, alarm float64) (hit, bool) {
	d, out, ok := sdfSample(a.p[0], b)
	if d >= alarm {
		return hit{}, false
	}
	return hit{
		pa: a.p[0], pb: a.p[0].Sub(out.Mul(d)),
		normal: out.Mul(-1), distance: d, la: onPoint(), lb: onPoint(), degenerate: !ok,
	}, true
}

func sphereSDF(a, b *shape, alarm float64) (hit, bool) {
	d, out, ok := sdfSample(a.p[0], b)
	if d-a.r >= alarm {
		return hit{}, false
	}
	return hit{
		pa: a.p[0].Sub(out.Mul(a.r)), pb: a.p[0].Sub(out.Mul(d)),
		normal: out.Mul(-1), distance: d - a.r, la: onPoint(), lb: onPoint(), degenerate: !ok,
	}, true
}
