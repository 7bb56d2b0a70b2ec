package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon is the length below which a direction is considered degenerate.
const Epsilon = 1e-12

// ClosestOnSegment returns the point of segment a-b closest to p and its
// parameter t in [0,1] (q = a + t(b-a)).
func ClosestOnSegment(p, a, b mgl64.Vec3) (mgl64.Vec3, float64) {
	ab := b.Sub(a)
	denom := ab.Dot(ab)
	if denom < Epsilon {
		return a, 0
	}
	t := clamp01(p.Sub(a).Dot(ab) / denom)
	return a.Add(ab.Mul(t)), t
}

// Bary is a barycentric coordinate triple on a triangle.
type Bary [3]float64

// ClosestOnTriangle returns the point of triangle abc closest to p together with
// its barycentric coordinates. Voronoi-region walk from Ericson, Real-Time
// Collision Detection 5.1.5.
func ClosestOnTriangle(p, a, b, c mgl64.Vec3) (mgl64.Vec3, Bary) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, Bary{1, 0, 0}
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, Bary{0, 1, 0}
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Mul(v)), Bary{1 - v, v, 0}
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, Bary{0, 0, 1}
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Mul(w)), Bary{1 - w, 0, w}
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(w)), Bary{0, 1 - w, w}
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(w)), Bary{1 - v - w, v, w}
}

// ClosestBetweenSegments returns the closest points of segments p1-q1 and p2-q2
// and their parameters s and t.
func ClosestBetweenSegments(p1, q1, p2, q2 mgl64.Vec3) (c1, c2 mgl64.Vec3, s, t float64) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	switch {
	case a < Epsilon && e < Epsilon:
		return p1, p2, 0, 0
	case a < Epsilon:
		t = clamp01(f / e)
	default:
		c := d1.Dot(r)
		if e < Epsilon {
			s = clamp01(-c / a)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom > Epsilon {
				s = clamp01((b*f - c*e) / denom)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((b - c) / a)
			}
		}
	}
	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t)), s, t
}

// ClosestOnOBB returns the point of an oriented box closest to p. The box is
// centered at c with rotation q and half extents h. The second result reports
// whether p lies inside the box.
func ClosestOnOBB(p, c mgl64.Vec3, q mgl64.Quat, h mgl64.Vec3) (mgl64.Vec3, bool) {
	local := q.Inverse().Rotate(p.Sub(c))
	inside := true
	var clamped mgl64.Vec3
	for i := 0; i < 3; i++ {
		v := local[i]
		if v < -h[i] {
			v = -h[i]
			inside = false
		} else if v > h[i] {
			v = h[i]
			inside = false
		}
		clamped[i] = v
	}
	if inside {
		// Project onto the nearest face so the contact has a usable normal.
		axis := 0
		best := math.Inf(1)
		for i := 0; i < 3; i++ {
			if d := h[i] - math.Abs(local[i]); d < best {
				best = d
				axis = i
			}
		}
		if local[axis] >= 0 {
			clamped[axis] = h[axis]
		} else {
			clamped[axis] = -h[axis]
		}
	}
	return c.Add(q.Rotate(clamped)), inside
}

// SafeNormalize returns v/|v| and true, or the zero vector and false when v is
// shorter than Epsilon.
func SafeNormalize(v mgl64.Vec3) (mgl64.Vec3, bool) {
	l := v.Len()
	if l < Epsilon {
		return mgl64.Vec3{}, false
	}
	return v.Mul(1 / l), true
}

// TriangleNormal returns the unit normal of abc (right-handed winding).
func TriangleNormal(a, b, c mgl64.Vec3) mgl64.Vec3 {
	n, _ := SafeNormalize(b.Sub(a).Cross(c.Sub(a)))
	return n
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
