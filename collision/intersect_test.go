package collision

import (
	"math"
	"testing"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/geom"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func vecNear(a, b mgl64.Vec3) bool { return a.ApproxEqualThreshold(b, 1e-6) }

func point(p mgl64.Vec3) shape {
	return shape{kind: geom.KindPoint, p: [3]mgl64.Vec3{p}, q: mgl64.QuatIdent()}
}

func sphere(p mgl64.Vec3, r float64) shape {
	return shape{kind: geom.KindSphere, p: [3]mgl64.Vec3{p}, r: r, q: mgl64.QuatIdent()}
}

func triangle(a, b, c mgl64.Vec3) shape {
	return shape{kind: geom.KindTriangle, p: [3]mgl64.Vec3{a, b, c}, q: mgl64.QuatIdent()}
}

// floorTri faces +Y.
func floorTri() shape {
	return triangle(mgl64.Vec3{-1, 0, -1}, mgl64.Vec3{0, 0, 2}, mgl64.Vec3{1, 0, -1})
}

func TestIntersect_SphereSphere(t *testing.T) {
	table := DefaultIntersectors()
	a, b := sphere(mgl64.Vec3{0, 0, 0}, 1), sphere(mgl64.Vec3{2.5, 0, 0}, 1)
	h, ok := table.test(&a, &b, 1)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !near(h.distance, 0.5) {
		t.Errorf("distance = %v, want 0.5", h.distance)
	}
	if !vecNear(h.normal, mgl64.Vec3{1, 0, 0}) {
		t.Errorf("normal = %v, want +X", h.normal)
	}
	if !vecNear(h.pa, mgl64.Vec3{1, 0, 0}) || !vecNear(h.pb, mgl64.Vec3{1.5, 0, 0}) {
		t.Errorf("points = %v %v, want surface points", h.pa, h.pb)
	}

	if _, ok := table.test(&a, &b, 0.4); ok {
		t.Error("hit beyond alarm distance")
	}
}

func TestIntersect_PointTriangleSigned(t *testing.T) {
	table := DefaultIntersectors()
	tri := floorTri()
	tests := []struct {
		name string
		y    float64
		want float64
		ok   bool
	}{
		{"above", 0.05, 0.05, true},
		{"below", -0.02, -0.02, true},
		{"far above", 0.5, 0, false},
		{"deep below", -0.5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := point(mgl64.Vec3{0, tt.y, 0})
			h, ok := table.test(&p, &tri, 0.1)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if !near(h.distance, tt.want) {
				t.Errorf("distance = %v, want %v", h.distance, tt.want)
			}
			// from the point towards the triangle: down
			if !vecNear(h.normal, mgl64.Vec3{0, -1, 0}) {
				t.Errorf("normal = %v, want -Y", h.normal)
			}
			sum := h.lb[0] + h.lb[1] + h.lb[2]
			if !near(sum, 1) {
				t.Errorf("barycentric sum = %v, want 1", sum)
			}
		})
	}
}

func TestIntersect_SwappedOrder(t *testing.T) {
	table := DefaultIntersectors()
	tri := floorTri()
	p := point(mgl64.Vec3{0, 0.05, 0})
	h1, ok1 := table.test(&p, &tri, 0.1)
	h2, ok2 := table.test(&tri, &p, 0.1)
	if !ok1 || !ok2 {
		t.Fatal("expected hits in both orders")
	}
	if !vecNear(h1.normal, h2.normal.Mul(-1)) {
		t.Errorf("normals %v and %v are not opposite", h1.normal, h2.normal)
	}
	if !vecNear(h1.pa, h2.pb) || h1.distance != h2.distance {
		t.Errorf("swapped hit mismatch: %+v vs %+v", h1, h2)
	}
}

func TestIntersect_CoincidentPointsDegenerate(t *testing.T) {
	table := DefaultIntersectors()
	a, b := point(mgl64.Vec3{1, 1, 1}), point(mgl64.Vec3{1, 1, 1})
	h, ok := table.test(&a, &b, 0.1)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !h.degenerate {
		t.Error("coincident points not flagged degenerate")
	}
}

func TestIntersect_PointInsideOBB(t *testing.T) {
	table := DefaultIntersectors()
	box := shape{kind: geom.KindOBB, p: [3]mgl64.Vec3{{0, 0, 0}}, ext: mgl64.Vec3{1, 1, 1}, q: mgl64.QuatIdent()}
	p := point(mgl64.Vec3{0, 0.9, 0})
	h, ok := table.test(&p, &box, 0.1)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !near(h.distance, -0.1) {
		t.Errorf("distance = %v, want -0.1", h.distance)
	}
	// towards the box: against its +Y face normal
	if !vecNear(h.normal, mgl64.Vec3{0, -1, 0}) {
		t.Errorf("normal = %v, want -Y", h.normal)
	}
}

func TestIntersect_PointSDF(t *testing.T) {
	field, err := sdf.Box3D(v3.Vec{X: 2, Y: 2, Z: 2}, 0)
	if err != nil {
		t.Fatalf("Box3D: %v", err)
	}
	table := DefaultIntersectors()
	body := shape{kind: geom.KindSDF, p: [3]mgl64.Vec3{{0, 0, 0}}, q: mgl64.QuatIdent(), field: field}
	p := point(mgl64.Vec3{0, 1.02, 0})
	h, ok := table.test(&p, &body, 0.05)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !near(h.distance, 0.02) {
		t.Errorf("distance = %v, want 0.02", h.distance)
	}
	if !vecNear(h.normal, mgl64.Vec3{0, -1, 0}) {
		t.Errorf("normal = %v, want -Y", h.normal)
	}
	if !vecNear(h.pb, mgl64.Vec3{0, 1, 0}) {
		t.Errorf("surface point = %v, want (0,1,0)", h.pb)
	}
}

func TestIntersect_CapsuleCapsuleCrossing(t *testing.T) {
	table := DefaultIntersectors()
	a := shape{kind: geom.KindCapsule, p: [3]mgl64.Vec3{{-1, 0, 0}, {1, 0, 0}}, r: 0.1, q: mgl64.QuatIdent()}
	b := shape{kind: geom.KindCapsule, p: [3]mgl64.Vec3{{0, 0.3, -1}, {0, 0.3, 1}}, r: 0.1, q: mgl64.QuatIdent()}
	h, ok := table.test(&a, &b, 0.2)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !near(h.distance, 0.1) {
		t.Errorf("distance = %v, want 0.1", h.distance)
	}
	if !near(h.la[1], 0.5) || !near(h.lb[1], 0.5) {
		t.Errorf("segment params = %v %v, want midpoints", h.la, h.lb)
	}
}

func TestIntersectorTable_Supports(t *testing.T) {
	table := DefaultIntersectors()
	tests := []struct {
		a, b geom.Kind
		want bool
	}{
		{geom.KindPoint, geom.KindTriangle, true},
		{geom.KindTriangle, geom.KindPoint, true},
		{geom.KindOBB, geom.KindSphere, true},
		{geom.KindSDF, geom.KindPoint, true},
		{geom.KindTriangle, geom.KindTriangle, false},
		{geom.KindOBB, geom.KindOBB, false},
		{geom.KindSDF, geom.KindSDF, false},
	}
	for _, tt := range tests {
		if got := table.Supports(tt.a, tt.b); got != tt.want {
			t.Errorf("Supports(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
