package scene

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/components"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
)

func particles(n int) *mechanics.Object {
	x := make([]mgl64.Vec3, n)
	return mechanics.NewObject("obj", mechanics.NewParticleState(x), mechanics.UniformMass(1, n))
}

func points(n int) []geom.Element {
	out := make([]geom.Element, n)
	for i := range out {
		out[i] = geom.NewPoint(i)
	}
	return out
}

func TestStaleHandle(t *testing.T) {
	s := New()
	obj := s.AddObject(particles(2), true)
	b, err := s.AddBody(obj, components.CollisionDefaults("pts", geom.KindPoint, points(2)))
	if err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	if _, err := s.Body(b); err != nil {
		t.Fatalf("Body: %v", err)
	}
	if err := s.RemoveBody(b); err != nil {
		t.Fatalf("RemoveBody: %v", err)
	}
	if _, err := s.Body(b); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Body after remove: err = %v, want ErrStaleHandle", err)
	}

	// a new body must not resurrect the old handle
	b2, err := s.AddBody(obj, components.CollisionDefaults("pts2", geom.KindPoint, points(2)))
	if err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	if b2 == b {
		t.Error("reissued handle equals stale handle")
	}
	if _, err := s.Body(b); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("stale handle resolved after reuse: %v", err)
	}
}

func TestAddBody_VertexRange(t *testing.T) {
	s := New()
	obj := s.AddObject(particles(2), true)
	_, err := s.AddBody(obj, components.CollisionDefaults("bad", geom.KindLine, []geom.Element{geom.NewLine(0, 5)}))
	if err == nil {
		t.Error("expected error for out-of-range vertex")
	}
}

func TestActiveBodiesOrderAndRestart(t *testing.T) {
	s := New()
	obj := s.AddObject(particles(1), true)
	var hs []Handle
	for i := 0; i < 4; i++ {
		h, err := s.AddBody(obj, components.CollisionDefaults("b", geom.KindPoint, points(1)))
		if err != nil {
			t.Fatalf("AddBody: %v", err)
		}
		hs = append(hs, h)
	}
	if err := s.SetActive(hs[1], false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	want := []Handle{hs[0], hs[2], hs[3]}
	for pass := 0; pass < 2; pass++ {
		got := slices.Collect(s.ActiveBodies())
		if !slices.Equal(got, want) {
			t.Errorf("pass %d: active = %v, want %v", pass, got, want)
		}
	}
}

func TestCanCollide(t *testing.T) {
	s := New()
	dyn := s.AddObject(particles(1), true)
	dyn2 := s.AddObject(particles(1), true)
	static := s.AddObject(particles(1), false)
	static2 := s.AddObject(particles(1), false)

	add := func(owner Handle, self bool) Handle {
		c := components.CollisionDefaults("b", geom.KindPoint, points(1))
		c.SelfCollision = self
		h, err := s.AddBody(owner, c)
		if err != nil {
			t.Fatalf("AddBody: %v", err)
		}
		return h
	}
	a := add(dyn, false)
	aSibling := add(dyn, false)
	b := add(dyn2, false)
	self := add(dyn2, true)
	st := add(static, false)
	st2 := add(static2, false)

	tests := []struct {
		name string
		x, y Handle
		want bool
	}{
		{"distinct objects", a, b, true},
		{"same body", a, a, false},
		{"same body self collision", self, self, true},
		{"shared object", a, aSibling, false},
		{"dynamic vs static", a, st, true},
		{"static vs static", st, st2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.CanCollide(tt.x, tt.y); got != tt.want {
				t.Errorf("CanCollide = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveObjectRemovesBodies(t *testing.T) {
	s := New()
	obj := s.AddObject(particles(1), true)
	b, _ := s.AddBody(obj, components.CollisionDefaults("b", geom.KindPoint, points(1)))
	if err := s.RemoveObject(obj); err != nil {
		t.Fatalf("RemoveObject: %v", err)
	}
	if s.NumBodies() != 0 || s.NumObjects() != 0 {
		t.Errorf("bodies=%d objects=%d, want 0 0", s.NumBodies(), s.NumObjects())
	}
	if s.Alive(b) {
		t.Error("body should be removed with its object")
	}
}
