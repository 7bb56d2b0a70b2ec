// Package scene stores mechanical objects and collision bodies in an ECS
// world. Entities act as generation-checked handles: a removed body's handle
// is detectably stale rather than dangling.
package scene

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/mlange-42/ark/ecs"
	"github.com/samber/lo"

	"github.com/pthm-cable/freemotion/components"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
)

// ErrStaleHandle is returned when a handle refers to a removed entity.
var ErrStaleHandle = errors.New("stale handle")

// Handle identifies an object or body.
type Handle = ecs.Entity

// Scene is the arena of mechanical objects and collision bodies.
type Scene struct {
	world   *ecs.World
	objMap  *ecs.Map[components.Mechanical]
	bodyMap *ecs.Map[components.Collision]

	objects []Handle // registration order
	bodies  []Handle
	ordinal int
}

// New creates an empty scene.
func New() *Scene {
	world := ecs.NewWorld()
	return &Scene{
		world:   world,
		objMap:  ecs.NewMap[components.Mechanical](world),
		bodyMap: ecs.NewMap[components.Collision](world),
	}
}

// AddObject registers a mechanical object. Static objects are never corrected.
func (s *Scene) AddObject(obj *mechanics.Object, simulated bool) Handle {
	m := components.Mechanical{Object: obj, Ordinal: s.nextOrdinal(), Simulated: simulated}
	h := s.objMap.NewEntity(&m)
	s.objects = append(s.objects, h)
	return h
}

// AddBody registers a collision body on owner's vertices.
func (s *Scene) AddBody(owner Handle, body components.Collision) (Handle, error) {
	m, err := s.Object(owner)
	if err != nil {
		return Handle{}, fmt.Errorf("adding body %q: %w", body.Name, err)
	}
	n := m.Object.State.NumVertices()
	for i, e := range body.Elements {
		for k := 0; k < body.Kind.VertexCount(); k++ {
			if e.V[k] < 0 || e.V[k] >= n {
				return Handle{}, fmt.Errorf("body %q element %d: vertex %d out of range [0,%d)", body.Name, i, e.V[k], n)
			}
		}
	}
	if body.Kind == geom.KindSDF && body.SDF == nil {
		return Handle{}, fmt.Errorf("body %q: sdf body without distance field", body.Name)
	}
	body.Owner = owner
	body.Ordinal = s.nextOrdinal()
	body.Simulated = body.Simulated && m.Simulated
	h := s.bodyMap.NewEntity(&body)
	s.bodies = append(s.bodies, h)
	return h, nil
}

func (s *Scene) nextOrdinal() int {
	s.ordinal++
	return s.ordinal
}

// RemoveBody unregisters a body. Its handle becomes stale.
func (s *Scene) RemoveBody(h Handle) error {
	if !s.isBody(h) {
		return ErrStaleHandle
	}
	s.world.RemoveEntity(h)
	s.bodies = slices.DeleteFunc(s.bodies, func(b Handle) bool { return b == h })
	return nil
}

// RemoveObject unregisters an object together with its bodies.
func (s *Scene) RemoveObject(h Handle) error {
	if _, err := s.Object(h); err != nil {
		return err
	}
	owned := lo.Filter(s.bodies, func(b Handle, _ int) bool {
		return s.bodyMap.Get(b).Owner == h
	})
	for _, b := range owned {
		if err := s.RemoveBody(b); err != nil {
			return err
		}
	}
	s.world.RemoveEntity(h)
	s.objects = slices.DeleteFunc(s.objects, func(o Handle) bool { return o == h })
	return nil
}

func (s *Scene) isBody(h Handle) bool {
	return !h.IsZero() && s.world.Alive(h) && s.bodyMap.Has(h)
}

// Alive reports whether h refers to a live object or body.
func (s *Scene) Alive(h Handle) bool {
	return !h.IsZero() && s.world.Alive(h)
}

// Object resolves an object handle.
func (s *Scene) Object(h Handle) (*components.Mechanical, error) {
	if h.IsZero() || !s.world.Alive(h) || !s.objMap.Has(h) {
		return nil, ErrStaleHandle
	}
	return s.objMap.Get(h), nil
}

// Body resolves a body handle.
func (s *Scene) Body(h Handle) (*components.Collision, error) {
	if !s.isBody(h) {
		return nil, ErrStaleHandle
	}
	return s.bodyMap.Get(h), nil
}

// MustBody resolves a handle known to be live.
func (s *Scene) MustBody(h Handle) *components.Collision {
	b, err := s.Body(h)
	if err != nil {
		panic(fmt.Sprintf("scene: body %v: %v", h, err))
	}
	return b
}

// Owner returns the mechanical object owning body h.
func (s *Scene) Owner(h Handle) (*components.Mechanical, error) {
	b, err := s.Body(h)
	if err != nil {
		return nil, err
	}
	return s.Object(b.Owner)
}

// SetActive toggles whether a body takes part in detection.
func (s *Scene) SetActive(h Handle, active bool) error {
	b, err := s.Body(h)
	if err != nil {
		return err
	}
	b.Active = active
	return nil
}

// Objects yields object handles in registration order.
func (s *Scene) Objects() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for _, h := range s.objects {
			if !yield(h) {
				return
			}
		}
	}
}

// Bodies yields all body handles in registration order.
func (s *Scene) Bodies() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for _, h := range s.bodies {
			if !yield(h) {
				return
			}
		}
	}
}

// ActiveBodies yields the active bodies in registration order. The sequence
// is lazy and may be ranged over any number of times.
func (s *Scene) ActiveBodies() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for _, h := range s.bodies {
			if !s.bodyMap.Get(h).Active {
				continue
			}
			if !yield(h) {
				return
			}
		}
	}
}

// NumObjects returns the number of registered objects.
func (s *Scene) NumObjects() int {
	return len(s.objects)
}

// NumBodies returns the number of registered bodies.
func (s *Scene) NumBodies() int {
	return len(s.bodies)
}

// CanCollide applies the pair exclusion rules: no self-pairs unless the body
// allows self-collision, no pairs sharing a mechanical object unless both
// allow self-collision, no pairs where neither side is simulated.
func (s *Scene) CanCollide(a, b Handle) bool {
	ba, err := s.Body(a)
	if err != nil {
		return false
	}
	bb, err := s.Body(b)
	if err != nil {
		return false
	}
	if !ba.Simulated && !bb.Simulated {
		return false
	}
	if a == b {
		return ba.SelfCollision
	}
	if ba.Owner == bb.Owner {
		return ba.SelfCollision && bb.SelfCollision
	}
	return true
}
