// Package components defines the ECS components stored in the scene world.
package components

import (
	"github.com/deadsy/sdfx/sdf"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/freemotion/bvh"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
)

// Mechanical links an entity to the mechanical object it simulates.
type Mechanical struct {
	Object    *mechanics.Object
	Ordinal   int  // registration order, stable for the object's lifetime
	Simulated bool // false for static scenery: never corrected, never integrated
}

// Collision is one collision body: elements of a single kind over the
// vertices of its owner.
type Collision struct {
	Name     string
	Kind     geom.Kind
	Elements []geom.Element

	// Topology is set for the point, line and triangle models of a mesh.
	Topology *geom.Topology
	// SDF is the distance field of a KindSDF body, in the owner's body frame.
	SDF sdf.SDF3

	Tree  bvh.Tree
	Owner ecs.Entity

	Ordinal       int
	Active        bool
	Simulated     bool
	SelfCollision bool

	// Scratch buffers refreshed every tree update.
	Verts []mgl64.Vec3
	Boxes []geom.AABB
}

// CollisionDefaults returns an active, simulated body.
func CollisionDefaults(name string, kind geom.Kind, elems []geom.Element) Collision {
	return Collision{
		Name:      name,
		Kind:      kind,
		Elements:  elems,
		Active:    true,
		Simulated: true,
	}
}
