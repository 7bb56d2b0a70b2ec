// Package mechanics holds minimal mechanical collaborators for the contact
// pipeline: mechanical states with named buffers, masses, force fields, ODE
// integrators and linear solvers. Only what constraint correction needs is
// implemented.
package mechanics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// VecID names a state buffer.
type VecID uint8

const (
	Position VecID = iota
	Velocity
	FreePosition
	FreeVelocity
	Dx
	Force
)

func (id VecID) String() string {
	switch id {
	case Position:
		return "position"
	case Velocity:
		return "velocity"
	case FreePosition:
		return "free_position"
	case FreeVelocity:
		return "free_velocity"
	case Dx:
		return "dx"
	case Force:
		return "force"
	}
	return fmt.Sprintf("vecid(%d)", id)
}

// DOFKind selects how nodes are parameterized.
type DOFKind uint8

const (
	// Particle nodes carry 3 translational DOFs each.
	Particle DOFKind = iota
	// Rigid states hold a single frame with 3 linear and 3 angular DOFs.
	// Geometry is attached as rest vertices expressed in the body frame.
	Rigid
)

// State is the mechanical state of one object. Velocity-like buffers are flat
// DOF vectors; rigid angular velocities are world-frame.
type State struct {
	Kind DOFKind

	X     []mgl64.Vec3 // node positions or rigid center
	XFree []mgl64.Vec3
	Q     []mgl64.Quat // rigid orientation, empty for particles
	QFree []mgl64.Quat

	V     []float64
	VFree []float64
	DX    []float64
	F     []float64

	// Rest holds rigid geometry in the body frame.
	Rest []mgl64.Vec3
	// Fixed marks nodes that never move.
	Fixed []bool
}

// NewParticleState creates a particle state at rest.
func NewParticleState(x []mgl64.Vec3) *State {
	n := len(x)
	s := &State{
		Kind:  Particle,
		X:     append([]mgl64.Vec3(nil), x...),
		XFree: append([]mgl64.Vec3(nil), x...),
		V:     make([]float64, 3*n),
		VFree: make([]float64, 3*n),
		DX:    make([]float64, 3*n),
		F:     make([]float64, 3*n),
		Fixed: make([]bool, n),
	}
	return s
}

// NewRigidState creates a rigid frame carrying rest vertices.
func NewRigidState(center mgl64.Vec3, q mgl64.Quat, rest []mgl64.Vec3) *State {
	return &State{
		Kind:  Rigid,
		X:     []mgl64.Vec3{center},
		XFree: []mgl64.Vec3{center},
		Q:     []mgl64.Quat{q.Normalize()},
		QFree: []mgl64.Quat{q.Normalize()},
		V:     make([]float64, 6),
		VFree: make([]float64, 6),
		DX:    make([]float64, 6),
		F:     make([]float64, 6),
		Rest:  append([]mgl64.Vec3(nil), rest...),
		Fixed: make([]bool, 1),
	}
}

// DOFsPerNode returns 3 for particles and 6 for rigid frames.
func (s *State) DOFsPerNode() int {
	if s.Kind == Rigid {
		return 6
	}
	return 3
}

// Nodes returns the number of mechanical nodes.
func (s *State) Nodes() int {
	return len(s.X)
}

// DOFs returns the size of the flat velocity vectors.
func (s *State) DOFs() int {
	return s.Nodes() * s.DOFsPerNode()
}

// FixedDOF reports whether DOF i belongs to a fixed node.
func (s *State) FixedDOF(i int) bool {
	return s.Fixed[i/s.DOFsPerNode()]
}

// Buffer returns a flat DOF buffer. Position buffers are not flat and return nil.
func (s *State) Buffer(id VecID) []float64 {
	switch id {
	case Velocity:
		return s.V
	case FreeVelocity:
		return s.VFree
	case Dx:
		return s.DX
	case Force:
		return s.F
	}
	return nil
}

func (s *State) positions(id VecID) ([]mgl64.Vec3, []mgl64.Quat) {
	if id == FreePosition {
		return s.XFree, s.QFree
	}
	return s.X, s.Q
}

// NumVertices returns how many geometric vertices the state exposes.
func (s *State) NumVertices() int {
	if s.Kind == Rigid {
		return len(s.Rest)
	}
	return len(s.X)
}

// Vertex returns the world position of vertex i from the Position or
// FreePosition buffer.
func (s *State) Vertex(id VecID, i int) mgl64.Vec3 {
	x, q := s.positions(id)
	if s.Kind == Rigid {
		return x[0].Add(q[0].Rotate(s.Rest[i]))
	}
	return x[i]
}

// Vertices fills out with all vertex positions and returns it.
func (s *State) Vertices(id VecID, out []mgl64.Vec3) []mgl64.Vec3 {
	n := s.NumVertices()
	if cap(out) < n {
		out = make([]mgl64.Vec3, n)
	}
	out = out[:n]
	for i := range out {
		out[i] = s.Vertex(id, i)
	}
	return out
}

// Arm returns the world-frame offset of rigid vertex i from the center.
func (s *State) Arm(id VecID, i int) mgl64.Vec3 {
	_, q := s.positions(id)
	return q[0].Rotate(s.Rest[i])
}

// VertexVelocity returns the velocity of vertex i from the Velocity or
// FreeVelocity buffer. Rigid arms use the current orientation.
func (s *State) VertexVelocity(id VecID, i int) mgl64.Vec3 {
	v := s.Buffer(id)
	if s.Kind == Rigid {
		lin := mgl64.Vec3{v[0], v[1], v[2]}
		ang := mgl64.Vec3{v[3], v[4], v[5]}
		pos := Position
		if id == FreeVelocity {
			pos = FreePosition
		}
		return lin.Add(ang.Cross(s.Arm(pos, i)))
	}
	return mgl64.Vec3{v[3*i], v[3*i+1], v[3*i+2]}
}

// InitFree copies the current state into the free buffers.
func (s *State) InitFree() {
	copy(s.XFree, s.X)
	copy(s.QFree, s.Q)
	copy(s.VFree, s.V)
	clear(s.DX)
}

// IntegrateFree sets the free position to x + h*vFree, honoring fixed nodes.
func (s *State) IntegrateFree(h float64) {
	for i := range s.X {
		if s.Fixed[i] {
			s.XFree[i] = s.X[i]
			continue
		}
		s.XFree[i] = advance(s.X[i], s.VFree, i*s.DOFsPerNode(), h)
	}
	if s.Kind == Rigid {
		s.QFree[0] = rotate(s.Q[0], s.VFree[3:6], h)
	}
}

// IntegratePosition sets the current position to x + h*v.
func (s *State) IntegratePosition(h float64) {
	for i := range s.X {
		if s.Fixed[i] {
			continue
		}
		s.X[i] = advance(s.X[i], s.V, i*s.DOFsPerNode(), h)
	}
	if s.Kind == Rigid && !s.Fixed[0] {
		s.Q[0] = rotate(s.Q[0], s.V[3:6], h)
	}
}

// ApplyCorrection writes x = xFree + pf*dx and v = vFree + vf*dx.
// A zero factor leaves the corresponding buffer untouched.
func (s *State) ApplyCorrection(pf, vf float64) {
	if pf != 0 {
		for i := range s.X {
			if s.Fixed[i] {
				continue
			}
			s.X[i] = advance(s.XFree[i], s.DX, i*s.DOFsPerNode(), pf)
		}
		if s.Kind == Rigid && !s.Fixed[0] {
			s.Q[0] = rotate(s.QFree[0], s.DX[3:6], pf)
		}
	}
	if vf != 0 {
		for i := range s.V {
			if s.FixedDOF(i) {
				s.V[i] = 0
				continue
			}
			s.V[i] = s.VFree[i] + vf*s.DX[i]
		}
	}
}

// Commit accepts the free motion as the new state.
func (s *State) Commit() {
	copy(s.X, s.XFree)
	copy(s.Q, s.QFree)
	copy(s.V, s.VFree)
}

func advance(x mgl64.Vec3, v []float64, off int, h float64) mgl64.Vec3 {
	return x.Add(mgl64.Vec3{v[off], v[off+1], v[off+2]}.Mul(h))
}

// rotate integrates orientation q by angular velocity w over h.
func rotate(q mgl64.Quat, w []float64, h float64) mgl64.Quat {
	omega := mgl64.Quat{W: 0, V: mgl64.Vec3{w[0], w[1], w[2]}}
	dq := omega.Mul(q).Scale(0.5 * h)
	return q.Add(dq).Normalize()
}
