package mechanics

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// Mass is a lumped mass: one scalar per particle node, or total mass plus a
// principal inertia for a rigid frame.
type Mass struct {
	Nodes   []float64
	Inertia mgl64.Vec3 // body-frame principal moments, rigid only
}

// UniformMass spreads total over n particle nodes.
func UniformMass(total float64, n int) *Mass {
	m := &Mass{Nodes: make([]float64, n)}
	for i := range m.Nodes {
		m.Nodes[i] = total / float64(n)
	}
	return m
}

// RigidBoxMass returns the mass of a solid box with the given half extents.
func RigidBoxMass(total float64, half mgl64.Vec3) *Mass {
	x, y, z := 2*half[0], 2*half[1], 2*half[2]
	k := total / 12
	return &Mass{
		Nodes:   []float64{total},
		Inertia: mgl64.Vec3{k * (y*y + z*z), k * (x*x + z*z), k * (x*x + y*y)},
	}
}

// RigidSphereMass returns the mass of a solid sphere.
func RigidSphereMass(total, r float64) *Mass {
	i := 0.4 * total * r * r
	return &Mass{Nodes: []float64{total}, Inertia: mgl64.Vec3{i, i, i}}
}

// WorldInertia returns R·diag(I)·Rᵀ for orientation q.
func (m *Mass) WorldInertia(q mgl64.Quat) mgl64.Mat3 {
	var r [3]mgl64.Vec3
	for i := 0; i < 3; i++ {
		var e mgl64.Vec3
		e[i] = 1
		r[i] = q.Rotate(e)
	}
	var out mgl64.Mat3
	for j := 0; j < 3; j++ {
		for k := 0; k < 3; k++ {
			sum := 0.0
			for i := 0; i < 3; i++ {
				sum += r[i][j] * m.Inertia[i] * r[i][k]
			}
			out.Set(j, k, sum)
		}
	}
	return out
}

// Assemble adds factor*M into a. The matrix is block diagonal in 3x3 blocks.
func (m *Mass) Assemble(s *State, factor float64, a *mat.SymDense) {
	if s.Kind == Rigid {
		for d := 0; d < 3; d++ {
			a.SetSym(d, d, a.At(d, d)+factor*m.Nodes[0])
		}
		iw := m.WorldInertia(s.Q[0])
		for j := 0; j < 3; j++ {
			for k := j; k < 3; k++ {
				a.SetSym(3+j, 3+k, a.At(3+j, 3+k)+factor*iw.At(j, k))
			}
		}
		return
	}
	for i, mi := range m.Nodes {
		for d := 0; d < 3; d++ {
			idx := 3*i + d
			a.SetSym(idx, idx, a.At(idx, idx)+factor*mi)
		}
	}
}

// Accelerate writes a = M⁻¹ f for one step. Rigid angular parts use the
// world inertia at the current orientation.
func (m *Mass) Accelerate(s *State, f, a []float64) {
	if s.Kind == Rigid {
		for d := 0; d < 3; d++ {
			a[d] = f[d] / m.Nodes[0]
		}
		inv := m.WorldInertia(s.Q[0]).Inv()
		w := inv.Mul3x1(mgl64.Vec3{f[3], f[4], f[5]})
		copy(a[3:6], w[:])
		return
	}
	for i, mi := range m.Nodes {
		for d := 0; d < 3; d++ {
			a[3*i+d] = f[3*i+d] / mi
		}
	}
}
