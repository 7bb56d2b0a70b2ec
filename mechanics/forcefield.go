package mechanics

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// ForceField contributes forces and, for implicit integration, stiffness.
type ForceField interface {
	// AddForce accumulates f(x, v) into f.
	AddForce(s *State, m *Mass, f []float64)
	// AddDForce accumulates factor*K*dx into df, K = df/dx.
	AddDForce(s *State, dx, df []float64, factor float64)
	// AddKToMatrix adds factor*K into a.
	AddKToMatrix(s *State, factor float64, a *mat.SymDense)
}

// Gravity applies a uniform acceleration.
type Gravity struct {
	G mgl64.Vec3
}

func (g Gravity) AddForce(s *State, m *Mass, f []float64) {
	stride := s.DOFsPerNode()
	for i, mi := range m.Nodes {
		for d := 0; d < 3; d++ {
			f[i*stride+d] += mi * g.G[d]
		}
	}
}

func (Gravity) AddDForce(*State, []float64, []float64, float64) {}

func (Gravity) AddKToMatrix(*State, float64, *mat.SymDense) {}

// Spring links two particle nodes.
type Spring struct {
	A, B    int
	Rest    float64
	K       float64
	Damping float64
}

// StiffSprings is a set of linear springs between particle nodes.
type StiffSprings struct {
	Springs []Spring
}

// NewSpringsFromEdges creates one spring per edge at its current length.
func NewSpringsFromEdges(x []mgl64.Vec3, edges [][2]int, k, damping float64) *StiffSprings {
	ss := &StiffSprings{Springs: make([]Spring, len(edges))}
	for i, e := range edges {
		ss.Springs[i] = Spring{
			A: e[0], B: e[1],
			Rest:    x[e[1]].Sub(x[e[0]]).Len(),
			K:       k,
			Damping: damping,
		}
	}
	return ss
}

func (ss *StiffSprings) AddForce(s *State, _ *Mass, f []float64) {
	for _, sp := range ss.Springs {
		d := s.X[sp.B].Sub(s.X[sp.A])
		l := d.Len()
		if l < 1e-12 {
			continue
		}
		u := d.Mul(1 / l)
		va := mgl64.Vec3{s.V[3*sp.A], s.V[3*sp.A+1], s.V[3*sp.A+2]}
		vb := mgl64.Vec3{s.V[3*sp.B], s.V[3*sp.B+1], s.V[3*sp.B+2]}
		mag := sp.K*(l-sp.Rest) + sp.Damping*vb.Sub(va).Dot(u)
		fa := u.Mul(mag)
		for d := 0; d < 3; d++ {
			f[3*sp.A+d] += fa[d]
			f[3*sp.B+d] -= fa[d]
		}
	}
}

// block returns df_a/dx_b for a spring. Compressed springs drop the
// transverse term to keep the block positive semi-definite.
func (sp Spring) block(s *State) mgl64.Mat3 {
	d := s.X[sp.B].Sub(s.X[sp.A])
	l := d.Len()
	var k mgl64.Mat3
	if l < 1e-12 {
		return k
	}
	u := d.Mul(1 / l)
	tr := 1 - sp.Rest/l
	if tr < 0 {
		tr = 0
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			uu := u[i] * u[j]
			id := 0.0
			if i == j {
				id = 1
			}
			k.Set(i, j, sp.K*(tr*(id-uu)+uu))
		}
	}
	return k
}

func (ss *StiffSprings) AddDForce(s *State, dx, df []float64, factor float64) {
	for _, sp := range ss.Springs {
		k := sp.block(s)
		rel := mgl64.Vec3{
			dx[3*sp.B] - dx[3*sp.A],
			dx[3*sp.B+1] - dx[3*sp.A+1],
			dx[3*sp.B+2] - dx[3*sp.A+2],
		}
		dfa := k.Mul3x1(rel).Mul(factor)
		for d := 0; d < 3; d++ {
			df[3*sp.A+d] += dfa[d]
			df[3*sp.B+d] -= dfa[d]
		}
	}
}

func (ss *StiffSprings) AddKToMatrix(s *State, factor float64, a *mat.SymDense) {
	for _, sp := range ss.Springs {
		k := sp.block(s)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				v := factor * k.At(i, j)
				// K_ab = K_ba = k, K_aa = K_bb = -k; SetSym mirrors each write
				if i <= j {
					ai, aj := 3*sp.A+i, 3*sp.A+j
					bi, bj := 3*sp.B+i, 3*sp.B+j
					a.SetSym(ai, aj, a.At(ai, aj)-v)
					a.SetSym(bi, bj, a.At(bi, bj)-v)
				}
				r, c := 3*sp.A+i, 3*sp.B+j
				a.SetSym(r, c, a.At(r, c)+v)
			}
		}
	}
}
