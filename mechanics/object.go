package mechanics

import (
	"gonum.org/v1/gonum/mat"
)

// Object bundles a mechanical state with the collaborators that move it.
// ODE and Solver may be nil: such an object does not move on its own and
// cannot be corrected.
type Object struct {
	Name        string
	State       *State
	Mass        *Mass
	ForceFields []ForceField
	ODE         ODESolver
	Solver      LinearSolver

	// External holds forces applied during the next free motion, then cleared.
	External []float64
}

// NewObject creates an object with an empty external force buffer.
func NewObject(name string, s *State, m *Mass) *Object {
	return &Object{
		Name:     name,
		State:    s,
		Mass:     m,
		External: make([]float64, s.DOFs()),
	}
}

// DOFs returns the object's DOF count.
func (o *Object) DOFs() int {
	return o.State.DOFs()
}

// FixedDOF reports whether DOF i is constrained in place.
func (o *Object) FixedDOF(i int) bool {
	return o.State.FixedDOF(i)
}

// AddExternalForce accumulates a force on one DOF for the next free motion.
func (o *Object) AddExternalForce(dof int, v float64) {
	o.External[dof] += v
}

// ComputeForce fills State.F with force fields plus external forces.
func (o *Object) ComputeForce() {
	f := o.State.F
	clear(f)
	for _, ff := range o.ForceFields {
		ff.AddForce(o.State, o.Mass, f)
	}
	for i, v := range o.External {
		f[i] += v
	}
}

// AssembleMatrix returns mf*M + ff*K with fixed DOFs replaced by identity rows.
func (o *Object) AssembleMatrix(mf, ff float64) *mat.SymDense {
	n := o.DOFs()
	a := mat.NewSymDense(n, nil)
	if o.Mass != nil {
		o.Mass.Assemble(o.State, mf, a)
	}
	if ff != 0 {
		for _, f := range o.ForceFields {
			f.AddKToMatrix(o.State, ff, a)
		}
	}
	for i := 0; i < n; i++ {
		if !o.FixedDOF(i) {
			continue
		}
		for j := 0; j < n; j++ {
			a.SetSym(i, j, 0)
		}
		a.SetSym(i, i, 1)
	}
	return a
}

// FreeMotion predicts the unconstrained motion into the free buffers and
// consumes the external forces. Objects without an integrator stay put.
// The free buffers are filled even when an error is returned.
func (o *Object) FreeMotion(h float64) error {
	o.State.InitFree()
	var err error
	if o.ODE != nil {
		err = o.ODE.FreeMotion(o, h)
	}
	clear(o.External)
	return err
}
