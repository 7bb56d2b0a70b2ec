package mechanics

import (
	"errors"
	"fmt"
)

// ErrExplicitFallback is returned when an implicit step had to integrate
// explicitly instead.
var ErrExplicitFallback = errors.New("implicit step fell back to explicit integration")

// ODESolver integrates free motion and reports the factors relating a
// velocity-space correction to position and velocity changes.
// FreeMotion always fills the free buffers; a returned error means the
// prediction or the compliance built from it is degraded.
type ODESolver interface {
	Name() string
	FreeMotion(o *Object, h float64) error
	PositionFactor(h float64) float64
	VelocityFactor(h float64) float64
}

// EulerExplicit is semi-implicit (symplectic) Euler: v' = v + h M⁻¹f, x' = x + h v'.
type EulerExplicit struct{}

func (EulerExplicit) Name() string { return "euler_explicit" }

func (EulerExplicit) FreeMotion(o *Object, h float64) error {
	s := o.State
	o.ComputeForce()
	acc := make([]float64, s.DOFs())
	o.Mass.Accelerate(s, s.F, acc)
	for i := range s.VFree {
		if s.FixedDOF(i) {
			s.VFree[i] = 0
			continue
		}
		s.VFree[i] = s.V[i] + h*acc[i]
	}
	s.IntegrateFree(h)
	if o.Solver != nil {
		// the compliance uses the mass at the start of the step
		if err := o.Solver.RebuildSystem(1, 0); err != nil {
			return fmt.Errorf("rebuilding compliance of %s: %w", o.Name, err)
		}
	}
	return nil
}

func (EulerExplicit) PositionFactor(h float64) float64 { return h }

func (EulerExplicit) VelocityFactor(float64) float64 { return 1 }

// EulerImplicit is backward Euler linearized once per step:
// (M - h²K) dv = h f + h² K v.
type EulerImplicit struct{}

func (EulerImplicit) Name() string { return "euler_implicit" }

func (EulerImplicit) FreeMotion(o *Object, h float64) error {
	s := o.State
	if o.Solver == nil {
		EulerExplicit{}.FreeMotion(o, h)
		return fmt.Errorf("%s has no linear solver: %w", o.Name, ErrExplicitFallback)
	}
	o.ComputeForce()
	n := s.DOFs()
	rhs := make([]float64, n)
	for i := range rhs {
		rhs[i] = h * s.F[i]
	}
	for _, ff := range o.ForceFields {
		ff.AddDForce(s, s.V, rhs, h*h)
	}
	for i := range rhs {
		if s.FixedDOF(i) {
			rhs[i] = 0
		}
	}
	if err := o.Solver.RebuildSystem(1, -h*h); err != nil {
		fallback := fmt.Errorf("%s: %w: %w", o.Name, ErrExplicitFallback, err)
		if err := (EulerExplicit{}).FreeMotion(o, h); err != nil {
			return errors.Join(fallback, err)
		}
		return fallback
	}
	dv := make([]float64, n)
	o.Solver.Solve(rhs, dv)
	for i := range s.VFree {
		s.VFree[i] = s.V[i] + dv[i]
	}
	s.IntegrateFree(h)
	return nil
}

func (EulerImplicit) PositionFactor(h float64) float64 { return h }

func (EulerImplicit) VelocityFactor(float64) float64 { return 1 }
