package mechanics

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// ErrNotFactorized is returned when the system matrix is not positive definite.
var ErrNotFactorized = errors.New("system matrix not positive definite")

// System is what a linear solver factorizes.
type System interface {
	DOFs() int
	FixedDOF(i int) bool
	AssembleMatrix(mf, ff float64) *mat.SymDense
}

// LinearSolver applies the inverse of an object's effective dynamics matrix
// A = mf*M + ff*K.
type LinearSolver interface {
	// RebuildSystem reassembles and factorizes A.
	RebuildSystem(massFactor, forceFactor float64) error
	// Solve writes A⁻¹ rhs into out.
	Solve(rhs, out []float64)
	// BuildComplianceMatrix returns factor * J A⁻¹ Jᵗ for the object-local
	// Jacobian J (rows x DOFs).
	BuildComplianceMatrix(j *mat.Dense, factor float64) *mat.SymDense
	// ApplyConstraintForce writes dx = A⁻¹ Jᵗ λ.
	ApplyConstraintForce(j *mat.Dense, lambda, dx []float64)
}

// CholeskySolver factorizes the dense system with gonum's Cholesky.
type CholeskySolver struct {
	sys  System
	chol mat.Cholesky
	ok   bool
}

// NewCholeskySolver creates a solver for sys. RebuildSystem must run before use.
func NewCholeskySolver(sys System) *CholeskySolver {
	return &CholeskySolver{sys: sys}
}

func (c *CholeskySolver) RebuildSystem(mf, ff float64) error {
	a := c.sys.AssembleMatrix(mf, ff)
	c.ok = c.chol.Factorize(a)
	if !c.ok {
		return fmt.Errorf("cholesky rebuild (mf=%g, ff=%g): %w", mf, ff, ErrNotFactorized)
	}
	return nil
}

func (c *CholeskySolver) Solve(rhs, out []float64) {
	n := c.sys.DOFs()
	if !c.ok {
		clear(out[:n])
		return
	}
	b := mat.NewVecDense(n, projected(c.sys, rhs))
	var x mat.VecDense
	if err := c.chol.SolveVecTo(&x, b); err != nil {
		clear(out[:n])
		return
	}
	for i := 0; i < n; i++ {
		out[i] = x.AtVec(i)
	}
	project(c.sys, out)
}

func (c *CholeskySolver) BuildComplianceMatrix(j *mat.Dense, factor float64) *mat.SymDense {
	rows, _ := j.Dims()
	w := mat.NewSymDense(rows, nil)
	if !c.ok || rows == 0 {
		return w
	}
	jp := projectedJacobian(c.sys, j)
	var x mat.Dense
	if err := c.chol.SolveTo(&x, jp.T()); err != nil {
		return w
	}
	var p mat.Dense
	p.Mul(jp, &x)
	symmetrize(&p, factor, w)
	return w
}

func (c *CholeskySolver) ApplyConstraintForce(j *mat.Dense, lambda, dx []float64) {
	applyConstraintForce(c, j, lambda, dx)
}

// LumpedSolver inverts the 3x3 diagonal blocks of mf*M only. It ignores
// stiffness and is exact for rigid frames and lumped particle masses.
type LumpedSolver struct {
	sys System
	inv []mgl64.Mat3
}

// NewLumpedSolver creates a block-diagonal solver for sys.
func NewLumpedSolver(sys System) *LumpedSolver {
	return &LumpedSolver{sys: sys}
}

func (l *LumpedSolver) RebuildSystem(mf, _ float64) error {
	a := l.sys.AssembleMatrix(mf, 0)
	n := l.sys.DOFs()
	l.inv = l.inv[:0]
	for b := 0; b < n; b += 3 {
		var m mgl64.Mat3
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m.Set(i, j, a.At(b+i, b+j))
			}
		}
		if m.Det() == 0 {
			return fmt.Errorf("lumped rebuild block %d: %w", b/3, ErrNotFactorized)
		}
		l.inv = append(l.inv, m.Inv())
	}
	return nil
}

func (l *LumpedSolver) Solve(rhs, out []float64) {
	n := l.sys.DOFs()
	if len(l.inv)*3 != n {
		clear(out[:n])
		return
	}
	r := projected(l.sys, rhs)
	for b, inv := range l.inv {
		v := inv.Mul3x1(mgl64.Vec3{r[3*b], r[3*b+1], r[3*b+2]})
		copy(out[3*b:3*b+3], v[:])
	}
	project(l.sys, out)
}

func (l *LumpedSolver) BuildComplianceMatrix(j *mat.Dense, factor float64) *mat.SymDense {
	rows, cols := j.Dims()
	w := mat.NewSymDense(rows, nil)
	if rows == 0 {
		return w
	}
	x := mat.NewDense(cols, rows, nil)
	col := make([]float64, cols)
	for r := 0; r < rows; r++ {
		l.Solve(mat.Row(nil, r, j), col)
		x.SetCol(r, col)
	}
	var p mat.Dense
	p.Mul(j, x)
	symmetrize(&p, factor, w)
	return w
}

func (l *LumpedSolver) ApplyConstraintForce(j *mat.Dense, lambda, dx []float64) {
	applyConstraintForce(l, j, lambda, dx)
}

func applyConstraintForce(s LinearSolver, j *mat.Dense, lambda, dx []float64) {
	rows, cols := j.Dims()
	f := make([]float64, cols)
	for r := 0; r < rows; r++ {
		if lambda[r] == 0 {
			continue
		}
		for c := 0; c < cols; c++ {
			f[c] += j.At(r, c) * lambda[r]
		}
	}
	s.Solve(f, dx)
}

func symmetrize(p *mat.Dense, factor float64, w *mat.SymDense) {
	rows, _ := p.Dims()
	for i := 0; i < rows; i++ {
		for k := i; k < rows; k++ {
			w.SetSym(i, k, factor*0.5*(p.At(i, k)+p.At(k, i)))
		}
	}
}

func projected(sys System, v []float64) []float64 {
	out := make([]float64, sys.DOFs())
	for i := range out {
		if !sys.FixedDOF(i) {
			out[i] = v[i]
		}
	}
	return out
}

func project(sys System, v []float64) {
	for i := 0; i < sys.DOFs(); i++ {
		if sys.FixedDOF(i) {
			v[i] = 0
		}
	}
}

func projectedJacobian(sys System, j *mat.Dense) *mat.Dense {
	rows, cols := j.Dims()
	out := mat.DenseCopyOf(j)
	for c := 0; c < cols; c++ {
		if !sys.FixedDOF(c) {
			continue
		}
		for r := 0; r < rows; r++ {
			out.Set(r, c, 0)
		}
	}
	return out
}
