package constraint

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/mechanics"
)

// Correction turns constraint impulses into motion corrections for one
// object.
type Correction interface {
	Object() *mechanics.Object
	// Enabled reports whether the object can be corrected. A disabled
	// correction warns once and leaves the object to its free motion.
	Enabled() bool
	// AddComplianceInConstraintSpace adds factor·J·A⁻¹·Jᵗ of this object's
	// DOFs (starting at global offset) into w.
	AddComplianceInConstraintSpace(rows []Row, offset int, w *mat.SymDense, factor float64)
	// ComputeMotionCorrectionFromLambda writes dx = A⁻¹·Jᵗ·λ into the Dx buffer.
	ComputeMotionCorrectionFromLambda(rows []Row, offset int, lambda []float64)
	// ApplyMotionCorrection writes x = xFree + pf·dx and v = vFree + vf·dx.
	ApplyMotionCorrection(pf, vf float64)
}

// NewCorrection builds the named correction for obj: "uncoupled" or, by
// default, "linear".
func NewCorrection(kind string, obj *mechanics.Object, complianceFactor float64, rep *diag.Reporter) Correction {
	if kind == "uncoupled" {
		return NewUncoupledCorrection(obj, complianceFactor, rep)
	}
	return NewLinearSolverCorrection(obj, complianceFactor, rep)
}

func addBlock(w *mat.SymDense, rowIdx []int, local *mat.SymDense) {
	for i, ri := range rowIdx {
		for j := i; j < len(rowIdx); j++ {
			rj := rowIdx[j]
			w.SetSym(ri, rj, w.At(ri, rj)+local.At(i, j))
		}
	}
}

func denseOf(block [][]float64, n int) *mat.Dense {
	j := mat.NewDense(len(block), n, nil)
	for r, line := range block {
		j.SetRow(r, line)
	}
	return j
}

// LinearSolverCorrection delegates to the object's linear solver.
type LinearSolverCorrection struct {
	obj              *mechanics.Object
	complianceFactor float64
	rep              *diag.Reporter
}

// NewLinearSolverCorrection creates a correction for obj.
func NewLinearSolverCorrection(obj *mechanics.Object, complianceFactor float64, rep *diag.Reporter) *LinearSolverCorrection {
	return &LinearSolverCorrection{obj: obj, complianceFactor: complianceFactor, rep: rep}
}

func (c *LinearSolverCorrection) Object() *mechanics.Object { return c.obj }

func (c *LinearSolverCorrection) Enabled() bool {
	if c.obj.Solver != nil && c.obj.ODE != nil {
		return true
	}
	c.rep.WarnOnce("correction:"+c.obj.Name, diag.Configuration, "correction",
		"object has no linear solver or integrator, correction disabled", "object", c.obj.Name)
	return false
}

func (c *LinearSolverCorrection) AddComplianceInConstraintSpace(rows []Row, offset int, w *mat.SymDense, factor float64) {
	if !c.Enabled() {
		return
	}
	n := c.obj.DOFs()
	rowIdx, block := localJacobian(rows, offset, n)
	if len(rowIdx) == 0 {
		return
	}
	local := c.obj.Solver.BuildComplianceMatrix(denseOf(block, n), factor*c.complianceFactor)
	addBlock(w, rowIdx, local)
}

func (c *LinearSolverCorrection) ComputeMotionCorrectionFromLambda(rows []Row, offset int, lambda []float64) {
	clear(c.obj.State.DX)
	if !c.Enabled() {
		return
	}
	n := c.obj.DOFs()
	rowIdx, block := localJacobian(rows, offset, n)
	if len(rowIdx) == 0 {
		return
	}
	l := make([]float64, len(rowIdx))
	for i, r := range rowIdx {
		l[i] = lambda[r]
	}
	c.obj.Solver.ApplyConstraintForce(denseOf(block, n), l, c.obj.State.DX)
}

func (c *LinearSolverCorrection) ApplyMotionCorrection(pf, vf float64) {
	if c.obj.Solver == nil || c.obj.ODE == nil {
		return
	}
	c.obj.State.ApplyCorrection(pf, vf)
}

// UncoupledCorrection uses a per-node compliance and ignores coupling
// between nodes. Compliance defaults to the inverse lumped mass; rigid
// frames use the inverse world inertia for the angular block.
type UncoupledCorrection struct {
	obj              *mechanics.Object
	complianceFactor float64
	rep              *diag.Reporter

	// Compliance overrides the per-node translational compliance when set.
	Compliance []float64
}

// NewUncoupledCorrection creates an uncoupled correction for obj.
func NewUncoupledCorrection(obj *mechanics.Object, complianceFactor float64, rep *diag.Reporter) *UncoupledCorrection {
	return &UncoupledCorrection{obj: obj, complianceFactor: complianceFactor, rep: rep}
}

func (c *UncoupledCorrection) Object() *mechanics.Object { return c.obj }

func (c *UncoupledCorrection) Enabled() bool {
	if c.obj.ODE != nil && c.obj.Mass != nil {
		return true
	}
	c.rep.WarnOnce("correction:"+c.obj.Name, diag.Configuration, "correction",
		"object has no integrator or mass, correction disabled", "object", c.obj.Name)
	return false
}

// blocks returns the 3x3 compliance block of each node block of 3 DOFs.
func (c *UncoupledCorrection) blocks() []mgl64.Mat3 {
	s := c.obj.State
	m := c.obj.Mass
	if s.Kind == mechanics.Rigid {
		lin := 1 / m.Nodes[0]
		if len(c.Compliance) > 0 {
			lin = c.Compliance[0]
		}
		return []mgl64.Mat3{mgl64.Diag3(mgl64.Vec3{lin, lin, lin}), m.WorldInertia(s.Q[0]).Inv()}
	}
	out := make([]mgl64.Mat3, len(m.Nodes))
	for i, mi := range m.Nodes {
		ci := 1 / mi
		if i < len(c.Compliance) {
			ci = c.Compliance[i]
		}
		if s.Fixed[i] {
			ci = 0
		}
		out[i] = mgl64.Diag3(mgl64.Vec3{ci, ci, ci})
	}
	return out
}

// apply returns C·v over the object's DOFs.
func (c *UncoupledCorrection) apply(blocks []mgl64.Mat3, v []float64) []float64 {
	out := make([]float64, len(v))
	for b, m := range blocks {
		r := m.Mul3x1(mgl64.Vec3{v[3*b], v[3*b+1], v[3*b+2]})
		copy(out[3*b:3*b+3], r[:])
	}
	for i := range out {
		if c.obj.FixedDOF(i) {
			out[i] = 0
		}
	}
	return out
}

func (c *UncoupledCorrection) AddComplianceInConstraintSpace(rows []Row, offset int, w *mat.SymDense, factor float64) {
	if !c.Enabled() {
		return
	}
	n := c.obj.DOFs()
	rowIdx, block := localJacobian(rows, offset, n)
	if len(rowIdx) == 0 {
		return
	}
	blocks := c.blocks()
	cj := make([][]float64, len(block))
	for i, line := range block {
		cj[i] = c.apply(blocks, line)
	}
	local := mat.NewSymDense(len(rowIdx), nil)
	f := factor * c.complianceFactor
	for i := range block {
		for j := i; j < len(block); j++ {
			sum := 0.0
			for d := 0; d < n; d++ {
				sum += block[i][d] * cj[j][d]
			}
			local.SetSym(i, j, f*sum)
		}
	}
	addBlock(w, rowIdx, local)
}

func (c *UncoupledCorrection) ComputeMotionCorrectionFromLambda(rows []Row, offset int, lambda []float64) {
	dx := c.obj.State.DX
	clear(dx)
	if !c.Enabled() {
		return
	}
	n := c.obj.DOFs()
	rowIdx, block := localJacobian(rows, offset, n)
	if len(rowIdx) == 0 {
		return
	}
	f := make([]float64, n)
	for i, r := range rowIdx {
		for d := 0; d < n; d++ {
			f[d] += block[i][d] * lambda[r]
		}
	}
	copy(dx, c.apply(c.blocks(), f))
}

func (c *UncoupledCorrection) ApplyMotionCorrection(pf, vf float64) {
	if c.obj.ODE == nil || c.obj.Mass == nil {
		return
	}
	c.obj.State.ApplyCorrection(pf, vf)
}
