package constraint

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/freemotion/diag"
)

// Problem is one constrained solve: W·λ + violation, bounded per row kind.
type Problem struct {
	Rows   []Row
	W      *mat.SymDense
	Lambda []float64 // initial guess in, solution out

	// Owners optionally names the object each row belongs to. When set,
	// singular rows are reported once per owner instead of on every solve.
	Owners []string
}

// NewProblem allocates W and λ for rows.
func NewProblem(rows []Row) *Problem {
	n := len(rows)
	p := &Problem{Rows: rows, Lambda: make([]float64, n)}
	if n > 0 {
		p.W = mat.NewSymDense(n, nil)
	}
	return p
}

// Result reports how a solve went.
type Result struct {
	Iterations int
	Residual   float64
	// Converged is false when some island ran out of iterations. λ then
	// holds that island's lowest-residual iterate, not its last one.
	Converged  bool
	Skipped    int // rows with a non-positive diagonal
	Islands    int
}

// SolverOptions configures projected Gauss-Seidel.
type SolverOptions struct {
	MaxIterations  int
	Tolerance      float64
	ScaleTolerance bool
	SOR            float64
	WarmStart      bool
}

// Solver is a projected Gauss-Seidel LCP solver.
type Solver struct {
	opts SolverOptions
	rep  *diag.Reporter
}

// NewSolver creates a solver.
func NewSolver(opts SolverOptions, rep *diag.Reporter) *Solver {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.SOR <= 0 || opts.SOR > 2 {
		opts.SOR = 1
	}
	return &Solver{opts: opts, rep: rep}
}

// Options returns the solver options.
func (s *Solver) Options() SolverOptions {
	return s.opts
}

// Solve solves p in place. When groups is non-nil each island is iterated
// separately. Non-convergence and singular rows raise Numerical warnings;
// λ always holds the best iterate.
func (s *Solver) Solve(p *Problem, groups [][]int) Result {
	n := len(p.Rows)
	if n == 0 {
		return Result{Converged: true}
	}
	if !s.opts.WarmStart {
		clear(p.Lambda)
	}

	skip := make([]bool, n)
	var res Result
	for i := 0; i < n; i++ {
		if d := p.W.At(i, i); !(d > 0) {
			skip[i] = true
			p.Lambda[i] = 0
			res.Skipped++
		}
	}
	s.reportSkipped(p, skip, res.Skipped)

	if groups == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		groups = [][]int{all}
	}
	res.Islands = len(groups)
	res.Converged = true
	for _, g := range groups {
		it, residual, ok := s.solveGroup(p, g, skip)
		res.Iterations = max(res.Iterations, it)
		res.Residual = max(res.Residual, residual)
		res.Converged = res.Converged && ok
	}
	if !res.Converged {
		s.rep.Warn(diag.Numerical, "solver", "constraint solve did not converge",
			"iterations", res.Iterations, "residual", res.Residual, "rows", n)
	}
	return res
}

func (s *Solver) reportSkipped(p *Problem, skip []bool, total int) {
	if total == 0 {
		return
	}
	if p.Owners == nil {
		s.rep.Warn(diag.Numerical, "solver", "singular compliance rows skipped", "rows", total)
		return
	}
	perOwner := make(map[string]int)
	var owners []string
	for i, skipped := range skip {
		if !skipped {
			continue
		}
		owner := p.Owners[i]
		if perOwner[owner] == 0 {
			owners = append(owners, owner)
		}
		perOwner[owner]++
	}
	for _, owner := range owners {
		s.rep.WarnOnce("singular_rows:"+owner, diag.Numerical, "solver", "singular compliance rows skipped",
			"object", owner, "rows", perOwner[owner])
	}
}

// solveGroup iterates the rows of one island. Rows must be listed with each
// tangent row after its head.
func (s *Solver) solveGroup(p *Problem, rows []int, skip []bool) (int, float64, bool) {
	tol := s.opts.Tolerance
	if s.opts.ScaleTolerance {
		tol *= float64(len(rows))
	}
	w := p.W
	lambda := p.Lambda
	omega := s.opts.SOR
	delta := make([]float64, len(rows))
	best := make([]float64, len(rows))
	bestResidual := math.Inf(1)

	for it := 1; it <= s.opts.MaxIterations; it++ {
		for k, i := range rows {
			old := lambda[i]
			delta[k] = 0
			if skip[i] {
				continue
			}
			row := &p.Rows[i]
			// residual of row i with the current iterate
			r := row.Violation
			for _, j := range rows {
				r += w.At(i, j) * lambda[j]
			}
			l := old - omega*r/w.At(i, i)

			switch row.Kind {
			case Unilateral:
				l = math.Max(l, 0)
			case Tangent:
				l = s.projectTangent(p, i, l)
			}
			lambda[i] = l
			delta[k] = l - old
		}
		// the change of λ in constraint space measures convergence
		residual := floats.Norm(delta, math.Inf(1))
		if residual <= tol {
			return it, residual, true
		}
		if residual < bestResidual {
			bestResidual = residual
			for k, i := range rows {
				best[k] = lambda[i]
			}
		}
	}
	for k, i := range rows {
		lambda[i] = best[k]
	}
	return s.opts.MaxIterations, bestResidual, false
}

// projectTangent clamps a tangent impulse into the Coulomb cone of its
// head, accounting for the other tangent of the same group.
func (s *Solver) projectTangent(p *Problem, i int, l float64) float64 {
	head := p.Rows[i].Head
	bound := p.Rows[head].Mu * math.Max(p.Lambda[head], 0)
	other := head + 1
	if other == i {
		other = head + 2
	}
	lo := 0.0
	if other < len(p.Rows) && p.Rows[other].Head == head && other != i {
		lo = p.Lambda[other]
	}
	norm := math.Hypot(l, lo)
	if norm <= bound || norm == 0 {
		return l
	}
	return l * bound / norm
}

// Complementarity returns the worst violation of 0 ≤ λ ⟂ W·λ + δ ≥ 0 over
// the unilateral rows: the most negative λ or gap, or the largest λ·gap.
func Complementarity(p *Problem) float64 {
	worst := 0.0
	for i, row := range p.Rows {
		if row.Kind != Unilateral {
			continue
		}
		gap := row.Violation
		for j := range p.Rows {
			gap += p.W.At(i, j) * p.Lambda[j]
		}
		worst = max(worst, -p.Lambda[i], -gap, math.Abs(p.Lambda[i]*gap))
	}
	return worst
}
