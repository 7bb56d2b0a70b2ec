package simulation

import (
	"github.com/pthm-cable/freemotion/constraint"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/mechanics"
	"github.com/pthm-cable/freemotion/scheduler"
	"github.com/pthm-cable/freemotion/telemetry"
)

// State is a stage of the step state machine.
type State uint8

const (
	Idle State = iota
	PredictingFreeMotion
	DetectingCollisions
	FormulatingConstraints
	Solving
	Correcting
	Integrating
)

var stateNames = [...]string{
	Idle:                   "idle",
	PredictingFreeMotion:   telemetry.PhasePredictingFreeMotion,
	DetectingCollisions:    telemetry.PhaseDetectingCollisions,
	FormulatingConstraints: telemetry.PhaseFormulatingConstraints,
	Solving:                telemetry.PhaseSolving,
	Correcting:             telemetry.PhaseCorrecting,
	Integrating:            telemetry.PhaseIntegrating,
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// StepReport describes one completed step.
type StepReport struct {
	Step int
	Time float64 // simulated time at the end of the step

	Bodies      int
	Pairs       int
	Proximities int
	Contacts    int
	Points      int
	Rows        int
	Penalty     int // penalty points that pushed

	Solve constraint.Result

	// States lists the stages the step went through, Idle excluded.
	// Formulation is entered only with live contacts, solving and
	// correction only with rows.
	States []State
	// Warnings raised during the step.
	Warnings []diag.Warning
}

// Orchestrator advances a scene one step at a time. It is driven from a
// single control goroutine; the scheduler only runs the free motion branch
// and the per-body work split out of detection.
type Orchestrator struct {
	ctx        *Context
	pipeline   *Pipeline
	formulator constraint.Formulator
	perf       *telemetry.PerfCollector

	state State
	step  int
	time  float64
}

// NewOrchestrator creates an orchestrator and its collision pipeline.
func NewOrchestrator(ctx *Context) *Orchestrator {
	order := constraint.PosAndVel
	if ctx.Config.Simulation.SolveVelocityConstraintFirst {
		order = constraint.VelOnly
	}
	return &Orchestrator{
		ctx:      ctx,
		pipeline: NewPipeline(ctx),
		formulator: constraint.Formulator{
			Order:           order,
			ContactDistance: ctx.Config.Intersection.ContactDistance,
			DT:              ctx.Config.Simulation.DT,
		},
	}
}

// Pipeline returns the collision pipeline.
func (o *Orchestrator) Pipeline() *Pipeline { return o.pipeline }

// Context returns the scene context.
func (o *Orchestrator) Context() *Context { return o.ctx }

// State returns the current stage; Idle between steps.
func (o *Orchestrator) State() State { return o.state }

// Steps returns the number of completed steps.
func (o *Orchestrator) Steps() int { return o.step }

// Time returns the simulated time.
func (o *Orchestrator) Time() float64 { return o.time }

// SetPerfCollector enables per-stage timing.
func (o *Orchestrator) SetPerfCollector(p *telemetry.PerfCollector) { o.perf = p }

func (o *Orchestrator) enter(s State, r *StepReport) {
	o.state = s
	r.States = append(r.States, s)
	if o.perf != nil {
		o.perf.StartPhase(s.String())
	}
}

// objects splits the scene objects into moving and static ones, in
// registration order.
func (o *Orchestrator) objects() (moving, static []*mechanics.Object) {
	sc := o.ctx.Scene
	for h := range sc.Objects() {
		m, err := sc.Object(h)
		if err != nil {
			continue
		}
		if m.Simulated {
			moving = append(moving, m.Object)
		} else {
			static = append(static, m.Object)
		}
	}
	return moving, static
}

// Step runs the whole state machine once. It never fails: problems are
// reported as warnings in the returned report.
func (o *Orchestrator) Step() StepReport {
	ctx := o.ctx
	h := ctx.Config.Simulation.DT
	r := StepReport{Step: o.step}
	if o.perf != nil {
		o.perf.StartStep()
	}

	moving, static := o.objects()

	// Free motion writes only free buffers and forces; detection reads only
	// current positions and writes trees. They may overlap.
	o.enter(PredictingFreeMotion, &r)
	o.pipeline.Reset()
	freeMotion := func() {
		for _, obj := range static {
			obj.State.InitFree()
		}
		for _, obj := range moving {
			if err := obj.FreeMotion(h); err != nil {
				ctx.Reporter.WarnOnce("free_motion:"+obj.Name, diag.Numerical, "mechanics",
					"free motion degraded", "object", obj.Name, "error", err)
			}
		}
	}
	var branch *scheduler.Status
	if ctx.Config.Simulation.Parallel && ctx.Scheduler.Parallel() {
		branch = ctx.Scheduler.AddTask(freeMotion)
	} else {
		freeMotion()
	}

	o.enter(DetectingCollisions, &r)
	det := o.pipeline.Detect()
	if branch != nil {
		ctx.Scheduler.WorkUntilDone(branch)
	}
	o.pipeline.Response(det)
	r.Bodies = det.Bodies
	r.Pairs = len(det.Pairs)
	r.Proximities = len(det.Proximities)

	var (
		layout *constraint.Layout
		rows   []constraint.Row
		lambda []float64
	)
	if ctx.Contacts != nil && ctx.Contacts.Len() > 0 {
		o.enter(FormulatingConstraints, &r)
		layout, rows, lambda = o.formulate()
	}
	r.Rows = len(rows)

	corrected := make(map[*mechanics.Object]bool)
	if len(rows) > 0 {
		o.enter(Solving, &r)
		p := constraint.NewProblem(rows)
		copy(p.Lambda, lambda)
		p.Owners = owners(layout, rows)
		o.assemble(layout, p, h)
		var groups [][]int
		if ctx.Groups != nil {
			groups = ctx.Groups.Islands(rows, layout)
		}
		if ctx.Solver != nil {
			r.Solve = ctx.Solver.Solve(p, groups)
		}
		constraint.StoreLambda(ctx.Contacts.Contacts(), p.Lambda)

		o.enter(Correcting, &r)
		o.correct(layout, p, h, corrected)
	}

	o.enter(Integrating, &r)
	for _, obj := range moving {
		if !corrected[obj] {
			obj.State.Commit()
		}
	}
	if ctx.Contacts != nil {
		r.Penalty = ctx.Contacts.ApplyPenalty()
		r.Contacts = ctx.Contacts.Len()
		r.Points = ctx.Contacts.NumActivePoints()
	}

	o.step++
	o.time += h
	r.Time = o.time
	o.state = Idle
	if o.perf != nil {
		o.perf.EndStep()
	}
	r.Warnings = ctx.Reporter.Drain()
	return r
}

// formulate builds the rows of every live contact over the simulated
// objects they touch, in contact order.
func (o *Orchestrator) formulate() (*constraint.Layout, []constraint.Row, []float64) {
	m := o.ctx.Contacts
	m.RefreshMappers()
	var objs []*mechanics.Object
	for _, c := range m.Contacts() {
		if c.SimulatedA {
			objs = append(objs, c.MapperA.Object())
		}
		if c.SimulatedB {
			objs = append(objs, c.MapperB.Object())
		}
	}
	layout := constraint.NewLayout(objs)
	rows, lambda := o.formulator.Build(m.Contacts(), layout)
	return layout, rows, lambda
}

// owners names the object of each row's first entry.
func owners(layout *constraint.Layout, rows []constraint.Row) []string {
	objs := layout.Objects()
	out := make([]string, len(rows))
	for r, row := range rows {
		if len(row.Entries) == 0 {
			continue
		}
		i, _ := layout.Locate(row.Entries[0].DOF)
		out[r] = objs[i].Name
	}
	return out
}

// factor is the integration factor the compliance is scaled by.
func (o *Orchestrator) factor(obj *mechanics.Object, h float64) float64 {
	if obj.ODE == nil {
		return 0
	}
	if o.formulator.Order == constraint.VelOnly {
		return obj.ODE.VelocityFactor(h)
	}
	return obj.ODE.PositionFactor(h)
}

// assemble sums every object's compliance into W in layout order.
func (o *Orchestrator) assemble(layout *constraint.Layout, p *constraint.Problem, h float64) {
	for _, obj := range layout.Objects() {
		off, _ := layout.Offset(obj)
		o.ctx.Correction(obj).AddComplianceInConstraintSpace(p.Rows, off, p.W, o.factor(obj, h))
	}
}

// correct writes the corrected motion of every object in the layout.
// Objects whose correction is disabled keep their free motion.
func (o *Orchestrator) correct(layout *constraint.Layout, p *constraint.Problem, h float64, done map[*mechanics.Object]bool) {
	for _, obj := range layout.Objects() {
		corr := o.ctx.Correction(obj)
		if !corr.Enabled() {
			continue
		}
		off, _ := layout.Offset(obj)
		corr.ComputeMotionCorrectionFromLambda(p.Rows, off, p.Lambda)
		vf := obj.ODE.VelocityFactor(h)
		if o.formulator.Order == constraint.VelOnly {
			corr.ApplyMotionCorrection(0, vf)
			obj.State.IntegratePosition(h)
		} else {
			corr.ApplyMotionCorrection(obj.ODE.PositionFactor(h), vf)
		}
		done[obj] = true
	}
}

// Stats flattens the report into a telemetry record.
func (r StepReport) Stats() telemetry.StepStats {
	return telemetry.StepStats{
		Step:        r.Step,
		Time:        r.Time,
		Bodies:      r.Bodies,
		Pairs:       r.Pairs,
		Proximities: r.Proximities,
		Contacts:    r.Contacts,
		Points:      r.Points,
		Rows:        r.Rows,
		Penalty:     r.Penalty,
		Iterations:  r.Solve.Iterations,
		Residual:    r.Solve.Residual,
		Converged:   r.Solve.Converged,
		Warnings:    len(r.Warnings),
	}
}
