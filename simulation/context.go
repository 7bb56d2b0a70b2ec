// Package simulation runs the contact step: free motion prediction, collision
// detection, constraint formulation, the constrained solve and the motion
// correction of every object.
package simulation

import (
	"github.com/pthm-cable/freemotion/collision"
	"github.com/pthm-cable/freemotion/config"
	"github.com/pthm-cable/freemotion/constraint"
	"github.com/pthm-cable/freemotion/contact"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/mechanics"
	"github.com/pthm-cable/freemotion/scene"
	"github.com/pthm-cable/freemotion/scheduler"
)

// Context holds the collaborators of one scene. It is built once per scene
// and passed to the pipeline and orchestrator. Any stage may be left nil;
// the pipeline warns once and skips it.
type Context struct {
	Config    *config.Config
	Scene     *scene.Scene
	Reporter  *diag.Reporter
	Scheduler *scheduler.TaskScheduler

	BroadPhase  collision.BroadPhase
	NarrowPhase collision.NarrowPhase
	Contacts    *contact.Manager
	Groups      *constraint.GroupManager // optional
	Solver      *constraint.Solver

	corrections map[*mechanics.Object]constraint.Correction
}

// NewContext wires the default collaborators described by cfg. The
// scheduler is created but not started.
func NewContext(cfg *config.Config, sc *scene.Scene, rep *diag.Reporter) *Context {
	ctx := &Context{
		Config:      cfg,
		Scene:       sc,
		Reporter:    rep,
		Scheduler:   scheduler.New(cfg.Derived.Workers),
		BroadPhase:  collision.NewBroadPhase(cfg.Pipeline.BroadPhase),
		Groups:      constraint.NewGroupManager(),
		corrections: make(map[*mechanics.Object]constraint.Correction),
	}

	var filter *collision.LocalFeatureFilter
	if cfg.Intersection.UseFilters {
		filter = collision.NewLocalFeatureFilter(cfg.Intersection.ConeTolerance)
	}
	np := collision.NewBVHNarrowPhase(sc, rep, collision.Params{
		AlarmDistance:   cfg.Intersection.AlarmDistance,
		ContactDistance: cfg.Intersection.ContactDistance,
	}, filter, ctx.Scheduler)
	ctx.NarrowPhase = np

	table := contact.BuildResponseTable(cfg.Contact, np.Table().Supports, rep)
	ctx.Contacts = contact.NewManager(sc, table, rep, contact.Options{
		Friction:         cfg.Contact.Friction,
		Persistence:      cfg.Contact.Persistence,
		PenaltyStiffness: cfg.Contact.PenaltyStiffness,
		ContactDistance:  cfg.Intersection.ContactDistance,
	})

	ctx.Solver = constraint.NewSolver(constraint.SolverOptions{
		MaxIterations:  cfg.Solver.MaxIterations,
		Tolerance:      cfg.Solver.Tolerance,
		ScaleTolerance: cfg.Solver.ScaleTolerance,
		SOR:            cfg.Solver.SOR,
		WarmStart:      cfg.Solver.WarmStart,
	}, rep)
	return ctx
}

// Start launches the worker pool when parallel stepping is enabled.
func (c *Context) Start() {
	if c.Scheduler != nil && c.Config.Simulation.Parallel {
		c.Scheduler.Start()
	}
}

// Stop shuts the worker pool down.
func (c *Context) Stop() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
}

// Correction returns the correction of obj, creating it on first use.
func (c *Context) Correction(obj *mechanics.Object) constraint.Correction {
	if corr, ok := c.corrections[obj]; ok {
		return corr
	}
	if c.corrections == nil {
		c.corrections = make(map[*mechanics.Object]constraint.Correction)
	}
	corr := constraint.NewCorrection(c.Config.Correction.Kind, obj, c.Config.Correction.ComplianceFactor, c.Reporter)
	c.corrections[obj] = corr
	return corr
}

// SetCorrection overrides the correction used for obj.
func (c *Context) SetCorrection(obj *mechanics.Object, corr constraint.Correction) {
	if c.corrections == nil {
		c.corrections = make(map[*mechanics.Object]constraint.Correction)
	}
	c.corrections[obj] = corr
}
