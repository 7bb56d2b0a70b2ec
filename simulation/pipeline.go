package simulation

import (
	"github.com/pthm-cable/freemotion/collision"
	"github.com/pthm-cable/freemotion/config"
	"github.com/pthm-cable/freemotion/diag"
)

// Detection is the output of one collision detection pass.
type Detection struct {
	Bodies      int
	Pairs       []collision.Pair
	Proximities []collision.Proximity
}

// Pipeline runs collision reset, detection and response over the bodies of
// a context. Missing stages are reported once at construction and skipped.
type Pipeline struct {
	ctx     *Context
	depth   int
	verbose bool
}

// NewPipeline validates the context. A negative tree depth is replaced with
// the default and reported.
func NewPipeline(ctx *Context) *Pipeline {
	p := &Pipeline{
		ctx:     ctx,
		depth:   ctx.Config.Pipeline.Depth,
		verbose: ctx.Config.Pipeline.Verbose,
	}
	rep := ctx.Reporter
	if ctx.BroadPhase == nil {
		rep.WarnOnce("missing:broad_phase", diag.Configuration, "pipeline",
			"a broad phase is required to compute collision detection and was not found")
	}
	if ctx.NarrowPhase == nil {
		rep.WarnOnce("missing:narrow_phase", diag.Configuration, "pipeline",
			"a narrow phase is required to compute collision detection and was not found")
	}
	if ctx.Contacts == nil {
		rep.WarnOnce("missing:contact_manager", diag.Configuration, "pipeline",
			"a contact manager is required to compute collision response and was not found")
	}
	if p.depth < 0 {
		rep.Warn(diag.InvalidParameter, "pipeline", "invalid bounding tree depth replaced",
			"depth", p.depth, "used", config.DefaultDepth)
		p.depth = config.DefaultDepth
	}
	return p
}

// Context returns the pipeline's context.
func (p *Pipeline) Context() *Context { return p.ctx }

// Depth returns the validated bounding tree depth.
func (p *Pipeline) Depth() int { return p.depth }

// treeDepth is the depth trees are built to this step: the full depth when
// the broad phase walks hierarchies or a narrow phase will traverse them.
func (p *Pipeline) treeDepth() int {
	if p.ctx.NarrowPhase != nil || (p.ctx.BroadPhase != nil && p.ctx.BroadPhase.NeedsDeepBoundingTree()) {
		return p.depth
	}
	return 0
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.verbose {
		p.ctx.Reporter.Logger().Info(msg, args...)
	}
}

// Reset removes the response of every live contact and drops contacts whose
// bodies went away since the last step.
func (p *Pipeline) Reset() {
	p.info("collision reset")
	m := p.ctx.Contacts
	if m == nil {
		return
	}
	for _, c := range m.Contacts() {
		for _, pt := range c.Points() {
			c.RemoveResponse(pt)
		}
	}
	m.Prune()
}

// Detect refreshes every active body's bounding tree, then runs the broad
// and narrow phases. It reads current positions only.
func (p *Pipeline) Detect() Detection {
	ctx := p.ctx
	cfg := ctx.Config
	collision.UpdateBodies(ctx.Scene, ctx.Scheduler, collision.TreeParams{
		Depth:      p.treeDepth(),
		Continuous: cfg.Intersection.Continuous,
		DT:         cfg.Simulation.DT,
	})

	var det Detection
	var proxies []collision.Proxy
	for h := range ctx.Scene.ActiveBodies() {
		det.Bodies++
		b := ctx.Scene.MustBody(h)
		if b.Tree.Empty() {
			continue
		}
		proxies = append(proxies, collision.Proxy{Body: h, Ordinal: b.Ordinal, Box: b.Tree.Root()})
	}
	p.info("bounding trees computed", "bodies", det.Bodies, "depth", p.treeDepth())

	if ctx.BroadPhase == nil {
		return det
	}
	det.Pairs = ctx.BroadPhase.Detect(proxies, cfg.Intersection.AlarmDistance, ctx.Scene.CanCollide)
	p.info("broad phase", "name", ctx.BroadPhase.Name(), "pairs", len(det.Pairs))

	if ctx.NarrowPhase == nil {
		return det
	}
	det.Proximities = ctx.NarrowPhase.Detect(det.Pairs)
	p.info("narrow phase", "name", ctx.NarrowPhase.Name(), "proximities", len(det.Proximities))
	return det
}

// Response turns the detection output into contacts.
func (p *Pipeline) Response(det Detection) {
	if p.ctx.NarrowPhase == nil || p.ctx.Contacts == nil {
		return
	}
	p.ctx.Contacts.CreateContacts(det.Proximities)
	p.info("contacts created", "contacts", p.ctx.Contacts.Len(), "points", p.ctx.Contacts.NumActivePoints())
}
