package simulation

import (
	"log/slog"
	"math"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/collision"
	"github.com/pthm-cable/freemotion/components"
	"github.com/pthm-cable/freemotion/config"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/geom"
	"github.com/pthm-cable/freemotion/mechanics"
	"github.com/pthm-cable/freemotion/scene"
	"github.com/pthm-cable/freemotion/telemetry"
)

const radius = 0.1

func quietReporter() *diag.Reporter {
	return diag.NewReporter(slog.New(slog.DiscardHandler))
}

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Simulation.Parallel = false
	cfg.Simulation.Workers = 1
	if mutate != nil {
		mutate(cfg)
	}
	rep := quietReporter()
	cfg.Sanitize(rep)
	if n := len(rep.Pending()); n != 0 {
		t.Fatalf("test config raised %d warnings", n)
	}
	return cfg
}

func addFloor(t *testing.T, sc *scene.Scene) {
	t.Helper()
	verts, topo := geom.GridMesh(6, 6, 1, mgl64.Vec3{-3, 0, -3})
	h := sc.AddObject(mechanics.NewObject("floor", mechanics.NewParticleState(verts), mechanics.UniformMass(1, len(verts))), false)
	body := components.CollisionDefaults("floor", geom.KindTriangle, topo.TriangleElements())
	body.Topology = topo
	if _, err := sc.AddBody(h, body); err != nil {
		t.Fatalf("AddBody(floor): %v", err)
	}
}

func addBall(t *testing.T, sc *scene.Scene, cfg *config.Config, name string, at mgl64.Vec3) (*mechanics.Object, scene.Handle) {
	t.Helper()
	obj := mechanics.NewObject(name, mechanics.NewParticleState([]mgl64.Vec3{at}), mechanics.UniformMass(1, 1))
	obj.ForceFields = []mechanics.ForceField{mechanics.Gravity{G: cfg.Derived.Gravity}}
	obj.ODE = mechanics.EulerExplicit{}
	obj.Solver = mechanics.NewCholeskySolver(obj)
	oh := sc.AddObject(obj, true)
	bh, err := sc.AddBody(oh, components.CollisionDefaults(name, geom.KindSphere, []geom.Element{geom.NewSphere(0, radius)}))
	if err != nil {
		t.Fatalf("AddBody(%s): %v", name, err)
	}
	return obj, bh
}

func newWorld(t *testing.T, cfg *config.Config) (*Orchestrator, *diag.Reporter) {
	t.Helper()
	rep := quietReporter()
	sc := scene.New()
	addFloor(t, sc)
	return NewOrchestrator(NewContext(cfg, sc, rep)), rep
}

func contactIDs(ctx *Context) []collision.ContactID {
	var out []collision.ContactID
	for _, c := range ctx.Contacts.Contacts() {
		for _, p := range c.ActivePoints() {
			out = append(out, p.ID)
		}
	}
	return out
}

func TestPipeline_DepthClamping(t *testing.T) {
	tests := []struct {
		depth, want int
		warnings    int
	}{
		{-1, config.DefaultDepth, 1},
		{0, 0, 0},
		{2, 2, 0},
		{10, 10, 0},
		{1000, 1000, 0},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.Pipeline.Depth = tt.depth // bypass Sanitize on purpose
		rep := quietReporter()
		p := NewPipeline(NewContext(cfg, scene.New(), rep))
		if p.Depth() != tt.want {
			t.Errorf("depth %d: Depth() = %d, want %d", tt.depth, p.Depth(), tt.want)
		}
		if n := diag.Count(rep.Pending(), diag.InvalidParameter, "pipeline"); n != tt.warnings {
			t.Errorf("depth %d: warnings = %d, want %d", tt.depth, n, tt.warnings)
		}
	}
}

func TestPipeline_MissingNarrowPhaseWarnsOnce(t *testing.T) {
	cfg := testConfig(t, nil)
	rep := quietReporter()
	sc := scene.New()
	addFloor(t, sc)
	addBall(t, sc, cfg, "ball", mgl64.Vec3{0.5, radius + 0.02, 0.2})

	ctx := NewContext(cfg, sc, rep)
	ctx.NarrowPhase = nil
	o := NewOrchestrator(ctx)
	if n := diag.Count(rep.Drain(), diag.Configuration, "pipeline"); n != 1 {
		t.Fatalf("init warnings = %d, want 1", n)
	}
	if o.Pipeline().Depth() != config.DefaultDepth {
		t.Errorf("Depth() = %d, want %d", o.Pipeline().Depth(), config.DefaultDepth)
	}

	for i := 0; i < 3; i++ {
		r := o.Step()
		if n := diag.Count(r.Warnings, diag.Configuration, "pipeline"); n != 0 {
			t.Errorf("step %d: configuration warnings = %d, want 0", i, n)
		}
		if r.Contacts != 0 || r.Proximities != 0 {
			t.Errorf("step %d: contacts = %d, proximities = %d, want none", i, r.Contacts, r.Proximities)
		}
		if r.Pairs == 0 {
			t.Errorf("step %d: broad phase found no pairs", i)
		}
	}
}

func TestOrchestrator_StatesSkipConstraintStages(t *testing.T) {
	o, _ := newWorld(t, testConfig(t, nil))
	addBall(t, o.Context().Scene, o.Context().Config, "ball", mgl64.Vec3{0.5, 2, 0.2})

	r := o.Step()
	want := []State{PredictingFreeMotion, DetectingCollisions, Integrating}
	if !slices.Equal(r.States, want) {
		t.Errorf("States = %v, want %v", r.States, want)
	}
	if o.State() != Idle {
		t.Errorf("State() = %v after step, want idle", o.State())
	}
}

func TestOrchestrator_StatesPenaltyOnly(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) { c.Contact.Response = "penalty" })
	o, _ := newWorld(t, cfg)
	addBall(t, o.Context().Scene, cfg, "ball", mgl64.Vec3{0.5, radius + 0.005, 0.2})

	// penalty contacts are formulated but produce no rows to solve
	r := o.Step()
	want := []State{PredictingFreeMotion, DetectingCollisions, FormulatingConstraints, Integrating}
	if !slices.Equal(r.States, want) {
		t.Errorf("States = %v, want %v", r.States, want)
	}
	if r.Contacts == 0 || r.Rows != 0 {
		t.Errorf("contacts = %d, rows = %d, want contacts without rows", r.Contacts, r.Rows)
	}
}

func TestOrchestrator_StatesWithContacts(t *testing.T) {
	o, _ := newWorld(t, testConfig(t, nil))
	addBall(t, o.Context().Scene, o.Context().Config, "ball", mgl64.Vec3{0.5, radius + 0.005, 0.2})

	r := o.Step()
	want := []State{PredictingFreeMotion, DetectingCollisions, FormulatingConstraints, Solving, Correcting, Integrating}
	if !slices.Equal(r.States, want) {
		t.Errorf("States = %v, want %v", r.States, want)
	}
	if r.Rows == 0 {
		t.Error("no constraint rows for a ball touching the floor")
	}
}

func TestOrchestrator_RestingOnFloor(t *testing.T) {
	for _, velFirst := range []bool{false, true} {
		name := "pos_and_vel"
		if velFirst {
			name = "vel"
		}
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, func(c *config.Config) {
				c.Simulation.SolveVelocityConstraintFirst = velFirst
			})
			o, _ := newWorld(t, cfg)
			ball, _ := addBall(t, o.Context().Scene, cfg, "ball", mgl64.Vec3{0.5, 0.3, 0.2})

			for i := 0; i < 200; i++ {
				o.Step()
			}
			rest := radius + cfg.Intersection.ContactDistance
			if y := ball.State.X[0][1]; y < rest-0.005 {
				t.Errorf("ball sank: y = %v, want >= %v", y, rest)
			}
			if y := ball.State.X[0][1]; y > rest+0.01 {
				t.Errorf("ball floating: y = %v, want about %v", y, rest)
			}
			if vy := ball.State.V[1]; math.Abs(vy) > 0.05 {
				t.Errorf("ball not at rest: vy = %v", vy)
			}
		})
	}
}

func TestOrchestrator_ContactIDStable(t *testing.T) {
	cfg := testConfig(t, nil)
	o, _ := newWorld(t, cfg)
	addBall(t, o.Context().Scene, cfg, "ball", mgl64.Vec3{0.5, 0.3, 0.2})
	for i := 0; i < 100; i++ {
		o.Step()
	}

	first := contactIDs(o.Context())
	o.Step()
	second := contactIDs(o.Context())
	if len(first) == 0 {
		t.Fatal("no contacts for a resting ball")
	}
	if !slices.Equal(first, second) {
		t.Errorf("contact ids changed between steps: %v -> %v", first, second)
	}
}

func TestOrchestrator_RigidBoxOnFloor(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Solver.Tolerance = 1e-9
		c.Solver.ScaleTolerance = false
	})
	o, _ := newWorld(t, cfg)
	sc := o.Context().Scene

	half := mgl64.Vec3{0.1, 0.1, 0.1}
	corners := make([]mgl64.Vec3, 0, 8)
	for _, x := range []float64{-1, 1} {
		for _, y := range []float64{-1, 1} {
			for _, z := range []float64{-1, 1} {
				corners = append(corners, mgl64.Vec3{x * half[0], y * half[1], z * half[2]})
			}
		}
	}
	box := mechanics.NewObject("box", mechanics.NewRigidState(mgl64.Vec3{0.5, 0.3, 0.25}, mgl64.QuatIdent(), corners), mechanics.RigidBoxMass(1, half))
	box.ForceFields = []mechanics.ForceField{mechanics.Gravity{G: cfg.Derived.Gravity}}
	box.ODE = mechanics.EulerExplicit{}
	box.Solver = mechanics.NewLumpedSolver(box)
	oh := sc.AddObject(box, true)
	elems := make([]geom.Element, len(corners))
	for i := range corners {
		elems[i] = geom.NewPoint(i)
	}
	if _, err := sc.AddBody(oh, components.CollisionDefaults("box", geom.KindPoint, elems)); err != nil {
		t.Fatalf("AddBody: %v", err)
	}

	for i := 0; i < 200; i++ {
		o.Step()
	}
	lowest := math.Inf(1)
	for i := range corners {
		lowest = min(lowest, box.State.Vertex(mechanics.Position, i)[1])
	}
	if lowest < cfg.Intersection.ContactDistance-0.005 {
		t.Errorf("box corner sank to y = %v", lowest)
	}
	if lowest > cfg.Intersection.ContactDistance+0.01 {
		t.Errorf("box floating: lowest corner y = %v", lowest)
	}
	w := mgl64.Vec3{box.State.V[3], box.State.V[4], box.State.V[5]}
	if w.Len() > 0.1 {
		t.Errorf("box still spinning: ω = %v", w)
	}
}

func TestOrchestrator_PenaltySeparation(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Contact.Response = "penalty"
		c.Simulation.Gravity = [3]float64{}
	})
	o, _ := newWorld(t, cfg)
	ball, _ := addBall(t, o.Context().Scene, cfg, "ball", mgl64.Vec3{0.5, radius, 0.2})

	var pushed int
	for i := 0; i < 5; i++ {
		r := o.Step()
		if r.Rows != 0 {
			t.Errorf("step %d: penalty contacts produced %d rows", i, r.Rows)
		}
		pushed += r.Penalty
	}
	if pushed == 0 {
		t.Fatal("no penalty force applied")
	}
	if y := ball.State.X[0][1]; y <= radius {
		t.Errorf("ball not pushed out: y = %v", y)
	}
	if ball.State.V[1] <= 0 {
		t.Errorf("ball velocity %v, want moving away from the floor", ball.State.V[1])
	}
}

func TestOrchestrator_ObjectWithoutSolverWarnsOnce(t *testing.T) {
	cfg := testConfig(t, nil)
	o, _ := newWorld(t, cfg)
	ball, _ := addBall(t, o.Context().Scene, cfg, "ball", mgl64.Vec3{0.5, radius + 0.005, 0.2})
	ball.Solver = nil

	var warnings []diag.Warning
	for i := 0; i < 5; i++ {
		warnings = append(warnings, o.Step().Warnings...)
	}
	if n := diag.Count(warnings, diag.Configuration, "correction"); n != 1 {
		t.Errorf("correction warnings = %d, want 1", n)
	}
	// uncorrected objects keep their free motion
	if ball.State.V[1] >= 0 {
		t.Errorf("vy = %v, want free fall", ball.State.V[1])
	}
}

func TestOrchestrator_DegradedObjectsWarnOncePerObject(t *testing.T) {
	tests := []struct {
		name          string
		degrade       func(*mechanics.Object)
		mechanics     int
		configuration int
	}{
		{
			name:      "indefinite mass",
			degrade:   func(o *mechanics.Object) { o.Mass = mechanics.UniformMass(-1, 1) },
			mechanics: 2,
		},
		{
			name:          "no solver",
			degrade:       func(o *mechanics.Object) { o.Solver = nil },
			configuration: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, nil)
			o, _ := newWorld(t, cfg)
			sc := o.Context().Scene
			for _, b := range []struct {
				name string
				at   mgl64.Vec3
			}{
				{"left", mgl64.Vec3{-0.5, radius + 0.005, -0.2}},
				{"right", mgl64.Vec3{0.5, radius + 0.005, 0.2}},
			} {
				ball, _ := addBall(t, sc, cfg, b.name, b.at)
				tt.degrade(ball)
			}

			var warnings []diag.Warning
			for i := 0; i < 10; i++ {
				r := o.Step()
				if i == 0 && r.Rows == 0 {
					t.Fatal("first step formulated no rows")
				}
				warnings = append(warnings, r.Warnings...)
			}
			if o.Steps() != 10 {
				t.Fatalf("Steps() = %d, want 10", o.Steps())
			}
			if n := diag.Count(warnings, diag.Numerical, "mechanics"); n != tt.mechanics {
				t.Errorf("free motion warnings = %d, want %d", n, tt.mechanics)
			}
			if n := diag.Count(warnings, diag.Configuration, "correction"); n != tt.configuration {
				t.Errorf("correction warnings = %d, want %d", n, tt.configuration)
			}
			// one singular-row warning per ball, however many steps touch the floor
			if n := diag.Count(warnings, diag.Numerical, "solver"); n != 2 {
				t.Errorf("singular row warnings = %d, want 2", n)
			}
		})
	}
}

// stepWorld builds the reference scene, runs n steps and returns the
// contact ids of every step plus the final ball positions.
func stepWorld(t *testing.T, parallel bool, n int) ([][]collision.ContactID, []mgl64.Vec3) {
	t.Helper()
	cfg := testConfig(t, func(c *config.Config) {
		c.Simulation.Parallel = parallel
		if parallel {
			c.Simulation.Workers = 4
		}
	})
	o, _ := newWorld(t, cfg)
	ctx := o.Context()
	var balls []*mechanics.Object
	for i, p := range []mgl64.Vec3{
		{-1.5, 0.3, 0.2}, {-1.5, 0.55, 0.2}, // stacked
		{-0.5, 0.2, 0.2}, {0.5, 0.4, 0.2}, {1.5, 0.25, 0.3},
		{0.5, 0.25, 1.2}, {-0.5, 0.35, -1.3},
	} {
		b, _ := addBall(t, ctx.Scene, cfg, "ball"+string(rune('a'+i)), p)
		balls = append(balls, b)
	}
	ctx.Scheduler.SetThreshold(1)
	ctx.Start()
	defer ctx.Stop()
	if parallel && !ctx.Scheduler.Parallel() {
		t.Fatal("scheduler did not start")
	}

	var ids [][]collision.ContactID
	for i := 0; i < n; i++ {
		o.Step()
		ids = append(ids, contactIDs(ctx))
	}
	pos := make([]mgl64.Vec3, len(balls))
	for i, b := range balls {
		pos[i] = b.State.X[0]
	}
	return ids, pos
}

func TestOrchestrator_ConcurrencyEquivalence(t *testing.T) {
	const steps = 60
	serialIDs, serialPos := stepWorld(t, false, steps)
	parallelIDs, parallelPos := stepWorld(t, true, steps)

	for i := range serialIDs {
		if !slices.Equal(serialIDs[i], parallelIDs[i]) {
			t.Fatalf("step %d: contact ids differ\nserial:   %v\nparallel: %v", i, serialIDs[i], parallelIDs[i])
		}
	}
	if len(serialIDs[steps-1]) == 0 {
		t.Error("reference scene produced no contacts")
	}
	for i := range serialPos {
		if serialPos[i] != parallelPos[i] {
			t.Errorf("ball %d: serial %v, parallel %v", i, serialPos[i], parallelPos[i])
		}
	}
}

func TestOrchestrator_PerfPhases(t *testing.T) {
	o, _ := newWorld(t, testConfig(t, nil))
	addBall(t, o.Context().Scene, o.Context().Config, "ball", mgl64.Vec3{0.5, radius + 0.005, 0.2})
	perf := telemetry.NewPerfCollector(10)
	o.SetPerfCollector(perf)
	for i := 0; i < 3; i++ {
		o.Step()
	}
	stats := perf.Stats()
	for _, s := range []State{PredictingFreeMotion, DetectingCollisions, Solving, Integrating} {
		if _, ok := stats.PhaseAvg[s.String()]; !ok {
			t.Errorf("phase %s not timed", s)
		}
	}
}

func TestStepReport_Stats(t *testing.T) {
	cfg := testConfig(t, nil)
	o, _ := newWorld(t, cfg)
	addBall(t, o.Context().Scene, cfg, "ball", mgl64.Vec3{0.5, radius + 0.005, 0.2})

	collector := telemetry.NewCollector(4)
	var last StepReport
	for i := 0; i < 4; i++ {
		last = o.Step()
		collector.Record(last.Stats())
	}

	s := last.Stats()
	if s.Step != 3 || s.Time != last.Time {
		t.Errorf("step/time = %d/%v, want 3/%v", s.Step, s.Time, last.Time)
	}
	if s.Contacts != last.Contacts || s.Rows != last.Rows || s.Iterations != last.Solve.Iterations {
		t.Errorf("stats %+v do not match report", s)
	}
	if !collector.ShouldFlush() {
		t.Fatal("expected a full window")
	}
	ws := collector.Flush()
	if ws.WindowStart != 0 || ws.WindowEnd != 3 || ws.ContactsMax < 1 {
		t.Errorf("unexpected window %+v", ws)
	}
}
