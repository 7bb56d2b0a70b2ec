package main

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/freemotion/config"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/scene"
	"github.com/pthm-cable/freemotion/simulation"
	"github.com/pthm-cable/freemotion/telemetry"
)

func quietReporter() *diag.Reporter {
	return diag.NewReporter(slog.New(slog.DiscardHandler))
}

func smallDemo() DemoOptions {
	opts := DefaultDemoOptions(7)
	opts.Spheres = 2
	opts.Boxes = 1
	opts.TerrainCells = 6
	opts.ClothCells = 3
	return opts
}

func TestBuildDemo(t *testing.T) {
	cfg := config.Default()
	sc := scene.New()
	opts := smallDemo()
	if err := buildDemo(sc, cfg, opts); err != nil {
		t.Fatalf("buildDemo: %v", err)
	}

	// terrain, obstacle, spheres, boxes, cloth
	wantObjects := 2 + opts.Spheres + opts.Boxes + 1
	if sc.NumObjects() != wantObjects {
		t.Errorf("objects = %d, want %d", sc.NumObjects(), wantObjects)
	}
	// terrain has three models
	wantBodies := 3 + 1 + opts.Spheres + opts.Boxes + 1
	if sc.NumBodies() != wantBodies {
		t.Errorf("bodies = %d, want %d", sc.NumBodies(), wantBodies)
	}
}

func TestBuildDemo_Deterministic(t *testing.T) {
	cfg := config.Default()
	positions := func() [][]mgl64.Vec3 {
		sc := scene.New()
		if err := buildDemo(sc, cfg, smallDemo()); err != nil {
			t.Fatalf("buildDemo: %v", err)
		}
		var out [][]mgl64.Vec3
		for h := range sc.Objects() {
			m, err := sc.Object(h)
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, append([]mgl64.Vec3(nil), m.Object.State.X...))
		}
		return out
	}

	a, b := positions(), positions()
	if len(a) != len(b) {
		t.Fatalf("object counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("object %d node %d differs: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func TestDemo_BodiesStayAboveTerrain(t *testing.T) {
	opts := smallDemo()
	cfg := config.Default()
	cfg.Simulation.Parallel = false
	cfg.Simulation.Workers = 1
	cfg.Contact.Response = opts.Response
	cfg.Sanitize(quietReporter())

	sc := scene.New()
	if err := buildDemo(sc, cfg, opts); err != nil {
		t.Fatalf("buildDemo: %v", err)
	}
	orch := simulation.NewOrchestrator(simulation.NewContext(cfg, sc, quietReporter()))

	const steps = 300
	for i := 0; i < steps; i++ {
		orch.Step()
	}
	for h := range sc.Objects() {
		m, err := sc.Object(h)
		if err != nil {
			t.Fatal(err)
		}
		if !m.Simulated {
			continue
		}
		for j, x := range m.Object.State.X {
			if x[1] < -opts.TerrainSize || math.IsNaN(x[1]) {
				t.Errorf("%s node %d at %v after %d steps, fell off the terrain", m.Object.Name, j, x, steps)
			}
		}
	}
}

func TestRun_WritesOutput(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Parallel = false
	cfg.Simulation.Workers = 1
	cfg.Telemetry.StatsWindow = 20
	dir := t.TempDir()

	opts := Options{
		Seed:      7,
		MaxSteps:  50,
		OutputDir: dir,
		Demo:      smallDemo(),
	}
	if err := run(cfg, quietReporter(), opts); err != nil {
		t.Fatalf("run: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "steps.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	steps, err := telemetry.ReadSteps(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != opts.MaxSteps {
		t.Fatalf("steps.csv has %d rows, want %d", len(steps), opts.MaxSteps)
	}
	for i, s := range steps {
		if s.Step != i {
			t.Fatalf("row %d has step %d", i, s.Step)
		}
	}

	for _, name := range []string{"run.yaml", "windows.csv", "perf.csv"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}
