package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/geom"
)

func quietReporter() *diag.Reporter {
	return diag.NewReporter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Depth != DefaultDepth {
		t.Errorf("depth = %d, want %d", cfg.Pipeline.Depth, DefaultDepth)
	}
	if cfg.Derived.Gravity[1] >= 0 {
		t.Errorf("gravity = %v, want negative Y", cfg.Derived.Gravity)
	}
	if cfg.Derived.Workers < 1 {
		t.Errorf("workers = %d, want >= 1", cfg.Derived.Workers)
	}

	// defaults must already be valid
	rep := quietReporter()
	cfg.Sanitize(rep)
	if n := len(rep.Drain()); n != 0 {
		t.Errorf("defaults raised %d warnings, want 0", n)
	}
}

func TestLoad_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.yaml")
	user := []byte(`
pipeline:
  depth: 2
contact:
  rules:
    - {a: point, b: triangle, response: friction}
`)
	if err := os.WriteFile(path, user, 0644); err != nil {
		t.Fatalf("writing user config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Depth != 2 {
		t.Errorf("depth = %d, want 2", cfg.Pipeline.Depth)
	}
	// fields absent from the user file keep their defaults
	if cfg.Solver.MaxIterations != DefaultMaxIterations {
		t.Errorf("max_iterations = %d, want %d", cfg.Solver.MaxIterations, DefaultMaxIterations)
	}
	if len(cfg.Contact.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(cfg.Contact.Rules))
	}
	r := cfg.Contact.Rules[0]
	if r.A != geom.KindPoint || r.B != geom.KindTriangle || r.Response != "friction" {
		t.Errorf("rule = %+v", r)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		check func(*Config) bool
	}{
		{"negative depth", func(c *Config) { c.Pipeline.Depth = -1 }, func(c *Config) bool { return c.Pipeline.Depth == DefaultDepth }},
		{"zero tolerance", func(c *Config) { c.Solver.Tolerance = 0 }, func(c *Config) bool { return c.Solver.Tolerance == DefaultTolerance }},
		{"zero iterations", func(c *Config) { c.Solver.MaxIterations = 0 }, func(c *Config) bool { return c.Solver.MaxIterations == DefaultMaxIterations }},
		{"sor too large", func(c *Config) { c.Solver.SOR = 3 }, func(c *Config) bool { return c.Solver.SOR == DefaultSOR }},
		{"zero persistence", func(c *Config) { c.Contact.Persistence = 0 }, func(c *Config) bool { return c.Contact.Persistence == DefaultPersistence }},
		{"unknown broad phase", func(c *Config) { c.Pipeline.BroadPhase = "octree" }, func(c *Config) bool { return c.Pipeline.BroadPhase == DefaultBroadPhase }},
		{"alarm below contact", func(c *Config) { c.Intersection.AlarmDistance = 0.001 }, func(c *Config) bool {
			return c.Intersection.AlarmDistance == c.Intersection.ContactDistance
		}},
		{"zero dt", func(c *Config) { c.Simulation.DT = 0 }, func(c *Config) bool { return c.Simulation.DT == DefaultDT }},
		{"unknown correction", func(c *Config) { c.Correction.Kind = "exact" }, func(c *Config) bool { return c.Correction.Kind == DefaultCorrection }},
		{"negative cone tolerance", func(c *Config) { c.Intersection.ConeTolerance = -0.1 }, func(c *Config) bool { return c.Intersection.ConeTolerance == 0 }},
		{"negative penalty stiffness", func(c *Config) { c.Contact.PenaltyStiffness = -5 }, func(c *Config) bool { return c.Contact.PenaltyStiffness == 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			rep := quietReporter()
			cfg.Sanitize(rep)
			if !tt.check(cfg) {
				t.Errorf("value not replaced: %+v", cfg)
			}
			ws := rep.Drain()
			if got := diag.Count(ws, diag.InvalidParameter, "config"); got != 1 {
				t.Errorf("warnings = %d, want 1", got)
			}
		})
	}
}

func TestSanitize_ValidDepthsVerbatim(t *testing.T) {
	for _, depth := range []int{0, 2, 10, 1000} {
		cfg := Default()
		cfg.Pipeline.Depth = depth
		rep := quietReporter()
		cfg.Sanitize(rep)
		if cfg.Pipeline.Depth != depth {
			t.Errorf("depth = %d, want %d", cfg.Pipeline.Depth, depth)
		}
		if n := len(rep.Drain()); n != 0 {
			t.Errorf("depth %d raised %d warnings", depth, n)
		}
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Depth = 3
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Pipeline.Depth != 3 {
		t.Errorf("depth = %d, want 3", got.Pipeline.Depth)
	}
}
