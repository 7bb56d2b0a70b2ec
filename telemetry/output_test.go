package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/freemotion/config"
)

func TestOutputManager_Disabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	if err := om.WriteStep(StepStats{}); err != nil {
		t.Errorf("nil manager WriteStep: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil manager Close: %v", err)
	}
}

func TestOutputManager_StepsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	want := []StepStats{
		{Step: 0, Time: 0.01, Bodies: 3, Pairs: 1},
		{Step: 1, Time: 0.02, Bodies: 3, Pairs: 1, Contacts: 1, Points: 2, Rows: 6, Iterations: 5, Residual: 1e-8, Converged: true},
	}
	for _, s := range want {
		if err := om.WriteStep(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WritePerf(PerfStats{}, 2); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteWindow(Aggregate(want)); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "steps.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := ReadSteps(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d steps, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, name := range []string{"perf.csv", "windows.csv", "bookmarks.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestOutputManager_WriteRun(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer om.Close()

	cfg := config.Default()
	info := NewRunInfo(cfg, 42)
	if _, err := uuid.Parse(info.ID); err != nil {
		t.Errorf("run id %q is not a uuid: %v", info.ID, err)
	}
	if err := om.WriteRun(info); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var back struct {
		ID     string        `yaml:"id"`
		Seed   int64         `yaml:"seed"`
		Config config.Config `yaml:"config"`
	}
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.ID != info.ID || back.Seed != 42 {
		t.Errorf("run.yaml id/seed = %q/%d", back.ID, back.Seed)
	}
	if back.Config.Simulation.DT != cfg.Simulation.DT {
		t.Errorf("run.yaml dt = %v, want %v", back.Config.Simulation.DT, cfg.Simulation.DT)
	}
}
