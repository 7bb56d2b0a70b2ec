package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	mean, std, p90 := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(mean-5) > 1e-12 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if math.Abs(std-2) > 1e-12 {
		t.Errorf("std = %v, want 2", std)
	}
	// sorted index 0.9*7 = 6.3 between 7 and 9
	if math.Abs(p90-7.6) > 1e-9 {
		t.Errorf("p90 = %v, want 7.6", p90)
	}

	if m, s, p := Summarize(nil); m != 0 || s != 0 || p != 0 {
		t.Errorf("empty summary = %v %v %v", m, s, p)
	}
	if m, s, p := Summarize([]float64{3}); m != 3 || s != 0 || p != 3 {
		t.Errorf("single summary = %v %v %v", m, s, p)
	}
}

func TestAggregate(t *testing.T) {
	steps := []StepStats{
		{Step: 10, Time: 0.11, Contacts: 0, Points: 0},
		{Step: 11, Time: 0.12, Contacts: 2, Points: 3, Rows: 9, Iterations: 4, Residual: 1e-7, Converged: true, Penalty: 1},
		{Step: 12, Time: 0.13, Contacts: 2, Points: 5, Rows: 15, Iterations: 8, Residual: 3e-6, Converged: false, Warnings: 1},
	}

	ws := Aggregate(steps)
	if ws.WindowStart != 10 || ws.WindowEnd != 12 || ws.Steps != 3 {
		t.Errorf("unexpected window bounds %+v", ws)
	}
	if ws.SimTime != 0.13 {
		t.Errorf("SimTime = %v, want 0.13", ws.SimTime)
	}
	if ws.ContactsMax != 2 || ws.PointsMax != 5 {
		t.Errorf("maxima = %d %d, want 2 5", ws.ContactsMax, ws.PointsMax)
	}
	if math.Abs(ws.PointsMean-8.0/3) > 1e-12 {
		t.Errorf("PointsMean = %v", ws.PointsMean)
	}
	if ws.Solves != 2 || ws.NotConverged != 1 {
		t.Errorf("solves = %d not converged = %d, want 2 1", ws.Solves, ws.NotConverged)
	}
	if ws.IterationsMean != 6 || ws.IterationsStd != 2 {
		t.Errorf("iterations mean/std = %v %v, want 6 2", ws.IterationsMean, ws.IterationsStd)
	}
	if ws.ResidualMax != 3e-6 {
		t.Errorf("ResidualMax = %v", ws.ResidualMax)
	}
	if ws.PenaltyTotal != 1 || ws.Warnings != 1 {
		t.Errorf("penalty/warnings = %d %d, want 1 1", ws.PenaltyTotal, ws.Warnings)
	}

	if got := Aggregate(nil); got != (WindowStats{}) {
		t.Errorf("empty aggregate = %+v", got)
	}
}

func TestCollector_Window(t *testing.T) {
	c := NewCollector(3)
	for i := 0; i < 2; i++ {
		c.Record(StepStats{Step: i, Contacts: i})
		if c.ShouldFlush() {
			t.Fatalf("flush requested after %d steps", i+1)
		}
	}
	c.Record(StepStats{Step: 2, Contacts: 4})
	if !c.ShouldFlush() {
		t.Fatal("expected flush after a full window")
	}

	ws := c.Flush()
	if ws.Steps != 3 || ws.ContactsMax != 4 {
		t.Errorf("unexpected window %+v", ws)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d after flush", c.Pending())
	}
}
