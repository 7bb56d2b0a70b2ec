package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseDetectingCollisions)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseSolving)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	if stats.MinStepDuration > stats.AvgStepDuration || stats.AvgStepDuration > stats.MaxStepDuration {
		t.Errorf("expected min <= avg <= max, got %v %v %v",
			stats.MinStepDuration, stats.AvgStepDuration, stats.MaxStepDuration)
	}
	if _, ok := stats.PhaseAvg[PhaseDetectingCollisions]; !ok {
		t.Error("expected detecting_collisions phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseSolving]; !ok {
		t.Error("expected solving phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseCorrecting]; ok {
		t.Error("correcting phase was never entered")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseIntegrating)
		time.Sleep(10 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(500 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	fastPct := stats.PhasePct["fast"]
	slowPct := stats.PhasePct["slow"]
	if slowPct <= fastPct {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", slowPct, fastPct)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats.AvgStepDuration != 0 {
		t.Error("expected zero avg step duration for empty collector")
	}
	if stats.PhaseAvg == nil {
		t.Error("expected non-nil PhaseAvg map")
	}
	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	s := PerfStats{
		AvgStepDuration: 1500 * time.Microsecond,
		MinStepDuration: time.Millisecond,
		MaxStepDuration: 2 * time.Millisecond,
		StepsPerSecond:  666.6,
		PhasePct: map[string]float64{
			PhaseSolving:     40,
			PhaseIntegrating: 5,
		},
	}

	row := s.ToCSV(120)
	if row.WindowEnd != 120 || row.AvgStepUS != 1500 || row.MinStepUS != 1000 || row.MaxStepUS != 2000 {
		t.Errorf("unexpected timings %+v", row)
	}
	if row.SolvingPct != 40 || row.IntegratingPct != 5 || row.CorrectingPct != 0 {
		t.Errorf("unexpected phase percentages %+v", row)
	}
}
