package telemetry

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Phase names for the simulation step, one per orchestrator state.
const (
	PhasePredictingFreeMotion   = "predicting_free_motion"
	PhaseDetectingCollisions    = "detecting_collisions"
	PhaseFormulatingConstraints = "formulating_constraints"
	PhaseSolving                = "solving"
	PhaseCorrecting             = "correcting"
	PhaseIntegrating            = "integrating"
)

// Phases lists the step phases in execution order.
var Phases = []string{
	PhasePredictingFreeMotion,
	PhaseDetectingCollisions,
	PhaseFormulatingConstraints,
	PhaseSolving,
	PhaseCorrecting,
	PhaseIntegrating,
}

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
// It is driven from the control goroutine only.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	stepStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of steps to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a new simulation step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndStep finishes timing the current step and records the sample.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.lastPhase = ""
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total step time
	PhasePct map[string]float64

	StepsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	out := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	n := p.sampleCount
	if n == 0 {
		return out
	}

	steps := make([]float64, n)
	perPhase := make(map[string][]float64)
	for i, s := range p.samples[:n] {
		steps[i] = float64(s.StepDuration)
		for phase, d := range s.Phases {
			if perPhase[phase] == nil {
				perPhase[phase] = make([]float64, n)
			}
			perPhase[phase][i] = float64(d)
		}
	}

	avg := stat.Mean(steps, nil)
	out.AvgStepDuration = time.Duration(avg)
	out.MinStepDuration = time.Duration(floats.Min(steps))
	out.MaxStepDuration = time.Duration(floats.Max(steps))
	for phase, ds := range perPhase {
		// steps that skipped the phase count as zero
		mean := stat.Mean(ds, nil)
		out.PhaseAvg[phase] = time.Duration(mean)
		if avg > 0 {
			out.PhasePct[phase] = mean / avg * 100
		}
	}
	if avg > 0 {
		out.StepsPerSecond = float64(time.Second) / avg
	}
	return out
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd               int     `csv:"window_end"`
	AvgStepUS               int64   `csv:"avg_step_us"`
	MinStepUS               int64   `csv:"min_step_us"`
	MaxStepUS               int64   `csv:"max_step_us"`
	StepsPerSec             float64 `csv:"steps_per_sec"`
	PredictingFreeMotionPct float64 `csv:"predicting_free_motion_pct"`
	DetectingCollisionsPct  float64 `csv:"detecting_collisions_pct"`
	FormulatingPct          float64 `csv:"formulating_constraints_pct"`
	SolvingPct              float64 `csv:"solving_pct"`
	CorrectingPct           float64 `csv:"correcting_pct"`
	IntegratingPct          float64 `csv:"integrating_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:               windowEnd,
		AvgStepUS:               s.AvgStepDuration.Microseconds(),
		MinStepUS:               s.MinStepDuration.Microseconds(),
		MaxStepUS:               s.MaxStepDuration.Microseconds(),
		StepsPerSec:             s.StepsPerSecond,
		PredictingFreeMotionPct: s.PhasePct[PhasePredictingFreeMotion],
		DetectingCollisionsPct:  s.PhasePct[PhaseDetectingCollisions],
		FormulatingPct:          s.PhasePct[PhaseFormulatingConstraints],
		SolvingPct:              s.PhasePct[PhaseSolving],
		CorrectingPct:           s.PhasePct[PhaseCorrecting],
		IntegratingPct:          s.PhasePct[PhaseIntegrating],
	}
}
