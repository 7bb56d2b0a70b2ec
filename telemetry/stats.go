package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StepStats is the per-step record written to steps.csv.
type StepStats struct {
	Step        int     `csv:"step"`
	Time        float64 `csv:"time"`
	Bodies      int     `csv:"bodies"`
	Pairs       int     `csv:"pairs"`
	Proximities int     `csv:"proximities"`
	Contacts    int     `csv:"contacts"`
	Points      int     `csv:"points"`
	Rows        int     `csv:"rows"`
	Penalty     int     `csv:"penalty"`
	Iterations  int     `csv:"iterations"`
	Residual    float64 `csv:"residual"`
	Converged   bool    `csv:"converged"`
	Warnings    int     `csv:"warnings"`
}

// WindowStats holds aggregated statistics for a window of steps.
type WindowStats struct {
	WindowStart int     `csv:"window_start"`
	WindowEnd   int     `csv:"window_end"`
	SimTime     float64 `csv:"sim_time"`
	Steps       int     `csv:"steps"`

	// Contact load
	ContactsMean float64 `csv:"contacts_mean"`
	ContactsMax  int     `csv:"contacts_max"`
	PointsMean   float64 `csv:"points_mean"`
	PointsMax    int     `csv:"points_max"`
	RowsMean     float64 `csv:"rows_mean"`
	PenaltyTotal int     `csv:"penalty_total"`

	// Solver behaviour, over steps that solved at least one row
	Solves         int     `csv:"solves"`
	IterationsMean float64 `csv:"iterations_mean"`
	IterationsStd  float64 `csv:"iterations_std"`
	IterationsP90  float64 `csv:"iterations_p90"`
	ResidualMean   float64 `csv:"residual_mean"`
	ResidualMax    float64 `csv:"residual_max"`
	NotConverged   int     `csv:"not_converged"`

	Warnings int `csv:"warnings"`
}

// Percentile returns the p-quantile of sorted values with linear
// interpolation between neighbours.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summarize returns the mean, population standard deviation and the 90th
// percentile of values.
func Summarize(values []float64) (mean, std, p90 float64) {
	switch len(values) {
	case 0:
		return 0, 0, 0
	case 1:
		return values[0], 0, values[0]
	}
	mean, std = stat.PopMeanStdDev(values, nil)
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return mean, std, Percentile(sorted, 0.9)
}

// Aggregate folds a window of step records into WindowStats.
func Aggregate(steps []StepStats) WindowStats {
	if len(steps) == 0 {
		return WindowStats{}
	}
	first, last := steps[0], steps[len(steps)-1]
	ws := WindowStats{
		WindowStart: first.Step,
		WindowEnd:   last.Step,
		SimTime:     last.Time,
		Steps:       len(steps),
	}

	contacts := make([]float64, len(steps))
	points := make([]float64, len(steps))
	rows := make([]float64, len(steps))
	var iters, residuals []float64
	for i, s := range steps {
		contacts[i] = float64(s.Contacts)
		points[i] = float64(s.Points)
		rows[i] = float64(s.Rows)
		ws.ContactsMax = max(ws.ContactsMax, s.Contacts)
		ws.PointsMax = max(ws.PointsMax, s.Points)
		ws.PenaltyTotal += s.Penalty
		ws.Warnings += s.Warnings
		if s.Rows == 0 {
			continue
		}
		ws.Solves++
		iters = append(iters, float64(s.Iterations))
		residuals = append(residuals, s.Residual)
		if !s.Converged {
			ws.NotConverged++
		}
	}

	ws.ContactsMean = stat.Mean(contacts, nil)
	ws.PointsMean = stat.Mean(points, nil)
	ws.RowsMean = stat.Mean(rows, nil)
	ws.IterationsMean, ws.IterationsStd, ws.IterationsP90 = Summarize(iters)
	if len(residuals) > 0 {
		ws.ResidualMean = stat.Mean(residuals, nil)
		ws.ResidualMax = floats.Max(residuals)
	}
	return ws
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStart),
		slog.Int("window_end", s.WindowEnd),
		slog.Float64("sim_time", s.SimTime),
		slog.Float64("contacts_mean", s.ContactsMean),
		slog.Int("contacts_max", s.ContactsMax),
		slog.Float64("points_mean", s.PointsMean),
		slog.Int("points_max", s.PointsMax),
		slog.Float64("rows_mean", s.RowsMean),
		slog.Int("penalty_total", s.PenaltyTotal),
		slog.Int("solves", s.Solves),
		slog.Float64("iterations_mean", s.IterationsMean),
		slog.Float64("iterations_std", s.IterationsStd),
		slog.Float64("iterations_p90", s.IterationsP90),
		slog.Float64("residual_mean", s.ResidualMean),
		slog.Float64("residual_max", s.ResidualMax),
		slog.Int("not_converged", s.NotConverged),
		slog.Int("warnings", s.Warnings),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
