package telemetry

// Collector accumulates step records and produces WindowStats once a window
// of steps is complete.
type Collector struct {
	windowSteps int
	steps       []StepStats
}

// NewCollector creates a collector that flushes every windowSteps steps.
func NewCollector(windowSteps int) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{
		windowSteps: windowSteps,
		steps:       make([]StepStats, 0, windowSteps),
	}
}

// Record adds one step to the current window.
func (c *Collector) Record(s StepStats) {
	c.steps = append(c.steps, s)
}

// ShouldFlush returns true if the current window is full.
func (c *Collector) ShouldFlush() bool {
	return len(c.steps) >= c.windowSteps
}

// Pending returns the number of steps recorded since the last flush.
func (c *Collector) Pending() int {
	return len(c.steps)
}

// Flush aggregates the current window and starts the next one. A flush of
// an empty window returns zero stats.
func (c *Collector) Flush() WindowStats {
	ws := Aggregate(c.steps)
	c.steps = c.steps[:0]
	return ws
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}
