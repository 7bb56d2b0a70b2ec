// Package diag collects the non-fatal warnings raised while stepping a scene.
// Nothing in the step path aborts: problems are logged and recorded so callers
// can inspect them after the step.
package diag

import (
	"fmt"
	"log/slog"
	"sync"
)

// Category classifies a warning.
type Category uint8

const (
	// Configuration: a pipeline stage or collaborator is missing.
	Configuration Category = iota
	// Numerical: solver non-convergence or a singular block.
	Numerical
	// Consistency: no response registered for an element kind pair.
	Consistency
	// InvalidParameter: a value was clamped to its default.
	InvalidParameter
)

func (c Category) String() string {
	switch c {
	case Configuration:
		return "configuration"
	case Numerical:
		return "numerical"
	case Consistency:
		return "consistency"
	case InvalidParameter:
		return "invalid_parameter"
	}
	return fmt.Sprintf("category(%d)", c)
}

// Warning is one recorded diagnostic.
type Warning struct {
	Category  Category
	Component string
	Message   string
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Category, w.Component, w.Message)
}

// Reporter logs warnings and keeps them until drained.
// Safe for concurrent use.
type Reporter struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending []Warning
	total   int
	once    map[string]struct{}
}

// NewReporter creates a reporter. A nil logger uses slog.Default().
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		logger: logger,
		once:   make(map[string]struct{}),
	}
}

// Logger returns the logger the reporter writes to.
func (r *Reporter) Logger() *slog.Logger {
	return r.logger
}

// Warn records a warning and logs it with the given attributes.
func (r *Reporter) Warn(cat Category, component, msg string, args ...any) {
	w := Warning{Category: cat, Component: component, Message: msg}
	r.mu.Lock()
	r.pending = append(r.pending, w)
	r.total++
	r.mu.Unlock()

	attrs := append([]any{"category", cat.String(), "component", component}, args...)
	r.logger.Warn(msg, attrs...)
}

// WarnOnce records the warning only the first time key is seen.
// It reports whether the warning was emitted.
func (r *Reporter) WarnOnce(key string, cat Category, component, msg string, args ...any) bool {
	r.mu.Lock()
	if _, seen := r.once[key]; seen {
		r.mu.Unlock()
		return false
	}
	r.once[key] = struct{}{}
	r.mu.Unlock()

	r.Warn(cat, component, msg, args...)
	return true
}

// Drain returns the warnings recorded since the last drain and clears them.
func (r *Reporter) Drain() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// Pending returns a copy of the warnings not drained yet.
func (r *Reporter) Pending() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Warning(nil), r.pending...)
}

// Total returns how many warnings were raised over the reporter's lifetime.
func (r *Reporter) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Count returns the number of warnings in ws matching cat and component.
// An empty component matches all components.
func Count(ws []Warning, cat Category, component string) int {
	n := 0
	for _, w := range ws {
		if w.Category == cat && (component == "" || w.Component == component) {
			n++
		}
	}
	return n
}
