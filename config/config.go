// Package config provides configuration loading for the contact simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/geom"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Documented defaults that invalid values fall back to.
const (
	DefaultDepth         = 6
	DefaultTolerance     = 0.001
	DefaultMaxIterations = 1000
	DefaultSOR           = 1.0
	DefaultPersistence   = 1
	DefaultDT            = 0.01
	DefaultBroadPhase    = "sap"
	DefaultCorrection    = "linear"
)

// BroadPhases lists the accepted pipeline.broad_phase values.
var BroadPhases = []string{"brute", "sap", "rtree"}

// Corrections lists the accepted correction.kind values.
var Corrections = []string{"linear", "uncoupled"}

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation   SimulationConfig   `yaml:"simulation"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Intersection IntersectionConfig `yaml:"intersection"`
	Contact      ContactConfig      `yaml:"contact"`
	Solver       SolverConfig       `yaml:"solver"`
	Correction   CorrectionConfig   `yaml:"correction"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds time stepping parameters.
type SimulationConfig struct {
	DT                           float64    `yaml:"dt"`
	Gravity                      [3]float64 `yaml:"gravity"`
	Parallel                     bool       `yaml:"parallel"`                        // Free motion runs alongside collision detection
	SolveVelocityConstraintFirst bool       `yaml:"solve_velocity_constraint_first"` // VEL order instead of POS_AND_VEL
	Workers                      int        `yaml:"workers"`                         // 0 = one per CPU
}

// PipelineConfig holds collision pipeline parameters.
type PipelineConfig struct {
	Depth      int    `yaml:"depth"`       // Bounding tree depth, negative = default
	BroadPhase string `yaml:"broad_phase"` // brute, sap or rtree
	Verbose    bool   `yaml:"verbose"`     // Per-stage info logging
}

// IntersectionConfig holds proximity thresholds and narrow phase options.
type IntersectionConfig struct {
	AlarmDistance   float64 `yaml:"alarm_distance"`   // Report proximities closer than this
	ContactDistance float64 `yaml:"contact_distance"` // Constraint becomes active below this
	UseFilters      bool    `yaml:"use_filters"`      // Reject contacts outside mesh feature cones
	ConeTolerance   float64 `yaml:"cone_tolerance"`
	Continuous      bool    `yaml:"continuous"` // Swept bounding volumes over dt
}

// ResponseRule overrides the contact response for one element kind pair.
type ResponseRule struct {
	A        geom.Kind `yaml:"a"`
	B        geom.Kind `yaml:"b"`
	Response string    `yaml:"response"`
}

// ContactConfig holds contact response parameters.
type ContactConfig struct {
	Response         string         `yaml:"response"`    // Default response for supported pairs
	Friction         float64        `yaml:"friction"`    // Coulomb coefficient for friction responses
	Persistence      int            `yaml:"persistence"` // Steps a point survives without re-detection
	PenaltyStiffness float64        `yaml:"penalty_stiffness"`
	Rules            []ResponseRule `yaml:"rules"`
}

// SolverConfig holds constraint solver parameters.
type SolverConfig struct {
	MaxIterations  int     `yaml:"max_iterations"`
	Tolerance      float64 `yaml:"tolerance"`
	ScaleTolerance bool    `yaml:"scale_tolerance"` // Multiply tolerance by the row count
	SOR            float64 `yaml:"sor"`             // Over-relaxation factor in (0,2]
	WarmStart      bool    `yaml:"warm_start"`
}

// CorrectionConfig holds constraint correction parameters.
type CorrectionConfig struct {
	ComplianceFactor float64 `yaml:"compliance_factor"`
	Kind             string  `yaml:"kind"` // linear or uncoupled
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow  int `yaml:"perf_window"`  // Steps in the rolling perf window
	StatsWindow int `yaml:"stats_window"` // Steps aggregated per stats record
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Gravity mgl64.Vec3
	Workers int
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Gravity = mgl64.Vec3(c.Simulation.Gravity)
	c.Derived.Workers = c.Simulation.Workers
	if c.Derived.Workers <= 0 {
		c.Derived.Workers = runtime.NumCPU()
	}
}

// Sanitize replaces invalid values with their documented defaults, raising one
// InvalidParameter warning per corrected field. It never fails.
func (c *Config) Sanitize(rep *diag.Reporter) {
	warn := func(field string, got, used any) {
		rep.Warn(diag.InvalidParameter, "config", "invalid parameter replaced",
			"field", field, "value", got, "used", used)
	}

	if c.Simulation.DT <= 0 {
		warn("simulation.dt", c.Simulation.DT, DefaultDT)
		c.Simulation.DT = DefaultDT
	}
	if c.Pipeline.Depth < 0 {
		warn("pipeline.depth", c.Pipeline.Depth, DefaultDepth)
		c.Pipeline.Depth = DefaultDepth
	}
	if !slices.Contains(BroadPhases, c.Pipeline.BroadPhase) {
		warn("pipeline.broad_phase", c.Pipeline.BroadPhase, DefaultBroadPhase)
		c.Pipeline.BroadPhase = DefaultBroadPhase
	}
	if c.Intersection.ContactDistance < 0 {
		warn("intersection.contact_distance", c.Intersection.ContactDistance, 0.0)
		c.Intersection.ContactDistance = 0
	}
	if c.Intersection.AlarmDistance < c.Intersection.ContactDistance {
		warn("intersection.alarm_distance", c.Intersection.AlarmDistance, c.Intersection.ContactDistance)
		c.Intersection.AlarmDistance = c.Intersection.ContactDistance
	}
	if c.Intersection.ConeTolerance < 0 {
		warn("intersection.cone_tolerance", c.Intersection.ConeTolerance, 0.0)
		c.Intersection.ConeTolerance = 0
	}
	if c.Contact.Persistence < 1 {
		warn("contact.persistence", c.Contact.Persistence, DefaultPersistence)
		c.Contact.Persistence = DefaultPersistence
	}
	if c.Contact.Friction < 0 {
		warn("contact.friction", c.Contact.Friction, 0.0)
		c.Contact.Friction = 0
	}
	if c.Contact.PenaltyStiffness < 0 {
		warn("contact.penalty_stiffness", c.Contact.PenaltyStiffness, 0.0)
		c.Contact.PenaltyStiffness = 0
	}
	if c.Solver.MaxIterations < 1 {
		warn("solver.max_iterations", c.Solver.MaxIterations, DefaultMaxIterations)
		c.Solver.MaxIterations = DefaultMaxIterations
	}
	if c.Solver.Tolerance <= 0 {
		warn("solver.tolerance", c.Solver.Tolerance, DefaultTolerance)
		c.Solver.Tolerance = DefaultTolerance
	}
	if c.Solver.SOR <= 0 || c.Solver.SOR > 2 {
		warn("solver.sor", c.Solver.SOR, DefaultSOR)
		c.Solver.SOR = DefaultSOR
	}
	if !slices.Contains(Corrections, c.Correction.Kind) {
		warn("correction.kind", c.Correction.Kind, DefaultCorrection)
		c.Correction.Kind = DefaultCorrection
	}
	if c.Correction.ComplianceFactor <= 0 {
		warn("correction.compliance_factor", c.Correction.ComplianceFactor, 1.0)
		c.Correction.ComplianceFactor = 1
	}

	c.computeDerived()
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
