// Command contactsim runs the contact pipeline headless on a demo scene and
// writes per-step telemetry.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/freemotion/config"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/scene"
	"github.com/pthm-cable/freemotion/simulation"
	"github.com/pthm-cable/freemotion/telemetry"
)

// Options controls one run.
type Options struct {
	Seed      int64
	MaxSteps  int
	LogStats  bool
	OutputDir string
	Demo      DemoOptions
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and run description")
	seed := flag.Int64("seed", 0, "RNG seed for the demo scene (0 = time-based)")
	maxSteps := flag.Int("max-steps", 1000, "Stop after N steps")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	response := flag.String("response", "friction", "Contact response for the demo (empty = use config)")
	flag.Parse()

	// JSON to stdout for structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	opts := Options{
		Seed:      rngSeed,
		MaxSteps:  *maxSteps,
		LogStats:  *logStats,
		OutputDir: *outputDir,
		Demo:      DefaultDemoOptions(rngSeed),
	}
	opts.Demo.Response = *response
	if err := run(cfg, diag.NewReporter(logger), opts); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// run builds the demo scene and steps it, flushing telemetry every stats
// window.
func run(cfg *config.Config, rep *diag.Reporter, opts Options) error {
	if opts.Demo.Response != "" {
		cfg.Contact.Response = opts.Demo.Response
	}
	cfg.Sanitize(rep)

	sc := scene.New()
	if err := buildDemo(sc, cfg, opts.Demo); err != nil {
		return err
	}

	ctx := simulation.NewContext(cfg, sc, rep)
	ctx.Start()
	defer ctx.Stop()
	orch := simulation.NewOrchestrator(ctx)

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	orch.SetPerfCollector(perf)
	collector := telemetry.NewCollector(cfg.Telemetry.StatsWindow)
	bookmarks := telemetry.NewBookmarkDetector(10)

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return err
	}
	defer om.Close()
	info := telemetry.NewRunInfo(cfg, opts.Seed)
	if err := om.WriteRun(info); err != nil {
		return err
	}

	slog.Info("starting simulation",
		"run", info.ID,
		"seed", opts.Seed,
		"max_steps", opts.MaxSteps,
		"objects", sc.NumObjects(),
		"bodies", sc.NumBodies(),
		"workers", ctx.Scheduler.Workers(),
	)

	flush := func() {
		ws := collector.Flush()
		perfStats := perf.Stats()
		if opts.LogStats {
			ws.LogStats()
			slog.Info("perf", "stats", perfStats)
		}
		if err := om.WriteWindow(ws); err != nil {
			slog.Error("failed to write window", "error", err)
		}
		if err := om.WritePerf(perfStats, ws.WindowEnd); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
		for _, bm := range bookmarks.Check(ws) {
			bm.LogBookmark()
			if err := om.WriteBookmark(bm); err != nil {
				slog.Error("failed to write bookmark", "error", err)
			}
		}
	}

	for i := 0; i < opts.MaxSteps; i++ {
		report := orch.Step()
		collector.Record(report.Stats())
		if err := om.WriteStep(report.Stats()); err != nil {
			slog.Error("failed to write step", "error", err)
		}
		if collector.ShouldFlush() {
			flush()
		}
	}
	if collector.Pending() > 0 {
		flush()
	}

	slog.Info("max steps reached",
		"step", orch.Steps(),
		"time", orch.Time(),
		"contacts", ctx.Contacts.Len(),
		"warnings", rep.Total(),
	)
	return nil
}
