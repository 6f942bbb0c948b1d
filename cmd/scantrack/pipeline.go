package main

import (
	"errors"
	"fmt"

	"github.com/banshee-data/scantrack/internal/config"
	"github.com/banshee-data/scantrack/internal/gimbal"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/sensor"
	"github.com/banshee-data/scantrack/internal/shootlist"
	"github.com/banshee-data/scantrack/internal/system"
	"github.com/banshee-data/scantrack/internal/timeutil"
	"github.com/banshee-data/scantrack/internal/tracking"
	"github.com/banshee-data/scantrack/internal/world"
)

// pipeline is every component of one run, wired and registered on the
// scheduler.
type pipeline struct {
	cfg       *config.PipelineConfig
	scheduler *system.Scheduler
	world     *world.World
	scan      *gimbal.ScanController
	radar     *sensor.Radar
	ir        *sensor.IRSensor
	managers  []*tracking.Manager
	onboard   *shootlist.OnboardComputer
}

type buildOptions struct {
	reporter  monitoring.Reporter
	metrics   *monitoring.Metrics
	clock     timeutil.Clock
	detection sensor.DetectionListener
	tracks    func(manager string) tracking.Listener
	actions   shootlist.ActionHandler

	// background components run after the onboard computer, e.g. the
	// recorder draining its detection queue.
	background []system.Component
}

// buildPipeline creates the components described by cfg, applies their
// configuration and registers them: world, scan controller and sensors on
// the time-critical lane, track managers then the onboard computer on the
// background lane. Every configuration rejection is returned joined.
func buildPipeline(cfg *config.PipelineConfig, opts buildOptions) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rep := opts.metrics.Reporter(opts.reporter)
	var errs []error

	w, err := config.BuildWorld("world", cfg.Scenario)
	errs = append(errs, err)

	g := gimbal.NewGimbal("gimbal", rep)
	errs = append(errs, config.ApplyGimbal(g, cfg.Gimbal))
	scan := gimbal.NewScanController("scan", g, rep)
	errs = append(errs, config.ApplyScan(scan, cfg.Scan))
	scan.OnScanEvent(func(ev gimbal.ScanEvent) {
		opts.metrics.ScanEvent(scan.Name(), ev.Kind.String())
	})

	p := &pipeline{
		cfg:       cfg,
		scheduler: system.NewScheduler(opts.clock),
		world:     w,
		scan:      scan,
	}
	p.scheduler.SetMetrics(opts.metrics)
	p.scheduler.SetParallelism(cfg.GetParallelism())

	sources := map[string]tracking.ReportSource{}
	var sensors []system.Component
	if rc := cfg.Radar; rc != nil {
		p.radar = sensor.NewRadar(rc.Name, scan, w, rep)
		errs = append(errs, config.ApplyRadar(p.radar, *rc))
		p.radar.SetMetrics(opts.metrics)
		if opts.detection != nil {
			p.radar.AddDetectionListener(opts.detection)
		}
		sources[rc.Name] = p.radar
		sensors = append(sensors, p.radar)
	}
	if ic := cfg.IR; ic != nil {
		p.ir = sensor.NewIRSensor(ic.Name, scan, w, rep)
		errs = append(errs, config.ApplyIR(p.ir, *ic))
		p.ir.SetMetrics(opts.metrics)
		if opts.detection != nil {
			p.ir.AddDetectionListener(opts.detection)
		}
		sources[ic.Name] = p.ir
		sensors = append(sensors, p.ir)
	}

	p.onboard = shootlist.NewOnboardComputer(cfg.Onboard.Name, cfg.GetOnboardMaxTracks(), rep)
	for _, tc := range cfg.Trackers {
		kind, err := tc.TypeBits()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m := tracking.NewManager(tc.Name, kind, tracking.Config{}, rep)
		errs = append(errs, config.ApplyTracker(m, tc))
		m.SetMetrics(opts.metrics)
		m.SetOwnship(w.OwnshipVelocity)
		for _, in := range tc.Inputs {
			m.AddInput(sources[in])
		}
		if opts.tracks != nil {
			m.AddListener(opts.tracks(tc.Name))
		}
		p.managers = append(p.managers, m)
		p.onboard.AddTrackManager(m)
	}
	errs = append(errs, config.ApplyOnboard(p.onboard, cfg.Onboard))
	if opts.actions != nil {
		p.onboard.SetActionHandler(opts.actions)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	p.scheduler.AddTimeCritical(w, scan)
	p.scheduler.AddTimeCritical(sensors...)
	for _, m := range p.managers {
		p.scheduler.AddBackground(m)
	}
	p.scheduler.AddBackground(p.onboard)
	p.scheduler.AddBackground(opts.background...)
	p.scheduler.Reset()
	return p, nil
}

