package config

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/scantrack/internal/gimbal"
	"github.com/banshee-data/scantrack/internal/sensor"
	"github.com/banshee-data/scantrack/internal/shootlist"
	"github.com/banshee-data/scantrack/internal/tracking"
	"github.com/banshee-data/scantrack/internal/world"
)

// applier collects setter rejections for one config section. Every
// setter runs even after an earlier one fails.
type applier struct {
	section string
	errs    []error
}

func (a *applier) check(field string, ok bool, v interface{}) {
	if !ok {
		a.errs = append(a.errs, fmt.Errorf("%s.%s: value %v rejected", a.section, field, v))
	}
}

func (a *applier) fail(format string, args ...interface{}) {
	a.errs = append(a.errs, fmt.Errorf(a.section+": "+format, args...))
}

func (a *applier) err() error { return errors.Join(a.errs...) }

func vec(v [3]float64) r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

func point(p PointConfig) gimbal.Point { return gimbal.Point{Az: p.Az, El: p.El} }

// ApplyGimbal pushes c into g through its setters.
func ApplyGimbal(g *gimbal.Gimbal, c GimbalConfig) error {
	a := &applier{section: "gimbal"}
	if c.ServoMode != nil {
		a.check("servo_mode", g.SetServoModeName(*c.ServoMode), *c.ServoMode)
	}
	if c.MaxRate != nil {
		a.check("max_rate", g.SetMaxRate(*c.MaxRate), *c.MaxRate)
	}
	if l := c.Limits; l != nil {
		lim := gimbal.Limits{LowAz: l.LowAz, HighAz: l.HighAz, LowEl: l.LowEl, HighEl: l.HighEl}
		a.check("limits", g.SetLimits(lim), *l)
	}
	if c.Location != nil {
		g.SetLocation(vec(*c.Location))
	}
	return a.err()
}

// ApplyScan pushes c into s. Rate limits are ordered so that raising and
// lowering maxScanRate both succeed when the final values are consistent.
// A search volume is applied before the mode, so an explicit mode wins.
func ApplyScan(s *gimbal.ScanController, c ScanConfig) error {
	a := &applier{section: "scan"}
	if c.BeamWidth != nil {
		a.check("beam_width", s.SetBeamWidth(*c.BeamWidth), *c.BeamWidth)
	}

	raise := c.MaxScanRate != nil && *c.MaxScanRate >= s.MaxScanRate()
	if raise {
		a.check("max_scan_rate", s.SetMaxScanRate(*c.MaxScanRate), *c.MaxScanRate)
	}
	if c.Radius != nil {
		a.check("radius", s.SetScanRadius(*c.Radius), *c.Radius)
	}
	if c.RevPerSec != nil {
		a.check("rev_per_sec", s.SetRevPerSec(*c.RevPerSec), *c.RevPerSec)
	}
	if c.ScanRate != nil {
		a.check("scan_rate", s.SetScanRate(*c.ScanRate), *c.ScanRate)
	}
	if c.MaxScanRate != nil && !raise {
		a.check("max_scan_rate", s.SetMaxScanRate(*c.MaxScanRate), *c.MaxScanRate)
	}

	if c.Width != nil {
		a.check("width", s.SetScanWidth(*c.Width), *c.Width)
	}
	if c.NumBars != nil {
		a.check("num_bars", s.SetNumBars(*c.NumBars), *c.NumBars)
	}
	if c.BarSpacing != nil {
		a.check("bar_spacing", s.SetBarSpacing(*c.BarSpacing), *c.BarSpacing)
	}
	if c.LeftToRight != nil {
		s.SetLeftToRightScan(*c.LeftToRight)
	}
	if c.MaxNumRevs != nil {
		a.check("max_num_revs", s.SetMaxNumRevs(*c.MaxNumRevs), *c.MaxNumRevs)
	}
	if c.SpiralPolicy != nil {
		a.check("spiral_policy", s.SetSpiralPolicyName(*c.SpiralPolicy), *c.SpiralPolicy)
	}
	if len(c.Pattern) > 0 {
		pts := make([]gimbal.Point, len(c.Pattern))
		for i, p := range c.Pattern {
			pts[i] = point(p)
		}
		a.check("pattern", s.SetPseudoRandomPattern(pts), c.Pattern)
	}
	if c.Reference != nil {
		s.SetReference(point(*c.Reference))
	}
	if c.ManualPosition != nil {
		s.SetManualPosition(point(*c.ManualPosition))
	}

	if v := c.SearchVolume; v != nil {
		a.check("search_volume", s.SetSearchVolume(v.Width, v.Height, v.Bars), *v)
	}
	if c.Mode != nil {
		a.check("mode", s.SetScanModeName(*c.Mode), *c.Mode)
	}
	return a.err()
}

// frontEnd is the setter surface shared by every sensor.
type frontEnd interface {
	SetMaxRange(float64) bool
	SetThreshold(float64) bool
	SetMaxEmissions(int) bool
	SetMaxReports(int) bool
	SetOutputCapacity(int) bool
}

func applySensor(a *applier, f frontEnd, c SensorConfig) {
	if c.MaxRange != nil {
		a.check("max_range", f.SetMaxRange(*c.MaxRange), *c.MaxRange)
	}
	if c.Threshold != nil {
		a.check("threshold", f.SetThreshold(*c.Threshold), *c.Threshold)
	}
	if c.MaxEmissions != nil {
		a.check("max_emissions", f.SetMaxEmissions(*c.MaxEmissions), *c.MaxEmissions)
	}
	if c.MaxReports != nil {
		a.check("max_reports", f.SetMaxReports(*c.MaxReports), *c.MaxReports)
	}
	if c.OutputCapacity != nil {
		a.check("output_capacity", f.SetOutputCapacity(*c.OutputCapacity), *c.OutputCapacity)
	}
}

// ApplyRadar pushes c into r.
func ApplyRadar(r *sensor.Radar, c RadarConfig) error {
	a := &applier{section: "radar"}
	applySensor(a, r, c.SensorConfig)

	set := func(field string, v *float64, fn func(float64) bool) {
		if v != nil {
			a.check(field, fn(*v), *v)
		}
	}
	set("peak_power", c.PeakPower, r.SetPeakPower)
	set("antenna_gain", c.AntennaGain, r.SetAntennaGain)
	set("frequency", c.Frequency, r.SetFrequency)
	set("bandwidth", c.Bandwidth, r.SetBandwidth)
	set("noise_figure", c.NoiseFigure, r.SetNoiseFigure)
	set("system_loss", c.SystemLoss, r.SetSystemLoss)
	set("temperature", c.Temperature, r.SetTemperature)
	set("sidelobe_level", c.SidelobeLevel, r.SetSidelobeLevel)
	set("hold_time", c.HoldTime, r.SetHoldTime)

	switch {
	case c.NumSweeps != nil && c.PtrsPerSweep != nil:
		a.check("sweep_geometry", r.SetSweepGeometry(*c.NumSweeps, *c.PtrsPerSweep),
			fmt.Sprintf("%dx%d", *c.NumSweeps, *c.PtrsPerSweep))
	case c.NumSweeps != nil || c.PtrsPerSweep != nil:
		a.fail("num_sweeps and ptrs_per_sweep must be set together")
	}
	if c.RevolutionGate != nil {
		r.SetRevolutionGate(*c.RevolutionGate)
	}
	return a.err()
}

// ApplyIR pushes c into s.
func ApplyIR(s *sensor.IRSensor, c IRConfig) error {
	a := &applier{section: "ir"}
	applySensor(a, s, c.SensorConfig)

	switch {
	case c.BandLow != nil && c.BandHigh != nil:
		a.check("band", s.SetBand(*c.BandLow, *c.BandHigh), fmt.Sprintf("%v-%v", *c.BandLow, *c.BandHigh))
	case c.BandLow != nil || c.BandHigh != nil:
		a.fail("band_low and band_high must be set together")
	}
	if c.NEI != nil {
		a.check("nei", s.SetNEI(*c.NEI), *c.NEI)
	}
	if c.Extinction != nil {
		a.check("extinction", s.SetExtinction(*c.Extinction), *c.Extinction)
	}
	if c.FieldOfView != nil {
		a.check("field_of_view", s.SetFieldOfView(*c.FieldOfView), *c.FieldOfView)
	}
	switch {
	case c.AzBin != nil && c.ElBin != nil:
		a.check("merge_bins", s.SetMergeBins(*c.AzBin, *c.ElBin), fmt.Sprintf("%v/%v", *c.AzBin, *c.ElBin))
	case c.AzBin != nil || c.ElBin != nil:
		a.fail("az_bin and el_bin must be set together")
	}
	if c.Merge != nil {
		s.SetMerging(*c.Merge)
	}
	return a.err()
}

// ApplyTracker pushes c into m. Gates not named in c keep their current
// values.
func ApplyTracker(m *tracking.Manager, c TrackerConfig) error {
	a := &applier{section: "trackers." + c.Name}
	if c.MaxTracks != nil {
		a.check("max_tracks", m.SetMaxTracks(*c.MaxTracks), *c.MaxTracks)
	}
	if c.MaxTrackAge != nil {
		a.check("max_track_age", m.SetMaxTrackAge(*c.MaxTrackAge), *c.MaxTrackAge)
	}
	if c.AzGate != nil || c.ElGate != nil || c.RangeGate != nil {
		cur := m.Config()
		az, el, rng := cur.AzGate, cur.ElGate, cur.RangeGate
		if c.AzGate != nil {
			az = *c.AzGate
		}
		if c.ElGate != nil {
			el = *c.ElGate
		}
		if c.RangeGate != nil {
			rng = *c.RangeGate
		}
		a.check("gates", m.SetGates(az, el, rng), fmt.Sprintf("az=%v el=%v range=%v", az, el, rng))
	}
	set := func(field string, v *float64, fn func(float64) bool) {
		if v != nil {
			a.check(field, fn(*v), *v)
		}
	}
	set("alpha", c.Alpha, m.SetAlpha)
	set("beta", c.Beta, m.SetBeta)
	set("gamma", c.Gamma, m.SetGamma)
	set("igain", c.IGain, m.SetIGain)
	set("protect_recent_age", c.ProtectRecentAge, m.SetProtectRecentAge)
	if c.HistoryLength != nil {
		a.check("history_length", m.SetHistoryLength(*c.HistoryLength), *c.HistoryLength)
	}
	return a.err()
}

// ApplyOnboard pushes c into oc.
func ApplyOnboard(oc *shootlist.OnboardComputer, c OnboardConfig) error {
	a := &applier{section: "onboard"}
	if c.TrackManager != nil {
		a.check("track_manager", oc.SetTrackManagerName(*c.TrackManager), *c.TrackManager)
	}
	if c.SpeedFloor != nil {
		a.check("speed_floor", oc.SetSpeedFloor(*c.SpeedFloor), *c.SpeedFloor)
	}
	return a.err()
}

// BuildWorld creates the scripted world described by c.
func BuildWorld(name string, c ScenarioConfig) (*world.World, error) {
	w := world.New(name)
	w.SetOwnship(vec(c.Ownship.Position), vec(c.Ownship.Velocity))
	var errs []error
	for _, t := range c.Targets {
		err := w.AddTarget(world.Target{
			ID:          t.ID,
			Position:    vec(t.Position),
			Velocity:    vec(t.Velocity),
			IFF:         t.IFF,
			Ground:      t.Ground,
			RCS:         t.RCS,
			IRIntensity: t.IRIntensity,
			IRBandLow:   t.IRBandLow,
			IRBandHigh:  t.IRBandHigh,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("scenario: %w", err))
		}
	}
	for _, j := range c.Jammers {
		err := w.AddJammer(world.Jammer{
			ID:        j.ID,
			Position:  vec(j.Position),
			ERP:       j.ERP,
			Frequency: j.Frequency,
			Bandwidth: j.Bandwidth,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("scenario: %w", err))
		}
	}
	return w, errors.Join(errs...)
}
