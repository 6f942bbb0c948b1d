package sensor

import (
	"math"
	"sort"

	"github.com/banshee-data/scantrack/internal/angles"
	"github.com/banshee-data/scantrack/internal/gimbal"
	"github.com/banshee-data/scantrack/internal/monitoring"
)

// IRSensor is a passive infrared seeker. With merging enabled it coalesces
// detections closer than the azimuth/elevation bins into one report.
type IRSensor struct {
	frontEnd

	bandLow     float64 // um
	bandHigh    float64 // um
	nei         float64 // noise-equivalent irradiance, W/m^2
	extinction  float64 // atmospheric extinction per km
	fieldOfView float64 // deg, full cone

	merging      bool
	azimuthBin   float64 // deg
	elevationBin float64 // deg
}

// NewIRSensor builds a 3-5 um seeker with default parameters.
func NewIRSensor(name string, scan *gimbal.ScanController, world World, reporter monitoring.Reporter) *IRSensor {
	s := &IRSensor{
		frontEnd:     newFrontEnd(name, KindIR, scan, world, reporter),
		bandLow:      3,
		bandHigh:     5,
		nei:          1e-8,
		extinction:   0.1,
		fieldOfView:  4,
		azimuthBin:   0.5,
		elevationBin: 0.5,
	}
	s.maxRange = 30e3
	s.threshold = 6
	return s
}

// SetBand sets the sensor waveband in micrometres.
func (s *IRSensor) SetBand(low, high float64) bool {
	if low <= 0 || high <= low {
		s.reject("band %v-%v um", low, high)
		return false
	}
	s.bandLow, s.bandHigh = low, high
	return true
}

// SetNEI sets the noise-equivalent irradiance in W/m^2.
func (s *IRSensor) SetNEI(w float64) bool {
	if w <= 0 {
		s.reject("NEI %v", w)
		return false
	}
	s.nei = w
	return true
}

// SetExtinction sets the atmospheric extinction coefficient per km.
func (s *IRSensor) SetExtinction(k float64) bool {
	if k < 0 {
		s.reject("extinction %v", k)
		return false
	}
	s.extinction = k
	return true
}

// SetFieldOfView sets the full cone angle in degrees.
func (s *IRSensor) SetFieldOfView(deg float64) bool {
	if deg <= 0 || deg > 180 {
		s.reject("field of view %v", deg)
		return false
	}
	s.fieldOfView = deg
	return true
}

// SetMerging enables report coalescing.
func (s *IRSensor) SetMerging(on bool) { s.merging = on }

// SetMergeBins sets the azimuth and elevation separations below which two
// detections are merged.
func (s *IRSensor) SetMergeBins(az, el float64) bool {
	if az < 0 || el < 0 {
		s.reject("merge bins %v/%v", az, el)
		return false
	}
	s.azimuthBin, s.elevationBin = az, el
	return true
}

// Reset drops pending work.
func (s *IRSensor) Reset() { s.reset() }

// Transmit queues a query for every player inside the field of view.
func (s *IRSensor) Transmit(float64) {
	s.gather(s.fieldOfView/2, false)
}

// Receive evaluates each query against the NEI threshold.
func (s *IRSensor) Receive(float64) {
	for {
		e, ok := s.incoming.Get()
		if !ok {
			return
		}
		s.detect(e, s.snr(e))
	}
}

// Process optionally merges nearby detections and enqueues the result,
// strongest first, up to the per-pass report limit.
func (s *IRSensor) Process(float64) {
	cands := s.candidates
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].SNR > cands[j].SNR })
	out := cands
	if s.merging {
		out = s.merge(cands)
	}
	if len(out) > s.maxReports {
		out = out[:s.maxReports]
	}
	for _, r := range out {
		s.enqueue(r)
	}
	s.candidates = s.candidates[:0]
}

// snr is irradiance over NEI, in dB.
func (s *IRSensor) snr(e emission) float64 {
	if !e.valid || e.rng <= 0 {
		return math.Inf(-1)
	}
	frac := waveOverlap(e.player.IRBandLow, e.player.IRBandHigh, s.bandLow, s.bandHigh)
	if frac == 0 {
		return math.Inf(-1)
	}
	tau := math.Exp(-s.extinction * e.rng / 1000)
	irradiance := e.player.IRIntensity * frac * tau / (e.rng * e.rng)
	return angles.DB(irradiance / s.nei)
}

// cluster accumulates merged detections. Weights are linear SNR.
type cluster struct {
	rep    Report
	seedAz float64
	weight float64
	sumAz  float64 // weighted azimuth offsets from seedAz
	sumEl  float64
}

// merge folds reports (sorted strongest first) into clusters. A report
// joins the first cluster whose centroid is closer than both bins; the merged
// report keeps the strongest member's identity, the SNR-weighted
// centroid, the maximum SNR and the minimum range.
func (s *IRSensor) merge(sorted []Report) []Report {
	var clusters []cluster
	for _, r := range sorted {
		w := angles.FromDB(r.SNR)
		joined := false
		for i := range clusters {
			c := &clusters[i]
			if math.Abs(angles.Diff(r.Az, c.rep.Az)) < s.azimuthBin && math.Abs(r.El-c.rep.El) < s.elevationBin {
				c.sumAz += w * angles.Diff(r.Az, c.seedAz)
				c.sumEl += w * r.El
				c.weight += w
				c.rep.Az = angles.Wrap180(c.seedAz + c.sumAz/c.weight)
				c.rep.El = c.sumEl / c.weight
				c.rep.SNR = math.Max(c.rep.SNR, r.SNR)
				c.rep.Range = math.Min(c.rep.Range, r.Range)
				diagf("%s merged seq=%d into seq=%d", s.name, r.Seq, c.rep.Seq)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, cluster{rep: r, seedAz: r.Az, weight: w, sumEl: w * r.El})
		}
	}
	out := make([]Report, len(clusters))
	for i, c := range clusters {
		out[i] = c.rep
	}
	return out
}

// waveOverlap is the fraction of an emitter band [lo, hi] inside the
// sensor band. A zero-width emitter band counts fully when it lies inside.
func waveOverlap(lo, hi, sLo, sHi float64) float64 {
	if hi <= lo {
		if lo >= sLo && lo <= sHi {
			return 1
		}
		return 0
	}
	a := math.Max(lo, sLo)
	b := math.Min(hi, sHi)
	if b <= a {
		return 0
	}
	return (b - a) / (hi - lo)
}
