package sensor

import (
	"math"

	"github.com/banshee-data/scantrack/internal/angles"
	"github.com/banshee-data/scantrack/internal/gimbal"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/queue"
	"gonum.org/v1/gonum/spatial/r3"
)

// Default capacities. They bound the work one sensor can do per frame.
const (
	DefaultMaxEmissions   = 64
	DefaultMaxReports     = 16
	DefaultOutputCapacity = 64
)

// emission is one target return (RF) or one target query (IR) waiting in
// the incoming queue for the receive phase.
type emission struct {
	player    Player
	az, el    float64
	rng       float64
	rangeRate float64
	offAxis   float64 // deg from beam centre
	valid     bool    // false when the geometry was degenerate
}

// frontEnd is the state shared by the RF and IR sensors.
type frontEnd struct {
	name     string
	kind     Kind
	scan     *gimbal.ScanController
	world    World
	reporter monitoring.Reporter
	metrics  *monitoring.Metrics

	listeners []DetectionListener

	maxRange   float64 // m
	threshold  float64 // dB
	maxReports int

	incoming   *queue.Bounded[emission]
	output     *queue.Bounded[Report]
	candidates []Report
	seq        uint64
	now        float64
	beam       gimbal.Position // pointing captured at Transmit
	jammers    []Jammer
}

func newFrontEnd(name string, kind Kind, scan *gimbal.ScanController, world World, reporter monitoring.Reporter) frontEnd {
	return frontEnd{
		name:       name,
		kind:       kind,
		scan:       scan,
		world:      world,
		reporter:   monitoring.OrDefault(reporter),
		maxRange:   100e3,
		threshold:  13,
		maxReports: DefaultMaxReports,
		incoming:   queue.New[emission](DefaultMaxEmissions),
		output:     queue.New[Report](DefaultOutputCapacity),
	}
}

// Name returns the sensor id stamped on every report.
func (f *frontEnd) Name() string { return f.name }

// Kind returns the sensing technology.
func (f *frontEnd) Kind() Kind { return f.kind }

// Output is the report queue drained by track managers.
func (f *frontEnd) Output() *queue.Bounded[Report] { return f.output }

// Scan returns the scan controller the sensor looks through.
func (f *frontEnd) Scan() *gimbal.ScanController { return f.scan }

// AddDetectionListener registers l for NewDetection notifications.
func (f *frontEnd) AddDetectionListener(l DetectionListener) {
	if l != nil {
		f.listeners = append(f.listeners, l)
	}
}

// SetMetrics attaches Prometheus instrumentation; nil disables it.
func (f *frontEnd) SetMetrics(m *monitoring.Metrics) { f.metrics = m }

// SetMaxRange sets the detection range limit in metres.
func (f *frontEnd) SetMaxRange(r float64) bool {
	if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
		f.reject("max range %v", r)
		return false
	}
	f.maxRange = r
	return true
}

// MaxRange returns the detection range limit.
func (f *frontEnd) MaxRange() float64 { return f.maxRange }

// SetThreshold sets the detection threshold in dB.
func (f *frontEnd) SetThreshold(db float64) bool {
	if math.IsInf(db, 0) || math.IsNaN(db) {
		f.reject("threshold %v", db)
		return false
	}
	f.threshold = db
	return true
}

// Threshold returns the detection threshold in dB.
func (f *frontEnd) Threshold() float64 { return f.threshold }

// SetMaxEmissions resizes the incoming queue. Pending emissions are lost.
func (f *frontEnd) SetMaxEmissions(n int) bool {
	if n < 1 {
		f.reject("max emissions %d", n)
		return false
	}
	f.incoming = queue.New[emission](n)
	return true
}

// SetMaxReports bounds how many detections one Process pass keeps.
func (f *frontEnd) SetMaxReports(n int) bool {
	if n < 1 {
		f.reject("max reports %d", n)
		return false
	}
	f.maxReports = n
	return true
}

// SetOutputCapacity resizes the output queue. It must be called before
// the queue is handed to a track manager.
func (f *frontEnd) SetOutputCapacity(n int) bool {
	if n < 1 {
		f.reject("output capacity %d", n)
		return false
	}
	f.output = queue.New[Report](n)
	return true
}

// Dynamics is a no-op; the scan controller moves the beam.
func (f *frontEnd) Dynamics(float64) {}

// UpdateData is a no-op; sensors have no background work.
func (f *frontEnd) UpdateData(float64) {}

func (f *frontEnd) reset() {
	f.incoming.Clear()
	f.output.Clear()
	f.candidates = f.candidates[:0]
	f.seq = 0
	f.now = 0
	f.jammers = f.jammers[:0]
}

// gather queues every player inside the beam cone and range limit. The
// returned count is the number of emissions accepted.
func (f *frontEnd) gather(halfBeam float64, withJammers bool) int {
	if f.world == nil {
		return 0
	}
	f.now = f.world.Time()
	g := f.scan.Gimbal()
	f.beam = g.Position()
	mount := g.Location()

	f.jammers = f.jammers[:0]
	if withJammers {
		f.jammers = append(f.jammers, f.world.Jammers()...)
	}

	accepted := 0
	for _, p := range f.world.Players() {
		rel := r3.Sub(p.Position, mount)
		az, el, rng, ok := angles.Polar(rel)
		e := emission{player: p, valid: ok}
		if !ok {
			monitoring.Warnf(f.reporter, monitoring.KindNumeric, f.name,
				"player %d coincident with sensor, range/bearing set to zero", p.ID)
		} else {
			if rng > f.maxRange {
				continue
			}
			off := angles.OffBoresight(az, el, f.beam.Az, f.beam.El)
			if off > halfBeam {
				continue
			}
			e.az, e.el, e.rng, e.offAxis = az, el, rng, off
			e.rangeRate = r3.Dot(p.Velocity, r3.Scale(1/rng, rel))
		}
		if !f.incoming.Put(e) {
			f.metrics.ReportDropped(f.name, "emissions")
			monitoring.Warnf(f.reporter, monitoring.KindResource, f.name,
				"incoming queue full (%d), emission from player %d dropped", f.incoming.Capacity(), p.ID)
			continue
		}
		accepted++
	}
	return accepted
}

// detect builds a report from e when snr clears the threshold.
func (f *frontEnd) detect(e emission, snr float64) {
	if !e.valid || snr < f.threshold {
		return
	}
	f.seq++
	r := Report{
		SensorID:  f.name,
		Kind:      f.kind,
		SNR:       snr,
		Az:        e.az,
		El:        e.el,
		Range:     e.rng,
		RangeRate: e.rangeRate,
		Time:      f.now,
		TargetID:  e.player.ID,
		IFF:       e.player.IFF,
		Ground:    e.player.Ground,
		Seq:       f.seq,
	}
	tracef("%s detect player=%d snr=%.1f az=%.2f el=%.2f r=%.0f", f.name, r.TargetID, r.SNR, r.Az, r.El, r.Range)
	f.metrics.Detection(f.name)
	for _, l := range f.listeners {
		l.NewDetection(r)
	}
	f.candidates = append(f.candidates, r)
}

// enqueue writes r to the output queue, dropping it with a warning when
// the queue is full.
func (f *frontEnd) enqueue(r Report) bool {
	if !f.output.Put(r) {
		f.metrics.ReportDropped(f.name, "output")
		monitoring.Warnf(f.reporter, monitoring.KindResource, f.name,
			"output queue full (%d), report %d dropped", f.output.Capacity(), r.Seq)
		return false
	}
	f.metrics.ReportEnqueued(f.name)
	return true
}

func (f *frontEnd) reject(format string, args ...interface{}) {
	opsf("%s rejected "+format, append([]interface{}{f.name}, args...)...)
	monitoring.Warnf(f.reporter, monitoring.KindConfig, f.name, "rejected "+format, args...)
}
