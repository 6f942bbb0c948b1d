package sensor

import (
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/scantrack/internal/angles"
	"github.com/banshee-data/scantrack/internal/gimbal"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	speedOfLight = 299792458.0
	boltzmann    = 1.380649e-23

	DefaultNumSweeps    = 8
	DefaultPtrsPerSweep = 64
)

// sweepBin holds the best report seen for one azimuth/range cell.
type sweepBin struct {
	report Report
	age    float64 // seconds since the bin was last written
	pass   uint64  // Process pass that wrote it
	used   bool
	sent   bool
}

// SweepImage is a copy of the last completed scan's sweep buffer. Cell
// values are SNR in dB; empty cells are -Inf.
type SweepImage struct {
	NumSweeps    int
	PtrsPerSweep int
	SNR          []float64
}

// Cell returns the SNR held at (sweep, ptr).
func (img SweepImage) Cell(sweep, ptr int) float64 {
	return img.SNR[sweep*img.PtrsPerSweep+ptr]
}

// Radar is the RF front end: a monostatic pulse radar looking along the
// gimbal boresight.
type Radar struct {
	frontEnd

	peakPower   float64 // W
	gainDB      float64 // antenna gain
	frequency   float64 // Hz
	bandwidth   float64 // Hz
	noiseFigure float64 // dB
	systemLoss  float64 // dB
	temperature float64 // K
	sidelobeDB  float64 // receive gain floor relative to the main lobe

	numSweeps    int
	ptrsPerSweep int
	holdTime     float64 // s a bin survives without being refreshed
	revGate      bool

	imageMu sync.RWMutex // guards front for readers outside the frame loop
	front   []sweepBin
	back    []sweepBin

	pass     uint64
	lastScan int
	lastRev  int
}

// NewRadar builds an X-band radar with default parameters looking through
// scan.
func NewRadar(name string, scan *gimbal.ScanController, world World, reporter monitoring.Reporter) *Radar {
	r := &Radar{
		frontEnd:     newFrontEnd(name, KindRF, scan, world, reporter),
		peakPower:    100e3,
		gainDB:       30,
		frequency:    10e9,
		bandwidth:    1e6,
		noiseFigure:  5,
		systemLoss:   3,
		temperature:  290,
		sidelobeDB:   -30,
		numSweeps:    DefaultNumSweeps,
		ptrsPerSweep: DefaultPtrsPerSweep,
		holdTime:     2,
	}
	r.allocSweeps()
	return r
}

// ----- setters -----

// SetPeakPower sets the transmitter peak power in watts.
func (r *Radar) SetPeakPower(w float64) bool {
	if w <= 0 {
		r.reject("peak power %v", w)
		return false
	}
	r.peakPower = w
	return true
}

// SetAntennaGain sets the antenna gain in dB.
func (r *Radar) SetAntennaGain(db float64) bool {
	if math.IsInf(db, 0) || math.IsNaN(db) {
		r.reject("antenna gain %v", db)
		return false
	}
	r.gainDB = db
	return true
}

// SetFrequency sets the carrier frequency in Hz.
func (r *Radar) SetFrequency(hz float64) bool {
	if hz <= 0 {
		r.reject("frequency %v", hz)
		return false
	}
	r.frequency = hz
	return true
}

// SetBandwidth sets the receiver bandwidth in Hz.
func (r *Radar) SetBandwidth(hz float64) bool {
	if hz <= 0 {
		r.reject("bandwidth %v", hz)
		return false
	}
	r.bandwidth = hz
	return true
}

// SetNoiseFigure sets the receiver noise figure in dB.
func (r *Radar) SetNoiseFigure(db float64) bool {
	if db < 0 {
		r.reject("noise figure %v", db)
		return false
	}
	r.noiseFigure = db
	return true
}

// SetSystemLoss sets the combined system loss in dB.
func (r *Radar) SetSystemLoss(db float64) bool {
	if db < 0 {
		r.reject("system loss %v", db)
		return false
	}
	r.systemLoss = db
	return true
}

// SetTemperature sets the receiver noise temperature in kelvin.
func (r *Radar) SetTemperature(k float64) bool {
	if k <= 0 {
		r.reject("temperature %v", k)
		return false
	}
	r.temperature = k
	return true
}

// SetSidelobeLevel sets the receive gain floor outside the main lobe, dB
// relative to peak. It must not be positive.
func (r *Radar) SetSidelobeLevel(db float64) bool {
	if db > 0 {
		r.reject("sidelobe level %v", db)
		return false
	}
	r.sidelobeDB = db
	return true
}

// SetSweepGeometry resizes the sweep buffers. Both buffers are cleared.
func (r *Radar) SetSweepGeometry(numSweeps, ptrsPerSweep int) bool {
	if numSweeps < 1 || ptrsPerSweep < 1 {
		r.reject("sweep geometry %dx%d", numSweeps, ptrsPerSweep)
		return false
	}
	r.numSweeps = numSweeps
	r.ptrsPerSweep = ptrsPerSweep
	r.allocSweeps()
	return true
}

// SetHoldTime sets how long an unrefreshed bin is kept, in seconds.
func (r *Radar) SetHoldTime(s float64) bool {
	if s <= 0 {
		r.reject("hold time %v", s)
		return false
	}
	r.holdTime = s
	return true
}

// SetRevolutionGate makes Process release reports once per completed scan
// revolution instead of every pass.
func (r *Radar) SetRevolutionGate(on bool) { r.revGate = on }

// Bandwidth returns the receiver bandwidth in Hz.
func (r *Radar) Bandwidth() float64 { return r.bandwidth }

// ----- phases -----

// Reset drops pending work and clears both sweep buffers.
func (r *Radar) Reset() {
	r.reset()
	r.allocSweeps()
	r.pass = 0
	r.lastScan = r.scan.ScanCount()
	r.lastRev = r.scan.RevolutionCount()
}

// Transmit queues a return for every player inside the beam.
func (r *Radar) Transmit(float64) {
	r.gather(r.scan.BeamWidth()/2, true)
}

// Receive evaluates each queued return against the detection threshold.
func (r *Radar) Receive(float64) {
	for {
		e, ok := r.incoming.Get()
		if !ok {
			return
		}
		r.detect(e, r.snr(e))
	}
}

// Process keeps the strongest reports, bins them into the back sweep
// buffer and forwards the bin winners to the output queue.
func (r *Radar) Process(dt float64) {
	r.pass++
	cands := r.candidates
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].SNR > cands[j].SNR })
	if len(cands) > r.maxReports {
		tracef("%s keeping %d of %d reports", r.name, r.maxReports, len(cands))
		cands = cands[:r.maxReports]
	}

	r.ageBins(dt)
	for _, rep := range cands {
		b := &r.back[r.binIndex(rep)]
		if b.used && b.pass == r.pass && b.report.SNR >= rep.SNR {
			tracef("%s bin duplicate seq=%d snr=%.1f dropped", r.name, rep.Seq, rep.SNR)
			continue
		}
		*b = sweepBin{report: rep, pass: r.pass, used: true}
	}
	r.candidates = r.candidates[:0]

	rev := r.scan.RevolutionCount()
	if !r.revGate || rev != r.lastRev {
		r.lastRev = rev
		for i := range r.back {
			b := &r.back[i]
			if b.used && !b.sent {
				r.enqueue(b.report)
				b.sent = true
			}
		}
	}

	if sc := r.scan.ScanCount(); sc != r.lastScan {
		r.lastScan = sc
		r.swap()
	}
}

// SweepImage returns a copy of the front (last completed scan) buffer.
func (r *Radar) SweepImage() SweepImage {
	r.imageMu.RLock()
	defer r.imageMu.RUnlock()
	img := SweepImage{
		NumSweeps:    r.numSweeps,
		PtrsPerSweep: r.ptrsPerSweep,
		SNR:          make([]float64, len(r.front)),
	}
	for i, b := range r.front {
		if b.used {
			img.SNR[i] = b.report.SNR
		} else {
			img.SNR[i] = math.Inf(-1)
		}
	}
	return img
}

// binIndex maps a report to its azimuth sweep and range pointer. Both
// indices wrap modulo the configured counts.
func (r *Radar) binIndex(rep Report) int {
	sweepWidth := 360.0 / float64(r.numSweeps)
	sweep := int(math.Floor(angles.Wrap360(rep.Az)/sweepWidth)) % r.numSweeps
	ptrWidth := r.maxRange / float64(r.ptrsPerSweep)
	ptr := int(math.Floor(rep.Range/ptrWidth)) % r.ptrsPerSweep
	if ptr < 0 {
		ptr += r.ptrsPerSweep
	}
	return sweep*r.ptrsPerSweep + ptr
}

func (r *Radar) ageBins(dt float64) {
	for i := range r.back {
		b := &r.back[i]
		if !b.used {
			continue
		}
		b.age += dt
		if b.age > r.holdTime {
			*b = sweepBin{}
		}
	}
}

func (r *Radar) swap() {
	r.imageMu.Lock()
	r.front, r.back = r.back, r.front
	r.imageMu.Unlock()
	clear(r.back)
	diagf("%s sweep buffers swapped at scan %d", r.name, r.lastScan)
}

func (r *Radar) allocSweeps() {
	n := r.numSweeps * r.ptrsPerSweep
	r.imageMu.Lock()
	r.front = make([]sweepBin, n)
	r.imageMu.Unlock()
	r.back = make([]sweepBin, n)
}

// snr evaluates the radar equation for e, including in-band jamming.
func (r *Radar) snr(e emission) float64 {
	if !e.valid || e.rng <= 0 {
		return math.Inf(-1)
	}
	lambda := speedOfLight / r.frequency
	g := angles.FromDB(r.gainDB)
	loss := angles.FromDB(r.systemLoss)
	beam := r.scan.BeamWidth()

	pattern := beamPattern(e.offAxis, beam)
	s := r.peakPower * g * g * pattern * pattern * lambda * lambda * e.player.RCS /
		(math.Pow(4*math.Pi, 3) * math.Pow(e.rng, 4) * loss)
	n := boltzmann * r.temperature * r.bandwidth * angles.FromDB(r.noiseFigure)

	j := 0.0
	for _, jm := range r.jammers {
		j += r.jamming(jm, g, lambda, loss, beam)
	}
	return angles.DB(s / (n + j))
}

// jamming is the power received from one jammer inside the receiver band.
func (r *Radar) jamming(jm Jammer, g, lambda, loss, beam float64) float64 {
	frac := bandOverlap(jm.Frequency, jm.Bandwidth, r.frequency, r.bandwidth)
	if frac == 0 {
		return 0
	}
	rel := r3.Sub(jm.Position, r.scan.Gimbal().Location())
	az, el, rng, ok := angles.Polar(rel)
	if !ok {
		monitoring.Warnf(r.reporter, monitoring.KindNumeric, r.name,
			"jammer %d coincident with sensor, ignored", jm.ID)
		return 0
	}
	off := angles.OffBoresight(az, el, r.beam.Az, r.beam.El)
	rx := math.Max(beamPattern(off, beam), angles.FromDB(r.sidelobeDB))
	return jm.ERP * frac * g * rx * lambda * lambda / (math.Pow(4*math.Pi, 2) * rng * rng * loss)
}

// beamPattern is the one-way Gaussian gain factor at off degrees from
// boresight for a beam with the given 3 dB width.
func beamPattern(off, width float64) float64 {
	if width <= 0 {
		return 0
	}
	x := off / width
	return math.Exp(-4 * math.Ln2 * x * x)
}

// bandOverlap is the fraction of an emitter's band [fc-bw/2, fc+bw/2]
// that falls inside the receiver band.
func bandOverlap(fc, bw, rxFc, rxBw float64) float64 {
	if bw <= 0 {
		if math.Abs(fc-rxFc) <= rxBw/2 {
			return 1
		}
		return 0
	}
	lo := math.Max(fc-bw/2, rxFc-rxBw/2)
	hi := math.Min(fc+bw/2, rxFc+rxBw/2)
	if hi <= lo {
		return 0
	}
	return (hi - lo) / bw
}
