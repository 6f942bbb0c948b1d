package gimbal

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/scantrack/internal/monitoring"
)

// ScanMode is the geometric pattern the controller sweeps.
type ScanMode int

const (
	ScanManual ScanMode = iota
	ScanHorizontalBar
	ScanVerticalBar
	ScanConical
	ScanCircular
	ScanPseudoRandom
	ScanSpiral
)

var scanModeNames = [...]string{
	ScanManual:        "manual",
	ScanHorizontalBar: "horizontal_bar",
	ScanVerticalBar:   "vertical_bar",
	ScanConical:       "conical",
	ScanCircular:      "circular",
	ScanPseudoRandom:  "pseudo_random",
	ScanSpiral:        "spiral",
}

func (m ScanMode) String() string {
	if m.Valid() {
		return scanModeNames[m]
	}
	return fmt.Sprintf("ScanMode(%d)", int(m))
}

// Valid reports whether m is a known scan mode.
func (m ScanMode) Valid() bool {
	return m >= ScanManual && m <= ScanSpiral
}

// ParseScanMode accepts the mode names in any case, with or without
// separators: "HORIZONTAL_BAR", "horizontal-bar" and "HorizontalBar" are
// all ScanHorizontalBar.
func ParseScanMode(s string) (ScanMode, bool) {
	key := normaliseName(s)
	for i, name := range scanModeNames {
		if normaliseName(name) == key {
			return ScanMode(i), true
		}
	}
	return ScanManual, false
}

func normaliseName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// SpiralPolicy decides what a spiral scan does once it reaches MaxNumRevs.
type SpiralPolicy int

const (
	// SpiralHold keeps circling at the outer radius.
	SpiralHold SpiralPolicy = iota
	// SpiralRestart collapses to the centre and grows again.
	SpiralRestart
)

func (p SpiralPolicy) String() string {
	switch p {
	case SpiralHold:
		return "hold"
	case SpiralRestart:
		return "restart"
	}
	return fmt.Sprintf("SpiralPolicy(%d)", int(p))
}

// ParseSpiralPolicy accepts "hold" or "restart".
func ParseSpiralPolicy(s string) (SpiralPolicy, bool) {
	switch normaliseName(s) {
	case "hold":
		return SpiralHold, true
	case "restart":
		return SpiralRestart, true
	}
	return SpiralHold, false
}

// Point is a 2D angle in degrees.
type Point struct {
	Az, El float64
}

func (p Point) add(q Point) Point { return Point{Az: p.Az + q.Az, El: p.El + q.El} }
func (p Point) sub(q Point) Point { return Point{Az: p.Az - q.Az, El: p.El - q.El} }

// Norm is the angular distance from the origin.
func (p Point) Norm() float64 { return math.Hypot(p.Az, p.El) }

// ScanEventKind identifies a pattern boundary.
type ScanEventKind int

const (
	ScanStart ScanEventKind = iota
	ScanEnd
	BarChange
)

func (k ScanEventKind) String() string {
	switch k {
	case ScanStart:
		return "scan_start"
	case ScanEnd:
		return "scan_end"
	case BarChange:
		return "bar_change"
	}
	return fmt.Sprintf("ScanEventKind(%d)", int(k))
}

// ScanEvent is delivered to listeners from inside Dynamics.
type ScanEvent struct {
	Kind  ScanEventKind
	Mode  ScanMode
	Bar   int
	Count int // completed patterns, including this one for ScanEnd
}

// ScanState is a snapshot of the scan controller.
type ScanState struct {
	Mode            ScanMode
	Position        Point // offset from the reference
	Pointing        Point // reference + offset, within gimbal limits
	Bar             int
	Direction       int
	RevolutionCount int
	ScanCount       int
	Radius          float64
	AtLimit         bool
}

const phaseEpsilon = 1e-9

// ScanController drives a Gimbal through one of the scan patterns. It is
// stepped from the dynamics phase only; sensors read its counters in later
// phases of the same frame.
type ScanController struct {
	name     string
	gimbal   *Gimbal
	reporter monitoring.Reporter

	// configuration
	mode        ScanMode
	scanWidth   float64 // deg, sweep extent for bar scans
	numBars     int
	barSpacing  float64 // deg
	scanRate    float64 // deg/s along a bar; vertex moves run at maxScanRate
	leftToRight bool
	scanRadius  float64 // deg
	revPerSec   float64
	maxNumRevs  int
	spiral      SpiralPolicy
	pattern     []Point
	maxScanRate float64 // deg/s bound on any scan step, and the vertex-to-vertex rate
	beamWidth   float64 // deg
	reference   Point
	manual      Point

	// pattern state
	pos        Point // limited, clamped offset
	ideal      Point
	bar        int
	direction  int
	sweepIdx   int
	sweepPos   float64
	phase      float64 // revolutions in [0,1)
	spiralRevs int
	vertex     int
	revs       int
	scans      int
	started    bool
	atLimit    bool

	listeners []func(ScanEvent)
}

// NewScanController returns a controller in manual mode driving g.
func NewScanController(name string, g *Gimbal, reporter monitoring.Reporter) *ScanController {
	if g == nil {
		g = NewGimbal(name, reporter)
	}
	s := &ScanController{
		name:        name,
		gimbal:      g,
		reporter:    monitoring.OrDefault(reporter),
		mode:        ScanManual,
		scanWidth:   60,
		numBars:     4,
		barSpacing:  2,
		scanRate:    60,
		scanRadius:  2,
		revPerSec:   1,
		maxNumRevs:  5,
		maxScanRate: 360,
		beamWidth:   3,
	}
	s.resetPattern()
	return s
}

// Name returns the controller name.
func (s *ScanController) Name() string { return s.name }

// Gimbal returns the driven gimbal.
func (s *ScanController) Gimbal() *Gimbal { return s.gimbal }

// OnScanEvent registers fn for scan boundary events.
func (s *ScanController) OnScanEvent(fn func(ScanEvent)) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

// SetScanMode switches pattern. With resetRequired the position, bar and
// counters go back to the pattern's initial values.
func (s *ScanController) SetScanMode(m ScanMode, resetRequired bool) bool {
	if !m.Valid() {
		s.reject("scan mode %d", int(m))
		return false
	}
	if m == ScanPseudoRandom && len(s.pattern) == 0 {
		s.reject("pseudo-random scan without a pattern")
		return false
	}
	prev := s.mode
	s.mode = m
	if resetRequired {
		s.resetPattern()
	}
	if m == ScanCircular {
		s.gimbal.SetElectronic(true)
	} else if prev == ScanCircular {
		s.gimbal.SetElectronic(false)
	}
	if m != ScanManual {
		s.gimbal.SetServoMode(ServoPosition)
	}
	diagf("%s scan mode %s -> %s (reset=%v)", s.name, prev, m, resetRequired)
	return true
}

// SetScanModeName is the loader entry point for SetScanMode; it always
// resets the pattern.
func (s *ScanController) SetScanModeName(name string) bool {
	m, ok := ParseScanMode(name)
	if !ok {
		s.reject("scan mode %q", name)
		return false
	}
	return s.SetScanMode(m, true)
}

// ScanMode returns the active pattern.
func (s *ScanController) ScanMode() ScanMode { return s.mode }

// SetSearchVolume configures a horizontal bar scan covering width x height
// degrees. With requestedBars == 0 the bar count is the number of beam
// widths needed to cover height.
func (s *ScanController) SetSearchVolume(width, height float64, requestedBars int) bool {
	if width <= 0 || height <= 0 || requestedBars < 0 {
		s.reject("search volume %vx%v bars=%d", width, height, requestedBars)
		return false
	}
	bars := requestedBars
	if bars == 0 {
		bars = int(math.Ceil(height / s.beamWidth))
		if bars < 1 {
			bars = 1
		}
	}
	s.scanWidth = width
	s.numBars = bars
	s.barSpacing = height / float64(bars)
	return s.SetScanMode(ScanHorizontalBar, true)
}

// SetScanWidth sets the bar sweep extent in degrees.
func (s *ScanController) SetScanWidth(w float64) bool {
	if w <= 0 {
		s.reject("scan width %v", w)
		return false
	}
	s.scanWidth = w
	s.resetIfBar()
	return true
}

// SetNumBars sets the number of bars.
func (s *ScanController) SetNumBars(n int) bool {
	if n < 1 {
		s.reject("bar count %d", n)
		return false
	}
	s.numBars = n
	s.resetIfBar()
	return true
}

// SetBarSpacing sets the orthogonal step between bars in degrees.
func (s *ScanController) SetBarSpacing(d float64) bool {
	if d < 0 {
		s.reject("bar spacing %v", d)
		return false
	}
	s.barSpacing = d
	s.resetIfBar()
	return true
}

// SetScanRate sets the sweep rate in deg/s. It may not exceed the max
// scan rate.
func (s *ScanController) SetScanRate(r float64) bool {
	if r <= 0 || r > s.maxScanRate {
		s.reject("scan rate %v (max %v)", r, s.maxScanRate)
		return false
	}
	s.scanRate = r
	return true
}

// SetLeftToRightScan pins bar sweeps to one direction with a flyback
// between bars.
func (s *ScanController) SetLeftToRightScan(pinned bool) {
	s.leftToRight = pinned
	s.resetIfBar()
}

// SetScanRadius sets the conical, circular and spiral radius in degrees.
func (s *ScanController) SetScanRadius(r float64) bool {
	if r <= 0 || !s.rotationFeasible(r, s.revPerSec) {
		s.reject("scan radius %v at %v rev/s", r, s.revPerSec)
		return false
	}
	s.scanRadius = r
	return true
}

// SetRevPerSec sets the rotation frequency.
func (s *ScanController) SetRevPerSec(f float64) bool {
	if f <= 0 || !s.rotationFeasible(s.scanRadius, f) {
		s.reject("rev/s %v at radius %v", f, s.scanRadius)
		return false
	}
	s.revPerSec = f
	return true
}

// SetMaxNumRevs sets how many revolutions a spiral takes to reach the
// full radius.
func (s *ScanController) SetMaxNumRevs(n int) bool {
	if n < 1 {
		s.reject("max revolutions %d", n)
		return false
	}
	s.maxNumRevs = n
	return true
}

// SetSpiralPolicy selects what happens at the spiral's outer radius.
func (s *ScanController) SetSpiralPolicy(p SpiralPolicy) bool {
	if p != SpiralHold && p != SpiralRestart {
		s.reject("spiral policy %d", int(p))
		return false
	}
	s.spiral = p
	return true
}

// SetSpiralPolicyName is the string form of SetSpiralPolicy.
func (s *ScanController) SetSpiralPolicyName(name string) bool {
	p, ok := ParseSpiralPolicy(name)
	if !ok {
		s.reject("spiral policy %q", name)
		return false
	}
	return s.SetSpiralPolicy(p)
}

// SetPseudoRandomPattern sets the ordered vertex list (offsets from the
// reference). The slice is copied.
func (s *ScanController) SetPseudoRandomPattern(vertices []Point) bool {
	if len(vertices) == 0 {
		s.reject("empty pseudo-random pattern")
		return false
	}
	s.pattern = append([]Point(nil), vertices...)
	if s.mode == ScanPseudoRandom {
		s.resetPattern()
	}
	return true
}

// SetMaxScanRate bounds the distance the scan position can move per
// second in any mode.
func (s *ScanController) SetMaxScanRate(r float64) bool {
	if r <= 0 || r < s.scanRate || !rotationWithin(s.scanRadius, s.revPerSec, r) {
		s.reject("max scan rate %v", r)
		return false
	}
	s.maxScanRate = r
	return true
}

// SetReference sets the pattern centre in gimbal coordinates.
func (s *ScanController) SetReference(p Point) { s.reference = p }

// SetManualPosition sets the offset held in manual mode.
func (s *ScanController) SetManualPosition(p Point) {
	s.manual = p
	if s.mode == ScanManual {
		s.ideal = p
	}
}

// SetBeamWidth sets the beam width used to derive bar counts.
func (s *ScanController) SetBeamWidth(w float64) bool {
	if w <= 0 {
		s.reject("beam width %v", w)
		return false
	}
	s.beamWidth = w
	return true
}

// ScanRate returns the bar sweep rate in deg/s.
func (s *ScanController) ScanRate() float64 { return s.scanRate }

// MaxScanRate returns the scan position rate limit in deg/s.
func (s *ScanController) MaxScanRate() float64 { return s.maxScanRate }

// BeamWidth returns the configured beam width in degrees.
func (s *ScanController) BeamWidth() float64 { return s.beamWidth }

// ScanPosition returns the current offset from the reference.
func (s *ScanController) ScanPosition() Point { return s.pos }

// Pointing returns the absolute scan direction.
func (s *ScanController) Pointing() Point { return s.reference.add(s.pos) }

// Bar returns the current bar number (1-based, bar scans only).
func (s *ScanController) Bar() int { return s.bar }

// RevolutionCount returns the revolutions completed since reset. Consumers
// gate once-per-revolution work by remembering the last value they saw.
func (s *ScanController) RevolutionCount() int { return s.revs }

// ScanCount returns the number of completed patterns since reset.
func (s *ScanController) ScanCount() int { return s.scans }

// AtLimit reports whether the last step was clamped to the gimbal limits.
func (s *ScanController) AtLimit() bool { return s.atLimit }

// State returns a snapshot.
func (s *ScanController) State() ScanState {
	return ScanState{
		Mode:            s.mode,
		Position:        s.pos,
		Pointing:        s.Pointing(),
		Bar:             s.bar,
		Direction:       s.direction,
		RevolutionCount: s.revs,
		ScanCount:       s.scans,
		Radius:          s.currentRadius(),
		AtLimit:         s.atLimit,
	}
}

// Reset reinitialises the pattern and the gimbal.
func (s *ScanController) Reset() {
	s.gimbal.Reset()
	s.resetPattern()
}

// Dynamics advances the pattern by dt, commands the gimbal and steps its
// servo. It never fails.
func (s *ScanController) Dynamics(dt float64) {
	if dt <= 0 {
		return
	}
	if !s.started {
		s.started = true
		s.emit(ScanStart)
	}

	switch s.mode {
	case ScanManual:
		s.ideal = s.manual
	case ScanHorizontalBar, ScanVerticalBar:
		s.stepBar(dt)
	case ScanConical, ScanCircular, ScanSpiral:
		s.stepRotation(dt)
	case ScanPseudoRandom:
		s.stepVertices()
	}

	next := limitStep(s.pos, s.ideal, s.maxScanRate*dt)
	abs, clamped := s.gimbal.clamp(Position{Az: s.reference.Az + next.Az, El: s.reference.El + next.El})
	s.pos = Point{Az: abs.Az, El: abs.El}.sub(s.reference)
	s.atLimit = clamped

	cmd := Position{Az: abs.Az, El: abs.El, Roll: s.gimbal.Position().Roll}
	if s.mode == ScanCircular {
		s.gimbal.Steer(cmd, dt)
	} else {
		s.gimbal.CommandPosition(cmd)
		s.gimbal.Dynamics(dt)
	}
	tracef("%s %s pos az=%.3f el=%.3f bar=%d revs=%d", s.name, s.mode, s.pos.Az, s.pos.El, s.bar, s.revs)
}

func (s *ScanController) resetPattern() {
	s.bar = 1
	s.direction = 1
	s.sweepIdx = 0
	s.sweepPos = -s.scanWidth / 2
	s.phase = 0
	s.spiralRevs = 0
	s.vertex = 0
	s.revs = 0
	s.scans = 0
	s.started = false
	s.atLimit = false

	switch s.mode {
	case ScanManual:
		s.ideal = s.manual
	case ScanHorizontalBar, ScanVerticalBar:
		s.ideal = s.barPoint()
	case ScanConical, ScanCircular, ScanSpiral:
		s.ideal = s.rotationPoint()
	case ScanPseudoRandom:
		s.ideal = Point{}
		if len(s.pattern) > 0 {
			s.ideal = s.pattern[0]
		}
	}
	s.pos = s.ideal
}

func (s *ScanController) resetIfBar() {
	if s.mode == ScanHorizontalBar || s.mode == ScanVerticalBar {
		s.resetPattern()
	}
}

// barPeriod is the number of sweeps in one full pattern. Reversing scans
// oscillate 1..N..1 so they end where they began.
func (s *ScanController) barPeriod() int {
	switch {
	case s.leftToRight:
		return s.numBars
	case s.numBars == 1:
		return 2
	default:
		return 2*s.numBars - 2
	}
}

func (s *ScanController) barFor(sweep int) int {
	n := s.numBars
	if n == 1 {
		return 1
	}
	if s.leftToRight || sweep < n {
		return sweep + 1
	}
	return 2*n - 1 - sweep
}

func (s *ScanController) barPoint() Point {
	along := s.sweepPos
	cross := float64(s.numBars-1)*s.barSpacing/2 - float64(s.bar-1)*s.barSpacing
	if s.mode == ScanVerticalBar {
		return Point{Az: -cross, El: along}
	}
	return Point{Az: along, El: cross}
}

func (s *ScanController) stepBar(dt float64) {
	half := s.scanWidth / 2
	s.sweepPos += float64(s.direction) * s.scanRate * dt

	if (s.direction > 0 && s.sweepPos >= half) || (s.direction < 0 && s.sweepPos <= -half) {
		s.sweepPos = float64(s.direction) * half
		s.sweepIdx++
		if s.leftToRight {
			s.sweepPos = -half
		} else {
			s.direction = -s.direction
		}
		if s.sweepIdx >= s.barPeriod() {
			s.sweepIdx = 0
			s.finishPattern()
		}
		if bar := s.barFor(s.sweepIdx); bar != s.bar {
			s.bar = bar
			s.emit(BarChange)
		}
	}
	s.ideal = s.barPoint()
}

func (s *ScanController) stepRotation(dt float64) {
	s.phase += s.revPerSec * dt
	for s.phase >= 1-phaseEpsilon {
		s.phase--
		s.revs++
		if s.mode != ScanSpiral {
			s.finishPattern()
			continue
		}
		s.spiralRevs++
		if s.spiralRevs == s.maxNumRevs {
			s.finishPattern()
		}
		if s.spiralRevs >= s.maxNumRevs {
			if s.spiral == SpiralRestart {
				s.spiralRevs = 0
			} else {
				s.spiralRevs = s.maxNumRevs
			}
		}
	}
	s.ideal = s.rotationPoint()
}

func (s *ScanController) currentRadius() float64 {
	switch s.mode {
	case ScanConical, ScanCircular:
		return s.scanRadius
	case ScanSpiral:
		elapsed := math.Min(float64(s.spiralRevs)+math.Max(s.phase, 0), float64(s.maxNumRevs))
		return s.scanRadius * elapsed / float64(s.maxNumRevs)
	}
	return 0
}

func (s *ScanController) rotationPoint() Point {
	r := s.currentRadius()
	theta := 2 * math.Pi * s.phase
	return Point{Az: r * math.Cos(theta), El: r * math.Sin(theta)}
}

func (s *ScanController) stepVertices() {
	if len(s.pattern) == 0 {
		s.ideal = Point{}
		return
	}
	target := s.pattern[s.vertex]
	if s.pos.sub(target).Norm() > 1e-9 && !s.atLimit {
		s.ideal = target
		return
	}
	s.vertex++
	if s.vertex == len(s.pattern) {
		s.vertex = 0
		s.finishPattern()
	}
	s.ideal = s.pattern[s.vertex]
}

func (s *ScanController) finishPattern() {
	s.scans++
	s.emit(ScanEnd)
	s.emit(ScanStart)
	diagf("%s %s pattern %d complete", s.name, s.mode, s.scans)
}

func (s *ScanController) emit(kind ScanEventKind) {
	ev := ScanEvent{Kind: kind, Mode: s.mode, Bar: s.bar, Count: s.scans}
	for _, fn := range s.listeners {
		fn(ev)
	}
}

func (s *ScanController) rotationFeasible(radius, revPerSec float64) bool {
	return rotationWithin(radius, revPerSec, s.maxScanRate)
}

func rotationWithin(radius, revPerSec, maxRate float64) bool {
	return 2*math.Pi*radius*revPerSec <= maxRate
}

func (s *ScanController) reject(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	opsf("%s rejected %s", s.name, msg)
	monitoring.Warnf(s.reporter, monitoring.KindConfig, s.name, "rejected %s", msg)
}

// limitStep moves from toward to by at most maxStep.
func limitStep(from, to Point, maxStep float64) Point {
	d := to.sub(from)
	n := d.Norm()
	if n <= maxStep || n == 0 {
		return to
	}
	k := maxStep / n
	return Point{Az: from.Az + d.Az*k, El: from.El + d.El*k}
}
