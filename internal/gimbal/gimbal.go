package gimbal

import (
	"fmt"
	"strings"

	"github.com/banshee-data/scantrack/internal/angles"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
)

// ServoMode selects what drives the gimbal integrator.
type ServoMode int

const (
	ServoFreeze   ServoMode = iota // hold position, zero rate
	ServoRate                      // integrate the commanded rate
	ServoPosition                  // slew toward the commanded position
)

func (m ServoMode) String() string {
	switch m {
	case ServoFreeze:
		return "freeze"
	case ServoRate:
		return "rate"
	case ServoPosition:
		return "position"
	}
	return fmt.Sprintf("ServoMode(%d)", int(m))
}

// ParseServoMode accepts "freeze", "rate" or "position" (any case).
func ParseServoMode(s string) (ServoMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freeze":
		return ServoFreeze, true
	case "rate":
		return ServoRate, true
	case "position":
		return ServoPosition, true
	}
	return ServoFreeze, false
}

// Position is a gimbal orientation in degrees. For rates the same fields
// hold degrees per second.
type Position struct {
	Az, El, Roll float64
}

// Limits are the mechanical travel limits in degrees.
type Limits struct {
	LowAz, HighAz float64
	LowEl, HighEl float64
}

// Valid reports whether both axes have a non-empty range.
func (l Limits) Valid() bool {
	return l.LowAz < l.HighAz && l.LowEl < l.HighEl
}

// DefaultLimits allow a full hemisphere-plus of travel.
var DefaultLimits = Limits{LowAz: -180, HighAz: 180, LowEl: -90, HighEl: 90}

// State is a snapshot of the gimbal servo.
type State struct {
	Position    Position
	Rate        Position
	CmdPosition Position
	CmdRate     Position
	Mode        ServoMode
	Limits      Limits
	MaxRate     float64
	Location    r3.Vec
	AtLimit     bool
	Electronic  bool
}

// Gimbal is a position/rate servo with mechanical limits.
type Gimbal struct {
	name string

	pos     Position
	rate    Position
	cmdPos  Position
	cmdRate Position
	initial Position

	mode       ServoMode
	limits     Limits
	maxRate    float64 // deg/s per axis
	location   r3.Vec  // mount offset from the ownship reference point (m)
	atLimit    bool
	electronic bool

	reporter monitoring.Reporter
}

// NewGimbal returns a mechanical gimbal in position mode at boresight.
func NewGimbal(name string, reporter monitoring.Reporter) *Gimbal {
	return &Gimbal{
		name:     name,
		mode:     ServoPosition,
		limits:   DefaultLimits,
		maxRate:  120,
		reporter: monitoring.OrDefault(reporter),
	}
}

// Name returns the gimbal name.
func (g *Gimbal) Name() string { return g.name }

// SetServoMode changes the servo mode. The commanded values are kept so
// switching back resumes the previous command.
func (g *Gimbal) SetServoMode(m ServoMode) bool {
	if m < ServoFreeze || m > ServoPosition {
		g.reject("servo mode %d", int(m))
		return false
	}
	g.mode = m
	if m == ServoFreeze {
		g.rate = Position{}
	}
	return true
}

// SetServoModeName is the string form of SetServoMode used by loaders.
func (g *Gimbal) SetServoModeName(s string) bool {
	m, ok := ParseServoMode(s)
	if !ok {
		g.reject("servo mode %q", s)
		return false
	}
	return g.SetServoMode(m)
}

// SetLimits installs new mechanical limits and clamps the current
// position into them.
func (g *Gimbal) SetLimits(l Limits) bool {
	if !l.Valid() {
		g.reject("limits %+v", l)
		return false
	}
	g.limits = l
	g.pos, g.atLimit = g.clamp(g.pos)
	return true
}

// SetMaxRate sets the per-axis slew rate limit in deg/s.
func (g *Gimbal) SetMaxRate(r float64) bool {
	if r <= 0 {
		g.reject("max rate %v", r)
		return false
	}
	g.maxRate = r
	return true
}

// SetInitialPosition sets the position restored by Reset.
func (g *Gimbal) SetInitialPosition(p Position) bool {
	if c, clamped := g.clamp(p); clamped || c != p {
		g.reject("initial position %+v outside limits", p)
		return false
	}
	g.initial = p
	return true
}

// SetLocation sets the mount offset from the ownship reference point.
func (g *Gimbal) SetLocation(v r3.Vec) { g.location = v }

// SetElectronic marks the gimbal as electronically steered: commanded
// positions are reached in one tick with no servo lag.
func (g *Gimbal) SetElectronic(e bool) { g.electronic = e }

// CommandPosition sets the position the servo slews toward in position mode.
func (g *Gimbal) CommandPosition(p Position) { g.cmdPos = p }

// CommandRate sets the rate integrated in rate mode.
func (g *Gimbal) CommandRate(r Position) { g.cmdRate = r }

// Steer moves the beam directly to p (clamped to limits), bypassing the
// servo. It is used by electronically scanned patterns.
func (g *Gimbal) Steer(p Position, dt float64) {
	next, at := g.clamp(p)
	if dt > 0 {
		g.rate = Position{
			Az:   (next.Az - g.pos.Az) / dt,
			El:   (next.El - g.pos.El) / dt,
			Roll: (next.Roll - g.pos.Roll) / dt,
		}
	}
	g.pos = next
	g.cmdPos = p
	g.atLimit = at
}

// Dynamics advances the servo by dt seconds. It never fails: positions
// outside the limits are clamped and AtLimit is set.
func (g *Gimbal) Dynamics(dt float64) {
	if dt <= 0 {
		return
	}
	var next Position
	switch g.mode {
	case ServoFreeze:
		g.rate = Position{}
		return
	case ServoRate:
		r := Position{
			Az:   clampRate(g.cmdRate.Az, g.maxRate),
			El:   clampRate(g.cmdRate.El, g.maxRate),
			Roll: clampRate(g.cmdRate.Roll, g.maxRate),
		}
		next = Position{Az: g.pos.Az + r.Az*dt, El: g.pos.El + r.El*dt, Roll: g.pos.Roll + r.Roll*dt}
	case ServoPosition:
		if g.electronic {
			next = g.cmdPos
			break
		}
		step := g.maxRate * dt
		next = Position{
			Az:   g.pos.Az + clampRate(g.cmdPos.Az-g.pos.Az, step),
			El:   g.pos.El + clampRate(g.cmdPos.El-g.pos.El, step),
			Roll: g.pos.Roll + clampRate(g.cmdPos.Roll-g.pos.Roll, step),
		}
	}
	next, g.atLimit = g.clamp(next)
	g.rate = Position{
		Az:   (next.Az - g.pos.Az) / dt,
		El:   (next.El - g.pos.El) / dt,
		Roll: (next.Roll - g.pos.Roll) / dt,
	}
	g.pos = next
	tracef("%s pos az=%.3f el=%.3f rate az=%.2f el=%.2f atLimit=%v", g.name, g.pos.Az, g.pos.El, g.rate.Az, g.rate.El, g.atLimit)
}

// Reset returns the gimbal to its initial position with zero rate.
func (g *Gimbal) Reset() {
	g.pos, g.atLimit = g.clamp(g.initial)
	g.cmdPos = g.pos
	g.rate = Position{}
	g.cmdRate = Position{}
}

// Position returns the current pointing.
func (g *Gimbal) Position() Position { return g.pos }

// Rate returns the current angular rate.
func (g *Gimbal) Rate() Position { return g.rate }

// AtLimit reports whether the last step was clamped.
func (g *Gimbal) AtLimit() bool { return g.atLimit }

// Limits returns the mechanical limits.
func (g *Gimbal) Limits() Limits { return g.limits }

// MaxRate returns the slew rate limit.
func (g *Gimbal) MaxRate() float64 { return g.maxRate }

// Electronic reports whether the gimbal is electronically steered.
func (g *Gimbal) Electronic() bool { return g.electronic }

// Location returns the mount offset.
func (g *Gimbal) Location() r3.Vec { return g.location }

// State returns a snapshot of the servo.
func (g *Gimbal) State() State {
	return State{
		Position:    g.pos,
		Rate:        g.rate,
		CmdPosition: g.cmdPos,
		CmdRate:     g.cmdRate,
		Mode:        g.mode,
		Limits:      g.limits,
		MaxRate:     g.maxRate,
		Location:    g.location,
		AtLimit:     g.atLimit,
		Electronic:  g.electronic,
	}
}

func (g *Gimbal) clamp(p Position) (Position, bool) {
	az, a := angles.Clamp(p.Az, g.limits.LowAz, g.limits.HighAz)
	el, e := angles.Clamp(p.El, g.limits.LowEl, g.limits.HighEl)
	return Position{Az: az, El: el, Roll: p.Roll}, a || e
}

func (g *Gimbal) reject(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	opsf("%s rejected %s", g.name, msg)
	monitoring.Warnf(g.reporter, monitoring.KindConfig, g.name, "rejected %s", msg)
}

func clampRate(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
