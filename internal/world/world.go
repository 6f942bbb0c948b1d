// Package world is a scripted environment: ownship and truth targets move
// in straight lines through a local level frame (x north, y east, z down,
// metres) and sensors see them relative to ownship. Ownship flies level
// and pointing north, so its body axes coincide with the world axes.
package world

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/scantrack/internal/sensor"
)

// Target is a truth player moving at constant velocity.
type Target struct {
	ID       int
	Position r3.Vec // m
	Velocity r3.Vec // m/s
	IFF      int
	Ground   bool

	RCS         float64 // m^2
	IRIntensity float64 // W/sr
	IRBandLow   float64 // um
	IRBandHigh  float64 // um
}

// Jammer is a fixed noise emitter.
type Jammer struct {
	ID        int
	Position  r3.Vec
	ERP       float64 // W
	Frequency float64 // Hz
	Bandwidth float64 // Hz
}

// World implements sensor.World. Dynamics runs on the time-critical lane;
// OwnshipVelocity may be read from the background lane.
type World struct {
	name string

	mu       sync.RWMutex
	time     float64
	ownPos   r3.Vec
	ownVel   r3.Vec
	targets  []Target
	jammers  []Jammer
	initial  snapshot
	players  []sensor.Player
	relJams  []sensor.Jammer
	upToDate bool
}

type snapshot struct {
	ownPos, ownVel r3.Vec
	targets        []Target
}

// New returns an empty world with ownship at the origin, at rest.
func New(name string) *World {
	return &World{name: name}
}

// Name returns the component name.
func (w *World) Name() string { return w.name }

// SetOwnship sets the ownship start state.
func (w *World) SetOwnship(pos, vel r3.Vec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ownPos, w.ownVel = pos, vel
	w.initial.ownPos, w.initial.ownVel = pos, vel
	w.upToDate = false
}

// AddTarget adds a target. Ids must be positive and unique.
func (w *World) AddTarget(t Target) error {
	if t.ID <= 0 {
		return fmt.Errorf("target id %d: must be positive", t.ID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, have := range w.targets {
		if have.ID == t.ID {
			return fmt.Errorf("target id %d: duplicate", t.ID)
		}
	}
	w.targets = append(w.targets, t)
	w.initial.targets = append(w.initial.targets, t)
	w.upToDate = false
	return nil
}

// AddJammer adds a fixed jammer.
func (w *World) AddJammer(j Jammer) error {
	if j.Bandwidth <= 0 || j.ERP < 0 {
		return fmt.Errorf("jammer %d: bandwidth %v, erp %v", j.ID, j.Bandwidth, j.ERP)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jammers = append(w.jammers, j)
	w.upToDate = false
	return nil
}

// Dynamics advances time, ownship and every target by dt seconds.
func (w *World) Dynamics(dt float64) {
	if dt <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.time += dt
	w.ownPos = r3.Add(w.ownPos, r3.Scale(dt, w.ownVel))
	for i := range w.targets {
		t := &w.targets[i]
		t.Position = r3.Add(t.Position, r3.Scale(dt, t.Velocity))
	}
	w.upToDate = false
}

// Reset restores the start state and time zero.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.time = 0
	w.ownPos, w.ownVel = w.initial.ownPos, w.initial.ownVel
	w.targets = append(w.targets[:0], w.initial.targets...)
	w.upToDate = false
}

// Time returns simulation time in seconds.
func (w *World) Time() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.time
}

// OwnshipVelocity returns ownship velocity, for track ground speed.
func (w *World) OwnshipVelocity() r3.Vec {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ownVel
}

// Players returns every target relative to ownship. The slice is shared
// by all callers until the next Dynamics and must not be modified.
func (w *World) Players() []sensor.Player {
	w.refresh()
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.players
}

// Jammers returns every jammer relative to ownship, shared as Players.
func (w *World) Jammers() []sensor.Jammer {
	w.refresh()
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.relJams
}

// Targets returns a copy of the truth targets in the world frame.
func (w *World) Targets() []Target {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Target(nil), w.targets...)
}

func (w *World) refresh() {
	w.mu.RLock()
	ok := w.upToDate
	w.mu.RUnlock()
	if ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.upToDate {
		return
	}
	players := make([]sensor.Player, 0, len(w.targets))
	for _, t := range w.targets {
		players = append(players, sensor.Player{
			ID:          t.ID,
			Position:    r3.Sub(t.Position, w.ownPos),
			Velocity:    r3.Sub(t.Velocity, w.ownVel),
			IFF:         t.IFF,
			Ground:      t.Ground,
			RCS:         t.RCS,
			IRIntensity: t.IRIntensity,
			IRBandLow:   t.IRBandLow,
			IRBandHigh:  t.IRBandHigh,
		})
	}
	jams := make([]sensor.Jammer, 0, len(w.jammers))
	for _, j := range w.jammers {
		jams = append(jams, sensor.Jammer{
			ID:        j.ID,
			Position:  r3.Sub(j.Position, w.ownPos),
			ERP:       j.ERP,
			Frequency: j.Frequency,
			Bandwidth: j.Bandwidth,
		})
	}
	w.players, w.relJams = players, jams
	w.upToDate = true
}
