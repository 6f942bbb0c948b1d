package sensor

import "gonum.org/v1/gonum/spatial/r3"

// Player is a truth target as seen from ownship. Position and Velocity are
// relative to the ownship reference point in the body frame (x forward,
// y right, z down), metres and metres per second.
type Player struct {
	ID       int
	Position r3.Vec
	Velocity r3.Vec
	IFF      int
	Ground   bool

	RCS float64 // m^2

	IRIntensity float64 // W/sr in the emitting band
	IRBandLow   float64 // um
	IRBandHigh  float64 // um
}

// Jammer is a noise emitter. Position is relative to ownship.
type Jammer struct {
	ID        int
	Position  r3.Vec
	ERP       float64 // effective radiated power, W
	Frequency float64 // Hz
	Bandwidth float64 // Hz
}

// World is the environment collaborator queried during Transmit.
type World interface {
	Time() float64
	Players() []Player
	Jammers() []Jammer
}
