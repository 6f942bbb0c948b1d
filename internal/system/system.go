// Package system runs pipeline components through their per-frame phases.
//
// A frame on the time-critical lane runs Dynamics, Transmit, Receive and
// Process in that order. Within a phase, every component that implements
// it runs concurrently with its siblings, and the next phase starts only
// when all of them return. The background lane runs UpdateData on its
// components one after another in registration order, which puts track
// managers ahead of the onboard computers that read them.
//
// The lanes share nothing but the report queues, so they may run on
// different goroutines.
package system

// Component is anything the scheduler can reset. It takes part in the
// phases whose interfaces it implements.
type Component interface {
	Name() string
	Reset()
}

// Dynamic components move (gimbals, scan controllers).
type Dynamic interface {
	Dynamics(dt float64)
}

// Transmitter components gather emissions for the frame.
type Transmitter interface {
	Transmit(dt float64)
}

// Receiver components evaluate what was gathered.
type Receiver interface {
	Receive(dt float64)
}

// Processor components turn evaluated signals into reports.
type Processor interface {
	Process(dt float64)
}

// Updater components consume reports on the background lane.
type Updater interface {
	UpdateData(dt float64)
}

// Phase names a step of the frame.
type Phase int

const (
	PhaseDynamics Phase = iota
	PhaseTransmit
	PhaseReceive
	PhaseProcess
	PhaseUpdate
)

var phaseNames = [...]string{"dynamics", "transmit", "receive", "process", "update"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Phases reports which phases c takes part in, in frame order.
func Phases(c Component) []Phase {
	var out []Phase
	for p := PhaseDynamics; p <= PhaseUpdate; p++ {
		if implements(c, p) {
			out = append(out, p)
		}
	}
	return out
}

// call runs phase p on c if c implements it.
func call(c Component, p Phase, dt float64) {
	switch p {
	case PhaseDynamics:
		if x, ok := c.(Dynamic); ok {
			x.Dynamics(dt)
		}
	case PhaseTransmit:
		if x, ok := c.(Transmitter); ok {
			x.Transmit(dt)
		}
	case PhaseReceive:
		if x, ok := c.(Receiver); ok {
			x.Receive(dt)
		}
	case PhaseProcess:
		if x, ok := c.(Processor); ok {
			x.Process(dt)
		}
	case PhaseUpdate:
		if x, ok := c.(Updater); ok {
			x.UpdateData(dt)
		}
	}
}

func implements(c Component, p Phase) bool {
	switch p {
	case PhaseDynamics:
		_, ok := c.(Dynamic)
		return ok
	case PhaseTransmit:
		_, ok := c.(Transmitter)
		return ok
	case PhaseReceive:
		_, ok := c.(Receiver)
		return ok
	case PhaseProcess:
		_, ok := c.(Processor)
		return ok
	case PhaseUpdate:
		_, ok := c.(Updater)
		return ok
	}
	return false
}
