// Package sensor turns gimbal pointing and target physics into detection
// reports.
//
// Radar and IRSensor share the same phase contract: Transmit gathers
// emissions or queries from the World into a bounded incoming queue,
// Receive evaluates each one against the detection threshold and Process
// aggregates the survivors into the sensor's output queue. The output
// queue is the only state a track manager ever touches.
package sensor

import "fmt"

// Kind is the sensing technology that produced a report.
type Kind int

const (
	KindRF Kind = iota
	KindIR
)

func (k Kind) String() string {
	switch k {
	case KindRF:
		return "rf"
	case KindIR:
		return "ir"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Report is one detection. It is a value: once built it is never mutated,
// and queues hand out copies.
type Report struct {
	SensorID  string
	Kind      Kind
	SNR       float64 // dB
	Az        float64 // deg, ownship body frame
	El        float64 // deg
	Range     float64 // m
	RangeRate float64 // m/s, positive opening
	Time      float64 // simulation seconds
	TargetID  int     // world player reference, 0 when unknown
	IFF       int
	Ground    bool
	Seq       uint64
}

// DetectionListener is the logging collaborator's view of a sensor.
type DetectionListener interface {
	NewDetection(Report)
}

// DetectionListenerFunc adapts a function to DetectionListener.
type DetectionListenerFunc func(Report)

// NewDetection calls f(r).
func (f DetectionListenerFunc) NewDetection(r Report) { f(r) }
