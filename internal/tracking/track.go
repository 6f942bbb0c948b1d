// Package tracking turns detection reports into a bounded, maintained set
// of tracks.
//
// Responsibilities: correlation of reports against predicted track state
// (gating), track filtering, lifecycle (creation, aging, eviction,
// removal) and listener notification.
// Key types: Track, Table, Manager.
//
// The Table exclusively owns every Track. Everything outside this package
// sees copies, and refers to a track by id only.
package tracking

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// TypeBits classifies a track's origin and domain. Bits combine.
type TypeBits uint8

const (
	TypeAir      TypeBits = 1 << iota // 1
	TypeGround                        // 2
	TypeRWR                           // 4
	TypeOnboard                       // 8
	TypeDatalink                      // 16
)

// Has reports whether every bit in b is set.
func (t TypeBits) Has(b TypeBits) bool { return t&b == b }

func (t TypeBits) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for _, n := range []struct {
		bit  TypeBits
		name string
	}{{TypeAir, "air"}, {TypeGround, "ground"}, {TypeRWR, "rwr"}, {TypeOnboard, "onboard"}, {TypeDatalink, "datalink"}} {
		if t.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseType accepts a single type name ("air", "ground", "rwr", ...).
func ParseType(s string) (TypeBits, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "air":
		return TypeAir, true
	case "ground":
		return TypeGround, true
	case "rwr":
		return TypeRWR, true
	case "onboard":
		return TypeOnboard, true
	case "datalink":
		return TypeDatalink, true
	}
	return 0, false
}

// Class says which measurements a track carries.
type Class int

const (
	RangeAndAngle Class = iota
	AngleOnly
)

func (c Class) String() string {
	switch c {
	case RangeAndAngle:
		return "range_and_angle"
	case AngleOnly:
		return "angle_only"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// MaxSignalHistory is the largest configurable signal history.
const MaxSignalHistory = 32

// SignalHistory is a fixed-capacity rolling window of SNR samples. It is a
// value type so that copying a Track copies its history.
type SignalHistory struct {
	values [MaxSignalHistory]float64
	length int // configured window, 1..MaxSignalHistory
	head   int
	count  int
}

func newSignalHistory(length int) SignalHistory {
	return SignalHistory{length: length}
}

// Add records one sample, overwriting the oldest once the window is full.
func (h *SignalHistory) Add(v float64) {
	if h.length == 0 {
		h.length = MaxSignalHistory
	}
	idx := (h.head + h.count) % h.length
	if h.count < h.length {
		h.count++
	} else {
		h.head = (h.head + 1) % h.length
	}
	h.values[idx] = v
}

// Len returns the number of samples held.
func (h SignalHistory) Len() int { return h.count }

// Values returns the samples oldest first.
func (h SignalHistory) Values() []float64 {
	out := make([]float64, h.count)
	for i := range out {
		out[i] = h.values[(h.head+i)%h.length]
	}
	return out
}

// Mean is the average sample, or 0 with no samples.
func (h SignalHistory) Mean() float64 {
	if h.count == 0 {
		return 0
	}
	return stat.Mean(h.Values(), nil)
}

// Max is the largest sample, or 0 with no samples.
func (h SignalHistory) Max() float64 {
	if h.count == 0 {
		return 0
	}
	return floats.Max(h.Values())
}

// Last is the newest sample.
func (h SignalHistory) Last() (float64, bool) {
	if h.count == 0 {
		return 0, false
	}
	return h.values[(h.head+h.count-1)%h.length], true
}

// Track is a maintained estimate of one target. Kinematics are relative
// to ownship in the body frame (x forward, y right, z down).
type Track struct {
	ID    int
	Type  TypeBits
	Class Class

	Position     r3.Vec // m
	Velocity     r3.Vec // m/s
	Acceleration r3.Vec // m/s^2

	Range     float64 // m
	RangeRate float64 // m/s
	Az, El    float64 // deg
	AzRate    float64 // deg/s
	ElRate    float64 // deg/s

	GroundSpeed float64 // m/s, horizontal speed over ground

	Quality        float64 // 0..1
	Age            float64 // s since the last correlated report
	IFF            int
	ShootListIndex int // 0 = not on the shoot list, else rank

	Signal SignalHistory

	SensorID   string
	TargetID   int
	Updates    int
	LastUpdate float64 // simulation time of the last report

	created uint64
	updated bool // correlated during the current cycle
}

// AvgSignal is the rolling mean SNR.
func (t Track) AvgSignal() float64 { return t.Signal.Mean() }

// MaxSignal is the rolling max SNR.
func (t Track) MaxSignal() float64 { return t.Signal.Max() }

// IsGround reports whether the track carries the ground type bit.
func (t Track) IsGround() bool { return t.Type.Has(TypeGround) }
