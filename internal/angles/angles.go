// Package angles holds the angle conventions shared by the gimbal, sensor
// and tracking packages.
//
// All public angles are degrees. Relative positions use a body frame with
// x forward, y right and z down; azimuth is measured clockwise from x in
// the x/y plane and elevation is positive above that plane.
package angles

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DegToRad converts degrees to radians.
	DegToRad = math.Pi / 180.0
	// RadToDeg converts radians to degrees.
	RadToDeg = 180.0 / math.Pi
)

// Wrap180 maps a into (-180, 180].
func Wrap180(a float64) float64 {
	a = math.Mod(a, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}

// Wrap360 maps a into [0, 360).
func Wrap360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// Diff returns the signed shortest angular difference a-b in (-180, 180].
func Diff(a, b float64) float64 {
	return Wrap180(a - b)
}

// Clamp limits v to [lo, hi] and reports whether clamping happened.
func Clamp(v, lo, hi float64) (float64, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

// Polar converts a relative position into azimuth, elevation and range.
// Coincident positions have no defined bearing; the result is all zeros
// with ok=false so the caller can raise a numeric warning.
func Polar(v r3.Vec) (az, el, rng float64, ok bool) {
	rng = r3.Norm(v)
	if rng == 0 || math.IsNaN(rng) {
		return 0, 0, 0, false
	}
	ground := math.Hypot(v.X, v.Y)
	az = math.Atan2(v.Y, v.X) * RadToDeg
	el = math.Atan2(-v.Z, ground) * RadToDeg
	return az, el, rng, true
}

// Cartesian is the inverse of Polar.
func Cartesian(az, el, rng float64) r3.Vec {
	a := az * DegToRad
	e := el * DegToRad
	ce := math.Cos(e)
	return r3.Vec{
		X: rng * ce * math.Cos(a),
		Y: rng * ce * math.Sin(a),
		Z: -rng * math.Sin(e),
	}
}

// OffBoresight returns the great-circle angle in degrees between two
// pointing directions given as azimuth/elevation pairs.
func OffBoresight(az1, el1, az2, el2 float64) float64 {
	u := Cartesian(az1, el1, 1)
	w := Cartesian(az2, el2, 1)
	c := r3.Dot(u, w)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * RadToDeg
}

// DB converts a power ratio to decibels. Non-positive ratios return
// -Inf so they fail every detection threshold.
func DB(ratio float64) float64 {
	if ratio <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(ratio)
}

// FromDB converts decibels to a power ratio.
func FromDB(db float64) float64 {
	return math.Pow(10, db/10)
}
