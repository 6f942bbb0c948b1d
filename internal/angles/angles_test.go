package angles

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestWrap(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, w180, w360 float64
	}{
		{0, 0, 0},
		{180, 180, 180},
		{-180, 180, 180},
		{190, -170, 190},
		{-190, 170, 170},
		{720, 0, 0},
		{-1, -1, 359},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.w180, Wrap180(tc.in), 1e-9, "Wrap180(%v)", tc.in)
		assert.InDelta(t, tc.w360, Wrap360(tc.in), 1e-9, "Wrap360(%v)", tc.in)
	}
	assert.InDelta(t, 20.0, Diff(10, -10), 1e-9)
	assert.InDelta(t, -20.0, Diff(350, 10), 1e-9)
}

func TestPolarRoundTrip(t *testing.T) {
	t.Parallel()
	for _, c := range [][3]float64{{10, 0.5, 5000}, {170, -5, 8000}, {-45, 30, 12}} {
		v := Cartesian(c[0], c[1], c[2])
		az, el, rng, ok := Polar(v)
		assert.True(t, ok)
		assert.InDelta(t, c[0], az, 1e-9)
		assert.InDelta(t, c[1], el, 1e-9)
		assert.InDelta(t, c[2], rng, 1e-6)
	}
}

func TestPolarCoincident(t *testing.T) {
	t.Parallel()
	az, el, rng, ok := Polar(r3.Vec{})
	assert.False(t, ok)
	assert.Zero(t, az)
	assert.Zero(t, el)
	assert.Zero(t, rng)
}

func TestOffBoresight(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0, OffBoresight(10, 5, 10, 5), 1e-6)
	assert.InDelta(t, 90, OffBoresight(0, 0, 90, 0), 1e-9)
	assert.InDelta(t, 3, OffBoresight(0, 0, 0, 3), 1e-9)
}

func TestDecibels(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 20, DB(100), 1e-12)
	assert.True(t, math.IsInf(DB(0), -1))
	assert.InDelta(t, 100, FromDB(20), 1e-9)
}
