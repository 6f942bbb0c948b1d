package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/scantrack/internal/sensor"
)

var _ sensor.World = (*World)(nil)

func TestWorld_PlayersAreRelativeToOwnship(t *testing.T) {
	t.Parallel()
	w := New("world")
	w.SetOwnship(r3.Vec{X: 1000}, r3.Vec{X: 200})
	require.NoError(t, w.AddTarget(Target{ID: 7, Position: r3.Vec{X: 11000, Z: -500}, Velocity: r3.Vec{X: -100}, RCS: 5, IFF: 3}))

	p := w.Players()
	require.Len(t, p, 1)
	assert.Equal(t, r3.Vec{X: 10000, Z: -500}, p[0].Position)
	assert.Equal(t, r3.Vec{X: -300}, p[0].Velocity)
	assert.Equal(t, 7, p[0].ID)
	assert.Equal(t, 3, p[0].IFF)

	w.Dynamics(2)
	assert.InDelta(t, 2.0, w.Time(), 1e-12)
	p = w.Players()
	assert.InDelta(t, 10000-600, p[0].Position.X, 1e-9)
	assert.Equal(t, r3.Vec{X: 200}, w.OwnshipVelocity())
}

func TestWorld_ResetRestoresStart(t *testing.T) {
	t.Parallel()
	w := New("world")
	require.NoError(t, w.AddTarget(Target{ID: 1, Position: r3.Vec{X: 5000}, Velocity: r3.Vec{Y: 50}}))
	w.Dynamics(10)
	require.InDelta(t, 500, w.Targets()[0].Position.Y, 1e-9)

	w.Reset()
	assert.Equal(t, 0.0, w.Time())
	assert.Equal(t, r3.Vec{X: 5000}, w.Targets()[0].Position)
	assert.Equal(t, r3.Vec{X: 5000}, w.Players()[0].Position)
}

func TestWorld_Validation(t *testing.T) {
	t.Parallel()
	w := New("world")
	assert.Error(t, w.AddTarget(Target{ID: 0}))
	require.NoError(t, w.AddTarget(Target{ID: 2}))
	assert.Error(t, w.AddTarget(Target{ID: 2}))
	assert.Error(t, w.AddJammer(Jammer{ID: 1, Bandwidth: 0}))
	require.NoError(t, w.AddJammer(Jammer{ID: 1, Position: r3.Vec{Y: 3000}, ERP: 100, Frequency: 10e9, Bandwidth: 50e6}))

	j := w.Jammers()
	require.Len(t, j, 1)
	assert.Equal(t, r3.Vec{Y: 3000}, j[0].Position)
}

func TestWorld_NonPositiveStepIsIgnored(t *testing.T) {
	t.Parallel()
	w := New("world")
	w.Dynamics(0)
	w.Dynamics(-1)
	assert.Equal(t, 0.0, w.Time())
}
