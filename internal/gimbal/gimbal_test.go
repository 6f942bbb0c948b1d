package gimbal

import (
	"testing"

	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----- ServoMode -----

func TestParseServoMode(t *testing.T) {
	t.Parallel()
	for _, m := range []ServoMode{ServoFreeze, ServoRate, ServoPosition} {
		got, ok := ParseServoMode(m.String())
		require.True(t, ok, m.String())
		assert.Equal(t, m, got)
	}
	_, ok := ParseServoMode("track")
	assert.False(t, ok)
}

// ----- Dynamics -----

func TestGimbal_PositionModeSlewsAtMaxRate(t *testing.T) {
	t.Parallel()
	g := NewGimbal("g", monitoring.Discard)
	require.True(t, g.SetMaxRate(10))
	g.CommandPosition(Position{Az: 5, El: -1})

	g.Dynamics(0.1)
	assert.InDelta(t, 1.0, g.Position().Az, 1e-9)
	assert.InDelta(t, -1.0, g.Position().El, 1e-9)
	assert.InDelta(t, 10.0, g.Rate().Az, 1e-9)

	for i := 0; i < 10; i++ {
		g.Dynamics(0.1)
	}
	assert.InDelta(t, 5.0, g.Position().Az, 1e-9)
	assert.False(t, g.AtLimit())
}

func TestGimbal_RateModeIntegratesAndClampsRate(t *testing.T) {
	t.Parallel()
	g := NewGimbal("g", monitoring.Discard)
	require.True(t, g.SetServoMode(ServoRate))
	require.True(t, g.SetMaxRate(20))
	g.CommandRate(Position{Az: 50, El: -5})

	g.Dynamics(0.5)
	assert.InDelta(t, 10.0, g.Position().Az, 1e-9, "rate clamped to 20 deg/s")
	assert.InDelta(t, -2.5, g.Position().El, 1e-9)
}

func TestGimbal_FreezeHolds(t *testing.T) {
	t.Parallel()
	g := NewGimbal("g", monitoring.Discard)
	g.CommandPosition(Position{Az: 30})
	g.Dynamics(0.1)
	before := g.Position()

	require.True(t, g.SetServoMode(ServoFreeze))
	g.CommandPosition(Position{Az: -30})
	g.Dynamics(1)
	assert.Equal(t, before, g.Position())
	assert.Equal(t, Position{}, g.Rate())
}

func TestGimbal_ClampsToLimits(t *testing.T) {
	t.Parallel()
	g := NewGimbal("g", monitoring.Discard)
	require.True(t, g.SetLimits(Limits{LowAz: -10, HighAz: 10, LowEl: -5, HighEl: 5}))
	require.True(t, g.SetServoMode(ServoRate))
	g.CommandRate(Position{Az: 100, El: -100})

	for i := 0; i < 50; i++ {
		g.Dynamics(0.05)
		p := g.Position()
		assert.LessOrEqual(t, p.Az, 10.0)
		assert.GreaterOrEqual(t, p.El, -5.0)
	}
	assert.True(t, g.AtLimit())
}

func TestGimbal_ElectronicReachesCommandInOneTick(t *testing.T) {
	t.Parallel()
	g := NewGimbal("g", monitoring.Discard)
	g.SetElectronic(true)
	g.CommandPosition(Position{Az: 45, El: 20})
	g.Dynamics(0.01)
	assert.Equal(t, 45.0, g.Position().Az)
	assert.Equal(t, 20.0, g.Position().El)
}

// ----- Setters -----

func TestGimbal_SettersRejectInvalid(t *testing.T) {
	t.Parallel()
	rec := monitoring.NewRecorder(0)
	g := NewGimbal("g", rec)

	assert.False(t, g.SetMaxRate(0))
	assert.Equal(t, 120.0, g.MaxRate())
	assert.False(t, g.SetLimits(Limits{LowAz: 5, HighAz: -5, LowEl: -1, HighEl: 1}))
	assert.Equal(t, DefaultLimits, g.Limits())
	assert.False(t, g.SetServoMode(ServoMode(9)))
	assert.False(t, g.SetServoModeName("bogus"))
	assert.False(t, g.SetInitialPosition(Position{Az: 500}))

	assert.Equal(t, 5, rec.Count(monitoring.KindConfig))
}

func TestGimbal_ResetRestoresInitialPosition(t *testing.T) {
	t.Parallel()
	g := NewGimbal("g", monitoring.Discard)
	require.True(t, g.SetInitialPosition(Position{Az: 10, El: 2}))
	g.CommandPosition(Position{Az: -40})
	g.Dynamics(1)

	g.Reset()
	assert.Equal(t, Position{Az: 10, El: 2}, g.Position())
	assert.Equal(t, Position{}, g.Rate())
	assert.Equal(t, ServoPosition, g.State().Mode)
}
