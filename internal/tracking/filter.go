package tracking

import (
	"math"

	"github.com/banshee-data/scantrack/internal/angles"
	"github.com/banshee-data/scantrack/internal/sensor"
	"gonum.org/v1/gonum/spatial/r3"
)

// rateProbe is the look-ahead used to turn a velocity into angle rates.
const rateProbe = 0.1 // s

// predicted is a track's expected measurement at some time.
type predicted struct {
	az, el, rng float64
}

// predict extrapolates tr to simulation time at.
func predict(tr *Track, at float64) predicted {
	dt := math.Max(at-tr.LastUpdate, 0)
	if tr.Class == AngleOnly {
		return predicted{
			az:  angles.Wrap180(tr.Az + tr.AzRate*dt),
			el:  tr.El + tr.ElRate*dt,
			rng: tr.Range,
		}
	}
	p := extrapolate(tr.Position, tr.Velocity, tr.Acceleration, dt)
	az, el, rng, ok := angles.Polar(p)
	if !ok {
		return predicted{az: tr.Az, el: tr.El, rng: tr.Range}
	}
	return predicted{az: az, el: el, rng: rng}
}

func extrapolate(p, v, a r3.Vec, dt float64) r3.Vec {
	return r3.Add(p, r3.Add(r3.Scale(dt, v), r3.Scale(0.5*dt*dt, a)))
}

// gains are the smoothing coefficients in effect for one update.
type gains struct {
	alpha, beta, gamma float64
	angle              float64 // angle-only smoothing gain
}

// filterRangeAndAngle applies an alpha-beta-gamma update in Cartesian
// space. It reports false when the resulting position is degenerate.
func filterRangeAndAngle(tr *Track, rep sensor.Report, g gains) bool {
	z := angles.Cartesian(rep.Az, rep.El, rep.Range)
	dt := rep.Time - tr.LastUpdate
	if dt <= 0 {
		// same-time report: blend position only
		tr.Position = r3.Add(tr.Position, r3.Scale(g.alpha, r3.Sub(z, tr.Position)))
	} else {
		pp := extrapolate(tr.Position, tr.Velocity, tr.Acceleration, dt)
		vp := r3.Add(tr.Velocity, r3.Scale(dt, tr.Acceleration))
		res := r3.Sub(z, pp)
		tr.Position = r3.Add(pp, r3.Scale(g.alpha, res))
		tr.Velocity = r3.Add(vp, r3.Scale(g.beta/dt, res))
		tr.Acceleration = r3.Add(tr.Acceleration, r3.Scale(2*g.gamma/(dt*dt), res))
	}

	az, el, rng, ok := angles.Polar(tr.Position)
	if !ok {
		tr.Az, tr.El, tr.Range = 0, 0, 0
		return false
	}
	tr.Az, tr.El, tr.Range = az, el, rng
	if rep.RangeRate != 0 {
		tr.RangeRate = rep.RangeRate
	} else {
		tr.RangeRate = r3.Dot(tr.Velocity, r3.Scale(1/rng, tr.Position))
	}
	ahead := r3.Add(tr.Position, r3.Scale(rateProbe, tr.Velocity))
	if az2, el2, _, ok := angles.Polar(ahead); ok {
		tr.AzRate = angles.Diff(az2, az) / rateProbe
		tr.ElRate = (el2 - el) / rateProbe
	}
	return true
}

// filterAngleOnly smooths azimuth and elevation with the angle gain and
// tracks their rates with beta. Range, when reported, is taken as is.
func filterAngleOnly(tr *Track, rep sensor.Report, g gains) {
	dt := rep.Time - tr.LastUpdate
	predAz, predEl := tr.Az, tr.El
	if dt > 0 {
		predAz = angles.Wrap180(tr.Az + tr.AzRate*dt)
		predEl = tr.El + tr.ElRate*dt
	}
	resAz := angles.Diff(rep.Az, predAz)
	resEl := rep.El - predEl
	tr.Az = angles.Wrap180(predAz + g.angle*resAz)
	tr.El = predEl + g.angle*resEl
	if dt > 0 {
		tr.AzRate += g.beta * resAz / dt
		tr.ElRate += g.beta * resEl / dt
	}
	if rep.Range > 0 {
		tr.Range = rep.Range
		tr.RangeRate = rep.RangeRate
	}
	tr.Position = angles.Cartesian(tr.Az, tr.El, tr.Range)
}

// groundSpeed is the horizontal speed of a target whose velocity relative
// to ownship is rel.
func groundSpeed(rel, ownship r3.Vec) float64 {
	v := r3.Add(rel, ownship)
	return math.Hypot(v.X, v.Y)
}
