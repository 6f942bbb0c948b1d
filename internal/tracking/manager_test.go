package tracking

import (
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/scantrack/internal/angles"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/queue"
	"github.com/banshee-data/scantrack/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

type testSource struct {
	name string
	q    *queue.Bounded[sensor.Report]
}

func (s *testSource) Name() string                          { return s.name }
func (s *testSource) Output() *queue.Bounded[sensor.Report] { return s.q }

func (s *testSource) put(t *testing.T, reps ...sensor.Report) {
	t.Helper()
	for _, r := range reps {
		require.True(t, s.q.Put(r))
	}
}

func report(az, el, rng, at float64) sensor.Report {
	return sensor.Report{SensorID: "radar", Kind: sensor.KindRF, SNR: 20, Az: az, El: el, Range: rng, Time: at}
}

type recordingListener struct {
	events []string
	tracks []Track
}

func (l *recordingListener) NewTrack(t Track) {
	l.events = append(l.events, "new")
	l.tracks = append(l.tracks, t)
}

func (l *recordingListener) UpdateTrack(t Track) {
	l.events = append(l.events, "update")
	l.tracks = append(l.tracks, t)
}

func (l *recordingListener) RemovedTrack(t Track) {
	l.events = append(l.events, "removed")
	l.tracks = append(l.tracks, t)
}

func newTestManager(t *testing.T, kind TypeBits, cfg Config) (*Manager, *testSource, *monitoring.Recorder) {
	t.Helper()
	rec := monitoring.NewRecorder(0)
	m := NewManager("tm", kind, cfg, rec)
	src := &testSource{name: "radar", q: queue.New[sensor.Report](32)}
	m.AddInput(src)
	return m, src, rec
}

// ----- correlation -----

func TestManager_GatingUpdatesOrCreates(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())

	src.put(t, report(10.0, 0.5, 5000, 0))
	m.UpdateData(0.1)
	list := m.TrackList(nil, 10)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ID)

	src.put(t, report(10.05, 0.52, 4995, 0.1))
	m.UpdateData(0.1)
	list = m.TrackList(list, 10)
	require.Len(t, list, 1, "within the gate: no new track")
	assert.Equal(t, 1, list[0].ID)
	assert.Equal(t, 2, list[0].Updates)
	assert.Equal(t, 0.0, list[0].Age)

	src.put(t, report(170, -5, 8000, 0.2))
	m.UpdateData(0.1)
	list = m.TrackList(list, 10)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].ID)
	assert.Equal(t, 2, list[1].ID)
	assert.InDelta(t, 170, list[1].Az, 1e-9)
}

func TestManager_ListenerFuncsSkipsUnsetHooks(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	var created []int
	m.AddListener(ListenerFuncs{OnNew: func(tr Track) { created = append(created, tr.ID) }})

	src.put(t, report(10, 0, 5000, 0))
	m.UpdateData(0.1)
	src.put(t, report(10, 0, 4990, 0.1))
	m.UpdateData(0.1)
	assert.Equal(t, []int{1}, created)
}

func TestManager_TieBreakPicksClosestNormalisedMatch(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	// 600 m apart in range, so the second report does not gate to the first track
	src.put(t, report(0, 0, 5000, 0), report(1.5, 0, 5600, 0))
	m.UpdateData(0.1)
	require.Equal(t, 2, m.NumTracks())

	// az 0.9, r 5300: track 1 scores 0.45+0.6, track 2 scores 0.3+0.6
	src.put(t, report(0.9, 0, 5300, 0))
	m.UpdateData(0.1)
	require.Equal(t, 2, m.NumTracks())
	t1, _ := m.Track(1)
	t2, _ := m.Track(2)
	assert.Equal(t, 1, t1.Updates)
	assert.Equal(t, 2, t2.Updates)
}

func TestManager_AngleOnlyIgnoresRange(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeRWR, DefaultConfig())
	src.put(t, report(20, 1, 1000, 0))
	m.UpdateData(0.1)
	src.put(t, report(20.2, 1.1, 9000, 0.1))
	m.UpdateData(0.1)

	list := m.TrackList(nil, 10)
	require.Len(t, list, 1)
	assert.Equal(t, AngleOnly, list[0].Class)
	assert.Equal(t, TypeRWR|TypeOnboard, list[0].Type)
	assert.Equal(t, 2, list[0].Updates)
	assert.Greater(t, list[0].Az, 20.0)
	assert.Less(t, list[0].Az, 20.2)
}

func TestManager_GroundReportsGetGroundType(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	rep := report(5, -2, 3000, 0)
	rep.Ground = true
	src.put(t, rep)
	m.UpdateData(0.1)

	tr, ok := m.Track(1)
	require.True(t, ok)
	assert.Equal(t, TypeGround|TypeOnboard, tr.Type)
	assert.True(t, tr.IsGround())
}

// ----- capacity -----

func TestManager_FullTableEvictsOldest(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxTracks = 5
	m, src, _ := newTestManager(t, TypeAir, cfg)
	l := &recordingListener{}
	m.AddListener(l)

	// one new track per cycle, so the first is the oldest
	for i := 0; i < 5; i++ {
		src.put(t, report(float64(i)*30, 0, 5000, float64(i)))
		m.UpdateData(1)
	}
	require.Equal(t, 5, m.NumTracks())
	oldest, _ := m.Track(1)
	require.InDelta(t, 4.0, oldest.Age, 1e-9)

	src.put(t, report(150, 0, 5000, 5))
	m.UpdateData(1)

	assert.Equal(t, 5, m.NumTracks())
	fresh, ok := m.Track(1)
	require.True(t, ok, "the evicted id is the only free one")
	assert.InDelta(t, 150, fresh.Az, 1e-9)
	assert.Equal(t, 0.0, fresh.Age)

	require.GreaterOrEqual(t, len(l.events), 2)
	n := len(l.events)
	assert.Equal(t, []string{"removed", "new"}, l.events[n-2:])
	assert.InDelta(t, 0, l.tracks[n-2].Az, 1e-9)
}

func TestManager_ProtectRecentDropsReport(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxTracks = 2
	cfg.ProtectRecentAge = 10
	m, src, rec := newTestManager(t, TypeAir, cfg)

	src.put(t, report(0, 0, 5000, 0), report(90, 0, 5000, 0))
	m.UpdateData(1)
	src.put(t, report(180, 0, 5000, 1))
	m.UpdateData(1)

	assert.Equal(t, 2, m.NumTracks())
	for _, tr := range m.TrackList(nil, 10) {
		assert.NotEqual(t, 180.0, tr.Az)
	}
	assert.Equal(t, 1, rec.Count(monitoring.KindResource))
}

func TestManager_NeverExceedsMaxTracks(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxTracks = 4
	cfg.MaxTrackAge = 3
	m, src, _ := newTestManager(t, TypeAir, cfg)
	rng := rand.New(rand.NewPCG(1, 2))

	for cycle := 0; cycle < 300; cycle++ {
		for k := rng.IntN(6); k > 0; k-- {
			src.put(t, report(rng.Float64()*360-180, rng.Float64()*20-10, 1000+rng.Float64()*50000, float64(cycle)*0.1))
		}
		m.UpdateData(0.1)

		list := m.TrackList(nil, 100)
		require.LessOrEqual(t, len(list), 4)
		seen := map[int]bool{}
		for _, tr := range list {
			require.False(t, seen[tr.ID], "duplicate id %d", tr.ID)
			seen[tr.ID] = true
			require.GreaterOrEqual(t, tr.ID, 1)
			require.LessOrEqual(t, tr.ID, 4)
		}
	}
}

// ----- aging -----

func TestManager_AgesAndRemovesStaleTracks(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxTrackAge = 1
	m, src, _ := newTestManager(t, TypeAir, cfg)
	l := &recordingListener{}
	m.AddListener(l)

	src.put(t, report(0, 0, 5000, 0))
	m.UpdateData(0.6)
	tr, _ := m.Track(1)
	assert.Equal(t, 0.0, tr.Age, "not aged in the cycle it was created")
	q0 := tr.Quality

	m.UpdateData(0.6)
	tr, ok := m.Track(1)
	require.True(t, ok)
	assert.InDelta(t, 0.6, tr.Age, 1e-9)
	assert.Less(t, tr.Quality, q0)

	m.UpdateData(0.6)
	_, ok = m.Track(1)
	assert.False(t, ok)
	assert.Equal(t, []string{"new", "removed"}, l.events)
}

func TestManager_AgeResetsOnCorrelation(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	src.put(t, report(0, 0, 5000, 0))
	m.UpdateData(0.5)
	m.UpdateData(0.5)
	m.AgeTracks(0.5)
	tr, _ := m.Track(1)
	require.InDelta(t, 1.0, tr.Age, 1e-9)

	src.put(t, report(0.1, 0, 5010, 1))
	m.UpdateData(0.5)
	tr, _ = m.Track(1)
	assert.Equal(t, 0.0, tr.Age)
}

// ----- filtering -----

func TestManager_FilterConvergesOnConstantVelocity(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	m.SetOwnship(func() r3.Vec { return r3.Vec{X: 200} })

	start := r3.Vec{X: 10000, Y: -500, Z: -1000}
	vel := r3.Vec{X: -100, Y: 50}
	for i := 0; i < 100; i++ {
		at := float64(i) * 0.1
		p := r3.Add(start, r3.Scale(at, vel))
		az, el, rng, _ := angles.Polar(p)
		rep := report(az, el, rng, at)
		rep.RangeRate = r3.Dot(vel, r3.Scale(1/rng, p))
		src.put(t, rep)
		m.UpdateData(0.1)
	}

	tr, ok := m.Track(1)
	require.True(t, ok)
	require.Equal(t, 1, m.NumTracks())
	assert.InDelta(t, vel.X, tr.Velocity.X, 1)
	assert.InDelta(t, vel.Y, tr.Velocity.Y, 1)
	assert.InDelta(t, 111.8, tr.GroundSpeed, 1.5)
	assert.Equal(t, 10, tr.Signal.Len(), "window is HistoryLength")
	assert.Equal(t, 1.0, tr.Quality)
}

// ----- accessors -----

func TestManager_TrackListRespectsMax(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	src.put(t, report(0, 0, 5000, 0), report(40, 0, 5000, 0), report(80, 0, 5000, 0))
	m.UpdateData(0.1)

	buf := make([]Track, 0, 8)
	got := m.TrackList(buf, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 2, got[1].ID)
}

func TestManager_SetShootListIndex(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	src.put(t, report(0, 0, 5000, 0))
	m.UpdateData(0.1)

	assert.True(t, m.SetShootListIndex(1, 3))
	tr, _ := m.Track(1)
	assert.Equal(t, 3, tr.ShootListIndex)
	assert.False(t, m.SetShootListIndex(7, 1))
}

func TestManager_ResetClearsTracksAndInputs(t *testing.T) {
	t.Parallel()
	m, src, _ := newTestManager(t, TypeAir, DefaultConfig())
	src.put(t, report(0, 0, 5000, 0))
	m.UpdateData(0.1)
	src.put(t, report(50, 0, 5000, 0))

	m.Reset()
	assert.Equal(t, 0, m.NumTracks())
	assert.True(t, src.q.IsEmpty())

	src.put(t, report(50, 0, 5000, 0))
	m.UpdateData(0.1)
	_, ok := m.Track(1)
	assert.True(t, ok, "ids restart after reset")
}

func TestManager_SettersRejectInvalid(t *testing.T) {
	t.Parallel()
	m, _, rec := newTestManager(t, TypeAir, DefaultConfig())
	assert.False(t, m.SetGates(0, 1, 1))
	assert.False(t, m.SetAlpha(0))
	assert.False(t, m.SetAlpha(1.5))
	assert.False(t, m.SetIGain(2))
	assert.False(t, m.SetMaxTracks(0))
	assert.False(t, m.SetMaxTrackAge(0))
	assert.False(t, m.SetHistoryLength(0))
	assert.False(t, m.SetProtectRecentAge(-1))
	assert.False(t, m.SetClass(Class(5)))
	assert.Equal(t, 9, rec.Count(monitoring.KindConfig))
	assert.Equal(t, DefaultConfig(), m.Config())

	assert.True(t, m.SetIGain(0.8))
	assert.Equal(t, 0.8, m.Config().IGain)
}
