package shootlist

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeManager holds tracks in insertion order.
type fakeManager struct {
	name   string
	kind   tracking.TypeBits
	tracks []tracking.Track
}

func (f *fakeManager) Name() string            { return f.name }
func (f *fakeManager) Kind() tracking.TypeBits { return f.kind }

func (f *fakeManager) TrackList(buf []tracking.Track, max int) []tracking.Track {
	buf = buf[:0]
	for _, tr := range f.tracks {
		if len(buf) < max {
			buf = append(buf, tr)
		}
	}
	return buf
}

func (f *fakeManager) Track(id int) (tracking.Track, bool) {
	for _, tr := range f.tracks {
		if tr.ID == id {
			return tr, true
		}
	}
	return tracking.Track{}, false
}

func (f *fakeManager) SetShootListIndex(id, rank int) bool {
	for i := range f.tracks {
		if f.tracks[i].ID == id {
			f.tracks[i].ShootListIndex = rank
			return true
		}
	}
	return false
}

func (f *fakeManager) remove(id int) {
	for i := range f.tracks {
		if f.tracks[i].ID == id {
			f.tracks = append(f.tracks[:i], f.tracks[i+1:]...)
			return
		}
	}
}

func trk(id int, rng, speed float64) tracking.Track {
	return tracking.Track{ID: id, Range: rng, GroundSpeed: speed}
}

// ----- Rank -----

func TestRank_FastTracksFirstByRange(t *testing.T) {
	t.Parallel()
	tracks := []tracking.Track{
		trk(1, 3000, 10),  // slow, closest
		trk(2, 9000, 200), // fast, far
		trk(3, 5000, 120), // fast, near
		trk(4, 4000, 0),   // slow
	}
	assert.Equal(t, []int{3, 2, 1, 4}, Rank(tracks, 50, nil))
	assert.Equal(t, []int{1, 4, 3, 2}, Rank(tracks, 0, nil), "zero floor ranks by range only")
}

func TestRank_TiesBreakByID(t *testing.T) {
	t.Parallel()
	tracks := []tracking.Track{trk(7, 1000, 60), trk(2, 1000, 60)}
	assert.Equal(t, []int{2, 7}, Rank(tracks, 50, nil))
}

func TestRank_FirstIsClosestFastTrackForAnyPermutation(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 5))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(8)
		tracks := make([]tracking.Track, n)
		for i := range tracks {
			tracks[i] = trk(i+1, 500+rng.Float64()*20000, rng.Float64()*150)
		}
		rng.Shuffle(n, func(a, b int) { tracks[a], tracks[b] = tracks[b], tracks[a] })

		want := -1
		for _, tr := range tracks {
			if tr.GroundSpeed >= 50 && (want < 0 || tr.Range < tracks[want].Range) {
				want = indexOf(tracks, tr.ID)
			}
		}
		got := Rank(tracks, 50, nil)
		require.Len(t, got, n)
		if want >= 0 {
			assert.Equal(t, tracks[want].ID, got[0])
		} else {
			byRange := append([]tracking.Track(nil), tracks...)
			sort.Slice(byRange, func(a, b int) bool { return byRange[a].Range < byRange[b].Range })
			assert.Equal(t, byRange[0].ID, got[0])
		}
	}
}

func indexOf(tracks []tracking.Track, id int) int {
	for i, tr := range tracks {
		if tr.ID == id {
			return i
		}
	}
	return -1
}

// ----- Prioritizer -----

func TestPrioritizer_UpdateWritesRanks(t *testing.T) {
	t.Parallel()
	m := &fakeManager{tracks: []tracking.Track{trk(1, 8000, 100), trk(2, 2000, 100), trk(3, 1000, 0)}}
	p := NewPrioritizer(50, 10)
	p.Update(m)

	assert.Equal(t, []int{2, 1, 3}, p.Ranked())
	got, _ := m.Track(2)
	assert.Equal(t, 1, got.ShootListIndex)
	got, _ = m.Track(3)
	assert.Equal(t, 3, got.ShootListIndex)

	next, ok := p.NextToShoot()
	require.True(t, ok)
	assert.Equal(t, 2, next)
}

func TestPrioritizer_StepWraps(t *testing.T) {
	t.Parallel()
	m := &fakeManager{tracks: []tracking.Track{trk(1, 1000, 100), trk(2, 2000, 100), trk(3, 3000, 100)}}
	p := NewPrioritizer(50, 10)
	p.Update(m)

	var seen []int
	for i := 0; i < 4; i++ {
		id, ok := p.Step()
		require.True(t, ok)
		seen = append(seen, id)
	}
	assert.Equal(t, []int{2, 3, 1, 2}, seen)

	_, ok := NewPrioritizer(50, 10).Step()
	assert.False(t, ok)
}

func TestPrioritizer_PinHoldsRankingUntilTrackDies(t *testing.T) {
	t.Parallel()
	m := &fakeManager{tracks: []tracking.Track{trk(1, 1000, 100), trk(2, 2000, 100), trk(3, 3000, 100)}}
	p := NewPrioritizer(50, 10)
	p.Update(m)

	assert.False(t, p.Pin(m, 42), "not a live track")
	require.True(t, p.Pin(m, 3))
	next, _ := p.NextToShoot()
	assert.Equal(t, 3, next)

	// a closer track appears; the pinned ranking is not recomputed
	m.tracks = append(m.tracks, trk(4, 500, 100))
	p.Update(m)
	assert.Equal(t, []int{1, 2, 3}, p.Ranked())
	next, _ = p.NextToShoot()
	assert.Equal(t, 3, next)

	m.remove(3)
	p.Update(m)
	assert.Equal(t, 0, p.Pinned())
	assert.Equal(t, []int{4, 1, 2}, p.Ranked())
}

func TestPrioritizer_StepFromPinContinuesAfterIt(t *testing.T) {
	t.Parallel()
	m := &fakeManager{tracks: []tracking.Track{trk(1, 1000, 100), trk(2, 2000, 100), trk(3, 3000, 100)}}
	p := NewPrioritizer(50, 10)
	p.Update(m)
	require.True(t, p.Pin(m, 2))

	id, ok := p.Step()
	require.True(t, ok)
	assert.Equal(t, 3, id)
	assert.Equal(t, 0, p.Pinned())
}

func TestPrioritizer_PinInsertsUnrankedTrack(t *testing.T) {
	t.Parallel()
	m := &fakeManager{tracks: []tracking.Track{trk(1, 1000, 100), trk(2, 2000, 100)}}
	p := NewPrioritizer(50, 10)
	p.Update(m)
	require.True(t, p.Pin(m, 1))

	// frozen ranking; track 3 arrives between 1 and 2
	m.tracks = append(m.tracks, trk(3, 1500, 100))
	p.Update(m)
	require.Equal(t, []int{1, 2}, p.Ranked())

	require.True(t, p.Pin(m, 3))
	assert.Equal(t, []int{1, 3, 2}, p.Ranked())
	got, _ := m.Track(3)
	assert.Equal(t, 2, got.ShootListIndex)
	got, _ = m.Track(2)
	assert.Equal(t, 3, got.ShootListIndex)

	p.Update(m)
	assert.Equal(t, []int{1, 3, 2}, p.Ranked(), "kept while pinned")

	id, ok := p.Step()
	require.True(t, ok)
	assert.Equal(t, 2, id, "continues after the pinned track")
}

func TestPrioritizer_PinAppendsSlowestTrack(t *testing.T) {
	t.Parallel()
	m := &fakeManager{tracks: []tracking.Track{trk(1, 1000, 100), trk(2, 2000, 100)}}
	p := NewPrioritizer(50, 10)
	p.Update(m)
	require.True(t, p.Pin(m, 2))

	m.tracks = append(m.tracks, trk(3, 500, 0))
	require.True(t, p.Pin(m, 3))
	assert.Equal(t, []int{1, 2, 3}, p.Ranked())

	id, ok := p.Step()
	require.True(t, ok)
	assert.Equal(t, 1, id, "wraps from the last rank")
}

func TestPrioritizer_MaxTracksLimitsRanking(t *testing.T) {
	t.Parallel()
	m := &fakeManager{tracks: []tracking.Track{trk(1, 3000, 100), trk(2, 2000, 100), trk(3, 1000, 100)}}
	p := NewPrioritizer(50, 2)
	p.Update(m)
	assert.Equal(t, []int{2, 1}, p.Ranked())
}

// ----- OnboardComputer -----

type actionLog struct {
	actions []Action
	ids     []int
}

func (l *actionLog) HandleAction(a Action, tr tracking.Track) {
	l.actions = append(l.actions, a)
	l.ids = append(l.ids, tr.ID)
}

func newComputer(t *testing.T) (*OnboardComputer, *fakeManager, *actionLog, *monitoring.Recorder) {
	t.Helper()
	rec := monitoring.NewRecorder(0)
	oc := NewOnboardComputer("occ", 16, rec)
	air := &fakeManager{name: "air", kind: tracking.TypeAir}
	oc.AddTrackManager(&fakeManager{name: "rwr", kind: tracking.TypeRWR})
	oc.AddTrackManager(air)
	log := &actionLog{}
	oc.SetActionHandler(log)
	require.True(t, oc.SetTrackManagerName("air"))
	oc.Reset()
	return oc, air, log, rec
}

func TestOnboardComputer_Lookup(t *testing.T) {
	t.Parallel()
	oc, air, _, _ := newComputer(t)

	m, ok := oc.TrackManagerByName("air")
	require.True(t, ok)
	assert.Same(t, air, m)
	m, ok = oc.TrackManagerByType(tracking.TypeRWR)
	require.True(t, ok)
	assert.Equal(t, "rwr", m.Name())
	_, ok = oc.TrackManagerByName("datalink")
	assert.False(t, ok)
	_, ok = oc.TrackManagerByType(tracking.TypeGround)
	assert.False(t, ok)
}

func TestOnboardComputer_MissingManagerSignalsOnce(t *testing.T) {
	t.Parallel()
	oc, _, _, rec := newComputer(t)
	assert.True(t, oc.Tracking())

	require.True(t, oc.SetTrackManagerName("datalink"))
	oc.Reset()
	oc.Reset()
	oc.UpdateData(0.1)

	assert.False(t, oc.Tracking())
	assert.Equal(t, 1, rec.Count(monitoring.KindCollaborator))
	assert.Empty(t, oc.ShootList(nil, 10))
	assert.False(t, oc.RequestNextToShoot(1))

	assert.False(t, oc.SetTrackManagerName(""))
	assert.Equal(t, 1, rec.Count(monitoring.KindConfig))
}

func TestOnboardComputer_SelectionDrivesActions(t *testing.T) {
	t.Parallel()
	oc, air, log, _ := newComputer(t)
	air.tracks = []tracking.Track{trk(1, 4000, 100), trk(2, 1500, 100)}

	oc.UpdateData(0.1)
	oc.UpdateData(0.1)
	assert.Equal(t, []Action{ActionSelect}, log.actions, "announced once")
	assert.Equal(t, []int{2}, log.ids)

	list := oc.ShootList(nil, 10)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].ID)
	assert.Equal(t, 1, list[0].ShootListIndex)

	assert.True(t, oc.RequestNextToShoot(1))
	assert.Equal(t, []int{2, 1}, log.ids)

	assert.True(t, oc.TriggerAction(ActionRelease))
	assert.Equal(t, ActionRelease, log.actions[len(log.actions)-1])
	assert.Equal(t, 1, log.ids[len(log.ids)-1])

	air.tracks = nil
	oc.UpdateData(0.1)
	assert.Equal(t, ActionClear, log.actions[len(log.actions)-1])
	assert.False(t, oc.TriggerAction(ActionRelease))
}

func TestOnboardComputer_StepNextToShoot(t *testing.T) {
	t.Parallel()
	oc, air, log, _ := newComputer(t)
	air.tracks = []tracking.Track{trk(1, 1000, 100), trk(2, 2000, 100)}
	oc.UpdateData(0.1)

	id, ok := oc.StepNextToShoot()
	require.True(t, ok)
	assert.Equal(t, 2, id)
	next, ok := oc.NextToShoot()
	require.True(t, ok)
	assert.Equal(t, 2, next.ID)
	assert.Equal(t, []int{1, 2}, log.ids)
}

func TestOnboardComputer_RequestedTrackJoinsShootList(t *testing.T) {
	t.Parallel()
	oc, air, _, _ := newComputer(t)
	air.tracks = []tracking.Track{trk(1, 1000, 100), trk(2, 2000, 100)}
	oc.UpdateData(0.1)
	require.True(t, oc.RequestNextToShoot(2))

	air.tracks = append(air.tracks, trk(3, 3000, 100))
	oc.UpdateData(0.1)
	require.True(t, oc.RequestNextToShoot(3))

	list := oc.ShootList(nil, 10)
	ids := make([]int, len(list))
	for i, tr := range list {
		ids[i] = tr.ID
	}
	assert.Equal(t, []int{1, 2, 3}, ids)
	next, ok := oc.NextToShoot()
	require.True(t, ok)
	assert.Equal(t, 3, next.ID)
	assert.Equal(t, 3, next.ShootListIndex)
}

func TestOnboardComputer_SpeedFloor(t *testing.T) {
	t.Parallel()
	oc, air, _, rec := newComputer(t)
	assert.False(t, oc.SetSpeedFloor(-1))
	assert.Equal(t, 1, rec.Count(monitoring.KindConfig))

	air.tracks = []tracking.Track{trk(1, 1000, 20), trk(2, 2000, 40)}
	require.True(t, oc.SetSpeedFloor(30))
	oc.UpdateData(0.1)
	next, _ := oc.NextToShoot()
	assert.Equal(t, 2, next.ID)
}
