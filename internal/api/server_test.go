package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/shootlist"
	"github.com/banshee-data/scantrack/internal/system"
	"github.com/banshee-data/scantrack/internal/tracking"
	"github.com/banshee-data/scantrack/internal/version"
)

var _ ShootList = (*shootlist.OnboardComputer)(nil)

type fakeOnboard struct {
	mu       sync.Mutex
	tracking bool
	tracks   []tracking.Track
	next     int
	actions  []shootlist.Action
}

func (f *fakeOnboard) Name() string { return "occ" }

func (f *fakeOnboard) Tracking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracking
}

func (f *fakeOnboard) ShootList(buf []tracking.Track, max int) []tracking.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf = buf[:0]
	for _, t := range f.tracks {
		if len(buf) == max {
			break
		}
		buf = append(buf, t)
	}
	return buf
}

func (f *fakeOnboard) NextToShoot() (tracking.Track, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tracks {
		if t.ID == f.next {
			return t, true
		}
	}
	return tracking.Track{}, false
}

func (f *fakeOnboard) RequestNextToShoot(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tracks {
		if t.ID == id {
			f.next = id
			return true
		}
	}
	return false
}

func (f *fakeOnboard) StepNextToShoot() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tracks {
		if t.ID == f.next && i+1 < len(f.tracks) {
			f.next = f.tracks[i+1].ID
			return f.next, true
		}
	}
	return 0, false
}

func (f *fakeOnboard) TriggerAction(a shootlist.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == 0 && a != shootlist.ActionClear {
		return false
	}
	f.actions = append(f.actions, a)
	return true
}

type fakeManager struct {
	name   string
	tracks []tracking.Track
}

func (m fakeManager) Name() string { return m.name }

func (m fakeManager) TrackList(buf []tracking.Track, max int) []tracking.Track {
	if len(m.tracks) < max {
		max = len(m.tracks)
	}
	return append(buf[:0], m.tracks[:max]...)
}

func newFake() *fakeOnboard {
	return &fakeOnboard{
		tracking: true,
		next:     3,
		tracks: []tracking.Track{
			{ID: 3, Type: tracking.TypeAir, Range: 8000, GroundSpeed: 240, ShootListIndex: 1},
			{ID: 1, Type: tracking.TypeAir, Range: 12000, GroundSpeed: 180, ShootListIndex: 2},
			{ID: 2, Type: tracking.TypeAir, Range: 4000, GroundSpeed: 10, ShootListIndex: 3},
		},
	}
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ----- shoot list -----

func TestShowShootList(t *testing.T) {
	t.Parallel()
	s := NewServer(newFake())
	rec := do(t, s.ServeMux(), http.MethodGet, "/api/shootlist?max=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got ShootListJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "occ", got.Computer)
	assert.True(t, got.Tracking)
	require.NotNil(t, got.Next)
	assert.Equal(t, 3, got.Next.ID)
	require.Len(t, got.Tracks, 2)
	assert.Equal(t, []int{1, 2}, []int{got.Tracks[0].Rank, got.Tracks[1].Rank})
	assert.Equal(t, "air", got.Tracks[0].Type)
}

func TestShowShootList_Errors(t *testing.T) {
	t.Parallel()
	mux := NewServer(newFake()).ServeMux()

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"wrong method", http.MethodPost, "/api/shootlist", http.StatusMethodNotAllowed},
		{"bad max", http.MethodGet, "/api/shootlist?max=0", http.StatusBadRequest},
		{"non numeric max", http.MethodGet, "/api/shootlist?max=x", http.StatusBadRequest},
		{"unknown units", http.MethodGet, "/api/shootlist?units=mach", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.target, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestShowShootList_SpeedUnits(t *testing.T) {
	t.Parallel()
	mux := NewServer(newFake()).ServeMux()

	rec := do(t, mux, http.MethodGet, "/api/shootlist?max=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got ShootListJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "mps", got.Tracks[0].SpeedUnits)
	assert.InDelta(t, 240, got.Tracks[0].GroundSpeed, 1e-9)

	rec = do(t, mux, http.MethodGet, "/api/shootlist?max=1&units=kmph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "kmph", got.Tracks[0].SpeedUnits)
	assert.InDelta(t, 864, got.Tracks[0].GroundSpeed, 1e-9)
	assert.InDelta(t, 864, got.Next.GroundSpeed, 1e-9)
}

func TestSelectAndStep(t *testing.T) {
	t.Parallel()
	f := newFake()
	mux := NewServer(f).ServeMux()

	rec := do(t, mux, http.MethodPost, "/api/shootlist/select", url.Values{"id": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var got ShootListJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Next.ID)

	rec = do(t, mux, http.MethodPost, "/api/shootlist/select", url.Values{"id": {"99"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, mux, http.MethodPost, "/api/shootlist/select", url.Values{"id": {"x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/shootlist/step", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Next.ID)

	rec = do(t, mux, http.MethodPost, "/api/shootlist/step", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "stepping past the last track")
}

func TestTriggerAction(t *testing.T) {
	t.Parallel()
	f := newFake()
	mux := NewServer(f).ServeMux()

	rec := do(t, mux, http.MethodPost, "/api/shootlist/action", url.Values{"action": {"release"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []shootlist.Action{shootlist.ActionRelease}, f.actions)

	rec = do(t, mux, http.MethodPost, "/api/shootlist/action", url.Values{"action": {"fire"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.next = 0
	rec = do(t, mux, http.MethodPost, "/api/shootlist/action", url.Values{"action": {"release"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ----- tracks, events, stats -----

func TestListTracks(t *testing.T) {
	t.Parallel()
	s := NewServer(newFake())
	s.AddTrackManager(fakeManager{name: "air", tracks: []tracking.Track{{ID: 5}, {ID: 6}}})
	s.AddTrackManager(fakeManager{name: "ground"})
	mux := s.ServeMux()

	rec := do(t, mux, http.MethodGet, "/api/tracks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Manager string      `json:"manager"`
		Tracks  []TrackJSON `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "air", got.Manager)
	assert.Len(t, got.Tracks, 2)

	rec = do(t, mux, http.MethodGet, "/api/tracks?manager=ground", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Tracks)

	rec = do(t, mux, http.MethodGet, "/api/tracks?manager=sea", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvents(t *testing.T) {
	t.Parallel()
	s := NewServer(newFake())
	rec := do(t, s.ServeMux(), http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	events := monitoring.NewRecorder(10)
	monitoring.Warnf(events, monitoring.KindResource, "air", "track table full")
	s.SetEvents(events)
	rec = do(t, s.ServeMux(), http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []EventJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, EventJSON{Kind: "resource", Severity: "warning", Component: "air", Message: "track table full"}, got[0])
}

func TestShowStats(t *testing.T) {
	t.Parallel()
	s := NewServer(newFake())
	s.SetStats(func() system.Stats { return system.Stats{Frames: 10, Updates: 10, SimTime: 0.2} })
	rec := do(t, s.ServeMux(), http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"frames":10,"updates":10,"sim_time":0.2}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	m := monitoring.NewMetrics()
	m.Detection("radar")
	s := NewServer(newFake())
	s.SetMetrics(m)

	rec := do(t, s.ServeMux(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scantrack_detections_total{sensor="radar"} 1`)
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := do(t, h, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, statusCodeColor(http.StatusTeapot), "418")
}

// ----- debug routes -----

func TestAttachDebugRoutes(t *testing.T) {
	t.Parallel()
	s := NewServer(newFake())
	mux := http.NewServeMux()
	require.NoError(t, s.AttachDebugRoutes(mux, nil))

	req := httptest.NewRequest(http.MethodGet, "/debug/shootlist", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"computer":"occ"`)

	req = httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), version.String())
}
