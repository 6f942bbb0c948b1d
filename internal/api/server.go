// Package api exposes a running pipeline over HTTP (shoot list, tracks,
// events, stats, Prometheus metrics and the tsweb debug pages) and over
// gRPC (the standard health service).
package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/scantrack/internal/httputil"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/shootlist"
	"github.com/banshee-data/scantrack/internal/system"
	"github.com/banshee-data/scantrack/internal/tracking"
	"github.com/banshee-data/scantrack/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// defaultMaxTracks caps list responses when no max is given.
const defaultMaxTracks = 100

// ShootList is the onboard computer as seen by the API.
type ShootList interface {
	Name() string
	Tracking() bool
	ShootList(buf []tracking.Track, max int) []tracking.Track
	NextToShoot() (tracking.Track, bool)
	RequestNextToShoot(id int) bool
	StepNextToShoot() (int, bool)
	TriggerAction(a shootlist.Action) bool
}

// TrackLister is a track manager as seen by the API.
type TrackLister interface {
	Name() string
	TrackList(buf []tracking.Track, max int) []tracking.Track
}

// Server serves read access to the pipeline and the operator requests
// (select, step, action) of the onboard computer.
type Server struct {
	onboard  ShootList
	managers []TrackLister
	metrics  *monitoring.Metrics
	events   *monitoring.Recorder
	stats    func() system.Stats
}

// NewServer returns a server for onboard. Managers, metrics, events and
// stats are optional.
func NewServer(onboard ShootList) *Server {
	return &Server{onboard: onboard}
}

// AddTrackManager makes m listable under /api/tracks?manager=<name>.
func (s *Server) AddTrackManager(m TrackLister) { s.managers = append(s.managers, m) }

// SetMetrics enables /metrics.
func (s *Server) SetMetrics(m *monitoring.Metrics) { s.metrics = m }

// SetEvents enables /api/events.
func (s *Server) SetEvents(r *monitoring.Recorder) { s.events = r }

// SetStats enables /api/stats.
func (s *Server) SetStats(fn func() system.Stats) { s.stats = fn }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/shootlist", s.showShootList)
	mux.HandleFunc("/api/shootlist/select", s.selectTrack)
	mux.HandleFunc("/api/shootlist/step", s.stepTrack)
	mux.HandleFunc("/api/shootlist/action", s.triggerAction)
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/stats", s.showStats)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// TrackJSON is the wire form of a track. Speeds are in SpeedUnits.
type TrackJSON struct {
	ID          int        `json:"id"`
	Type        string     `json:"type"`
	Class       string     `json:"class"`
	Rank        int        `json:"rank"`
	Range       float64    `json:"range_m"`
	RangeRate   float64    `json:"range_rate"`
	Az          float64    `json:"az_deg"`
	El          float64    `json:"el_deg"`
	GroundSpeed float64    `json:"ground_speed"`
	SpeedUnits  string     `json:"speed_units"`
	Quality     float64    `json:"quality"`
	Age         float64    `json:"age_s"`
	IFF         int        `json:"iff"`
	AvgSignal   float64    `json:"avg_signal_db"`
	Position    [3]float64 `json:"position_m"`
	Velocity    [3]float64 `json:"velocity_mps"`
	SensorID    string     `json:"sensor_id"`
	TargetID    int        `json:"target_id,omitempty"`
}

func trackJSON(t tracking.Track, unit string) TrackJSON {
	return TrackJSON{
		ID:          t.ID,
		Type:        t.Type.String(),
		Class:       t.Class.String(),
		Rank:        t.ShootListIndex,
		Range:       t.Range,
		RangeRate:   units.ConvertSpeed(t.RangeRate, unit),
		Az:          t.Az,
		El:          t.El,
		GroundSpeed: units.ConvertSpeed(t.GroundSpeed, unit),
		SpeedUnits:  unit,
		Quality:     t.Quality,
		Age:         t.Age,
		IFF:         t.IFF,
		AvgSignal:   t.AvgSignal(),
		Position:    [3]float64{t.Position.X, t.Position.Y, t.Position.Z},
		Velocity:    [3]float64{t.Velocity.X, t.Velocity.Y, t.Velocity.Z},
		SensorID:    t.SensorID,
		TargetID:    t.TargetID,
	}
}

func tracksJSON(ts []tracking.Track, unit string) []TrackJSON {
	out := make([]TrackJSON, len(ts))
	for i, t := range ts {
		out[i] = trackJSON(t, unit)
	}
	return out
}

// ShootListJSON is the /api/shootlist response.
type ShootListJSON struct {
	Computer string      `json:"computer"`
	Tracking bool        `json:"tracking"`
	Next     *TrackJSON  `json:"next"`
	Tracks   []TrackJSON `json:"tracks"`
}

// listParams reads the optional max and units query parameters.
func listParams(r *http.Request) (max int, unit string, err error) {
	q := r.URL.Query()
	max = defaultMaxTracks
	if v := q.Get("max"); v != "" {
		max, err = strconv.Atoi(v)
		if err != nil || max < 1 {
			return 0, "", fmt.Errorf("invalid 'max' parameter")
		}
	}
	unit, err = units.Parse(q.Get("units"))
	if err != nil {
		return 0, "", err
	}
	return max, unit, nil
}

func (s *Server) shootList(max int, unit string) ShootListJSON {
	resp := ShootListJSON{
		Computer: s.onboard.Name(),
		Tracking: s.onboard.Tracking(),
		Tracks:   tracksJSON(s.onboard.ShootList(nil, max), unit),
	}
	if next, ok := s.onboard.NextToShoot(); ok {
		tj := trackJSON(next, unit)
		resp.Next = &tj
	}
	return resp
}

func (s *Server) showShootList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	max, unit, err := listParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.shootList(max, unit))
}

func (s *Server) selectTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil {
		httputil.BadRequest(w, "invalid 'id' parameter")
		return
	}
	if !s.onboard.RequestNextToShoot(id) {
		httputil.Conflict(w, fmt.Sprintf("track %d cannot be selected", id))
		return
	}
	httputil.WriteJSONOK(w, s.shootList(defaultMaxTracks, units.MPS))
}

func (s *Server) stepTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if _, ok := s.onboard.StepNextToShoot(); !ok {
		httputil.Conflict(w, "nothing to step to")
		return
	}
	httputil.WriteJSONOK(w, s.shootList(defaultMaxTracks, units.MPS))
}

func (s *Server) triggerAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	a := shootlist.Action(r.FormValue("action"))
	switch a {
	case shootlist.ActionSelect, shootlist.ActionClear, shootlist.ActionRelease:
	default:
		httputil.BadRequest(w, "invalid 'action' parameter")
		return
	}
	if !s.onboard.TriggerAction(a) {
		httputil.Conflict(w, fmt.Sprintf("action %q not accepted", a))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"action": string(a)})
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	max, unit, err := listParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	name := r.URL.Query().Get("manager")
	if name == "" && len(s.managers) > 0 {
		name = s.managers[0].Name()
	}
	for _, m := range s.managers {
		if m.Name() == name {
			httputil.WriteJSONOK(w, map[string]interface{}{
				"manager": name,
				"tracks":  tracksJSON(m.TrackList(nil, max), unit),
			})
			return
		}
	}
	httputil.NotFound(w, fmt.Sprintf("unknown track manager %q", name))
}

// EventJSON is the wire form of a monitoring event.
type EventJSON struct {
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.events == nil {
		httputil.NotFound(w, "event recording disabled")
		return
	}
	evs := s.events.Events()
	out := make([]EventJSON, len(evs))
	for i, ev := range evs {
		out[i] = EventJSON{
			Kind:      string(ev.Kind),
			Severity:  ev.Severity.String(),
			Component: ev.Component,
			Message:   ev.Message,
		}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.stats == nil {
		httputil.NotFound(w, "stats unavailable")
		return
	}
	st := s.stats()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"frames":   st.Frames,
		"updates":  st.Updates,
		"sim_time": st.SimTime,
	})
}
