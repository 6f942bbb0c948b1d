package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus instrumentation shared by the pipeline
// components. A nil *Metrics is valid and records nothing, so components
// can be built without instrumentation in tests.
type Metrics struct {
	Registry *prometheus.Registry

	detections   *prometheus.CounterVec
	reportsOut   *prometheus.CounterVec
	reportsDrop  *prometheus.CounterVec
	liveTracks   *prometheus.GaugeVec
	trackEvents  *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	events       *prometheus.CounterVec
	frameSeconds *prometheus.HistogramVec
	scanEvents   *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrack_detections_total",
			Help: "Detections that passed the sensor threshold.",
		}, []string{"sensor"}),
		reportsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrack_reports_enqueued_total",
			Help: "Detection reports written to a sensor output queue.",
		}, []string{"sensor"}),
		reportsDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrack_reports_dropped_total",
			Help: "Reports or emissions discarded by a bounded buffer.",
		}, []string{"sensor", "reason"}),
		liveTracks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scantrack_live_tracks",
			Help: "Tracks currently held in a track table.",
		}, []string{"manager"}),
		trackEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrack_track_events_total",
			Help: "Track lifecycle transitions.",
		}, []string{"manager", "event"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scantrack_queue_depth",
			Help: "Entries pending in a report queue at drain time.",
		}, []string{"queue"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrack_events_total",
			Help: "Non-fatal events reported to the monitoring collaborator.",
		}, []string{"kind", "severity"}),
		frameSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scantrack_frame_seconds",
			Help:    "Wall time spent running one lane of a frame.",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"lane"}),
		scanEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrack_scan_events_total",
			Help: "Scan pattern start/end notifications.",
		}, []string{"scanner", "event"}),
	}
	m.Registry.MustRegister(
		m.detections, m.reportsOut, m.reportsDrop, m.liveTracks, m.trackEvents,
		m.queueDepth, m.events, m.frameSeconds, m.scanEvents,
	)
	return m
}

// Detection counts one above-threshold detection.
func (m *Metrics) Detection(sensor string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(sensor).Inc()
}

// ReportEnqueued counts one report written to an output queue.
func (m *Metrics) ReportEnqueued(sensor string) {
	if m == nil {
		return
	}
	m.reportsOut.WithLabelValues(sensor).Inc()
}

// ReportDropped counts one discarded report or emission.
func (m *Metrics) ReportDropped(sensor, reason string) {
	if m == nil {
		return
	}
	m.reportsDrop.WithLabelValues(sensor, reason).Inc()
}

// SetLiveTracks records the current table occupancy.
func (m *Metrics) SetLiveTracks(manager string, n int) {
	if m == nil {
		return
	}
	m.liveTracks.WithLabelValues(manager).Set(float64(n))
}

// TrackEvent counts one lifecycle transition (new, update, removed,
// evicted, dropped).
func (m *Metrics) TrackEvent(manager, event string) {
	if m == nil {
		return
	}
	m.trackEvents.WithLabelValues(manager, event).Inc()
}

// SetQueueDepth records how many entries a queue held when drained.
func (m *Metrics) SetQueueDepth(queue string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(n))
}

// ObserveFrame records lane execution time in seconds.
func (m *Metrics) ObserveFrame(lane string, seconds float64) {
	if m == nil {
		return
	}
	m.frameSeconds.WithLabelValues(lane).Observe(seconds)
}

// ScanEvent counts a scan start/end notification.
func (m *Metrics) ScanEvent(scanner, event string) {
	if m == nil {
		return
	}
	m.scanEvents.WithLabelValues(scanner, event).Inc()
}

// Reporter wraps next so that every event is also counted.
func (m *Metrics) Reporter(next Reporter) Reporter {
	next = OrDefault(next)
	if m == nil {
		return next
	}
	return ReporterFunc(func(ev Event) {
		m.events.WithLabelValues(string(ev.Kind), ev.Severity.String()).Inc()
		next.Report(ev)
	})
}
