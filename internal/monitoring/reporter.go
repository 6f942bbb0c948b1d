package monitoring

import (
	"fmt"
	"sync"
)

// Kind classifies a non-fatal pipeline event.
type Kind string

const (
	// KindConfig is a rejected setter value; the previous value is kept.
	KindConfig Kind = "config"
	// KindResource is a full queue or a full track table.
	KindResource Kind = "resource"
	// KindCollaborator is a missing or unresolvable collaborator.
	KindCollaborator Kind = "collaborator"
	// KindNumeric is a degenerate computation replaced by a neutral result.
	KindNumeric Kind = "numeric"
)

// Severity of an Event.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Event is one locally recovered problem. None of them stop the frame loop.
type Event struct {
	Kind      Kind
	Severity  Severity
	Component string
	Message   string
}

// Reporter receives events. Implementations must be safe for concurrent
// use because sensor and tracking lanes report from different goroutines.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(ev).
func (f ReporterFunc) Report(ev Event) { f(ev) }

// LogReporter writes events through Logf.
type LogReporter struct{}

// Report logs ev.
func (LogReporter) Report(ev Event) {
	logf("%s %s [%s]: %s", ev.Severity, ev.Kind, ev.Component, ev.Message)
}

// Discard drops every event.
var Discard Reporter = ReporterFunc(func(Event) {})

// OrDefault returns r, or a LogReporter when r is nil.
func OrDefault(r Reporter) Reporter {
	if r == nil {
		return LogReporter{}
	}
	return r
}

// Warnf reports a warning. A nil reporter falls back to LogReporter.
func Warnf(r Reporter, kind Kind, component, format string, args ...interface{}) {
	OrDefault(r).Report(Event{
		Kind:      kind,
		Severity:  SeverityWarning,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Errorf reports an error-severity event.
func Errorf(r Reporter, kind Kind, component, format string, args ...interface{}) {
	OrDefault(r).Report(Event{
		Kind:      kind,
		Severity:  SeverityError,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Tee forwards each event to every non-nil reporter.
func Tee(reporters ...Reporter) Reporter {
	var rs []Reporter
	for _, r := range reporters {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return ReporterFunc(func(ev Event) {
		for _, r := range rs {
			r.Report(ev)
		}
	})
}

// Recorder keeps every event in memory. It is used by tests and by the
// debug server's recent-events view.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewRecorder keeps at most limit events (oldest discarded); limit <= 0
// means unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Report stores ev.
func (r *Recorder) Report(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the stored events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many stored events have the given kind.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets all stored events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
