package tracking

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/scantrack/internal/angles"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/queue"
	"github.com/banshee-data/scantrack/internal/sensor"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds the track manager parameters.
type Config struct {
	MaxTracks        int     // Table capacity
	MaxTrackAge      float64 // s without a report before removal
	AzGate           float64 // deg
	ElGate           float64 // deg
	RangeGate        float64 // m, ignored for angle-only tracks
	Alpha            float64 // position gain
	Beta             float64 // velocity / angle-rate gain
	Gamma            float64 // acceleration gain
	IGain            float64 // angle smoothing gain for angle-only tracks
	ProtectRecentAge float64 // s; tracks younger than this are never evicted
	HistoryLength    int     // signal history window
	QualityStep      float64 // quality gained per correlated report
	QualityDecay     float64 // quality lost per second without a report
	Class            Class
}

// DefaultConfig returns the documented defaults: 2 deg azimuth and
// elevation gates, a 500 m range gate and no eviction protection.
func DefaultConfig() Config {
	return Config{
		MaxTracks:        50,
		MaxTrackAge:      8,
		AzGate:           2,
		ElGate:           2,
		RangeGate:        500,
		Alpha:            0.5,
		Beta:             0.3,
		Gamma:            0.05,
		IGain:            0.5,
		ProtectRecentAge: 0,
		HistoryLength:    10,
		QualityStep:      0.2,
		QualityDecay:     0.1,
		Class:            RangeAndAngle,
	}
}

// ReportSource is a sensor output queue feeding a manager.
type ReportSource interface {
	Name() string
	Output() *queue.Bounded[sensor.Report]
}

// Listener is the logging collaborator's view of a manager. Calls are
// made from UpdateData after the manager lock is released.
type Listener interface {
	NewTrack(Track)
	UpdateTrack(Track)
	RemovedTrack(Track)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	OnNew     func(Track)
	OnUpdate  func(Track)
	OnRemoved func(Track)
}

func (l ListenerFuncs) NewTrack(t Track) {
	if l.OnNew != nil {
		l.OnNew(t)
	}
}

func (l ListenerFuncs) UpdateTrack(t Track) {
	if l.OnUpdate != nil {
		l.OnUpdate(t)
	}
}

func (l ListenerFuncs) RemovedTrack(t Track) {
	if l.OnRemoved != nil {
		l.OnRemoved(t)
	}
}

type noteKind int

const (
	noteNew noteKind = iota
	noteUpdate
	noteRemoved
)

type note struct {
	kind  noteKind
	track Track
}

// Manager correlates reports from its inputs into a bounded track table.
// UpdateData and AgeTracks run on the background lane; the read accessors
// may be called from any goroutine.
type Manager struct {
	name     string
	kind     TypeBits
	reporter monitoring.Reporter
	metrics  *monitoring.Metrics

	mu      sync.RWMutex
	cfg     Config
	table   *Table
	inputs  []ReportSource
	ownship func() r3.Vec
	pending []note

	listeners []Listener
}

// NewManager builds a manager of the given kind (TypeAir, TypeGround or
// TypeRWR). Invalid configuration values are rejected one by one and the
// defaults kept in their place.
func NewManager(name string, kind TypeBits, cfg Config, reporter monitoring.Reporter) *Manager {
	m := &Manager{
		name:     name,
		kind:     kind,
		reporter: monitoring.OrDefault(reporter),
		cfg:      DefaultConfig(),
	}
	if kind.Has(TypeRWR) {
		m.cfg.Class = AngleOnly
	}
	m.table = NewTable(m.cfg.MaxTracks)
	m.applyConfig(cfg)
	return m
}

func (m *Manager) applyConfig(c Config) {
	if c.MaxTracks != 0 {
		m.SetMaxTracks(c.MaxTracks)
	}
	if c.MaxTrackAge != 0 {
		m.SetMaxTrackAge(c.MaxTrackAge)
	}
	if c.AzGate != 0 || c.ElGate != 0 || c.RangeGate != 0 {
		m.SetGates(c.AzGate, c.ElGate, c.RangeGate)
	}
	if c.Alpha != 0 {
		m.SetAlpha(c.Alpha)
	}
	if c.Beta != 0 {
		m.SetBeta(c.Beta)
	}
	if c.Gamma != 0 {
		m.SetGamma(c.Gamma)
	}
	if c.IGain != 0 {
		m.SetIGain(c.IGain)
	}
	if c.ProtectRecentAge != 0 {
		m.SetProtectRecentAge(c.ProtectRecentAge)
	}
	if c.HistoryLength != 0 {
		m.SetHistoryLength(c.HistoryLength)
	}
	if c.QualityStep != 0 {
		m.cfg.QualityStep = c.QualityStep
	}
	if c.QualityDecay != 0 {
		m.cfg.QualityDecay = c.QualityDecay
	}
	if c.Class != RangeAndAngle {
		m.SetClass(c.Class)
	}
}

// Name returns the manager name used for lookup.
func (m *Manager) Name() string { return m.name }

// Kind returns the manager type.
func (m *Manager) Kind() TypeBits { return m.kind }

// Config returns a copy of the active configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// AddInput attaches a report source. Sources are drained in the order
// they were added.
func (m *Manager) AddInput(src ReportSource) {
	if src == nil {
		return
	}
	m.mu.Lock()
	m.inputs = append(m.inputs, src)
	m.mu.Unlock()
}

// AddListener registers l for track notifications.
func (m *Manager) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// SetMetrics attaches Prometheus instrumentation; nil disables it.
func (m *Manager) SetMetrics(mt *monitoring.Metrics) { m.metrics = mt }

// SetOwnship supplies ownship velocity for ground-speed estimates.
func (m *Manager) SetOwnship(fn func() r3.Vec) {
	m.mu.Lock()
	m.ownship = fn
	m.mu.Unlock()
}

// ----- setters -----

// SetMaxTracks resizes the table. Live tracks are discarded.
func (m *Manager) SetMaxTracks(n int) bool {
	if n < 1 {
		m.reject("max tracks %d", n)
		return false
	}
	m.mu.Lock()
	m.cfg.MaxTracks = n
	m.table = NewTable(n)
	m.mu.Unlock()
	return true
}

// SetMaxTrackAge sets the age at which an unrefreshed track is removed.
func (m *Manager) SetMaxTrackAge(s float64) bool {
	if s <= 0 {
		m.reject("max track age %v", s)
		return false
	}
	m.mu.Lock()
	m.cfg.MaxTrackAge = s
	m.mu.Unlock()
	return true
}

// SetGates sets the correlation gates. Angles must be positive; a zero
// range gate disables range gating.
func (m *Manager) SetGates(az, el, rng float64) bool {
	if az <= 0 || el <= 0 || rng < 0 {
		m.reject("gates az=%v el=%v range=%v", az, el, rng)
		return false
	}
	m.mu.Lock()
	m.cfg.AzGate, m.cfg.ElGate, m.cfg.RangeGate = az, el, rng
	m.mu.Unlock()
	return true
}

// SetAlpha sets the position gain, 0 < a <= 1.
func (m *Manager) SetAlpha(a float64) bool {
	return m.setGain("alpha", &m.cfg.Alpha, a, 1)
}

// SetBeta sets the velocity gain, 0 < b <= 2.
func (m *Manager) SetBeta(b float64) bool {
	return m.setGain("beta", &m.cfg.Beta, b, 2)
}

// SetGamma sets the acceleration gain, 0 < g <= 2.
func (m *Manager) SetGamma(g float64) bool {
	return m.setGain("gamma", &m.cfg.Gamma, g, 2)
}

// SetIGain sets the angle smoothing gain used by angle-only tracks,
// 0 < g <= 1.
func (m *Manager) SetIGain(g float64) bool {
	return m.setGain("iGain", &m.cfg.IGain, g, 1)
}

func (m *Manager) setGain(name string, dst *float64, v, max float64) bool {
	if v <= 0 || v > max || math.IsNaN(v) {
		m.reject("%s %v", name, v)
		return false
	}
	m.mu.Lock()
	*dst = v
	m.mu.Unlock()
	return true
}

// SetProtectRecentAge sets the age below which tracks are never evicted.
func (m *Manager) SetProtectRecentAge(s float64) bool {
	if s < 0 {
		m.reject("protect-recent age %v", s)
		return false
	}
	m.mu.Lock()
	m.cfg.ProtectRecentAge = s
	m.mu.Unlock()
	return true
}

// SetHistoryLength sets the signal history window for new tracks.
func (m *Manager) SetHistoryLength(n int) bool {
	if n < 1 || n > MaxSignalHistory {
		m.reject("history length %d", n)
		return false
	}
	m.mu.Lock()
	m.cfg.HistoryLength = n
	m.mu.Unlock()
	return true
}

// SetClass selects range-and-angle or angle-only filtering for new tracks.
func (m *Manager) SetClass(c Class) bool {
	if c != RangeAndAngle && c != AngleOnly {
		m.reject("class %d", int(c))
		return false
	}
	m.mu.Lock()
	m.cfg.Class = c
	m.mu.Unlock()
	return true
}

// ----- cycle -----

// UpdateData drains every input, up to its capacity, correlating each
// report, then ages the tracks that were not updated.
func (m *Manager) UpdateData(dt float64) {
	m.mu.Lock()
	m.table.Each(func(tr *Track) { tr.updated = false })
	for _, src := range m.inputs {
		q := src.Output()
		m.metrics.SetQueueDepth(src.Name(), q.Entries())
		for i := 0; i < q.Capacity(); i++ {
			rep, ok := q.Get()
			if !ok {
				break
			}
			m.correlate(rep)
		}
	}
	m.ageLocked(dt)
	m.metrics.SetLiveTracks(m.name, m.table.Len())
	notes := m.takeNotes()
	m.mu.Unlock()
	m.dispatch(notes)
}

// AgeTracks ages every track not updated this cycle and removes those
// older than the maximum track age.
func (m *Manager) AgeTracks(dt float64) {
	m.mu.Lock()
	m.ageLocked(dt)
	m.metrics.SetLiveTracks(m.name, m.table.Len())
	notes := m.takeNotes()
	m.mu.Unlock()
	m.dispatch(notes)
}

// Reset removes every track and drains the inputs.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.table.Clear()
	for _, src := range m.inputs {
		src.Output().Clear()
	}
	m.pending = m.pending[:0]
	m.mu.Unlock()
	m.metrics.SetLiveTracks(m.name, 0)
	diagf("%s reset", m.name)
}

// ----- read access -----

// TrackList appends up to max live tracks to buf[:0] in slot order and
// returns the result. The order is stable between cycles for tracks that
// stay alive.
func (m *Manager) TrackList(buf []Track, max int) []Track {
	buf = buf[:0]
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.table.Each(func(tr *Track) {
		if len(buf) < max {
			buf = append(buf, *tr)
		}
	})
	return buf
}

// Track returns a copy of the live track with id.
func (m *Manager) Track(id int) (Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tr := m.table.Get(id); tr != nil {
		return *tr, true
	}
	return Track{}, false
}

// NumTracks returns the number of live tracks.
func (m *Manager) NumTracks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Len()
}

// SetShootListIndex records a shoot-list rank on a live track (0 clears
// it). It returns false when id is not live.
func (m *Manager) SetShootListIndex(id, rank int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr := m.table.Get(id)
	if tr == nil {
		return false
	}
	tr.ShootListIndex = rank
	return true
}

// ----- internals (called with mu held) -----

func (m *Manager) correlate(rep sensor.Report) {
	var best *Track
	bestScore := math.Inf(1)
	m.table.Each(func(tr *Track) {
		if score, ok := m.gate(tr, rep); ok && score < bestScore {
			best, bestScore = tr, score
		}
	})
	if best != nil {
		tracef("%s report seq=%d -> track %d (score %.3f)", m.name, rep.Seq, best.ID, bestScore)
		m.update(best, rep)
		return
	}
	m.create(rep)
}

// gate tests rep against the predicted state of tr. The score is the sum
// of each deviation over its gate, so the smallest score is the closest
// match across all gated dimensions.
func (m *Manager) gate(tr *Track, rep sensor.Report) (float64, bool) {
	p := predict(tr, rep.Time)
	daz := math.Abs(angles.Diff(rep.Az, p.az))
	del := math.Abs(rep.El - p.el)
	if daz > m.cfg.AzGate || del > m.cfg.ElGate {
		return 0, false
	}
	score := daz/m.cfg.AzGate + del/m.cfg.ElGate
	if tr.Class == RangeAndAngle && m.cfg.RangeGate > 0 && rep.Range > 0 {
		dr := math.Abs(rep.Range - p.rng)
		if dr > m.cfg.RangeGate {
			return 0, false
		}
		score += dr / m.cfg.RangeGate
	}
	return score, true
}

func (m *Manager) gains() gains {
	return gains{alpha: m.cfg.Alpha, beta: m.cfg.Beta, gamma: m.cfg.Gamma, angle: m.cfg.IGain}
}

func (m *Manager) update(tr *Track, rep sensor.Report) {
	if tr.Class == AngleOnly {
		filterAngleOnly(tr, rep, m.gains())
	} else if !filterRangeAndAngle(tr, rep, m.gains()) {
		monitoring.Warnf(m.reporter, monitoring.KindNumeric, m.name,
			"track %d collapsed onto ownship, bearing set to zero", tr.ID)
	}
	tr.Age = 0
	tr.updated = true
	tr.Updates++
	tr.LastUpdate = rep.Time
	tr.Quality = math.Min(1, tr.Quality+m.cfg.QualityStep)
	tr.Signal.Add(rep.SNR)
	tr.IFF = rep.IFF
	tr.GroundSpeed = groundSpeed(tr.Velocity, m.ownshipVelocity())
	m.metrics.TrackEvent(m.name, "update")
	m.pending = append(m.pending, note{noteUpdate, *tr})
}

func (m *Manager) create(rep sensor.Report) {
	if m.table.Full() {
		victim := m.table.Oldest()
		if victim.Age < m.cfg.ProtectRecentAge {
			m.metrics.TrackEvent(m.name, "dropped")
			opsf("%s table full (%d), every track younger than %.2fs; report seq=%d dropped",
				m.name, m.table.Capacity(), m.cfg.ProtectRecentAge, rep.Seq)
			monitoring.Warnf(m.reporter, monitoring.KindResource, m.name,
				"track table full, report %d dropped", rep.Seq)
			return
		}
		removed, _ := m.table.Remove(victim.ID)
		m.metrics.TrackEvent(m.name, "evicted")
		diagf("%s evicted track %d (age %.2fs)", m.name, removed.ID, removed.Age)
		m.pending = append(m.pending, note{noteRemoved, removed})
	}

	tr := Track{
		Type:       m.typeFor(rep),
		Class:      m.cfg.Class,
		Az:         rep.Az,
		El:         rep.El,
		Range:      rep.Range,
		RangeRate:  rep.RangeRate,
		Quality:    m.cfg.QualityStep,
		IFF:        rep.IFF,
		Signal:     newSignalHistory(m.cfg.HistoryLength),
		SensorID:   rep.SensorID,
		TargetID:   rep.TargetID,
		Updates:    1,
		LastUpdate: rep.Time,
		updated:    true,
	}
	tr.Signal.Add(rep.SNR)
	if rep.Range > 0 {
		tr.Position = angles.Cartesian(rep.Az, rep.El, rep.Range)
		tr.Velocity = r3.Scale(rep.RangeRate/rep.Range, tr.Position)
	}
	tr.GroundSpeed = groundSpeed(tr.Velocity, m.ownshipVelocity())

	stored := m.table.Insert(tr)
	if stored == nil {
		// unreachable after eviction; kept as a resource signal
		monitoring.Warnf(m.reporter, monitoring.KindResource, m.name, "no free track id")
		return
	}
	m.metrics.TrackEvent(m.name, "new")
	diagf("%s new track %d az=%.2f el=%.2f r=%.0f", m.name, stored.ID, stored.Az, stored.El, stored.Range)
	m.pending = append(m.pending, note{noteNew, *stored})
}

func (m *Manager) typeFor(rep sensor.Report) TypeBits {
	t := m.kind | TypeOnboard
	if m.kind.Has(TypeAir) && rep.Ground {
		t = t&^TypeAir | TypeGround
	}
	return t
}

func (m *Manager) ageLocked(dt float64) {
	if dt <= 0 {
		return
	}
	var expired []int
	m.table.Each(func(tr *Track) {
		if tr.updated {
			return
		}
		tr.Age += dt
		tr.Quality = math.Max(0, tr.Quality-m.cfg.QualityDecay*dt)
		if tr.Age > m.cfg.MaxTrackAge {
			expired = append(expired, tr.ID)
		}
	})
	for _, id := range expired {
		if tr, ok := m.table.Remove(id); ok {
			m.metrics.TrackEvent(m.name, "removed")
			diagf("%s removed track %d (age %.2fs)", m.name, tr.ID, tr.Age)
			m.pending = append(m.pending, note{noteRemoved, tr})
		}
	}
}

func (m *Manager) ownshipVelocity() r3.Vec {
	if m.ownship == nil {
		return r3.Vec{}
	}
	return m.ownship()
}

func (m *Manager) takeNotes() []note {
	if len(m.pending) == 0 {
		return nil
	}
	notes := make([]note, len(m.pending))
	copy(notes, m.pending)
	m.pending = m.pending[:0]
	return notes
}

func (m *Manager) dispatch(notes []note) {
	if len(notes) == 0 {
		return
	}
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()
	for _, n := range notes {
		for _, l := range listeners {
			switch n.kind {
			case noteNew:
				l.NewTrack(n.track)
			case noteUpdate:
				l.UpdateTrack(n.track)
			case noteRemoved:
				l.RemovedTrack(n.track)
			}
		}
	}
}

func (m *Manager) reject(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	opsf("%s rejected %s", m.name, msg)
	monitoring.Warnf(m.reporter, monitoring.KindConfig, m.name, "rejected %s", msg)
}
