package shootlist

import (
	"sync"

	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/tracking"
)

// TrackManager is a track source that can be looked up by name or kind.
type TrackManager interface {
	TrackSource
	Name() string
	Kind() tracking.TypeBits
}

// Action is a request passed to the stores collaborator.
type Action string

const (
	// ActionSelect announces a new next-to-shoot track.
	ActionSelect Action = "select"
	// ActionClear announces that nothing is selected.
	ActionClear Action = "clear"
	// ActionRelease asks the collaborator to engage the selected track.
	ActionRelease Action = "release"
)

// ActionHandler is the stores/weapon collaborator. tr is the zero Track
// for ActionClear.
type ActionHandler interface {
	HandleAction(a Action, tr tracking.Track)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(Action, tracking.Track)

// HandleAction calls f(a, tr).
func (f ActionHandlerFunc) HandleAction(a Action, tr tracking.Track) { f(a, tr) }

// DefaultSpeedFloor is the ground speed (m/s) above which a track ranks
// in the first group.
const DefaultSpeedFloor = 50.0

// OnboardComputer owns the shoot list for one track manager, found by
// name among the registered managers when the computer is reset.
type OnboardComputer struct {
	name     string
	reporter monitoring.Reporter

	mu          sync.RWMutex
	managers    []TrackManager
	managerName string
	active      TrackManager
	signaled    bool
	prio        *Prioritizer
	handler     ActionHandler
	lastNext    int
}

// NewOnboardComputer returns a computer ranking up to maxTracks tracks.
func NewOnboardComputer(name string, maxTracks int, reporter monitoring.Reporter) *OnboardComputer {
	return &OnboardComputer{
		name:     name,
		reporter: monitoring.OrDefault(reporter),
		prio:     NewPrioritizer(DefaultSpeedFloor, maxTracks),
	}
}

// Name returns the computer name.
func (c *OnboardComputer) Name() string { return c.name }

// AddTrackManager registers m for lookup.
func (c *OnboardComputer) AddTrackManager(m TrackManager) {
	if m == nil {
		return
	}
	c.mu.Lock()
	c.managers = append(c.managers, m)
	c.mu.Unlock()
}

// SetTrackManagerName selects the manager to use from the next Reset.
func (c *OnboardComputer) SetTrackManagerName(name string) bool {
	if name == "" {
		opsf("%s rejected empty track manager name", c.name)
		monitoring.Warnf(c.reporter, monitoring.KindConfig, c.name, "rejected empty track manager name")
		return false
	}
	c.mu.Lock()
	if name != c.managerName {
		c.signaled = false
	}
	c.managerName = name
	c.mu.Unlock()
	return true
}

// SetSpeedFloor sets the prioritizer ground-speed floor in m/s.
func (c *OnboardComputer) SetSpeedFloor(v float64) bool {
	c.mu.Lock()
	ok := c.prio.SetSpeedFloor(v)
	c.mu.Unlock()
	if !ok {
		opsf("%s rejected speed floor %v", c.name, v)
		monitoring.Warnf(c.reporter, monitoring.KindConfig, c.name, "rejected speed floor %v", v)
	}
	return ok
}

// SetActionHandler attaches the stores collaborator.
func (c *OnboardComputer) SetActionHandler(h ActionHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// TrackManagerByName returns the registered manager called name.
func (c *OnboardComputer) TrackManagerByName(name string) (TrackManager, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.managers {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// TrackManagerByType returns the first registered manager whose kind
// includes every bit of kind.
func (c *OnboardComputer) TrackManagerByType(kind tracking.TypeBits) (TrackManager, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.managers {
		if m.Kind()&kind == kind {
			return m, true
		}
	}
	return nil, false
}

// Tracking reports whether a manager is resolved.
func (c *OnboardComputer) Tracking() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active != nil
}

// Reset resolves the configured manager and clears the shoot list. An
// unresolvable name leaves the computer with no tracking; the error is
// signaled once per configured name.
func (c *OnboardComputer) Reset() {
	m, found := c.TrackManagerByName(c.configuredName())

	c.mu.Lock()
	c.prio.Reset()
	c.lastNext = 0
	if found {
		c.active = m
		c.signaled = false
		c.mu.Unlock()
		diagf("%s using track manager %s", c.name, m.Name())
		return
	}
	c.active = nil
	first := !c.signaled
	c.signaled = true
	name := c.managerName
	c.mu.Unlock()

	if first {
		opsf("%s: track manager %q not found, no tracking", c.name, name)
		monitoring.Errorf(c.reporter, monitoring.KindCollaborator, c.name,
			"track manager %q not found, no tracking", name)
	}
}

func (c *OnboardComputer) configuredName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.managerName
}

// UpdateData re-ranks the active manager's tracks and notifies the
// handler when the next-to-shoot track changes.
func (c *OnboardComputer) UpdateData(float64) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return
	}
	c.prio.Update(c.active)
	act, tr := c.selectionChangeLocked()
	h := c.handler
	c.mu.Unlock()

	if act != "" && h != nil {
		h.HandleAction(act, tr)
	}
}

// selectionChangeLocked compares the selection with the last announced
// one and returns the action to send, or "" when nothing changed.
func (c *OnboardComputer) selectionChangeLocked() (Action, tracking.Track) {
	id, ok := c.prio.NextToShoot()
	if !ok {
		id = 0
	}
	if id == c.lastNext {
		return "", tracking.Track{}
	}
	c.lastNext = id
	if id == 0 {
		diagf("%s next to shoot cleared", c.name)
		return ActionClear, tracking.Track{}
	}
	tr, _ := c.active.Track(id)
	diagf("%s next to shoot %d", c.name, id)
	return ActionSelect, tr
}

// ShootList appends up to max tracks in rank order to buf[:0].
func (c *OnboardComputer) ShootList(buf []tracking.Track, max int) []tracking.Track {
	buf = buf[:0]
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return buf
	}
	for _, id := range c.prio.ranked {
		if len(buf) >= max {
			break
		}
		if tr, ok := c.active.Track(id); ok {
			buf = append(buf, tr)
		}
	}
	return buf
}

// NextToShoot returns the selected track.
func (c *OnboardComputer) NextToShoot() (tracking.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return tracking.Track{}, false
	}
	id, ok := c.prio.NextToShoot()
	if !ok {
		return tracking.Track{}, false
	}
	return c.active.Track(id)
}

// RequestNextToShoot pins id as the next track regardless of rank. It
// returns false when id is not live or there is no tracking.
func (c *OnboardComputer) RequestNextToShoot(id int) bool {
	c.mu.Lock()
	if c.active == nil || !c.prio.Pin(c.active, id) {
		c.mu.Unlock()
		opsf("%s: next-to-shoot request for %d refused", c.name, id)
		return false
	}
	act, tr := c.selectionChangeLocked()
	h := c.handler
	c.mu.Unlock()
	if act != "" && h != nil {
		h.HandleAction(act, tr)
	}
	return true
}

// StepNextToShoot advances the selection to the next ranked track.
func (c *OnboardComputer) StepNextToShoot() (int, bool) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return 0, false
	}
	id, ok := c.prio.Step()
	act, tr := c.selectionChangeLocked()
	h := c.handler
	c.mu.Unlock()
	if act != "" && h != nil {
		h.HandleAction(act, tr)
	}
	return id, ok
}

// TriggerAction passes a to the handler with the current selection. It
// returns false without a handler, or when a needs a selection and there
// is none.
func (c *OnboardComputer) TriggerAction(a Action) bool {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return false
	}
	tr, ok := c.NextToShoot()
	if !ok && a != ActionClear {
		return false
	}
	h.HandleAction(a, tr)
	return true
}
