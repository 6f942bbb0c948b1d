package tracking

import (
	"github.com/banshee-data/scantrack/internal/queue"
)

// Table is a fixed arena of track slots. Ids come from a FIFO free-list
// holding 1..capacity, so an id is unique among live tracks and a released
// id is reused only after every other free id.
type Table struct {
	slots []slot
	index map[int]int // id -> slot
	free  *queue.Bounded[int]
	seq   uint64
}

type slot struct {
	track Track
	used  bool
}

// NewTable returns an empty table with capacity slots (minimum 1).
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = 1
	}
	t := &Table{
		slots: make([]slot, capacity),
		index: make(map[int]int, capacity),
		free:  queue.New[int](capacity),
	}
	t.refill()
	return t
}

func (t *Table) refill() {
	t.free.Clear()
	for id := 1; id <= len(t.slots); id++ {
		t.free.Put(id)
	}
}

// Capacity is the maximum number of live tracks.
func (t *Table) Capacity() int { return len(t.slots) }

// Len is the number of live tracks.
func (t *Table) Len() int { return len(t.index) }

// Full reports whether no slot is free.
func (t *Table) Full() bool { return len(t.index) == len(t.slots) }

// Insert stores tr under a fresh id and returns a pointer into the arena.
// It returns nil when the table is full.
func (t *Table) Insert(tr Track) *Track {
	id, ok := t.free.Get()
	if !ok {
		return nil
	}
	for i := range t.slots {
		if t.slots[i].used {
			continue
		}
		t.seq++
		tr.ID = id
		tr.created = t.seq
		t.slots[i] = slot{track: tr, used: true}
		t.index[id] = i
		return &t.slots[i].track
	}
	// free-list and slots disagree; put the id back
	t.free.Put(id)
	return nil
}

// Remove releases id and returns the removed track.
func (t *Table) Remove(id int) (Track, bool) {
	i, ok := t.index[id]
	if !ok {
		return Track{}, false
	}
	tr := t.slots[i].track
	t.slots[i] = slot{}
	delete(t.index, id)
	t.free.Put(id)
	return tr, true
}

// Get returns a pointer to the live track with id. The pointer is valid
// until the next Insert, Remove or Clear.
func (t *Table) Get(id int) *Track {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	return &t.slots[i].track
}

// Each calls fn for every live track in slot order.
func (t *Table) Each(fn func(*Track)) {
	for i := range t.slots {
		if t.slots[i].used {
			fn(&t.slots[i].track)
		}
	}
}

// Oldest returns the live track with the largest age. Equal ages go to
// the earliest created.
func (t *Table) Oldest() *Track {
	var best *Track
	t.Each(func(tr *Track) {
		if best == nil || tr.Age > best.Age || (tr.Age == best.Age && tr.created < best.created) {
			best = tr
		}
	})
	return best
}

// Clear removes every track and restores the full free-list.
func (t *Table) Clear() {
	clear(t.slots)
	clear(t.index)
	t.refill()
}
