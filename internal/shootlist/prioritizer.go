// Package shootlist ranks live tracks into an engagement order and hosts
// the onboard computer that exposes that order to the stores collaborator.
package shootlist

import (
	"sort"

	"github.com/banshee-data/scantrack/internal/tracking"
)

// TrackSource is the part of a track manager the prioritizer reads.
// *tracking.Manager satisfies it.
type TrackSource interface {
	TrackList(buf []tracking.Track, max int) []tracking.Track
	Track(id int) (tracking.Track, bool)
	SetShootListIndex(id, rank int) bool
}

// Prioritizer keeps the ranked order of a manager's tracks. Tracks at or
// above the ground-speed floor come first, each group by ascending range.
//
// Selection is an offset into the ranking moved by Step, or a pinned id.
// A pin freezes the ranking until it is released or the pinned track dies.
type Prioritizer struct {
	floor    float64
	maxTrack int

	ranked []int
	offset int
	pinned int

	buf []tracking.Track
}

// NewPrioritizer returns a prioritizer with the given ground-speed floor
// (m/s) that considers at most maxTracks tracks per cycle.
func NewPrioritizer(floor float64, maxTracks int) *Prioritizer {
	if maxTracks < 1 {
		maxTracks = 1
	}
	return &Prioritizer{
		floor:    floor,
		maxTrack: maxTracks,
		buf:      make([]tracking.Track, 0, maxTracks),
	}
}

// SpeedFloor returns the ground-speed floor in m/s.
func (p *Prioritizer) SpeedFloor() float64 { return p.floor }

// SetSpeedFloor changes the floor; it applies from the next Update.
func (p *Prioritizer) SetSpeedFloor(v float64) bool {
	if v < 0 {
		return false
	}
	p.floor = v
	return true
}

// Update refreshes the ranking from src and writes each rank (1-based)
// back to its track. While a pin holds, dead tracks are pruned but the
// order is kept and new tracks are not ranked.
func (p *Prioritizer) Update(src TrackSource) {
	p.buf = src.TrackList(p.buf, p.maxTrack)
	live := make(map[int]bool, len(p.buf))
	for _, tr := range p.buf {
		live[tr.ID] = true
	}

	if p.pinned != 0 {
		if !live[p.pinned] {
			diagf("pinned track %d gone, pin released", p.pinned)
			p.pinned = 0
		}
	}

	if p.pinned != 0 {
		kept := p.ranked[:0]
		for _, id := range p.ranked {
			if live[id] {
				kept = append(kept, id)
			}
		}
		p.ranked = kept
	} else {
		p.ranked = Rank(p.buf, p.floor, p.ranked)
	}

	p.writeRanks(src)
	tracef("ranking %v (pinned %d)", p.ranked, p.pinned)
}

func (p *Prioritizer) writeRanks(src TrackSource) {
	for i, id := range p.ranked {
		src.SetShootListIndex(id, i+1)
	}
}

// Rank orders tracks for engagement and returns their ids in dst[:0].
// Ties in range fall back to ascending id.
func Rank(tracks []tracking.Track, floor float64, dst []int) []int {
	idx := make([]int, len(tracks))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return before(tracks[idx[a]], tracks[idx[b]], floor)
	})
	dst = dst[:0]
	for _, i := range idx {
		dst = append(dst, tracks[i].ID)
	}
	return dst
}

// before reports whether a ranks ahead of b.
func before(a, b tracking.Track, floor float64) bool {
	fa, fb := a.GroundSpeed >= floor, b.GroundSpeed >= floor
	if fa != fb {
		return fa
	}
	if a.Range != b.Range {
		return a.Range < b.Range
	}
	return a.ID < b.ID
}

// Ranked returns the current ranking as track ids.
func (p *Prioritizer) Ranked() []int {
	out := make([]int, len(p.ranked))
	copy(out, p.ranked)
	return out
}

// NextToShoot returns the selected track id.
func (p *Prioritizer) NextToShoot() (int, bool) {
	if p.pinned != 0 {
		return p.pinned, true
	}
	if len(p.ranked) == 0 {
		return 0, false
	}
	return p.ranked[p.offset%len(p.ranked)], true
}

// Step moves the selection to the next track in rank order, wrapping at
// the end. Stepping from a pin releases it and continues after the pinned
// track.
func (p *Prioritizer) Step() (int, bool) {
	if len(p.ranked) == 0 {
		return 0, false
	}
	if p.pinned != 0 {
		for i, id := range p.ranked {
			if id == p.pinned {
				p.offset = i
			}
		}
		p.pinned = 0
	}
	p.offset = (p.offset + 1) % len(p.ranked)
	return p.ranked[p.offset], true
}

// Pin selects id regardless of rank. It returns false when id is not a
// live track of src. A track missing from the frozen ranking is inserted
// where a fresh ranking would place it relative to the others.
func (p *Prioritizer) Pin(src TrackSource, id int) bool {
	tr, ok := src.Track(id)
	if !ok {
		return false
	}
	p.pinned = id
	for _, r := range p.ranked {
		if r == id {
			return true
		}
	}

	at := len(p.ranked)
	for i, r := range p.ranked {
		if other, ok := src.Track(r); ok && before(tr, other, p.floor) {
			at = i
			break
		}
	}
	p.ranked = append(p.ranked, 0)
	copy(p.ranked[at+1:], p.ranked[at:])
	p.ranked[at] = id
	if at <= p.offset && len(p.ranked) > 1 {
		p.offset++
	}
	p.writeRanks(src)
	diagf("pinned track %d inserted at rank %d", id, at+1)
	return true
}

// Pinned returns the pinned id, 0 when none.
func (p *Prioritizer) Pinned() int { return p.pinned }

// Unpin releases any pin.
func (p *Prioritizer) Unpin() { p.pinned = 0 }

// Reset clears ranking, selection and pin.
func (p *Prioritizer) Reset() {
	p.ranked = p.ranked[:0]
	p.offset = 0
	p.pinned = 0
}
