/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	table.go: Fixed capacity table of FLARM traffic targets
*/

package flarm

import (
	"errors"
	"math"
	"sort"
	"time"
)

const (
	MaxTraffic = 50

	DefaultGhostAfter = 5 * time.Second
	DefaultStaleAfter = 30 * time.Second
)

var ErrTableFull = errors.New("flarm: traffic table full")

// SlotStatus marks how fresh a target is.
type SlotStatus int

const (
	SlotEmpty SlotStatus = iota
	SlotReal
	SlotGhost // no update for GhostAfter, kept until StaleAfter
)

func (s SlotStatus) String() string {
	switch s {
	case SlotReal:
		return "real"
	case SlotGhost:
		return "ghost"
	}
	return "empty"
}

// Report is one decoded PFLAA traffic report.
type Report struct {
	AlarmLevel   int
	IDType       int
	AircraftType int

	// Offsets from own position in metres, vertical positive up.
	RelativeNorth    float64
	RelativeEast     float64
	RelativeVertical float64

	Latitude  float64
	Longitude float64
	Altitude  float64 // metres, own altitude plus RelativeVertical

	Track     float64 // degrees true
	TurnRate  float64 // degrees per second
	Speed     float64 // m/s
	ClimbRate float64 // m/s
}

// Slot is one tracked target.
type Slot struct {
	Report

	RadioID    uint32
	Status     SlotStatus
	FirstSeen  time.Time
	LastUpdate time.Time

	// Derived by RefreshAll
	Distance float64 // metres, horizontal
	Rank     int     // 1 is the closest active target
}

func (s *Slot) InUse() bool {
	return s.RadioID != 0
}

// Table holds at most a fixed number of slots. The zero value has no capacity,
// use NewTable.
type Table struct {
	slots []Slot

	GhostAfter time.Duration
	StaleAfter time.Duration

	// Highest alarm level among active targets, computed by RefreshAll
	MaxAlarm int
}

func NewTable(capacity int) Table {
	if capacity <= 0 {
		capacity = MaxTraffic
	}
	return Table{
		slots:      make([]Slot, capacity),
		GhostAfter: DefaultGhostAfter,
		StaleAfter: DefaultStaleAfter,
	}
}

func (t *Table) Capacity() int {
	return len(t.slots)
}

// Count returns the number of slots in use.
func (t *Table) Count() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].InUse() {
			n++
		}
	}
	return n
}

// Find returns the index of the slot holding id, or -1.
func (t *Table) Find(id uint32) int {
	if id == 0 {
		return -1
	}
	for i := range t.slots {
		if t.slots[i].RadioID == id {
			return i
		}
	}
	return -1
}

func (t *Table) findFree() int {
	for i := range t.slots {
		if !t.slots[i].InUse() {
			return i
		}
	}
	return -1
}

// Slot returns a copy of slot i.
func (t *Table) Slot(i int) (Slot, bool) {
	if i < 0 || i >= len(t.slots) || !t.slots[i].InUse() {
		return Slot{}, false
	}
	return t.slots[i], true
}

// Upsert stores r for id, refreshing an existing slot or taking a free one.
// A new id on a full table is dropped with ErrTableFull.
func (t *Table) Upsert(id uint32, r Report, now time.Time) (int, error) {
	if id == 0 {
		return -1, errors.New("flarm: radio id 0")
	}
	i := t.Find(id)
	if i < 0 {
		i = t.findFree()
		if i < 0 {
			return -1, ErrTableFull
		}
		t.slots[i] = Slot{RadioID: id, FirstSeen: now}
	}
	s := &t.slots[i]
	s.Report = r
	s.Status = SlotReal
	s.LastUpdate = now
	s.Distance = math.Hypot(r.RelativeNorth, r.RelativeEast)
	return i, nil
}

// Empty releases slot i.
func (t *Table) Empty(i int) {
	if i < 0 || i >= len(t.slots) {
		return
	}
	t.slots[i] = Slot{}
}

// RefreshAll ages every slot against now, evicting targets older than
// StaleAfter and marking those older than GhostAfter. Ranking and MaxAlarm are
// recomputed over what remains. It returns the number of evicted slots.
func (t *Table) RefreshAll(now time.Time) int {
	evicted := 0
	active := make([]int, 0, len(t.slots))
	t.MaxAlarm = 0

	for i := range t.slots {
		s := &t.slots[i]
		if !s.InUse() {
			continue
		}
		age := now.Sub(s.LastUpdate)
		if t.StaleAfter > 0 && age > t.StaleAfter {
			t.Empty(i)
			evicted++
			continue
		}
		if t.GhostAfter > 0 && age > t.GhostAfter {
			s.Status = SlotGhost
		} else {
			s.Status = SlotReal
			if s.AlarmLevel > t.MaxAlarm {
				t.MaxAlarm = s.AlarmLevel
			}
		}
		active = append(active, i)
	}

	sort.SliceStable(active, func(a, b int) bool {
		return t.slots[active[a]].Distance < t.slots[active[b]].Distance
	})
	for rank, i := range active {
		t.slots[i].Rank = rank + 1
	}
	return evicted
}

// Active returns copies of the slots in use ordered by rank.
func (t *Table) Active() []Slot {
	out := make([]Slot, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].InUse() {
			out = append(out, t.slots[i])
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Rank == out[b].Rank {
			return out[a].Distance < out[b].Distance
		}
		if out[a].Rank == 0 {
			return false
		}
		if out[b].Rank == 0 {
			return true
		}
		return out[a].Rank < out[b].Rank
	})
	return out
}

// Clear empties every slot, keeping the capacity.
func (t *Table) Clear() {
	for i := range t.slots {
		t.slots[i] = Slot{}
	}
	t.MaxAlarm = 0
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	c := t
	c.slots = make([]Slot, len(t.slots))
	copy(c.slots, t.slots)
	return c
}
