package filters

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"

	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/model"
)

// Hours is the opening-hours selection of the filter panel.
type Hours string

const (
	HoursAny      Hours = "any"
	HoursOpenNow  Hours = "openNow"
	HoursOpenLate Hours = "openLate"
)

func (h Hours) Valid() bool {
	return h == HoursAny || h == HoursOpenNow || h == HoursOpenLate
}

// Snapshot is one complete set of user-selected filters.
type Snapshot struct {
	Hours                 Hours
	LocationSearchText    string
	LocationCoords        *orb.Point // [lng, lat]
	DistanceRadius        model.Distance
	SelectedEligibilities map[string]struct{}
}

// DefaultSnapshot returns the snapshot with no filters selected.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Hours:                 HoursAny,
		DistanceRadius:        model.DistanceAll,
		SelectedEligibilities: map[string]struct{}{},
	}
}

// Clone returns a deep copy; the result shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.LocationCoords != nil {
		p := *s.LocationCoords
		c.LocationCoords = &p
	}
	c.SelectedEligibilities = maps.Clone(s.SelectedEligibilities)
	if c.SelectedEligibilities == nil {
		c.SelectedEligibilities = map[string]struct{}{}
	}
	return c
}

// Eligibilities returns the selected eligibilities in lexical order.
func (s Snapshot) Eligibilities() []string {
	return slices.Sorted(maps.Keys(s.SelectedEligibilities))
}

func (s Snapshot) HasEligibility(v string) bool {
	_, ok := s.SelectedEligibilities[v]
	return ok
}

// Equal reports whether two snapshots select the same filters.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Hours != o.Hours || s.LocationSearchText != o.LocationSearchText || s.DistanceRadius != o.DistanceRadius {
		return false
	}
	if (s.LocationCoords == nil) != (o.LocationCoords == nil) {
		return false
	}
	if s.LocationCoords != nil && !s.LocationCoords.Equal(*o.LocationCoords) {
		return false
	}
	if len(s.SelectedEligibilities) != len(o.SelectedEligibilities) {
		return false
	}
	for k := range s.SelectedEligibilities {
		if _, ok := o.SelectedEligibilities[k]; !ok {
			return false
		}
	}
	return true
}

// ChangeCount is the number of active filters in the snapshot. Location and
// radius count as one filter, and only once a location is chosen.
func (s Snapshot) ChangeCount() int {
	n := 0
	if s.Hours != HoursAny {
		n++
	}
	if s.LocationCoords != nil {
		n++
	}
	return n + len(s.SelectedEligibilities)
}

// Machine holds the pending and applied snapshots of a filter panel.
// Mutations touch pending only; Apply and Clear are the only transitions
// that write applied.
//
// Safe for concurrent use.
type Machine struct {
	mu      sync.RWMutex
	pending Snapshot
	applied Snapshot
}

func NewMachine() *Machine {
	return &Machine{
		pending: DefaultSnapshot(),
		applied: DefaultSnapshot(),
	}
}

// Pending returns a copy of the pending snapshot.
func (m *Machine) Pending() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending.Clone()
}

// Applied returns a copy of the applied snapshot.
func (m *Machine) Applied() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applied.Clone()
}

// PendingChangeCount labels the "Apply N filters" action.
func (m *Machine) PendingChangeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending.ChangeCount()
}

// Dirty reports whether pending differs from applied.
func (m *Machine) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.pending.Equal(m.applied)
}

func (m *Machine) SetPendingHours(h Hours) {
	m.mutate(func(s *Snapshot) { s.Hours = h })
}

func (m *Machine) SetPendingDistance(d model.Distance) {
	m.mutate(func(s *Snapshot) { s.DistanceRadius = d })
}

// SetPendingLocation sets the location text and coordinates together. A nil
// coords clears the chosen location but keeps the text.
func (m *Machine) SetPendingLocation(text string, coords *orb.Point) {
	m.mutate(func(s *Snapshot) {
		s.LocationSearchText = text
		if coords == nil {
			s.LocationCoords = nil
			return
		}
		p := *coords
		s.LocationCoords = &p
	})
}

func (m *Machine) TogglePendingEligibility(v string) {
	m.mutate(func(s *Snapshot) {
		if _, ok := s.SelectedEligibilities[v]; ok {
			delete(s.SelectedEligibilities, v)
		} else {
			s.SelectedEligibilities[v] = struct{}{}
		}
	})
}

// Apply commits pending into applied as a full replacement and returns the
// new applied snapshot.
func (m *Machine) Apply() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = m.pending.Clone()
	return m.applied.Clone()
}

// Revert discards pending edits, restoring pending from applied.
func (m *Machine) Revert() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = m.applied.Clone()
}

// Clear resets both snapshots to the default.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = DefaultSnapshot()
	m.applied = DefaultSnapshot()
}

// mutate applies fn to a fresh copy of pending and swaps it in, so readers
// holding an earlier snapshot never observe the change.
func (m *Machine) mutate(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.pending.Clone()
	fn(&next)
	m.pending = next
}

type snapshotJSON struct {
	Hours                 Hours          `json:"hours"`
	LocationSearchText    string         `json:"locationSearchText"`
	LocationCoords        *model.GeoLoc  `json:"locationCoords"`
	DistanceRadius        model.Distance `json:"distanceRadius"`
	SelectedEligibilities []string       `json:"selectedEligibilities"`
	ChangeCount           int            `json:"changeCount"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	v := snapshotJSON{
		Hours:                 s.Hours,
		LocationSearchText:    s.LocationSearchText,
		DistanceRadius:        s.DistanceRadius,
		SelectedEligibilities: s.Eligibilities(),
		ChangeCount:           s.ChangeCount(),
	}
	if s.LocationCoords != nil {
		v.LocationCoords = &model.GeoLoc{Lat: s.LocationCoords.Lat(), Lng: s.LocationCoords.Lon()}
	}
	return json.Marshal(v)
}
