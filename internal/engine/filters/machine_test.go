package filters

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodir/internal/model"
)

func TestMachine_StartsAtDefault(t *testing.T) {
	m := NewMachine()
	assert.True(t, m.Pending().Equal(DefaultSnapshot()))
	assert.True(t, m.Applied().Equal(DefaultSnapshot()))
	assert.Equal(t, 0, m.PendingChangeCount())
	assert.False(t, m.Dirty())
}

func TestMachine_RadiusWithoutLocationDoesNotCount(t *testing.T) {
	m := NewMachine()
	m.SetPendingDistance(model.Miles(2))
	assert.Equal(t, 0, m.PendingChangeCount())
}

func TestMachine_LocationAndRadiusCountOnce(t *testing.T) {
	m := NewMachine()
	m.SetPendingLocation("Mission St", &orb.Point{-122.41, 37.76})
	assert.Equal(t, 1, m.PendingChangeCount())

	m.SetPendingDistance(model.Miles(1))
	assert.Equal(t, 1, m.PendingChangeCount(), "radius with a location is the same filter")

	m.SetPendingDistance(model.DistanceAll)
	assert.Equal(t, 1, m.PendingChangeCount())
}

func TestMachine_ChangeCountSumsAllFilters(t *testing.T) {
	m := NewMachine()
	m.SetPendingHours(HoursOpenNow)
	m.SetPendingLocation("Oakland", &orb.Point{-122.27, 37.80})
	m.TogglePendingEligibility("Age 0-2")
	m.TogglePendingEligibility("Seniors")
	assert.Equal(t, 4, m.PendingChangeCount())

	m.TogglePendingEligibility("Seniors")
	assert.Equal(t, 3, m.PendingChangeCount())
}

func TestMachine_PendingEditsNeverLeakIntoApplied(t *testing.T) {
	m := NewMachine()
	m.TogglePendingEligibility("Age 0-2")
	assert.True(t, m.Applied().Equal(DefaultSnapshot()))

	m.Clear()
	assert.True(t, m.Applied().Equal(DefaultSnapshot()))
	assert.True(t, m.Pending().Equal(DefaultSnapshot()))
}

func TestMachine_ApplyReplacesWholeSnapshot(t *testing.T) {
	m := NewMachine()
	m.SetPendingHours(HoursOpenLate)
	m.TogglePendingEligibility("Veterans")
	applied := m.Apply()

	assert.Equal(t, HoursOpenLate, applied.Hours)
	assert.True(t, applied.HasEligibility("Veterans"))
	assert.False(t, m.Dirty())

	// Later pending edits do not reach the applied copy.
	m.TogglePendingEligibility("Families")
	assert.False(t, m.Applied().HasEligibility("Families"))
	assert.False(t, applied.HasEligibility("Families"))
	assert.True(t, m.Dirty())
}

func TestMachine_SnapshotsDoNotAlias(t *testing.T) {
	m := NewMachine()
	m.TogglePendingEligibility("A")
	before := m.Pending()

	m.TogglePendingEligibility("B")
	assert.False(t, before.HasEligibility("B"), "earlier snapshot must not observe later toggles")

	before.SelectedEligibilities["C"] = struct{}{}
	assert.False(t, m.Pending().HasEligibility("C"), "callers cannot mutate machine state through a copy")
}

func TestMachine_LocationCoordsAreCopied(t *testing.T) {
	m := NewMachine()
	p := orb.Point{-122.4, 37.7}
	m.SetPendingLocation("SF", &p)
	p[0] = 0

	got := m.Pending().LocationCoords
	require.NotNil(t, got)
	assert.Equal(t, -122.4, got.Lon())
}

func TestMachine_RevertRestoresApplied(t *testing.T) {
	m := NewMachine()
	m.TogglePendingEligibility("A")
	m.Apply()
	m.TogglePendingEligibility("B")
	m.Revert()

	assert.Equal(t, []string{"A"}, m.Pending().Eligibilities())
}

func TestMachine_ClearingLocationKeepsText(t *testing.T) {
	m := NewMachine()
	m.SetPendingLocation("Berk", &orb.Point{-122.27, 37.87})
	m.SetPendingLocation("Berkeley", nil)

	s := m.Pending()
	assert.Nil(t, s.LocationCoords)
	assert.Equal(t, "Berkeley", s.LocationSearchText)
	assert.Equal(t, 0, s.ChangeCount())
}
