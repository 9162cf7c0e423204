package searchconfig

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/model"
)

var (
	box    = geo.BoundingBox(orb.Bound{Min: orb.Point{-122.52, 37.70}, Max: orb.Point{-122.35, 37.81}})
	radius = geo.Around(orb.Point{-122.41, 37.77}, model.Radius{Meters: 1609}, 1600, 1600)
)

func assertExclusive(t *testing.T, c Config) {
	t.Helper()
	m := c.Map()
	hasBox := m[KeyInsideBoundingBox] != nil
	hasAround := m[KeyAroundLatLng] != nil
	assert.False(t, hasBox && hasAround, "both geo variants active: %v", m)

	p := c.Params()
	assert.False(t, len(p.InsideBoundingBox) > 0 && p.AroundLatLng != "")
	_, err := geo.FromParams(p)
	assert.NoError(t, err)
}

func TestNewMergerIsEmpty(t *testing.T) {
	m := NewMerger()
	assert.Empty(t, m.Current().Map())
	assert.Empty(t, m.Current().Keys())
}

func TestGeoUpdatesStayExclusive(t *testing.T) {
	m := NewMerger()
	variants := []geo.Constraint{box, radius, geo.None()}
	rng := rand.New(rand.NewPCG(1, 2))

	for range 200 {
		c := variants[rng.IntN(len(variants))]
		cfg := m.Update(Update{Geo: &c})
		assertExclusive(t, cfg)

		got, ok := cfg.Geo()
		require.True(t, ok)
		assert.Equal(t, c.Kind, got.Kind)
	}
}

func TestSwitchingVariantNullsTheOther(t *testing.T) {
	m := NewMerger()
	m.Update(Update{Geo: &box})
	cfg := m.Update(Update{Geo: &radius})

	mp := cfg.Map()
	for _, k := range geoKeys {
		assert.Contains(t, mp, k)
	}
	assert.Nil(t, mp[KeyInsideBoundingBox])
	assert.Equal(t, "37.77,-122.41", mp[KeyAroundLatLng])

	cfg = m.Update(Update{Geo: &box})
	mp = cfg.Map()
	assert.NotNil(t, mp[KeyInsideBoundingBox])
	assert.Nil(t, mp[KeyAroundLatLng])
	assert.Nil(t, mp[KeyAroundRadius])
	assert.Nil(t, mp[KeyAroundPrecision])
	assert.Nil(t, mp[KeyMinimumAroundRadius])
}

func TestFilterThenGeoPreservesBoth(t *testing.T) {
	m := NewMerger()
	m.Update(Update{Filters: Ptr("categories:'Housing'")})
	cfg := m.Update(Update{Geo: &box})

	f, ok := cfg.Filters()
	assert.True(t, ok)
	assert.Equal(t, "categories:'Housing'", f)
	assert.NotEmpty(t, cfg.Params().InsideBoundingBox)
}

func TestGeoThenFilterPreservesBoth(t *testing.T) {
	m := NewMerger()
	m.Update(Update{Geo: &radius})
	cfg := m.Update(Update{Filters: Ptr("categories:'Housing'")})

	assert.Equal(t, "categories:'Housing'", cfg.Params().Filters)
	assert.Equal(t, "37.77,-122.41", cfg.Params().AroundLatLng)
}

func TestConcurrentProducersNeverClobber(t *testing.T) {
	for range 50 {
		m := NewMerger()
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.Update(Update{Filters: Ptr("eligibilities:'Seniors'")})
		}()
		go func() {
			defer wg.Done()
			m.Update(Update{Geo: &radius})
		}()
		go func() {
			defer wg.Done()
			m.Update(Update{Query: Ptr("shelter"), Page: Ptr(0)})
		}()
		wg.Wait()

		p := m.Current().Params()
		assert.Equal(t, "eligibilities:'Seniors'", p.Filters)
		assert.Equal(t, "shelter", p.Query)
		assert.Equal(t, "37.77,-122.41", p.AroundLatLng)
		assertExclusive(t, m.Current())
	}
}

func TestEmptyValueOverwrites(t *testing.T) {
	m := NewMerger()
	m.Update(Update{Filters: Ptr("categories:'Food'"), Query: Ptr("soup"), Page: Ptr(3)})
	cfg := m.Update(Update{Filters: Ptr(""), Query: Ptr(""), Page: Ptr(0)})

	mp := cfg.Map()
	assert.Contains(t, mp, KeyFilters)
	assert.Equal(t, "", mp[KeyFilters])
	assert.Equal(t, "", mp[KeyQuery])
	assert.Equal(t, 0, mp[KeyPage])
}

func TestAbsentFieldLeavesValue(t *testing.T) {
	m := NewMerger()
	m.Update(Update{Filters: Ptr("categories:'Food'")})
	cfg := m.Update(Update{Query: Ptr("soup")})
	assert.Equal(t, "categories:'Food'", cfg.Params().Filters)
}

func TestResetClearsEverything(t *testing.T) {
	m := NewMerger()
	m.Update(Update{Filters: Ptr("x:'y'"), Geo: &box, Zoom: Ptr(12)})

	m.Reset()

	assert.Empty(t, m.Current().Map())
	_, ok := m.Current().Geo()
	assert.False(t, ok)
	assert.Equal(t, model.Params{}, m.Current().Params())
}

func TestZoomIsNotServerVisible(t *testing.T) {
	m := NewMerger()
	cfg := m.Update(Update{Zoom: Ptr(14)})
	z, ok := cfg.Zoom()
	assert.True(t, ok)
	assert.Equal(t, 14, z)
	assert.Equal(t, model.Params{}, cfg.Params())
}

func TestSnapshotsAreImmutable(t *testing.T) {
	m := NewMerger()
	facets := []string{"categories"}
	before := m.Update(Update{Facets: &facets})
	facets[0] = "mutated"

	p := before.Params()
	p.Facets[0] = "also mutated"

	m.Update(Update{Query: Ptr("later")})
	assert.Equal(t, []string{"categories"}, before.Params().Facets)
	assert.False(t, before.Has(KeyQuery))
}

func TestUpdateEmpty(t *testing.T) {
	assert.True(t, Update{}.Empty())
	assert.False(t, Update{Filters: Ptr("")}.Empty())
}
