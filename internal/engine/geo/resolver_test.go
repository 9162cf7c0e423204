package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodir/internal/model"
)

func TestSelectLocationEmitsRadius(t *testing.T) {
	r := NewResolver(ResolverOptions{}, nil)
	center := orb.Point{-122.41, 37.77}

	c := r.SelectLocation(center, model.Miles(2))

	assert.Equal(t, KindRadius, c.Kind)
	assert.Equal(t, center, c.Center)
	assert.Equal(t, model.Radius{Meters: 3219}, c.Radius)
	assert.Equal(t, DefaultPrecision, c.Precision)
	assert.Equal(t, DefaultMinimumRadius, c.MinimumRadius)
	assert.Equal(t, 13, r.Zoom())
	assert.Equal(t, c, r.Current())
}

func TestSelectLocationAllRadius(t *testing.T) {
	r := NewResolver(ResolverOptions{}, nil)
	c := r.SelectLocation(orb.Point{1, 2}, model.DistanceAll)
	assert.True(t, c.Radius.All)
}

func TestSearchAreaNormalisesCorners(t *testing.T) {
	r := NewResolver(ResolverOptions{}, nil)
	ne := orb.Point{-122.35, 37.81}
	sw := orb.Point{-122.52, 37.70}

	a := r.SearchArea(Corners{NE: ne, SW: sw})
	b := r.SearchArea(Corners{NE: sw, SW: ne})

	require.Equal(t, KindBoundingBox, a.Kind)
	assert.Equal(t, a, b)
	assert.Equal(t, sw, a.Box.Min)
	assert.Equal(t, ne, a.Box.Max)
}

func TestLastVariantWins(t *testing.T) {
	r := NewResolver(ResolverOptions{}, nil)
	r.SearchArea(Corners{NE: orb.Point{1, 1}, SW: orb.Point{0, 0}})
	c := r.SelectLocation(orb.Point{0.5, 0.5}, model.Miles(1))

	var p model.Params
	c.Apply(&p)
	assert.Nil(t, p.InsideBoundingBox)
	assert.NotEmpty(t, p.AroundLatLng)
}

func TestResetWithoutDefaultLocation(t *testing.T) {
	r := NewResolver(ResolverOptions{}, nil)
	r.SelectLocation(orb.Point{1, 2}, model.Miles(1))
	r.SetZoom(16)

	c := r.Reset()

	assert.Equal(t, KindNone, c.Kind)
	assert.Equal(t, DefaultZoom, r.Zoom())
}

func TestResetRederivesDefaultLocation(t *testing.T) {
	home := orb.Point{-122.41, 37.77}
	r := NewResolver(ResolverOptions{DefaultLocation: &home, DefaultRadius: model.Miles(3)}, nil)
	r.SearchArea(Corners{NE: orb.Point{1, 1}, SW: orb.Point{0, 0}})

	c := r.Reset()

	assert.Equal(t, KindRadius, c.Kind)
	assert.Equal(t, home, c.Center)
	assert.Equal(t, 4828, c.Radius.Meters)
}

func TestZoomFor(t *testing.T) {
	r := NewResolver(ResolverOptions{}, nil)

	assert.Equal(t, 15, r.ZoomFor(model.Miles(0.5)))
	assert.Equal(t, 14, r.ZoomFor(model.Miles(1)))
	assert.Equal(t, 13, r.ZoomFor(model.Miles(2)))
	assert.Equal(t, 12, r.ZoomFor(model.Miles(3)))

	// Unknown radius: current zoom plus the delta.
	assert.Equal(t, DefaultZoom+ZoomDelta, r.ZoomFor(model.Miles(7)))
	assert.Equal(t, DefaultZoom+ZoomDelta, r.ZoomFor(model.DistanceAll))

	r.SetZoom(MaxZoom)
	assert.Equal(t, MaxZoom, r.ZoomFor(model.Miles(7)))
}

func TestSetZoomClamps(t *testing.T) {
	r := NewResolver(ResolverOptions{MaxZoom: 15}, nil)
	r.SetZoom(40)
	assert.Equal(t, 15, r.Zoom())
	r.SetZoom(-3)
	assert.Equal(t, 1, r.Zoom())
}

func TestDefaultKeepsZoom(t *testing.T) {
	home := orb.Point{-122.41, 37.77}
	r := NewResolver(ResolverOptions{DefaultLocation: &home}, nil)
	r.SelectLocation(orb.Point{1, 2}, model.Miles(0.5))

	c := r.Default()

	assert.Equal(t, home, c.Center)
	assert.True(t, c.Radius.All)
	assert.Equal(t, 15, r.Zoom())
}

func TestDefaultWithinNarrowsDefaultLocation(t *testing.T) {
	home := orb.Point{-122.41, 37.77}
	r := NewResolver(ResolverOptions{DefaultLocation: &home, DefaultRadius: model.Miles(3)}, nil)

	c := r.DefaultWithin(model.Miles(1))
	assert.Equal(t, KindRadius, c.Kind)
	assert.Equal(t, home, c.Center)
	assert.Equal(t, 1609, c.Radius.Meters)
	assert.Equal(t, 14, r.Zoom())

	c = r.DefaultWithin(model.DistanceAll)
	assert.Equal(t, 4828, c.Radius.Meters)

	r.DefaultWithin(model.Miles(2))
	c = r.Default()
	assert.Equal(t, 4828, c.Radius.Meters)
}

func TestDefaultWithinWithoutDefaultLocation(t *testing.T) {
	r := NewResolver(ResolverOptions{}, nil)
	r.SelectLocation(orb.Point{1, 2}, model.Miles(1))

	c := r.DefaultWithin(model.Miles(1))
	assert.Equal(t, KindNone, c.Kind)
	assert.Equal(t, c, r.Current())
}
