package geo

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "San Francisco", "slug": "sf"},
     "geometry": {"type": "Polygon", "coordinates": [[[-122.52,37.70],[-122.35,37.70],[-122.35,37.83],[-122.52,37.83],[-122.52,37.70]]]}},
    {"type": "Feature", "properties": {"name": "Oakland"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[-122.33,37.73],[-122.11,37.73],[-122.11,37.88],[-122.33,37.88],[-122.33,37.73]]]]}},
    {"type": "Feature", "properties": {"name": "Civic Center"},
     "geometry": {"type": "Point", "coordinates": [-122.41,37.78]}}
  ]
}`

func TestReadRegions(t *testing.T) {
	rs, err := ReadRegions(strings.NewReader(regionsJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"Oakland", "San Francisco"}, rs.Names())

	sf, err := rs.Polygon("SF")
	require.NoError(t, err)
	assert.True(t, planar.MultiPolygonContains(sf, orb.Point{-122.41, 37.78}))
	assert.False(t, planar.MultiPolygonContains(sf, orb.Point{-122.27, 37.80}))

	_, err = rs.Polygon("civic center")
	assert.Error(t, err, "point features are not regions")
}

func TestRegionsAll(t *testing.T) {
	rs, err := ReadRegions(strings.NewReader(regionsJSON))
	require.NoError(t, err)

	all := rs.All()
	require.Len(t, all, 2)
	assert.True(t, planar.MultiPolygonContains(all, orb.Point{-122.27, 37.80}))
	assert.True(t, planar.MultiPolygonContains(all, orb.Point{-122.41, 37.78}))
}

func TestReadRegionsInvalid(t *testing.T) {
	_, err := ReadRegions(strings.NewReader(`{"type":`))
	assert.Error(t, err)
}
