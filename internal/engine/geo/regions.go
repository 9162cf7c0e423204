package geo

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// regionNameKeys are the feature properties a region is indexed by.
var regionNameKeys = []string{"name", "NAME", "slug", "ADMIN", "ISO_A2", "ISO_A3"}

// Regions indexes the polygons of a GeoJSON FeatureCollection, such as the
// service area of a directory, by name.
type Regions struct {
	features map[string]*geojson.Feature // key: lowercase name
	names    []string
}

// LoadRegions reads a FeatureCollection from path.
func LoadRegions(path string) (*Regions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening regions: %w", err)
	}
	defer f.Close()
	return ReadRegions(f)
}

// ReadRegions parses a FeatureCollection. Features without a polygon
// geometry are ignored.
func ReadRegions(r io.Reader) (*Regions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading regions: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	rs := &Regions{features: make(map[string]*geojson.Feature)}
	for _, f := range fc.Features {
		if _, ok := asMultiPolygon(f.Geometry); !ok {
			continue
		}
		first := ""
		for _, k := range regionNameKeys {
			v, ok := f.Properties[k].(string)
			if !ok || v == "" {
				continue
			}
			if first == "" {
				first = v
			}
			rs.features[strings.ToLower(v)] = f
		}
		if first != "" {
			rs.names = append(rs.names, first)
		}
	}
	slices.Sort(rs.names)
	rs.names = slices.Compact(rs.names)
	return rs, nil
}

// Names returns the canonical region names, sorted.
func (rs *Regions) Names() []string { return rs.names }

// Polygon returns the region matching name, case-insensitively.
func (rs *Regions) Polygon(name string) (orb.MultiPolygon, error) {
	f, ok := rs.features[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("region %q not found", name)
	}
	mp, _ := asMultiPolygon(f.Geometry)
	return mp, nil
}

// All merges every region into one MultiPolygon.
func (rs *Regions) All() orb.MultiPolygon {
	var out orb.MultiPolygon
	seen := make(map[*geojson.Feature]bool)
	for _, name := range rs.names {
		f := rs.features[strings.ToLower(name)]
		if seen[f] {
			continue
		}
		seen[f] = true
		mp, _ := asMultiPolygon(f.Geometry)
		out = append(out, mp...)
	}
	return out
}

func asMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch g := g.(type) {
	case orb.MultiPolygon:
		return g, true
	case orb.Polygon:
		return orb.MultiPolygon{g}, true
	default:
		return nil, false
	}
}
