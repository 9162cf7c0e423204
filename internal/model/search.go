package model

import (
	"encoding/json"
	"fmt"
	"math"
)

const MetersPerMile = 1609.344

// Distance is the radius a user picks in the filter panel: a number of miles
// or "all".
type Distance struct {
	Miles float64
	All   bool
}

var DistanceAll = Distance{All: true}

func Miles(m float64) Distance { return Distance{Miles: m} }

// Meters converts the distance to whole meters. The "all" distance has no
// meter value.
func (d Distance) Meters() int {
	if d.All {
		return 0
	}
	return int(math.Round(d.Miles * MetersPerMile))
}

func (d Distance) String() string {
	if d.All {
		return "all"
	}
	return fmt.Sprintf("%gmi", d.Miles)
}

func (d Distance) MarshalJSON() ([]byte, error) {
	if d.All {
		return []byte(`"all"`), nil
	}
	return json.Marshal(d.Miles)
}

func (d *Distance) UnmarshalJSON(data []byte) error {
	if string(data) == `"all"` {
		*d = DistanceAll
		return nil
	}
	var m float64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("distance: want miles or \"all\": %w", err)
	}
	if m <= 0 {
		return fmt.Errorf("distance: %g miles is not positive", m)
	}
	*d = Miles(m)
	return nil
}

// Radius is the backend's aroundRadius: meters, or the "all" sentinel.
type Radius struct {
	Meters int
	All    bool
}

func (r Radius) MarshalJSON() ([]byte, error) {
	if r.All {
		return []byte(`"all"`), nil
	}
	return json.Marshal(r.Meters)
}

func (r *Radius) UnmarshalJSON(data []byte) error {
	if string(data) == `"all"` {
		*r = Radius{All: true}
		return nil
	}
	var m int
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("aroundRadius: %w", err)
	}
	*r = Radius{Meters: m}
	return nil
}

// BoundingBox is the backend's insideBoundingBox entry, ordered
// [neLat, swLng, swLat, neLng].
type BoundingBox [4]float64

// Params is the parameter bag of a single backend query. Geo fields mirror
// the names the backend expects; at most one geo variant is populated.
type Params struct {
	Query               string        `json:"query"`
	Filters             string        `json:"filters"`
	HitsPerPage         int           `json:"hitsPerPage"`
	Page                int           `json:"page"`
	Facets              []string      `json:"facets,omitempty"`
	InsideBoundingBox   []BoundingBox `json:"insideBoundingBox,omitempty"`
	AroundLatLng        string        `json:"aroundLatLng,omitempty"`
	AroundRadius        *Radius       `json:"aroundRadius,omitempty"`
	AroundPrecision     int           `json:"aroundPrecision,omitempty"`
	MinimumAroundRadius int           `json:"minimumAroundRadius,omitempty"`
}

// Request is one entry of a multi-query request list.
type Request struct {
	IndexName string `json:"indexName"`
	Params    Params `json:"params"`
	// Label names the widget that issued the request. Not sent to the backend.
	Label string `json:"-"`
}

// Result is the backend's answer to one Request.
type Result struct {
	Hits             []Hit                     `json:"hits"`
	NbHits           int                       `json:"nbHits"`
	Page             int                       `json:"page"`
	NbPages          int                       `json:"nbPages"`
	HitsPerPage      int                       `json:"hitsPerPage"`
	ProcessingTimeMS int                       `json:"processingTimeMS"`
	Facets           map[string]map[string]int `json:"facets,omitempty"`
}

// Response holds one Result per Request, in request order.
type Response struct {
	Results []Result `json:"results"`
}
