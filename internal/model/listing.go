package model

// Listing represents a directory entry (a service, program or place) as stored
// in the search index.
type Listing struct {
	ObjectID      string   `json:"objectID"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Address       string   `json:"address"`
	City          string   `json:"city"`
	PostalCode    string   `json:"postal_code"`
	Phone         string   `json:"phone"`
	Website       string   `json:"website"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Categories    []string `json:"categories"`
	Eligibilities []string `json:"eligibilities"`
	// Schedule holds weekly opening intervals, e.g. "Mo 09:00-17:00".
	Schedule []string `json:"schedule"`
	// OpenTimes is the 30-minute slot expansion of Schedule ("Mo-09:00", "Mo-09:30", ...).
	// Filters on open_times match against it.
	OpenTimes []string `json:"open_times,omitempty"`
}

// GeoLoc is the backend's coordinate representation of a hit.
type GeoLoc struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RankingInfo carries per-hit ranking data the backend reports.
type RankingInfo struct {
	GeoDistance int `json:"geoDistance,omitempty"` // meters from aroundLatLng
}

// Hit is a single search result.
type Hit struct {
	Listing
	GeoLoc      GeoLoc       `json:"_geoloc"`
	RankingInfo *RankingInfo `json:"_rankingInfo,omitempty"`
}

// Attributes returns the filterable attribute values of the listing, keyed by
// attribute name.
func (l *Listing) Attributes() map[string][]string {
	return map[string][]string{
		"categories":    l.Categories,
		"eligibilities": l.Eligibilities,
		"open_times":    l.OpenTimes,
		"city":          {l.City},
	}
}
