// Package searchconfig owns the merged query configuration every producer
// writes into and the outbound query reads from.
package searchconfig

import (
	"slices"
	"sync"

	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/model"
)

// Configuration keys as the backend names them.
const (
	KeyQuery               = "query"
	KeyFilters             = "filters"
	KeyPage                = "page"
	KeyHitsPerPage         = "hitsPerPage"
	KeyFacets              = "facets"
	KeyInsideBoundingBox   = "insideBoundingBox"
	KeyAroundLatLng        = "aroundLatLng"
	KeyAroundRadius        = "aroundRadius"
	KeyAroundPrecision     = "aroundPrecision"
	KeyMinimumAroundRadius = "minimumAroundRadius"
	KeyZoom                = "zoom"
)

var geoKeys = []string{
	KeyInsideBoundingBox,
	KeyAroundLatLng,
	KeyAroundRadius,
	KeyAroundPrecision,
	KeyMinimumAroundRadius,
}

// Update is a partial configuration. A nil field leaves the stored value
// alone; a non-nil field overwrites it, including with a zero value. The geo
// constraint is a single field so a variant is always swapped as a whole.
type Update struct {
	Query       *string
	Filters     *string
	Page        *int
	HitsPerPage *int
	Facets      *[]string
	Geo         *geo.Constraint
	// Zoom is presentational and never reaches the backend.
	Zoom *int
}

// Ptr returns a pointer to v, for building Updates inline.
func Ptr[T any](v T) *T { return &v }

// Empty reports whether the update carries no keys.
func (u Update) Empty() bool {
	return u.Query == nil && u.Filters == nil && u.Page == nil && u.HitsPerPage == nil &&
		u.Facets == nil && u.Geo == nil && u.Zoom == nil
}

// Config is an immutable snapshot of the merged configuration.
type Config struct {
	params  model.Params
	geo     geo.Constraint
	zoom    int
	present map[string]struct{}
}

// Has reports whether key was written since the last reset.
func (c Config) Has(key string) bool {
	_, ok := c.present[key]
	return ok
}

// Keys lists the present keys, sorted.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.present))
	for k := range c.present {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Params returns the server-visible parameters.
func (c Config) Params() model.Params {
	p := c.params
	p.Facets = slices.Clone(c.params.Facets)
	p.InsideBoundingBox = slices.Clone(c.params.InsideBoundingBox)
	if c.params.AroundRadius != nil {
		r := *c.params.AroundRadius
		p.AroundRadius = &r
	}
	return p
}

// Geo returns the active geo constraint; ok is false if no producer set one.
func (c Config) Geo() (geo.Constraint, bool) {
	if !c.Has(KeyAroundLatLng) {
		return geo.None(), false
	}
	return c.geo, true
}

func (c Config) Zoom() (int, bool) {
	return c.zoom, c.Has(KeyZoom)
}

// Filters returns the filter expression and whether the key is present.
func (c Config) Filters() (string, bool) {
	return c.params.Filters, c.Has(KeyFilters)
}

// Map renders the configuration as a key/value mapping. Only present keys
// appear; geo keys of the inactive variant map to nil.
func (c Config) Map() map[string]any {
	m := make(map[string]any, len(c.present))
	p := c.Params()
	for k := range c.present {
		switch k {
		case KeyQuery:
			m[k] = p.Query
		case KeyFilters:
			m[k] = p.Filters
		case KeyPage:
			m[k] = p.Page
		case KeyHitsPerPage:
			m[k] = p.HitsPerPage
		case KeyFacets:
			m[k] = p.Facets
		case KeyZoom:
			m[k] = c.zoom
		}
	}
	if c.Has(KeyAroundLatLng) {
		for k, v := range c.geo.Fields() {
			m[k] = v
		}
	}
	return m
}

func (c Config) clone() Config {
	n := c
	n.params = c.Params()
	n.present = make(map[string]struct{}, len(c.present)+len(geoKeys))
	for k := range c.present {
		n.present[k] = struct{}{}
	}
	return n
}

func (c *Config) mark(key string) { c.present[key] = struct{}{} }

// Merger accumulates partial updates from every producer into one Config.
// Updates are shallow merges applied in arrival order; the merger never
// clears a key on its own.
type Merger struct {
	mu  sync.RWMutex
	cfg Config
}

func NewMerger() *Merger {
	return &Merger{cfg: Config{present: map[string]struct{}{}}}
}

// Update merges u into the stored configuration and returns the result.
func (m *Merger) Update(u Update) Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg.clone()
	if u.Query != nil {
		next.params.Query = *u.Query
		next.mark(KeyQuery)
	}
	if u.Filters != nil {
		next.params.Filters = *u.Filters
		next.mark(KeyFilters)
	}
	if u.Page != nil {
		next.params.Page = *u.Page
		next.mark(KeyPage)
	}
	if u.HitsPerPage != nil {
		next.params.HitsPerPage = *u.HitsPerPage
		next.mark(KeyHitsPerPage)
	}
	if u.Facets != nil {
		next.params.Facets = slices.Clone(*u.Facets)
		next.mark(KeyFacets)
	}
	if u.Geo != nil {
		next.geo = *u.Geo
		next.geo.Apply(&next.params)
		for _, k := range geoKeys {
			next.mark(k)
		}
	}
	if u.Zoom != nil {
		next.zoom = *u.Zoom
		next.mark(KeyZoom)
	}

	m.cfg = next
	return next
}

// Reset clears the configuration to an empty mapping.
func (m *Merger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = Config{present: map[string]struct{}{}}
}

// Current returns the latest merged configuration.
func (m *Merger) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}
