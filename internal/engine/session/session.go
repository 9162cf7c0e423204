// Package session ties the filter machine, geo resolver, config merger and
// dispatch guard together for one browsing session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/engine/dispatch"
	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/searchconfig"
	"github.com/rendis/geodir/internal/model"
)

// LocationField is the autocomplete field of the filter panel.
const LocationField = "location"

// ResultsLabel labels the request of the results widget.
const ResultsLabel = "results"

// Options configures a Session.
type Options struct {
	IndexName   string
	HitsPerPage int
	Geo         geo.ResolverOptions
	// Now is the clock used for the hours filter.
	Now func() time.Time
}

// Deps are the collaborators a Session talks to. Places may be nil.
type Deps struct {
	Backend    dispatch.Searcher
	Categories *CategoryResolver
	Places     geo.Places
	Logger     *slog.Logger
}

// Session is the state of one browsing session. It is the only writer of its
// Merger; everything else reads the merged config or goes through a Session
// method.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger

	categories   *CategoryResolver
	autocomplete *geo.Autocomplete

	filters *filters.Machine
	geo     *geo.Resolver
	merger  *searchconfig.Merger
	guard   *dispatch.Guard

	// ctxMu keeps a query from being built while a category change is
	// resetting the merged configuration.
	ctxMu sync.RWMutex

	mu          sync.Mutex
	category    *model.Category
	loading     string // slug being resolved
	categorySeq uint64
	lastAccess  time.Time
}

func New(id string, opts Options, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)
	if opts.HitsPerPage <= 0 {
		opts.HitsPerPage = 20
	}
	if opts.IndexName == "" {
		opts.IndexName = "listings"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		id:         id,
		opts:       opts,
		logger:     logger,
		categories: deps.Categories,
		filters:    filters.NewMachine(),
		geo:        geo.NewResolver(opts.Geo, logger),
		merger:     searchconfig.NewMerger(),
		guard:      dispatch.NewGuard(deps.Backend, logger),
		lastAccess: time.Now(),
	}
	if deps.Places != nil {
		s.autocomplete = geo.NewAutocomplete(deps.Places, logger)
	}
	s.merger.Update(s.baseUpdate())
	return s
}

func (s *Session) ID() string { return s.id }

// baseUpdate is the configuration every page context starts from.
func (s *Session) baseUpdate() searchconfig.Update {
	c := s.geo.Current()
	return searchconfig.Update{
		Query:       searchconfig.Ptr(""),
		Filters:     searchconfig.Ptr(""),
		Page:        searchconfig.Ptr(0),
		HitsPerPage: searchconfig.Ptr(s.opts.HitsPerPage),
		Facets:      searchconfig.Ptr([]string{filters.AttrEligibilities}),
		Geo:         &c,
		Zoom:        searchconfig.Ptr(s.geo.Zoom()),
	}
}

// Touch records activity; LastAccess drives idle expiry.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Filters exposes the filter machine for pending edits.
func (s *Session) Filters() *filters.Machine { return s.filters }

// Config returns the merged configuration.
func (s *Session) Config() searchconfig.Config { return s.merger.Current() }

// Zoom is the map zoom matching the current geo selection.
func (s *Session) Zoom() int { return s.geo.Zoom() }

// Category returns the resolved category context. ok is false while a
// category is still resolving or none was ever chosen.
func (s *Session) Category() (c model.Category, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.category == nil || s.loading != "" {
		return model.Category{}, false
	}
	return *s.category, true
}

// Loading returns the slug being resolved, if any.
func (s *Session) Loading() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ChangeCategory switches the page context to the category named by slug.
// Query text, refinements and geo from the previous context are cleared, in
// that order, before the next query can be built, and any query still in
// flight for the old context is discarded.
func (s *Session) ChangeCategory(ctx context.Context, slug string) (model.Category, error) {
	s.mu.Lock()
	s.categorySeq++
	seq := s.categorySeq
	s.loading = slug
	if slug == "" {
		s.loading = "all"
	}
	s.mu.Unlock()

	cat := AllCategories
	if slug != "" {
		if s.categories == nil {
			return model.Category{}, fmt.Errorf("%w: %q", ErrCategoryNotFound, slug)
		}
		var err error
		cat, err = s.categories.Resolve(ctx, slug)
		if err != nil {
			s.mu.Lock()
			if s.categorySeq == seq {
				s.loading = ""
			}
			s.mu.Unlock()
			return model.Category{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categorySeq != seq {
		// A later navigation owns the page now.
		return cat, nil
	}
	s.loading = ""
	s.category = &cat

	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	s.merger.Reset()
	s.guard.ChangeContext(dispatch.ContextChange{
		ClearQuery: func() {
			s.merger.Update(searchconfig.Update{Query: searchconfig.Ptr(""), Page: searchconfig.Ptr(0)})
		},
		ClearRefinements: func() {
			s.filters.Clear()
			f := s.buildFilters(cat, s.filters.Applied())
			s.merger.Update(searchconfig.Update{
				Filters:     &f,
				HitsPerPage: searchconfig.Ptr(s.opts.HitsPerPage),
				Facets:      searchconfig.Ptr([]string{filters.AttrEligibilities}),
			})
		},
		ResetGeo: func() {
			c := s.geo.Reset()
			s.merger.Update(searchconfig.Update{Geo: &c, Zoom: searchconfig.Ptr(s.geo.Zoom())})
		},
	})
	s.logger.Info("category changed", "category", cat.Name, "slug", cat.Slug)
	return cat, nil
}

func (s *Session) pageFilter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.category == nil {
		return ""
	}
	return s.category.Filter
}

func (s *Session) buildFilters(cat model.Category, applied filters.Snapshot) string {
	return filters.Build(filters.InputFrom(cat.Filter, applied, s.opts.Now()))
}

// SetQuery sets the text query and returns to the first page.
func (s *Session) SetQuery(q string) searchconfig.Config {
	return s.merger.Update(searchconfig.Update{Query: &q, Page: searchconfig.Ptr(0)})
}

func (s *Session) SetPage(page int) searchconfig.Config {
	return s.merger.Update(searchconfig.Update{Page: searchconfig.Ptr(max(page, 0))})
}

// ApplyFilters commits the pending filters. The filter string and, when the
// applied location or radius changed, the geo constraint go out in one
// update. An unchanged location leaves the current geo variant alone, so a
// later "search this area" box survives an eligibility change.
func (s *Session) ApplyFilters() searchconfig.Config {
	before := s.filters.Applied()
	applied := s.filters.Apply()

	f := filters.Build(filters.InputFrom(s.pageFilter(), applied, s.opts.Now()))
	u := searchconfig.Update{Filters: &f, Page: searchconfig.Ptr(0)}
	if geoChanged(before, applied) {
		var c geo.Constraint
		if applied.LocationCoords != nil {
			c = s.geo.SelectLocation(*applied.LocationCoords, applied.DistanceRadius)
		} else {
			c = s.geo.DefaultWithin(applied.DistanceRadius)
		}
		u.Geo = &c
		u.Zoom = searchconfig.Ptr(s.geo.Zoom())
	}
	s.logger.Debug("filters applied", "filters", f, "count", applied.ChangeCount())
	return s.merger.Update(u)
}

func geoChanged(before, after filters.Snapshot) bool {
	if before.DistanceRadius != after.DistanceRadius {
		return true
	}
	if (before.LocationCoords == nil) != (after.LocationCoords == nil) {
		return true
	}
	return after.LocationCoords != nil && !after.LocationCoords.Equal(*before.LocationCoords)
}

// ClearFilters resets pending and applied filters and drops a location
// chosen in the panel.
func (s *Session) ClearFilters() searchconfig.Config {
	before := s.filters.Applied()
	s.filters.Clear()

	f := filters.Build(filters.InputFrom(s.pageFilter(), s.filters.Applied(), s.opts.Now()))
	u := searchconfig.Update{Filters: &f, Page: searchconfig.Ptr(0)}
	if geoChanged(before, s.filters.Applied()) {
		c := s.geo.Default()
		u.Geo = &c
	}
	return s.merger.Update(u)
}

// SearchThisArea restricts results to the visible map.
func (s *Session) SearchThisArea(vp geo.ViewportProvider) searchconfig.Config {
	c := s.geo.SearchArea(vp)
	return s.merger.Update(searchconfig.Update{Geo: &c, Page: searchconfig.Ptr(0)})
}

// SetZoom records the zoom the map shows.
func (s *Session) SetZoom(z int) searchconfig.Config {
	s.geo.SetZoom(z)
	return s.merger.Update(searchconfig.Update{Zoom: searchconfig.Ptr(s.geo.Zoom())})
}

// Predict returns place predictions for the location field. ok is false if
// a newer prediction request superseded this one.
func (s *Session) Predict(ctx context.Context, text string) (preds []geo.Prediction, ok bool) {
	if s.autocomplete == nil {
		return nil, true
	}
	return s.autocomplete.Predict(ctx, LocationField, text)
}

// SelectPlace resolves a prediction and makes it the pending location. It
// returns nil when the lookup failed or was superseded; pending is then left
// untouched.
func (s *Session) SelectPlace(ctx context.Context, predictionID, text string) *orb.Point {
	if s.autocomplete == nil {
		return nil
	}
	pt, ok := s.autocomplete.Details(ctx, LocationField, predictionID)
	if !ok || pt == nil {
		return nil
	}
	s.filters.SetPendingLocation(text, pt)
	return pt
}

// Refresh drops the last result so the next Search reaches the backend even
// if the configuration is unchanged.
func (s *Session) Refresh() {
	s.guard.Invalidate()
}

// Request builds the outbound request list from the merged configuration.
func (s *Session) Request() []model.Request {
	return []model.Request{{
		IndexName: s.opts.IndexName,
		Params:    s.merger.Current().Params(),
		Label:     ResultsLabel,
	}}
}

// Search dispatches the current configuration. Backend failures degrade to
// an empty response; dispatch.ErrStaleContext is returned when the category
// changed while the query was in flight.
func (s *Session) Search(ctx context.Context) (*model.Response, error) {
	s.Touch()
	s.ctxMu.RLock()
	reqs := s.Request()
	epoch := s.guard.Epoch()
	s.ctxMu.RUnlock()

	res, err := s.guard.DispatchAt(ctx, epoch, reqs)
	if errors.Is(err, dispatch.ErrStaleContext) || errors.Is(err, context.Canceled) {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("search failed", "error", err)
		return emptyResponse(reqs), nil
	}
	return res, nil
}

func emptyResponse(reqs []model.Request) *model.Response {
	res := &model.Response{Results: make([]model.Result, len(reqs))}
	for i, r := range reqs {
		res.Results[i] = model.Result{Hits: []model.Hit{}, Page: r.Params.Page, HitsPerPage: r.Params.HitsPerPage}
	}
	return res
}
