package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodir/internal/engine/dispatch"
	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/model"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests [][]model.Request
	facets   []model.FacetValue
	facetErr error
	err      error
	gate     chan struct{}
}

func (f *fakeBackend) Search(ctx context.Context, reqs []model.Request) (*model.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, reqs)
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	res := &model.Response{}
	for range reqs {
		res.Results = append(res.Results, model.Result{Hits: []model.Hit{}})
	}
	return res, nil
}

func (f *fakeBackend) Facets(ctx context.Context, attribute, filters string) ([]model.FacetValue, error) {
	return f.facets, f.facetErr
}

func (f *fakeBackend) last() model.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[len(f.requests)-1]
	return reqs[0].Params
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var categories = []model.FacetValue{
	{Value: "Housing", Slug: "housing", Count: 4},
	{Value: "Food", Slug: "food", Count: 3},
}

type fakePlaces struct{}

func (fakePlaces) Predict(ctx context.Context, input string) ([]geo.Prediction, error) {
	return []geo.Prediction{{ID: "N1", Description: "Mission District"}}, nil
}

func (fakePlaces) Details(ctx context.Context, id string) (orb.Point, error) {
	if id != "N1" {
		return orb.Point{}, errors.New("unknown")
	}
	return orb.Point{-122.41, 37.76}, nil
}

// tuesday afternoon, for the hours filter
var now = time.Date(2026, 10, 13, 14, 47, 0, 0, time.UTC)

func newSession(t *testing.T, b *fakeBackend) *Session {
	t.Helper()
	b.facets = categories
	return New("test", Options{Now: func() time.Time { return now }}, Deps{
		Backend:    b,
		Categories: NewCategoryResolver(b, time.Minute),
		Places:     fakePlaces{},
	})
}

func TestNewSessionStartsWithExplicitEmptyFilters(t *testing.T) {
	s := newSession(t, &fakeBackend{})
	f, ok := s.Config().Filters()
	assert.True(t, ok)
	assert.Equal(t, "", f)
	_, ok = s.Category()
	assert.False(t, ok)
}

func TestApplyThenClearFilters(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)

	s.Filters().TogglePendingEligibility("Age 0-2")
	assert.Equal(t, 1, s.Filters().PendingChangeCount())
	cfg := s.ApplyFilters()

	f, _ := cfg.Filters()
	assert.Contains(t, f, "Age 0-2")

	cfg = s.ClearFilters()
	f, ok := cfg.Filters()
	assert.True(t, ok)
	assert.Equal(t, "", f)
	assert.Contains(t, cfg.Map(), "filters")

	_, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", b.last().Filters)
}

func TestPendingEditsDoNotReachTheQuery(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)

	s.Filters().TogglePendingEligibility("Seniors")
	s.Filters().SetPendingHours(filters.HoursOpenNow)

	_, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", b.last().Filters)

	s.ApplyFilters()
	_, err = s.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "open_times:'Tu-14:30' AND (eligibilities:'Seniors')", b.last().Filters)
}

func TestCategorySwitchResetsContext(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)
	ctx := context.Background()

	_, err := s.ChangeCategory(ctx, "housing")
	require.NoError(t, err)
	s.SetQuery("shelter")
	s.Filters().TogglePendingEligibility("Seniors")
	s.ApplyFilters()
	s.SearchThisArea(geo.Corners{NE: orb.Point{-122.35, 37.81}, SW: orb.Point{-122.52, 37.70}})

	_, err = s.Search(ctx)
	require.NoError(t, err)
	p := b.last()
	assert.Equal(t, "categories:'Housing' AND (eligibilities:'Seniors')", p.Filters)
	assert.NotEmpty(t, p.InsideBoundingBox)

	cat, err := s.ChangeCategory(ctx, "food")
	require.NoError(t, err)
	assert.Equal(t, "Food", cat.Name)

	_, err = s.Search(ctx)
	require.NoError(t, err)
	p = b.last()
	assert.Equal(t, "categories:'Food'", p.Filters)
	assert.NotContains(t, p.Filters, "Housing")
	assert.Empty(t, p.InsideBoundingBox)
	assert.Empty(t, p.AroundLatLng)
	assert.Equal(t, "", p.Query)
	assert.Equal(t, 0, p.Page)
	assert.Equal(t, 0, s.Filters().Applied().ChangeCount())
}

func TestCategorySwitchDiscardsInFlightQuery(t *testing.T) {
	b := &fakeBackend{gate: make(chan struct{})}
	s := newSession(t, b)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := s.Search(ctx)
		errc <- err
	}()
	require.Eventually(t, func() bool { return b.calls() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.ChangeCategory(ctx, "food")
	require.NoError(t, err)
	close(b.gate)

	assert.ErrorIs(t, <-errc, dispatch.ErrStaleContext)
}

func TestCategorySwitchForcesFreshQuery(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)
	ctx := context.Background()

	_, err := s.ChangeCategory(ctx, "food")
	require.NoError(t, err)
	_, err = s.Search(ctx)
	require.NoError(t, err)
	_, err = s.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls())

	_, err = s.ChangeCategory(ctx, "food")
	require.NoError(t, err)
	_, err = s.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b.calls())
}

func TestUnknownCategory(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)
	_, err := s.ChangeCategory(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
	assert.Empty(t, s.Loading())
}

func TestAllCategories(t *testing.T) {
	s := newSession(t, &fakeBackend{})
	cat, err := s.ChangeCategory(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, AllCategories, cat)
	got, ok := s.Category()
	assert.True(t, ok)
	assert.Equal(t, AllCategories, got)
}

func TestSelectPlaceAndApplyLocation(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)
	ctx := context.Background()

	preds, ok := s.Predict(ctx, "mission")
	require.True(t, ok)
	require.Len(t, preds, 1)

	pt := s.SelectPlace(ctx, preds[0].ID, preds[0].Description)
	require.NotNil(t, pt)
	s.Filters().SetPendingDistance(model.Miles(1))
	assert.Equal(t, 1, s.Filters().PendingChangeCount())

	// A bounding box set before applying must be replaced, not merged.
	s.SearchThisArea(geo.Corners{NE: orb.Point{1, 1}, SW: orb.Point{0, 0}})
	cfg := s.ApplyFilters()

	p := cfg.Params()
	assert.Nil(t, p.InsideBoundingBox)
	assert.Equal(t, "37.76,-122.41", p.AroundLatLng)
	assert.Equal(t, 1609, p.AroundRadius.Meters)
	assert.Equal(t, 14, s.Zoom())

	cfg = s.ClearFilters()
	_, active := cfg.Geo()
	assert.True(t, active)
	assert.Empty(t, cfg.Params().AroundLatLng)
}

func TestSelectPlaceFailureLeavesPending(t *testing.T) {
	s := newSession(t, &fakeBackend{})
	assert.Nil(t, s.SelectPlace(context.Background(), "missing", "x"))
	assert.Nil(t, s.Filters().Pending().LocationCoords)
}

func TestSearchFailureDegrades(t *testing.T) {
	b := &fakeBackend{err: errors.New("503")}
	s := newSession(t, b)

	res, err := s.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Empty(t, res.Results[0].Hits)
}

func TestFilterAndGeoUpdatesInterleave(t *testing.T) {
	s := newSession(t, &fakeBackend{})
	_, err := s.ChangeCategory(context.Background(), "housing")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Filters().TogglePendingEligibility("Families")
		s.ApplyFilters()
	}()
	go func() {
		defer wg.Done()
		s.SearchThisArea(geo.Corners{NE: orb.Point{1, 1}, SW: orb.Point{0, 0}})
	}()
	wg.Wait()

	p := s.Config().Params()
	assert.True(t, strings.HasPrefix(p.Filters, "categories:'Housing'"))
	assert.Contains(t, p.Filters, "Families")
	assert.NotEmpty(t, p.InsideBoundingBox)
}

var mapArea = geo.Corners{NE: orb.Point{-122.3, 37.8}, SW: orb.Point{-122.5, 37.7}}

func TestApplyKeepsNewerSearchArea(t *testing.T) {
	s := newSession(t, &fakeBackend{})
	ctx := context.Background()

	require.NotNil(t, s.SelectPlace(ctx, "N1", "Mission District"))
	s.ApplyFilters()
	c, _ := s.Config().Geo()
	require.Equal(t, geo.KindRadius, c.Kind)

	s.SearchThisArea(mapArea)
	s.Filters().TogglePendingEligibility("Seniors")
	cfg := s.ApplyFilters()

	c, _ = cfg.Geo()
	assert.Equal(t, geo.KindBoundingBox, c.Kind)
	assert.NotEmpty(t, cfg.Params().InsideBoundingBox)
	assert.Empty(t, cfg.Params().AroundLatLng)
	f, _ := cfg.Filters()
	assert.Contains(t, f, "Seniors")

	// Choosing another radius is a new geo selection again.
	s.Filters().SetPendingDistance(model.Miles(2))
	c, _ = s.ApplyFilters().Geo()
	assert.Equal(t, geo.KindRadius, c.Kind)
	assert.Equal(t, 3219, c.Radius.Meters)
}

func TestRadiusAroundDefaultLocation(t *testing.T) {
	home := orb.Point{-122.41, 37.76}
	s := New("test", Options{Geo: geo.ResolverOptions{DefaultLocation: &home}}, Deps{Backend: &fakeBackend{}})
	c, _ := s.Config().Geo()
	require.True(t, c.Radius.All)

	s.Filters().SetPendingDistance(model.Miles(1))
	assert.Zero(t, s.Filters().PendingChangeCount())
	c, _ = s.ApplyFilters().Geo()
	assert.Equal(t, geo.KindRadius, c.Kind)
	assert.Equal(t, home, c.Center)
	assert.Equal(t, 1609, c.Radius.Meters)

	c, _ = s.ClearFilters().Geo()
	assert.Equal(t, home, c.Center)
	assert.True(t, c.Radius.All)
}

func TestSearchNeverSeesHalfResetContext(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)
	ctx := context.Background()
	_, err := s.ChangeCategory(ctx, "housing")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			slug := "food"
			if i%2 == 0 {
				slug = "housing"
			}
			_, _ = s.ChangeCategory(ctx, slug)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Search(ctx)
		}()
	}
	wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.requests)
	for _, reqs := range b.requests {
		p := reqs[0].Params
		assert.Equal(t, 20, p.HitsPerPage)
		assert.True(t, strings.HasPrefix(p.Filters, "categories:"), p.Filters)
	}
}

func TestRefreshBypassesDedup(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b)
	ctx := context.Background()

	_, err := s.Search(ctx)
	require.NoError(t, err)
	_, err = s.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls())

	s.Refresh()
	_, err = s.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b.calls())
}

func TestRequestCarriesLabelAndIndex(t *testing.T) {
	s := newSession(t, &fakeBackend{})
	reqs := s.Request()
	require.Len(t, reqs, 1)
	assert.Equal(t, "listings", reqs[0].IndexName)
	assert.Equal(t, ResultsLabel, reqs[0].Label)
	assert.Equal(t, 20, reqs[0].Params.HitsPerPage)
	assert.Equal(t, []string{"eligibilities"}, reqs[0].Params.Facets)
}
