package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/engine/session"
	"github.com/rendis/geodir/internal/logging"
	"github.com/rendis/geodir/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router http.Handler
	store  *Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	backend, err := search.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), 2, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	_, err = backend.InsertBatch(context.Background(), []model.Listing{
		{ObjectID: "1", Name: "Hope Shelter", Lat: 37.7749, Lng: -122.4194, Categories: []string{"Housing"}, Eligibilities: []string{"Seniors"}},
		{ObjectID: "2", Name: "Mission Pantry", Lat: 37.7599, Lng: -122.4148, Categories: []string{"Food"}, Eligibilities: []string{"Age 0-2"}},
		{ObjectID: "3", Name: "Oakland Kitchen", Lat: 37.8044, Lng: -122.2711, Categories: []string{"Food"}},
	})
	require.NoError(t, err)

	logger := logging.Discard()
	cats := session.NewCategoryResolver(backend, time.Minute)
	store := NewStore(time.Hour, func(id string) *session.Session {
		return session.New(id, session.Options{IndexName: "listings"}, session.Deps{
			Backend:    backend,
			Categories: cats,
			Logger:     logger,
		})
	}, logger)
	srv := NewServer(store, backend, cats, logger, ServerOptions{Metrics: true})
	return &testAPI{router: srv.Router(), store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type state struct {
	ID       string          `json:"id"`
	Category *model.Category `json:"category"`
	Pending  struct {
		SelectedEligibilities []string `json:"selectedEligibilities"`
		ChangeCount           int      `json:"changeCount"`
	} `json:"pending"`
	PendingChangeCount int            `json:"pendingChangeCount"`
	Config             map[string]any `json:"config"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) newSession(t *testing.T) string {
	w := a.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[state](t, w).ID
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownSession(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFilterPanelFlow(t *testing.T) {
	a := newTestAPI(t)
	id := a.newSession(t)
	base := "/api/sessions/" + id

	w := a.do(t, http.MethodPatch, base+"/filters/pending", map[string]any{
		"toggleEligibilities": []string{"Age 0-2"},
		"distanceRadius":      2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[state](t, w)
	assert.Equal(t, 1, st.PendingChangeCount)
	assert.Equal(t, "", st.Config["filters"])

	w = a.do(t, http.MethodPost, base+"/filters/apply", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[state](t, w)
	assert.Contains(t, st.Config["filters"], "Age 0-2")

	w = a.do(t, http.MethodGet, base+"/search", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[model.Response](t, w)
	require.Len(t, res.Results, 1)
	require.Len(t, res.Results[0].Hits, 1)
	assert.Equal(t, "Mission Pantry", res.Results[0].Hits[0].Name)

	w = a.do(t, http.MethodPost, base+"/filters/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[state](t, w)
	assert.Contains(t, st.Config, "filters")
	assert.Equal(t, "", st.Config["filters"])
}

func TestPendingValidation(t *testing.T) {
	a := newTestAPI(t)
	base := "/api/sessions/" + a.newSession(t)

	w := a.do(t, http.MethodPatch, base+"/filters/pending", map[string]any{"hours": "sometimes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPatch, base+"/filters/pending", map[string]any{"location": map[string]any{"lat": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPatch, base+"/filters/pending", map[string]any{"distanceRadius": "far"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCategoryAndArea(t *testing.T) {
	a := newTestAPI(t)
	base := "/api/sessions/" + a.newSession(t)

	w := a.do(t, http.MethodPut, base+"/category", map[string]string{"slug": "food"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[state](t, w)
	require.NotNil(t, st.Category)
	assert.Equal(t, "Food", st.Category.Name)
	assert.Equal(t, "categories:'Food'", st.Config["filters"])

	w = a.do(t, http.MethodPost, base+"/geo/area", map[string]any{
		"ne": map[string]float64{"lat": 37.81, "lng": -122.35},
		"sw": map[string]float64{"lat": 37.70, "lng": -122.52},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st = decode[state](t, w)
	assert.NotNil(t, st.Config["insideBoundingBox"])
	assert.Nil(t, st.Config["aroundLatLng"])

	w = a.do(t, http.MethodGet, base+"/search", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[model.Response](t, w)
	require.Len(t, res.Results[0].Hits, 1)
	assert.Equal(t, "2", res.Results[0].Hits[0].ObjectID)

	w = a.do(t, http.MethodPut, base+"/category", map[string]string{"slug": "housing"})
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[state](t, w)
	assert.Equal(t, "categories:'Housing'", st.Config["filters"])
	assert.Nil(t, st.Config["insideBoundingBox"])

	w = a.do(t, http.MethodPut, base+"/category", map[string]string{"slug": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAreaValidation(t *testing.T) {
	a := newTestAPI(t)
	base := "/api/sessions/" + a.newSession(t)
	w := a.do(t, http.MethodPost, base+"/geo/area", map[string]any{
		"ne": map[string]float64{"lat": 95, "lng": 0},
		"sw": map[string]float64{"lat": 0, "lng": 0},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryAndPage(t *testing.T) {
	a := newTestAPI(t)
	base := "/api/sessions/" + a.newSession(t)

	w := a.do(t, http.MethodPut, base+"/page", map[string]int{"page": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode[state](t, w).Config["page"])

	w = a.do(t, http.MethodPut, base+"/query", map[string]string{"query": "pantry"})
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[state](t, w)
	assert.Equal(t, "pantry", st.Config["query"])
	assert.Equal(t, 0.0, st.Config["page"])

	w = a.do(t, http.MethodPut, base+"/page", map[string]int{"page": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCategoriesAndListings(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Categories []model.FacetValue `json:"categories"`
	}](t, w)
	assert.Equal(t, []model.FacetValue{
		{Value: "Food", Slug: "food", Count: 2},
		{Value: "Housing", Slug: "housing", Count: 1},
	}, body.Categories)

	w = a.do(t, http.MethodGet, "/api/listings/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Oakland Kitchen", decode[model.Listing](t, w).Name)

	w = a.do(t, http.MethodGet, "/api/listings/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictionsWithoutPlaces(t *testing.T) {
	a := newTestAPI(t)
	id := a.newSession(t)

	w := a.do(t, http.MethodGet, "/api/places/predictions?session="+id+"&q=mission", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"predictions":[]}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/places/predictions?q=mission", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoreSweep(t *testing.T) {
	a := newTestAPI(t)
	a.newSession(t)
	require.Equal(t, 1, a.store.Len())

	assert.Equal(t, 0, a.store.Sweep(time.Now()))
	assert.Equal(t, 1, a.store.Sweep(time.Now().Add(2*time.Hour)))
	assert.Equal(t, 0, a.store.Len())
}
