package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/model"
)

func newTestAlgolia(t *testing.T, h http.HandlerFunc) *Algolia {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "APP", r.Header.Get("X-Algolia-Application-Id"))
		assert.Equal(t, "KEY", r.Header.Get("X-Algolia-API-Key"))
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	a, err := NewAlgolia(Options{BaseURL: srv.URL, AppID: "APP", APIKey: "KEY", Index: "listings"}, nil)
	require.NoError(t, err)
	return a
}

func TestNewAlgoliaValidates(t *testing.T) {
	_, err := NewAlgolia(Options{Index: "x"}, nil)
	assert.Error(t, err)
	_, err = NewAlgolia(Options{AppID: "a", APIKey: "b"}, nil)
	assert.Error(t, err)
}

func TestEncodeParams(t *testing.T) {
	p := model.Params{Query: "soup", Filters: "categories:'Food'", HitsPerPage: 20, Page: 2}
	geo.Around(orb.Point{-122.41, 37.77}, model.Radius{All: true}, 1600, 1600).Apply(&p)

	v, err := url.ParseQuery(EncodeParams(p))
	require.NoError(t, err)
	assert.Equal(t, "soup", v.Get("query"))
	assert.Equal(t, "categories:'Food'", v.Get("filters"))
	assert.Equal(t, "20", v.Get("hitsPerPage"))
	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "37.77,-122.41", v.Get("aroundLatLng"))
	assert.Equal(t, "all", v.Get("aroundRadius"))
	assert.Equal(t, "1600", v.Get("aroundPrecision"))
	assert.False(t, v.Has("insideBoundingBox"))

	var box model.Params
	geo.BoundingBox(orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}).Apply(&box)
	v, err = url.ParseQuery(EncodeParams(box))
	require.NoError(t, err)
	assert.Equal(t, "[[4,1,2,3]]", v.Get("insideBoundingBox"))
	assert.False(t, v.Has("aroundLatLng"))
	assert.Equal(t, "", v.Get("filters"))
	assert.True(t, v.Has("filters"))
}

func TestAlgoliaSearch(t *testing.T) {
	a := newTestAlgolia(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/1/indexes/*/queries", r.URL.Path)

		var body multiQuery
		data, _ := io.ReadAll(r.Body)
		if assert.NoError(t, json.Unmarshal(data, &body)) && assert.Len(t, body.Requests, 2) {
			assert.Equal(t, "listings", body.Requests[0].IndexName)
			assert.Contains(t, body.Requests[0].Params, "filters=categories")
		}

		w.Write([]byte(`{"results":[
			{"hits":[{"objectID":"1","name":"Hope","_geoloc":{"lat":1,"lng":2}}],"nbHits":1,"page":0,"nbPages":1,"hitsPerPage":20,"processingTimeMS":3},
			{"hits":[],"nbHits":0,"page":0,"nbPages":0,"hitsPerPage":0,"processingTimeMS":1,"facets":{"categories":{"Food":3}}}
		]}`))
	})

	res, err := a.Search(context.Background(), []model.Request{
		{Params: model.Params{Filters: "categories:'Food'", HitsPerPage: 20}},
		{IndexName: "listings", Params: model.Params{Facets: []string{"categories"}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "Hope", res.Results[0].Hits[0].Name)
	assert.Equal(t, 2.0, res.Results[0].Hits[0].GeoLoc.Lng)
	assert.Equal(t, 3, res.Results[1].Facets["categories"]["Food"])
}

func TestAlgoliaSearchResultCountMismatch(t *testing.T) {
	a := newTestAlgolia(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})
	_, err := a.Search(context.Background(), []model.Request{{}})
	assert.Error(t, err)
}

func TestAlgoliaDocument(t *testing.T) {
	a := newTestAlgolia(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1/indexes/listings/42":
			w.Write([]byte(`{"objectID":"42","name":"Pantry","categories":["Food"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	l, err := a.Document(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Pantry", l.Name)

	_, err = a.Document(context.Background(), "7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlgoliaFacets(t *testing.T) {
	a := newTestAlgolia(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"hits":[],"nbHits":5,"facets":{"categories":{"Housing":2,"Food":3}}}]}`))
	})
	vals, err := a.Facets(context.Background(), "categories", "")
	require.NoError(t, err)
	assert.Equal(t, []model.FacetValue{
		{Value: "Food", Slug: "food", Count: 3},
		{Value: "Housing", Slug: "housing", Count: 2},
	}, vals)
}
