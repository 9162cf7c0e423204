package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `[
  {"place_id": 1, "osm_type": "relation", "osm_id": 111968, "lat": "37.7792808", "lon": "-122.4192363", "display_name": "San Francisco, California, United States"},
  {"place_id": 2, "osm_type": "node", "osm_id": 42, "lat": "37.80", "lon": "-122.27", "display_name": "Oakland"}
]`

func newTestNominatim(t *testing.T, h http.HandlerFunc) (*Nominatim, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewNominatim(srv.Client(), NominatimOptions{BaseURL: srv.URL, UserAgent: "geodir-test"}), &calls
}

func TestNominatimPredict(t *testing.T) {
	n, _ := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "san francisco", r.URL.Query().Get("q"))
		assert.Equal(t, "geodir-test", r.Header.Get("User-Agent"))
		w.Write([]byte(searchBody))
	})

	preds, err := n.Predict(context.Background(), "  san francisco ")
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, Prediction{ID: "R111968", Description: "San Francisco, California, United States"}, preds[0])
	assert.Equal(t, "N42", preds[1].ID)
}

func TestNominatimPredictBlankInput(t *testing.T) {
	n, calls := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {})
	preds, err := n.Predict(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, preds)
	assert.Zero(t, calls.Load())
}

func TestNominatimDetailsUsesPredictionCache(t *testing.T) {
	n, calls := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	})
	_, err := n.Predict(context.Background(), "sf")
	require.NoError(t, err)

	p, err := n.Details(context.Background(), "N42")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-122.27, 37.80}, p)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNominatimDetailsLookup(t *testing.T) {
	n, _ := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lookup", r.URL.Path)
		assert.Equal(t, "W7", r.URL.Query().Get("osm_ids"))
		w.Write([]byte(`[{"osm_type":"way","osm_id":7,"lat":"1.5","lon":"2.5","display_name":"x"}]`))
	})
	p, err := n.Details(context.Background(), "W7")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{2.5, 1.5}, p)
}

func TestNominatimDetailsNotFound(t *testing.T) {
	n, _ := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	_, err := n.Details(context.Background(), "N1")
	assert.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestNominatimBadStatus(t *testing.T) {
	n, _ := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := n.Predict(context.Background(), "x")
	assert.Error(t, err)
}

func TestNominatimCacheIsBounded(t *testing.T) {
	var lookups atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/lookup" {
			lookups.Add(1)
			assert.Equal(t, "R111968", r.URL.Query().Get("osm_ids"))
			w.Write([]byte(`[{"osm_type": "relation", "osm_id": 111968, "lat": "37.78", "lon": "-122.42"}]`))
			return
		}
		w.Write([]byte(searchBody))
	}))
	t.Cleanup(srv.Close)
	n := NewNominatim(srv.Client(), NominatimOptions{BaseURL: srv.URL, CacheSize: 1})

	_, err := n.Predict(context.Background(), "bay")
	require.NoError(t, err)
	assert.Equal(t, 1, n.known.Len())

	p, err := n.Details(context.Background(), "N42")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-122.27, 37.80}, p)
	assert.Zero(t, lookups.Load())

	p, err = n.Details(context.Background(), "R111968")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-122.42, 37.78}, p)
	assert.Equal(t, int32(1), lookups.Load())
}
