package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
	"golang.org/x/time/rate"

	"github.com/rendis/geodir/internal/engine/transport"
)

// ErrPlaceNotFound is returned by Details for an unknown prediction id.
var ErrPlaceNotFound = errors.New("place not found")

// Prediction is one ranked autocomplete suggestion.
type Prediction struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Places is the geocoding collaborator: free text to predictions, and a
// prediction id to coordinates.
type Places interface {
	Predict(ctx context.Context, input string) ([]Prediction, error)
	Details(ctx context.Context, id string) (orb.Point, error)
}

type nominatimResult struct {
	PlaceID     int64  `json:"place_id"`
	OSMType     string `json:"osm_type"`
	OSMID       int64  `json:"osm_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (r nominatimResult) id() string {
	if r.OSMType == "" {
		return ""
	}
	return strings.ToUpper(r.OSMType[:1]) + strconv.FormatInt(r.OSMID, 10)
}

func (r nominatimResult) point() (orb.Point, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parsing lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parsing lon %q: %w", r.Lon, err)
	}
	return orb.Point{lon, lat}, nil
}

// NominatimOptions configures the OSM Nominatim client.
type NominatimOptions struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string // comma separated ISO 3166-1 alpha-2 codes
	Limit        int
	// RatePerSecond caps outbound requests; Nominatim's usage policy is 1/s.
	RatePerSecond float64
	// CacheSize and CacheTTL bound the coordinates kept per prediction id.
	CacheSize int
	CacheTTL  time.Duration
}

// Nominatim implements Places on the OSM Nominatim API.
type Nominatim struct {
	opts    NominatimOptions
	fetch   *transport.Retryer
	limiter *rate.Limiter

	known *expirable.LRU[string, orb.Point] // coordinates seen in predictions, by id
}

func NewNominatim(client *http.Client, opts NominatimOptions) *Nominatim {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://nominatim.openstreetmap.org"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.UserAgent == "" {
		opts.UserAgent = "geodir/0.1 (directory search)"
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	fetch := transport.NewRetryer(client)
	fetch.MaxRetries = 2
	return &Nominatim{
		opts:    opts,
		fetch:   fetch,
		limiter: rate.NewLimiter(limit, 1),
		known:   expirable.NewLRU[string, orb.Point](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Predict returns places matching free text, best first.
func (n *Nominatim) Predict(ctx context.Context, input string) ([]Prediction, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	q := url.Values{
		"q":      {input},
		"format": {"jsonv2"},
		"limit":  {strconv.Itoa(n.opts.Limit)},
	}
	if n.opts.CountryCodes != "" {
		q.Set("countrycodes", n.opts.CountryCodes)
	}
	results, err := n.get(ctx, "/search", q)
	if err != nil {
		return nil, err
	}

	preds := make([]Prediction, 0, len(results))
	for _, r := range results {
		id := r.id()
		if id == "" {
			continue
		}
		if p, err := r.point(); err == nil {
			n.known.Add(id, p)
		}
		preds = append(preds, Prediction{ID: id, Description: r.DisplayName})
	}
	return preds, nil
}

// Details resolves a prediction id to coordinates.
func (n *Nominatim) Details(ctx context.Context, id string) (orb.Point, error) {
	if p, ok := n.known.Get(id); ok {
		return p, nil
	}

	results, err := n.get(ctx, "/lookup", url.Values{
		"osm_ids": {id},
		"format":  {"jsonv2"},
	})
	if err != nil {
		return orb.Point{}, err
	}
	if len(results) == 0 {
		return orb.Point{}, fmt.Errorf("%w: %s", ErrPlaceNotFound, id)
	}
	p, err := results[0].point()
	if err != nil {
		return orb.Point{}, err
	}
	n.known.Add(id, p)
	return p, nil
}

func (n *Nominatim) get(ctx context.Context, path string, q url.Values) ([]nominatimResult, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := n.opts.BaseURL + path + "?" + q.Encode()
	body, err := n.fetch.Fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", n.opts.UserAgent)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decoding geocoding response: %w", err)
	}
	return results, nil
}
