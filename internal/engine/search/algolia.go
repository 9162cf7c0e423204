package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rendis/geodir/internal/engine/transport"
	"github.com/rendis/geodir/internal/model"
)

// Algolia is a Backend talking to an Algolia-compatible REST API.
type Algolia struct {
	baseURL string
	appID   string
	apiKey  string
	index   string
	fetch   *transport.Retryer
	logger  *slog.Logger
}

func NewAlgolia(opts Options, logger *slog.Logger) (*Algolia, error) {
	if opts.AppID == "" || opts.APIKey == "" {
		return nil, errors.New("algolia backend needs an app id and an api key")
	}
	if opts.Index == "" {
		return nil, errors.New("algolia backend needs an index name")
	}
	base := opts.BaseURL
	if base == "" {
		base = "https://" + strings.ToLower(opts.AppID) + "-dsn.algolia.net"
	}
	return &Algolia{
		baseURL: strings.TrimRight(base, "/"),
		appID:   opts.AppID,
		apiKey:  opts.APIKey,
		index:   opts.Index,
		fetch:   transport.NewRetryer(transport.NewClient(opts.Transport)),
		logger:  logger,
	}, nil
}

type multiQuery struct {
	Requests []encodedRequest `json:"requests"`
}

type encodedRequest struct {
	IndexName string `json:"indexName"`
	Params    string `json:"params"`
}

// EncodeParams renders p in the url-encoded form the multi-query endpoint
// takes. Empty geo fields are left out.
func EncodeParams(p model.Params) string {
	v := url.Values{}
	v.Set("query", p.Query)
	v.Set("filters", p.Filters)
	v.Set("hitsPerPage", strconv.Itoa(p.HitsPerPage))
	v.Set("page", strconv.Itoa(p.Page))
	if len(p.Facets) > 0 {
		data, _ := json.Marshal(p.Facets)
		v.Set("facets", string(data))
	}
	if len(p.InsideBoundingBox) > 0 {
		data, _ := json.Marshal(p.InsideBoundingBox)
		v.Set("insideBoundingBox", string(data))
	}
	if p.AroundLatLng != "" {
		v.Set("aroundLatLng", p.AroundLatLng)
		v.Set("getRankingInfo", "true")
		if p.AroundRadius != nil {
			data, _ := json.Marshal(p.AroundRadius)
			v.Set("aroundRadius", strings.Trim(string(data), `"`))
		}
		if p.AroundPrecision > 0 {
			v.Set("aroundPrecision", strconv.Itoa(p.AroundPrecision))
		}
		if p.MinimumAroundRadius > 0 {
			v.Set("minimumAroundRadius", strconv.Itoa(p.MinimumAroundRadius))
		}
	}
	return v.Encode()
}

func (a *Algolia) Search(ctx context.Context, reqs []model.Request) (*model.Response, error) {
	body := multiQuery{Requests: make([]encodedRequest, len(reqs))}
	for i, r := range reqs {
		index := r.IndexName
		if index == "" {
			index = a.index
		}
		body.Requests[i] = encodedRequest{IndexName: index, Params: EncodeParams(r.Params)}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding queries: %w", err)
	}

	data, err := a.do(ctx, http.MethodPost, "/1/indexes/*/queries", payload)
	if err != nil {
		return nil, err
	}
	var res model.Response
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if len(res.Results) != len(reqs) {
		return nil, fmt.Errorf("search response has %d results for %d requests", len(res.Results), len(reqs))
	}
	return &res, nil
}

func (a *Algolia) Capabilities() Capabilities {
	return Capabilities{
		Name:         KindAlgolia,
		GeoSearch:    true,
		Facets:       true,
		MultiQuery:   true,
		MaxHitsPage:  maxHitsPerPage,
		FilterSyntax: "algolia",
	}
}

func (a *Algolia) Document(ctx context.Context, id string) (*model.Listing, error) {
	path := "/1/indexes/" + url.PathEscape(a.index) + "/" + url.PathEscape(id)
	data, err := a.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var l model.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}
	return &l, nil
}

func (a *Algolia) Facets(ctx context.Context, attribute, filters string) ([]model.FacetValue, error) {
	res, err := a.Search(ctx, []model.Request{{
		IndexName: a.index,
		Params:    model.Params{Filters: filters, HitsPerPage: 0, Facets: []string{attribute}},
	}})
	if err != nil {
		return nil, err
	}
	return FacetValues(res.Results[0].Facets[attribute]), nil
}

func (a *Algolia) Close() error {
	a.fetch.Client.CloseIdleConnections()
	return nil
}

func (a *Algolia) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	u := a.baseURL + path
	data, err := a.fetch.Fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Algolia-Application-Id", a.appID)
		req.Header.Set("X-Algolia-API-Key", a.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		if n := a.fetch.ConsecutiveRateLimits(); n > 0 {
			a.logger.Warn("search backend rate limited", "consecutive", n)
		}
		return nil, err
	}
	return data, nil
}

var _ Backend = (*Algolia)(nil)
