// Package search holds the search backends the dispatch guard talks to: a
// local SQLite index and a remote Algolia-compatible service.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rendis/geodir/internal/engine/transport"
	"github.com/rendis/geodir/internal/model"
)

// ErrNotFound is returned by Document for an unknown object id.
var ErrNotFound = errors.New("listing not found")

// Capabilities describes what a backend supports.
type Capabilities struct {
	Name         string `json:"name"`
	GeoSearch    bool   `json:"geoSearch"`
	Facets       bool   `json:"facets"`
	MultiQuery   bool   `json:"multiQuery"`
	MaxHitsPage  int    `json:"maxHitsPerPage"`
	FilterSyntax string `json:"filterSyntax"`
}

// Backend executes queries for one index.
type Backend interface {
	Search(ctx context.Context, reqs []model.Request) (*model.Response, error)
	Capabilities() Capabilities
	Document(ctx context.Context, id string) (*model.Listing, error)
	// Facets counts attribute values among listings matching filters.
	Facets(ctx context.Context, attribute, filters string) ([]model.FacetValue, error)
	Close() error
}

const (
	KindSQLite  = "sqlite"
	KindAlgolia = "algolia"
)

// Options selects and configures a backend.
type Options struct {
	Kind        string
	Index       string
	Concurrency int

	// sqlite
	Path string

	// algolia
	BaseURL   string
	AppID     string
	APIKey    string
	Transport transport.Options
}

// Open returns the backend named by opts.Kind.
func Open(opts Options, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Kind {
	case KindSQLite, "":
		return OpenSQLite(opts.Path, opts.Concurrency, logger)
	case KindAlgolia:
		return NewAlgolia(opts, logger)
	default:
		return nil, fmt.Errorf("unknown search backend %q", opts.Kind)
	}
}
