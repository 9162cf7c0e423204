package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/model"
)

// ErrCategoryNotFound is returned for a slug no category facet maps to.
var ErrCategoryNotFound = errors.New("category not found")

// AllCategories is the context of a browse page with no category constraint.
var AllCategories = model.Category{Name: "All"}

// FacetSource lists attribute values with counts.
type FacetSource interface {
	Facets(ctx context.Context, attribute, filters string) ([]model.FacetValue, error)
}

// CategoryResolver maps URL slugs to categories using the backend's
// categories facet. The facet list is cached for ttl.
type CategoryResolver struct {
	src   FacetSource
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu        sync.Mutex
	values    []model.FacetValue
	fetchedAt time.Time
}

func NewCategoryResolver(src FacetSource, ttl time.Duration) *CategoryResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CategoryResolver{src: src, ttl: ttl, now: time.Now}
}

// Categories returns every category with its listing count.
func (r *CategoryResolver) Categories(ctx context.Context) ([]model.FacetValue, error) {
	r.mu.Lock()
	if r.values != nil && r.now().Sub(r.fetchedAt) < r.ttl {
		v := r.values
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()
	return r.refresh(ctx)
}

func (r *CategoryResolver) refresh(ctx context.Context) ([]model.FacetValue, error) {
	v, err, _ := r.group.Do("categories", func() (any, error) {
		vals, err := r.src.Facets(ctx, filters.AttrCategories, "")
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.values = vals
		r.fetchedAt = r.now()
		r.mu.Unlock()
		return vals, nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	return v.([]model.FacetValue), nil
}

// Resolve returns the category for slug. The empty slug is AllCategories.
// An unknown slug triggers one refresh before ErrCategoryNotFound.
func (r *CategoryResolver) Resolve(ctx context.Context, slug string) (model.Category, error) {
	if slug == "" {
		return AllCategories, nil
	}
	vals, err := r.Categories(ctx)
	if err != nil {
		return model.Category{}, err
	}
	if c, ok := find(vals, slug); ok {
		return c, nil
	}
	if vals, err = r.refresh(ctx); err != nil {
		return model.Category{}, err
	}
	if c, ok := find(vals, slug); ok {
		return c, nil
	}
	return model.Category{}, fmt.Errorf("%w: %q", ErrCategoryNotFound, slug)
}

func find(vals []model.FacetValue, slug string) (model.Category, bool) {
	slug = search.Slug(slug)
	for _, v := range vals {
		if v.Slug == slug {
			return model.Category{
				Name:   v.Value,
				Slug:   v.Slug,
				Filter: filters.Clause(filters.AttrCategories, v.Value),
			}, true
		}
	}
	return model.Category{}, false
}
