package geo

import (
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/model"
)

const (
	DefaultPrecision     = 1600 // meters
	DefaultMinimumRadius = 1600 // meters
	DefaultZoom          = 13
	MaxZoom              = 17
	ZoomDelta            = 1
)

// zoomByMiles maps the radius choices of the filter panel to a map zoom.
var zoomByMiles = map[float64]int{
	0.5: 15,
	1:   14,
	2:   13,
	3:   12,
}

// ViewportProvider reports the corners of the visible map.
type ViewportProvider interface {
	Viewport() (ne, sw orb.Point)
}

// Corners is a fixed viewport, e.g. one reported by a browser map.
type Corners struct {
	NE orb.Point
	SW orb.Point
}

func (c Corners) Viewport() (ne, sw orb.Point) { return c.NE, c.SW }

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Precision     int
	MinimumRadius int
	// DefaultLocation is the user location a page context starts from. Nil
	// means a fresh page has no geo constraint.
	DefaultLocation *orb.Point
	DefaultRadius   model.Distance
	DefaultZoom     int
	MaxZoom         int
	ZoomDelta       int
}

func (o *ResolverOptions) withDefaults() {
	if o.Precision <= 0 {
		o.Precision = DefaultPrecision
	}
	if o.MinimumRadius <= 0 {
		o.MinimumRadius = DefaultMinimumRadius
	}
	if o.DefaultZoom <= 0 {
		o.DefaultZoom = DefaultZoom
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = MaxZoom
	}
	if o.ZoomDelta <= 0 {
		o.ZoomDelta = ZoomDelta
	}
	if !o.DefaultRadius.All && o.DefaultRadius.Miles <= 0 {
		o.DefaultRadius = model.DistanceAll
	}
}

// Resolver turns user geographic intent into exactly one Constraint. Every
// method returns a complete variant; callers forward it as a whole.
type Resolver struct {
	mu      sync.Mutex
	opts    ResolverOptions
	current Constraint
	zoom    int
	logger  *slog.Logger
}

func NewResolver(opts ResolverOptions, logger *slog.Logger) *Resolver {
	opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{opts: opts, logger: logger}
	r.current = r.defaultConstraint()
	r.zoom = opts.DefaultZoom
	return r
}

// SelectLocation handles a chosen place with a radius.
func (r *Resolver) SelectLocation(center orb.Point, d model.Distance) Constraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.around(center, d)
	r.zoom = r.zoomFor(d)
	return r.set(c, "location")
}

// SearchArea handles "search this area": the visible map becomes the box.
func (r *Resolver) SearchArea(vp ViewportProvider) Constraint {
	ne, sw := vp.Viewport()
	// Tolerate corners reported in either order.
	b := orb.Bound{Min: ne, Max: ne}.Extend(sw)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(BoundingBox(b), "area")
}

// Reset handles a page context change: the constraint goes to none and is
// immediately re-derived from the default user location.
func (r *Resolver) Reset() Constraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(None(), "reset")
	r.zoom = r.opts.DefaultZoom
	return r.set(r.defaultConstraint(), "default")
}

// Default re-derives the constraint from the default user location, keeping
// the zoom. Used when a chosen location is cleared.
func (r *Resolver) Default() Constraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(r.defaultConstraint(), "default")
}

// DefaultWithin re-derives the default user location with a radius chosen
// in the filter panel. All keeps the configured default radius. Without a
// default location the constraint is none.
func (r *Resolver) DefaultWithin(d model.Distance) Constraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.DefaultLocation == nil {
		return r.set(None(), "default")
	}
	if d.All {
		return r.set(r.defaultConstraint(), "default")
	}
	r.zoom = r.zoomFor(d)
	return r.set(r.around(*r.opts.DefaultLocation, d), "default radius")
}

// Current returns the last emitted constraint.
func (r *Resolver) Current() Constraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Zoom is the presentation zoom matching the last selection.
func (r *Resolver) Zoom() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

// SetZoom records the zoom the map is showing.
func (r *Resolver) SetZoom(z int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zoom = min(max(z, 1), r.opts.MaxZoom)
}

// ZoomFor returns the map zoom for a radius choice without changing state.
func (r *Resolver) ZoomFor(d model.Distance) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoomFor(d)
}

func (r *Resolver) zoomFor(d model.Distance) int {
	if !d.All {
		if z, ok := zoomByMiles[d.Miles]; ok {
			return z
		}
	}
	base := r.zoom
	if base <= 0 {
		base = r.opts.DefaultZoom
	}
	return min(base+r.opts.ZoomDelta, r.opts.MaxZoom)
}

func (r *Resolver) around(center orb.Point, d model.Distance) Constraint {
	radius := model.Radius{All: true}
	if !d.All {
		radius = model.Radius{Meters: d.Meters()}
	}
	return Around(center, radius, r.opts.Precision, r.opts.MinimumRadius)
}

func (r *Resolver) defaultConstraint() Constraint {
	if r.opts.DefaultLocation == nil {
		return None()
	}
	return r.around(*r.opts.DefaultLocation, r.opts.DefaultRadius)
}

func (r *Resolver) set(c Constraint, reason string) Constraint {
	r.current = c
	r.logger.Debug("geo constraint", "reason", reason, "constraint", c.String())
	return c
}
