package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/rendis/geodir/internal/model"
)

// Kind tags the active variant of a Constraint.
type Kind string

const (
	KindNone        Kind = "none"
	KindBoundingBox Kind = "boundingBox"
	KindRadius      Kind = "radius"
)

// Constraint is the single geographic restriction on a query: a bounding box,
// a radius around a point, or nothing. Only the fields of the active variant
// carry meaning.
type Constraint struct {
	Kind Kind

	// boundingBox
	Box orb.Bound

	// radius
	Center        orb.Point // [lng, lat]
	Radius        model.Radius
	Precision     int
	MinimumRadius int
}

func None() Constraint { return Constraint{Kind: KindNone} }

func BoundingBox(b orb.Bound) Constraint {
	return Constraint{Kind: KindBoundingBox, Box: b}
}

func Around(center orb.Point, r model.Radius, precision, minimumRadius int) Constraint {
	return Constraint{
		Kind:          KindRadius,
		Center:        center,
		Radius:        r,
		Precision:     precision,
		MinimumRadius: minimumRadius,
	}
}

// Apply writes every geo field of p: the active variant's fields are set and
// every field of the other variant is cleared in the same step.
func (c Constraint) Apply(p *model.Params) {
	p.InsideBoundingBox = nil
	p.AroundLatLng = ""
	p.AroundRadius = nil
	p.AroundPrecision = 0
	p.MinimumAroundRadius = 0

	switch c.Kind {
	case KindBoundingBox:
		p.InsideBoundingBox = []model.BoundingBox{{
			c.Box.Max.Lat(), c.Box.Min.Lon(), c.Box.Min.Lat(), c.Box.Max.Lon(),
		}}
	case KindRadius:
		r := c.Radius
		p.AroundLatLng = FormatLatLng(c.Center)
		p.AroundRadius = &r
		p.AroundPrecision = c.Precision
		p.MinimumAroundRadius = c.MinimumRadius
	}
}

// Fields returns the backend geo keys of the constraint. All keys are always
// present; keys of the inactive variant map to nil.
func (c Constraint) Fields() map[string]any {
	var p model.Params
	c.Apply(&p)
	f := map[string]any{
		"insideBoundingBox":   nil,
		"aroundLatLng":        nil,
		"aroundRadius":        nil,
		"aroundPrecision":     nil,
		"minimumAroundRadius": nil,
	}
	switch c.Kind {
	case KindBoundingBox:
		f["insideBoundingBox"] = p.InsideBoundingBox
	case KindRadius:
		f["aroundLatLng"] = p.AroundLatLng
		f["aroundRadius"] = *p.AroundRadius
		f["aroundPrecision"] = p.AroundPrecision
		f["minimumAroundRadius"] = p.MinimumAroundRadius
	}
	return f
}

// FromParams reads the geo constraint out of a parameter bag. Both variants
// present at once is an error.
func FromParams(p model.Params) (Constraint, error) {
	hasBox := len(p.InsideBoundingBox) > 0
	hasAround := p.AroundLatLng != ""
	switch {
	case hasBox && hasAround:
		return Constraint{}, fmt.Errorf("insideBoundingBox and aroundLatLng are mutually exclusive")
	case hasBox:
		b := p.InsideBoundingBox[0]
		ne := orb.Point{b[3], b[0]}
		sw := orb.Point{b[1], b[2]}
		return BoundingBox(orb.Bound{Min: sw, Max: ne}), nil
	case hasAround:
		center, err := ParseLatLng(p.AroundLatLng)
		if err != nil {
			return Constraint{}, err
		}
		r := model.Radius{All: true}
		if p.AroundRadius != nil {
			r = *p.AroundRadius
		}
		return Around(center, r, p.AroundPrecision, p.MinimumAroundRadius), nil
	}
	return None(), nil
}

// Contains reports whether pt satisfies the constraint. For radius
// constraints distance is the haversine distance in meters from the center.
func (c Constraint) Contains(pt orb.Point) bool {
	switch c.Kind {
	case KindBoundingBox:
		return c.Box.Contains(pt)
	case KindRadius:
		if c.Radius.All {
			return true
		}
		limit := max(c.Radius.Meters, c.MinimumRadius)
		return orbgeo.DistanceHaversine(c.Center, pt) <= float64(limit)
	}
	return true
}

// Bound returns a box enclosing every point the constraint admits, for index
// pre-filtering. ok is false when the constraint does not bound the search.
func (c Constraint) Bound() (b orb.Bound, ok bool) {
	switch c.Kind {
	case KindBoundingBox:
		return c.Box, true
	case KindRadius:
		if c.Radius.All {
			return orb.Bound{}, false
		}
		limit := max(c.Radius.Meters, c.MinimumRadius)
		return orbgeo.NewBoundAroundPoint(c.Center, float64(limit)), true
	}
	return orb.Bound{}, false
}

func (c Constraint) String() string {
	switch c.Kind {
	case KindBoundingBox:
		return fmt.Sprintf("box[%s..%s]", FormatLatLng(c.Box.Min), FormatLatLng(c.Box.Max))
	case KindRadius:
		r := "all"
		if !c.Radius.All {
			r = strconv.Itoa(c.Radius.Meters) + "m"
		}
		return fmt.Sprintf("around[%s r=%s]", FormatLatLng(c.Center), r)
	}
	return "none"
}

// FormatLatLng renders a point as the backend's "lat,lng".
func FormatLatLng(p orb.Point) string {
	return strconv.FormatFloat(p.Lat(), 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon(), 'f', -1, 64)
}

// ParseLatLng parses "lat,lng" into an orb.Point.
func ParseLatLng(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("invalid lat,lng %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return orb.Point{}, fmt.Errorf("lat,lng %q out of range", s)
	}
	return orb.Point{lng, lat}, nil
}
