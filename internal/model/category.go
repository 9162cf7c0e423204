package model

// Category is the resolved category context of a browse page. It is immutable
// once resolved.
type Category struct {
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Filter string `json:"filter"` // backend filter fragment, e.g. categories:'Housing'
}

// FacetValue is a distinct value of a filterable attribute and its count.
type FacetValue struct {
	Value string `json:"value"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}
