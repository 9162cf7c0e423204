package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe munoz", Normalize("Café Muñoz"))
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Food & Meals":         "food-meals",
		"Housing":              "housing",
		"  Legal Aid  ":        "legal-aid",
		"Salud Mental (Niños)": "salud-mental-ninos",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), in)
	}
}
