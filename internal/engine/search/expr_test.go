package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shelter = map[string][]string{
	"categories":    {"Housing", "Shelter"},
	"eligibilities": {"Seniors", "Age 0-2"},
	"open_times":    {"Tu-14:30"},
}

func TestParseFilterMatches(t *testing.T) {
	cases := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"categories:'Housing'", true},
		{"categories:'housing'", true},
		{"categories:Food", false},
		{"categories:'Housing' AND eligibilities:'Age 0-2'", true},
		{"categories:'Housing' AND eligibilities:'Veterans'", false},
		{"categories:'Food' OR categories:'Shelter'", true},
		{"categories:'Housing' AND (eligibilities:'Veterans' OR eligibilities:'Seniors')", true},
		{"NOT categories:'Food'", true},
		{"NOT (categories:'Housing')", false},
		{"categories:'Food' OR categories:'Housing' AND eligibilities:'Veterans'", false},
		{"open_times:'Tu-14:30'", true},
		{`categories:'Kids\' Club'`, false},
	}
	for _, tc := range cases {
		x, err := ParseFilter(tc.filter)
		require.NoError(t, err, tc.filter)
		assert.Equal(t, tc.want, x.Match(shelter), tc.filter)
	}
}

func TestParseFilterUnescapes(t *testing.T) {
	x, err := ParseFilter(`categories:'Kids\' \\ Club'`)
	require.NoError(t, err)
	assert.True(t, x.Match(map[string][]string{"categories": {`Kids' \ Club`}}))
}

func TestParseFilterErrors(t *testing.T) {
	for _, bad := range []string{
		"categories",
		"categories:",
		"categories:'open",
		"(categories:'a'",
		"categories:'a' AND",
		"categories:'a' categories:'b'",
		"categories:'a')",
		"@",
	} {
		_, err := ParseFilter(bad)
		assert.Error(t, err, bad)
	}
}
