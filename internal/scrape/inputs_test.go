package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConvertsDatesToPortalFormat(t *testing.T) {
	in := Inputs{
		Username: "operator",
		Password: "secret",
		District: "Indore",
		DeedType: "Gift Deed",
		DateFrom: "2023-01-01",
		DateTo:   "2023-12-31",
	}

	norm, err := in.normalize()
	require.NoError(t, err)
	assert.Equal(t, "01-01-2023", norm.portalDateFrom)
	assert.Equal(t, "31-12-2023", norm.portalDateTo)
	assert.Equal(t, in, norm.Inputs)
}

func TestNormalizeRejectsMalformedDates(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
	}{
		{"slash separators", "01/01/2023", "2023-01-31"},
		{"portal order", "31-01-2023", "2023-01-31"},
		{"empty from", "", "2023-01-31"},
		{"bad to", "2023-01-01", "January 31"},
		{"month out of range", "2023-13-01", "2023-12-31"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Inputs{DateFrom: tc.from, DateTo: tc.to}.normalize()
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
