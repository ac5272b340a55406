package extract

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/deedharvest/api/schemas"
)

// AddressKeys are the nine derived fields, in output order. Every parse
// yields all nine; absent fields are empty strings, never omitted.
var AddressKeys = []string{
	"Ward/Colony",
	"District",
	"Village",
	"Sub-Area/Road",
	"Tehsil/Locality",
	"PIN Code",
	"Landmark",
	"State",
	"Country",
}

// addressPatterns are applied independently against the raw address string.
// "Distirct" is the portal's own misspelling; correcting it would stop the
// field from ever matching.
var addressPatterns = []struct {
	key string
	re  *regexp.Regexp
}{
	{"Ward/Colony", regexp.MustCompile(`(?i)Ward Colony\s*-\s*([^,.]+)`)},
	{"District", regexp.MustCompile(`(?i)Distirct:?\s*([^,.]+)`)},
	{"Village", regexp.MustCompile(`(?i)Village:?\s*([^,.]+)`)},
	{"Sub-Area/Road", regexp.MustCompile(`(?i)Sub-Area\s*:?\s*([^,.]+)`)},
	{"Tehsil/Locality", regexp.MustCompile(`(?i)Tehsil:?\s*([^,.]+)`)},
	{"PIN Code", regexp.MustCompile(`(?i)pin-?(\d{6})`)},
	{"Landmark", regexp.MustCompile(`(?i)(\d+\s*m\s+from\s+[^p]+)`)},
}

// ParseAddress derives the nine fixed address fields from a free-text
// address. State and Country are literal-substring checks, independent of
// the pattern table.
func ParseAddress(addr string) schemas.Fields {
	out := make(schemas.Fields, 0, len(AddressKeys))
	for _, p := range addressPatterns {
		val := ""
		if m := p.re.FindStringSubmatch(addr); m != nil {
			val = strings.TrimSpace(m[1])
		}
		out = append(out, schemas.Field{Label: p.key, Value: val})
	}

	state := ""
	if strings.Contains(addr, "Madhya Pradesh") {
		state = "Madhya Pradesh"
	}
	country := ""
	if strings.Contains(addr, "India") {
		country = "India"
	}
	out = append(out,
		schemas.Field{Label: "State", Value: state},
		schemas.Field{Label: "Country", Value: country},
	)
	return out
}
