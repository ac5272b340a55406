// Package extract turns the semi-structured detail view of a registered deed
// into a fixed-shape record: five labeled table sections, with the property
// section's free-text address expanded into named fields.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/api/schemas"
)

// sectionSpec ties a record section to the legend text identifying its
// fieldset on the page.
type sectionSpec struct {
	name   string
	legend string
	assign func(*schemas.Record, schemas.Fields)
}

// The five fixed sections, in document order.
var sections = []sectionSpec{
	{"registration", "Registration Details", func(r *schemas.Record, f schemas.Fields) { r.Registration = f }},
	{"seller", "Party From", func(r *schemas.Record, f schemas.Fields) { r.Seller = f }},
	{"buyer", "Party To", func(r *schemas.Record, f schemas.Fields) { r.Buyer = f }},
	{"property", "Property Details", func(r *schemas.Record, f schemas.Fields) { r.Property = f }},
	{"khasra", "Khasra/Building/Plot Details", func(r *schemas.Record, f schemas.Fields) { r.Khasra = f }},
}

// Parser reads detail-view markup into records.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{log: logger.Named("extract")}
}

// Parse reads all five sections from the detail-view HTML. The registration
// section must be present (its absence means the detail view never opened);
// the other sections may legitimately be empty for some deed types.
func (p *Parser) Parse(html string) (schemas.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return schemas.Record{}, fmt.Errorf("parse detail view: %w", err)
	}

	var rec schemas.Record
	for i, spec := range sections {
		sel := findFieldset(doc, spec.legend)
		if sel == nil {
			if i == 0 {
				return schemas.Record{}, fmt.Errorf("parse detail view: %q section not found", spec.legend)
			}
			spec.assign(&rec, schemas.Fields{})
			continue
		}

		labels := cellTexts(sel.Find("thead tr th"))
		values := cellTexts(sel.Find("tbody tr td"))
		fields := p.pair(spec.name, labels, values)

		if spec.name == "property" {
			fields = expandAddressFields(fields)
		}
		spec.assign(&rec, fields)
	}
	return rec, nil
}

// findFieldset locates the fieldset whose legend contains the given text.
func findFieldset(doc *goquery.Document, legend string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("fieldset").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Find("legend").First().Text(), legend) {
			found = s
			return false
		}
		return true
	})
	return found
}

func cellTexts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

// pair zips labels and values to the shorter length. A length mismatch is a
// known trade-off inherited from the page structure: the excess is dropped,
// but loudly, so drift shows up in the logs instead of as silent data loss.
func (p *Parser) pair(section string, labels, values []string) schemas.Fields {
	n := len(labels)
	if len(values) < n {
		n = len(values)
	}
	if len(labels) != len(values) {
		p.log.Warn("Section label/value count mismatch; pairing to the shorter length",
			zap.String("section", section),
			zap.Int("labels", len(labels)),
			zap.Int("values", len(values)),
		)
	}

	fields := make(schemas.Fields, 0, n)
	for i := 0; i < n; i++ {
		fields = append(fields, schemas.Field{Label: labels[i], Value: values[i]})
	}
	return fields
}

// expandAddressFields replaces every field whose label mentions an address
// with the nine parsed address fields, in place, preserving the surrounding
// field order.
func expandAddressFields(fields schemas.Fields) schemas.Fields {
	out := make(schemas.Fields, 0, len(fields))
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f.Label), "address") {
			out = append(out, ParseAddress(f.Value)...)
			continue
		}
		out = append(out, f)
	}
	return out
}
