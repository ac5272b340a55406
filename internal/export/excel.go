// Package export renders persisted records as an Excel workbook for
// download.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/api/schemas"
)

const (
	// Filename is the download name offered to the operator.
	Filename = "scraped_data.xlsx"
	// ContentType is the workbook MIME type.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName = "Sheet1"
)

// RecordSource yields every persisted record in insertion order.
type RecordSource interface {
	All(ctx context.Context) ([]schemas.Record, error)
}

// Exporter builds workbooks from a record source.
type Exporter struct {
	source RecordSource
	log    *zap.Logger
}

// New returns an Exporter over source.
func New(source RecordSource, logger *zap.Logger) *Exporter {
	return &Exporter{source: source, log: logger.Named("export")}
}

// WriteTo fetches all records and streams the workbook to w.
func (e *Exporter) WriteTo(ctx context.Context, w io.Writer) error {
	records, err := e.source.All(ctx)
	if err != nil {
		return fmt.Errorf("loading records for export: %w", err)
	}

	f, err := Workbook(records)
	if err != nil {
		return err
	}
	defer f.Close()

	e.log.Info("Exporting records", zap.Int("count", len(records)))
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Workbook lays records out on a single sheet. The header row comes from the
// first record's field labels, section by section; every data row is that
// record's values in section order. Field sets are positional, so a record
// whose sections carry different labels still lands under the first record's
// headers.
func Workbook(records []schemas.Record) (*excelize.File, error) {
	f := excelize.NewFile()

	if len(records) == 0 {
		if err := f.SetSheetRow(sheetName, "A1", &[]interface{}{"No data"}); err != nil {
			return nil, fmt.Errorf("writing empty sheet: %w", err)
		}
		return f, nil
	}

	var headers []interface{}
	for _, section := range records[0].Sections() {
		for _, field := range section {
			headers = append(headers, field.Label)
		}
	}
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("writing header row: %w", err)
	}

	for i, rec := range records {
		var row []interface{}
		for _, section := range rec.Sections() {
			for _, field := range section {
				row = append(row, field.Value)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("addressing row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	return f, nil
}
