package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deedharvest/api/schemas"
)

func sampleRecord(regNo, seller, buyer string) schemas.Record {
	return schemas.Record{
		Registration: schemas.Fields{
			{Label: "Registration No.", Value: regNo},
			{Label: "Registration Date", Value: "05-01-2023"},
		},
		Seller:   schemas.Fields{{Label: "Name", Value: seller}},
		Buyer:    schemas.Fields{{Label: "Name", Value: buyer}},
		Property: schemas.Fields{{Label: "District", Value: "Bhopal"}},
		Khasra:   schemas.Fields{{Label: "Khasra No.", Value: "112/4"}},
	}
}

func TestWorkbookHeadersFromFirstRecord(t *testing.T) {
	records := []schemas.Record{
		sampleRecord("MP-0001", "A Sharma", "B Verma"),
		sampleRecord("MP-0002", "C Gupta", "D Jain"),
	}

	f, err := Workbook(records)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"Registration No.", "Registration Date", "Name", "Name", "District", "Khasra No.",
	}, rows[0])
	assert.Equal(t, []string{"MP-0001", "05-01-2023", "A Sharma", "B Verma", "Bhopal", "112/4"}, rows[1])
	assert.Equal(t, []string{"MP-0002", "05-01-2023", "C Gupta", "D Jain", "Bhopal", "112/4"}, rows[2])
}

func TestWorkbookRowsArePositional(t *testing.T) {
	second := sampleRecord("MP-0002", "C Gupta", "D Jain")
	second.Khasra = schemas.Fields{{Label: "Plot No.", Value: "B-17"}}

	f, err := Workbook([]schemas.Record{sampleRecord("MP-0001", "A", "B"), second})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)

	// Headers stay those of the first record; the second record's divergent
	// field still occupies the same column.
	assert.Equal(t, "Khasra No.", rows[0][5])
	assert.Equal(t, "B-17", rows[2][5])
}

func TestWorkbookNoRecords(t *testing.T) {
	f, err := Workbook(nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"No data"}, rows[0])
}

type stubSource struct {
	records []schemas.Record
	err     error
}

func (s *stubSource) All(context.Context) ([]schemas.Record, error) { return s.records, s.err }

func TestWriteToStreamsWorkbook(t *testing.T) {
	src := &stubSource{records: []schemas.Record{sampleRecord("MP-0001", "A", "B")}}
	e := New(src, zaptest.NewLogger(t))

	var buf bytes.Buffer
	require.NoError(t, e.WriteTo(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "MP-0001", rows[1][0])
}

func TestWriteToSourceFailure(t *testing.T) {
	e := New(&stubSource{err: errors.New("db down")}, zaptest.NewLogger(t))
	err := e.WriteTo(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
