package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/api/schemas"
)

func sampleRecord() schemas.Record {
	return schemas.Record{
		Registration: schemas.Fields{{Label: "Registration No.", Value: "MP-1"}},
		Seller:       schemas.Fields{{Label: "Name", Value: "A"}},
		Buyer:        schemas.Fields{{Label: "Name", Value: "B"}},
		Property:     schemas.Fields{{Label: "District", Value: "Bhopal"}},
		Khasra:       schemas.Fields{{Label: "Plot", Value: "12/4"}},
	}
}

func TestSaveCommitsAllFiveSections(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), sampleRecord()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.Save(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFailsOnBeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock, zap.NewNop())

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err = s.Save(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, ErrPersist)
}

func TestAllDecodesStoredSectionsInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock, zap.NewNop())

	rows := pgxmock.NewRows([]string{"registration", "seller", "buyer", "property", "khasra"}).
		AddRow(
			[]byte(`{"Registration No.":"MP-1","Date":"01-01-2023"}`),
			[]byte(`{"Name":"A"}`),
			[]byte(`{"Name":"B"}`),
			[]byte(`{"District":"Bhopal","PIN Code":"462001"}`),
			[]byte(`{"Plot":"12/4"}`),
		)
	mock.ExpectQuery(`SELECT registration, seller, buyer, property, khasra`).
		WillReturnRows(rows)

	records, err := s.All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Len(t, rec.Registration, 2)
	assert.Equal(t, "Registration No.", rec.Registration[0].Label)
	assert.Equal(t, "Date", rec.Registration[1].Label)
	assert.Equal(t, schemas.Fields{{Label: "District", Value: "Bhopal"}, {Label: "PIN Code", Value: "462001"}}, rec.Property)
	assert.NoError(t, mock.ExpectationsWereMet())
}
