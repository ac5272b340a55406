// Package store persists extracted records. A record is written
// transactionally: either all five sections land or none of them do.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/api/schemas"
)

// ErrPersist marks a record that could not be stored. The orchestrator
// treats it as fatal to the current row only.
var ErrPersist = errors.New("record persistence failed")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for
// mocking in tests.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store provides a PostgreSQL implementation of record persistence.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance.
func New(pool DBPool, logger *zap.Logger) *Store {
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}
}

// Save stores one extracted record atomically. Section field order is
// preserved in the stored JSON text.
func (s *Store) Save(ctx context.Context, rec schemas.Record) error {
	sections := make([][]byte, 0, 5)
	for _, fields := range rec.Sections() {
		data, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("%w: encode section: %v", ErrPersist, err)
		}
		sections = append(sections, data)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrPersist, err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && rollbackErr != pgx.ErrTxClosed {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, `
        INSERT INTO records (registration, seller, buyer, property, khasra)
        VALUES ($1, $2, $3, $4, $5)`,
		sections[0], sections[1], sections[2], sections[3], sections[4],
	)
	if err != nil {
		return fmt.Errorf("%w: insert record: %v", ErrPersist, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPersist, err)
	}
	return nil
}

// All returns every stored record in insertion order, for the export
// surface.
func (s *Store) All(ctx context.Context) ([]schemas.Record, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT registration, seller, buyer, property, khasra
        FROM records ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []schemas.Record
	for rows.Next() {
		var raw [5][]byte
		if err := rows.Scan(&raw[0], &raw[1], &raw[2], &raw[3], &raw[4]); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		var rec schemas.Record
		targets := []*schemas.Fields{&rec.Registration, &rec.Seller, &rec.Buyer, &rec.Property, &rec.Khasra}
		for i, target := range targets {
			if len(raw[i]) == 0 {
				continue
			}
			if err := json.Unmarshal(raw[i], target); err != nil {
				return nil, fmt.Errorf("failed to decode section %d: %w", i, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during record iteration: %w", err)
	}
	return records, nil
}
