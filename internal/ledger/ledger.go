// Package ledger is the append-only progress log: one Run per orchestration
// attempt, StatusEvents in creation order underneath it. Events are written
// exactly once and never mutated; deleting them is a housekeeping surface for
// the operator, not something the scraping core ever does.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/api/schemas"
)

// DB abstracts the pgxpool.Pool to allow for mocking in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger provides the PostgreSQL-backed run/status log.
type Ledger struct {
	db  DB
	log *zap.Logger
	now func() time.Time
}

// New creates a ledger. The clock is injectable so runs carry a
// deterministic timestamp under test.
func New(db DB, logger *zap.Logger, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		db:  db,
		log: logger.Named("ledger"),
		now: now,
	}
}

// CreateRun starts a new run record and returns it.
func (l *Ledger) CreateRun(ctx context.Context) (schemas.Run, error) {
	run := schemas.Run{
		ID:        uuid.NewString(),
		StartedAt: l.now().UTC(),
	}
	_, err := l.db.Exec(ctx,
		`INSERT INTO runs (id, started_at) VALUES ($1, $2)`,
		run.ID, run.StartedAt,
	)
	if err != nil {
		return schemas.Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	l.log.Info("Created run", zap.String("run_id", run.ID))
	return run, nil
}

// AppendStatus writes one progress event for the run. Image may be nil; it
// is only set for CAPTCHA prompts.
func (l *Ledger) AppendStatus(ctx context.Context, runID, message string, image []byte) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO statuses (run_id, message, image, created_at) VALUES ($1, $2, $3, $4)`,
		runID, message, image, l.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append status for run %s: %w", runID, err)
	}
	return nil
}

// Statuses returns the run's events ordered by creation time.
func (l *Ledger) Statuses(ctx context.Context, runID string) ([]schemas.StatusEvent, error) {
	rows, err := l.db.Query(ctx,
		`SELECT id, run_id, message, image, created_at
		 FROM statuses WHERE run_id = $1 ORDER BY created_at ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer rows.Close()

	var events []schemas.StatusEvent
	for rows.Next() {
		var ev schemas.StatusEvent
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Message, &ev.Image, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during status iteration: %w", err)
	}
	return events, nil
}

// LatestRun returns the most recently started run, or nil when none exist.
func (l *Ledger) LatestRun(ctx context.Context) (*schemas.Run, error) {
	var run schemas.Run
	err := l.db.QueryRow(ctx,
		`SELECT id, started_at FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.StartedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return &run, nil
}

// ClearStatuses removes all status events across runs.
func (l *Ledger) ClearStatuses(ctx context.Context) error {
	tag, err := l.db.Exec(ctx, `DELETE FROM statuses`)
	if err != nil {
		return fmt.Errorf("failed to clear statuses: %w", err)
	}
	l.log.Info("Cleared status log", zap.Int64("deleted", tag.RowsAffected()))
	return nil
}
