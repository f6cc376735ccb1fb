package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/comiendoalmundo/followup-service/internal/followup"
	"github.com/comiendoalmundo/followup-service/shared/postgresql"
)

// Storage is the reminder-side view of the follow-up job store: promoting due
// rows, claiming them for delivery, and recording final outcomes.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a Storage instance
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// ClaimDueJobs atomically moves up to limit due PENDING rows to QUEUED and
// returns their ids. SKIP LOCKED keeps concurrent promoters from fighting
// over the same batch, so each due job is promoted exactly once.
func (s *Storage) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin promotion transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT job_id
		FROM follow_up_jobs
		WHERE status = $1 AND fire_at <= $2
		ORDER BY fire_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	var ids []string
	if err := tx.SelectContext(ctx, &ids, selectQuery, followup.JobStatusPending, now, limit); err != nil {
		return nil, fmt.Errorf("failed to select due jobs: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	updateQuery := `
		UPDATE follow_up_jobs
		SET status = $1,
		    queued_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = ANY($2)
	`

	if _, err := tx.ExecContext(ctx, updateQuery, followup.JobStatusQueued, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to mark jobs queued: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit promotion: %w", err)
	}

	return ids, nil
}

// ClaimJob attempts to claim a queued job for delivery using optimistic
// locking. A row that is missing, canceled, or already claimed by another
// worker yields ErrJobGone.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*followup.Job, error) {
	query := `
		UPDATE follow_up_jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING job_id, phone, contact_name, step, variant, fire_at
	`

	var job followup.Job
	err := s.db.QueryRowContext(ctx, query, followup.JobStatusSending, jobID, followup.JobStatusQueued).Scan(
		&job.JobID,
		&job.Phone,
		&job.ContactName,
		&job.Step,
		&job.Variant,
		&job.FireAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, followup.ErrJobGone
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = followup.JobStatusSending

	return &job, nil
}

// DeleteJob removes a delivered or suppressed job row
func (s *Storage) DeleteJob(ctx context.Context, jobID string) error {
	query := `DELETE FROM follow_up_jobs WHERE job_id = $1`

	if _, err := s.db.ExecContext(ctx, query, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}

// MarkFailed records a delivery failure. The row is kept for inspection and
// is never retried automatically.
func (s *Storage) MarkFailed(ctx context.Context, jobID, errorMsg string) error {
	query := `
		UPDATE follow_up_jobs
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, followup.JobStatusFailed, errorMsg, jobID); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}

// ReclaimStale returns QUEUED jobs whose message evidently never reached a
// worker back to PENDING so the next promotion pass republishes them. SENDING
// rows are deliberately left alone: the send may have gone out, and a
// duplicate reminder is worse than a stuck row.
func (s *Storage) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE follow_up_jobs
		SET status = $1,
		    queued_at = NULL,
		    updated_at = NOW()
		WHERE status = $2
		  AND queued_at <= $3
	`

	result, err := s.db.ExecContext(ctx, query, followup.JobStatusPending, followup.JobStatusQueued, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}

	reclaimed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if reclaimed > 0 {
		s.logger.Warn("Reclaimed stale queued jobs",
			slog.Int64("count", reclaimed),
		)
	}

	return reclaimed, nil
}
