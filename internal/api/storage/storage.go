package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/comiendoalmundo/followup-service/internal/followup"
	"github.com/comiendoalmundo/followup-service/shared/postgresql"
)

// Storage is the gateway-side view of the follow-up job store: it only ever
// upserts pending jobs and deletes rows on cancellation.
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a Storage instance
func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// UpsertJob inserts the job or, while the existing row is still PENDING,
// replaces its payload and fire time. A row that has been promoted or claimed
// is left alone: that step already fired and must not be re-armed.
func (s *Storage) UpsertJob(ctx context.Context, job *followup.Job) error {
	query := `
		INSERT INTO follow_up_jobs (
			job_id, phone, contact_name, step, variant,
			status, fire_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, NOW(), NOW()
		)
		ON CONFLICT (job_id) DO UPDATE
		SET contact_name = EXCLUDED.contact_name,
		    variant = EXCLUDED.variant,
		    fire_at = EXCLUDED.fire_at,
		    updated_at = NOW()
		WHERE follow_up_jobs.status = $8
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.Phone,
		job.ContactName,
		job.Step,
		job.Variant,
		followup.JobStatusPending,
		job.FireAt,
		followup.JobStatusPending,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert follow-up job: %w", err)
	}

	return nil
}

// DeleteJobs removes every row whose id is listed and returns how many
// existed. Cancellation of absent jobs is not an error.
func (s *Storage) DeleteJobs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM follow_up_jobs WHERE job_id = ANY($1)`

	result, err := s.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete follow-up jobs: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return removed, nil
}
