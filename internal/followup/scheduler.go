package followup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/comiendoalmundo/followup-service/internal/phone"
)

// JobStore is the subset of the durable store the scheduler writes to. The
// gateway's Postgres storage implements it; tests use a fake.
type JobStore interface {
	// UpsertJob creates the job or, while it is still PENDING, replaces its
	// payload and fire time. Jobs that already left PENDING are untouched.
	UpsertJob(ctx context.Context, job *Job) error

	// DeleteJobs removes every row whose id is in ids and returns how many
	// existed. Missing ids are not an error.
	DeleteJobs(ctx context.Context, ids []string) (int64, error)
}

// Scheduler enqueues and cancels the delayed reminder jobs for a contact.
type Scheduler struct {
	store   JobStore
	profile *Profile
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler for the given campaign profile.
func NewScheduler(store JobStore, profile *Profile, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
}

// Schedule upserts one delayed job per campaign step for the contact.
// Validation failures schedule nothing; a store failure on one step aborts the
// remaining steps and is surfaced to the caller.
func (s *Scheduler) Schedule(ctx context.Context, rawPhone, name string, variant int) error {
	digits := phone.Normalize(rawPhone)
	if digits == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPhone, rawPhone)
	}
	if !s.profile.ValidVariant(variant) {
		return fmt.Errorf("%w: %d (configured variants: %d)", ErrInvalidVariant, variant, s.profile.Variants)
	}

	now := s.now()
	for _, step := range s.profile.Steps {
		job := &Job{
			JobID:       MakeJobID(digits, step.Name),
			Phone:       digits,
			ContactName: name,
			Step:        step.Name,
			Variant:     variant,
			Status:      JobStatusPending,
			FireAt:      now.Add(step.Offset),
			CreatedAt:   now,
		}

		if err := s.store.UpsertJob(ctx, job); err != nil {
			return fmt.Errorf("failed to schedule step %q for %s: %w", step.Name, digits, err)
		}

		s.logger.Info("Follow-up scheduled",
			slog.String("job_id", job.JobID),
			slog.String("step", step.Name),
			slog.Int("variant", variant),
			slog.Time("fire_at", job.FireAt),
		)
	}

	return nil
}

// Cancel deletes every outstanding job for the contact. It is idempotent:
// cancelling a phone with no jobs succeeds with a zero count.
func (s *Scheduler) Cancel(ctx context.Context, rawPhone string) (int64, error) {
	digits := phone.Normalize(rawPhone)
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPhone, rawPhone)
	}

	ids := make([]string, 0, len(s.profile.Steps))
	for _, step := range s.profile.Steps {
		ids = append(ids, MakeJobID(digits, step.Name))
	}

	removed, err := s.store.DeleteJobs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel follow-ups for %s: %w", digits, err)
	}

	s.logger.Info("Follow-ups canceled",
		slog.String("phone", digits),
		slog.Int64("removed", removed),
	)

	return removed, nil
}
