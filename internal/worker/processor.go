package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/comiendoalmundo/followup-service/internal/followup"
)

// processJob delivers a single due reminder. The claim transition is the
// dedupe point: under at-least-once delivery the same job id can arrive more
// than once, and only the delivery that wins the claim ever sends.
func (w *Worker) processJob(ctx context.Context, msg *followup.QueueMessage) error {
	job, err := w.storage.ClaimJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, followup.ErrJobGone) {
			// Canceled after promotion, or another worker won the claim.
			// Either way the reminder must not go out.
			w.logger.Info("Job gone before delivery, dropping",
				slog.String("job_id", msg.JobID),
			)
			return nil
		}
		return followup.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	// Suppression needs positive evidence of an opt-out. Until every source
	// has loaded once, a miss only proves the list is unavailable, and the
	// reminder goes out rather than being destroyed.
	if w.allow != nil {
		if !w.allow.Ready() {
			w.logger.Warn("Allow-list not loaded yet, sending without recheck",
				slog.String("job_id", job.JobID),
			)
		} else if !w.allow.IsAllowed(job.Phone) {
			w.logger.Info("Contact left the allow-list, suppressing reminder",
				slog.String("job_id", job.JobID),
				slog.String("phone", job.Phone),
			)
			if err := w.storage.DeleteJob(ctx, job.JobID); err != nil {
				w.logger.Error("Failed to delete suppressed job",
					slog.String("job_id", job.JobID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		}
	}

	body := w.templates.Resolve(job.Step, job.Variant, job.ContactName)

	sendTimeout := w.sendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := w.sender.SendText(sendCtx, job.Phone, body); err != nil {
		w.logger.Error("Reminder delivery failed",
			slog.String("job_id", job.JobID),
			slog.String("step", job.Step),
			slog.String("error", err.Error()),
		)

		// One attempt per job. The row keeps the error for inspection and
		// the message is not requeued: the claim already happened, so a
		// redelivery would drop at ClaimJob anyway.
		if markErr := w.storage.MarkFailed(ctx, job.JobID, err.Error()); markErr != nil {
			w.logger.Error("Failed to record delivery failure",
				slog.String("job_id", job.JobID),
				slog.String("error", markErr.Error()),
			)
		}
		return fmt.Errorf("failed to deliver reminder: %w", err)
	}

	w.logger.Info("Reminder delivered",
		slog.String("job_id", job.JobID),
		slog.String("step", job.Step),
		slog.Int("variant", job.Variant),
	)

	// Delivered jobs leave the store entirely. If the delete fails the row
	// stays SENDING, which is never reclaimed, so the reminder still goes
	// out at most once.
	if err := w.storage.DeleteJob(ctx, job.JobID); err != nil {
		w.logger.Error("Failed to delete delivered job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
