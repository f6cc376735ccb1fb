package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/comiendoalmundo/followup-service/internal/followup"
)

// promoterLoop periodically moves due jobs onto the queue and returns stuck
// QUEUED rows to PENDING. Every instance runs a promoter; SKIP LOCKED in the
// store makes the extra promoters cheap instead of harmful.
func (w *Worker) promoterLoop(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("Promoter started",
		slog.Duration("poll_interval", w.pollInterval),
		slog.Int("claim_batch", w.claimBatch),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Promoter stopping - stopChan closed")
			return

		case <-ctx.Done():
			w.logger.Info("Promoter stopping - context canceled")
			return

		case <-ticker.C:
			w.promoteDueJobs(ctx)
			w.reclaimStaleJobs(ctx)
		}
	}
}

// promoteDueJobs drains the due set in batches. Each claimed id is published
// as its own message; a publish failure leaves the row QUEUED, where the
// reclaim pass will find it once it goes stale.
func (w *Worker) promoteDueJobs(ctx context.Context) {
	for {
		ids, err := w.storage.ClaimDueJobs(ctx, time.Now(), w.claimBatch)
		if err != nil {
			w.logger.Error("Failed to claim due jobs",
				slog.String("error", err.Error()),
			)
			return
		}

		if len(ids) == 0 {
			return
		}

		w.logger.Info("Promoting due jobs",
			slog.Int("count", len(ids)),
		)

		for _, jobID := range ids {
			body, err := json.Marshal(&followup.QueueMessage{JobID: jobID})
			if err != nil {
				w.logger.Error("Failed to marshal queue message",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
				continue
			}

			if err := w.rabbitClient.PublishWithRetry(ctx, body); err != nil {
				w.logger.Error("Failed to publish due job",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}

		if len(ids) < w.claimBatch {
			return
		}
	}
}

// reclaimStaleJobs returns QUEUED rows older than the requeue window to
// PENDING so the next tick republishes them
func (w *Worker) reclaimStaleJobs(ctx context.Context) {
	cutoff := time.Now().Add(-w.requeueAfter)

	if _, err := w.storage.ReclaimStale(ctx, cutoff); err != nil {
		w.logger.Error("Failed to reclaim stale jobs",
			slog.String("error", err.Error()),
		)
	}
}
