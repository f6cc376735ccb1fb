package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/comiendoalmundo/followup-service/internal/followup"
	"github.com/comiendoalmundo/followup-service/shared/rabbitmq"
)

// Store is the job-store surface the worker needs
type Store interface {
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]string, error)
	ClaimJob(ctx context.Context, jobID string) (*followup.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, errorMsg string) error
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sender is the outbound send primitive used for reminder delivery
type Sender interface {
	SendText(ctx context.Context, phone, body string) error
}

// AllowChecker answers whether a contact is still on the allow-list. A nil
// checker disables the pre-send recheck. Ready must report false until the
// list has actually loaded: a negative answer from an unloaded list is
// unavailability, not an opt-out.
type AllowChecker interface {
	IsAllowed(normalizedPhone string) bool
	Ready() bool
}

// Config holds reminder worker configuration
type Config struct {
	Logger        *slog.Logger
	Storage       Store
	RabbitClient  *rabbitmq.Client
	Sender        Sender
	Templates     *followup.TemplateSet
	Allow         AllowChecker
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	PollInterval  time.Duration
	ClaimBatch    int
	RequeueAfter  time.Duration
	SendTimeout   time.Duration
}

// Worker promotes due follow-up jobs onto the queue and delivers them
type Worker struct {
	logger        *slog.Logger
	storage       Store
	rabbitClient  *rabbitmq.Client
	sender        Sender
	templates     *followup.TemplateSet
	allow         AllowChecker
	workerID      string
	concurrency   int
	prefetchCount int
	pollInterval  time.Duration
	claimBatch    int
	requeueAfter  time.Duration
	sendTimeout   time.Duration
	jobsChan      chan *followup.QueueMessage
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		storage:       cfg.Storage,
		rabbitClient:  cfg.RabbitClient,
		sender:        cfg.Sender,
		templates:     cfg.Templates,
		allow:         cfg.Allow,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		pollInterval:  cfg.PollInterval,
		claimBatch:    cfg.ClaimBatch,
		requeueAfter:  cfg.RequeueAfter,
		sendTimeout:   cfg.SendTimeout,
		jobsChan:      make(chan *followup.QueueMessage, cfg.Concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start runs the promoter loop, the worker pool, and the message dispatcher.
// It blocks until the context is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting reminder worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go w.promoterLoop(ctx)

	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping reminder worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Reminder worker stopped")
}
