package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/orchestrator"
	"github.com/daddykev/stardust-distro-sub000/internal/service"
)

// Executor runs one attempt of a delivery job.
type Executor interface {
	Execute(ctx context.Context, jobID string) (orchestrator.Outcome, error)
}

// Requeuer puts a job back on the queue.
type Requeuer interface {
	ScheduleRetry(ctx context.Context, jobID string, at time.Time) error
	Requeue(ctx context.Context, jobID string) error
}

// DeliveryWorker processes delivery tasks
type DeliveryWorker struct {
	executor Executor
	requeuer Requeuer
	backoff  time.Duration
	log      logger.Logger
	now      func() time.Time
}

// NewDeliveryWorker creates a new delivery worker. backoff is how long a task
// waits before retrying a delivery locked by another worker.
func NewDeliveryWorker(executor Executor, requeuer Requeuer, backoff time.Duration, log logger.Logger) *DeliveryWorker {
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	return &DeliveryWorker{
		executor: executor,
		requeuer: requeuer,
		backoff:  backoff,
		log:      log,
		now:      time.Now,
	}
}

// ProcessTask handles delivery task processing
func (w *DeliveryWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.DeliveryTask
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("task payload has no job id: %w", asynq.SkipRetry)
	}

	log := w.log.With(logger.String("job_id", payload.JobID))
	outcome, err := w.executor.Execute(ctx, payload.JobID)

	switch {
	case errors.Is(err, model.ErrLockContention):
		at := w.now().Add(w.backoff)
		log.Info("Delivery locked elsewhere, backing off", logger.Duration("backoff", w.backoff))
		if err := w.requeuer.ScheduleRetry(ctx, payload.JobID, at); err != nil {
			return fmt.Errorf("failed to reschedule contended delivery: %w", err)
		}
		return nil

	case err != nil:
		// Infrastructure failures go back to asynq. A retried task that
		// arrives before the job is due is requeued below.
		log.Error("Delivery task failed", logger.String("outcome", string(outcome)), logger.Error(err))
		return err

	case outcome == orchestrator.OutcomeNotDue:
		if retried, _ := asynq.GetRetryCount(ctx); retried > 0 {
			if err := w.requeuer.Requeue(ctx, payload.JobID); err != nil {
				return fmt.Errorf("failed to requeue delivery: %w", err)
			}
			log.Info("Requeued delivery at its scheduled time")
		}
		return nil
	}

	log.Debug("Delivery task done", logger.String("outcome", string(outcome)))
	return nil
}
