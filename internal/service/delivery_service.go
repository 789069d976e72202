package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/daddykev/stardust-distro-sub000/internal/lock"
	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/metrics"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/store"
)

const (
	TaskTypeDelivery = "delivery:execute"

	// DefaultMessageType is used when a trigger does not name the ERN message type.
	DefaultMessageType = "NewReleaseMessage"
)

// TaskEnqueuer is the part of asynq.Client the delivery service needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DeliveryTask is the payload of a delivery task.
type DeliveryTask struct {
	JobID string `json:"jobId"`
}

// DeliveryService accepts delivery intents and exposes job state
type DeliveryService struct {
	jobs     *store.JobStore
	targets  *store.TargetStore
	locks    lock.Manager
	enqueuer TaskEnqueuer
	metrics  *metrics.Metrics
	log      logger.Logger
	queue    string
	now      func() time.Time
}

func NewDeliveryService(
	jobs *store.JobStore,
	targets *store.TargetStore,
	locks lock.Manager,
	enqueuer TaskEnqueuer,
	m *metrics.Metrics,
	log logger.Logger,
	queue string,
) *DeliveryService {
	if queue == "" {
		queue = "deliveries"
	}
	return &DeliveryService{
		jobs:     jobs,
		targets:  targets,
		locks:    locks,
		enqueuer: enqueuer,
		metrics:  m,
		log:      log,
		queue:    queue,
		now:      time.Now,
	}
}

// Trigger turns a delivery request into a queued job. Requests repeating an
// intent that is still in flight or already delivered are answered with the
// existing job instead of creating a new one.
func (s *DeliveryService) Trigger(ctx context.Context, req *model.TriggerDeliveryRequest, requestedBy string) (*model.TriggerDeliveryResponse, error) {
	resp, err := s.trigger(ctx, req, requestedBy)
	code := model.TriggerError
	if resp != nil {
		code = resp.Code
	}
	if s.metrics != nil {
		s.metrics.TriggersTotal.WithLabelValues(string(code)).Inc()
	}
	return resp, err
}

func (s *DeliveryService) trigger(ctx context.Context, req *model.TriggerDeliveryRequest, requestedBy string) (*model.TriggerDeliveryResponse, error) {
	now := s.now()
	messageType := req.MessageType
	if messageType == "" {
		messageType = DefaultMessageType
	}

	target, err := s.targets.Get(ctx, req.TargetID)
	if errors.Is(err, model.ErrTargetNotFound) {
		return rejected(now, "Target %s not found", req.TargetID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load target: %w", err)
	}
	if !target.Active {
		return rejected(now, "Target %s is inactive", req.TargetID), nil
	}

	key := lock.IdempotencyKey(req.ReleaseID, req.TargetID, messageType, req.MessageSubType, req.ERNMessageID)

	// A delivered intent replays its receipt while the lock is retained.
	if l, err := s.locks.Get(ctx, key); err != nil {
		return nil, err
	} else if l != nil && l.Status == model.LockStatusCompleted && l.ExpiresAt.After(now) {
		resp := &model.TriggerDeliveryResponse{
			Code:           model.TriggerDuplicate,
			IdempotencyKey: key,
			Status:         model.JobStatusCompleted,
			Receipt:        l.Result,
			Message:        "Release already delivered to this target",
			CreatedAt:      now,
		}
		if owner, err := s.jobs.IdempotencyOwner(ctx, key); err == nil {
			resp.JobID = owner
		}
		return resp, nil
	}

	scheduledAt := now
	if req.ScheduledAt != nil && req.ScheduledAt.After(now) {
		scheduledAt = *req.ScheduledAt
	}

	job := &model.DeliveryJob{
		ID:             uuid.New().String(),
		ReleaseID:      req.ReleaseID,
		TargetID:       req.TargetID,
		TargetName:     target.Name,
		IdempotencyKey: key,
		MessageType:    messageType,
		MessageSubType: req.MessageSubType,
		ERNMessageID:   req.ERNMessageID,
		ERNXML:         req.ERNXML,
		Priority:       req.Priority,
		TestMode:       req.TestMode || target.TestMode,
		RequestedBy:    requestedBy,
		Status:         model.JobStatusQueued,
		Attempts:       []model.AttemptRecord{},
		ScheduledAt:    scheduledAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// The record exists before the claim is published, so a claim whose job
	// cannot be found belongs to a request that is still being accepted.
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if resp, err := s.claim(ctx, now, key, job.ID); resp != nil || err != nil {
		if delErr := s.jobs.Delete(ctx, job.ID); delErr != nil {
			s.log.Warn("Failed to discard unclaimed job", logger.String("job_id", job.ID), logger.Error(delErr))
		}
		return resp, err
	}

	_ = s.jobs.AppendLog(ctx, job.ID, model.LogEntry{
		Timestamp: now,
		Level:     model.LogLevelInfo,
		Step:      "queued",
		Message:   fmt.Sprintf("Delivery queued for %s", target.Name),
		Details:   map[string]any{"protocol": target.Protocol, "scheduledAt": scheduledAt},
	})

	if err := s.enqueue(ctx, job.ID, scheduledAt); err != nil {
		// Leave nothing queued without a task behind it.
		msg := err.Error()
		_, _ = s.jobs.Update(ctx, job.ID, func(j *model.DeliveryJob) error {
			j.Status = model.JobStatusFailed
			j.Error = &msg
			j.UpdatedAt = s.now()
			return nil
		})
		return nil, err
	}

	s.log.Info("Delivery queued",
		logger.String("job_id", job.ID),
		logger.String("release_id", job.ReleaseID),
		logger.String("target_id", job.TargetID),
		logger.String("idempotency_key", key),
	)

	return &model.TriggerDeliveryResponse{
		Code:           model.TriggerAccepted,
		JobID:          job.ID,
		IdempotencyKey: key,
		Status:         job.Status,
		CreatedAt:      now,
	}, nil
}

// GetStatus returns the public view of a job
func (s *DeliveryService) GetStatus(ctx context.Context, jobID string) (*model.DeliveryStatusResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.DeliveryStatusResponse{
		JobID:           job.ID,
		ReleaseID:       job.ReleaseID,
		TargetID:        job.TargetID,
		Status:          job.Status,
		MessageSubType:  job.MessageSubType,
		Attempts:        job.Attempts,
		Error:           job.Error,
		ScheduledAt:     job.ScheduledAt,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
		TotalDurationMs: job.TotalDurationMs,
	}, nil
}

// GetLogs returns the audit trail of a job in append order
func (s *DeliveryService) GetLogs(ctx context.Context, jobID string) ([]model.LogEntry, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.jobs.Logs(ctx, jobID)
}

// GetReceipt returns the receipt of a completed job
func (s *DeliveryService) GetReceipt(ctx context.Context, jobID string) (*model.Receipt, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Receipt == nil {
		return nil, model.ErrNoReceipt
	}
	return job.Receipt, nil
}

// Cancel moves a queued job to cancelled. Jobs already picked up by a
// worker cannot be cancelled.
func (s *DeliveryService) Cancel(ctx context.Context, jobID, requestedBy string) (*model.DeliveryCancelResponse, error) {
	now := s.now()
	_, err := s.jobs.Update(ctx, jobID, func(j *model.DeliveryJob) error {
		if j.Status != model.JobStatusQueued {
			return model.ErrNotCancellable
		}
		j.Status = model.JobStatusCancelled
		j.CompletedAt = &now
		j.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.jobs.AppendLog(ctx, jobID, model.LogEntry{
		Timestamp: now,
		Level:     model.LogLevelWarning,
		Step:      "cancelled",
		Message:   "Delivery cancelled before it started",
		Details:   map[string]any{"requestedBy": requestedBy},
	})

	return &model.DeliveryCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCancelled,
	}, nil
}

// ScheduleRetry enqueues another run of the job at the given time
func (s *DeliveryService) ScheduleRetry(ctx context.Context, jobID string, at time.Time) error {
	return s.enqueue(ctx, jobID, at)
}

// Requeue enqueues the job again at its recorded schedule. Used when a task
// ran before the job was due.
func (s *DeliveryService) Requeue(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusQueued {
		return nil
	}
	return s.enqueue(ctx, jobID, job.ScheduledAt)
}

func (s *DeliveryService) enqueue(ctx context.Context, jobID string, at time.Time) error {
	task, err := newDeliveryTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(s.queue),
		asynq.MaxRetry(3),
		asynq.Retention(24 * time.Hour),
	}
	if at.After(s.now()) {
		opts = append(opts, asynq.ProcessAt(at))
	}

	if _, err := s.enqueuer.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func newDeliveryTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(DeliveryTask{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDelivery, data), nil
}

func rejected(now time.Time, format string, args ...any) *model.TriggerDeliveryResponse {
	return &model.TriggerDeliveryResponse{
		Code:      model.TriggerRejected,
		Message:   fmt.Sprintf(format, args...),
		CreatedAt: now,
	}
}

// claim points the idempotency key at jobID. It returns a response when the
// intent already belongs to another job.
func (s *DeliveryService) claim(ctx context.Context, now time.Time, key, jobID string) (*model.TriggerDeliveryResponse, error) {
	owner, claimed, err := s.jobs.ClaimIdempotency(ctx, key, jobID)
	if err != nil || claimed {
		return nil, err
	}

	existing, err := s.jobs.Get(ctx, owner)
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		return inFlight(now, key, owner), nil
	case err != nil:
		return nil, err
	case !existing.Status.IsTerminal() || existing.Status == model.JobStatusCompleted:
		return duplicate(now, key, existing), nil
	}

	// The previous job failed or was cancelled: a new attempt is allowed.
	ok, err := s.jobs.ReplaceIdempotency(ctx, key, owner, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return inFlight(now, key, ""), nil
	}
	return nil, nil
}

func inFlight(now time.Time, key, jobID string) *model.TriggerDeliveryResponse {
	return &model.TriggerDeliveryResponse{
		Code:           model.TriggerDuplicate,
		JobID:          jobID,
		IdempotencyKey: key,
		Status:         model.JobStatusQueued,
		Message:        "A concurrent request already queued this delivery",
		CreatedAt:      now,
	}
}

func duplicate(now time.Time, key string, job *model.DeliveryJob) *model.TriggerDeliveryResponse {
	return &model.TriggerDeliveryResponse{
		Code:           model.TriggerDuplicate,
		JobID:          job.ID,
		IdempotencyKey: key,
		Status:         job.Status,
		Receipt:        job.Receipt,
		Message:        "Delivery already " + string(job.Status),
		CreatedAt:      now,
	}
}
