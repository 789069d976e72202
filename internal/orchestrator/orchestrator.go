// Package orchestrator runs a delivery job through one attempt: it takes the
// idempotency lock, builds the package, hands it to the transport adapter and
// records the outcome, scheduling a retry or failing the job as the retry
// policy dictates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daddykev/stardust-distro-sub000/internal/lock"
	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/metrics"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/notify"
	"github.com/daddykev/stardust-distro-sub000/internal/transport"
)

// JobStore persists jobs and their audit trail.
type JobStore interface {
	Get(ctx context.Context, id string) (*model.DeliveryJob, error)
	Update(ctx context.Context, id string, fn func(job *model.DeliveryJob) error) (*model.DeliveryJob, error)
	AppendLog(ctx context.Context, id string, entry model.LogEntry) error
}

// TargetStore resolves delivery targets.
type TargetStore interface {
	Get(ctx context.Context, id string) (*model.DeliveryTarget, error)
}

// HistoryStore records completed production deliveries.
type HistoryStore interface {
	Append(ctx context.Context, rec model.HistoryRecord) error
}

// PackageBuilder produces the file set of one attempt.
type PackageBuilder interface {
	Build(ctx context.Context, job *model.DeliveryJob, target *model.DeliveryTarget) (*model.DeliveryPackage, error)
}

// AdapterResolver returns the transport adapter of a protocol.
type AdapterResolver interface {
	Get(protocol model.Protocol) (transport.Adapter, error)
}

// Scheduler re-runs a job at a later time.
type Scheduler interface {
	ScheduleRetry(ctx context.Context, jobID string, at time.Time) error
}

// LogStreamer receives every audit log entry as it is appended.
type LogStreamer interface {
	BroadcastLog(jobID string, entry model.LogEntry)
}

// Outcome describes what Execute did with a job.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeReplayed       Outcome = "replayed"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeNotDue         Outcome = "not_due"
	OutcomeContended      Outcome = "contended"
)

// Deps are the collaborators of the orchestrator. Metrics and Streamer are
// optional.
type Deps struct {
	Jobs      JobStore
	Targets   TargetStore
	History   HistoryStore
	Locks     lock.Manager
	Builder   PackageBuilder
	Adapters  AdapterResolver
	Sink      notify.Sink
	Scheduler Scheduler
	Metrics   *metrics.Metrics
	Streamer  LogStreamer
	Logger    logger.Logger
}

// Config tunes execution.
type Config struct {
	Retry          RetryPolicy
	AttemptTimeout time.Duration
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator executes delivery jobs.
type Orchestrator struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// errSkip aborts the processing transition without writing.
var errSkip = errors.New("job no longer runnable")

// New creates an orchestrator.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if deps.Sink == nil {
		deps.Sink = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 300 * time.Second
	}

	o := &Orchestrator{deps: deps, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs one attempt of the job. It returns model.ErrLockContention
// when another worker holds the delivery; the caller should back off and try
// again. Delivery failures are recorded on the job and are not returned.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) (Outcome, error) {
	job, err := o.deps.Jobs.Get(ctx, jobID)
	if errors.Is(err, model.ErrJobNotFound) {
		o.deps.Logger.Warn("Delivery job vanished", logger.String("job_id", jobID))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}

	log := o.deps.Logger.With(
		logger.String("job_id", job.ID),
		logger.String("idempotency_key", job.IdempotencyKey),
	)

	if job.Status.IsTerminal() {
		log.Debug("Delivery job already finished", logger.String("status", string(job.Status)))
		return OutcomeSkipped, nil
	}
	if job.Status == model.JobStatusQueued && job.ScheduledAt.After(o.now().Add(time.Second)) {
		log.Debug("Delivery job not due yet", logger.Time("scheduled_at", job.ScheduledAt))
		return OutcomeNotDue, nil
	}

	acq, err := o.deps.Locks.Acquire(ctx, job.IdempotencyKey)
	if err != nil {
		return "", err
	}
	if !acq.Acquired {
		o.deps.Metrics.LockOutcomes.WithLabelValues(acq.Reason).Inc()
		if acq.Reason == lock.ReasonCompleted {
			return o.replay(ctx, log, job, acq.Result)
		}
		log.Info("Delivery locked by another worker")
		return OutcomeContended, model.ErrLockContention
	}
	o.deps.Metrics.LockOutcomes.WithLabelValues("acquired").Inc()
	o.deps.Metrics.DeliveriesInProgress.Inc()
	defer o.deps.Metrics.DeliveriesInProgress.Dec()

	start := o.now()

	running, err := o.deps.Jobs.Update(ctx, job.ID, func(j *model.DeliveryJob) error {
		if j.Status.IsTerminal() {
			return errSkip
		}
		j.Status = model.JobStatusProcessing
		if j.StartedAt == nil {
			j.StartedAt = &start
		}
		j.UpdatedAt = start
		return nil
	})
	if err != nil {
		o.releaseLock(ctx, log, job.IdempotencyKey, model.LockStatusFailed, nil)
		if errors.Is(err, errSkip) {
			return OutcomeSkipped, nil
		}
		return "", fmt.Errorf("failed to mark job processing: %w", err)
	}
	job = running
	attempt := job.NextAttemptNumber()

	target, err := o.deps.Targets.Get(ctx, job.TargetID)
	switch {
	case errors.Is(err, model.ErrTargetNotFound):
		err = model.NewValidationError("targetId", "target %s not found", job.TargetID)
	case err == nil && !target.Active:
		err = model.NewValidationError("targetId", "target %s is inactive", job.TargetID)
	}
	if err != nil {
		if !model.IsValidation(err) {
			o.releaseLock(ctx, log, job.IdempotencyKey, model.LockStatusFailed, nil)
			return "", fmt.Errorf("failed to load target: %w", err)
		}
		return o.fail(ctx, log, job, nil, attempt, start, err)
	}

	log = log.With(logger.String("protocol", string(target.Protocol)), logger.Int("attempt", attempt))
	o.appendLog(ctx, log, job.ID, model.LogLevelInfo, "start",
		fmt.Sprintf("Attempt %d of %d started for %s", attempt, o.cfg.Retry.MaxAttempts, target.Name),
		map[string]any{"attempt": attempt, "protocol": target.Protocol, "lockAttempt": acq.Attempt}, nil)

	result, err := o.attempt(ctx, log, job, target)
	o.deps.Metrics.AttemptDuration.WithLabelValues(string(target.Protocol)).Observe(o.now().Sub(start).Seconds())
	if err != nil {
		o.deps.Metrics.AttemptsTotal.WithLabelValues(string(target.Protocol), "failure").Inc()
		return o.fail(ctx, log, job, target, attempt, start, err)
	}
	o.deps.Metrics.AttemptsTotal.WithLabelValues(string(target.Protocol), "success").Inc()
	return o.succeed(ctx, log, job, target, result)
}

// attempt builds and transfers the package under the attempt timeout.
func (o *Orchestrator) attempt(ctx context.Context, log logger.Logger, job *model.DeliveryJob, target *model.DeliveryTarget) (*model.DeliveryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	buildStart := o.now()
	pkg, err := o.deps.Builder.Build(ctx, job, target)
	if err != nil {
		return nil, err
	}
	buildMs := o.now().Sub(buildStart).Milliseconds()
	o.appendLog(ctx, log, job.ID, model.LogLevelInfo, "package",
		fmt.Sprintf("Package built with %d files", len(pkg.Files)),
		map[string]any{"files": len(pkg.Files), "bytes": pkg.TotalSize(), "upc": pkg.UPC}, &buildMs)
	for _, w := range pkg.Warnings {
		o.appendLog(ctx, log, job.ID, model.LogLevelWarning, "package", w, nil, nil)
	}

	adapter, err := o.deps.Adapters.Get(target.Protocol)
	if err != nil {
		return nil, err
	}

	result, err := adapter.Deliver(ctx, target, pkg)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, &model.TransportError{Protocol: target.Protocol, Cause: errors.New("adapter reported an unsuccessful delivery")}
	}
	return result, nil
}

func (o *Orchestrator) succeed(ctx context.Context, log logger.Logger, job *model.DeliveryJob, target *model.DeliveryTarget, result *model.DeliveryResult) (Outcome, error) {
	now := o.now()
	receipt := &model.Receipt{
		Acknowledgment:   result.Acknowledgment,
		AcknowledgmentID: result.AcknowledgmentID,
		Timestamp:        now,
		Files:            result.Files,
		MessageSubType:   job.MessageSubType,
		BytesTransferred: result.BytesTransferred,
	}
	if receipt.Acknowledgment == "" {
		receipt.Acknowledgment = "delivered"
	}
	if target.Protocol == model.ProtocolDSP {
		receipt.DSPMessageID = result.AcknowledgmentID
	}

	updated, err := o.deps.Jobs.Update(ctx, job.ID, func(j *model.DeliveryJob) error {
		j.Status = model.JobStatusCompleted
		j.Receipt = receipt
		j.Error = nil
		j.CompletedAt = &now
		j.UpdatedAt = now
		j.TotalDurationMs = now.Sub(j.CreatedAt).Milliseconds()
		return nil
	})
	if err != nil {
		// The files are delivered: keep the receipt in the lock so a rerun replays it.
		o.releaseLock(ctx, log, job.IdempotencyKey, model.LockStatusCompleted, receipt)
		return "", fmt.Errorf("failed to persist completed job: %w", err)
	}

	if !job.TestMode && !target.TestMode && o.deps.History != nil {
		rec := model.HistoryRecord{
			JobID:            job.ID,
			ReleaseID:        job.ReleaseID,
			TargetID:         job.TargetID,
			TargetName:       target.Name,
			MessageSubType:   job.MessageSubType,
			ERNMessageID:     job.ERNMessageID,
			FileCount:        len(result.Files),
			BytesTransferred: result.BytesTransferred,
			DeliveredAt:      now,
		}
		if err := o.deps.History.Append(ctx, rec); err != nil {
			log.Warn("Failed to record delivery history", logger.Error(err))
		}
	}

	total := updated.TotalDurationMs
	o.appendLog(ctx, log, job.ID, model.LogLevelSuccess, "complete",
		fmt.Sprintf("Delivered %d files (%d bytes) to %s", len(result.Files), result.BytesTransferred, target.Name),
		map[string]any{"acknowledgmentId": receipt.AcknowledgmentID, "transferMs": result.DurationMs}, &total)

	o.notify(ctx, log, updated, model.NotificationSuccess, map[string]any{"receipt": receipt})
	o.releaseLock(ctx, log, job.IdempotencyKey, model.LockStatusCompleted, receipt)

	o.deps.Metrics.DeliveriesTotal.WithLabelValues(string(target.Protocol), string(model.JobStatusCompleted)).Inc()
	o.deps.Metrics.BytesTransferred.WithLabelValues(string(target.Protocol)).Add(float64(result.BytesTransferred))
	log.Info("Delivery completed", logger.Int64("bytes", result.BytesTransferred), logger.Int64("total_ms", total))
	return OutcomeCompleted, nil
}

// fail records a failed attempt and either schedules the next one or fails
// the job for good. target is nil when it could not be resolved.
func (o *Orchestrator) fail(ctx context.Context, log logger.Logger, job *model.DeliveryJob, target *model.DeliveryTarget, attempt int, start time.Time, cause error) (Outcome, error) {
	now := o.now()
	protocol := "unknown"
	if target != nil {
		protocol = string(target.Protocol)
	}

	record := model.AttemptRecord{
		AttemptNumber: attempt,
		StartTime:     start,
		EndTime:       now,
		Status:        model.JobStatusFailed,
		Error:         cause.Error(),
	}

	delay, retry := o.cfg.Retry.Next(attempt)
	if model.IsValidation(cause) {
		retry = false
	}

	var finalErr error = cause
	if !retry && !model.IsValidation(cause) {
		finalErr = &model.PermanentFailure{Attempts: attempt, Last: cause}
	}
	nextAt := now.Add(delay)

	updated, err := o.deps.Jobs.Update(ctx, job.ID, func(j *model.DeliveryJob) error {
		j.Attempts = append(j.Attempts, record)
		j.UpdatedAt = now
		if retry {
			j.Status = model.JobStatusQueued
			j.ScheduledAt = nextAt
			return nil
		}
		msg := finalErr.Error()
		j.Status = model.JobStatusFailed
		j.Error = &msg
		j.CompletedAt = &now
		j.TotalDurationMs = now.Sub(j.CreatedAt).Milliseconds()
		return nil
	})
	if err != nil {
		o.releaseLock(ctx, log, job.IdempotencyKey, model.LockStatusFailed, nil)
		return "", fmt.Errorf("failed to record failed attempt: %w", err)
	}

	if retry {
		o.appendLog(ctx, log, job.ID, model.LogLevelWarning, "retry",
			fmt.Sprintf("Attempt %d failed, retrying in %s", attempt, delay),
			map[string]any{"error": cause.Error(), "nextAttemptAt": nextAt}, nil)
		o.notify(ctx, log, updated, model.NotificationRetry, map[string]any{
			"attempt": attempt, "error": cause.Error(), "nextAttemptAt": nextAt,
		})
		o.releaseLock(ctx, log, job.IdempotencyKey, model.LockStatusFailed, nil)
		o.deps.Metrics.RetriesScheduled.WithLabelValues(strconv.Itoa(attempt)).Inc()

		log.Warn("Delivery attempt failed, retry scheduled", logger.Error(cause), logger.Time("next_attempt_at", nextAt))
		if err := o.deps.Scheduler.ScheduleRetry(ctx, job.ID, nextAt); err != nil {
			return OutcomeRetryScheduled, fmt.Errorf("failed to schedule retry: %w", err)
		}
		return OutcomeRetryScheduled, nil
	}

	o.appendLog(ctx, log, job.ID, model.LogLevelError, "failed", finalErr.Error(),
		map[string]any{"attempts": attempt, "validation": model.IsValidation(cause)}, nil)
	o.notify(ctx, log, updated, model.NotificationFailed, map[string]any{"attempts": attempt, "error": finalErr.Error()})
	o.releaseLock(ctx, log, job.IdempotencyKey, model.LockStatusFailed, nil)

	o.deps.Metrics.DeliveriesTotal.WithLabelValues(protocol, string(model.JobStatusFailed)).Inc()
	log.Error("Delivery failed", logger.Error(finalErr))
	return OutcomeFailed, nil
}

// replay completes job from the receipt of an earlier delivery of the same
// intent without touching the transport.
func (o *Orchestrator) replay(ctx context.Context, log logger.Logger, job *model.DeliveryJob, receipt *model.Receipt) (Outcome, error) {
	now := o.now()
	updated, err := o.deps.Jobs.Update(ctx, job.ID, func(j *model.DeliveryJob) error {
		if j.Status.IsTerminal() {
			return errSkip
		}
		j.Status = model.JobStatusCompleted
		j.Receipt = receipt
		j.CompletedAt = &now
		j.UpdatedAt = now
		j.TotalDurationMs = now.Sub(j.CreatedAt).Milliseconds()
		return nil
	})
	if errors.Is(err, errSkip) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to replay completed delivery: %w", err)
	}

	o.appendLog(ctx, log, job.ID, model.LogLevelSuccess, "complete",
		"Already delivered, returning the recorded receipt", map[string]any{"replayed": true}, nil)
	o.notify(ctx, log, updated, model.NotificationSuccess, map[string]any{"receipt": receipt, "replayed": true})
	log.Info("Delivery replayed from completed lock")
	return OutcomeReplayed, nil
}

// appendLog writes an audit entry. Failures are logged and otherwise ignored.
func (o *Orchestrator) appendLog(ctx context.Context, log logger.Logger, jobID string, level model.LogLevel, step, msg string, details map[string]any, durationMs *int64) {
	entry := model.LogEntry{
		Timestamp:  o.now(),
		Level:      level,
		Step:       step,
		Message:    msg,
		Details:    details,
		DurationMs: durationMs,
	}
	if err := o.deps.Jobs.AppendLog(ctx, jobID, entry); err != nil {
		log.Warn("Failed to append delivery log", logger.String("step", step), logger.Error(err))
	}
	if o.deps.Streamer != nil {
		o.deps.Streamer.BroadcastLog(jobID, entry)
	}
}

func (o *Orchestrator) notify(ctx context.Context, log logger.Logger, job *model.DeliveryJob, kind model.NotificationType, data map[string]any) {
	if err := o.deps.Sink.Send(ctx, job, kind, data); err != nil {
		log.Warn("Failed to send notification", logger.String("type", string(kind)), logger.Error(err))
	}
}

func (o *Orchestrator) releaseLock(ctx context.Context, log logger.Logger, key string, status model.LockStatus, receipt *model.Receipt) {
	if err := o.deps.Locks.Release(ctx, key, status, receipt); err != nil {
		log.Warn("Failed to release delivery lock", logger.String("status", string(status)), logger.Error(err))
	}
}
