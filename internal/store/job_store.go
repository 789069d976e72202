// Package store persists delivery jobs, targets and history in Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

const (
	// JobRetention bounds how long job records and their logs are kept.
	JobRetention = 30 * 24 * time.Hour

	maxUpdateRetries = 10
)

var idemCompareAndSwap = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`)

// JobStore keeps one JSON document per job plus an append-only log list.
type JobStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewJobStore creates a job store.
func NewJobStore(rdb *redis.Client) *JobStore {
	return &JobStore{rdb: rdb, ttl: JobRetention}
}

func jobKey(id string) string        { return fmt.Sprintf("delivery:job:%s", id) }
func jobLogsKey(id string) string    { return fmt.Sprintf("delivery:job:%s:logs", id) }
func idempotencyKey(k string) string { return fmt.Sprintf("delivery:idem:%s", k) }

// Create stores a new job. It fails if the id is already taken.
func (s *JobStore) Create(ctx context.Context, job *model.DeliveryJob) error {
	data, err := marshalJob(job)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return nil
}

// Delete removes a job and its logs.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, jobKey(id), jobLogsKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Get loads a job without its logs.
func (s *JobStore) Get(ctx context.Context, id string) (*model.DeliveryJob, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job model.DeliveryJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Update applies fn to the current job inside a WATCH/MULTI transaction and
// retries on concurrent modification. If fn returns an error nothing is
// written and that error is returned.
func (s *JobStore) Update(ctx context.Context, id string, fn func(job *model.DeliveryJob) error) (*model.DeliveryJob, error) {
	key := jobKey(id)
	var updated *model.DeliveryJob

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrJobNotFound
			}
			return err
		}

		var job model.DeliveryJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		if err := fn(&job); err != nil {
			return err
		}

		out, err := marshalJob(&job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to update job %s: too much contention", id)
}

// AppendLog adds entry to the end of the job's audit trail.
func (s *JobStore) AppendLog(ctx context.Context, id string, entry model.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	key := jobLogsKey(id)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// Logs returns the audit trail in append order.
func (s *JobStore) Logs(ctx context.Context, id string) ([]model.LogEntry, error) {
	raw, err := s.rdb.LRange(ctx, jobLogsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}

	entries := make([]model.LogEntry, 0, len(raw))
	for _, r := range raw {
		var e model.LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ClaimIdempotency points the idempotency key at jobID when no job owns it
// yet. Otherwise it returns the id of the current owner.
func (s *JobStore) ClaimIdempotency(ctx context.Context, key, jobID string) (owner string, claimed bool, err error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyKey(key), jobID, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return jobID, true, nil
	}

	owner, err = s.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return s.ClaimIdempotency(ctx, key, jobID)
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return owner, false, nil
}

// IdempotencyOwner returns the job currently holding key, or "" when none does.
func (s *JobStore) IdempotencyOwner(ctx context.Context, key string) (string, error) {
	owner, err := s.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return owner, nil
}

// ReplaceIdempotency moves the key from previous to jobID if previous still
// owns it.
func (s *JobStore) ReplaceIdempotency(ctx context.Context, key, previous, jobID string) (bool, error) {
	res, err := idemCompareAndSwap.Run(ctx, s.rdb, []string{idempotencyKey(key)}, previous, jobID, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to replace idempotency key: %w", err)
	}
	return res == 1, nil
}

func marshalJob(job *model.DeliveryJob) ([]byte, error) {
	// Logs live in their own list.
	copied := *job
	copied.Logs = nil
	data, err := json.Marshal(&copied)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}
