// Package lock guards delivery execution so that one idempotency key is worked
// on by at most one worker at a time, across processes.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// Reasons reported when Acquire does not grant the lock.
const (
	ReasonLocked    = "locked"
	ReasonCompleted = "completed"
)

// ErrNotOwner is returned by Release when the lock was taken over by another
// instance or already records a completed delivery.
var ErrNotOwner = errors.New("lock owned by another instance")

// AcquireResult is the outcome of an acquisition attempt.
type AcquireResult struct {
	Acquired bool
	Reason   string
	Attempt  int
	// Result is the cached receipt of a completed delivery.
	Result *model.Receipt
}

// Manager provides single-flight execution per idempotency key.
type Manager interface {
	Acquire(ctx context.Context, key string) (*AcquireResult, error)
	Release(ctx context.Context, key string, status model.LockStatus, result *model.Receipt) error
	Get(ctx context.Context, key string) (*model.Lock, error)
}

// RedisManager stores each lock as a Redis hash and mutates it with Lua
// scripts, so every acquire and release is one atomic read-modify-write.
type RedisManager struct {
	redis     redis.Cmdable
	owner     string
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

// Option customises a RedisManager.
type Option func(*RedisManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *RedisManager) { m.now = now }
}

// NewRedisManager creates a lock manager owned by instanceID.
func NewRedisManager(client redis.Cmdable, instanceID string, ttl, retention time.Duration, opts ...Option) *RedisManager {
	m := &RedisManager{
		redis:     client,
		owner:     instanceID,
		ttl:       ttl,
		retention: retention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func lockKey(key string) string {
	return fmt.Sprintf("delivery:lock:%s", key)
}

// acquireScript grants the lock when it is missing, expired, or in a
// replayable terminal state. A completed, unexpired lock returns its result.
//
// KEYS[1] lock key
// ARGV[1] now (ms), ARGV[2] expiresAt (ms), ARGV[3] owner, ARGV[4] key ttl (ms)
var acquireScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status then
  local expires = tonumber(redis.call('HGET', KEYS[1], 'expiresAt') or '0')
  local now = tonumber(ARGV[1])
  if status == 'processing' and expires > now then
    return {0, 'locked', 0, ''}
  end
  if status == 'completed' and expires > now then
    return {0, 'completed', 0, redis.call('HGET', KEYS[1], 'result') or ''}
  end
end
local attempt = tonumber(redis.call('HGET', KEYS[1], 'attempt') or '0') + 1
redis.call('HSET', KEYS[1],
  'status', 'processing',
  'acquiredAt', ARGV[1],
  'expiresAt', ARGV[2],
  'attempt', attempt,
  'owner', ARGV[3])
redis.call('HDEL', KEYS[1], 'result')
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {1, 'acquired', attempt, ''}
`)

// releaseScript writes a terminal status. A record taken over by another
// owner is left untouched whatever its status, and an unexpired completed
// record is never downgraded.
//
// KEYS[1] lock key
// ARGV[1] now (ms), ARGV[2] status, ARGV[3] expiresAt (ms), ARGV[4] owner,
// ARGV[5] result json, ARGV[6] key ttl (ms)
var releaseScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
local owner = redis.call('HGET', KEYS[1], 'owner')
if status and owner ~= ARGV[4] then
  return 0
end
if status == 'completed' and ARGV[2] ~= 'completed' then
  local expires = tonumber(redis.call('HGET', KEYS[1], 'expiresAt') or '0')
  if expires > tonumber(ARGV[1]) then
    return 0
  end
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'expiresAt', ARGV[3], 'owner', ARGV[4])
if ARGV[5] ~= '' then
  redis.call('HSET', KEYS[1], 'result', ARGV[5])
else
  redis.call('HDEL', KEYS[1], 'result')
end
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return 1
`)

// Acquire tries to take the lock for key.
func (m *RedisManager) Acquire(ctx context.Context, key string) (*AcquireResult, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	// The hash outlives its processing window so a completed or failed record
	// can be replayed; the retention window is applied on release.
	keyTTL := m.ttl + m.retention

	raw, err := acquireScript.Run(ctx, m.redis, []string{lockKey(key)},
		now.UnixMilli(), expiresAt.UnixMilli(), m.owner, keyTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if len(raw) != 4 {
		return nil, fmt.Errorf("unexpected acquire reply: %v", raw)
	}

	granted, _ := raw[0].(int64)
	reason, _ := raw[1].(string)
	attempt, _ := raw[2].(int64)
	payload, _ := raw[3].(string)

	if granted == 1 {
		return &AcquireResult{Acquired: true, Attempt: int(attempt)}, nil
	}

	res := &AcquireResult{Acquired: false, Reason: reason}
	if reason == ReasonCompleted && payload != "" {
		var receipt model.Receipt
		if err := json.Unmarshal([]byte(payload), &receipt); err != nil {
			return nil, fmt.Errorf("failed to decode cached result: %w", err)
		}
		res.Result = &receipt
	}
	return res, nil
}

// Release records the terminal status of the lock, keeping it for the
// retention window so duplicate requests can be answered from it.
func (m *RedisManager) Release(ctx context.Context, key string, status model.LockStatus, result *model.Receipt) error {
	var payload string
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal lock result: %w", err)
		}
		payload = string(data)
	}

	now := m.now()
	expiresAt := now.Add(m.retention)
	if status == model.LockStatusFailed {
		// A failed lock must not block the scheduled retry.
		expiresAt = now
	}

	released, err := releaseScript.Run(ctx, m.redis, []string{lockKey(key)},
		now.UnixMilli(), string(status), expiresAt.UnixMilli(), m.owner, payload, m.retention.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if released == 0 {
		return ErrNotOwner
	}
	return nil
}

// Get returns the current lock record, or nil when none exists.
func (m *RedisManager) Get(ctx context.Context, key string) (*model.Lock, error) {
	fields, err := m.redis.HGetAll(ctx, lockKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	l := &model.Lock{
		LockID:          key,
		Status:          model.LockStatus(fields["status"]),
		AcquiredAt:      msToTime(fields["acquiredAt"]),
		ExpiresAt:       msToTime(fields["expiresAt"]),
		OwnerInstanceID: fields["owner"],
	}
	l.Attempt, _ = strconv.Atoi(fields["attempt"])
	if raw := fields["result"]; raw != "" {
		var receipt model.Receipt
		if err := json.Unmarshal([]byte(raw), &receipt); err == nil {
			l.Result = &receipt
		}
	}
	return l, nil
}

func msToTime(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
