package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// HistoryStore records completed non-test deliveries per release, newest first.
type HistoryStore struct {
	rdb *redis.Client
}

// NewHistoryStore creates a history store.
func NewHistoryStore(rdb *redis.Client) *HistoryStore {
	return &HistoryStore{rdb: rdb}
}

func historyKey(releaseID string) string { return fmt.Sprintf("delivery:history:%s", releaseID) }

// Append records a completed delivery.
func (s *HistoryStore) Append(ctx context.Context, rec model.HistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	if err := s.rdb.LPush(ctx, historyKey(rec.ReleaseID), data).Err(); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// List returns up to limit records for a release. limit <= 0 returns all.
func (s *HistoryStore) List(ctx context.Context, releaseID string, limit int) ([]model.HistoryRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.rdb.LRange(ctx, historyKey(releaseID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	records := make([]model.HistoryRecord, 0, len(raw))
	for _, r := range raw {
		var rec model.HistoryRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
