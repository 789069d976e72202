package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

const targetIndexKey = "delivery:targets"

// TargetStore is the registry of delivery targets.
type TargetStore struct {
	rdb *redis.Client
}

// NewTargetStore creates a target store.
func NewTargetStore(rdb *redis.Client) *TargetStore {
	return &TargetStore{rdb: rdb}
}

func targetKey(id string) string { return fmt.Sprintf("delivery:target:%s", id) }

// Put creates or replaces a target.
func (s *TargetStore) Put(ctx context.Context, target *model.DeliveryTarget) error {
	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal target: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, targetKey(target.ID), data, 0)
		pipe.SAdd(ctx, targetIndexKey, target.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save target: %w", err)
	}
	return nil
}

// Get loads a target.
func (s *TargetStore) Get(ctx context.Context, id string) (*model.DeliveryTarget, error) {
	data, err := s.rdb.Get(ctx, targetKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to load target: %w", err)
	}

	var target model.DeliveryTarget
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target: %w", err)
	}
	return &target, nil
}

// List returns every target ordered by id.
func (s *TargetStore) List(ctx context.Context) ([]*model.DeliveryTarget, error) {
	ids, err := s.rdb.SMembers(ctx, targetIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	sort.Strings(ids)

	targets := make([]*model.DeliveryTarget, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, model.ErrTargetNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}
