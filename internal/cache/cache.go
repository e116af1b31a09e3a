package cache

import (
	"context"
	"time"

	"shiftbook/backend/internal/domain"
)

type AggregateCache interface {
	Get(ctx context.Context, key string) (*domain.ShiftAggregate, bool, error)
	Set(ctx context.Context, key string, value *domain.ShiftAggregate, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopAggregateCache struct{}

func (NoopAggregateCache) Get(_ context.Context, _ string) (*domain.ShiftAggregate, bool, error) {
	return nil, false, nil
}

func (NoopAggregateCache) Set(_ context.Context, _ string, _ *domain.ShiftAggregate, _ time.Duration) error {
	return nil
}

func (NoopAggregateCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
