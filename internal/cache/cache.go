package cache

import (
	"context"
	"time"

	"jassperfumes/backend/internal/domain"
)

// OverviewCache holds the assembled inventory overview, which joins
// products, batches and disposal aggregates and is the most expensive
// read in the API. Writes that touch stock invalidate it.
type OverviewCache interface {
	Get(ctx context.Context, key string) (*domain.InventoryOverview, bool, error)
	Set(ctx context.Context, key string, value *domain.InventoryOverview, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopOverviewCache struct{}

func (NoopOverviewCache) Get(_ context.Context, _ string) (*domain.InventoryOverview, bool, error) {
	return nil, false, nil
}

func (NoopOverviewCache) Set(_ context.Context, _ string, _ *domain.InventoryOverview, _ time.Duration) error {
	return nil
}

func (NoopOverviewCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
