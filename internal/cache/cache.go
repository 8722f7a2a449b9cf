package cache

import (
	"context"
	"time"

	"tokopos/internal/domain"
)

// ReportCache holds recently generated sales reports for a short TTL so
// repeated dashboard loads do not re-run the aggregation queries.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SalesReport, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SalesReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SalesReport, _ time.Duration) error {
	return nil
}
