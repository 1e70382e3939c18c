package cache

import (
	"context"
	"time"

	"caderninho/backend/internal/domain"
)

// SummaryCache stores ledger summaries per business. Misses and errors are
// never fatal to callers; the summary is recomputed from the store.
type SummaryCache interface {
	Get(ctx context.Context, businessID string) (*domain.LedgerSummary, bool, error)
	Set(ctx context.Context, businessID string, value *domain.LedgerSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, businessID string) error
}

func SummaryKey(businessID string) string {
	return "ledger:summary:" + businessID
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.LedgerSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.LedgerSummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
