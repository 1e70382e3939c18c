package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"caderninho/backend/internal/cache"
	"caderninho/backend/internal/calendar"
	"caderninho/backend/internal/clock"
	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/metrics"
	"caderninho/backend/internal/store"
)

const DefaultMaxInstallments = 12

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Clock    clock.Clock
	Location *time.Location
	// MaxInstallments caps installments_count; values below 2 use the default.
	MaxInstallments int
	// AtomicWrites runs submissions inside store.Transactor when the
	// repository provides one.
	AtomicWrites    bool
	SummaryCache    cache.SummaryCache
	SummaryCacheTTL time.Duration
	Metrics         *metrics.Recorder
	Logger          *zap.Logger
}

type Service struct {
	products     store.ProductReader
	customers    store.CustomerReader
	writer       store.SaleWriter
	sales        store.SaleReader
	installments store.InstallmentStore
	tx           store.Transactor

	clock           clock.Clock
	location        *time.Location
	maxInstallments int
	summaryCache    cache.SummaryCache
	summaryTTL      time.Duration
	metrics         *metrics.Recorder
	logger          *zap.Logger
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		products:        repo,
		customers:       repo,
		writer:          repo,
		sales:           repo,
		installments:    repo,
		clock:           opts.Clock,
		location:        opts.Location,
		maxInstallments: opts.MaxInstallments,
		summaryCache:    opts.SummaryCache,
		summaryTTL:      opts.SummaryCacheTTL,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.maxInstallments < 2 || s.maxInstallments > DefaultMaxInstallments {
		s.maxInstallments = DefaultMaxInstallments
	}
	if s.summaryCache == nil {
		s.summaryCache = cache.NoopSummaryCache{}
	}
	if s.summaryTTL <= 0 {
		s.summaryTTL = 30 * time.Second
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.AtomicWrites {
		if tx, ok := repo.(store.Transactor); ok {
			s.tx = tx
		} else {
			s.logger.Warn("atomic sale writes requested but the repository has no transaction support")
		}
	}
	return s
}

// today is the current civil date in the business timezone.
func (s *Service) today() (calendar.Date, time.Time) {
	now := s.clock.Now()
	return calendar.In(now, s.location), now
}

func requireBusiness(businessID string) (string, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return "", invalidField("business_id", "is required")
	}
	return businessID, nil
}

func (s *Service) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return nil, err
	}
	return s.products.ListProducts(ctx, businessID)
}

func (s *Service) ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return nil, err
	}
	return s.customers.ListCustomers(ctx, businessID)
}
