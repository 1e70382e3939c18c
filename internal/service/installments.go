package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/ledger"
	"caderninho/backend/internal/store"
)

var payableStatuses = []domain.InstallmentStatus{domain.InstallmentPending, domain.InstallmentOverdue}

// MarkPaid settles an installment. Paying an installment that is already pago
// returns it unchanged, keeping the original paid_at. Cancelled installments
// are rejected with store.ErrInvalidTransition.
func (s *Service) MarkPaid(ctx context.Context, businessID string, installmentID string) (domain.Installment, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return domain.Installment{}, err
	}
	installmentID = strings.TrimSpace(installmentID)
	if installmentID == "" {
		return domain.Installment{}, invalidField("installment_id", "is required")
	}

	current, err := s.installments.GetInstallment(ctx, businessID, installmentID)
	if err != nil {
		return domain.Installment{}, err
	}
	if current.Status == domain.InstallmentPaid {
		return *current, nil
	}
	if !current.Status.Payable() {
		return domain.Installment{}, fmt.Errorf("%w: installment %s is %s", store.ErrInvalidTransition, installmentID, current.Status)
	}

	_, now := s.today()
	paidAt := now.UTC()
	updated, err := s.installments.UpdateInstallmentStatus(ctx, businessID, installmentID, payableStatuses, domain.InstallmentPaid, &paidAt)
	if errors.Is(err, store.ErrInvalidTransition) {
		// Paid concurrently between the read and the update.
		latest, getErr := s.installments.GetInstallment(ctx, businessID, installmentID)
		if getErr == nil && latest.Status == domain.InstallmentPaid {
			return *latest, nil
		}
	}
	if err != nil {
		return domain.Installment{}, err
	}

	s.metrics.InstallmentPaid()
	s.invalidateSummary(ctx, businessID)
	s.logger.Info("installment paid",
		zap.String("business_id", businessID),
		zap.String("installment_id", installmentID),
		zap.String("sale_id", updated.SaleID),
		zap.String("amount", updated.Amount.String()),
	)
	return *updated, nil
}

// Summary buckets the business's installments by stored status.
func (s *Service) Summary(ctx context.Context, businessID string) (domain.LedgerSummary, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return domain.LedgerSummary{}, err
	}

	cached, ok, err := s.summaryCache.Get(ctx, businessID)
	if err != nil {
		s.logger.Warn("summary cache read failed", zap.String("business_id", businessID), zap.Error(err))
	}
	s.metrics.SummaryCacheRead(ok)
	if ok && cached != nil {
		return *cached, nil
	}

	installments, err := s.installments.ListInstallments(ctx, businessID, store.InstallmentFilter{})
	if err != nil {
		return domain.LedgerSummary{}, err
	}
	summary := ledger.Summarize(installments)
	if err := s.summaryCache.Set(ctx, businessID, &summary, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("business_id", businessID), zap.Error(err))
	}
	return summary, nil
}

// Installments lists ledger rows with their display status. filter is one of
// all, pendente, atrasado, pago or cancelado and matches the display status.
func (s *Service) Installments(ctx context.Context, businessID string, filter string, customerID string) ([]domain.InstallmentView, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return nil, err
	}
	bucket, ok := ledger.ParseFilter(filter)
	if !ok {
		return nil, invalidField("status", "unknown filter %q", filter)
	}
	views, err := s.views(ctx, businessID, store.InstallmentFilter{CustomerID: strings.TrimSpace(customerID)})
	if err != nil {
		return nil, err
	}
	return ledger.FilterByDisplay(views, bucket), nil
}

// CustomerBalances aggregates open installments per customer.
func (s *Service) CustomerBalances(ctx context.Context, businessID string) ([]domain.CustomerBalance, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, businessID, store.InstallmentFilter{})
	if err != nil {
		return nil, err
	}
	return ledger.CustomerBalances(views), nil
}

func (s *Service) views(ctx context.Context, businessID string, filter store.InstallmentFilter) ([]domain.InstallmentView, error) {
	installments, err := s.installments.ListInstallments(ctx, businessID, filter)
	if err != nil {
		return nil, err
	}
	customers, err := s.customers.ListCustomers(ctx, businessID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}
	today, _ := s.today()
	return ledger.Views(installments, today, names), nil
}

func (s *Service) invalidateSummary(ctx context.Context, businessID string) {
	if err := s.summaryCache.Invalidate(context.WithoutCancel(ctx), businessID); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("business_id", businessID), zap.Error(err))
	}
}

func sortByNumber(installments []domain.Installment) {
	sort.SliceStable(installments, func(i, j int) bool {
		return installments[i].InstallmentNumber < installments[j].InstallmentNumber
	})
}
