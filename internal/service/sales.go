package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/money"
	"caderninho/backend/internal/schedule"
	"caderninho/backend/internal/store"
)

// SubmitSale validates the cart and payment plan, then writes the sale, one
// item per cart line and the scheduled installments, in that order. Every
// precondition is checked before the first write. Outside atomic mode a
// failing write leaves earlier rows in place and is reported as a
// *TransportError with Partial set.
func (s *Service) SubmitSale(ctx context.Context, businessID string, req domain.SaleRequest) (domain.SaleDetail, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	items, err := normalizeItems(req.Items)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	plan, err := s.normalizePlan(req.Plan)
	if err != nil {
		return domain.SaleDetail{}, err
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if plan.PaymentType == domain.PaymentInstallments && customerID == "" {
		return domain.SaleDetail{}, invalidField("customer_id", "is required for installment sales")
	}
	if customerID != "" {
		if _, err := s.customers.GetCustomer(ctx, businessID, customerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SaleDetail{}, invalidField("customer_id", "unknown customer %q", customerID)
			}
			return domain.SaleDetail{}, &TransportError{Step: StepLoadCustomer, ItemIndex: -1, Err: err}
		}
	}

	products, err := s.checkStock(ctx, businessID, items)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	lines, total, err := priceItems(items, products)
	if err != nil {
		return domain.SaleDetail{}, err
	}

	today, now := s.today()
	entries, err := schedule.Schedule(total, plan, today, now)
	if err != nil {
		return domain.SaleDetail{}, err
	}

	sale := domain.Sale{
		BusinessID:        businessID,
		CustomerID:        customerID,
		PaymentType:       plan.PaymentType,
		TotalAmount:       total,
		InstallmentsCount: len(entries),
		FirstDueDate:      plan.FirstDueDate,
		HasDownPayment:    plan.HasDownPayment,
		DownPaymentAmount: plan.DownPayment(),
		Notes:             strings.TrimSpace(req.Notes),
		CreatedAt:         now.UTC(),
	}

	detail, err := s.persistSale(ctx, sale, lines, entries)
	s.invalidateSummary(ctx, businessID)
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			s.metrics.SaleFailed(terr.Step)
			s.logger.Error("sale submission failed",
				zap.String("business_id", businessID),
				zap.String("step", terr.Step),
				zap.Int("item_index", terr.ItemIndex),
				zap.String("sale_id", terr.SaleID),
				zap.Bool("partial", terr.Partial),
				zap.Error(terr.Err),
			)
		}
		return domain.SaleDetail{}, err
	}

	s.metrics.SaleSubmitted(string(sale.PaymentType))
	s.logger.Info("sale submitted",
		zap.String("business_id", businessID),
		zap.String("sale_id", detail.Sale.ID),
		zap.String("payment_type", string(sale.PaymentType)),
		zap.String("total", total.String()),
		zap.Int("installments", len(detail.Installments)),
	)
	return detail, nil
}

func (s *Service) persistSale(ctx context.Context, sale domain.Sale, lines []domain.PricedLine, entries []schedule.Entry) (domain.SaleDetail, error) {
	if s.tx == nil {
		return writeSale(ctx, s.writer, sale, lines, entries)
	}

	var detail domain.SaleDetail
	err := s.tx.RunInTx(ctx, func(w store.SaleWriter) error {
		var err error
		detail, err = writeSale(ctx, w, sale, lines, entries)
		return err
	})
	if err == nil {
		return detail, nil
	}

	var terr *TransportError
	if errors.As(err, &terr) {
		rolledBack := *terr
		rolledBack.Partial = false
		rolledBack.SaleID = ""
		return domain.SaleDetail{}, &rolledBack
	}
	return domain.SaleDetail{}, &TransportError{Step: StepCommit, ItemIndex: -1, Err: err}
}

func writeSale(ctx context.Context, w store.SaleWriter, sale domain.Sale, lines []domain.PricedLine, entries []schedule.Entry) (domain.SaleDetail, error) {
	if err := ctx.Err(); err != nil {
		return domain.SaleDetail{}, &TransportError{Step: StepInsertSale, ItemIndex: -1, Err: err}
	}
	created, err := w.InsertSale(ctx, sale)
	if err != nil {
		return domain.SaleDetail{}, &TransportError{Step: StepInsertSale, ItemIndex: -1, Err: err}
	}

	detail := domain.SaleDetail{
		Sale:         *created,
		Items:        make([]domain.SaleItem, 0, len(lines)),
		Installments: make([]domain.Installment, 0, len(entries)),
	}
	fail := func(step string, index int, err error) (domain.SaleDetail, error) {
		return domain.SaleDetail{}, &TransportError{Step: step, ItemIndex: index, SaleID: created.ID, Partial: true, Err: err}
	}

	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return fail(StepInsertSaleItem, i, err)
		}
		row, err := w.InsertSaleItem(ctx, domain.SaleItem{
			SaleID:     created.ID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalPrice: line.LineTotal,
		})
		if err != nil {
			return fail(StepInsertSaleItem, i, err)
		}
		detail.Items = append(detail.Items, *row)
	}

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return fail(StepInsertInstallment, i, err)
		}
		row, err := w.InsertInstallment(ctx, domain.Installment{
			SaleID:            created.ID,
			CustomerID:        created.CustomerID,
			BusinessID:        created.BusinessID,
			InstallmentNumber: entry.Number,
			Amount:            entry.Amount,
			DueDate:           entry.DueDate,
			Status:            entry.Status,
			PaidAt:            entry.PaidAt,
		})
		if err != nil {
			return fail(StepInsertInstallment, i, err)
		}
		detail.Installments = append(detail.Installments, *row)
	}
	return detail, nil
}

// ValidateCart prices the cart against the catalog and runs the stock check
// done at cart assembly. Nothing is written.
func (s *Service) ValidateCart(ctx context.Context, businessID string, req domain.CartValidationRequest) (domain.CartValidationResponse, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return domain.CartValidationResponse{}, err
	}
	items, err := normalizeItems(req.Items)
	if err != nil {
		return domain.CartValidationResponse{}, err
	}
	products, err := s.checkStock(ctx, businessID, items)
	if err != nil {
		return domain.CartValidationResponse{}, err
	}

	lines, total, err := priceItems(items, products)
	if err != nil {
		return domain.CartValidationResponse{}, err
	}
	return domain.CartValidationResponse{Lines: lines, Total: total}, nil
}

func (s *Service) ListSales(ctx context.Context, businessID string, limit int) ([]domain.Sale, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.sales.ListSales(ctx, businessID, limit)
}

func (s *Service) GetSale(ctx context.Context, businessID string, saleID string) (domain.SaleDetail, error) {
	businessID, err := requireBusiness(businessID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	sale, err := s.sales.GetSale(ctx, businessID, strings.TrimSpace(saleID))
	if err != nil {
		return domain.SaleDetail{}, err
	}
	items, err := s.sales.ListSaleItems(ctx, sale.ID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	installments, err := s.installments.ListInstallments(ctx, businessID, store.InstallmentFilter{SaleID: sale.ID})
	if err != nil {
		return domain.SaleDetail{}, err
	}
	sortByNumber(installments)
	return domain.SaleDetail{Sale: *sale, Items: items, Installments: installments}, nil
}

func normalizeItems(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, invalidField("items", "cart is empty")
	}
	out := make([]domain.CartItem, 0, len(items))
	for i, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return nil, invalidField(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity < 1 {
			return nil, invalidField(fmt.Sprintf("items[%d].quantity", i), "must be positive, got %d", item.Quantity)
		}
		if item.UnitPrice != nil {
			if item.UnitPrice.IsNegative() {
				return nil, invalidField(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
			}
			if *item.UnitPrice > money.MaxAmount {
				return nil, invalidField(fmt.Sprintf("items[%d].unit_price", i), "must be at most %s", money.MaxAmount)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// normalizePlan clears the fields a plan type ignores so they persist as
// zero values.
func (s *Service) normalizePlan(plan domain.PaymentPlan) (domain.PaymentPlan, error) {
	switch plan.PaymentType {
	case domain.PaymentOneTime:
		return domain.PaymentPlan{PaymentType: domain.PaymentOneTime, InstallmentsCount: 1}, nil
	case domain.PaymentInstallments:
	default:
		return domain.PaymentPlan{}, invalidField("payment_type", "must be one_time or installments")
	}

	if plan.InstallmentsCount < 1 {
		return domain.PaymentPlan{}, invalidField("installments_count", "must be positive, got %d", plan.InstallmentsCount)
	}
	if plan.InstallmentsCount < 2 {
		return domain.PaymentPlan{}, invalidField("installments_count", "installment sales need at least 2 installments")
	}
	if plan.InstallmentsCount > s.maxInstallments {
		return domain.PaymentPlan{}, invalidField("installments_count", "must be at most %d", s.maxInstallments)
	}
	if !plan.HasDownPayment {
		plan.DownPaymentAmount = 0
	}
	if plan.DownPaymentAmount.IsNegative() {
		return domain.PaymentPlan{}, invalidField("down_payment_amount", "must not be negative")
	}
	if plan.FirstDueDate != nil && plan.FirstDueDate.IsZero() {
		plan.FirstDueDate = nil
	}
	return plan, nil
}

// checkStock loads the cart's products and compares the summed quantity per
// product against the currently reported stock.
func (s *Service) checkStock(ctx context.Context, businessID string, items []domain.CartItem) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(items))
	requested := make(map[string]int, len(items))
	for _, item := range items {
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	products, err := s.products.GetProductsByIDs(ctx, businessID, ids)
	if err != nil {
		return nil, &TransportError{Step: StepLoadProducts, ItemIndex: -1, Err: err}
	}
	for i, item := range items {
		if _, ok := products[item.ProductID]; !ok {
			return nil, invalidField(fmt.Sprintf("items[%d].product_id", i), "unknown product %q", item.ProductID)
		}
	}
	for _, id := range ids {
		product := products[id]
		if requested[id] > product.Quantity {
			return nil, &StockConflictError{
				ProductID:   id,
				ProductName: product.Name,
				Requested:   requested[id],
				Available:   product.Quantity,
			}
		}
	}
	return products, nil
}

// priceItems resolves each line's unit price, taking the catalog price when
// the cart leaves it out, and sums the line totals. A line or cart total past
// money.MaxAmount is a validation error.
func priceItems(items []domain.CartItem, products map[string]domain.Product) ([]domain.PricedLine, money.Cents, error) {
	lines := make([]domain.PricedLine, 0, len(items))
	var total money.Cents
	for i, item := range items {
		product := products[item.ProductID]
		unit := product.Price
		if item.UnitPrice != nil {
			unit = *item.UnitPrice
		}
		lineTotal, err := unit.MulQty(item.Quantity)
		if err != nil {
			return nil, 0, invalidField(fmt.Sprintf("items[%d]", i), "line total exceeds %s", money.MaxAmount)
		}
		total, err = money.Add(total, lineTotal)
		if err != nil {
			return nil, 0, invalidField("items", "cart total exceeds %s", money.MaxAmount)
		}
		lines = append(lines, domain.PricedLine{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   unit,
			LineTotal:   lineTotal,
			Available:   product.Quantity,
		})
	}
	return lines, total, nil
}
