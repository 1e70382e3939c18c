package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"caderninho/backend/internal/calendar"
	"caderninho/backend/internal/clock"
	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/metrics"
	"caderninho/backend/internal/money"
	"caderninho/backend/internal/schedule"
	"caderninho/backend/internal/store"
	"caderninho/backend/internal/store/memory"
)

const testBusiness = "loja-teste"

var testNow = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

type harness struct {
	store *memory.Store
	clock *clock.Fake
	svc   *Service
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	st := memory.New()
	st.PutProduct(domain.Product{ID: "vestido", BusinessID: testBusiness, Name: "Vestido", Price: money.MustParse("150.00"), Quantity: 10})
	st.PutProduct(domain.Product{ID: "batom", BusinessID: testBusiness, Name: "Batom", Price: money.MustParse("1.00"), Quantity: 2})
	st.PutProduct(domain.Product{ID: "saia", BusinessID: testBusiness, Name: "Saia", Price: money.MustParse("301.00"), Quantity: 5})
	st.PutCustomer(domain.Customer{ID: "ana", BusinessID: testBusiness, Name: "Ana"})
	st.PutCustomer(domain.Customer{ID: "bia", BusinessID: testBusiness, Name: "Bia"})

	fake := clock.NewFake(testNow)
	opts := Options{
		Clock:   fake,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  zaptest.NewLogger(t),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return &harness{store: st, clock: fake, svc: New(st, opts)}
}

func (h *harness) stock(t *testing.T, productID string) int {
	t.Helper()
	products, err := h.store.GetProductsByIDs(context.Background(), testBusiness, []string{productID})
	require.NoError(t, err)
	return products[productID].Quantity
}

func (h *harness) saleCount(t *testing.T) int {
	t.Helper()
	sales, err := h.store.ListSales(context.Background(), testBusiness, 0)
	require.NoError(t, err)
	return len(sales)
}

func datePtr(raw string) *calendar.Date {
	d := calendar.MustParse(raw)
	return &d
}

func price(raw string) *money.Cents {
	c := money.MustParse(raw)
	return &c
}

func TestSubmitOneTimeSale(t *testing.T) {
	h := newHarness(t)

	detail, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		Items: []domain.CartItem{{ProductID: "vestido", Quantity: 2, UnitPrice: price("150.00")}},
		Plan:  domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
	})
	require.NoError(t, err)

	assert.Equal(t, money.MustParse("300.00"), detail.Sale.TotalAmount)
	assert.Equal(t, 1, detail.Sale.InstallmentsCount)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, money.MustParse("300.00"), detail.Items[0].TotalPrice)
	require.Len(t, detail.Installments, 1)

	inst := detail.Installments[0]
	assert.Equal(t, money.MustParse("300.00"), inst.Amount)
	assert.Equal(t, domain.InstallmentPaid, inst.Status)
	assert.Equal(t, "2024-01-15", inst.DueDate.String())
	require.NotNil(t, inst.PaidAt)
	assert.Equal(t, "2024-01-15", calendar.Of(*inst.PaidAt).String())

	assert.Equal(t, 8, h.stock(t, "vestido"), "sale item insert deducts stock")
}

func TestSubmitInstallmentsWithFirstDueDate(t *testing.T) {
	h := newHarness(t)

	detail, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		CustomerID: "ana",
		Items:      []domain.CartItem{{ProductID: "vestido", Quantity: 2, UnitPrice: price("150.00")}},
		Plan: domain.PaymentPlan{
			PaymentType:       domain.PaymentInstallments,
			InstallmentsCount: 3,
			FirstDueDate:      datePtr("2024-02-01"),
		},
	})
	require.NoError(t, err)
	require.Len(t, detail.Installments, 3)

	wantDue := []string{"2024-02-01", "2024-03-01", "2024-04-01"}
	for i, inst := range detail.Installments {
		assert.Equal(t, i+1, inst.InstallmentNumber)
		assert.Equal(t, money.MustParse("100.00"), inst.Amount)
		assert.Equal(t, wantDue[i], inst.DueDate.String())
		assert.Equal(t, domain.InstallmentPending, inst.Status)
		assert.Equal(t, "ana", inst.CustomerID)
		assert.Equal(t, testBusiness, inst.BusinessID)
	}
	require.NotNil(t, detail.Sale.FirstDueDate)
	assert.Equal(t, "2024-02-01", detail.Sale.FirstDueDate.String())
}

func TestSubmitInstallmentsWithDownPayment(t *testing.T) {
	h := newHarness(t)

	detail, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		CustomerID: "ana",
		Items:      []domain.CartItem{{ProductID: "saia", Quantity: 1, UnitPrice: price("301.00")}},
		Plan: domain.PaymentPlan{
			PaymentType:       domain.PaymentInstallments,
			InstallmentsCount: 3,
			HasDownPayment:    true,
			DownPaymentAmount: money.MustParse("1.00"),
			FirstDueDate:      datePtr("2024-02-01"),
		},
	})
	require.NoError(t, err)
	require.Len(t, detail.Installments, 3)

	down := detail.Installments[0]
	assert.Equal(t, money.MustParse("1.00"), down.Amount)
	assert.Equal(t, domain.InstallmentPaid, down.Status)
	assert.Equal(t, "2024-01-15", down.DueDate.String())

	assert.Equal(t, money.MustParse("150.00"), detail.Installments[1].Amount)
	assert.Equal(t, money.MustParse("150.00"), detail.Installments[2].Amount)
	assert.Equal(t, "2024-02-01", detail.Installments[1].DueDate.String())
	assert.Equal(t, "2024-03-01", detail.Installments[2].DueDate.String())

	assert.True(t, detail.Sale.HasDownPayment)
	assert.Equal(t, money.MustParse("1.00"), detail.Sale.DownPaymentAmount)
	assert.Equal(t, detail.Sale.TotalAmount, schedule.Total(entriesOf(detail.Installments)))
}

func entriesOf(installments []domain.Installment) []schedule.Entry {
	out := make([]schedule.Entry, 0, len(installments))
	for _, inst := range installments {
		out = append(out, schedule.Entry{Number: inst.InstallmentNumber, Amount: inst.Amount})
	}
	return out
}

func TestSubmitRejectsInsufficientStockBeforeAnyWrite(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		Items: []domain.CartItem{{ProductID: "batom", Quantity: 3, UnitPrice: price("1.00")}},
		Plan:  domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
	})
	require.Error(t, err)

	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "batom", conflict.ProductID)
	assert.Equal(t, "Batom", conflict.ProductName)
	assert.Equal(t, 3, conflict.Requested)
	assert.Equal(t, 2, conflict.Available)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	assert.Zero(t, h.saleCount(t))
	assert.Equal(t, 2, h.stock(t, "batom"))
}

func TestSubmitAggregatesQuantityAcrossLines(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		Items: []domain.CartItem{
			{ProductID: "batom", Quantity: 2, UnitPrice: price("1.00")},
			{ProductID: "batom", Quantity: 1, UnitPrice: price("1.00")},
		},
		Plan: domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
	})
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.Requested)
	assert.Zero(t, h.saleCount(t))
}

func TestSubmitInstallmentsRequiresCustomer(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		Items: []domain.CartItem{{ProductID: "vestido", Quantity: 1, UnitPrice: price("150.00")}},
		Plan:  domain.PaymentPlan{PaymentType: domain.PaymentInstallments, InstallmentsCount: 3},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "customer_id", verr.Field)
	assert.Zero(t, h.saleCount(t))
	assert.Equal(t, 10, h.stock(t, "vestido"))
}

func TestSubmitValidationFailures(t *testing.T) {
	line := []domain.CartItem{{ProductID: "vestido", Quantity: 1, UnitPrice: price("150.00")}}
	cases := map[string]struct {
		business string
		req      domain.SaleRequest
		field    string
	}{
		"missing business": {
			business: " ",
			req:      domain.SaleRequest{Items: line, Plan: domain.PaymentPlan{PaymentType: domain.PaymentOneTime}},
			field:    "business_id",
		},
		"empty cart": {
			business: testBusiness,
			req:      domain.SaleRequest{Plan: domain.PaymentPlan{PaymentType: domain.PaymentOneTime}},
			field:    "items",
		},
		"zero quantity": {
			business: testBusiness,
			req: domain.SaleRequest{
				Items: []domain.CartItem{{ProductID: "vestido", Quantity: 0}},
				Plan:  domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
			},
			field: "items[0].quantity",
		},
		"unknown product": {
			business: testBusiness,
			req: domain.SaleRequest{
				Items: []domain.CartItem{{ProductID: "nope", Quantity: 1}},
				Plan:  domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
			},
			field: "items[0].product_id",
		},
		"unknown customer": {
			business: testBusiness,
			req: domain.SaleRequest{
				CustomerID: "ghost",
				Items:      line,
				Plan:       domain.PaymentPlan{PaymentType: domain.PaymentInstallments, InstallmentsCount: 2},
			},
			field: "customer_id",
		},
		"non-positive count": {
			business: testBusiness,
			req: domain.SaleRequest{
				CustomerID: "ana",
				Items:      line,
				Plan:       domain.PaymentPlan{PaymentType: domain.PaymentInstallments, InstallmentsCount: 0},
			},
			field: "installments_count",
		},
		"count above maximum": {
			business: testBusiness,
			req: domain.SaleRequest{
				CustomerID: "ana",
				Items:      line,
				Plan:       domain.PaymentPlan{PaymentType: domain.PaymentInstallments, InstallmentsCount: 13},
			},
			field: "installments_count",
		},
		"unknown payment type": {
			business: testBusiness,
			req:      domain.SaleRequest{Items: line, Plan: domain.PaymentPlan{PaymentType: "fiado"}},
			field:    "payment_type",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.SubmitSale(context.Background(), tc.business, tc.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, h.saleCount(t))
		})
	}
}

func TestSubmitDownPaymentAboveTotalIsSchedulingError(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		CustomerID: "ana",
		Items:      []domain.CartItem{{ProductID: "vestido", Quantity: 1, UnitPrice: price("150.00")}},
		Plan: domain.PaymentPlan{
			PaymentType:       domain.PaymentInstallments,
			InstallmentsCount: 2,
			HasDownPayment:    true,
			DownPaymentAmount: money.MustParse("200.00"),
		},
	})
	var serr *schedule.SchedulingError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, schedule.ErrInvalidPlan)
	assert.Zero(t, h.saleCount(t))
}

func TestSubmitUsesCatalogPriceWhenUnitPriceOmitted(t *testing.T) {
	h := newHarness(t)

	detail, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		Items: []domain.CartItem{{ProductID: "vestido", Quantity: 1}},
		Plan:  domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
	})
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("150.00"), detail.Sale.TotalAmount)
}

func TestSubmitIgnoresDownPaymentForOneTime(t *testing.T) {
	h := newHarness(t)

	detail, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		Items: []domain.CartItem{{ProductID: "vestido", Quantity: 1, UnitPrice: price("150.00")}},
		Plan: domain.PaymentPlan{
			PaymentType:       domain.PaymentOneTime,
			HasDownPayment:    true,
			DownPaymentAmount: money.MustParse("50.00"),
			InstallmentsCount: 4,
		},
	})
	require.NoError(t, err)
	assert.False(t, detail.Sale.HasDownPayment)
	assert.Zero(t, detail.Sale.DownPaymentAmount)
	assert.Equal(t, 1, detail.Sale.InstallmentsCount)
	require.Len(t, detail.Installments, 1)
}

func TestValidateCartPricesLinesWithoutWriting(t *testing.T) {
	h := newHarness(t)

	resp, err := h.svc.ValidateCart(context.Background(), testBusiness, domain.CartValidationRequest{
		Items: []domain.CartItem{
			{ProductID: "vestido", Quantity: 2},
			{ProductID: "batom", Quantity: 1, UnitPrice: price("2.50")},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, "Vestido", resp.Lines[0].ProductName)
	assert.Equal(t, money.MustParse("300.00"), resp.Lines[0].LineTotal)
	assert.Equal(t, 10, resp.Lines[0].Available)
	assert.Equal(t, money.MustParse("2.50"), resp.Lines[1].UnitPrice)
	assert.Equal(t, money.MustParse("302.50"), resp.Total)
	assert.Zero(t, h.saleCount(t))

	_, err = h.svc.ValidateCart(context.Background(), testBusiness, domain.CartValidationRequest{
		Items: []domain.CartItem{{ProductID: "batom", Quantity: 5}},
	})
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestGetSaleReturnsItemsAndInstallments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.SubmitSale(ctx, testBusiness, domain.SaleRequest{
		CustomerID: "bia",
		Items: []domain.CartItem{
			{ProductID: "vestido", Quantity: 1, UnitPrice: price("150.00")},
			{ProductID: "batom", Quantity: 1, UnitPrice: price("1.00")},
		},
		Plan: domain.PaymentPlan{PaymentType: domain.PaymentInstallments, InstallmentsCount: 4},
	})
	require.NoError(t, err)

	got, err := h.svc.GetSale(ctx, testBusiness, created.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Sale.ID, got.Sale.ID)
	assert.Len(t, got.Items, 2)
	require.Len(t, got.Installments, 4)
	for i, inst := range got.Installments {
		assert.Equal(t, i+1, inst.InstallmentNumber)
	}

	_, err = h.svc.GetSale(ctx, "other-business", created.Sale.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	sales, err := h.svc.ListSales(ctx, testBusiness, 10)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestSubmitRejectsAmountsPastColumnRange(t *testing.T) {
	h := newHarness(t)
	huge := money.Cents(4611686018427387904)
	maxPrice := money.MaxAmount

	cases := []struct {
		name  string
		items []domain.CartItem
		field string
	}{
		{"unit price", []domain.CartItem{{ProductID: "vestido", Quantity: 4, UnitPrice: &huge}}, "items[0].unit_price"},
		{"line total", []domain.CartItem{{ProductID: "vestido", Quantity: 2, UnitPrice: &maxPrice}}, "items[0]"},
		{"cart total", []domain.CartItem{
			{ProductID: "vestido", Quantity: 1, UnitPrice: &maxPrice},
			{ProductID: "batom", Quantity: 1},
		}, "items"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
				Items: tc.items,
				Plan:  domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
			})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)

			_, err = h.svc.ValidateCart(context.Background(), testBusiness, domain.CartValidationRequest{Items: tc.items})
			require.ErrorAs(t, err, &verr)
		})
	}
	assert.Zero(t, h.saleCount(t))
	assert.Equal(t, 10, h.stock(t, "vestido"))
}

func TestSubmitRecordsExplicitZeroPriceAsFree(t *testing.T) {
	h := newHarness(t)

	detail, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		Items: []domain.CartItem{
			{ProductID: "vestido", Quantity: 1, UnitPrice: price("0")},
			{ProductID: "batom", Quantity: 1},
		},
		Plan: domain.PaymentPlan{PaymentType: domain.PaymentOneTime},
	})
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("1.00"), detail.Sale.TotalAmount)
	require.Len(t, detail.Items, 2)
	assert.Zero(t, detail.Items[0].UnitPrice)
	assert.Zero(t, detail.Items[0].TotalPrice)
	assert.Equal(t, money.MustParse("1.00"), detail.Items[1].UnitPrice)
	assert.Equal(t, 9, h.stock(t, "vestido"))
}

func TestMaxInstallmentsOptionIsCappedAtTwelve(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxInstallments = 24 })

	_, err := h.svc.SubmitSale(context.Background(), testBusiness, domain.SaleRequest{
		CustomerID: "ana",
		Items:      []domain.CartItem{{ProductID: "vestido", Quantity: 1}},
		Plan:       domain.PaymentPlan{PaymentType: domain.PaymentInstallments, InstallmentsCount: 13},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "installments_count", verr.Field)
}
