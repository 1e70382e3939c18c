package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caderninho/backend/internal/calendar"
	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/money"
	"caderninho/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.PutProduct(domain.Product{ID: "p1", BusinessID: "biz", Name: "Saia", Price: money.MustParse("50.00"), Quantity: 3})
	s.PutCustomer(domain.Customer{ID: "c1", BusinessID: "biz", Name: "Ana"})
	return s
}

func TestInsertSaleItemDeductsStock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sale, err := s.InsertSale(ctx, domain.Sale{BusinessID: "biz", PaymentType: domain.PaymentOneTime, TotalAmount: money.MustParse("100.00")})
	require.NoError(t, err)
	require.NotEmpty(t, sale.ID)

	_, err = s.InsertSaleItem(ctx, domain.SaleItem{SaleID: sale.ID, ProductID: "p1", Quantity: 2})
	require.NoError(t, err)

	products, err := s.GetProductsByIDs(ctx, "biz", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, products["p1"].Quantity)

	_, err = s.InsertSaleItem(ctx, domain.SaleItem{SaleID: sale.ID, ProductID: "p1", Quantity: 2})
	require.ErrorIs(t, err, store.ErrConstraint)

	products, err = s.GetProductsByIDs(ctx, "biz", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, products["p1"].Quantity, "rejected line leaves stock untouched")
}

func TestRecordsAreScopedByBusiness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetCustomer(ctx, "other", "c1")
	require.ErrorIs(t, err, store.ErrNotFound)

	products, err := s.GetProductsByIDs(ctx, "other", []string{"p1"})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestUpdateInstallmentStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sale, err := s.InsertSale(ctx, domain.Sale{BusinessID: "biz", PaymentType: domain.PaymentInstallments})
	require.NoError(t, err)
	inst, err := s.InsertInstallment(ctx, domain.Installment{
		SaleID: sale.ID, BusinessID: "biz", CustomerID: "c1", InstallmentNumber: 1,
		Amount: money.MustParse("10.00"), DueDate: calendar.MustParse("2024-02-01"), Status: domain.InstallmentCancelled,
	})
	require.NoError(t, err)

	paidAt := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	_, err = s.UpdateInstallmentStatus(ctx, "biz", inst.ID,
		[]domain.InstallmentStatus{domain.InstallmentPending, domain.InstallmentOverdue}, domain.InstallmentPaid, &paidAt)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.UpdateInstallmentStatus(ctx, "other", inst.ID,
		[]domain.InstallmentStatus{domain.InstallmentCancelled}, domain.InstallmentPaid, &paidAt)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestInsertInstallmentRejectsDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sale, err := s.InsertSale(ctx, domain.Sale{BusinessID: "biz", PaymentType: domain.PaymentInstallments})
	require.NoError(t, err)
	inst := domain.Installment{
		SaleID: sale.ID, BusinessID: "biz", InstallmentNumber: 1,
		Amount: money.MustParse("10.00"), DueDate: calendar.MustParse("2024-02-01"), Status: domain.InstallmentPending,
	}
	_, err = s.InsertInstallment(ctx, inst)
	require.NoError(t, err)
	_, err = s.InsertInstallment(ctx, inst)
	require.ErrorIs(t, err, store.ErrConstraint)
}

func TestRunInTxRestoresStateOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(w store.SaleWriter) error {
		sale, err := w.InsertSale(ctx, domain.Sale{BusinessID: "biz", PaymentType: domain.PaymentOneTime})
		if err != nil {
			return err
		}
		if _, err := w.InsertSaleItem(ctx, domain.SaleItem{SaleID: sale.ID, ProductID: "p1", Quantity: 3}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	sales, err := s.ListSales(ctx, "biz", 0)
	require.NoError(t, err)
	assert.Empty(t, sales)

	products, err := s.GetProductsByIDs(ctx, "biz", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 3, products["p1"].Quantity)
}

func TestRunInTxRollbackKeepsWritesMadeOutsideIt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.PutProduct(domain.Product{ID: "p2", BusinessID: "biz", Name: "Blusa", Price: money.MustParse("20.00"), Quantity: 5})
	boom := errors.New("boom")

	earlier, err := s.InsertSale(ctx, domain.Sale{BusinessID: "biz", PaymentType: domain.PaymentInstallments})
	require.NoError(t, err)
	pending, err := s.InsertInstallment(ctx, domain.Installment{
		SaleID: earlier.ID, BusinessID: "biz", CustomerID: "c1", InstallmentNumber: 1,
		Amount: money.MustParse("10.00"), DueDate: calendar.MustParse("2024-02-01"), Status: domain.InstallmentPending,
	})
	require.NoError(t, err)

	paidAt := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	var txSaleID string
	err = s.RunInTx(ctx, func(w store.SaleWriter) error {
		sale, err := w.InsertSale(ctx, domain.Sale{BusinessID: "biz", PaymentType: domain.PaymentOneTime})
		if err != nil {
			return err
		}
		txSaleID = sale.ID
		if _, err := w.InsertSaleItem(ctx, domain.SaleItem{SaleID: sale.ID, ProductID: "p1", Quantity: 2}); err != nil {
			return err
		}

		// Concurrent traffic outside the transaction.
		if _, err := s.UpdateInstallmentStatus(ctx, "biz", pending.ID,
			[]domain.InstallmentStatus{domain.InstallmentPending}, domain.InstallmentPaid, &paidAt); err != nil {
			return err
		}
		if _, err := s.InsertSaleItem(ctx, domain.SaleItem{SaleID: earlier.ID, ProductID: "p2", Quantity: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetInstallment(ctx, "biz", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentPaid, got.Status, "payment made during the transaction survives its rollback")
	require.NotNil(t, got.PaidAt)

	_, err = s.GetSale(ctx, "biz", txSaleID)
	require.ErrorIs(t, err, store.ErrNotFound)
	items, err := s.ListSaleItems(ctx, txSaleID)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.ListSaleItems(ctx, earlier.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	products, err := s.GetProductsByIDs(ctx, "biz", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, 3, products["p1"].Quantity, "transaction stock is given back")
	assert.Equal(t, 4, products["p2"].Quantity, "outside deduction is kept")
}

func TestNewSeededHashesPasswords(t *testing.T) {
	s := NewSeeded(nil)
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Equal(t, DemoBusinessID, u.BusinessID)
		assert.Contains(t, u.Password, "$2a$")
	}
}
