// Package store declares the persistence contracts used by the sale and
// ledger services.
//
// Stock is reconciled by the store, not by the service: inserting a sale item
// decrements the product's quantity by the item quantity. The Postgres schema
// does this with an AFTER INSERT trigger on sale_items and a non-negative
// CHECK on products.quantity; the memory store emulates both. A deduction that
// would take stock below zero fails the insert with ErrConstraint.
package store

import (
	"context"
	"errors"
	"time"

	"caderninho/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConstraint        = errors.New("constraint violation")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type ProductReader interface {
	ListProducts(ctx context.Context, businessID string) ([]domain.Product, error)
	// GetProductsByIDs returns the products of businessID keyed by id; unknown
	// ids are absent from the map.
	GetProductsByIDs(ctx context.Context, businessID string, ids []string) (map[string]domain.Product, error)
}

type CustomerReader interface {
	ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, businessID string, id string) (*domain.Customer, error)
}

// SaleWriter persists one step of a sale submission per call.
type SaleWriter interface {
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	InsertSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error)
	InsertInstallment(ctx context.Context, inst domain.Installment) (*domain.Installment, error)
}

// InstallmentFilter narrows ListInstallments; empty fields match everything.
type InstallmentFilter struct {
	CustomerID string
	SaleID     string
}

type InstallmentStore interface {
	ListInstallments(ctx context.Context, businessID string, filter InstallmentFilter) ([]domain.Installment, error)
	GetInstallment(ctx context.Context, businessID string, id string) (*domain.Installment, error)
	// UpdateInstallmentStatus moves an installment whose stored status is one of
	// from to status. It returns ErrInvalidTransition when the row exists but is
	// in another status.
	UpdateInstallmentStatus(ctx context.Context, businessID string, id string, from []domain.InstallmentStatus, status domain.InstallmentStatus, paidAt *time.Time) (*domain.Installment, error)
}

type SaleReader interface {
	ListSales(ctx context.Context, businessID string, limit int) ([]domain.Sale, error)
	GetSale(ctx context.Context, businessID string, id string) (*domain.Sale, error)
	ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error)
}

// Transactor is implemented by stores that can run a whole submission in a
// single transaction. fn receives a writer bound to that transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(SaleWriter) error) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Repository is the full surface implemented by the memory and Postgres stores.
type Repository interface {
	ProductReader
	CustomerReader
	SaleWriter
	SaleReader
	InstallmentStore
	UserStore
}
