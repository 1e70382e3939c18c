package service

import (
	"errors"
	"fmt"

	"caderninho/backend/internal/store"
)

var ErrValidation = errors.New("validation failed")

// ValidationError reports an unmet precondition. It is always raised before
// any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidField(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StockConflictError is the validation failure raised when a product cannot
// cover the requested quantity.
type StockConflictError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockConflictError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockConflictError) Unwrap() []error {
	return []error{ErrValidation, store.ErrInsufficientStock}
}

// Submission steps reported by TransportError.
const (
	StepLoadCustomer      = "load_customer"
	StepLoadProducts      = "load_products"
	StepInsertSale        = "insert_sale"
	StepInsertSaleItem    = "insert_sale_item"
	StepInsertInstallment = "insert_installment"
	StepCommit            = "commit"
)

// TransportError wraps a store failure. The load steps fail before any write
// with Partial false; the insert steps fail after validation passed. Partial is
// true when rows written before the failure were left in place; SaleID is set
// once the sale row exists. ItemIndex is the 0-based line or installment index
// for the per-row steps and -1 otherwise.
type TransportError struct {
	Step      string
	ItemIndex int
	SaleID    string
	Partial   bool
	Err       error
}

func (e *TransportError) Error() string {
	msg := "sale store: " + e.Step
	if e.ItemIndex >= 0 {
		msg += fmt.Sprintf(" #%d", e.ItemIndex)
	}
	if e.SaleID != "" {
		msg += " (sale " + e.SaleID + ")"
	}
	if e.Partial {
		msg += " [partial]"
	}
	return msg + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
