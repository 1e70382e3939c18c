package domain

import (
	"time"

	"caderninho/backend/internal/calendar"
	"caderninho/backend/internal/money"
)

type PaymentType string

const (
	PaymentOneTime      PaymentType = "one_time"
	PaymentInstallments PaymentType = "installments"
)

type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pendente"
	InstallmentPaid      InstallmentStatus = "pago"
	InstallmentOverdue   InstallmentStatus = "atrasado"
	InstallmentCancelled InstallmentStatus = "cancelado"
)

func (s InstallmentStatus) Valid() bool {
	switch s {
	case InstallmentPending, InstallmentPaid, InstallmentOverdue, InstallmentCancelled:
		return true
	default:
		return false
	}
}

// Payable reports whether an installment in this status may move to pago.
func (s InstallmentStatus) Payable() bool {
	return s == InstallmentPending || s == InstallmentOverdue
}

type Product struct {
	ID         string      `json:"id" db:"id"`
	BusinessID string      `json:"business_id" db:"business_id"`
	Name       string      `json:"name" db:"name"`
	Price      money.Cents `json:"price" db:"price"`
	Quantity   int         `json:"quantity" db:"quantity"`
}

type Customer struct {
	ID         string `json:"id" db:"id"`
	BusinessID string `json:"business_id" db:"business_id"`
	Name       string `json:"name" db:"name"`
	Phone      string `json:"phone,omitempty" db:"phone"`
}

// CartItem is one cart line. A nil UnitPrice sells at the catalog price; an
// explicit zero records the line as free.
type CartItem struct {
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	UnitPrice *money.Cents `json:"unit_price,omitempty"`
}

type PaymentPlan struct {
	PaymentType       PaymentType    `json:"payment_type"`
	InstallmentsCount int            `json:"installments_count"`
	HasDownPayment    bool           `json:"has_down_payment"`
	DownPaymentAmount money.Cents    `json:"down_payment_amount"`
	FirstDueDate      *calendar.Date `json:"first_due_date,omitempty"`
}

// DownPayment is the amount settled at sale time; zero unless the plan is an
// installment plan with a down payment.
func (p PaymentPlan) DownPayment() money.Cents {
	if p.PaymentType != PaymentInstallments || !p.HasDownPayment {
		return 0
	}
	return p.DownPaymentAmount
}

type Sale struct {
	ID                string         `json:"id" db:"id"`
	BusinessID        string         `json:"business_id" db:"business_id"`
	CustomerID        string         `json:"customer_id,omitempty" db:"customer_id"`
	PaymentType       PaymentType    `json:"payment_type" db:"payment_type"`
	TotalAmount       money.Cents    `json:"total_amount" db:"total_amount"`
	InstallmentsCount int            `json:"installments_count" db:"installments_count"`
	FirstDueDate      *calendar.Date `json:"first_due_date,omitempty" db:"first_due_date"`
	HasDownPayment    bool           `json:"has_down_payment" db:"has_down_payment"`
	DownPaymentAmount money.Cents    `json:"down_payment_amount" db:"down_payment_amount"`
	Notes             string         `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

type SaleItem struct {
	ID         string      `json:"id" db:"id"`
	SaleID     string      `json:"sale_id" db:"sale_id"`
	ProductID  string      `json:"product_id" db:"product_id"`
	Quantity   int         `json:"quantity" db:"quantity"`
	UnitPrice  money.Cents `json:"unit_price" db:"unit_price"`
	TotalPrice money.Cents `json:"total_price" db:"total_price"`
}

type Installment struct {
	ID                string            `json:"id" db:"id"`
	SaleID            string            `json:"sale_id" db:"sale_id"`
	CustomerID        string            `json:"customer_id,omitempty" db:"customer_id"`
	BusinessID        string            `json:"business_id" db:"business_id"`
	InstallmentNumber int               `json:"installment_number" db:"installment_number"`
	Amount            money.Cents       `json:"amount" db:"amount"`
	DueDate           calendar.Date     `json:"due_date" db:"due_date"`
	Status            InstallmentStatus `json:"status" db:"status"`
	PaidAt            *time.Time        `json:"paid_at,omitempty" db:"paid_at"`
}

// SaleRequest is the submission payload for a new sale.
type SaleRequest struct {
	CustomerID string      `json:"customer_id,omitempty"`
	Items      []CartItem  `json:"items"`
	Plan       PaymentPlan `json:"plan"`
	Notes      string      `json:"notes,omitempty"`
}

type SaleDetail struct {
	Sale         Sale          `json:"sale"`
	Items        []SaleItem    `json:"items"`
	Installments []Installment `json:"installments"`
}

type CartValidationRequest struct {
	Items []CartItem `json:"items"`
}

type PricedLine struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	UnitPrice   money.Cents `json:"unit_price"`
	LineTotal   money.Cents `json:"line_total"`
	Available   int         `json:"available"`
}

type CartValidationResponse struct {
	Lines []PricedLine `json:"lines"`
	Total money.Cents  `json:"total"`
}

// InstallmentView carries the read-time display status next to the stored one.
type InstallmentView struct {
	Installment
	CustomerName       string            `json:"customer_name,omitempty"`
	DisplayStatus      InstallmentStatus `json:"display_status"`
	EffectivelyOverdue bool              `json:"effectively_overdue"`
}

type Bucket struct {
	Count  int         `json:"count"`
	Amount money.Cents `json:"amount"`
}

type LedgerSummary struct {
	Pending Bucket `json:"pending"`
	Overdue Bucket `json:"overdue"`
	Paid    Bucket `json:"paid"`
	Total   Bucket `json:"total"`
}

type CustomerBalance struct {
	CustomerID       string         `json:"customer_id"`
	CustomerName     string         `json:"customer_name"`
	OpenInstallments int            `json:"open_installments"`
	Outstanding      money.Cents    `json:"outstanding"`
	Overdue          money.Cents    `json:"overdue"`
	NextDueDate      *calendar.Date `json:"next_due_date,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BusinessID  string `json:"business_id"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated caller; BusinessID scopes every core operation.
type Actor struct {
	Username   string
	Role       string
	BusinessID string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username   string
	Password   string
	Role       string
	BusinessID string
	Active     bool
	CreatedAt  time.Time
}

const (
	RoleOwner  = "owner"
	RoleSeller = "seller"
)
