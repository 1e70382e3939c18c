package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/store"
	"caderninho/backend/internal/xid"
)

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	writer
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger, writer: writer{ext: db}}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded migrations on the store's connection pool.
func (s *Store) Migrate() error {
	if err := RunMigrations(s.db.DB); err != nil {
		return err
	}
	s.logger.Info("postgres migrations applied")
	return nil
}

func (s *Store) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	err := s.db.SelectContext(ctx, &products, `
		SELECT id, business_id, name, price, quantity
		FROM products
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, businessID string, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, business_id, name, price, quantity
		FROM products
		WHERE business_id = ? AND id IN (?)
	`, businessID, ids)
	if err != nil {
		return nil, err
	}

	var products []domain.Product
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0, 64)
	err := s.db.SelectContext(ctx, &customers, `
		SELECT id, business_id, name, phone
		FROM customers
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, businessID string, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, `
		SELECT id, business_id, name, phone
		FROM customers
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

const saleColumns = `id, business_id, COALESCE(customer_id, '') AS customer_id, payment_type, total_amount,
	installments_count, first_due_date, has_down_payment, down_payment_amount, notes, created_at`

func (s *Store) ListSales(ctx context.Context, businessID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}
	sales := make([]domain.Sale, 0, limit)
	err := s.db.SelectContext(ctx, &sales, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, businessID string, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.GetContext(ctx, &sale, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, 8)
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, sale_id, product_id, quantity, unit_price, total_price
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY seq
	`, saleID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

const installmentColumns = `id, sale_id, COALESCE(customer_id, '') AS customer_id, business_id,
	installment_number, amount, due_date, status, paid_at`

func (s *Store) ListInstallments(ctx context.Context, businessID string, filter store.InstallmentFilter) ([]domain.Installment, error) {
	installments := make([]domain.Installment, 0, 64)
	err := s.db.SelectContext(ctx, &installments, `
		SELECT `+installmentColumns+`
		FROM installments
		WHERE business_id = $1
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3 = '' OR sale_id = $3)
		ORDER BY due_date, sale_id, installment_number
	`, businessID, filter.CustomerID, filter.SaleID)
	if err != nil {
		return nil, err
	}
	return installments, nil
}

func (s *Store) GetInstallment(ctx context.Context, businessID string, id string) (*domain.Installment, error) {
	var inst domain.Installment
	err := s.db.GetContext(ctx, &inst, `
		SELECT `+installmentColumns+`
		FROM installments
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// UpdateInstallmentStatus applies the transition in a single conditional
// UPDATE; when no row matches it looks the installment up to tell a missing
// row from one in a non-matching status.
func (s *Store) UpdateInstallmentStatus(ctx context.Context, businessID string, id string, from []domain.InstallmentStatus, status domain.InstallmentStatus, paidAt *time.Time) (*domain.Installment, error) {
	if len(from) == 0 {
		return nil, store.ErrInvalidTransition
	}
	fromStatuses := make([]string, 0, len(from))
	for _, st := range from {
		fromStatuses = append(fromStatuses, string(st))
	}
	query, args, err := sqlx.In(`
		UPDATE installments
		SET status = ?, paid_at = ?
		WHERE business_id = ? AND id = ? AND status IN (?)
		RETURNING `+installmentColumns,
		string(status), nullTime(paidAt), businessID, id, fromStatuses)
	if err != nil {
		return nil, err
	}

	var inst domain.Installment
	err = s.db.GetContext(ctx, &inst, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := s.GetInstallment(ctx, businessID, id); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, store.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// RunInTx runs fn against a writer bound to one transaction, committing when
// fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(store.SaleWriter) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(writer{ext: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, business_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.Username, user.Password, user.Role, user.BusinessID, true, user.CreatedAt)
	return mapWriteError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, business_id, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.BusinessID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// writer implements store.SaleWriter over either the pool or a transaction.
type writer struct {
	ext sqlx.ExtContext
}

func (w writer) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	_, err := w.ext.ExecContext(ctx, `
		INSERT INTO sales (
			id, business_id, customer_id, payment_type, total_amount, installments_count,
			first_due_date, has_down_payment, down_payment_amount, notes, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.BusinessID, nullIfEmpty(sale.CustomerID), string(sale.PaymentType), sale.TotalAmount,
		sale.InstallmentsCount, sale.FirstDueDate, sale.HasDownPayment, sale.DownPaymentAmount,
		sale.Notes, sale.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &sale, nil
}

// InsertSaleItem fires the sale_items stock trigger; a deduction below zero
// surfaces as store.ErrConstraint.
func (w writer) InsertSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	if item.ID == "" {
		item.ID = xid.New("")
	}
	_, err := w.ext.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, total_price)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &item, nil
}

func (w writer) InsertInstallment(ctx context.Context, inst domain.Installment) (*domain.Installment, error) {
	if inst.ID == "" {
		inst.ID = xid.New("")
	}
	_, err := w.ext.ExecContext(ctx, `
		INSERT INTO installments (
			id, sale_id, customer_id, business_id, installment_number, amount, due_date, status, paid_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, inst.ID, inst.SaleID, nullIfEmpty(inst.CustomerID), inst.BusinessID, inst.InstallmentNumber,
		inst.Amount, inst.DueDate, string(inst.Status), nullTime(inst.PaidAt))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &inst, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrConstraint, err)
	}
	return err
}

// isConstraintViolation matches unique (23505), foreign key (23503) and check
// (23514) violations.
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514":
			return true
		}
	}
	return false
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}
