package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/money"
	"caderninho/backend/internal/store"
	"caderninho/backend/internal/xid"
)

// DemoBusinessID owns every seeded record.
const DemoBusinessID = "loja-demo"

type Store struct {
	mu              sync.RWMutex
	txMu            sync.Mutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	sales           map[string]domain.Sale
	saleItems       map[string][]domain.SaleItem
	installments    map[string]domain.Installment
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		sales:           make(map[string]domain.Sale),
		saleItems:       make(map[string][]domain.SaleItem),
		installments:    make(map[string]domain.Installment),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store holding a small demo shop with stock, customers and
// an owner and a seller account. Passwords come from SEED_OWNER_PASSWORD and
// SEED_SELLER_PASSWORD, falling back to dev defaults.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()

	for _, p := range []domain.Product{
		{ID: "prd-vestido-floral", Name: "Vestido Floral", Price: money.MustParse("189.90"), Quantity: 8},
		{ID: "prd-blusa-linho", Name: "Blusa de Linho", Price: money.MustParse("99.90"), Quantity: 15},
		{ID: "prd-calca-jeans", Name: "Calça Jeans", Price: money.MustParse("149.00"), Quantity: 12},
		{ID: "prd-batom-matte", Name: "Batom Matte", Price: money.MustParse("39.90"), Quantity: 40},
		{ID: "prd-perfume-200", Name: "Perfume 200ml", Price: money.MustParse("249.00"), Quantity: 5},
		{ID: "prd-hidratante", Name: "Hidratante Corporal", Price: money.MustParse("59.90"), Quantity: 25},
		{ID: "prd-bolsa-couro", Name: "Bolsa de Couro", Price: money.MustParse("320.00"), Quantity: 3},
		{ID: "prd-brinco-prata", Name: "Brinco de Prata", Price: money.MustParse("79.00"), Quantity: 20},
	} {
		p.BusinessID = DemoBusinessID
		s.PutProduct(p)
	}
	for _, c := range []domain.Customer{
		{ID: "cli-ana", Name: "Ana Souza", Phone: "+55 11 91234-0001"},
		{ID: "cli-bianca", Name: "Bianca Lima", Phone: "+55 11 91234-0002"},
		{ID: "cli-carla", Name: "Carla Mendes", Phone: "+55 11 91234-0003"},
		{ID: "cli-dora", Name: "Dora Alves"},
	} {
		c.BusinessID = DemoBusinessID
		s.PutCustomer(c)
	}

	ownerPwd := envOr("SEED_OWNER_PASSWORD", "dona12345")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "vende12345")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_OWNER_PASSWORD and SEED_SELLER_PASSWORD to override")
	}
	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"dona", ownerPwd, domain.RoleOwner},
		{"vendedora", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:   u.username,
			Password:   string(hash),
			Role:       u.role,
			BusinessID: DemoBusinessID,
			Active:     true,
			CreatedAt:  now,
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PutProduct inserts or replaces a catalog product. The catalog is owned by an
// external service; this exists for seeding and tests.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *Store) ListProducts(_ context.Context, businessID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.BusinessID != businessID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, businessID string, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.BusinessID == businessID {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) ListCustomers(_ context.Context, businessID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.BusinessID == businessID {
			customers = append(customers, c)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, businessID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok || c.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.BusinessID == "" || sale.TotalAmount.IsNegative() {
		return nil, store.ErrConstraint
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrConstraint
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.sales[sale.ID] = sale
	return &sale, nil
}

// InsertSaleItem stores the line and deducts its quantity from stock in the
// same critical section, mirroring the sale_items trigger.
func (s *Store) InsertSaleItem(_ context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Quantity < 1 {
		return nil, store.ErrConstraint
	}
	if _, ok := s.sales[item.SaleID]; !ok {
		return nil, store.ErrConstraint
	}
	product, ok := s.products[item.ProductID]
	if !ok {
		return nil, store.ErrConstraint
	}
	if product.Quantity-item.Quantity < 0 {
		return nil, store.ErrConstraint
	}

	if item.ID == "" {
		item.ID = xid.New("item")
	}
	product.Quantity -= item.Quantity
	s.products[product.ID] = product
	s.saleItems[item.SaleID] = append(s.saleItems[item.SaleID], item)
	return &item, nil
}

func (s *Store) InsertInstallment(_ context.Context, inst domain.Installment) (*domain.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sales[inst.SaleID]; !ok {
		return nil, store.ErrConstraint
	}
	if inst.InstallmentNumber < 1 || inst.Amount.IsNegative() || !inst.Status.Valid() {
		return nil, store.ErrConstraint
	}
	for _, existing := range s.installments {
		if existing.SaleID == inst.SaleID && existing.InstallmentNumber == inst.InstallmentNumber {
			return nil, store.ErrConstraint
		}
	}
	if inst.ID == "" {
		inst.ID = xid.New("inst")
	}
	s.installments[inst.ID] = cloneInstallment(inst)
	return &inst, nil
}

func (s *Store) ListSales(_ context.Context, businessID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if sale.BusinessID == businessID {
			sales = append(sales, sale)
		}
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, businessID string, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok || sale.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) ListSaleItems(_ context.Context, saleID string) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.SaleItem, len(s.saleItems[saleID]))
	copy(items, s.saleItems[saleID])
	return items, nil
}

func (s *Store) ListInstallments(_ context.Context, businessID string, filter store.InstallmentFilter) ([]domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Installment, 0)
	for _, inst := range s.installments {
		if inst.BusinessID != businessID {
			continue
		}
		if filter.CustomerID != "" && inst.CustomerID != filter.CustomerID {
			continue
		}
		if filter.SaleID != "" && inst.SaleID != filter.SaleID {
			continue
		}
		result = append(result, cloneInstallment(inst))
	}
	slices.SortFunc(result, func(a, b domain.Installment) int {
		if !a.DueDate.Equal(b.DueDate) {
			if a.DueDate.Before(b.DueDate) {
				return -1
			}
			return 1
		}
		if a.SaleID != b.SaleID {
			return strings.Compare(a.SaleID, b.SaleID)
		}
		return a.InstallmentNumber - b.InstallmentNumber
	})
	return result, nil
}

func (s *Store) GetInstallment(_ context.Context, businessID string, id string) (*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.installments[id]
	if !ok || inst.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	out := cloneInstallment(inst)
	return &out, nil
}

func (s *Store) UpdateInstallmentStatus(_ context.Context, businessID string, id string, from []domain.InstallmentStatus, status domain.InstallmentStatus, paidAt *time.Time) (*domain.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.installments[id]
	if !ok || inst.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(from, inst.Status) {
		return nil, store.ErrInvalidTransition
	}
	inst.Status = status
	if paidAt != nil {
		at := paidAt.UTC()
		inst.PaidAt = &at
	} else {
		inst.PaidAt = nil
	}
	s.installments[id] = inst
	out := cloneInstallment(inst)
	return &out, nil
}

// RunInTx serializes transactional submissions. Writes made through the
// writer handed to fn are logged and undone when fn fails; writes made outside
// it in the meantime are kept.
func (s *Store) RunInTx(ctx context.Context, fn func(store.SaleWriter) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txWriter{store: s}
	if err := fn(tx); err != nil {
		s.undo(tx)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.undo(tx)
		return err
	}
	return nil
}

// txWriter records the rows it writes so a failed transaction can remove
// exactly those rows and give their stock back.
type txWriter struct {
	store        *Store
	sales        []string
	items        []domain.SaleItem
	installments []string
}

func (w *txWriter) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	created, err := w.store.InsertSale(ctx, sale)
	if err != nil {
		return nil, err
	}
	w.sales = append(w.sales, created.ID)
	return created, nil
}

func (w *txWriter) InsertSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	created, err := w.store.InsertSaleItem(ctx, item)
	if err != nil {
		return nil, err
	}
	w.items = append(w.items, *created)
	return created, nil
}

func (w *txWriter) InsertInstallment(ctx context.Context, inst domain.Installment) (*domain.Installment, error) {
	created, err := w.store.InsertInstallment(ctx, inst)
	if err != nil {
		return nil, err
	}
	w.installments = append(w.installments, created.ID)
	return created, nil
}

func (s *Store) undo(tx *txWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.installments {
		delete(s.installments, id)
	}
	for _, item := range tx.items {
		s.saleItems[item.SaleID] = slices.DeleteFunc(s.saleItems[item.SaleID], func(existing domain.SaleItem) bool {
			return existing.ID == item.ID
		})
		if len(s.saleItems[item.SaleID]) == 0 {
			delete(s.saleItems, item.SaleID)
		}
		if product, ok := s.products[item.ProductID]; ok {
			product.Quantity += item.Quantity
			s.products[item.ProductID] = product
		}
	}
	for _, id := range tx.sales {
		delete(s.sales, id)
	}
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" || user.BusinessID == "" {
		return store.ErrConstraint
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConstraint
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrConstraint
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneInstallment(src domain.Installment) domain.Installment {
	dup := src
	if src.PaidAt != nil {
		at := *src.PaidAt
		dup.PaidAt = &at
	}
	return dup
}
