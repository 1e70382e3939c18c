package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"caderninho/backend/internal/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
	now       func() time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password   string
	role       string
	businessID string
	active     bool
	created    time.Time
}

type caderninhoClaims struct {
	jwtlib.RegisteredClaims
	Role       string `json:"role"`
	BusinessID string `json:"business_id"`
}

// SellerCreateRequest is the owner-only payload for adding a seller account.
type SellerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SellerUser struct {
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	BusinessID string    `json:"business_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
		now:       time.Now,
	}
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		BusinessID:  cred.businessID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &caderninhoClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if strings.TrimSpace(claims.BusinessID) == "" {
		return domain.Actor{}, errors.New("token carries no business")
	}
	return domain.Actor{Username: sub, Role: claims.Role, BusinessID: claims.BusinessID}, nil
}

func (a *AuthManager) sign(username string, cred credential, expiresAt time.Time) (string, error) {
	claims := caderninhoClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "caderninho",
		},
		Role:       cred.role,
		BusinessID: cred.businessID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateSeller adds a seller account to the owner's business.
func (a *AuthManager) CreateSeller(ctx context.Context, owner domain.Actor, req SellerCreateRequest) (SellerUser, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return SellerUser{}, fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return SellerUser{}, fmt.Errorf("username must not contain spaces")
	}
	if len(strings.TrimSpace(req.Password)) < 8 {
		return SellerUser{}, fmt.Errorf("password must be at least 8 characters")
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return SellerUser{}, fmt.Errorf("username already exists")
	}

	now := a.now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return SellerUser{}, fmt.Errorf("failed to hash password")
	}

	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:   username,
			Password:   passwordHash,
			Role:       domain.RoleSeller,
			BusinessID: owner.BusinessID,
			Active:     true,
			CreatedAt:  now,
		})
		if err != nil {
			return SellerUser{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{
		password:   passwordHash,
		role:       domain.RoleSeller,
		businessID: owner.BusinessID,
		active:     true,
		created:    now,
	}
	a.mu.Unlock()

	return SellerUser{
		Username:   username,
		Role:       domain.RoleSeller,
		BusinessID: owner.BusinessID,
		Active:     true,
		CreatedAt:  now,
	}, nil
}

// ListSellers returns the seller accounts of one business.
func (a *AuthManager) ListSellers(ctx context.Context, businessID string) []SellerUser {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]SellerUser, 0, len(a.users))
	for username, user := range a.users {
		if user.role != domain.RoleSeller || user.businessID != businessID {
			continue
		}
		result = append(result, SellerUser{
			Username:   username,
			Role:       user.role,
			BusinessID: user.businessID,
			Active:     user.active,
			CreatedAt:  user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// EnsureOwner creates the first owner account when the user store is empty.
// It reports whether an account was created.
func (a *AuthManager) EnsureOwner(ctx context.Context, username, password, businessID string) (bool, error) {
	if a.userStore == nil {
		return false, nil
	}
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	if len(users) > 0 {
		return false, nil
	}
	username = strings.ToLower(strings.TrimSpace(username))
	businessID = strings.TrimSpace(businessID)
	if username == "" || businessID == "" || len(password) < 8 {
		return false, fmt.Errorf("bootstrap owner needs a username, a business id and a password of at least 8 characters")
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password")
	}
	if err := a.userStore.CreateUser(ctx, domain.UserAccount{
		Username:   username,
		Password:   passwordHash,
		Role:       domain.RoleOwner,
		BusinessID: businessID,
		Active:     true,
		CreatedAt:  a.now().UTC(),
	}); err != nil {
		return false, err
	}
	a.bootstrapUsers(ctx)
	return true, nil
}

// bootstrapUsers refreshes the credential cache from the user store and
// rehashes any plain-text password it finds.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		a.users[username] = credential{
			password:   password,
			role:       user.Role,
			businessID: user.BusinessID,
			active:     user.Active,
			created:    user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
