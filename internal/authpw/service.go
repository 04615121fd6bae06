// Package authpw provides email/password authentication and account rules.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"captiondesk/api/internal/rbac"
	"captiondesk/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidRole        = errors.New("role must be user or admin")
	ErrMissingFields      = errors.New("email, password, and name are required")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Service provides email/password authentication
type Service struct {
	store UserStore
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	CountUsers(ctx context.Context) (int, error)
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// NewUserRequest contains the fields of an account created by an admin
type NewUserRequest struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// CreateUser validates and stores a new account. Role defaults to user.
func (s *Service) CreateUser(ctx context.Context, req NewUserRequest) (store.User, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return store.User{}, ErrMissingFields
	}
	if req.Role == "" {
		req.Role = string(rbac.RoleUser)
	}
	if err := ValidateAccount(req.Email, req.Password, req.Role); err != nil {
		return store.User{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return store.User{}, err
	}
	return s.store.CreateUser(ctx, store.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         req.Role,
	})
}

// EnsureAdmin creates the first admin account when the user table is empty.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.CreateUser(ctx, NewUserRequest{
		Email:    email,
		Password: password,
		Name:     "Administrator",
		Role:     string(rbac.RoleAdmin),
	}); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	return true, nil
}

// ValidateAccount checks the account rules. An empty password is accepted so
// updates can leave the password unchanged.
func ValidateAccount(email, password, role string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return ErrInvalidEmail
	}
	if password != "" && len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if !rbac.Valid(role) {
		return ErrInvalidRole
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
