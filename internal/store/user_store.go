// Package store is the user record store: account creation, lookups,
// credential checks and saves. Passwords only ever meet their hashes here.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = repository.ErrNotFound
	// ErrEmailTaken is returned when another account already owns the email.
	ErrEmailTaken = repository.ErrEmailTaken
	// ErrInvalidCredentials is returned by Authenticate on any failed check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownAccount and ErrWrongPassword wrap ErrInvalidCredentials and
	// only exist for logs and counters.
	ErrUnknownAccount = fmt.Errorf("%w: unknown account", ErrInvalidCredentials)
	ErrWrongPassword  = fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)
)

// UserStore creates, loads, authenticates and saves user records.
type UserStore interface {
	Create(ctx context.Context, email, password string) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
}

type userStore struct {
	users      repository.UserRepository
	bcryptCost int
	dummyHash  string
}

// NewUserStore wraps a repository with password hashing.
func NewUserStore(users repository.UserRepository, bcryptCost int) (UserStore, error) {
	dummy, err := auth.HashPassword("account-service/timing-equalizer", bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &userStore{users: users, bcryptCost: bcryptCost, dummyHash: dummy}, nil
}

// NormalizeEmail trims and lower-cases an address so lookups and the unique
// index agree on identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new inactive user with a hashed password.
func (s *userStore) Create(ctx context.Context, email, password string) (*domain.User, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		IsActive:     false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userStore) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, NormalizeEmail(email))
}

// Authenticate returns the user whose password matches. Unknown emails still
// pay for one bcrypt comparison.
func (s *userStore) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		_ = auth.ComparePassword(s.dummyHash, password)
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return user, nil
}

func (s *userStore) Save(ctx context.Context, user *domain.User) error {
	return s.users.Update(ctx, user)
}
