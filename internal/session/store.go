// Package session keeps server-side records of authenticated users.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/account-service/internal/domain"
)

// ErrNotFound is returned for unknown, expired or deleted sessions.
var ErrNotFound = errors.New("session not found")

// Store creates, loads and destroys sessions.
type Store interface {
	Create(ctx context.Context, userID string) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
}

func newSession(userID string, now time.Time, ttl time.Duration) *domain.Session {
	return &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
}
