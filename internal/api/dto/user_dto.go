package dto

import (
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// ActivationRequest payload for activating an account.
type ActivationRequest struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MessageResponse carries a user-facing notice.
type MessageResponse struct {
	Message string `json:"message"`
}
