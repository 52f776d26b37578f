package domain

import "time"

// User is an account that signs in with email and password.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAuthenticate reports whether the account is allowed to sign in.
func (u *User) CanAuthenticate() bool {
	return u != nil && u.IsActive
}
