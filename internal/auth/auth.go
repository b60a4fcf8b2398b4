// Package auth provides credential storage and JWT-based session tokens.
//
// Passwords are stored as bcrypt hashes. There are no plaintext or
// hard-coded credentials anywhere in the system.
package auth

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords
// alike, so callers can't distinguish the two.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserExists is returned when creating a duplicate username.
var ErrUserExists = errors.New("user already exists")

// User is a registered account. PasswordHash is bcrypt output.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`

	passwordHash []byte
}

// UserStore persists accounts and checks credentials.
type UserStore interface {
	// Create registers a new user with a bcrypt-hashed password.
	Create(ctx context.Context, username, password string) (*User, error)
	// Authenticate verifies a username/password pair.
	Authenticate(ctx context.Context, username, password string) (*User, error)
	// Close releases resources.
	Close() error
}
