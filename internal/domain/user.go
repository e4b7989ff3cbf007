package domain

import (
	"context"
	"time"
)

// User is a stored account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the minimal projection of a user handed to clients.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Identity returns the client-facing projection of u.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}

// UserRepository defines the interface for user data access.
// Create must return ErrEmailInUse when the email unique constraint rejects
// the insert; lookups return ErrUserNotFound when nothing matches.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
