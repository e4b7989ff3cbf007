package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"cookie-auth/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

// TestPassword satisfies the client password policy.
const TestPassword = "Abc12345!"

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID           string
	Email        string
	Password     string
	PasswordHash string
	CreatedAt    time.Time
}

// NewTestUser creates a test user with sensible defaults. Unless a hash is
// supplied, the password is hashed at bcrypt.MinCost.
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:       nextID("user"),
		Password: TestPassword,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = fmt.Sprintf("user%d@example.com", idCounter.Load())
	}
	if o.PasswordHash == "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		o.PasswordHash = string(hash)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.User{
		ID:           o.ID,
		Email:        o.Email,
		PasswordHash: o.PasswordHash,
		CreatedAt:    o.CreatedAt,
	}
}

// WithUserID sets the user ID
func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithEmail sets the email
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithPassword sets the plaintext password to hash
func WithPassword(password string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Password = password
	}
}

// WithPasswordHash sets the password hash
func WithPasswordHash(hash string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.PasswordHash = hash
	}
}

// WithUserCreatedAt sets the user creation time
func WithUserCreatedAt(t time.Time) func(*UserOptions) {
	return func(o *UserOptions) {
		o.CreatedAt = t
	}
}

// SeedUser stores a fixture user in repo and returns it.
func SeedUser(repo *MockUserRepository, opts ...func(*UserOptions)) *domain.User {
	user := NewTestUser(opts...)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.Users == nil {
		repo.Users = make(map[string]*domain.User)
	}
	stored := *user
	repo.Users[user.ID] = &stored
	return user
}

// ResetIDCounter resets the ID counter (useful for deterministic tests)
func ResetIDCounter() {
	idCounter.Store(0)
}
