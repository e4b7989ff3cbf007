// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the cookie-auth service.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"cookie-auth/internal/domain"

	"github.com/google/uuid"
)

// ErrMockNotImplemented is returned by mocks without a configured behavior.
var ErrMockNotImplemented = errors.New("mock function not implemented")

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc     func(ctx context.Context, user *domain.User) error
	GetByIDFunc    func(ctx context.Context, id string) (*domain.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*domain.User, error)

	// In-memory storage keyed by user id
	Users map[string]*domain.User
}

// NewMockUserRepository creates a new MockUserRepository with initialized maps
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Users == nil {
		m.Users = make(map[string]*domain.User)
	}

	// Mirrors the unique index on email
	for _, u := range m.Users {
		if u.Email == user.Email {
			return domain.ErrEmailInUse
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	stored := *user
	m.Users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// Delete removes a user, simulating an account that vanished mid-session.
func (m *MockUserRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Users, id)
}

// Count returns the number of stored users.
func (m *MockUserRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Users)
}

// MockEventPublisher implements domain.EventPublisher and records events.
type MockEventPublisher struct {
	mu sync.Mutex

	PublishFunc func(ctx context.Context, event *domain.AuthEvent) error

	Events []domain.AuthEvent
}

func (m *MockEventPublisher) PublishAuthEvent(ctx context.Context, event *domain.AuthEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, *event)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

// Types returns the recorded event types in publish order.
func (m *MockEventPublisher) Types() []domain.AuthEventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]domain.AuthEventType, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Type
	}
	return types
}
