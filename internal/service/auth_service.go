package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"cookie-auth/internal/domain"
	"cookie-auth/internal/observability"
	"cookie-auth/internal/security"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	maxEmailLength    = 255
	maxPasswordLength = 72
)

type contextKey string

const remoteAddrKey contextKey = "remote_addr"

// WithRemoteAddr records the client address so published events can carry it.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

func remoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey).(string)
	return addr
}

// Session is the outcome of a successful signup or login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

type AuthService struct {
	users  domain.UserRepository
	hasher *security.PasswordHasher
	tokens *security.TokenIssuer
	events domain.EventPublisher
	now    func() time.Time
}

func NewAuthService(
	users domain.UserRepository,
	hasher *security.PasswordHasher,
	tokens *security.TokenIssuer,
	events domain.EventPublisher,
) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		events: events,
		now:    time.Now,
	}
}

// Signup creates an account and opens a session for it.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, domain.ErrMissingCredentials
	}
	if len(email) > maxEmailLength || !emailRegex.MatchString(email) {
		return nil, domain.ErrInvalidEmail
	}
	if len(password) > maxPasswordLength {
		return nil, domain.ErrPasswordTooLong
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		observability.AuthAttemptsTotal.WithLabelValues("signup", "conflict").Inc()
		return nil, domain.ErrEmailInUse
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailInUse) {
			observability.AuthAttemptsTotal.WithLabelValues("signup", "conflict").Inc()
			return nil, domain.ErrEmailInUse
		}
		return nil, err
	}

	session, err := s.openSession(user)
	if err != nil {
		return nil, err
	}

	observability.AuthAttemptsTotal.WithLabelValues("signup", "ok").Inc()
	s.publish(ctx, domain.EventSignup, user.ID, user.Email)
	return session, nil
}

// Login verifies credentials and opens a session. Unknown email and wrong
// password fail with the same error and the same bcrypt cost.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, domain.ErrMissingCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to look up email: %w", err)
		}
		s.hasher.CompareDummy(password)
		s.loginFailed(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		s.loginFailed(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}

	session, err := s.openSession(user)
	if err != nil {
		return nil, err
	}

	observability.AuthAttemptsTotal.WithLabelValues("login", "ok").Inc()
	s.publish(ctx, domain.EventLoginSucceeded, user.ID, user.Email)
	return session, nil
}

// Authenticate resolves a session token to the identity it belongs to.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		observability.AuthAttemptsTotal.WithLabelValues("authenticate", "unauthorized").Inc()
		return domain.Identity{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			observability.AuthAttemptsTotal.WithLabelValues("authenticate", "user_not_found").Inc()
			return domain.Identity{}, domain.ErrUserNotFound
		}
		return domain.Identity{}, fmt.Errorf("failed to load session user: %w", err)
	}

	return user.Identity(), nil
}

// Logout records the end of a session. The token may be empty or invalid;
// logging out never fails.
func (s *AuthService) Logout(ctx context.Context, token string) {
	userID, _ := s.tokens.Verify(token)
	s.publish(ctx, domain.EventLogout, userID, "")
}

func (s *AuthService) openSession(user *domain.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string) {
	observability.AuthAttemptsTotal.WithLabelValues("login", "invalid_credentials").Inc()
	s.publish(ctx, domain.EventLoginFailed, "", email)
}

// publish hands an event to the broker. Failures are logged and dropped.
func (s *AuthService) publish(ctx context.Context, eventType domain.AuthEventType, userID, email string) {
	if s.events == nil {
		return
	}

	event := &domain.AuthEvent{
		Type:       eventType,
		UserID:     userID,
		Email:      email,
		RemoteAddr: remoteAddr(ctx),
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.PublishAuthEvent(ctx, event); err != nil {
		observability.AuthEventsPublished.WithLabelValues(string(eventType), "error").Inc()
		observability.FromContext(ctx).Warn("failed to publish auth event",
			slog.String("type", string(eventType)),
			slog.String("error", err.Error()))
		return
	}
	observability.AuthEventsPublished.WithLabelValues(string(eventType), "ok").Inc()
}
