package domain

import (
	"context"
	"time"
)

// AuthEventType names an authentication lifecycle event.
type AuthEventType string

const (
	EventSignup         AuthEventType = "signup"
	EventLoginSucceeded AuthEventType = "login_succeeded"
	EventLoginFailed    AuthEventType = "login_failed"
	EventLogout         AuthEventType = "logout"
)

// AuthEvent is published after an authentication operation completes.
// It never carries passwords or tokens.
type AuthEvent struct {
	Type       AuthEventType `json:"type"`
	UserID     string        `json:"user_id,omitempty"`
	Email      string        `json:"email,omitempty"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// EventPublisher delivers auth events to interested consumers.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event *AuthEvent) error
}
