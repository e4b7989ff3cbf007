package domain

import "errors"

// Kind classifies a failure. The set is closed; every transport maps each
// Kind explicitly.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a classified failure. Message is safe to show to clients; Reason
// is for server logs only.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Message + " (" + e.Reason + ")"
	}
	return e.Message
}

var (
	ErrMissingCredentials = &Error{Kind: KindInvalidInput, Message: "Email and password are required"}
	ErrInvalidEmail       = &Error{Kind: KindInvalidInput, Message: "Email is not valid"}
	ErrPasswordTooLong    = &Error{Kind: KindInvalidInput, Message: "Password must be at most 72 bytes"}
	ErrInvalidBody        = &Error{Kind: KindInvalidInput, Message: "Invalid request body"}

	ErrEmailInUse = &Error{Kind: KindConflict, Message: "Email already in use"}

	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "Invalid credentials"}

	// Token failures share one client message and differ only by Reason.
	ErrNotAuthenticated = &Error{Kind: KindUnauthorized, Message: "Not authenticated", Reason: "no token"}
	ErrTokenExpired     = &Error{Kind: KindUnauthorized, Message: "Not authenticated", Reason: "token expired"}
	ErrTokenMalformed   = &Error{Kind: KindUnauthorized, Message: "Not authenticated", Reason: "token malformed"}

	ErrInvalidAntiForgery = &Error{Kind: KindForbidden, Message: "Invalid CSRF token. Please reload the page and try again."}

	ErrUserNotFound = &Error{Kind: KindNotFound, Message: "User not found"}

	ErrRateLimited = &Error{Kind: KindRateLimited, Message: "Too many requests, please try again later"}
)

// KindOf reports the Kind of err. Anything that is not a *Error is internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}
	return "Server error"
}
