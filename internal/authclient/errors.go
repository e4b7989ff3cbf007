package authclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// User-facing copy.
const (
	MsgNetwork        = "No response from server. Please check your network connection."
	MsgSessionExpired = "Your session has expired. Please log in again."
	MsgUnauthorized   = "Invalid email or password"
	MsgForbidden      = "Your form has expired. Please reload the page and try again."
	MsgConflict       = "User already exists"
	MsgRateLimited    = "Too many attempts. Please wait a moment and try again."
	MsgFailed         = "Something went wrong. Please try again."
)

// RequestError is a failed call to the auth API. Status is zero when no
// response arrived.
type RequestError struct {
	Op         string
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a RequestError with the given status.
func IsStatus(err error, status int) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == status
}

// statusMessage maps a response status to the copy shown to the user. Only
// a 400 passes the server's own message through, since it names the
// missing or malformed input rather than which credential was wrong.
func statusMessage(status int, serverMsg string) string {
	switch status {
	case http.StatusBadRequest:
		if serverMsg != "" {
			return serverMsg
		}
		return MsgFailed
	case http.StatusUnauthorized:
		return MsgUnauthorized
	case http.StatusForbidden:
		return MsgForbidden
	case http.StatusConflict:
		return MsgConflict
	case http.StatusTooManyRequests:
		return MsgRateLimited
	default:
		return MsgFailed
	}
}
