package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"cookie-auth/internal/domain"
	"cookie-auth/internal/observability"
	"cookie-auth/internal/respond"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionCookieName is the HTTP-only cookie carrying the session token.
const SessionCookieName = "token"

// Authenticator resolves a session token to the identity it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// Auth gates a route on a valid session cookie. The decoded identity is
// attached to the request context; any failure short-circuits with the
// mapped error status.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				token = cookie.Value
			}

			identity, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if domain.KindOf(err) != domain.KindInternal {
					observability.FromContext(r.Context()).Info("session rejected",
						slog.String("path", r.URL.Path),
						slog.String("reason", err.Error()),
					)
				}
				respond.Error(w, r, err)
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = observability.WithUserID(ctx, identity.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity returns the identity attached by Auth.
func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}
