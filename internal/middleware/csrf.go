package middleware

import (
	"log/slog"
	"net/http"

	"cookie-auth/internal/domain"
	"cookie-auth/internal/observability"
	"cookie-auth/internal/respond"
	"cookie-auth/internal/security"
)

// AntiForgeryCookieName holds the anti-forgery session id.
const AntiForgeryCookieName = "_csrf"

// antiForgeryHeaders are checked in order. XSRF-TOKEN is what the browser
// client historically sent.
var antiForgeryHeaders = []string{"X-CSRF-Token", "X-XSRF-Token", "XSRF-TOKEN"}

// CSRF validates the anti-forgery token of a request against the token
// bound to its anti-forgery session cookie (synchronizer token pattern).
// It is mounted only on the state-mutating auth routes, so it checks every
// request it sees regardless of method. Rejection happens before the
// wrapped handler runs.
func CSRF(store security.AntiForgeryStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason := ""

			cookie, err := r.Cookie(AntiForgeryCookieName)
			submitted := ExtractAntiForgeryToken(r)
			switch {
			case err != nil || cookie.Value == "":
				reason = "missing session cookie"
			case submitted == "":
				reason = "missing token"
			case !store.Validate(r.Context(), cookie.Value, submitted):
				reason = "invalid token"
			}

			if reason != "" {
				observability.CSRFRejectionsTotal.WithLabelValues(reason).Inc()
				observability.SecurityEvent(r.Context(), "csrf_rejected", reason,
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				respond.Error(w, r, domain.ErrInvalidAntiForgery)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ExtractAntiForgeryToken returns the first non-empty anti-forgery header.
func ExtractAntiForgeryToken(r *http.Request) string {
	for _, h := range antiForgeryHeaders {
		if token := r.Header.Get(h); token != "" {
			return token
		}
	}
	return ""
}
