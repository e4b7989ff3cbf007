package handler

import (
	"fmt"
	"net/http"

	"cookie-auth/internal/middleware"
	"cookie-auth/internal/respond"
	"cookie-auth/internal/security"

	"github.com/google/uuid"
)

// CSRFHandler hands out anti-forgery tokens
type CSRFHandler struct {
	store        security.AntiForgeryStore
	secureCookie bool
}

// NewCSRFHandler creates a handler issuing tokens from store
func NewCSRFHandler(store security.AntiForgeryStore, secureCookie bool) *CSRFHandler {
	return &CSRFHandler{
		store:        store,
		secureCookie: secureCookie,
	}
}

// CSRFTokenResponse represents the anti-forgery token response
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// Token binds the caller to an anti-forgery session, creating the session
// cookie on first contact, and returns the token for that session.
func (h *CSRFHandler) Token(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(middleware.AntiForgeryCookieName); err == nil {
		sessionID = cookie.Value
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AntiForgeryCookieName,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteStrictMode,
		})
	}

	token, err := h.store.Issue(r.Context(), sessionID)
	if err != nil {
		respond.Error(w, r, fmt.Errorf("failed to issue anti-forgery token: %w", err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respond.JSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}
