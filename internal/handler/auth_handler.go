package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"cookie-auth/internal/domain"
	"cookie-auth/internal/middleware"
	"cookie-auth/internal/respond"
	"cookie-auth/internal/security"
	"cookie-auth/internal/service"
)

// maxBodyBytes caps credential payloads.
const maxBodyBytes = 1 << 20

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService  *service.AuthService
	secureCookie bool
	exposeToken  bool
}

// AuthHandlerOption customizes an AuthHandler.
type AuthHandlerOption func(*AuthHandler)

// WithSecureCookies marks the session cookie Secure. Enable behind HTTPS.
func WithSecureCookies(secure bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.secureCookie = secure
	}
}

// WithTokenInBody echoes the session token in the login response in
// addition to the cookie.
func WithTokenInBody(expose bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.exposeToken = expose
	}
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *service.AuthService, opts ...AuthHandlerOption) *AuthHandler {
	h := &AuthHandler{
		authService: authService,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CredentialsRequest is the body of signup and login
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupResponse represents signup response
type SignupResponse struct {
	Message string `json:"message"`
	User    string `json:"user"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Message string `json:"message"`
	User    string `json:"user"`
	Token   string `json:"token,omitempty"`
}

// MessageResponse carries a bare confirmation message
type MessageResponse struct {
	Message string `json:"message"`
}

// CheckAuthResponse echoes the authenticated identity
type CheckAuthResponse struct {
	Message string          `json:"message"`
	User    domain.Identity `json:"user"`
}

// Signup handles account creation
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	ctx := service.WithRemoteAddr(r.Context(), middleware.ClientIP(r))
	session, err := h.authService.Signup(ctx, req.Email, req.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.setSessionCookie(w, session)
	respond.JSON(w, http.StatusCreated, SignupResponse{
		Message: "User created successfully",
		User:    session.User.ID,
	})
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	ctx := service.WithRemoteAddr(r.Context(), middleware.ClientIP(r))
	session, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.setSessionCookie(w, session)

	resp := LoginResponse{
		Message: "Login successful",
		User:    session.User.Email,
	}
	if h.exposeToken {
		resp.Token = session.Token
	}
	respond.JSON(w, http.StatusOK, resp)
}

// Logout clears the session cookie. It succeeds with or without a session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		token = cookie.Value
	}

	ctx := service.WithRemoteAddr(r.Context(), middleware.ClientIP(r))
	h.authService.Logout(ctx, token)

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	respond.JSON(w, http.StatusOK, MessageResponse{Message: "Logout successful"})
}

// CheckAuth echoes the identity resolved by the Auth middleware
func (h *AuthHandler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respond.Error(w, r, domain.ErrNotAuthenticated)
		return
	}

	respond.JSON(w, http.StatusOK, CheckAuthResponse{
		Message: "Authenticated",
		User:    identity,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *service.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(security.SessionTokenTTL.Seconds()),
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, domain.ErrInvalidBody)
		return req, false
	}
	return req, true
}
