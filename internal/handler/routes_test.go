package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"cookie-auth/internal/middleware"
	"cookie-auth/internal/testutil"

	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:5173"

type routerFixture struct {
	*authFixture
	handler http.Handler
}

func newRouterFixture(t *testing.T, rateLimit int, opts ...func(*RouterConfig)) *routerFixture {
	t.Helper()

	f := newAuthFixture()
	store := newTestAntiForgeryStore(t)

	limiter := middleware.NewFixedWindowLimiter(rateLimit, 2*time.Minute)
	t.Cleanup(limiter.Stop)

	cfg := RouterConfig{
		Auth:           NewAuthHandler(f.service),
		CSRF:           NewCSRFHandler(store, false),
		Authenticator:  f.service,
		AntiForgery:    store,
		Limiter:        limiter,
		AllowedOrigins: []string{testOrigin},
		OpenAPI:        middleware.DefaultOpenAPIValidatorConfig("../../artifacts/openapi.yaml"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &routerFixture{authFixture: f, handler: NewRouter(cfg)}
}

// antiForgery fetches a token and returns it with the session cookie it is
// bound to.
func (f *routerFixture) antiForgery(t *testing.T) (*http.Cookie, string) {
	t.Helper()

	res := apitest.New().
		Handler(f.handler).
		Get("/csrf-token").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.csrfToken")).
		CookiePresent(middleware.AntiForgeryCookieName).
		End()

	var body CSRFTokenResponse
	res.JSON(&body)
	return responseCookie(t, res, middleware.AntiForgeryCookieName), body.CSRFToken
}

func responseCookie(t *testing.T, res apitest.Result, name string) *http.Cookie {
	t.Helper()

	for _, c := range res.Response.Cookies() {
		if c.Name == name {
			return c
		}
	}
	require.Failf(t, "cookie not set", "expected cookie %q", name)
	return nil
}

func TestRouter_SignupThenCheckAuth(t *testing.T) {
	f := newRouterFixture(t, 100)
	csrfCookie, csrfToken := f.antiForgery(t)

	res := apitest.New().
		Handler(f.handler).
		Post("/signup").
		Cookie(csrfCookie.Name, csrfCookie.Value).
		Header("X-CSRF-Token", csrfToken).
		JSON(`{"email":"a@x.com","password":"Abc12345!"}`).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.message", "User created successfully")).
		Assert(jsonpath.Present("$.user")).
		Assert(jsonpath.NotPresent("$.token")).
		CookiePresent(middleware.SessionCookieName).
		End()

	session := responseCookie(t, res, middleware.SessionCookieName)

	apitest.New().
		Handler(f.handler).
		Get("/check-auth").
		Cookie(session.Name, session.Value).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message", "Authenticated")).
		Assert(jsonpath.Equal("$.user.email", "a@x.com")).
		Assert(jsonpath.NotPresent("$.user.password_hash")).
		End()
}

func TestRouter_LoginAcceptsLegacyHeader(t *testing.T) {
	f := newRouterFixture(t, 100)
	testutil.SeedUser(f.users, testutil.WithEmail("a@x.com"))
	csrfCookie, csrfToken := f.antiForgery(t)

	apitest.New().
		Handler(f.handler).
		Post("/login").
		Cookie(csrfCookie.Name, csrfCookie.Value).
		Header("XSRF-TOKEN", csrfToken).
		JSON(`{"email":"a@x.com","password":"Abc12345!"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message", "Login successful")).
		Assert(jsonpath.Equal("$.user", "a@x.com")).
		CookiePresent(middleware.SessionCookieName).
		End()
}

func TestRouter_AntiForgeryRejectionCreatesNoUser(t *testing.T) {
	tests := []struct {
		name       string
		withCookie bool
		token      string
	}{
		{"no_cookie_no_header", false, ""},
		{"cookie_without_header", true, ""},
		{"header_without_cookie", false, "valid"},
		{"mismatched_token", true, "not-the-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, 100)
			csrfCookie, csrfToken := f.antiForgery(t)

			req := apitest.New().
				Handler(f.handler).
				Post("/signup").
				JSON(`{"email":"a@x.com","password":"Abc12345!"}`)
			if tt.withCookie {
				req = req.Cookie(csrfCookie.Name, csrfCookie.Value)
			}
			switch tt.token {
			case "":
			case "valid":
				req = req.Header("X-CSRF-Token", csrfToken)
			default:
				req = req.Header("X-CSRF-Token", tt.token)
			}

			req.Expect(t).
				Status(http.StatusForbidden).
				Body(`{"error":"Invalid CSRF token. Please reload the page and try again."}`).
				CookieNotPresent(middleware.SessionCookieName).
				End()

			assert.Equal(t, 0, f.users.Count())
			assert.Empty(t, f.events.Events)
		})
	}
}

func TestRouter_LogoutTwice(t *testing.T) {
	f := newRouterFixture(t, 100)
	csrfCookie, csrfToken := f.antiForgery(t)

	for i := 0; i < 2; i++ {
		res := apitest.New().
			Handler(f.handler).
			Post("/logout").
			Cookie(csrfCookie.Name, csrfCookie.Value).
			Header("X-CSRF-Token", csrfToken).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"message":"Logout successful"}`).
			End()

		cleared := responseCookie(t, res, middleware.SessionCookieName)
		assert.Empty(t, cleared.Value)
		assert.Equal(t, -1, cleared.MaxAge)
	}
}

func TestRouter_RateLimitAfterRepeatedFailedLogins(t *testing.T) {
	// One anti-forgery fetch plus three logins use up the quota.
	f := newRouterFixture(t, 4)
	testutil.SeedUser(f.users, testutil.WithEmail("a@x.com"))
	csrfCookie, csrfToken := f.antiForgery(t)

	login := func() *apitest.Response {
		return apitest.New().
			Handler(f.handler).
			Post("/login").
			Cookie(csrfCookie.Name, csrfCookie.Value).
			Header("X-CSRF-Token", csrfToken).
			JSON(`{"email":"a@x.com","password":"wrong-password"}`).
			Expect(t)
	}

	for i := 0; i < 3; i++ {
		login().
			Status(http.StatusUnauthorized).
			Body(`{"error":"Invalid credentials"}`).
			Header("X-RateLimit-Limit", "4").
			End()
	}

	login().
		Status(http.StatusTooManyRequests).
		Assert(jsonpath.Equal("$.error", "Too many requests from this IP, please try again after 2 minutes")).
		Assert(jsonpath.Present("$.retry_after")).
		HeaderPresent("Retry-After").
		End()

	// Another client address still has its own quota.
	apitest.New().
		Handler(f.handler).
		Intercept(fromAddr("10.0.0.2:4000")).
		Get("/csrf-token").
		Expect(t).
		Status(http.StatusOK).
		End()

	// Health and metrics are outside the limiter.
	apitest.New().
		Handler(f.handler).
		Get("/health").
		Expect(t).
		Status(http.StatusOK).
		End()
}

// fromAddr sets the socket address a request arrives from.
func fromAddr(addr string) apitest.Intercept {
	return func(req *http.Request) {
		req.RemoteAddr = addr
	}
}

func TestRouter_RateLimitIgnoresForwardedHeaders(t *testing.T) {
	f := newRouterFixture(t, 4)

	for i := 0; i < 10; i++ {
		want := http.StatusOK
		if i >= 4 {
			want = http.StatusTooManyRequests
		}
		apitest.New().
			Handler(f.handler).
			Intercept(fromAddr("203.0.113.9:5555")).
			Get("/csrf-token").
			Header("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i)).
			Header("X-Real-IP", fmt.Sprintf("198.51.100.%d", i)).
			Expect(t).
			Status(want).
			End()
	}
}

func TestRouter_RateLimitBehindTrustedProxy(t *testing.T) {
	f := newRouterFixture(t, 1, func(cfg *RouterConfig) { cfg.TrustProxy = true })

	get := func(clientIP string) *apitest.Response {
		return apitest.New().
			Handler(f.handler).
			Intercept(fromAddr("10.0.0.1:8080")).
			Get("/csrf-token").
			Header("X-Forwarded-For", clientIP).
			Expect(t)
	}

	// The proxy shares one socket address; clients are told apart by header.
	get("198.51.100.1").Status(http.StatusOK).End()
	get("198.51.100.2").Status(http.StatusOK).End()
	get("198.51.100.1").Status(http.StatusTooManyRequests).End()
}

func TestRouter_CheckAuth(t *testing.T) {
	t.Run("no_cookie", func(t *testing.T) {
		f := newRouterFixture(t, 100)

		apitest.New().
			Handler(f.handler).
			Get("/check-auth").
			Expect(t).
			Status(http.StatusUnauthorized).
			Body(`{"error":"Not authenticated"}`).
			End()
	})

	t.Run("tampered_token", func(t *testing.T) {
		f := newRouterFixture(t, 100)

		apitest.New().
			Handler(f.handler).
			Get("/check-auth").
			Cookie(middleware.SessionCookieName, "eyJhbGciOiJIUzI1NiJ9.e30.invalid").
			Expect(t).
			Status(http.StatusUnauthorized).
			Body(`{"error":"Not authenticated"}`).
			End()
	})

	t.Run("user_deleted_after_login", func(t *testing.T) {
		f := newRouterFixture(t, 100)
		user := testutil.SeedUser(f.users)
		token, _, err := f.tokens.Issue(user.ID)
		require.NoError(t, err)
		f.users.Delete(user.ID)

		apitest.New().
			Handler(f.handler).
			Get("/check-auth").
			Cookie(middleware.SessionCookieName, token).
			Expect(t).
			Status(http.StatusNotFound).
			Body(`{"error":"User not found"}`).
			End()
	})
}

func TestRouter_RequestValidation(t *testing.T) {
	f := newRouterFixture(t, 100)
	csrfCookie, csrfToken := f.antiForgery(t)

	apitest.New().
		Handler(f.handler).
		Post("/signup").
		Cookie(csrfCookie.Name, csrfCookie.Value).
		Header("X-CSRF-Token", csrfToken).
		JSON(`{"email":5,"password":"Abc12345!"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Body(`{"error":"Invalid request body"}`).
		End()

	apitest.New().
		Handler(f.handler).
		Get("/admin").
		Expect(t).
		Status(http.StatusNotFound).
		End()

	assert.Equal(t, 0, f.users.Count())
}

func TestRouter_Preflight(t *testing.T) {
	f := newRouterFixture(t, 1)

	for i := 0; i < 3; i++ {
		apitest.New().
			Handler(f.handler).
			Method(http.MethodOptions).
			URL("/login").
			Header("Origin", testOrigin).
			Header("Access-Control-Request-Method", http.MethodPost).
			Expect(t).
			Status(http.StatusNoContent).
			Header("Access-Control-Allow-Origin", testOrigin).
			Header("Access-Control-Allow-Credentials", "true").
			End()
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	f := newRouterFixture(t, 100)

	apitest.New().
		Handler(f.handler).
		Get("/health").
		Expect(t).
		Status(http.StatusOK).
		Header("X-Content-Type-Options", "nosniff").
		HeaderNotPresent("Strict-Transport-Security").
		End()
}
