package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cookie-auth/internal/domain"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// antiForgeryHeader carries the token on mutating calls.
const antiForgeryHeader = "X-CSRF-Token"

const defaultTimeout = 15 * time.Second

// Navigator moves the host to another route, optionally with a flash message.
type Navigator interface {
	Navigate(path, flash string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path, flash string)

func (f NavigatorFunc) Navigate(path, flash string) { f(path, flash) }

type nopNavigator struct{}

func (nopNavigator) Navigate(string, string) {}

// Option customizes a Client.
type Option func(*Client)

// WithNavigator sets the navigator used after login, logout and session expiry.
func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		c.nav = n
	}
}

// WithTransport sets the underlying round tripper. The 401 interceptor
// still wraps it.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithCookieJar replaces the in-memory cookie jar, for example with one
// persisted between process runs.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client talks to the auth API with cookie credentials and keeps the auth
// state machine in step with what the server says.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	transport http.RoundTripper
	jar       http.CookieJar
	timeout   time.Duration
	nav       Navigator
	machine   *Machine

	mu          sync.RWMutex
	identity    domain.Identity
	csrfToken   string
	started     atomic.Bool
	reloadGroup singleflight.Group

	// lifetime is cancelled by Close; in-flight checks derive from it.
	lifetime context.Context
	cancel   context.CancelFunc
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:   u,
		transport: http.DefaultTransport,
		timeout:   defaultTimeout,
		nav:       nopNavigator{},
		machine:   NewMachine(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.jar = jar
	}

	c.http = &http.Client{
		Jar:       c.jar,
		Timeout:   c.timeout,
		Transport: &interceptor{next: c.transport, client: c},
	}
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Machine exposes the state machine, for registering transition listeners.
func (c *Client) Machine() *Machine {
	return c.machine
}

// State returns the current auth state.
func (c *Client) State() State {
	return c.machine.State()
}

// Identity returns the signed-in identity, if any. Only the id and email are
// kept client side.
func (c *Client) Identity() (domain.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.identity != (domain.Identity{})
}

// Gate decides how path is handled in the current state.
func (c *Client) Gate(path string) Decision {
	return Gate(c.machine.State(), path)
}

// Start fetches an anti-forgery token and checks the session concurrently,
// then resolves the state from the check. A failed token fetch does not stop
// the state from resolving and is returned alongside it; a later mutating
// call will fail with 403 until ReloadAntiForgery succeeds. If the client is
// closed first, the results are discarded and the state stays unknown.
func (c *Client) Start(ctx context.Context) (State, error) {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	var (
		identity domain.Identity
		checkErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		_, err := c.fetchAntiForgery(ctx)
		return err
	})
	g.Go(func() error {
		identity, checkErr = c.checkAuth(ctx, "start")
		return nil
	})
	tokenErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return StateUnknown, err
	}

	event := EventCheckSucceeded
	if checkErr != nil {
		event = EventCheckFailed
	} else {
		c.setIdentity(identity)
	}

	state, err := c.machine.Fire(event)
	if err != nil {
		return state, err
	}
	c.started.Store(true)

	if tokenErr != nil {
		return state, fmt.Errorf("failed to fetch anti-forgery token: %w", tokenErr)
	}
	return state, nil
}

// Close abandons in-flight checks and releases idle connections.
func (c *Client) Close() {
	c.cancel()
	c.http.CloseIdleConnections()
}

// Login signs in. On success the state becomes authenticated and the host
// is sent to the dashboard; on failure the state is unchanged.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if !c.machine.Can(EventLoggedIn) {
		return fmt.Errorf("%w: login in state %s", ErrInvalidTransition, c.machine.State())
	}

	var resp struct {
		User string `json:"user"`
	}
	if err := c.send(ctx, "login", http.MethodPost, PathLogin, credentials{Email: email, Password: password}, &resp); err != nil {
		return err
	}

	c.setIdentity(domain.Identity{Email: resp.User})
	return c.enter(EventLoggedIn)
}

// Signup creates an account and signs in with it.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	if !c.machine.Can(EventSignedUp) {
		return fmt.Errorf("%w: signup in state %s", ErrInvalidTransition, c.machine.State())
	}

	var resp struct {
		User string `json:"user"`
	}
	if err := c.send(ctx, "signup", http.MethodPost, PathSignup, credentials{Email: email, Password: password}, &resp); err != nil {
		return err
	}

	c.setIdentity(domain.Identity{ID: resp.User, Email: email})
	return c.enter(EventSignedUp)
}

// Logout ends the session and sends the host to the login page.
func (c *Client) Logout(ctx context.Context) error {
	if !c.machine.Can(EventLoggedOut) {
		return fmt.Errorf("%w: logout in state %s", ErrInvalidTransition, c.machine.State())
	}

	if err := c.send(ctx, "logout", http.MethodPost, "/logout", nil, nil); err != nil {
		return err
	}

	c.setIdentity(domain.Identity{})
	if _, err := c.machine.Fire(EventLoggedOut); err != nil {
		return err
	}
	c.nav.Navigate(PathLogin, "")
	return nil
}

// CheckAuth asks the server who the session belongs to. A 401 here after
// startup expires the session like any other 401.
func (c *Client) CheckAuth(ctx context.Context) (domain.Identity, error) {
	identity, err := c.checkAuth(ctx, "check-auth")
	if err != nil {
		return domain.Identity{}, err
	}
	c.setIdentity(identity)
	return identity, nil
}

// ReloadAntiForgery fetches a fresh token, the recovery path after a 403.
// Concurrent calls share one request.
func (c *Client) ReloadAntiForgery(ctx context.Context) (string, error) {
	v, err, _ := c.reloadGroup.Do("csrf", func() (interface{}, error) {
		return c.fetchAntiForgery(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// enter fires a sign-in event and navigates to the dashboard.
func (c *Client) enter(event Event) error {
	if _, err := c.machine.Fire(event); err != nil {
		return err
	}
	c.nav.Navigate(PathDashboard, "")
	return nil
}

// sessionRejected handles a 401 seen by the interceptor. Only an
// authenticated client that has finished starting reacts to it.
func (c *Client) sessionRejected() {
	if !c.started.Load() {
		return
	}
	if _, err := c.machine.Fire(EventUnauthorized); err != nil {
		return
	}
	c.setIdentity(domain.Identity{})
	c.nav.Navigate(PathLogin, MsgSessionExpired)
}

func (c *Client) fetchAntiForgery(ctx context.Context) (string, error) {
	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.send(ctx, "csrf-token", http.MethodGet, "/csrf-token", nil, &resp); err != nil {
		return "", err
	}
	if resp.CSRFToken == "" {
		return "", &RequestError{Op: "csrf-token", Status: http.StatusOK, Message: MsgFailed, Err: errors.New("empty token")}
	}

	c.mu.Lock()
	c.csrfToken = resp.CSRFToken
	c.mu.Unlock()
	return resp.CSRFToken, nil
}

func (c *Client) checkAuth(ctx context.Context, op string) (domain.Identity, error) {
	var resp struct {
		User domain.Identity `json:"user"`
	}
	if err := c.send(ctx, op, http.MethodGet, "/check-auth", nil, &resp); err != nil {
		return domain.Identity{}, err
	}
	return resp.User, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type errorBody struct {
	Error string `json:"error"`
}

// send performs one request. Any non-2xx status is a *RequestError.
func (c *Client) send(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		c.mu.RLock()
		token := c.csrfToken
		c.mu.RUnlock()
		if token != "" {
			req.Header.Set(antiForgeryHeader, token)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RequestError{Op: op, Message: MsgNetwork, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&eb)

		reqErr := &RequestError{
			Op:      op,
			Status:  res.StatusCode,
			Message: statusMessage(res.StatusCode, eb.Error),
		}
		if eb.Error != "" {
			reqErr.Err = errors.New(eb.Error)
		}
		if secs, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil {
			reqErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return reqErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Status: res.StatusCode, Message: MsgFailed, Err: err}
	}
	return nil
}

// bind derives a context cancelled by either ctx or Close.
func (c *Client) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Client) setIdentity(identity domain.Identity) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
}

// interceptor watches every response for 401.
type interceptor struct {
	next   http.RoundTripper
	client *Client
}

func (i *interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := i.next.RoundTrip(req)
	if err == nil && res.StatusCode == http.StatusUnauthorized {
		i.client.sessionRejected()
	}
	return res, err
}

func (i *interceptor) CloseIdleConnections() {
	if ci, ok := i.next.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}
